package metrics

import (
	"context"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"departureboard/pkg/otel"

	otelapi "go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "departureboard"

var (
	meterProvider *sdkmetric.MeterProvider

	// Meter is the global meter for creating instruments. It stays nil while
	// metrics are disabled, which turns every recorder into a no-op.
	Meter metric.Meter

	// lastSuccessTimestamp holds the Unix time of the last published board
	lastSuccessTimestamp atomic.Int64
)

// InitMetrics initializes OpenTelemetry metrics with the configured exporter.
// Returns a shutdown function that should be called on application exit.
func InitMetrics() (func(), error) {
	if !otel.IsMetricsEnabled() {
		slog.Debug("OpenTelemetry metrics is disabled")
		return func() {}, nil
	}

	ctx := context.Background()
	cfg := otel.GetExporterConfig(otel.SignalMetrics)

	exporter, err := otel.NewMetricExporter(ctx, cfg)
	if err != nil {
		slog.Warn("Failed to create OTLP metric exporter, using noop", "error", err)
		return func() {}, nil
	}

	res, err := otel.NewResource()
	if err != nil {
		slog.Warn("Failed to create resource, using noop", "error", err)
		return func() {}, nil
	}

	meterProvider = sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(
			sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(otel.MetricExportInterval()),
			),
		),
		sdkmetric.WithResource(res),
	)
	otelapi.SetMeterProvider(meterProvider)

	Meter = meterProvider.Meter(meterName)

	if err := initializeInstruments(); err != nil {
		slog.Error("Failed to initialize metric instruments", "error", err)
		Meter = nil
		return func() {}, nil
	}

	if err := registerRuntimeMetrics(); err != nil {
		slog.Warn("Failed to register runtime metrics", "error", err)
	}

	slog.Debug("OpenTelemetry metrics initialized",
		"endpoint", cfg.Endpoint,
		"protocol", cfg.Protocol,
	)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := meterProvider.Shutdown(ctx); err != nil {
			slog.Error("Error shutting down meter provider", "error", err)
		}
		Meter = nil
	}, nil
}

// registerRuntimeMetrics registers observable gauges for runtime and board freshness
func registerRuntimeMetrics() error {
	goroutines, err := Meter.Int64ObservableGauge(
		"runtime.go.goroutines",
		metric.WithDescription("Number of goroutines"),
		metric.WithUnit("{goroutine}"),
	)
	if err != nil {
		return err
	}

	heapAlloc, err := Meter.Int64ObservableGauge(
		"runtime.go.mem.heap_alloc",
		metric.WithDescription("Heap memory allocated"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	heapInuse, err := Meter.Int64ObservableGauge(
		"runtime.go.mem.heap_inuse",
		metric.WithDescription("Heap memory in use"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	sys, err := Meter.Int64ObservableGauge(
		"runtime.go.mem.sys",
		metric.WithDescription("Total memory obtained from OS"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	gcCount, err := Meter.Int64ObservableCounter(
		"runtime.go.gc.count",
		metric.WithDescription("Number of completed GC cycles"),
		metric.WithUnit("{gc}"),
	)
	if err != nil {
		return err
	}

	lastSuccess, err := Meter.Int64ObservableGauge(
		"pipeline.last_success.timestamp",
		metric.WithDescription("Unix timestamp of the last published board"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	boardAge, err := Meter.Float64ObservableGauge(
		"board.age",
		metric.WithDescription("Seconds since the last published board"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	// One MemStats read serves every memory instrument per collection.
	_, err = Meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		o.ObserveInt64(goroutines, int64(runtime.NumGoroutine()))
		o.ObserveInt64(heapAlloc, int64(m.HeapAlloc))
		o.ObserveInt64(heapInuse, int64(m.HeapInuse))
		o.ObserveInt64(sys, int64(m.Sys))
		o.ObserveInt64(gcCount, int64(m.NumGC))

		if ts := lastSuccessTimestamp.Load(); ts > 0 {
			o.ObserveInt64(lastSuccess, ts)
			o.ObserveFloat64(boardAge, time.Since(time.Unix(ts, 0)).Seconds())
		}
		return nil
	}, goroutines, heapAlloc, heapInuse, sys, gcCount, lastSuccess, boardAge)
	return err
}

// RecordLastSuccessTimestamp records the current time as the last published board
func RecordLastSuccessTimestamp() {
	lastSuccessTimestamp.Store(time.Now().Unix())
}

// LastSuccess returns the time of the last published board, or the zero time.
func LastSuccess() time.Time {
	ts := lastSuccessTimestamp.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// IsEnabled returns true if metrics collection is enabled
func IsEnabled() bool {
	return Meter != nil
}
