package metrics

import (
	"context"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// The recorders below are safe to call when metrics are disabled.

func RecordCycle(ctx context.Context, duration time.Duration, stations, failed int) {
	if !IsEnabled() {
		return
	}
	status := "ok"
	if stations > 0 && failed == stations {
		status = "failed"
	} else if failed > 0 {
		status = "partial"
	}
	PipelineCyclesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
	PipelineCycleDuration.Record(ctx, duration.Seconds())
	PipelineStationsProcessed.Add(ctx, int64(stations-failed))
	PipelineStationsFailed.Add(ctx, int64(failed))
}

func StationStarted(ctx context.Context) {
	if IsEnabled() {
		PipelineStationsInFlight.Add(ctx, 1)
	}
}

func StationFinished(ctx context.Context) {
	if IsEnabled() {
		PipelineStationsInFlight.Add(ctx, -1)
	}
}

func RecordError(ctx context.Context, stage, errorType string) {
	if !IsEnabled() {
		return
	}
	PipelineErrorsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("error.type", errorType),
	))
}

func RecordRawDepartures(ctx context.Context, station string, n int) {
	if !IsEnabled() {
		return
	}
	DeparturesRawTotal.Add(ctx, int64(n), metric.WithAttributes(attribute.String("station", station)))
}

func RecordDepartureFiltered(ctx context.Context, reason string) {
	if !IsEnabled() {
		return
	}
	DeparturesFilteredTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func RecordBoardRows(ctx context.Context, n int) {
	if !IsEnabled() {
		return
	}
	BoardRows.Record(ctx, int64(n))
}

func RecordLastServiceWarning(ctx context.Context, line string) {
	if !IsEnabled() {
		return
	}
	LastServiceWarningsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("line", line)))
}

func RecordUpstreamRequest(ctx context.Context, statusCode int, duration time.Duration, size int) {
	if !IsEnabled() {
		return
	}
	attrs := metric.WithAttributes(attribute.String("http.response.status_code", strconv.Itoa(statusCode)))
	UpstreamRequestsTotal.Add(ctx, 1, attrs)
	HTTPClientRequestDuration.Record(ctx, duration.Seconds(), attrs)
	if size > 0 {
		HTTPClientResponseBodySize.Record(ctx, int64(size))
	}
}

func RecordCacheLookup(ctx context.Context, hit bool) {
	if !IsEnabled() {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheLookupsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func RecordLokiSend(ctx context.Context, duration time.Duration, ok bool) {
	if !IsEnabled() {
		return
	}
	status := "success"
	if !ok {
		status = "error"
	}
	LokiSendDuration.Record(ctx, duration.Seconds())
	LokiSendTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

func AddWebsocketClients(ctx context.Context, delta int64) {
	if IsEnabled() {
		WebsocketClients.Add(ctx, delta)
	}
}
