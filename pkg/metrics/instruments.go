package metrics

import (
	"go.opentelemetry.io/otel/metric"
)

// HTTP Client Metrics (OTEL Semantic Conventions)
var (
	// HTTPClientRequestDuration measures the duration of upstream API requests
	HTTPClientRequestDuration metric.Float64Histogram

	// HTTPClientResponseBodySize measures the size of upstream responses
	HTTPClientResponseBodySize metric.Int64Histogram
)

// Pipeline Metrics
var (
	// PipelineCyclesTotal counts refresh cycles by outcome
	PipelineCyclesTotal metric.Int64Counter

	// PipelineCycleDuration measures the duration of refresh cycles
	PipelineCycleDuration metric.Float64Histogram

	// PipelineStationsProcessed counts stations fetched successfully
	PipelineStationsProcessed metric.Int64Counter

	// PipelineStationsFailed counts stations whose fetch or parse failed
	PipelineStationsFailed metric.Int64Counter

	// PipelineStationsInFlight tracks concurrent station fetches
	PipelineStationsInFlight metric.Int64UpDownCounter

	// PipelineErrorsTotal counts errors by stage and type
	PipelineErrorsTotal metric.Int64Counter
)

// Departure Metrics
var (
	// DeparturesRawTotal counts raw departures received per station
	DeparturesRawTotal metric.Int64Counter

	// DeparturesFilteredTotal counts dropped departures by reason
	DeparturesFilteredTotal metric.Int64Counter

	// BoardRows measures the number of rows on each published board
	BoardRows metric.Int64Histogram

	// LastServiceWarningsTotal counts cycles with an active last-service warning
	LastServiceWarningsTotal metric.Int64Counter
)

// Upstream, cache and sink metrics
var (
	// UpstreamRequestsTotal counts departure board API requests by status
	UpstreamRequestsTotal metric.Int64Counter

	// CacheLookupsTotal counts response cache lookups by result
	CacheLookupsTotal metric.Int64Counter

	// LokiSendDuration measures the duration of Loki push operations
	LokiSendDuration metric.Float64Histogram

	// LokiSendTotal counts total Loki sends by status
	LokiSendTotal metric.Int64Counter

	// WebsocketClients tracks connected display clients
	WebsocketClients metric.Int64UpDownCounter
)

// initializeInstruments creates all metric instruments
func initializeInstruments() error {
	var err error

	HTTPClientRequestDuration, err = Meter.Float64Histogram(
		"http.client.request.duration",
		metric.WithDescription("Duration of HTTP client requests"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.075, 0.1, 0.25, 0.5, 0.75, 1.0, 2.5, 5.0, 7.5, 10.0),
	)
	if err != nil {
		return err
	}

	HTTPClientResponseBodySize, err = Meter.Int64Histogram(
		"http.client.response.body.size",
		metric.WithDescription("Size of HTTP response bodies"),
		metric.WithUnit("By"),
		metric.WithExplicitBucketBoundaries(1024, 10240, 102400, 1048576), // 1KB to 1MB
	)
	if err != nil {
		return err
	}

	PipelineCyclesTotal, err = Meter.Int64Counter(
		"pipeline.cycles.total",
		metric.WithDescription("Total number of refresh cycles"),
		metric.WithUnit("{cycle}"),
	)
	if err != nil {
		return err
	}

	PipelineCycleDuration, err = Meter.Float64Histogram(
		"pipeline.cycle.duration",
		metric.WithDescription("Duration of refresh cycles"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return err
	}

	PipelineStationsProcessed, err = Meter.Int64Counter(
		"pipeline.stations.processed",
		metric.WithDescription("Stations fetched and parsed"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineStationsFailed, err = Meter.Int64Counter(
		"pipeline.stations.failed",
		metric.WithDescription("Stations that failed to fetch or parse"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineStationsInFlight, err = Meter.Int64UpDownCounter(
		"pipeline.stations.in_flight",
		metric.WithDescription("Number of stations currently being fetched"),
		metric.WithUnit("{station}"),
	)
	if err != nil {
		return err
	}

	PipelineErrorsTotal, err = Meter.Int64Counter(
		"pipeline.errors.total",
		metric.WithDescription("Total errors by stage and type"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return err
	}

	DeparturesRawTotal, err = Meter.Int64Counter(
		"departures.raw.total",
		metric.WithDescription("Raw departures received from the upstream API"),
		metric.WithUnit("{departure}"),
	)
	if err != nil {
		return err
	}

	DeparturesFilteredTotal, err = Meter.Int64Counter(
		"departures.filtered.total",
		metric.WithDescription("Departures dropped before display, by reason"),
		metric.WithUnit("{departure}"),
	)
	if err != nil {
		return err
	}

	BoardRows, err = Meter.Int64Histogram(
		"board.rows",
		metric.WithDescription("Rows on each published board"),
		metric.WithUnit("{row}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 5, 10, 15, 20, 30, 50),
	)
	if err != nil {
		return err
	}

	LastServiceWarningsTotal, err = Meter.Int64Counter(
		"board.last_service.warnings",
		metric.WithDescription("Boards published with an active last-service warning"),
		metric.WithUnit("{board}"),
	)
	if err != nil {
		return err
	}

	UpstreamRequestsTotal, err = Meter.Int64Counter(
		"resrobot.api.requests.total",
		metric.WithDescription("Total departure board API requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	CacheLookupsTotal, err = Meter.Int64Counter(
		"cache.lookups.total",
		metric.WithDescription("Response cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return err
	}

	LokiSendDuration, err = Meter.Float64Histogram(
		"loki.send.duration",
		metric.WithDescription("Duration of Loki push operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return err
	}

	LokiSendTotal, err = Meter.Int64Counter(
		"loki.send.total",
		metric.WithDescription("Total Loki sends by status"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return err
	}

	WebsocketClients, err = Meter.Int64UpDownCounter(
		"board.websocket.clients",
		metric.WithDescription("Connected websocket display clients"),
		metric.WithUnit("{client}"),
	)
	if err != nil {
		return err
	}

	return nil
}
