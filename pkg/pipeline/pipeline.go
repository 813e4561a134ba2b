package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/departures"
	"departureboard/pkg/metrics"
	dotel "departureboard/pkg/otel"
	"departureboard/pkg/parser"
	"departureboard/pkg/resrobot"
	"departureboard/pkg/types"

	"github.com/sourcegraph/conc/pool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultInterval       = 30 * time.Second
	DefaultMaxConcurrency = 4
)

// Fetcher returns the raw departure board payload for one station.
type Fetcher interface {
	FetchDepartures(ctx context.Context, stationID string) (*resrobot.Response, error)
}

// Sink receives every board built by a cycle.
type Sink interface {
	Publish(ctx context.Context, snap board.Snapshot) error
}

type Config struct {
	Stations []types.Station
	Fetcher  Fetcher
	Options  departures.Options

	LastServiceLines     []string
	LastServiceThreshold int

	Interval       time.Duration
	MaxConcurrency int

	// Sinks run in process and receive every board.
	Sinks []Sink

	// RemoteSinks ship boards to external systems and are skipped in dry runs.
	RemoteSinks []Sink

	// DryRun prints each board to Output instead of sending it to RemoteSinks.
	DryRun bool
	Output io.Writer
}

type Pipeline struct {
	config    Config
	parser    *parser.DepartureParser
	processor *departures.Processor
	detector  *departures.LastServiceDetector
	badges    *board.BadgeGenerator
	tracer    trace.Tracer
}

type stationResult struct {
	index      int
	station    types.Station
	departures []types.RawDeparture
	err        error
}

func New(config Config) (*Pipeline, error) {
	if config.Fetcher == nil {
		return nil, fmt.Errorf("departure fetcher is required")
	}

	if len(config.Stations) == 0 {
		return nil, fmt.Errorf("at least one station is required")
	}

	if config.Options.Resolver == nil {
		return nil, fmt.Errorf("time resolver is required")
	}

	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = DefaultMaxConcurrency
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}

	return &Pipeline{
		config:    config,
		parser:    parser.NewDepartureParser(),
		processor: departures.NewProcessor(config.Options),
		detector:  departures.NewLastServiceDetector(config.LastServiceLines, config.LastServiceThreshold),
		badges:    board.NewBadgeGenerator(),
		tracer:    otel.Tracer("pipeline"),
	}, nil
}

func (p *Pipeline) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	slog.Info("Pipeline started",
		"interval", p.config.Interval,
		"stations", len(p.config.Stations),
		"last_service_lines", p.detector.Lines(),
		"dry_run", p.config.DryRun,
	)

	// Process immediately on start
	if _, err := p.processOnce(ctx); err != nil {
		slog.Error("Error in initial processing", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Pipeline stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.processOnce(ctx); err != nil {
				slog.Error("Error processing", "error", err)
			}
		}
	}
}

func (p *Pipeline) processOnce(ctx context.Context) (board.Snapshot, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_once",
		trace.WithAttributes(
			attribute.Bool("dry_run", p.config.DryRun),
			attribute.Int("stations_count", len(p.config.Stations)),
		),
	)
	defer span.End()

	start := time.Now()

	results := p.fetchAll(ctx)

	var input []types.StationDepartures
	var failed []string
	var errs []error
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, r.station.Name)
			errs = append(errs, r.err)
			slog.Warn("Station failed", "station", r.station.Name, "id", r.station.ID, "error", r.err)
			continue
		}
		input = append(input, types.StationDepartures{Station: r.station, Departures: r.departures})
	}

	span.SetAttributes(
		attribute.Int("successful_stations", len(input)),
		attribute.Int("failed_stations", len(failed)),
	)

	if len(input) == 0 {
		metrics.RecordCycle(ctx, time.Since(start), len(results), len(failed))
		err := fmt.Errorf("all stations failed: %w", errors.Join(errs...))
		dotel.RecordError(span, err, dotel.ErrorTypeNetwork, true)
		return board.Snapshot{}, err
	}

	rows := p.processor.Process(ctx, input)

	warning := p.detector.Detect(rows)
	if warning.Active {
		metrics.RecordLastServiceWarning(ctx, warning.Line)
		span.SetAttributes(
			attribute.String("last_service.line", warning.Line),
			attribute.Int("last_service.minutes_left", warning.MinutesLeft),
		)
	}

	snap := board.NewSnapshot(rows, warning, p.config.Options.Resolver.Now(), p.badges)
	snap.FailedStations = failed

	if p.config.DryRun {
		if err := p.printBoard(snap); err != nil {
			slog.Error("Error in dry run", "error", err)
		}
	}

	p.publish(ctx, p.config.Sinks, snap)
	if !p.config.DryRun {
		p.publish(ctx, p.config.RemoteSinks, snap)
	}

	span.SetAttributes(
		attribute.Int("board_rows", len(snap.Rows)),
		attribute.String("processing_duration", time.Since(start).String()),
	)
	metrics.RecordCycle(ctx, time.Since(start), len(results), len(failed))
	metrics.RecordLastSuccessTimestamp()
	dotel.SetSpanOk(span)

	slog.Debug("Board refreshed", "rows", len(snap.Rows), "failed_stations", len(failed))

	return snap, nil
}

func (p *Pipeline) publish(ctx context.Context, sinks []Sink, snap board.Snapshot) {
	for _, sink := range sinks {
		if err := sink.Publish(ctx, snap); err != nil {
			metrics.RecordError(ctx, "publish", dotel.ErrorTypeHTTP)
			slog.Error("Error publishing board", "sink", fmt.Sprintf("%T", sink), "error", err)
		}
	}
}

// fetchAll fetches and parses every station concurrently and returns the
// results in configuration order.
func (p *Pipeline) fetchAll(ctx context.Context) []stationResult {
	pl := pool.NewWithResults[stationResult]().WithMaxGoroutines(p.config.MaxConcurrency)

	for i, station := range p.config.Stations {
		pl.Go(func() stationResult {
			return p.processStation(ctx, i, station)
		})
	}

	results := pl.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].index < results[b].index })
	return results
}

func (p *Pipeline) processStation(ctx context.Context, index int, station types.Station) stationResult {
	ctx, span := p.tracer.Start(ctx, "pipeline.process_station",
		trace.WithAttributes(
			attribute.String("station.id", station.ID),
			attribute.String("station.name", station.Name),
		),
	)
	defer span.End()

	metrics.StationStarted(ctx)
	defer metrics.StationFinished(ctx)

	result := stationResult{index: index, station: station}

	resp, err := p.config.Fetcher.FetchDepartures(ctx, station.ID)
	if err != nil {
		metrics.RecordError(ctx, "fetch", dotel.ErrorTypeNetwork)
		dotel.RecordError(span, err, dotel.ErrorTypeNetwork, true)
		result.err = fmt.Errorf("failed to fetch departures for %s: %w", station.Name, err)
		return result
	}

	raw, err := p.parser.Parse(ctx, resp)
	if err != nil {
		metrics.RecordError(ctx, "parse", dotel.ErrorTypeParse)
		dotel.RecordError(span, err, dotel.ErrorTypeParse, false)
		result.err = fmt.Errorf("failed to parse departures for %s: %w", station.Name, err)
		return result
	}

	span.SetAttributes(
		attribute.Int("departures_parsed", len(raw)),
		attribute.Bool("cached", resp.Cached),
	)
	metrics.RecordRawDepartures(ctx, station.Name, len(raw))
	dotel.SetSpanOk(span)

	result.departures = raw
	return result
}

func (p *Pipeline) printBoard(snap board.Snapshot) error {
	out := p.config.Output

	fmt.Fprintf(out, "\n=== DRY RUN - Departure board %s ===\n", snap.LastUpdated)

	if w := snap.LastService; w.Active {
		fmt.Fprintf(out, "!!! LAST SERVICE: line %s from %s towards %s leaves in %s !!!\n",
			w.Line, w.Station, w.Direction, departures.FormatMinutes(types.TimeLeft(w.MinutesLeft)))
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LINE\tMODE\tDIRECTION\tSTATION\tTIME\tLEFT\tNEXT")
	for _, row := range snap.Rows {
		name := row.Name
		if row.Prioritized {
			name += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			name, row.TransportType, row.DirectionShort, row.Station, row.Time, row.TimeLeftText, row.NextText)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write board: %w", err)
	}

	if len(snap.FailedStations) > 0 {
		fmt.Fprintf(out, "Failed stations: %v\n", snap.FailedStations)
	}
	fmt.Fprintln(out, "=== END DRY RUN ===")

	return nil
}
