package departures

import (
	"context"

	"departureboard/pkg/clock"
	"departureboard/pkg/metrics"
	"departureboard/pkg/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMinTimeThreshold = 5
	DefaultPinnedLine       = "30"
)

type Options struct {
	Resolver *clock.Resolver

	// DefaultMinTimeThreshold applies to lines without their own threshold.
	// Departures at or below it are hidden.
	DefaultMinTimeThreshold int

	// PinnedLine is always shown first. Empty disables pinning.
	PinnedLine string
}

// DefaultOptions returns the board's standard settings for resolver.
func DefaultOptions(resolver *clock.Resolver) Options {
	return Options{
		Resolver:                resolver,
		DefaultMinTimeThreshold: DefaultMinTimeThreshold,
		PinnedLine:              DefaultPinnedLine,
	}
}

// Processor turns per-station raw departures into the ordered board.
type Processor struct {
	opts   Options
	tracer trace.Tracer
}

func NewProcessor(opts Options) *Processor {
	return &Processor{
		opts:   opts,
		tracer: otel.Tracer("departures"),
	}
}

// Process runs normalize, filter and prioritize over every station and
// returns a fresh board. The same input at the same instant always yields
// the same board.
func (p *Processor) Process(ctx context.Context, input []types.StationDepartures) []types.ProcessedDeparture {
	ctx, span := p.tracer.Start(ctx, "departures.process",
		trace.WithAttributes(
			attribute.Int("stations_count", len(input)),
			attribute.String("pinned_line", p.opts.PinnedLine),
		),
	)
	defer span.End()

	// One instant for the whole cycle.
	resolver := p.opts.Resolver.At(p.opts.Resolver.Now())

	var filtered []types.ProcessedDeparture
	rawCount := 0

	for _, sd := range input {
		index := ConfigIndex(sd.Station)
		rawCount += len(sd.Departures)

		for _, raw := range sd.Departures {
			draft := Normalize(raw, sd.Station.Name, resolver)

			var cfg *types.LineConfig
			if c, ok := index[draft.Name]; ok {
				cfg = &c
			}

			dep, reason := Filter(draft, cfg, p.opts.DefaultMinTimeThreshold)
			if reason != ReasonNone {
				metrics.RecordDepartureFiltered(ctx, string(reason))
				continue
			}
			filtered = append(filtered, dep)
		}
	}

	board := Prioritize(filtered, p.opts.PinnedLine)

	span.SetAttributes(
		attribute.Int("raw_departures", rawCount),
		attribute.Int("filtered_departures", len(filtered)),
		attribute.Int("board_rows", len(board)),
	)
	metrics.RecordBoardRows(ctx, len(board))

	return board
}
