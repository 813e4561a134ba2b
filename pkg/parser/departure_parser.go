package parser

import (
	"context"
	"fmt"
	"strings"

	dotel "departureboard/pkg/otel"
	"departureboard/pkg/resrobot"
	"departureboard/pkg/types"

	"github.com/clbanning/mxj/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// APIError is an error document returned with a 200 status.
type APIError struct {
	Code string
	Text string
}

func (e *APIError) Error() string {
	if e.Text == "" {
		return "departure board API error " + e.Code
	}
	return fmt.Sprintf("departure board API error %s: %s", e.Code, e.Text)
}

// DepartureParser turns departure board payloads into raw departures.
// JSON and XML share one code path: both are decoded into an mxj.Map, where
// XML attributes appear as "-name" keys.
type DepartureParser struct {
	tracer trace.Tracer
}

func NewDepartureParser() *DepartureParser {
	return &DepartureParser{
		tracer: otel.Tracer("departure-parser"),
	}
}

func (p *DepartureParser) Parse(ctx context.Context, resp *resrobot.Response) ([]types.RawDeparture, error) {
	_, span := p.tracer.Start(ctx, "parser.parse_departures",
		trace.WithAttributes(
			attribute.String("station.id", resp.StationID),
			attribute.String("payload.format", string(resp.Format)),
			attribute.Int("payload.size_bytes", len(resp.Body)),
		),
	)
	defer span.End()

	m, err := decode(resp.Format, resp.Body)
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeParse, false)
		return nil, fmt.Errorf("failed to parse %s payload: %w", resp.Format, err)
	}

	root := m
	if board, ok := m["DepartureBoard"].(map[string]interface{}); ok {
		root = board
	}

	if apiErr := extractError(m); apiErr != nil {
		dotel.RecordError(span, apiErr, dotel.ErrorTypeHTTP, false)
		return nil, apiErr
	}

	departures := extractDepartures(root)
	span.SetAttributes(attribute.Int("departures_count", len(departures)))
	dotel.SetSpanOk(span)

	return departures, nil
}

func decode(format resrobot.Format, body []byte) (mxj.Map, error) {
	if format == resrobot.FormatXML {
		return mxj.NewMapXml(body)
	}
	return mxj.NewMapJson(body)
}

// extractError recognises both {"errorCode": ...} and <Error errorCode="..."/>.
func extractError(m map[string]interface{}) *APIError {
	node := m
	if e, ok := m["Error"].(map[string]interface{}); ok {
		node = e
	}
	code := field(node, "errorCode")
	if code == "" {
		return nil
	}
	return &APIError{Code: code, Text: field(node, "errorText")}
}

func extractDepartures(root map[string]interface{}) []types.RawDeparture {
	// Departure can be a single item or an array
	var items []interface{}
	switch d := root["Departure"].(type) {
	case []interface{}:
		items = d
	case map[string]interface{}:
		items = []interface{}{d}
	default:
		return []types.RawDeparture{}
	}

	departures := make([]types.RawDeparture, 0, len(items))
	for _, item := range items {
		dm, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		departures = append(departures, parseDeparture(dm))
	}
	return departures
}

func parseDeparture(dm map[string]interface{}) types.RawDeparture {
	return types.RawDeparture{
		Name:      field(dm, "name"),
		Time:      field(dm, "time"),
		Date:      field(dm, "date"),
		Direction: field(dm, "direction"),
		Stop:      field(dm, "stop"),
	}
}

// field reads key as a JSON member or an XML attribute.
func field(m map[string]interface{}, key string) string {
	for _, k := range [...]string{key, "-" + key} {
		switch v := m[k].(type) {
		case string:
			return strings.TrimSpace(v)
		case float64:
			return fmt.Sprintf("%g", v)
		}
	}
	return ""
}
