package loki

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/metrics"
	dotel "departureboard/pkg/otel"
	"departureboard/pkg/types"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	jobLabel     = "departureboard"
	serviceLabel = "departure-board"
	userAgent    = "departureboard/1.0"
)

type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	tracer     trace.Tracer
}

type PushRequest struct {
	Streams []Stream `json:"streams"`
}

type Stream struct {
	Stream map[string]string `json:"stream"`
	Values [][]string        `json:"values"`
}

// rowLog is the JSON body of one board row log line.
type rowLog struct {
	GeneratedAt   string              `json:"generated_at"`
	Station       string              `json:"station"`
	Line          string              `json:"line"`
	TransportType types.TransportType `json:"transport_type"`
	Time          string              `json:"time"`
	TimeLeft      types.TimeLeft      `json:"time_left"`
	TimeLeftText  string              `json:"time_left_text"`
	NextTimeLeft  *int                `json:"next_departure_time_left"`
	Direction     string              `json:"direction"`
	Prioritized   bool                `json:"prioritized"`
	Urgent        bool                `json:"urgent"`
	LineColor     string              `json:"line_color"`
}

type lastServiceLog struct {
	GeneratedAt string `json:"generated_at"`
	Event       string `json:"event"`
	Line        string `json:"line"`
	Station     string `json:"station"`
	Direction   string `json:"direction"`
	MinutesLeft int    `json:"minutes_left"`
}

func NewClient(baseURL, username, password string) *Client {
	client := &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
		Timeout:   30 * time.Second,
	}

	return &Client{
		httpClient: client,
		baseURL:    baseURL,
		username:   username,
		password:   password,
		tracer:     otel.Tracer("loki-client"),
	}
}

// BuildPushRequest groups board rows into one stream per station, in board
// order, plus an event stream when a last-service warning is active.
func BuildPushRequest(snap board.Snapshot) (*PushRequest, error) {
	ts := strconv.FormatInt(snap.GeneratedAt.UnixNano(), 10)
	generatedAt := snap.GeneratedAt.Format(time.RFC3339)

	stations := snap.Stations()
	streams := make([]Stream, len(stations))
	index := make(map[string]int, len(stations))
	for i, name := range stations {
		index[name] = i
		streams[i] = Stream{
			Stream: map[string]string{
				"job":     jobLabel,
				"service": serviceLabel,
				"station": name,
			},
		}
	}

	for _, row := range snap.Rows {
		line, err := json.Marshal(rowLog{
			GeneratedAt:   generatedAt,
			Station:       row.Station,
			Line:          row.Name,
			TransportType: row.TransportType,
			Time:          row.Time,
			TimeLeft:      row.TimeLeft,
			TimeLeftText:  row.TimeLeftText,
			NextTimeLeft:  row.NextDepartureTimeLeft,
			Direction:     row.Direction,
			Prioritized:   row.Prioritized,
			Urgent:        row.Urgent,
			LineColor:     row.LineColor,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal row JSON: %w", err)
		}

		i := index[row.Station]
		streams[i].Values = append(streams[i].Values, []string{ts, string(line)})
	}

	if w := snap.LastService; w.Active {
		line, err := json.Marshal(lastServiceLog{
			GeneratedAt: generatedAt,
			Event:       "last_service",
			Line:        w.Line,
			Station:     w.Station,
			Direction:   w.Direction,
			MinutesLeft: w.MinutesLeft,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal warning JSON: %w", err)
		}
		streams = append(streams, Stream{
			Stream: map[string]string{
				"job":     jobLabel,
				"service": serviceLabel,
				"event":   "last_service",
			},
			Values: [][]string{{ts, string(line)}},
		})
	}

	return &PushRequest{Streams: streams}, nil
}

// Publish pushes snap to Loki. An empty board is not sent.
func (c *Client) Publish(ctx context.Context, snap board.Snapshot) error {
	ctx, span := c.tracer.Start(ctx, "loki.send_board",
		trace.WithAttributes(
			attribute.Int("rows_count", len(snap.Rows)),
		),
	)
	defer span.End()

	lokiReq, err := BuildPushRequest(snap)
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeValidation, false)
		return err
	}
	if len(lokiReq.Streams) == 0 {
		slog.Debug("Empty board, skipping Loki push")
		dotel.SetSpanOk(span)
		return nil
	}

	reqBody, err := json.Marshal(lokiReq)
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to marshal Loki request: %w", err)
	}

	url := c.baseURL + "/loki/api/v1/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		dotel.RecordError(span, err, dotel.ErrorTypeValidation, false)
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	if c.username != "" && c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	span.SetAttributes(
		attribute.Bool("auth.enabled", c.username != "" && c.password != ""),
		attribute.Int("request.size_bytes", len(reqBody)),
		attribute.Int("streams_count", len(lokiReq.Streams)),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordLokiSend(ctx, time.Since(start), false)
		errType, transient := dotel.ClassifyTransport(err)
		dotel.RecordError(span, err, errType, transient)
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordLokiSend(ctx, time.Since(start), false)
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		err := fmt.Errorf("Loki returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
		dotel.RecordError(span, err, dotel.ErrorTypeHTTP, dotel.IsTransientStatus(resp.StatusCode))
		return err
	}

	metrics.RecordLokiSend(ctx, time.Since(start), true)
	dotel.SetSpanOk(span)
	return nil
}
