package loki

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"departureboard/pkg/board"
	"departureboard/pkg/departures"
	"departureboard/pkg/types"
)

func intPtr(i int) *int { return &i }

func testSnapshot(warning departures.LastServiceWarning) board.Snapshot {
	return board.NewSnapshot([]types.ProcessedDeparture{
		{Name: "30", TransportType: types.TransportTram, Time: "08:30", TimeLeft: 40, Direction: "Sickla", Station: "Universitetet"},
		{Name: "4", TransportType: types.TransportBus, Time: "07:56", TimeLeft: 6, Direction: "Radiohuset", Station: "Odenplan"},
		{Name: "11", TransportType: types.TransportMetro, Time: "08:05", TimeLeft: 15, Direction: "Akalla", Station: "Universitetet", Prioritized: true, NextDepartureTimeLeft: intPtr(25)},
	}, warning, time.Date(2024, 3, 1, 7, 50, 0, 0, time.UTC), nil)
}

func TestNewClient(t *testing.T) {
	client := NewClient("http://localhost:3100", "user", "pass")

	if client == nil {
		t.Fatal("NewClient returned nil")
	}
	if client.baseURL != "http://localhost:3100" {
		t.Errorf("baseURL = %q, want %q", client.baseURL, "http://localhost:3100")
	}
	if client.username != "user" || client.password != "pass" {
		t.Errorf("credentials = %q/%q", client.username, client.password)
	}
}

func TestBuildPushRequest_StreamsPerStation(t *testing.T) {
	req, err := BuildPushRequest(testSnapshot(departures.LastServiceWarning{}))
	if err != nil {
		t.Fatalf("BuildPushRequest: %v", err)
	}

	if len(req.Streams) != 2 {
		t.Fatalf("Expected 2 streams, got %d", len(req.Streams))
	}

	first := req.Streams[0]
	expectedLabels := map[string]string{
		"job":     "departureboard",
		"service": "departure-board",
		"station": "Universitetet",
	}
	for key, expected := range expectedLabels {
		if first.Stream[key] != expected {
			t.Errorf("Stream label %q = %q, want %q", key, first.Stream[key], expected)
		}
	}
	if len(first.Values) != 2 {
		t.Fatalf("Universitetet should have 2 lines, got %d", len(first.Values))
	}
	if req.Streams[1].Stream["station"] != "Odenplan" || len(req.Streams[1].Values) != 1 {
		t.Errorf("second stream = %+v", req.Streams[1])
	}

	entry := first.Values[1]
	if len(entry) != 2 {
		t.Fatalf("Expected entry with [timestamp, content], got %d elements", len(entry))
	}
	if entry[0] != "1709279400000000000" {
		t.Errorf("timestamp = %q", entry[0])
	}

	var rowLog map[string]interface{}
	if err := json.Unmarshal([]byte(entry[1]), &rowLog); err != nil {
		t.Fatalf("Failed to parse log content JSON: %v", err)
	}

	expectedFields := []string{
		"generated_at", "station", "line", "transport_type", "time",
		"time_left", "time_left_text", "next_departure_time_left",
		"direction", "prioritized", "urgent", "line_color",
	}
	for _, field := range expectedFields {
		if _, exists := rowLog[field]; !exists {
			t.Errorf("Expected field %q in log content, not found", field)
		}
	}
	if rowLog["line"] != "11" || rowLog["time_left"] != float64(15) || rowLog["next_departure_time_left"] != float64(25) {
		t.Errorf("row log = %v", rowLog)
	}
}

func TestBuildPushRequest_StreamOrderMatchesStations(t *testing.T) {
	snap := testSnapshot(departures.LastServiceWarning{})
	req, err := BuildPushRequest(snap)
	if err != nil {
		t.Fatalf("BuildPushRequest: %v", err)
	}

	stations := snap.Stations()
	if len(req.Streams) != len(stations) {
		t.Fatalf("got %d streams for stations %v", len(req.Streams), stations)
	}
	for i, name := range stations {
		if got := req.Streams[i].Stream["station"]; got != name {
			t.Errorf("stream %d station = %q, want %q", i, got, name)
		}
	}
}

func TestBuildPushRequest_LastServiceEvent(t *testing.T) {
	req, err := BuildPushRequest(testSnapshot(departures.LastServiceWarning{
		Active: true, Line: "11", Station: "Universitetet", Direction: "Akalla", MinutesLeft: 15,
	}))
	if err != nil {
		t.Fatalf("BuildPushRequest: %v", err)
	}

	last := req.Streams[len(req.Streams)-1]
	if last.Stream["event"] != "last_service" {
		t.Fatalf("last stream labels = %v", last.Stream)
	}
	if !strings.Contains(last.Values[0][1], `"minutes_left":15`) {
		t.Errorf("warning line = %s", last.Values[0][1])
	}
}

func TestPublish_MockServer(t *testing.T) {
	var receivedBody []byte
	var receivedHeaders http.Header
	var receivedPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedPath = r.URL.Path
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	if err := client.Publish(context.Background(), testSnapshot(departures.LastServiceWarning{})); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if receivedPath != "/loki/api/v1/push" {
		t.Errorf("Expected path /loki/api/v1/push, got %s", receivedPath)
	}
	if receivedHeaders.Get("Content-Type") != "application/json" {
		t.Errorf("Expected Content-Type application/json, got %s", receivedHeaders.Get("Content-Type"))
	}
	if receivedHeaders.Get("User-Agent") != "departureboard/1.0" {
		t.Errorf("User-Agent = %s", receivedHeaders.Get("User-Agent"))
	}
	if receivedHeaders.Get("Authorization") != "" {
		t.Error("Expected no Authorization header when credentials are empty")
	}

	var pushReq PushRequest
	if err := json.Unmarshal(receivedBody, &pushReq); err != nil {
		t.Fatalf("Failed to parse request body: %v", err)
	}
	if len(pushReq.Streams) != 2 {
		t.Errorf("Expected 2 streams, got %d", len(pushReq.Streams))
	}
}

func TestPublish_WithAuthentication(t *testing.T) {
	var authHeader string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "testuser", "testpass")
	if err := client.Publish(context.Background(), testSnapshot(departures.LastServiceWarning{})); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if !strings.HasPrefix(authHeader, "Basic ") {
		t.Errorf("Expected Basic auth, got %q", authHeader)
	}
}

func TestPublish_EmptyBoardSkipped(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewClient(server.URL, "", "")
	snap := board.NewSnapshot(nil, departures.LastServiceWarning{}, time.Now(), nil)
	if err := client.Publish(context.Background(), snap); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if called {
		t.Error("empty board should not be pushed")
	}
}

func TestPublish_ErrorOnNon2xx(t *testing.T) {
	tests := []struct {
		statusCode int
		expectErr  bool
	}{
		{http.StatusOK, false},
		{http.StatusNoContent, false},
		{http.StatusBadRequest, true},
		{http.StatusUnauthorized, true},
		{http.StatusInternalServerError, true},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.statusCode), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			err := NewClient(server.URL, "", "").Publish(context.Background(), testSnapshot(departures.LastServiceWarning{}))
			if tt.expectErr && err == nil {
				t.Errorf("Expected error for status %d, got nil", tt.statusCode)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Unexpected error for status %d: %v", tt.statusCode, err)
			}
		})
	}
}

func TestPublish_ServerUnavailable(t *testing.T) {
	client := NewClient("http://127.0.0.1:59999", "", "")

	if err := client.Publish(context.Background(), testSnapshot(departures.LastServiceWarning{})); err == nil {
		t.Error("Expected error when server is unavailable, got nil")
	}
}

func TestPublish_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := NewClient(server.URL, "", "").Publish(ctx, testSnapshot(departures.LastServiceWarning{})); err == nil {
		t.Error("Expected error when context is cancelled, got nil")
	}
}
