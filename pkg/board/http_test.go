package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"departureboard/pkg/departures"
	"departureboard/pkg/types"

	"github.com/coder/websocket"
)

func testSnapshot(rows int) Snapshot {
	var board []types.ProcessedDeparture
	for i := 0; i < rows; i++ {
		board = append(board, types.ProcessedDeparture{
			Name: "11", TransportType: types.TransportMetro, TimeLeft: types.TimeLeft(10 + i),
			Direction: "Akalla", Station: "Universitetet",
		})
	}
	return NewSnapshot(board, departures.LastServiceWarning{}, time.Now(), nil)
}

func TestGetBoard_NotReady(t *testing.T) {
	srv := NewServer(nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/board", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After should be set")
	}
}

func TestGetBoard_ETag(t *testing.T) {
	srv := NewServer(nil)
	if err := srv.Publish(context.Background(), testSnapshot(2)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/board", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var snap Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(snap.Rows) != 2 {
		t.Errorf("rows = %d, want 2", len(snap.Rows))
	}

	etag := rec.Header().Get("ETag")
	if etag == "" {
		t.Fatal("ETag should be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/board", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotModified {
		t.Errorf("status = %d, want 304", rec.Code)
	}

	srv.Publish(context.Background(), testSnapshot(1))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status after new publish = %d, want 200", rec.Code)
	}
}

func TestGetBoard_Gzip(t *testing.T) {
	srv := NewServer(nil)
	srv.Publish(context.Background(), testSnapshot(40))

	req := httptest.NewRequest(http.MethodGet, "/v1/board", nil)
	req.Header.Set("Accept-Encoding", "gzip")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Header().Get("Content-Encoding") != "gzip" {
		t.Errorf("Content-Encoding = %q, want gzip", rec.Header().Get("Content-Encoding"))
	}
}

func TestHealthAndReady(t *testing.T) {
	srv := NewServer(nil)
	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz before publish = %d, want 503", rec.Code)
	}

	srv.Publish(context.Background(), testSnapshot(3))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("readyz after publish = %d, want 200", rec.Code)
	}
	var ready ReadyResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &ready); err != nil {
		t.Fatal(err)
	}
	if !ready.Ready || ready.Rows != 3 {
		t.Errorf("ready = %+v", ready)
	}
}

func TestCORSPreflight(t *testing.T) {
	rec := httptest.NewRecorder()
	NewServer(nil).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/v1/board", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode message %q: %v", data, err)
	}
	return msg
}

func TestWebsocket_SnapshotAndBroadcast(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := NewServer(nil)
	go srv.Run(ctx)
	srv.Publish(ctx, testSnapshot(1))

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/v1/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	first := readMessage(t, ctx, conn)
	if first.Type != "snapshot" {
		t.Fatalf("first message type = %q, want snapshot", first.Type)
	}
	var snap Snapshot
	json.Unmarshal(first.Payload, &snap)
	if len(snap.Rows) != 1 {
		t.Errorf("initial snapshot rows = %d, want 1", len(snap.Rows))
	}

	// Wait for registration before broadcasting.
	deadline := time.Now().Add(5 * time.Second)
	for srv.hub.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	srv.Publish(ctx, testSnapshot(3))

	// The first publish may still be in flight when the display registers.
	for range 2 {
		second := readMessage(t, ctx, conn)
		json.Unmarshal(second.Payload, &snap)
		if len(snap.Rows) == 3 {
			break
		}
	}
	if len(snap.Rows) != 3 {
		t.Errorf("broadcast snapshot rows = %d, want 3", len(snap.Rows))
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if pong := readMessage(t, ctx, conn); pong.Type != "pong" {
		t.Errorf("reply type = %q, want pong", pong.Type)
	}
}
