package board

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzhttp"
)

// Server publishes snapshots to the HTTP API and websocket displays.
type Server struct {
	store  *Store
	hub    *Hub
	ws     *WSHandler
	logger *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "board")

	store := NewStore()
	hub := NewHub(store, logger)
	return &Server{
		store:  store,
		hub:    hub,
		ws:     NewWSHandler(hub, logger),
		logger: logger,
	}
}

// Run drives the websocket hub until ctx is cancelled.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

// Publish stores snap and pushes it to connected displays.
func (s *Server) Publish(_ context.Context, snap Snapshot) error {
	msg, err := s.store.Put(snap)
	if err != nil {
		return err
	}
	s.hub.Broadcast(msg)
	return nil
}

func (s *Server) Store() *Store {
	return s.store
}

// Handler returns the routed API with CORS applied. The websocket endpoint
// is served without gzip.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("GET /v1/board", s.GetBoard)
	api.HandleFunc("GET /healthz", s.Healthz)
	api.HandleFunc("GET /readyz", s.Readyz)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/ws", s.ws.ServeWS)
	mux.Handle("/", GzipMiddleware(api))

	return CORSMiddleware(mux)
}

func (s *Server) GetBoard(w http.ResponseWriter, r *http.Request) {
	body, version := s.store.Body()
	if version == 0 {
		w.Header().Set("Retry-After", "5")
		respondError(w, http.StatusServiceUnavailable, "board not ready, please retry")
		return
	}

	etag := fmt.Sprintf(`"%x"`, version)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

func (s *Server) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

type ReadyResponse struct {
	Ready       bool      `json:"ready"`
	Rows        int       `json:"rows"`
	Clients     int       `json:"clients"`
	GeneratedAt time.Time `json:"generated_at"`
	ServerTime  time.Time `json:"server_time"`
}

func (s *Server) Readyz(w http.ResponseWriter, r *http.Request) {
	snap, ready := s.store.Snapshot()
	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	respondJSON(w, status, ReadyResponse{
		Ready:       ready,
		Rows:        len(snap.Rows),
		Clients:     s.hub.ClientCount(),
		GeneratedAt: snap.GeneratedAt,
		ServerTime:  time.Now(),
	})
}

func GzipMiddleware(next http.Handler) http.Handler {
	wrapper, _ := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.CompressionLevel(6),
	)
	return wrapper(next)
}

func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		w.Header().Set("Access-Control-Expose-Headers", "ETag")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
