package board

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Message is the envelope for websocket frames.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Store holds the latest snapshot together with its encoded forms.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
	body     []byte
	message  []byte
	version  uint64
}

func NewStore() *Store {
	return &Store{}
}

// Put replaces the current snapshot and returns the encoded websocket message.
func (s *Store) Put(snap Snapshot) ([]byte, error) {
	body, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	message, err := json.Marshal(Message{Type: "snapshot", Payload: body})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot message: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = snap
	s.body = body
	s.message = message
	s.version++
	return message, nil
}

// Snapshot returns the current snapshot and whether one has been published.
func (s *Store) Snapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot, s.version > 0
}

// Body returns the JSON-encoded snapshot and its version.
func (s *Store) Body() ([]byte, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.body, s.version
}

// Message returns the encoded websocket snapshot message, or nil before the first publish.
func (s *Store) Message() []byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

func (s *Store) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version > 0
}
