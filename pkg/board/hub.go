package board

import (
	"context"
	"log/slog"
	"sync"

	"departureboard/pkg/metrics"
)

type Client struct {
	ID   string
	Send chan []byte
}

func NewClient(id string, bufferSize int) *Client {
	return &Client{
		ID:   id,
		Send: make(chan []byte, bufferSize),
	}
}

// Hub fans snapshot messages out to every connected display.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	store  *Store
	logger *slog.Logger
}

// NewHub returns a hub that greets each new client with the current message
// from store. A nil store sends nothing on register.
func NewHub(store *Store, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client, 16),
		broadcast:  make(chan []byte, 16),
		done:       make(chan struct{}),
		store:      store,
		logger:     logger,
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAllClients()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			total := len(h.clients)
			h.mu.Unlock()
			h.sendCurrent(client)
			metrics.AddWebsocketClients(ctx, 1)
			h.logger.Debug("client registered", "client_id", client.ID, "total", total)

		case client := <-h.unregister:
			h.removeClient(ctx, client)

		case msg := <-h.broadcast:
			h.fanout(msg)
		}
	}
}

// Register adds client. Once the hub has stopped the client's channel is closed instead.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		close(client.Send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues msg for every client, dropping it if the hub is backed up.
func (h *Hub) Broadcast(msg []byte) {
	if len(msg) == 0 {
		return
	}
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("broadcast channel full, dropping snapshot")
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// sendCurrent runs on the hub goroutine, so the message is queued ahead of
// any later broadcast.
func (h *Hub) sendCurrent(client *Client) {
	if h.store == nil {
		return
	}
	msg := h.store.Message()
	if msg == nil {
		return
	}
	select {
	case client.Send <- msg:
	default:
		h.logger.Debug("client send buffer full", "client_id", client.ID)
	}
}

func (h *Hub) fanout(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.Send <- msg:
		default:
			h.logger.Debug("client send buffer full", "client_id", client.ID)
		}
	}
}

func (h *Hub) removeClient(ctx context.Context, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.Send)
	metrics.AddWebsocketClients(ctx, -1)
	h.logger.Debug("client unregistered", "client_id", client.ID, "total", len(h.clients))
}

func (h *Hub) closeAllClients() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.Send)
		delete(h.clients, client)
	}
}
