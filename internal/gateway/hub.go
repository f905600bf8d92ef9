// Package gateway fans regime snapshots out to WebSocket clients. Each
// channel ("pub:regime:{exchange}:{symbol}:{interval}") carries a monotonic
// sequence number, keeps its latest value for new clients, and a small
// replay ring for clients that reconnect after a gap.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"regime-seeker/internal/model"
)

const (
	sendBuffer   = 64
	replayPerKey = 100
)

// Hub manages WebSocket clients and snapshot fan-out.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool
	latest  map[string]latestEntry
	seq     int64

	// Per-channel monotonic sequence numbers for gap detection
	channelSeqs map[string]int64

	// Per-channel replay rings for gap backfill
	replay map[string]*ReplayBuffer

	// Optional observers (metrics)
	OnClients   func(n int)
	OnDrop      func()
	OnBroadcast func(lag time.Duration)
}

type latestEntry struct {
	Data json.RawMessage
	TS   time.Time
	Seq  int64
}

var _ model.SnapshotPublisher = (*Hub)(nil)

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		clients:     make(map[*Client]bool),
		latest:      make(map[string]latestEntry),
		channelSeqs: make(map[string]int64),
		replay:      make(map[string]*ReplayBuffer),
	}
}

// PublishSnapshot broadcasts snap on its channel. It never blocks on slow
// clients.
func (h *Hub) PublishSnapshot(_ context.Context, snap model.RegimeSnapshot) error {
	h.Broadcast(snap.Channel(), snap.JSON())
	if h.OnBroadcast != nil && !snap.TS.IsZero() {
		h.OnBroadcast(time.Since(snap.TS))
	}
	return nil
}

// Run forwards snapshots from in until ctx is cancelled or in closes. Used
// when snapshots arrive from Redis rather than an in-process watcher.
func (h *Hub) Run(ctx context.Context, in <-chan model.RegimeSnapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-in:
			if !ok {
				return
			}
			h.PublishSnapshot(ctx, snap)
		}
	}
}

// Serve registers a freshly upgraded connection and starts its pumps.
func (h *Hub) Serve(conn *websocket.Conn) {
	c := newClient(h, conn)
	conn.EnableWriteCompression(true)
	h.register(c)
	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = true
	n := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
	c.sendLatest(nil)
}

// RemoveClient removes a client from the hub and closes its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	n := len(h.clients)
	close(c.send)
	h.mu.Unlock()

	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// LatestAll returns a copy of every channel's latest payload.
func (h *Hub) LatestAll() map[string]json.RawMessage {
	h.mu.RLock()
	defer h.mu.RUnlock()
	cp := make(map[string]json.RawMessage, len(h.latest))
	for k, v := range h.latest {
		cp[k] = v.Data
	}
	return cp
}

// ReplayRange returns buffered envelopes for a channel in [fromSeq, toSeq].
func (h *Hub) ReplayRange(channel string, fromSeq, toSeq int64) [][]byte {
	h.mu.RLock()
	rb, ok := h.replay[channel]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	entries := rb.Range(fromSeq, toSeq)
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

// ChannelSeq returns the current sequence number for a channel.
func (h *Hub) ChannelSeq(channel string) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channelSeqs[channel]
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
