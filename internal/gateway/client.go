package gateway

import (
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const channelPrefix = "pub:regime:"

// Client represents a single WebSocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// Subscribed channels; empty means everything.
	subMu sync.RWMutex
	subs  map[string]bool
}

// inbound is any message a client may send.
//
//	{"type":"SUBSCRIBE","instruments":["binance.us:BTC:1h"]}
//	{"type":"UNSUBSCRIBE","instruments":["binance.us:BTC:1h"]}
//	{"type":"RESUME","channel":"pub:regime:binance.us:BTC:1h","since":41}
//	{"ping":1700000000000}
type inbound struct {
	Type        string   `json:"type"`
	Instruments []string `json:"instruments"`
	Channel     string   `json:"channel"`
	Since       int64    `json:"since"`
	Ping        int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		hub:  h,
		subs: make(map[string]bool),
	}
}

// ChannelFor maps an instrument key or a full channel name to a channel.
func ChannelFor(s string) string {
	if strings.HasPrefix(s, channelPrefix) {
		return s
	}
	return channelPrefix + s
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// Coalesce queued messages into one frame, newline separated
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(msg)
	}
}

// handle dispatches one inbound message.
func (c *Client) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.sendError("invalid message: " + err.Error())
		return
	}

	switch strings.ToUpper(msg.Type) {
	case "SUBSCRIBE":
		if len(msg.Instruments) == 0 {
			c.sendError("instruments are required")
			return
		}
		channels := make([]string, len(msg.Instruments))
		c.subMu.Lock()
		for i, inst := range msg.Instruments {
			channels[i] = ChannelFor(inst)
			c.subs[channels[i]] = true
		}
		c.subMu.Unlock()
		c.sendLatest(channels)

	case "UNSUBSCRIBE":
		c.subMu.Lock()
		for _, inst := range msg.Instruments {
			delete(c.subs, ChannelFor(inst))
		}
		c.subMu.Unlock()

	case "RESUME":
		c.resume(ChannelFor(msg.Channel), msg.Since)

	default:
		if msg.Ping > 0 {
			c.sendJSON(map[string]interface{}{
				"type":      "pong",
				"ping":      msg.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			return
		}
		c.sendError("unknown message type: " + msg.Type)
	}
}

// matches reports whether channel should be delivered to this client.
func (c *Client) matches(channel string) bool {
	c.subMu.RLock()
	defer c.subMu.RUnlock()
	if len(c.subs) == 0 {
		return true
	}
	return c.subs[channel]
}

// sendLatest queues the latest value of each channel (all matching
// channels when channels is nil).
func (c *Client) sendLatest(channels []string) {
	c.hub.mu.RLock()
	defer c.hub.mu.RUnlock()

	if channels == nil {
		for ch, e := range c.hub.latest {
			if c.matches(ch) {
				c.enqueue(initialEnvelope(ch, e))
			}
		}
		return
	}
	for _, ch := range channels {
		if e, ok := c.hub.latest[ch]; ok {
			c.enqueue(initialEnvelope(ch, e))
		}
	}
}

// resume replays envelopes newer than since, or reports a gap the ring can
// no longer fill so the client can refetch over REST.
func (c *Client) resume(channel string, since int64) {
	c.hub.mu.RLock()
	rb, ok := c.hub.replay[channel]
	c.hub.mu.RUnlock()
	if !ok {
		c.sendJSON(map[string]interface{}{"type": "resumed", "channel": channel, "count": 0})
		return
	}

	entries, complete := rb.Since(since)
	if !complete {
		c.sendJSON(map[string]interface{}{"type": "gap", "channel": channel, "since": since})
	}
	for _, e := range entries {
		c.enqueue(e.Data)
	}
	c.sendJSON(map[string]interface{}{"type": "resumed", "channel": channel, "count": len(entries)})
}

func (c *Client) sendJSON(v interface{}) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.enqueue(b)
}

func (c *Client) sendError(msg string) {
	c.sendJSON(map[string]string{"type": "error", "error": msg})
}

// enqueue never blocks; a full queue drops the message.
func (c *Client) enqueue(b []byte) {
	select {
	case c.send <- b:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
		}
	}
}
