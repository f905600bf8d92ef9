package gateway

import (
	"encoding/json"
	"strconv"
	"time"
)

// Broadcast sends data on channel to every subscribed client. The envelope
// is built by hand: {"channel":…,"data":…,"ts":…,"seq":N,"channel_seq":M}.
//
// Sequencing, the replay push and the fan-out all happen under the hub
// lock, so the replay ring and every client queue see one channel's
// envelopes in channel_seq order.
func (h *Hub) Broadcast(channel string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	defer h.mu.Unlock()

	h.channelSeqs[channel]++
	channelSeq := h.channelSeqs[channel]
	h.latest[channel] = latestEntry{Data: data, TS: now, Seq: channelSeq}
	h.seq++
	rb, ok := h.replay[channel]
	if !ok {
		rb = NewReplayBuffer(replayPerKey)
		h.replay[channel] = rb
	}

	buf := envelope(channel, data, now, h.seq, channelSeq)
	rb.Push(channelSeq, buf)

	for c := range h.clients {
		if !c.matches(channel) {
			continue
		}
		select {
		case c.send <- buf:
		default:
			if h.OnDrop != nil {
				h.OnDrop()
			}
		}
	}
}

func envelope(channel string, data []byte, now time.Time, seq, channelSeq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+160)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"channel_seq":`...)
	buf = strconv.AppendInt(buf, channelSeq, 10)
	buf = append(buf, '}')
	return buf
}

// initialEnvelope marks a latest-value replay sent on connect or subscribe.
func initialEnvelope(channel string, e latestEntry) []byte {
	b, _ := json.Marshal(map[string]interface{}{
		"channel":     channel,
		"data":        e.Data,
		"ts":          e.TS.Format(time.RFC3339Nano),
		"channel_seq": e.Seq,
		"initial":     true,
	})
	return b
}
