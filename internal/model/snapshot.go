package model

import (
	"encoding/json"
	"time"
)

// RegimeSnapshot is the last-bar view of one instrument after a full
// recomputation. It is what gets published to subscribers and notifiers.
type RegimeSnapshot struct {
	Instrument
	State     string    `json:"state"`
	PrevState string    `json:"prev_state,omitempty"`
	Changed   bool      `json:"changed"`
	Close     float64   `json:"close"`
	EMA       *float64  `json:"ema"`
	ADX       float64   `json:"adx"`
	DIPlus    float64   `json:"diPlus"`
	DIMinus   float64   `json:"diMinus"`
	ATR       float64   `json:"atr"`
	VolSpike  bool      `json:"volume_spike"`
	BarTime   int64     `json:"bar_time"`
	POC       *float64  `json:"poc,omitempty"`
	VAH       *float64  `json:"vah,omitempty"`
	VAL       *float64  `json:"val,omitempty"`
	TS        time.Time `json:"ts"` // computation wall-clock time
}

// Channel returns the PubSub channel: "pub:regime:{exchange}:{symbol}:{interval}".
func (s *RegimeSnapshot) Channel() string {
	return "pub:regime:" + s.Key()
}

// LatestKey returns the volatile latest-value key: "regime:latest:{exchange}:{symbol}:{interval}".
func (s *RegimeSnapshot) LatestKey() string {
	return "regime:latest:" + s.Key()
}

// JSON returns the JSON-encoded snapshot.
func (s *RegimeSnapshot) JSON() []byte {
	b, _ := json.Marshal(s)
	return b
}
