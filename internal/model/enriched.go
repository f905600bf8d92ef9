package model

import (
	"encoding/json"
	"math"
)

// EnrichedCandle is a Candle plus the indicator values and regime label
// derived for that bar. EMA is nil while the EMA is still warming up.
type EnrichedCandle struct {
	Candle
	EMA     *float64 `json:"ema"`
	DIPlus  float64  `json:"diPlus"`
	DIMinus float64  `json:"diMinus"`
	ADX     float64  `json:"adx"`
	State   string   `json:"state"`
}

// HasEMA reports whether the EMA is defined at this bar.
func (e *EnrichedCandle) HasEMA() bool { return e.EMA != nil }

// EMAValue returns the EMA or NaN when it is not defined.
func (e *EnrichedCandle) EMAValue() float64 {
	if e.EMA == nil {
		return math.NaN()
	}
	return *e.EMA
}

// JSON returns the JSON-encoded enriched candle.
func (e *EnrichedCandle) JSON() []byte {
	b, _ := json.Marshal(e)
	return b
}

// OptionalFloat converts a NaN-marked series value into a nullable pointer.
func OptionalFloat(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}
