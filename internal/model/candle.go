package model

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Candle represents one OHLCV bar for a single instrument as delivered by a
// data provider. Time is the bar open in unix seconds.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// TS returns the bar open as a UTC time.
func (c *Candle) TS() time.Time {
	return time.Unix(c.Time, 0).UTC()
}

// Range returns high - low.
func (c *Candle) Range() float64 {
	return c.High - c.Low
}

// Validate checks low <= min(open,close) <= max(open,close) <= high and volume >= 0.
func (c *Candle) Validate() error {
	if math.IsNaN(c.Open) || math.IsNaN(c.High) || math.IsNaN(c.Low) || math.IsNaN(c.Close) || math.IsNaN(c.Volume) {
		return fmt.Errorf("candle %d: NaN field", c.Time)
	}
	lo := math.Min(c.Open, c.Close)
	hi := math.Max(c.Open, c.Close)
	if c.Low > lo || hi > c.High {
		return fmt.Errorf("candle %d: OHLC out of order (o=%g h=%g l=%g c=%g)", c.Time, c.Open, c.High, c.Low, c.Close)
	}
	if c.Volume < 0 {
		return fmt.Errorf("candle %d: negative volume %g", c.Time, c.Volume)
	}
	return nil
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// ValidateAll checks every candle and that times are strictly ascending.
func ValidateAll(candles []Candle) error {
	for i := range candles {
		if err := candles[i].Validate(); err != nil {
			return err
		}
		if i > 0 && candles[i].Time <= candles[i-1].Time {
			return fmt.Errorf("candle %d: time not ascending (prev=%d)", candles[i].Time, candles[i-1].Time)
		}
	}
	return nil
}

// Closes extracts the close price of every candle.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i := range candles {
		out[i] = candles[i].Close
	}
	return out
}
