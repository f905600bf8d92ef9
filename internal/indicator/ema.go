package indicator

import (
	"math"

	"regime-seeker/internal/model"
)

// EMA calculates Exponential Moving Average of closes, streaming.
// O(1) per update, no window storage. Seeded with the SMA of the
// first period values, matching the batch EMA function exactly.
type EMA struct {
	period     int
	multiplier float64
	current    float64
	count      int
	sum        float64
}

// NewEMA creates a new EMA indicator with the given period.
func NewEMA(period int) *EMA {
	return &EMA{
		period:     period,
		multiplier: 2 / float64(period+1),
	}
}

func (e *EMA) Name() string { return "EMA" }

func (e *EMA) Update(candle model.Candle) { e.Add(candle.Close) }

// Add feeds a raw value.
func (e *EMA) Add(v float64) {
	e.count++

	if e.count <= e.period {
		// Accumulate for initial SMA seed
		e.sum += v
		if e.count == e.period {
			e.current = e.sum / float64(e.period)
		}
		return
	}

	e.current = (v-e.current)*e.multiplier + e.current
}

func (e *EMA) Value() float64 {
	if !e.Ready() {
		return math.NaN()
	}
	return e.current
}

func (e *EMA) Ready() bool { return e.period > 0 && e.count >= e.period }

// Peek computes what Value() would be with an additional bar without mutating state.
func (e *EMA) Peek(close float64) float64 {
	switch {
	case e.count+1 < e.period:
		return math.NaN()
	case e.count+1 == e.period:
		return (e.sum + close) / float64(e.period)
	}
	return (close-e.current)*e.multiplier + e.current
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
	e.sum = 0
}
