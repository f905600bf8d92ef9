package indicator

import (
	"math"

	"regime-seeker/internal/model"
)

// RMA calculates Wilder's running moving average, streaming.
// The first value is emitted as-is; later values use alpha = 1/period.
type RMA struct {
	period  int
	alpha   float64
	count   int
	current float64
}

// NewRMA creates a new RMA indicator with the given period.
func NewRMA(period int) *RMA {
	return &RMA{period: period, alpha: 1.0 / float64(period)}
}

func (r *RMA) Name() string { return "RMA" }

func (r *RMA) Update(candle model.Candle) { r.Add(candle.Close) }

// Add feeds a raw value.
func (r *RMA) Add(v float64) {
	r.count++
	if r.count == 1 {
		r.current = v
		return
	}
	r.current = r.alpha*v + (1-r.alpha)*r.current
}

func (r *RMA) Value() float64 {
	if r.count == 0 {
		return math.NaN()
	}
	return r.current
}

func (r *RMA) Ready() bool { return r.count > 0 }

// Peek computes what Value() would be with an additional bar without mutating state.
func (r *RMA) Peek(close float64) float64 {
	if r.count == 0 {
		return close
	}
	return r.alpha*close + (1-r.alpha)*r.current
}

// Reset clears the RMA state for reuse.
func (r *RMA) Reset() {
	r.count = 0
	r.current = 0
}
