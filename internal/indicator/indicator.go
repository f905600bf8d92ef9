// Package indicator provides the smoothing and directional-movement
// calculations behind the regime classifier.
//
// The batch functions (EMA, RMA, ADX, ATR) recompute a whole series from
// scratch. The streaming types implement Indicator and, fed the same values
// in order, produce bar-for-bar identical output. Missing values (EMA warmup)
// are marked with NaN; use Missing to test for them.
package indicator

import (
	"math"

	"regime-seeker/internal/model"
)

// Indicator is the interface for streaming indicators.
type Indicator interface {
	// Name returns the indicator name (e.g., "EMA", "RMA").
	Name() string

	// Update feeds a new candle and recalculates.
	Update(candle model.Candle)

	// Value returns the current value, or NaN if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool

	// Peek computes what Value() would be if a bar with this close were
	// added next, WITHOUT mutating internal state.
	Peek(close float64) float64
}

// Missing reports whether a series value is the warmup marker.
func Missing(v float64) bool { return math.IsNaN(v) }

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
