package regime

import "math"

// Inputs are the per-bar values the classifier looks at.
// EMA is NaN while it is still warming up.
type Inputs struct {
	Close   float64
	EMA     float64
	ADX     float64
	DIPlus  float64
	DIMinus float64
}

// Classify assigns exactly one state to a bar. Precedence, first match wins:
// strong uptrend, weak uptrend, strong downtrend, weak downtrend, ranging.
//
// Close equal to the EMA is neither above nor below it, and a missing EMA
// never produces a trend.
func Classify(in Inputs, adxThreshold float64) State {
	haveEMA := !math.IsNaN(in.EMA)
	strong := in.ADX > adxThreshold
	above := haveEMA && in.Close > in.EMA
	below := haveEMA && in.Close < in.EMA

	up := in.DIPlus > in.DIMinus && above
	down := in.DIMinus > in.DIPlus && below

	switch {
	case strong && up:
		return StrongUptrend
	case up:
		return WeakUptrend
	case strong && down:
		return StrongDowntrend
	case down:
		return WeakDowntrend
	default:
		return Ranging
	}
}
