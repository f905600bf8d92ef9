// Package regime derives a discrete market regime per bar from close, EMA
// and the ADX family, and provides the helpers built around it: zones,
// multi-timeframe confluence, transition tracking and an incremental engine.
package regime

import "strings"

// State is one of the five regime labels.
type State string

const (
	StrongUptrend   State = "STRONG_UPTREND"
	WeakUptrend     State = "WEAK_UPTREND"
	Ranging         State = "RANGING"
	WeakDowntrend   State = "WEAK_DOWNTREND"
	StrongDowntrend State = "STRONG_DOWNTREND"
)

// All lists every state from most bullish to most bearish.
var All = []State{StrongUptrend, WeakUptrend, Ranging, WeakDowntrend, StrongDowntrend}

var colors = map[State]string{
	StrongUptrend:   "#22c55e",
	WeakUptrend:     "#065f46",
	Ranging:         "#d4c5a9",
	WeakDowntrend:   "#7f1d1d",
	StrongDowntrend: "#f87171",
}

var shortNames = map[State]string{
	StrongUptrend:   "STRONG ↑",
	WeakUptrend:     "WEAK ↑",
	Ranging:         "RANGING",
	WeakDowntrend:   "WEAK ↓",
	StrongDowntrend: "STRONG ↓",
}

var tips = map[State]string{
	StrongUptrend:   "Strong trend: Use wider stops (1.5-2x ATR), standard sizing OK",
	WeakUptrend:     "Weak trend: Moderate stops (1-1.5x ATR), conservative sizing",
	Ranging:         "Choppy conditions: Tight stops (0.5-1x ATR), smaller positions or wait",
	WeakDowntrend:   "Weak downtrend: Be cautious, tight stops recommended",
	StrongDowntrend: "Strong downtrend: Protect capital, wait for regime change",
}

const defaultTip = "Adjust position size based on market conditions"

func (s State) String() string { return string(s) }

// Valid reports whether s is one of the five known states.
func (s State) Valid() bool {
	_, ok := colors[s]
	return ok
}

// Uptrend reports whether s is a strong or weak uptrend.
func (s State) Uptrend() bool { return s == StrongUptrend || s == WeakUptrend }

// Downtrend reports whether s is a strong or weak downtrend.
func (s State) Downtrend() bool { return s == StrongDowntrend || s == WeakDowntrend }

// Strong reports whether s required ADX above the threshold.
func (s State) Strong() bool { return s == StrongUptrend || s == StrongDowntrend }

// Ordinal maps s onto -2..2, strong downtrend to strong uptrend.
func (s State) Ordinal() int {
	switch s {
	case StrongUptrend:
		return 2
	case WeakUptrend:
		return 1
	case WeakDowntrend:
		return -1
	case StrongDowntrend:
		return -2
	default:
		return 0
	}
}

// ParseState maps a label to a State. Unknown labels become Ranging.
func ParseState(label string) State {
	s := State(strings.ToUpper(strings.TrimSpace(label)))
	if !s.Valid() {
		return Ranging
	}
	return s
}

// Color returns the presentation colour for s, falling back to the
// Ranging colour for unrecognised states.
func Color(s State) string {
	if c, ok := colors[s]; ok {
		return c
	}
	return colors[Ranging]
}

// ShortName returns the compact label used in timeframe panels.
func ShortName(s State) string {
	if n, ok := shortNames[s]; ok {
		return n
	}
	return string(s)
}

// Tip returns the stop and sizing hint for s.
func Tip(s State) string {
	if t, ok := tips[s]; ok {
		return t
	}
	return defaultTip
}
