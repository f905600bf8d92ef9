package indicator

import (
	"math"

	"regime-seeker/internal/model"
)

// SMA is a rolling arithmetic mean over the last period values. The
// volume filter uses it on volumes; Update feeds closes like the other
// streaming indicators.
type SMA struct {
	period int
	window []float64 // ring, oldest at head once full
	head   int
	full   bool
	sum    float64
}

func NewSMA(period int) *SMA {
	if period < 1 {
		period = 1
	}
	return &SMA{period: period, window: make([]float64, 0, period)}
}

func (s *SMA) Name() string { return "SMA" }

func (s *SMA) Update(candle model.Candle) { s.Add(candle.Close) }

// Add pushes v, evicting the oldest value once the window is full.
func (s *SMA) Add(v float64) {
	if !s.full {
		s.window = append(s.window, v)
		s.sum += v
		s.full = len(s.window) == s.period
		return
	}
	s.sum += v - s.window[s.head]
	s.window[s.head] = v
	s.head = (s.head + 1) % s.period
}

// Value is NaN until period values have been seen.
func (s *SMA) Value() float64 {
	if !s.full {
		return math.NaN()
	}
	return s.sum / float64(s.period)
}

func (s *SMA) Ready() bool { return s.full }

// Peek returns the mean the window would have after adding close.
func (s *SMA) Peek(close float64) float64 {
	switch {
	case s.full:
		return (s.sum - s.window[s.head] + close) / float64(s.period)
	case len(s.window)+1 == s.period:
		return (s.sum + close) / float64(s.period)
	}
	return math.NaN()
}

// Exceeds reports whether v is strictly above multiplier times the
// current mean. It is false during warmup.
func (s *SMA) Exceeds(v, multiplier float64) bool {
	return s.full && v > multiplier*s.Value()
}

func (s *SMA) Reset() {
	s.window = s.window[:0]
	s.head = 0
	s.full = false
	s.sum = 0
}
