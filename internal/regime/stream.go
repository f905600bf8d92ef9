package regime

import (
	"context"
	"errors"
	"fmt"

	"regime-seeker/internal/indicator"
	"regime-seeker/internal/model"
)

// ErrOutOfOrder is returned when a bar is not newer than the last one
// processed for its key.
var ErrOutOfOrder = errors.New("regime: bar not after previous bar")

// Bar is one closed candle for a keyed series.
type Bar struct {
	Key     string
	Candle  model.Candle
	Forming bool // forming bars are peeked, never folded into state
}

// Update is the enriched result of processing a Bar.
type Update struct {
	Key      string
	Enriched model.EnrichedCandle
	Prev     State
	Changed  bool
	Live     bool
}

// seriesState holds live indicator instances for one key.
type seriesState struct {
	ema      *indicator.EMA
	dm       *indicator.DirectionalMovement
	lastTime int64
	bars     int
	last     State
}

// Stream is the incremental form of Engine.ComputeSignals: feeding a
// series bar by bar yields exactly the values a full recomputation over the
// same bars would. State is kept per key.
// Designed for single-goroutine usage, no locks.
type Stream struct {
	engine *Engine

	// state[key] → *seriesState
	state map[string]*seriesState
}

// NewStream creates an incremental engine sharing e's configuration.
func (e *Engine) NewStream() *Stream {
	return &Stream{
		engine: e,
		state:  make(map[string]*seriesState, 16),
	}
}

// Process folds a closed candle into the series for key and returns its
// enriched form along with the previous bar's state.
func (s *Stream) Process(key string, c model.Candle) (Update, error) {
	st, exists := s.state[key]
	if !exists {
		st = s.newSeries()
		s.state[key] = st
	}
	if st.bars > 0 && c.Time <= st.lastTime {
		return Update{}, fmt.Errorf("%w: key=%s time=%d last=%d", ErrOutOfOrder, key, c.Time, st.lastTime)
	}

	st.ema.Update(c)
	st.dm.Update(c)
	st.lastTime = c.Time
	st.bars++

	enriched := s.engine.enrich(c, st.ema.Value(), st.dm.DIPlus(), st.dm.DIMinus(), st.dm.Value())
	state := State(enriched.State)
	u := Update{
		Key:      key,
		Enriched: enriched,
		Prev:     st.last,
		Changed:  st.bars > 1 && st.last != state,
	}
	st.last = state
	return u, nil
}

// ProcessPeek computes the enriched form of a forming candle using Peek.
// Does NOT mutate state, so it is safe to call on every refresh.
// Returns false if key has not been seeded by a closed candle yet.
func (s *Stream) ProcessPeek(key string, c model.Candle) (Update, bool) {
	st, exists := s.state[key]
	if !exists || st.bars == 0 {
		return Update{}, false
	}

	diPlus, diMinus, adx := st.dm.PeekCandle(c)
	enriched := s.engine.enrich(c, st.ema.Peek(c.Close), diPlus, diMinus, adx)
	state := State(enriched.State)
	return Update{
		Key:      key,
		Enriched: enriched,
		Prev:     st.last,
		Changed:  st.last != state,
		Live:     true,
	}, true
}

// Last returns the state of the most recent closed bar for key.
func (s *Stream) Last(key string) (State, bool) {
	st, ok := s.state[key]
	if !ok || st.bars == 0 {
		return "", false
	}
	return st.last, true
}

// Bars returns how many closed bars have been processed for key.
func (s *Stream) Bars(key string) int {
	if st, ok := s.state[key]; ok {
		return st.bars
	}
	return 0
}

// Reset discards all state for key.
func (s *Stream) Reset(key string) {
	delete(s.state, key)
}

// Run consumes bars and emits updates. Blocks until ctx is done or in is
// closed. Out-of-order bars are dropped.
func (s *Stream) Run(ctx context.Context, in <-chan Bar, out chan<- Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case b, ok := <-in:
			if !ok {
				return
			}
			var (
				u   Update
				err error
			)
			if b.Forming {
				var seeded bool
				if u, seeded = s.ProcessPeek(b.Key, b.Candle); !seeded {
					continue
				}
			} else if u, err = s.Process(b.Key, b.Candle); err != nil {
				continue
			}
			select {
			case out <- u:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (s *Stream) newSeries() *seriesState {
	cfg := s.engine.cfg
	return &seriesState{
		ema: indicator.NewEMA(cfg.EMALength),
		dm:  indicator.NewDirectionalMovement(cfg.ADXLength),
	}
}
