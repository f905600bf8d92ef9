package watcher

import (
	"context"
	"log/slog"
	"sync"

	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
)

// MTFView is the regime of one symbol across timeframes.
type MTFView struct {
	Timeframes []regime.TimeframeRegime `json:"timeframes"`
	Confluence regime.Confluence        `json:"confluence"`
}

// MTF fetches every confluence timeframe for inst's symbol concurrently
// and classifies each. Timeframes that fail or have too little history are
// left out. Results keep the MTFIntervals order.
func (s *Service) MTF(ctx context.Context, inst model.Instrument) (*MTFView, error) {
	p, err := s.deps.Providers.Lookup(inst.Exchange)
	if err != nil {
		return nil, err
	}

	results := make([]*regime.TimeframeRegime, len(regime.MTFIntervals))
	var wg sync.WaitGroup
	for i, interval := range regime.MTFIntervals {
		wg.Add(1)
		go func(i int, interval string) {
			defer wg.Done()
			candles, err := s.fetch(ctx, p, inst.Symbol, interval)
			if err != nil {
				s.log.DebugContext(ctx, "mtf timeframe skipped",
					slog.String("symbol", inst.Symbol), slog.String("interval", interval), slog.String("error", err.Error()))
				return
			}
			if len(candles) <= regime.MinMTFCandles {
				return
			}
			enriched := s.engine.ComputeSignals(candles)
			state := regime.Last(enriched)
			results[i] = &regime.TimeframeRegime{
				Interval:  interval,
				State:     state,
				ShortName: regime.ShortName(state),
				ADX:       enriched[len(enriched)-1].ADX,
				Candles:   len(candles),
			}
		}(i, interval)
	}
	wg.Wait()

	view := &MTFView{Timeframes: []regime.TimeframeRegime{}}
	for _, r := range results {
		if r != nil {
			view.Timeframes = append(view.Timeframes, *r)
		}
	}
	view.Confluence = regime.ComputeConfluence(regime.States(view.Timeframes))
	return view, nil
}

// RefreshMTF computes MTF for inst and attaches it to the stored view.
func (s *Service) RefreshMTF(ctx context.Context, inst model.Instrument) (*MTFView, error) {
	view, err := s.MTF(ctx, inst)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	if v, ok := s.views[inst.Key()]; ok {
		cp := *v
		cp.MTF = view
		s.views[inst.Key()] = &cp
	}
	s.mu.Unlock()
	return view, nil
}
