package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"regime-seeker/internal/indicator"
	"regime-seeker/internal/logger"
	"regime-seeker/internal/model"
	"regime-seeker/internal/notification"
	"regime-seeker/internal/provider"
	"regime-seeker/internal/regime"
)

// Refresh fetches the latest window for inst, caches it, recomputes all
// signals and fans the snapshot out. When the fetch fails and cached
// candles exist, the cached window is analysed and the view marked stale.
func (s *Service) Refresh(ctx context.Context, inst model.Instrument) (*View, error) {
	now := s.now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(inst.Key(), now))

	candles, stale, err := s.load(ctx, inst)
	if err != nil {
		return nil, err
	}

	v := s.Analyze(inst, candles)
	v.Stale = stale

	prev, changed := s.tracker.Observe(inst.Key(), v.State)
	v.Snapshot.PrevState = string(prev)
	v.Snapshot.Changed = changed

	s.store(v)
	s.record(v)
	s.publish(ctx, v.Snapshot)
	if changed {
		s.onTransition(ctx, v)
	}
	return v, nil
}

// load fetches candles, falling back to the cache on failure.
func (s *Service) load(ctx context.Context, inst model.Instrument) ([]model.Candle, bool, error) {
	p, err := s.deps.Providers.Lookup(inst.Exchange)
	if err != nil {
		return nil, false, err
	}

	candles, err := s.fetch(ctx, p, inst.Symbol, inst.Interval)
	if err != nil {
		if s.deps.Store != nil {
			cached, cerr := s.deps.Store.ReadCandles(ctx, inst, s.cfg.CandleLimit)
			if cerr == nil && len(cached) > 0 {
				logger.ForInstrument(ctx, s.log, inst.Key()).WarnContext(ctx, "fetch failed, using cached candles",
					slog.Int("cached", len(cached)),
					slog.String("error", err.Error()))
				return cached, true, nil
			}
		}
		return nil, false, fmt.Errorf("fetch %s: %w", inst.Key(), err)
	}

	if s.deps.Health != nil {
		s.deps.Health.MarkFetched(inst.Key(), s.now())
	}
	if s.deps.Store != nil {
		if err := s.deps.Store.UpsertCandles(ctx, inst, candles); err != nil {
			s.log.WarnContext(ctx, "candle cache write failed",
				slog.String("instrument", inst.Key()), slog.String("error", err.Error()))
		} else if n, err := s.deps.Store.Prune(ctx, inst, s.cfg.CandleLimit); err != nil {
			s.log.WarnContext(ctx, "candle cache prune failed",
				slog.String("instrument", inst.Key()), slog.String("error", err.Error()))
		} else if n > 0 {
			s.log.DebugContext(ctx, "candle cache pruned",
				slog.String("instrument", inst.Key()), slog.Int64("removed", n))
		}
	}
	return candles, false, nil
}

// fetch calls the provider, validates the result and records metrics.
func (s *Service) fetch(ctx context.Context, p provider.Provider, symbol, interval string) ([]model.Candle, error) {
	start := time.Now()
	candles, err := p.FetchCandles(ctx, symbol, interval, s.cfg.CandleLimit)
	if err == nil {
		err = model.ValidateAll(candles)
	}

	if m := s.deps.Metrics; m != nil {
		m.FetchTotal.WithLabelValues(p.Name()).Inc()
		m.FetchDur.WithLabelValues(p.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			m.FetchErrors.WithLabelValues(p.Name(), provider.Reason(err)).Inc()
		} else {
			m.CandlesLoaded.Add(float64(len(candles)))
		}
	}
	return candles, err
}

// Analyze runs the full pipeline over candles without touching transition
// state or any collaborator except metrics.
func (s *Service) Analyze(inst model.Instrument, candles []model.Candle) *View {
	start := time.Now()
	enriched := s.engine.ComputeSignals(candles)
	if s.deps.Metrics != nil {
		s.deps.Metrics.SignalComputeDur.Observe(time.Since(start).Seconds())
	}

	v := &View{
		Instrument: inst,
		Candles:    candles,
		Enriched:   enriched,
		State:      regime.Last(enriched),
		Zones:      regime.Zones(enriched),
		UpdatedAt:  s.now(),
	}

	if n := len(candles); n > 0 {
		v.ATR = indicator.ATR(candles, s.engine.Config().ADXLength)[n-1]
	}
	if n := len(candles); n >= 2 {
		// The last bar is still forming; judge the last closed one.
		spikes := indicator.VolumeSpikes(candles, s.cfg.VolumePeriod, s.cfg.VolumeMultiple)
		v.VolSpike = spikes[n-2]
	}

	start = time.Now()
	profile, ok := s.profiler.Calculate(candles)
	if s.deps.Metrics != nil {
		s.deps.Metrics.ProfileComputeDur.Observe(time.Since(start).Seconds())
		if !ok {
			s.deps.Metrics.ProfilesAbsent.Inc()
		}
	}
	if ok {
		v.Profile = profile
	}

	v.Snapshot = s.snapshot(v)
	return v
}

func (s *Service) snapshot(v *View) model.RegimeSnapshot {
	snap := model.RegimeSnapshot{
		Instrument: v.Instrument,
		State:      string(v.State),
		ATR:        v.ATR,
		VolSpike:   v.VolSpike,
		TS:         v.UpdatedAt,
	}
	if n := len(v.Enriched); n > 0 {
		last := v.Enriched[n-1]
		snap.Close = last.Close
		snap.EMA = last.EMA
		snap.ADX = last.ADX
		snap.DIPlus = last.DIPlus
		snap.DIMinus = last.DIMinus
		snap.BarTime = last.Time
	}
	if p := v.Profile; p != nil {
		snap.POC = model.OptionalFloat(p.POC)
		snap.VAH = model.OptionalFloat(p.VAH)
		snap.VAL = model.OptionalFloat(p.VAL)
	}
	return snap
}

func (s *Service) record(v *View) {
	m := s.deps.Metrics
	if m == nil {
		return
	}
	key := v.Instrument.Key()
	m.RegimeState.WithLabelValues(key).Set(float64(v.State.Ordinal()))
	m.ADX.WithLabelValues(key).Set(v.Snapshot.ADX)
}

func (s *Service) publish(ctx context.Context, snap model.RegimeSnapshot) {
	for _, p := range s.deps.Publishers {
		if err := p.PublishSnapshot(ctx, snap); err != nil {
			if s.deps.Metrics != nil {
				s.deps.Metrics.PublishErrors.Inc()
			}
			s.log.WarnContext(ctx, "snapshot publish failed",
				slog.String("instrument", snap.Key()), slog.String("error", err.Error()))
		}
	}
}

// onTransition counts the change and, unless the volume filter holds it
// back, sends an alert.
func (s *Service) onTransition(ctx context.Context, v *View) {
	snap := v.Snapshot
	log := logger.ForInstrument(ctx, s.log, snap.Key())
	log.InfoContext(ctx, "regime changed",
		slog.String("from", snap.PrevState),
		slog.String("to", snap.State),
		slog.Float64("adx", snap.ADX),
		slog.Bool("volume_spike", snap.VolSpike))

	if s.deps.Metrics != nil {
		s.deps.Metrics.RegimeTransitions.WithLabelValues(snap.State).Inc()
	}
	if s.deps.Notifier == nil {
		return
	}
	if s.cfg.VolumeFilter && !snap.VolSpike {
		log.DebugContext(ctx, "alert suppressed by volume filter")
		return
	}
	if err := s.deps.Notifier.Send(ctx, notification.NewRegimeAlert(snap)); err != nil {
		log.WarnContext(ctx, "alert delivery failed", slog.String("error", err.Error()))
	}
}

// Inspect fetches and analyses an instrument that is not being watched.
// Nothing is cached, tracked or published.
func (s *Service) Inspect(ctx context.Context, inst model.Instrument) (*View, error) {
	p, err := s.deps.Providers.Lookup(inst.Exchange)
	if err != nil {
		return nil, err
	}
	candles, err := s.fetch(ctx, p, inst.Symbol, inst.Interval)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", inst.Key(), err)
	}
	return s.Analyze(inst, candles), nil
}
