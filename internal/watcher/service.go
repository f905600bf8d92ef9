// Package watcher polls exchanges for each watched instrument, recomputes
// signals over the whole window, and fans the resulting regime snapshot out
// to the cache, publishers, notifiers and metrics.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"regime-seeker/internal/metrics"
	"regime-seeker/internal/model"
	"regime-seeker/internal/notification"
	"regime-seeker/internal/provider"
	"regime-seeker/internal/regime"
	"regime-seeker/internal/volprofile"
)

// Deps are the collaborators a Service is wired with. Only Providers is
// required.
type Deps struct {
	Providers  *provider.Registry
	Store      model.CandleStore
	Publishers []model.SnapshotPublisher
	Notifier   notification.Notifier
	Metrics    *metrics.Metrics
	Health     *metrics.HealthStatus
	Logger     *slog.Logger
}

// Service is the top-level orchestrator for regime watching.
type Service struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	engine   *regime.Engine
	profiler *volprofile.Profiler
	tracker  *regime.Tracker
	now      func() time.Time

	mu    sync.RWMutex
	views map[string]*View
}

// View is everything known about one instrument after its latest refresh.
type View struct {
	Instrument model.Instrument       `json:"instrument"`
	Candles    []model.Candle         `json:"-"`
	Enriched   []model.EnrichedCandle `json:"candles"`
	State      regime.State           `json:"state"`
	Zones      []regime.Zone          `json:"zones"`
	Profile    *volprofile.Result     `json:"profile,omitempty"`
	ATR        float64                `json:"atr"`
	VolSpike   bool                   `json:"volume_spike"`
	Snapshot   model.RegimeSnapshot   `json:"snapshot"`
	MTF        *MTFView               `json:"mtf,omitempty"`
	Stale      bool                   `json:"stale"` // served from cache after a fetch failure
	UpdatedAt  time.Time              `json:"updated_at"`
}

// New creates a Service. It fails when the engine or profile parameters
// are invalid.
func New(cfg Config, deps Deps) (*Service, error) {
	cfg.withDefaults()
	if deps.Providers == nil {
		return nil, fmt.Errorf("watcher: provider registry is required")
	}
	engine, err := regime.New(cfg.Engine)
	if err != nil {
		return nil, err
	}
	profiler, err := volprofile.New(cfg.Profile)
	if err != nil {
		return nil, err
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger.With(slog.String("component", "watcher")),
		engine:   engine,
		profiler: profiler,
		tracker:  regime.NewTracker(),
		now:      time.Now,
		views:    make(map[string]*View),
	}, nil
}

// Engine returns the signal engine in use.
func (s *Service) Engine() *regime.Engine { return s.engine }

// Profiler returns the volume profiler in use.
func (s *Service) Profiler() *volprofile.Profiler { return s.profiler }

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

// Run polls every watched instrument until ctx is cancelled. Each
// instrument gets its own loop so a slow exchange does not delay the rest.
func (s *Service) Run(ctx context.Context) error {
	if len(s.cfg.Watch) == 0 {
		return fmt.Errorf("watcher: empty watch list")
	}
	s.log.Info("watcher starting",
		slog.Int("instruments", len(s.cfg.Watch)),
		slog.Duration("interval", s.cfg.UpdateInterval),
		slog.Int("limit", s.cfg.CandleLimit),
		slog.Bool("mtf", s.cfg.MTF),
	)
	if s.deps.Health != nil {
		s.deps.Health.SetWatcherOK(true)
	}

	var wg sync.WaitGroup
	for _, inst := range s.cfg.Watch {
		wg.Add(1)
		go func(inst model.Instrument) {
			defer wg.Done()
			s.loop(ctx, inst)
		}(inst)
	}
	wg.Wait()

	if s.deps.Health != nil {
		s.deps.Health.SetWatcherOK(false)
	}
	s.log.Info("watcher stopped")
	return nil
}

func (s *Service) loop(ctx context.Context, inst model.Instrument) {
	ticker := time.NewTicker(s.cfg.UpdateInterval)
	defer ticker.Stop()

	for polls := 0; ; polls++ {
		if _, err := s.Refresh(ctx, inst); err != nil && ctx.Err() == nil {
			s.log.Warn("refresh failed", slog.String("instrument", inst.Key()), slog.String("error", err.Error()))
		}
		if s.cfg.MTF && polls%s.cfg.MTFEvery == 0 {
			if _, err := s.RefreshMTF(ctx, inst); err != nil && ctx.Err() == nil {
				s.log.Warn("mtf refresh failed", slog.String("instrument", inst.Key()), slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// View returns the latest view for an instrument key.
func (s *Service) View(key string) (*View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.views[key]
	return v, ok
}

// Views returns every view, ordered by instrument key.
func (s *Service) Views() []*View {
	s.mu.RLock()
	out := make([]*View, 0, len(s.views))
	for _, v := range s.views {
		out = append(out, v)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].Instrument.Key() < out[j].Instrument.Key()
	})
	return out
}

// Watched reports whether inst is on the watch list.
func (s *Service) Watched(inst model.Instrument) bool {
	for _, w := range s.cfg.Watch {
		if w == inst {
			return true
		}
	}
	return false
}

func (s *Service) store(v *View) {
	s.mu.Lock()
	if prev, ok := s.views[v.Instrument.Key()]; ok && v.MTF == nil {
		v.MTF = prev.MTF
	}
	s.views[v.Instrument.Key()] = v
	s.mu.Unlock()
}
