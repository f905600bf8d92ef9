package watcher

import (
	"time"

	"regime-seeker/internal/model"
	"regime-seeker/internal/regime"
	"regime-seeker/internal/volprofile"
)

// Config holds the watcher's polling and analysis parameters.
type Config struct {
	Watch          []model.Instrument
	UpdateInterval time.Duration // poll period per instrument
	CandleLimit    int           // candles requested per fetch
	MTF            bool          // compute multi-timeframe confluence
	MTFEvery       int           // MTF refresh every N polls (default 4)

	Engine  regime.Config
	Profile volprofile.Config

	// Volume filter: when enabled, regime-change alerts fire only if the
	// last closed bar's volume exceeds Multiplier times its trailing
	// Period-bar average.
	VolumeFilter   bool
	VolumePeriod   int
	VolumeMultiple float64
}

func (c *Config) withDefaults() {
	if c.UpdateInterval <= 0 {
		c.UpdateInterval = 15 * time.Second
	}
	if c.CandleLimit <= 0 {
		c.CandleLimit = 200
	}
	if c.MTFEvery <= 0 {
		c.MTFEvery = 4
	}
	if c.VolumePeriod <= 0 {
		c.VolumePeriod = 20
	}
	if c.VolumeMultiple <= 0 {
		c.VolumeMultiple = 2
	}
}
