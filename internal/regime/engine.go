package regime

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"regime-seeker/internal/indicator"
	"regime-seeker/internal/model"
)

var validate = validator.New()

// Config parameterises an Engine. Zero fields take their defaults.
//
// ConfirmationBars, ADXDeclinePct and DIConvergence are reserved: they are
// accepted and validated but classification uses the single-bar rule only.
type Config struct {
	ADXLength    int     `json:"adxLength" yaml:"adx_length" default:"14" validate:"gte=1,lte=500"`
	ADXThreshold float64 `json:"adxThreshold" yaml:"adx_threshold" default:"25" validate:"gt=0,lte=100"`
	EMALength    int     `json:"emaLength" yaml:"ema_length" default:"50" validate:"gte=1,lte=1000"`

	ConfirmationBars int     `json:"confirmationBars" yaml:"confirmation_bars" default:"3" validate:"gte=0"`
	ADXDeclinePct    float64 `json:"adxDeclinePct" yaml:"adx_decline_pct" default:"15" validate:"gte=0,lte=100"`
	DIConvergence    float64 `json:"diConvergence" yaml:"di_convergence" default:"5" validate:"gte=0"`
}

// DefaultConfig returns the stock parameters (14, 25, 50). It panics only
// if the struct's default tags are malformed.
func DefaultConfig() Config {
	var cfg Config
	defaults.MustSet(&cfg)
	return cfg
}

// Engine computes enriched candles. It holds only its configuration, so a
// single Engine may be shared between goroutines.
type Engine struct {
	cfg Config
}

// New fills defaults into cfg, validates it and returns an Engine.
func New(cfg Config) (*Engine, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("regime: defaults: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("regime: invalid config: %w", err)
	}
	return &Engine{cfg: cfg}, nil
}

// NewDefault returns an Engine with DefaultConfig.
func NewDefault() *Engine {
	return &Engine{cfg: DefaultConfig()}
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config { return e.cfg }

// ComputeSignals recomputes EMA, DI+, DI-, ADX and the regime for every bar
// of candles. The result has the same length as the input; empty input
// gives an empty slice.
func (e *Engine) ComputeSignals(candles []model.Candle) []model.EnrichedCandle {
	if len(candles) == 0 {
		return []model.EnrichedCandle{}
	}

	ema := indicator.EMASeries(model.Closes(candles), e.cfg.EMALength)
	dir := indicator.ADX(candles, e.cfg.ADXLength)

	out := make([]model.EnrichedCandle, len(candles))
	for i, c := range candles {
		out[i] = e.enrich(c, ema[i], dir.DIPlus[i], dir.DIMinus[i], dir.ADX[i])
	}
	return out
}

func (e *Engine) enrich(c model.Candle, ema, diPlus, diMinus, adx float64) model.EnrichedCandle {
	state := Classify(Inputs{
		Close:   c.Close,
		EMA:     ema,
		ADX:     adx,
		DIPlus:  diPlus,
		DIMinus: diMinus,
	}, e.cfg.ADXThreshold)

	return model.EnrichedCandle{
		Candle:  c,
		EMA:     model.OptionalFloat(ema),
		DIPlus:  diPlus,
		DIMinus: diMinus,
		ADX:     adx,
		State:   string(state),
	}
}

// Last returns the state of the final bar, or Ranging for an empty series.
func Last(enriched []model.EnrichedCandle) State {
	if len(enriched) == 0 {
		return Ranging
	}
	return ParseState(enriched[len(enriched)-1].State)
}
