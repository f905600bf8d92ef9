package provider

import (
	"context"
	"time"

	"regime-seeker/internal/breaker"
	"regime-seeker/internal/model"
)

// ErrCircuitOpen is returned while a Guarded provider's breaker is open.
var ErrCircuitOpen = breaker.ErrOpen

// Guarded wraps a Provider with a circuit breaker so a failing exchange is
// not hammered on every poll.
type Guarded struct {
	Provider
	cb *breaker.CircuitBreaker
}

// NewGuarded wraps p. onChange, when set, observes breaker transitions.
func NewGuarded(p Provider, maxFailures int, resetTimeout time.Duration, onChange func(exchange string, from, to breaker.State)) *Guarded {
	cb := breaker.New(maxFailures, resetTimeout)
	if onChange != nil {
		name := p.Name()
		cb.OnStateChange = func(from, to breaker.State) { onChange(name, from, to) }
	}
	return &Guarded{Provider: p, cb: cb}
}

// FetchCandles fetches through the breaker.
func (g *Guarded) FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error) {
	var out []model.Candle
	err := g.cb.Execute(func() error {
		var err error
		out, err = g.Provider.FetchCandles(ctx, symbol, interval, limit)
		return err
	})
	return out, err
}

// State returns the breaker state.
func (g *Guarded) State() breaker.State { return g.cb.CurrentState() }
