// Package provider fetches OHLCV candles from public exchange REST APIs.
package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"regime-seeker/internal/model"
)

// DefaultLimit is the number of candles requested per fetch.
const DefaultLimit = 200

var (
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("provider: rate limit exceeded, increase update interval")
	// ErrRegionBlocked is returned on HTTP 451.
	ErrRegionBlocked = errors.New("provider: exchange not available in this region")
	// ErrNoData is returned when an exchange answers with no candles.
	ErrNoData = errors.New("provider: no data received")
	// ErrUnknownExchange is returned by Lookup for unregistered names.
	ErrUnknownExchange = errors.New("provider: unknown exchange")
)

// Provider is a source of candles. Returned candles are ordered by
// ascending time.
type Provider interface {
	Name() string
	FetchCandles(ctx context.Context, symbol, interval string, limit int) ([]model.Candle, error)
}

// HTTPError is a non-OK response that has no dedicated sentinel.
type HTTPError struct {
	Exchange string
	Status   int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("provider: %s: HTTP %d", e.Exchange, e.Status)
}

// Names of the built-in exchanges.
const (
	BinanceUS  = "binance.us"
	BinanceCom = "binance.com"
	Kraken     = "kraken"
)

// Registry maps exchange names to providers.
type Registry struct {
	providers map[string]Provider
}

// NewRegistry registers the given providers under their names.
func NewRegistry(ps ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(ps))}
	for _, p := range ps {
		r.providers[p.Name()] = p
	}
	return r
}

// DefaultRegistry returns binance.us, binance.com and kraken sharing one
// HTTP client.
func DefaultRegistry(timeout time.Duration) *Registry {
	client := &http.Client{Timeout: timeout}
	return NewRegistry(
		NewBinance(BinanceUS, "https://api.binance.us", client),
		NewBinance(BinanceCom, "https://api.binance.com", client),
		NewKraken("https://api.kraken.com", client),
	)
}

// Lookup returns the provider registered as name.
func (r *Registry) Lookup(name string) (Provider, error) {
	p, ok := r.providers[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownExchange, name)
	}
	return p, nil
}

// Wrap replaces every registered provider with wrap(p).
func (r *Registry) Wrap(wrap func(Provider) Provider) {
	for name, p := range r.providers {
		r.providers[name] = wrap(p)
	}
}

// Names returns the registered exchange names, sorted.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Reason classifies err for metrics labels.
func Reason(err error) string {
	var he *HTTPError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrRegionBlocked):
		return "region_blocked"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrCircuitOpen):
		return "circuit_open"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.As(err, &he):
		return "http"
	default:
		return "other"
	}
}
