// Package sizing suggests position sizes from capital, risk and a stop,
// annotated with the current regime's stop guidance.
package sizing

import (
	"github.com/creasty/defaults"
	"github.com/shopspring/decimal"

	"regime-seeker/internal/regime"
)

// defaultRequest holds the tag defaults, resolved once so a malformed tag
// fails at start-up instead of being skipped per request.
var defaultRequest = func() Request {
	var r Request
	defaults.MustSet(&r)
	return r
}()

var (
	hundred          = decimal.NewFromInt(100)
	conservativeMult = decimal.RequireFromString("0.67")
	aggressiveMult   = decimal.RequireFromString("1.5")
)

// Request is a sizing query. Zero Capital and RiskPct take their defaults.
type Request struct {
	Capital float64 `json:"capital" default:"10000" validate:"gt=0"`
	RiskPct float64 `json:"riskPct" default:"2" validate:"gt=0,lte=100"`
	Entry   float64 `json:"entry" validate:"gte=0"`
	Stop    float64 `json:"stop" validate:"gte=0"`
	Symbol  string  `json:"symbol" default:"BTC" validate:"max=20"`
	State   string  `json:"state"`
	ATR     float64 `json:"atr" validate:"gte=0"`
}

// Result holds the risk amount and, when entry and stop allow it, the
// suggested sizes. Money is rounded to 2 places, sizes to 4.
type Result struct {
	Symbol       string           `json:"symbol"`
	RiskAmount   decimal.Decimal  `json:"riskAmount"`
	Sizable      bool             `json:"sizable"`
	StopPct      *decimal.Decimal `json:"stopPct,omitempty"`
	StopDistance *decimal.Decimal `json:"stopDistance,omitempty"`
	Conservative *decimal.Decimal `json:"conservative,omitempty"`
	Standard     *decimal.Decimal `json:"standard,omitempty"`
	Aggressive   *decimal.Decimal `json:"aggressive,omitempty"`
	State        regime.State     `json:"state"`
	Tip          string           `json:"tip"`
	ATR          *decimal.Decimal `json:"atr,omitempty"`
}

// Calculate computes the risk amount capital*risk/100. When entry and stop
// are both positive and differ, it also returns the stop distance as a
// percentage of entry and the standard size riskAmount/|entry-stop| with
// conservative (0.67x) and aggressive (1.5x) variants.
func Calculate(req Request) Result {
	req = withDefaults(req)

	state := regime.Ranging
	if req.State != "" {
		state = regime.ParseState(req.State)
	}

	capital := decimal.NewFromFloat(req.Capital)
	riskAmount := capital.Mul(decimal.NewFromFloat(req.RiskPct)).Div(hundred)

	res := Result{
		Symbol:     req.Symbol,
		RiskAmount: riskAmount.Round(2),
		State:      state,
		Tip:        regime.Tip(state),
	}
	if req.ATR > 0 {
		atr := decimal.NewFromFloat(req.ATR).Round(2)
		res.ATR = &atr
	}

	if !(req.Entry > 0 && req.Stop > 0 && req.Entry != req.Stop) {
		return res
	}

	entry := decimal.NewFromFloat(req.Entry)
	stop := decimal.NewFromFloat(req.Stop)
	distance := entry.Sub(stop).Abs()
	size := riskAmount.Div(distance)

	stopPct := stop.Sub(entry).Div(entry).Mul(hundred).Round(2)
	conservative := size.Mul(conservativeMult).Round(4)
	standard := size.Round(4)
	aggressive := size.Mul(aggressiveMult).Round(4)

	res.Sizable = true
	res.StopPct = &stopPct
	res.StopDistance = &distance
	res.Conservative = &conservative
	res.Standard = &standard
	res.Aggressive = &aggressive
	return res
}

// withDefaults fills the zero Capital, RiskPct and Symbol from the tags.
func withDefaults(req Request) Request {
	if req.Capital == 0 {
		req.Capital = defaultRequest.Capital
	}
	if req.RiskPct == 0 {
		req.RiskPct = defaultRequest.RiskPct
	}
	if req.Symbol == "" {
		req.Symbol = defaultRequest.Symbol
	}
	return req
}
