package sizing

import (
	"testing"

	"github.com/shopspring/decimal"

	"regime-seeker/internal/regime"
)

func assertDecimal(t *testing.T, label string, got *decimal.Decimal, want string) {
	t.Helper()
	if got == nil {
		t.Fatalf("%s: got nil, want %s", label, want)
	}
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Errorf("%s: got %s, want %s", label, got.String(), want)
	}
}

func TestCalculate_LongPosition(t *testing.T) {
	// risk = 10000*2/100 = 200, distance = 750
	// size = 200/750 = 0.26666…
	res := Calculate(Request{Capital: 10000, RiskPct: 2, Entry: 43250, Stop: 42500, State: "STRONG_UPTREND"})

	if !res.Sizable {
		t.Fatal("expected a sizable request")
	}
	assertDecimal(t, "risk", &res.RiskAmount, "200")
	assertDecimal(t, "stop%", res.StopPct, "-1.73")
	assertDecimal(t, "distance", res.StopDistance, "750")
	assertDecimal(t, "standard", res.Standard, "0.2667")
	assertDecimal(t, "conservative", res.Conservative, "0.1787")
	assertDecimal(t, "aggressive", res.Aggressive, "0.4")
	if res.State != regime.StrongUptrend || res.Tip != regime.Tip(regime.StrongUptrend) {
		t.Errorf("state/tip = %s / %s", res.State, res.Tip)
	}
}

func TestCalculate_ShortStopAbove(t *testing.T) {
	res := Calculate(Request{Capital: 5000, RiskPct: 1, Entry: 100, Stop: 110})
	assertDecimal(t, "risk", &res.RiskAmount, "50")
	assertDecimal(t, "stop%", res.StopPct, "10")
	assertDecimal(t, "standard", res.Standard, "5")
}

func TestCalculate_Defaults(t *testing.T) {
	res := Calculate(Request{})
	assertDecimal(t, "risk", &res.RiskAmount, "200")
	if res.Symbol != "BTC" {
		t.Errorf("symbol = %q", res.Symbol)
	}
	if res.State != regime.Ranging {
		t.Errorf("state = %s, want RANGING", res.State)
	}
}

func TestWithDefaults(t *testing.T) {
	got := withDefaults(Request{})
	if got.Capital != 10000 || got.RiskPct != 2 || got.Symbol != "BTC" {
		t.Errorf("defaults = %+v", got)
	}
	// Explicit values are kept.
	got = withDefaults(Request{Capital: 500, RiskPct: 0.5, Symbol: "ETH"})
	if got.Capital != 500 || got.RiskPct != 0.5 || got.Symbol != "ETH" {
		t.Errorf("explicit = %+v", got)
	}
}

func TestCalculate_NotSizable(t *testing.T) {
	cases := []Request{
		{Entry: 0, Stop: 100},
		{Entry: 100, Stop: 0},
		{Entry: 100, Stop: 100},
	}
	for _, req := range cases {
		res := Calculate(req)
		if res.Sizable || res.Standard != nil || res.StopPct != nil {
			t.Errorf("%+v: expected no sizing, got %+v", req, res)
		}
		assertDecimal(t, "risk", &res.RiskAmount, "200")
	}
}

func TestCalculate_UnknownStateAndATR(t *testing.T) {
	res := Calculate(Request{State: "sideways"})
	if res.State != regime.Ranging {
		t.Errorf("state = %s", res.State)
	}
	if res.ATR != nil {
		t.Error("ATR should be omitted when not given")
	}
	res = Calculate(Request{ATR: 123.456})
	assertDecimal(t, "atr", res.ATR, "123.46")
}
