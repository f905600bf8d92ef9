package regime

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
	"time"

	"regime-seeker/internal/model"
)

// trend builds n candles whose close moves by step every bar with a fixed
// 2-point range.
func trend(n int, start, step float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := 0; i < n; i++ {
		c := start + float64(i)*step
		out[i] = model.Candle{
			Time:   int64(1700000000 + i*3600),
			Open:   c - step/2,
			High:   c + 1,
			Low:    c - 1,
			Close:  c,
			Volume: 10,
		}
	}
	return out
}

func randomWalk(seed int64, n int) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		close := math.Max(1, open+(rng.Float64()-0.5)*4)
		out[i] = model.Candle{
			Time:   int64(1700000000 + i*60),
			Open:   open,
			High:   math.Max(open, close) + rng.Float64()*2,
			Low:    math.Max(0.5, math.Min(open, close)-rng.Float64()*2),
			Close:  close,
			Volume: rng.Float64() * 1000,
		}
		price = close
	}
	return out
}

func TestClassify_Precedence(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		in   Inputs
		want State
	}{
		{"strong up", Inputs{Close: 110, EMA: 100, ADX: 30, DIPlus: 30, DIMinus: 10}, StrongUptrend},
		{"weak up", Inputs{Close: 110, EMA: 100, ADX: 20, DIPlus: 30, DIMinus: 10}, WeakUptrend},
		{"threshold is strict", Inputs{Close: 110, EMA: 100, ADX: 25, DIPlus: 30, DIMinus: 10}, WeakUptrend},
		{"strong down", Inputs{Close: 90, EMA: 100, ADX: 40, DIPlus: 5, DIMinus: 35}, StrongDowntrend},
		{"weak down", Inputs{Close: 90, EMA: 100, ADX: 10, DIPlus: 5, DIMinus: 35}, WeakDowntrend},
		{"close equals ema", Inputs{Close: 100, EMA: 100, ADX: 50, DIPlus: 30, DIMinus: 10}, Ranging},
		{"missing ema", Inputs{Close: 110, EMA: nan, ADX: 50, DIPlus: 30, DIMinus: 10}, Ranging},
		{"DI tie", Inputs{Close: 110, EMA: 100, ADX: 50, DIPlus: 20, DIMinus: 20}, Ranging},
		{"DI up but price below", Inputs{Close: 90, EMA: 100, ADX: 50, DIPlus: 30, DIMinus: 10}, Ranging},
		{"DI down but price above", Inputs{Close: 110, EMA: 100, ADX: 50, DIPlus: 10, DIMinus: 30}, Ranging},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.in, 25); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestComputeSignals_Empty(t *testing.T) {
	out := NewDefault().ComputeSignals(nil)
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
	if Last(out) != Ranging {
		t.Errorf("Last(empty) = %s, want RANGING", Last(out))
	}
}

func TestComputeSignals_MonotonicUptrend(t *testing.T) {
	candles := trend(60, 100, 1)
	out := NewDefault().ComputeSignals(candles)
	if len(out) != len(candles) {
		t.Fatalf("len=%d, want %d", len(out), len(candles))
	}

	for i := 0; i < 49; i++ {
		if out[i].EMA != nil {
			t.Fatalf("bar %d: EMA defined during warmup", i)
		}
		if out[i].State != string(Ranging) {
			t.Fatalf("bar %d: state %s during warmup, want RANGING", i, out[i].State)
		}
	}

	last := out[len(out)-1]
	if !last.HasEMA() {
		t.Fatal("last bar: EMA not defined")
	}
	if !ParseState(last.State).Uptrend() {
		t.Fatalf("last bar state %s, want an uptrend", last.State)
	}
	// +DM is 1 and TR is 2 every bar, so ADX approaches 100 and the trend is strong.
	if last.State != string(StrongUptrend) {
		t.Errorf("last bar state %s, want STRONG_UPTREND (adx=%.2f)", last.State, last.ADX)
	}
	if Last(out) != StrongUptrend {
		t.Errorf("Last() = %s", Last(out))
	}
}

func TestComputeSignals_MonotonicDowntrend(t *testing.T) {
	out := NewDefault().ComputeSignals(trend(60, 200, -1))
	if got := Last(out); got != StrongDowntrend {
		t.Errorf("Last() = %s, want STRONG_DOWNTREND", got)
	}
}

func TestComputeSignals_Properties(t *testing.T) {
	e := NewDefault()
	threshold := e.Config().ADXThreshold
	for seed := int64(1); seed <= 10; seed++ {
		for i, ec := range e.ComputeSignals(randomWalk(seed, 250)) {
			s := State(ec.State)
			if !s.Valid() {
				t.Fatalf("seed %d bar %d: invalid state %q", seed, i, ec.State)
			}
			if s.Strong() && !(ec.ADX > threshold) {
				t.Fatalf("seed %d bar %d: %s with adx %.4f", seed, i, s, ec.ADX)
			}
			if ec.EMA == nil && s != Ranging {
				t.Fatalf("seed %d bar %d: %s without EMA", seed, i, s)
			}
		}
	}
}

func TestNew_DefaultsAndValidation(t *testing.T) {
	e, err := New(Config{})
	if err != nil {
		t.Fatalf("New(zero): %v", err)
	}
	cfg := e.Config()
	if cfg.ADXLength != 14 || cfg.ADXThreshold != 25 || cfg.EMALength != 50 {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.ConfirmationBars != 3 || cfg.ADXDeclinePct != 15 || cfg.DIConvergence != 5 {
		t.Errorf("reserved defaults = %+v", cfg)
	}

	e, err = New(Config{EMALength: 21})
	if err != nil {
		t.Fatalf("New(ema=21): %v", err)
	}
	if e.Config().EMALength != 21 || e.Config().ADXLength != 14 {
		t.Errorf("partial config = %+v", e.Config())
	}

	if _, err := New(Config{ADXThreshold: 150}); err == nil {
		t.Error("expected error for threshold above 100")
	}
	if _, err := New(Config{ADXLength: -3}); err == nil {
		t.Error("expected error for negative ADX length")
	}
}

func TestStream_MatchesComputeSignals(t *testing.T) {
	e := NewDefault()
	candles := randomWalk(42, 300)
	batch := e.ComputeSignals(candles)

	s := e.NewStream()
	for i, c := range candles {
		u, err := s.Process("k", c)
		if err != nil {
			t.Fatalf("bar %d: %v", i, err)
		}
		got, want := u.Enriched, batch[i]
		if got.State != want.State {
			t.Fatalf("bar %d: state %s, want %s", i, got.State, want.State)
		}
		if (got.EMA == nil) != (want.EMA == nil) {
			t.Fatalf("bar %d: EMA presence differs", i)
		}
		if got.EMA != nil && math.Abs(*got.EMA-*want.EMA) > 1e-9 {
			t.Fatalf("bar %d: EMA %.10f, want %.10f", i, *got.EMA, *want.EMA)
		}
		if math.Abs(got.ADX-want.ADX) > 1e-9 || math.Abs(got.DIPlus-want.DIPlus) > 1e-9 || math.Abs(got.DIMinus-want.DIMinus) > 1e-9 {
			t.Fatalf("bar %d: directional values differ", i)
		}
		if i > 0 {
			wantChanged := batch[i].State != batch[i-1].State
			if u.Changed != wantChanged {
				t.Fatalf("bar %d: Changed=%v, want %v", i, u.Changed, wantChanged)
			}
		}
	}
	if s.Bars("k") != len(candles) {
		t.Errorf("Bars = %d", s.Bars("k"))
	}
}

func TestStream_ProcessPeek(t *testing.T) {
	e := NewDefault()
	candles := randomWalk(7, 120)
	s := e.NewStream()

	if _, ok := s.ProcessPeek("k", candles[0]); ok {
		t.Fatal("peek before seeding should return false")
	}
	for _, c := range candles[:len(candles)-1] {
		if _, err := s.Process("k", c); err != nil {
			t.Fatal(err)
		}
	}

	forming := candles[len(candles)-1]
	u, ok := s.ProcessPeek("k", forming)
	if !ok || !u.Live {
		t.Fatal("expected live peek")
	}
	want := e.ComputeSignals(candles)[len(candles)-1]
	if u.Enriched.State != want.State || math.Abs(u.Enriched.ADX-want.ADX) > 1e-9 {
		t.Errorf("peek = %s/%.6f, want %s/%.6f", u.Enriched.State, u.Enriched.ADX, want.State, want.ADX)
	}
	if s.Bars("k") != len(candles)-1 {
		t.Errorf("peek mutated state: bars=%d", s.Bars("k"))
	}
}

func TestStream_OutOfOrder(t *testing.T) {
	s := NewDefault().NewStream()
	c := trend(2, 100, 1)
	if _, err := s.Process("k", c[1]); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Process("k", c[0]); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("err = %v, want ErrOutOfOrder", err)
	}
	if _, err := s.Process("k", c[1]); !errors.Is(err, ErrOutOfOrder) {
		t.Fatalf("duplicate bar err = %v, want ErrOutOfOrder", err)
	}
	// Other keys are independent.
	if _, err := s.Process("other", c[0]); err != nil {
		t.Fatalf("other key: %v", err)
	}
	s.Reset("k")
	if _, ok := s.Last("k"); ok {
		t.Error("Reset should drop state")
	}
}

func TestStream_Run(t *testing.T) {
	s := NewDefault().NewStream()
	c := trend(4, 100, 1)

	in := make(chan Bar, 8)
	out := make(chan Update, 8)
	in <- Bar{Key: "k", Candle: c[0], Forming: true} // not seeded yet: dropped
	in <- Bar{Key: "k", Candle: c[0]}
	in <- Bar{Key: "k", Candle: c[1]}
	in <- Bar{Key: "k", Candle: c[2]}
	in <- Bar{Key: "k", Candle: c[1]} // out of order: dropped
	in <- Bar{Key: "k", Candle: c[3], Forming: true}
	close(in)

	done := make(chan struct{})
	go func() {
		s.Run(context.Background(), in, out)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after input closed")
	}
	close(out)

	var got []Update
	for u := range out {
		got = append(got, u)
	}
	if len(got) != 4 {
		t.Fatalf("got %d updates, want 4", len(got))
	}
	for i, u := range got[:3] {
		if u.Live || u.Enriched.Time != c[i].Time {
			t.Errorf("update %d = time %d live %v", i, u.Enriched.Time, u.Live)
		}
	}
	if last := got[3]; !last.Live || last.Enriched.Time != c[3].Time {
		t.Errorf("forming update = %+v", last)
	}
	if s.Bars("k") != 3 {
		t.Errorf("Bars = %d, want 3", s.Bars("k"))
	}
}

func TestStream_RunStopsOnCancel(t *testing.T) {
	s := NewDefault().NewStream()
	ctx, cancel := context.WithCancel(context.Background())
	in := make(chan Bar)
	out := make(chan Update) // never read

	done := make(chan struct{})
	go func() {
		s.Run(ctx, in, out)
		close(done)
	}()
	in <- Bar{Key: "k", Candle: trend(1, 100, 1)[0]}
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run blocked after cancel")
	}
}

func TestTracker_Observe(t *testing.T) {
	tr := NewTracker()
	if _, changed := tr.Observe("a", Ranging); changed {
		t.Error("first observation must not be a change")
	}
	if _, changed := tr.Observe("a", Ranging); changed {
		t.Error("same state must not be a change")
	}
	prev, changed := tr.Observe("a", WeakUptrend)
	if !changed || prev != Ranging {
		t.Errorf("got prev=%s changed=%v", prev, changed)
	}
	if s, ok := tr.Get("a"); !ok || s != WeakUptrend {
		t.Errorf("Get = %s,%v", s, ok)
	}
	tr.Observe("b", Ranging)
	if keys := tr.Keys(); len(keys) != 2 || keys[0] != "a" || keys[1] != "b" {
		t.Errorf("Keys = %v", keys)
	}
	tr.Forget("a")
	if _, ok := tr.Get("a"); ok {
		t.Error("Forget should drop key")
	}
}

func TestZones(t *testing.T) {
	states := []State{Ranging, Ranging, WeakUptrend, WeakUptrend, WeakUptrend, Ranging}
	enriched := make([]model.EnrichedCandle, len(states))
	for i, s := range states {
		enriched[i] = model.EnrichedCandle{Candle: model.Candle{Time: int64(i * 60)}, State: string(s)}
	}
	zones := Zones(enriched)
	want := []Zone{
		{State: Ranging, StartIdx: 0, EndIdx: 1, StartTime: 0, EndTime: 60},
		{State: WeakUptrend, StartIdx: 2, EndIdx: 4, StartTime: 120, EndTime: 240},
		{State: Ranging, StartIdx: 5, EndIdx: 5, StartTime: 300, EndTime: 300},
	}
	if len(zones) != len(want) {
		t.Fatalf("got %d zones, want %d: %+v", len(zones), len(want), zones)
	}
	for i := range want {
		if zones[i] != want[i] {
			t.Errorf("zone %d = %+v, want %+v", i, zones[i], want[i])
		}
	}
	if zones[1].Bars() != 3 {
		t.Errorf("Bars = %d", zones[1].Bars())
	}
	if Zones(nil) != nil {
		t.Error("Zones(nil) should be nil")
	}
}

func TestComputeConfluence(t *testing.T) {
	tests := []struct {
		name    string
		states  []State
		bias    Bias
		percent float64
		text    string
		high    bool
	}{
		{"empty", nil, Neutral, 0, "No confluence", false},
		{"three of five up", []State{StrongUptrend, WeakUptrend, StrongUptrend, Ranging, WeakDowntrend}, Bullish, 60, "3/5 Bullish Aligned", true},
		{"all down", []State{WeakDowntrend, StrongDowntrend, WeakDowntrend}, Bearish, 100, "3/3 Bearish Aligned", true},
		{"four of seven is short", []State{StrongUptrend, WeakUptrend, StrongUptrend, WeakUptrend, Ranging, Ranging, WeakDowntrend}, Neutral, 0, "No confluence", false},
		{"all ranging", []State{Ranging, Ranging}, Neutral, 0, "No confluence", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := ComputeConfluence(tt.states)
			if c.Bias != tt.bias || math.Abs(c.Percent-tt.percent) > 1e-9 || c.Text != tt.text || c.High != tt.high {
				t.Errorf("got %+v", c)
			}
			if c.Total != len(tt.states) {
				t.Errorf("Total = %d", c.Total)
			}
		})
	}
}

func TestStatePresentation(t *testing.T) {
	if Color(StrongUptrend) != "#22c55e" || Color(StrongDowntrend) != "#f87171" {
		t.Error("unexpected trend colours")
	}
	if Color(State("SIDEWAYS")) != Color(Ranging) {
		t.Error("unknown state should use the RANGING colour")
	}
	if ParseState(" weak_uptrend ") != WeakUptrend {
		t.Error("ParseState should normalise case and space")
	}
	if ParseState("bogus") != Ranging {
		t.Error("ParseState should fall back to RANGING")
	}
	if ShortName(WeakDowntrend) != "WEAK ↓" {
		t.Errorf("ShortName = %q", ShortName(WeakDowntrend))
	}
	if Tip(State("")) != defaultTip {
		t.Error("unknown state should use the default tip")
	}
}
