package volprofile

import (
	"encoding/json"
	"math"
	"math/rand"
	"strings"
	"testing"

	"regime-seeker/internal/model"
)

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f)", label, got, want, tol)
	}
}

func mustProfiler(t *testing.T, cfg Config) *Profiler {
	t.Helper()
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New(%+v): %v", cfg, err)
	}
	return p
}

func randomWalk(seed int64, n int) []model.Candle {
	rng := rand.New(rand.NewSource(seed))
	out := make([]model.Candle, n)
	price := 100.0
	for i := 0; i < n; i++ {
		open := price
		close := math.Max(1, open+(rng.Float64()-0.5)*4)
		high := math.Max(open, close) + rng.Float64()*2
		low := math.Max(0.5, math.Min(open, close)-rng.Float64()*2)
		if i%17 == 0 {
			high, low, open = close, close, close // occasional doji with no range
		}
		out[i] = model.Candle{
			Time: int64(i * 60), Open: open, High: high, Low: low, Close: close,
			Volume: rng.Float64() * 1000,
		}
		price = close
	}
	return out
}

func TestCalculate_HandComputed(t *testing.T) {
	// Bins of width 1 over [0, 10].
	// c0 spans the whole range → 10 in every bin.
	// c1 has no range at 5.5 → +50 in bin 5.
	// POC = bin 5 (60). total = 150, target = 102.
	// Expansion: up 6,7,8,9 (ties go up) → 100, then down to 4 → 110.
	candles := []model.Candle{
		{Time: 0, Open: 1, High: 10, Low: 0, Close: 9, Volume: 100},
		{Time: 60, Open: 5.5, High: 5.5, Low: 5.5, Close: 5.5, Volume: 50},
	}
	r, ok := mustProfiler(t, Config{NumBins: 10}).Calculate(candles)
	if !ok {
		t.Fatal("expected a profile")
	}

	assertClose(t, "POC", r.POC, 5, 1e-12)
	assertClose(t, "VAH", r.VAH, 9, 1e-12)
	assertClose(t, "VAL", r.VAL, 4, 1e-12)
	assertClose(t, "total", r.TotalVolume, 150, 1e-9)
	assertClose(t, "value area", r.ValueAreaVolume, 110, 1e-9)
	assertClose(t, "max", r.MaxVolume, 60, 1e-9)
	if r.PriceRange.Min != 0 || r.PriceRange.Max != 10 {
		t.Errorf("range = %+v", r.PriceRange)
	}

	if len(r.Histogram) != 10 {
		t.Fatalf("histogram has %d levels, want 10", len(r.Histogram))
	}
	for i, lv := range r.Histogram {
		var want string
		switch {
		case i < 4:
			want = ColorOutsideValue
		case i == 4:
			want = ColorValueAreaLow
		default:
			want = ColorValueAreaHigh
		}
		if lv.Color != want {
			t.Errorf("level %d colour %s, want %s", i, lv.Color, want)
		}
		if lv.IsPOC != (i == 5) {
			t.Errorf("level %d IsPOC=%v", i, lv.IsPOC)
		}
		if lv.IsValueArea != (i >= 4) {
			t.Errorf("level %d IsValueArea=%v", i, lv.IsValueArea)
		}
	}
	assertClose(t, "normalized POC", r.Histogram[5].NormalizedVolume, 1, 1e-12)
	assertClose(t, "normalized edge", r.Histogram[0].NormalizedVolume, 10.0/60, 1e-12)
}

func TestCalculate_Empty(t *testing.T) {
	if r, ok := NewDefault().Calculate(nil); ok || r != nil {
		t.Fatal("empty input should give no profile")
	}
}

func TestCalculate_SingleFlatCandle(t *testing.T) {
	candles := []model.Candle{{Open: 100, High: 100, Low: 100, Close: 100, Volume: 100}}
	if r, ok := NewDefault().Calculate(candles); ok || r != nil {
		t.Fatal("zero-width range should give no profile")
	}
}

func TestCalculate_SparseHistogramOmitsEmptyBins(t *testing.T) {
	// Two thin candles at the extremes leave the middle bins empty.
	candles := []model.Candle{
		{Time: 0, Open: 0, High: 1, Low: 0, Close: 1, Volume: 10},
		{Time: 60, Open: 9, High: 10, Low: 9, Close: 10, Volume: 30},
	}
	r, ok := mustProfiler(t, Config{NumBins: 10}).Calculate(candles)
	if !ok {
		t.Fatal("expected a profile")
	}
	if len(r.Histogram) != 2 {
		t.Fatalf("histogram = %+v", r.Histogram)
	}
	assertClose(t, "POC", r.POC, 9, 1e-12)
	for _, lv := range r.Histogram {
		if lv.Volume == 0 {
			t.Error("zero-volume level emitted")
		}
	}
}

func TestCalculate_ZeroVolumeHasEmptyHistogram(t *testing.T) {
	candles := []model.Candle{
		{Time: 0, Open: 1, High: 2, Low: 1, Close: 2},
		{Time: 60, Open: 2, High: 3, Low: 2, Close: 3},
	}
	r, ok := NewDefault().Calculate(candles)
	if !ok {
		t.Fatal("a non-zero price range should give a profile")
	}
	if r.Histogram == nil || len(r.Histogram) != 0 || r.TotalVolume != 0 {
		t.Fatalf("histogram = %#v, total = %v", r.Histogram, r.TotalVolume)
	}
	b, err := json.Marshal(r)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"histogramData":[]`) {
		t.Errorf("json = %s", b)
	}
}

func TestCalculate_FlatCandleClampedIntoRange(t *testing.T) {
	// A doji at the window maximum lands in the top bin, not past it.
	candles := []model.Candle{
		{Time: 0, Open: 0, High: 10, Low: 0, Close: 5, Volume: 10},
		{Time: 60, Open: 10, High: 10, Low: 10, Close: 10, Volume: 40},
	}
	r, ok := mustProfiler(t, Config{NumBins: 10}).Calculate(candles)
	if !ok {
		t.Fatal("expected a profile")
	}
	if r.POCIndex != 9 {
		t.Errorf("POC index = %d, want 9", r.POCIndex)
	}
	assertClose(t, "total", r.TotalVolume, 50, 1e-9)
}

func TestCalculate_VolumeConservation(t *testing.T) {
	p := NewDefault()
	for seed := int64(1); seed <= 15; seed++ {
		candles := randomWalk(seed, 200)
		r, ok := p.Calculate(candles)
		if !ok {
			t.Fatalf("seed %d: no profile", seed)
		}

		sumBins := 0.0
		for _, lv := range r.Histogram {
			sumBins += lv.Volume
		}
		sumCandles := 0.0
		for _, c := range candles {
			sumCandles += c.Volume
		}
		assertClose(t, "histogram vs total", sumBins, r.TotalVolume, 1e-6*r.TotalVolume)
		assertClose(t, "total vs input", r.TotalVolume, sumCandles, 1e-6*sumCandles)

		target := r.TotalVolume * p.Config().ValueAreaPercent / 100
		if r.ValueAreaVolume < target-1e-9*r.TotalVolume {
			t.Errorf("seed %d: value area %.4f short of target %.4f", seed, r.ValueAreaVolume, target)
		}
		if !(r.VALIndex <= r.POCIndex && r.POCIndex <= r.VAHIndex) {
			t.Errorf("seed %d: POC outside value area", seed)
		}
		pocCount := 0
		for _, lv := range r.Histogram {
			if lv.IsPOC {
				pocCount++
			}
		}
		if pocCount != 1 {
			t.Errorf("seed %d: %d POC levels", seed, pocCount)
		}
	}
}

func TestPointOfControl_FirstMaxWins(t *testing.T) {
	idx, v := pointOfControl([]float64{3, 7, 7, 1})
	if idx != 1 || v != 7 {
		t.Errorf("got %d/%f, want 1/7", idx, v)
	}
}

func TestValueArea_TieGoesUp(t *testing.T) {
	vols := []float64{5, 10, 5}
	for run := 0; run < 5; run++ {
		val, vah, vol := valueArea(vols, 1, 13.6)
		if val != 1 || vah != 2 || vol != 15 {
			t.Fatalf("run %d: got [%d,%d] %.1f, want [1,2] 15", run, val, vah, vol)
		}
	}
}

func TestValueArea_Boundaries(t *testing.T) {
	// POC at the top edge: only downward growth is possible.
	val, vah, vol := valueArea([]float64{1, 2, 10}, 2, 12)
	if val != 1 || vah != 2 || vol != 12 {
		t.Errorf("top edge: got [%d,%d] %.1f", val, vah, vol)
	}
	// Upper side exhausted by zeros: falls through to the lower side.
	val, vah, vol = valueArea([]float64{4, 10, 0}, 1, 14)
	if val != 0 || vah != 1 || vol != 14 {
		t.Errorf("zero above: got [%d,%d] %.1f", val, vah, vol)
	}
	// Target above total: stops when both edges are exhausted.
	val, vah, vol = valueArea([]float64{1, 1, 1}, 1, 100)
	if val != 0 || vah != 2 || vol != 3 {
		t.Errorf("exhausted: got [%d,%d] %.1f", val, vah, vol)
	}
}

func TestColorForPrice(t *testing.T) {
	r := &Result{POC: 50, VAH: 60, VAL: 40}
	tests := []struct {
		price float64
		want  string
	}{
		{55, ColorValueAreaHigh},
		{50, ColorValueAreaHigh},
		{45, ColorValueAreaLow},
		{70, ColorOutsideValue},
		{30, ColorOutsideValue},
	}
	for _, tt := range tests {
		if got := ColorForPrice(tt.price, r); got != tt.want {
			t.Errorf("ColorForPrice(%v) = %s, want %s", tt.price, got, tt.want)
		}
	}
	if ColorForPrice(50, nil) != ColorOutsideValue {
		t.Error("nil profile should give the outside colour")
	}
}

func TestNew_Validation(t *testing.T) {
	p := mustProfiler(t, Config{})
	if p.Config().ValueAreaPercent != 68 || p.Config().NumBins != 100 {
		t.Errorf("defaults = %+v", p.Config())
	}
	if _, err := New(Config{ValueAreaPercent: 120}); err == nil {
		t.Error("expected error for value area above 100")
	}
	if _, err := New(Config{NumBins: -1}); err == nil {
		t.Error("expected error for negative bins")
	}
}
