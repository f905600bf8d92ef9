package indicator

import (
	"math"

	"regime-seeker/internal/model"
)

// DirectionalSeries holds per-bar DI+, DI- and ADX, aligned with the input candles.
type DirectionalSeries struct {
	DIPlus  []float64
	DIMinus []float64
	ADX     []float64
}

// TrueRange returns max(h-l, |h-prevClose|, |l-prevClose|).
func TrueRange(cur, prev model.Candle) float64 {
	return math.Max(cur.High-cur.Low, math.Max(math.Abs(cur.High-prev.Close), math.Abs(cur.Low-prev.Close)))
}

// DirectionalMove returns +DM and -DM for cur relative to prev.
// At most one of the two is non-zero.
func DirectionalMove(cur, prev model.Candle) (plus, minus float64) {
	upMove := cur.High - prev.High
	downMove := prev.Low - cur.Low

	if upMove > downMove && upMove > 0 {
		plus = upMove
	}
	if downMove > upMove && downMove > 0 {
		minus = downMove
	}
	return plus, minus
}

// directional converts smoothed TR/DM into DI+, DI- and DX.
// Zero TR or a zero DI sum yields zeros instead of dividing by zero.
func directional(trS, plusS, minusS float64) (diPlus, diMinus, dx float64) {
	if trS == 0 {
		return 0, 0, 0
	}
	diPlus = 100 * (plusS / trS)
	diMinus = 100 * (minusS / trS)

	sum := diPlus + diMinus
	if sum == 0 {
		return diPlus, diMinus, 0
	}
	return diPlus, diMinus, 100 * math.Abs(diPlus-diMinus) / sum
}

// rawTRDM builds the unsmoothed TR, +DM and -DM series. Bar 0 has TR=h-l and no DM.
func rawTRDM(candles []model.Candle) (tr, plusDM, minusDM []float64) {
	n := len(candles)
	tr = make([]float64, n)
	plusDM = make([]float64, n)
	minusDM = make([]float64, n)

	for i := range candles {
		if i == 0 {
			tr[i] = candles[i].High - candles[i].Low
			continue
		}
		tr[i] = TrueRange(candles[i], candles[i-1])
		plusDM[i], minusDM[i] = DirectionalMove(candles[i], candles[i-1])
	}
	return tr, plusDM, minusDM
}

// ADX computes DI+, DI- and ADX over candles using Wilder smoothing (RMA)
// with the given period. Never fails; flat data yields zeros.
func ADX(candles []model.Candle, period int) DirectionalSeries {
	n := len(candles)
	tr, plusDM, minusDM := rawTRDM(candles)

	trSmooth := RMASeries(tr, period)
	plusSmooth := RMASeries(plusDM, period)
	minusSmooth := RMASeries(minusDM, period)

	out := DirectionalSeries{
		DIPlus:  make([]float64, n),
		DIMinus: make([]float64, n),
	}
	dx := make([]float64, n)
	for i := 0; i < n; i++ {
		out.DIPlus[i], out.DIMinus[i], dx[i] = directional(trSmooth[i], plusSmooth[i], minusSmooth[i])
	}
	out.ADX = RMASeries(dx, period)
	return out
}

// ATR computes the Wilder-smoothed average true range (RMA of TR).
func ATR(candles []model.Candle, period int) []float64 {
	tr, _, _ := rawTRDM(candles)
	return RMASeries(tr, period)
}

// DirectionalMovement is the streaming counterpart of ADX.
type DirectionalMovement struct {
	period   int
	prev     model.Candle
	havePrev bool

	tr    *RMA
	plus  *RMA
	minus *RMA
	adx   *RMA

	diPlus  float64
	diMinus float64
}

// NewDirectionalMovement creates a streaming ADX with the given period.
func NewDirectionalMovement(period int) *DirectionalMovement {
	return &DirectionalMovement{
		period: period,
		tr:     NewRMA(period),
		plus:   NewRMA(period),
		minus:  NewRMA(period),
		adx:    NewRMA(period),
	}
}

func (d *DirectionalMovement) Name() string { return "ADX" }

func (d *DirectionalMovement) Update(candle model.Candle) {
	var tr, pdm, mdm float64
	if !d.havePrev {
		tr = candle.High - candle.Low
		d.havePrev = true
	} else {
		tr = TrueRange(candle, d.prev)
		pdm, mdm = DirectionalMove(candle, d.prev)
	}
	d.prev = candle

	d.tr.Add(tr)
	d.plus.Add(pdm)
	d.minus.Add(mdm)

	var dx float64
	d.diPlus, d.diMinus, dx = directional(d.tr.Value(), d.plus.Value(), d.minus.Value())
	d.adx.Add(dx)
}

// Value returns the current ADX, or NaN before the first candle.
func (d *DirectionalMovement) Value() float64 { return d.adx.Value() }

func (d *DirectionalMovement) Ready() bool { return d.havePrev }

// Peek is not meaningful for ADX from a close alone; it returns the current ADX.
// Use PeekCandle for a forming bar.
func (d *DirectionalMovement) Peek(close float64) float64 { return d.Value() }

// PeekCandle computes DI+, DI- and ADX as if candle were the next bar,
// without mutating state.
func (d *DirectionalMovement) PeekCandle(candle model.Candle) (diPlus, diMinus, adx float64) {
	var tr, pdm, mdm float64
	if !d.havePrev {
		tr = candle.High - candle.Low
	} else {
		tr = TrueRange(candle, d.prev)
		pdm, mdm = DirectionalMove(candle, d.prev)
	}
	var dx float64
	diPlus, diMinus, dx = directional(d.tr.Peek(tr), d.plus.Peek(pdm), d.minus.Peek(mdm))
	return diPlus, diMinus, d.adx.Peek(dx)
}

// DIPlus returns the current DI+.
func (d *DirectionalMovement) DIPlus() float64 { return d.diPlus }

// DIMinus returns the current DI-.
func (d *DirectionalMovement) DIMinus() float64 { return d.diMinus }

// ATR returns the current Wilder-smoothed true range.
func (d *DirectionalMovement) ATR() float64 { return d.tr.Value() }

// Reset clears the state for reuse.
func (d *DirectionalMovement) Reset() {
	*d = *NewDirectionalMovement(d.period)
}
