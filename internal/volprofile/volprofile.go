// Package volprofile builds a volume-at-price histogram over a candle window
// and locates the point of control and the value area around it.
package volprofile

import (
	"fmt"
	"math"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"

	"regime-seeker/internal/model"
)

// Histogram colours.
const (
	ColorValueAreaHigh = "#a78bfa" // value area, at or above POC
	ColorValueAreaLow  = "#6b46c1" // value area, below POC
	ColorOutsideValue  = "#4c1d95"
)

var validate = validator.New()

// Config for a Profiler. Zero fields take their defaults.
type Config struct {
	ValueAreaPercent float64 `json:"valueAreaPercent" yaml:"value_area_percent" default:"68" validate:"gt=0,lte=100"`
	NumBins          int     `json:"numBins" yaml:"num_bins" default:"100" validate:"gte=1,lte=10000"`
}

// Level is one non-empty histogram bin.
type Level struct {
	Price            float64 `json:"price"`
	Volume           float64 `json:"volume"`
	NormalizedVolume float64 `json:"normalizedVolume"`
	Color            string  `json:"color"`
	IsPOC            bool    `json:"isPOC"`
	IsValueArea      bool    `json:"isValueArea"`
}

// PriceRange is the [min low, max high] span the bins partition.
type PriceRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Result is a computed profile. Prices for POC, VAH and VAL are the lower
// edges of their bins.
type Result struct {
	Histogram       []Level    `json:"histogramData"`
	POC             float64    `json:"poc"`
	VAH             float64    `json:"vah"`
	VAL             float64    `json:"val"`
	TotalVolume     float64    `json:"totalVolume"`
	ValueAreaVolume float64    `json:"valueAreaVolume"`
	MaxVolume       float64    `json:"maxVolume"`
	PriceRange      PriceRange `json:"priceRange"`

	POCIndex int `json:"pocIndex"`
	VAHIndex int `json:"vahIndex"`
	VALIndex int `json:"valIndex"`
}

// InValueArea reports whether price lies within [VAL, VAH].
func (r *Result) InValueArea(price float64) bool {
	return price >= r.VAL && price <= r.VAH
}

// Profiler computes volume profiles with a fixed configuration.
type Profiler struct {
	cfg Config
}

// New fills defaults into cfg, validates it and returns a Profiler.
func New(cfg Config) (*Profiler, error) {
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("volprofile: defaults: %w", err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("volprofile: invalid config: %w", err)
	}
	return &Profiler{cfg: cfg}, nil
}

// NewDefault returns a Profiler with a 68% value area over 100 bins.
func NewDefault() *Profiler {
	p, _ := New(Config{})
	return p
}

// Config returns the effective configuration.
func (p *Profiler) Config() Config { return p.cfg }

// Calculate builds the profile for candles. ok is false, with a nil result,
// when candles is empty or the window's price range has zero width. That is
// a data-sparse condition, not an error.
func (p *Profiler) Calculate(candles []model.Candle) (*Result, bool) {
	if len(candles) == 0 {
		return nil, false
	}

	minPrice, maxPrice := math.Inf(1), math.Inf(-1)
	for i := range candles {
		minPrice = math.Min(minPrice, candles[i].Low)
		maxPrice = math.Max(maxPrice, candles[i].High)
	}
	if !(maxPrice > minPrice) {
		return nil, false
	}

	n := p.cfg.NumBins
	step := (maxPrice - minPrice) / float64(n)
	levels := make([]float64, n)
	for i := range levels {
		levels[i] = minPrice + float64(i)*step
	}

	vols := distribute(candles, levels, minPrice, maxPrice, step)

	poc, maxVol := pointOfControl(vols)
	total := 0.0
	for _, v := range vols {
		total += v
	}
	target := total * (p.cfg.ValueAreaPercent / 100)
	val, vah, vaVol := valueArea(vols, poc, target)

	r := &Result{
		Histogram:       make([]Level, 0, n),
		POC:             levels[poc],
		VAH:             levels[vah],
		VAL:             levels[val],
		TotalVolume:     total,
		ValueAreaVolume: vaVol,
		MaxVolume:       maxVol,
		PriceRange:      PriceRange{Min: minPrice, Max: maxPrice},
		POCIndex:        poc,
		VAHIndex:        vah,
		VALIndex:        val,
	}

	for i, v := range vols {
		if v == 0 {
			continue
		}
		inVA := i >= val && i <= vah
		color := ColorOutsideValue
		if inVA {
			if i >= poc {
				color = ColorValueAreaHigh
			} else {
				color = ColorValueAreaLow
			}
		}
		r.Histogram = append(r.Histogram, Level{
			Price:            levels[i],
			Volume:           v,
			NormalizedVolume: v / maxVol,
			Color:            color,
			IsPOC:            i == poc,
			IsValueArea:      inVA,
		})
	}
	return r, true
}

// distribute spreads each candle's volume over the bins its [low, high]
// range overlaps, in proportion to the overlap. A candle with no range puts
// all of its volume in the bin holding its close.
func distribute(candles []model.Candle, levels []float64, minPrice, maxPrice, step float64) []float64 {
	n := len(levels)
	vols := make([]float64, n)

	for _, c := range candles {
		rng := c.Range()
		if rng == 0 {
			idx := int(math.Floor((c.Close - minPrice) / step))
			vols[clamp(idx, 0, n-1)] += c.Volume
			continue
		}

		lowBin := int(math.Floor((c.Low - minPrice) / step))
		highBin := int(math.Floor((c.High - minPrice) / step))
		for i := max(lowBin, 0); i <= highBin && i < n; i++ {
			binLow := levels[i]
			binHigh := maxPrice
			if i < n-1 {
				binHigh = levels[i+1]
			}
			overlap := math.Min(binHigh, c.High) - math.Max(binLow, c.Low)
			if overlap <= 0 {
				continue
			}
			vols[i] += c.Volume * overlap / rng
		}
	}
	return vols
}

// pointOfControl returns the first bin holding the largest volume.
func pointOfControl(vols []float64) (idx int, maxVol float64) {
	for i, v := range vols {
		if v > maxVol {
			maxVol = v
			idx = i
		}
	}
	return idx, maxVol
}

// valueArea grows [val, vah] outward from poc, one bin at a time, taking
// the larger neighbour and preferring the upper one on ties, until target
// is reached or both edges are exhausted.
func valueArea(vols []float64, poc int, target float64) (val, vah int, vaVol float64) {
	n := len(vols)
	val, vah = poc, poc
	vaVol = vols[poc]

	for vaVol < target && (vah < n-1 || val > 0) {
		var above, below float64
		if vah < n-1 {
			above = vols[vah+1]
		}
		if val > 0 {
			below = vols[val-1]
		}

		switch {
		case above >= below && vah < n-1:
			vah++
			vaVol += above
		case val > 0:
			val--
			vaVol += below
		default:
			vah++
			vaVol += above
		}
	}
	return val, vah, vaVol
}

// ColorForPrice returns the histogram colour a price would get under r.
// A nil profile gives the outside-value colour.
func ColorForPrice(price float64, r *Result) string {
	if r == nil || !r.InValueArea(price) {
		return ColorOutsideValue
	}
	if price >= r.POC {
		return ColorValueAreaHigh
	}
	return ColorValueAreaLow
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
