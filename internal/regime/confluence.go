package regime

import (
	"fmt"
	"math"
)

// MTFIntervals are the timeframes compared for confluence.
var MTFIntervals = []string{"1m", "5m", "15m", "1h", "4h", "1d", "1w"}

// MinMTFCandles is the history a timeframe needs before it takes part:
// a timeframe counts only with strictly more candles than this.
const MinMTFCandles = 50

// HighConfluencePercent is the alignment at which confluence is flagged high.
const HighConfluencePercent = 60

// Bias is the direction timeframes agree on.
type Bias string

const (
	Bullish Bias = "bullish"
	Bearish Bias = "bearish"
	Neutral Bias = "neutral"
)

// TimeframeRegime is the last-bar regime of one timeframe.
type TimeframeRegime struct {
	Interval  string  `json:"interval"`
	State     State   `json:"state"`
	ShortName string  `json:"shortName"`
	ADX       float64 `json:"adx"`
	Candles   int     `json:"candles"`
}

// Confluence summarises agreement across timeframes.
type Confluence struct {
	Bias    Bias    `json:"bias"`
	Percent float64 `json:"percent"`
	Text    string  `json:"text"`
	Up      int     `json:"up"`
	Down    int     `json:"down"`
	Total   int     `json:"total"`
	High    bool    `json:"high"`
}

// ComputeConfluence is bullish when at least ceil(60%) of the states are
// uptrends, else bearish on the same rule for downtrends, else neutral.
// No states at all is neutral.
func ComputeConfluence(states []State) Confluence {
	c := Confluence{Bias: Neutral, Text: "No confluence", Total: len(states)}
	for _, s := range states {
		switch {
		case s.Uptrend():
			c.Up++
		case s.Downtrend():
			c.Down++
		}
	}
	if c.Total == 0 {
		return c
	}

	need := int(math.Ceil(float64(c.Total) * 0.6))
	switch {
	case c.Up >= need:
		c.Bias = Bullish
		c.Percent = float64(c.Up) / float64(c.Total) * 100
		c.Text = fmt.Sprintf("%d/%d Bullish Aligned", c.Up, c.Total)
	case c.Down >= need:
		c.Bias = Bearish
		c.Percent = float64(c.Down) / float64(c.Total) * 100
		c.Text = fmt.Sprintf("%d/%d Bearish Aligned", c.Down, c.Total)
	}
	c.High = c.Percent >= HighConfluencePercent
	return c
}

// States extracts the states from a set of timeframe regimes.
func States(tfs []TimeframeRegime) []State {
	out := make([]State, len(tfs))
	for i, tf := range tfs {
		out[i] = tf.State
	}
	return out
}
