package model

import "strings"

// Instrument identifies one watched series: a symbol on an exchange at a
// candle interval (e.g. "binance.us", "BTC", "1h").
type Instrument struct {
	Exchange string `json:"exchange" yaml:"exchange"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Interval string `json:"interval" yaml:"interval"`
}

// Key returns a unique key for this instrument: "exchange:symbol:interval".
func (i *Instrument) Key() string {
	return i.Exchange + ":" + i.Symbol + ":" + i.Interval
}

// ParseInstrument parses "exchange:symbol:interval". ok is false when the
// string does not have exactly three non-empty parts.
func ParseInstrument(s string) (Instrument, bool) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return Instrument{}, false
	}
	for _, p := range parts {
		if p == "" {
			return Instrument{}, false
		}
	}
	return Instrument{
		Exchange: parts[0],
		Symbol:   strings.ToUpper(parts[1]),
		Interval: parts[2],
	}, true
}
