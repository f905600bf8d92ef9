package indicator

import "regime-seeker/internal/model"

// VolumeSpikes flags bars whose volume exceeds multiplier times the SMA of
// the preceding period volumes. Bars without a full lookback are never flagged.
func VolumeSpikes(candles []model.Candle, period int, multiplier float64) []bool {
	out := make([]bool, len(candles))
	if period <= 0 {
		return out
	}
	avg := NewSMA(period)
	for i := range candles {
		out[i] = avg.Exceeds(candles[i].Volume, multiplier)
		avg.Add(candles[i].Volume)
	}
	return out
}
