package indicator

// EMASeries computes the exponential moving average of values.
//
// If len(values) < period every element is missing. Otherwise indices
// 0..period-2 are missing, index period-1 holds the simple mean of the first
// period values, and each later value is (v - prev)*2/(period+1) + prev.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nanSeries(len(values))
	}

	out := nanSeries(len(values))
	multiplier := 2 / float64(period+1)

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	prev := sum / float64(period)
	out[period-1] = prev

	for i := period; i < len(values); i++ {
		cur := (values[i]-prev)*multiplier + prev
		out[i] = cur
		prev = cur
	}
	return out
}

// RMASeries computes Wilder's running moving average (alpha = 1/period).
//
// Unlike EMA it has no warmup: rma[0] = values[0] and every later value is
// alpha*v + (1-alpha)*prev. ADX depends on this seeding.
func RMASeries(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	alpha := 1.0 / float64(period)

	out[0] = values[0]
	for i := 1; i < len(values); i++ {
		out[i] = alpha*values[i] + (1-alpha)*out[i-1]
	}
	return out
}
