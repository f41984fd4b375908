// Package indicator computes technical indicators over candle series.
// Results are index aligned with their input; positions without enough
// history hold NaN.
package indicator

import "math"

// Point is one indicator value joined to the candle time it belongs to.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// Join pairs values with times by index and drops undefined values.
func Join(times []int64, values []float64) []Point {
	n := min(len(times), len(values))
	out := make([]Point, 0, n)
	for i := 0; i < n; i++ {
		if math.IsNaN(values[i]) {
			continue
		}
		out = append(out, Point{Time: times[i], Value: values[i]})
	}
	return out
}

func undefined(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}

// SMA is the simple moving average over period values.
func SMA(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA is the exponential moving average seeded with the SMA of the first
// period values.
func EMA(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period < 1 || len(values) < period {
		return out
	}
	k := 2 / float64(period+1)

	var seed float64
	for _, v := range values[:period] {
		seed += v
	}
	out[period-1] = seed / float64(period)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI is Wilder's relative strength index.
func RSI(values []float64, period int) []float64 {
	out := undefined(len(values))
	if period < 1 || len(values) <= period {
		return out
	}

	var gains, losses float64
	for i := 1; i <= period; i++ {
		diff := values[i] - values[i-1]
		if diff >= 0 {
			gains += diff
		} else {
			losses -= diff
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)
	out[period] = rsi(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		gain, loss := math.Max(diff, 0), math.Max(-diff, 0)
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out[i] = rsi(avgGain, avgLoss)
	}
	return out
}

func rsi(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	return 100 - 100/(1+avgGain/avgLoss)
}
