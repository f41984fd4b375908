package candle

import "fmt"

// VolumeMode tells the merger how to read the volume field of successive
// kline updates for the same bar.
type VolumeMode string

const (
	// VolumeCumulative: each update carries the total volume since the bar
	// opened (Binance semantics). The latest value replaces the stored one.
	VolumeCumulative VolumeMode = "cumulative"
	// VolumeIncremental: each update carries only the volume traded since the
	// previous update. Values are summed.
	VolumeIncremental VolumeMode = "incremental"
)

func ParseVolumeMode(s string) (VolumeMode, error) {
	switch VolumeMode(s) {
	case VolumeCumulative, VolumeIncremental:
		return VolumeMode(s), nil
	case "":
		return VolumeCumulative, nil
	}
	return "", fmt.Errorf("invalid volume mode: %s", s)
}

// Ticker is the most recently observed trade price and its time.
// The zero value means no trade has been seen yet.
type Ticker struct {
	Price float64 `json:"price"`
	Time  int64   `json:"time"`
}

func (t Ticker) Valid() bool {
	return t.Time > 0 && validPrice(t.Price)
}

// EffectivePrice picks the price that drives the close of a kline merge.
// While the bar is open, a ticker that is at least as recent as the candle's
// last update and lies in the same slot wins over the kline close. A closed
// kline is always trusted as reported.
func EffectivePrice(e KlineEvent, t Ticker, lastUpdate, slot int64, tf Timeframe) float64 {
	if e.IsClosed || !t.Valid() {
		return e.Close
	}
	if t.Time < lastUpdate || SlotOf(t.Time, tf) != slot {
		return e.Close
	}
	return t.Price
}

// OpenFromKline starts the very first candle of a timeframe from a kline.
func OpenFromKline(start int64, e KlineEvent, eff float64) Candle {
	return Candle{
		Time:   start,
		Open:   e.Open,
		High:   max(e.High, eff),
		Low:    min(e.Low, eff),
		Close:  eff,
		Volume: e.Volume,
	}.Clamp()
}

// OpenFromTicker starts the very first candle of a timeframe from a trade
// price when there is no previous close to open from.
func OpenFromTicker(start int64, price float64) Candle {
	return Candle{Time: start, Open: price, High: price, Low: price, Close: price}
}

// RollKline opens the candle for a later slot. Open continues from the
// previous candle's close.
func RollKline(prev Candle, start int64, e KlineEvent, eff float64) Candle {
	return Candle{
		Time:   start,
		Open:   prev.Close,
		High:   max(e.High, eff),
		Low:    min(e.Low, eff),
		Close:  eff,
		Volume: e.Volume,
	}.Clamp()
}

// RollTicker opens the candle for a later slot from a trade price.
func RollTicker(prev Candle, start int64, price float64) Candle {
	return Candle{
		Time:  start,
		Open:  prev.Close,
		High:  price,
		Low:   price,
		Close: price,
	}.Clamp()
}

// MergeKline folds a same-slot kline update into the running candle.
func MergeKline(cur Candle, e KlineEvent, eff float64, mode VolumeMode) Candle {
	cur.Close = eff
	cur.High = max(cur.High, e.High, eff)
	cur.Low = min(cur.Low, e.Low, eff)
	switch mode {
	case VolumeIncremental:
		cur.Volume += e.Volume
	default:
		cur.Volume = e.Volume
	}
	return cur.Clamp()
}

// MergeTicker folds a same-slot trade price into the running candle.
// Volume is untouched: the ticker feed carries no per-bar volume.
func MergeTicker(cur Candle, price float64) Candle {
	cur.Close = price
	cur.High = max(cur.High, price)
	cur.Low = min(cur.Low, price)
	return cur.Clamp()
}
