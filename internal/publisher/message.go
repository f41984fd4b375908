package publisher

import "candlesync/internal/candle"

const (
	TypeCandleUpdate = "candle_update"
	TypeCandleClosed = "candle_closed"
)

// Message is what subscribers receive. It mirrors the running candle and
// carries the global ticker state at emission time.
type Message struct {
	Type            string  `json:"type"`
	Timeframe       string  `json:"timeframe"`
	Time            int64   `json:"time"`
	Open            float64 `json:"open"`
	High            float64 `json:"high"`
	Low             float64 `json:"low"`
	Close           float64 `json:"close"`
	Volume          float64 `json:"volume"`
	IsClosed        bool    `json:"isClosed"`
	Slot            int64   `json:"slot"`
	IsTickerUpdate  bool    `json:"isTickerUpdate,omitempty"`
	GlobalLastTime  int64   `json:"globalLastTime,omitempty"`
	GlobalLastPrice float64 `json:"globalLastPrice,omitempty"`
}

// Candle returns the OHLCV part of the message.
func (m Message) Candle() candle.Candle {
	return candle.Candle{Time: m.Time, Open: m.Open, High: m.High, Low: m.Low, Close: m.Close, Volume: m.Volume}
}

func newMessage(typ string, tf candle.Timeframe, c candle.Candle, slot int64, t candle.Ticker) Message {
	m := Message{
		Type:      typ,
		Timeframe: tf.String(),
		Time:      c.Time,
		Open:      c.Open,
		High:      c.High,
		Low:       c.Low,
		Close:     c.Close,
		Volume:    c.Volume,
		Slot:      slot,
	}
	if t.Valid() {
		m.GlobalLastTime = t.Time
		m.GlobalLastPrice = t.Price
	}
	return m
}
