package candle

// SlotOf maps a unix timestamp (seconds) to the index of the bucket it falls
// into. Two timestamps share a slot iff they lie in the same half-open
// interval [SlotStart, SlotStart+width).
func SlotOf(ts int64, tf Timeframe) int64 {
	width := tf.Seconds()
	if width <= 0 {
		return 0
	}
	slot := ts / width
	if ts%width != 0 && ts < 0 {
		slot--
	}
	return slot
}

// SlotStart returns the canonical start time of a slot.
func SlotStart(slot int64, tf Timeframe) int64 {
	return slot * tf.Seconds()
}

// Align truncates ts to the start of its slot.
func Align(ts int64, tf Timeframe) int64 {
	return SlotStart(SlotOf(ts, tf), tf)
}
