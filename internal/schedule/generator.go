package schedule

// GenerateSlots enumerates candidate slots inside a working interval.
// Each slot spans durationMinutes; successive slots start
// durationMinutes+bufferMinutes apart, beginning at the interval start.
// Enumeration stops as soon as a slot would run past the interval end, so
// an interval shorter than one session yields nothing.
//
// Slots inherit the interval's modalities and start out available; the
// conflict filter flips them afterwards.
func GenerateSlots(iv WorkInterval, durationMinutes, bufferMinutes int) []Slot {
	if durationMinutes <= 0 {
		return nil
	}
	if bufferMinutes < 0 {
		bufferMinutes = 0
	}

	var slots []Slot
	step := durationMinutes + bufferMinutes
	for start := iv.Start; start.Add(durationMinutes) <= iv.End; start = start.Add(step) {
		slots = append(slots, Slot{
			Start:      start,
			End:        start.Add(durationMinutes),
			Modalities: iv.Modalities,
			Available:  true,
		})
	}
	return slots
}
