package schedule

// MarkConflicts flags slots that collide with already-booked intervals on
// the same date. The overlap test is strict half-open range intersection
// and deliberately ignores modality: a practitioner cannot run an online
// and an in-person session at the same time, so any confirmed appointment
// blocks the whole window.
func MarkConflicts(date Date, slots []Slot, booked []BookedInterval) {
	for i := range slots {
		for _, b := range booked {
			if b.Date != date {
				continue
			}
			if Overlaps(slots[i].Start, slots[i].End, b.Start, b.End) {
				slots[i].Available = false
				break
			}
		}
	}
}
