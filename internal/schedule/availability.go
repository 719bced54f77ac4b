package schedule

import "sort"

// BuildAvailability assembles the bookable slot list for every date in
// [from, to], inclusive. It is a pure function over the snapshots passed
// in: the same template, exceptions, appointments, and config always
// produce the same output, so callers re-derive availability on every
// query instead of caching it.
//
// Every date in the range appears in the result; dates with no working
// intervals carry an empty slot list.
func BuildAvailability(from, to Date, template []WeeklyTemplateEntry, exceptions []DayException, booked []BookedInterval, cfg Config) []DayAvailability {
	if to.Before(from) {
		return nil
	}

	var days []DayAvailability
	for date := from; !date.After(to); date = date.Next() {
		days = append(days, buildDay(date, template, exceptions, booked, cfg))
	}
	return days
}

// BuildDayAvailability computes a single date. The booking writer uses it
// to re-validate a requested slot against fresh appointment state.
func BuildDayAvailability(date Date, template []WeeklyTemplateEntry, exceptions []DayException, booked []BookedInterval, cfg Config) DayAvailability {
	return buildDay(date, template, exceptions, booked, cfg)
}

func buildDay(date Date, template []WeeklyTemplateEntry, exceptions []DayException, booked []BookedInterval, cfg Config) DayAvailability {
	day := DayAvailability{Date: date, Slots: []Slot{}}

	for _, iv := range ResolveDay(date, template, exceptions) {
		day.Slots = append(day.Slots, GenerateSlots(iv, cfg.SessionDurationMinutes, cfg.BufferMinutes)...)
	}

	MarkConflicts(date, day.Slots, booked)

	sort.SliceStable(day.Slots, func(i, j int) bool {
		return day.Slots[i].Start < day.Slots[j].Start
	})

	return day
}
