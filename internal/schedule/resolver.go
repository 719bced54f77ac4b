package schedule

// ResolveDay selects the working intervals for one calendar date.
//
// Resolution is exclusive: a day exception always takes full precedence
// over the recurring template. Blocked days resolve to no intervals at
// all; special hours resolve to exactly the exception's window, ignoring
// whatever the template says for that weekday. Only when no exception
// exists for the date do the active template entries for the matching
// weekday apply.
func ResolveDay(date Date, template []WeeklyTemplateEntry, exceptions []DayException) []WorkInterval {
	for _, ex := range exceptions {
		if ex.Date != date {
			continue
		}
		switch ex.Kind {
		case ExceptionBlocked:
			return nil
		case ExceptionSpecialHours:
			mods := ex.Modalities
			if len(mods) == 0 {
				mods = AllModalities
			}
			return []WorkInterval{{Start: ex.Start, End: ex.End, Modalities: mods}}
		}
	}

	weekday := date.Weekday()
	var intervals []WorkInterval
	for _, entry := range template {
		if !entry.Active || entry.Weekday != weekday {
			continue
		}
		intervals = append(intervals, WorkInterval{
			Start:      entry.Start,
			End:        entry.End,
			Modalities: entry.Modalities,
		})
	}
	return intervals
}
