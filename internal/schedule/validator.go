package schedule

import (
	"sort"
	"time"
)

// TemplateIssueCode identifies a template validation failure class.
type TemplateIssueCode string

const (
	IssueInvalidRange         TemplateIssueCode = "invalid_range"
	IssueOverlappingIntervals TemplateIssueCode = "overlapping_intervals"
	IssueEmptyTemplate        TemplateIssueCode = "empty_template"
	IssueNoActiveEntries      TemplateIssueCode = "no_active_entries"
)

// WeekdayNone marks an issue that applies to the template as a whole
// rather than a specific weekday.
const WeekdayNone = time.Weekday(-1)

// TemplateIssue is one validation failure. Entries holds the offending
// entry indexes in the submitted template so an editor can highlight them.
type TemplateIssue struct {
	Code    TemplateIssueCode
	Weekday time.Weekday
	Entries []int
}

// ValidationResult is the outcome of validating a full weekly template.
type ValidationResult struct {
	Issues []TemplateIssue
}

func (r ValidationResult) Valid() bool {
	return len(r.Issues) == 0
}

// IssuesByWeekday groups day-scoped issues for editor display. Template-wide
// issues land under WeekdayNone.
func (r ValidationResult) IssuesByWeekday() map[time.Weekday][]TemplateIssue {
	out := make(map[time.Weekday][]TemplateIssue)
	for _, issue := range r.Issues {
		out[issue.Weekday] = append(out[issue.Weekday], issue)
	}
	return out
}

// ValidateTemplate checks a candidate full weekly template before it is
// persisted. The same checks run after every local edit in the template
// editor and once more before the atomic replace-all write.
//
// Rules: every entry must have start < end; active entries on the same
// weekday must not pairwise overlap; the template must contain at least
// one entry, at least one of them active.
func ValidateTemplate(entries []WeeklyTemplateEntry) ValidationResult {
	var result ValidationResult

	if len(entries) == 0 {
		result.Issues = append(result.Issues, TemplateIssue{
			Code:    IssueEmptyTemplate,
			Weekday: WeekdayNone,
		})
		return result
	}

	anyActive := false
	activeByDay := make(map[time.Weekday][]int)

	for i, e := range entries {
		if e.Start >= e.End {
			result.Issues = append(result.Issues, TemplateIssue{
				Code:    IssueInvalidRange,
				Weekday: e.Weekday,
				Entries: []int{i},
			})
		}
		if e.Active {
			anyActive = true
			activeByDay[e.Weekday] = append(activeByDay[e.Weekday], i)
		}
	}

	if !anyActive {
		result.Issues = append(result.Issues, TemplateIssue{
			Code:    IssueNoActiveEntries,
			Weekday: WeekdayNone,
		})
	}

	days := make([]time.Weekday, 0, len(activeByDay))
	for day := range activeByDay {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i] < days[j] })

	for _, day := range days {
		idxs := activeByDay[day]
		for i := 0; i < len(idxs); i++ {
			for j := i + 1; j < len(idxs); j++ {
				a, b := entries[idxs[i]], entries[idxs[j]]
				if Overlaps(a.Start, a.End, b.Start, b.End) {
					result.Issues = append(result.Issues, TemplateIssue{
						Code:    IssueOverlappingIntervals,
						Weekday: day,
						Entries: []int{idxs[i], idxs[j]},
					})
				}
			}
		}
	}

	return result
}
