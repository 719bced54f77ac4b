package schedule

import (
	"time"

	"github.com/google/uuid"
)

// Modality is how a session is delivered.
type Modality string

const (
	ModalityOnline   Modality = "online"
	ModalityInPerson Modality = "in_person"
)

// AllModalities in display order.
var AllModalities = []Modality{ModalityOnline, ModalityInPerson}

func ValidModality(m Modality) bool {
	return m == ModalityOnline || m == ModalityInPerson
}

// ContainsModality reports whether set includes m.
func ContainsModality(set []Modality, m Modality) bool {
	for _, s := range set {
		if s == m {
			return true
		}
	}
	return false
}

// WeeklyTemplateEntry is one recurring working interval on a weekday of the
// practitioner's week. The full template for a practitioner is replaced
// wholesale on every save.
type WeeklyTemplateEntry struct {
	PractitionerID uuid.UUID
	Weekday        time.Weekday // 0=Sunday
	Start          TimeOfDay
	End            TimeOfDay
	Modalities     []Modality
	Active         bool
}

// ExceptionKind distinguishes the two day-override shapes.
type ExceptionKind string

const (
	ExceptionBlocked      ExceptionKind = "blocked"
	ExceptionSpecialHours ExceptionKind = "special_hours"
)

// DayException overrides the weekly template for a single date. A blocked
// exception removes the day entirely; special hours replace the template
// with one synthetic working interval.
type DayException struct {
	PractitionerID uuid.UUID
	Date           Date
	Kind           ExceptionKind
	Start          TimeOfDay // special hours only
	End            TimeOfDay // special hours only
	Modalities     []Modality
	Reason         string
}

// Config carries the per-practitioner slot parameters.
type Config struct {
	SessionDurationMinutes int
	BufferMinutes          int
	Timezone               string // IANA name, practitioner's reference timezone
}

const (
	DefaultSessionDurationMinutes = 60
	DefaultBufferMinutes          = 15
	DefaultTimezone               = "UTC"
)

// DefaultConfig is applied when a practitioner has no stored config.
func DefaultConfig() Config {
	return Config{
		SessionDurationMinutes: DefaultSessionDurationMinutes,
		BufferMinutes:          DefaultBufferMinutes,
		Timezone:               DefaultTimezone,
	}
}

// Location resolves the configured timezone, falling back to UTC when the
// name does not resolve.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

// WorkInterval is a resolved working window on a concrete date, either from
// the weekly template or from a special-hours exception.
type WorkInterval struct {
	Start      TimeOfDay
	End        TimeOfDay
	Modalities []Modality
}

// BookedInterval is the occupied range of a confirmed appointment on a
// specific date, as seen by the conflict filter.
type BookedInterval struct {
	Date  Date
	Start TimeOfDay
	End   TimeOfDay
}

// Slot is one bookable candidate. Slots are derived fresh on every
// availability query and never persisted.
type Slot struct {
	Start      TimeOfDay
	End        TimeOfDay
	Modalities []Modality
	Available  bool
}

// DayAvailability is the per-date result of an availability query. Days
// with no working intervals carry an empty Slots list.
type DayAvailability struct {
	Date  Date
	Slots []Slot
}
