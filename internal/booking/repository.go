package booking

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/psiagenda/scheduling-service/internal/schedule"
)

var (
	ErrPractitionerNotFound = errors.New("practitioner not found")
	ErrSessionNotFound      = errors.New("session not found")
	ErrAppointmentNotFound  = errors.New("appointment not found")
	ErrConfigNotFound       = errors.New("scheduling config not found")
)

// Repository contains all store interactions needed by the service.
// Slot computation never goes through it: the service reads snapshots,
// computes in memory, and writes results back.
type Repository interface {
	GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error)

	// Weekly template, replaced wholesale in one transaction on save.
	GetWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID) ([]schedule.WeeklyTemplateEntry, error)
	ReplaceWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, entries []schedule.WeeklyTemplateEntry) error

	GetExceptions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]schedule.DayException, error)

	// GetConfig returns ErrConfigNotFound when the practitioner has no
	// stored config; the service applies defaults.
	GetConfig(ctx context.Context, practitionerID uuid.UUID) (schedule.Config, error)

	// GetConfirmedAppointments is the single source of truth for occupied
	// intervals, always read fresh.
	GetConfirmedAppointments(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Appointment, error)

	// CreateAppointmentAndSession inserts both rows in one transaction.
	// A slot-uniqueness violation surfaces as ErrSlotTaken with nothing
	// committed.
	CreateAppointmentAndSession(ctx context.Context, appt Appointment, sess Session) (*Confirmation, error)

	GetSession(ctx context.Context, id uuid.UUID) (*Session, error)
	GetAppointmentBySession(ctx context.Context, sessionID uuid.UUID) (*Appointment, error)
	ListSessions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Session, error)

	// CancelAppointmentAndSession flips both records to cancelled in one
	// transaction.
	CancelAppointmentAndSession(ctx context.Context, appointmentID, sessionID uuid.UUID) error

	// RebookSession moves a session to a new appointment in one
	// transaction: cancel the old appointment, insert the new one, update
	// the session. Any failure rolls the whole move back, leaving the
	// original booking intact.
	RebookSession(ctx context.Context, oldAppointmentID uuid.UUID, newAppt Appointment, sess Session) (*Confirmation, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
