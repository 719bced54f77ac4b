package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/psiagenda/scheduling-service/internal/schedule"
)

type AppointmentStatus string

const (
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

type SessionStatus string

const (
	SessionConfirmed SessionStatus = "confirmed"
	SessionPending   SessionStatus = "pending"
	SessionCancelled SessionStatus = "cancelled"
)

// Practitioner is the bookable professional.
type Practitioner struct {
	ID        uuid.UUID
	Name      string
	Specialty string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the authoritative record of an occupied interval in the
// practitioner's calendar. Cancelling flips status and frees the interval
// for future availability queries.
type Appointment struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Date           schedule.Date
	Start          schedule.TimeOfDay
	End            schedule.TimeOfDay
	Modality       schedule.Modality
	SessionID      uuid.UUID
	Status         AppointmentStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Patient carries the contact details captured at booking time.
type Patient struct {
	Name  string
	Email string
	Phone string
}

// Session is the patient-facing booking record, created 1:1 with an
// Appointment but independently cancellable and reschedulable.
type Session struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	Date           schedule.Date
	Start          schedule.TimeOfDay
	Modality       schedule.Modality
	Patient        Patient
	Specialty      string
	Status         SessionStatus
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EventLog is an append-only audit record of booking lifecycle events.
type EventLog struct {
	ID        int64
	EventType string
	SessionID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// Confirmation is returned to the caller after a successful reservation.
type Confirmation struct {
	AppointmentID uuid.UUID
	SessionID     uuid.UUID
}
