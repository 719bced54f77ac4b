package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/psiagenda/scheduling-service/internal/config"
	redisclient "github.com/psiagenda/scheduling-service/internal/redis"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

const (
	EventBookingConfirmed   = "BOOKING_CONFIRMED"
	EventBookingCancelled   = "BOOKING_CANCELLED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventTemplateReplaced   = "TEMPLATE_REPLACED"
)

var (
	ErrSlotTaken             = errors.New("slot is no longer available")
	ErrSlotNotFound          = errors.New("no bookable slot at the requested time")
	ErrInsufficientLeadTime  = errors.New("booking is inside the minimum notice window")
	ErrInvalidModality       = errors.New("requested modality is not offered for this slot")
	ErrBookingContended      = errors.New("slot is currently being booked, please retry")
	ErrPractitionerInactive  = errors.New("practitioner is not accepting bookings")
	ErrSessionNotCancellable = errors.New("session is already cancelled")
	ErrInvalidTemplate       = errors.New("weekly template failed validation")
)

// BookingRequest is a patient's attempt to reserve one slot.
type BookingRequest struct {
	PractitionerID uuid.UUID
	Date           schedule.Date
	Start          schedule.TimeOfDay
	Modality       schedule.Modality
	Patient        Patient
	Specialty      string
}

// Service is the booking writer and the sole read path for availability.
// All slot math is delegated to the schedule package over fresh store
// snapshots; the service adds the locking and transactional write scope.
type Service struct {
	repo   Repository
	locker redisclient.Locker
	cfg    config.Config
	log    *zap.Logger

	now func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, cfg config.Config, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		log:    log,
		now:    time.Now,
	}
}

// QueryAvailability derives the bookable slots for every date in
// [from, to]. Nothing is cached: each call reads the template,
// exceptions, config, and confirmed appointments fresh, so the result
// always reflects the latest bookings.
func (s *Service) QueryAvailability(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]schedule.DayAvailability, error) {
	if _, err := s.activePractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}

	cfg, err := s.loadConfig(ctx, practitionerID)
	if err != nil {
		return nil, err
	}

	template, err := s.repo.GetWeeklyTemplate(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}

	exceptions, err := s.repo.GetExceptions(ctx, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}

	appts, err := s.repo.GetConfirmedAppointments(ctx, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	return schedule.BuildAvailability(from, to, template, exceptions, bookedIntervals(appts, uuid.Nil), cfg), nil
}

// ValidateTemplateDraft checks a candidate template without writing
// anything. The editor calls this after every local edit.
func (s *Service) ValidateTemplateDraft(entries []schedule.WeeklyTemplateEntry) schedule.ValidationResult {
	return schedule.ValidateTemplate(entries)
}

// SaveWeeklyTemplate validates and atomically replaces the practitioner's
// whole weekly template. On validation failure nothing is written and the
// result carries the per-weekday issues.
func (s *Service) SaveWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, entries []schedule.WeeklyTemplateEntry) (schedule.ValidationResult, error) {
	if _, err := s.activePractitioner(ctx, practitionerID); err != nil {
		return schedule.ValidationResult{}, err
	}

	result := schedule.ValidateTemplate(entries)
	if !result.Valid() {
		return result, ErrInvalidTemplate
	}

	if err := s.repo.ReplaceWeeklyTemplate(ctx, practitionerID, entries); err != nil {
		return result, fmt.Errorf("replace weekly template: %w", err)
	}

	s.logEvent(ctx, nil, EventTemplateReplaced, map[string]any{
		"practitioner_id": practitionerID.String(),
		"entry_count":     len(entries),
	})
	s.log.Info("weekly template replaced",
		zap.String("practitioner_id", practitionerID.String()),
		zap.Int("entries", len(entries)))

	return result, nil
}

// Book reserves a slot: it re-validates availability and the minimum
// notice rule inside a per-practitioner-day lock, then creates the
// appointment and session as one transactional pair. Two concurrent
// requests for the same slot cannot both succeed; the loser gets
// ErrSlotTaken (or ErrBookingContended if it could not even enter the
// critical section).
func (s *Service) Book(ctx context.Context, req BookingRequest) (*Confirmation, error) {
	if !schedule.ValidModality(req.Modality) {
		return nil, ErrInvalidModality
	}
	if _, err := s.activePractitioner(ctx, req.PractitionerID); err != nil {
		return nil, err
	}

	var conf *Confirmation

	err := s.locker.WithBookingLock(ctx, req.PractitionerID, req.Date.String(), func(lockCtx context.Context) error {
		cfg, err := s.loadConfig(lockCtx, req.PractitionerID)
		if err != nil {
			return err
		}

		if err := s.checkLeadTime(req.Date, req.Start, cfg); err != nil {
			return err
		}

		slot, err := s.resolveSlot(lockCtx, req.PractitionerID, req.Date, req.Start, cfg, uuid.Nil)
		if err != nil {
			return err
		}
		if !schedule.ContainsModality(slot.Modalities, req.Modality) {
			return ErrInvalidModality
		}

		now := s.now()
		sessionID := uuid.New()
		appt := Appointment{
			ID:             uuid.New(),
			PractitionerID: req.PractitionerID,
			Date:           req.Date,
			Start:          slot.Start,
			End:            slot.End,
			Modality:       req.Modality,
			SessionID:      sessionID,
			Status:         AppointmentConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		sess := Session{
			ID:             sessionID,
			PractitionerID: req.PractitionerID,
			Date:           req.Date,
			Start:          slot.Start,
			Modality:       req.Modality,
			Patient:        req.Patient,
			Specialty:      req.Specialty,
			Status:         SessionConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		conf, err = s.repo.CreateAppointmentAndSession(lockCtx, appt, sess)
		if err != nil {
			return err
		}

		s.logEvent(lockCtx, &conf.SessionID, EventBookingConfirmed, map[string]any{
			"practitioner_id": req.PractitionerID.String(),
			"date":            req.Date.String(),
			"start":           slot.Start.String(),
			"modality":        string(req.Modality),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info("booking confirmed",
		zap.String("practitioner_id", req.PractitionerID.String()),
		zap.String("date", req.Date.String()),
		zap.String("start", req.Start.String()),
		zap.String("session_id", conf.SessionID.String()))

	return conf, nil
}

// Cancel marks the session and its appointment cancelled, freeing the
// interval for future availability queries.
func (s *Service) Cancel(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Status == SessionCancelled {
		return ErrSessionNotCancellable
	}

	appt, err := s.repo.GetAppointmentBySession(ctx, sessionID)
	if err != nil {
		return err
	}

	if err := s.repo.CancelAppointmentAndSession(ctx, appt.ID, sessionID); err != nil {
		return fmt.Errorf("cancel booking: %w", err)
	}

	s.logEvent(ctx, &sessionID, EventBookingCancelled, map[string]any{
		"practitioner_id": sess.PractitionerID.String(),
		"date":            sess.Date.String(),
		"start":           sess.Start.String(),
	})
	s.log.Info("booking cancelled",
		zap.String("session_id", sessionID.String()),
		zap.String("date", sess.Date.String()))

	return nil
}

// Reschedule moves an active session to a new slot. The new slot is
// validated and reserved in the same transaction that releases the old
// one, so a failed move leaves the original booking untouched.
func (s *Service) Reschedule(ctx context.Context, sessionID uuid.UUID, newDate schedule.Date, newStart schedule.TimeOfDay) (*Confirmation, error) {
	sess, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == SessionCancelled {
		return nil, ErrSessionNotCancellable
	}

	oldAppt, err := s.repo.GetAppointmentBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	var conf *Confirmation

	err = s.locker.WithBookingLock(ctx, sess.PractitionerID, newDate.String(), func(lockCtx context.Context) error {
		cfg, err := s.loadConfig(lockCtx, sess.PractitionerID)
		if err != nil {
			return err
		}

		if err := s.checkLeadTime(newDate, newStart, cfg); err != nil {
			return err
		}

		// The appointment being moved must not conflict with itself when
		// the new window overlaps the old one.
		slot, err := s.resolveSlot(lockCtx, sess.PractitionerID, newDate, newStart, cfg, oldAppt.ID)
		if err != nil {
			return err
		}
		if !schedule.ContainsModality(slot.Modalities, sess.Modality) {
			return ErrInvalidModality
		}

		now := s.now()
		newAppt := Appointment{
			ID:             uuid.New(),
			PractitionerID: sess.PractitionerID,
			Date:           newDate,
			Start:          slot.Start,
			End:            slot.End,
			Modality:       sess.Modality,
			SessionID:      sessionID,
			Status:         AppointmentConfirmed,
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		moved := *sess
		moved.Date = newDate
		moved.Start = slot.Start
		moved.UpdatedAt = now

		conf, err = s.repo.RebookSession(lockCtx, oldAppt.ID, newAppt, moved)
		if err != nil {
			return err
		}

		s.logEvent(lockCtx, &sessionID, EventBookingRescheduled, map[string]any{
			"practitioner_id": sess.PractitionerID.String(),
			"from_date":       sess.Date.String(),
			"from_start":      sess.Start.String(),
			"to_date":         newDate.String(),
			"to_start":        slot.Start.String(),
		})
		return nil
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrBookingContended
		}
		return nil, err
	}

	s.log.Info("booking rescheduled",
		zap.String("session_id", sessionID.String()),
		zap.String("to_date", newDate.String()),
		zap.String("to_start", newStart.String()))

	return conf, nil
}

// GetSession returns one session by ID.
func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.repo.GetSession(ctx, id)
}

// ListSessions returns a practitioner's sessions in a date range.
func (s *Service) ListSessions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Session, error) {
	if _, err := s.activePractitioner(ctx, practitionerID); err != nil {
		return nil, err
	}
	sessions, err := s.repo.ListSessions(ctx, practitionerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

func (s *Service) activePractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	p, err := s.repo.GetPractitioner(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, ErrPractitionerInactive
	}
	return p, nil
}

func (s *Service) loadConfig(ctx context.Context, practitionerID uuid.UUID) (schedule.Config, error) {
	cfg, err := s.repo.GetConfig(ctx, practitionerID)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return schedule.DefaultConfig(), nil
		}
		return schedule.Config{}, fmt.Errorf("load scheduling config: %w", err)
	}
	if cfg.SessionDurationMinutes <= 0 {
		cfg.SessionDurationMinutes = schedule.DefaultSessionDurationMinutes
	}
	if cfg.BufferMinutes < 0 {
		cfg.BufferMinutes = schedule.DefaultBufferMinutes
	}
	return cfg, nil
}

// checkLeadTime enforces the minimum notice rule in the practitioner's
// reference timezone.
func (s *Service) checkLeadTime(date schedule.Date, start schedule.TimeOfDay, cfg schedule.Config) error {
	slotStart := date.At(start, cfg.Location())
	if slotStart.Before(s.now().Add(s.cfg.LeadTime)) {
		return ErrInsufficientLeadTime
	}
	return nil
}

// resolveSlot recomputes the requested date's availability from fresh
// snapshots and returns the slot starting exactly at start, provided it
// is still free. excludeAppointment skips one appointment during the
// conflict check (the one being rescheduled).
func (s *Service) resolveSlot(ctx context.Context, practitionerID uuid.UUID, date schedule.Date, start schedule.TimeOfDay, cfg schedule.Config, excludeAppointment uuid.UUID) (*schedule.Slot, error) {
	template, err := s.repo.GetWeeklyTemplate(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("load weekly template: %w", err)
	}
	exceptions, err := s.repo.GetExceptions(ctx, practitionerID, date, date)
	if err != nil {
		return nil, fmt.Errorf("load exceptions: %w", err)
	}
	appts, err := s.repo.GetConfirmedAppointments(ctx, practitionerID, date, date)
	if err != nil {
		return nil, fmt.Errorf("load appointments: %w", err)
	}

	day := schedule.BuildDayAvailability(date, template, exceptions, bookedIntervals(appts, excludeAppointment), cfg)
	for i := range day.Slots {
		if day.Slots[i].Start != start {
			continue
		}
		if !day.Slots[i].Available {
			return nil, ErrSlotTaken
		}
		return &day.Slots[i], nil
	}
	return nil, ErrSlotNotFound
}

func bookedIntervals(appts []Appointment, exclude uuid.UUID) []schedule.BookedInterval {
	var booked []schedule.BookedInterval
	for _, a := range appts {
		if a.Status != AppointmentConfirmed {
			continue
		}
		if exclude != uuid.Nil && a.ID == exclude {
			continue
		}
		booked = append(booked, schedule.BookedInterval{
			Date:  a.Date,
			Start: a.Start,
			End:   a.End,
		})
	}
	return booked
}

func (s *Service) logEvent(ctx context.Context, sessionID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn("marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		SessionID: sessionID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn("insert event log", zap.String("event", eventType), zap.Error(err))
	}
}
