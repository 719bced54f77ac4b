package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psiagenda/scheduling-service/internal/schedule"
)

const pgUniqueViolation = "23505"

// PgxPool is the subset of pgxpool.Pool the repository uses; pgxmock
// satisfies it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ PgxPool = (*pgxpool.Pool)(nil)

type PgRepository struct {
	pool PgxPool
}

func NewPgRepository(pool PgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanPractitioner(row pgx.Row) (*Practitioner, error) {
	var p Practitioner
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Specialty,
		&p.Active,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPractitionerNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanTemplateEntry(row pgx.Row) (schedule.WeeklyTemplateEntry, error) {
	var (
		e          schedule.WeeklyTemplateEntry
		weekday    int
		start, end int
		modalities []string
	)
	err := row.Scan(
		&e.PractitionerID,
		&weekday,
		&start,
		&end,
		&modalities,
		&e.Active,
	)
	if err != nil {
		return schedule.WeeklyTemplateEntry{}, err
	}
	e.Weekday = time.Weekday(weekday)
	e.Start = schedule.TimeOfDay(start)
	e.End = schedule.TimeOfDay(end)
	e.Modalities = toModalities(modalities)
	return e, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a          Appointment
		date       time.Time
		start, end int
		modality   string
		status     string
	)
	err := row.Scan(
		&a.ID,
		&a.PractitionerID,
		&date,
		&start,
		&end,
		&modality,
		&a.SessionID,
		&status,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	a.Date = schedule.DateOf(date)
	a.Start = schedule.TimeOfDay(start)
	a.End = schedule.TimeOfDay(end)
	a.Modality = schedule.Modality(modality)
	a.Status = AppointmentStatus(status)
	return &a, nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var (
		s        Session
		date     time.Time
		start    int
		modality string
		status   string
	)
	err := row.Scan(
		&s.ID,
		&s.PractitionerID,
		&date,
		&start,
		&modality,
		&s.Patient.Name,
		&s.Patient.Email,
		&s.Patient.Phone,
		&s.Specialty,
		&status,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	s.Date = schedule.DateOf(date)
	s.Start = schedule.TimeOfDay(start)
	s.Modality = schedule.Modality(modality)
	s.Status = SessionStatus(status)
	return &s, nil
}

func toModalities(in []string) []schedule.Modality {
	out := make([]schedule.Modality, 0, len(in))
	for _, m := range in {
		out = append(out, schedule.Modality(m))
	}
	return out
}

func fromModalities(in []schedule.Modality) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		out = append(out, string(m))
	}
	return out
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// Interface methods

func (r *PgRepository) GetPractitioner(ctx context.Context, id uuid.UUID) (*Practitioner, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, specialty, active, created_at, updated_at
		FROM practitioners
		WHERE id = $1
	`, id)
	return scanPractitioner(row)
}

func (r *PgRepository) GetWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID) ([]schedule.WeeklyTemplateEntry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT practitioner_id, weekday, start_minute, end_minute, modalities, active
		FROM weekly_template_entries
		WHERE practitioner_id = $1
		ORDER BY weekday, start_minute
	`, practitionerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []schedule.WeeklyTemplateEntry
	for rows.Next() {
		e, err := scanTemplateEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ReplaceWeeklyTemplate swaps the practitioner's whole template in one
// transaction so concurrent availability readers never observe a
// half-replaced template.
func (r *PgRepository) ReplaceWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, entries []schedule.WeeklyTemplateEntry) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace template: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		DELETE FROM weekly_template_entries WHERE practitioner_id = $1
	`, practitionerID); err != nil {
		return fmt.Errorf("clear weekly template: %w", err)
	}

	for _, e := range entries {
		if _, err := tx.Exec(ctx, `
			INSERT INTO weekly_template_entries
				(id, practitioner_id, weekday, start_minute, end_minute, modalities, active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		`, uuid.New(), practitionerID, int(e.Weekday), int(e.Start), int(e.End), fromModalities(e.Modalities), e.Active); err != nil {
			return fmt.Errorf("insert template entry: %w", err)
		}
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) GetExceptions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]schedule.DayException, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT practitioner_id, date, kind, start_minute, end_minute, modalities, reason
		FROM day_exceptions
		WHERE practitioner_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date
	`, practitionerID, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exceptions []schedule.DayException
	for rows.Next() {
		var (
			ex         schedule.DayException
			date       time.Time
			kind       string
			start, end *int
			modalities []string
		)
		if err := rows.Scan(&ex.PractitionerID, &date, &kind, &start, &end, &modalities, &ex.Reason); err != nil {
			return nil, err
		}
		ex.Date = schedule.DateOf(date)
		ex.Kind = schedule.ExceptionKind(kind)
		if start != nil {
			ex.Start = schedule.TimeOfDay(*start)
		}
		if end != nil {
			ex.End = schedule.TimeOfDay(*end)
		}
		ex.Modalities = toModalities(modalities)
		exceptions = append(exceptions, ex)
	}
	return exceptions, rows.Err()
}

func (r *PgRepository) GetConfig(ctx context.Context, practitionerID uuid.UUID) (schedule.Config, error) {
	var cfg schedule.Config
	err := r.pool.QueryRow(ctx, `
		SELECT session_duration_minutes, buffer_minutes, timezone
		FROM scheduling_configs
		WHERE practitioner_id = $1
	`, practitionerID).Scan(&cfg.SessionDurationMinutes, &cfg.BufferMinutes, &cfg.Timezone)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return schedule.Config{}, ErrConfigNotFound
		}
		return schedule.Config{}, err
	}
	return cfg, nil
}

func (r *PgRepository) GetConfirmedAppointments(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, date, start_minute, end_minute, modality, session_id, status, created_at, updated_at
		FROM appointments
		WHERE practitioner_id = $1
		  AND date BETWEEN $2 AND $3
		  AND status = 'confirmed'
		ORDER BY date, start_minute
	`, practitionerID, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, *a)
	}
	return appts, rows.Err()
}

// CreateAppointmentAndSession inserts the paired records in one
// transaction. The partial unique index on confirmed appointment slots is
// the last line of defense against double booking; a violation maps to
// ErrSlotTaken with nothing committed.
func (r *PgRepository) CreateAppointmentAndSession(ctx context.Context, appt Appointment, sess Session) (*Confirmation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin booking: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions
			(id, practitioner_id, date, start_minute, modality, patient_name, patient_email, patient_phone, specialty, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
	`, sess.ID, sess.PractitionerID, sess.Date.Time(), int(sess.Start), string(sess.Modality),
		sess.Patient.Name, sess.Patient.Email, sess.Patient.Phone, sess.Specialty, string(sess.Status)); err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, practitioner_id, date, start_minute, end_minute, modality, session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, appt.ID, appt.PractitionerID, appt.Date.Time(), int(appt.Start), int(appt.End),
		string(appt.Modality), appt.SessionID, string(appt.Status)); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit booking: %w", err)
	}

	return &Confirmation{AppointmentID: appt.ID, SessionID: sess.ID}, nil
}

func (r *PgRepository) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, date, start_minute, modality, patient_name, patient_email, patient_phone, specialty, status, created_at, updated_at
		FROM sessions
		WHERE id = $1
	`, id)
	return scanSession(row)
}

func (r *PgRepository) GetAppointmentBySession(ctx context.Context, sessionID uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, practitioner_id, date, start_minute, end_minute, modality, session_id, status, created_at, updated_at
		FROM appointments
		WHERE session_id = $1 AND status = 'confirmed'
	`, sessionID)
	return scanAppointment(row)
}

func (r *PgRepository) ListSessions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Session, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, practitioner_id, date, start_minute, modality, patient_name, patient_email, patient_phone, specialty, status, created_at, updated_at
		FROM sessions
		WHERE practitioner_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY date, start_minute
	`, practitionerID, from.Time(), to.Time())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func (r *PgRepository) CancelAppointmentAndSession(ctx context.Context, appointmentID, sessionID uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
	`, appointmentID)
	if err != nil {
		return fmt.Errorf("cancel appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}

	tag, err = tx.Exec(ctx, `
		UPDATE sessions
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status <> 'cancelled'
	`, sessionID)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}

	return tx.Commit(ctx)
}

// RebookSession moves a session to a new appointment in one transaction.
// If the new slot loses the race to the unique index, the rollback
// restores the old appointment: the original booking is never lost.
func (r *PgRepository) RebookSession(ctx context.Context, oldAppointmentID uuid.UUID, newAppt Appointment, sess Session) (*Confirmation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reschedule: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', updated_at = now()
		WHERE id = $1 AND status = 'confirmed'
	`, oldAppointmentID)
	if err != nil {
		return nil, fmt.Errorf("release old appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, ErrAppointmentNotFound
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO appointments
			(id, practitioner_id, date, start_minute, end_minute, modality, session_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
	`, newAppt.ID, newAppt.PractitionerID, newAppt.Date.Time(), int(newAppt.Start), int(newAppt.End),
		string(newAppt.Modality), newAppt.SessionID, string(newAppt.Status)); err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, fmt.Errorf("insert new appointment: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions
		SET date = $2, start_minute = $3, status = 'confirmed', updated_at = now()
		WHERE id = $1
	`, sess.ID, sess.Date.Time(), int(sess.Start)); err != nil {
		return nil, fmt.Errorf("move session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reschedule: %w", err)
	}

	return &Confirmation{AppointmentID: newAppt.ID, SessionID: sess.ID}, nil
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, session_id, payload, created_at)
		VALUES ($1, $2, $3, COALESCE($4, now()))
	`, ev.EventType, ev.SessionID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
