package booking

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psiagenda/scheduling-service/internal/config"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

// fakeRepo is an in-memory Repository. Its CreateAppointmentAndSession
// enforces the same slot-uniqueness rule as the partial unique index in
// Postgres.
type fakeRepo struct {
	mu sync.Mutex

	practitioners map[uuid.UUID]Practitioner
	templates     map[uuid.UUID][]schedule.WeeklyTemplateEntry
	exceptions    map[uuid.UUID][]schedule.DayException
	configs       map[uuid.UUID]schedule.Config
	appointments  map[uuid.UUID]Appointment
	sessions      map[uuid.UUID]Session
	events        []EventLog
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		practitioners: make(map[uuid.UUID]Practitioner),
		templates:     make(map[uuid.UUID][]schedule.WeeklyTemplateEntry),
		exceptions:    make(map[uuid.UUID][]schedule.DayException),
		configs:       make(map[uuid.UUID]schedule.Config),
		appointments:  make(map[uuid.UUID]Appointment),
		sessions:      make(map[uuid.UUID]Session),
	}
}

func (f *fakeRepo) GetPractitioner(_ context.Context, id uuid.UUID) (*Practitioner, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.practitioners[id]
	if !ok {
		return nil, ErrPractitionerNotFound
	}
	return &p, nil
}

func (f *fakeRepo) GetWeeklyTemplate(_ context.Context, practitionerID uuid.UUID) ([]schedule.WeeklyTemplateEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]schedule.WeeklyTemplateEntry(nil), f.templates[practitionerID]...), nil
}

func (f *fakeRepo) ReplaceWeeklyTemplate(_ context.Context, practitionerID uuid.UUID, entries []schedule.WeeklyTemplateEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.templates[practitionerID] = append([]schedule.WeeklyTemplateEntry(nil), entries...)
	return nil
}

func (f *fakeRepo) GetExceptions(_ context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]schedule.DayException, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []schedule.DayException
	for _, ex := range f.exceptions[practitionerID] {
		if !ex.Date.Before(from) && !ex.Date.After(to) {
			out = append(out, ex)
		}
	}
	return out, nil
}

func (f *fakeRepo) GetConfig(_ context.Context, practitionerID uuid.UUID) (schedule.Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cfg, ok := f.configs[practitionerID]
	if !ok {
		return schedule.Config{}, ErrConfigNotFound
	}
	return cfg, nil
}

func (f *fakeRepo) GetConfirmedAppointments(_ context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Appointment
	for _, a := range f.appointments {
		if a.PractitionerID == practitionerID && a.Status == AppointmentConfirmed &&
			!a.Date.Before(from) && !a.Date.After(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeRepo) slotOccupiedLocked(practitionerID uuid.UUID, date schedule.Date, start schedule.TimeOfDay) bool {
	for _, a := range f.appointments {
		if a.PractitionerID == practitionerID && a.Status == AppointmentConfirmed &&
			a.Date == date && a.Start == start {
			return true
		}
	}
	return false
}

func (f *fakeRepo) CreateAppointmentAndSession(_ context.Context, appt Appointment, sess Session) (*Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.slotOccupiedLocked(appt.PractitionerID, appt.Date, appt.Start) {
		return nil, ErrSlotTaken
	}
	f.appointments[appt.ID] = appt
	f.sessions[sess.ID] = sess
	return &Confirmation{AppointmentID: appt.ID, SessionID: sess.ID}, nil
}

func (f *fakeRepo) GetSession(_ context.Context, id uuid.UUID) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return &s, nil
}

func (f *fakeRepo) GetAppointmentBySession(_ context.Context, sessionID uuid.UUID) (*Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.appointments {
		if a.SessionID == sessionID && a.Status == AppointmentConfirmed {
			cp := a
			return &cp, nil
		}
	}
	return nil, ErrAppointmentNotFound
}

func (f *fakeRepo) ListSessions(_ context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.sessions {
		if s.PractitionerID == practitionerID && !s.Date.Before(from) && !s.Date.After(to) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeRepo) CancelAppointmentAndSession(_ context.Context, appointmentID, sessionID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.appointments[appointmentID]
	if !ok || a.Status != AppointmentConfirmed {
		return ErrAppointmentNotFound
	}
	s, ok := f.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	a.Status = AppointmentCancelled
	s.Status = SessionCancelled
	f.appointments[appointmentID] = a
	f.sessions[sessionID] = s
	return nil
}

func (f *fakeRepo) RebookSession(_ context.Context, oldAppointmentID uuid.UUID, newAppt Appointment, sess Session) (*Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	old, ok := f.appointments[oldAppointmentID]
	if !ok || old.Status != AppointmentConfirmed {
		return nil, ErrAppointmentNotFound
	}
	// Simulates the transactional variant: check uniqueness before any
	// mutation so failure leaves the old booking intact.
	if f.slotOccupiedLocked(newAppt.PractitionerID, newAppt.Date, newAppt.Start) {
		return nil, ErrSlotTaken
	}
	old.Status = AppointmentCancelled
	f.appointments[oldAppointmentID] = old
	f.appointments[newAppt.ID] = newAppt
	f.sessions[sess.ID] = sess
	return &Confirmation{AppointmentID: newAppt.ID, SessionID: sess.ID}, nil
}

func (f *fakeRepo) InsertEvent(_ context.Context, ev EventLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

// fakeLocker serializes critical sections with real in-process mutexes so
// the concurrency test exercises genuine lock-then-check behavior.
type fakeLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *fakeLocker) WithBookingLock(ctx context.Context, practitionerID uuid.UUID, date string, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s:%s", practitionerID, date)
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

// Fixtures

var testNow = time.Date(2026, time.March, 9, 8, 0, 0, 0, time.UTC) // Monday 08:00 UTC

func testService(t *testing.T) (*Service, *fakeRepo, uuid.UUID) {
	t.Helper()

	repo := newFakeRepo()
	practitionerID := uuid.New()
	repo.practitioners[practitionerID] = Practitioner{
		ID:        practitionerID,
		Name:      "Dr. Marina Costa",
		Specialty: "Clinical Psychology",
		Active:    true,
	}
	repo.configs[practitionerID] = schedule.Config{
		SessionDurationMinutes: 60,
		BufferMinutes:          0,
		Timezone:               "UTC",
	}
	repo.templates[practitionerID] = []schedule.WeeklyTemplateEntry{
		{
			PractitionerID: practitionerID,
			Weekday:        time.Monday,
			Start:          540, // 09:00
			End:            720, // 12:00
			Modalities:     schedule.AllModalities,
			Active:         true,
		},
		{
			PractitionerID: practitionerID,
			Weekday:        time.Monday,
			Start:          840,  // 14:00
			End:            1080, // 18:00
			Modalities:     []schedule.Modality{schedule.ModalityOnline},
			Active:         true,
		},
	}

	svc := NewService(repo, newFakeLocker(), config.Config{LeadTime: 6 * time.Hour}, nil)
	svc.now = func() time.Time { return testNow }

	return svc, repo, practitionerID
}

func bookingFor(practitionerID uuid.UUID, date, start string, modality schedule.Modality) BookingRequest {
	d, _ := schedule.ParseDate(date)
	tod, _ := schedule.ParseTimeOfDay(start)
	return BookingRequest{
		PractitionerID: practitionerID,
		Date:           d,
		Start:          tod,
		Modality:       modality,
		Patient:        Patient{Name: "Ana Lima", Email: "ana@example.com", Phone: "+55 11 99999-0000"},
		Specialty:      "anxiety",
	}
}

// Tests

func TestBookHappyPath(t *testing.T) {
	svc, repo, practitionerID := testService(t)

	conf, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)
	require.NotNil(t, conf)

	sess, err := svc.GetSession(context.Background(), conf.SessionID)
	require.NoError(t, err)
	assert.Equal(t, SessionConfirmed, sess.Status)
	assert.Equal(t, "15:00", sess.Start.String())
	assert.Equal(t, "Ana Lima", sess.Patient.Name)

	appt := repo.appointments[conf.AppointmentID]
	assert.Equal(t, AppointmentConfirmed, appt.Status)
	assert.Equal(t, conf.SessionID, appt.SessionID)

	require.NotEmpty(t, repo.events)
	assert.Equal(t, EventBookingConfirmed, repo.events[len(repo.events)-1].EventType)
}

func TestBookSlotTaken(t *testing.T) {
	svc, _, practitionerID := testService(t)

	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	_, err = svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestBookInsufficientLeadTime(t *testing.T) {
	svc, _, practitionerID := testService(t)

	// 11:00 is three hours from the fixed clock (Monday 08:00); the
	// minimum notice is six hours.
	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "11:00", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrInsufficientLeadTime)

	// 14:00 is exactly six hours out and books fine.
	_, err = svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "14:00", schedule.ModalityOnline))
	assert.NoError(t, err)
}

func TestBookInvalidModality(t *testing.T) {
	svc, _, practitionerID := testService(t)

	// The Monday afternoon interval is online-only.
	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityInPerson))
	assert.ErrorIs(t, err, ErrInvalidModality)

	_, err = svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.Modality("carrier_pigeon")))
	assert.ErrorIs(t, err, ErrInvalidModality)
}

func TestBookOffGridTime(t *testing.T) {
	svc, _, practitionerID := testService(t)

	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:30", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestBookUnknownPractitioner(t *testing.T) {
	svc, _, _ := testService(t)

	_, err := svc.Book(context.Background(), bookingFor(uuid.New(), "2026-03-09", "15:00", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrPractitionerNotFound)
}

func TestBookInactivePractitioner(t *testing.T) {
	svc, repo, practitionerID := testService(t)

	p := repo.practitioners[practitionerID]
	p.Active = false
	repo.practitioners[practitionerID] = p

	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrPractitionerInactive)
}

func TestBookBlockedDay(t *testing.T) {
	svc, repo, practitionerID := testService(t)

	d, _ := schedule.ParseDate("2026-03-09")
	repo.exceptions[practitionerID] = []schedule.DayException{{
		PractitionerID: practitionerID,
		Date:           d,
		Kind:           schedule.ExceptionBlocked,
		Reason:         "congress",
	}}

	_, err := svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	svc, _, practitionerID := testService(t)

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Book(context.Background(), bookingFor(practitionerID, "2026-03-09", "16:00", schedule.ModalityOnline))
		}(i)
	}
	wg.Wait()

	wins, taken := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, ErrSlotTaken):
			taken++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, taken)
}

func TestQueryAvailabilityReflectsBookings(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	from, _ := schedule.ParseDate("2026-03-09")
	to, _ := schedule.ParseDate("2026-03-09")

	before, err := svc.QueryAvailability(ctx, practitionerID, from, to)
	require.NoError(t, err)
	require.Len(t, before, 1)
	require.Len(t, before[0].Slots, 7) // 09,10,11 morning + 14,15,16,17 afternoon

	for _, s := range before[0].Slots {
		assert.True(t, s.Available)
	}

	_, err = svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	after, err := svc.QueryAvailability(ctx, practitionerID, from, to)
	require.NoError(t, err)
	for _, s := range after[0].Slots {
		if s.Start.String() == "15:00" {
			assert.False(t, s.Available)
		} else {
			assert.True(t, s.Available)
		}
	}
}

func TestQueryAvailabilityIdempotent(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	from, _ := schedule.ParseDate("2026-03-09")
	to, _ := schedule.ParseDate("2026-03-15")

	first, err := svc.QueryAvailability(ctx, practitionerID, from, to)
	require.NoError(t, err)
	second, err := svc.QueryAvailability(ctx, practitionerID, from, to)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestQueryAvailabilityDefaultConfig(t *testing.T) {
	svc, repo, practitionerID := testService(t)
	delete(repo.configs, practitionerID)

	from, _ := schedule.ParseDate("2026-03-09")
	days, err := svc.QueryAvailability(context.Background(), practitionerID, from, from)
	require.NoError(t, err)
	require.Len(t, days, 1)

	// Default 60+15 spacing: 09:00, 10:15 in the morning block; 14:00,
	// 15:15, 16:30 in the afternoon block.
	require.Len(t, days[0].Slots, 5)
	assert.Equal(t, "10:15", days[0].Slots[1].Start.String())
}

func TestCancelFreesSlot(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, conf.SessionID))

	sess, err := svc.GetSession(ctx, conf.SessionID)
	require.NoError(t, err)
	assert.Equal(t, SessionCancelled, sess.Status)

	from, _ := schedule.ParseDate("2026-03-09")
	days, err := svc.QueryAvailability(ctx, practitionerID, from, from)
	require.NoError(t, err)
	for _, s := range days[0].Slots {
		assert.True(t, s.Available, "slot %s should be free after cancel", s.Start)
	}

	// A freed slot can be booked again.
	_, err = svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	assert.NoError(t, err)
}

func TestCancelTwiceRejected(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, conf.SessionID))
	assert.ErrorIs(t, svc.Cancel(ctx, conf.SessionID), ErrSessionNotCancellable)
}

func TestRescheduleMovesBooking(t *testing.T) {
	svc, repo, practitionerID := testService(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	newDate, _ := schedule.ParseDate("2026-03-09")
	newStart, _ := schedule.ParseTimeOfDay("17:00")

	moved, err := svc.Reschedule(ctx, conf.SessionID, newDate, newStart)
	require.NoError(t, err)
	assert.Equal(t, conf.SessionID, moved.SessionID)
	assert.NotEqual(t, conf.AppointmentID, moved.AppointmentID)

	sess, err := svc.GetSession(ctx, conf.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "17:00", sess.Start.String())
	assert.Equal(t, SessionConfirmed, sess.Status)

	// Old appointment released, old slot free again.
	assert.Equal(t, AppointmentCancelled, repo.appointments[conf.AppointmentID].Status)

	from, _ := schedule.ParseDate("2026-03-09")
	days, err := svc.QueryAvailability(ctx, practitionerID, from, from)
	require.NoError(t, err)
	for _, s := range days[0].Slots {
		switch s.Start.String() {
		case "15:00":
			assert.True(t, s.Available)
		case "17:00":
			assert.False(t, s.Available)
		}
	}
}

func TestRescheduleToTakenSlotKeepsOriginal(t *testing.T) {
	svc, repo, practitionerID := testService(t)
	ctx := context.Background()

	first, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)
	second, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "16:00", schedule.ModalityOnline))
	require.NoError(t, err)

	newDate, _ := schedule.ParseDate("2026-03-09")
	newStart, _ := schedule.ParseTimeOfDay("16:00")

	_, err = svc.Reschedule(ctx, first.SessionID, newDate, newStart)
	assert.ErrorIs(t, err, ErrSlotTaken)

	// Reserve-before-release: the original booking survives the failed move.
	assert.Equal(t, AppointmentConfirmed, repo.appointments[first.AppointmentID].Status)
	sess, err := svc.GetSession(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "15:00", sess.Start.String())
	assert.Equal(t, SessionConfirmed, sess.Status)

	_ = second
}

func TestRescheduleOntoOwnSlot(t *testing.T) {
	// Moving a booking within its own window must not conflict with
	// itself.
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)

	newDate, _ := schedule.ParseDate("2026-03-09")
	sameStart, _ := schedule.ParseTimeOfDay("15:00")

	moved, err := svc.Reschedule(ctx, conf.SessionID, newDate, sameStart)
	require.NoError(t, err)
	assert.Equal(t, conf.SessionID, moved.SessionID)
}

func TestRescheduleCancelledSession(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	conf, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, conf.SessionID))

	newDate, _ := schedule.ParseDate("2026-03-09")
	newStart, _ := schedule.ParseTimeOfDay("17:00")
	_, err = svc.Reschedule(ctx, conf.SessionID, newDate, newStart)
	assert.ErrorIs(t, err, ErrSessionNotCancellable)
}

func TestSaveWeeklyTemplateRejectsInvalid(t *testing.T) {
	svc, repo, practitionerID := testService(t)
	original := repo.templates[practitionerID]

	invalid := []schedule.WeeklyTemplateEntry{
		{Weekday: time.Monday, Start: 540, End: 720, Active: true, Modalities: schedule.AllModalities},
		{Weekday: time.Monday, Start: 660, End: 840, Active: true, Modalities: schedule.AllModalities},
	}

	result, err := svc.SaveWeeklyTemplate(context.Background(), practitionerID, invalid)
	assert.ErrorIs(t, err, ErrInvalidTemplate)
	assert.False(t, result.Valid())

	// Nothing written.
	assert.Equal(t, original, repo.templates[practitionerID])
}

func TestSaveWeeklyTemplateReplacesAll(t *testing.T) {
	svc, repo, practitionerID := testService(t)

	next := []schedule.WeeklyTemplateEntry{
		{Weekday: time.Wednesday, Start: 600, End: 900, Active: true, Modalities: schedule.AllModalities},
	}

	result, err := svc.SaveWeeklyTemplate(context.Background(), practitionerID, next)
	require.NoError(t, err)
	assert.True(t, result.Valid())
	assert.Equal(t, next, repo.templates[practitionerID])
}

func TestValidateTemplateDraftPassthrough(t *testing.T) {
	svc, _, _ := testService(t)

	result := svc.ValidateTemplateDraft(nil)
	require.False(t, result.Valid())
	assert.Equal(t, schedule.IssueEmptyTemplate, result.Issues[0].Code)
}

func TestListSessions(t *testing.T) {
	svc, _, practitionerID := testService(t)
	ctx := context.Background()

	_, err := svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "15:00", schedule.ModalityOnline))
	require.NoError(t, err)
	_, err = svc.Book(ctx, bookingFor(practitionerID, "2026-03-09", "16:00", schedule.ModalityOnline))
	require.NoError(t, err)

	from, _ := schedule.ParseDate("2026-03-09")
	to, _ := schedule.ParseDate("2026-03-15")
	sessions, err := svc.ListSessions(ctx, practitionerID, from, to)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}
