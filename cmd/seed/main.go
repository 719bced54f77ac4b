package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/psiagenda/scheduling-service/internal/db"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	practitioners, err := seedPractitioners(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed practitioners: %v", err)
	}
	if err := seedTemplates(context.Background(), pool, practitioners); err != nil {
		log.Fatalf("seed templates: %v", err)
	}
	if err := seedExceptions(context.Background(), pool, practitioners); err != nil {
		log.Fatalf("seed exceptions: %v", err)
	}
	if err := seedBookings(context.Background(), pool, practitioners); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedPractitioners(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d practitioners", count)

	specialties := []string{
		"Clinical Psychology",
		"Cognitive Behavioral Therapy",
		"Couples Therapy",
		"Child Psychology",
		"Neuropsychology",
		"Psychoanalysis",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO practitioners (id, name, specialty, active, created_at, updated_at)
			VALUES ($1, $2, $3, TRUE, now(), now())
		`, id, name, spec)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO scheduling_configs (practitioner_id, session_duration_minutes, buffer_minutes, timezone, updated_at)
			VALUES ($1, $2, $3, 'UTC', now())
		`, id, 60, []int{0, 10, 15}[gofakeit.Number(0, 2)])
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("practitioners seeded")
	return ids, nil
}

func seedTemplates(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID) error {
	log.Printf("seeding weekly templates for %d practitioners", len(practitioners))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pid := range practitioners {
		// Weekday mornings plus a few afternoons, Monday through Friday.
		for weekday := 1; weekday <= 5; weekday++ {
			_, err := tx.Exec(ctx, `
				INSERT INTO weekly_template_entries
					(id, practitioner_id, weekday, start_minute, end_minute, modalities, active, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, TRUE, now())
			`, uuid.New(), pid, weekday, 9*60, 12*60, []string{"online", "in_person"})
			if err != nil {
				return err
			}

			if gofakeit.Bool() {
				_, err := tx.Exec(ctx, `
					INSERT INTO weekly_template_entries
						(id, practitioner_id, weekday, start_minute, end_minute, modalities, active, created_at)
					VALUES ($1, $2, $3, $4, $5, $6, TRUE, now())
				`, uuid.New(), pid, weekday, 14*60, 18*60, []string{"online"})
				if err != nil {
					return err
				}
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("weekly templates seeded")
	return nil
}

func seedExceptions(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID) error {
	log.Println("seeding day exceptions")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := schedule.DateOf(time.Now().UTC())
	for _, pid := range practitioners {
		// Roughly a third of practitioners block a day in the next two weeks.
		if gofakeit.Number(0, 2) != 0 {
			continue
		}

		day := today
		for i := 0; i < gofakeit.Number(1, 13); i++ {
			day = day.Next()
		}

		if gofakeit.Bool() {
			_, err := tx.Exec(ctx, `
				INSERT INTO day_exceptions (practitioner_id, date, kind, reason, created_at)
				VALUES ($1, $2, 'blocked', $3, now())
			`, pid, day.Time(), "personal leave")
			if err != nil {
				return err
			}
		} else {
			_, err := tx.Exec(ctx, `
				INSERT INTO day_exceptions
					(practitioner_id, date, kind, start_minute, end_minute, modalities, reason, created_at)
				VALUES ($1, $2, 'special_hours', $3, $4, $5, $6, now())
			`, pid, day.Time(), 10*60, 13*60, []string{"online"}, "reduced hours")
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("day exceptions seeded")
	return nil
}

func seedBookings(ctx context.Context, pool *pgxpool.Pool, practitioners []uuid.UUID) error {
	log.Println("seeding confirmed bookings")

	const duration = 60

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	today := schedule.DateOf(time.Now().UTC())
	for _, pid := range practitioners {
		day := today
		for i := 0; i < gofakeit.Number(2, 7); i++ {
			day = day.Next()
		}
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}

		// Morning block starts on the hour, so these land on the slot grid.
		start := (9 + gofakeit.Number(0, 2)) * 60
		modality := "online"
		if gofakeit.Bool() {
			modality = "in_person"
		}

		sessionID := uuid.New()
		_, err := tx.Exec(ctx, `
			INSERT INTO sessions
				(id, practitioner_id, date, start_minute, modality,
				 patient_name, patient_email, patient_phone, specialty, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, '', 'confirmed', now(), now())
		`, sessionID, pid, day.Time(), start, modality,
			gofakeit.Name(), gofakeit.Email(), gofakeit.Phone())
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO appointments
				(id, practitioner_id, date, start_minute, end_minute, modality, session_id, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'confirmed', now(), now())
		`, uuid.New(), pid, day.Time(), start, start+duration, modality, sessionID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("confirmed bookings seeded")
	return nil
}
