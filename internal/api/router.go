package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/psiagenda/scheduling-service/internal/booking"
	"github.com/psiagenda/scheduling-service/internal/schedule"
)

// BookingService is what the handlers need from the booking layer.
type BookingService interface {
	QueryAvailability(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]schedule.DayAvailability, error)
	ValidateTemplateDraft(entries []schedule.WeeklyTemplateEntry) schedule.ValidationResult
	SaveWeeklyTemplate(ctx context.Context, practitionerID uuid.UUID, entries []schedule.WeeklyTemplateEntry) (schedule.ValidationResult, error)
	Book(ctx context.Context, req booking.BookingRequest) (*booking.Confirmation, error)
	Cancel(ctx context.Context, sessionID uuid.UUID) error
	Reschedule(ctx context.Context, sessionID uuid.UUID, newDate schedule.Date, newStart schedule.TimeOfDay) (*booking.Confirmation, error)
	GetSession(ctx context.Context, id uuid.UUID) (*booking.Session, error)
	ListSessions(ctx context.Context, practitionerID uuid.UUID, from, to schedule.Date) ([]booking.Session, error)
}

type RouterConfig struct {
	Service BookingService
	PgPool  *pgxpool.Pool
	Redis   *redis.Client
	Logger  *zap.Logger
	Env     string
	Version string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/practitioners/{practitionerID}/availability", queryAvailabilityHandler(cfg.Service))
	r.Put("/practitioners/{practitionerID}/template", saveTemplateHandler(cfg.Service))
	r.Post("/practitioners/{practitionerID}/template/validate", validateTemplateHandler(cfg.Service))

	r.Post("/bookings", bookHandler(cfg.Service))

	r.Get("/sessions", listSessionsHandler(cfg.Service))
	r.Get("/sessions/{sessionID}", getSessionHandler(cfg.Service))
	r.Post("/sessions/{sessionID}/cancel", cancelSessionHandler(cfg.Service))
	r.Post("/sessions/{sessionID}/reschedule", rescheduleSessionHandler(cfg.Service))

	return r
}
