package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type RouterConfig struct {
	Slots    SlotService
	Search   PairSearch
	Bookings BookingService
	Practice PracticeDirectory
	Location *time.Location
	PgPool   *pgxpool.Pool
	Redis    *redis.Client
	Log      zerolog.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Log))

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/availability", listSlotsHandler(cfg.Slots, cfg.Location))
	r.Get("/availability/search", searchPairHandler(cfg.Search, cfg.Location))

	r.Post("/bookings", createBookingHandler(cfg.Bookings))
	r.Get("/bookings", listBookingsHandler(cfg.Bookings))
	r.Get("/bookings/{id}", getBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/cancel", transitionHandler(cfg.Bookings.RequestCancellation))
	r.Post("/bookings/{id}/reschedule", rescheduleBookingHandler(cfg.Bookings))
	r.Post("/bookings/{id}/approve", transitionHandler(cfg.Bookings.Approve))
	r.Post("/bookings/{id}/reject", transitionHandler(cfg.Bookings.Reject))
	r.Post("/bookings/{id}/fail", failBookingHandler(cfg.Bookings))

	if cfg.Practice != nil {
		r.Post("/practice/customers/lookup", customerLookupHandler(cfg.Practice))
		r.Get("/practice/providers", listProvidersHandler(cfg.Practice))
		r.Get("/practice/providers/{id}", getProviderHandler(cfg.Practice))
		r.Get("/practice/treater", treaterLookupHandler(cfg.Practice))
	}

	return r
}
