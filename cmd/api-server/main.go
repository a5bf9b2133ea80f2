package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/api"
	"github.com/praxisbook/booking/internal/availability"
	"github.com/praxisbook/booking/internal/booking"
	"github.com/praxisbook/booking/internal/config"
	"github.com/praxisbook/booking/internal/db"
	"github.com/praxisbook/booking/internal/feed"
	"github.com/praxisbook/booking/internal/practice"
	redisclient "github.com/praxisbook/booking/internal/redis"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr)
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	log := newLogger(cfg.Env).With().Str("service", "api-server").Logger()
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	// Redis is optional; without it the feed cache lives in process memory.
	var rdb *redis.Client
	var feedCache feed.Cache
	if cfg.RedisAddr != "" {
		rdb, err = redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
		if err != nil {
			log.Fatal().Err(err).Msg("redis connection error")
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing redis")
			}
		}()
		feedCache = feed.NewRedisCache(rdb, cfg.FeedCacheTTL)
		log.Info().Msg("connected to Redis")
	} else {
		feedCache = feed.NewMemoryCache(cfg.FeedCacheTTL, nil)
		log.Info().Msg("redis disabled, using in-memory feed cache")
	}

	fetcher := feed.NewFetcher(cfg.FeedURL, cfg.FeedTimeout, cfg.FeedRetries, cfg.FeedBackoff, log)
	source := feed.NewSource(fetcher, feedCache, cfg.FeedURL, log)

	repo := booking.NewPgRepository(pgPool)

	slotSvc := availability.NewService(source, repo, log)
	checker := availability.NewChecker(source)
	search := availability.NewSearch(slotSvc)

	var practiceSync booking.PracticeSync
	var directory api.PracticeDirectory
	if cfg.PracticeBaseURL != "" {
		client := practice.NewClient(cfg.PracticeBaseURL, cfg.PracticeUser, cfg.PracticePass, log)
		practiceSync = practice.NewBookingSync(client)
		directory = client
	} else {
		log.Warn().Msg("practice API not configured, bookings will not be pushed upstream")
	}

	bookingSvc := booking.NewService(repo, checker, practiceSync, booking.Config{
		ReviewRequired: cfg.ReviewRequired,
		Location:       time.Local,
	}, log)

	router := api.NewRouter(api.RouterConfig{
		Slots:    slotSvc,
		Search:   search,
		Bookings: bookingSvc,
		Practice: directory,
		Location: time.Local,
		PgPool:   pgPool,
		Redis:    rdb,
		Log:      log,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		log.Fatal().Err(err).Msg("http server error")
	case <-rootCtx.Done():
	}

	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "dev" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}
