package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/praxisbook/booking/internal/booking"
	"github.com/praxisbook/booking/internal/db"
)

// seed fills the bookings table with plausible future appointments so the
// availability grid and the admin list have something to show in dev.
func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	count := 120
	if v := os.Getenv("SEED_COUNT"); v != "" {
		if _, err := fmt.Sscanf(v, "%d", &count); err != nil {
			log.Fatalf("invalid SEED_COUNT %q", v)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	repo := booking.NewPgRepository(pool)
	if err := seedBookings(ctx, repo, count); err != nil {
		log.Fatalf("seed bookings: %v", err)
	}

	log.Println("seed complete")
}

func seedBookings(ctx context.Context, repo booking.Repository, count int) error {
	log.Printf("seeding %d bookings", count)

	kinds := []booking.Kind{booking.KindIntake, booking.KindSession, booking.KindDoubleSession}
	modes := []booking.Mode{booking.ModeInPerson, booking.ModeVideo}

	created := 0
	attempts := 0
	for created < count && attempts < count*10 {
		attempts++

		start := randomGridStart()
		kind := kinds[gofakeit.Number(0, len(kinds)-1)]

		b := &booking.Booking{
			PatientName:     gofakeit.Name(),
			PatientEmail:    gofakeit.Email(),
			PatientPhone:    gofakeit.Phone(),
			Date:            start.Format("2006-01-02"),
			StartTime:       start.Format("15:04"),
			DurationMinutes: kind.DurationMinutes(),
			Kind:            kind,
			Mode:            modes[gofakeit.Number(0, len(modes)-1)],
			Status:          booking.StatusScheduled,
		}

		if _, err := repo.Create(ctx, b); err != nil {
			// Random picks collide with the scheduled-slot uniqueness
			// guarantee now and then; just roll again.
			if errors.Is(err, booking.ErrSlotTaken) {
				continue
			}
			return err
		}
		created++

		if created%50 == 0 {
			log.Printf("bookings seeded: %d/%d", created, count)
		}
	}

	log.Printf("bookings seeded: %d (in %d attempts)", created, attempts)
	return nil
}

// randomGridStart picks a slot-aligned start within the next 60 days:
// Monday to Saturday, on the half hour between 08:00 and 17:30.
func randomGridStart() time.Time {
	for {
		day := time.Now().AddDate(0, 0, gofakeit.Number(1, 60))
		if day.Weekday() == time.Sunday {
			continue
		}
		hour := gofakeit.Number(8, 17)
		minute := gofakeit.Number(0, 1) * 30
		return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, time.Local)
	}
}
