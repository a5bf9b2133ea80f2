package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrBookingNotFound = errors.New("booking not found")
	// ErrSlotTaken is the store-level uniqueness rejection: another active
	// booking already holds the same (date, time) pair.
	ErrSlotTaken = errors.New("slot already booked")
)

// ListFilter narrows List queries. Zero values mean no constraint.
type ListFilter struct {
	FromDate string // inclusive, 2006-01-02
	ToDate   string // inclusive
	Statuses []Status
	Limit    int
	Offset   int
}

// Repository contains all DB interactions needed by the service and the
// availability pipeline.
type Repository interface {
	Create(ctx context.Context, b *Booking) (*Booking, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)
	List(ctx context.Context, f ListFilter) ([]Booking, error)

	// ListActiveStarts feeds the slot generator: start instants of all
	// active bookings in [from, to).
	ListActiveStarts(ctx context.Context, from, to time.Time) ([]time.Time, error)

	// UpdateStatus applies a guarded transition: the row is only updated
	// when its current status matches from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error)

	SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error
	SetMetadata(ctx context.Context, id uuid.UUID, metadata map[string]string) error

	// UpdateSchedule moves a booking to a new (date, time) pair, applied
	// when a reschedule request is approved.
	UpdateSchedule(ctx context.Context, id uuid.UUID, date, startTime string) error

	// FindElapsedScheduled returns scheduled bookings whose end time has
	// passed, for the completion worker.
	FindElapsedScheduled(ctx context.Context, now time.Time) ([]Booking, error)
}
