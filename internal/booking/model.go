package booking

import (
	"time"

	"github.com/google/uuid"
)

// Status is the booking lifecycle state. Transitions are one-directional
// except for the two admin-review request states, which can be rejected back
// to scheduled.
type Status string

const (
	StatusScheduled           Status = "scheduled"
	StatusPendingReview       Status = "pending_review"
	StatusPendingCancellation Status = "pending_cancellation"
	StatusPendingReschedule   Status = "pending_reschedule"
	StatusCancelled           Status = "cancelled"
	StatusCompleted           Status = "completed"
	StatusFailed              Status = "failed"
)

// ActiveStatuses are the states that occupy a slot. Cancelled, completed and
// failed bookings do not block availability.
var ActiveStatuses = []Status{
	StatusScheduled,
	StatusPendingReview,
	StatusPendingCancellation,
	StatusPendingReschedule,
}

// transitions is the closed set of allowed current->next pairs, validated at
// the boundary where a transition is requested.
var transitions = map[Status][]Status{
	StatusPendingReview:       {StatusScheduled, StatusCancelled, StatusFailed},
	StatusScheduled:           {StatusPendingCancellation, StatusPendingReschedule, StatusCompleted, StatusFailed},
	StatusPendingCancellation: {StatusCancelled, StatusScheduled},
	StatusPendingReschedule:   {StatusScheduled},
	// cancelled, completed and failed are terminal.
}

// CanTransition reports whether from -> to is an allowed lifecycle step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusPendingReview, StatusPendingCancellation,
		StatusPendingReschedule, StatusCancelled, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

func (s Status) Active() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// Kind is the appointment type. Double sessions need two adjacent grid slots.
type Kind string

const (
	KindIntake        Kind = "intake"
	KindSession       Kind = "session"
	KindDoubleSession Kind = "double_session"
)

func (k Kind) Valid() bool {
	switch k {
	case KindIntake, KindSession, KindDoubleSession:
		return true
	}
	return false
}

// DurationMinutes is the grid time a kind occupies.
func (k Kind) DurationMinutes() int {
	if k == KindDoubleSession {
		return 60
	}
	return 30
}

// Mode is how the session is held.
type Mode string

const (
	ModeInPerson Mode = "in_person"
	ModeVideo    Mode = "video"
)

func (m Mode) Valid() bool {
	return m == ModeInPerson || m == ModeVideo
}

// Booking is a locally created appointment record. Date and StartTime are
// stored as the practice-local calendar pair that the availability grid is
// keyed on.
type Booking struct {
	ID              uuid.UUID
	PatientName     string
	PatientEmail    string
	PatientPhone    string
	Date            string // 2006-01-02
	StartTime       string // 15:04
	DurationMinutes int
	Kind            Kind
	Mode            Mode
	Status          Status
	Metadata        map[string]string
	ExternalRef     *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Start resolves the stored (date, time) pair into an instant in loc.
func (b *Booking) Start(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", b.Date+" "+b.StartTime, loc)
}

// End is Start plus the booked duration.
func (b *Booking) End(loc *time.Location) (time.Time, error) {
	start, err := b.Start(loc)
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(time.Duration(b.DurationMinutes) * time.Minute), nil
}
