package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/availability"
)

var (
	ErrInvalidInput = errors.New("invalid booking input")
	// ErrSlotUnavailable is the pre-commit conflict check failing: the slot
	// was taken between display and submission.
	ErrSlotUnavailable         = errors.New("slot no longer available")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	// ErrPracticeSync means the upstream practice-management write failed.
	// The local state is left unchanged so the admin can retry.
	ErrPracticeSync = errors.New("practice system sync failed")
)

// ConflictChecker re-verifies a slot against a fresh feed snapshot right
// before the insert. Satisfied by *availability.Checker.
type ConflictChecker interface {
	SlotStillFree(ctx context.Context, start time.Time, duration time.Duration) (bool, error)
}

// PracticeSync pushes approved bookings into the practice-management system
// and reports its appointment reference.
type PracticeSync interface {
	CreateAppointment(ctx context.Context, b *Booking) (ref string, err error)
}

type Config struct {
	// ReviewRequired routes new bookings through pending_review instead of
	// scheduling them directly.
	ReviewRequired bool
	// Location is the practice timezone used to resolve (date, time) pairs.
	Location *time.Location
}

type Service struct {
	repo     Repository
	checker  ConflictChecker
	practice PracticeSync
	cfg      Config
	log      zerolog.Logger
}

func NewService(repo Repository, checker ConflictChecker, practice PracticeSync, cfg Config, log zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Service{
		repo:     repo,
		checker:  checker,
		practice: practice,
		cfg:      cfg,
		log:      log,
	}
}

type SubmitRequest struct {
	PatientName  string
	PatientEmail string
	PatientPhone string
	Date         string // 2006-01-02
	StartTime    string // 15:04
	Kind         Kind
	Mode         Mode
	Metadata     map[string]string
}

// Submit creates a booking for a displayed slot. The conflict checker runs
// against a fresh feed snapshot first; the store's uniqueness constraint is
// the final arbiter for races it cannot see.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*Booking, error) {
	start, err := s.validateSubmit(req)
	if err != nil {
		return nil, err
	}

	duration := time.Duration(req.Kind.DurationMinutes()) * time.Minute
	free, err := s.checker.SlotStillFree(ctx, start, duration)
	if err != nil {
		return nil, fmt.Errorf("conflict check: %w", err)
	}
	if !free {
		return nil, ErrSlotUnavailable
	}

	status := StatusScheduled
	if s.cfg.ReviewRequired {
		status = StatusPendingReview
	}

	created, err := s.repo.Create(ctx, &Booking{
		PatientName:     req.PatientName,
		PatientEmail:    req.PatientEmail,
		PatientPhone:    req.PatientPhone,
		Date:            req.Date,
		StartTime:       req.StartTime,
		DurationMinutes: req.Kind.DurationMinutes(),
		Kind:            req.Kind,
		Mode:            req.Mode,
		Status:          status,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", created.ID.String()).
		Str("date", created.Date).
		Str("time", created.StartTime).
		Str("kind", string(created.Kind)).
		Str("status", string(created.Status)).
		Msg("booking submitted")

	return created, nil
}

func (s *Service) validateSubmit(req SubmitRequest) (time.Time, error) {
	if req.PatientName == "" || req.PatientEmail == "" {
		return time.Time{}, fmt.Errorf("%w: patient name and email are required", ErrInvalidInput)
	}
	if !req.Kind.Valid() {
		return time.Time{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidInput, req.Kind)
	}
	if !req.Mode.Valid() {
		return time.Time{}, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, req.Mode)
	}

	start, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.StartTime, s.cfg.Location)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date/time pair %q %q", ErrInvalidInput, req.Date, req.StartTime)
	}
	if !availability.OnGrid(start) {
		return time.Time{}, fmt.Errorf("%w: %s is outside the booking grid", ErrInvalidInput, start)
	}
	return start, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	for _, st := range f.Statuses {
		if !st.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, st)
		}
	}
	return s.repo.List(ctx, f)
}

// Approve resolves a pending admin-review state: a reviewed booking becomes
// scheduled (after being pushed upstream), a cancellation request is granted,
// a reschedule request is applied.
func (s *Service) Approve(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case StatusPendingReview:
		if err := s.pushToPractice(ctx, b); err != nil {
			return nil, err
		}
		return s.transition(ctx, b, StatusScheduled)

	case StatusPendingCancellation:
		return s.transition(ctx, b, StatusCancelled)

	case StatusPendingReschedule:
		newDate, newTime := b.Metadata["requested_date"], b.Metadata["requested_time"]
		if newDate != "" && newTime != "" {
			if err := s.repo.UpdateSchedule(ctx, b.ID, newDate, newTime); err != nil {
				return nil, fmt.Errorf("apply reschedule: %w", err)
			}
		}
		return s.transition(ctx, b, StatusScheduled)

	default:
		return nil, fmt.Errorf("%w: nothing to approve from %s", ErrInvalidStatusTransition, b.Status)
	}
}

// Reject resolves a pending state the other way: a reviewed booking is
// cancelled, cancellation/reschedule requests revert to scheduled.
func (s *Service) Reject(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	switch b.Status {
	case StatusPendingReview:
		return s.transition(ctx, b, StatusCancelled)
	case StatusPendingCancellation, StatusPendingReschedule:
		return s.transition(ctx, b, StatusScheduled)
	default:
		return nil, fmt.Errorf("%w: nothing to reject from %s", ErrInvalidStatusTransition, b.Status)
	}
}

// RequestCancellation marks a scheduled booking for admin review of a
// patient cancellation.
func (s *Service) RequestCancellation(ctx context.Context, id uuid.UUID) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.transition(ctx, b, StatusPendingCancellation)
}

// RequestReschedule records the desired new (date, time) pair and marks the
// booking for admin review.
func (s *Service) RequestReschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*Booking, error) {
	start, err := time.ParseInLocation("2006-01-02 15:04", newDate+" "+newTime, s.cfg.Location)
	if err != nil {
		return nil, fmt.Errorf("%w: bad date/time pair %q %q", ErrInvalidInput, newDate, newTime)
	}
	if !availability.OnGrid(start) {
		return nil, fmt.Errorf("%w: %s is outside the booking grid", ErrInvalidInput, start)
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	md := make(map[string]string, len(b.Metadata)+2)
	for k, v := range b.Metadata {
		md[k] = v
	}
	md["requested_date"] = newDate
	md["requested_time"] = newTime
	if err := s.repo.SetMetadata(ctx, b.ID, md); err != nil {
		return nil, fmt.Errorf("record reschedule request: %w", err)
	}

	return s.transition(ctx, b, StatusPendingReschedule)
}

// Fail marks a booking as failed, recording the reason.
func (s *Service) Fail(ctx context.Context, id uuid.UUID, reason string) (*Booking, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if reason != "" {
		md := make(map[string]string, len(b.Metadata)+1)
		for k, v := range b.Metadata {
			md[k] = v
		}
		md["failure_reason"] = reason
		if err := s.repo.SetMetadata(ctx, b.ID, md); err != nil {
			return nil, fmt.Errorf("record failure reason: %w", err)
		}
	}

	return s.transition(ctx, b, StatusFailed)
}

// CompleteElapsed moves scheduled bookings whose end time has passed to
// completed. Called periodically by the completion worker.
func (s *Service) CompleteElapsed(ctx context.Context) error {
	elapsed, err := s.repo.FindElapsedScheduled(ctx, time.Now().In(s.cfg.Location))
	if err != nil {
		return fmt.Errorf("find elapsed bookings: %w", err)
	}

	for _, b := range elapsed {
		if _, err := s.repo.UpdateStatus(ctx, b.ID, StatusScheduled, StatusCompleted); err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				continue // status moved under us, next sweep settles it
			}
			s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to complete booking")
		}
	}
	return nil
}

func (s *Service) transition(ctx context.Context, b *Booking, to Status) (*Booking, error) {
	if !CanTransition(b.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, b.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("booking_id", b.ID.String()).
		Str("from", string(b.Status)).
		Str("to", string(to)).
		Msg("booking status changed")

	return updated, nil
}

func (s *Service) pushToPractice(ctx context.Context, b *Booking) error {
	if s.practice == nil {
		return nil
	}
	if b.ExternalRef != nil {
		return nil // already synced by an earlier, partially failed approval
	}

	ref, err := s.practice.CreateAppointment(ctx, b)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPracticeSync, err)
	}
	if err := s.repo.SetExternalRef(ctx, b.ID, ref); err != nil {
		return fmt.Errorf("store practice reference: %w", err)
	}
	return nil
}
