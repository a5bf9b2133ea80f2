package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/praxisbook/booking/internal/availability"
	"github.com/praxisbook/booking/internal/booking"
	"github.com/praxisbook/booking/internal/feed"
)

// SlotService serves the availability grid.
type SlotService interface {
	Slots(ctx context.Context, from, to time.Time) ([]availability.Slot, error)
}

// PairSearch runs the widening adjacent-pair search for hour-long kinds.
type PairSearch interface {
	FindAdjacentPair(ctx context.Context, reason string, from time.Time) (time.Time, error)
	Reset(reason string)
}

// BookingService is the booking lifecycle surface.
type BookingService interface {
	Submit(ctx context.Context, req booking.SubmitRequest) (*booking.Booking, error)
	Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	List(ctx context.Context, f booking.ListFilter) ([]booking.Booking, error)
	Approve(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	Reject(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	RequestCancellation(ctx context.Context, id uuid.UUID) (*booking.Booking, error)
	RequestReschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*booking.Booking, error)
	Fail(ctx context.Context, id uuid.UUID, reason string) (*booking.Booking, error)
}

const defaultGridDays = 14

func listSlotsHandler(svc SlotService, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().In(loc)
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		to := from.AddDate(0, 0, defaultGridDays)

		var err error
		if v := r.URL.Query().Get("from"); v != "" {
			from, err = time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			to = from.AddDate(0, 0, defaultGridDays)
		}
		if v := r.URL.Query().Get("to"); v != "" {
			to, err = time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}
		if !from.Before(to) {
			writeError(w, http.StatusBadRequest, "invalid_range", "from must precede to")
			return
		}

		slots, err := svc.Slots(r.Context(), from, to)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		// The generator only groups by day; the API promises chronological
		// order.
		sort.Slice(slots, func(i, j int) bool { return slots[i].Start.Before(slots[j].Start) })

		writeJSON(w, http.StatusOK, SlotListResponse{Slots: slots})
	}
}

func searchPairHandler(search PairSearch, loc *time.Location) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		kind := r.URL.Query().Get("kind")
		if kind == "" {
			writeError(w, http.StatusBadRequest, "missing_kind", "kind query parameter is required")
			return
		}

		now := time.Now().In(loc)
		from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
		if v := r.URL.Query().Get("from"); v != "" {
			var err error
			from, err = time.ParseInLocation("2006-01-02", v, loc)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
		}

		start, err := search.FindAdjacentPair(r.Context(), kind, from)
		if err != nil {
			handleAvailabilityError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, SearchResponse{Start: start})
	}
}

func createBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.Submit(r.Context(), booking.SubmitRequest{
			PatientName:  req.PatientName,
			PatientEmail: req.PatientEmail,
			PatientPhone: req.PatientPhone,
			Date:         req.Date,
			StartTime:    req.StartTime,
			Kind:         booking.Kind(req.Kind),
			Mode:         booking.Mode(req.Mode),
			Metadata:     req.Metadata,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseBookingID(w, r)
		if !ok {
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func listBookingsHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		f := booking.ListFilter{
			FromDate: q.Get("from"),
			ToDate:   q.Get("to"),
		}
		for _, s := range q["status"] {
			f.Statuses = append(f.Statuses, booking.Status(s))
		}

		bookings, err := svc.List(r.Context(), f)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		resp := BookingListResponse{Bookings: make([]BookingResponse, 0, len(bookings))}
		for i := range bookings {
			resp.Bookings = append(resp.Bookings, toBookingResponse(&bookings[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// transitionHandler wraps the single-argument lifecycle actions.
func transitionHandler(action func(ctx context.Context, id uuid.UUID) (*booking.Booking, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseBookingID(w, r)
		if !ok {
			return
		}

		b, err := action(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func rescheduleBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseBookingID(w, r)
		if !ok {
			return
		}

		var req RescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.RequestReschedule(r.Context(), id, req.Date, req.StartTime)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func failBookingHandler(svc BookingService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseBookingID(w, r)
		if !ok {
			return
		}

		var req FailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		b, err := svc.Fail(r.Context(), id, req.Reason)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func parseBookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleAvailabilityError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, availability.ErrNoSlotsInRange):
		writeError(w, http.StatusNotFound, "no_slots_in_range", err.Error())
	case errors.Is(err, feed.ErrFeedUnavailable):
		writeError(w, http.StatusServiceUnavailable, "calendar_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrInvalidInput):
		writeError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "slot just taken, please pick another")
	case errors.Is(err, booking.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "slot just taken, please pick another")
	case errors.Is(err, booking.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, booking.ErrPracticeSync):
		writeError(w, http.StatusBadGateway, "practice_sync_failed", err.Error())
	case errors.Is(err, feed.ErrFeedUnavailable):
		writeError(w, http.StatusServiceUnavailable, "calendar_unavailable", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
