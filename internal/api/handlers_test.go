package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/praxisbook/booking/internal/availability"
	"github.com/praxisbook/booking/internal/booking"
	"github.com/praxisbook/booking/internal/feed"
)

type stubSlots struct {
	slots []availability.Slot
	err   error
}

func (s *stubSlots) Slots(ctx context.Context, from, to time.Time) ([]availability.Slot, error) {
	return s.slots, s.err
}

type stubSearch struct {
	start time.Time
	err   error
}

func (s *stubSearch) FindAdjacentPair(ctx context.Context, reason string, from time.Time) (time.Time, error) {
	return s.start, s.err
}

func (s *stubSearch) Reset(reason string) {}

type stubBookings struct {
	booking *booking.Booking
	err     error

	lastSubmit booking.SubmitRequest
}

func (s *stubBookings) Submit(ctx context.Context, req booking.SubmitRequest) (*booking.Booking, error) {
	s.lastSubmit = req
	return s.booking, s.err
}

func (s *stubBookings) Get(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) List(ctx context.Context, f booking.ListFilter) ([]booking.Booking, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.booking == nil {
		return nil, nil
	}
	return []booking.Booking{*s.booking}, nil
}

func (s *stubBookings) Approve(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) Reject(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) RequestCancellation(ctx context.Context, id uuid.UUID) (*booking.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) RequestReschedule(ctx context.Context, id uuid.UUID, newDate, newTime string) (*booking.Booking, error) {
	return s.booking, s.err
}

func (s *stubBookings) Fail(ctx context.Context, id uuid.UUID, reason string) (*booking.Booking, error) {
	return s.booking, s.err
}

func testRouter(t *testing.T, slots SlotService, search PairSearch, bookings BookingService) http.Handler {
	t.Helper()
	return NewRouter(RouterConfig{
		Slots:    slots,
		Search:   search,
		Bookings: bookings,
		Location: time.UTC,
		Log:      zerolog.Nop(),
	})
}

func sampleBooking() *booking.Booking {
	return &booking.Booking{
		ID:              uuid.New(),
		PatientName:     "Anna Muster",
		PatientEmail:    "anna@example.com",
		Date:            "2024-01-15",
		StartTime:       "10:00",
		DurationMinutes: 30,
		Kind:            booking.KindSession,
		Mode:            booking.ModeInPerson,
		Status:          booking.StatusScheduled,
	}
}

func TestListSlots(t *testing.T) {
	start := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	svc := &stubSlots{slots: []availability.Slot{
		{Start: start.Add(30 * time.Minute), Available: true},
		{Start: start, Available: false},
	}}
	router := testRouter(t, svc, &stubSearch{}, &stubBookings{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability?from=2024-01-15", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SlotListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Slots) != 2 {
		t.Fatalf("len(slots) = %d, want 2", len(resp.Slots))
	}
	if !resp.Slots[0].Start.Equal(start) {
		t.Errorf("slots not sorted chronologically, first = %v", resp.Slots[0].Start)
	}
}

func TestListSlots_BadRange(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{})

	for _, url := range []string{
		"/availability?from=not-a-date",
		"/availability?to=not-a-date",
		"/availability?from=2024-01-20&to=2024-01-15",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", url, rec.Code)
		}
	}
}

func TestListSlots_FeedUnavailable(t *testing.T) {
	svc := &stubSlots{err: fmt.Errorf("fetching: %w", feed.ErrFeedUnavailable)}
	router := testRouter(t, svc, &stubSearch{}, &stubBookings{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSearchPair(t *testing.T) {
	start := time.Date(2024, 1, 16, 9, 0, 0, 0, time.UTC)
	router := testRouter(t, &stubSlots{}, &stubSearch{start: start}, &stubBookings{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/availability/search?kind=double_session", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Start.Equal(start) {
		t.Errorf("start = %v, want %v", resp.Start, start)
	}
}

func TestSearchPair_Errors(t *testing.T) {
	tests := []struct {
		name string
		url  string
		err  error
		want int
	}{
		{"missing kind", "/availability/search", nil, http.StatusBadRequest},
		{"exhausted", "/availability/search?kind=double_session", availability.ErrNoSlotsInRange, http.StatusNotFound},
		{"feed down", "/availability/search?kind=double_session", feed.ErrFeedUnavailable, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(t, &stubSlots{}, &stubSearch{err: tt.err}, &stubBookings{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.url, nil))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestCreateBooking(t *testing.T) {
	svc := &stubBookings{booking: sampleBooking()}
	router := testRouter(t, &stubSlots{}, &stubSearch{}, svc)

	body := `{"patient_name":"Anna Muster","patient_email":"anna@example.com","date":"2024-01-15","start_time":"10:00","kind":"session","mode":"in_person"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body)))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	if svc.lastSubmit.Kind != booking.KindSession {
		t.Errorf("submitted kind = %q", svc.lastSubmit.Kind)
	}
	var resp BookingResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != string(booking.StatusScheduled) {
		t.Errorf("status = %q, want scheduled", resp.Status)
	}
}

func TestCreateBooking_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     int
		wantCode string
	}{
		{"invalid input", booking.ErrInvalidInput, http.StatusUnprocessableEntity, "invalid_input"},
		{"checker conflict", booking.ErrSlotUnavailable, http.StatusConflict, "slot_unavailable"},
		{"store conflict", booking.ErrSlotTaken, http.StatusConflict, "slot_taken"},
		{"feed down", feed.ErrFeedUnavailable, http.StatusServiceUnavailable, "calendar_unavailable"},
		{"practice down", booking.ErrPracticeSync, http.StatusBadGateway, "practice_sync_failed"},
	}
	body := `{"patient_name":"a","patient_email":"a@b.c","date":"2024-01-15","start_time":"10:00","kind":"session","mode":"video"}`
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{err: tt.err})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", strings.NewReader(body)))

			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			var resp ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error != tt.wantCode {
				t.Errorf("error code = %q, want %q", resp.Error, tt.wantCode)
			}
		})
	}
}

func TestCreateBooking_BadBody(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings", bytes.NewReader([]byte("{not json"))))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestGetBooking_NotFound(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{err: booking.ErrBookingNotFound})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/"+uuid.NewString(), nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestGetBooking_BadID(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings/not-a-uuid", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestTransitionEndpoints(t *testing.T) {
	id := uuid.NewString()
	for _, action := range []string{"approve", "reject", "cancel"} {
		t.Run(action, func(t *testing.T) {
			router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{booking: sampleBooking()})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/"+id+"/"+action, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestTransition_Conflict(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{err: booking.ErrInvalidStatusTransition})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/approve", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestRescheduleBooking(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{booking: sampleBooking()})
	body := `{"date":"2024-01-16","start_time":"11:30"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/reschedule", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestFailBooking(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{booking: sampleBooking()})
	body := `{"reason":"patient unreachable"}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/bookings/"+uuid.NewString()+"/fail", strings.NewReader(body)))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestListBookings(t *testing.T) {
	router := testRouter(t, &stubSlots{}, &stubSearch{}, &stubBookings{booking: sampleBooking()})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/bookings?status=scheduled&from=2024-01-01", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp BookingListResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Bookings) != 1 {
		t.Fatalf("len(bookings) = %d, want 1", len(resp.Bookings))
	}
}
