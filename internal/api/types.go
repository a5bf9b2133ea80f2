package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/praxisbook/booking/internal/availability"
	"github.com/praxisbook/booking/internal/booking"
)

type SlotListResponse struct {
	Slots []availability.Slot `json:"slots"`
}

type SearchResponse struct {
	Start time.Time `json:"start"`
}

type CreateBookingRequest struct {
	PatientName  string            `json:"patient_name"`
	PatientEmail string            `json:"patient_email"`
	PatientPhone string            `json:"patient_phone"`
	Date         string            `json:"date"`
	StartTime    string            `json:"start_time"`
	Kind         string            `json:"kind"`
	Mode         string            `json:"mode"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

type RescheduleRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
}

type FailRequest struct {
	Reason string `json:"reason"`
}

type BookingResponse struct {
	ID              uuid.UUID         `json:"id"`
	PatientName     string            `json:"patient_name"`
	PatientEmail    string            `json:"patient_email"`
	PatientPhone    string            `json:"patient_phone,omitempty"`
	Date            string            `json:"date"`
	StartTime       string            `json:"start_time"`
	DurationMinutes int               `json:"duration_minutes"`
	Kind            string            `json:"kind"`
	Mode            string            `json:"mode"`
	Status          string            `json:"status"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	ExternalRef     *string           `json:"external_ref,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		PatientName:     b.PatientName,
		PatientEmail:    b.PatientEmail,
		PatientPhone:    b.PatientPhone,
		Date:            b.Date,
		StartTime:       b.StartTime,
		DurationMinutes: b.DurationMinutes,
		Kind:            string(b.Kind),
		Mode:            string(b.Mode),
		Status:          string(b.Status),
		Metadata:        b.Metadata,
		ExternalRef:     b.ExternalRef,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type BookingListResponse struct {
	Bookings []BookingResponse `json:"bookings"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
