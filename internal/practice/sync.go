package practice

import (
	"context"

	"github.com/praxisbook/booking/internal/booking"
)

// BookingSync adapts the client to the booking service's PracticeSync
// dependency: approved local bookings are written into the upstream
// appointment book.
type BookingSync struct {
	client *Client
}

func NewBookingSync(client *Client) *BookingSync {
	return &BookingSync{client: client}
}

func (s *BookingSync) CreateAppointment(ctx context.Context, b *booking.Booking) (string, error) {
	customerID := ""
	if cust, err := s.client.CustomerByEmail(ctx, b.PatientEmail); err == nil {
		customerID = cust.ID
	}

	return s.client.CreateAppointment(ctx, Appointment{
		CustomerID:      customerID,
		Date:            b.Date,
		StartTime:       b.StartTime,
		DurationMinutes: b.DurationMinutes,
		Kind:            string(b.Kind),
		Note:            b.PatientName,
	})
}
