package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const bookingColumns = `id, patient_name, patient_email, patient_phone,
	appointment_date, start_time, duration_minutes, kind, mode, status,
	metadata, external_ref, created_at, updated_at`

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var date time.Time
	var metadata []byte
	var externalRef *string

	err := row.Scan(
		&b.ID,
		&b.PatientName,
		&b.PatientEmail,
		&b.PatientPhone,
		&date,
		&b.StartTime,
		&b.DurationMinutes,
		&b.Kind,
		&b.Mode,
		&b.Status,
		&metadata,
		&externalRef,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	b.Date = date.Format("2006-01-02")
	b.ExternalRef = externalRef
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &b.Metadata); err != nil {
			return nil, fmt.Errorf("decode booking metadata: %w", err)
		}
	}
	return &b, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (r *PgRepository) Create(ctx context.Context, b *Booking) (*Booking, error) {
	id := uuid.New()

	metadata, err := json.Marshal(b.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode booking metadata: %w", err)
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, patient_name, patient_email, patient_phone,
			appointment_date, start_time, duration_minutes, kind, mode, status,
			metadata, external_ref, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING `+bookingColumns+`
	`, id, b.PatientName, b.PatientEmail, b.PatientPhone,
		b.Date, b.StartTime, b.DurationMinutes, b.Kind, b.Mode, b.Status,
		metadata, b.ExternalRef)

	created, err := scanBooking(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return created, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id)
	return scanBooking(row)
}

func (r *PgRepository) List(ctx context.Context, f ListFilter) ([]Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE 1=1`
	var args []any

	if f.FromDate != "" {
		args = append(args, f.FromDate)
		query += fmt.Sprintf(" AND appointment_date >= $%d", len(args))
	}
	if f.ToDate != "" {
		args = append(args, f.ToDate)
		query += fmt.Sprintf(" AND appointment_date <= $%d", len(args))
	}
	if len(f.Statuses) > 0 {
		args = append(args, f.Statuses)
		query += fmt.Sprintf(" AND status = ANY($%d)", len(args))
	}

	query += " ORDER BY appointment_date, start_time"

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))

	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}

func (r *PgRepository) ListActiveStarts(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT appointment_date, start_time
		FROM bookings
		WHERE status = ANY($1)
		  AND appointment_date >= $2
		  AND appointment_date < $3
	`, ActiveStatuses, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var date time.Time
		var startTime string
		if err := rows.Scan(&date, &startTime); err != nil {
			return nil, err
		}
		start, err := time.ParseInLocation("2006-01-02 15:04",
			date.Format("2006-01-02")+" "+startTime, from.Location())
		if err != nil {
			return nil, fmt.Errorf("parse booking start: %w", err)
		}
		starts = append(starts, start)
	}
	return starts, rows.Err()
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+bookingColumns+`
	`, id, to, from)

	b, err := scanBooking(row)
	if err != nil {
		// Scheduling a booking can trip the active-slot uniqueness index
		// when another booking was scheduled for the same slot meanwhile.
		if isUniqueViolation(err) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}
	return b, nil
}

func (r *PgRepository) SetExternalRef(ctx context.Context, id uuid.UUID, ref string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET external_ref = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, ref)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) SetMetadata(ctx context.Context, id uuid.UUID, metadata map[string]string) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode booking metadata: %w", err)
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET metadata = $2,
		    updated_at = now()
		WHERE id = $1
	`, id, data)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) UpdateSchedule(ctx context.Context, id uuid.UUID, date, startTime string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE bookings
		SET appointment_date = $2,
		    start_time = $3,
		    updated_at = now()
		WHERE id = $1
	`, id, date, startTime)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrSlotTaken
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBookingNotFound
	}
	return nil
}

func (r *PgRepository) FindElapsedScheduled(ctx context.Context, now time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'scheduled'
		  AND appointment_date + start_time::time
		      + make_interval(mins => duration_minutes) < $1
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *b)
	}
	return result, rows.Err()
}
