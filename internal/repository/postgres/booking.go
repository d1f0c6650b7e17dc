package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

const bookingColumns = `id, user_id, booking_number, status, payment_status, booked_by_org, created_at, updated_at`

type bookingRepository struct {
	db querier
}

func NewBookingRepository(db querier) repository.BookingRepository {
	return &bookingRepository{db: db}
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	query := `INSERT INTO bookings (user_id, booking_number, status, payment_status, booked_by_org, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, now(), now()) RETURNING id, created_at, updated_at`
	err := r.db.QueryRowContext(ctx, query, b.UserID, b.BookingNumber, b.Status, b.PaymentStatus, b.BookedByOrg).
		Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
	if isUniqueViolation(err) {
		return repository.ErrBookingNumberTaken
	}
	return err
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *bookingRepository) LockByID(ctx context.Context, id string) (*domain.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`
	return r.scanOne(ctx, query, id)
}

func (r *bookingRepository) scanOne(ctx context.Context, query, id string) (*domain.Booking, error) {
	b, err := scanBooking(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("booking")
	}
	return b, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	b := &domain.Booking{}
	var bookedBy sql.NullString
	if err := row.Scan(&b.ID, &b.UserID, &b.BookingNumber, &b.Status, &b.PaymentStatus, &bookedBy, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return nil, err
	}
	if bookedBy.Valid {
		b.BookedByOrg = &bookedBy.String
	}
	return b, nil
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	query := `UPDATE bookings SET status = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, query, status, id)
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	query := `UPDATE bookings SET payment_status = $1, updated_at = now() WHERE id = $2`
	return r.execOne(ctx, query, status, id)
}

func (r *bookingRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.NotFound("booking")
	}
	return nil
}

func (r *bookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE status <> 'deleted'`
	args := []any{}
	argIdx := 1
	if filter.UserID != "" {
		query += fmt.Sprintf(" AND user_id = $%d", argIdx)
		args = append(args, filter.UserID)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	var count int32
	countQuery := "SELECT count(*) FROM (" + query + ") AS sub"
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&count); err != nil {
		return nil, 0, err
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, pageSize, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var bookings []domain.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, 0, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, count, rows.Err()
}
