package postgres

import (
	"context"
	"database/sql"
	"time"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"

	"github.com/lib/pq"
)

const bookingItemColumns = `id, booking_id, item_id, provider_organization_id, location_id, quantity, start_date, end_date, total_days, status, created_at`

type bookingItemRepository struct {
	db querier
}

func NewBookingItemRepository(db querier) repository.BookingItemRepository {
	return &bookingItemRepository{db: db}
}

func (r *bookingItemRepository) Create(ctx context.Context, it *domain.BookingItem) error {
	query := `INSERT INTO booking_items (booking_id, item_id, provider_organization_id, location_id, quantity, start_date, end_date, total_days, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now()) RETURNING id, created_at`
	return r.db.QueryRowContext(ctx, query, it.BookingID, it.ItemID, it.ProviderOrgID, nullable(it.LocationID),
		it.Quantity, it.StartDate, it.EndDate, it.TotalDays, it.Status).Scan(&it.ID, &it.CreatedAt)
}

func (r *bookingItemRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.BookingItem, error) {
	query := `SELECT ` + bookingItemColumns + ` FROM booking_items WHERE booking_id = $1 ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	return scanBookingItems(rows)
}

func scanBookingItems(rows *sql.Rows) ([]domain.BookingItem, error) {
	defer rows.Close()

	var items []domain.BookingItem
	for rows.Next() {
		var it domain.BookingItem
		var locationID sql.NullString
		if err := rows.Scan(&it.ID, &it.BookingID, &it.ItemID, &it.ProviderOrgID, &locationID, &it.Quantity,
			&it.StartDate, &it.EndDate, &it.TotalDays, &it.Status, &it.CreatedAt); err != nil {
			return nil, err
		}
		it.LocationID = locationID.String
		it.StartDate = domain.Day(it.StartDate)
		it.EndDate = domain.Day(it.EndDate)
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *bookingItemRepository) UpdateStatus(ctx context.Context, ids []string, status domain.BookingItemStatus) error {
	if len(ids) == 0 {
		return nil
	}
	query := `UPDATE booking_items SET status = $1 WHERE id = ANY($2)`
	_, err := r.db.ExecContext(ctx, query, status, pq.Array(ids))
	return err
}

func (r *bookingItemRepository) ListActiveOverlapping(ctx context.Context, itemID string, start, end time.Time) ([]domain.BookingItem, error) {
	query := `SELECT ` + bookingItemColumns + ` FROM booking_items
	          WHERE item_id = $1 AND status = ANY($2) AND start_date <= $3 AND end_date >= $4
	          ORDER BY start_date, id`
	rows, err := r.db.QueryContext(ctx, query, itemID, pq.Array(activeStatuses()), domain.Day(end), domain.Day(start))
	if err != nil {
		return nil, err
	}
	return scanBookingItems(rows)
}

func (r *bookingItemRepository) ListOverdue(ctx context.Context, today time.Time) ([]domain.OverdueBooking, error) {
	query := `SELECT b.id, b.booking_number, b.user_id, MIN(bi.end_date)
	          FROM bookings b JOIN booking_items bi ON bi.booking_id = b.id
	          WHERE bi.status = $1 AND bi.end_date < $2
	          GROUP BY b.id, b.booking_number, b.user_id
	          ORDER BY MIN(bi.end_date)`
	today = domain.Day(today)
	rows, err := r.db.QueryContext(ctx, query, domain.ItemStatusPickedUp, today)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var overdue []domain.OverdueBooking
	for rows.Next() {
		var o domain.OverdueBooking
		if err := rows.Scan(&o.BookingID, &o.BookingNumber, &o.UserID, &o.EarliestDueDate); err != nil {
			return nil, err
		}
		o.EarliestDueDate = domain.Day(o.EarliestDueDate)
		o.DaysOverdue = domain.DayDiff(o.EarliestDueDate, today)
		overdue = append(overdue, o)
	}
	return overdue, rows.Err()
}

func activeStatuses() []string {
	out := make([]string, len(domain.ActiveItemStatuses))
	for i, s := range domain.ActiveItemStatuses {
		out[i] = string(s)
	}
	return out
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
