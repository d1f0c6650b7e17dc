package memory

import (
	"context"
	"slices"
	"sort"
	"time"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"

	"github.com/google/uuid"
)

type inventoryRepository struct {
	do access
}

func (r *inventoryRepository) GetByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	var out *domain.InventoryItem
	err := r.do(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return domain.NotFound("item")
		}
		out = &it
		return nil
	})
	return out, err
}

// LockByID is GetByID: the store mutex already serializes transactions.
func (r *inventoryRepository) LockByID(ctx context.Context, id string) (*domain.InventoryItem, error) {
	return r.GetByID(ctx, id)
}

func (r *inventoryRepository) AdjustStorage(ctx context.Context, id string, delta int) error {
	return r.do(func(st *state) error {
		it, ok := st.items[id]
		if !ok {
			return domain.NotFound("item")
		}
		next := it.UnitsInStorage + delta
		if next < 0 || next > it.TotalUnits {
			return domain.Integrityf(id, "storage count adjustment of %d out of range", delta)
		}
		it.UnitsInStorage = next
		st.items[id] = it
		return nil
	})
}

type bookingRepository struct {
	do  access
	now func() time.Time
}

func (r *bookingRepository) Create(ctx context.Context, b *domain.Booking) error {
	return r.do(func(st *state) error {
		for _, existing := range st.bookings {
			if existing.BookingNumber == b.BookingNumber {
				return repository.ErrBookingNumberTaken
			}
		}
		now := r.now()
		b.ID = uuid.NewString()
		b.CreatedAt = now
		b.UpdatedAt = now
		stored := *b
		stored.Items = nil
		st.bookings[b.ID] = stored
		return nil
	})
}

func (r *bookingRepository) GetByID(ctx context.Context, id string) (*domain.Booking, error) {
	var out *domain.Booking
	err := r.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.NotFound("booking")
		}
		out = &b
		return nil
	})
	return out, err
}

func (r *bookingRepository) LockByID(ctx context.Context, id string) (*domain.Booking, error) {
	return r.GetByID(ctx, id)
}

func (r *bookingRepository) UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error {
	return r.update(id, func(b *domain.Booking) { b.Status = status })
}

func (r *bookingRepository) UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error {
	return r.update(id, func(b *domain.Booking) { b.PaymentStatus = status })
}

func (r *bookingRepository) update(id string, mutate func(b *domain.Booking)) error {
	return r.do(func(st *state) error {
		b, ok := st.bookings[id]
		if !ok {
			return domain.NotFound("booking")
		}
		mutate(&b)
		b.UpdatedAt = r.now()
		st.bookings[id] = b
		return nil
	})
}

func (r *bookingRepository) List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error) {
	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	var matched []domain.Booking
	err := r.do(func(st *state) error {
		for _, b := range st.bookings {
			if b.Status == domain.BookingStatusDeleted {
				continue
			}
			if filter.UserID != "" && b.UserID != filter.UserID {
				continue
			}
			if filter.Status != "" && b.Status != filter.Status {
				continue
			}
			matched = append(matched, b)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].BookingNumber > matched[j].BookingNumber
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int32(len(matched))
	from := (page - 1) * pageSize
	if from >= total {
		return nil, total, nil
	}
	to := min(from+pageSize, total)
	return matched[from:to], total, nil
}

type bookingItemRepository struct {
	do  access
	now func() time.Time
}

func (r *bookingItemRepository) Create(ctx context.Context, it *domain.BookingItem) error {
	return r.do(func(st *state) error {
		it.ID = uuid.NewString()
		it.CreatedAt = r.now()
		st.bookingItems = append(st.bookingItems, *it)
		return nil
	})
}

func (r *bookingItemRepository) ListByBooking(ctx context.Context, bookingID string) ([]domain.BookingItem, error) {
	var out []domain.BookingItem
	err := r.do(func(st *state) error {
		for _, it := range st.bookingItems {
			if it.BookingID == bookingID {
				out = append(out, it)
			}
		}
		return nil
	})
	return out, err
}

func (r *bookingItemRepository) UpdateStatus(ctx context.Context, ids []string, status domain.BookingItemStatus) error {
	return r.do(func(st *state) error {
		for i := range st.bookingItems {
			if slices.Contains(ids, st.bookingItems[i].ID) {
				st.bookingItems[i].Status = status
			}
		}
		return nil
	})
}

func (r *bookingItemRepository) ListActiveOverlapping(ctx context.Context, itemID string, start, end time.Time) ([]domain.BookingItem, error) {
	var items []domain.BookingItem
	err := r.do(func(st *state) error {
		for _, it := range st.bookingItems {
			if it.ItemID != itemID || !it.Status.IsActive() {
				continue
			}
			if domain.Overlaps(it.StartDate, it.EndDate, start, end) {
				items = append(items, it)
			}
		}
		return nil
	})
	return items, err
}

func (r *bookingItemRepository) ListOverdue(ctx context.Context, today time.Time) ([]domain.OverdueBooking, error) {
	today = domain.Day(today)
	byBooking := make(map[string]*domain.OverdueBooking)
	err := r.do(func(st *state) error {
		for _, it := range st.bookingItems {
			if it.Status != domain.ItemStatusPickedUp || !domain.Day(it.EndDate).Before(today) {
				continue
			}
			o, ok := byBooking[it.BookingID]
			if !ok {
				b := st.bookings[it.BookingID]
				o = &domain.OverdueBooking{BookingID: b.ID, BookingNumber: b.BookingNumber, UserID: b.UserID, EarliestDueDate: domain.Day(it.EndDate)}
				byBooking[it.BookingID] = o
			}
			if it.EndDate.Before(o.EarliestDueDate) {
				o.EarliestDueDate = domain.Day(it.EndDate)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.OverdueBooking, 0, len(byBooking))
	for _, o := range byBooking {
		o.DaysOverdue = domain.DayDiff(o.EarliestDueDate, today)
		out = append(out, *o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarliestDueDate.Before(out[j].EarliestDueDate) })
	return out, nil
}

type roleRepository struct {
	do access
}

func (r *roleRepository) ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	var out []domain.RoleAssignment
	err := r.do(func(st *state) error {
		for _, ra := range st.roles {
			if ra.UserID == userID {
				out = append(out, ra)
			}
		}
		return nil
	})
	return out, err
}

type userRepository struct {
	do access
}

func (r *userRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	var out *domain.User
	err := r.do(func(st *state) error {
		u, ok := st.users[id]
		if !ok {
			return domain.NotFound("user")
		}
		out = &u
		return nil
	})
	return out, err
}
