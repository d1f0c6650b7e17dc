package repository

import (
	"context"
	"time"

	"storage-booking-backend/internal/domain"
)

// ErrBookingNumberTaken is returned by BookingRepository.Create when the
// generated booking number collides with an existing one.
var ErrBookingNumberTaken = domain.Conflict("booking number already in use")

type InventoryRepository interface {
	GetByID(ctx context.Context, id string) (*domain.InventoryItem, error)
	// LockByID reads the item and holds a row lock until the surrounding
	// transaction ends. Outside a transaction it behaves like GetByID.
	LockByID(ctx context.Context, id string) (*domain.InventoryItem, error)
	// AdjustStorage adds delta to units in storage. The update is refused
	// (domain Integrity error) if the result would leave [0, total].
	AdjustStorage(ctx context.Context, id string, delta int) error
}

type BookingRepository interface {
	Create(ctx context.Context, b *domain.Booking) error
	GetByID(ctx context.Context, id string) (*domain.Booking, error)
	LockByID(ctx context.Context, id string) (*domain.Booking, error)
	UpdateStatus(ctx context.Context, id string, status domain.BookingStatus) error
	UpdatePaymentStatus(ctx context.Context, id string, status domain.PaymentStatus) error
	List(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error)
}

type BookingItemRepository interface {
	Create(ctx context.Context, item *domain.BookingItem) error
	ListByBooking(ctx context.Context, bookingID string) ([]domain.BookingItem, error)
	UpdateStatus(ctx context.Context, ids []string, status domain.BookingItemStatus) error
	// ListActiveOverlapping returns the active items reserving itemID whose
	// closed interval overlaps [start, end].
	ListActiveOverlapping(ctx context.Context, itemID string, start, end time.Time) ([]domain.BookingItem, error)
	ListOverdue(ctx context.Context, today time.Time) ([]domain.OverdueBooking, error)
}

type RoleRepository interface {
	ListByUser(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
}

type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// Repositories groups the repositories bound to one connection or transaction.
type Repositories struct {
	Inventory InventoryRepository
	Bookings  BookingRepository
	Items     BookingItemRepository
	Roles     RoleRepository
	Users     UserRepository
}

// Store is the transactional persistence boundary of the engine.
type Store interface {
	Repositories() Repositories
	// WithinTx runs fn in one transaction. fn may be invoked more than once
	// when the database reports a serialization failure or deadlock, so it
	// must not have side effects outside repos.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}
