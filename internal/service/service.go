package service

import (
	"context"
	"time"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
)

type AvailabilityService interface {
	// GetAvailability computes virtual stock for itemID over the closed range
	// [start, end]. A negative result is returned together with an Integrity error.
	GetAvailability(ctx context.Context, caller authz.AuthContext, itemID string, start, end time.Time) (*domain.Availability, error)
	PhysicalAvailability(ctx context.Context, itemID string) (int, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, caller authz.AuthContext, items []domain.BookingItemInput) (*domain.BookingResult, error)
	UpdateBooking(ctx context.Context, caller authz.AuthContext, bookingID string, items []domain.BookingItemInput) (*domain.BookingResult, error)
	ConfirmBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	RejectBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	ConfirmItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (*domain.Booking, error)
	RejectItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (*domain.Booking, error)
	CancelBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	ConfirmPickup(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	ReturnItems(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	ConfirmPickupForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (*domain.Booking, error)
	ReturnItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (*domain.Booking, error)
	CancelItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (*domain.Booking, error)
	DeleteBooking(ctx context.Context, caller authz.AuthContext, bookingID string) error
	UpdatePaymentStatus(ctx context.Context, caller authz.AuthContext, bookingID string, status domain.PaymentStatus) (*domain.Booking, error)
	GetBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error)
	ListMyBookings(ctx context.Context, caller authz.AuthContext, page, pageSize int32) ([]domain.Booking, int32, error)
	ListBookings(ctx context.Context, caller authz.AuthContext, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error)
	ListOverdue(ctx context.Context, caller authz.AuthContext) ([]domain.OverdueBooking, error)
	// SendOverdueReminders is run by the scheduler without a caller and
	// returns the number of reminders queued.
	SendOverdueReminders(ctx context.Context) (int, error)
}

type EmailService interface {
	SendEmail(ctx context.Context, to, toName, subject, body string) error
}

// Notifier delivers booking events. Implementations must not block the caller
// and must not report delivery failures.
type Notifier interface {
	Notify(ctx context.Context, event BookingEvent, b *domain.Booking)
}

// AvailabilityCache fronts read-only availability lookups. Writers invalidate
// every item they touch after commit.
type AvailabilityCache interface {
	Get(ctx context.Context, itemID string, start, end time.Time) (*domain.Availability, bool)
	Set(ctx context.Context, a *domain.Availability, start, end time.Time)
	Invalidate(ctx context.Context, itemIDs ...string)
}

type MetricsRecorder interface {
	ObserveOperation(operation string, outcome string, elapsed time.Duration)
	ObserveStockMovement(direction string, units int)
}

type noopCache struct{}

func (noopCache) Get(context.Context, string, time.Time, time.Time) (*domain.Availability, bool) {
	return nil, false
}
func (noopCache) Set(context.Context, *domain.Availability, time.Time, time.Time) {}
func (noopCache) Invalidate(context.Context, ...string)                          {}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, string, time.Duration) {}
func (noopMetrics) ObserveStockMovement(string, int)               {}

// outcome labels an operation result for metrics.
func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if kind := domain.KindOf(err); kind != "" {
		return string(kind)
	}
	return "error"
}
