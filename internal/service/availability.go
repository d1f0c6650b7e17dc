package service

import (
	"context"
	"log/slog"
	"time"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

type availabilityService struct {
	store   repository.Store
	cache   AvailabilityCache
	metrics MetricsRecorder
	log     *slog.Logger
}

func NewAvailabilityService(store repository.Store, cache AvailabilityCache, metrics MetricsRecorder, log *slog.Logger) AvailabilityService {
	if cache == nil {
		cache = noopCache{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &availabilityService{store: store, cache: cache, metrics: metrics, log: log}
}

func (s *availabilityService) GetAvailability(ctx context.Context, caller authz.AuthContext, itemID string, start, end time.Time) (a *domain.Availability, err error) {
	defer s.observe("availability", time.Now(), &err)

	if err := authz.Require(caller, authz.ViewAvailability, "", "not allowed to view availability"); err != nil {
		return nil, err
	}
	if itemID == "" {
		return nil, domain.ValidationErrorf("item_id is required")
	}
	if start.IsZero() || end.IsZero() {
		return nil, domain.ValidationErrorf("start_date and end_date are required")
	}
	start, end = domain.Day(start), domain.Day(end)
	if end.Before(start) {
		return nil, domain.ValidationErrorf("end_date must not be before start_date")
	}

	if cached, ok := s.cache.Get(ctx, itemID, start, end); ok {
		return cached, nil
	}

	repos := s.store.Repositories()
	item, err := repos.Inventory.GetByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	a, _, err = availableQuantity(ctx, repos, item, start, end)
	if err != nil {
		if a != nil {
			s.log.Error("Negative availability computed", "item_id", itemID, "available", a.AvailableQuantity)
		}
		return a, err
	}
	s.cache.Set(ctx, a, start, end)
	return a, nil
}

func (s *availabilityService) PhysicalAvailability(ctx context.Context, itemID string) (int, error) {
	item, err := s.store.Repositories().Inventory.GetByID(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return item.UnitsInStorage, nil
}

func (s *availabilityService) observe(op string, started time.Time, err *error) {
	s.metrics.ObserveOperation(op, outcome(*err), time.Since(started))
}

// availableQuantity is total units minus the busiest day of active
// reservations within [start, end]. The reservations are returned so callers
// can stack further demand on them. A negative result means the stored
// reservations already exceed the stock; it is reported as is together with
// an Integrity error.
func availableQuantity(ctx context.Context, repos repository.Repositories, item *domain.InventoryItem, start, end time.Time) (*domain.Availability, []domain.BookingItem, error) {
	reserved, err := repos.Items.ListActiveOverlapping(ctx, item.ID, start, end)
	if err != nil {
		return nil, nil, err
	}
	booked := domain.PeakLoad(reserved, start, end)
	a := &domain.Availability{
		ItemID:                item.ID,
		AvailableQuantity:     item.TotalUnits - booked,
		AlreadyBookedQuantity: booked,
		TotalQuantity:         item.TotalUnits,
	}
	if a.AvailableQuantity < 0 {
		return a, reserved, domain.Integrityf(item.ID, "reservations exceed total stock by %d", -a.AvailableQuantity)
	}
	return a, reserved, nil
}
