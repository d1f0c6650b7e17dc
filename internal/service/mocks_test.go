package service_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository/memory"
	"storage-booking-backend/internal/service"

	"github.com/stretchr/testify/mock"
)

// MockNotifier
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, event service.BookingEvent, b *domain.Booking) {
	m.Called(event, b.ID)
}

// MockEmailService
type MockEmailService struct {
	mock.Mock
}

func (m *MockEmailService) SendEmail(ctx context.Context, to, toName, subject, body string) error {
	args := m.Called(to, subject)
	return args.Error(0)
}

var testNow = time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)

// dayOffset returns the UTC day n days after testNow.
func dayOffset(n int) time.Time {
	return domain.Day(testNow).AddDate(0, 0, n)
}

type fixture struct {
	store        *memory.Store
	notifier     *MockNotifier
	clock        time.Time
	bookings     service.BookingService
	availability service.AvailabilityService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    memory.NewStore(),
		notifier: new(MockNotifier),
		clock:    testNow,
	}
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	f.bookings = service.NewBookingService(f.store, f.notifier, nil, nil, log, func() time.Time { return f.clock })
	f.availability = service.NewAvailabilityService(f.store, nil, nil, log)

	f.store.AddItem(domain.InventoryItem{ID: "item-a", OrgID: "org-a", LocationID: "loc-a", TotalUnits: 5, UnitsInStorage: 5, IsActive: true})
	f.store.AddItem(domain.InventoryItem{ID: "item-b", OrgID: "org-b", LocationID: "loc-b", TotalUnits: 3, UnitsInStorage: 3, IsActive: true})
	f.store.AddUser(domain.User{ID: "u-1", Email: "renter@test.com", FullName: "Renter"})
	return f
}

func member(userID, orgID string, role domain.RoleName) authz.AuthContext {
	return authz.AuthContext{
		UserID:      userID,
		Roles:       []domain.RoleAssignment{{UserID: userID, OrgID: orgID, Role: role}},
		ActiveOrgID: orgID,
		ActiveRole:  role,
	}
}

var (
	renter     = member("u-1", "org-c", domain.RoleUser)
	otherUser  = member("u-2", "org-c", domain.RoleUser)
	managerA   = member("m-a", "org-a", domain.RoleStorageManager)
	adminB     = member("m-b", "org-b", domain.RoleTenantAdmin)
	userOfA    = member("u-a", "org-a", domain.RoleUser)
	superAdmin = member("s-1", "org-z", domain.RoleSuperAdmin)
)

func line(itemID string, qty, from, to int) domain.BookingItemInput {
	return domain.BookingItemInput{ItemID: itemID, Quantity: qty, StartDate: dayOffset(from), EndDate: dayOffset(to)}
}

func (f *fixture) available(t *testing.T, itemID string, from, to int) int {
	t.Helper()
	a, err := f.availability.GetAvailability(context.Background(), renter, itemID, dayOffset(from), dayOffset(to))
	if err != nil {
		t.Fatalf("availability: %v", err)
	}
	return a.AvailableQuantity
}

func (f *fixture) inStorage(itemID string) int {
	it, _ := f.store.Item(itemID)
	return it.UnitsInStorage
}

func (f *fixture) create(t *testing.T, caller authz.AuthContext, lines ...domain.BookingItemInput) *domain.Booking {
	t.Helper()
	res, err := f.bookings.CreateBooking(context.Background(), caller, lines)
	if err != nil {
		t.Fatalf("create booking: %v", err)
	}
	return res.Booking
}
