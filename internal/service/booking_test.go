package service_test

import (
	"context"
	"math/rand"
	"sync"
	"testing"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
	"storage-booking-backend/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingService_CreateBooking(t *testing.T) {
	ctx := context.Background()

	t.Run("FullStockThenOverlapFails", func(t *testing.T) {
		f := newFixture(t)

		res, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 5, 3, 5)})
		require.NoError(t, err)
		assert.Empty(t, res.Warning)
		b := res.Booking
		assert.Equal(t, domain.BookingStatusPending, b.Status)
		assert.Equal(t, domain.PaymentStatusNotApplicable, b.PaymentStatus)
		assert.Regexp(t, `^BK-20260310-[0-9A-F]{6}$`, b.BookingNumber)
		require.Len(t, b.Items, 1)
		assert.Equal(t, 3, b.Items[0].TotalDays)
		assert.Equal(t, "org-a", b.Items[0].ProviderOrgID)
		assert.Equal(t, 0, f.available(t, "item-a", 3, 5))

		_, err = f.bookings.CreateBooking(ctx, otherUser, []domain.BookingItemInput{line("item-a", 1, 5, 7)})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		f.notifier.AssertCalled(t, "Notify", service.EventCreated, b.ID)
	})

	t.Run("LeadTime", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 1, 1, 2)})
		assert.ErrorIs(t, err, domain.ErrValidation)

		res, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 1, 2, 3)})
		require.NoError(t, err)
		assert.Equal(t, domain.TightWindowWarning, res.Warning)

		res, err = f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 1, 3, 4)})
		require.NoError(t, err)
		assert.Empty(t, res.Warning)
	})

	t.Run("InvalidLines", func(t *testing.T) {
		f := newFixture(t)
		cases := map[string][]domain.BookingItemInput{
			"empty":          nil,
			"zero quantity":  {line("item-a", 0, 3, 4)},
			"end equals":     {line("item-a", 1, 3, 3)},
			"end before":     {line("item-a", 1, 5, 3)},
			"too long":       {line("item-a", 1, 3, 46)},
			"missing item":   {line("", 1, 3, 4)},
			"one bad of two": {line("item-a", 1, 3, 4), line("item-b", -1, 3, 4)},
		}
		for name, in := range cases {
			_, err := f.bookings.CreateBooking(ctx, renter, in)
			assert.ErrorIs(t, err, domain.ErrValidation, name)
		}
		assert.Equal(t, 5, f.available(t, "item-a", 3, 4), "failed calls reserve nothing")
	})

	t.Run("UnknownOrInactiveItem", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddItem(domain.InventoryItem{ID: "item-off", OrgID: "org-a", TotalUnits: 2, UnitsInStorage: 2, IsActive: false})

		_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("nope", 1, 3, 4)})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		_, err = f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-off", 1, 3, 4)})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("PhysicalStockCountsOverlappingLines", func(t *testing.T) {
		f := newFixture(t)
		f.store.AddItem(domain.InventoryItem{ID: "item-low", OrgID: "org-a", TotalUnits: 4, UnitsInStorage: 2, IsActive: true})

		_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-low", 3, 3, 4)})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Contains(t, err.Error(), "physical")

		_, err = f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-low", 2, 3, 4), line("item-low", 1, 4, 5)})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)

		b := f.create(t, renter, line("item-low", 2, 3, 4), line("item-low", 2, 6, 8))
		assert.Len(t, b.Items, 2)
	})

	t.Run("OverlappingLinesInOneRequest", func(t *testing.T) {
		f := newFixture(t)
		f.create(t, otherUser, line("item-b", 2, 3, 4))

		_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-b", 1, 4, 5), line("item-b", 1, 4, 6)})
		require.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Contains(t, err.Error(), "virtual")
		assert.Equal(t, 1, f.available(t, "item-b", 4, 6), "no partial booking")

		b := f.create(t, renter, line("item-a", 5, 3, 4), line("item-a", 5, 5, 6))
		assert.Len(t, b.Items, 2)
	})

	t.Run("BookedByOrg", func(t *testing.T) {
		f := newFixture(t)
		requester := member("r-1", "org-c", domain.RoleRequester)

		b := f.create(t, requester, line("item-a", 1, 3, 4))
		require.NotNil(t, b.BookedByOrg)
		assert.Equal(t, "org-c", *b.BookedByOrg)

		b = f.create(t, renter, line("item-a", 1, 3, 4))
		assert.Nil(t, b.BookedByOrg)
	})

	t.Run("Anonymous", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.bookings.CreateBooking(ctx, member("", "org-a", domain.RoleUser), []domain.BookingItemInput{line("item-a", 1, 3, 4)})
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestBookingService_AvailabilityMonotonicity(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	before := f.available(t, "item-a", 4, 6)
	cancelled := f.create(t, renter, line("item-a", 2, 4, 6))
	assert.Equal(t, before-2, f.available(t, "item-a", 4, 6))

	_, err := f.bookings.CancelBooking(ctx, renter, cancelled.ID)
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t, "item-a", 4, 6))

	rejected := f.create(t, renter, line("item-a", 3, 5, 8))
	assert.Equal(t, before-3, f.available(t, "item-a", 4, 6))

	_, err = f.bookings.RejectBooking(ctx, managerA, rejected.ID)
	require.NoError(t, err)
	assert.Equal(t, before, f.available(t, "item-a", 4, 6))
}

func TestBookingService_ConfirmAndReject(t *testing.T) {
	ctx := context.Background()

	t.Run("CrossOrgForbidden", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-b", 1, 3, 4))

		_, err := f.bookings.ConfirmItemsForOrg(ctx, userOfA, b.ID, "org-b", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-b", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.bookings.ConfirmBooking(ctx, managerA, b.ID)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", []string{b.Items[0].ID})
		require.ErrorIs(t, err, domain.ErrForbidden)
		assert.NotContains(t, err.Error(), "org-b")
	})

	t.Run("PerOrgRollUp", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))

		got, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)
		f.notifier.AssertCalled(t, "Notify", service.EventPartiallyConfirmed, b.ID)

		got, err = f.bookings.ConfirmItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
		f.notifier.AssertCalled(t, "Notify", service.EventConfirmed, b.ID)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("RejectOneOrgOfTwo", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))

		got, err := f.bookings.RejectItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)

		got, err = f.bookings.RejectItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusRejected, got.Status)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("ExplicitItems", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-a", 1, 5, 6))
		first, second := b.Items[0].ID, b.Items[1].ID

		_, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "", nil)
		assert.ErrorIs(t, err, domain.ErrValidation)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", []string{"missing"})
		assert.ErrorIs(t, err, domain.ErrNotFound)

		got, err := f.bookings.RejectItemsForOrg(ctx, managerA, b.ID, "org-a", []string{first})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)

		_, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", []string{first, second})
		assert.ErrorIs(t, err, domain.ErrIllegalTransition, "a rejected item cannot be confirmed")

		got, err = f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", []string{second})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	})

	t.Run("ConfirmRechecksPhysicalStock", func(t *testing.T) {
		f := newFixture(t)
		first := f.create(t, renter, line("item-b", 2, 3, 4))
		second := f.create(t, otherUser, line("item-b", 1, 6, 7))

		_, err := f.bookings.ConfirmBooking(ctx, adminB, first.ID)
		require.NoError(t, err)
		f.clock = dayOffset(3)
		_, err = f.bookings.ConfirmPickup(ctx, adminB, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, f.inStorage("item-b"))

		require.NoError(t, f.store.Repositories().Inventory.AdjustStorage(ctx, "item-b", -1))
		_, err = f.bookings.ConfirmBooking(ctx, adminB, second.ID)
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	})

	t.Run("SuperAdminConfirmsEverything", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))

		got, err := f.bookings.ConfirmBooking(ctx, superAdmin, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	})
}

func TestBookingService_PickupAndReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 3, 3, 5), line("item-b", 2, 3, 5))

	_, err := f.bookings.ConfirmPickup(ctx, superAdmin, b.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition, "pending items cannot be picked up")

	_, err = f.bookings.ConfirmBooking(ctx, superAdmin, b.ID)
	require.NoError(t, err)

	_, err = f.bookings.ConfirmPickup(ctx, superAdmin, b.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "pickup before the start date")

	_, err = f.bookings.ConfirmPickup(ctx, userOfA, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	f.clock = dayOffset(3)
	got, err := f.bookings.ConfirmPickup(ctx, superAdmin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, 2, f.inStorage("item-a"))
	assert.Equal(t, 1, f.inStorage("item-b"))

	_, err = f.bookings.ConfirmPickup(ctx, superAdmin, b.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, 2, f.inStorage("item-a"), "no double decrement")

	_, err = f.bookings.CancelBooking(ctx, superAdmin, b.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition, "picked-up items cannot be cancelled")

	got, err = f.bookings.ReturnItems(ctx, superAdmin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, got.Status)
	assert.Equal(t, 5, f.inStorage("item-a"))
	assert.Equal(t, 3, f.inStorage("item-b"))

	// A repeated return is refused rather than treated as a no-op.
	_, err = f.bookings.ReturnItems(ctx, superAdmin, b.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, 5, f.inStorage("item-a"))
}

func TestBookingService_PickupSkipsRejectedItems(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))

	_, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
	require.NoError(t, err)
	_, err = f.bookings.RejectItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
	require.NoError(t, err)

	f.clock = dayOffset(3)
	_, err = f.bookings.ConfirmPickup(ctx, superAdmin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, f.inStorage("item-a"))
	assert.Equal(t, 3, f.inStorage("item-b"))

	got, err := f.bookings.ReturnItems(ctx, superAdmin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, got.Status)
}

func TestBookingService_ReturnBeyondTotalIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 2, 3, 4))
	_, err := f.bookings.ConfirmBooking(ctx, managerA, b.ID)
	require.NoError(t, err)
	f.clock = dayOffset(3)
	_, err = f.bookings.ConfirmPickup(ctx, managerA, b.ID)
	require.NoError(t, err)

	// Someone restocked the shelf out of band.
	require.NoError(t, f.store.Repositories().Inventory.AdjustStorage(ctx, "item-a", 2))

	_, err = f.bookings.ReturnItems(ctx, managerA, b.ID)
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	assert.Equal(t, 5, f.inStorage("item-a"))
}

func TestBookingService_MultiOrgFulfilment(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 3, 3, 5), line("item-b", 2, 3, 5))
	itemA, itemB := b.Items[0].ID, b.Items[1].ID

	_, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
	require.NoError(t, err)
	_, err = f.bookings.ConfirmItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
	require.NoError(t, err)
	f.clock = dayOffset(3)

	_, err = f.bookings.ConfirmPickupForOrg(ctx, managerA, b.ID, "org-b", nil)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	_, err = f.bookings.ConfirmPickupForOrg(ctx, managerA, b.ID, "org-a", []string{itemB})
	assert.ErrorIs(t, err, domain.ErrForbidden)
	assert.Equal(t, 3, f.inStorage("item-b"))

	// The whole-booking call hands out only what the caller manages.
	got, err := f.bookings.ConfirmPickup(ctx, managerA, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, domain.ItemStatusPickedUp, got.Items[0].Status)
	assert.Equal(t, domain.ItemStatusConfirmed, got.Items[1].Status)
	assert.Equal(t, 2, f.inStorage("item-a"))
	assert.Equal(t, 3, f.inStorage("item-b"))

	_, err = f.bookings.ConfirmPickup(ctx, managerA, b.ID)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	assert.Equal(t, 2, f.inStorage("item-a"))

	_, err = f.bookings.ConfirmPickupForOrg(ctx, adminB, b.ID, "org-b", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, f.inStorage("item-b"))

	got, err = f.bookings.ReturnItemsForOrg(ctx, managerA, b.ID, "org-a", []string{itemA})
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
	assert.Equal(t, 5, f.inStorage("item-a"))
	assert.Equal(t, 1, f.inStorage("item-b"))

	_, err = f.bookings.ReturnItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
	assert.ErrorIs(t, err, domain.ErrIllegalTransition)

	got, err = f.bookings.ReturnItems(ctx, adminB, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusCompleted, got.Status)
	assert.Equal(t, 3, f.inStorage("item-b"))
}

func TestBookingService_CancelItemsForOrg(t *testing.T) {
	ctx := context.Background()

	t.Run("OneOrgWithdraws", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 2, 3, 4), line("item-b", 2, 3, 4))
		_, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		require.NoError(t, err)

		_, err = f.bookings.CancelItemsForOrg(ctx, managerA, b.ID, "", nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
		_, err = f.bookings.CancelItemsForOrg(ctx, managerA, b.ID, "org-b", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden)

		got, err := f.bookings.CancelItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusConfirmed, got.Status)
		assert.Equal(t, domain.ItemStatusCancelled, got.Items[1].Status)
		assert.Equal(t, 3, f.available(t, "item-b", 3, 4))
		assert.Equal(t, 3, f.available(t, "item-a", 3, 4))

		_, err = f.bookings.CancelItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("LastOrgCancelsBooking", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))

		got, err := f.bookings.CancelItemsForOrg(ctx, managerA, b.ID, "org-a", []string{b.Items[0].ID})
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusPending, got.Status)

		got, err = f.bookings.CancelItemsForOrg(ctx, adminB, b.ID, "org-b", nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelledByAdmin, got.Status)
		f.notifier.AssertCalled(t, "Notify", service.EventCancelled, b.ID)
	})

	t.Run("PickedUpItemsStay", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4))
		_, err := f.bookings.ConfirmBooking(ctx, managerA, b.ID)
		require.NoError(t, err)
		f.clock = dayOffset(3)
		_, err = f.bookings.ConfirmPickup(ctx, managerA, b.ID)
		require.NoError(t, err)

		_, err = f.bookings.CancelItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
		_, err = f.bookings.CancelItemsForOrg(ctx, managerA, b.ID, "org-a", []string{b.Items[0].ID})
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})
}

func TestBookingService_RoleCheckedBeforeLookup(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 1, 3, 4))

	for _, id := range []string{b.ID, "missing"} {
		_, err := f.bookings.ConfirmBooking(ctx, userOfA, id)
		assert.ErrorIs(t, err, domain.ErrForbidden, id)
		_, err = f.bookings.ConfirmItemsForOrg(ctx, userOfA, id, "org-a", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden, id)
		_, err = f.bookings.ConfirmPickup(ctx, renter, id)
		assert.ErrorIs(t, err, domain.ErrForbidden, id)
		_, err = f.bookings.ReturnItemsForOrg(ctx, adminB, id, "org-a", nil)
		assert.ErrorIs(t, err, domain.ErrForbidden, id)
		_, err = f.bookings.UpdatePaymentStatus(ctx, otherUser, id, domain.PaymentStatusPaid)
		assert.ErrorIs(t, err, domain.ErrForbidden, id)
		assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, otherUser, id), domain.ErrForbidden, id)

		// Strangers cannot tell a foreign booking from a missing one.
		_, err = f.bookings.GetBooking(ctx, otherUser, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, id)
		_, err = f.bookings.CancelBooking(ctx, otherUser, id)
		assert.ErrorIs(t, err, domain.ErrNotFound, id)
	}

	_, err := f.bookings.ConfirmBooking(ctx, managerA, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.bookings.GetBooking(ctx, adminB, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestBookingService_Cancel(t *testing.T) {
	ctx := context.Background()

	t.Run("OwnerWhilePending", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4))

		_, err := f.bookings.CancelBooking(ctx, otherUser, b.ID)
		assert.ErrorIs(t, err, domain.ErrNotFound)

		got, err := f.bookings.CancelBooking(ctx, renter, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelledByUser, got.Status)
		assert.Equal(t, domain.ItemStatusCancelled, got.Items[0].Status)

		_, err = f.bookings.CancelBooking(ctx, renter, b.ID)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)
	})

	t.Run("OwnerAfterConfirmAdminStillCan", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 2, 3, 4))
		_, err := f.bookings.ConfirmBooking(ctx, managerA, b.ID)
		require.NoError(t, err)

		_, err = f.bookings.CancelBooking(ctx, renter, b.ID)
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)

		got, err := f.bookings.CancelBooking(ctx, managerA, b.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelledByAdmin, got.Status)
		assert.Equal(t, 5, f.available(t, "item-a", 3, 4))
		f.notifier.AssertCalled(t, "Notify", service.EventCancelled, b.ID)
	})
}

func TestBookingService_Delete(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 2, 3, 4))
	_, err := f.bookings.ConfirmBooking(ctx, managerA, b.ID)
	require.NoError(t, err)

	assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, renter, b.ID), domain.ErrForbidden)
	assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, adminB, b.ID), domain.ErrForbidden)

	require.NoError(t, f.bookings.DeleteBooking(ctx, managerA, b.ID))
	assert.Equal(t, 5, f.available(t, "item-a", 3, 4))

	got, err := f.bookings.GetBooking(ctx, superAdmin, b.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.BookingStatusDeleted, got.Status)

	assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, managerA, b.ID), domain.ErrIllegalTransition)
	assert.ErrorIs(t, f.bookings.DeleteBooking(ctx, managerA, "missing"), domain.ErrNotFound)

	list, total, err := f.bookings.ListMyBookings(ctx, renter, 1, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, list)
}

func TestBookingService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("ReplaceItems", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 4, 3, 4))

		res, err := f.bookings.UpdateBooking(ctx, renter, b.ID, []domain.BookingItemInput{line("item-a", 5, 3, 4), line("item-b", 1, 2, 3)})
		require.NoError(t, err)
		assert.Equal(t, domain.TightWindowWarning, res.Warning)
		assert.Equal(t, 0, f.available(t, "item-a", 3, 4), "old reservation released before the new one is checked")
		assert.Equal(t, 2, f.available(t, "item-b", 2, 3))

		var active int
		for _, it := range res.Booking.Items {
			if it.Status.IsActive() {
				active++
			}
		}
		assert.Equal(t, 2, active)
	})

	t.Run("FailedUpdateKeepsOldItems", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 2, 3, 4))

		_, err := f.bookings.UpdateBooking(ctx, renter, b.ID, []domain.BookingItemInput{line("item-a", 6, 3, 4)})
		assert.ErrorIs(t, err, domain.ErrInsufficientStock)
		assert.Equal(t, 3, f.available(t, "item-a", 3, 4))
	})

	t.Run("EmptyListCancels", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 2, 3, 4))

		res, err := f.bookings.UpdateBooking(ctx, renter, b.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, domain.BookingStatusCancelledByUser, res.Booking.Status)
		assert.Equal(t, 5, f.available(t, "item-a", 3, 4))
	})

	t.Run("NotAfterDecision", func(t *testing.T) {
		f := newFixture(t)
		b := f.create(t, renter, line("item-a", 1, 3, 4), line("item-b", 1, 3, 4))
		_, err := f.bookings.ConfirmItemsForOrg(ctx, managerA, b.ID, "org-a", nil)
		require.NoError(t, err)

		_, err = f.bookings.UpdateBooking(ctx, renter, b.ID, []domain.BookingItemInput{line("item-a", 1, 5, 6)})
		assert.ErrorIs(t, err, domain.ErrIllegalTransition)

		_, err = f.bookings.UpdateBooking(ctx, otherUser, b.ID, nil)
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})
}

func TestBookingService_PaymentStatusAndReads(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 1, 3, 4))

	_, err := f.bookings.UpdatePaymentStatus(ctx, managerA, b.ID, "bitcoin")
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.bookings.UpdatePaymentStatus(ctx, renter, b.ID, domain.PaymentStatusPaid)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	got, err := f.bookings.UpdatePaymentStatus(ctx, managerA, b.ID, domain.PaymentStatusInvoiceSent)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusInvoiceSent, got.PaymentStatus)

	_, err = f.bookings.GetBooking(ctx, renter, b.ID)
	assert.NoError(t, err)
	_, err = f.bookings.GetBooking(ctx, adminB, b.ID)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, _, err = f.bookings.ListBookings(ctx, managerA, "", 1, 10)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	all, total, err := f.bookings.ListBookings(ctx, superAdmin, domain.BookingStatusPending, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int32(1), total)
	assert.Len(t, all[0].Items, 1)
}

func TestBookingService_OverdueReminders(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.create(t, renter, line("item-a", 1, 3, 4))
	_, err := f.bookings.ConfirmBooking(ctx, managerA, b.ID)
	require.NoError(t, err)
	f.clock = dayOffset(3)
	_, err = f.bookings.ConfirmPickup(ctx, managerA, b.ID)
	require.NoError(t, err)

	n, err := f.bookings.SendOverdueReminders(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock = dayOffset(7)
	overdue, err := f.bookings.ListOverdue(ctx, superAdmin)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, 3, overdue[0].DaysOverdue)

	_, err = f.bookings.ListOverdue(ctx, managerA)
	assert.ErrorIs(t, err, domain.ErrForbidden)

	n, err = f.bookings.SendOverdueReminders(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	f.notifier.AssertCalled(t, "Notify", service.EventOverdueReminder, b.ID)
}

func TestBookingService_ConcurrentCreatesNeverOvercommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded, refused := 0, 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 1, 3, 5)})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
			} else if assert.ErrorIs(t, err, domain.ErrInsufficientStock) {
				refused++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 5, succeeded)
	assert.Equal(t, 15, refused)
	assert.Equal(t, 0, f.available(t, "item-a", 3, 5))
}

func TestBookingService_CapacityInvariantUnderRandomRequests(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rng := rand.New(rand.NewSource(42))

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		from := 3 + rng.Intn(10)
		to := from + 1 + rng.Intn(5)
		qty := 1 + rng.Intn(3)
		cancel := rng.Intn(4) == 0
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", qty, from, to)})
			if err != nil {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
				return
			}
			if cancel {
				_, err := f.bookings.CancelBooking(ctx, renter, res.Booking.ID)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	repos := f.store.Repositories()
	for d := 3; d <= 20; d++ {
		items, err := repos.Items.ListActiveOverlapping(ctx, "item-a", dayOffset(d), dayOffset(d))
		require.NoError(t, err)
		assert.LessOrEqual(t, domain.PeakLoad(items, dayOffset(d), dayOffset(d)), 5, "day %d overcommitted", d)
	}
}

func TestBookingService_BackToBackFullBookings(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.create(t, renter, line("item-a", 5, 3, 4))
	f.create(t, otherUser, line("item-a", 5, 6, 8))

	a, err := f.availability.GetAvailability(ctx, renter, "item-a", dayOffset(3), dayOffset(8))
	require.NoError(t, err, "no single day holds more than the stock")
	assert.Equal(t, 0, a.AvailableQuantity)
	assert.Equal(t, 5, a.AlreadyBookedQuantity)
	assert.Equal(t, 5, f.available(t, "item-a", 5, 5), "the gap day is free")

	_, err = f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 1, 3, 8)})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.NotErrorIs(t, err, domain.ErrIntegrity)

	res, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{line("item-a", 5, 5, 5)})
	require.NoError(t, err)
	assert.Len(t, res.Booking.Items, 1)
}

func TestBookingService_SameRequestLinesShareDays(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.bookings.CreateBooking(ctx, renter, []domain.BookingItemInput{
		line("item-a", 3, 3, 4),
		line("item-a", 3, 5, 6),
		line("item-a", 2, 3, 6),
	})
	require.NoError(t, err, "3+2 on every day fits five units")

	_, err = f.bookings.CreateBooking(ctx, otherUser, []domain.BookingItemInput{
		line("item-a", 1, 4, 5),
	})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
}

func TestAvailabilityService_NegativeIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	err := f.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		return repos.Items.Create(ctx, &domain.BookingItem{ItemID: "item-b", Quantity: 4, StartDate: dayOffset(3), EndDate: dayOffset(4), Status: domain.ItemStatusConfirmed})
	})
	require.NoError(t, err)

	a, err := f.availability.GetAvailability(ctx, renter, "item-b", dayOffset(3), dayOffset(3))
	assert.ErrorIs(t, err, domain.ErrIntegrity)
	require.NotNil(t, a)
	assert.Equal(t, -1, a.AvailableQuantity)
	assert.Equal(t, 4, a.AlreadyBookedQuantity)

	_, err = f.availability.GetAvailability(ctx, renter, "item-b", dayOffset(5), dayOffset(4))
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = f.availability.GetAvailability(ctx, renter, "missing", dayOffset(5), dayOffset(6))
	assert.ErrorIs(t, err, domain.ErrNotFound)

	n, err := f.availability.PhysicalAvailability(ctx, "item-b")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
