package service

import (
	"context"
	"slices"
	"time"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

// decision selects the line items a confirm or reject call acts on. An empty
// orgID means the whole booking.
type decision struct {
	orgID   string
	itemIDs []string
	to      domain.BookingItemStatus
}

func (s *bookingService) ConfirmBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (b *domain.Booking, err error) {
	defer s.observe("confirm", time.Now(), &err)
	return s.decide(ctx, caller, bookingID, decision{to: domain.ItemStatusConfirmed})
}

func (s *bookingService) RejectBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (b *domain.Booking, err error) {
	defer s.observe("reject", time.Now(), &err)
	return s.decide(ctx, caller, bookingID, decision{to: domain.ItemStatusRejected})
}

func (s *bookingService) ConfirmItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (b *domain.Booking, err error) {
	defer s.observe("confirm_for_org", time.Now(), &err)
	if orgID == "" {
		return nil, domain.ValidationErrorf("org_id is required")
	}
	return s.decide(ctx, caller, bookingID, decision{orgID: orgID, itemIDs: itemIDs, to: domain.ItemStatusConfirmed})
}

func (s *bookingService) RejectItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (b *domain.Booking, err error) {
	defer s.observe("reject_for_org", time.Now(), &err)
	if orgID == "" {
		return nil, domain.ValidationErrorf("org_id is required")
	}
	return s.decide(ctx, caller, bookingID, decision{orgID: orgID, itemIDs: itemIDs, to: domain.ItemStatusRejected})
}

func (s *bookingService) decide(ctx context.Context, caller authz.AuthContext, bookingID string, d decision) (*domain.Booking, error) {
	if err := requireManager(caller, d.orgID); err != nil {
		return nil, err
	}

	var booking *domain.Booking
	var touched []string
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		if d.orgID == "" && !authz.AuthorizeAll(caller, authz.ManageOrgItems, b.ProviderOrgIDs()) {
			return domain.Forbidden("not allowed to manage this booking")
		}
		if b.Status.IsTerminal() {
			return domain.IllegalTransitionf("booking is %s", b.Status)
		}

		targets, err := selectTargets(caller, b, d)
		if err != nil {
			return err
		}
		for _, it := range targets {
			if !it.Status.CanTransition(d.to) {
				return domain.IllegalTransitionf("item %s cannot move from %s to %s", it.ID, it.Status, d.to)
			}
		}

		if d.to == domain.ItemStatusConfirmed {
			inventory, err := lockInventory(ctx, repos, itemIDsOf(targets))
			if err != nil {
				return err
			}
			if err := checkPhysical(inventory, peakDemand(targets)); err != nil {
				return err
			}
		}

		if err := applyItemStatus(ctx, repos, b, targets, d.to); err != nil {
			return err
		}
		booking = b
		touched = itemIDsOf(targets)
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := EventRejected
	if d.to == domain.ItemStatusConfirmed {
		event = EventConfirmed
		if booking.Status != domain.BookingStatusConfirmed {
			event = EventPartiallyConfirmed
		}
	}
	s.log.Info("Booking items decided", "booking_id", booking.ID, "to", d.to, "org_id", d.orgID, "items", len(touched), "status", booking.Status)
	if d.to == domain.ItemStatusRejected {
		s.afterWrite(ctx, event, booking, touched)
	} else {
		s.afterWrite(ctx, event, booking, nil)
	}
	return booking, nil
}

// selectTargets resolves the items a decision applies to. Without explicit
// item ids only pending items are taken.
func selectTargets(caller authz.AuthContext, b *domain.Booking, d decision) ([]domain.BookingItem, error) {
	scoped, err := scopeItems(caller, b, d.orgID, d.itemIDs)
	if err != nil {
		return nil, err
	}
	if len(d.itemIDs) > 0 {
		return scoped, nil
	}

	var targets []domain.BookingItem
	for _, it := range scoped {
		if it.Status == domain.ItemStatusPending {
			targets = append(targets, it)
		}
	}
	if len(targets) == 0 {
		return nil, domain.IllegalTransitionf("no pending items to mark %s", d.to)
	}
	return targets, nil
}

// requireManager runs before any booking is read, so callers without a
// managing role learn nothing about which bookings exist. A non-empty orgID
// must be managed by the caller.
func requireManager(caller authz.AuthContext, orgID string) error {
	if orgID != "" {
		return authz.Require(caller, authz.ManageOrgItems, orgID, "not allowed to manage items of this organization")
	}
	if !authz.HoldsAnywhere(caller, authz.ManageOrgItems) {
		return domain.Forbidden("not allowed to manage bookings")
	}
	return nil
}

// scopeItems returns the items of b an org-level action applies to. Explicit
// itemIDs must all belong to orgID. Without them it takes every item of orgID,
// or with no orgID every item of an organization the caller manages.
func scopeItems(caller authz.AuthContext, b *domain.Booking, orgID string, itemIDs []string) ([]domain.BookingItem, error) {
	var scoped []domain.BookingItem
	switch {
	case len(itemIDs) > 0:
		if orgID == "" {
			return nil, domain.ValidationErrorf("org_id is required when item_ids are given")
		}
		for _, id := range distinct(itemIDs) {
			idx := slices.IndexFunc(b.Items, func(it domain.BookingItem) bool { return it.ID == id })
			if idx < 0 {
				return nil, domain.NotFound("booking item")
			}
			if b.Items[idx].ProviderOrgID != orgID {
				return nil, domain.Forbidden("not allowed to manage items of this organization")
			}
			scoped = append(scoped, b.Items[idx])
		}
	case orgID != "":
		for _, it := range b.Items {
			if it.ProviderOrgID == orgID {
				scoped = append(scoped, it)
			}
		}
	default:
		for _, it := range b.Items {
			if authz.Authorize(caller, authz.ManageOrgItems, it.ProviderOrgID) {
				scoped = append(scoped, it)
			}
		}
		if len(scoped) == 0 {
			return nil, domain.Forbidden("not allowed to manage this booking")
		}
	}
	return scoped, nil
}

func (s *bookingService) CancelBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (booking *domain.Booking, err error) {
	defer s.observe("cancel", time.Now(), &err)

	var touched []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		admin := isOrgAdmin(caller, b)
		if !admin {
			if b.UserID != caller.UserID {
				return denyStranger(caller, "not allowed to cancel this booking")
			}
			if b.Status != domain.BookingStatusPending {
				return domain.IllegalTransitionf("booking is %s and can no longer be cancelled by the requester", b.Status)
			}
		}
		if b.Status.IsTerminal() {
			return domain.IllegalTransitionf("booking is %s", b.Status)
		}

		active, err := releasable(b.Items)
		if err != nil {
			return err
		}
		if err := applyItemStatus(ctx, repos, b, active, domain.ItemStatusCancelled); err != nil {
			return err
		}
		b.Status = cancelledStatus(admin)
		if err := repos.Bookings.UpdateStatus(ctx, b.ID, b.Status); err != nil {
			return err
		}
		booking = b
		touched = itemIDsOf(active)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking cancelled", "booking_id", booking.ID, "status", booking.Status, "by", caller.UserID)
	s.afterWrite(ctx, EventCancelled, booking, touched)
	return booking, nil
}

// CancelItemsForOrg releases the pending and confirmed items one providing
// organization has in the booking. The booking becomes cancelled by admin
// once none of its items is left.
func (s *bookingService) CancelItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (booking *domain.Booking, err error) {
	defer s.observe("cancel_for_org", time.Now(), &err)

	if orgID == "" {
		return nil, domain.ValidationErrorf("org_id is required")
	}
	if err := requireManager(caller, orgID); err != nil {
		return nil, err
	}

	var touched []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return domain.IllegalTransitionf("booking is %s", b.Status)
		}

		scoped, err := scopeItems(caller, b, orgID, itemIDs)
		if err != nil {
			return err
		}
		targets := scoped
		if len(itemIDs) == 0 {
			if targets, err = releasable(scoped); err != nil {
				return err
			}
		}
		for _, it := range targets {
			if !it.Status.CanTransition(domain.ItemStatusCancelled) {
				return domain.IllegalTransitionf("item %s cannot be cancelled from %s", it.ID, it.Status)
			}
		}
		if len(targets) == 0 {
			return domain.IllegalTransitionf("no items of this organization left to cancel")
		}

		if err := applyItemStatus(ctx, repos, b, targets, domain.ItemStatusCancelled); err != nil {
			return err
		}
		if !slices.ContainsFunc(b.Items, func(it domain.BookingItem) bool { return it.Status != domain.ItemStatusCancelled }) {
			b.Status = domain.BookingStatusCancelledByAdmin
			if err := repos.Bookings.UpdateStatus(ctx, b.ID, b.Status); err != nil {
				return err
			}
		}
		booking = b
		touched = itemIDsOf(targets)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking items cancelled", "booking_id", booking.ID, "org_id", orgID, "items", len(touched), "status", booking.Status)
	s.afterWrite(ctx, EventCancelled, booking, touched)
	return booking, nil
}

func (s *bookingService) DeleteBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	if err := requireManager(caller, ""); err != nil {
		return err
	}

	var booking *domain.Booking
	var touched []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		if !isOrgAdmin(caller, b) {
			return domain.Forbidden("not allowed to delete this booking")
		}
		if b.Status == domain.BookingStatusDeleted {
			return domain.IllegalTransitionf("booking is already deleted")
		}

		active, err := releasable(b.Items)
		if err != nil {
			return err
		}
		if err := applyItemStatus(ctx, repos, b, active, domain.ItemStatusCancelled); err != nil {
			return err
		}
		b.Status = domain.BookingStatusDeleted
		if err := repos.Bookings.UpdateStatus(ctx, b.ID, b.Status); err != nil {
			return err
		}
		booking = b
		touched = itemIDsOf(active)
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Booking deleted", "booking_id", booking.ID, "by", caller.UserID)
	s.afterWrite(ctx, EventDeleted, booking, touched)
	return nil
}

// releasable returns the items still holding a reservation. Items already in
// the renter's hands cannot be released.
func releasable(items []domain.BookingItem) ([]domain.BookingItem, error) {
	var active []domain.BookingItem
	for _, it := range items {
		switch it.Status {
		case domain.ItemStatusPickedUp:
			return nil, domain.IllegalTransitionf("item %s has been picked up and must be returned first", it.ID)
		case domain.ItemStatusPending, domain.ItemStatusConfirmed:
			active = append(active, it)
		}
	}
	return active, nil
}

func (s *bookingService) ConfirmPickup(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error) {
	return s.ConfirmPickupForOrg(ctx, caller, bookingID, "", nil)
}

// ConfirmPickupForOrg hands out the confirmed items of orgID, or of every
// organization the caller manages when orgID is empty.
func (s *bookingService) ConfirmPickupForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (booking *domain.Booking, err error) {
	defer s.observe("pickup", time.Now(), &err)

	if err := requireManager(caller, orgID); err != nil {
		return nil, err
	}

	today := domain.Day(s.now())
	units := 0
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		if b.Status.IsTerminal() {
			return domain.IllegalTransitionf("booking is %s", b.Status)
		}
		scoped, err := scopeItems(caller, b, orgID, itemIDs)
		if err != nil {
			return err
		}

		var targets []domain.BookingItem
		for _, it := range scoped {
			if it.Status.IsSettled() {
				continue
			}
			switch it.Status {
			case domain.ItemStatusConfirmed:
			case domain.ItemStatusPickedUp, domain.ItemStatusReturned:
				return domain.IllegalTransitionf("item %s has already been picked up", it.ID)
			default:
				return domain.IllegalTransitionf("item %s is %s, not confirmed", it.ID, it.Status)
			}
			if domain.Day(it.StartDate).After(today) {
				return domain.ValidationErrorf("item %s cannot be picked up before %s", it.ID, domain.FormatDay(it.StartDate))
			}
			targets = append(targets, it)
		}
		if len(targets) == 0 {
			return domain.IllegalTransitionf("booking has no items to pick up")
		}

		inventory, err := lockInventory(ctx, repos, itemIDsOf(targets))
		if err != nil {
			return err
		}
		demand := demandByItem(targets)
		if err := withdraw(ctx, repos, inventory, demand); err != nil {
			return err
		}
		if err := applyItemStatus(ctx, repos, b, targets, domain.ItemStatusPickedUp); err != nil {
			return err
		}
		booking = b
		units = unitsOf(demand)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStockMovement("out", units)
	s.log.Info("Booking picked up", "booking_id", booking.ID, "org_id", orgID, "units", units)
	s.afterWrite(ctx, EventPickedUp, booking, nil)
	return booking, nil
}

func (s *bookingService) ReturnItems(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error) {
	return s.ReturnItemsForOrg(ctx, caller, bookingID, "", nil)
}

// ReturnItemsForOrg takes back the picked-up items of orgID, or of every
// organization the caller manages when orgID is empty.
func (s *bookingService) ReturnItemsForOrg(ctx context.Context, caller authz.AuthContext, bookingID, orgID string, itemIDs []string) (booking *domain.Booking, err error) {
	defer s.observe("return", time.Now(), &err)

	if err := requireManager(caller, orgID); err != nil {
		return nil, err
	}

	units := 0
	var touched []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		scoped, err := scopeItems(caller, b, orgID, itemIDs)
		if err != nil {
			return err
		}

		var targets []domain.BookingItem
		for _, it := range scoped {
			if it.Status.IsSettled() {
				continue
			}
			switch it.Status {
			case domain.ItemStatusPickedUp:
			case domain.ItemStatusReturned:
				return domain.IllegalTransitionf("item %s has already been returned", it.ID)
			default:
				return domain.IllegalTransitionf("item %s is %s, not picked up", it.ID, it.Status)
			}
			targets = append(targets, it)
		}
		if len(targets) == 0 {
			return domain.IllegalTransitionf("booking has no items to return")
		}

		demand := demandByItem(targets)
		if err := restock(ctx, repos, demand); err != nil {
			return err
		}
		if err := applyItemStatus(ctx, repos, b, targets, domain.ItemStatusReturned); err != nil {
			return err
		}
		booking = b
		units = unitsOf(demand)
		touched = itemIDsOf(targets)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveStockMovement("in", units)
	s.log.Info("Booking returned", "booking_id", booking.ID, "org_id", orgID, "units", units, "status", booking.Status)
	s.afterWrite(ctx, EventReturned, booking, touched)
	return booking, nil
}

func (s *bookingService) UpdatePaymentStatus(ctx context.Context, caller authz.AuthContext, bookingID string, status domain.PaymentStatus) (booking *domain.Booking, err error) {
	defer s.observe("payment_status", time.Now(), &err)

	if !status.Valid() {
		return nil, domain.ValidationErrorf("unknown payment status %q", status)
	}
	if err := requireManager(caller, ""); err != nil {
		return nil, err
	}
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		if !isOrgAdmin(caller, b) {
			return domain.Forbidden("not allowed to update payment of this booking")
		}
		if b.Status == domain.BookingStatusDeleted {
			return domain.IllegalTransitionf("booking is deleted")
		}
		if err := repos.Bookings.UpdatePaymentStatus(ctx, b.ID, status); err != nil {
			return err
		}
		b.PaymentStatus = status
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("Payment status updated", "booking_id", booking.ID, "payment_status", status)
	return booking, nil
}

// applyItemStatus persists the new status of targets, mirrors it on b.Items
// and stores the rolled-up booking status when it changed.
func applyItemStatus(ctx context.Context, repos repository.Repositories, b *domain.Booking, targets []domain.BookingItem, to domain.BookingItemStatus) error {
	if len(targets) == 0 {
		return nil
	}
	ids := make([]string, len(targets))
	for i, it := range targets {
		ids[i] = it.ID
	}
	if err := repos.Items.UpdateStatus(ctx, ids, to); err != nil {
		return err
	}
	for i := range b.Items {
		if slices.Contains(ids, b.Items[i].ID) {
			b.Items[i].Status = to
		}
	}

	next := RollUpStatus(b.Status, b.Items)
	if next == b.Status {
		return nil
	}
	if err := repos.Bookings.UpdateStatus(ctx, b.ID, next); err != nil {
		return err
	}
	b.Status = next
	return nil
}
