package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/repository"
)

type bookingService struct {
	store    repository.Store
	notifier Notifier
	cache    AvailabilityCache
	metrics  MetricsRecorder
	log      *slog.Logger
	now      func() time.Time
}

func NewBookingService(
	store repository.Store,
	notifier Notifier,
	cache AvailabilityCache,
	metrics MetricsRecorder,
	log *slog.Logger,
	now func() time.Time,
) BookingService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if cache == nil {
		cache = noopCache{}
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	if now == nil {
		now = time.Now
	}
	return &bookingService{
		store:    store,
		notifier: notifier,
		cache:    cache,
		metrics:  metrics,
		log:      log,
		now:      now,
	}
}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, BookingEvent, *domain.Booking) {}

func (s *bookingService) CreateBooking(ctx context.Context, caller authz.AuthContext, inputs []domain.BookingItemInput) (res *domain.BookingResult, err error) {
	defer s.observe("create", time.Now(), &err)

	if err := authz.Require(caller, authz.CreateBooking, "", "not allowed to create bookings"); err != nil {
		return nil, err
	}
	if len(inputs) == 0 {
		return nil, domain.ValidationErrorf("at least one item is required")
	}
	warn, err := validateLines(s.now(), inputs)
	if err != nil {
		return nil, err
	}

	var booking *domain.Booking
	for attempt := 1; ; attempt++ {
		err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
			lines, err := planLines(ctx, repos, inputs)
			if err != nil {
				return err
			}
			b := &domain.Booking{
				UserID:        caller.UserID,
				BookingNumber: newBookingNumber(s.now()),
				Status:        domain.BookingStatusPending,
				PaymentStatus: domain.PaymentStatusNotApplicable,
				BookedByOrg:   bookedByOrg(caller),
			}
			if err := repos.Bookings.Create(ctx, b); err != nil {
				return err
			}
			if err := insertLines(ctx, repos, b.ID, lines); err != nil {
				return err
			}
			b.Items = lines
			booking = b
			return nil
		})
		if errors.Is(err, repository.ErrBookingNumberTaken) && attempt < bookingNumberAttempts {
			s.log.Debug("Booking number collision, retrying", "attempt", attempt)
			continue
		}
		break
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("Booking created", "booking_id", booking.ID, "booking_number", booking.BookingNumber, "user_id", caller.UserID, "items", len(booking.Items))
	s.afterWrite(ctx, EventCreated, booking, itemIDsOf(booking.Items))
	return &domain.BookingResult{Booking: booking, Warning: warning(warn)}, nil
}

func (s *bookingService) UpdateBooking(ctx context.Context, caller authz.AuthContext, bookingID string, inputs []domain.BookingItemInput) (res *domain.BookingResult, err error) {
	defer s.observe("update", time.Now(), &err)

	if err := authz.Require(caller, authz.CreateBooking, "", "not allowed to update bookings"); err != nil {
		return nil, err
	}
	warn := false
	if len(inputs) > 0 {
		if warn, err = validateLines(s.now(), inputs); err != nil {
			return nil, err
		}
	}

	var booking *domain.Booking
	var released []string
	err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repositories) error {
		released = nil
		b, err := loadBooking(ctx, repos, bookingID, true)
		if err != nil {
			return err
		}
		admin := isOrgAdmin(caller, b)
		if !admin && b.UserID != caller.UserID {
			return denyStranger(caller, "not allowed to update this booking")
		}
		if b.Status != domain.BookingStatusPending {
			return domain.IllegalTransitionf("only pending bookings can be updated, booking is %s", b.Status)
		}

		var current []string
		for _, it := range b.Items {
			if it.Status == domain.ItemStatusCancelled {
				continue
			}
			if it.Status != domain.ItemStatusPending {
				return domain.IllegalTransitionf("booking has items that were already %s", it.Status)
			}
			current = append(current, it.ID)
			released = append(released, it.ItemID)
		}
		if err := repos.Items.UpdateStatus(ctx, current, domain.ItemStatusCancelled); err != nil {
			return err
		}

		if len(inputs) == 0 {
			b.Status = cancelledStatus(admin)
			if err := repos.Bookings.UpdateStatus(ctx, b.ID, b.Status); err != nil {
				return err
			}
		} else {
			lines, err := planLines(ctx, repos, inputs)
			if err != nil {
				return err
			}
			if err := insertLines(ctx, repos, b.ID, lines); err != nil {
				return err
			}
		}

		if b.Items, err = repos.Items.ListByBooking(ctx, b.ID); err != nil {
			return err
		}
		booking = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	event := EventUpdated
	if len(inputs) == 0 {
		event = EventCancelled
	}
	s.log.Info("Booking updated", "booking_id", booking.ID, "user_id", caller.UserID, "items", len(inputs))
	s.afterWrite(ctx, event, booking, append(released, itemIDsOf(booking.Items)...))
	return &domain.BookingResult{Booking: booking, Warning: warning(warn)}, nil
}

func (s *bookingService) GetBooking(ctx context.Context, caller authz.AuthContext, bookingID string) (*domain.Booking, error) {
	b, err := loadBooking(ctx, s.store.Repositories(), bookingID, false)
	if err != nil {
		return nil, err
	}
	if b.UserID != caller.UserID && !isOrgAdmin(caller, b) {
		return nil, denyStranger(caller, "not allowed to view this booking")
	}
	return b, nil
}

func (s *bookingService) ListMyBookings(ctx context.Context, caller authz.AuthContext, page, pageSize int32) ([]domain.Booking, int32, error) {
	if err := authz.Require(caller, authz.ViewOwnBookings, "", "not allowed to list bookings"); err != nil {
		return nil, 0, err
	}
	return s.list(ctx, domain.BookingFilter{UserID: caller.UserID, Page: page, PageSize: pageSize})
}

func (s *bookingService) ListBookings(ctx context.Context, caller authz.AuthContext, status domain.BookingStatus, page, pageSize int32) ([]domain.Booking, int32, error) {
	if err := authz.Require(caller, authz.ListAllBookings, "", "not allowed to list all bookings"); err != nil {
		return nil, 0, err
	}
	if status != "" && !status.Valid() {
		return nil, 0, domain.ValidationErrorf("unknown booking status %q", status)
	}
	return s.list(ctx, domain.BookingFilter{Status: status, Page: page, PageSize: pageSize})
}

func (s *bookingService) list(ctx context.Context, filter domain.BookingFilter) ([]domain.Booking, int32, error) {
	repos := s.store.Repositories()
	bookings, total, err := repos.Bookings.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	for i := range bookings {
		if bookings[i].Items, err = repos.Items.ListByBooking(ctx, bookings[i].ID); err != nil {
			return nil, 0, err
		}
	}
	return bookings, total, nil
}

func (s *bookingService) ListOverdue(ctx context.Context, caller authz.AuthContext) ([]domain.OverdueBooking, error) {
	if err := authz.Require(caller, authz.ListAllBookings, "", "not allowed to list overdue bookings"); err != nil {
		return nil, err
	}
	return s.store.Repositories().Items.ListOverdue(ctx, s.now())
}

func (s *bookingService) SendOverdueReminders(ctx context.Context) (int, error) {
	repos := s.store.Repositories()
	overdue, err := repos.Items.ListOverdue(ctx, s.now())
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, o := range overdue {
		b, err := loadBooking(ctx, repos, o.BookingID, false)
		if err != nil {
			s.log.Error("Failed to load overdue booking", "booking_id", o.BookingID, "error", err)
			continue
		}
		s.log.Info("Sending overdue reminder", "booking_id", b.ID, "days_overdue", o.DaysOverdue)
		s.notifier.Notify(ctx, EventOverdueReminder, b)
		sent++
	}
	return sent, nil
}

func (s *bookingService) afterWrite(ctx context.Context, event BookingEvent, b *domain.Booking, touched []string) {
	if len(touched) > 0 {
		s.cache.Invalidate(ctx, distinct(touched)...)
	}
	s.notifier.Notify(ctx, event, b)
}

func (s *bookingService) observe(op string, started time.Time, err *error) {
	s.metrics.ObserveOperation(op, outcome(*err), time.Since(started))
	if *err == nil {
		return
	}
	switch domain.KindOf(*err) {
	case "", domain.KindIntegrity:
		s.log.Error("Booking operation failed", "operation", op, "error", *err)
	default:
		s.log.Debug("Booking operation refused", "operation", op, "error", *err)
	}
}

// validateLines checks every requested line and reports whether any of them
// starts inside the tight window.
func validateLines(now time.Time, inputs []domain.BookingItemInput) (bool, error) {
	warn := false
	for _, in := range inputs {
		w, err := domain.ValidateLine(now, in)
		if err != nil {
			return false, err
		}
		warn = warn || w
	}
	return warn, nil
}

// planLines locks the requested items and verifies physical and virtual
// stock for every line. Each line must fit on every one of its days next to
// the committed reservations and the earlier lines of the same request.
func planLines(ctx context.Context, repos repository.Repositories, inputs []domain.BookingItemInput) ([]domain.BookingItem, error) {
	ids := make([]string, len(inputs))
	for i, in := range inputs {
		ids[i] = in.ItemID
	}
	inventory, err := lockInventory(ctx, repos, ids)
	if err != nil {
		return nil, err
	}

	lines := make([]domain.BookingItem, len(inputs))
	for i, in := range inputs {
		inv := inventory[in.ItemID]
		if !inv.Bookable() {
			return nil, domain.ValidationErrorf("item %s is not available for booking", in.ItemID)
		}
		start, end := domain.Day(in.StartDate), domain.Day(in.EndDate)
		lines[i] = domain.BookingItem{
			ItemID:        in.ItemID,
			ProviderOrgID: inv.OrgID,
			LocationID:    inv.LocationID,
			Quantity:      in.Quantity,
			StartDate:     start,
			EndDate:       end,
			TotalDays:     domain.TotalDays(start, end),
			Status:        domain.ItemStatusPending,
		}
	}

	if err := checkPhysical(inventory, peakDemand(lines)); err != nil {
		return nil, err
	}

	for i, line := range lines {
		inv := inventory[line.ItemID]
		_, reserved, err := availableQuantity(ctx, repos, inv, line.StartDate, line.EndDate)
		if err != nil {
			return nil, err
		}
		for _, prev := range lines[:i] {
			if prev.ItemID == line.ItemID {
				reserved = append(reserved, prev)
			}
		}
		reserved = append(reserved, line)
		if domain.PeakLoad(reserved, line.StartDate, line.EndDate) > inv.TotalUnits {
			return nil, domain.InsufficientStock(line.ItemID, "insufficient virtual stock")
		}
	}
	return lines, nil
}

func insertLines(ctx context.Context, repos repository.Repositories, bookingID string, lines []domain.BookingItem) error {
	for i := range lines {
		lines[i].BookingID = bookingID
		if err := repos.Items.Create(ctx, &lines[i]); err != nil {
			return err
		}
	}
	return nil
}

func loadBooking(ctx context.Context, repos repository.Repositories, id string, lock bool) (*domain.Booking, error) {
	var b *domain.Booking
	var err error
	if lock {
		b, err = repos.Bookings.LockByID(ctx, id)
	} else {
		b, err = repos.Bookings.GetByID(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if b.Items, err = repos.Items.ListByBooking(ctx, b.ID); err != nil {
		return nil, err
	}
	return b, nil
}

// isOrgAdmin reports whether the caller administers at least one
// organization providing items to b, or holds a global role.
func isOrgAdmin(caller authz.AuthContext, b *domain.Booking) bool {
	return authz.AuthorizeAny(caller, authz.ManageOrgItems, b.ProviderOrgIDs())
}

// denyStranger refuses a caller who neither owns nor manages a booking. Only
// callers managing some organization may learn that the booking exists.
func denyStranger(caller authz.AuthContext, message string) error {
	if !authz.HoldsAnywhere(caller, authz.ManageOrgItems) {
		return domain.NotFound("booking")
	}
	return domain.Forbidden(message)
}

func bookedByOrg(caller authz.AuthContext) *string {
	if caller.ActiveOrgID == "" {
		return nil
	}
	for _, r := range authz.BookedByOrgRoles {
		if caller.ActiveRole == r && caller.HasRoleIn(caller.ActiveOrgID, r) {
			org := caller.ActiveOrgID
			return &org
		}
	}
	return nil
}

func cancelledStatus(admin bool) domain.BookingStatus {
	if admin {
		return domain.BookingStatusCancelledByAdmin
	}
	return domain.BookingStatusCancelledByUser
}

func warning(warn bool) string {
	if warn {
		return domain.TightWindowWarning
	}
	return ""
}

func itemIDsOf(items []domain.BookingItem) []string {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ItemID)
	}
	return ids
}
