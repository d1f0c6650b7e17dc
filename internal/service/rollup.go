package service

import "storage-booking-backend/internal/domain"

// RollUpStatus derives a booking's status from its line items. It is called
// after every item mutation. Statuses set by fiat (user or admin cancellation,
// deletion) are kept as is.
func RollUpStatus(current domain.BookingStatus, items []domain.BookingItem) domain.BookingStatus {
	switch current {
	case domain.BookingStatusCancelledByUser, domain.BookingStatusCancelledByAdmin, domain.BookingStatusDeleted:
		return current
	}

	var considered, rejected, pending, returned int
	for _, it := range items {
		if it.Status == domain.ItemStatusCancelled {
			continue
		}
		considered++
		switch it.Status {
		case domain.ItemStatusRejected:
			rejected++
		case domain.ItemStatusPending:
			pending++
		case domain.ItemStatusReturned:
			returned++
		}
	}

	switch {
	case considered == 0:
		return current
	case rejected == considered:
		return domain.BookingStatusRejected
	case pending > 0:
		return domain.BookingStatusPending
	case returned > 0 && returned+rejected == considered:
		return domain.BookingStatusCompleted
	default:
		return domain.BookingStatusConfirmed
	}
}
