package domain

import "time"

type BookingStatus string

const (
	BookingStatusPending          BookingStatus = "pending"
	BookingStatusConfirmed        BookingStatus = "confirmed"
	BookingStatusRejected         BookingStatus = "rejected"
	BookingStatusCancelledByUser  BookingStatus = "cancelled by user"
	BookingStatusCancelledByAdmin BookingStatus = "cancelled by admin"
	BookingStatusCompleted        BookingStatus = "completed"
	BookingStatusDeleted          BookingStatus = "deleted"
)

// IsTerminal reports whether no further transition may leave this status.
func (s BookingStatus) IsTerminal() bool {
	switch s {
	case BookingStatusRejected, BookingStatusCancelledByUser, BookingStatusCancelledByAdmin,
		BookingStatusCompleted, BookingStatusDeleted:
		return true
	}
	return false
}

func (s BookingStatus) Valid() bool {
	switch s {
	case BookingStatusPending, BookingStatusConfirmed, BookingStatusRejected, BookingStatusCancelledByUser,
		BookingStatusCancelledByAdmin, BookingStatusCompleted, BookingStatusDeleted:
		return true
	}
	return false
}

type BookingItemStatus string

const (
	ItemStatusPending   BookingItemStatus = "pending"
	ItemStatusConfirmed BookingItemStatus = "confirmed"
	ItemStatusRejected  BookingItemStatus = "rejected"
	ItemStatusCancelled BookingItemStatus = "cancelled"
	ItemStatusPickedUp  BookingItemStatus = "picked_up"
	ItemStatusReturned  BookingItemStatus = "returned"
)

// ActiveItemStatuses are the statuses that hold reserved capacity.
var ActiveItemStatuses = []BookingItemStatus{ItemStatusPending, ItemStatusConfirmed, ItemStatusPickedUp}

// IsActive reports whether an item in this status counts against availability.
func (s BookingItemStatus) IsActive() bool {
	return s == ItemStatusPending || s == ItemStatusConfirmed || s == ItemStatusPickedUp
}

// IsSettled reports whether the item has been decided against and no longer
// takes part in fulfilment (it was rejected or cancelled).
func (s BookingItemStatus) IsSettled() bool {
	return s == ItemStatusRejected || s == ItemStatusCancelled
}

var itemTransitions = map[BookingItemStatus][]BookingItemStatus{
	ItemStatusPending:   {ItemStatusConfirmed, ItemStatusRejected, ItemStatusCancelled},
	ItemStatusConfirmed: {ItemStatusPickedUp, ItemStatusCancelled},
	ItemStatusPickedUp:  {ItemStatusReturned},
}

// CanTransition reports whether a line item may move from one status to another.
func (s BookingItemStatus) CanTransition(to BookingItemStatus) bool {
	for _, next := range itemTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusNotApplicable PaymentStatus = "N/A"
	PaymentStatusInvoiceSent   PaymentStatus = "invoice-sent"
	PaymentStatusPaid          PaymentStatus = "paid"
	PaymentStatusRefunded      PaymentStatus = "refunded"
	PaymentStatusRejected      PaymentStatus = "rejected"
)

func (p PaymentStatus) Valid() bool {
	switch p {
	case PaymentStatusNotApplicable, PaymentStatusInvoiceSent, PaymentStatusPaid,
		PaymentStatusRefunded, PaymentStatusRejected:
		return true
	}
	return false
}

type Booking struct {
	ID            string        `json:"id"`
	UserID        string        `json:"user_id"`
	BookingNumber string        `json:"booking_number"`
	Status        BookingStatus `json:"status"`
	PaymentStatus PaymentStatus `json:"payment_status"`
	BookedByOrg   *string       `json:"booked_by_org,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
	Items         []BookingItem `json:"items,omitempty"` // Populated when fetching booking details
}

// ProviderOrgIDs returns the distinct providing organizations of the booking's items.
func (b *Booking) ProviderOrgIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, it := range b.Items {
		if !seen[it.ProviderOrgID] {
			seen[it.ProviderOrgID] = true
			ids = append(ids, it.ProviderOrgID)
		}
	}
	return ids
}

type BookingItem struct {
	ID            string            `json:"id"`
	BookingID     string            `json:"booking_id"`
	ItemID        string            `json:"item_id"`
	ProviderOrgID string            `json:"provider_organization_id"`
	LocationID    string            `json:"location_id"`
	Quantity      int               `json:"quantity"`
	StartDate     time.Time         `json:"start_date"`
	EndDate       time.Time         `json:"end_date"`
	TotalDays     int               `json:"total_days"`
	Status        BookingItemStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// BookingItemInput is one requested line of a create or update call.
type BookingItemInput struct {
	ItemID    string
	Quantity  int
	StartDate time.Time
	EndDate   time.Time
}

// BookingResult carries a booking together with a non-fatal warning.
type BookingResult struct {
	Booking *Booking `json:"booking"`
	Warning string   `json:"warning,omitempty"`
}

type BookingFilter struct {
	Status   BookingStatus
	UserID   string
	Page     int32
	PageSize int32
}

// OverdueBooking is a booking holding picked-up items past their end date.
type OverdueBooking struct {
	BookingID       string    `json:"booking_id"`
	BookingNumber   string    `json:"booking_number"`
	UserID          string    `json:"user_id"`
	EarliestDueDate time.Time `json:"earliest_due_date"`
	DaysOverdue     int       `json:"days_overdue"`
}
