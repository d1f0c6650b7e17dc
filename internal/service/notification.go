package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/logger"
	"storage-booking-backend/internal/repository"
)

type BookingEvent string

const (
	EventCreated            BookingEvent = "created"
	EventUpdated            BookingEvent = "updated"
	EventConfirmed          BookingEvent = "confirmed"
	EventPartiallyConfirmed BookingEvent = "partially_confirmed"
	EventRejected           BookingEvent = "rejected"
	EventCancelled          BookingEvent = "cancelled"
	EventDeleted            BookingEvent = "deleted"
	EventPickedUp           BookingEvent = "picked_up"
	EventReturned           BookingEvent = "returned"
	EventOverdueReminder    BookingEvent = "overdue_reminder"
)

var eventSubjects = map[BookingEvent]string{
	EventCreated:            "Booking %s received",
	EventUpdated:            "Booking %s updated",
	EventConfirmed:          "Booking %s confirmed",
	EventPartiallyConfirmed: "Booking %s partially confirmed",
	EventRejected:           "Booking %s rejected",
	EventCancelled:          "Booking %s cancelled",
	EventDeleted:            "Booking %s deleted",
	EventPickedUp:           "Booking %s picked up",
	EventReturned:           "Booking %s returned",
	EventOverdueReminder:    "Reminder: booking %s is overdue",
}

// MailNotifier mails booking events to the booking owner and the operations
// mailbox. Delivery runs in the background and failures are only logged.
type MailNotifier struct {
	users      repository.UserRepository
	email      EmailService
	opsMailbox string
	timeout    time.Duration
	log        *slog.Logger
	wg         sync.WaitGroup
}

func NewMailNotifier(users repository.UserRepository, email EmailService, opsMailbox string, timeout time.Duration, log *slog.Logger) *MailNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MailNotifier{users: users, email: email, opsMailbox: opsMailbox, timeout: timeout, log: log}
}

func (n *MailNotifier) Notify(ctx context.Context, event BookingEvent, b *domain.Booking) {
	if b == nil {
		return
	}
	snapshot := *b
	snapshot.Items = append([]domain.BookingItem(nil), b.Items...)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		n.deliver(context.WithoutCancel(ctx), event, &snapshot)
	}()
}

// Wait blocks until queued deliveries finish.
func (n *MailNotifier) Wait() {
	n.wg.Wait()
}

func (n *MailNotifier) deliver(ctx context.Context, event BookingEvent, b *domain.Booking) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	subject := fmt.Sprintf(eventSubjects[event], b.BookingNumber)
	body := renderBookingMail(event, b)

	owner, err := n.users.GetByID(ctx, b.UserID)
	if err != nil {
		n.log.Warn("Failed to load booking owner for notification", "booking_id", b.ID, "error", err)
	} else if owner.Email != "" {
		err := n.email.SendEmail(ctx, owner.Email, owner.FullName, subject, body)
		logger.ExternalServiceResult(n.log.With("booking_id", b.ID), "email", "notify_owner:"+string(event), err)
	}

	if n.opsMailbox != "" && event != EventOverdueReminder {
		err := n.email.SendEmail(ctx, n.opsMailbox, "Operations", subject, body)
		logger.ExternalServiceResult(n.log.With("booking_id", b.ID), "email", "notify_ops:"+string(event), err)
	}
}

func renderBookingMail(event BookingEvent, b *domain.Booking) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Booking %s is now %s.\n\n", b.BookingNumber, b.Status)
	if event == EventOverdueReminder {
		sb.WriteString("One or more items of this booking are past their end date. Please return them as soon as possible.\n\n")
	}
	for _, it := range b.Items {
		fmt.Fprintf(&sb, "- item %s x%d, %s to %s (%s)\n", it.ItemID, it.Quantity,
			domain.FormatDay(it.StartDate), domain.FormatDay(it.EndDate), it.Status)
	}
	return sb.String()
}
