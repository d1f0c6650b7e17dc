package http

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"storage-booking-backend/internal/authz"
	"storage-booking-backend/internal/domain"
	"storage-booking-backend/internal/service"

	"github.com/gorilla/mux"
)

const maxBodyBytes = 1 << 20

type bookingLineRequest struct {
	OrgItemID string `json:"org_item_id"`
	Quantity  int    `json:"quantity"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type bookingRequest struct {
	Items []bookingLineRequest `json:"items"`
}

type itemSelectionRequest struct {
	ItemIDs []string `json:"item_ids"`
}

type paymentStatusRequest struct {
	PaymentStatus string `json:"payment_status"`
}

// BookingHandler serves the /bookings routes.
type BookingHandler struct {
	availability service.AvailabilityService
	bookings     service.BookingService
	log          *slog.Logger
}

func NewBookingHandler(availability service.AvailabilityService, bookings service.BookingService, log *slog.Logger) *BookingHandler {
	return &BookingHandler{availability: availability, bookings: bookings, log: log}
}

func (h *BookingHandler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	inputs, err := toInputs(req.Items)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	res, err := h.bookings.CreateBooking(r.Context(), caller(r), inputs)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *BookingHandler) UpdateBooking(w http.ResponseWriter, r *http.Request) {
	var req bookingRequest
	if !h.decode(w, r, &req) {
		return
	}
	inputs, err := toInputs(req.Items)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	res, err := h.bookings.UpdateBooking(r.Context(), caller(r), bookingID(r), inputs)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.GetBooking(r.Context(), caller(r), bookingID(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (h *BookingHandler) ListMyBookings(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	bookings, total, err := h.bookings.ListMyBookings(r.Context(), caller(r), page, pageSize)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Bookings: nonNil(bookings), Total: total, Page: page, PageSize: pageSize})
}

func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	page, pageSize, err := pagination(r)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	status := domain.BookingStatus(r.URL.Query().Get("status"))
	bookings, total, err := h.bookings.ListBookings(r.Context(), caller(r), status, page, pageSize)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Bookings: nonNil(bookings), Total: total, Page: page, PageSize: pageSize})
}

func (h *BookingHandler) ListOverdue(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.bookings.ListOverdue(r.Context(), caller(r))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	if overdue == nil {
		overdue = []domain.OverdueBooking{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"bookings": overdue})
}

func (h *BookingHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start_date") == "" || q.Get("end_date") == "" {
		writeMessage(w, http.StatusBadRequest, "start_date and end_date are required")
		return
	}
	start, err := domain.ParseDay(q.Get("start_date"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	end, err := domain.ParseDay(q.Get("end_date"))
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}

	a, err := h.availability.GetAvailability(r.Context(), caller(r), mux.Vars(r)["itemId"], start, end)
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (h *BookingHandler) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.ConfirmBooking(r.Context(), caller(r), bookingID(r))
	h.respond(w, r, "Booking confirmed", b, err)
}

func (h *BookingHandler) RejectBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.RejectBooking(r.Context(), caller(r), bookingID(r))
	h.respond(w, r, "Booking rejected", b, err)
}

func (h *BookingHandler) ConfirmItemsForOrg(w http.ResponseWriter, r *http.Request) {
	var req itemSelectionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	b, err := h.bookings.ConfirmItemsForOrg(r.Context(), caller(r), bookingID(r), r.URL.Query().Get("org_id"), req.ItemIDs)
	h.respond(w, r, "Items confirmed for organization", b, err)
}

func (h *BookingHandler) RejectItemsForOrg(w http.ResponseWriter, r *http.Request) {
	var req itemSelectionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	b, err := h.bookings.RejectItemsForOrg(r.Context(), caller(r), bookingID(r), r.URL.Query().Get("org_id"), req.ItemIDs)
	h.respond(w, r, "Items rejected for organization", b, err)
}

func (h *BookingHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	var req paymentStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	b, err := h.bookings.UpdatePaymentStatus(r.Context(), caller(r), bookingID(r), domain.PaymentStatus(req.PaymentStatus))
	h.respond(w, r, "Payment status updated", b, err)
}

func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.CancelBooking(r.Context(), caller(r), bookingID(r))
	h.respond(w, r, "Booking cancelled", b, err)
}

func (h *BookingHandler) DeleteBooking(w http.ResponseWriter, r *http.Request) {
	if err := h.bookings.DeleteBooking(r.Context(), caller(r), bookingID(r)); err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Booking deleted"})
}

func (h *BookingHandler) ConfirmPickup(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.ConfirmPickup(r.Context(), caller(r), bookingID(r))
	h.respond(w, r, "Pickup confirmed", b, err)
}

func (h *BookingHandler) ReturnItems(w http.ResponseWriter, r *http.Request) {
	b, err := h.bookings.ReturnItems(r.Context(), caller(r), bookingID(r))
	h.respond(w, r, "Items returned", b, err)
}

func (h *BookingHandler) ConfirmPickupForOrg(w http.ResponseWriter, r *http.Request) {
	var req itemSelectionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		writeMessage(w, http.StatusBadRequest, "org_id is required")
		return
	}
	b, err := h.bookings.ConfirmPickupForOrg(r.Context(), caller(r), bookingID(r), orgID, req.ItemIDs)
	h.respond(w, r, "Pickup confirmed for organization", b, err)
}

func (h *BookingHandler) ReturnItemsForOrg(w http.ResponseWriter, r *http.Request) {
	var req itemSelectionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	orgID := r.URL.Query().Get("org_id")
	if orgID == "" {
		writeMessage(w, http.StatusBadRequest, "org_id is required")
		return
	}
	b, err := h.bookings.ReturnItemsForOrg(r.Context(), caller(r), bookingID(r), orgID, req.ItemIDs)
	h.respond(w, r, "Items returned for organization", b, err)
}

func (h *BookingHandler) CancelItemsForOrg(w http.ResponseWriter, r *http.Request) {
	var req itemSelectionRequest
	if !h.decodeOptional(w, r, &req) {
		return
	}
	b, err := h.bookings.CancelItemsForOrg(r.Context(), caller(r), bookingID(r), r.URL.Query().Get("org_id"), req.ItemIDs)
	h.respond(w, r, "Items cancelled for organization", b, err)
}

func (h *BookingHandler) respond(w http.ResponseWriter, r *http.Request, message string, b *domain.Booking, err error) {
	if err != nil {
		writeError(w, h.log, r, err)
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: message, Booking: b})
}

func (h *BookingHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// decodeOptional accepts an empty body.
func (h *BookingHandler) decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func toInputs(lines []bookingLineRequest) ([]domain.BookingItemInput, error) {
	inputs := make([]domain.BookingItemInput, 0, len(lines))
	for i, l := range lines {
		if l.StartDate == "" || l.EndDate == "" {
			return nil, domain.ValidationErrorf("items[%d]: start_date and end_date are required", i)
		}
		start, err := domain.ParseDay(l.StartDate)
		if err != nil {
			return nil, err
		}
		end, err := domain.ParseDay(l.EndDate)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, domain.BookingItemInput{
			ItemID:    l.OrgItemID,
			Quantity:  l.Quantity,
			StartDate: start,
			EndDate:   end,
		})
	}
	return inputs, nil
}

func pagination(r *http.Request) (int32, int32, error) {
	page, err := queryInt(r, "page", 1)
	if err != nil {
		return 0, 0, err
	}
	pageSize, err := queryInt(r, "page_size", 20)
	if err != nil {
		return 0, 0, err
	}
	if page < 1 || pageSize < 1 || pageSize > 100 {
		return 0, 0, domain.ValidationErrorf("page must be >= 1 and page_size between 1 and 100")
	}
	return page, pageSize, nil
}

func queryInt(r *http.Request, key string, def int32) (int32, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		return 0, domain.ValidationErrorf("invalid %s %q", key, raw)
	}
	return int32(v), nil
}

func caller(r *http.Request) authz.AuthContext {
	c, _ := authz.FromContext(r.Context())
	return c
}

func bookingID(r *http.Request) string {
	return mux.Vars(r)["id"]
}

func nonNil(b []domain.Booking) []domain.Booking {
	if b == nil {
		return []domain.Booking{}
	}
	return b
}
