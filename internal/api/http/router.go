package http

import (
	"net/http"

	"storage-booking-backend/internal/metrics"

	"github.com/gorilla/mux"
)

// NewRouter builds the HTTP surface. Static /bookings paths are registered
// before /bookings/{id} so they are not captured as ids.
func NewRouter(h *BookingHandler, auth *AuthMiddleware, rec *metrics.Recorder) *mux.Router {
	router := mux.NewRouter()
	router.Use(MetricsMiddleware(rec), auth.Middleware)

	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet).Name("healthz")
	router.Handle("/metrics", rec.Handler()).Methods(http.MethodGet).Name("metrics")

	RegisterBookingRoutes(router, h)
	return router
}

// RegisterBookingRoutes registers the /bookings endpoints
func RegisterBookingRoutes(router *mux.Router, h *BookingHandler) {
	b := router.PathPrefix("/bookings").Subrouter()

	b.HandleFunc("", h.CreateBooking).Methods(http.MethodPost).Name("createBooking")
	b.HandleFunc("", h.ListBookings).Methods(http.MethodGet).Name("listBookings")
	b.HandleFunc("/my", h.ListMyBookings).Methods(http.MethodGet).Name("listMyBookings")
	b.HandleFunc("/overdue", h.ListOverdue).Methods(http.MethodGet).Name("listOverdueBookings")
	b.HandleFunc("/availability/{itemId}", h.GetAvailability).Methods(http.MethodGet).Name("getAvailability")

	b.HandleFunc("/{id}", h.GetBooking).Methods(http.MethodGet).Name("getBooking")
	b.HandleFunc("/{id}/update", h.UpdateBooking).Methods(http.MethodPut).Name("updateBooking")
	b.HandleFunc("/{id}/confirm", h.ConfirmBooking).Methods(http.MethodPut).Name("confirmBooking")
	b.HandleFunc("/{id}/reject", h.RejectBooking).Methods(http.MethodPut).Name("rejectBooking")
	b.HandleFunc("/{id}/confirm-for-org", h.ConfirmItemsForOrg).Methods(http.MethodPut).Name("confirmItemsForOrg")
	b.HandleFunc("/{id}/reject-for-org", h.RejectItemsForOrg).Methods(http.MethodPut).Name("rejectItemsForOrg")
	b.HandleFunc("/{id}/payment-status", h.UpdatePaymentStatus).Methods(http.MethodPatch).Name("updatePaymentStatus")
	b.HandleFunc("/{id}/cancel", h.CancelBooking).Methods(http.MethodDelete).Name("cancelBooking")
	b.HandleFunc("/{id}/delete", h.DeleteBooking).Methods(http.MethodDelete).Name("deleteBooking")
	b.HandleFunc("/{id}/pickup", h.ConfirmPickup).Methods(http.MethodPost).Name("confirmPickup")
	b.HandleFunc("/{id}/return", h.ReturnItems).Methods(http.MethodPost).Name("returnItems")
	b.HandleFunc("/{id}/pickup-for-org", h.ConfirmPickupForOrg).Methods(http.MethodPost).Name("confirmPickupForOrg")
	b.HandleFunc("/{id}/return-for-org", h.ReturnItemsForOrg).Methods(http.MethodPost).Name("returnItemsForOrg")
	b.HandleFunc("/{id}/cancel-for-org", h.CancelItemsForOrg).Methods(http.MethodDelete).Name("cancelItemsForOrg")
}
