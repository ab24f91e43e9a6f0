package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/service"
)

// Tracker is the tracking session surface used by the handlers.
type Tracker interface {
	RecordPoint(ctx context.Context, reservationID int64, p domain.TrackingPoint) (*domain.TrackingPoint, error)
	Get(ctx context.Context, reservationID int64) (*domain.TrackingSession, error)
}

type Handler struct {
	reservations service.ReservationService
	payments     service.PaymentService
	tracking     Tracker
}

func NewHandler(reservations service.ReservationService, payments service.PaymentService, tracking Tracker) *Handler {
	return &Handler{reservations: reservations, payments: payments, tracking: tracking}
}

// RegisterRoutes registers the reservation API. Route names key the security
// levels in config.EndpointSecurityConfig.
func (h *Handler) RegisterRoutes(router *mux.Router, auth *AuthMiddleware, health http.Handler) {
	router.Use(RequestID, AccessLog, auth.Handler)

	router.Handle("/healthz", health).Methods("GET").Name("Health")

	router.HandleFunc("/reservations", h.CreateReservation).Methods("POST").Name("CreateReservation")
	router.HandleFunc("/reservations/{id}", h.GetReservation).Methods("GET").Name("GetReservation")
	router.HandleFunc("/reservations/{id}/pickup", h.PickUpReservation).Methods("POST").Name("PickUpReservation")
	router.HandleFunc("/reservations/{id}/finalize", h.FinalizeReservation).Methods("POST").Name("FinalizeReservation")
	router.HandleFunc("/reservations/{id}/cancel", h.CancelReservation).Methods("POST").Name("CancelReservation")
	router.HandleFunc("/reservations/{id}/reschedule", h.RescheduleReservation).Methods("POST").Name("RescheduleReservation")
	router.HandleFunc("/reservations/{id}/copy", h.CopyReservation).Methods("POST").Name("CopyReservation")
	router.HandleFunc("/reservations/{id}/payment", h.RequestPayment).Methods("POST").Name("RequestPayment")

	router.HandleFunc("/customers/{username}/reservations", h.ListCustomerReservations).Methods("GET").Name("ListCustomerReservation")
	router.HandleFunc("/customers/{username}/eligibility", h.InitializeEligibility).Methods("POST").Name("InitializeEligibility")
	router.HandleFunc("/vehicles/{id}/occupancy", h.VehicleOccupancy).Methods("GET").Name("VehicleOccupancy")

	router.HandleFunc("/payments/acknowledgments", h.AcknowledgePayment).Methods("POST").Name("AcknowledgePayment")

	router.HandleFunc("/tracking/{id}/points", h.RecordTrackingPoint).Methods("POST").Name("RecordTrackingPoint")
	router.HandleFunc("/tracking/{id}", h.GetTrackingSession).Methods("GET").Name("GetTrackingSession")
}

type windowRequest struct {
	PickUp  time.Time `json:"planned_pick_up_date"`
	DropOff time.Time `json:"planned_drop_off_date"`
}

func (w windowRequest) window() domain.Window {
	return domain.Window{PickUp: w.PickUp, DropOff: w.DropOff}
}

type listResponse struct {
	Reservations []domain.Reservation `json:"reservations"`
	Total        int32                `json:"total"`
}

// owned loads the reservation and checks the caller may act on it. It writes
// the response and returns nil when not.
func (h *Handler) owned(w http.ResponseWriter, r *http.Request) *domain.Reservation {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	res, err := h.reservations.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return nil
	}
	if !canActFor(r.Context(), res.CustomerUsername) {
		forbid(w)
		return nil
	}
	return res
}

func (h *Handler) CreateReservation(w http.ResponseWriter, r *http.Request) {
	var in service.CreateReservationInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	if !canActFor(r.Context(), in.CustomerUsername) {
		forbid(w)
		return
	}
	in.Actor = actor(r.Context())

	res, err := h.reservations.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) GetReservation(w http.ResponseWriter, r *http.Request) {
	res := h.owned(w, r)
	if res == nil {
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) PickUpReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.reservations.PickUp(r.Context(), id, actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) FinalizeReservation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var in service.FinalizeInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.ReservationID = id
	in.Staff = actor(r.Context())

	res, err := h.reservations.Finalize(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	cur := h.owned(w, r)
	if cur == nil {
		return
	}
	res, err := h.reservations.Cancel(r.Context(), cur.ID, actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) RescheduleReservation(w http.ResponseWriter, r *http.Request) {
	cur := h.owned(w, r)
	if cur == nil {
		return
	}
	var in windowRequest
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.reservations.Reschedule(r.Context(), cur.ID, in.window(), actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) CopyReservation(w http.ResponseWriter, r *http.Request) {
	cur := h.owned(w, r)
	if cur == nil {
		return
	}
	var in windowRequest
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.reservations.Copy(r.Context(), cur.ID, in.window(), actor(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (h *Handler) RequestPayment(w http.ResponseWriter, r *http.Request) {
	cur := h.owned(w, r)
	if cur == nil {
		return
	}
	var in service.PaymentRequest
	// The body is optional; amount and customer default from the reservation.
	if err := decode(r, &in); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, err)
		return
	}
	in.ReservationID = cur.ID

	rec, err := h.payments.RequestPayment(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rec)
}

func (h *Handler) AcknowledgePayment(w http.ResponseWriter, r *http.Request) {
	var ack domain.PaymentAck
	if err := decode(r, &ack); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.payments.Acknowledge(r.Context(), ack); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCustomerReservations(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	if !canActFor(r.Context(), username) {
		forbid(w)
		return
	}
	page, err := queryInt32(r, "page")
	if err != nil {
		writeError(w, r, err)
		return
	}
	pageSize, err := queryInt32(r, "page_size")
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := domain.ReservationStatus(r.URL.Query().Get("status"))

	list, total, err := h.reservations.ListByCustomer(r.Context(), username, status, page, pageSize)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Reservation{}
	}
	writeJSON(w, http.StatusOK, listResponse{Reservations: list, Total: total})
}

func (h *Handler) InitializeEligibility(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]
	score, err := h.reservations.InitializeEligibility(r.Context(), username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"customer_username": username, "eligibility_score": score})
}

func (h *Handler) VehicleOccupancy(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: from must be RFC3339", domain.ErrValidation))
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, r, fmt.Errorf("%w: to must be RFC3339", domain.ErrValidation))
		return
	}

	occ, err := h.reservations.VehicleOccupancy(r.Context(), id, from, to)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if occ == nil {
		occ = []domain.Occupancy{}
	}
	writeJSON(w, http.StatusOK, occ)
}

func (h *Handler) RecordTrackingPoint(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var p domain.TrackingPoint
	if err := decode(r, &p); err != nil {
		writeError(w, r, err)
		return
	}
	out, err := h.tracking.RecordPoint(r.Context(), id, p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (h *Handler) GetTrackingSession(w http.ResponseWriter, r *http.Request) {
	res := h.owned(w, r)
	if res == nil {
		return
	}
	s, err := h.tracking.Get(r.Context(), res.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}
