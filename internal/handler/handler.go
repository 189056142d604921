// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/service"
	"github.com/go-chi/chi/v5"
)

// Events is the read and lifecycle side of the service layer.
type Events interface {
	CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.MealEvent, error)
	GetEvent(ctx context.Context, id string) (*model.MealEvent, error)
	ListEvents(ctx context.Context, page, pageSize int) (*model.EventPage, error)
	DeleteEvent(ctx context.Context, id, hostUserID string) error
	ListParticipants(ctx context.Context, eventID string) ([]model.Participation, error)
	GetReservation(ctx context.Context, id string) (*model.ReservationDetail, error)
	UserReservations(ctx context.Context, userID string, kind model.ReservationType) ([]model.UserReservation, error)
}

// Reservations is the seat-changing side of the service layer.
type Reservations interface {
	RequestSeats(ctx context.Context, eventID string, req model.ParticipateRequest) (*model.ReservationResult, error)
	CancelSeats(ctx context.Context, eventID, userID string) (*model.CancellationResult, error)
	CancelEvent(ctx context.Context, eventID, hostUserID string) (*model.EventCancellationResult, error)
	UpdateEvent(ctx context.Context, eventID string, req model.UpdateEventRequest) (*model.MealEvent, error)
}

// MealHandler holds all HTTP handlers for the meal reservation API.
type MealHandler struct {
	events       Events
	reservations Reservations
}

// NewMealHandler constructs a MealHandler.
func NewMealHandler(events Events, reservations Reservations) *MealHandler {
	return &MealHandler{events: events, reservations: reservations}
}

// Routes mounts the API on r.
func (h *MealHandler) Routes(r chi.Router) {
	r.Route("/meals", func(r chi.Router) {
		r.Post("/", h.CreateEvent)
		r.Get("/", h.ListEvents)
		r.Get("/{id}", h.GetEvent)
		r.Put("/{id}", h.UpdateEvent)
		r.Delete("/{id}", h.DeleteEvent)
		r.Post("/{id}/participate", h.Participate)
		r.Delete("/{id}/participate", h.CancelParticipation)
		r.Post("/{id}/cancel", h.CancelEvent)
		r.Get("/{id}/participants", h.ListParticipants)
	})
	r.Get("/reservations/{id}", h.GetReservation)
	r.Get("/users/{userId}/reservations", h.UserReservations)
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

const (
	codeInvalidRequest   = "invalid_request"
	codeNotFound         = "not_found"
	codeEventNotOpen     = "event_not_open"
	codeCapacityExceeded = "capacity_exceeded"
	codeAlreadyReserved  = "already_reserved"
	codeNothingToCancel  = "nothing_to_cancel"
	codeForbidden        = "forbidden"
	codeBusy             = "busy"
	codeInternal         = "internal"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps a service error to its status code.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var capErr *service.CapacityExceededError
	switch {
	case errors.As(err, &capErr):
		remaining := capErr.Remaining
		writeJSON(w, http.StatusConflict, model.ErrorResponse{
			Error:     err.Error(),
			Code:      codeCapacityExceeded,
			Remaining: &remaining,
		})
	case errors.Is(err, service.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, codeInvalidRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
	case errors.Is(err, service.ErrInvalidState):
		writeError(w, http.StatusConflict, codeEventNotOpen, err.Error())
	case errors.Is(err, service.ErrAlreadyReserved):
		writeError(w, http.StatusConflict, codeAlreadyReserved, err.Error())
	case errors.Is(err, service.ErrNothingToCancel):
		writeError(w, http.StatusConflict, codeNothingToCancel, err.Error())
	case errors.Is(err, service.ErrForbidden):
		writeError(w, http.StatusForbidden, codeForbidden, err.Error())
	case errors.Is(err, service.ErrConflict):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, codeBusy, service.ErrConflict.Error())
	default:
		log.Printf("ERROR: %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, codeInternal, "internal server error")
	}
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /meals
func (h *MealHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /meals?page=&pageSize=
func (h *MealHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "page must be an integer")
		return
	}
	pageSize, err := queryInt(r, "pageSize")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "pageSize must be an integer")
		return
	}

	result, err := h.events.ListEvents(r.Context(), page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GetEvent handles GET /meals/{id}
func (h *MealHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// UpdateEvent handles PUT /meals/{id}
func (h *MealHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.UpdateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	event, err := h.reservations.UpdateEvent(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// DeleteEvent handles DELETE /meals/{id}?host_user_id=
func (h *MealHandler) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	err := h.events.DeleteEvent(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("host_user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CancelEvent handles POST /meals/{id}/cancel
// The body is optional; when present it names the host.
func (h *MealHandler) CancelEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CancelEventRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.reservations.CancelEvent(r.Context(), chi.URLParam(r, "id"), req.HostUserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ─── Reservations ─────────────────────────────────────────────────────────────

// Participate handles POST /meals/{id}/participate
func (h *MealHandler) Participate(w http.ResponseWriter, r *http.Request) {
	var req model.ParticipateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequest, "invalid request body: "+err.Error())
		return
	}

	result, err := h.reservations.RequestSeats(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Reactivated {
		status = http.StatusOK
	}
	writeJSON(w, status, result)
}

// CancelParticipation handles DELETE /meals/{id}/participate?user_id=
func (h *MealHandler) CancelParticipation(w http.ResponseWriter, r *http.Request) {
	result, err := h.reservations.CancelSeats(r.Context(), chi.URLParam(r, "id"), r.URL.Query().Get("user_id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ListParticipants handles GET /meals/{id}/participants
func (h *MealHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	parts, err := h.events.ListParticipants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if parts == nil {
		parts = []model.Participation{}
	}
	writeJSON(w, http.StatusOK, parts)
}

// GetReservation handles GET /reservations/{id}
func (h *MealHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	detail, err := h.events.GetReservation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// UserReservations handles GET /users/{userId}/reservations?type=hosted|participated
func (h *MealHandler) UserReservations(w http.ResponseWriter, r *http.Request) {
	kind := model.ReservationType(r.URL.Query().Get("type"))
	list, err := h.events.UserReservations(r.Context(), chi.URLParam(r, "userId"), kind)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if list == nil {
		list = []model.UserReservation{}
	}
	writeJSON(w, http.StatusOK, list)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
