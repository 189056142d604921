package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	mock.Mock
}

func (m *mockService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.MealEvent, error) {
	args := m.Called(ctx, req)
	e, _ := args.Get(0).(*model.MealEvent)
	return e, args.Error(1)
}

func (m *mockService) GetEvent(ctx context.Context, id string) (*model.MealEvent, error) {
	args := m.Called(ctx, id)
	e, _ := args.Get(0).(*model.MealEvent)
	return e, args.Error(1)
}

func (m *mockService) ListEvents(ctx context.Context, page, pageSize int) (*model.EventPage, error) {
	args := m.Called(ctx, page, pageSize)
	p, _ := args.Get(0).(*model.EventPage)
	return p, args.Error(1)
}

func (m *mockService) DeleteEvent(ctx context.Context, id, hostUserID string) error {
	return m.Called(ctx, id, hostUserID).Error(0)
}

func (m *mockService) ListParticipants(ctx context.Context, eventID string) ([]model.Participation, error) {
	args := m.Called(ctx, eventID)
	p, _ := args.Get(0).([]model.Participation)
	return p, args.Error(1)
}

func (m *mockService) GetReservation(ctx context.Context, id string) (*model.ReservationDetail, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*model.ReservationDetail)
	return d, args.Error(1)
}

func (m *mockService) UserReservations(ctx context.Context, userID string, kind model.ReservationType) ([]model.UserReservation, error) {
	args := m.Called(ctx, userID, kind)
	l, _ := args.Get(0).([]model.UserReservation)
	return l, args.Error(1)
}

func (m *mockService) RequestSeats(ctx context.Context, eventID string, req model.ParticipateRequest) (*model.ReservationResult, error) {
	args := m.Called(ctx, eventID, req)
	r, _ := args.Get(0).(*model.ReservationResult)
	return r, args.Error(1)
}

func (m *mockService) CancelSeats(ctx context.Context, eventID, userID string) (*model.CancellationResult, error) {
	args := m.Called(ctx, eventID, userID)
	r, _ := args.Get(0).(*model.CancellationResult)
	return r, args.Error(1)
}

func (m *mockService) CancelEvent(ctx context.Context, eventID, hostUserID string) (*model.EventCancellationResult, error) {
	args := m.Called(ctx, eventID, hostUserID)
	r, _ := args.Get(0).(*model.EventCancellationResult)
	return r, args.Error(1)
}

func (m *mockService) UpdateEvent(ctx context.Context, eventID string, req model.UpdateEventRequest) (*model.MealEvent, error) {
	args := m.Called(ctx, eventID, req)
	e, _ := args.Get(0).(*model.MealEvent)
	return e, args.Error(1)
}

func newTestRouter(svc *mockService) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", HealthCheck)
	NewMealHandler(svc, svc).Routes(r)
	return r
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var body model.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	rec := do(t, newTestRouter(&mockService{}), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestParticipate(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		svc := &mockService{}
		svc.On("RequestSeats", mock.Anything, "e1", model.ParticipateRequest{UserID: "u1", SeatCount: 2}).
			Return(&model.ReservationResult{ReservationID: "p1", EventID: "e1", SeatCount: 2, ConfirmedCount: 2, EventStatus: model.EventFull}, nil)

		rec := do(t, newTestRouter(svc), http.MethodPost, "/meals/e1/participate", `{"user_id":"u1","seat_count":2}`)
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Contains(t, rec.Body.String(), `"event_status":"full"`)
		svc.AssertExpectations(t)
	})

	t.Run("reactivated", func(t *testing.T) {
		svc := &mockService{}
		svc.On("RequestSeats", mock.Anything, "e1", mock.Anything).
			Return(&model.ReservationResult{ReservationID: "p1", Reactivated: true}, nil)

		rec := do(t, newTestRouter(svc), http.MethodPost, "/meals/e1/participate", `{"user_id":"u1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("capacity exceeded reports remaining", func(t *testing.T) {
		svc := &mockService{}
		svc.On("RequestSeats", mock.Anything, "e1", mock.Anything).
			Return(nil, &service.CapacityExceededError{Remaining: 0})

		rec := do(t, newTestRouter(svc), http.MethodPost, "/meals/e1/participate", `{"user_id":"u2"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decodeError(t, rec)
		assert.Equal(t, codeCapacityExceeded, body.Code)
		require.NotNil(t, body.Remaining)
		assert.Equal(t, 0, *body.Remaining)
	})

	t.Run("unknown fields are rejected", func(t *testing.T) {
		rec := do(t, newTestRouter(&mockService{}), http.MethodPost, "/meals/e1/participate", `{"user":"u1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", service.ErrNotFound, http.StatusNotFound, codeNotFound},
		{"invalid request", errors.Join(service.ErrInvalidRequest, errors.New("user_id is required")), http.StatusBadRequest, codeInvalidRequest},
		{"invalid state", service.ErrInvalidState, http.StatusConflict, codeEventNotOpen},
		{"already reserved", service.ErrAlreadyReserved, http.StatusConflict, codeAlreadyReserved},
		{"nothing to cancel", service.ErrNothingToCancel, http.StatusConflict, codeNothingToCancel},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, codeForbidden},
		{"busy", service.ErrConflict, http.StatusServiceUnavailable, codeBusy},
		{"store failure", errors.New("connection refused"), http.StatusInternalServerError, codeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("CancelSeats", mock.Anything, "e1", "u1").Return(nil, tt.err)

			rec := do(t, newTestRouter(svc), http.MethodDelete, "/meals/e1/participate?user_id=u1", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
			if tt.status == http.StatusServiceUnavailable {
				assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			}
		})
	}
}

func TestCancelEvent(t *testing.T) {
	t.Run("body names the host", func(t *testing.T) {
		svc := &mockService{}
		svc.On("CancelEvent", mock.Anything, "e1", "host-1").
			Return(&model.EventCancellationResult{EventID: "e1", CancelledReservations: 3, EventStatus: model.EventCancelled}, nil)

		rec := do(t, newTestRouter(svc), http.MethodPost, "/meals/e1/cancel", `{"host_user_id":"host-1"}`)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"cancelled_reservations":3`)
	})

	t.Run("empty body", func(t *testing.T) {
		svc := &mockService{}
		svc.On("CancelEvent", mock.Anything, "e1", "").
			Return(&model.EventCancellationResult{EventID: "e1"}, nil)

		rec := do(t, newTestRouter(svc), http.MethodPost, "/meals/e1/cancel", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		svc.AssertExpectations(t)
	})
}

func TestEventRoutes(t *testing.T) {
	t.Run("list parses paging", func(t *testing.T) {
		svc := &mockService{}
		svc.On("ListEvents", mock.Anything, 2, 5).
			Return(&model.EventPage{TotalCount: 7, Page: 2, PageSize: 5, Data: []model.MealEvent{}}, nil)

		rec := do(t, newTestRouter(svc), http.MethodGet, "/meals?page=2&pageSize=5", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"total_count":7`)

		rec = do(t, newTestRouter(svc), http.MethodGet, "/meals?page=two", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("delete returns no content", func(t *testing.T) {
		svc := &mockService{}
		svc.On("DeleteEvent", mock.Anything, "e1", "host-1").Return(nil)

		rec := do(t, newTestRouter(svc), http.MethodDelete, "/meals/e1?host_user_id=host-1", "")
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})

	t.Run("participants never null", func(t *testing.T) {
		svc := &mockService{}
		svc.On("ListParticipants", mock.Anything, "e1").Return(nil, nil)

		rec := do(t, newTestRouter(svc), http.MethodGet, "/meals/e1/participants", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `[]`, rec.Body.String())
	})

	t.Run("user reservations pass type", func(t *testing.T) {
		svc := &mockService{}
		svc.On("UserReservations", mock.Anything, "u1", model.ReservationsHosted).
			Return([]model.UserReservation{{Type: model.ReservationsHosted, Event: model.MealEvent{ID: "e1"}}}, nil)

		rec := do(t, newTestRouter(svc), http.MethodGet, "/users/u1/reservations?type=hosted", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"type":"hosted"`)
	})
}
