package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/clock"
	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
	"github.com/google/uuid"
)

const (
	maxCapacity     = 100_000
	defaultPageSize = 10
	maxPageSize     = 100
)

// Geocoder resolves a postal address. A false result is not an error.
type Geocoder interface {
	Resolve(ctx context.Context, address string) (model.Coordinates, bool)
}

// EventService handles event creation, lookup and listing. Seat and
// status changes go through ReservationEngine.
type EventService struct {
	tx       TxRunner
	events   EventStore
	parts    ParticipationStore
	geocoder Geocoder
	clock    clock.Clock
	newID    func() string
}

// NewEventService constructs an EventService. geocoder may be nil.
func NewEventService(tx TxRunner, events EventStore, parts ParticipationStore, geocoder Geocoder, clk clock.Clock) *EventService {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &EventService{
		tx:       tx,
		events:   events,
		parts:    parts,
		geocoder: geocoder,
		clock:    clk,
		newID:    uuid.NewString,
	}
}

// CreateEvent validates the request and stores a new open event. When no
// coordinates are supplied the full address is geocoded once.
func (s *EventService) CreateEvent(ctx context.Context, req model.CreateEventRequest) (*model.MealEvent, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.HostUserID = strings.TrimSpace(req.HostUserID)
	req.Host.Email = strings.TrimSpace(strings.ToLower(req.Host.Email))
	if req.HostUserID == "" {
		return nil, invalid("host_user_id is required")
	}
	if err := validateEventFields(req.Title, req.Capacity, req.StartTime, req.EndTime, req.SignupDeadline, req.Host.Email); err != nil {
		return nil, err
	}

	location := req.Location
	if location == nil && s.geocoder != nil && strings.TrimSpace(req.Address.FullAddress) != "" {
		if c, ok := s.geocoder.Resolve(ctx, req.Address.FullAddress); ok {
			location = &c
		}
	}

	isDineIn := true
	if req.IsDineIn != nil {
		isDineIn = *req.IsDineIn
	}

	now := s.clock.Now()
	event := &model.MealEvent{
		ID:             s.newID(),
		Title:          req.Title,
		Description:    req.Description,
		ImageURL:       req.ImageURL,
		HostUserID:     req.HostUserID,
		Host:           req.Host,
		Capacity:       req.Capacity,
		DietType:       req.DietType,
		IsDineIn:       isDineIn,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		SignupDeadline: req.SignupDeadline,
		Status:         model.EventOpen,
		Notes:          req.Notes,
		Address:        req.Address,
		Location:       location,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		return s.events.Create(ctx, event)
	})
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

// GetEvent returns a single event by ID.
func (s *EventService) GetEvent(ctx context.Context, id string) (*model.MealEvent, error) {
	if id == "" {
		return nil, invalid("event id is required")
	}
	event, err := s.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	return event, nil
}

// ListEvents returns one page of events, newest first. Page numbers start
// at 1; pageSize defaults to 10 and is capped at 100.
func (s *EventService) ListEvents(ctx context.Context, page, pageSize int) (*model.EventPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	total, err := s.events.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	events, err := s.events.List(ctx, (page-1)*pageSize, pageSize)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if events == nil {
		events = []model.MealEvent{}
	}
	return &model.EventPage{TotalCount: total, Page: page, PageSize: pageSize, Data: events}, nil
}

// DeleteEvent removes an event nobody ever joined. Events with any
// reservation history can only be cancelled.
func (s *EventService) DeleteEvent(ctx context.Context, id, hostUserID string) error {
	hostUserID = strings.TrimSpace(hostUserID)
	if id == "" {
		return invalid("event id is required")
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		event, err := s.events.GetForUpdate(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrNotFound
			}
			return storeErr("lock event", err)
		}
		if hostUserID != "" && hostUserID != event.HostUserID {
			return ErrForbidden
		}

		n, err := s.parts.CountByEvent(ctx, id)
		if err != nil {
			return storeErr("count participations", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: event has reservations, cancel it instead", ErrInvalidState)
		}

		if err := s.events.Delete(ctx, id); err != nil {
			switch {
			case errors.Is(err, repository.ErrNotFound):
				return ErrNotFound
			case errors.Is(err, repository.ErrReferenced):
				return fmt.Errorf("%w: event has reservations, cancel it instead", ErrInvalidState)
			}
			return storeErr("delete event", err)
		}
		return nil
	})
	return txErr(err)
}

// ListParticipants returns every reservation row of an event, cancelled
// ones included, in signup order.
func (s *EventService) ListParticipants(ctx context.Context, eventID string) ([]model.Participation, error) {
	if _, err := s.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	parts, err := s.parts.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	if parts == nil {
		parts = []model.Participation{}
	}
	return parts, nil
}

// GetReservation returns a reservation row together with its event.
func (s *EventService) GetReservation(ctx context.Context, id string) (*model.ReservationDetail, error) {
	if id == "" {
		return nil, invalid("reservation id is required")
	}
	p, err := s.parts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	event, err := s.GetEvent(ctx, p.EventID)
	if err != nil {
		return nil, err
	}
	return &model.ReservationDetail{Participation: *p, Event: event}, nil
}

// UserReservations lists the events a user hosts, the events they hold
// confirmed seats on, or both (hosted first).
func (s *EventService) UserReservations(ctx context.Context, userID string, kind model.ReservationType) ([]model.UserReservation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalid("user id is required")
	}
	switch kind {
	case model.ReservationsAll, model.ReservationsHosted, model.ReservationsParticipated:
	default:
		return nil, invalid("type must be %q or %q", model.ReservationsHosted, model.ReservationsParticipated)
	}

	out := []model.UserReservation{}
	if kind != model.ReservationsParticipated {
		hosted, err := s.events.ListByHost(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list hosted events: %w", err)
		}
		for _, e := range hosted {
			n, err := s.confirmedParticipants(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, model.UserReservation{Type: model.ReservationsHosted, Event: e, ParticipantCount: n})
		}
	}

	if kind != model.ReservationsHosted {
		joined, err := s.parts.ListConfirmedByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list user reservations: %w", err)
		}
		for i := range joined {
			p := joined[i]
			e, err := s.events.GetByID(ctx, p.EventID)
			if err != nil {
				return nil, fmt.Errorf("get reserved event %s: %w", p.EventID, err)
			}
			n, err := s.confirmedParticipants(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			out = append(out, model.UserReservation{
				Type:             model.ReservationsParticipated,
				Reservation:      &p,
				Event:            *e,
				ParticipantCount: n,
			})
		}
	}
	return out, nil
}

func (s *EventService) confirmedParticipants(ctx context.Context, eventID string) (int, error) {
	rows, err := s.parts.ListConfirmed(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("list confirmed participants: %w", err)
	}
	return len(rows), nil
}

func validateEventFields(title string, capacity int, start, end time.Time, deadline *time.Time, hostEmail string) error {
	if title == "" {
		return invalid("title is required")
	}
	if capacity < 0 {
		return invalid("capacity must not be negative")
	}
	if capacity > maxCapacity {
		return invalid("capacity cannot exceed 100,000")
	}
	if start.IsZero() || end.IsZero() {
		return invalid("start_time and end_time are required")
	}
	if end.Before(start) {
		return invalid("end_time must not be before start_time")
	}
	if deadline != nil && deadline.After(end) {
		return invalid("signup_deadline must not be after end_time")
	}
	if hostEmail != "" && !isValidEmail(hostEmail) {
		return invalid("host email is not a valid email address")
	}
	return nil
}

// isValidEmail does a basic structural check.
func isValidEmail(email string) bool {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	return len(parts[0]) > 0 && strings.Contains(parts[1], ".")
}
