// Package service implements the reservation rules and the event
// operations around them, between the HTTP handlers and the stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/clock"
	"github.com/Shivanand-hulikatti/cofeast/internal/model"
	"github.com/Shivanand-hulikatti/cofeast/internal/notify"
	"github.com/Shivanand-hulikatti/cofeast/internal/repository"
	"github.com/google/uuid"
)

// EventStore persists meal events. GetForUpdate must lock the row for
// the rest of the transaction.
type EventStore interface {
	Create(ctx context.Context, e *model.MealEvent) error
	GetByID(ctx context.Context, id string) (*model.MealEvent, error)
	GetForUpdate(ctx context.Context, id string) (*model.MealEvent, error)
	List(ctx context.Context, offset, limit int) ([]model.MealEvent, error)
	Count(ctx context.Context) (int, error)
	ListByHost(ctx context.Context, hostUserID string) ([]model.MealEvent, error)
	UpdateAggregate(ctx context.Context, id string, confirmed int, status model.EventStatus, at time.Time) error
	Update(ctx context.Context, e *model.MealEvent) error
	Delete(ctx context.Context, id string) error
}

// ParticipationStore persists reservation rows, one per event and user.
// GetForUpdate returns nil, nil when no row exists.
type ParticipationStore interface {
	GetForUpdate(ctx context.Context, eventID, userID string) (*model.Participation, error)
	GetByID(ctx context.Context, id string) (*model.Participation, error)
	Insert(ctx context.Context, p *model.Participation) error
	Update(ctx context.Context, p *model.Participation) error
	SumConfirmed(ctx context.Context, eventID string) (int, error)
	CountByEvent(ctx context.Context, eventID string) (int, error)
	ListByEvent(ctx context.Context, eventID string) ([]model.Participation, error)
	ListConfirmed(ctx context.Context, eventID string) ([]model.Participation, error)
	CancelConfirmed(ctx context.Context, eventID string, at time.Time) ([]model.Participation, error)
	ListConfirmedByUser(ctx context.Context, userID string) ([]model.Participation, error)
}

// TxRunner runs fn in one transaction; an error from fn rolls it back.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Outbox accepts notifications once their transaction has committed.
type Outbox interface {
	Enqueue(msgs ...notify.Message)
}

type discardOutbox struct{}

func (discardOutbox) Enqueue(...notify.Message) {}

// ReservationEngine owns every write to an event's seat total and status
// and to a participation's status. Each operation locks the event row,
// validates, writes, re-sums the confirmed seats from the store and
// persists the result before committing.
type ReservationEngine struct {
	tx     TxRunner
	events EventStore
	parts  ParticipationStore
	outbox Outbox
	clock  clock.Clock
	newID  func() string
}

// NewReservationEngine wires the engine. A nil outbox discards
// notifications; a nil clock uses the system clock.
func NewReservationEngine(tx TxRunner, events EventStore, parts ParticipationStore, outbox Outbox, clk clock.Clock) *ReservationEngine {
	if outbox == nil {
		outbox = discardOutbox{}
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &ReservationEngine{
		tx:     tx,
		events: events,
		parts:  parts,
		outbox: outbox,
		clock:  clk,
		newID:  uuid.NewString,
	}
}

// RequestSeats reserves seats for a user. A user who cancelled earlier
// gets their old row back with the new seat count and contact.
func (s *ReservationEngine) RequestSeats(ctx context.Context, eventID string, req model.ParticipateRequest) (*model.ReservationResult, error) {
	req.UserID = strings.TrimSpace(req.UserID)
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if eventID == "" {
		return nil, invalid("event id is required")
	}
	if req.UserID == "" {
		return nil, invalid("user_id is required")
	}
	if req.SeatCount == 0 {
		req.SeatCount = 1
	}
	if req.SeatCount < 1 {
		return nil, invalid("seat_count must be at least 1")
	}
	if req.SeatCount > maxCapacity {
		return nil, invalid("seat_count must be at most %d", maxCapacity)
	}
	if req.Email != "" && !isValidEmail(req.Email) {
		return nil, invalid("email is not a valid email address")
	}
	contact := model.Contact{Name: strings.TrimSpace(req.UserName), Email: req.Email, Phone: strings.TrimSpace(req.Phone)}

	var (
		result model.ReservationResult
		outbox []notify.Message
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event.Status == model.EventCancelled {
			return fmt.Errorf("%w: event is cancelled", ErrInvalidState)
		}
		if signupClosed(event, now) {
			return fmt.Errorf("%w: signup deadline has passed", ErrInvalidState)
		}

		existing, err := s.parts.GetForUpdate(ctx, eventID, req.UserID)
		if err != nil {
			return storeErr("read participation", err)
		}
		if existing != nil && existing.IsConfirmed() {
			return ErrAlreadyReserved
		}

		confirmed, err := s.parts.SumConfirmed(ctx, eventID)
		if err != nil {
			return storeErr("sum confirmed seats", err)
		}
		if exceedsCapacity(event.Capacity, confirmed, req.SeatCount) {
			return &CapacityExceededError{Remaining: remainingSeats(event.Capacity, confirmed)}
		}

		p := existing
		if p == nil {
			p = &model.Participation{
				ID:        s.newID(),
				EventID:   eventID,
				UserID:    req.UserID,
				SeatCount: req.SeatCount,
				Status:    model.ParticipationConfirmed,
				Contact:   contact,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := s.parts.Insert(ctx, p); err != nil {
				if errors.Is(err, repository.ErrDuplicate) {
					return ErrAlreadyReserved
				}
				return storeErr("insert participation", err)
			}
		} else {
			p.Status = model.ParticipationConfirmed
			p.SeatCount = req.SeatCount
			p.Contact = contact
			p.UpdatedAt = now
			if err := s.parts.Update(ctx, p); err != nil {
				return storeErr("reactivate participation", err)
			}
			result.Reactivated = true
		}

		wasFull := event.Status == model.EventFull
		if err := s.recompute(ctx, event, now); err != nil {
			return err
		}

		result.ReservationID = p.ID
		result.EventID = eventID
		result.UserID = p.UserID
		result.SeatCount = p.SeatCount
		result.ConfirmedCount = event.ConfirmedCount
		result.EventStatus = event.Status

		confirmedMsg := notify.NewMessage(notify.KindSeatConfirmed, event, p.UserID, p.Contact)
		confirmedMsg.SeatCount = p.SeatCount
		outbox = append(outbox, confirmedMsg)
		if event.Status == model.EventFull && !wasFull {
			full := notify.NewMessage(notify.KindEventFull, event, event.HostUserID, event.Host)
			full.ParticipantName = p.Contact.Name
			outbox = append(outbox, full)
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}

	s.outbox.Enqueue(outbox...)
	return &result, nil
}

// CancelSeats releases a user's seats. Cancelling twice yields
// ErrNothingToCancel the second time.
func (s *ReservationEngine) CancelSeats(ctx context.Context, eventID, userID string) (*model.CancellationResult, error) {
	userID = strings.TrimSpace(userID)
	if eventID == "" {
		return nil, invalid("event id is required")
	}
	if userID == "" {
		return nil, invalid("user_id is required")
	}

	var (
		result model.CancellationResult
		outbox []notify.Message
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}

		p, err := s.parts.GetForUpdate(ctx, eventID, userID)
		if err != nil {
			return storeErr("read participation", err)
		}
		if p == nil || !p.IsConfirmed() {
			return ErrNothingToCancel
		}

		p.Status = model.ParticipationCancelled
		p.UpdatedAt = now
		if err := s.parts.Update(ctx, p); err != nil {
			return storeErr("cancel participation", err)
		}

		if err := s.recompute(ctx, event, now); err != nil {
			return err
		}

		result = model.CancellationResult{
			EventID:        eventID,
			UserID:         userID,
			ConfirmedCount: event.ConfirmedCount,
			EventStatus:    event.Status,
		}

		self := notify.NewMessage(notify.KindSelfCancelled, event, userID, p.Contact)
		self.SeatCount = p.SeatCount
		host := notify.NewMessage(notify.KindHostCancellation, event, event.HostUserID, event.Host)
		host.ParticipantName = p.Contact.Name
		host.SeatCount = p.SeatCount
		outbox = append(outbox, self, host)

		others, err := s.parts.ListConfirmed(ctx, eventID)
		if err != nil {
			return storeErr("list confirmed participations", err)
		}
		for _, o := range others {
			msg := notify.NewMessage(notify.KindParticipantCancellation, event, o.UserID, o.Contact)
			msg.ParticipantName = p.Contact.Name
			outbox = append(outbox, msg)
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}

	s.outbox.Enqueue(outbox...)
	return &result, nil
}

// CancelEvent cancels an event and every confirmed reservation on it in a
// single transaction. An empty hostUserID skips the ownership check.
func (s *ReservationEngine) CancelEvent(ctx context.Context, eventID, hostUserID string) (*model.EventCancellationResult, error) {
	hostUserID = strings.TrimSpace(hostUserID)
	if eventID == "" {
		return nil, invalid("event id is required")
	}

	var (
		result model.EventCancellationResult
		outbox []notify.Message
	)
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if hostUserID != "" && hostUserID != event.HostUserID {
			return ErrForbidden
		}
		if event.Status == model.EventCancelled {
			return fmt.Errorf("%w: event is already cancelled", ErrInvalidState)
		}

		cancelled, err := s.parts.CancelConfirmed(ctx, eventID, now)
		if err != nil {
			return storeErr("cancel participations", err)
		}
		if err := s.events.UpdateAggregate(ctx, eventID, 0, model.EventCancelled, now); err != nil {
			return storeErr("cancel event", err)
		}
		event.ConfirmedCount = 0
		event.Status = model.EventCancelled
		event.UpdatedAt = now

		result = model.EventCancellationResult{
			EventID:               eventID,
			CancelledReservations: len(cancelled),
			EventStatus:           model.EventCancelled,
		}
		for _, p := range cancelled {
			msg := notify.NewMessage(notify.KindEventCancelled, event, p.UserID, p.Contact)
			msg.SeatCount = p.SeatCount
			outbox = append(outbox, msg)
		}
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}

	s.outbox.Enqueue(outbox...)
	return &result, nil
}

// UpdateEvent edits an event's descriptive fields and capacity. Capacity
// may not drop below the seats already confirmed; status is re-derived.
func (s *ReservationEngine) UpdateEvent(ctx context.Context, eventID string, req model.UpdateEventRequest) (*model.MealEvent, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.HostUserID = strings.TrimSpace(req.HostUserID)
	if eventID == "" {
		return nil, invalid("event id is required")
	}
	if err := validateEventFields(req.Title, req.Capacity, req.StartTime, req.EndTime, req.SignupDeadline, req.Host.Email); err != nil {
		return nil, err
	}

	var updated *model.MealEvent
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		now := s.clock.Now()

		event, err := s.lockEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if req.HostUserID != "" && req.HostUserID != event.HostUserID {
			return ErrForbidden
		}
		if event.Status == model.EventCancelled {
			return fmt.Errorf("%w: event is cancelled", ErrInvalidState)
		}

		confirmed, err := s.parts.SumConfirmed(ctx, eventID)
		if err != nil {
			return storeErr("sum confirmed seats", err)
		}
		if req.Capacity > 0 && req.Capacity < confirmed {
			return invalid("capacity %d is below the %d seats already reserved", req.Capacity, confirmed)
		}

		event.Title = req.Title
		event.Description = req.Description
		event.ImageURL = req.ImageURL
		event.Host = req.Host
		event.Capacity = req.Capacity
		event.DietType = req.DietType
		event.IsDineIn = req.IsDineIn
		event.StartTime = req.StartTime
		event.EndTime = req.EndTime
		event.SignupDeadline = req.SignupDeadline
		event.Notes = req.Notes
		event.Address = req.Address
		if req.Location != nil {
			event.Location = req.Location
		}
		event.ConfirmedCount = confirmed
		event.Status = DeriveStatus(event.Status, event.Capacity, confirmed)
		event.UpdatedAt = now

		if err := s.events.Update(ctx, event); err != nil {
			return storeErr("update event", err)
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, txErr(err)
	}
	return updated, nil
}

func (s *ReservationEngine) lockEvent(ctx context.Context, eventID string) (*model.MealEvent, error) {
	event, err := s.events.GetForUpdate(ctx, eventID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, storeErr("lock event", err)
	}
	return event, nil
}

// recompute re-sums the confirmed seats, derives the status and writes
// both onto the event. event is updated in place.
func (s *ReservationEngine) recompute(ctx context.Context, event *model.MealEvent, now time.Time) error {
	confirmed, err := s.parts.SumConfirmed(ctx, event.ID)
	if err != nil {
		return storeErr("recompute confirmed seats", err)
	}
	status := DeriveStatus(event.Status, event.Capacity, confirmed)
	if err := s.events.UpdateAggregate(ctx, event.ID, confirmed, status, now); err != nil {
		return storeErr("write event aggregate", err)
	}
	event.ConfirmedCount = confirmed
	event.Status = status
	event.UpdatedAt = now
	return nil
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, err)
}

// txErr maps lock failures to ErrConflict and leaves everything else as is.
func txErr(err error) error {
	if errors.Is(err, repository.ErrLockTimeout) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}
