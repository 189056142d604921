// Package model defines the core domain types for the meal-sharing
// reservation system.
package model

import "time"

// EventStatus is the lifecycle state of a meal event.
type EventStatus string

const (
	EventOpen      EventStatus = "open"
	EventFull      EventStatus = "full"
	EventCancelled EventStatus = "cancelled"
)

// ParticipationStatus is the state of a single reservation row.
type ParticipationStatus string

const (
	ParticipationConfirmed ParticipationStatus = "confirmed"
	ParticipationCancelled ParticipationStatus = "cancelled"
)

// Contact is how a host or participant can be reached.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Address is the postal location of an event.
type Address struct {
	FullAddress string `json:"full_address,omitempty"`
	City        string `json:"city,omitempty"`
	District    string `json:"district,omitempty"`
	Street      string `json:"street,omitempty"`
	Number      string `json:"number,omitempty"`
}

// MealEvent is a hosted meal with a seat capacity.
// Capacity 0 means unlimited. ConfirmedCount and Status are derived from the
// confirmed participations and are only written by the reservation engine.
type MealEvent struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	ImageURL       string       `json:"image_url,omitempty"`
	HostUserID     string       `json:"host_user_id"`
	Host           Contact      `json:"host"`
	Capacity       int          `json:"capacity"`
	ConfirmedCount int          `json:"confirmed_count"`
	DietType       string       `json:"diet_type,omitempty"`
	IsDineIn       bool         `json:"is_dine_in"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	SignupDeadline *time.Time   `json:"signup_deadline,omitempty"`
	Status         EventStatus  `json:"status"`
	Notes          string       `json:"notes,omitempty"`
	Address        Address      `json:"address"`
	Location       *Coordinates `json:"location,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Unlimited reports whether the event accepts any number of seats.
func (e *MealEvent) Unlimited() bool {
	return e.Capacity == 0
}

// Remaining returns the number of free seats, or -1 when unlimited.
func (e *MealEvent) Remaining() int {
	if e.Unlimited() {
		return -1
	}
	if e.ConfirmedCount >= e.Capacity {
		return 0
	}
	return e.Capacity - e.ConfirmedCount
}

// Participation is one user's reservation against an event. There is at
// most one row per (EventID, UserID); cancelling and re-joining toggles
// Status on the same row.
type Participation struct {
	ID        string              `json:"id"`
	EventID   string              `json:"event_id"`
	UserID    string              `json:"user_id"`
	SeatCount int                 `json:"seat_count"`
	Status    ParticipationStatus `json:"status"`
	Contact   Contact             `json:"contact"`
	CreatedAt time.Time           `json:"created_at"`
	UpdatedAt time.Time           `json:"updated_at"`
}

// IsConfirmed reports whether the row currently holds seats.
func (p *Participation) IsConfirmed() bool {
	return p.Status == ParticipationConfirmed
}

// CreateEventRequest is the payload for publishing a new meal event.
type CreateEventRequest struct {
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	ImageURL       string       `json:"image_url"`
	HostUserID     string       `json:"host_user_id"`
	Host           Contact      `json:"host"`
	Capacity       int          `json:"capacity"`
	DietType       string       `json:"diet_type"`
	IsDineIn       *bool        `json:"is_dine_in"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	SignupDeadline *time.Time   `json:"signup_deadline"`
	Notes          string       `json:"notes"`
	Address        Address      `json:"address"`
	Location       *Coordinates `json:"location"`
}

// UpdateEventRequest edits the descriptive fields of an event. Status and
// ConfirmedCount are not editable; they are re-derived.
type UpdateEventRequest struct {
	HostUserID     string       `json:"host_user_id"`
	Title          string       `json:"title"`
	Description    string       `json:"description"`
	ImageURL       string       `json:"image_url"`
	Host           Contact      `json:"host"`
	Capacity       int          `json:"capacity"`
	DietType       string       `json:"diet_type"`
	IsDineIn       bool         `json:"is_dine_in"`
	StartTime      time.Time    `json:"start_time"`
	EndTime        time.Time    `json:"end_time"`
	SignupDeadline *time.Time   `json:"signup_deadline"`
	Notes          string       `json:"notes"`
	Address        Address      `json:"address"`
	Location       *Coordinates `json:"location"`
}

// ParticipateRequest is the payload for reserving seats.
type ParticipateRequest struct {
	UserID    string `json:"user_id"`
	SeatCount int    `json:"seat_count"`
	UserName  string `json:"user_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// CancelEventRequest is the payload for a host cancelling their event.
type CancelEventRequest struct {
	HostUserID string `json:"host_user_id"`
}

// ReservationResult summarises a successful RequestSeats call.
type ReservationResult struct {
	ReservationID  string      `json:"reservation_id"`
	EventID        string      `json:"event_id"`
	UserID         string      `json:"user_id"`
	SeatCount      int         `json:"seat_count"`
	ConfirmedCount int         `json:"confirmed_count"`
	EventStatus    EventStatus `json:"event_status"`
	Reactivated    bool        `json:"reactivated"`
}

// CancellationResult summarises a successful CancelSeats call.
type CancellationResult struct {
	EventID        string      `json:"event_id"`
	UserID         string      `json:"user_id"`
	ConfirmedCount int         `json:"confirmed_count"`
	EventStatus    EventStatus `json:"event_status"`
}

// EventCancellationResult summarises a host cancelling an event.
type EventCancellationResult struct {
	EventID               string      `json:"event_id"`
	CancelledReservations int         `json:"cancelled_reservations"`
	EventStatus           EventStatus `json:"event_status"`
}

// EventPage is one page of the event listing.
type EventPage struct {
	TotalCount int         `json:"total_count"`
	Page       int         `json:"page"`
	PageSize   int         `json:"page_size"`
	Data       []MealEvent `json:"data"`
}

// ReservationType filters a user's reservation listing.
type ReservationType string

const (
	ReservationsAll          ReservationType = ""
	ReservationsHosted       ReservationType = "hosted"
	ReservationsParticipated ReservationType = "participated"
)

// UserReservation is one entry of a user's reservation listing: either an
// event they host or one they hold confirmed seats on.
type UserReservation struct {
	Type             ReservationType `json:"type"`
	Reservation      *Participation  `json:"reservation,omitempty"`
	Event            MealEvent       `json:"event"`
	ParticipantCount int             `json:"participant_count"`
}

// ReservationDetail is a participation row together with its event.
type ReservationDetail struct {
	Participation
	Event *MealEvent `json:"event,omitempty"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Remaining *int   `json:"remaining,omitempty"`
}
