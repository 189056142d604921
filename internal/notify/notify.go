// Package notify delivers reservation outcomes to hosts and participants.
// Delivery is best effort: a failed notification is logged and dropped,
// it never affects the reservation that produced it.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
)

// Kind names what happened.
type Kind string

const (
	KindSeatConfirmed           Kind = "seat_confirmed"
	KindEventFull               Kind = "event_full"
	KindSelfCancelled           Kind = "self_cancelled"
	KindHostCancellation        Kind = "host_cancellation"
	KindParticipantCancellation Kind = "participant_cancellation"
	KindEventCancelled          Kind = "event_cancelled"
)

// RoutingKey is the broker routing key every notification is published under.
const RoutingKey = "notification.email"

// Message is one notification for one recipient.
type Message struct {
	Kind            Kind          `json:"kind"`
	RecipientUserID string        `json:"recipient_user_id"`
	Recipient       model.Contact `json:"recipient"`

	EventID    string    `json:"event_id"`
	EventTitle string    `json:"event_title"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	Address    string    `json:"address,omitempty"`
	HostName   string    `json:"host_name,omitempty"`

	// ParticipantName is who acted, for messages sent to someone else.
	ParticipantName string `json:"participant_name,omitempty"`
	SeatCount       int    `json:"seat_count,omitempty"`
	ConfirmedCount  int    `json:"confirmed_count"`
	Capacity        int    `json:"capacity"`
}

// NewMessage fills the event fields of a message.
func NewMessage(kind Kind, e *model.MealEvent, userID string, to model.Contact) Message {
	return Message{
		Kind:            kind,
		RecipientUserID: userID,
		Recipient:       to,
		EventID:         e.ID,
		EventTitle:      e.Title,
		StartTime:       e.StartTime,
		EndTime:         e.EndTime,
		Address:         e.Address.FullAddress,
		HostName:        e.Host.Name,
		ConfirmedCount:  e.ConfirmedCount,
		Capacity:        e.Capacity,
	}
}

// Notifier sends one message.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to a logger. It is the default when no
// broker or mail provider is configured.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier returns a LogNotifier. A nil logger uses log.Default().
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, msg Message) error {
	n.logger.Printf("notify kind=%s event=%s recipient=%s email=%q confirmed=%d capacity=%d",
		msg.Kind, msg.EventID, msg.RecipientUserID, msg.Recipient.Email, msg.ConfirmedCount, msg.Capacity)
	return nil
}
