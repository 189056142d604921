package service

import (
	"time"

	"github.com/Shivanand-hulikatti/cofeast/internal/model"
)

// DeriveStatus returns the status an event must have for its capacity and
// confirmed seat total. Cancelled is terminal and always kept.
func DeriveStatus(current model.EventStatus, capacity, confirmed int) model.EventStatus {
	if current == model.EventCancelled {
		return model.EventCancelled
	}
	if capacity > 0 && confirmed >= capacity {
		return model.EventFull
	}
	return model.EventOpen
}

// remainingSeats is capacity - confirmed, floored at zero. Unlimited events
// report -1.
func remainingSeats(capacity, confirmed int) int {
	if capacity == 0 {
		return -1
	}
	if confirmed >= capacity {
		return 0
	}
	return capacity - confirmed
}

// exceedsCapacity compares against the free seats so a large request
// cannot overflow the sum.
func exceedsCapacity(capacity, confirmed, requested int) bool {
	return capacity > 0 && requested > capacity-confirmed
}

func signupClosed(e *model.MealEvent, now time.Time) bool {
	return e.SignupDeadline != nil && now.After(*e.SignupDeadline)
}
