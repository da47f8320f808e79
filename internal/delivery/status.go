package delivery

import (
	"errors"
	"fmt"

	"github.com/AnuragDani/juice-subscriptions/internal/models"
)

// Event drives a subscription status change
type Event string

const (
	EventPause           Event = "pause"
	EventReactivate      Event = "reactivate"
	EventExpire          Event = "expire"
	EventAdminPause      Event = "admin_pause"
	EventAdminReactivate Event = "admin_reactivate"
)

// ErrInvalidTransition is returned for an event the current status does not accept
var ErrInvalidTransition = errors.New("delivery: invalid status transition")

var transitions = map[string]map[Event]string{
	models.SubscriptionStatusActive: {
		EventPause:      models.SubscriptionStatusPaused,
		EventAdminPause: models.SubscriptionStatusAdminPaused,
	},
	models.SubscriptionStatusPaused: {
		EventReactivate: models.SubscriptionStatusActive,
		EventExpire:     models.SubscriptionStatusExpired,
	},
	models.SubscriptionStatusAdminPaused: {
		EventAdminReactivate: models.SubscriptionStatusActive,
	},
}

// NextStatus returns the status reached from current on ev. expired is terminal.
func NextStatus(current string, ev Event) (string, error) {
	next, ok := transitions[current][ev]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrInvalidTransition, ev, current)
	}
	return next, nil
}
