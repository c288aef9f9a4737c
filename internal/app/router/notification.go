package router

import (
	"context"
	"time"

	"github.com/indexbasket/basketcore/internal/domain/basket"
	"github.com/indexbasket/basketcore/internal/domain/lifecycle"
)

// Notification is the event-notification contract handed to downstream
// consumers. Delivery is at-least-once; consumers de-duplicate on EventID.
type Notification struct {
	EventID     string            `json:"event_id"`
	BasketID    string            `json:"basket_id"`
	FromState   basket.Status     `json:"from_state"`
	ToState     basket.Status     `json:"to_state"`
	Trigger     lifecycle.Trigger `json:"trigger_event"`
	TriggeredBy string            `json:"triggered_by"`
	Timestamp   time.Time         `json:"timestamp"`
	Version     int64             `json:"version"`
	Category    Category          `json:"category"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NotificationFrom builds the downstream notification for a committed
// transition event.
func NotificationFrom(evt lifecycle.TransitionEvent) Notification {
	return Notification{
		EventID:     evt.EventID,
		BasketID:    evt.BasketID,
		FromState:   evt.From,
		ToState:     evt.To,
		Trigger:     evt.Trigger,
		TriggeredBy: evt.TriggeredBy,
		Timestamp:   evt.Timestamp,
		Version:     evt.Version,
		Category:    ProfileFor(evt.Trigger).Category,
		Metadata:    evt.Metadata,
	}
}

// Adapter delivers notifications over one protocol tier. Adapters are
// external collaborators; the router only depends on this capability
// surface.
type Adapter interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
	Healthy() bool
}
