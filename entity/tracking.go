package entity

import "fmt"

type TrackingEventType string

const (
	TrackingEventDelivered TrackingEventType = "delivered"
	TrackingEventOpened    TrackingEventType = "opened"
	TrackingEventClicked   TrackingEventType = "clicked"
	TrackingEventBounced   TrackingEventType = "bounced"
)

var TrackingEventTypes = []string{
	string(TrackingEventDelivered),
	string(TrackingEventOpened),
	string(TrackingEventClicked),
	string(TrackingEventBounced),
}

// TrackingEvent is a delivery/engagement notification for one recipient of one email log.
type TrackingEvent struct {
	EmailLogID uint64            `json:"email_log_id"`
	Email      string            `json:"email"`
	Event      TrackingEventType `json:"event"`
	Timestamp  uint64            `json:"timestamp"`
}

// Apply moves the recipient to the status implied by the event and stamps the matching time.
// Engagement never moves backwards: a clicked recipient stays clicked after a late "delivered".
// A failed recipient stays failed whatever the event.
func (ev *TrackingEvent) Apply(r *Recipient) error {
	ts := ev.Timestamp

	switch ev.Event {
	case TrackingEventDelivered:
		if r.DeliveredAt == nil {
			r.DeliveredAt = &ts
		}
		r.Status = maxStatus(r.Status, RecipientStatusDelivered)
	case TrackingEventOpened:
		if r.OpenedAt == nil {
			r.OpenedAt = &ts
		}
		r.Status = maxStatus(r.Status, RecipientStatusOpened)
	case TrackingEventClicked:
		if r.ClickedAt == nil {
			r.ClickedAt = &ts
		}
		if r.OpenedAt == nil {
			r.OpenedAt = &ts
		}
		r.Status = maxStatus(r.Status, RecipientStatusClicked)
	case TrackingEventBounced:
		if r.Status != RecipientStatusFailed {
			r.Status = RecipientStatusBounced
		}
	default:
		return fmt.Errorf("unknown tracking event: %q", ev.Event)
	}

	return nil
}

func maxStatus(current, next RecipientStatus) RecipientStatus {
	if current == RecipientStatusFailed || current == RecipientStatusBounced {
		return current
	}
	if next > current {
		return next
	}
	return current
}
