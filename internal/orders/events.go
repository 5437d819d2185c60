package orders

import (
	"encoding/json"
	"time"
)

const EventVersion = 1

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order_id
	Payload       json.RawMessage `json:"payload"`
}

// StatusChanged is published for every status an order enters, including
// paid at creation. EventType is the new status.
type StatusChanged struct {
	OrderID        string    `json:"order_id"`
	EventType      string    `json:"event_type"`
	From           Status    `json:"from,omitempty"`
	Status         Status    `json:"status"`
	TrackingNumber string    `json:"tracking_number,omitempty"`
	Version        int64     `json:"version"`
	Total          string    `json:"total"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// EventFor describes o having just entered its current status from from.
func EventFor(o *Order, from Status) StatusChanged {
	return StatusChanged{
		OrderID:        o.ID,
		EventType:      string(o.Status),
		From:           from,
		Status:         o.Status,
		TrackingNumber: o.TrackingNumber,
		Version:        o.Version,
		Total:          o.Total.StringFixed(2),
		OccurredAt:     o.UpdatedAt,
	}
}
