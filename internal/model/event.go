package model

import (
	"encoding/json"
	"time"
)

// OrderEventType names what happened to an order; it doubles as the routing key.
type OrderEventType string

const (
	OrderEventCreated   OrderEventType = "order.created"
	OrderEventCancelled OrderEventType = "order.cancelled"
)

// OrderEvent is an outbox record written in the same transaction as the
// order change it describes.
type OrderEvent struct {
	ID          string          `json:"id"`
	OrderID     string          `json:"order_id"`
	Type        OrderEventType  `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
}

// OrderEventPayload is the body published for every order event.
type OrderEventPayload struct {
	OrderID     string        `json:"order_id"`
	AudienceID  string        `json:"audience_id"`
	ScheduleID  string        `json:"schedule_id"`
	ZoneID      string        `json:"zone_id"`
	NoOfTickets int           `json:"no_of_tickets"`
	Status      OrderStatus   `json:"status"`
	Seats       []string      `json:"seats"`
	Amount      string        `json:"amount,omitempty"`
	Payment     PaymentStatus `json:"payment_status,omitempty"`
	OccurredAt  time.Time     `json:"occurred_at"`
}
