// Package model defines the core domain types for fixture ticket ordering.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order. The declared order of
// OrderStatuses is the order listings sort by.
type OrderStatus string

const (
	OrderStatusPending          OrderStatus = "PENDING"
	OrderStatusSuccess          OrderStatus = "SUCCESS"
	OrderStatusCancelledByUser  OrderStatus = "CANCELLED_BY_USER"
	OrderStatusCancelledByAdmin OrderStatus = "CANCELLED_BY_ADMIN"
)

// OrderStatuses lists every order status in declared order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusSuccess,
	OrderStatusCancelledByUser,
	OrderStatusCancelledByAdmin,
}

// Rank returns the position of s in OrderStatuses, or -1 for unknown values.
func (s OrderStatus) Rank() int {
	for i, v := range OrderStatuses {
		if v == s {
			return i
		}
	}
	return -1
}

// IsCancellation reports whether s is a terminal cancelled state.
func (s OrderStatus) IsCancellation() bool {
	return s == OrderStatusCancelledByUser || s == OrderStatusCancelledByAdmin
}

// PaymentStatus is the state of an order's payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "PENDING"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

// PaymentMethod is how an order was paid for.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "CREDIT_CARD"
	PaymentMethodDebitCard  PaymentMethod = "DEBIT_CARD"
	PaymentMethodCash       PaymentMethod = "CASH"
)

// Zone is a priced, capacity-bounded seating area.
type Zone struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	PricePerSeat decimal.Decimal `json:"price_per_seat"`
	Size         int             `json:"size"`
}

// Audience is the customer an order belongs to.
type Audience struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Team is the side a fixture is listed under.
type Team struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Abbreviation string `json:"abbreviation"`
}

// Stadium is where a fixture is played.
type Stadium struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location"`
}

// TimeSlot is the window a fixture is scheduled in.
type TimeSlot struct {
	ID       string    `json:"id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
}

// Schedule is a fixture: a team playing at a stadium in a time slot.
// Orders is populated only by lookups that ask for the sales history.
type Schedule struct {
	ID       string    `json:"id"`
	Date     time.Time `json:"date"`
	TimeSlot *TimeSlot `json:"time_slot,omitempty"`
	Team     *Team     `json:"team,omitempty"`
	Stadium  *Stadium  `json:"stadium,omitempty"`
	Orders   []Order   `json:"orders,omitempty"`
}

// Ticket is one allocated seat. SeatNumber is the numeric offset the
// SeatNo code was generated from; zero on rows that predate it.
type Ticket struct {
	ID         string `json:"id"`
	OrderID    string `json:"order_id"`
	SeatNo     string `json:"seat_no"`
	SeatNumber int    `json:"seat_number"`
}

// Payment records what an order cost and whether it was paid or refunded.
type Payment struct {
	ID         string          `json:"id"`
	OrderID    string          `json:"order_id"`
	AudienceID string          `json:"audience_id"`
	Status     PaymentStatus   `json:"status"`
	Method     PaymentMethod   `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Order owns its tickets and exactly one payment.
type Order struct {
	ID          string      `json:"id"`
	AudienceID  string      `json:"audience_id"`
	ScheduleID  string      `json:"schedule_id"`
	ZoneID      string      `json:"zone_id"`
	NoOfTickets int         `json:"no_of_tickets"`
	Status      OrderStatus `json:"status"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`

	Tickets  []Ticket  `json:"tickets"`
	Payment  *Payment  `json:"payment,omitempty"`
	Audience *Audience `json:"audience,omitempty"`
	Schedule *Schedule `json:"schedule,omitempty"`
}

// SeatNumbers returns the seat codes of the order's tickets.
func (o *Order) SeatNumbers() []string {
	seats := make([]string, 0, len(o.Tickets))
	for _, t := range o.Tickets {
		seats = append(seats, t.SeatNo)
	}
	return seats
}

// OrderFilter narrows an order listing. The zero value matches every order.
type OrderFilter struct {
	AudienceID string
}
