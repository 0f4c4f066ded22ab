// Package service implements order creation, cancellation and listing on
// top of a transactional order store.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/clock"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/seating"
)

const (
	// DefaultCancelStatus is applied when CancelOrder is called without a status.
	DefaultCancelStatus = model.OrderStatusCancelledByAdmin
	// DefaultPaymentMethod is recorded when CreateOrder is called without a method.
	DefaultPaymentMethod = model.PaymentMethodCreditCard

	defaultMaxAttempts = 3
)

// OrderLister lists orders with their nested projection.
type OrderLister interface {
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
}

// OrderStore is the persistence the service needs. Methods called with the
// context handed to a WithTx callback must take part in that transaction.
type OrderStore interface {
	OrderLister
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetScheduleWithOrders(ctx context.Context, scheduleID string) (*model.Schedule, error)
	GetAudience(ctx context.Context, audienceID string) (*model.Audience, error)
	GetZone(ctx context.Context, zoneID string) (*model.Zone, error)
	GetOrderForUpdate(ctx context.Context, orderID string) (*model.Order, error)
	CreateOrder(ctx context.Context, order *model.Order) error
	CancelOrder(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error
	AppendEvent(ctx context.Context, event model.OrderEvent) error
}

// ListingCache serves order listings and drops an audience's cached
// listings after their orders change.
type ListingCache interface {
	OrderLister
	Forget(ctx context.Context, audienceID string) error
}

// OrderService orchestrates the order lifecycle.
type OrderService struct {
	store       OrderStore
	lister      OrderLister
	cache       ListingCache
	clock       clock.Clock
	log         *zap.Logger
	maxAttempts int
	newID       func() string
	newEventID  func() string
}

// Option customises an OrderService.
type Option func(*OrderService)

// WithClock sets the time source used for timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *OrderService) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *OrderService) {
		s.log = logging.OrDiscard(l)
	}
}

// WithMaxAttempts bounds how many times a transaction that hit a
// concurrent-update conflict is run in total.
func WithMaxAttempts(n int) Option {
	return func(s *OrderService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithListingCache serves listings through c and invalidates it on writes.
func WithListingCache(c ListingCache) Option {
	return func(s *OrderService) {
		if c != nil {
			s.cache = c
			s.lister = c
		}
	}
}

// WithIDGenerator overrides how order, ticket and payment IDs are made.
func WithIDGenerator(fn func() string) Option {
	return func(s *OrderService) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// NewOrderService constructs an OrderService over store.
func NewOrderService(store OrderStore, opts ...Option) *OrderService {
	s := &OrderService{
		store:       store,
		lister:      store,
		clock:       clock.System(),
		log:         zap.NewNop(),
		maxAttempts: defaultMaxAttempts,
		newID:       func() string { return uuid.New().String() },
		newEventID:  func() string { return ulid.Make().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrderInput identifies who buys how many seats in which zone of
// which fixture. An empty Method records DefaultPaymentMethod.
type CreateOrderInput struct {
	AudienceID  string
	FixtureID   string
	ZoneID      string
	NoOfTickets int
	Method      model.PaymentMethod
}

// CreateOrder allocates the next NoOfTickets seats of the zone for the
// fixture and stores a successful order with its tickets and a paid payment.
//
// The seat read, the capacity check and the writes run in one transaction
// holding the fixture lock, so concurrent orders can neither oversell the
// zone nor be issued the same seat. If the store still reports a conflict
// the whole transaction is retried. Nothing is written when an error is
// returned.
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	if in.NoOfTickets <= 0 {
		return nil, fmt.Errorf("create order: %w: %d", ErrInvalidTicketCount, in.NoOfTickets)
	}
	if in.Method == "" {
		in.Method = DefaultPaymentMethod
	}

	var order *model.Order
	err := s.retry(ctx, "create order", func() error {
		return s.store.WithTx(ctx, func(txCtx context.Context) error {
			o, err := s.allocate(txCtx, in)
			if err != nil {
				return err
			}
			if err := s.store.CreateOrder(txCtx, o); err != nil {
				return err
			}
			if err := s.appendEvent(txCtx, model.OrderEventCreated, o, o.SeatNumbers()); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		return nil, classify("create order", err)
	}

	s.forget(ctx, order.AudienceID)
	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("audience_id", order.AudienceID),
		zap.String("fixture_id", order.ScheduleID),
		zap.String("zone_id", order.ZoneID),
		zap.Int("tickets", order.NoOfTickets),
		zap.Strings("seats", order.SeatNumbers()),
		zap.String("amount", order.Payment.Amount.String()))
	return order, nil
}

// allocate reads the fixture's sales, the zone and the audience, checks
// capacity and builds the order to insert. It must run inside the store
// transaction.
func (s *OrderService) allocate(ctx context.Context, in CreateOrderInput) (*model.Order, error) {
	fixture, err := s.store.GetScheduleWithOrders(ctx, in.FixtureID)
	if err != nil {
		return nil, err
	}
	zone, err := s.store.GetZone(ctx, in.ZoneID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetAudience(ctx, in.AudienceID); err != nil {
		return nil, err
	}

	total := zone.PricePerSeat.Mul(decimal.NewFromInt(int64(in.NoOfTickets)))

	lastSeat := seating.LastSeat(fixture.Orders, zone.ID)
	if err := seating.CheckCapacity(*zone, lastSeat, in.NoOfTickets); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	orderID := s.newID()
	seats := seating.Codes(zone.Name, in.NoOfTickets, lastSeat)
	tickets := make([]model.Ticket, len(seats))
	for i, seat := range seats {
		tickets[i] = model.Ticket{
			ID:         s.newID(),
			OrderID:    orderID,
			SeatNo:     seat.Code,
			SeatNumber: seat.Number,
		}
	}

	return &model.Order{
		ID:          orderID,
		AudienceID:  in.AudienceID,
		ScheduleID:  fixture.ID,
		ZoneID:      zone.ID,
		NoOfTickets: in.NoOfTickets,
		Status:      model.OrderStatusSuccess,
		CreatedAt:   now,
		UpdatedAt:   now,
		Tickets:     tickets,
		Payment: &model.Payment{
			ID:         s.newID(),
			OrderID:    orderID,
			AudienceID: in.AudienceID,
			Status:     model.PaymentStatusPaid,
			Method:     in.Method,
			Amount:     total,
			CreatedAt:  now,
			UpdatedAt:  now,
		},
	}, nil
}

// CancelOrder moves the order to status, deletes its tickets and refunds
// its payment, all in one transaction. An empty status means
// DefaultCancelStatus. Cancelling an already cancelled order succeeds and
// leaves it cancelled with the new status.
func (s *OrderService) CancelOrder(ctx context.Context, orderID string, status model.OrderStatus) (*model.Order, error) {
	if status == "" {
		status = DefaultCancelStatus
	}
	if !status.IsCancellation() {
		return nil, fmt.Errorf("cancel order: %w: %s", ErrInvalidStatus, status)
	}

	var order *model.Order
	err := s.retry(ctx, "cancel order", func() error {
		return s.store.WithTx(ctx, func(txCtx context.Context) error {
			o, err := s.store.GetOrderForUpdate(txCtx, orderID)
			if err != nil {
				return err
			}
			released := o.SeatNumbers()

			now := s.clock.Now()
			if err := s.store.CancelOrder(txCtx, orderID, status, now); err != nil {
				return err
			}

			o.Status = status
			o.UpdatedAt = now
			o.Tickets = []model.Ticket{}
			if o.Payment != nil {
				o.Payment.Status = model.PaymentStatusRefunded
				o.Payment.UpdatedAt = now
			}
			if err := s.appendEvent(txCtx, model.OrderEventCancelled, o, released); err != nil {
				return err
			}
			order = o
			return nil
		})
	})
	if err != nil {
		return nil, classify("cancel order", err)
	}

	s.forget(ctx, order.AudienceID)
	s.log.Info("order cancelled",
		zap.String("order_id", order.ID),
		zap.String("audience_id", order.AudienceID),
		zap.String("status", string(order.Status)))
	return order, nil
}

// GetAllOrders returns every order with its audience, payment, schedule
// and tickets.
func (s *OrderService) GetAllOrders(ctx context.Context) ([]model.Order, error) {
	orders, err := s.lister.ListOrders(ctx, model.OrderFilter{})
	if err != nil {
		return nil, classify("list orders", err)
	}
	return orders, nil
}

// GetOrdersByAudience returns the audience's orders, latest status first
// and newest first within a status.
func (s *OrderService) GetOrdersByAudience(ctx context.Context, audienceID string) ([]model.Order, error) {
	orders, err := s.lister.ListOrders(ctx, model.OrderFilter{AudienceID: audienceID})
	if err != nil {
		return nil, classify("list audience orders", err)
	}
	return orders, nil
}

// GetFixtureSales returns the fixture with every order placed for it.
func (s *OrderService) GetFixtureSales(ctx context.Context, fixtureID string) (*model.Schedule, error) {
	fixture, err := s.store.GetScheduleWithOrders(ctx, fixtureID)
	if err != nil {
		return nil, classify("fixture sales", err)
	}
	return fixture, nil
}

// Availability describes how far a zone's seat sequence has advanced for
// a fixture.
type Availability struct {
	ZoneID    string `json:"zone_id"`
	Size      int    `json:"size"`
	LastSeat  int    `json:"last_seat"`
	Remaining int    `json:"remaining"`
}

// ZoneAvailability reports how many more seats CreateOrder can issue in
// the zone for the fixture.
func (s *OrderService) ZoneAvailability(ctx context.Context, fixtureID, zoneID string) (Availability, error) {
	fixture, err := s.store.GetScheduleWithOrders(ctx, fixtureID)
	if err != nil {
		return Availability{}, classify("zone availability", err)
	}
	zone, err := s.store.GetZone(ctx, zoneID)
	if err != nil {
		return Availability{}, classify("zone availability", err)
	}
	last := seating.LastSeat(fixture.Orders, zone.ID)
	return Availability{
		ZoneID:    zone.ID,
		Size:      zone.Size,
		LastSeat:  last,
		Remaining: seating.Remaining(*zone, last),
	}, nil
}

// retry runs fn until it succeeds, fails with something other than a
// conflict, or maxAttempts runs are used up.
func (s *OrderService) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err = fn()
		if err == nil || !errors.Is(err, repository.ErrConflict) {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		s.log.Debug("retrying after conflict",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return err
}

func (s *OrderService) appendEvent(ctx context.Context, typ model.OrderEventType, o *model.Order, seats []string) error {
	payload := model.OrderEventPayload{
		OrderID:     o.ID,
		AudienceID:  o.AudienceID,
		ScheduleID:  o.ScheduleID,
		ZoneID:      o.ZoneID,
		NoOfTickets: o.NoOfTickets,
		Status:      o.Status,
		Seats:       seats,
		OccurredAt:  o.UpdatedAt,
	}
	if o.Payment != nil {
		payload.Amount = o.Payment.Amount.String()
		payload.Payment = o.Payment.Status
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", typ, err)
	}
	return s.store.AppendEvent(ctx, model.OrderEvent{
		ID:        s.newEventID(),
		OrderID:   o.ID,
		Type:      typ,
		Payload:   body,
		CreatedAt: o.UpdatedAt,
	})
}

// forget drops cached listings after a committed write. The write has
// already happened, so a cache failure is logged rather than returned;
// entries expire on their own TTL.
func (s *OrderService) forget(ctx context.Context, audienceID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Forget(ctx, audienceID); err != nil {
		s.log.Warn("invalidate order listing cache",
			zap.String("audience_id", audienceID),
			zap.Error(err))
	}
}
