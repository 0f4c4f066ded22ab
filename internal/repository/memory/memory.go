// Package memory is an in-process implementation of the order store.
//
// Transactions are serialisable: WithTx holds the store lock for the whole
// callback and works on a private copy of the data, which replaces the
// committed data only when the callback succeeds.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository"
)

type seatKey struct {
	scheduleID string
	zoneID     string
	number     int
}

type data struct {
	audiences map[string]model.Audience
	schedules map[string]model.Schedule
	zones     map[string]model.Zone
	orders    map[string]model.Order
	tickets   map[string][]model.Ticket
	payments  map[string]model.Payment
	seats     map[seatKey]string
	events    []model.OrderEvent
	sequence  map[string]int
	next      int
}

func newData() *data {
	return &data{
		audiences: make(map[string]model.Audience),
		schedules: make(map[string]model.Schedule),
		zones:     make(map[string]model.Zone),
		orders:    make(map[string]model.Order),
		tickets:   make(map[string][]model.Ticket),
		payments:  make(map[string]model.Payment),
		seats:     make(map[seatKey]string),
		sequence:  make(map[string]int),
	}
}

func (d *data) clone() *data {
	c := &data{
		audiences: cloneMap(d.audiences),
		schedules: cloneMap(d.schedules),
		zones:     cloneMap(d.zones),
		orders:    cloneMap(d.orders),
		tickets:   make(map[string][]model.Ticket, len(d.tickets)),
		payments:  cloneMap(d.payments),
		seats:     cloneMap(d.seats),
		events:    slices.Clone(d.events),
		sequence:  cloneMap(d.sequence),
		next:      d.next,
	}
	for id, ts := range d.tickets {
		c.tickets[id] = slices.Clone(ts)
	}
	return c
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	c := make(map[K]V, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

type txKey struct{}

// Store keeps fixtures, zones and orders in memory.
type Store struct {
	mu   sync.Mutex
	data *data
}

// New returns an empty store.
func New() *Store {
	return &Store{data: newData()}
}

// WithTx runs fn with exclusive access to a copy of the store. The copy is
// committed when fn returns nil and discarded otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*data); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.data.clone()
	if err := fn(context.WithValue(ctx, txKey{}, work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

// view runs fn against the transaction's data, or against the committed
// data under the lock when ctx carries no transaction.
func (s *Store) view(ctx context.Context, fn func(d *data) error) error {
	if d, ok := ctx.Value(txKey{}).(*data); ok {
		return fn(d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.data)
}

// update is view for writes: outside a transaction it runs as its own one.
func (s *Store) update(ctx context.Context, fn func(d *data) error) error {
	if d, ok := ctx.Value(txKey{}).(*data); ok {
		return fn(d)
	}
	return s.WithTx(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*data))
	})
}

// AddAudience registers an audience member.
func (s *Store) AddAudience(a model.Audience) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.audiences[a.ID] = a
}

// AddSchedule registers a fixture. Any Orders on it are ignored.
func (s *Store) AddSchedule(sc model.Schedule) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sc.Orders = nil
	s.data.schedules[sc.ID] = sc
}

// AddZone registers a zone.
func (s *Store) AddZone(z model.Zone) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.zones[z.ID] = z
}

// GetScheduleWithOrders returns the fixture with its orders in creation order.
func (s *Store) GetScheduleWithOrders(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	var out *model.Schedule
	err := s.view(ctx, func(d *data) error {
		sc, ok := d.schedules[scheduleID]
		if !ok {
			return fmt.Errorf("schedule %s: %w", scheduleID, repository.ErrNotFound)
		}
		var orders []model.Order
		for id, o := range d.orders {
			if o.ScheduleID == scheduleID {
				orders = append(orders, d.assemble(id, false))
			}
		}
		sort.Slice(orders, func(i, j int) bool {
			return d.sequence[orders[i].ID] < d.sequence[orders[j].ID]
		})
		sc.Orders = orders
		out = &sc
		return nil
	})
	return out, err
}

// GetAudience returns an audience member or repository.ErrNotFound.
func (s *Store) GetAudience(ctx context.Context, audienceID string) (*model.Audience, error) {
	var out *model.Audience
	err := s.view(ctx, func(d *data) error {
		a, ok := d.audiences[audienceID]
		if !ok {
			return fmt.Errorf("audience %s: %w", audienceID, repository.ErrNotFound)
		}
		out = &a
		return nil
	})
	return out, err
}

// GetZone returns a zone or repository.ErrNotFound.
func (s *Store) GetZone(ctx context.Context, zoneID string) (*model.Zone, error) {
	var out *model.Zone
	err := s.view(ctx, func(d *data) error {
		z, ok := d.zones[zoneID]
		if !ok {
			return fmt.Errorf("zone %s: %w", zoneID, repository.ErrNotFound)
		}
		out = &z
		return nil
	})
	return out, err
}

// GetOrderForUpdate returns the order with its tickets and payment. The
// store lock held by WithTx stands in for the row lock.
func (s *Store) GetOrderForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	var out *model.Order
	err := s.view(ctx, func(d *data) error {
		if _, ok := d.orders[orderID]; !ok {
			return fmt.Errorf("order %s: %w", orderID, repository.ErrNotFound)
		}
		o := d.assemble(orderID, false)
		out = &o
		return nil
	})
	return out, err
}

// CreateOrder stores the order with its tickets and payment. An unknown
// audience fails with repository.ErrNotFound, like the foreign key in
// Postgres; a seat number already issued for the fixture and zone fails
// with repository.ErrConflict.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.Payment == nil {
		return fmt.Errorf("create order: payment is required")
	}
	return s.update(ctx, func(d *data) error {
		if _, ok := d.audiences[o.AudienceID]; !ok {
			return fmt.Errorf("audience %s: %w", o.AudienceID, repository.ErrNotFound)
		}
		if _, exists := d.orders[o.ID]; exists {
			return fmt.Errorf("insert order %s: %w", o.ID, repository.ErrConflict)
		}
		for _, t := range o.Tickets {
			key := seatKey{o.ScheduleID, o.ZoneID, t.SeatNumber}
			if _, taken := d.seats[key]; taken {
				return fmt.Errorf("insert ticket %s: %w", t.SeatNo, repository.ErrConflict)
			}
		}

		stored := *o
		stored.Tickets, stored.Payment, stored.Audience, stored.Schedule = nil, nil, nil, nil
		d.orders[o.ID] = stored

		tickets := make([]model.Ticket, len(o.Tickets))
		for i, t := range o.Tickets {
			t.OrderID = o.ID
			tickets[i] = t
			d.seats[seatKey{o.ScheduleID, o.ZoneID, t.SeatNumber}] = o.ID
		}
		d.tickets[o.ID] = tickets

		p := *o.Payment
		p.OrderID = o.ID
		d.payments[o.ID] = p

		d.next++
		d.sequence[o.ID] = d.next
		return nil
	})
}

// CancelOrder sets the status, drops the order's tickets and refunds its
// payment.
func (s *Store) CancelOrder(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	return s.update(ctx, func(d *data) error {
		o, ok := d.orders[orderID]
		if !ok {
			return fmt.Errorf("order %s: %w", orderID, repository.ErrNotFound)
		}
		o.Status = status
		o.UpdatedAt = at
		d.orders[orderID] = o

		for _, t := range d.tickets[orderID] {
			delete(d.seats, seatKey{o.ScheduleID, o.ZoneID, t.SeatNumber})
		}
		d.tickets[orderID] = nil

		if p, ok := d.payments[orderID]; ok {
			p.Status = model.PaymentStatusRefunded
			p.UpdatedAt = at
			d.payments[orderID] = p
		}
		return nil
	})
}

// ListOrders mirrors the Postgres listing: filtered by audience the orders
// come by status descending then newest first, otherwise in creation order.
func (s *Store) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var out []model.Order
	err := s.view(ctx, func(d *data) error {
		for id, o := range d.orders {
			if filter.AudienceID != "" && o.AudienceID != filter.AudienceID {
				continue
			}
			out = append(out, d.assemble(id, true))
		}
		if filter.AudienceID != "" {
			sort.Slice(out, func(i, j int) bool {
				a, b := out[i], out[j]
				if ra, rb := a.Status.Rank(), b.Status.Rank(); ra != rb {
					return ra > rb
				}
				if !a.CreatedAt.Equal(b.CreatedAt) {
					return a.CreatedAt.After(b.CreatedAt)
				}
				return a.ID < b.ID
			})
		} else {
			sort.Slice(out, func(i, j int) bool {
				return d.sequence[out[i].ID] < d.sequence[out[j].ID]
			})
		}
		return nil
	})
	return out, err
}

// AppendEvent records an order event in the outbox.
func (s *Store) AppendEvent(ctx context.Context, ev model.OrderEvent) error {
	return s.update(ctx, func(d *data) error {
		ev.Payload = slices.Clone(ev.Payload)
		d.events = append(d.events, ev)
		return nil
	})
}

// PendingEvents returns up to limit unpublished events, oldest first.
func (s *Store) PendingEvents(ctx context.Context, limit int) ([]model.OrderEvent, error) {
	var out []model.OrderEvent
	err := s.view(ctx, func(d *data) error {
		for _, ev := range d.events {
			if len(out) == limit {
				break
			}
			if ev.PublishedAt == nil {
				out = append(out, ev)
			}
		}
		return nil
	})
	return out, err
}

// MarkPublished stamps the given events as published.
func (s *Store) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	return s.update(ctx, func(d *data) error {
		for i := range d.events {
			if slices.Contains(ids, d.events[i].ID) {
				stamp := at
				d.events[i].PublishedAt = &stamp
			}
		}
		return nil
	})
}

// Events returns a copy of every recorded event.
func (s *Store) Events() []model.OrderEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.events)
}

// assemble builds the order with its tickets and payment, and with the
// audience and schedule projection when nested is set.
func (d *data) assemble(orderID string, nested bool) model.Order {
	o := d.orders[orderID]
	o.Tickets = slices.Clone(d.tickets[orderID])
	if o.Tickets == nil {
		o.Tickets = []model.Ticket{}
	}
	if p, ok := d.payments[orderID]; ok {
		o.Payment = &p
	}
	if !nested {
		return o
	}
	if a, ok := d.audiences[o.AudienceID]; ok {
		o.Audience = &model.Audience{Name: a.Name, Email: a.Email}
	}
	if sc, ok := d.schedules[o.ScheduleID]; ok {
		sc.Orders = nil
		o.Schedule = &sc
	}
	return o
}
