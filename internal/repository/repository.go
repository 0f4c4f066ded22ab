// Package repository implements order persistence on PostgreSQL.
// It uses pgx directly (no ORM) for transparency and performance.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

// OrderRepository persists fixtures' orders with their tickets and payments.
// Methods called with a context produced by WithTx run inside that
// transaction; otherwise each statement runs on its own.
type OrderRepository struct {
	db *pgxpool.Pool
}

// NewOrderRepository constructs an OrderRepository.
func NewOrderRepository(db *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{db: db}
}

// WithTx runs fn in a single read-committed transaction.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.db, fn)
}

// GetScheduleWithOrders loads a fixture together with every order placed for
// it, tickets included.
//
// Inside a transaction the fixture row is read with FOR UPDATE. This makes
// every allocation for the fixture wait for the previous one to commit or
// roll back, so the orders loaded afterwards are the ones that count:
//
//	tx A: lock fixture, read last seat 9, write GA10, commit
//	tx B: ........ blocked ........ lock fixture, read last seat 10, ...
//
// Without the lock both transactions read 9 and both try to issue GA10.
// Outside a transaction the read takes no lock and never waits on one.
func (r *OrderRepository) GetScheduleWithOrders(ctx context.Context, scheduleID string) (*model.Schedule, error) {
	q := conn(ctx, r.db)

	query := `SELECT s.id, s.date,
	                 ts.id, ts.starts_at, ts.ends_at,
	                 tm.id, tm.name, tm.abbreviation,
	                 st.id, st.name, st.location
	          FROM schedules s
	          JOIN time_slots ts ON ts.id = s.time_slot_id
	          JOIN teams tm ON tm.id = s.team_one_id
	          JOIN stadiums st ON st.id = s.stadium_id
	          WHERE s.id = $1`
	if txFromContext(ctx) != nil {
		query += ` FOR UPDATE OF s`
	}

	s, err := scanSchedule(q.QueryRow(ctx, query, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("schedule %s: %w", scheduleID, ErrNotFound)
		}
		return nil, wrap("lock schedule row", err)
	}

	rows, err := q.Query(ctx,
		`SELECT id, audience_id, schedule_id, zone_id, no_of_tickets, status::text, created_at, updated_at
		 FROM orders
		 WHERE schedule_id = $1
		 ORDER BY created_at, id`,
		scheduleID,
	)
	if err != nil {
		return nil, wrap("list schedule orders", err)
	}
	orders, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Order, error) {
		var o model.Order
		err := row.Scan(&o.ID, &o.AudienceID, &o.ScheduleID, &o.ZoneID, &o.NoOfTickets, &o.Status, &o.CreatedAt, &o.UpdatedAt)
		return o, err
	})
	if err != nil {
		return nil, wrap("scan schedule order", err)
	}
	if err := r.attachTickets(ctx, orders); err != nil {
		return nil, err
	}

	s.Orders = orders
	return s, nil
}

// GetAudience returns an audience member or ErrNotFound.
func (r *OrderRepository) GetAudience(ctx context.Context, audienceID string) (*model.Audience, error) {
	var a model.Audience
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, name, email FROM audiences WHERE id = $1`,
		audienceID,
	).Scan(&a.ID, &a.Name, &a.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("audience %s: %w", audienceID, ErrNotFound)
		}
		return nil, wrap("get audience", err)
	}
	return &a, nil
}

// GetZone returns a zone or ErrNotFound.
func (r *OrderRepository) GetZone(ctx context.Context, zoneID string) (*model.Zone, error) {
	var (
		z     model.Zone
		price string
	)
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT id, name, price_per_seat::text, size FROM zones WHERE id = $1`,
		zoneID,
	).Scan(&z.ID, &z.Name, &price, &z.Size)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("zone %s: %w", zoneID, ErrNotFound)
		}
		return nil, wrap("get zone", err)
	}
	if z.PricePerSeat, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse zone price %q: %w", price, err)
	}
	return &z, nil
}

// GetOrderForUpdate returns an order with its payment and tickets, locking
// the order row for the rest of the transaction.
func (r *OrderRepository) GetOrderForUpdate(ctx context.Context, orderID string) (*model.Order, error) {
	var (
		o      model.Order
		p      model.Payment
		amount string
	)
	err := conn(ctx, r.db).QueryRow(ctx,
		`SELECT o.id, o.audience_id, o.schedule_id, o.zone_id, o.no_of_tickets, o.status::text, o.created_at, o.updated_at,
		        p.id, p.audience_id, p.status::text, p.method::text, p.amount::text, p.created_at, p.updated_at
		 FROM orders o
		 JOIN payments p ON p.order_id = o.id
		 WHERE o.id = $1
		 FOR UPDATE OF o, p`,
		orderID,
	).Scan(
		&o.ID, &o.AudienceID, &o.ScheduleID, &o.ZoneID, &o.NoOfTickets, &o.Status, &o.CreatedAt, &o.UpdatedAt,
		&p.ID, &p.AudienceID, &p.Status, &p.Method, &amount, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("order %s: %w", orderID, ErrNotFound)
		}
		return nil, wrap("lock order row", err)
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.OrderID = o.ID
	o.Payment = &p

	orders := []model.Order{o}
	if err := r.attachTickets(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

// CreateOrder inserts the order, one row per ticket and its payment.
// A seat number already issued for the same fixture and zone fails with
// ErrConflict.
func (r *OrderRepository) CreateOrder(ctx context.Context, o *model.Order) error {
	if o.Payment == nil {
		return errors.New("create order: payment is required")
	}

	b := &pgx.Batch{}
	b.Queue(
		`INSERT INTO orders (id, audience_id, schedule_id, zone_id, no_of_tickets, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6::order_status, $7, $8)`,
		o.ID, o.AudienceID, o.ScheduleID, o.ZoneID, o.NoOfTickets, string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	for _, t := range o.Tickets {
		b.Queue(
			`INSERT INTO tickets (id, order_id, schedule_id, zone_id, seat_no, seat_number)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.ID, o.ID, o.ScheduleID, o.ZoneID, t.SeatNo, t.SeatNumber,
		)
	}
	p := o.Payment
	b.Queue(
		`INSERT INTO payments (id, order_id, audience_id, status, method, amount, created_at, updated_at)
		 VALUES ($1, $2, $3, $4::payment_status, $5::payment_method, $6::numeric, $7, $8)`,
		p.ID, o.ID, p.AudienceID, string(p.Status), string(p.Method), p.Amount.String(), p.CreatedAt, p.UpdatedAt,
	)

	br := conn(ctx, r.db).SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return wrap("insert order", err)
		}
	}
	if err := br.Close(); err != nil {
		return wrap("insert order", err)
	}
	return nil
}

// CancelOrder sets the order's status, deletes its tickets and marks its
// payment refunded. Run it inside WithTx so the three writes land together.
func (r *OrderRepository) CancelOrder(ctx context.Context, orderID string, status model.OrderStatus, at time.Time) error {
	q := conn(ctx, r.db)

	tag, err := q.Exec(ctx,
		`UPDATE orders SET status = $2::order_status, updated_at = $3 WHERE id = $1`,
		orderID, string(status), at,
	)
	if err != nil {
		return wrap("update order status", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", orderID, ErrNotFound)
	}

	if _, err := q.Exec(ctx, `DELETE FROM tickets WHERE order_id = $1`, orderID); err != nil {
		return wrap("delete tickets", err)
	}

	if _, err := q.Exec(ctx,
		`UPDATE payments SET status = $2::payment_status, updated_at = $3 WHERE order_id = $1`,
		orderID, string(model.PaymentStatusRefunded), at,
	); err != nil {
		return wrap("refund payment", err)
	}
	return nil
}

// attachTickets loads the tickets of orders in one query and assigns them
// in seat order.
func (r *OrderRepository) attachTickets(ctx context.Context, orders []model.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]int, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = i
		orders[i].Tickets = []model.Ticket{}
	}

	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT id, order_id, seat_no, seat_number
		 FROM tickets
		 WHERE order_id = ANY($1)
		 ORDER BY order_id, seat_number`,
		ids,
	)
	if err != nil {
		return wrap("list tickets", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t model.Ticket
		if err := rows.Scan(&t.ID, &t.OrderID, &t.SeatNo, &t.SeatNumber); err != nil {
			return fmt.Errorf("scan ticket: %w", err)
		}
		i := index[t.OrderID]
		orders[i].Tickets = append(orders[i].Tickets, t)
	}
	if err := rows.Err(); err != nil {
		return wrap("list tickets", err)
	}
	return nil
}

func scanSchedule(row pgx.Row) (*model.Schedule, error) {
	s := &model.Schedule{TimeSlot: &model.TimeSlot{}, Team: &model.Team{}, Stadium: &model.Stadium{}}
	err := row.Scan(
		&s.ID, &s.Date,
		&s.TimeSlot.ID, &s.TimeSlot.StartsAt, &s.TimeSlot.EndsAt,
		&s.Team.ID, &s.Team.Name, &s.Team.Abbreviation,
		&s.Stadium.ID, &s.Stadium.Name, &s.Stadium.Location,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
