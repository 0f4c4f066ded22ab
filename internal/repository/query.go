package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

const listOrdersSQL = `
SELECT o.id, o.audience_id, o.schedule_id, o.zone_id, o.no_of_tickets, o.status::text, o.created_at, o.updated_at,
       a.name, a.email,
       p.id, p.audience_id, p.status::text, p.method::text, p.amount::text, p.created_at, p.updated_at,
       s.id, s.date,
       ts.id, ts.starts_at, ts.ends_at,
       tm.id, tm.name, tm.abbreviation,
       st.id, st.name, st.location
FROM orders o
JOIN audiences a ON a.id = o.audience_id
JOIN payments p ON p.order_id = o.id
JOIN schedules s ON s.id = o.schedule_id
JOIN time_slots ts ON ts.id = s.time_slot_id
JOIN teams tm ON tm.id = s.team_one_id
JOIN stadiums st ON st.id = s.stadium_id`

// ListOrders returns orders with their audience (name and email), payment,
// schedule and tickets.
//
// Filtered by audience, orders come by status descending in the declared
// order of the order_status enum, newest first within a status. Unfiltered,
// they come in creation order.
func (r *OrderRepository) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(listOrdersSQL)
	if filter.AudienceID != "" {
		args = append(args, filter.AudienceID)
		sb.WriteString("\nWHERE o.audience_id = $1\nORDER BY o.status DESC, o.created_at DESC, o.id")
	} else {
		sb.WriteString("\nORDER BY o.created_at, o.id")
	}

	rows, err := conn(ctx, r.db).Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, wrap("list orders", err)
	}
	orders, err := pgx.CollectRows(rows, scanListedOrder)
	if err != nil {
		return nil, wrap("scan order", err)
	}
	if err := r.attachTickets(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanListedOrder(row pgx.CollectableRow) (model.Order, error) {
	var (
		o      model.Order
		a      model.Audience
		p      model.Payment
		amount string
	)
	s := &model.Schedule{TimeSlot: &model.TimeSlot{}, Team: &model.Team{}, Stadium: &model.Stadium{}}
	err := row.Scan(
		&o.ID, &o.AudienceID, &o.ScheduleID, &o.ZoneID, &o.NoOfTickets, &o.Status, &o.CreatedAt, &o.UpdatedAt,
		&a.Name, &a.Email,
		&p.ID, &p.AudienceID, &p.Status, &p.Method, &amount, &p.CreatedAt, &p.UpdatedAt,
		&s.ID, &s.Date,
		&s.TimeSlot.ID, &s.TimeSlot.StartsAt, &s.TimeSlot.EndsAt,
		&s.Team.ID, &s.Team.Name, &s.Team.Abbreviation,
		&s.Stadium.ID, &s.Stadium.Name, &s.Stadium.Location,
	)
	if err != nil {
		return model.Order{}, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return model.Order{}, fmt.Errorf("parse payment amount %q: %w", amount, err)
	}
	p.OrderID = o.ID
	o.Audience = &a
	o.Payment = &p
	o.Schedule = s
	return o, nil
}
