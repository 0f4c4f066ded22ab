package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

// AppendEvent records an order event in the outbox. Call it inside the
// transaction that makes the change the event describes.
func (r *OrderRepository) AppendEvent(ctx context.Context, ev model.OrderEvent) error {
	_, err := conn(ctx, r.db).Exec(ctx,
		`INSERT INTO order_events (id, order_id, type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.OrderID, string(ev.Type), []byte(ev.Payload), ev.CreatedAt,
	)
	if err != nil {
		return wrap("append order event", err)
	}
	return nil
}

// PendingEvents returns up to limit unpublished events, oldest first.
// Inside a transaction the rows stay locked until it ends, and rows locked
// by another relay are skipped.
func (r *OrderRepository) PendingEvents(ctx context.Context, limit int) ([]model.OrderEvent, error) {
	rows, err := conn(ctx, r.db).Query(ctx,
		`SELECT id, order_id, type, payload, created_at
		 FROM order_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT $1
		 FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, wrap("list pending events", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.OrderEvent, error) {
		var (
			ev      model.OrderEvent
			typ     string
			payload []byte
		)
		err := row.Scan(&ev.ID, &ev.OrderID, &typ, &payload, &ev.CreatedAt)
		ev.Type = model.OrderEventType(typ)
		ev.Payload = payload
		return ev, err
	})
	if err != nil {
		return nil, wrap("scan pending event", err)
	}
	return events, nil
}

// MarkPublished stamps the given events as published at the given time.
func (r *OrderRepository) MarkPublished(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := conn(ctx, r.db).Exec(ctx,
		`UPDATE order_events SET published_at = $2 WHERE id = ANY($1)`,
		ids, at,
	)
	if err != nil {
		return wrap("mark events published", err)
	}
	return nil
}
