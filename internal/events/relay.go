package events

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/clock"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

const (
	defaultInterval  = time.Second
	defaultBatchSize = 100
)

// Outbox is the event storage the relay drains.
type Outbox interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	PendingEvents(ctx context.Context, limit int) ([]model.OrderEvent, error)
	MarkPublished(ctx context.Context, ids []string, at time.Time) error
}

// Relay moves pending outbox events to a Publisher. Delivery is at least
// once: an event published just before a crash is sent again on restart.
type Relay struct {
	outbox    Outbox
	publisher Publisher
	clock     clock.Clock
	log       *zap.Logger
	interval  time.Duration
	batchSize int
}

// NewRelay builds a relay. A nil clock means the system clock.
func NewRelay(outbox Outbox, publisher Publisher, cfg config.Relay, clk clock.Clock, log *zap.Logger) *Relay {
	if clk == nil {
		clk = clock.System()
	}
	r := &Relay{
		outbox:    outbox,
		publisher: publisher,
		clock:     clk,
		log:       logging.OrDiscard(log),
		interval:  cfg.Interval,
		batchSize: cfg.BatchSize,
	}
	if r.interval <= 0 {
		r.interval = defaultInterval
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	return r
}

// Run drains the outbox every interval until ctx is done.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		for {
			n, err := r.Flush(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				r.log.Error("relay order events", zap.Error(err))
				break
			}
			if n < r.batchSize {
				break
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Flush publishes one batch of pending events and returns how many were
// published. Publishing stops at the first failure; the events sent before
// it are still marked.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	var (
		published  int
		publishErr error
	)
	err := r.outbox.WithTx(ctx, func(ctx context.Context) error {
		pending, err := r.outbox.PendingEvents(ctx, r.batchSize)
		if err != nil {
			return err
		}

		ids := make([]string, 0, len(pending))
		for _, ev := range pending {
			if err := r.publisher.Publish(ctx, ev); err != nil {
				publishErr = err
				break
			}
			ids = append(ids, ev.ID)
		}
		if len(ids) == 0 {
			return nil
		}
		if err := r.outbox.MarkPublished(ctx, ids, r.clock.Now()); err != nil {
			return err
		}
		published = len(ids)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("flush outbox: %w", err)
	}
	if published > 0 {
		r.log.Debug("order events published", zap.Int("count", published))
	}
	if publishErr != nil {
		return published, fmt.Errorf("publish order event: %w", publishErr)
	}
	return published, nil
}
