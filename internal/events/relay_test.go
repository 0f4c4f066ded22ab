package events

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/clock"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository/memory"
)

var now = time.Date(2026, 3, 14, 18, 30, 0, 0, time.UTC)

type fakePublisher struct {
	mu     sync.Mutex
	sent   []string
	failOn string
}

func (p *fakePublisher) Publish(_ context.Context, ev model.OrderEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev.ID == p.failOn {
		return errors.New("broker unavailable")
	}
	p.sent = append(p.sent, ev.ID)
	return nil
}

func (p *fakePublisher) Sent() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func seed(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	for i := 1; i <= n; i++ {
		err := store.AppendEvent(context.Background(), model.OrderEvent{
			ID:        fmt.Sprintf("ev-%02d", i),
			OrderID:   fmt.Sprintf("order-%02d", i),
			Type:      model.OrderEventCreated,
			Payload:   []byte(`{}`),
			CreatedAt: now,
		})
		require.NoError(t, err)
	}
}

func unpublished(store *memory.Store) int {
	n := 0
	for _, ev := range store.Events() {
		if ev.PublishedAt == nil {
			n++
		}
	}
	return n
}

func TestFlushPublishesInOrderAndMarks(t *testing.T) {
	store := memory.New()
	seed(t, store, 5)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, config.Relay{BatchSize: 3}, clock.Fixed(now), nil)

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"ev-01", "ev-02", "ev-03"}, pub.Sent())

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Zero(t, unpublished(store))
	for _, ev := range store.Events() {
		require.NotNil(t, ev.PublishedAt)
		assert.True(t, now.Equal(*ev.PublishedAt))
	}
}

func TestFlushKeepsFailedEventPending(t *testing.T) {
	store := memory.New()
	seed(t, store, 4)
	pub := &fakePublisher{failOn: "ev-03"}
	relay := NewRelay(store, pub, config.Relay{BatchSize: 10}, clock.Fixed(now), nil)

	n, err := relay.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, unpublished(store))

	pub.failOn = ""
	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"ev-01", "ev-02", "ev-03", "ev-04"}, pub.Sent())
}

func TestRunDrainsUntilCancelled(t *testing.T) {
	store := memory.New()
	seed(t, store, 7)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, config.Relay{BatchSize: 2, Interval: 10 * time.Millisecond}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return unpublished(store) == 0 }, 2*time.Second, 5*time.Millisecond)

	seed2 := model.OrderEvent{ID: "ev-08", OrderID: "order-08", Type: model.OrderEventCancelled, Payload: []byte(`{}`), CreatedAt: now}
	require.NoError(t, store.AppendEvent(context.Background(), seed2))
	require.Eventually(t, func() bool { return len(pub.Sent()) == 8 }, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}
