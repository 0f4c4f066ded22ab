package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

type countingLister struct {
	mu     sync.Mutex
	calls  int
	orders []model.Order
}

func (l *countingLister) ListOrders(_ context.Context, filter model.OrderFilter) ([]model.Order, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	var out []model.Order
	for _, o := range l.orders {
		if filter.AudienceID == "" || o.AudienceID == filter.AudienceID {
			out = append(out, o)
		}
	}
	return out, nil
}

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	rdb, err := NewClient(context.Background(), config.Redis{Addr: addr, DB: 15})
	if err != nil {
		t.Skipf("skipping Redis tests: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	return rdb
}

func TestKeys(t *testing.T) {
	c := New(nil, nil, config.Redis{Prefix: "tix"}, nil)
	assert.Equal(t, "tix:all", c.Key(model.OrderFilter{}))
	assert.Equal(t, "tix:audience:a1", c.Key(model.OrderFilter{AudienceID: "a1"}))

	assert.Equal(t, "orders:all", New(nil, nil, config.Redis{}, nil).Key(model.OrderFilter{}))
}

func TestReadThroughAndForget(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	lister := &countingLister{orders: []model.Order{{
		ID: "o1", AudienceID: "a1", Status: model.OrderStatusSuccess,
		Tickets: []model.Ticket{{ID: "t1", SeatNo: "GA1", SeatNumber: 1}},
		Payment: &model.Payment{ID: "p1", Amount: decimal.RequireFromString("20.50"), Status: model.PaymentStatusPaid},
	}}}
	c := New(rdb, lister, config.Redis{TTL: time.Minute, Prefix: "test"}, nil)

	first, err := c.ListOrders(ctx, model.OrderFilter{AudienceID: "a1"})
	require.NoError(t, err)
	second, err := c.ListOrders(ctx, model.OrderFilter{AudienceID: "a1"})
	require.NoError(t, err)

	assert.Equal(t, 1, lister.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, []string{"GA1"}, second[0].SeatNumbers())
	assert.True(t, decimal.RequireFromString("20.5").Equal(second[0].Payment.Amount))

	require.NoError(t, c.Forget(ctx, "a1"))
	_, err = c.ListOrders(ctx, model.OrderFilter{AudienceID: "a1"})
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)
}

func TestUnreachableRedisFallsBackToStore(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	lister := &countingLister{orders: []model.Order{{ID: "o1"}}}
	c := New(rdb, lister, config.Redis{}, nil)

	orders, err := c.ListOrders(context.Background(), model.OrderFilter{})
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	assert.Error(t, c.Forget(context.Background(), "a1"))
}

// racingLister simulates a write committing while a listing is loaded: the
// first load returns the old rows and a Forget runs before it returns.
type racingLister struct {
	countingLister
	cache *OrderCache
	raced bool
}

func (l *racingLister) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	orders, err := l.countingLister.ListOrders(ctx, filter)
	if !l.raced {
		l.raced = true
		if err := l.cache.Forget(ctx, filter.AudienceID); err != nil {
			return nil, err
		}
	}
	return orders, err
}

func TestLoadRacingForgetIsNotCached(t *testing.T) {
	rdb := testClient(t)
	ctx := context.Background()

	lister := &racingLister{countingLister: countingLister{orders: []model.Order{{ID: "o1", AudienceID: "a1"}}}}
	c := New(rdb, lister, config.Redis{TTL: time.Minute, Prefix: "test"}, nil)
	lister.cache = c

	filter := model.OrderFilter{AudienceID: "a1"}
	_, err := c.ListOrders(ctx, filter)
	require.NoError(t, err)

	n, err := rdb.Exists(ctx, c.Key(filter)).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "a load that overlapped Forget must not be written back")

	_, err = c.ListOrders(ctx, filter)
	require.NoError(t, err)
	n, err = rdb.Exists(ctx, c.Key(filter)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 2, lister.calls)
}
