package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/repository"
)

var at = time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)

func seeded() *Store {
	s := New()
	s.AddAudience(model.Audience{ID: "a1", Name: "Asha", Email: "asha@example.com"})
	s.AddSchedule(model.Schedule{ID: "s1", Stadium: &model.Stadium{Name: "Eden Gardens"}})
	s.AddZone(model.Zone{ID: "z1", Name: "Upper Tier", PricePerSeat: decimal.NewFromInt(5), Size: 5})
	return s
}

func newOrder(id string, seats ...int) *model.Order {
	o := &model.Order{
		ID: id, AudienceID: "a1", ScheduleID: "s1", ZoneID: "z1",
		NoOfTickets: len(seats), Status: model.OrderStatusSuccess, CreatedAt: at, UpdatedAt: at,
		Payment: &model.Payment{ID: "p-" + id, AudienceID: "a1", Status: model.PaymentStatusPaid, Amount: decimal.NewFromInt(5)},
	}
	for _, n := range seats {
		o.Tickets = append(o.Tickets, model.Ticket{ID: id + "-t", SeatNo: "UT", SeatNumber: n})
	}
	return o
}

func TestGetAudience(t *testing.T) {
	a, err := seeded().GetAudience(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, "Asha", a.Name)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(ctx context.Context) error {
		require.NoError(t, s.CreateOrder(ctx, newOrder("o1", 1, 2)))
		require.NoError(t, s.AppendEvent(ctx, model.OrderEvent{ID: "e1", OrderID: "o1"}))

		sc, err := s.GetScheduleWithOrders(ctx, "s1")
		require.NoError(t, err)
		assert.Len(t, sc.Orders, 1, "writes are visible inside the transaction")
		return boom
	})
	require.ErrorIs(t, err, boom)

	sc, err := s.GetScheduleWithOrders(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, sc.Orders)
	assert.Empty(t, s.Events())
}

func TestNestedWithTxJoinsOuter(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	err := s.WithTx(ctx, func(ctx context.Context) error {
		return s.WithTx(ctx, func(ctx context.Context) error {
			return s.CreateOrder(ctx, newOrder("o1", 1))
		})
	})
	require.NoError(t, err)

	o, err := s.GetOrderForUpdate(ctx, "o1")
	require.NoError(t, err)
	assert.Len(t, o.Tickets, 1)
	assert.Equal(t, "o1", o.Tickets[0].OrderID)
	assert.Equal(t, "o1", o.Payment.OrderID)
}

func TestCreateOrderRejectsTakenSeats(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	require.NoError(t, s.CreateOrder(ctx, newOrder("o1", 1, 2)))
	err := s.CreateOrder(ctx, newOrder("o2", 2, 3))
	require.ErrorIs(t, err, repository.ErrConflict)

	require.NoError(t, s.CancelOrder(ctx, "o1", model.OrderStatusCancelledByAdmin, at))
	require.NoError(t, s.CreateOrder(ctx, newOrder("o2", 2, 3)), "cancelled tickets release their seat numbers")
}

func TestCreateOrderRejectsUnknownAudience(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	o := newOrder("o1", 1)
	o.AudienceID = "ghost"
	err := s.CreateOrder(ctx, o)
	require.ErrorIs(t, err, repository.ErrNotFound)

	orders, err := s.ListOrders(ctx, model.OrderFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	require.NoError(t, s.CreateOrder(ctx, newOrder("o1", 1, 2)))

	later := at.Add(time.Hour)
	require.NoError(t, s.CancelOrder(ctx, "o1", model.OrderStatusCancelledByUser, later))

	o, err := s.GetOrderForUpdate(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelledByUser, o.Status)
	assert.Empty(t, o.Tickets)
	assert.Equal(t, model.PaymentStatusRefunded, o.Payment.Status)
	assert.Equal(t, later, o.UpdatedAt)

	err = s.CancelOrder(ctx, "missing", model.OrderStatusCancelledByUser, later)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLookupsReportNotFound(t *testing.T) {
	ctx := context.Background()
	s := seeded()

	_, err := s.GetZone(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetAudience(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetScheduleWithOrders(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = s.GetOrderForUpdate(ctx, "nope")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestOutbox(t *testing.T) {
	ctx := context.Background()
	s := seeded()
	for _, id := range []string{"e1", "e2", "e3"} {
		require.NoError(t, s.AppendEvent(ctx, model.OrderEvent{ID: id, OrderID: "o1", Type: model.OrderEventCreated}))
	}

	pending, err := s.PendingEvents(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "e1", pending[0].ID)

	require.NoError(t, s.MarkPublished(ctx, []string{"e1", "e2"}, at))

	pending, err = s.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "e3", pending[0].ID)
}
