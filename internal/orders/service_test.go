package orders_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ariefcatur/campus-shop/internal/memstore"
	"github.com/ariefcatur/campus-shop/internal/orders"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingPublisher struct {
	mu   sync.Mutex
	envs []orders.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env orders.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.envs = append(p.envs, env)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []orders.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []orders.Envelope
	for _, e := range p.envs {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

// steppingClock advances one second per call so created_at ordering is
// deterministic.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}

func product(id string, price string, stock int) orders.Product {
	return orders.Product{
		ID:       id,
		Name:     "Product " + id,
		Price:    decimal.RequireFromString(price),
		Stock:    stock,
		IsActive: true,
	}
}

func line(productID string, qty int, price string) orders.LineInput {
	return orders.LineInput{
		ProductID: productID,
		Quantity:  qty,
		UnitPrice: decimal.NewNullDecimal(decimal.RequireFromString(price)),
	}
}

func input(userID string, lines ...orders.LineInput) orders.CreateOrderInput {
	return orders.CreateOrderInput{
		UserID:        userID,
		Lines:         lines,
		PaymentMethod: "transfer",
		Shipping:      orders.Shipping{Address: "Jl. Kampus 1", City: "Bandung", PostalCode: "40132", Country: "ID"},
	}
}

func newFixture(t *testing.T, opts []orders.Option, products ...orders.Product) (*orders.Service, *memstore.Store, *recordingPublisher) {
	t.Helper()
	store := memstore.New()
	for _, p := range products {
		store.PutProduct(p)
	}
	pub := &recordingPublisher{}
	all := append([]orders.Option{orders.WithPublisher(pub), orders.WithClock(steppingClock())}, opts...)
	return orders.NewService(store, all...), store, pub
}

func stockOf(t *testing.T, s *memstore.Store, id string) int {
	t.Helper()
	p, err := s.GetProduct(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateOrder_ComputesTotalAndDecrementsStock(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newFixture(t, nil, product("p1", "1000", 10))

	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 3, "1000")))
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("3000").Equal(o.Total), "total %s", o.Total)
	assert.Equal(t, orders.StatusPending, o.Status)
	assert.False(t, o.IsPaid)
	assert.Nil(t, o.PaymentID)
	assert.Regexp(t, `^ORD-\d{14}-[0-9A-F]{6}$`, o.OrderNumber)
	require.Len(t, o.Lines, 1)
	assert.Equal(t, "Product p1", o.Lines[0].ProductName)
	assert.Equal(t, o.ID, o.Lines[0].OrderID)
	assert.Equal(t, 7, stockOf(t, store, "p1"))

	stored, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.OrderNumber, stored.OrderNumber)
	assert.Equal(t, "Bandung", stored.City)

	created := pub.ofType(orders.EventOrderCreated)
	require.Len(t, created, 1)
	assert.Equal(t, o.ID, created[0].CorrelationID)
	var payload orders.OrderCreatedPayload
	require.NoError(t, json.Unmarshal(created[0].Payload, &payload))
	assert.Equal(t, "3000.00", payload.Total)
	assert.Equal(t, o.OrderNumber, payload.OrderNumber)
}

func TestCreateOrder_TotalUsesSubmittedPrices(t *testing.T) {
	svc, _, _ := newFixture(t, nil, product("a", "1000", 10), product("b", "2500.50", 10))

	o, err := svc.CreateOrder(context.Background(), input("u1", line("a", 2, "900"), line("b", 1, "2500.50")))
	require.NoError(t, err)

	assert.True(t, decimal.RequireFromString("4300.50").Equal(o.Total), "total %s", o.Total)
	assert.True(t, decimal.RequireFromString("900").Equal(o.Lines[0].UnitPrice))
}

func TestCreateOrder_InsufficientStockLeavesStockUntouched(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newFixture(t, nil, product("p1", "1000", 2))

	_, err := svc.CreateOrder(ctx, input("u1", line("p1", 5, "1000")))
	require.Error(t, err)

	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, "p1", ise.ProductID)
	assert.Equal(t, "Product p1", ise.ProductName)
	assert.Equal(t, 5, ise.Requested)
	assert.Equal(t, 2, ise.Available)
	assert.Equal(t, orders.KindInsufficientStock, orders.KindOf(err))

	assert.Equal(t, 2, stockOf(t, store, "p1"))
	all, err := svc.ListOrders(ctx, orders.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
	assert.Empty(t, pub.ofType(orders.EventOrderCreated))
}

func TestCreateOrder_NoPartialDecrement(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newFixture(t, nil, product("a", "10", 10), product("b", "10", 1))

	_, err := svc.CreateOrder(ctx, input("u1", line("a", 3, "10"), line("b", 2, "10")))
	require.Equal(t, orders.KindInsufficientStock, orders.KindOf(err))

	assert.Equal(t, 10, stockOf(t, store, "a"))
	assert.Equal(t, 1, stockOf(t, store, "b"))
}

func TestCreateOrder_RepeatedProductLinesShareStock(t *testing.T) {
	svc, store, _ := newFixture(t, nil, product("p1", "10", 4))

	_, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 3, "10"), line("p1", 3, "10")))
	var ise *orders.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, 6, ise.Requested)
	assert.Equal(t, 4, ise.Available)
	assert.Equal(t, 4, stockOf(t, store, "p1"))

	o, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 2, "10"), line("p1", 2, "10")))
	require.NoError(t, err)
	assert.Len(t, o.Lines, 2)
	assert.Equal(t, 0, stockOf(t, store, "p1"))
}

func TestCreateOrder_Validation(t *testing.T) {
	noPrice := line("p1", 1, "1")
	noPrice.UnitPrice = decimal.NullDecimal{}

	cases := map[string]struct {
		in    orders.CreateOrderInput
		field string
	}{
		"missing user":    {input("", line("p1", 1, "10")), "userId"},
		"no lines":        {input("u1"), "orderItems"},
		"zero quantity":   {input("u1", line("p1", 0, "10")), "orderItems.quantity"},
		"negative qty":    {input("u1", line("p1", -2, "10")), "orderItems.quantity"},
		"missing price":   {input("u1", noPrice), "orderItems.price"},
		"negative price":  {input("u1", line("p1", 1, "-1")), "orderItems.price"},
		"missing product": {input("u1", line("", 1, "10")), "orderItems.productId"},
		"second line bad": {input("u1", line("p1", 1, "10"), line("p1", 0, "10")), "orderItems.quantity"},
		"huge quantity":   {input("u1", line("p1", math.MaxInt32+1, "0")), "orderItems.quantity"},
		"quantity wraps":  {input("u1", line("p1", 5, "10"), line("p1", math.MaxInt64-2, "10")), "orderItems.quantity"},
		"summed over cap": {input("u1", line("p1", math.MaxInt32, "0"), line("p1", 1, "0")), "orderItems.quantity"},
		"sub-cent price":  {input("u1", line("p1", 3, "10.005")), "orderItems.price"},
		"price too large": {input("u1", line("p1", 1, "10000000000")), "orderItems.price"},
		"total too large": {input("u1", line("p1", 2, "5000000000")), "orderItems"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			svc, store, _ := newFixture(t, nil, product("p1", "10", 5))
			_, err := svc.CreateOrder(context.Background(), c.in)

			var ve *orders.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, c.field, ve.Field)
			assert.Equal(t, 5, stockOf(t, store, "p1"))
		})
	}
}

func TestCreateOrder_PriceAndTotalBounds(t *testing.T) {
	svc, _, _ := newFixture(t, nil, product("p1", "10", 5))

	o, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 3, "10.500"), line("p1", 1, "9999999968.49")))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("9999999999.99").Equal(o.Total), "total %s", o.Total)
	assert.Equal(t, "10.50", o.Lines[0].UnitPrice.StringFixed(2))
}

func TestCreateOrder_ZeroPriceIsAccepted(t *testing.T) {
	svc, _, _ := newFixture(t, nil, product("p1", "10", 5))

	o, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 2, "0")))
	require.NoError(t, err)
	assert.True(t, o.Total.IsZero())
}

func TestCreateOrder_UnknownOrInactiveProduct(t *testing.T) {
	inactive := product("off", "10", 5)
	inactive.IsActive = false
	svc, store, _ := newFixture(t, nil, product("p1", "10", 5), inactive)

	_, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 1, "10"), line("ghost", 1, "10")))
	var nfe *orders.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "product", nfe.Entity)
	assert.Equal(t, "ghost", nfe.ID)

	_, err = svc.CreateOrder(context.Background(), input("u1", line("off", 1, "10")))
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))

	assert.Equal(t, 5, stockOf(t, store, "p1"))
	assert.Equal(t, 5, stockOf(t, store, "off"))
}

func TestCreateOrder_MissingProductWinsOverShortStock(t *testing.T) {
	svc, store, _ := newFixture(t, nil, product("a", "10", 1))

	_, err := svc.CreateOrder(context.Background(), input("u1", line("a", 5, "10"), line("ghost", 1, "10")))
	var nfe *orders.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "ghost", nfe.ID)
	assert.Equal(t, 1, stockOf(t, store, "a"))
}

func TestCreateOrder_ConcurrentBuyersOfLastUnit(t *testing.T) {
	svc, store, _ := newFixture(t, nil, product("p1", "1000", 1))

	const buyers = 16
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok       int
		rejected int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.CreateOrder(context.Background(), input(fmt.Sprintf("u%d", i), line("p1", 1, "1000")))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case orders.KindOf(err) == orders.KindInsufficientStock:
				rejected++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, buyers-1, rejected)
	assert.Equal(t, 0, stockOf(t, store, "p1"))
}

// numbers hands out the given order numbers in sequence, then repeats the
// last one.
func numbers(seq ...string) func(time.Time) string {
	var mu sync.Mutex
	i := 0
	return func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		n := seq[i]
		if i < len(seq)-1 {
			i++
		}
		return n
	}
}

func TestCreateOrder_RetriesOnOrderNumberCollision(t *testing.T) {
	ctx := context.Background()
	gen := numbers("ORD-TAKEN", "ORD-TAKEN", "ORD-TAKEN", "ORD-FRESH")
	svc, store, _ := newFixture(t, []orders.Option{orders.WithOrderNumbers(gen)}, product("p1", "10", 10))

	first, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)
	assert.Equal(t, "ORD-TAKEN", first.OrderNumber)

	second, err := svc.CreateOrder(ctx, input("u2", line("p1", 2, "10")))
	require.NoError(t, err)
	assert.Equal(t, "ORD-FRESH", second.OrderNumber)
	assert.Equal(t, 7, stockOf(t, store, "p1"))
}

func TestCreateOrder_OrderNumberExhaustionIsStorageError(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newFixture(t, []orders.Option{orders.WithOrderNumbers(numbers("ORD-SAME"))}, product("p1", "10", 10))

	_, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)

	_, err = svc.CreateOrder(ctx, input("u2", line("p1", 1, "10")))
	var se *orders.StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, orders.KindStorage, orders.KindOf(err))
	assert.Equal(t, 9, stockOf(t, store, "p1"))
}

func TestUpdateStatus_FullLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newFixture(t, nil, product("p1", "10", 10))

	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 2, "10")))
	require.NoError(t, err)

	for _, to := range []orders.Status{orders.StatusProcessing, orders.StatusShipped, orders.StatusDelivered} {
		o, err = svc.UpdateStatus(ctx, o.ID, to)
		require.NoError(t, err, to)
		assert.Equal(t, to, o.Status)
	}
	require.NotNil(t, o.DeliveredAt)

	stored, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusDelivered, stored.Status)
	require.NotNil(t, stored.DeliveredAt)
	assert.True(t, stored.DeliveredAt.Equal(*o.DeliveredAt))
	assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))
	assert.Equal(t, 8, stockOf(t, store, "p1"))

	changes := pub.ofType(orders.EventOrderStatusChanged)
	require.Len(t, changes, 3)
	var last orders.OrderStatusChangedPayload
	require.NoError(t, json.Unmarshal(changes[2].Payload, &last))
	assert.Equal(t, orders.StatusShipped, last.From)
	assert.Equal(t, orders.StatusDelivered, last.To)
}

func TestUpdateStatus_CancelRestocks(t *testing.T) {
	for _, via := range [][]orders.Status{
		{orders.StatusCancelled},
		{orders.StatusProcessing, orders.StatusCancelled},
	} {
		t.Run(fmt.Sprint(via), func(t *testing.T) {
			ctx := context.Background()
			svc, store, _ := newFixture(t, nil, product("a", "10", 10), product("b", "5", 4))

			o, err := svc.CreateOrder(ctx, input("u1", line("a", 3, "10"), line("b", 4, "5")))
			require.NoError(t, err)
			require.Equal(t, 7, stockOf(t, store, "a"))
			require.Equal(t, 0, stockOf(t, store, "b"))

			for _, to := range via {
				o, err = svc.UpdateStatus(ctx, o.ID, to)
				require.NoError(t, err)
			}
			assert.Equal(t, orders.StatusCancelled, o.Status)
			assert.Equal(t, 10, stockOf(t, store, "a"))
			assert.Equal(t, 4, stockOf(t, store, "b"))

			// a second cancel is rejected and must not restock again
			_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
			var ite *orders.InvalidTransitionError
			require.ErrorAs(t, err, &ite)
			assert.Equal(t, 10, stockOf(t, store, "a"))
		})
	}
}

func TestUpdateStatus_ShippedCannotBeCancelled(t *testing.T) {
	ctx := context.Background()
	svc, store, pub := newFixture(t, nil, product("p1", "10", 10))

	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 3, "10")))
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusProcessing)
	require.NoError(t, err)
	_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusShipped)
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	var ite *orders.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, orders.StatusShipped, ite.From)
	assert.Equal(t, orders.StatusCancelled, ite.To)

	stored, err := svc.GetOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, orders.StatusShipped, stored.Status)
	assert.Equal(t, 7, stockOf(t, store, "p1"))
	assert.Len(t, pub.ofType(orders.EventOrderStatusChanged), 2)
}

func TestUpdateStatus_RejectsSkipsAndBackwardMoves(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("p1", "10", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)

	for _, to := range []orders.Status{orders.StatusShipped, orders.StatusDelivered, orders.StatusPending} {
		_, err := svc.UpdateStatus(ctx, o.ID, to)
		assert.Equal(t, orders.KindInvalidTransition, orders.KindOf(err), to)
	}
}

func TestUpdateStatus_UnknownStatusAndOrder(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("p1", "10", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)

	_, err = svc.UpdateStatus(ctx, o.ID, orders.Status("refunded"))
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	_, err = svc.UpdateStatus(ctx, "missing", orders.StatusProcessing)
	var nfe *orders.NotFoundError
	require.ErrorAs(t, err, &nfe)
	assert.Equal(t, "order", nfe.Entity)
}

func TestMarkAsPaid(t *testing.T) {
	ctx := context.Background()
	svc, _, pub := newFixture(t, nil, product("p1", "1000", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 2, "1000")))
	require.NoError(t, err)

	paid, err := svc.MarkAsPaid(ctx, o.ID, "pay-1")
	require.NoError(t, err)
	assert.True(t, paid.IsPaid)
	require.NotNil(t, paid.PaymentID)
	assert.Equal(t, "pay-1", *paid.PaymentID)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, orders.StatusPending, paid.Status)

	again, err := svc.MarkAsPaid(ctx, o.ID, "pay-1")
	require.NoError(t, err)
	assert.True(t, again.PaidAt.Equal(*paid.PaidAt))
	assert.True(t, again.UpdatedAt.Equal(paid.UpdatedAt))

	_, err = svc.MarkAsPaid(ctx, o.ID, "pay-2")
	var ape *orders.AlreadyPaidError
	require.ErrorAs(t, err, &ape)
	assert.Equal(t, "pay-1", ape.PaymentID)

	events := pub.ofType(orders.EventOrderPaid)
	require.Len(t, events, 1)
	var payload orders.OrderPaidPayload
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Equal(t, "2000.00", payload.Amount)
	assert.Equal(t, "pay-1", payload.PaymentID)
}

func TestMarkAsPaid_Rejections(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("p1", "10", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)

	_, err = svc.MarkAsPaid(ctx, o.ID, "")
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	_, err = svc.MarkAsPaid(ctx, "missing", "pay-1")
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))

	_, err = svc.UpdateStatus(ctx, o.ID, orders.StatusCancelled)
	require.NoError(t, err)
	_, err = svc.MarkAsPaid(ctx, o.ID, "pay-1")
	var ite *orders.InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, orders.StatusCancelled, ite.From)
}

func TestMarkAsPaid_PaidOrderCanStillProgress(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("p1", "10", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 1, "10")))
	require.NoError(t, err)

	_, err = svc.MarkAsPaid(ctx, o.ID, "pay-1")
	require.NoError(t, err)
	o, err = svc.UpdateStatus(ctx, o.ID, orders.StatusProcessing)
	require.NoError(t, err)
	assert.True(t, o.IsPaid)
	assert.Equal(t, "pay-1", *o.PaymentID)
}

func TestReads(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("p1", "10", 100))

	var mine []orders.Order
	for i := 0; i < 3; i++ {
		o, err := svc.CreateOrder(ctx, input("alice", line("p1", 1, "10")))
		require.NoError(t, err)
		mine = append(mine, o)
	}
	_, err := svc.CreateOrder(ctx, input("bob", line("p1", 1, "10")))
	require.NoError(t, err)

	byNumber, err := svc.GetOrderByNumber(ctx, mine[1].OrderNumber)
	require.NoError(t, err)
	assert.Equal(t, mine[1].ID, byNumber.ID)
	require.Len(t, byNumber.Lines, 1)

	_, err = svc.GetOrderByNumber(ctx, "ORD-NOPE")
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
	_, err = svc.GetOrder(ctx, "nope")
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))

	list, err := svc.ListUserOrders(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, mine[2].ID, list[0].ID, "newest first")
	assert.Equal(t, mine[0].ID, list[2].ID)

	none, err := svc.ListUserOrders(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = svc.ListUserOrders(ctx, "")
	assert.Equal(t, orders.KindValidation, orders.KindOf(err))

	page, err := svc.ListOrders(ctx, orders.ListFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, mine[2].ID, page[0].ID)
}

func TestDeleteOrder(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newFixture(t, nil, product("p1", "10", 10))
	o, err := svc.CreateOrder(ctx, input("u1", line("p1", 4, "10")))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteOrder(ctx, o.ID))
	_, err = svc.GetOrder(ctx, o.ID)
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))
	assert.Equal(t, orders.KindNotFound, orders.KindOf(svc.DeleteOrder(ctx, o.ID)))
	assert.Equal(t, 6, stockOf(t, store, "p1"))
}

func TestProducts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newFixture(t, nil, product("b", "10", 1), product("a", "20", 2))

	p, err := svc.GetProduct(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)

	_, err = svc.GetProduct(ctx, "zzz")
	assert.Equal(t, orders.KindNotFound, orders.KindOf(err))

	ps, err := svc.ListProducts(ctx)
	require.NoError(t, err)
	assert.Len(t, ps, 2)
}

type failingStore struct{ *memstore.Store }

func (failingStore) InTx(context.Context, func(context.Context, orders.Tx) error) error {
	return errors.New("connection reset")
}

func TestStoreFailuresAreStorageErrors(t *testing.T) {
	mem := memstore.New()
	mem.PutProduct(product("p1", "10", 10))
	svc := orders.NewService(failingStore{mem})

	_, err := svc.CreateOrder(context.Background(), input("u1", line("p1", 1, "10")))
	var se *orders.StorageError
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Error(), "connection reset")

	_, err = svc.UpdateStatus(context.Background(), "x", orders.StatusProcessing)
	assert.Equal(t, orders.KindStorage, orders.KindOf(err))
}
