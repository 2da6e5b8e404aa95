// Package storetest holds the behaviour every persistence backend must share.
// Backends call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
)

type Stores struct {
	Products domproduct.Repository
	Carts    domcart.Repository
	Orders   domorder.Repository
	// Seed inserts or replaces a product.
	Seed func(t *testing.T, p *domproduct.Product)
}

// Factory returns empty stores for one subtest.
type Factory func(t *testing.T) Stores

var shipTo = domorder.Address{
	FirstName: "Ada",
	LastName:  "Lovelace",
	Street:    "12 Analytical Row",
	City:      "London",
	State:     "LDN",
	ZipCode:   "NW1 6XE",
	Country:   "GB",
	Phone:     "4420794600",
}

func Run(t *testing.T, newStores Factory) {
	t.Run("CreateReservesStockAndConsumesCart", func(t *testing.T) { testCreate(t, newStores(t)) })
	t.Run("CreateShortageWritesNothing", func(t *testing.T) { testShortage(t, newStores(t)) })
	t.Run("CreateUnavailableAndMissing", func(t *testing.T) { testUnavailable(t, newStores(t)) })
	t.Run("CreateDuplicateNumber", func(t *testing.T) { testDuplicateNumber(t, newStores(t)) })
	t.Run("UpdateAppendsHistoryAndRestocks", func(t *testing.T) { testUpdate(t, newStores(t)) })
	t.Run("UpdateErrorLeavesOrder", func(t *testing.T) { testUpdateError(t, newStores(t)) })
	t.Run("ListFiltersAndOrders", func(t *testing.T) { testList(t, newStores(t)) })
	t.Run("ConcurrentCreatesNeverOversell", func(t *testing.T) { testConcurrent(t, newStores(t)) })
	t.Run("CartLines", func(t *testing.T) { testCart(t, newStores(t)) })
	t.Run("ProductStock", func(t *testing.T) { testProductStock(t, newStores(t)) })
}

func seedCatalog(t *testing.T, s Stores) {
	t.Helper()
	discount := 80.0
	s.Seed(t, &domproduct.Product{ID: "p1", Name: "Lamp", Price: 100, DiscountPrice: &discount, Stock: 3, IsActive: true,
		Images: []string{"lamp.jpg"}, SKU: "LMP-1", Category: "lighting"})
	s.Seed(t, &domproduct.Product{ID: "p2", Name: "Desk", Price: 250, Stock: 10, IsActive: true})
	s.Seed(t, &domproduct.Product{ID: "p3", Name: "Retired", Price: 40, Stock: 10, IsActive: false})
}

var seq struct {
	sync.Mutex
	n int
}

func newOrder(t *testing.T, s Stores, userID string, createdAt time.Time, lines ...domproduct.StockLine) *domorder.Order {
	t.Helper()
	seq.Lock()
	seq.n++
	n := seq.n
	seq.Unlock()

	items := make([]domorder.Item, 0, len(lines))
	for _, l := range lines {
		p, err := s.Products.GetByID(context.Background(), l.ProductID)
		if err != nil {
			// Unknown products still need a snapshot to reach the store.
			p = &domproduct.Product{ID: l.ProductID, Name: l.ProductID, Price: 1}
		}
		items = append(items, domorder.SnapshotItem(p, l.Quantity))
	}
	o, err := domorder.New(domorder.NewParams{
		ID:              fmt.Sprintf("o-%06d", n),
		OrderNumber:     fmt.Sprintf("ORD-T-%06d", n),
		UserID:          userID,
		Items:           items,
		Summary:         domorder.Summarize(items, domorder.Charges{Shipping: 5}),
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodCreditCard,
		Now:             createdAt.UTC().Truncate(time.Millisecond),
	})
	require.NoError(t, err)
	return o
}

func stockOf(t *testing.T, s Stores, id string) int64 {
	t.Helper()
	p, err := s.Products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func testCreate(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p1", 2))
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p2", 1))

	o := newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "p1", Quantity: 2})
	billing := shipTo
	billing.Company = "Engines Ltd"
	o.BillingAddress = &billing
	o.Notes = "leave at door"
	require.NoError(t, s.Orders.Create(ctx, o, []string{"p1"}))

	require.Equal(t, int64(1), stockOf(t, s, "p1"))
	items, err := s.Carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domcart.Item{{ProductID: "p2", Quantity: 1}}, items)

	got, err := s.Orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, o.OrderNumber, got.OrderNumber)
	require.Equal(t, domorder.StatusPending, got.Status)
	require.Equal(t, domorder.PaymentPending, got.PaymentStatus)
	require.Equal(t, o.Summary, got.Summary)
	require.Equal(t, shipTo, got.ShippingAddress)
	require.NotNil(t, got.BillingAddress)
	require.Equal(t, "Engines Ltd", got.BillingAddress.Company)
	require.Equal(t, "leave at door", got.Notes)
	require.Len(t, got.Items, 1)
	require.Equal(t, o.Items[0].FinalPrice, got.Items[0].FinalPrice)
	require.NotNil(t, got.Items[0].DiscountPrice)
	require.Equal(t, 80.0, *got.Items[0].DiscountPrice)
	require.Equal(t, "lamp.jpg", got.Items[0].ProductImage)
	require.Nil(t, got.PaidAt)
	require.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Millisecond)

	history := got.History()
	require.Len(t, history, 1)
	require.Equal(t, domorder.StatusPending, history[0].Status)
	require.Equal(t, "u1", history[0].UpdatedBy)

	_, err = s.Orders.GetByID(ctx, "missing")
	require.ErrorIs(t, err, domorder.ErrOrderNotFound)
}

func testShortage(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p1", 1))

	o := newOrder(t, s, "u1", time.Now(),
		domproduct.StockLine{ProductID: "p1", Quantity: 1},
		domproduct.StockLine{ProductID: "p2", Quantity: 11},
	)
	err := s.Orders.Create(ctx, o, []string{"p1", "p2"})
	require.ErrorIs(t, err, domproduct.ErrInsufficientStock)
	var shortage *domproduct.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, "p2", shortage.ProductID)
	require.Equal(t, int64(10), shortage.Available)
	require.Equal(t, int64(11), shortage.Requested)

	require.Equal(t, int64(3), stockOf(t, s, "p1"))
	require.Equal(t, int64(10), stockOf(t, s, "p2"))
	items, err := s.Carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 1)
	_, err = s.Orders.GetByID(ctx, o.ID)
	require.ErrorIs(t, err, domorder.ErrOrderNotFound)
}

func testUnavailable(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)

	err := s.Orders.Create(ctx, newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "p3", Quantity: 1}), nil)
	require.ErrorIs(t, err, domproduct.ErrProductUnavailable)
	require.Equal(t, int64(10), stockOf(t, s, "p3"))

	err = s.Orders.Create(ctx, newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "ghost", Quantity: 1}), nil)
	require.ErrorIs(t, err, domproduct.ErrProductNotFound)
}

func testDuplicateNumber(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)

	first := newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "p2", Quantity: 1})
	require.NoError(t, s.Orders.Create(ctx, first, nil))

	second := newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "p2", Quantity: 1})
	second.OrderNumber = first.OrderNumber
	require.ErrorIs(t, s.Orders.Create(ctx, second, nil), domorder.ErrDuplicateOrderNumber)
	require.Equal(t, int64(9), stockOf(t, s, "p2"))
}

func testUpdate(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)
	o := newOrder(t, s, "u1", time.Now(),
		domproduct.StockLine{ProductID: "p1", Quantity: 2},
		domproduct.StockLine{ProductID: "p2", Quantity: 4},
	)
	require.NoError(t, s.Orders.Create(ctx, o, nil))

	now := time.Now().UTC().Truncate(time.Millisecond)
	updated, err := s.Orders.Update(ctx, o.ID, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		if err := o.SetPaymentStatus(domorder.PaymentPaid, "tx-1", now); err != nil {
			return nil, err
		}
		return o.TransitionTo(domorder.StatusProcessing, "", "admin", now)
	})
	require.NoError(t, err)
	require.Equal(t, domorder.StatusProcessing, updated.Status)

	_, err = s.Orders.Update(ctx, o.ID, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		return o.Cancel("changed my mind", "u1", now.Add(time.Second))
	})
	require.NoError(t, err)
	require.Equal(t, int64(3), stockOf(t, s, "p1"))
	require.Equal(t, int64(10), stockOf(t, s, "p2"))

	got, err := s.Orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domorder.StatusCancelled, got.Status)
	require.Equal(t, domorder.PaymentPaid, got.PaymentStatus)
	require.Equal(t, "tx-1", got.TransactionID)
	require.Equal(t, "changed my mind", got.CancellationReason)
	require.NotNil(t, got.PaidAt)
	require.NotNil(t, got.CancelledAt)

	statuses := make([]domorder.Status, 0)
	for _, e := range got.History() {
		statuses = append(statuses, e.Status)
	}
	require.Equal(t, []domorder.Status{domorder.StatusPending, domorder.StatusProcessing, domorder.StatusCancelled}, statuses)

	_, err = s.Orders.Update(ctx, "missing", func(*domorder.Order) ([]domproduct.StockLine, error) { return nil, nil })
	require.ErrorIs(t, err, domorder.ErrOrderNotFound)
}

func testUpdateError(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)
	o := newOrder(t, s, "u1", time.Now(), domproduct.StockLine{ProductID: "p1", Quantity: 1})
	require.NoError(t, s.Orders.Create(ctx, o, nil))

	boom := errors.New("boom")
	_, err := s.Orders.Update(ctx, o.ID, func(o *domorder.Order) ([]domproduct.StockLine, error) {
		_, _ = o.Cancel("", "u1", time.Now().UTC())
		return o.StockLines(), boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Orders.GetByID(ctx, o.ID)
	require.NoError(t, err)
	require.Equal(t, domorder.StatusPending, got.Status)
	require.Len(t, got.History(), 1)
	require.Equal(t, int64(2), stockOf(t, s, "p1"))
}

func testList(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)
	base := time.Now().Add(-time.Hour)

	var ids []string
	for i, user := range []string{"u1", "u2", "u1", "u1"} {
		o := newOrder(t, s, user, base.Add(time.Duration(i)*time.Minute), domproduct.StockLine{ProductID: "p2", Quantity: 1})
		require.NoError(t, s.Orders.Create(ctx, o, nil))
		ids = append(ids, o.ID)
	}
	_, err := s.Orders.Update(ctx, ids[2], func(o *domorder.Order) ([]domproduct.StockLine, error) {
		return nil, o.SetPaymentStatus(domorder.PaymentPaid, "", time.Now().UTC())
	})
	require.NoError(t, err)

	mine, err := s.Orders.List(ctx, domorder.ListFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Equal(t, []string{ids[3], ids[2], ids[0]}, orderIDs(mine))

	paid, err := s.Orders.List(ctx, domorder.ListFilter{PaymentStatus: domorder.PaymentPaid})
	require.NoError(t, err)
	require.Equal(t, []string{ids[2]}, orderIDs(paid))

	latest, err := s.Orders.List(ctx, domorder.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{ids[3], ids[2]}, orderIDs(latest))
	require.Len(t, latest[0].Items, 1)

	none, err := s.Orders.List(ctx, domorder.ListFilter{Status: domorder.StatusDelivered})
	require.NoError(t, err)
	require.Empty(t, none)
}

func orderIDs(orders []*domorder.Order) []string {
	out := make([]string, 0, len(orders))
	for _, o := range orders {
		out = append(out, o.ID)
	}
	return out
}

func testConcurrent(t *testing.T, s Stores) {
	ctx := context.Background()
	s.Seed(t, &domproduct.Product{ID: "hot", Name: "Limited", Price: 10, Stock: 4, IsActive: true})

	const buyers = 12
	orders := make([]*domorder.Order, buyers)
	for i := range orders {
		orders[i] = newOrder(t, s, fmt.Sprintf("buyer-%d", i), time.Now(), domproduct.StockLine{ProductID: "hot", Quantity: 1})
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, miss int
		other    []error
	)
	for _, o := range orders {
		wg.Add(1)
		go func(o *domorder.Order) {
			defer wg.Done()
			err := s.Orders.Create(ctx, o, nil)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domproduct.ErrInsufficientStock):
				miss++
			default:
				other = append(other, err)
			}
		}(o)
	}
	wg.Wait()

	require.Empty(t, other)
	require.Equal(t, 4, ok)
	require.Equal(t, buyers-4, miss)
	require.Equal(t, int64(0), stockOf(t, s, "hot"))
}

func testCart(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p1", 1))
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p1", 2))
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u1", "p2", 1))
	require.NoError(t, s.Carts.AddOrUpdateItem(ctx, "u2", "p2", 5))

	items, err := s.Carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.ElementsMatch(t, []domcart.Item{{ProductID: "p1", Quantity: 3}, {ProductID: "p2", Quantity: 1}}, items)

	require.NoError(t, s.Carts.SetQuantity(ctx, "u1", "p2", 4))
	require.NoError(t, s.Carts.SetQuantity(ctx, "u1", "p2", 4))
	require.ErrorIs(t, s.Carts.SetQuantity(ctx, "u1", "p3", 1), domcart.ErrItemNotInCart)

	require.NoError(t, s.Carts.DeleteItems(ctx, "u1", []string{"p1"}))
	items, err = s.Carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domcart.Item{{ProductID: "p2", Quantity: 4}}, items)

	require.NoError(t, s.Carts.Clear(ctx, "u1"))
	items, err = s.Carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, items)

	items, err = s.Carts.ListItems(ctx, "u2")
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func testProductStock(t *testing.T, s Stores) {
	ctx := context.Background()
	seedCatalog(t, s)

	require.NoError(t, s.Products.SetStock(ctx, "p1", 7))
	require.NoError(t, s.Products.SetStock(ctx, "p1", 7))
	require.Equal(t, int64(7), stockOf(t, s, "p1"))
	require.ErrorIs(t, s.Products.SetStock(ctx, "p1", -1), domproduct.ErrInvalidStock)
	require.ErrorIs(t, s.Products.SetStock(ctx, "ghost", 1), domproduct.ErrProductNotFound)

	got, err := s.Products.GetByIDs(ctx, []string{"p2", "ghost", "p1"})
	require.NoError(t, err)
	require.Len(t, got, 2)

	active, err := s.Products.List(ctx, domproduct.ListFilter{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, active, 2)
}
