package checkout

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence/memory"
)

var shipTo = domorder.Address{
	FirstName: "Grace",
	LastName:  "Hopper",
	Street:    "1 Compiler Way",
	City:      "Arlington",
	State:     "VA",
	ZipCode:   "22201",
	Country:   "US",
	Phone:     "5551234567",
}

type fixture struct {
	db       *memory.DB
	products *memory.ProductRepository
	carts    *memory.CartRepository
	orders   *memory.OrderRepository
	svc      *Service
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	db := memory.NewDB()
	discount := 80.0
	db.PutProduct(&domproduct.Product{ID: "p1", Name: "Lamp", Price: 100, DiscountPrice: &discount, Stock: 3, IsActive: true, SKU: "LMP-1"})
	db.PutProduct(&domproduct.Product{ID: "p2", Name: "Desk", Price: 250, Stock: 10, IsActive: true})
	db.PutProduct(&domproduct.Product{ID: "p3", Name: "Retired chair", Price: 40, Stock: 10, IsActive: false})

	f := &fixture{
		db:       db,
		products: memory.NewProductRepository(db),
		carts:    memory.NewCartRepository(db),
		orders:   memory.NewOrderRepository(db),
	}
	f.svc = NewService(f.carts, f.products, f.orders, opts...)
	return f
}

func (f *fixture) stock(t *testing.T, id string) int64 {
	t.Helper()
	p, err := f.products.GetByID(context.Background(), id)
	require.NoError(t, err)
	return p.Stock
}

func TestCreateOrder_ExplicitItems_SnapshotsAndDecrements(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          "u1",
		Items:           []domproduct.StockLine{{ProductID: "p1", Quantity: 2}},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodCashOnDelivery,
	})

	require.NoError(t, err)
	require.NotEmpty(t, o.ID)
	require.Regexp(t, `^ORD\d{9}$`, o.OrderNumber)
	require.Equal(t, domorder.StatusPending, o.Status)
	require.Equal(t, domorder.PaymentPending, o.PaymentStatus)
	require.Len(t, o.Items, 1)
	require.Equal(t, 80.0, o.Items[0].FinalPrice)
	require.Equal(t, 160.0, o.Items[0].ItemTotal)
	require.Equal(t, "LMP-1", o.Items[0].SKU)
	require.Equal(t, 160.0, o.Summary.TotalAmount)
	require.Equal(t, int64(1), f.stock(t, "p1"))

	stored, err := f.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, o.OrderNumber, stored.OrderNumber)
}

func TestCreateOrder_SnapshotIgnoresLaterPriceChange(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID:          "u1",
		Items:           []domproduct.StockLine{{ProductID: "p2", Quantity: 1}},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodPayPal,
	})
	require.NoError(t, err)

	f.db.PutProduct(&domproduct.Product{ID: "p2", Name: "Desk v2", Price: 999, Stock: 9, IsActive: true})

	stored, err := f.orders.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	require.Equal(t, "Desk", stored.Items[0].ProductName)
	require.Equal(t, 250.0, stored.Items[0].FinalPrice)
}

func TestCreateOrder_MergesDuplicateLines(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1",
		Items: []domproduct.StockLine{
			{ProductID: "p2", Quantity: 2},
			{ProductID: "p2", Quantity: 3},
		},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodStripe,
	})

	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	require.Equal(t, int64(5), o.Items[0].Quantity)
	require.Equal(t, int64(5), f.stock(t, "p2"))
}

func TestCreateOrder_InsufficientStock_LeavesStateUntouched(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p1", 4))
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p2", 1))

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:          "u1",
		ProductIDs:      []string{"p1", "p2"},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodCreditCard,
	})

	require.ErrorIs(t, err, domproduct.ErrInsufficientStock)
	require.Nil(t, o)

	var shortage *domproduct.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, "p1", shortage.ProductID)
	require.Equal(t, int64(3), shortage.Available)
	require.Equal(t, int64(4), shortage.Requested)

	require.Equal(t, int64(3), f.stock(t, "p1"))
	require.Equal(t, int64(10), f.stock(t, "p2"))
	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, items, 2)

	orders, err := f.orders.List(ctx, domorder.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCreateOrder_ProductErrors(t *testing.T) {
	tests := []struct {
		name    string
		items   []domproduct.StockLine
		wantErr error
	}{
		{"missing product", []domproduct.StockLine{{ProductID: "nope", Quantity: 1}}, domproduct.ErrProductNotFound},
		{"inactive product", []domproduct.StockLine{{ProductID: "p3", Quantity: 1}}, domproduct.ErrProductUnavailable},
		{"zero quantity", []domproduct.StockLine{{ProductID: "p2", Quantity: 0}}, domcart.ErrInvalidQuantity},
		{"negative quantity", []domproduct.StockLine{{ProductID: "p2", Quantity: -3}}, domcart.ErrInvalidQuantity},
		{"wrapping merge", []domproduct.StockLine{
			{ProductID: "p2", Quantity: math.MaxInt64},
			{ProductID: "p2", Quantity: math.MaxInt64},
		}, domcart.ErrInvalidQuantity},
		{"merge above line cap", []domproduct.StockLine{
			{ProductID: "p2", Quantity: domproduct.MaxLineQuantity},
			{ProductID: "p2", Quantity: 1},
		}, domcart.ErrInvalidQuantity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
				UserID:          "u1",
				Items:           tt.items,
				ShippingAddress: shipTo,
				PaymentMethod:   domorder.MethodCashOnDelivery,
			})
			require.ErrorIs(t, err, tt.wantErr)
			require.Equal(t, int64(10), f.stock(t, "p2"))
		})
	}
}

func TestCreateOrder_InvalidHeader(t *testing.T) {
	f := newFixture(t)
	items := []domproduct.StockLine{{ProductID: "p2", Quantity: 1}}

	_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", Items: items, ShippingAddress: shipTo, PaymentMethod: "cheque",
	})
	require.ErrorIs(t, err, domorder.ErrInvalidPaymentMethod)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", Items: items, ShippingAddress: shipTo, PaymentMethod: domorder.MethodPayPal, PaymentStatus: "owed",
	})
	require.ErrorIs(t, err, domorder.ErrInvalidPaymentStatus)

	_, err = f.svc.CreateOrder(context.Background(), CreateOrderInput{
		UserID: "u1", ShippingAddress: shipTo, PaymentMethod: domorder.MethodPayPal,
	})
	require.ErrorIs(t, err, domorder.ErrEmptyOrderItems)

	require.Equal(t, int64(10), f.stock(t, "p2"))
}

func TestCreateOrder_FromSelectedCartLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p1", 1))
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p2", 2))

	o, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:          "u1",
		ProductIDs:      []string{"p2"},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodBankTransfer,
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	require.Equal(t, "p2", o.Items[0].ProductID)

	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, []domcart.Item{{ProductID: "p1", Quantity: 1}}, items)
}

func TestCreateOrder_ItemNotInCart(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p1", 1))

	_, err := f.svc.CreateOrder(ctx, CreateOrderInput{
		UserID:          "u1",
		ProductIDs:      []string{"p1", "p2"},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodPayPal,
	})
	require.ErrorIs(t, err, domcart.ErrItemNotInCart)
	require.Equal(t, int64(3), f.stock(t, "p1"))
}

func TestCreateOrderFromCart_EmptyCart(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.CreateOrderFromCart(context.Background(), CreateFromCartInput{
		UserID:          "u1",
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodCashOnDelivery,
	})

	require.ErrorIs(t, err, domcart.ErrCartEmpty)
	require.Nil(t, o)
	orders, err := f.orders.List(context.Background(), domorder.ListFilter{})
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCreateOrderFromCart_ConsumesWholeCart(t *testing.T) {
	f := newFixture(t,
		WithPricing(domorder.FlatPolicy{Shipping: 10, TaxRate: 0.1}),
		WithClock(func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }),
	)
	ctx := context.Background()
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p1", 2))
	require.NoError(t, f.carts.AddOrUpdateItem(ctx, "u1", "p2", 1))

	o, err := f.svc.CreateOrderFromCart(ctx, CreateFromCartInput{
		UserID:          "u1",
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodDebitCard,
		Notes:           "leave at door",
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	require.Equal(t, 410.0, o.Summary.Subtotal)
	require.Equal(t, 41.0, o.Summary.Tax)
	require.Equal(t, 461.0, o.Summary.TotalAmount)
	require.Equal(t, int64(3), o.Summary.TotalItems)
	require.Equal(t, "leave at door", o.Notes)
	require.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), o.CreatedAt)

	items, err := f.carts.ListItems(ctx, "u1")
	require.NoError(t, err)
	require.Empty(t, items)
	require.Equal(t, int64(1), f.stock(t, "p1"))
	require.Equal(t, int64(9), f.stock(t, "p2"))
}

func TestCreateOrder_RetriesDuplicateOrderNumber(t *testing.T) {
	numbers := []string{"ORD000001001", "ORD000001001", "ORD000001002"}
	var mu sync.Mutex
	next := func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[0]
		numbers = numbers[1:]
		return n
	}
	f := newFixture(t, WithOrderNumbers(next))
	in := CreateOrderInput{
		UserID:          "u1",
		Items:           []domproduct.StockLine{{ProductID: "p2", Quantity: 1}},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodPayPal,
	}

	first, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)
	second, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	require.Equal(t, "ORD000001001", first.OrderNumber)
	require.Equal(t, "ORD000001002", second.OrderNumber)
	require.Equal(t, int64(8), f.stock(t, "p2"))
}

func TestCreateOrder_GivesUpAfterRepeatedCollisions(t *testing.T) {
	f := newFixture(t, WithOrderNumbers(func(time.Time) string { return "ORD000000042" }))
	in := CreateOrderInput{
		UserID:          "u1",
		Items:           []domproduct.StockLine{{ProductID: "p2", Quantity: 1}},
		ShippingAddress: shipTo,
		PaymentMethod:   domorder.MethodPayPal,
	}
	_, err := f.svc.CreateOrder(context.Background(), in)
	require.NoError(t, err)

	_, err = f.svc.CreateOrder(context.Background(), in)
	require.ErrorIs(t, err, domorder.ErrOrderNumberExhausted)
	require.Equal(t, int64(9), f.stock(t, "p2"))
}

func TestCreateOrder_ConcurrentBuyersNeverOversell(t *testing.T) {
	const (
		buyers = 20
		stock  = 7
	)
	var seq int
	var mu sync.Mutex
	f := newFixture(t, WithOrderNumbers(func(time.Time) string {
		mu.Lock()
		defer mu.Unlock()
		seq++
		return fmt.Sprintf("ORD%09d", seq)
	}))
	f.db.PutProduct(&domproduct.Product{ID: "hot", Name: "Limited", Price: 5, Stock: stock, IsActive: true})

	var (
		wg        sync.WaitGroup
		successes int
		shortages int
		resultMu  sync.Mutex
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CreateOrder(context.Background(), CreateOrderInput{
				UserID:          fmt.Sprintf("buyer-%d", i),
				Items:           []domproduct.StockLine{{ProductID: "hot", Quantity: 1}},
				ShippingAddress: shipTo,
				PaymentMethod:   domorder.MethodCashOnDelivery,
			})
			resultMu.Lock()
			defer resultMu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domproduct.ErrInsufficientStock):
				shortages++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, stock, successes)
	require.Equal(t, buyers-stock, shortages)
	require.Equal(t, int64(0), f.stock(t, "hot"))
}
