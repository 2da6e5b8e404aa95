package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
)

type addressDoc struct {
	FirstName string `bson:"firstName"`
	LastName  string `bson:"lastName"`
	Company   string `bson:"company,omitempty"`
	Street    string `bson:"street"`
	Apartment string `bson:"apartment,omitempty"`
	City      string `bson:"city"`
	State     string `bson:"state"`
	ZipCode   string `bson:"zipCode"`
	Country   string `bson:"country"`
	Phone     string `bson:"phone"`
	Email     string `bson:"email,omitempty"`
}

type itemDoc struct {
	ProductID     string   `bson:"productId"`
	ProductName   string   `bson:"productName"`
	ProductImage  string   `bson:"productImage"`
	Price         float64  `bson:"price"`
	DiscountPrice *float64 `bson:"discountPrice"`
	FinalPrice    float64  `bson:"finalPrice"`
	Quantity      int64    `bson:"quantity"`
	ItemTotal     float64  `bson:"itemTotal"`
	SKU           string   `bson:"sku"`
	Category      string   `bson:"category"`
}

type summaryDoc struct {
	Subtotal    float64 `bson:"subtotal"`
	Shipping    float64 `bson:"shipping"`
	Tax         float64 `bson:"tax"`
	Discount    float64 `bson:"discount"`
	TotalAmount float64 `bson:"totalAmount"`
	TotalItems  int64   `bson:"totalItems"`
	ItemCount   int     `bson:"itemCount"`
}

type historyDoc struct {
	Status    domorder.Status `bson:"status"`
	Timestamp time.Time       `bson:"timestamp"`
	Note      string          `bson:"note"`
	UpdatedBy string          `bson:"updatedBy"`
}

type orderDoc struct {
	ID                 string                 `bson:"_id"`
	OrderNumber        string                 `bson:"orderNumber"`
	UserID             string                 `bson:"userId"`
	Items              []itemDoc              `bson:"items"`
	Summary            summaryDoc             `bson:"summary"`
	ShippingAddress    addressDoc             `bson:"shippingAddress"`
	BillingAddress     *addressDoc            `bson:"billingAddress"`
	PaymentMethod      domorder.PaymentMethod `bson:"paymentMethod"`
	PaymentStatus      domorder.PaymentStatus `bson:"paymentStatus"`
	Status             domorder.Status        `bson:"status"`
	Notes              string                 `bson:"notes"`
	TrackingNumber     string                 `bson:"trackingNumber"`
	Carrier            string                 `bson:"carrier"`
	TransactionID      string                 `bson:"transactionId"`
	CancellationReason string                 `bson:"cancellationReason"`
	History            []historyDoc           `bson:"statusHistory"`
	CreatedAt          time.Time              `bson:"createdAt"`
	UpdatedAt          time.Time              `bson:"updatedAt"`
	PaidAt             *time.Time             `bson:"paidAt"`
	ShippedAt          *time.Time             `bson:"shippedAt"`
	DeliveredAt        *time.Time             `bson:"deliveredAt"`
	CancelledAt        *time.Time             `bson:"cancelledAt"`
}

type OrderRepository struct {
	client   *mongo.Client
	orders   *mongo.Collection
	products *mongo.Collection
	cart     *mongo.Collection
}

func NewOrderRepository(client *mongo.Client, db *mongo.Database) *OrderRepository {
	return &OrderRepository{
		client:   client,
		orders:   db.Collection(ordersCollection),
		products: db.Collection(productsCollection),
		cart:     db.Collection(cartCollection),
	}
}

func (r *OrderRepository) Create(ctx context.Context, o *domorder.Order, consumedCartProductIDs []string) error {
	doc := toOrderDoc(o)
	return withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		for _, line := range o.StockLines() {
			res, err := r.products.UpdateOne(sc,
				bson.M{"_id": line.ProductID, "isActive": true, "stock": bson.M{"$gte": line.Quantity}},
				bson.M{"$inc": bson.M{"stock": -line.Quantity}})
			if err != nil {
				return fmt.Errorf("reserve stock: %w", err)
			}
			if res.MatchedCount == 0 {
				return classifyShortage(sc, r.products, line.ProductID, line.Quantity)
			}
		}

		if _, err := r.orders.InsertOne(sc, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return domorder.ErrDuplicateOrderNumber
			}
			return fmt.Errorf("insert order: %w", err)
		}
		if err := deleteCartLines(sc, r.cart, o.UserID, consumedCartProductIDs); err != nil {
			return fmt.Errorf("consume cart: %w", err)
		}
		return nil
	})
}

func (r *OrderRepository) GetByID(ctx context.Context, id string) (*domorder.Order, error) {
	var doc orderDoc
	err := r.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domorder.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return doc.toDomain(), nil
}

func (r *OrderRepository) List(ctx context.Context, filter domorder.ListFilter) ([]*domorder.Order, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["userId"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.PaymentStatus != "" {
		query["paymentStatus"] = filter.PaymentStatus
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}

	cur, err := r.orders.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var docs []orderDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	orders := make([]*domorder.Order, 0, len(docs))
	for i := range docs {
		orders = append(orders, docs[i].toDomain())
	}
	return orders, nil
}

// Update sets the mutable fields and pushes only the new history entries,
// inside a transaction. A concurrent write to the same order aborts one side
// with a transient error and the driver reruns it against the fresh document.
func (r *OrderRepository) Update(ctx context.Context, id string, fn domorder.MutateFunc) (*domorder.Order, error) {
	var updated *domorder.Order
	err := withTransaction(ctx, r.client, func(sc mongo.SessionContext) error {
		var doc orderDoc
		err := r.orders.FindOne(sc, bson.M{"_id": id}).Decode(&doc)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return domorder.ErrOrderNotFound
		}
		if err != nil {
			return err
		}
		o := doc.toDomain()
		seen := len(o.History())

		restock, err := fn(o)
		if err != nil {
			return err
		}
		for _, line := range domproduct.MergeLines(restock) {
			// A product deleted since the order was placed has nothing to restore.
			if _, err := r.products.UpdateOne(sc, bson.M{"_id": line.ProductID},
				bson.M{"$inc": bson.M{"stock": line.Quantity}}); err != nil {
				return fmt.Errorf("restore stock: %w", err)
			}
		}
		if _, err := r.orders.UpdateOne(sc, bson.M{"_id": id}, orderUpdate(o, seen)); err != nil {
			return fmt.Errorf("save order: %w", err)
		}
		updated = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// orderUpdate builds the update for an order whose first seen history
// entries are already stored.
func orderUpdate(o *domorder.Order, seen int) bson.M {
	update := bson.M{"$set": bson.M{
		"status":             o.Status,
		"paymentStatus":      o.PaymentStatus,
		"notes":              o.Notes,
		"trackingNumber":     o.TrackingNumber,
		"carrier":            o.Carrier,
		"transactionId":      o.TransactionID,
		"cancellationReason": o.CancellationReason,
		"updatedAt":          o.UpdatedAt,
		"paidAt":             o.PaidAt,
		"shippedAt":          o.ShippedAt,
		"deliveredAt":        o.DeliveredAt,
		"cancelledAt":        o.CancelledAt,
	}}
	history := o.History()
	if seen < len(history) {
		fresh := make([]historyDoc, 0, len(history)-seen)
		for _, e := range history[seen:] {
			fresh = append(fresh, historyDoc(e))
		}
		update["$push"] = bson.M{"statusHistory": bson.M{"$each": fresh}}
	}
	return update
}

func toOrderDoc(o *domorder.Order) orderDoc {
	doc := orderDoc{
		ID:                 o.ID,
		OrderNumber:        o.OrderNumber,
		UserID:             o.UserID,
		Items:              make([]itemDoc, 0, len(o.Items)),
		Summary:            summaryDoc(o.Summary),
		ShippingAddress:    addressDoc(o.ShippingAddress),
		PaymentMethod:      o.PaymentMethod,
		PaymentStatus:      o.PaymentStatus,
		Status:             o.Status,
		Notes:              o.Notes,
		TrackingNumber:     o.TrackingNumber,
		Carrier:            o.Carrier,
		TransactionID:      o.TransactionID,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		PaidAt:             o.PaidAt,
		ShippedAt:          o.ShippedAt,
		DeliveredAt:        o.DeliveredAt,
		CancelledAt:        o.CancelledAt,
	}
	if o.BillingAddress != nil {
		b := addressDoc(*o.BillingAddress)
		doc.BillingAddress = &b
	}
	for _, it := range o.Items {
		doc.Items = append(doc.Items, itemDoc(it))
	}
	for _, e := range o.History() {
		doc.History = append(doc.History, historyDoc(e))
	}
	return doc
}

func (d *orderDoc) toDomain() *domorder.Order {
	o := &domorder.Order{
		ID:                 d.ID,
		OrderNumber:        d.OrderNumber,
		UserID:             d.UserID,
		Items:              make([]domorder.Item, 0, len(d.Items)),
		Summary:            domorder.Summary(d.Summary),
		ShippingAddress:    domorder.Address(d.ShippingAddress),
		PaymentMethod:      d.PaymentMethod,
		PaymentStatus:      d.PaymentStatus,
		Status:             d.Status,
		Notes:              d.Notes,
		TrackingNumber:     d.TrackingNumber,
		Carrier:            d.Carrier,
		TransactionID:      d.TransactionID,
		CancellationReason: d.CancellationReason,
		CreatedAt:          d.CreatedAt.UTC(),
		UpdatedAt:          d.UpdatedAt.UTC(),
		PaidAt:             utc(d.PaidAt),
		ShippedAt:          utc(d.ShippedAt),
		DeliveredAt:        utc(d.DeliveredAt),
		CancelledAt:        utc(d.CancelledAt),
	}
	if d.BillingAddress != nil {
		b := domorder.Address(*d.BillingAddress)
		o.BillingAddress = &b
	}
	for _, it := range d.Items {
		o.Items = append(o.Items, domorder.Item(it))
	}
	history := make([]domorder.StatusEntry, 0, len(d.History))
	for _, e := range d.History {
		e.Timestamp = e.Timestamp.UTC()
		history = append(history, domorder.StatusEntry(e))
	}
	return domorder.Rehydrate(o, history)
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
