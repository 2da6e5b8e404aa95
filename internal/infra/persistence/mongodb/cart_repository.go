package mongodb

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domcart "example.com/shopcore/internal/domain/cart"
)

type cartLineDoc struct {
	UserID    string    `bson:"userId"`
	ProductID string    `bson:"productId"`
	Quantity  int64     `bson:"quantity"`
	CreatedAt time.Time `bson:"createdAt"`
}

type CartRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewCartRepository(db *mongo.Database) *CartRepository {
	return &CartRepository{coll: db.Collection(cartCollection), now: time.Now}
}

func (r *CartRepository) AddOrUpdateItem(ctx context.Context, userID, productID string, quantity int64) error {
	_, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "productId": productID},
		bson.M{
			"$inc":         bson.M{"quantity": quantity},
			"$setOnInsert": bson.M{"createdAt": r.now().UTC()},
		},
		options.Update().SetUpsert(true))
	return err
}

func (r *CartRepository) SetQuantity(ctx context.Context, userID, productID string, quantity int64) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"userId": userID, "productId": productID},
		bson.M{"$set": bson.M{"quantity": quantity}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domcart.ErrItemNotInCart
	}
	return nil
}

func (r *CartRepository) ListItems(ctx context.Context, userID string) ([]domcart.Item, error) {
	cur, err := r.coll.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "productId", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []cartLineDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	items := make([]domcart.Item, 0, len(docs))
	for _, d := range docs {
		items = append(items, domcart.Item{ProductID: d.ProductID, Quantity: d.Quantity})
	}
	return items, nil
}

func (r *CartRepository) DeleteItems(ctx context.Context, userID string, productIDs []string) error {
	return deleteCartLines(ctx, r.coll, userID, productIDs)
}

func (r *CartRepository) Clear(ctx context.Context, userID string) error {
	_, err := r.coll.DeleteMany(ctx, bson.M{"userId": userID})
	return err
}

func deleteCartLines(ctx context.Context, coll *mongo.Collection, userID string, productIDs []string) error {
	if len(productIDs) == 0 {
		return nil
	}
	_, err := coll.DeleteMany(ctx, bson.M{"userId": userID, "productId": bson.M{"$in": productIDs}})
	return err
}
