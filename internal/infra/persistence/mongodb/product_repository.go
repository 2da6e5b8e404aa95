package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domproduct "example.com/shopcore/internal/domain/product"
)

type productDoc struct {
	ID            string   `bson:"_id"`
	Name          string   `bson:"name"`
	Description   string   `bson:"description"`
	Price         float64  `bson:"price"`
	DiscountPrice *float64 `bson:"discountPrice"`
	Stock         int64    `bson:"stock"`
	Images        []string `bson:"images"`
	Category      string   `bson:"category"`
	Brand         string   `bson:"brand"`
	SKU           string   `bson:"sku"`
	IsActive      bool     `bson:"isActive"`
}

type ProductRepository struct {
	coll *mongo.Collection
}

func NewProductRepository(db *mongo.Database) *ProductRepository {
	return &ProductRepository{coll: db.Collection(productsCollection)}
}

func (r *ProductRepository) Save(ctx context.Context, p *domproduct.Product) error {
	doc := productDoc(*p)
	if doc.Images == nil {
		doc.Images = []string{}
	}
	_, err := r.coll.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *ProductRepository) GetByID(ctx context.Context, id string) (*domproduct.Product, error) {
	var doc productDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domproduct.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	p := domproduct.Product(doc)
	return &p, nil
}

func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]*domproduct.Product, error) {
	if len(ids) == 0 {
		return []*domproduct.Product{}, nil
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find())
}

func (r *ProductRepository) List(ctx context.Context, filter domproduct.ListFilter) ([]*domproduct.Product, error) {
	query := bson.M{}
	if filter.OnlyActive {
		query["isActive"] = true
	}
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, query, opts)
}

func (r *ProductRepository) SetStock(ctx context.Context, id string, stock int64) error {
	if stock < 0 {
		return domproduct.ErrInvalidStock
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"stock": stock}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domproduct.ErrProductNotFound
	}
	return nil
}

func (r *ProductRepository) find(ctx context.Context, query bson.M, opts *options.FindOptions) ([]*domproduct.Product, error) {
	cur, err := r.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	var docs []productDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domproduct.Product, 0, len(docs))
	for _, d := range docs {
		p := domproduct.Product(d)
		out = append(out, &p)
	}
	return out, nil
}

func classifyShortage(sc mongo.SessionContext, coll *mongo.Collection, id string, qty int64) error {
	var doc productDoc
	err := coll.FindOne(sc, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domproduct.ErrProductNotFound
	}
	if err != nil {
		return err
	}
	p := domproduct.Product(doc)
	if err := domproduct.CheckReservable(&p, id, qty); err != nil {
		return err
	}
	return fmt.Errorf("stock update for product %s matched no document", id)
}
