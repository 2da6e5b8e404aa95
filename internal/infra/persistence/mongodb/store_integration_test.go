//go:build integration

package mongodb

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"

	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	// The replica set advertises the container hostname.
	if !strings.Contains(uri, "?") {
		uri = strings.TrimSuffix(uri, "/") + "/?directConnection=true"
	}
	client, err := Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("shopcore_test")
	require.NoError(t, EnsureIndexes(ctx, db))

	products := NewProductRepository(db)
	storetest.Run(t, func(t *testing.T) storetest.Stores {
		for _, name := range []string{ordersCollection, cartCollection, productsCollection} {
			_, err := db.Collection(name).DeleteMany(ctx, bson.M{})
			require.NoError(t, err)
		}
		return storetest.Stores{
			Products: products,
			Carts:    NewCartRepository(db),
			Orders:   NewOrderRepository(client, db),
			Seed: func(t *testing.T, p *domproduct.Product) {
				require.NoError(t, products.Save(context.Background(), p))
			},
		}
	})
}
