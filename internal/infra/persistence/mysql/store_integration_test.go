//go:build integration

package mysql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tcmysql "github.com/testcontainers/testcontainers-go/modules/mysql"

	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/infra/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	container, err := tcmysql.Run(ctx, "mysql:8.0.36",
		tcmysql.WithDatabase("shopcore"),
		tcmysql.WithUsername("shop"),
		tcmysql.WithPassword("shop"),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "parseTime=true", "loc=UTC")
	require.NoError(t, err)
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	require.NoError(t, db.PingContext(pingCtx))
	require.NoError(t, EnsureSchema(ctx, db))

	products := NewProductRepository(db)
	storetest.Run(t, func(t *testing.T) storetest.Stores {
		for _, table := range []string{"order_status_history", "order_items", "orders", "cart_items", "products"} {
			_, err := db.ExecContext(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
		return storetest.Stores{
			Products: products,
			Carts:    NewCartRepository(db),
			Orders:   NewOrderRepository(db),
			Seed: func(t *testing.T, p *domproduct.Product) {
				require.NoError(t, products.Save(context.Background(), p))
			},
		}
	})
}
