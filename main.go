package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	domcart "example.com/shopcore/internal/domain/cart"
	domorder "example.com/shopcore/internal/domain/order"
	domproduct "example.com/shopcore/internal/domain/product"
	"example.com/shopcore/internal/config"
	"example.com/shopcore/internal/infra/idempotency"
	"example.com/shopcore/internal/infra/logging"
	"example.com/shopcore/internal/infra/persistence/memory"
	"example.com/shopcore/internal/infra/persistence/mongodb"
	mysqlstore "example.com/shopcore/internal/infra/persistence/mysql"
	"example.com/shopcore/internal/infra/persistence/postgres"
	"example.com/shopcore/internal/infra/security"
	"example.com/shopcore/internal/infra/shutdown"
	httpapi "example.com/shopcore/internal/interface/http"
	authuc "example.com/shopcore/internal/usecase/auth"
	cartuc "example.com/shopcore/internal/usecase/cart"
	checkoutuc "example.com/shopcore/internal/usecase/checkout"
	orderuc "example.com/shopcore/internal/usecase/order"
	productuc "example.com/shopcore/internal/usecase/product"
)

type stores struct {
	products domproduct.Repository
	carts    domcart.Repository
	orders   domorder.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.close()

	idemStore, closeIdem, err := openIdempotency(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeIdem()

	tokens := security.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)
	pricing := domorder.FlatPolicy{Shipping: cfg.ShippingFlat, TaxRate: cfg.TaxRate}

	api := httpapi.NewAPI(httpapi.Dependencies{
		AuthService: authuc.NewService(tokens),
		CheckoutService: checkoutuc.NewService(st.carts, st.products, st.orders,
			checkoutuc.WithPricing(pricing),
			checkoutuc.WithLogger(logger.Named("checkout")),
		),
		OrderService:     orderuc.NewService(st.orders, logger.Named("orders")),
		CartService:      cartuc.NewService(st.carts, st.products, logger.Named("cart")),
		ProductService:   productuc.NewService(st.products, logger.Named("products")),
		IdempotencyStore: idemStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		HealthCheck:      st.ping,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http listening", zap.String("addr", srv.Addr), zap.String("store", cfg.StoreDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			cancel()
		}
	}()

	if err := shutdown.Server(ctx, srv, cfg.ShutdownTimeout); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	logger.Info("shutdown complete")
	return nil
}

func openStores(ctx context.Context, cfg config.Config, logger *zap.Logger) (*stores, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		dsn, err := mysql.ParseDSN(cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("mysql dsn: %w", err)
		}
		// Timestamp columns are scanned into time.Time.
		dsn.ParseTime = true
		dsn.Loc = time.UTC
		db, err := sql.Open("mysql", dsn.FormatDSN())
		if err != nil {
			return nil, fmt.Errorf("mysql open: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("mysql ping: %w", err)
		}
		if err := mysqlstore.EnsureSchema(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return &stores{
			products: mysqlstore.NewProductRepository(db),
			carts:    mysqlstore.NewCartRepository(db),
			orders:   mysqlstore.NewOrderRepository(db),
			ping:     db.PingContext,
			close:    func() { _ = db.Close() },
		}, nil

	case config.DriverPostgres:
		pool, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := postgres.EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
		return &stores{
			products: postgres.NewProductRepository(pool),
			carts:    postgres.NewCartRepository(pool),
			orders:   postgres.NewOrderRepository(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil

	case config.DriverMongo:
		client, err := mongodb.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.MongoDB)
		if err := mongodb.EnsureIndexes(ctx, db); err != nil {
			_ = client.Disconnect(context.Background())
			return nil, err
		}
		return &stores{
			products: mongodb.NewProductRepository(db),
			carts:    mongodb.NewCartRepository(db),
			orders:   mongodb.NewOrderRepository(client, db),
			ping:     func(ctx context.Context) error { return client.Ping(ctx, nil) },
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		db := memory.NewDB()
		seedDemoCatalog(db)
		logger.Warn("using in-memory store; data is lost on restart")
		return &stores{
			products: memory.NewProductRepository(db),
			carts:    memory.NewCartRepository(db),
			orders:   memory.NewOrderRepository(db),
			ping:     func(context.Context) error { return nil },
			close:    func() {},
		}, nil
	}
}

func openIdempotency(ctx context.Context, cfg config.Config, logger *zap.Logger) (idempotency.Store, func(), error) {
	if cfg.RedisURL == "" {
		store := idempotency.NewMemoryStore()
		stop := sweepEvery(ctx, store, 10*time.Minute)
		return store, stop, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	logger.Info("idempotency keys stored in redis", zap.String("addr", opts.Addr))
	return idempotency.NewRedisStore(rdb), func() { _ = rdb.Close() }, nil
}

func sweepEvery(ctx context.Context, store *idempotency.MemoryStore, every time.Duration) func() {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				store.Sweep(now)
			}
		}
	}()
	return cancel
}

func seedDemoCatalog(db *memory.DB) {
	discount := 79.0
	db.PutProduct(&domproduct.Product{ID: "demo-lamp", Name: "Desk lamp", Price: 99, DiscountPrice: &discount, Stock: 25, IsActive: true, SKU: "LAMP-01", Category: "lighting"})
	db.PutProduct(&domproduct.Product{ID: "demo-chair", Name: "Office chair", Price: 249, Stock: 10, IsActive: true, SKU: "CHAIR-01", Category: "furniture"})
	db.PutProduct(&domproduct.Product{ID: "demo-mug", Name: "Coffee mug", Price: 12.5, Stock: 100, IsActive: true, SKU: "MUG-01", Category: "kitchen"})
}
