package app

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/domain/coupon"
	"github.com/xenking/promo-orders/internal/domain/order"
	"github.com/xenking/promo-orders/internal/storage/memory"
	"github.com/xenking/promo-orders/internal/storage/mongo"
	"github.com/xenking/promo-orders/internal/storage/postgres"
)

// Storage bundles the repositories of one backend.
type Storage struct {
	Coupons coupon.Repository
	Orders  order.Repository
	Tx      order.Transactor
	// Ping reports whether the backend is reachable.
	Ping  func(ctx context.Context) error
	Close func()
}

// OpenStorage connects to the backend selected by cfg and prepares its schema.
func OpenStorage(ctx context.Context, lg *zap.Logger, cfg StorageConfig) (*Storage, error) {
	lg = lg.With(zap.String("driver", cfg.Driver))

	switch cfg.Driver {
	case DriverPostgres:
		pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, errors.Wrap(err, "create db pool")
		}
		if err := postgres.RunMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, errors.Wrap(err, "run migrations")
		}
		lg.Info("Storage ready")
		return &Storage{
			Coupons: postgres.NewCouponRepository(pool),
			Orders:  postgres.NewOrderRepository(pool),
			Tx:      postgres.NewTransactor(pool),
			Ping:    pool.Ping,
			Close:   pool.Close,
		}, nil

	case DriverMongo:
		store, err := mongo.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		closeStore := func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := store.Close(ctx); err != nil {
				lg.Warn("Close mongo", zap.Error(err))
			}
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			closeStore()
			return nil, errors.Wrap(err, "ensure indexes")
		}
		lg.Info("Storage ready", zap.String("database", cfg.MongoDatabase))
		return &Storage{
			Coupons: store.Coupons(),
			Orders:  store.Orders(),
			Tx:      store,
			Ping:    store.Ping,
			Close:   closeStore,
		}, nil

	case DriverMemory:
		lg.Warn("Using in-memory storage, data is lost on exit")
		store := memory.New()
		return &Storage{
			Coupons: store.Coupons(),
			Orders:  store.Orders(),
			Tx:      store,
			Ping:    func(context.Context) error { return nil },
			Close:   func() {},
		}, nil

	default:
		return nil, errors.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
