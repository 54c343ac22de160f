// Command coupon-import bulk-creates coupons from gzip-compressed JSON-lines
// files.
//
// Each line holds one coupon:
//
//	{"code":"SPRING24","discountType":"percentage","discountValue":15,"expiryDate":"2025-06-01","usageLimit":500}
//
// A code defined in more than one file is ambiguous and skipped entirely.
// Codes that already exist in the store are left untouched.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/app"
	"github.com/xenking/promo-orders/internal/domain/coupon"
)

type config struct {
	Storage app.StorageConfig
	// Capacity sizes each per-file bloom filter.
	Capacity uint    `default:"1000000" usage:"Expected coupons per file"`
	FPRate   float64 `default:"0.001" usage:"Bloom filter false positive rate"`
	Workers  int     `default:"4" usage:"Files imported concurrently"`
}

func main() {
	lg := zap.Must(zap.NewDevelopment())
	defer func() { _ = lg.Sync() }()

	var cfg config
	loader := app.NewLoader(&cfg, os.Args[1:])
	if err := loader.Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	cfg.Storage.ApplyPlatformDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		lg.Fatal("Invalid config", zap.Error(err))
	}
	files := loader.Flags().Args()
	if len(files) == 0 {
		lg.Fatal("Usage: coupon-import [flags] FILE.jsonl.gz...")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg, files); err != nil {
		lg.Fatal("Import failed", zap.Error(err))
	}
}

func run(ctx context.Context, lg *zap.Logger, cfg config, files []string) error {
	lg.Info("Scanning for codes shared between files", zap.Int("files", len(files)))
	conflicts, err := findConflicts(ctx, files, cfg.Capacity, cfg.FPRate)
	if err != nil {
		return errors.Wrap(err, "find conflicts")
	}
	for code := range conflicts {
		lg.Warn("Code defined in several files, skipping", zap.String("code", code))
	}

	store, err := app.OpenStorage(ctx, lg, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	imp := &importer{
		registry:  coupon.NewRegistry(store.Coupons),
		conflicts: conflicts,
		lg:        lg,
	}
	stats, err := imp.importFiles(ctx, files, cfg.Workers)
	if err != nil {
		return err
	}

	lg.Info("Import completed",
		zap.Int64("created", stats.created.Load()),
		zap.Int64("existing", stats.existing.Load()),
		zap.Int64("invalid", stats.invalid.Load()),
		zap.Int64("conflicting", stats.conflicting.Load()),
	)
	return nil
}
