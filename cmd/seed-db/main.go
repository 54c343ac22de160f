// Command seed-db prepares the configured store with sample coupons and
// prints bearer tokens for local testing.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/promo-orders/internal/app"
	"github.com/xenking/promo-orders/internal/domain/auth"
	"github.com/xenking/promo-orders/internal/domain/coupon"
)

type config struct {
	Storage  app.StorageConfig
	Auth     app.AuthConfig
	TokenTTL time.Duration `default:"720h" usage:"Lifetime of the printed tokens"`
	Admin    string        `default:"admin@example.com" usage:"Subject of the admin token"`
	Customer string        `default:"customer@example.com" usage:"Subject of the customer token"`
}

func dec(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func boolPtr(v bool) *bool { return &v }

// sampleCoupons cover each eligibility outcome of the apply endpoint.
func sampleCoupons(now time.Time) []coupon.CreateParams {
	nextYear := now.AddDate(1, 0, 0).Format(time.DateOnly)
	return []coupon.CreateParams{
		{Code: "WELCOME10", DiscountType: "percentage", DiscountValue: dec(10), ExpiryDate: nextYear},
		{Code: "SAVE10", DiscountType: "percentage", DiscountValue: dec(10), ExpiryDate: nextYear, UsageLimit: dec(1)},
		{Code: "FIFTYOFF", DiscountType: "fixed", DiscountValue: dec(50), ExpiryDate: nextYear, UsageLimit: dec(100)},
		{Code: "PAUSED", DiscountType: "percentage", DiscountValue: dec(25), ExpiryDate: nextYear, Active: boolPtr(false)},
		{Code: "LASTYEAR", DiscountType: "fixed", DiscountValue: dec(5), ExpiryDate: now.AddDate(-1, 0, 0).Format(time.DateOnly)},
	}
}

func main() {
	lg := zap.Must(zap.NewDevelopment())
	defer func() { _ = lg.Sync() }()

	var cfg config
	if err := app.NewLoader(&cfg, os.Args[1:]).Load(); err != nil {
		lg.Fatal("Load config", zap.Error(err))
	}
	cfg.Storage.ApplyPlatformDefaults()
	if err := cfg.Storage.Validate(); err != nil {
		lg.Fatal("Invalid config", zap.Error(err))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, cfg); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, cfg config) error {
	store, err := app.OpenStorage(ctx, lg, cfg.Storage)
	if err != nil {
		return errors.Wrap(err, "open storage")
	}
	defer store.Close()

	if err := seedCoupons(ctx, lg, coupon.NewRegistry(store.Coupons)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	if cfg.Auth.Secret == "" {
		lg.Info("No auth secret configured, skipping tokens")
		return nil
	}
	return printTokens(cfg)
}

func seedCoupons(ctx context.Context, lg *zap.Logger, registry *coupon.Registry) error {
	for _, p := range sampleCoupons(time.Now()) {
		c, err := registry.Create(ctx, p)
		switch {
		case errors.Is(err, coupon.ErrDuplicateCode):
			lg.Info("Coupon exists, skipping", zap.String("code", p.Code))
		case err != nil:
			return errors.Wrapf(err, "create %s", p.Code)
		default:
			lg.Info("Created coupon",
				zap.String("code", c.Code),
				zap.String("id", c.ID),
				zap.Time("expiry", c.ExpiryDate),
			)
		}
	}
	return nil
}

func printTokens(cfg config) error {
	issuer, err := auth.NewJWTVerifier(cfg.Auth.Secret, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	for _, id := range []auth.Identity{
		{Subject: cfg.Admin, Privileged: true},
		{Subject: cfg.Customer},
	} {
		token, err := issuer.Issue(id, cfg.TokenTTL)
		if err != nil {
			return errors.Wrapf(err, "issue token for %s", id.Subject)
		}
		fmt.Printf("%s (admin=%t):\n%s\n\n", id.Subject, id.Privileged, token)
	}
	return nil
}
