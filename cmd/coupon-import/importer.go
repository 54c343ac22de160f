package main

import (
	"context"
	"sync/atomic"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

type importStats struct {
	created     atomic.Int64
	existing    atomic.Int64
	invalid     atomic.Int64
	conflicting atomic.Int64
}

type importer struct {
	registry  *coupon.Registry
	conflicts map[string]struct{}
	lg        *zap.Logger
}

// importFiles creates the coupons of every file, up to workers files at a
// time. Malformed records are logged and counted; store failures abort.
func (imp *importer) importFiles(ctx context.Context, files []string, workers int) (*importStats, error) {
	stats := new(importStats)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	for _, path := range files {
		g.Go(func() error {
			lg := imp.lg.With(zap.String("file", path))
			lineNo := 0
			err := streamLines(gctx, path, func(line []byte) error {
				lineNo++
				return imp.importLine(gctx, lg.With(zap.Int("line", lineNo)), line, stats)
			})
			if err != nil {
				return errors.Wrapf(err, "import %s", path)
			}
			lg.Info("File imported", zap.Int("lines", lineNo))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

func (imp *importer) importLine(ctx context.Context, lg *zap.Logger, line []byte, stats *importStats) error {
	p, err := parseRecord(line)
	if err != nil {
		stats.invalid.Add(1)
		lg.Warn("Malformed record", zap.Error(err))
		return nil
	}
	if _, ok := imp.conflicts[coupon.NormalizeCode(p.Code)]; ok {
		stats.conflicting.Add(1)
		return nil
	}

	_, err = imp.registry.Create(ctx, p)
	var fieldErr *coupon.InvalidFieldError
	switch {
	case err == nil:
		stats.created.Add(1)
	case errors.Is(err, coupon.ErrDuplicateCode):
		stats.existing.Add(1)
	case errors.Is(err, coupon.ErrMissingFields), errors.As(err, &fieldErr):
		stats.invalid.Add(1)
		lg.Warn("Invalid coupon", zap.String("code", p.Code), zap.Error(err))
	default:
		return err
	}
	return nil
}
