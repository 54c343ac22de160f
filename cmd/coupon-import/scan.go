package main

import (
	"bufio"
	"bytes"
	"context"
	"os"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/promo-orders/internal/domain/coupon"
)

const maxLineBytes = 1 << 20

// streamLines calls fn for every non-blank line of the gzip file at path.
// The slice passed to fn is only valid during the call.
func streamLines(ctx context.Context, path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}
	return nil
}

// lineCode returns the normalized code of a line, or "" when the line does
// not parse.
func lineCode(line []byte) string {
	p, err := parseRecord(line)
	if err != nil {
		return ""
	}
	return coupon.NormalizeCode(p.Code)
}

// findConflicts returns the normalized codes that occur in two or more files.
//
// The first pass builds one bloom filter per file. The second pass re-reads
// each file and keeps only codes that hit another file's filter, so memory
// stays proportional to the overlap rather than the input. A code is
// reported only when at least two files confirm it, which removes bloom
// false positives.
func findConflicts(ctx context.Context, files []string, capacity uint, fpRate float64) (map[string]struct{}, error) {
	filters := make([]*bloom.BloomFilter, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			filter := bloom.NewWithEstimates(capacity, fpRate)
			if err := streamLines(gctx, path, func(line []byte) error {
				if code := lineCode(line); code != "" {
					filter.AddString(code)
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "build filter for %s", path)
			}
			filters[i] = filter
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]map[string]struct{}, len(files))
	g, gctx = errgroup.WithContext(ctx)
	for i, path := range files {
		g.Go(func() error {
			found := make(map[string]struct{})
			if err := streamLines(gctx, path, func(line []byte) error {
				code := lineCode(line)
				if code == "" {
					return nil
				}
				for j, f := range filters {
					if j != i && f.TestString(code) {
						found[code] = struct{}{}
						break
					}
				}
				return nil
			}); err != nil {
				return errors.Wrapf(err, "scan %s for candidates", path)
			}
			candidates[i] = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	for _, found := range candidates {
		for code := range found {
			seen[code]++
		}
	}
	conflicts := make(map[string]struct{})
	for code, n := range seen {
		if n >= 2 {
			conflicts[code] = struct{}{}
		}
	}
	return conflicts, nil
}
