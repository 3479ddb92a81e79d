package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/klauspost/pgzip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/kart-cart/internal/domain/coupon"
)

const maxLineSize = 1 << 20

// store is the subset of the coupon repository the importer writes through.
type store interface {
	ForEachCode(ctx context.Context, fn func(code string)) error
	FindByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	InsertNew(ctx context.Context, coupons []coupon.Coupon) (int64, error)
}

// Stats summarizes one import run.
type Stats struct {
	Read       int
	Invalid    int
	Duplicates int
	Inserted   int64
}

type importer struct {
	store     store
	lg        *zap.Logger
	batchSize int
	capacity  uint
	fpRate    float64
}

// Run streams every file concurrently and inserts coupons whose codes are
// not stored yet. Existing coupons are never modified.
func (im *importer) Run(ctx context.Context, files []string) (Stats, error) {
	var stats Stats

	seen := bloom.NewWithEstimates(im.capacity, im.fpRate)
	var existing int
	if err := im.store.ForEachCode(ctx, func(code string) {
		seen.AddString(strings.ToUpper(code))
		existing++
	}); err != nil {
		return stats, errors.Wrap(err, "load existing codes")
	}
	im.lg.Info("Loaded existing codes", zap.Int("count", existing))

	parsed := make(chan coupon.Coupon, im.batchSize)
	invalid := make([]int, len(files))

	g, gctx := errgroup.WithContext(ctx)
	readers, rctx := errgroup.WithContext(gctx)
	for i, path := range files {
		readers.Go(func() error {
			n, err := im.readFile(rctx, path, parsed)
			invalid[i] = n
			return err
		})
	}
	g.Go(func() error {
		defer close(parsed)
		return readers.Wait()
	})
	g.Go(func() error {
		return im.write(gctx, seen, parsed, &stats)
	})

	err := g.Wait()
	for _, n := range invalid {
		stats.Invalid += n
	}
	return stats, err
}

// write batches parsed coupons. A bloom hit is confirmed against storage so
// false positives never drop a new coupon.
func (im *importer) write(ctx context.Context, seen *bloom.BloomFilter, in <-chan coupon.Coupon, stats *Stats) error {
	batch := make([]coupon.Coupon, 0, im.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := im.store.InsertNew(ctx, batch)
		stats.Inserted += n
		stats.Duplicates += len(batch) - int(n)
		batch = batch[:0]
		return err
	}

	for c := range in {
		stats.Read++
		key := strings.ToUpper(c.Code)
		if seen.TestString(key) {
			found, err := im.store.FindByCode(ctx, c.Code)
			switch {
			case err == nil && found != nil:
				stats.Duplicates++
				continue
			case err != nil && !errors.Is(err, coupon.ErrNotFound):
				return errors.Wrapf(err, "check code %q", c.Code)
			}
		}
		seen.AddString(key)
		batch = append(batch, c)
		if len(batch) == im.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return flush()
}

// readFile decodes a gzip compressed JSON lines file and sends every valid
// coupon to out. It returns the number of rejected lines.
func (im *importer) readFile(ctx context.Context, path string, out chan<- coupon.Coupon) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return 0, errors.Wrapf(err, "gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	lg := im.lg.With(zap.String("file", path))
	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var line, invalid int
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		c, err := parseRecord(raw)
		if err != nil {
			invalid++
			lg.Warn("Skipping invalid coupon", zap.Int("line", line), zap.Error(err))
			continue
		}
		select {
		case out <- c:
		case <-ctx.Done():
			return invalid, ctx.Err()
		}
	}
	if err := scanner.Err(); err != nil {
		return invalid, errors.Wrapf(err, "scan %s", path)
	}
	lg.Info("File complete", zap.Int("lines", line), zap.Int("invalid", invalid))
	return invalid, nil
}
