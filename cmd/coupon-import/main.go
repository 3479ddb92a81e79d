// Command coupon-import bulk loads coupons from gzip compressed JSON lines
// files. Codes that already exist are left untouched.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/xenking/kart-cart/internal/storage/postgres"
)

func main() {
	var (
		databaseURL string
		batchSize   int
		capacity    uint
	)
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.IntVar(&batchSize, "batch-size", 500, "coupons per insert batch")
	flag.UintVar(&capacity, "expected-codes", 1_000_000, "expected number of distinct codes, sizes the bloom filter")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	files := flag.Args()
	if len(files) == 0 {
		lg.Fatal("Usage: coupon-import [flags] FILE.jsonl.gz...")
	}
	if batchSize < 1 {
		lg.Fatal("Batch size must be positive", zap.Int("batch_size", batchSize))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		lg.Fatal("Connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		lg.Fatal("Run migrations", zap.Error(err))
	}

	im := &importer{
		store:     postgres.NewCouponRepository(pool),
		lg:        lg,
		batchSize: batchSize,
		capacity:  capacity,
		fpRate:    0.001,
	}
	stats, err := im.Run(ctx, files)
	fields := []zap.Field{
		zap.Int("read", stats.Read),
		zap.Int("invalid", stats.Invalid),
		zap.Int("duplicates", stats.Duplicates),
		zap.Int64("inserted", stats.Inserted),
	}
	if err != nil {
		lg.Fatal("Import failed", append(fields, zap.Error(err))...)
	}
	lg.Info("Import complete", fields...)
}
