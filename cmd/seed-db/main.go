// Command seed-db loads the demo catalog, a few coupons and an API key into
// the cart database.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/kart-cart/db"
	"github.com/xenking/kart-cart/internal/domain/auth"
	"github.com/xenking/kart-cart/internal/domain/coupon"
	"github.com/xenking/kart-cart/internal/storage/postgres"
	"github.com/xenking/kart-cart/pkg/httpmiddleware"
)

type options struct {
	databaseURL  string
	catalogFile  string
	apiKey       string
	apiKeyPepper string
	userID       string
}

func main() {
	var opts options
	flag.StringVar(&opts.databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&opts.catalogFile, "catalog", "", "products JSON file (embedded demo catalog when empty)")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key to seed (or CART_SEED_API_KEY env)")
	flag.StringVar(&opts.apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or CART_API_KEY_PEPPER env)")
	flag.StringVar(&opts.userID, "user-id", "demo-user", "user the seeded API key acts for")
	flag.Parse()

	lg, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	opts.databaseURL = orEnv(opts.databaseURL, "DATABASE_URL")
	opts.apiKey = orEnv(opts.apiKey, "CART_SEED_API_KEY")
	opts.apiKeyPepper = orEnv(opts.apiKeyPepper, "CART_API_KEY_PEPPER")
	if opts.databaseURL == "" {
		lg.Fatal("Database URL is required: set --database-url or DATABASE_URL")
	}
	if opts.apiKey == "" {
		lg.Fatal("API key is required: set --api-key or CART_SEED_API_KEY")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, opts); err != nil {
		lg.Fatal("Seed failed", zap.Error(err))
	}
	lg.Info("Seed completed")
}

func orEnv(v, key string) string {
	if v != "" {
		return v
	}
	return os.Getenv(key)
}

func run(ctx context.Context, lg *zap.Logger, opts options) error {
	pool, err := postgres.NewPool(ctx, opts.databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	catalog := db.Products
	if opts.catalogFile != "" {
		if catalog, err = os.ReadFile(opts.catalogFile); err != nil {
			return errors.Wrap(err, "read catalog")
		}
	}
	products, err := decodeCatalog(catalog)
	if err != nil {
		return err
	}

	productRepo := postgres.NewProductRepository(pool)
	for _, p := range products {
		if err := productRepo.Upsert(ctx, p); err != nil {
			return err
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.Int("stock", p.Stock))
	}

	couponRepo := postgres.NewCouponRepository(pool)
	for _, c := range demoCoupons(time.Now()) {
		if err := couponRepo.Upsert(ctx, c); err != nil {
			return err
		}
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("type", string(c.Type)))
	}

	key := auth.APIKeyInfo{
		ID:      "default",
		KeyHash: httpmiddleware.HashAPIKey(opts.apiKey, []byte(opts.apiKeyPepper)),
		Name:    "Default demo key",
		UserID:  opts.userID,
		Scopes:  []string{"cart"},
	}
	if err := postgres.NewAPIKeyRepository(pool).Upsert(ctx, key); err != nil {
		return err
	}
	lg.Info("Upserted API key", zap.String("id", key.ID), zap.String("user_id", key.UserID))

	return nil
}

func demoCoupons(now time.Time) []coupon.Coupon {
	start := now.Add(-24 * time.Hour)
	end := now.AddDate(1, 0, 0)
	return []coupon.Coupon{
		{
			ID: "coupon-welcome10", Code: "WELCOME10", Type: coupon.TypePercentage,
			DiscountValue: decimal.NewFromInt(10), Active: true, MinimumCartValue: decimal.Zero,
			StartDate: start, ExpiryDate: end, Owner: "seller-kitchen",
		},
		{
			ID: "coupon-flat5", Code: "FLAT5", Type: coupon.TypeFlat,
			DiscountValue: decimal.NewFromInt(5), Active: true, MinimumCartValue: decimal.NewFromInt(20),
			StartDate: start, ExpiryDate: end, Owner: "seller-kitchen",
		},
		{
			ID: "coupon-expired", Code: "SUMMER24", Type: coupon.TypePercentage,
			DiscountValue: decimal.NewFromInt(25), Active: true, MinimumCartValue: decimal.Zero,
			StartDate: now.AddDate(-1, 0, 0), ExpiryDate: now.AddDate(0, -6, 0), Owner: "seller-kitchen",
		},
	}
}
