// Command seed-db loads the campus menu into PostgreSQL and can print session
// tokens for local testing.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/campusbite/campusbite-api/internal/domain/auth"
	"github.com/campusbite/campusbite-api/internal/domain/menu"
	"github.com/campusbite/campusbite-api/internal/repository"
)

func main() {
	var (
		databaseURL string
		menuFile    string
		authSecret  string
		authIssuer  string
		tokenTTL    time.Duration
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&authSecret, "auth-secret", "", "print dev session tokens signed with this secret (or BITE_AUTH_SECRET env)")
	flag.StringVar(&authIssuer, "auth-issuer", "campusbite", "issuer of printed tokens")
	flag.DurationVar(&tokenTTL, "token-ttl", 24*time.Hour, "lifetime of printed tokens")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if authSecret == "" {
		authSecret = os.Getenv("BITE_AUTH_SECRET")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("seed completed successfully")

	if authSecret != "" {
		if err := printTokens(auth.NewTokens([]byte(authSecret), authIssuer), tokenTTL); err != nil {
			slog.Error("issue tokens", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
}

func run(ctx context.Context, databaseURL, menuFile string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")
	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	slog.Info("reading menu file", slog.String("path", menuFile))
	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}
	items, err := decodeMenu(data)
	if err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting food items", slog.Int("count", len(items)))
	if err := repository.NewMenuRepository(pool).Upsert(ctx, items); err != nil {
		return err
	}
	for _, it := range items {
		slog.Info("upserted food item",
			slog.String("id", it.ID),
			slog.String("name", it.Name),
			slog.Bool("orderable", it.Orderable()),
		)
	}
	return nil
}

func decodeMenu(data []byte) ([]menu.FoodItem, error) {
	var items []menu.FoodItem
	err := jx.DecodeBytes(data).Arr(func(d *jx.Decoder) error {
		var it menu.FoodItem
		if err := d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "id":
				it.ID, err = d.Str()
			case "name":
				it.Name, err = d.Str()
			case "category":
				it.Category, err = d.Str()
			case "price":
				var s string
				if s, err = d.Str(); err == nil {
					it.Price, err = decimal.NewFromString(s)
				}
			case "isAvailable":
				it.IsAvailable, err = d.Bool()
			case "isOutOfStock":
				it.IsOutOfStock, err = d.Bool()
			default:
				err = d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		if it.ID == "" || !it.Price.IsPositive() {
			return errors.Errorf("food item %q: id and positive price are required", it.ID)
		}
		items = append(items, it)
		return nil
	})
	return items, err
}

func printTokens(tokens *auth.Tokens, ttl time.Duration) error {
	for _, p := range []auth.Principal{
		{UserID: "dev-student", Role: auth.RoleStudent},
		{UserID: "dev-staff", Role: auth.RoleStaff},
		{UserID: "dev-admin", Role: auth.RoleAdmin},
	} {
		tok, err := tokens.Issue(p, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", p.Role, tok)
	}
	return nil
}
