// Command seed-db loads demo vendors into the database: their fulfillment
// modes, delivery options, meetup points, and service areas.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/repository"
)

type vendorJSON struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	Modes                 []string        `json:"modes"`
	CourierCost           decimal.Decimal `json:"courierCost"`
	CourierCostIncluded   bool            `json:"courierCostIncluded"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	DeliveryOptions       []struct {
		ID    string          `json:"id"`
		Name  string          `json:"name"`
		Price decimal.Decimal `json:"price"`
	} `json:"deliveryOptions"`
	MeetupPoints []struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"meetupPoints"`
	ServiceColonias []struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Delegacion string `json:"delegacion"`
	} `json:"serviceColonias"`
}

func main() {
	var (
		databaseURL string
		vendorsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&vendorsFile, "vendors-file", "db/seed/vendors.json", "path to vendors JSON file")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, vendorsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, vendorsFile string) error {
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

	return seedVendors(ctx, pool, vendorsFile)
}

func seedVendors(ctx context.Context, pool *pgxpool.Pool, vendorsFile string) error {
	slog.Info("reading vendors file", slog.String("path", vendorsFile))

	data, err := os.ReadFile(vendorsFile)
	if err != nil {
		return errors.Wrap(err, "read vendors file")
	}

	var vendors []vendorJSON
	if err := json.Unmarshal(data, &vendors); err != nil {
		return errors.Wrap(err, "parse vendors JSON")
	}

	slog.Info("upserting vendors", slog.Int("count", len(vendors)))

	for _, v := range vendors {
		if err := seedVendor(ctx, pool, v); err != nil {
			return errors.Wrapf(err, "seed vendor %s", v.ID)
		}
		slog.Info("upserted vendor", slog.String("id", v.ID), slog.String("name", v.Name))
	}

	return nil
}

func seedVendor(ctx context.Context, pool *pgxpool.Pool, v vendorJSON) error {
	_, err := pool.Exec(ctx,
		`INSERT INTO vendors (id, name, modes, courier_cost, courier_cost_included, free_shipping_threshold)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			modes = EXCLUDED.modes,
			courier_cost = EXCLUDED.courier_cost,
			courier_cost_included = EXCLUDED.courier_cost_included,
			free_shipping_threshold = EXCLUDED.free_shipping_threshold`,
		v.ID, v.Name, v.Modes, v.CourierCost, v.CourierCostIncluded, v.FreeShippingThreshold,
	)
	if err != nil {
		return errors.Wrap(err, "upsert vendor")
	}

	for i, opt := range v.DeliveryOptions {
		_, err := pool.Exec(ctx,
			`INSERT INTO delivery_options (id, vendor_id, name, price, position)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (vendor_id, id) DO UPDATE SET
				name = EXCLUDED.name, price = EXCLUDED.price, position = EXCLUDED.position`,
			opt.ID, v.ID, opt.Name, opt.Price, i,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert delivery option %s", opt.ID)
		}
	}

	for _, mp := range v.MeetupPoints {
		_, err := pool.Exec(ctx,
			`INSERT INTO meetup_points (id, vendor_id, name, address)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (vendor_id, id) DO UPDATE SET
				name = EXCLUDED.name, address = EXCLUDED.address`,
			mp.ID, v.ID, mp.Name, mp.Address,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert meetup point %s", mp.ID)
		}
	}

	for _, c := range v.ServiceColonias {
		_, err := pool.Exec(ctx,
			`INSERT INTO service_colonias (id, vendor_id, name, delegacion)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (vendor_id, id) DO UPDATE SET
				name = EXCLUDED.name, delegacion = EXCLUDED.delegacion`,
			c.ID, v.ID, c.Name, c.Delegacion,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert colonia %s", c.ID)
		}
	}

	return nil
}
