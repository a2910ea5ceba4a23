package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/vendor"
)

const (
	getVendorByIDSQL = `SELECT id, name, modes, courier_cost, courier_cost_included, free_shipping_threshold
		FROM vendors WHERE id = $1`

	listDeliveryOptionsSQL = `SELECT id, name, price
		FROM delivery_options WHERE vendor_id = $1 ORDER BY position, id`

	listMeetupPointsSQL = `SELECT id, name, address
		FROM meetup_points WHERE vendor_id = $1 ORDER BY id`

	listServiceColoniasSQL = `SELECT id, name, delegacion
		FROM service_colonias WHERE vendor_id = $1 ORDER BY id`
)

var _ vendor.Repository = (*VendorRepository)(nil)

// VendorRepository implements vendor.Repository backed by PostgreSQL.
type VendorRepository struct {
	pool *pgxpool.Pool
}

// NewVendorRepository returns a VendorRepository that uses the given pool.
func NewVendorRepository(pool *pgxpool.Pool) *VendorRepository {
	return &VendorRepository{pool: pool}
}

// GetByID assembles the full vendor profile: the base row plus delivery
// options, meetup points, and the configured service area.
// Returns vendor.ErrNotFound when the vendor does not exist.
func (r *VendorRepository) GetByID(ctx context.Context, id string) (*vendor.Profile, error) {
	rows, err := r.pool.Query(ctx, getVendorByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting vendor %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanVendorProfile)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, vendor.ErrNotFound
		}
		return nil, fmt.Errorf("getting vendor %q: %w", id, err)
	}

	if p.DeliveryOptions, err = r.deliveryOptions(ctx, id); err != nil {
		return nil, err
	}
	if p.MeetupPoints, err = r.meetupPoints(ctx, id); err != nil {
		return nil, err
	}
	if p.ServiceColonias, err = r.serviceColonias(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *VendorRepository) deliveryOptions(ctx context.Context, vendorID string) ([]fulfillment.DeliveryOption, error) {
	rows, err := r.pool.Query(ctx, listDeliveryOptionsSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing delivery options for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (fulfillment.DeliveryOption, error) {
		var (
			opt   fulfillment.DeliveryOption
			price decimal.Decimal
		)
		err := row.Scan(&opt.ID, &opt.Name, &price)
		opt.Price = price
		return opt, err
	})
}

func (r *VendorRepository) meetupPoints(ctx context.Context, vendorID string) ([]vendor.MeetupPoint, error) {
	rows, err := r.pool.Query(ctx, listMeetupPointsSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing meetup points for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (vendor.MeetupPoint, error) {
		var mp vendor.MeetupPoint
		err := row.Scan(&mp.ID, &mp.Name, &mp.Address)
		return mp, err
	})
}

func (r *VendorRepository) serviceColonias(ctx context.Context, vendorID string) ([]vendor.Colonia, error) {
	rows, err := r.pool.Query(ctx, listServiceColoniasSQL, vendorID)
	if err != nil {
		return nil, fmt.Errorf("listing service colonias for vendor %q: %w", vendorID, err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (vendor.Colonia, error) {
		var c vendor.Colonia
		err := row.Scan(&c.ID, &c.Name, &c.Delegacion)
		return c, err
	})
}

func scanVendorProfile(row pgx.CollectableRow) (vendor.Profile, error) {
	var (
		p         vendor.Profile
		modes     []string
		courier   decimal.Decimal
		threshold decimal.Decimal
	)
	err := row.Scan(&p.ID, &p.Name, &modes, &courier, &p.CourierCostIncluded, &threshold)
	p.Modes = make([]fulfillment.Type, len(modes))
	for i, m := range modes {
		p.Modes[i] = fulfillment.Type(m)
	}
	p.CourierCost = courier
	p.FreeShippingThreshold = threshold
	return p, err
}
