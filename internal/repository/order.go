package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/order"
)

const (
	insertOrderFullSQL = `INSERT INTO orders (id, vendor_id, user_ref, total, payment_method, status, is_paid,
		address_ref, commission, vendor_earnings, fulfillment_type, delivery_option,
		delivery_cost, courier_cost, tip_amount, guest_email, guest_name, guest_phone, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	insertOrderNoDeliveryTipSQL = `INSERT INTO orders (id, vendor_id, user_ref, total, payment_method, status, is_paid,
		address_ref, commission, vendor_earnings, fulfillment_type,
		guest_email, guest_name, guest_phone, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertOrderNoGuestContactSQL = `INSERT INTO orders (id, vendor_id, user_ref, total, payment_method, status, is_paid,
		address_ref, commission, vendor_earnings, fulfillment_type, idempotency_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	insertOrderMinimalSQL = `INSERT INTO orders (id, vendor_id, user_ref, total, payment_method, status)
		VALUES ($1, $2, $3, $4, $5, $6)`

	insertOrderItemSQL = `INSERT INTO order_items (order_id, product_id, quantity, price, variant)
		VALUES ($1, $2, $3, $4, $5)`

	countOrdersByUserSQL = `SELECT COUNT(*) FROM orders WHERE user_ref = $1`

	getOrderByIdempotencyKeySQL = `SELECT id, vendor_id, user_ref, total, payment_method, status, is_paid,
		address_ref, commission, vendor_earnings, fulfillment_type, delivery_option,
		delivery_cost, courier_cost, tip_amount, guest_email, guest_name, guest_phone, idempotency_key, created_at
		FROM orders WHERE idempotency_key = $1`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Insert persists the order using the given payload shape and returns the
// order id. Missing-column rejections surface as order.ErrUnknownColumn so
// the caller can step down the ladder; an idempotency-key conflict surfaces
// as order.ErrDuplicateKey.
func (r *OrderRepository) Insert(ctx context.Context, o *order.Order, shape order.Shape) (string, error) {
	id := o.ID
	if id == "" {
		id = uuid.New().String()
	}

	var (
		guestEmail, guestName, guestPhone *string
	)
	if gc := o.GuestContact; gc != nil {
		guestEmail, guestName, guestPhone = &gc.Email, &gc.Name, &gc.Phone
	}

	var err error
	switch shape {
	case order.ShapeFull:
		_, err = r.pool.Exec(ctx, insertOrderFullSQL,
			id, o.VendorID, o.UserID, o.Total, o.PaymentMethod, o.Status, o.IsPaid,
			o.AddressRef, o.Commission, o.VendorEarnings, o.FulfillmentType, nullable(o.DeliveryOption),
			o.DeliveryCost, o.CourierCost, o.TipAmount, guestEmail, guestName, guestPhone, o.IdempotencyKey,
		)
	case order.ShapeNoDeliveryTip:
		_, err = r.pool.Exec(ctx, insertOrderNoDeliveryTipSQL,
			id, o.VendorID, o.UserID, o.Total, o.PaymentMethod, o.Status, o.IsPaid,
			o.AddressRef, o.Commission, o.VendorEarnings, o.FulfillmentType,
			guestEmail, guestName, guestPhone, o.IdempotencyKey,
		)
	case order.ShapeNoGuestContact:
		_, err = r.pool.Exec(ctx, insertOrderNoGuestContactSQL,
			id, o.VendorID, o.UserID, o.Total, o.PaymentMethod, o.Status, o.IsPaid,
			o.AddressRef, o.Commission, o.VendorEarnings, o.FulfillmentType, o.IdempotencyKey,
		)
	case order.ShapeMinimal:
		_, err = r.pool.Exec(ctx, insertOrderMinimalSQL,
			id, o.VendorID, o.UserID, o.Total, o.PaymentMethod, o.Status,
		)
	default:
		return "", fmt.Errorf("unknown order payload shape %d", shape)
	}
	if err != nil {
		return "", fmt.Errorf("inserting order (%s shape): %w", shape, mapPgError(err))
	}
	return id, nil
}

// InsertLineItems persists all items for an existing order in one batch. A
// null-constraint rejection on any item surfaces as order.ErrNullViolation.
func (r *OrderRepository) InsertLineItems(ctx context.Context, orderID string, items []order.LineItem) error {
	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(insertOrderItemSQL, orderID, it.ProductID, it.Quantity, it.Price, it.Variant)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range items {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("inserting order items for %q: %w", orderID, mapPgError(err))
		}
	}
	return nil
}

// InsertLineItem persists a single item for an existing order.
func (r *OrderRepository) InsertLineItem(ctx context.Context, orderID string, item order.LineItem) error {
	_, err := r.pool.Exec(ctx, insertOrderItemSQL,
		orderID, item.ProductID, item.Quantity, item.Price, item.Variant,
	)
	if err != nil {
		return fmt.Errorf("inserting order item for %q: %w", orderID, mapPgError(err))
	}
	return nil
}

// CountByUser returns how many orders the given customer reference has placed.
func (r *OrderRepository) CountByUser(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting orders for user %q: %w", userID, err)
	}
	return count, nil
}

// GetByIdempotencyKey returns the order previously created for the key, or
// order.ErrNotFound. Columns absent on degraded rows come back as zero values.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderByIdempotencyKeySQL, key)
	if err != nil {
		return nil, fmt.Errorf("getting order by idempotency key: %w", err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order by idempotency key: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o               order.Order
		fulfillmentType *string
		deliveryOption  *string
		commission      *decimal.Decimal
		vendorEarnings  *decimal.Decimal
		deliveryCost    *decimal.Decimal
		courierCost     *decimal.Decimal
		tipAmount       *decimal.Decimal
		guestEmail      *string
		guestName       *string
		guestPhone      *string
	)
	err := row.Scan(
		&o.ID, &o.VendorID, &o.UserID, &o.Total, &o.PaymentMethod, &o.Status, &o.IsPaid,
		&o.AddressRef, &commission, &vendorEarnings, &fulfillmentType, &deliveryOption,
		&deliveryCost, &courierCost, &tipAmount, &guestEmail, &guestName, &guestPhone,
		&o.IdempotencyKey, &o.CreatedAt,
	)
	if fulfillmentType != nil {
		o.FulfillmentType = fulfillment.Type(*fulfillmentType)
	}
	if deliveryOption != nil {
		o.DeliveryOption = *deliveryOption
	}
	o.Commission = deref(commission)
	o.VendorEarnings = deref(vendorEarnings)
	o.DeliveryCost = deref(deliveryCost)
	o.CourierCost = deref(courierCost)
	o.TipAmount = deref(tipAmount)
	if guestEmail != nil {
		o.GuestContact = &order.GuestContact{
			Email: *guestEmail,
			Name:  strOrEmpty(guestName),
			Phone: strOrEmpty(guestPhone),
		}
	}
	return o, err
}

// mapPgError translates PostgreSQL error codes into the domain sentinels the
// degrade ladder keys on.
func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case "42703":
		return errors.Wrap(order.ErrUnknownColumn, pgErr.Message)
	case "23502":
		return errors.Wrap(order.ErrNullViolation, pgErr.Message)
	case "23505":
		return errors.Wrap(order.ErrDuplicateKey, pgErr.Message)
	}
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
