// Package order defines the durable order record, the degrade ladder of
// persistence payload shapes, and the repository contract.
package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/fulfillment"
)

// PaymentMethod enumerates how the customer pays.
type PaymentMethod string

const (
	// MethodCash is paid on pickup or delivery.
	MethodCash PaymentMethod = "cash"
	// MethodTransfer is an offline bank transfer arranged with the vendor.
	MethodTransfer PaymentMethod = "transfer"
	// MethodOnline is paid through the payment gateway; the order stays
	// unpaid until the out-of-band confirmation arrives.
	MethodOnline PaymentMethod = "online"
)

// Online reports whether the method requires a payment-gateway handoff.
func (m PaymentMethod) Online() bool { return m == MethodOnline }

// Status is the order lifecycle state. The engine only ever writes
// StatusPending; later transitions belong to fulfillment tooling.
type Status string

const (
	StatusPending Status = "pending"
)

// GuestContact is the contact block persisted for guest orders.
type GuestContact struct {
	Email string
	Name  string
	Phone string
}

// Order is the durable record created exactly once per checkout attempt.
// IsPaid starts false and is flipped only by an external payment
// confirmation, never by the engine.
type Order struct {
	ID              string
	VendorID        string
	UserID          string
	Total           decimal.Decimal
	PaymentMethod   PaymentMethod
	Status          Status
	IsPaid          bool
	AddressRef      *string
	Commission      decimal.Decimal
	VendorEarnings  decimal.Decimal
	FulfillmentType fulfillment.Type
	DeliveryCost    decimal.Decimal
	CourierCost     decimal.Decimal
	DeliveryOption  string
	TipAmount       decimal.Decimal
	GuestContact    *GuestContact
	IdempotencyKey  *string
	CreatedAt       time.Time
}

// LineItem is one persisted order line. ProductID is nil only for the
// promotional zero-price item. Line items are children of an order and are
// never created standalone.
type LineItem struct {
	OrderID   string
	ProductID *string
	Quantity  int
	Price     decimal.Decimal
	Variant   *string
}

// Shape identifies one rung of the persistence degrade ladder. The backing
// store's column set may lag the application, so inserts are negotiated from
// the newest shape down.
type Shape int

const (
	// ShapeFull carries every field.
	ShapeFull Shape = iota
	// ShapeNoDeliveryTip drops the delivery and tip field group.
	ShapeNoDeliveryTip
	// ShapeNoGuestContact additionally drops the guest contact fields.
	ShapeNoGuestContact
	// ShapeMinimal carries only vendor, total, status, payment method, and
	// the resolved user reference.
	ShapeMinimal
)

func (s Shape) String() string {
	switch s {
	case ShapeFull:
		return "full"
	case ShapeNoDeliveryTip:
		return "no_delivery_tip"
	case ShapeNoGuestContact:
		return "no_guest_contact"
	case ShapeMinimal:
		return "minimal"
	default:
		return "unknown"
	}
}

// Ladder is the ordered list of shapes to attempt, newest first.
func Ladder() []Shape {
	return []Shape{ShapeFull, ShapeNoDeliveryTip, ShapeNoGuestContact, ShapeMinimal}
}

var (
	// ErrUnknownColumn marks a schema-drift rejection: the store does not
	// recognize one of the payload's columns. Callers step down the ladder.
	ErrUnknownColumn = errors.New("order payload column not recognized")
	// ErrNullViolation marks a non-nullable constraint rejection, raised by
	// stores that do not accept the promotional item's null product ref.
	ErrNullViolation = errors.New("null value rejected by store")
	// ErrDuplicateKey marks an idempotency-key conflict: the order for this
	// key already exists.
	ErrDuplicateKey = errors.New("order already exists for idempotency key")
	// ErrNotFound is returned when an order lookup matches nothing.
	ErrNotFound = errors.New("order not found")
)

// Repository defines persistence operations for orders and their line items.
type Repository interface {
	// Insert persists the order using the given payload shape and returns
	// the order id. Schema drift surfaces as ErrUnknownColumn.
	Insert(ctx context.Context, o *Order, shape Shape) (string, error)
	// InsertLineItems persists the given items for an existing order.
	InsertLineItems(ctx context.Context, orderID string, items []LineItem) error
	// InsertLineItem persists a single item; used for the best-effort
	// promotional insert after a null-constraint rejection.
	InsertLineItem(ctx context.Context, orderID string, item LineItem) error
	// CountByUser returns how many orders the given customer has placed.
	CountByUser(ctx context.Context, userID string) (int, error)
	// GetByIdempotencyKey returns the order previously created for the key,
	// or ErrNotFound.
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
}
