// Package checkout implements the order composer: the state machine that
// takes one checkout attempt from validation through identity resolution,
// pricing, persistence, and payment handoff or completion.
package checkout

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/identity"
	"github.com/tianguis/checkout/internal/domain/order"
	"github.com/tianguis/checkout/internal/domain/pricing"
)

// Stage names one step of the composer state machine.
type Stage string

const (
	StageValidating          Stage = "validating"
	StageResolvingIdentity   Stage = "resolving_identity"
	StageGatingServiceArea   Stage = "gating_service_area"
	StagePricing             Stage = "pricing"
	StagePersistingOrder     Stage = "persisting_order"
	StagePersistingLineItems Stage = "persisting_line_items"
	StagePaymentHandoff      Stage = "payment_handoff"
	StageCompleted           Stage = "completed"
)

// StageError wraps a failure with the stage it occurred in. Every composer
// failure is a StageError; the terminal Failed state is reachable from any
// stage.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("checkout %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(s Stage, err error) *StageError {
	return &StageError{Stage: s, Err: err}
}

// ValidationError reports a missing or invalid required field. It blocks
// submission and is shown inline; persistence is never touched.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

// PaymentError reports a failed payment-gateway handoff. The order row was
// already persisted (unpaid), so the caller can offer a retry against the
// same order.
type PaymentError struct {
	OrderID string
	Err     error
}

func (e *PaymentError) Error() string {
	return fmt.Sprintf("payment handoff for order %s: %v", e.OrderID, e.Err)
}

func (e *PaymentError) Unwrap() error { return e.Err }

// CartItem is one cart line as submitted by the client. The cart is owned
// transiently by the checkout session; once line items are persisted it is
// immutable.
type CartItem struct {
	ProductID string
	Name      string
	Quantity  int
	UnitPrice decimal.Decimal
	Variant   *pricing.Variant
}

// FulfillmentInput is the client's fulfillment choice before it is checked
// against the vendor's capability set.
type FulfillmentInput struct {
	Type             fulfillment.Type
	DeliveryOptionID string
	MeetupPointID    string
}

// SubmitRequest is the full input for one checkout attempt.
type SubmitRequest struct {
	VendorID      string
	Items         []CartItem
	CouponCode    string
	Fulfillment   FulfillmentInput
	Tip           pricing.Tip
	PaymentMethod order.PaymentMethod
	Guest         identity.Guest
	Address       *identity.Address
	// IdempotencyKey, when set, deduplicates retried submissions: a second
	// submit with the same key returns the originally created order.
	IdempotencyKey string
}

// SubmitResult is the outcome of a completed attempt.
type SubmitResult struct {
	Order *order.Order
	Quote pricing.Quote
	// Stage is the terminal stage: StageCompleted or StagePaymentHandoff.
	Stage Stage
	// RedirectURL is set for online payment: the gateway checkout URL the
	// browser is sent to.
	RedirectURL string
	// EmailTaken warns that the guest email already has an account; the
	// order still went through as guest.
	EmailTaken bool
	// Replayed marks an idempotent replay of a previously created order.
	Replayed bool
}

// GatewayItem is one line of the payment-gateway preference.
type GatewayItem struct {
	Title     string
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Payer identifies the paying customer to the gateway.
type Payer struct {
	Email string
	Name  string
	Phone string
}

// PreferenceRequest asks the gateway for a payment session.
type PreferenceRequest struct {
	OrderID string
	Items   []GatewayItem
	Payer   Payer
}

// Preference is the gateway's payment session handle.
type Preference struct {
	ID          string
	RedirectURL string
}

// PaymentGateway creates payment preferences for online orders.
type PaymentGateway interface {
	CreatePreference(ctx context.Context, req PreferenceRequest) (*Preference, error)
}

// Notifier delivers the fire-and-forget new-order event to the vendor
// channel. Failures are logged and never block or fail the order.
type Notifier interface {
	OrderCreated(ctx context.Context, orderID, vendorID string) error
}
