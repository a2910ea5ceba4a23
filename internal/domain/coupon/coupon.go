// Package coupon defines the normalized coupon descriptor produced by the
// external validation service and the discrete reasons a code can be refused.
package coupon

import (
	"context"

	"github.com/shopspring/decimal"
)

// Type enumerates the closed set of supported coupon kinds. Discount math in
// the pricing package switches exhaustively over this set: an unknown type is
// an error, never a silent zero discount.
type Type string

const (
	// TypePercentage discounts the subtotal by a percentage, optionally
	// clamped to a maximum amount.
	TypePercentage Type = "percentage"
	// TypeFixedAmount discounts a fixed amount, capped at the subtotal.
	TypeFixedAmount Type = "fixed_amount"
	// TypeFreeShipping waives the delivery cost; monetary discount is zero.
	TypeFreeShipping Type = "free_shipping"
	// TypeFreeProduct grants a product at no charge; monetary discount is zero.
	TypeFreeProduct Type = "free_product"
	// TypeGift attaches a gift to the order; monetary discount is zero.
	TypeGift Type = "gift"
)

// Coupon is the normalized descriptor for a validated coupon. At most one
// coupon is active per checkout; the engine treats it as read-only.
type Coupon struct {
	Code          string
	Type          Type
	DiscountValue decimal.Decimal
	MinPurchase   decimal.Decimal
	MaxDiscount   *decimal.Decimal
	FreeProductID *string
}

// RejectReason is a discrete reason the validation service refused a code.
type RejectReason string

const (
	ReasonNotFound      RejectReason = "not_found"
	ReasonExpired       RejectReason = "expired"
	ReasonLimitReached  RejectReason = "limit_reached"
	ReasonMinNotMet     RejectReason = "min_not_met"
	ReasonNotApplicable RejectReason = "not_applicable"
	ReasonRestricted    RejectReason = "restricted"
)

// RejectionError reports that a code was refused and why. It is a normal,
// user-visible outcome: callers surface the reason inline and leave the
// checkout without a coupon.
type RejectionError struct {
	Code   string
	Reason RejectReason
}

func (e *RejectionError) Error() string {
	return "coupon " + e.Code + " rejected: " + string(e.Reason)
}

// Request is the context the validation service needs to judge a code.
type Request struct {
	Code     string
	UserID   *string
	VendorID string
	Subtotal decimal.Decimal
}

// Validator submits a candidate code to the validation service and returns
// the normalized descriptor, a *RejectionError, or a transport error.
type Validator interface {
	Validate(ctx context.Context, req Request) (*Coupon, error)
}
