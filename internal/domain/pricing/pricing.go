// Package pricing implements the checkout price calculator. Calculate is a
// pure function: it never mutates its inputs and the same inputs always
// produce the same quote, which is used for display, for the persisted order,
// and for payment-gateway line-item reconstruction.
package pricing

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/coupon"
	"github.com/tianguis/checkout/internal/domain/fulfillment"
)

var hundred = decimal.NewFromInt(100)

// CommissionRate is the marketplace's fixed share of every order total.
// Vendor earnings are the remainder, so commission + earnings == total.
var CommissionRate = decimal.NewFromFloat(0.15)

// Variant is an optional product variant chosen for a line item. A variant
// price, when present, replaces the base unit price.
type Variant struct {
	Name  string
	Price decimal.Decimal
}

// LineItem is one cart line as the calculator sees it.
type LineItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
	Variant   *Variant
}

// EffectivePrice returns the unit price actually charged for the line.
func (li LineItem) EffectivePrice() decimal.Decimal {
	if li.Variant != nil {
		return li.Variant.Price
	}
	return li.UnitPrice
}

// TipKind selects how the tip input is interpreted.
type TipKind string

const (
	TipNone       TipKind = ""
	TipPercentage TipKind = "percentage"
	TipCustom     TipKind = "custom"
)

// Tip is the customer's tip input. The percentage base is the post-discount
// subtotal plus delivery cost.
type Tip struct {
	Kind    TipKind
	Percent decimal.Decimal
	Amount  decimal.Decimal
}

// VendorTerms is the slice of vendor configuration pricing depends on.
type VendorTerms struct {
	FreeShippingThreshold decimal.Decimal
	CourierCost           decimal.Decimal
	CourierCostIncluded   bool
}

// Input collects everything the calculator needs for one quote.
type Input struct {
	Items       []LineItem
	Coupon      *coupon.Coupon
	Fulfillment fulfillment.Selection
	Tip         Tip
	Vendor      VendorTerms
}

// Quote is the full price breakdown for one checkout state.
type Quote struct {
	Subtotal              decimal.Decimal
	Discount              decimal.Decimal
	SubtotalAfterDiscount decimal.Decimal
	FreeShipping          bool
	DeliveryCost          decimal.Decimal
	CourierCost           decimal.Decimal
	Tip                   decimal.Decimal
	Total                 decimal.Decimal
	Commission            decimal.Decimal
	VendorEarnings        decimal.Decimal
	// FreeProductID is set when the coupon grants a product instead of a
	// monetary discount.
	FreeProductID string
}

// Calculate produces the quote for the given input. It returns an error only
// for a coupon type outside the closed set; every supported combination of
// fulfillment and coupon yields a quote satisfying
// total = (subtotal - discount) + deliveryCost + courierCost + tip.
func Calculate(in Input) (Quote, error) {
	var q Quote

	q.Subtotal = decimal.Zero
	for _, li := range in.Items {
		line := li.EffectivePrice().Mul(decimal.NewFromInt(int64(li.Quantity)))
		q.Subtotal = q.Subtotal.Add(line)
	}

	discount, freeProductID, err := applyCoupon(in.Coupon, q.Subtotal)
	if err != nil {
		return Quote{}, err
	}
	q.Discount = discount.Round(2)
	q.FreeProductID = freeProductID
	q.SubtotalAfterDiscount = q.Subtotal.Sub(q.Discount)

	q.FreeShipping = isFreeShipping(in.Coupon, q.SubtotalAfterDiscount, in.Vendor.FreeShippingThreshold)

	q.DeliveryCost = decimal.Zero
	if in.Fulfillment.Type == fulfillment.TypeDelivery && !q.FreeShipping {
		if opt := in.Fulfillment.DeliveryOption; opt != nil {
			q.DeliveryCost = opt.Price
		}
	}

	q.CourierCost = decimal.Zero
	if in.Fulfillment.Type == fulfillment.TypeCourierExterno && !in.Vendor.CourierCostIncluded {
		q.CourierCost = in.Vendor.CourierCost
	}

	q.Tip = tipAmount(in.Tip, q.SubtotalAfterDiscount.Add(q.DeliveryCost))

	q.Total = q.SubtotalAfterDiscount.
		Add(q.DeliveryCost).
		Add(q.CourierCost).
		Add(q.Tip).
		Round(2)

	q.Commission = q.Total.Mul(CommissionRate).Round(2)
	q.VendorEarnings = q.Total.Sub(q.Commission)

	return q, nil
}

// applyCoupon computes the monetary discount for the coupon. Matching is
// exhaustive over the closed type set so a future coupon type cannot silently
// fall through to a zero discount.
func applyCoupon(c *coupon.Coupon, subtotal decimal.Decimal) (decimal.Decimal, string, error) {
	if c == nil {
		return decimal.Zero, "", nil
	}
	switch c.Type {
	case coupon.TypePercentage:
		amount := subtotal.Mul(c.DiscountValue).Div(hundred)
		if c.MaxDiscount != nil && amount.GreaterThan(*c.MaxDiscount) {
			amount = *c.MaxDiscount
		}
		return clamp(amount, subtotal), "", nil
	case coupon.TypeFixedAmount:
		return clamp(decimal.Min(c.DiscountValue, subtotal), subtotal), "", nil
	case coupon.TypeFreeShipping, coupon.TypeGift:
		return decimal.Zero, "", nil
	case coupon.TypeFreeProduct:
		id := ""
		if c.FreeProductID != nil {
			id = *c.FreeProductID
		}
		return decimal.Zero, id, nil
	default:
		return decimal.Zero, "", errors.Errorf("unsupported coupon type: %q", c.Type)
	}
}

// isFreeShipping reports whether delivery cost is waived: either the coupon
// is a free-shipping coupon or the post-discount subtotal reaches the
// vendor's threshold.
func isFreeShipping(c *coupon.Coupon, afterDiscount, threshold decimal.Decimal) bool {
	if c != nil && c.Type == coupon.TypeFreeShipping {
		return true
	}
	return threshold.IsPositive() && afterDiscount.GreaterThanOrEqual(threshold)
}

func tipAmount(t Tip, base decimal.Decimal) decimal.Decimal {
	switch t.Kind {
	case TipPercentage:
		return base.Mul(t.Percent).Div(hundred).Round(2)
	case TipCustom:
		return floorAtZero(t.Amount).Round(2)
	default:
		return decimal.Zero
	}
}

// clamp bounds amount to [0, max].
func clamp(amount, max decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(max) {
		return max
	}
	return amount
}

// floorAtZero clamps negative values to zero.
func floorAtZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
