package checkout

import (
	"github.com/shopspring/decimal"

	"github.com/tianguis/checkout/internal/domain/pricing"
)

// Gateway line titles for the fee lines appended after the cart items.
const (
	titleDelivery   = "Envío"
	titleCourier    = "Courier externo"
	titleTip        = "Propina"
	titleAdjustment = "Ajuste de redondeo"
)

// GatewayItems rebuilds the per-item prices for the payment gateway so that
// they sum exactly to the already-computed order total. Each cart item's
// price is proportionally discounted by the coupon ratio, fees (delivery,
// courier, tip) become their own lines, and the residual penny from rounding
// is folded into the last line.
func GatewayItems(items []CartItem, q pricing.Quote) []GatewayItem {
	ratio := decimal.NewFromInt(1)
	if q.Subtotal.IsPositive() && q.Discount.IsPositive() {
		ratio = q.SubtotalAfterDiscount.Div(q.Subtotal)
	}

	out := make([]GatewayItem, 0, len(items)+3)
	for _, it := range items {
		title := it.Name
		if title == "" {
			title = it.ProductID
		}
		out = append(out, GatewayItem{
			Title:     title,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: effectivePrice(it).Mul(ratio).Round(2),
		})
	}
	if q.DeliveryCost.IsPositive() {
		out = append(out, GatewayItem{Title: titleDelivery, Quantity: 1, UnitPrice: q.DeliveryCost})
	}
	if q.CourierCost.IsPositive() {
		out = append(out, GatewayItem{Title: titleCourier, Quantity: 1, UnitPrice: q.CourierCost})
	}
	if q.Tip.IsPositive() {
		out = append(out, GatewayItem{Title: titleTip, Quantity: 1, UnitPrice: q.Tip})
	}
	if len(out) == 0 {
		return out
	}

	sum := decimal.Zero
	for _, gi := range out {
		sum = sum.Add(gi.UnitPrice.Mul(decimal.NewFromInt(int64(gi.Quantity))))
	}
	diff := q.Total.Sub(sum)
	if diff.IsZero() {
		return out
	}

	// Fold the rounding residual into the last line. A line with quantity 1
	// absorbs it directly; otherwise a dedicated adjustment line keeps the
	// arithmetic exact.
	last := &out[len(out)-1]
	if last.Quantity == 1 {
		last.UnitPrice = last.UnitPrice.Add(diff)
		return out
	}
	return append(out, GatewayItem{Title: titleAdjustment, Quantity: 1, UnitPrice: diff})
}
