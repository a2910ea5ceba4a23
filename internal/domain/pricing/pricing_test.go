package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianguis/checkout/internal/domain/coupon"
	"github.com/tianguis/checkout/internal/domain/fulfillment"
)

func d(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func items(prices ...float64) []LineItem {
	out := make([]LineItem, len(prices))
	for i, p := range prices {
		out[i] = LineItem{ProductID: "p", Quantity: 1, UnitPrice: d(p)}
	}
	return out
}

func defaultTerms() VendorTerms {
	return VendorTerms{FreeShippingThreshold: d(800)}
}

func TestCalculate_PercentageCouponCapped(t *testing.T) {
	// Subtotal 1000, 10% off capped at 80: discount 80, after-discount 920
	// crosses the 800 threshold so the 150 tier is waived; 10% tip of 920.
	cap := d(80)
	tier := fulfillment.DeliveryOption{ID: "std", Price: d(150)}

	q, err := Calculate(Input{
		Items: items(1000),
		Coupon: &coupon.Coupon{
			Code:          "DIEZ",
			Type:          coupon.TypePercentage,
			DiscountValue: d(10),
			MaxDiscount:   &cap,
		},
		Fulfillment: fulfillment.Selection{Type: fulfillment.TypeDelivery, DeliveryOption: &tier},
		Tip:         Tip{Kind: TipPercentage, Percent: d(10)},
		Vendor:      defaultTerms(),
	})
	require.NoError(t, err)

	assert.True(t, q.Discount.Equal(d(80)), "discount = %s", q.Discount)
	assert.True(t, q.FreeShipping)
	assert.True(t, q.DeliveryCost.IsZero(), "deliveryCost = %s", q.DeliveryCost)
	assert.True(t, q.Tip.Equal(d(92)), "tip = %s", q.Tip)
	assert.True(t, q.Total.Equal(d(1012)), "total = %s", q.Total)
}

func TestCalculate_DeliveryBelowThreshold(t *testing.T) {
	// Subtotal 500 < 800: the 80 tier is charged.
	tier := fulfillment.DeliveryOption{ID: "std", Price: d(80)}

	q, err := Calculate(Input{
		Items:       items(500),
		Fulfillment: fulfillment.Selection{Type: fulfillment.TypeDelivery, DeliveryOption: &tier},
		Vendor:      defaultTerms(),
	})
	require.NoError(t, err)

	assert.False(t, q.FreeShipping)
	assert.True(t, q.DeliveryCost.Equal(d(80)))
	assert.True(t, q.Total.Equal(d(580)), "total = %s", q.Total)
}

func TestCalculate_CourierExterno(t *testing.T) {
	q, err := Calculate(Input{
		Items:       items(500),
		Fulfillment: fulfillment.Selection{Type: fulfillment.TypeCourierExterno},
		Vendor: VendorTerms{
			FreeShippingThreshold: d(800),
			CourierCost:           d(60),
		},
	})
	require.NoError(t, err)

	assert.True(t, q.DeliveryCost.IsZero(), "courier replaces standard delivery")
	assert.True(t, q.CourierCost.Equal(d(60)))
	assert.True(t, q.Total.Equal(d(560)), "total = %s", q.Total)
}

func TestCalculate_CourierCostIncluded(t *testing.T) {
	q, err := Calculate(Input{
		Items:       items(500),
		Fulfillment: fulfillment.Selection{Type: fulfillment.TypeCourierExterno},
		Vendor: VendorTerms{
			FreeShippingThreshold: d(800),
			CourierCost:           d(60),
			CourierCostIncluded:   true,
		},
	})
	require.NoError(t, err)
	assert.True(t, q.CourierCost.IsZero())
	assert.True(t, q.Total.Equal(d(500)))
}

func TestCalculate_CouponTypes(t *testing.T) {
	freeProduct := "promo-1"

	tests := []struct {
		name         string
		coupon       *coupon.Coupon
		wantDiscount decimal.Decimal
		wantFreeShip bool
		wantFreeProd string
	}{
		{
			name:         "no coupon",
			wantDiscount: decimal.Zero,
		},
		{
			name: "percentage uncapped",
			coupon: &coupon.Coupon{
				Type:          coupon.TypePercentage,
				DiscountValue: d(25),
			},
			wantDiscount: d(125),
		},
		{
			name: "fixed amount below subtotal",
			coupon: &coupon.Coupon{
				Type:          coupon.TypeFixedAmount,
				DiscountValue: d(50),
			},
			wantDiscount: d(50),
		},
		{
			name: "fixed amount above subtotal is clamped",
			coupon: &coupon.Coupon{
				Type:          coupon.TypeFixedAmount,
				DiscountValue: d(9000),
			},
			wantDiscount: d(500),
		},
		{
			name:         "free shipping has zero monetary discount",
			coupon:       &coupon.Coupon{Type: coupon.TypeFreeShipping},
			wantDiscount: decimal.Zero,
			wantFreeShip: true,
		},
		{
			name: "free product passes the product id through",
			coupon: &coupon.Coupon{
				Type:          coupon.TypeFreeProduct,
				FreeProductID: &freeProduct,
			},
			wantDiscount: decimal.Zero,
			wantFreeProd: "promo-1",
		},
		{
			name:         "gift has zero monetary discount",
			coupon:       &coupon.Coupon{Type: coupon.TypeGift},
			wantDiscount: decimal.Zero,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Calculate(Input{
				Items:  items(500),
				Coupon: tt.coupon,
				Vendor: defaultTerms(),
			})
			require.NoError(t, err)

			assert.True(t, q.Discount.Equal(tt.wantDiscount),
				"discount = %s, want %s", q.Discount, tt.wantDiscount)
			assert.Equal(t, tt.wantFreeShip, q.FreeShipping)
			assert.Equal(t, tt.wantFreeProd, q.FreeProductID)
			assert.True(t, q.Discount.GreaterThanOrEqual(decimal.Zero))
			assert.True(t, q.Discount.LessThanOrEqual(q.Subtotal))
		})
	}
}

func TestCalculate_UnknownCouponType(t *testing.T) {
	_, err := Calculate(Input{
		Items:  items(100),
		Coupon: &coupon.Coupon{Type: coupon.Type("mystery")},
		Vendor: defaultTerms(),
	})
	require.Error(t, err)
}

func TestCalculate_TotalIdentity(t *testing.T) {
	// total == (subtotal - discount) + delivery + courier + tip across
	// fulfillment/coupon combinations.
	tier := fulfillment.DeliveryOption{ID: "exp", Price: d(120)}
	coupons := []*coupon.Coupon{
		nil,
		{Type: coupon.TypePercentage, DiscountValue: d(15)},
		{Type: coupon.TypeFixedAmount, DiscountValue: d(40)},
		{Type: coupon.TypeFreeShipping},
		{Type: coupon.TypeGift},
	}
	selections := []fulfillment.Selection{
		{Type: fulfillment.TypePickup},
		{Type: fulfillment.TypeDelivery, DeliveryOption: &tier},
		{Type: fulfillment.TypeMeetupPoint, MeetupPointID: "mp-1"},
		{Type: fulfillment.TypeCourierExterno},
	}

	for _, cp := range coupons {
		for _, sel := range selections {
			q, err := Calculate(Input{
				Items:       items(300, 150.50),
				Coupon:      cp,
				Fulfillment: sel,
				Tip:         Tip{Kind: TipCustom, Amount: d(25)},
				Vendor: VendorTerms{
					FreeShippingThreshold: d(800),
					CourierCost:           d(60),
				},
			})
			require.NoError(t, err)

			want := q.Subtotal.Sub(q.Discount).
				Add(q.DeliveryCost).Add(q.CourierCost).Add(q.Tip)
			assert.True(t, q.Total.Equal(want.Round(2)),
				"total = %s, want %s (coupon=%v sel=%s)", q.Total, want, cp, sel.Type)
		}
	}
}

func TestCalculate_CommissionSplit(t *testing.T) {
	q, err := Calculate(Input{Items: items(1000), Vendor: defaultTerms()})
	require.NoError(t, err)

	assert.True(t, q.Commission.Add(q.VendorEarnings).Equal(q.Total),
		"commission %s + earnings %s != total %s", q.Commission, q.VendorEarnings, q.Total)
	assert.True(t, q.Commission.Equal(q.Total.Mul(CommissionRate).Round(2)))
}

func TestCalculate_VariantPriceWins(t *testing.T) {
	q, err := Calculate(Input{
		Items: []LineItem{{
			ProductID: "p1",
			Quantity:  2,
			UnitPrice: d(100),
			Variant:   &Variant{Name: "grande", Price: d(120)},
		}},
		Vendor: defaultTerms(),
	})
	require.NoError(t, err)
	assert.True(t, q.Subtotal.Equal(d(240)), "subtotal = %s", q.Subtotal)
}

func TestCalculate_DoesNotMutateInputs(t *testing.T) {
	in := Input{
		Items:  items(100, 200),
		Coupon: &coupon.Coupon{Type: coupon.TypePercentage, DiscountValue: d(10)},
		Vendor: defaultTerms(),
	}
	first, err := Calculate(in)
	require.NoError(t, err)
	second, err := Calculate(in)
	require.NoError(t, err)

	assert.True(t, first.Total.Equal(second.Total))
	assert.True(t, in.Items[0].UnitPrice.Equal(d(100)))
}
