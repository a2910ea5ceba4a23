package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tianguis/checkout/internal/domain/coupon"
	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/identity"
	"github.com/tianguis/checkout/internal/domain/order"
	"github.com/tianguis/checkout/internal/domain/pricing"
	"github.com/tianguis/checkout/internal/domain/servicearea"
	"github.com/tianguis/checkout/internal/domain/vendor"
)

// AnonymousUser is the user reference persisted for guest orders, so even the
// minimal payload rung carries a non-null user reference.
const AnonymousUser = "anonymous"

// promoVariant labels the synthetic zero-price promotional line item.
const promoVariant = "first_order_promo"

// Composer sequences one checkout attempt end to end.
type Composer struct {
	vendors  vendor.Repository
	coupons  coupon.Validator
	resolver *identity.Resolver
	accounts identity.Accounts
	orders   order.Repository
	gateway  PaymentGateway
	notifier Notifier
}

// NewComposer wires the composer with its collaborators.
func NewComposer(
	vendors vendor.Repository,
	coupons coupon.Validator,
	resolver *identity.Resolver,
	accounts identity.Accounts,
	orders order.Repository,
	gateway PaymentGateway,
	notifier Notifier,
) *Composer {
	return &Composer{
		vendors:  vendors,
		coupons:  coupons,
		resolver: resolver,
		accounts: accounts,
		orders:   orders,
		gateway:  gateway,
		notifier: notifier,
	}
}

// Submit runs the composer state machine:
//
//	Validating -> ResolvingIdentity -> GatingServiceArea -> Pricing ->
//	PersistingOrder -> PersistingLineItems -> (PaymentHandoff | Completed)
//
// Validation, coupon, and service-area failures return before persistence is
// touched. Persistence schema drift is retried down the payload ladder and
// only surfaces once exhausted. A payment-gateway failure returns a
// *PaymentError carrying the persisted (unpaid) order id.
func (c *Composer) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	lg := zctx.From(ctx)

	if req.IdempotencyKey != "" {
		if res, ok := c.replay(ctx, req.IdempotencyKey); ok {
			return res, nil
		}
	}

	// Validating.
	v, err := c.vendors.GetByID(ctx, req.VendorID)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	cp, err := c.validateCoupon(ctx, req, v)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}
	sel, err := c.validate(req, v, cp)
	if err != nil {
		return nil, stageErr(StageValidating, err)
	}

	// ResolvingIdentity. The resolver degrades to guest on registration
	// races instead of failing the order.
	resolved, err := c.resolver.Settle(ctx, req.Guest)
	if err != nil {
		return nil, stageErr(StageResolvingIdentity, err)
	}
	c.saveAddress(ctx, resolved, req.Address)

	// GatingServiceArea. Runs after identity resolution so the zip can come
	// from either a saved address or the guest-entered one.
	if zip := customerZip(resolved, req.Address); zip != "" {
		if err := servicearea.Check(v, zip); err != nil {
			return nil, stageErr(StageGatingServiceArea, err)
		}
	}

	// Pricing (final).
	quote, err := pricing.Calculate(pricing.Input{
		Items:       pricingItems(req.Items),
		Coupon:      cp,
		Fulfillment: sel,
		Tip:         req.Tip,
		Vendor: pricing.VendorTerms{
			FreeShippingThreshold: v.Threshold(),
			CourierCost:           v.CourierCost,
			CourierCostIncluded:   v.CourierCostIncluded,
		},
	})
	if err != nil {
		return nil, stageErr(StagePricing, err)
	}

	// PersistingOrder, down the degrade ladder.
	o := c.buildOrder(req, resolved, sel, quote)
	orderID, err := c.persistOrder(ctx, o)
	if err != nil {
		if errors.Is(err, order.ErrDuplicateKey) && req.IdempotencyKey != "" {
			if res, ok := c.replay(ctx, req.IdempotencyKey); ok {
				return res, nil
			}
		}
		return nil, stageErr(StagePersistingOrder, err)
	}
	o.ID = orderID

	// PersistingLineItems. Requires the order id from the prior stage.
	if err := c.persistLineItems(ctx, o, req.Items, resolved, quote); err != nil {
		return nil, stageErr(StagePersistingLineItems, err)
	}

	// Vendor notification: fire-and-forget, never blocks the order.
	c.notify(ctx, o)

	res := &SubmitResult{
		Order:      o,
		Quote:      quote,
		Stage:      StageCompleted,
		EmailTaken: resolved.EmailTaken,
	}
	if !req.PaymentMethod.Online() {
		return res, nil
	}

	// PaymentHandoff. The order stays unpaid until the out-of-band
	// confirmation regardless of what happens here.
	pref, err := c.gateway.CreatePreference(ctx, PreferenceRequest{
		OrderID: o.ID,
		Items:   GatewayItems(req.Items, quote),
		Payer:   payerFor(resolved, req.Guest),
	})
	if err != nil {
		lg.Error("payment preference creation failed",
			zap.String("order_id", o.ID), zap.Error(err))
		return nil, stageErr(StagePaymentHandoff, &PaymentError{OrderID: o.ID, Err: err})
	}
	res.Stage = StagePaymentHandoff
	res.RedirectURL = pref.RedirectURL
	return res, nil
}

// Quote prices a cart without creating anything: vendor and coupon are
// validated, the fulfillment selection is settled, and the breakdown is
// returned. The service-area gate and persistence are not touched; identity
// is read-only (coupon validation sees an existing session, nothing more).
func (c *Composer) Quote(ctx context.Context, req SubmitRequest) (pricing.Quote, error) {
	v, err := c.vendors.GetByID(ctx, req.VendorID)
	if err != nil {
		return pricing.Quote{}, stageErr(StageValidating, err)
	}
	cp, err := c.validateCoupon(ctx, req, v)
	if err != nil {
		return pricing.Quote{}, stageErr(StageValidating, err)
	}

	// Quoting settles the fulfillment choice against the vendor's
	// capabilities but does not require an address yet.
	m := fulfillment.NewMachine(v.Capabilities())
	if err := m.Select(req.Fulfillment.Type); err != nil {
		return pricing.Quote{}, stageErr(StageValidating, &ValidationError{Field: "fulfillment", Msg: err.Error()})
	}
	if req.Fulfillment.DeliveryOptionID != "" {
		if err := m.ChooseDeliveryOption(req.Fulfillment.DeliveryOptionID); err != nil {
			return pricing.Quote{}, stageErr(StageValidating, &ValidationError{Field: "fulfillment", Msg: err.Error()})
		}
	}
	if req.Fulfillment.MeetupPointID != "" {
		if err := m.ChooseMeetupPoint(req.Fulfillment.MeetupPointID); err != nil {
			return pricing.Quote{}, stageErr(StageValidating, &ValidationError{Field: "fulfillment", Msg: err.Error()})
		}
	}
	sel, err := m.Selection(freeShippingLikely(req.Items, cp, v))
	if err != nil {
		return pricing.Quote{}, stageErr(StageValidating, &ValidationError{Field: "fulfillment", Msg: err.Error()})
	}

	q, err := pricing.Calculate(pricing.Input{
		Items:       pricingItems(req.Items),
		Coupon:      cp,
		Fulfillment: sel,
		Tip:         req.Tip,
		Vendor: pricing.VendorTerms{
			FreeShippingThreshold: v.Threshold(),
			CourierCost:           v.CourierCost,
			CourierCostIncluded:   v.CourierCostIncluded,
		},
	})
	if err != nil {
		return pricing.Quote{}, stageErr(StagePricing, err)
	}
	return q, nil
}

// validateCoupon resolves the coupon code, when present, against the
// validation service. Member-restricted coupons need the authenticated user
// id, so an already-established session is peeked here; registration side
// effects stay with the resolver. A rejection fails fast with the discrete
// reason.
func (c *Composer) validateCoupon(ctx context.Context, req SubmitRequest, v *vendor.Profile) (*coupon.Coupon, error) {
	if req.CouponCode == "" {
		return nil, nil
	}
	subtotal := decimal.Zero
	for _, it := range req.Items {
		subtotal = subtotal.Add(effectivePrice(it).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	creq := coupon.Request{
		Code:     req.CouponCode,
		UserID:   c.sessionUser(ctx),
		VendorID: v.ID,
		Subtotal: subtotal,
	}
	return c.coupons.Validate(ctx, creq)
}

// sessionUser returns the user id of an existing session, or nil. Any lookup
// failure is treated as no session.
func (c *Composer) sessionUser(ctx context.Context) *string {
	s, err := c.accounts.CurrentSession(ctx)
	if err != nil || s == nil {
		return nil
	}
	return &s.UserID
}

// validate runs the required-field checks for the chosen fulfillment type and
// settles the fulfillment selection against the vendor's capabilities.
func (c *Composer) validate(req SubmitRequest, v *vendor.Profile, cp *coupon.Coupon) (fulfillment.Selection, error) {
	if len(req.Items) == 0 {
		return fulfillment.Selection{}, &ValidationError{Field: "items", Msg: "at least one item required"}
	}
	for _, it := range req.Items {
		if it.Quantity < 1 {
			return fulfillment.Selection{}, &ValidationError{Field: "items", Msg: "quantity must be at least 1"}
		}
		if effectivePrice(it).IsNegative() {
			return fulfillment.Selection{}, &ValidationError{Field: "items", Msg: "unit price must not be negative"}
		}
	}

	m := fulfillment.NewMachine(v.Capabilities())
	if err := m.Select(req.Fulfillment.Type); err != nil {
		return fulfillment.Selection{}, &ValidationError{Field: "fulfillment", Msg: err.Error()}
	}
	if req.Fulfillment.DeliveryOptionID != "" {
		if err := m.ChooseDeliveryOption(req.Fulfillment.DeliveryOptionID); err != nil {
			return fulfillment.Selection{}, &ValidationError{Field: "fulfillment", Msg: err.Error()}
		}
	}
	if req.Fulfillment.MeetupPointID != "" {
		if err := m.ChooseMeetupPoint(req.Fulfillment.MeetupPointID); err != nil {
			return fulfillment.Selection{}, &ValidationError{Field: "fulfillment", Msg: err.Error()}
		}
	}

	// The delivery tier requirement is relaxed when shipping will be free;
	// that depends only on coupon type and the pre-selection subtotal.
	sel, err := m.Selection(freeShippingLikely(req.Items, cp, v))
	if err != nil {
		return fulfillment.Selection{}, &ValidationError{Field: "fulfillment", Msg: err.Error()}
	}

	// Address is required only for delivery and external courier.
	if sel.Type == fulfillment.TypeDelivery || sel.Type == fulfillment.TypeCourierExterno {
		if req.Address == nil || req.Address.Zip == "" {
			return fulfillment.Selection{}, &ValidationError{Field: "address", Msg: "delivery address with zip required"}
		}
	}
	return sel, nil
}

// freeShippingLikely evaluates the free-shipping rule on the pre-fee numbers,
// which is all it depends on.
func freeShippingLikely(items []CartItem, cp *coupon.Coupon, v *vendor.Profile) bool {
	if cp != nil && cp.Type == coupon.TypeFreeShipping {
		return true
	}
	subtotal := decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(effectivePrice(it).Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	q, err := pricing.Calculate(pricing.Input{Items: pricingItems(items), Coupon: cp})
	if err != nil {
		return false
	}
	return q.SubtotalAfterDiscount.GreaterThanOrEqual(v.Threshold())
}

// saveAddress persists a manually entered address as the account default for
// a pre-existing authenticated identity. A just-auto-registered identity is
// skipped: its session may not be ready for writes. Failures are logged only.
func (c *Composer) saveAddress(ctx context.Context, resolved identity.Resolved, addr *identity.Address) {
	if resolved.Kind != identity.KindAuthenticated || resolved.JustRegistered || addr == nil {
		return
	}
	a := *addr
	a.IsDefault = true
	if err := c.accounts.SaveDefaultAddress(ctx, resolved.UserID, a); err != nil {
		zctx.From(ctx).Warn("saving default address failed",
			zap.String("user_id", resolved.UserID), zap.Error(err))
	}
}

// customerZip picks the zone to gate on: the entered address wins, then the
// saved address of an authenticated customer.
func customerZip(resolved identity.Resolved, addr *identity.Address) string {
	if addr != nil && addr.Zip != "" {
		return addr.Zip
	}
	return resolved.SavedAddressZip
}

func (c *Composer) buildOrder(req SubmitRequest, resolved identity.Resolved, sel fulfillment.Selection, q pricing.Quote) *order.Order {
	o := &order.Order{
		ID:              uuid.New().String(),
		VendorID:        req.VendorID,
		UserID:          AnonymousUser,
		Total:           q.Total,
		PaymentMethod:   req.PaymentMethod,
		Status:          order.StatusPending,
		IsPaid:          false,
		Commission:      q.Commission,
		VendorEarnings:  q.VendorEarnings,
		FulfillmentType: sel.Type,
		DeliveryCost:    q.DeliveryCost,
		CourierCost:     q.CourierCost,
		TipAmount:       q.Tip,
	}
	if resolved.UserID != "" {
		o.UserID = resolved.UserID
	}
	if resolved.Kind == identity.KindAuthenticated && resolved.SavedAddressID != "" {
		ref := resolved.SavedAddressID
		o.AddressRef = &ref
	}
	if sel.DeliveryOption != nil {
		o.DeliveryOption = sel.DeliveryOption.ID
	}
	if resolved.Kind == identity.KindGuest && resolved.Guest != nil {
		o.GuestContact = &order.GuestContact{
			Email: resolved.Guest.Email,
			Name:  resolved.Guest.Name,
			Phone: resolved.Guest.Phone,
		}
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		o.IdempotencyKey = &key
	}
	return o
}

// persistOrder walks the payload ladder: each unknown-column rejection logs a
// warning and retries the next, smaller shape. Only total exhaustion surfaces
// an error.
func (c *Composer) persistOrder(ctx context.Context, o *order.Order) (string, error) {
	lg := zctx.From(ctx)

	var lastErr error
	for _, shape := range order.Ladder() {
		id, err := c.orders.Insert(ctx, o, shape)
		if err == nil {
			if shape != order.ShapeFull {
				lg.Warn("order persisted with degraded payload",
					zap.Stringer("shape", shape))
			}
			return id, nil
		}
		if !errors.Is(err, order.ErrUnknownColumn) {
			return "", err
		}
		lg.Warn("order payload rejected, degrading",
			zap.Stringer("shape", shape), zap.Error(err))
		lastErr = err
	}
	return "", errors.Wrap(lastErr, "payload ladder exhausted")
}

// persistLineItems maps cart items 1:1 onto line items, appends the coupon's
// free product and the first-order promotional item when applicable, and
// tolerates stores that reject the promotional item's null product ref.
func (c *Composer) persistLineItems(ctx context.Context, o *order.Order, items []CartItem, resolved identity.Resolved, q pricing.Quote) error {
	lg := zctx.From(ctx)

	lines := make([]order.LineItem, 0, len(items)+2)
	for _, it := range items {
		id := it.ProductID
		li := order.LineItem{
			OrderID:   o.ID,
			ProductID: &id,
			Quantity:  it.Quantity,
			Price:     effectivePrice(it),
		}
		if it.Variant != nil {
			name := it.Variant.Name
			li.Variant = &name
		}
		lines = append(lines, li)
	}
	if q.FreeProductID != "" {
		id := q.FreeProductID
		lines = append(lines, order.LineItem{
			OrderID:   o.ID,
			ProductID: &id,
			Quantity:  1,
			Price:     decimal.Zero,
		})
	}

	promo := c.promoItem(ctx, o, resolved)
	if promo == nil {
		return c.orders.InsertLineItems(ctx, o.ID, lines)
	}

	err := c.orders.InsertLineItems(ctx, o.ID, append(lines, *promo))
	if err == nil {
		return nil
	}
	if !errors.Is(err, order.ErrNullViolation) {
		return err
	}

	// The store rejects the promotional item's null product ref: insert the
	// ordinary items first, then best-effort the promo and swallow its
	// specific failure.
	if err := c.orders.InsertLineItems(ctx, o.ID, lines); err != nil {
		return err
	}
	if err := c.orders.InsertLineItem(ctx, o.ID, *promo); err != nil {
		lg.Warn("promotional line item dropped", zap.String("order_id", o.ID), zap.Error(err))
	}
	return nil
}

// promoItem returns the synthetic zero-price promotional item for first-time
// authenticated customers, or nil. Eligibility is zero prior orders for this
// identity; a failed count skips the promo rather than failing the order.
func (c *Composer) promoItem(ctx context.Context, o *order.Order, resolved identity.Resolved) *order.LineItem {
	if resolved.Kind != identity.KindAuthenticated {
		return nil
	}
	n, err := c.orders.CountByUser(ctx, resolved.UserID)
	if err != nil {
		zctx.From(ctx).Warn("order count lookup failed, skipping promo", zap.Error(err))
		return nil
	}
	if n != 0 {
		return nil
	}
	variant := promoVariant
	return &order.LineItem{
		OrderID:  o.ID,
		Quantity: 1,
		Price:    decimal.Zero,
		Variant:  &variant,
	}
}

// notify emits the new-order event on a detached context so it outlives the
// request. Delivery failure is logged and never fails the order.
func (c *Composer) notify(ctx context.Context, o *order.Order) {
	if c.notifier == nil {
		return
	}
	lg := zctx.From(ctx)
	bg := context.WithoutCancel(ctx)
	go func() {
		if err := c.notifier.OrderCreated(bg, o.ID, o.VendorID); err != nil {
			lg.Warn("vendor notification failed",
				zap.String("order_id", o.ID), zap.Error(err))
		}
	}()
}

// replay loads the order previously created for the idempotency key. An
// online order that is still unpaid gets a fresh payment preference, so a
// client retrying a dropped response does not lose the redirect. A gateway
// failure here degrades to the plain replay instead of failing it.
func (c *Composer) replay(ctx context.Context, key string) (*SubmitResult, bool) {
	existing, err := c.orders.GetByIdempotencyKey(ctx, key)
	if err != nil {
		if !errors.Is(err, order.ErrNotFound) {
			zctx.From(ctx).Warn("idempotency lookup failed", zap.Error(err))
		}
		return nil, false
	}
	res := &SubmitResult{
		Order:    existing,
		Stage:    StageCompleted,
		Replayed: true,
	}
	if !existing.PaymentMethod.Online() || existing.IsPaid || c.gateway == nil {
		return res, true
	}
	pref, err := c.gateway.CreatePreference(ctx, PreferenceRequest{
		OrderID: existing.ID,
		Items: []GatewayItem{{
			Title:     "Pedido " + existing.ID,
			Quantity:  1,
			UnitPrice: existing.Total,
		}},
		Payer: replayPayer(existing),
	})
	if err != nil {
		zctx.From(ctx).Warn("payment preference for replayed order failed",
			zap.String("order_id", existing.ID), zap.Error(err))
		return res, true
	}
	res.Stage = StagePaymentHandoff
	res.RedirectURL = pref.RedirectURL
	return res, true
}

func replayPayer(o *order.Order) Payer {
	if o.GuestContact == nil {
		return Payer{}
	}
	return Payer{Email: o.GuestContact.Email, Name: o.GuestContact.Name, Phone: o.GuestContact.Phone}
}

func payerFor(resolved identity.Resolved, g identity.Guest) Payer {
	if resolved.Kind == identity.KindGuest && resolved.Guest != nil {
		return Payer{Email: resolved.Guest.Email, Name: resolved.Guest.Name, Phone: resolved.Guest.Phone}
	}
	return Payer{Email: g.Email, Name: g.Name, Phone: g.Phone}
}

func effectivePrice(it CartItem) decimal.Decimal {
	if it.Variant != nil {
		return it.Variant.Price
	}
	return it.UnitPrice
}

func pricingItems(items []CartItem) []pricing.LineItem {
	out := make([]pricing.LineItem, len(items))
	for i, it := range items {
		out[i] = pricing.LineItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Variant:   it.Variant,
		}
	}
	return out
}
