package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianguis/checkout/internal/domain/checkout"
	"github.com/tianguis/checkout/internal/domain/coupon"
	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/identity"
	"github.com/tianguis/checkout/internal/domain/order"
	"github.com/tianguis/checkout/internal/domain/vendor"
)

type mockVendorRepo struct {
	profile *vendor.Profile
}

func (m *mockVendorRepo) GetByID(_ context.Context, id string) (*vendor.Profile, error) {
	if m.profile == nil || m.profile.ID != id {
		return nil, vendor.ErrNotFound
	}
	return m.profile, nil
}

type mockCouponValidator struct {
	coupon *coupon.Coupon
	err    error
}

func (m *mockCouponValidator) Validate(context.Context, coupon.Request) (*coupon.Coupon, error) {
	return m.coupon, m.err
}

type mockAccounts struct{}

func (m *mockAccounts) CurrentSession(context.Context) (*identity.Session, error) {
	return nil, identity.ErrNoSession
}

func (m *mockAccounts) RegisterDeferred(context.Context, identity.Guest) error { return nil }

func (m *mockAccounts) SaveDefaultAddress(context.Context, string, identity.Address) error {
	return nil
}

type mockOrderRepo struct {
	inserted *order.Order
	existing *order.Order
}

func (m *mockOrderRepo) Insert(_ context.Context, o *order.Order, _ order.Shape) (string, error) {
	m.inserted = o
	return "order-1", nil
}

func (m *mockOrderRepo) InsertLineItems(context.Context, string, []order.LineItem) error {
	return nil
}

func (m *mockOrderRepo) InsertLineItem(context.Context, string, order.LineItem) error { return nil }

func (m *mockOrderRepo) CountByUser(context.Context, string) (int, error) { return 1, nil }

func (m *mockOrderRepo) GetByIdempotencyKey(context.Context, string) (*order.Order, error) {
	if m.existing == nil {
		return nil, order.ErrNotFound
	}
	return m.existing, nil
}

type mockGateway struct {
	pref *checkout.Preference
	err  error
}

func (m *mockGateway) CreatePreference(context.Context, checkout.PreferenceRequest) (*checkout.Preference, error) {
	return m.pref, m.err
}

func testProfile() *vendor.Profile {
	return &vendor.Profile{
		ID:    "vendor-1",
		Name:  "Tortas La Central",
		Modes: []fulfillment.Type{fulfillment.TypePickup, fulfillment.TypeDelivery},
		DeliveryOptions: []fulfillment.DeliveryOption{
			{ID: "local", Name: "Entrega local", Price: decimal.NewFromInt(35)},
		},
		ServiceColonias: []vendor.Colonia{
			{ID: "roma-norte-06700", Name: "Roma Norte", Delegacion: "Cuauhtémoc"},
		},
	}
}

type testEnv struct {
	router  chi.Router
	vendors *mockVendorRepo
	coupons *mockCouponValidator
	orders  *mockOrderRepo
	gateway *mockGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		vendors: &mockVendorRepo{profile: testProfile()},
		coupons: &mockCouponValidator{},
		orders:  &mockOrderRepo{},
		gateway: &mockGateway{pref: &checkout.Preference{ID: "pref-1", RedirectURL: "https://pay.example/p/1"}},
	}
	resolver := identity.NewResolver(&mockAccounts{},
		identity.WithSessionWait(10*time.Millisecond, 2*time.Millisecond))
	composer := checkout.NewComposer(
		env.vendors, env.coupons, resolver,
		&mockAccounts{}, env.orders, env.gateway, nil,
	)
	env.router = chi.NewRouter()
	New(composer, env.vendors).Routes(env.router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func pickupBody() map[string]any {
	return map[string]any{
		"vendorId": "vendor-1",
		"items": []map[string]any{
			{"productId": "torta-cubana", "name": "Torta Cubana", "quantity": 2, "unitPrice": 95.0},
		},
		"fulfillment":   map[string]any{"type": "pickup"},
		"paymentMethod": "cash",
		"guest":         map[string]any{"email": "ana@example.com", "name": "Ana"},
	}
}

func TestGetStore(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stores/vendor-1", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp storeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "vendor-1", resp.ID)
	assert.Equal(t, []string{"pickup", "delivery"}, resp.Modes)
	require.Len(t, resp.DeliveryOptions, 1)
	assert.Equal(t, 35.0, resp.DeliveryOptions[0].Price)
	assert.Equal(t, 800.0, resp.FreeShippingThreshold)
}

func TestGetStore_NotFound(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/stores/missing", nil, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "store_not_found", resp.Code)
}

func TestQuoteCheckout(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout/quote", pickupBody(), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp quoteDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 190.0, resp.Subtotal)
	assert.Equal(t, 190.0, resp.Total)
}

func TestQuoteCheckout_CouponRejected(t *testing.T) {
	env := newTestEnv(t)
	env.coupons.err = &coupon.RejectionError{Code: "EXPIRED10", Reason: coupon.ReasonExpired}

	body := pickupBody()
	body["couponCode"] = "EXPIRED10"
	rec := env.do(t, http.MethodPost, "/api/checkout/quote", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "coupon_rejected", resp.Code)
	assert.Equal(t, "expired", resp.Reason)
}

func TestSubmitCheckout_Created(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/checkout", pickupBody(), nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp checkoutResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order-1", resp.OrderID)
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, 190.0, resp.Total)
	require.NotNil(t, resp.Quote)
	assert.Equal(t, 190.0, resp.Quote.Total)
	assert.Empty(t, resp.RedirectURL)
}

func TestSubmitCheckout_OnlineRedirect(t *testing.T) {
	env := newTestEnv(t)

	body := pickupBody()
	body["paymentMethod"] = "online"
	rec := env.do(t, http.MethodPost, "/api/checkout", body, nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp checkoutResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "https://pay.example/p/1", resp.RedirectURL)
}

func TestSubmitCheckout_ValidationError(t *testing.T) {
	env := newTestEnv(t)

	body := pickupBody()
	body["items"] = []map[string]any{}
	rec := env.do(t, http.MethodPost, "/api/checkout", body, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "validation", resp.Code)
	assert.Equal(t, "items", resp.Field)
}

func TestSubmitCheckout_InvalidBody(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/checkout", bytes.NewBufferString("{"))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitCheckout_OutOfServiceArea(t *testing.T) {
	env := newTestEnv(t)

	body := pickupBody()
	body["fulfillment"] = map[string]any{"type": "delivery", "deliveryOptionId": "local"}
	body["address"] = map[string]any{
		"street": "Av. Siempre Viva 1", "city": "CDMX", "state": "CDMX", "zip": "99999",
	}
	rec := env.do(t, http.MethodPost, "/api/checkout", body, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "out_of_service_area", resp.Code)
}

func TestSubmitCheckout_PaymentGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	env.gateway.pref = nil
	env.gateway.err = assert.AnError

	body := pickupBody()
	body["paymentMethod"] = "online"
	rec := env.do(t, http.MethodPost, "/api/checkout", body, nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "payment_gateway", resp.Code)
	assert.Equal(t, "order-1", resp.OrderID)
	assert.True(t, resp.Retryable)
}

func TestSubmitCheckout_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	env.orders.existing = &order.Order{
		ID:     "order-prior",
		Total:  decimal.NewFromInt(190),
		Status: order.StatusPending,
	}

	rec := env.do(t, http.MethodPost, "/api/checkout", pickupBody(),
		map[string]string{"Idempotency-Key": "key-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp checkoutResponseDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "order-prior", resp.OrderID)
	assert.True(t, resp.Replayed)
	assert.Nil(t, resp.Quote)
}
