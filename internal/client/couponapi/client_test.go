package couponapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tianguis/checkout/internal/domain/coupon"
)

func TestValidate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/coupons/validate", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "DIEZ", body["code"])
		assert.Equal(t, "v1", body["vendorId"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"code": "DIEZ",
			"type": "percentage",
			"discountValue": "10",
			"minPurchase": "0",
			"maxDiscount": "80"
		}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Validate(context.Background(), coupon.Request{
		Code:     "DIEZ",
		VendorID: "v1",
		Subtotal: decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	assert.Equal(t, "DIEZ", got.Code)
	assert.Equal(t, coupon.TypePercentage, got.Type)
	assert.True(t, got.DiscountValue.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, got.MaxDiscount)
	assert.True(t, got.MaxDiscount.Equal(decimal.NewFromInt(80)))
}

func TestValidate_RejectionReasons(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   coupon.RejectReason
	}{
		{"expired", http.StatusUnprocessableEntity, `{"reason":"expired"}`, coupon.ReasonExpired},
		{"limit reached", http.StatusConflict, `{"reason":"limit_reached"}`, coupon.ReasonLimitReached},
		{"min not met", http.StatusUnprocessableEntity, `{"reason":"min_not_met"}`, coupon.ReasonMinNotMet},
		{"restricted", http.StatusForbidden, `{"reason":"restricted"}`, coupon.ReasonRestricted},
		{"not applicable", http.StatusUnprocessableEntity, `{"reason":"not_applicable"}`, coupon.ReasonNotApplicable},
		{"not found without body", http.StatusNotFound, ``, coupon.ReasonNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := New(srv.URL).Validate(context.Background(), coupon.Request{Code: "X"})

			var re *coupon.RejectionError
			require.ErrorAs(t, err, &re)
			assert.Equal(t, tt.want, re.Reason)
		})
	}
}

func TestValidate_ServerErrorIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Validate(context.Background(), coupon.Request{Code: "X"})
	require.Error(t, err)

	var re *coupon.RejectionError
	assert.False(t, errors.As(err, &re))
}
