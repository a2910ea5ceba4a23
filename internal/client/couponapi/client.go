// Package couponapi is the HTTP client for the external coupon validation
// service. The service owns all eligibility rules (existence, expiry, usage
// limits, minimum purchase, vendor applicability, member restrictions,
// visibility); this client only normalizes its answers.
package couponapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tianguis/checkout/internal/domain/coupon"
)

var _ coupon.Validator = (*Client)(nil)

// DefaultTimeout bounds one validation round trip.
const DefaultTimeout = 5 * time.Second

// Client calls the coupon validation service.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout:   DefaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

type validateRequest struct {
	Code     string          `json:"code"`
	UserID   *string         `json:"userId"`
	VendorID string          `json:"vendorId"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type validateResponse struct {
	Code          string           `json:"code"`
	Type          string           `json:"type"`
	DiscountValue decimal.Decimal  `json:"discountValue"`
	MinPurchase   decimal.Decimal  `json:"minPurchase"`
	MaxDiscount   *decimal.Decimal `json:"maxDiscount"`
	FreeProductID *string          `json:"freeProductId"`
}

type errorResponse struct {
	Reason string `json:"reason"`
}

// Validate submits the code plus context and returns the normalized coupon
// descriptor. A 4xx answer becomes a *coupon.RejectionError with the
// service's discrete reason; transport and 5xx failures are returned as
// retryable errors.
func (c *Client) Validate(ctx context.Context, req coupon.Request) (*coupon.Coupon, error) {
	body, err := json.Marshal(validateRequest{
		Code:     req.Code,
		UserID:   req.UserID,
		VendorID: req.VendorID,
		Subtotal: req.Subtotal,
	})
	if err != nil {
		return nil, errors.Wrap(err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/coupons/validate", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "coupon service")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var vr validateResponse
		if err := json.NewDecoder(resp.Body).Decode(&vr); err != nil {
			return nil, errors.Wrap(err, "decode response")
		}
		return &coupon.Coupon{
			Code:          vr.Code,
			Type:          coupon.Type(vr.Type),
			DiscountValue: vr.DiscountValue,
			MinPurchase:   vr.MinPurchase,
			MaxDiscount:   vr.MaxDiscount,
			FreeProductID: vr.FreeProductID,
		}, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil || er.Reason == "" {
			return nil, &coupon.RejectionError{Code: req.Code, Reason: coupon.ReasonNotFound}
		}
		return nil, &coupon.RejectionError{Code: req.Code, Reason: coupon.RejectReason(er.Reason)}
	default:
		return nil, errors.Errorf("coupon service returned %d", resp.StatusCode)
	}
}
