// Package handler exposes the checkout engine over HTTP: the store
// configuration endpoint, the quote preview, and order submission.
package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tianguis/checkout/internal/client/accounts"
	"github.com/tianguis/checkout/internal/domain/checkout"
	"github.com/tianguis/checkout/internal/domain/vendor"
)

// Handler serves the public checkout API, delegating to the order composer
// and the vendor repository.
type Handler struct {
	composer *checkout.Composer
	vendors  vendor.Repository
}

// New constructs a Handler with its domain dependencies.
func New(composer *checkout.Composer, vendors vendor.Repository) *Handler {
	return &Handler{composer: composer, vendors: vendors}
}

// Routes mounts the API endpoints on the given router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/api/stores/{vendorID}", h.GetStore)
	r.Post("/api/checkout/quote", h.QuoteCheckout)
	r.Post("/api/checkout", h.SubmitCheckout)
}

// credentialed moves request credentials into the context so the accounts
// client can authenticate session lookups: the bearer token when present,
// otherwise the guest email for the post-registration poll.
func credentialed(r *http.Request, guestEmail string) *http.Request {
	ctx := r.Context()
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		ctx = accounts.WithToken(ctx, strings.TrimPrefix(auth, "Bearer "))
	} else if guestEmail != "" {
		ctx = accounts.WithGuestEmail(ctx, guestEmail)
	}
	return r.WithContext(ctx)
}

func respondJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zctx.From(r.Context()).Error("encoding response", zap.Error(err))
	}
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
	Reason  string `json:"reason,omitempty"`
	OrderID string `json:"orderId,omitempty"`
	// Retryable marks payment-gateway failures where the order already
	// exists and a retry against it is safe.
	Retryable bool `json:"retryable,omitempty"`
}

func respondError(w http.ResponseWriter, r *http.Request, status int, resp errorResponse) {
	respondJSON(w, r, status, resp)
}
