package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tianguis/checkout/internal/domain/checkout"
	"github.com/tianguis/checkout/internal/domain/coupon"
	"github.com/tianguis/checkout/internal/domain/fulfillment"
	"github.com/tianguis/checkout/internal/domain/identity"
	"github.com/tianguis/checkout/internal/domain/order"
	"github.com/tianguis/checkout/internal/domain/pricing"
	"github.com/tianguis/checkout/internal/domain/servicearea"
	"github.com/tianguis/checkout/internal/domain/vendor"
)

type cartItemDTO struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Quantity  int         `json:"quantity"`
	UnitPrice float64     `json:"unitPrice"`
	Variant   *variantDTO `json:"variant,omitempty"`
}

type variantDTO struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type fulfillmentDTO struct {
	Type             string `json:"type"`
	DeliveryOptionID string `json:"deliveryOptionId,omitempty"`
	MeetupPointID    string `json:"meetupPointId,omitempty"`
}

type tipDTO struct {
	Kind    string  `json:"kind,omitempty"`
	Percent float64 `json:"percent,omitempty"`
	Amount  float64 `json:"amount,omitempty"`
}

type guestDTO struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type addressDTO struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	Zip        string `json:"zip"`
	Country    string `json:"country,omitempty"`
	References string `json:"references,omitempty"`
}

type checkoutRequestDTO struct {
	VendorID      string         `json:"vendorId"`
	Items         []cartItemDTO  `json:"items"`
	CouponCode    string         `json:"couponCode,omitempty"`
	Fulfillment   fulfillmentDTO `json:"fulfillment"`
	Tip           tipDTO         `json:"tip"`
	PaymentMethod string         `json:"paymentMethod"`
	Guest         guestDTO       `json:"guest"`
	Address       *addressDTO    `json:"address,omitempty"`
}

type quoteDTO struct {
	Subtotal              float64 `json:"subtotal"`
	Discount              float64 `json:"discount"`
	SubtotalAfterDiscount float64 `json:"subtotalAfterDiscount"`
	FreeShipping          bool    `json:"freeShipping"`
	DeliveryCost          float64 `json:"deliveryCost"`
	CourierCost           float64 `json:"courierCost"`
	Tip                   float64 `json:"tip"`
	Total                 float64 `json:"total"`
	FreeProductID         string  `json:"freeProductId,omitempty"`
}

type checkoutResponseDTO struct {
	OrderID     string    `json:"orderId"`
	Status      string    `json:"status"`
	Total       float64   `json:"total"`
	Quote       *quoteDTO `json:"quote,omitempty"`
	RedirectURL string    `json:"redirectUrl,omitempty"`
	EmailTaken  bool      `json:"emailTaken,omitempty"`
	Replayed    bool      `json:"replayed,omitempty"`
}

// QuoteCheckout prices a cart without creating an order.
func (h *Handler) QuoteCheckout(w http.ResponseWriter, r *http.Request) {
	var dto checkoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, r, http.StatusBadRequest, errorResponse{
			Code: "invalid_request", Message: "invalid JSON body",
		})
		return
	}

	r = credentialed(r, dto.Guest.Email)
	q, err := h.composer.Quote(r.Context(), submitRequest(dto, ""))
	if err != nil {
		h.respondCheckoutError(w, r, err)
		return
	}
	respondJSON(w, r, http.StatusOK, toQuoteDTO(q))
}

// SubmitCheckout runs one checkout attempt. An Idempotency-Key header makes
// retries safe: a repeated key returns the originally created order.
func (h *Handler) SubmitCheckout(w http.ResponseWriter, r *http.Request) {
	var dto checkoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		respondError(w, r, http.StatusBadRequest, errorResponse{
			Code: "invalid_request", Message: "invalid JSON body",
		})
		return
	}

	r = credentialed(r, dto.Guest.Email)
	req := submitRequest(dto, r.Header.Get("Idempotency-Key"))

	res, err := h.composer.Submit(r.Context(), req)
	if err != nil {
		h.respondCheckoutError(w, r, err)
		return
	}

	resp := checkoutResponseDTO{
		OrderID:     res.Order.ID,
		Status:      string(res.Order.Status),
		Total:       res.Order.Total.InexactFloat64(),
		RedirectURL: res.RedirectURL,
		EmailTaken:  res.EmailTaken,
		Replayed:    res.Replayed,
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	} else {
		q := toQuoteDTO(res.Quote)
		resp.Quote = &q
	}
	respondJSON(w, r, status, resp)
}

// respondCheckoutError translates composer failures into HTTP responses.
// Client mistakes map to 4xx, upstream failures to 502, everything else to a
// generic 500 that leaks no internals.
func (h *Handler) respondCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		valErr  *checkout.ValidationError
		rejErr  *coupon.RejectionError
		zoneErr *servicearea.ZoneError
		payErr  *checkout.PaymentError
	)
	switch {
	case errors.Is(err, vendor.ErrNotFound):
		respondError(w, r, http.StatusNotFound, errorResponse{
			Code: "store_not_found", Message: "store not found",
		})
	case errors.As(err, &valErr):
		respondError(w, r, http.StatusBadRequest, errorResponse{
			Code: "validation", Message: valErr.Msg, Field: valErr.Field,
		})
	case errors.Is(err, identity.ErrEmailRequired):
		respondError(w, r, http.StatusBadRequest, errorResponse{
			Code: "validation", Message: "guest email required", Field: "guest.email",
		})
	case errors.As(err, &rejErr):
		respondError(w, r, http.StatusUnprocessableEntity, errorResponse{
			Code: "coupon_rejected", Message: "coupon not applicable", Reason: string(rejErr.Reason),
		})
	case errors.As(err, &zoneErr):
		respondError(w, r, http.StatusUnprocessableEntity, errorResponse{
			Code: "out_of_service_area", Message: "address outside the store's delivery area",
		})
	case errors.As(err, &payErr):
		// The order exists unpaid; the client can retry payment against it.
		respondError(w, r, http.StatusBadGateway, errorResponse{
			Code:      "payment_gateway",
			Message:   "payment provider unavailable",
			OrderID:   payErr.OrderID,
			Retryable: true,
		})
	case errors.Is(err, order.ErrUnknownColumn):
		zctx.From(r.Context()).Error("order persistence exhausted", zap.Error(err))
		respondError(w, r, http.StatusBadGateway, errorResponse{
			Code: "storage_unavailable", Message: "order could not be saved",
		})
	default:
		zctx.From(r.Context()).Error("checkout failed", zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, errorResponse{
			Code: "internal", Message: "internal error",
		})
	}
}

func submitRequest(dto checkoutRequestDTO, idempotencyKey string) checkout.SubmitRequest {
	req := checkout.SubmitRequest{
		VendorID:   dto.VendorID,
		Items:      make([]checkout.CartItem, len(dto.Items)),
		CouponCode: dto.CouponCode,
		Fulfillment: checkout.FulfillmentInput{
			Type:             fulfillment.Type(dto.Fulfillment.Type),
			DeliveryOptionID: dto.Fulfillment.DeliveryOptionID,
			MeetupPointID:    dto.Fulfillment.MeetupPointID,
		},
		Tip: pricing.Tip{
			Kind:    pricing.TipKind(dto.Tip.Kind),
			Percent: decimal.NewFromFloat(dto.Tip.Percent),
			Amount:  decimal.NewFromFloat(dto.Tip.Amount),
		},
		PaymentMethod:  order.PaymentMethod(dto.PaymentMethod),
		Guest:          identity.Guest(dto.Guest),
		IdempotencyKey: idempotencyKey,
	}
	for i, it := range dto.Items {
		item := checkout.CartItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			UnitPrice: decimal.NewFromFloat(it.UnitPrice),
		}
		if it.Variant != nil {
			item.Variant = &pricing.Variant{
				Name:  it.Variant.Name,
				Price: decimal.NewFromFloat(it.Variant.Price),
			}
		}
		req.Items[i] = item
	}
	if dto.Address != nil {
		req.Address = &identity.Address{
			Street:     dto.Address.Street,
			City:       dto.Address.City,
			State:      dto.Address.State,
			Zip:        dto.Address.Zip,
			Country:    dto.Address.Country,
			References: dto.Address.References,
		}
	}
	return req
}

func toQuoteDTO(q pricing.Quote) quoteDTO {
	return quoteDTO{
		Subtotal:              q.Subtotal.InexactFloat64(),
		Discount:              q.Discount.InexactFloat64(),
		SubtotalAfterDiscount: q.SubtotalAfterDiscount.InexactFloat64(),
		FreeShipping:          q.FreeShipping,
		DeliveryCost:          q.DeliveryCost.InexactFloat64(),
		CourierCost:           q.CourierCost.InexactFloat64(),
		Tip:                   q.Tip.InexactFloat64(),
		Total:                 q.Total.InexactFloat64(),
		FreeProductID:         q.FreeProductID,
	}
}
