package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/tianguis/checkout/internal/domain/vendor"
)

type storeResponse struct {
	ID                    string              `json:"id"`
	Name                  string              `json:"name"`
	Modes                 []string            `json:"modes"`
	DeliveryOptions       []deliveryOptionDTO `json:"deliveryOptions"`
	MeetupPoints          []meetupPointDTO    `json:"meetupPoints"`
	ServiceArea           []coloniaDTO        `json:"serviceArea"`
	CourierCost           float64             `json:"courierCost"`
	CourierCostIncluded   bool                `json:"courierCostIncluded"`
	FreeShippingThreshold float64             `json:"freeShippingThreshold"`
}

type deliveryOptionDTO struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
}

type meetupPointDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address"`
}

type coloniaDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Delegacion string `json:"delegacion"`
}

// GetStore returns the vendor's checkout-relevant configuration: enabled
// fulfillment modes, delivery tiers, meetup points, and the service area.
func (h *Handler) GetStore(w http.ResponseWriter, r *http.Request) {
	vendorID := chi.URLParam(r, "vendorID")

	p, err := h.vendors.GetByID(r.Context(), vendorID)
	if err != nil {
		if errors.Is(err, vendor.ErrNotFound) {
			respondError(w, r, http.StatusNotFound, errorResponse{
				Code: "store_not_found", Message: "store not found",
			})
			return
		}
		zctx.From(r.Context()).Error("getting store", zap.String("vendor_id", vendorID), zap.Error(err))
		respondError(w, r, http.StatusInternalServerError, errorResponse{
			Code: "internal", Message: "internal error",
		})
		return
	}

	resp := storeResponse{
		ID:                    p.ID,
		Name:                  p.Name,
		Modes:                 make([]string, len(p.Modes)),
		DeliveryOptions:       make([]deliveryOptionDTO, len(p.DeliveryOptions)),
		MeetupPoints:          make([]meetupPointDTO, len(p.MeetupPoints)),
		ServiceArea:           make([]coloniaDTO, len(p.ServiceColonias)),
		CourierCost:           p.CourierCost.InexactFloat64(),
		CourierCostIncluded:   p.CourierCostIncluded,
		FreeShippingThreshold: p.Threshold().InexactFloat64(),
	}
	for i, m := range p.Modes {
		resp.Modes[i] = string(m)
	}
	for i, opt := range p.DeliveryOptions {
		resp.DeliveryOptions[i] = deliveryOptionDTO{ID: opt.ID, Name: opt.Name, Price: opt.Price.InexactFloat64()}
	}
	for i, mp := range p.MeetupPoints {
		resp.MeetupPoints[i] = meetupPointDTO{ID: mp.ID, Name: mp.Name, Address: mp.Address}
	}
	for i, c := range p.ServiceColonias {
		resp.ServiceArea[i] = coloniaDTO{ID: c.ID, Name: c.Name, Delegacion: c.Delegacion}
	}
	respondJSON(w, r, http.StatusOK, resp)
}
