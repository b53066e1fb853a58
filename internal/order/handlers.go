package order

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/geo"
	"github.com/noah-isme/backend-resto/internal/pricing"
	"github.com/noah-isme/backend-resto/internal/promo"
	"github.com/noah-isme/backend-resto/internal/reward"
)

// mapSettlementError folds the promo and reward engine sentinels that surface
// through settlement into the caller-facing taxonomy, so an expired code on
// checkout answers 400/409 rather than a generic 500.
func mapSettlementError(err error) error {
	return reward.MapError(promo.MapError(err))
}

// Handler serves the customer-facing order endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type createRequest struct {
	Items               []LineInput      `json:"items" validate:"required,min=1,dive"`
	CustomerName        string           `json:"customer_name" validate:"required,max=200"`
	CustomerEmail       string           `json:"customer_email" validate:"required,email"`
	CustomerPhone       string           `json:"customer_phone" validate:"required,max=15"`
	DeliveryType        string           `json:"delivery_type" validate:"required,oneof=delivery pickup"`
	DeliveryAddress     string           `json:"delivery_address"`
	SpecialInstructions string           `json:"special_instructions"`
	RewardID            *uuid.UUID       `json:"reward_id"`
	PromoCode           string           `json:"promo_code"`
	Subtotal            *decimal.Decimal `json:"subtotal"`
	TaxAmount           *decimal.Decimal `json:"tax_amount"`
	DeliveryFee         decimal.Decimal  `json:"delivery_fee"`
	DiscountAmount      decimal.Decimal  `json:"discount_amount"`
	TotalAmount         *decimal.Decimal `json:"total_amount"`
}

// Create places an order for an account holder or a guest.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid order payload", err.Error())
		return
	}
	in := CreateInput{
		UserID: callerID(r),
		Customer: CustomerInfo{
			Name:  req.CustomerName,
			Email: req.CustomerEmail,
			Phone: req.CustomerPhone,
		},
		DeliveryType:        req.DeliveryType,
		DeliveryAddress:     req.DeliveryAddress,
		SpecialInstructions: req.SpecialInstructions,
		DeliveryFee:         req.DeliveryFee,
		Items:               req.Items,
		RewardID:            req.RewardID,
		PromoCode:           req.PromoCode,
	}
	if req.Subtotal != nil && req.TaxAmount != nil && req.TotalAmount != nil {
		in.Proposed = &pricing.Proposal{
			Subtotal:    *req.Subtotal,
			TaxAmount:   *req.TaxAmount,
			DeliveryFee: req.DeliveryFee,
			Discount:    req.DiscountAmount,
			Total:       *req.TotalAmount,
		}
	}
	ord, items, err := h.Service.Create(r.Context(), in)
	if err != nil {
		common.RespondError(w, mapSettlementError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"message": "Order created successfully.",
		"data":    orderView(ord, items),
	})
}

type calculateRequest struct {
	Items        []LineInput     `json:"items" validate:"required,min=1,dive"`
	DeliveryType string          `json:"delivery_type" validate:"required,oneof=delivery pickup"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
	RewardID     *uuid.UUID      `json:"reward_id"`
	PromoCode    string          `json:"promo_code"`
}

// Calculate previews cart totals without creating anything.
func (h *Handler) Calculate(w http.ResponseWriter, r *http.Request) {
	var req calculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid cart payload", err.Error())
		return
	}
	result, err := h.Service.Preview(r.Context(), PreviewInput{
		UserID:       callerID(r),
		Items:        req.Items,
		DeliveryType: req.DeliveryType,
		DeliveryFee:  req.DeliveryFee,
		RewardID:     req.RewardID,
		PromoCode:    req.PromoCode,
	})
	if err != nil {
		common.RespondError(w, mapSettlementError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type deliveryFeeRequest struct {
	DeliveryType string   `json:"delivery_type" validate:"required,oneof=delivery pickup"`
	Latitude     *float64 `json:"latitude"`
	Longitude    *float64 `json:"longitude"`
	DistanceKM   *float64 `json:"distance_km"`
}

// DeliveryFee quotes the delivery fee for a destination, either from an
// explicit distance or from coordinates measured against the restaurant.
func (h *Handler) DeliveryFee(w http.ResponseWriter, r *http.Request) {
	var req deliveryFeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.Validate.Struct(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "VALIDATION", "invalid payload", err.Error())
		return
	}
	params, err := h.Service.Settings.Params(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	distance := req.DistanceKM
	if distance == nil && req.Latitude != nil && req.Longitude != nil {
		dest := geo.Point{Lat: *req.Latitude, Lng: *req.Longitude}
		if !geo.WithinRadius(dest, params) {
			common.JSONError(w, http.StatusBadRequest, "VALIDATION", "destination is outside the delivery radius", nil)
			return
		}
		d := geo.DistanceKM(geo.Point{
			Lat: params.Latitude.InexactFloat64(),
			Lng: params.Longitude.InexactFloat64(),
		}, dest)
		distance = &d
	}
	fee := geo.DeliveryFee(req.DeliveryType, distance, params)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"delivery_type": req.DeliveryType,
			"delivery_fee":  fee.StringFixed(2),
		},
	})
}

// List returns the caller's order history.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	rows, total, err := h.Service.List(r.Context(), *userID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data": rows,
		"pagination": common.Pagination{
			Page:       page,
			PerPage:    perPage,
			TotalItems: int(total),
		},
	})
}

// Get returns one of the caller's orders with its items.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, items, err := h.Service.Get(r.Context(), orderID, userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderView(ord, items)})
}

// Cancel cancels one of the caller's orders.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	userID := callerID(r)
	if userID == nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	ord, err := h.Service.Cancel(r.Context(), orderID, userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"message": "Order cancelled successfully.",
		"data":    map[string]any{"id": ord.ID, "status": ord.Status},
	})
}

// Track looks an order up by its public number.
func (h *Handler) Track(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "orderNumber")
	ord, items, err := h.Service.Track(r.Context(), number, callerID(r))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": orderView(ord, items)})
}

func orderView(ord Order, items []Item) map[string]any {
	return map[string]any{
		"id":                      ord.ID,
		"order_number":            ord.OrderNumber,
		"status":                  ord.Status,
		"payment_status":          ord.PaymentStatus,
		"delivery_type":           ord.DeliveryType,
		"delivery_address":        ord.DeliveryAddress,
		"special_instructions":    ord.SpecialInstructions,
		"subtotal":                ord.Subtotal.StringFixed(2),
		"tax_amount":              ord.TaxAmount.StringFixed(2),
		"delivery_fee":            ord.DeliveryFee.StringFixed(2),
		"discount_amount":         ord.DiscountAmount.StringFixed(2),
		"total_amount":            ord.TotalAmount.StringFixed(2),
		"estimated_delivery_time": ord.EstimatedDelivery,
		"created_at":              ord.CreatedAt,
		"items":                   items,
	}
}

func callerID(r *http.Request) *uuid.UUID {
	raw, ok := common.UserID(r.Context())
	if !ok {
		return nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil
	}
	return &id
}
