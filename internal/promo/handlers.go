package promo

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes promo code endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

type validateRequest struct {
	Code        string          `json:"code" validate:"required,min=1,max=20"`
	OrderAmount decimal.Decimal `json:"order_amount" validate:"required"`
}

// ValidateCode handles POST /api/v1/promo/validate.
func (h *Handler) ValidateCode(w http.ResponseWriter, r *http.Request) {
	var payload validateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.RespondError(w, common.ValidationError("invalid request body", nil))
		return
	}
	if h.Validate != nil {
		if err := h.Validate.Struct(payload); err != nil {
			common.RespondError(w, common.ValidationError(err.Error(), nil))
			return
		}
	}
	var userID *uuid.UUID
	if raw, ok := common.UserID(r.Context()); ok {
		if id, err := uuid.Parse(raw); err == nil {
			userID = &id
		}
	}
	result, err := h.Service.Preview(r.Context(), payload.Code, userID, payload.OrderAmount)
	if err != nil {
		common.RespondError(w, MapError(err))
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"code":            result.Code,
		"discount_amount": result.Discount,
		"message":         "promo code applied successfully",
	})
}

// Active handles GET /api/v1/promo/active.
func (h *Handler) Active(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Active(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// UsageHistory handles GET /api/v1/promo/usage for the authenticated caller.
func (h *Handler) UsageHistory(w http.ResponseWriter, r *http.Request) {
	raw, ok := common.UserID(r.Context())
	if !ok {
		common.RespondError(w, common.ValidationError("authentication required", nil))
		return
	}
	userID, err := uuid.Parse(raw)
	if err != nil {
		common.RespondError(w, common.ValidationError("invalid user id", nil))
		return
	}
	rows, err := h.Service.UsageHistory(r.Context(), userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows, "total_usage_count": len(rows)})
}

// MapError translates engine errors into the caller-facing taxonomy.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrAlreadyUsed):
		return common.ConflictError("promo code already used")
	case errors.Is(err, ErrUsageLimitReached):
		return common.ConflictError("promo code usage limit reached")
	case errors.Is(err, ErrNotEligible),
		errors.Is(err, ErrInactive),
		errors.Is(err, ErrExpired),
		errors.Is(err, ErrMinimumSpendUnmet):
		return common.ValidationError(err.Error(), nil)
	default:
		return err
	}
}
