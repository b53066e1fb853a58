package reward

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/loyalty"
)

// Handler exposes reward endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

func callerID(r *http.Request) (uuid.UUID, error) {
	raw, ok := common.UserID(r.Context())
	if !ok {
		return uuid.Nil, common.ValidationError("authentication required", nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, common.ValidationError("invalid user id", nil)
	}
	return id, nil
}

// Catalog handles GET /api/v1/rewards.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Catalog(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

type redeemRequest struct {
	RewardID uuid.UUID `json:"reward_id" validate:"required"`
}

// Redeem handles POST /api/v1/rewards/redeem.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	var payload redeemRequest
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
	redeemed, err := h.Service.Redeem(r.Context(), userID, payload.RewardID)
	if err != nil {
		common.RespondError(w, MapError(err))
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": redeemed})
}

// Mine handles GET /api/v1/rewards/mine.
func (h *Handler) Mine(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	rows, err := h.Service.Mine(r.Context(), userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// MapError translates engine errors into the caller-facing taxonomy.
func MapError(err error) error {
	switch {
	case errors.Is(err, ErrCapReached):
		return common.ConflictError("reward redemption cap reached")
	case errors.Is(err, ErrNotAvailable):
		return common.ValidationError("reward is not available", nil)
	case errors.Is(err, ErrNotActive):
		return common.ValidationError("reward is not active or already used", nil)
	case errors.Is(err, loyalty.ErrInsufficientBalance):
		return common.ValidationError("insufficient points balance", nil)
	default:
		return err
	}
}
