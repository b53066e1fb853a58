package loyalty

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes loyalty endpoints.
type Handler struct {
	Ledger     *Ledger
	Cards      *Cards
	Earning    *Earning
	Thresholds Thresholds
	Validate   *validator.Validate
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

// Summary handles GET /api/v1/loyalty/summary.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	bal, err := h.Ledger.Summary(r.Context(), userID)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	tier := TierFor(bal.TotalEarned, h.Thresholds)
	common.JSON(w, http.StatusOK, map[string]any{
		"balance":      bal.Balance,
		"total_earned": bal.TotalEarned,
		"total_spent":  bal.TotalSpent,
		"tier":         tier,
	})
}

// Transactions handles GET /api/v1/loyalty/transactions.
func (h *Handler) Transactions(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	rows, err := h.Ledger.History(r.Context(), userID, int32(perPage), int32((page-1)*perPage))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       rows,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(rows)},
	})
}

type scanRequest struct {
	QRCode      string           `json:"qr_code" validate:"required,min=1,max=64"`
	VisitAmount *decimal.Decimal `json:"visit_amount"`
}

// Scan handles POST /api/v1/loyalty/cards/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var payload scanRequest
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
	result, err := h.Cards.Scan(r.Context(), payload.QRCode, payload.VisitAmount)
	if err != nil {
		if errors.Is(err, ErrScanCooldown) {
			common.RespondError(w, common.ConflictError("card was scanned recently, try again later"))
			return
		}
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

type linkRequest struct {
	QRCode string `json:"qr_code" validate:"required,min=1,max=64"`
}

// LinkCard handles POST /api/v1/loyalty/cards/link.
func (h *Handler) LinkCard(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	var payload linkRequest
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
	card, err := h.Cards.Link(r.Context(), userID, payload.QRCode)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": card})
}

// UnlinkCard handles DELETE /api/v1/loyalty/cards/link.
func (h *Handler) UnlinkCard(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if err := h.Cards.Unlink(r.Context(), userID); err != nil {
		common.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type referralRequest struct {
	ReferralCode string `json:"referral_code" validate:"required,min=1,max=32"`
}

// ClaimReferral handles POST /api/v1/loyalty/referral.
func (h *Handler) ClaimReferral(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	var payload referralRequest
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
	applied, err := h.Earning.ProcessReferral(r.Context(), userID, payload.ReferralCode)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"applied": applied})
}
