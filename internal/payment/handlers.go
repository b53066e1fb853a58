package payment

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes HTTP endpoints for initializing and verifying payments.
type Handler struct {
	Svc *Service
}

type initializeRequest struct {
	OrderID string `json:"order_id"`
}

// Initialize opens a gateway transaction for the given order.
func (h *Handler) Initialize(w http.ResponseWriter, r *http.Request) {
	var req initializeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid body", nil)
		return
	}
	req.OrderID = strings.TrimSpace(req.OrderID)
	if req.OrderID == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "order_id is required", nil)
		return
	}
	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order_id", nil)
		return
	}
	res, err := h.Svc.Initialize(r.Context(), orderID, callerID(r))
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, res)
}

// Verify checks the transaction behind a reference and settles the order.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(chi.URLParam(r, "reference"))
	if reference == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "reference is required", nil)
		return
	}
	outcome, err := h.Svc.Verify(r.Context(), reference)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, outcome)
}

// Callback handles the customer redirect back from the hosted checkout page.
// It runs the same verification as Verify but answers in a message shape the
// storefront renders directly.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	reference := strings.TrimSpace(r.URL.Query().Get("reference"))
	if reference == "" {
		reference = strings.TrimSpace(r.URL.Query().Get("trxref"))
	}
	if reference == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing payment reference", nil)
		return
	}
	outcome, err := h.Svc.Verify(r.Context(), reference)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	if outcome.Status == "success" {
		common.JSON(w, http.StatusOK, map[string]any{
			"status":       "success",
			"message":      "Payment completed successfully",
			"order_number": outcome.OrderNumber,
			"amount":       outcome.Amount.StringFixed(2),
			"reference":    outcome.Reference,
		})
		return
	}
	common.JSON(w, http.StatusBadRequest, map[string]any{
		"status":    outcome.Status,
		"message":   "Payment not completed",
		"reference": outcome.Reference,
	})
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
