package order

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
)

// AdminHandler provides the staff order management endpoints.
type AdminHandler struct {
	Service *Service
}

// List returns a page of every order, newest first.
func (h *AdminHandler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	rows, total, err := h.Service.ListAll(r.Context(), int32(perPage), int32((page-1)*perPage))
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

type patchStatusRequest struct {
	Status            string     `json:"status"`
	EstimatedDelivery *time.Time `json:"estimated_delivery_time"`
}

// PatchStatus moves an order through its lifecycle with state-machine
// validation.
func (h *AdminHandler) PatchStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := uuid.Parse(chi.URLParam(r, "orderID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid order id", nil)
		return
	}
	var req patchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if req.Status == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "status is required", nil)
		return
	}
	ord, err := h.Service.UpdateStatus(r.Context(), orderID, req.Status, req.EstimatedDelivery)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"message": "Order status updated successfully.",
		"data": map[string]any{
			"id":                      ord.ID,
			"order_number":            ord.OrderNumber,
			"status":                  ord.Status,
			"estimated_delivery_time": ord.EstimatedDelivery,
			"actual_delivery_time":    ord.ActualDelivery,
		},
	})
}
