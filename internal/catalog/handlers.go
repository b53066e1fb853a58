package catalog

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes public menu endpoints.
type Handler struct {
	Service *Service
}

// Categories handles GET /api/v1/menu/categories.
func (h *Handler) Categories(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Service.Categories(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// Items handles GET /api/v1/menu/items with filters and pagination.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	params, err := h.Service.ParseListParams(r.URL.Query())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	result, err := h.Service.List(r.Context(), params)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.FormatInt(result.Total, 10))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       result.Items,
		"pagination": common.Pagination{Page: result.Page, PerPage: result.Limit, TotalItems: int(result.Total)},
	})
}

// ItemDetail handles GET /api/v1/menu/items/{id}.
func (h *Handler) ItemDetail(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		common.RespondError(w, common.ValidationError("invalid menu item id", nil))
		return
	}
	item, err := h.Service.Get(r.Context(), id)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": item})
}
