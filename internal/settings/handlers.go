package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes the restaurant settings endpoints.
type Handler struct {
	Service  *Service
	Validate *validator.Validate
}

// Info handles GET /api/v1/restaurant returning the public settings payload.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	row, err := h.Service.Get(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": publicView(row)})
}

// Status handles GET /api/v1/restaurant/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	row, err := h.Service.Get(r.Context())
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"is_open":             row.IsOpen,
		"maintenance_mode":    row.MaintenanceMode,
		"maintenance_message": row.MaintenanceMessage,
	})
}

// Update handles PATCH /api/v1/restaurant for staff callers.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload UpdateParams
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
	row, err := h.Service.Update(r.Context(), payload)
	if err != nil {
		common.RespondError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": row})
}

type publicSettings struct {
	Name                  string `json:"name"`
	Description           string `json:"description"`
	Tagline               string `json:"tagline"`
	Address               string `json:"address"`
	Phone                 string `json:"phone"`
	Email                 string `json:"email"`
	Website               string `json:"website"`
	IsOpen                bool   `json:"is_open"`
	MinimumOrder          string `json:"minimum_order"`
	FreeDeliveryThreshold string `json:"free_delivery_threshold"`
	DeliveryRadiusKM      string `json:"delivery_radius"`
	AcceptsCash           bool   `json:"accepts_cash"`
	AcceptsCard           bool   `json:"accepts_card"`
}

func publicView(row Restaurant) publicSettings {
	return publicSettings{
		Name:                  row.Name,
		Description:           row.Description,
		Tagline:               row.Tagline,
		Address:               row.Address,
		Phone:                 row.Phone,
		Email:                 row.Email,
		Website:               row.Website,
		IsOpen:                row.IsOpen,
		MinimumOrder:          row.MinimumOrder.StringFixed(2),
		FreeDeliveryThreshold: row.FreeDeliveryThreshold.StringFixed(2),
		DeliveryRadiusKM:      row.DeliveryRadiusKM.StringFixed(2),
		AcceptsCash:           row.AcceptsCash,
		AcceptsCard:           row.AcceptsCard,
	}
}
