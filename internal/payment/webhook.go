package payment

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/money"
	"github.com/noah-isme/backend-resto/internal/obs"
)

// Webhook handles gateway callbacks: signature verification, replay
// protection, and settlement of the referenced order.
type Webhook struct {
	Provider  Provider
	Orders    Orders
	Replay    *redis.Client
	ReplayTTL time.Duration
	Log       zerolog.Logger
}

type webhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference string `json:"reference"`
		Amount    int64  `json:"amount"`
		Customer  struct {
			Email string `json:"email"`
		} `json:"customer"`
	} `json:"data"`
}

// Handle processes a gateway notification. The gateway retries on non-2xx, so
// only transport-level problems return an error status; an event referencing
// an unknown order is acknowledged and logged.
func (h Webhook) Handle(w http.ResponseWriter, r *http.Request) {
	if h.Provider == nil || h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "PAYMENT_NOT_CONFIGURED", "webhook unavailable", nil)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		recordWebhook("invalid_body")
		common.JSONError(w, http.StatusBadRequest, "INVALID_BODY", "unable to read payload", nil)
		return
	}
	signature := r.Header.Get("X-Paystack-Signature")
	if signature == "" {
		recordWebhook("missing_signature")
		common.JSONError(w, http.StatusBadRequest, "MISSING_SIGNATURE", "missing signature header", nil)
		return
	}
	if !h.Provider.VerifyWebhookSignature(body, signature) {
		recordWebhook("invalid_signature")
		common.JSONError(w, http.StatusUnauthorized, "INVALID_SIGNATURE", "signature verification failed", nil)
		return
	}
	if h.Replay != nil && h.ReplayTTL > 0 {
		key := fmt.Sprintf("wh:paystack:%s", common.Sha256Hex(string(body)))
		ok, err := h.Replay.SetNX(r.Context(), key, "1", h.ReplayTTL).Result()
		if err != nil {
			recordWebhook("replay_store_error")
			common.JSONError(w, http.StatusInternalServerError, "REPLAY_STORE_ERROR", err.Error(), nil)
			return
		}
		if !ok {
			recordWebhook("replay")
			common.JSONError(w, http.StatusConflict, "REPLAY", "duplicate webhook", nil)
			return
		}
	}
	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		recordWebhook("invalid_json")
		common.JSONError(w, http.StatusBadRequest, "INVALID_JSON", "unable to parse payload", nil)
		return
	}

	switch event.Event {
	case "charge.success":
		h.settleCharge(w, r, event)
	default:
		// Other event families are acknowledged without action.
		recordWebhook("ignored")
		common.JSON(w, http.StatusOK, map[string]string{"status": "ignored"})
	}
}

func (h Webhook) settleCharge(w http.ResponseWriter, r *http.Request, event webhookEvent) {
	ctx := r.Context()
	reference := event.Data.Reference
	if reference == "" {
		recordWebhook("missing_reference")
		common.JSONError(w, http.StatusBadRequest, "MISSING_REFERENCE", "event has no transaction reference", nil)
		return
	}
	ord, err := h.Orders.ByReference(ctx, reference)
	if err != nil {
		// The initialize response may not have been stored yet. Acknowledge so
		// the gateway retries later instead of treating us as broken.
		h.Log.Warn().Str("reference", reference).Msg("webhook for unknown order reference")
		recordWebhook("unknown_reference")
		common.JSON(w, http.StatusOK, map[string]string{"status": "unmatched"})
		return
	}
	if event.Data.Amount > 0 && event.Data.Amount != money.ToMinor(ord.TotalAmount) {
		recordWebhook("amount_mismatch")
		common.JSONError(w, http.StatusBadRequest, "AMOUNT_MISMATCH", "gateway amount mismatch", nil)
		return
	}
	if _, err := h.Orders.ConfirmPayment(ctx, ord.ID); err != nil {
		recordWebhook("settle_error")
		common.RespondError(w, err)
		return
	}
	h.Log.Info().Str("reference", reference).Str("order_number", ord.OrderNumber).Msg("webhook settled payment")
	recordWebhook("settled")
	common.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func recordWebhook(result string) {
	if obs.PaymentWebhookTotal == nil {
		return
	}
	obs.PaymentWebhookTotal.WithLabelValues("paystack", result).Inc()
}
