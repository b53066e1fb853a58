package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/backend-resto/internal/resilience"
)

// Paystack implements Provider against the Paystack transaction API.
// The HTTP client carries a short timeout so a slow gateway surfaces as a
// context error instead of hanging checkout.
type Paystack struct {
	SecretKey string
	BaseURL   string
	Client    *http.Client
	Breaker   *resilience.Breaker
}

// NewPaystack constructs a Paystack provider with the given request timeout.
// The breaker trips after repeated gateway failures so checkout degrades fast
// instead of queueing behind a dead gateway.
func NewPaystack(secretKey, baseURL string, timeout time.Duration) *Paystack {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Paystack{
		SecretKey: secretKey,
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Client:    &http.Client{Timeout: timeout},
		Breaker:   resilience.NewBreaker(5, 0.5, 30*time.Second).WithTarget("paystack"),
	}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Initialize opens a transaction and returns the hosted checkout handle.
func (p *Paystack) Initialize(ctx context.Context, arg InitializeParams) (InitializeResult, error) {
	var zero InitializeResult
	if strings.TrimSpace(arg.Email) == "" {
		return zero, errors.New("customer email is required")
	}
	payload := map[string]any{
		"email":        arg.Email,
		"amount":       arg.AmountMinor,
		"callback_url": arg.CallbackURL,
		"metadata": map[string]any{
			"order_number": arg.OrderNumber,
			"custom_fields": []map[string]string{
				{
					"display_name":  "Order Number",
					"variable_name": "order_number",
					"value":         arg.OrderNumber,
				},
			},
		},
	}
	data, err := p.post(ctx, "/transaction/initialize", payload)
	if err != nil {
		return zero, err
	}
	var result InitializeResult
	if err := json.Unmarshal(data, &result); err != nil {
		return zero, fmt.Errorf("paystack: decode initialize response: %w", err)
	}
	if result.Reference == "" {
		return zero, errors.New("paystack: initialize response missing reference")
	}
	return result, nil
}

// Verify looks up a transaction by reference.
func (p *Paystack) Verify(ctx context.Context, reference string) (VerifyResult, error) {
	var zero VerifyResult
	if strings.TrimSpace(reference) == "" {
		return zero, errors.New("reference is required")
	}
	data, err := p.get(ctx, "/transaction/verify/"+reference)
	if err != nil {
		return zero, err
	}
	var body struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"`
		GatewayResponse string `json:"gateway_response"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return zero, fmt.Errorf("paystack: decode verify response: %w", err)
	}
	return VerifyResult{
		Reference:       body.Reference,
		Status:          strings.ToLower(strings.TrimSpace(body.Status)),
		AmountMinor:     body.Amount,
		GatewayResponse: body.GatewayResponse,
	}, nil
}

// VerifyWebhookSignature checks the X-Paystack-Signature header value: a hex
// HMAC-SHA512 of the raw body keyed with the secret key.
func (p *Paystack) VerifyWebhookSignature(body []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if signature == "" || p.SecretKey == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(p.SecretKey))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (p *Paystack) post(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return p.do(req)
}

func (p *Paystack) get(ctx context.Context, path string) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return p.do(req)
}

func (p *Paystack) do(req *http.Request) (json.RawMessage, error) {
	req.Header.Set("Authorization", "Bearer "+p.SecretKey)
	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}
	// Transport errors and 5xx responses count against the breaker and are
	// retried once. A declined transaction is still a healthy gateway.
	wrapped := resilience.HTTPClient{
		Client:      client,
		Breaker:     p.Breaker,
		MaxAttempts: 2,
		BaseBackoff: 200 * time.Millisecond,
		Jitter:      0.2,
	}
	resp, err := wrapped.Do(req.Context(), req)
	if err != nil {
		return nil, fmt.Errorf("paystack: request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("paystack: read response: %w", err)
	}
	var envelope paystackEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("paystack: decode response (http %d): %w", resp.StatusCode, err)
	}
	if !envelope.Status {
		return nil, fmt.Errorf("paystack: %s", valueOr(envelope.Message, "unknown error"))
	}
	return envelope.Data, nil
}

func valueOr(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}
