package payment

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/money"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
)

// Orders is the slice of the order coordinator the payment flow drives.
type Orders interface {
	Get(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (order.Order, []order.Item, error)
	ByReference(ctx context.Context, reference string) (order.Order, error)
	AttachPaymentInit(ctx context.Context, orderID uuid.UUID, reference, accessCode string) error
	ConfirmPayment(ctx context.Context, orderID uuid.UUID) (order.Order, error)
	FailPayment(ctx context.Context, orderID uuid.UUID) error
}

// Service coordinates gateway transactions with order payment state.
type Service struct {
	Provider    Provider
	Orders      Orders
	CallbackURL string
	Log         zerolog.Logger
}

// VerifyOutcome reports the result of a transaction verification.
type VerifyOutcome struct {
	Status        string          `json:"status"`
	GatewayStatus string          `json:"paystack_status"`
	OrderID       uuid.UUID       `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	PaymentStatus string          `json:"order_status"`
	Amount        decimal.Decimal `json:"amount"`
	Reference     string          `json:"reference"`
}

// Initialize opens a gateway transaction for a pending order and stores the
// returned reference on it. Guest orders need no caller; orders bound to an
// account can only be paid by that account.
func (s *Service) Initialize(ctx context.Context, orderID uuid.UUID, callerID *uuid.UUID) (InitializeResult, error) {
	var zero InitializeResult
	ctx, span := otel.Tracer("payment.Service").Start(ctx, "PaymentService.Initialize")
	defer span.End()
	result := "error"
	defer func() {
		span.SetAttributes(attribute.String("payment.init.result", result))
		recordIntent(result)
	}()

	ord, _, err := s.Orders.Get(ctx, orderID, nil)
	if err != nil {
		return zero, err
	}
	if ord.UserID != nil && callerID != nil && *ord.UserID != *callerID {
		result = "forbidden"
		return zero, common.NewAppError("FORBIDDEN", "you can only pay for your own orders", http.StatusForbidden, nil)
	}
	if ord.PaymentStatus != order.PaymentPending {
		result = "rejected"
		return zero, common.ValidationError("order is not pending payment", nil)
	}

	res, err := s.Provider.Initialize(ctx, InitializeParams{
		Email:       ord.GuestEmail,
		AmountMinor: money.ToMinor(ord.TotalAmount),
		OrderNumber: ord.OrderNumber,
		CallbackURL: s.CallbackURL,
	})
	if err != nil {
		// The order stays pending: an unanswered initialize is not a failed
		// payment, the customer can retry.
		if isTimeout(err) {
			result = "timeout"
		}
		span.RecordError(err)
		s.Log.Error().Err(err).Str("order_number", ord.OrderNumber).Msg("payment initialization failed")
		return zero, common.DependencyError("failed to initialize transaction", err)
	}
	if err := s.Orders.AttachPaymentInit(ctx, ord.ID, res.Reference, res.AccessCode); err != nil {
		return zero, err
	}
	result = "success"
	return res, nil
}

// Verify checks a transaction with the gateway and settles the order
// accordingly. A successful charge confirms payment (idempotently); a
// definitive gateway failure marks it failed; anything else, including a
// gateway timeout, leaves the order pending.
func (s *Service) Verify(ctx context.Context, reference string) (VerifyOutcome, error) {
	var zero VerifyOutcome
	ord, err := s.Orders.ByReference(ctx, reference)
	if err != nil {
		return zero, err
	}
	vr, err := s.Provider.Verify(ctx, reference)
	if err != nil {
		s.Log.Error().Err(err).Str("reference", reference).Msg("payment verification failed")
		return zero, common.DependencyError("failed to verify transaction", err)
	}
	outcome := VerifyOutcome{
		Status:        "pending",
		GatewayStatus: vr.Status,
		OrderID:       ord.ID,
		OrderNumber:   ord.OrderNumber,
		PaymentStatus: ord.PaymentStatus,
		Amount:        ord.TotalAmount,
		Reference:     reference,
	}
	switch vr.Status {
	case "success":
		if vr.AmountMinor > 0 && vr.AmountMinor != money.ToMinor(ord.TotalAmount) {
			return zero, common.IntegrityError("gateway amount does not match order total", nil)
		}
		confirmed, err := s.Orders.ConfirmPayment(ctx, ord.ID)
		if err != nil {
			return zero, err
		}
		outcome.Status = "success"
		outcome.PaymentStatus = confirmed.PaymentStatus
	case "failed", "reversed":
		if err := s.Orders.FailPayment(ctx, ord.ID); err != nil {
			return zero, err
		}
		outcome.Status = "failed"
		outcome.PaymentStatus = order.PaymentFailed
	}
	return outcome, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func recordIntent(result string) {
	if obs.PaymentIntentTotal == nil {
		return
	}
	obs.PaymentIntentTotal.WithLabelValues("paystack", result).Inc()
}
