package promo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// PromoCode is the persisted promotional code.
type PromoCode struct {
	ID              uuid.UUID        `json:"id"`
	Code            string           `json:"code"`
	Description     string           `json:"description"`
	DiscountType    string           `json:"discount_type"`
	DiscountValue   decimal.Decimal  `json:"discount_value"`
	MinimumOrder    decimal.Decimal  `json:"minimum_order_amount"`
	MaximumDiscount *decimal.Decimal `json:"maximum_discount,omitempty"`
	Active          bool             `json:"is_active"`
	UsageLimit      int32            `json:"usage_limit"`
	CurrentUsage    int32            `json:"current_usage"`
	ValidFrom       time.Time        `json:"valid_from"`
	ValidUntil      *time.Time       `json:"valid_until,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
}

// Usage is one consumption of a code by an order.
type Usage struct {
	ID        uuid.UUID       `json:"id"`
	PromoID   uuid.UUID       `json:"promo_code_id"`
	UserID    *uuid.UUID      `json:"user_id,omitempty"`
	OrderID   uuid.UUID       `json:"order_id"`
	Discount  decimal.Decimal `json:"discount_amount"`
	UsedAt    time.Time       `json:"used_at"`
	CodeLabel string          `json:"code"`
}

// InsertUsageParams carries a new usage row.
type InsertUsageParams struct {
	PromoID  uuid.UUID
	UserID   *uuid.UUID
	OrderID  uuid.UUID
	Discount decimal.Decimal
}

// Querier captures the database methods required by the promo service.
type Querier interface {
	GetPromoCodeByCode(ctx context.Context, code string) (PromoCode, error)
	GetPromoCodeByCodeForUpdate(ctx context.Context, code string) (PromoCode, error)
	CountPromoUsageByUser(ctx context.Context, promoID, userID uuid.UUID) (int64, error)
	GetPromoUsageByOrder(ctx context.Context, promoID, orderID uuid.UUID) (Usage, error)
	InsertPromoUsage(ctx context.Context, arg InsertUsageParams) error
	IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error
	ListActivePromoCodes(ctx context.Context) ([]PromoCode, error)
	ListPromoUsageByUser(ctx context.Context, userID uuid.UUID) ([]Usage, error)
}

// PreviewResult describes the outcome of evaluating a code without mutating state.
type PreviewResult struct {
	Code     string          `json:"code"`
	Discount decimal.Decimal `json:"discount_amount"`
}

// Service encapsulates promo code evaluation and settlement behaviour.
type Service struct {
	Q   Querier
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Preview performs a dry-run evaluation for the given order amount.
func (s *Service) Preview(ctx context.Context, code string, userID *uuid.UUID, orderAmount decimal.Decimal) (PreviewResult, error) {
	return PreviewTx(ctx, s.Q, s.now(), code, userID, orderAmount)
}

// PreviewTx evaluates a code without locking it or recording usage.
func PreviewTx(ctx context.Context, q Querier, now time.Time, code string, userID *uuid.UUID, orderAmount decimal.Decimal) (PreviewResult, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return PreviewResult{}, ErrNotEligible
	}
	row, err := q.GetPromoCodeByCode(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PreviewResult{}, ErrNotEligible
		}
		return PreviewResult{}, err
	}
	rule := ruleFromModel(row)
	if userID != nil {
		used, err := q.CountPromoUsageByUser(ctx, row.ID, *userID)
		if err != nil {
			return PreviewResult{}, err
		}
		rule.UserUsed = used > 0
	}
	if err := rule.Validate(now, orderAmount); err != nil {
		return PreviewResult{}, err
	}
	discount := Compute(orderAmount, rule)
	if !discount.IsPositive() {
		return PreviewResult{}, ErrNotEligible
	}
	return PreviewResult{Code: row.Code, Discount: discount}, nil
}

// Settle records code usage at order creation time. The per-order uniqueness
// row and the usage counter increment happen under the caller's transaction;
// the row lock on the code serialises concurrent settlements against the cap.
func (s *Service) Settle(ctx context.Context, code string, orderID uuid.UUID, userID *uuid.UUID, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	return SettleTx(ctx, s.Q, s.now(), code, orderID, userID, orderAmount)
}

// QuoteTx locks the code row and returns the discount it would grant. The
// lock is held for the rest of the caller's transaction, so a quote followed
// by RecordUsageTx sees a stable usage counter.
func QuoteTx(ctx context.Context, q Querier, now time.Time, code string, userID *uuid.UUID, orderAmount decimal.Decimal) (PromoCode, decimal.Decimal, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		return PromoCode{}, decimal.Zero, ErrNotEligible
	}
	row, err := q.GetPromoCodeByCodeForUpdate(ctx, trimmed)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PromoCode{}, decimal.Zero, ErrNotEligible
		}
		return PromoCode{}, decimal.Zero, err
	}
	rule := ruleFromModel(row)
	if userID != nil {
		used, err := q.CountPromoUsageByUser(ctx, row.ID, *userID)
		if err != nil {
			return PromoCode{}, decimal.Zero, err
		}
		rule.UserUsed = used > 0
	}
	if err := rule.Validate(now, orderAmount); err != nil {
		return PromoCode{}, decimal.Zero, err
	}
	discount := Compute(orderAmount, rule)
	if !discount.IsPositive() {
		return PromoCode{}, decimal.Zero, ErrNotEligible
	}
	return row, discount, nil
}

// RecordUsageTx writes the per-order usage row and bumps the counter once.
// The caller must hold the lock taken by QuoteTx and must have inserted the
// order row already.
func RecordUsageTx(ctx context.Context, q Querier, promoID, orderID uuid.UUID, userID *uuid.UUID, discount decimal.Decimal) error {
	if _, err := q.GetPromoUsageByOrder(ctx, promoID, orderID); err == nil {
		return ErrAlreadyUsed
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}
	if err := q.InsertPromoUsage(ctx, InsertUsageParams{
		PromoID:  promoID,
		UserID:   userID,
		OrderID:  orderID,
		Discount: discount,
	}); err != nil {
		return err
	}
	return q.IncrementPromoUsage(ctx, promoID)
}

// SettleTx is QuoteTx plus RecordUsageTx under the caller's transaction.
func SettleTx(ctx context.Context, q Querier, now time.Time, code string, orderID uuid.UUID, userID *uuid.UUID, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	row, discount, err := QuoteTx(ctx, q, now, code, userID, orderAmount)
	if err != nil {
		return decimal.Zero, err
	}
	if err := RecordUsageTx(ctx, q, row.ID, orderID, userID, discount); err != nil {
		return decimal.Zero, err
	}
	return discount, nil
}

// Active returns codes currently inside their validity window.
func (s *Service) Active(ctx context.Context) ([]PromoCode, error) {
	rows, err := s.Q.ListActivePromoCodes(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := rows[:0]
	for _, row := range rows {
		if ruleFromModel(row).Validate(now, row.MinimumOrder) == nil {
			out = append(out, row)
		}
	}
	return out, nil
}

// UsageHistory returns the caller's past code consumptions.
func (s *Service) UsageHistory(ctx context.Context, userID uuid.UUID) ([]Usage, error) {
	return s.Q.ListPromoUsageByUser(ctx, userID)
}

func ruleFromModel(row PromoCode) Rule {
	return Rule{
		Code:            row.Code,
		DiscountType:    row.DiscountType,
		DiscountValue:   row.DiscountValue,
		MinimumOrder:    row.MinimumOrder,
		MaximumDiscount: row.MaximumDiscount,
		Active:          row.Active,
		UsageLimit:      row.UsageLimit,
		CurrentUsage:    row.CurrentUsage,
		ValidFrom:       row.ValidFrom,
		ValidUntil:      row.ValidUntil,
	}
}
