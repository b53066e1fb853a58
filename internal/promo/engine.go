package promo

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/money"
)

var (
	// ErrNotEligible is returned when the code cannot be applied to the order.
	ErrNotEligible = errors.New("promo code not eligible")
	// ErrUsageLimitReached indicates the code has exhausted the global usage cap.
	ErrUsageLimitReached = errors.New("promo code usage limit reached")
	// ErrInactive is returned when the code is disabled or not yet valid.
	ErrInactive = errors.New("promo code not active")
	// ErrExpired is returned after the validity window has closed.
	ErrExpired = errors.New("promo code expired")
	// ErrMinimumSpendUnmet indicates the order total did not meet the code requirement.
	ErrMinimumSpendUnmet = errors.New("promo code minimum order amount not met")
	// ErrAlreadyUsed indicates the caller already consumed this code.
	ErrAlreadyUsed = errors.New("promo code already used")
)

// Rule captures the runtime constraints of a promo code.
type Rule struct {
	Code            string
	DiscountType    string // percentage or fixed
	DiscountValue   decimal.Decimal
	MinimumOrder    decimal.Decimal
	MaximumDiscount *decimal.Decimal
	Active          bool
	UsageLimit      int32 // 0 = unlimited
	CurrentUsage    int32
	ValidFrom       time.Time
	ValidUntil      *time.Time
	UserUsed        bool
}

// Validate ensures the rule can be applied at the provided instant and order amount.
func (r Rule) Validate(now time.Time, orderAmount decimal.Decimal) error {
	if !r.Active {
		return ErrInactive
	}
	if now.Before(r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrExpired
	}
	if r.UsageLimit > 0 && r.CurrentUsage >= r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.UserUsed {
		return ErrAlreadyUsed
	}
	if orderAmount.LessThan(r.MinimumOrder) {
		return ErrMinimumSpendUnmet
	}
	return nil
}

var oneHundred = decimal.NewFromInt(100)

// Compute determines the discount for the given order amount. The discount is
// capped at the maximum discount (when set) and at the order amount itself.
func Compute(orderAmount decimal.Decimal, r Rule) decimal.Decimal {
	if orderAmount.LessThan(r.MinimumOrder) {
		return decimal.Zero
	}
	var discount decimal.Decimal
	if strings.EqualFold(r.DiscountType, "percentage") {
		discount = money.MulRate(orderAmount, r.DiscountValue.Div(oneHundred))
	} else {
		discount = r.DiscountValue
	}
	if r.MaximumDiscount != nil && discount.GreaterThan(*r.MaximumDiscount) {
		discount = *r.MaximumDiscount
	}
	if discount.GreaterThan(orderAmount) {
		discount = orderAmount
	}
	return money.NonNegative(discount)
}
