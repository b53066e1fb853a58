package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/money"
)

// EffectKind enumerates the reward effect variants.
type EffectKind string

const (
	EffectDiscountPercent EffectKind = "discount_percent"
	EffectDiscountFixed   EffectKind = "discount_fixed"
	EffectFreeDelivery    EffectKind = "free_delivery"
	EffectCashback        EffectKind = "cashback"
	EffectFreeItem        EffectKind = "free_item"
)

// Effect is the closed tagged variant describing how a redeemed reward changes
// a priced cart. Every call site that needs a reward discount goes through
// Discount so the type branching lives in exactly one place.
type Effect struct {
	Kind    EffectKind
	Percent decimal.Decimal // discount_percent only
	Amount  decimal.Decimal // discount_fixed and cashback
}

var oneHundred = decimal.NewFromInt(100)

// Discount returns the contribution to the order's discount_amount.
// Cashback and free_item contribute nothing to the total.
func (e Effect) Discount(subtotal, deliveryFee decimal.Decimal) decimal.Decimal {
	switch e.Kind {
	case EffectDiscountPercent:
		return money.MulRate(subtotal, e.Percent.Div(oneHundred))
	case EffectDiscountFixed:
		return money.NonNegative(e.Amount)
	case EffectFreeDelivery:
		return deliveryFee
	case EffectCashback, EffectFreeItem:
		return decimal.Zero
	default:
		return decimal.Zero
	}
}

// CashbackCredit returns the points-equivalent credit owed after payment.
// Zero for every kind except cashback.
func (e Effect) CashbackCredit() decimal.Decimal {
	if e.Kind != EffectCashback {
		return decimal.Zero
	}
	return money.NonNegative(e.Amount)
}

// Label renders the human-readable descriptor stored on the order.
func (e Effect) Label(subtotal, deliveryFee decimal.Decimal) string {
	switch e.Kind {
	case EffectFreeItem:
		return "FREE ITEM"
	case EffectCashback:
		return money.Display(e.CashbackCredit())
	default:
		return money.Display(e.Discount(subtotal, deliveryFee))
	}
}
