// Package pricing computes canonical order totals and reconciles
// client-proposed totals against server arithmetic.
package pricing

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/money"
	"github.com/noah-isme/backend-resto/internal/settings"
)

// Mode is the order fulfilment mode.
type Mode string

const (
	ModeDelivery Mode = "delivery"
	ModePickup   Mode = "pickup"
)

// Caps are sanity ceilings for reconciliation, not business limits.
var (
	SubtotalCap    = decimal.RequireFromString("1000000")
	DeliveryFeeCap = decimal.RequireFromString("5000")
	TaxRateMax     = decimal.RequireFromString("0.25")
)

// Line is one cart entry with the unit price already snapshotted by the caller.
type Line struct {
	MenuItemID uuid.UUID
	UnitPrice  decimal.Decimal
	Quantity   int
}

// Total returns unit price times quantity.
func (l Line) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Result is the canonical totals breakdown.
type Result struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	TaxRate        decimal.Decimal `json:"tax_rate"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	DeliveryFee    decimal.Decimal `json:"delivery_fee"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	RewardLabel    string          `json:"reward_discount"`
	Total          decimal.Decimal `json:"total"`
}

// Proposal carries the client-computed totals submitted on order creation.
type Proposal struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	DeliveryFee decimal.Decimal `json:"delivery_fee"`
	Discount    decimal.Decimal `json:"discount_amount"`
	Total       decimal.Decimal `json:"total"`
}

// Input groups everything Price needs.
type Input struct {
	Lines         []Line
	Mode          Mode
	DeliveryFee   decimal.Decimal
	Params        settings.Params
	Effect        *Effect
	PromoDiscount decimal.Decimal

	// ClampToFloor selects the preview behaviour for under-floor totals:
	// reduce the discount until the total sits exactly at the minimum.
	// When false (order creation) an under-floor total is rejected.
	ClampToFloor bool
}

// Outcome describes how Reconcile resolved a proposal.
type Outcome string

const (
	OutcomeAccepted   Outcome = "accepted"
	OutcomeRecomputed Outcome = "recomputed"
)

// Price computes the totals breakdown from scratch.
func Price(in Input) (Result, error) {
	if len(in.Lines) == 0 {
		return Result{}, common.ValidationError("cart must contain at least one item", nil)
	}
	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return Result{}, common.ValidationError("quantity must be at least 1", map[string]string{"menu_item_id": line.MenuItemID.String()})
		}
		if line.UnitPrice.IsNegative() {
			return Result{}, common.ValidationError("unit price must not be negative", map[string]string{"menu_item_id": line.MenuItemID.String()})
		}
	}
	if in.Mode == ModePickup && !in.DeliveryFee.IsZero() {
		return Result{}, common.ValidationError("delivery fee must be 0 for pickup orders", nil)
	}
	if in.DeliveryFee.IsNegative() {
		return Result{}, common.ValidationError("delivery fee must not be negative", nil)
	}
	if in.PromoDiscount.IsNegative() {
		return Result{}, common.ValidationError("promo discount must not be negative", nil)
	}

	subtotal := decimal.Zero
	for _, line := range in.Lines {
		subtotal = subtotal.Add(line.Total())
	}
	tax := money.MulRate(subtotal, in.Params.VATRate)

	discount := in.PromoDiscount
	label := "0"
	if in.Effect != nil {
		discount = discount.Add(in.Effect.Discount(subtotal, in.DeliveryFee))
		label = in.Effect.Label(subtotal, in.DeliveryFee)
	}

	gross := subtotal.Add(tax).Add(in.DeliveryFee)
	if discount.GreaterThan(gross) {
		return Result{}, common.ValidationError("discount exceeds order value", nil)
	}
	total := gross.Sub(discount)

	floor := in.Params.MinimumOrder
	if total.LessThan(floor) {
		if !in.ClampToFloor {
			return Result{}, common.ValidationError(
				fmt.Sprintf("order total %s is below the minimum of %s", money.Display(total), money.Display(floor)), nil)
		}
		// Give back discount until the total reaches the floor. If even a
		// zero discount cannot reach it the cart itself is too small.
		clamped := gross.Sub(floor)
		if clamped.IsNegative() {
			return Result{}, common.ValidationError(
				fmt.Sprintf("order total %s is below the minimum of %s", money.Display(gross), money.Display(floor)), nil)
		}
		discount = clamped
		total = floor
	}

	return Result{
		Subtotal:       subtotal,
		TaxRate:        in.Params.VATRate,
		TaxAmount:      tax,
		DeliveryFee:    in.DeliveryFee,
		DiscountAmount: discount,
		RewardLabel:    label,
		Total:          total,
	}, nil
}

// Reconcile validates a client proposal against the soundness bounds. A sound
// proposal is accepted verbatim; otherwise every field is recomputed from the
// cart and authoritative settings, ignoring the client's numbers.
func Reconcile(proposal Proposal, in Input) (Result, Outcome, error) {
	if soundProposal(proposal, in.Params.MinimumOrder) {
		label := "0"
		if in.Effect != nil {
			label = in.Effect.Label(proposal.Subtotal, proposal.DeliveryFee)
		}
		taxRate := decimal.Zero
		if proposal.Subtotal.IsPositive() {
			taxRate = proposal.TaxAmount.Div(proposal.Subtotal).Round(4)
		}
		return Result{
			Subtotal:       proposal.Subtotal,
			TaxRate:        taxRate,
			TaxAmount:      proposal.TaxAmount,
			DeliveryFee:    proposal.DeliveryFee,
			DiscountAmount: proposal.Discount,
			RewardLabel:    label,
			Total:          proposal.Total,
		}, OutcomeAccepted, nil
	}

	recomputed := in
	recomputed.ClampToFloor = true
	result, err := Price(recomputed)
	if err != nil {
		return Result{}, OutcomeRecomputed, err
	}
	return result, OutcomeRecomputed, nil
}

// soundProposal checks the soundness bounds plus the minimum-order floor.
func soundProposal(p Proposal, minimumOrder decimal.Decimal) bool {
	derived := p.Subtotal.Add(p.TaxAmount).Add(p.DeliveryFee).Sub(p.Discount)
	if !money.ApproxEqual(derived, p.Total) {
		return false
	}
	if !p.Subtotal.IsPositive() || p.Subtotal.GreaterThan(SubtotalCap) {
		return false
	}
	impliedRate := p.TaxAmount.Div(p.Subtotal)
	if impliedRate.IsNegative() || impliedRate.GreaterThan(TaxRateMax) {
		return false
	}
	if p.DeliveryFee.IsNegative() || p.DeliveryFee.GreaterThan(DeliveryFeeCap) {
		return false
	}
	if p.Discount.IsNegative() || p.Discount.GreaterThan(p.Subtotal.Add(p.TaxAmount).Add(p.DeliveryFee)) {
		return false
	}
	if p.Total.LessThan(minimumOrder) {
		return false
	}
	return true
}
