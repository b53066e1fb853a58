package loyalty

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Profile carries the slice of account data earning depends on.
type Profile struct {
	UserID       uuid.UUID
	BirthMonth   int // 0 when unknown
	BirthDay     int
	ReferralCode string
}

// EarningQuerier extends the ledger with the lookups order-completion earning
// and referral bonuses need.
type EarningQuerier interface {
	Querier
	CountCompletedOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	GetProfile(ctx context.Context, userID uuid.UUID) (Profile, error)
	GetProfileByReferralCode(ctx context.Context, code string) (Profile, error)
	HasReferralTransaction(ctx context.Context, userID uuid.UUID, code string) (bool, error)
}

// EarningRunner executes fn inside a transaction scoped to an EarningQuerier.
type EarningRunner interface {
	RunEarningTx(ctx context.Context, fn func(q EarningQuerier) error) error
}

// OrderInfo is the order slice earning is a pure function of.
type OrderInfo struct {
	OrderID     uuid.UUID
	OrderNumber string
	UserID      *uuid.UUID
	Subtotal    decimal.Decimal
}

// Earning awards points for completed orders and referrals.
type Earning struct {
	Runner          EarningRunner
	PointsPerUnit   int
	FirstOrderBonus int64
	BirthdayBonus   int64
	ReferralPoints  int64
	Now             func() time.Time
	Log             zerolog.Logger
}

func (e *Earning) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// AwardForOrder credits order-completion points: floor(subtotal x rate) plus
// the first-order and birthday bonuses when they apply. Guest orders earn
// nothing. Returns total points credited.
func (e *Earning) AwardForOrder(ctx context.Context, order OrderInfo) (int64, error) {
	if order.UserID == nil {
		return 0, nil
	}
	userID := *order.UserID
	base := order.Subtotal.Mul(decimal.NewFromInt(int64(e.PointsPerUnit))).Floor().IntPart()

	var total int64
	err := e.Runner.RunEarningTx(ctx, func(q EarningQuerier) error {
		if base > 0 {
			reason := fmt.Sprintf("Order %s", order.OrderNumber)
			if _, err := EarnTx(ctx, q, userID, base, KindEarned, reason, &order.OrderID); err != nil {
				return err
			}
			total += base
		}

		completed, err := q.CountCompletedOrdersByUser(ctx, userID)
		if err != nil {
			return err
		}
		if completed == 1 && e.FirstOrderBonus > 0 {
			reason := fmt.Sprintf("Order %s - First Order Bonus", order.OrderNumber)
			if _, err := EarnTx(ctx, q, userID, e.FirstOrderBonus, KindFirstOrder, reason, &order.OrderID); err != nil {
				return err
			}
			total += e.FirstOrderBonus
		}

		profile, err := q.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		today := e.now()
		if profile.BirthMonth == int(today.Month()) && profile.BirthDay == today.Day() && e.BirthdayBonus > 0 {
			reason := fmt.Sprintf("Order %s - Birthday Bonus", order.OrderNumber)
			if _, err := EarnTx(ctx, q, userID, e.BirthdayBonus, KindBirthday, reason, &order.OrderID); err != nil {
				return err
			}
			total += e.BirthdayBonus
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}

// AwardForOrderBestEffort wraps AwardForOrder so a points failure can never
// fail the payment confirmation that triggered it. The failure is logged and
// swallowed.
func (e *Earning) AwardForOrderBestEffort(ctx context.Context, order OrderInfo) int64 {
	awarded, err := e.AwardForOrder(ctx, order)
	if err != nil {
		e.Log.Error().Err(err).
			Str("order_number", order.OrderNumber).
			Msg("points award failed after payment confirmation")
		return 0
	}
	return awarded
}

// ProcessReferral credits both sides of a referral once the referred user has
// completed an order. Idempotent per referral code.
func (e *Earning) ProcessReferral(ctx context.Context, userID uuid.UUID, referralCode string) (bool, error) {
	if e.ReferralPoints <= 0 || referralCode == "" {
		return false, nil
	}
	applied := false
	err := e.Runner.RunEarningTx(ctx, func(q EarningQuerier) error {
		referrer, err := q.GetProfileByReferralCode(ctx, referralCode)
		if err != nil {
			return err
		}
		completed, err := q.CountCompletedOrdersByUser(ctx, userID)
		if err != nil {
			return err
		}
		if completed == 0 {
			return nil
		}
		exists, err := q.HasReferralTransaction(ctx, userID, referralCode)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
		referred, err := q.GetProfile(ctx, userID)
		if err != nil {
			return err
		}
		if _, err := EarnTx(ctx, q, userID, e.ReferralPoints, KindReferral,
			fmt.Sprintf("Referral Bonus from %s", referralCode), nil); err != nil {
			return err
		}
		if _, err := EarnTx(ctx, q, referrer.UserID, e.ReferralPoints, KindReferral,
			fmt.Sprintf("Referral Bonus for %s", referred.ReferralCode), nil); err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}
