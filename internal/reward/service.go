// Package reward implements the reward catalog, redemption, application to
// orders, and the periodic expiry sweep.
package reward

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

// Status values for a redeemed reward.
const (
	StatusActive  = "active"
	StatusUsed    = "used"
	StatusExpired = "expired"
)

var (
	// ErrNotAvailable is returned when the catalog reward cannot be redeemed.
	ErrNotAvailable = errors.New("reward not available")
	// ErrCapReached is returned when the redemption cap is exhausted.
	ErrCapReached = errors.New("reward redemption cap reached")
	// ErrNotActive is returned when applying a reward that is used or expired.
	ErrNotActive = errors.New("reward is not active")
)

// Reward is a catalog entry.
type Reward struct {
	ID                 uuid.UUID        `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	Type               string           `json:"reward_type"` // discount, free_item, free_delivery, cashback
	PointsRequired     int64            `json:"points_required"`
	DiscountPercentage *decimal.Decimal `json:"discount_percentage,omitempty"`
	DiscountAmount     *decimal.Decimal `json:"discount_amount,omitempty"`
	FreeItemID         *uuid.UUID       `json:"free_item_id,omitempty"`
	Active             bool             `json:"is_active"`
	MaxRedemptions     int32            `json:"max_redemptions"` // 0 = unlimited
	CurrentRedemptions int32            `json:"current_redemptions"`
	ValidFrom          time.Time        `json:"valid_from"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
}

// Available reports whether the reward can be redeemed right now.
func (r Reward) Available(now time.Time) bool {
	if !r.Active {
		return false
	}
	if now.Before(r.ValidFrom) {
		return false
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return false
	}
	if r.MaxRedemptions > 0 && r.CurrentRedemptions >= r.MaxRedemptions {
		return false
	}
	return true
}

// Effect maps the catalog row onto the pricing engine's closed variant.
func (r Reward) Effect() pricing.Effect {
	switch r.Type {
	case "discount":
		if r.DiscountPercentage != nil && r.DiscountPercentage.IsPositive() {
			return pricing.Effect{Kind: pricing.EffectDiscountPercent, Percent: *r.DiscountPercentage}
		}
		if r.DiscountAmount != nil {
			return pricing.Effect{Kind: pricing.EffectDiscountFixed, Amount: *r.DiscountAmount}
		}
		return pricing.Effect{Kind: pricing.EffectDiscountFixed}
	case "free_delivery":
		return pricing.Effect{Kind: pricing.EffectFreeDelivery}
	case "cashback":
		var amount decimal.Decimal
		if r.DiscountAmount != nil {
			amount = *r.DiscountAmount
		}
		return pricing.Effect{Kind: pricing.EffectCashback, Amount: amount}
	default:
		return pricing.Effect{Kind: pricing.EffectFreeItem}
	}
}

// UserReward is one user's redeemed instance, single-use.
type UserReward struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	RewardID    uuid.UUID  `json:"reward_id"`
	PointsSpent int64      `json:"points_spent"`
	Status      string     `json:"status"`
	RedeemedAt  time.Time  `json:"redeemed_at"`
	UsedAt      *time.Time `json:"used_at,omitempty"`
	ExpiresAt   time.Time  `json:"expires_at"`
	OrderID     *uuid.UUID `json:"order_id,omitempty"`
}

// InsertUserRewardParams carries a new redemption row.
type InsertUserRewardParams struct {
	UserID      uuid.UUID
	RewardID    uuid.UUID
	PointsSpent int64
	ExpiresAt   time.Time
}

// Querier captures the database methods required by the reward engine; it
// embeds the ledger so redemption can spend points in the same transaction.
type Querier interface {
	loyalty.Querier
	ListRewards(ctx context.Context) ([]Reward, error)
	GetReward(ctx context.Context, id uuid.UUID) (Reward, error)
	GetRewardForUpdate(ctx context.Context, id uuid.UUID) (Reward, error)
	IncrementRedemptions(ctx context.Context, id uuid.UUID) error
	InsertUserReward(ctx context.Context, arg InsertUserRewardParams) (UserReward, error)
	GetUserRewardForUpdate(ctx context.Context, id uuid.UUID) (UserReward, error)
	ListUserRewards(ctx context.Context, userID uuid.UUID) ([]UserReward, error)
	MarkUserRewardUsed(ctx context.Context, id, orderID uuid.UUID, usedAt time.Time) error
	GetUserRewardByOrder(ctx context.Context, orderID uuid.UUID) (UserReward, error)
	ExpireUserRewards(ctx context.Context, now time.Time) (int64, error)
}

// TxRunner executes fn inside a database transaction scoped to q.
type TxRunner interface {
	RunRewardTx(ctx context.Context, fn func(q Querier) error) error
}

// Service implements redemption and expiry.
type Service struct {
	Runner TxRunner
	Expiry time.Duration
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Catalog lists catalog rewards with availability evaluated at read time.
func (s *Service) Catalog(ctx context.Context) ([]Reward, error) {
	var rows []Reward
	err := s.Runner.RunRewardTx(ctx, func(q Querier) error {
		var err error
		rows, err = q.ListRewards(ctx)
		return err
	})
	return rows, err
}

// Redeem spends points for a catalog reward. The availability check, the
// spend, the UserReward row, and the redemption counter increment are one
// transaction; the row lock on the reward serialises cap enforcement.
func (s *Service) Redeem(ctx context.Context, userID, rewardID uuid.UUID) (UserReward, error) {
	var redeemed UserReward
	err := s.Runner.RunRewardTx(ctx, func(q Querier) error {
		row, err := q.GetRewardForUpdate(ctx, rewardID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("reward not found")
			}
			return err
		}
		now := s.now()
		if !row.Available(now) {
			if row.MaxRedemptions > 0 && row.CurrentRedemptions >= row.MaxRedemptions {
				return ErrCapReached
			}
			return ErrNotAvailable
		}
		if _, err := loyalty.SpendTx(ctx, q, userID, row.PointsRequired,
			fmt.Sprintf("Redeemed: %s", row.Name)); err != nil {
			return err
		}
		redeemed, err = q.InsertUserReward(ctx, InsertUserRewardParams{
			UserID:      userID,
			RewardID:    rewardID,
			PointsSpent: row.PointsRequired,
			ExpiresAt:   now.Add(s.Expiry),
		})
		if err != nil {
			return err
		}
		return q.IncrementRedemptions(ctx, rewardID)
	})
	if err != nil {
		recordRewardEvent("redeem", err)
		return UserReward{}, err
	}
	recordRewardEvent("redeem", nil)
	return redeemed, nil
}

// Mine lists a user's redeemed rewards, lazily expiring stale ones in the
// returned view.
func (s *Service) Mine(ctx context.Context, userID uuid.UUID) ([]UserReward, error) {
	var rows []UserReward
	err := s.Runner.RunRewardTx(ctx, func(q Querier) error {
		var err error
		rows, err = q.ListUserRewards(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range rows {
		if rows[i].Status == StatusActive && now.After(rows[i].ExpiresAt) {
			rows[i].Status = StatusExpired
		}
	}
	return rows, nil
}

// ConsumeTx transitions an active, unexpired UserReward to used inside the
// caller's transaction and returns the catalog reward it points to. This is
// the single terminal transition: used rewards never expire and expired
// rewards can never be used.
func ConsumeTx(ctx context.Context, q Querier, userRewardID, orderID, userID uuid.UUID, now time.Time) (Reward, error) {
	row, err := q.GetUserRewardForUpdate(ctx, userRewardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reward{}, common.NotFoundError("reward not found")
		}
		return Reward{}, err
	}
	if row.UserID != userID {
		return Reward{}, common.ValidationError("reward does not belong to this user", nil)
	}
	if row.Status != StatusActive || now.After(row.ExpiresAt) {
		return Reward{}, ErrNotActive
	}
	catalogRow, err := q.GetReward(ctx, row.RewardID)
	if err != nil {
		return Reward{}, err
	}
	if err := q.MarkUserRewardUsed(ctx, row.ID, orderID, now); err != nil {
		return Reward{}, err
	}
	return catalogRow, nil
}

// CashbackForOrderTx returns the cashback amount carried by the reward
// consumed on orderID, or zero when the order used no reward or a reward of
// another type.
func CashbackForOrderTx(ctx context.Context, q Querier, orderID uuid.UUID) (decimal.Decimal, error) {
	row, err := q.GetUserRewardByOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	catalogRow, err := q.GetReward(ctx, row.RewardID)
	if err != nil {
		return decimal.Zero, err
	}
	return catalogRow.Effect().CashbackCredit(), nil
}

// PeekTx resolves an active, unexpired UserReward without consuming it.
func PeekTx(ctx context.Context, q Querier, userRewardID, userID uuid.UUID, now time.Time) (Reward, error) {
	row, err := q.GetUserRewardForUpdate(ctx, userRewardID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reward{}, common.NotFoundError("reward not found")
		}
		return Reward{}, err
	}
	if row.UserID != userID {
		return Reward{}, common.ValidationError("reward does not belong to this user", nil)
	}
	if row.Status != StatusActive || now.After(row.ExpiresAt) {
		return Reward{}, ErrNotActive
	}
	return q.GetReward(ctx, row.RewardID)
}

// SweepExpired transitions every overdue active UserReward to expired.
// Idempotent: a second run finds nothing left to expire.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	started := time.Now()
	var expired int64
	err := s.Runner.RunRewardTx(ctx, func(q Querier) error {
		var err error
		expired, err = q.ExpireUserRewards(ctx, s.now())
		return err
	})
	if err != nil {
		recordRewardEvent("sweep", err)
		return 0, err
	}
	if obs.RewardSweepDuration != nil {
		obs.RewardSweepDuration.Observe(obs.DurationMillis(time.Since(started)))
	}
	recordRewardEvent("sweep", nil)
	return expired, nil
}

func recordRewardEvent(event string, err error) {
	if obs.RewardEventsTotal == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	obs.RewardEventsTotal.WithLabelValues(event, result).Inc()
}
