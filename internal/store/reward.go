package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/reward"
)

const rewardColumns = `id, name, description, reward_type, points_required,
	discount_percentage, discount_amount, free_item_id, is_active,
	max_redemptions, current_redemptions, valid_from, valid_until, created_at`

func scanReward(row pgx.Row) (reward.Reward, error) {
	var r reward.Reward
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Type, &r.PointsRequired,
		&r.DiscountPercentage, &r.DiscountAmount, &r.FreeItemID, &r.Active,
		&r.MaxRedemptions, &r.CurrentRedemptions, &r.ValidFrom, &r.ValidUntil, &r.CreatedAt,
	)
	return r, err
}

const userRewardColumns = `id, user_id, reward_id, points_spent, status,
	redeemed_at, used_at, expires_at, order_id`

func scanUserReward(row pgx.Row) (reward.UserReward, error) {
	var ur reward.UserReward
	err := row.Scan(
		&ur.ID, &ur.UserID, &ur.RewardID, &ur.PointsSpent, &ur.Status,
		&ur.RedeemedAt, &ur.UsedAt, &ur.ExpiresAt, &ur.OrderID,
	)
	return ur, err
}

func (q *Queries) ListRewards(ctx context.Context) ([]reward.Reward, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+rewardColumns+` FROM rewards
		WHERE is_active ORDER BY points_required, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reward.Reward
	for rows.Next() {
		r, err := scanReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (q *Queries) GetReward(ctx context.Context, id uuid.UUID) (reward.Reward, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE id = $1`, id)
	return scanReward(row)
}

func (q *Queries) GetRewardForUpdate(ctx context.Context, id uuid.UUID) (reward.Reward, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE id = $1 FOR UPDATE`, id)
	return scanReward(row)
}

func (q *Queries) IncrementRedemptions(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE rewards SET current_redemptions = current_redemptions + 1 WHERE id = $1`, id)
	return err
}

func (q *Queries) InsertUserReward(ctx context.Context, arg reward.InsertUserRewardParams) (reward.UserReward, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO user_rewards (user_id, reward_id, points_spent, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userRewardColumns,
		arg.UserID, arg.RewardID, arg.PointsSpent, arg.ExpiresAt)
	return scanUserReward(row)
}

func (q *Queries) GetUserRewardForUpdate(ctx context.Context, id uuid.UUID) (reward.UserReward, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+userRewardColumns+` FROM user_rewards WHERE id = $1 FOR UPDATE`, id)
	return scanUserReward(row)
}

func (q *Queries) ListUserRewards(ctx context.Context, userID uuid.UUID) ([]reward.UserReward, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+userRewardColumns+` FROM user_rewards
		WHERE user_id = $1 ORDER BY redeemed_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []reward.UserReward
	for rows.Next() {
		ur, err := scanUserReward(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

func (q *Queries) MarkUserRewardUsed(ctx context.Context, id, orderID uuid.UUID, usedAt time.Time) error {
	_, err := q.db.Exec(ctx,
		`UPDATE user_rewards SET status = 'used', order_id = $2, used_at = $3 WHERE id = $1`,
		id, orderID, usedAt)
	return err
}

func (q *Queries) GetUserRewardByOrder(ctx context.Context, orderID uuid.UUID) (reward.UserReward, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+userRewardColumns+` FROM user_rewards WHERE order_id = $1`, orderID)
	return scanUserReward(row)
}

func (q *Queries) ExpireUserRewards(ctx context.Context, now time.Time) (int64, error) {
	tag, err := q.db.Exec(ctx,
		`UPDATE user_rewards SET status = 'expired'
		WHERE status = 'active' AND expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
