package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/promo"
)

const promoColumns = `id, code, description, discount_type, discount_value,
	minimum_order_amount, maximum_discount, is_active, usage_limit,
	current_usage, valid_from, valid_until, created_at`

func scanPromoCode(row pgx.Row) (promo.PromoCode, error) {
	var p promo.PromoCode
	err := row.Scan(
		&p.ID, &p.Code, &p.Description, &p.DiscountType, &p.DiscountValue,
		&p.MinimumOrder, &p.MaximumDiscount, &p.Active, &p.UsageLimit,
		&p.CurrentUsage, &p.ValidFrom, &p.ValidUntil, &p.CreatedAt,
	)
	return p, err
}

func (q *Queries) GetPromoCodeByCode(ctx context.Context, code string) (promo.PromoCode, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1`, code)
	return scanPromoCode(row)
}

func (q *Queries) GetPromoCodeByCodeForUpdate(ctx context.Context, code string) (promo.PromoCode, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+promoColumns+` FROM promo_codes WHERE code = $1 FOR UPDATE`, code)
	return scanPromoCode(row)
}

func (q *Queries) CountPromoUsageByUser(ctx context.Context, promoID, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM promo_code_usage WHERE promo_code_id = $1 AND user_id = $2`,
		promoID, userID).Scan(&n)
	return n, err
}

func (q *Queries) GetPromoUsageByOrder(ctx context.Context, promoID, orderID uuid.UUID) (promo.Usage, error) {
	var u promo.Usage
	err := q.db.QueryRow(ctx,
		`SELECT id, promo_code_id, user_id, order_id, discount_amount, used_at
		FROM promo_code_usage WHERE promo_code_id = $1 AND order_id = $2`,
		promoID, orderID).
		Scan(&u.ID, &u.PromoID, &u.UserID, &u.OrderID, &u.Discount, &u.UsedAt)
	return u, err
}

func (q *Queries) InsertPromoUsage(ctx context.Context, arg promo.InsertUsageParams) error {
	_, err := q.db.Exec(ctx,
		`INSERT INTO promo_code_usage (promo_code_id, user_id, order_id, discount_amount)
		VALUES ($1, $2, $3, $4)`,
		arg.PromoID, arg.UserID, arg.OrderID, arg.Discount)
	return err
}

func (q *Queries) IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE promo_codes SET current_usage = current_usage + 1 WHERE id = $1`, promoID)
	return err
}

func (q *Queries) ListActivePromoCodes(ctx context.Context) ([]promo.PromoCode, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+promoColumns+` FROM promo_codes
		WHERE is_active AND valid_from <= now()
		AND (valid_until IS NULL OR valid_until > now())
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []promo.PromoCode
	for rows.Next() {
		p, err := scanPromoCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (q *Queries) ListPromoUsageByUser(ctx context.Context, userID uuid.UUID) ([]promo.Usage, error) {
	rows, err := q.db.Query(ctx,
		`SELECT u.id, u.promo_code_id, u.user_id, u.order_id, u.discount_amount, u.used_at, p.code
		FROM promo_code_usage u
		JOIN promo_codes p ON p.id = u.promo_code_id
		WHERE u.user_id = $1
		ORDER BY u.used_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []promo.Usage
	for rows.Next() {
		var u promo.Usage
		if err := rows.Scan(&u.ID, &u.PromoID, &u.UserID, &u.OrderID, &u.Discount, &u.UsedAt, &u.CodeLabel); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
