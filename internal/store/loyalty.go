package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/loyalty"
)

func scanBalance(row pgx.Row) (loyalty.Balance, error) {
	var b loyalty.Balance
	err := row.Scan(&b.UserID, &b.Balance, &b.TotalEarned, &b.TotalSpent, &b.UpdatedAt)
	return b, err
}

func (q *Queries) GetBalance(ctx context.Context, userID uuid.UUID) (loyalty.Balance, error) {
	row := q.db.QueryRow(ctx, `
		SELECT user_id, balance, total_earned, total_spent, updated_at
		FROM loyalty_balances WHERE user_id = $1`, userID)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return loyalty.Balance{UserID: userID}, nil
	}
	return b, err
}

func (q *Queries) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (loyalty.Balance, error) {
	// Seed-then-lock so first-time earners have a row to lock.
	if _, err := q.db.Exec(ctx, `
		INSERT INTO loyalty_balances (user_id) VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING`, userID); err != nil {
		return loyalty.Balance{}, err
	}
	row := q.db.QueryRow(ctx, `
		SELECT user_id, balance, total_earned, total_spent, updated_at
		FROM loyalty_balances WHERE user_id = $1 FOR UPDATE`, userID)
	return scanBalance(row)
}

func (q *Queries) UpdateBalance(ctx context.Context, arg loyalty.UpdateBalanceParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE loyalty_balances
		SET balance = $2, total_earned = $3, total_spent = $4, updated_at = now()
		WHERE user_id = $1`,
		arg.UserID, arg.Balance, arg.TotalEarned, arg.TotalSpent)
	return err
}

func (q *Queries) InsertTransaction(ctx context.Context, arg loyalty.InsertTransactionParams) (loyalty.Transaction, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO loyalty_transactions (user_id, amount, transaction_type, reason, balance_after, order_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, user_id, amount, transaction_type, reason, balance_after, order_id, created_at`,
		arg.UserID, arg.Amount, arg.Kind, arg.Reason, arg.BalanceAfter, arg.OrderID)
	var t loyalty.Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Reason, &t.BalanceAfter, &t.OrderID, &t.CreatedAt)
	return t, err
}

func (q *Queries) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]loyalty.Transaction, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, user_id, amount, transaction_type, reason, balance_after, order_id, created_at
		FROM loyalty_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []loyalty.Transaction
	for rows.Next() {
		var t loyalty.Transaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Amount, &t.Kind, &t.Reason, &t.BalanceAfter, &t.OrderID, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (q *Queries) CountCompletedOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*) FROM orders
		WHERE user_id = $1 AND payment_status = 'paid'`, userID).Scan(&n)
	return n, err
}

func (q *Queries) GetProfile(ctx context.Context, userID uuid.UUID) (loyalty.Profile, error) {
	row := q.db.QueryRow(ctx, `
		SELECT user_id, birth_month, birth_day, referral_code
		FROM user_profiles WHERE user_id = $1`, userID)
	var p loyalty.Profile
	err := row.Scan(&p.UserID, &p.BirthMonth, &p.BirthDay, &p.ReferralCode)
	if errors.Is(err, pgx.ErrNoRows) {
		return loyalty.Profile{UserID: userID}, nil
	}
	return p, err
}

func (q *Queries) GetProfileByReferralCode(ctx context.Context, code string) (loyalty.Profile, error) {
	row := q.db.QueryRow(ctx, `
		SELECT user_id, birth_month, birth_day, referral_code
		FROM user_profiles WHERE referral_code = $1`, code)
	var p loyalty.Profile
	err := row.Scan(&p.UserID, &p.BirthMonth, &p.BirthDay, &p.ReferralCode)
	return p, err
}

func (q *Queries) HasReferralTransaction(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	var exists bool
	err := q.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM loyalty_transactions
			WHERE user_id = $1 AND transaction_type = 'referral' AND reason LIKE '%' || $2
		)`, userID, code).Scan(&exists)
	return exists, err
}

func scanCard(row pgx.Row) (loyalty.Card, error) {
	var c loyalty.Card
	err := row.Scan(&c.ID, &c.UserID, &c.QRCode, &c.Active, &c.LastScanAt, &c.CreatedAt)
	return c, err
}

func (q *Queries) GetCardByQRForUpdate(ctx context.Context, qrCode string) (loyalty.Card, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, qr_code, is_active, last_scan_at, created_at
		FROM loyalty_cards WHERE qr_code = $1 FOR UPDATE`, qrCode)
	return scanCard(row)
}

func (q *Queries) GetCardByUser(ctx context.Context, userID uuid.UUID) (loyalty.Card, error) {
	row := q.db.QueryRow(ctx, `
		SELECT id, user_id, qr_code, is_active, last_scan_at, created_at
		FROM loyalty_cards WHERE user_id = $1`, userID)
	return scanCard(row)
}

func (q *Queries) UpdateCardScan(ctx context.Context, cardID uuid.UUID, at time.Time) error {
	_, err := q.db.Exec(ctx, `UPDATE loyalty_cards SET last_scan_at = $2 WHERE id = $1`, cardID, at)
	return err
}

// AssignCard links a card to a user. Activation rides along: a card is active
// exactly while it is assigned.
func (q *Queries) AssignCard(ctx context.Context, cardID, userID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE loyalty_cards SET user_id = $2, is_active = TRUE WHERE id = $1`, cardID, userID)
	return err
}

// ReleaseCard unlinks a card and deactivates it so a recycled card cannot be
// scanned until it is handed to the next customer.
func (q *Queries) ReleaseCard(ctx context.Context, cardID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `UPDATE loyalty_cards SET user_id = NULL, is_active = FALSE WHERE id = $1`, cardID)
	return err
}
