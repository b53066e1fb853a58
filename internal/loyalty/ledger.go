// Package loyalty implements the points ledger, tier derivation, loyalty
// cards, and order-completion earning.
package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/obs"
)

// Kind classifies a ledger entry.
type Kind string

const (
	KindEarned        Kind = "earned"
	KindSpent         Kind = "spent"
	KindExpired       Kind = "expired"
	KindBonus         Kind = "bonus"
	KindReferral      Kind = "referral"
	KindBirthday      Kind = "birthday"
	KindFirstOrder    Kind = "first_order"
	KindPhysicalVisit Kind = "physical_visit"
)

// ErrInsufficientBalance is returned by Spend when the balance cannot cover
// the requested amount. No mutation happens in that case.
var ErrInsufficientBalance = errors.New("insufficient points balance")

// Balance is the per-user points aggregate. It is only ever mutated through
// Earn and Spend so that balance = total_earned - total_spent always holds.
type Balance struct {
	UserID      uuid.UUID `json:"user_id"`
	Balance     int64     `json:"balance"`
	TotalEarned int64     `json:"total_earned"`
	TotalSpent  int64     `json:"total_spent"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Transaction is one append-only ledger entry.
type Transaction struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	Amount       int64      `json:"amount"`
	Kind         Kind       `json:"transaction_type"`
	Reason       string     `json:"reason"`
	BalanceAfter int64      `json:"balance_after"`
	OrderID      *uuid.UUID `json:"order_id,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// InsertTransactionParams carries a new ledger entry.
type InsertTransactionParams struct {
	UserID       uuid.UUID
	Amount       int64
	Kind         Kind
	Reason       string
	BalanceAfter int64
	OrderID      *uuid.UUID
}

// UpdateBalanceParams carries the post-mutation aggregate values.
type UpdateBalanceParams struct {
	UserID      uuid.UUID
	Balance     int64
	TotalEarned int64
	TotalSpent  int64
}

// Querier captures the database methods required by the ledger.
type Querier interface {
	GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (Balance, error)
	UpdateBalance(ctx context.Context, arg UpdateBalanceParams) error
	InsertTransaction(ctx context.Context, arg InsertTransactionParams) (Transaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Transaction, error)
	GetBalance(ctx context.Context, userID uuid.UUID) (Balance, error)
}

// TxRunner executes fn inside a database transaction scoped to q.
type TxRunner interface {
	RunTx(ctx context.Context, fn func(q Querier) error) error
}

// Ledger exposes the two balance mutators. Each call runs in its own
// transaction; composite operations use EarnTx/SpendTx under their own.
type Ledger struct {
	Runner TxRunner
	Log    zerolog.Logger
}

// Earn credits points and appends the matching ledger entry atomically.
func (l *Ledger) Earn(ctx context.Context, userID uuid.UUID, amount int64, kind Kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	var txn Transaction
	err := l.Runner.RunTx(ctx, func(q Querier) error {
		var err error
		txn, err = EarnTx(ctx, q, userID, amount, kind, reason, orderID)
		return err
	})
	return txn, err
}

// Spend debits points and appends the matching ledger entry atomically.
func (l *Ledger) Spend(ctx context.Context, userID uuid.UUID, amount int64, reason string) (Transaction, error) {
	var txn Transaction
	err := l.Runner.RunTx(ctx, func(q Querier) error {
		var err error
		txn, err = SpendTx(ctx, q, userID, amount, reason)
		return err
	})
	return txn, err
}

// Summary returns the caller's balance without locking.
func (l *Ledger) Summary(ctx context.Context, userID uuid.UUID) (Balance, error) {
	var bal Balance
	err := l.Runner.RunTx(ctx, func(q Querier) error {
		var err error
		bal, err = q.GetBalance(ctx, userID)
		return err
	})
	return bal, err
}

// History returns ledger entries newest first.
func (l *Ledger) History(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Transaction, error) {
	var rows []Transaction
	err := l.Runner.RunTx(ctx, func(q Querier) error {
		var err error
		rows, err = q.ListTransactions(ctx, userID, limit, offset)
		return err
	})
	return rows, err
}

// EarnTx credits points using the caller's transaction. The balance row is
// locked for the duration so concurrent mutations serialise per user.
func EarnTx(ctx context.Context, q Querier, userID uuid.UUID, amount int64, kind Kind, reason string, orderID *uuid.UUID) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, common.ValidationError("points amount must be positive", nil)
	}
	bal, err := q.GetBalanceForUpdate(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	next := UpdateBalanceParams{
		UserID:      userID,
		Balance:     bal.Balance + amount,
		TotalEarned: bal.TotalEarned + amount,
		TotalSpent:  bal.TotalSpent,
	}
	if err := checkInvariant(next); err != nil {
		return Transaction{}, err
	}
	if err := q.UpdateBalance(ctx, next); err != nil {
		return Transaction{}, err
	}
	txn, err := q.InsertTransaction(ctx, InsertTransactionParams{
		UserID:       userID,
		Amount:       amount,
		Kind:         kind,
		Reason:       reason,
		BalanceAfter: next.Balance,
		OrderID:      orderID,
	})
	if err != nil {
		return Transaction{}, err
	}
	obs.RecordPoints("earn", string(kind), amount)
	return txn, nil
}

// SpendTx debits points using the caller's transaction. It fails without any
// mutation when the balance cannot cover the amount.
func SpendTx(ctx context.Context, q Querier, userID uuid.UUID, amount int64, reason string) (Transaction, error) {
	if amount <= 0 {
		return Transaction{}, common.ValidationError("points amount must be positive", nil)
	}
	bal, err := q.GetBalanceForUpdate(ctx, userID)
	if err != nil {
		return Transaction{}, err
	}
	if amount > bal.Balance {
		return Transaction{}, ErrInsufficientBalance
	}
	next := UpdateBalanceParams{
		UserID:      userID,
		Balance:     bal.Balance - amount,
		TotalEarned: bal.TotalEarned,
		TotalSpent:  bal.TotalSpent + amount,
	}
	if err := checkInvariant(next); err != nil {
		return Transaction{}, err
	}
	if err := q.UpdateBalance(ctx, next); err != nil {
		return Transaction{}, err
	}
	txn, err := q.InsertTransaction(ctx, InsertTransactionParams{
		UserID:       userID,
		Amount:       -amount,
		Kind:         KindSpent,
		Reason:       reason,
		BalanceAfter: next.Balance,
	})
	if err != nil {
		return Transaction{}, err
	}
	obs.RecordPoints("spend", string(KindSpent), amount)
	return txn, nil
}

func checkInvariant(b UpdateBalanceParams) error {
	if b.Balance < 0 || b.Balance != b.TotalEarned-b.TotalSpent {
		return common.IntegrityError(
			fmt.Sprintf("points balance invariant broken for user %s: balance=%d earned=%d spent=%d",
				b.UserID, b.Balance, b.TotalEarned, b.TotalSpent), nil)
	}
	return nil
}
