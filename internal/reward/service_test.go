package reward

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type memStore struct {
	balances    map[uuid.UUID]loyalty.Balance
	txns        []loyalty.Transaction
	rewards     map[uuid.UUID]Reward
	userRewards map[uuid.UUID]UserReward
}

func newMemStore() *memStore {
	return &memStore{
		balances:    map[uuid.UUID]loyalty.Balance{},
		rewards:     map[uuid.UUID]Reward{},
		userRewards: map[uuid.UUID]UserReward{},
	}
}

func (m *memStore) RunRewardTx(ctx context.Context, fn func(Querier) error) error { return fn(m) }

func (m *memStore) GetBalanceForUpdate(ctx context.Context, userID uuid.UUID) (loyalty.Balance, error) {
	if bal, ok := m.balances[userID]; ok {
		return bal, nil
	}
	bal := loyalty.Balance{UserID: userID}
	m.balances[userID] = bal
	return bal, nil
}

func (m *memStore) GetBalance(ctx context.Context, userID uuid.UUID) (loyalty.Balance, error) {
	return m.GetBalanceForUpdate(ctx, userID)
}

func (m *memStore) UpdateBalance(ctx context.Context, arg loyalty.UpdateBalanceParams) error {
	m.balances[arg.UserID] = loyalty.Balance{
		UserID:      arg.UserID,
		Balance:     arg.Balance,
		TotalEarned: arg.TotalEarned,
		TotalSpent:  arg.TotalSpent,
	}
	return nil
}

func (m *memStore) InsertTransaction(ctx context.Context, arg loyalty.InsertTransactionParams) (loyalty.Transaction, error) {
	txn := loyalty.Transaction{
		ID:           uuid.New(),
		UserID:       arg.UserID,
		Amount:       arg.Amount,
		Kind:         arg.Kind,
		Reason:       arg.Reason,
		BalanceAfter: arg.BalanceAfter,
		OrderID:      arg.OrderID,
	}
	m.txns = append(m.txns, txn)
	return txn, nil
}

func (m *memStore) ListTransactions(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]loyalty.Transaction, error) {
	return m.txns, nil
}

func (m *memStore) ListRewards(ctx context.Context) ([]Reward, error) {
	var out []Reward
	for _, r := range m.rewards {
		out = append(out, r)
	}
	return out, nil
}

func (m *memStore) GetReward(ctx context.Context, id uuid.UUID) (Reward, error) {
	if r, ok := m.rewards[id]; ok {
		return r, nil
	}
	return Reward{}, pgx.ErrNoRows
}

func (m *memStore) GetRewardForUpdate(ctx context.Context, id uuid.UUID) (Reward, error) {
	return m.GetReward(ctx, id)
}

func (m *memStore) IncrementRedemptions(ctx context.Context, id uuid.UUID) error {
	r := m.rewards[id]
	r.CurrentRedemptions++
	m.rewards[id] = r
	return nil
}

func (m *memStore) InsertUserReward(ctx context.Context, arg InsertUserRewardParams) (UserReward, error) {
	row := UserReward{
		ID:          uuid.New(),
		UserID:      arg.UserID,
		RewardID:    arg.RewardID,
		PointsSpent: arg.PointsSpent,
		Status:      StatusActive,
		RedeemedAt:  time.Now(),
		ExpiresAt:   arg.ExpiresAt,
	}
	m.userRewards[row.ID] = row
	return row, nil
}

func (m *memStore) GetUserRewardForUpdate(ctx context.Context, id uuid.UUID) (UserReward, error) {
	if row, ok := m.userRewards[id]; ok {
		return row, nil
	}
	return UserReward{}, pgx.ErrNoRows
}

func (m *memStore) ListUserRewards(ctx context.Context, userID uuid.UUID) ([]UserReward, error) {
	var out []UserReward
	for _, row := range m.userRewards {
		if row.UserID == userID {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memStore) MarkUserRewardUsed(ctx context.Context, id, orderID uuid.UUID, usedAt time.Time) error {
	row := m.userRewards[id]
	row.Status = StatusUsed
	row.UsedAt = &usedAt
	row.OrderID = &orderID
	m.userRewards[id] = row
	return nil
}

func (m *memStore) GetUserRewardByOrder(ctx context.Context, orderID uuid.UUID) (UserReward, error) {
	for _, row := range m.userRewards {
		if row.OrderID != nil && *row.OrderID == orderID {
			return row, nil
		}
	}
	return UserReward{}, pgx.ErrNoRows
}

func (m *memStore) ExpireUserRewards(ctx context.Context, now time.Time) (int64, error) {
	var count int64
	for id, row := range m.userRewards {
		if row.Status == StatusActive && now.After(row.ExpiresAt) {
			row.Status = StatusExpired
			m.userRewards[id] = row
			count++
		}
	}
	return count, nil
}

func freeDeliveryReward() Reward {
	return Reward{
		ID:             uuid.New(),
		Name:           "Free Delivery",
		Type:           "free_delivery",
		PointsRequired: 2000,
		Active:         true,
		MaxRedemptions: 10,
		ValidFrom:      time.Now().Add(-time.Hour),
	}
}

func newService(store *memStore) *Service {
	return &Service{Runner: store, Expiry: 30 * 24 * time.Hour}
}

func TestRedeemSpendsPointsAndCreatesInstance(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	userID := uuid.New()
	store.balances[userID] = loyalty.Balance{UserID: userID, Balance: 5000, TotalEarned: 5000}
	row := freeDeliveryReward()
	store.rewards[row.ID] = row

	redeemed, err := svc.Redeem(context.Background(), userID, row.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, redeemed.Status)
	assert.Equal(t, int64(2000), redeemed.PointsSpent)
	assert.Equal(t, int64(3000), store.balances[userID].Balance)
	assert.Equal(t, int32(1), store.rewards[row.ID].CurrentRedemptions)
	assert.WithinDuration(t, time.Now().Add(30*24*time.Hour), redeemed.ExpiresAt, time.Minute)
}

func TestRedeemInsufficientBalance(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	userID := uuid.New()
	store.balances[userID] = loyalty.Balance{UserID: userID, Balance: 100, TotalEarned: 100}
	row := freeDeliveryReward()
	store.rewards[row.ID] = row

	_, err := svc.Redeem(context.Background(), userID, row.ID)
	assert.ErrorIs(t, err, loyalty.ErrInsufficientBalance)
	assert.Equal(t, int64(100), store.balances[userID].Balance)
	assert.Empty(t, store.userRewards)
	assert.Equal(t, int32(0), store.rewards[row.ID].CurrentRedemptions)
}

func TestRedeemCapReached(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	userID := uuid.New()
	store.balances[userID] = loyalty.Balance{UserID: userID, Balance: 5000, TotalEarned: 5000}
	row := freeDeliveryReward()
	row.CurrentRedemptions = row.MaxRedemptions
	store.rewards[row.ID] = row

	_, err := svc.Redeem(context.Background(), userID, row.ID)
	assert.ErrorIs(t, err, ErrCapReached)
}

func TestConsumeIsSingleUse(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	userID := uuid.New()
	store.balances[userID] = loyalty.Balance{UserID: userID, Balance: 5000, TotalEarned: 5000}
	row := freeDeliveryReward()
	store.rewards[row.ID] = row

	redeemed, err := svc.Redeem(context.Background(), userID, row.ID)
	require.NoError(t, err)

	orderID := uuid.New()
	now := time.Now()
	catalogRow, err := ConsumeTx(context.Background(), store, redeemed.ID, orderID, userID, now)
	require.NoError(t, err)
	assert.Equal(t, pricing.EffectFreeDelivery, catalogRow.Effect().Kind)

	_, err = ConsumeTx(context.Background(), store, redeemed.ID, uuid.New(), userID, now)
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestConsumeRejectsExpired(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	expired := UserReward{
		ID:        uuid.New(),
		UserID:    userID,
		RewardID:  uuid.New(),
		Status:    StatusActive,
		ExpiresAt: time.Now().Add(-time.Hour),
	}
	store.userRewards[expired.ID] = expired

	_, err := ConsumeTx(context.Background(), store, expired.ID, uuid.New(), userID, time.Now())
	assert.ErrorIs(t, err, ErrNotActive)
	assert.Equal(t, StatusActive, store.userRewards[expired.ID].Status)
}

func TestConsumeRejectsForeignReward(t *testing.T) {
	store := newMemStore()
	owner := uuid.New()
	row := UserReward{
		ID: uuid.New(), UserID: owner, RewardID: uuid.New(),
		Status: StatusActive, ExpiresAt: time.Now().Add(time.Hour),
	}
	store.userRewards[row.ID] = row

	_, err := ConsumeTx(context.Background(), store, row.ID, uuid.New(), uuid.New(), time.Now())
	require.Error(t, err)
}

func TestCashbackForOrder(t *testing.T) {
	store := newMemStore()
	userID := uuid.New()
	amount := dec("750")
	cashback := Reward{
		ID: uuid.New(), Name: "Cashback 750", Type: "cashback",
		DiscountAmount: &amount, PointsRequired: 1000, Active: true,
		MaxRedemptions: 0, ValidFrom: time.Now().Add(-time.Hour),
	}
	store.rewards[cashback.ID] = cashback
	redeemed := UserReward{
		ID: uuid.New(), UserID: userID, RewardID: cashback.ID,
		Status: StatusActive, ExpiresAt: time.Now().Add(time.Hour),
	}
	store.userRewards[redeemed.ID] = redeemed

	orderID := uuid.New()
	_, err := ConsumeTx(context.Background(), store, redeemed.ID, orderID, userID, time.Now())
	require.NoError(t, err)

	credit, err := CashbackForOrderTx(context.Background(), store, orderID)
	require.NoError(t, err)
	assert.Equal(t, "750.00", credit.StringFixed(2))

	credit, err = CashbackForOrderTx(context.Background(), store, uuid.New())
	require.NoError(t, err)
	assert.True(t, credit.IsZero())
}

func TestSweepExpiredIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	userID := uuid.New()

	overdue := UserReward{
		ID: uuid.New(), UserID: userID, RewardID: uuid.New(),
		Status: StatusActive, ExpiresAt: time.Now().Add(-time.Hour),
	}
	used := UserReward{
		ID: uuid.New(), UserID: userID, RewardID: uuid.New(),
		Status: StatusUsed, ExpiresAt: time.Now().Add(-time.Hour),
	}
	store.userRewards[overdue.ID] = overdue
	store.userRewards[used.ID] = used

	count, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, StatusExpired, store.userRewards[overdue.ID].Status)
	// used rewards never become expired
	assert.Equal(t, StatusUsed, store.userRewards[used.ID].Status)

	count, err = svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRewardEffectMapping(t *testing.T) {
	pct := dec("10")
	fixed := dec("500")

	r := Reward{Type: "discount", DiscountPercentage: &pct}
	assert.Equal(t, pricing.EffectDiscountPercent, r.Effect().Kind)

	r = Reward{Type: "discount", DiscountAmount: &fixed}
	assert.Equal(t, pricing.EffectDiscountFixed, r.Effect().Kind)

	r = Reward{Type: "cashback", DiscountAmount: &fixed}
	effect := r.Effect()
	assert.Equal(t, pricing.EffectCashback, effect.Kind)
	assert.Equal(t, "500.00", effect.CashbackCredit().StringFixed(2))

	r = Reward{Type: "free_item"}
	assert.Equal(t, pricing.EffectFreeItem, r.Effect().Kind)
}
