package loyalty

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEarning(store *memStore) *Earning {
	return &Earning{
		Runner:          store,
		PointsPerUnit:   1,
		FirstOrderBonus: 1000,
		BirthdayBonus:   5000,
		ReferralPoints:  1000,
		Log:             zerolog.Nop(),
	}
}

func TestAwardForOrderBasePoints(t *testing.T) {
	store := newMemStore()
	earning := newEarning(store)
	userID := uuid.New()
	store.completed[userID] = 3 // not the first order

	awarded, err := earning.AwardForOrder(context.Background(), OrderInfo{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-042",
		UserID:      &userID,
		Subtotal:    decimal.RequireFromString("4500.75"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4500), awarded)
	assert.Equal(t, int64(4500), store.balances[userID].Balance)
}

func TestAwardForOrderFirstOrderBonus(t *testing.T) {
	store := newMemStore()
	earning := newEarning(store)
	userID := uuid.New()
	store.completed[userID] = 1

	awarded, err := earning.AwardForOrder(context.Background(), OrderInfo{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-001",
		UserID:      &userID,
		Subtotal:    decimal.RequireFromString("2000"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3000), awarded)

	kinds := map[Kind]bool{}
	for _, txn := range store.txns {
		kinds[txn.Kind] = true
	}
	assert.True(t, kinds[KindEarned])
	assert.True(t, kinds[KindFirstOrder])
}

func TestAwardForOrderBirthdayBonus(t *testing.T) {
	store := newMemStore()
	earning := newEarning(store)
	userID := uuid.New()
	store.completed[userID] = 5
	now := time.Date(2026, time.March, 14, 12, 0, 0, 0, time.UTC)
	earning.Now = func() time.Time { return now }
	store.profiles[userID] = Profile{UserID: userID, BirthMonth: 3, BirthDay: 14}

	awarded, err := earning.AwardForOrder(context.Background(), OrderInfo{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-099",
		UserID:      &userID,
		Subtotal:    decimal.RequireFromString("1000"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6000), awarded)
}

func TestAwardForOrderGuestEarnsNothing(t *testing.T) {
	store := newMemStore()
	earning := newEarning(store)

	awarded, err := earning.AwardForOrder(context.Background(), OrderInfo{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-100",
		Subtotal:    decimal.RequireFromString("9000"),
	})
	require.NoError(t, err)
	assert.Zero(t, awarded)
	assert.Empty(t, store.txns)
}

func TestAwardBestEffortSwallowsFailure(t *testing.T) {
	earning := newEarning(newMemStore())
	earning.Runner = failingRunner{}
	userID := uuid.New()

	awarded := earning.AwardForOrderBestEffort(context.Background(), OrderInfo{
		OrderID:     uuid.New(),
		OrderNumber: "ORD-101",
		UserID:      &userID,
		Subtotal:    decimal.RequireFromString("1000"),
	})
	assert.Zero(t, awarded)
}

type failingRunner struct{}

func (failingRunner) RunEarningTx(ctx context.Context, fn func(EarningQuerier) error) error {
	return context.DeadlineExceeded
}

func TestProcessReferralAwardsBothSidesOnce(t *testing.T) {
	store := newMemStore()
	earning := newEarning(store)
	referred := uuid.New()
	referrer := uuid.New()
	store.completed[referred] = 1
	store.profiles[referred] = Profile{UserID: referred, ReferralCode: "NEWBIE"}
	store.profiles[referrer] = Profile{UserID: referrer, ReferralCode: "FRIEND1"}

	applied, err := earning.ProcessReferral(context.Background(), referred, "FRIEND1")
	require.NoError(t, err)
	assert.True(t, applied)
	assert.Equal(t, int64(1000), store.balances[referred].Balance)
	assert.Equal(t, int64(1000), store.balances[referrer].Balance)

	applied, err = earning.ProcessReferral(context.Background(), referred, "FRIEND1")
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, int64(1000), store.balances[referred].Balance)
}
