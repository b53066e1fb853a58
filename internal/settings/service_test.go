package settings

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/config"
)

type stubQuerier struct {
	row  Restaurant
	err  error
	gets int
}

func (s *stubQuerier) GetRestaurantSettings(ctx context.Context) (Restaurant, error) {
	s.gets++
	return s.row, s.err
}

func (s *stubQuerier) UpdateRestaurantSettings(ctx context.Context, arg UpdateParams) (Restaurant, error) {
	if arg.MinimumOrder != nil {
		s.row.MinimumOrder = *arg.MinimumOrder
	}
	return s.row, nil
}

func testConfig() *config.Config {
	return &config.Config{
		VATRate:               decimal.RequireFromString("0.075"),
		DeliveryFeeBase:       decimal.RequireFromString("2000"),
		DeliveryFeePerKM:      decimal.RequireFromString("150"),
		PickupFee:             decimal.Zero,
		MinimumOrder:          decimal.RequireFromString("1000"),
		FreeDeliveryThreshold: decimal.RequireFromString("50"),
	}
}

func TestParamsFallsBackToDefaultsWhenUnseeded(t *testing.T) {
	q := &stubQuerier{err: pgx.ErrNoRows}
	svc := NewService(q, testConfig())

	params, err := svc.Params(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.075", params.VATRate.String())
	assert.Equal(t, "2000", params.DeliveryFeeBase.String())
	assert.Equal(t, "1000", params.MinimumOrder.String())
}

func TestGetCachesRow(t *testing.T) {
	q := &stubQuerier{row: Restaurant{ID: 1, Name: "Chopsticks and Bowls", VATRate: decimal.RequireFromString("0.075")}}
	svc := NewService(q, testConfig())
	now := time.Now()
	svc.now = func() time.Time { return now }

	_, err := svc.Get(context.Background())
	require.NoError(t, err)
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, q.gets)

	now = now.Add(time.Minute)
	_, err = svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, q.gets)
}

func TestUpdateInvalidatesCache(t *testing.T) {
	q := &stubQuerier{row: Restaurant{ID: 1, MinimumOrder: decimal.RequireFromString("1000")}}
	svc := NewService(q, testConfig())

	_, err := svc.Get(context.Background())
	require.NoError(t, err)

	next := decimal.RequireFromString("1500")
	row, err := svc.Update(context.Background(), UpdateParams{MinimumOrder: &next})
	require.NoError(t, err)
	assert.True(t, row.MinimumOrder.Equal(next))

	cached, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, cached.MinimumOrder.Equal(next))
}
