package promo

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubQuerier struct {
	code       PromoCode
	userUsed   int64
	orderUsage map[uuid.UUID]Usage
	inserted   []InsertUsageParams
	increments int
}

func newStub(code PromoCode) *stubQuerier {
	return &stubQuerier{code: code, orderUsage: map[uuid.UUID]Usage{}}
}

func (s *stubQuerier) GetPromoCodeByCode(ctx context.Context, code string) (PromoCode, error) {
	if code != s.code.Code {
		return PromoCode{}, pgx.ErrNoRows
	}
	return s.code, nil
}

func (s *stubQuerier) GetPromoCodeByCodeForUpdate(ctx context.Context, code string) (PromoCode, error) {
	return s.GetPromoCodeByCode(ctx, code)
}

func (s *stubQuerier) CountPromoUsageByUser(ctx context.Context, promoID, userID uuid.UUID) (int64, error) {
	return s.userUsed, nil
}

func (s *stubQuerier) GetPromoUsageByOrder(ctx context.Context, promoID, orderID uuid.UUID) (Usage, error) {
	if usage, ok := s.orderUsage[orderID]; ok {
		return usage, nil
	}
	return Usage{}, pgx.ErrNoRows
}

func (s *stubQuerier) InsertPromoUsage(ctx context.Context, arg InsertUsageParams) error {
	s.inserted = append(s.inserted, arg)
	s.orderUsage[arg.OrderID] = Usage{PromoID: arg.PromoID, OrderID: arg.OrderID, Discount: arg.Discount}
	return nil
}

func (s *stubQuerier) IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error {
	s.increments++
	return nil
}

func (s *stubQuerier) ListActivePromoCodes(ctx context.Context) ([]PromoCode, error) {
	return []PromoCode{s.code}, nil
}

func (s *stubQuerier) ListPromoUsageByUser(ctx context.Context, userID uuid.UUID) ([]Usage, error) {
	var out []Usage
	for _, usage := range s.orderUsage {
		out = append(out, usage)
	}
	return out, nil
}

func validCode() PromoCode {
	return PromoCode{
		ID:            uuid.New(),
		Code:          "WELCOME10",
		DiscountType:  "percentage",
		DiscountValue: dec("10"),
		MinimumOrder:  dec("1000"),
		Active:        true,
		UsageLimit:    100,
		CurrentUsage:  5,
		ValidFrom:     time.Now().Add(-time.Hour),
	}
}

func TestPreviewComputesPercentageDiscount(t *testing.T) {
	svc := &Service{Q: newStub(validCode())}
	result, err := svc.Preview(context.Background(), "welcome10", nil, dec("5000"))
	require.NoError(t, err)
	assert.Equal(t, "WELCOME10", result.Code)
	assert.Equal(t, "500", result.Discount.String())
}

func TestPreviewRespectsMaximumDiscount(t *testing.T) {
	code := validCode()
	capAmount := dec("300")
	code.MaximumDiscount = &capAmount
	svc := &Service{Q: newStub(code)}

	result, err := svc.Preview(context.Background(), "WELCOME10", nil, dec("5000"))
	require.NoError(t, err)
	assert.Equal(t, "300", result.Discount.String())
}

func TestPreviewRejectsBelowMinimumOrder(t *testing.T) {
	svc := &Service{Q: newStub(validCode())}
	_, err := svc.Preview(context.Background(), "WELCOME10", nil, dec("500"))
	assert.ErrorIs(t, err, ErrMinimumSpendUnmet)
}

func TestPreviewRejectsExhaustedCode(t *testing.T) {
	code := validCode()
	code.CurrentUsage = code.UsageLimit
	svc := &Service{Q: newStub(code)}
	_, err := svc.Preview(context.Background(), "WELCOME10", nil, dec("5000"))
	assert.ErrorIs(t, err, ErrUsageLimitReached)
}

func TestPreviewRejectsExpiredCode(t *testing.T) {
	code := validCode()
	until := time.Now().Add(-time.Minute)
	code.ValidUntil = &until
	svc := &Service{Q: newStub(code)}
	_, err := svc.Preview(context.Background(), "WELCOME10", nil, dec("5000"))
	assert.ErrorIs(t, err, ErrExpired)
}

func TestPreviewRejectsRepeatUserUse(t *testing.T) {
	stub := newStub(validCode())
	stub.userUsed = 1
	svc := &Service{Q: stub}
	userID := uuid.New()
	_, err := svc.Preview(context.Background(), "WELCOME10", &userID, dec("5000"))
	assert.ErrorIs(t, err, ErrAlreadyUsed)
}

func TestSettleRecordsUsageOnce(t *testing.T) {
	stub := newStub(validCode())
	svc := &Service{Q: stub}
	orderID := uuid.New()

	discount, err := svc.Settle(context.Background(), "WELCOME10", orderID, nil, dec("5000"))
	require.NoError(t, err)
	assert.Equal(t, "500", discount.String())
	assert.Len(t, stub.inserted, 1)
	assert.Equal(t, 1, stub.increments)

	_, err = svc.Settle(context.Background(), "WELCOME10", orderID, nil, dec("5000"))
	assert.ErrorIs(t, err, ErrAlreadyUsed)
	assert.Equal(t, 1, stub.increments)
}

func TestComputeFixedDiscountCappedAtOrderAmount(t *testing.T) {
	rule := Rule{DiscountType: "fixed", DiscountValue: dec("8000"), Active: true}
	discount := Compute(dec("5000"), rule)
	assert.Equal(t, "5000", discount.String())
}
