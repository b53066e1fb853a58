package order

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/pricing"
	"github.com/noah-isme/backend-resto/internal/promo"
	"github.com/noah-isme/backend-resto/internal/reward"
	"github.com/noah-isme/backend-resto/internal/settings"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// memStore backs every querier interface the coordinator composes over.
type memStore struct {
	orders     map[uuid.UUID]Order
	orderItems map[uuid.UUID][]Item
	menu       map[uuid.UUID]catalog.MenuItem

	balances    map[uuid.UUID]loyalty.Balance
	txns        []loyalty.Transaction
	profiles    map[uuid.UUID]loyalty.Profile
	completed   map[uuid.UUID]int64
	rewards     map[uuid.UUID]reward.Reward
	userRewards map[uuid.UUID]reward.UserReward

	promos     map[uuid.UUID]promo.PromoCode
	promoUsage []promo.Usage

	failInsertOrderOnce bool
	failItemsNamed      map[string]bool
	txAborted           bool
}

func newMemStore() *memStore {
	return &memStore{
		orders:      map[uuid.UUID]Order{},
		orderItems:  map[uuid.UUID][]Item{},
		menu:        map[uuid.UUID]catalog.MenuItem{},
		balances:    map[uuid.UUID]loyalty.Balance{},
		profiles:    map[uuid.UUID]loyalty.Profile{},
		completed:   map[uuid.UUID]int64{},
		rewards:     map[uuid.UUID]reward.Reward{},
		userRewards: map[uuid.UUID]reward.UserReward{},
		promos:      map[uuid.UUID]promo.PromoCode{},
	}
}

func (m *memStore) RunOrderTx(ctx context.Context, fn func(Querier) error) error { return fn(m) }

// RunSavepoint mirrors the real store: an error inside the savepoint rolls
// back only that scope, leaving the surrounding transaction usable.
func (m *memStore) RunSavepoint(ctx context.Context, fn func(Querier) error) error {
	if err := fn(m); err != nil {
		m.txAborted = false
		return err
	}
	return nil
}

func (m *memStore) RunEarningTx(ctx context.Context, fn func(loyalty.EarningQuerier) error) error {
	return fn(m)
}

// catalog querier

func (m *memStore) ListCategories(ctx context.Context) ([]catalog.Category, error) { return nil, nil }

func (m *memStore) CountMenuItems(ctx context.Context, arg catalog.ListParams) (int64, error) {
	return 0, nil
}

func (m *memStore) ListMenuItems(ctx context.Context, arg catalog.ListParams) ([]catalog.MenuItem, error) {
	return nil, nil
}

func (m *memStore) GetMenuItem(ctx context.Context, id uuid.UUID) (catalog.MenuItem, error) {
	if item, ok := m.menu[id]; ok {
		return item, nil
	}
	return catalog.MenuItem{}, pgx.ErrNoRows
}

func (m *memStore) GetMenuItems(ctx context.Context, ids []uuid.UUID) ([]catalog.MenuItem, error) {
	var out []catalog.MenuItem
	for _, id := range ids {
		if item, ok := m.menu[id]; ok {
			out = append(out, item)
		}
	}
	return out, nil
}

// loyalty querier

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

func (m *memStore) CountCompletedOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	return m.completed[userID], nil
}

func (m *memStore) GetProfile(ctx context.Context, userID uuid.UUID) (loyalty.Profile, error) {
	return m.profiles[userID], nil
}

func (m *memStore) GetProfileByReferralCode(ctx context.Context, code string) (loyalty.Profile, error) {
	return loyalty.Profile{}, pgx.ErrNoRows
}

func (m *memStore) HasReferralTransaction(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	return false, nil
}

// reward querier

func (m *memStore) ListRewards(ctx context.Context) ([]reward.Reward, error) { return nil, nil }

func (m *memStore) GetReward(ctx context.Context, id uuid.UUID) (reward.Reward, error) {
	if r, ok := m.rewards[id]; ok {
		return r, nil
	}
	return reward.Reward{}, pgx.ErrNoRows
}

func (m *memStore) GetRewardForUpdate(ctx context.Context, id uuid.UUID) (reward.Reward, error) {
	return m.GetReward(ctx, id)
}

func (m *memStore) IncrementRedemptions(ctx context.Context, id uuid.UUID) error {
	r := m.rewards[id]
	r.CurrentRedemptions++
	m.rewards[id] = r
	return nil
}

func (m *memStore) InsertUserReward(ctx context.Context, arg reward.InsertUserRewardParams) (reward.UserReward, error) {
	row := reward.UserReward{
		ID:          uuid.New(),
		UserID:      arg.UserID,
		RewardID:    arg.RewardID,
		PointsSpent: arg.PointsSpent,
		Status:      reward.StatusActive,
		ExpiresAt:   arg.ExpiresAt,
	}
	m.userRewards[row.ID] = row
	return row, nil
}

func (m *memStore) GetUserRewardForUpdate(ctx context.Context, id uuid.UUID) (reward.UserReward, error) {
	if row, ok := m.userRewards[id]; ok {
		return row, nil
	}
	return reward.UserReward{}, pgx.ErrNoRows
}

func (m *memStore) ListUserRewards(ctx context.Context, userID uuid.UUID) ([]reward.UserReward, error) {
	return nil, nil
}

func (m *memStore) MarkUserRewardUsed(ctx context.Context, id, orderID uuid.UUID, usedAt time.Time) error {
	row := m.userRewards[id]
	row.Status = reward.StatusUsed
	row.UsedAt = &usedAt
	row.OrderID = &orderID
	m.userRewards[id] = row
	return nil
}

func (m *memStore) GetUserRewardByOrder(ctx context.Context, orderID uuid.UUID) (reward.UserReward, error) {
	for _, row := range m.userRewards {
		if row.OrderID != nil && *row.OrderID == orderID {
			return row, nil
		}
	}
	return reward.UserReward{}, pgx.ErrNoRows
}

func (m *memStore) ExpireUserRewards(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

// promo querier

func (m *memStore) GetPromoCodeByCode(ctx context.Context, code string) (promo.PromoCode, error) {
	for _, row := range m.promos {
		if row.Code == code {
			return row, nil
		}
	}
	return promo.PromoCode{}, pgx.ErrNoRows
}

func (m *memStore) GetPromoCodeByCodeForUpdate(ctx context.Context, code string) (promo.PromoCode, error) {
	return m.GetPromoCodeByCode(ctx, code)
}

func (m *memStore) CountPromoUsageByUser(ctx context.Context, promoID, userID uuid.UUID) (int64, error) {
	var n int64
	for _, u := range m.promoUsage {
		if u.PromoID == promoID && u.UserID != nil && *u.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (m *memStore) GetPromoUsageByOrder(ctx context.Context, promoID, orderID uuid.UUID) (promo.Usage, error) {
	for _, u := range m.promoUsage {
		if u.PromoID == promoID && u.OrderID == orderID {
			return u, nil
		}
	}
	return promo.Usage{}, pgx.ErrNoRows
}

func (m *memStore) InsertPromoUsage(ctx context.Context, arg promo.InsertUsageParams) error {
	m.promoUsage = append(m.promoUsage, promo.Usage{
		ID:       uuid.New(),
		PromoID:  arg.PromoID,
		UserID:   arg.UserID,
		OrderID:  arg.OrderID,
		Discount: arg.Discount,
	})
	return nil
}

func (m *memStore) IncrementPromoUsage(ctx context.Context, promoID uuid.UUID) error {
	row := m.promos[promoID]
	row.CurrentUsage++
	m.promos[promoID] = row
	return nil
}

func (m *memStore) ListActivePromoCodes(ctx context.Context) ([]promo.PromoCode, error) {
	return nil, nil
}

func (m *memStore) ListPromoUsageByUser(ctx context.Context, userID uuid.UUID) ([]promo.Usage, error) {
	return nil, nil
}

// order querier

func (m *memStore) GetLastOrderNumber(ctx context.Context) (string, error) {
	if len(m.orders) == 0 {
		return "", pgx.ErrNoRows
	}
	numbers := make([]string, 0, len(m.orders))
	for _, o := range m.orders {
		numbers = append(numbers, o.OrderNumber)
	}
	sort.Strings(numbers)
	return numbers[len(numbers)-1], nil
}

func (m *memStore) InsertOrder(ctx context.Context, arg InsertOrderParams) (Order, error) {
	if m.failInsertOrderOnce {
		m.failInsertOrderOnce = false
		return Order{}, &pgconn.PgError{Code: pgerrcode.UniqueViolation, ConstraintName: "orders_order_number_key"}
	}
	ord := Order{
		ID:                  arg.ID,
		OrderNumber:         arg.OrderNumber,
		UserID:              arg.UserID,
		GuestName:           arg.GuestName,
		GuestEmail:          arg.GuestEmail,
		GuestPhone:          arg.GuestPhone,
		DeliveryType:        arg.DeliveryType,
		DeliveryAddress:     arg.DeliveryAddress,
		SpecialInstructions: arg.SpecialInstructions,
		Subtotal:            arg.Subtotal,
		TaxAmount:           arg.TaxAmount,
		DeliveryFee:         arg.DeliveryFee,
		DiscountAmount:      arg.DiscountAmount,
		TotalAmount:         arg.TotalAmount,
		Status:              StatusPending,
		PaymentStatus:       PaymentPending,
		EstimatedDelivery:   arg.EstimatedDelivery,
		CreatedAt:           time.Now(),
	}
	m.orders[ord.ID] = ord
	return ord, nil
}

func (m *memStore) InsertOrderItem(ctx context.Context, arg InsertItemParams) (Item, error) {
	if m.txAborted {
		return Item{}, errors.New("current transaction is aborted, commands ignored until end of transaction block")
	}
	if m.failItemsNamed[arg.Name] {
		// Postgres poisons the rest of the transaction after a failed
		// statement unless a savepoint scopes the failure.
		m.txAborted = true
		return Item{}, errors.New("item insert failed")
	}
	row := Item{
		ID:                  uuid.New(),
		OrderID:             arg.OrderID,
		MenuItemID:          arg.MenuItemID,
		Name:                arg.Name,
		Quantity:            arg.Quantity,
		UnitPrice:           arg.UnitPrice,
		TotalPrice:          arg.TotalPrice,
		SpecialInstructions: arg.SpecialInstructions,
	}
	m.orderItems[arg.OrderID] = append(m.orderItems[arg.OrderID], row)
	return row, nil
}

func (m *memStore) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]Item, error) {
	return m.orderItems[orderID], nil
}

func (m *memStore) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	if ord, ok := m.orders[id]; ok {
		return ord, nil
	}
	return Order{}, pgx.ErrNoRows
}

func (m *memStore) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	return m.GetOrder(ctx, id)
}

func (m *memStore) GetOrderByNumber(ctx context.Context, number string) (Order, error) {
	for _, ord := range m.orders {
		if ord.OrderNumber == number {
			return ord, nil
		}
	}
	return Order{}, pgx.ErrNoRows
}

func (m *memStore) GetOrderByReference(ctx context.Context, reference string) (Order, error) {
	for _, ord := range m.orders {
		if ord.PaystackReference != nil && *ord.PaystackReference == reference {
			return ord, nil
		}
	}
	return Order{}, pgx.ErrNoRows
}

func (m *memStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error) {
	var out []Order
	for _, ord := range m.orders {
		if ord.UserID != nil && *ord.UserID == userID {
			out = append(out, ord)
		}
	}
	return out, nil
}

func (m *memStore) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	rows, _ := m.ListOrdersByUser(ctx, userID, 0, 0)
	return int64(len(rows)), nil
}

func (m *memStore) ListOrders(ctx context.Context, limit, offset int32) ([]Order, error) {
	var out []Order
	for _, ord := range m.orders {
		out = append(out, ord)
	}
	return out, nil
}

func (m *memStore) CountOrders(ctx context.Context) (int64, error) {
	return int64(len(m.orders)), nil
}

func (m *memStore) UpdateOrderStatus(ctx context.Context, arg UpdateStatusParams) error {
	ord := m.orders[arg.ID]
	ord.Status = arg.Status
	if arg.EstimatedDelivery != nil {
		ord.EstimatedDelivery = arg.EstimatedDelivery
	}
	if arg.ActualDelivery != nil {
		ord.ActualDelivery = arg.ActualDelivery
	}
	m.orders[arg.ID] = ord
	return nil
}

func (m *memStore) SetPaymentInit(ctx context.Context, id uuid.UUID, reference, accessCode string) error {
	ord := m.orders[id]
	ord.PaystackReference = &reference
	ord.PaystackAccessCode = &accessCode
	m.orders[id] = ord
	return nil
}

func (m *memStore) MarkOrderPaid(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error {
	ord := m.orders[id]
	ord.PaymentStatus = PaymentPaid
	ord.PaymentVerifiedAt = &verifiedAt
	m.orders[id] = ord
	return nil
}

func (m *memStore) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	ord := m.orders[id]
	ord.PaymentStatus = PaymentFailed
	m.orders[id] = ord
	return nil
}

type settingsStub struct{}

func (settingsStub) GetRestaurantSettings(ctx context.Context) (settings.Restaurant, error) {
	return settings.Restaurant{
		Name:             "Chopsticks and Bowls",
		VATRate:          dec("0.075"),
		DeliveryFeeBase:  dec("2000.00"),
		DeliveryFeePerKM: dec("150.00"),
		PickupFee:        dec("0.00"),
		MinimumOrder:     dec("1000.00"),
		Latitude:         dec("9.0820"),
		Longitude:        dec("7.3986"),
	}, nil
}

func (settingsStub) UpdateRestaurantSettings(ctx context.Context, arg settings.UpdateParams) (settings.Restaurant, error) {
	return settings.Restaurant{}, nil
}

func newService(store *memStore) *Service {
	return &Service{
		Runner:   store,
		Catalog:  catalog.NewService(store, nil),
		Settings: settings.NewService(settingsStub{}, nil),
		Earning: &loyalty.Earning{
			Runner:          store,
			PointsPerUnit:   1,
			FirstOrderBonus: 1000,
			BirthdayBonus:   5000,
			Log:             zerolog.Nop(),
		},
		PointsPerUnit: 1,
		Log:           zerolog.Nop(),
	}
}

func seedMenu(store *memStore) (uuid.UUID, uuid.UUID) {
	riceID := uuid.New()
	bowlID := uuid.New()
	store.menu[riceID] = catalog.MenuItem{ID: riceID, Name: "Jollof Rice", Price: dec("2500.00"), IsAvailable: true}
	store.menu[bowlID] = catalog.MenuItem{ID: bowlID, Name: "Dragon Bowl", Price: dec("5000.00"), IsAvailable: true}
	return riceID, bowlID
}

func baseCreateInput(riceID, bowlID uuid.UUID) CreateInput {
	return CreateInput{
		Customer: CustomerInfo{
			Name:  "Ada Obi",
			Email: "ada@example.com",
			Phone: "08012345678",
		},
		DeliveryType:    TypeDelivery,
		DeliveryAddress: "12 Gwarinpa Estate, Abuja",
		DeliveryFee:     dec("2000.00"),
		Items: []LineInput{
			{MenuItemID: riceID, Quantity: 2},
			{MenuItemID: bowlID, Quantity: 1},
		},
	}
}

func TestCreateComputesTotalsServerSide(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	ord, items, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)

	assert.Equal(t, "ORD-001", ord.OrderNumber)
	assert.Equal(t, StatusPending, ord.Status)
	assert.Equal(t, PaymentPending, ord.PaymentStatus)
	assert.Equal(t, "10000.00", ord.Subtotal.StringFixed(2))
	assert.Equal(t, "750.00", ord.TaxAmount.StringFixed(2))
	assert.Equal(t, "2000.00", ord.DeliveryFee.StringFixed(2))
	assert.Equal(t, "12750.00", ord.TotalAmount.StringFixed(2))
	require.Len(t, items, 2)
	assert.Equal(t, "2500.00", items[0].UnitPrice.StringFixed(2))
	assert.NotNil(t, ord.EstimatedDelivery)
}

func TestCreateAcceptsSoundProposal(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	in := baseCreateInput(riceID, bowlID)
	proposed := pricingProposal("10000.00", "750.00", "2000.00", "0.00", "12750.00")
	in.Proposed = &proposed

	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "12750.00", ord.TotalAmount.StringFixed(2))
}

func TestCreateRecomputesBrokenProposal(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	in := baseCreateInput(riceID, bowlID)
	// total does not satisfy the additive identity
	proposed := pricingProposal("10000.00", "750.00", "2000.00", "0.00", "9000.00")
	in.Proposed = &proposed

	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "12750.00", ord.TotalAmount.StringFixed(2))
}

func TestCreateRejectsUnderMinimum(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	smallID := uuid.New()
	store.menu[smallID] = catalog.MenuItem{ID: smallID, Name: "Spring Roll", Price: dec("700.00"), IsAvailable: true}

	in := CreateInput{
		Customer:     CustomerInfo{Name: "Ada Obi", Email: "ada@example.com", Phone: "08012345678"},
		DeliveryType: TypePickup,
		Items:        []LineInput{{MenuItemID: smallID, Quantity: 1}},
	}
	_, _, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.True(t, common.IsAppError(err))
	assert.Empty(t, store.orders)
}

func TestCreatePickupRejectsNonZeroFee(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	in := baseCreateInput(riceID, bowlID)
	in.DeliveryType = TypePickup
	in.DeliveryAddress = ""
	in.DeliveryFee = dec("500.00")

	_, _, err := svc.Create(context.Background(), in)
	require.Error(t, err)
	assert.Empty(t, store.orders)
}

func TestCreateGuestRequiresContact(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	in := baseCreateInput(riceID, bowlID)
	in.Customer.Phone = ""
	_, _, err := svc.Create(context.Background(), in)
	require.Error(t, err)
}

func TestCreateDeliveryRequiresAddress(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	in := baseCreateInput(riceID, bowlID)
	in.DeliveryAddress = "  "
	_, _, err := svc.Create(context.Background(), in)
	require.Error(t, err)
}

func TestCreateSettlesRewardAndPromoTogether(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	userID := uuid.New()

	freeDelivery := reward.Reward{
		ID: uuid.New(), Name: "Free Delivery", Type: "free_delivery",
		Active: true, ValidFrom: time.Now().Add(-time.Hour),
	}
	store.rewards[freeDelivery.ID] = freeDelivery
	redeemed := reward.UserReward{
		ID: uuid.New(), UserID: userID, RewardID: freeDelivery.ID,
		Status: reward.StatusActive, ExpiresAt: time.Now().Add(time.Hour),
	}
	store.userRewards[redeemed.ID] = redeemed

	code := promo.PromoCode{
		ID: uuid.New(), Code: "WELCOME10", DiscountType: "percentage",
		DiscountValue: dec("10"), Active: true, ValidFrom: time.Now().Add(-time.Hour),
	}
	store.promos[code.ID] = code

	in := baseCreateInput(riceID, bowlID)
	in.UserID = &userID
	in.RewardID = &redeemed.ID
	in.PromoCode = "WELCOME10"

	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	// discount = promo 10% of 10000 + free delivery 2000
	assert.Equal(t, "3000.00", ord.DiscountAmount.StringFixed(2))
	assert.Equal(t, "9750.00", ord.TotalAmount.StringFixed(2))

	used := store.userRewards[redeemed.ID]
	assert.Equal(t, reward.StatusUsed, used.Status)
	require.NotNil(t, used.OrderID)
	assert.Equal(t, ord.ID, *used.OrderID)

	require.Len(t, store.promoUsage, 1)
	assert.Equal(t, ord.ID, store.promoUsage[0].OrderID)
	assert.Equal(t, int32(1), store.promos[code.ID].CurrentUsage)
}

func TestCreateRetriesOrderNumberCollision(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	store.failInsertOrderOnce = true

	ord, _, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)
	assert.Equal(t, "ORD-001", ord.OrderNumber)
	assert.Len(t, store.orders, 1)
}

func TestCreateToleratesPartialItemFailure(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	store.failItemsNamed = map[string]bool{"Dragon Bowl": true}

	_, items, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Jollof Rice", items[0].Name)

	// all lines failing is not a valid order
	store2 := newMemStore()
	svc2 := newService(store2)
	riceID2, bowlID2 := seedMenu(store2)
	store2.failItemsNamed = map[string]bool{"Jollof Rice": true, "Dragon Bowl": true}
	_, _, err = svc2.Create(context.Background(), baseCreateInput(riceID2, bowlID2))
	require.Error(t, err)
}

func TestCreateSurvivesEarlyItemFailure(t *testing.T) {
	// A failed insert aborts the surrounding Postgres transaction, so lines
	// after the first failure only land when each insert runs in its own
	// savepoint. The fake enforces the abort semantics.
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	store.failItemsNamed = map[string]bool{"Jollof Rice": true}

	ord, items, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Dragon Bowl", items[0].Name)
	assert.False(t, store.txAborted)
	assert.Equal(t, "5000.00", items[0].TotalPrice.StringFixed(2))
	assert.NotEqual(t, uuid.Nil, ord.ID)
}

func TestPreviewClampsUnderFloorToMinimum(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	smallID := uuid.New()
	store.menu[smallID] = catalog.MenuItem{ID: smallID, Name: "Noodle Cup", Price: dec("1500.00"), IsAvailable: true}

	code := promo.PromoCode{
		ID: uuid.New(), Code: "BIGFIXED", DiscountType: "fixed",
		DiscountValue: dec("1000.00"), Active: true, ValidFrom: time.Now().Add(-time.Hour),
	}
	store.promos[code.ID] = code

	result, err := svc.Preview(context.Background(), PreviewInput{
		Items:        []LineInput{{MenuItemID: smallID, Quantity: 1}},
		DeliveryType: TypePickup,
		PromoCode:    "BIGFIXED",
	})
	require.NoError(t, err)
	assert.Equal(t, "1000.00", result.Total.StringFixed(2))
	identity := result.Subtotal.Add(result.TaxAmount).Add(result.DeliveryFee).Sub(result.DiscountAmount)
	assert.True(t, identity.Sub(result.Total).Abs().LessThanOrEqual(dec("0.01")))
}

func TestConfirmPaymentIsIdempotent(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	userID := uuid.New()

	in := baseCreateInput(riceID, bowlID)
	in.UserID = &userID
	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)
	store.completed[userID] = 1

	confirmed, err := svc.ConfirmPayment(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, confirmed.PaymentStatus)
	assert.NotNil(t, confirmed.PaymentVerifiedAt)

	// base 10000 + first-order 1000
	assert.Equal(t, int64(11000), store.balances[userID].Balance)

	_, err = svc.ConfirmPayment(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(11000), store.balances[userID].Balance)
}

func TestConfirmPaymentCreditsCashbackOnce(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	userID := uuid.New()

	amount := dec("500.00")
	cashback := reward.Reward{
		ID: uuid.New(), Name: "Cashback 500", Type: "cashback",
		DiscountAmount: &amount, Active: true, ValidFrom: time.Now().Add(-time.Hour),
	}
	store.rewards[cashback.ID] = cashback
	redeemed := reward.UserReward{
		ID: uuid.New(), UserID: userID, RewardID: cashback.ID,
		Status: reward.StatusActive, ExpiresAt: time.Now().Add(time.Hour),
	}
	store.userRewards[redeemed.ID] = redeemed

	in := baseCreateInput(riceID, bowlID)
	in.UserID = &userID
	in.RewardID = &redeemed.ID
	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	// cashback never reduces the total
	assert.Equal(t, "12750.00", ord.TotalAmount.StringFixed(2))

	store.completed[userID] = 2
	_, err = svc.ConfirmPayment(context.Background(), ord.ID)
	require.NoError(t, err)

	// base 10000 + cashback 500, no first-order bonus
	assert.Equal(t, int64(10500), store.balances[userID].Balance)

	_, err = svc.ConfirmPayment(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(10500), store.balances[userID].Balance)
}

func TestConfirmPaymentSurvivesEarningFailure(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	userID := uuid.New()

	in := baseCreateInput(riceID, bowlID)
	in.UserID = &userID
	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	svc.Earning = &loyalty.Earning{
		Runner:        failingEarningRunner{},
		PointsPerUnit: 1,
		Log:           zerolog.Nop(),
	}
	confirmed, err := svc.ConfirmPayment(context.Background(), ord.ID)
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, confirmed.PaymentStatus)
}

func TestCancelForbiddenFromTerminalStates(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	ord, _, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)

	cancelled, err := svc.Cancel(context.Background(), ord.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)

	_, err = svc.Cancel(context.Background(), ord.ID, nil)
	require.Error(t, err)

	delivered := store.orders[ord.ID]
	delivered.Status = StatusDelivered
	store.orders[ord.ID] = delivered
	_, err = svc.Cancel(context.Background(), ord.ID, nil)
	require.Error(t, err)
}

func TestStatusProgression(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)

	ord, _, err := svc.Create(context.Background(), baseCreateInput(riceID, bowlID))
	require.NoError(t, err)

	for _, next := range []string{StatusConfirmed, StatusPreparing, StatusReady, StatusOutForDelivery} {
		_, err = svc.UpdateStatus(context.Background(), ord.ID, next, nil)
		require.NoError(t, err)
	}

	// backwards is rejected
	_, err = svc.UpdateStatus(context.Background(), ord.ID, StatusConfirmed, nil)
	require.Error(t, err)

	updated, err := svc.UpdateStatus(context.Background(), ord.ID, StatusDelivered, nil)
	require.NoError(t, err)
	assert.NotNil(t, updated.ActualDelivery)

	_, err = svc.UpdateStatus(context.Background(), ord.ID, StatusRefunded, nil)
	require.NoError(t, err)
}

func TestTrackGuardsAccountOrders(t *testing.T) {
	store := newMemStore()
	svc := newService(store)
	riceID, bowlID := seedMenu(store)
	owner := uuid.New()
	stranger := uuid.New()

	in := baseCreateInput(riceID, bowlID)
	in.UserID = &owner
	ord, _, err := svc.Create(context.Background(), in)
	require.NoError(t, err)

	_, _, err = svc.Track(context.Background(), ord.OrderNumber, &owner)
	require.NoError(t, err)

	_, _, err = svc.Track(context.Background(), ord.OrderNumber, &stranger)
	require.Error(t, err)

	_, _, err = svc.Track(context.Background(), ord.OrderNumber, nil)
	require.Error(t, err)
}

type failingEarningRunner struct{}

func (failingEarningRunner) RunEarningTx(ctx context.Context, fn func(loyalty.EarningQuerier) error) error {
	return errors.New("ledger unavailable")
}

func pricingProposal(subtotal, tax, fee, discount, total string) pricing.Proposal {
	return pricing.Proposal{
		Subtotal:    dec(subtotal),
		TaxAmount:   dec(tax),
		DeliveryFee: dec(fee),
		Discount:    dec(discount),
		Total:       dec(total),
	}
}
