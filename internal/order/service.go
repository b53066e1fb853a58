// Package order is the settlement coordinator: it prices carts, reconciles
// client-proposed totals, persists orders atomically and drives the order and
// payment state machines.
package order

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/catalog"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/loyalty"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/pricing"
	"github.com/noah-isme/backend-resto/internal/promo"
	"github.com/noah-isme/backend-resto/internal/reward"
	"github.com/noah-isme/backend-resto/internal/settings"
)

// Order status values.
const (
	StatusPending        = "pending"
	StatusConfirmed      = "confirmed"
	StatusPreparing      = "preparing"
	StatusReady          = "ready"
	StatusOutForDelivery = "out_for_delivery"
	StatusDelivered      = "delivered"
	StatusCancelled      = "cancelled"
	StatusRefunded       = "refunded"
)

// Payment status values.
const (
	PaymentPending  = "pending"
	PaymentPaid     = "paid"
	PaymentFailed   = "failed"
	PaymentRefunded = "refunded"
)

// Delivery types.
const (
	TypeDelivery = "delivery"
	TypePickup   = "pickup"
)

const createAttempts = 3

// Order is the persisted aggregate root.
type Order struct {
	ID                  uuid.UUID       `json:"id"`
	OrderNumber         string          `json:"order_number"`
	UserID              *uuid.UUID      `json:"user_id,omitempty"`
	GuestName           string          `json:"guest_name,omitempty"`
	GuestEmail          string          `json:"guest_email,omitempty"`
	GuestPhone          string          `json:"guest_phone,omitempty"`
	DeliveryType        string          `json:"delivery_type"`
	DeliveryAddress     string          `json:"delivery_address,omitempty"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
	Subtotal            decimal.Decimal `json:"subtotal"`
	TaxAmount           decimal.Decimal `json:"tax_amount"`
	DeliveryFee         decimal.Decimal `json:"delivery_fee"`
	DiscountAmount      decimal.Decimal `json:"discount_amount"`
	TotalAmount         decimal.Decimal `json:"total_amount"`
	Status              string          `json:"status"`
	PaymentStatus       string          `json:"payment_status"`
	PaystackReference   *string         `json:"paystack_reference,omitempty"`
	PaystackAccessCode  *string         `json:"-"`
	PaymentVerifiedAt   *time.Time      `json:"payment_verified_at,omitempty"`
	EstimatedDelivery   *time.Time      `json:"estimated_delivery_time,omitempty"`
	ActualDelivery      *time.Time      `json:"actual_delivery_time,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	UpdatedAt           time.Time       `json:"updated_at"`
}

// Item is one line of an order with the unit price snapshotted at creation.
type Item struct {
	ID                  uuid.UUID       `json:"id"`
	OrderID             uuid.UUID       `json:"order_id"`
	MenuItemID          uuid.UUID       `json:"menu_item_id"`
	Name                string          `json:"item_name"`
	Quantity            int32           `json:"quantity"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	TotalPrice          decimal.Decimal `json:"total_price"`
	SpecialInstructions string          `json:"special_instructions,omitempty"`
}

// InsertOrderParams carries a new order row. The ID is generated by the
// caller so promo usage and reward marking can reference it in the same
// transaction.
type InsertOrderParams struct {
	ID                  uuid.UUID
	OrderNumber         string
	UserID              *uuid.UUID
	GuestName           string
	GuestEmail          string
	GuestPhone          string
	DeliveryType        string
	DeliveryAddress     string
	SpecialInstructions string
	Subtotal            decimal.Decimal
	TaxAmount           decimal.Decimal
	DeliveryFee         decimal.Decimal
	DiscountAmount      decimal.Decimal
	TotalAmount         decimal.Decimal
	EstimatedDelivery   *time.Time
}

// InsertItemParams carries a new order line.
type InsertItemParams struct {
	OrderID             uuid.UUID
	MenuItemID          uuid.UUID
	Name                string
	Quantity            int32
	UnitPrice           decimal.Decimal
	TotalPrice          decimal.Decimal
	SpecialInstructions string
}

// UpdateStatusParams patches the order lifecycle fields.
type UpdateStatusParams struct {
	ID                uuid.UUID
	Status            string
	EstimatedDelivery *time.Time
	ActualDelivery    *time.Time
}

// Querier captures the database methods the coordinator needs. It embeds the
// promo and reward queriers (the latter embeds the loyalty ledger) so
// settlement and payment confirmation compose inside one transaction.
type Querier interface {
	promo.Querier
	reward.Querier
	GetLastOrderNumber(ctx context.Context) (string, error)
	InsertOrder(ctx context.Context, arg InsertOrderParams) (Order, error)
	InsertOrderItem(ctx context.Context, arg InsertItemParams) (Item, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]Item, error)
	GetOrder(ctx context.Context, id uuid.UUID) (Order, error)
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error)
	GetOrderByNumber(ctx context.Context, number string) (Order, error)
	GetOrderByReference(ctx context.Context, reference string) (Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, error)
	CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error)
	ListOrders(ctx context.Context, limit, offset int32) ([]Order, error)
	CountOrders(ctx context.Context) (int64, error)
	UpdateOrderStatus(ctx context.Context, arg UpdateStatusParams) error
	SetPaymentInit(ctx context.Context, id uuid.UUID, reference, accessCode string) error
	MarkOrderPaid(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error
	MarkPaymentFailed(ctx context.Context, id uuid.UUID) error
}

// TxRunner executes fn inside a database transaction scoped to q.
type TxRunner interface {
	RunOrderTx(ctx context.Context, fn func(q Querier) error) error
}

// SavepointRunner is implemented by transaction-backed queriers. It scopes fn
// to a savepoint so a failed statement can be rolled back without aborting
// the enclosing transaction; Postgres otherwise rejects every statement after
// the first failure until the whole transaction ends.
type SavepointRunner interface {
	RunSavepoint(ctx context.Context, fn func(q Querier) error) error
}

// Service coordinates settlement across pricing, promo, reward and loyalty.
type Service struct {
	Runner        TxRunner
	Catalog       *catalog.Service
	Settings      *settings.Service
	Earning       *loyalty.Earning
	PointsPerUnit int
	Log           zerolog.Logger
	Now           func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// LineInput is one requested cart line.
type LineInput struct {
	MenuItemID          uuid.UUID `json:"menu_item_id" validate:"required"`
	Quantity            int       `json:"quantity" validate:"required,min=1"`
	SpecialInstructions string    `json:"special_instructions"`
}

// CustomerInfo is the contact block, mandatory for guest orders.
type CustomerInfo struct {
	Name  string `json:"customer_name" validate:"required,max=200"`
	Email string `json:"customer_email" validate:"required,email"`
	Phone string `json:"customer_phone" validate:"required,max=15"`
}

// CreateInput is everything Create needs after request decoding.
type CreateInput struct {
	UserID              *uuid.UUID
	Customer            CustomerInfo
	DeliveryType        string
	DeliveryAddress     string
	SpecialInstructions string
	DeliveryFee         decimal.Decimal
	Items               []LineInput
	RewardID            *uuid.UUID
	PromoCode           string
	Proposed            *pricing.Proposal
}

// PreviewInput prices a cart without persisting anything.
type PreviewInput struct {
	UserID       *uuid.UUID
	Items        []LineInput
	DeliveryType string
	DeliveryFee  decimal.Decimal
	RewardID     *uuid.UUID
	PromoCode    string
}

func (s *Service) validateCreate(in CreateInput) error {
	if in.DeliveryType != TypeDelivery && in.DeliveryType != TypePickup {
		return common.ValidationError("delivery_type must be delivery or pickup", nil)
	}
	if len(in.Items) == 0 {
		return common.ValidationError("order must contain at least one item", nil)
	}
	if in.DeliveryType == TypeDelivery && strings.TrimSpace(in.DeliveryAddress) == "" {
		return common.ValidationError("delivery address is required for delivery orders", map[string]string{
			"delivery_address": "required",
		})
	}
	if in.UserID == nil {
		if in.Customer.Name == "" || in.Customer.Email == "" || in.Customer.Phone == "" {
			return common.ValidationError("guest orders require customer name, email and phone", nil)
		}
	}
	return nil
}

func (s *Service) snapshotLines(ctx context.Context, items []LineInput) ([]pricing.Line, map[uuid.UUID]catalog.MenuItem, error) {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.MenuItemID)
	}
	snapshot, err := s.Catalog.Snapshot(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	lines := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		m := snapshot[it.MenuItemID]
		if !m.IsAvailable {
			return nil, nil, common.ValidationError(fmt.Sprintf("item %q is not available", m.Name), nil)
		}
		lines = append(lines, pricing.Line{
			MenuItemID: it.MenuItemID,
			UnitPrice:  m.Price,
			Quantity:   it.Quantity,
		})
	}
	return lines, snapshot, nil
}

// Preview prices a cart with live catalog prices. Under-floor totals are
// clamped by reducing the discount so the total lands exactly at the minimum.
func (s *Service) Preview(ctx context.Context, in PreviewInput) (pricing.Result, error) {
	if in.DeliveryType != TypeDelivery && in.DeliveryType != TypePickup {
		return pricing.Result{}, common.ValidationError("delivery_type must be delivery or pickup", nil)
	}
	lines, _, err := s.snapshotLines(ctx, in.Items)
	if err != nil {
		return pricing.Result{}, err
	}
	params, err := s.Settings.Params(ctx)
	if err != nil {
		return pricing.Result{}, err
	}
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	var result pricing.Result
	err = s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var effect *pricing.Effect
		if in.RewardID != nil {
			if in.UserID == nil {
				return common.ValidationError("authentication required to use a reward", nil)
			}
			catalogRow, err := reward.PeekTx(ctx, q, *in.RewardID, *in.UserID, s.now())
			if err != nil {
				return err
			}
			e := catalogRow.Effect()
			effect = &e
		}
		promoDiscount := decimal.Zero
		if strings.TrimSpace(in.PromoCode) != "" {
			pv, err := promo.PreviewTx(ctx, q, s.now(), in.PromoCode, in.UserID, subtotal)
			if err != nil {
				return err
			}
			promoDiscount = pv.Discount
		}
		var perr error
		result, perr = pricing.Price(pricing.Input{
			Lines:         lines,
			Mode:          pricing.Mode(in.DeliveryType),
			DeliveryFee:   in.DeliveryFee,
			Params:        params,
			Effect:        effect,
			PromoDiscount: promoDiscount,
			ClampToFloor:  true,
		})
		return perr
	})
	return result, err
}

// Create validates, reconciles and persists an order. The order row, its
// items, the promo usage and the reward consumption commit or roll back as
// one unit; a partially created order is never visible.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, []Item, error) {
	if err := s.validateCreate(in); err != nil {
		recordOrderCreated(in.DeliveryType, "rejected")
		return Order{}, nil, err
	}
	lines, snapshot, err := s.snapshotLines(ctx, in.Items)
	if err != nil {
		recordOrderCreated(in.DeliveryType, "rejected")
		return Order{}, nil, err
	}
	params, err := s.Settings.Params(ctx)
	if err != nil {
		return Order{}, nil, err
	}
	subtotal := decimal.Zero
	for _, l := range lines {
		subtotal = subtotal.Add(l.Total())
	}

	var (
		created Order
		items   []Item
	)
	for attempt := 0; attempt < createAttempts; attempt++ {
		created, items, err = s.createOnce(ctx, in, lines, snapshot, params, subtotal)
		if err == nil {
			recordOrderCreated(in.DeliveryType, "created")
			return created, items, nil
		}
		if !isUniqueViolation(err) {
			break
		}
		s.Log.Warn().Err(err).Int("attempt", attempt+1).Msg("order number collision, retrying")
	}
	recordOrderCreated(in.DeliveryType, "rejected")
	return Order{}, nil, err
}

func (s *Service) createOnce(ctx context.Context, in CreateInput, lines []pricing.Line, snapshot map[uuid.UUID]catalog.MenuItem, params settings.Params, subtotal decimal.Decimal) (Order, []Item, error) {
	var (
		created Order
		items   []Item
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		now := s.now()

		var effect *pricing.Effect
		if in.RewardID != nil {
			if in.UserID == nil {
				return common.ValidationError("authentication required to use a reward", nil)
			}
			catalogRow, err := reward.PeekTx(ctx, q, *in.RewardID, *in.UserID, now)
			if err != nil {
				return err
			}
			e := catalogRow.Effect()
			effect = &e
		}

		var promoRow promo.PromoCode
		promoDiscount := decimal.Zero
		if strings.TrimSpace(in.PromoCode) != "" {
			var err error
			promoRow, promoDiscount, err = promo.QuoteTx(ctx, q, now, in.PromoCode, in.UserID, subtotal)
			if err != nil {
				return err
			}
		}

		pin := pricing.Input{
			Lines:         lines,
			Mode:          pricing.Mode(in.DeliveryType),
			DeliveryFee:   in.DeliveryFee,
			Params:        params,
			Effect:        effect,
			PromoDiscount: promoDiscount,
		}
		var result pricing.Result
		if in.Proposed != nil {
			var outcome pricing.Outcome
			var err error
			result, outcome, err = pricing.Reconcile(*in.Proposed, pin)
			if err != nil {
				recordReconcile("rejected")
				return err
			}
			recordReconcile(string(outcome))
		} else {
			var err error
			result, err = pricing.Price(pin)
			if err != nil {
				return err
			}
		}

		orderID := uuid.New()
		number, err := s.nextOrderNumber(ctx, q)
		if err != nil {
			return err
		}
		totalQty := 0
		for _, it := range in.Items {
			totalQty += it.Quantity
		}
		estimated := estimateDeliveryTime(now, in.DeliveryType, totalQty)
		created, err = q.InsertOrder(ctx, InsertOrderParams{
			ID:                  orderID,
			OrderNumber:         number,
			UserID:              in.UserID,
			GuestName:           in.Customer.Name,
			GuestEmail:          in.Customer.Email,
			GuestPhone:          in.Customer.Phone,
			DeliveryType:        in.DeliveryType,
			DeliveryAddress:     in.DeliveryAddress,
			SpecialInstructions: in.SpecialInstructions,
			Subtotal:            result.Subtotal,
			TaxAmount:           result.TaxAmount,
			DeliveryFee:         result.DeliveryFee,
			DiscountAmount:      result.DiscountAmount,
			TotalAmount:         result.Total,
			EstimatedDelivery:   &estimated,
		})
		if err != nil {
			return err
		}

		items = items[:0]
		for _, it := range in.Items {
			m := snapshot[it.MenuItemID]
			row, err := insertItemIsolated(ctx, q, InsertItemParams{
				OrderID:             orderID,
				MenuItemID:          it.MenuItemID,
				Name:                m.Name,
				Quantity:            int32(it.Quantity),
				UnitPrice:           m.Price,
				TotalPrice:          m.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
				SpecialInstructions: it.SpecialInstructions,
			})
			if err != nil {
				s.Log.Warn().Err(err).
					Str("order_number", number).
					Str("menu_item_id", it.MenuItemID.String()).
					Msg("skipping order line that failed to persist")
				continue
			}
			items = append(items, row)
		}
		if len(items) == 0 {
			return common.ValidationError("no order items could be created", nil)
		}

		if strings.TrimSpace(in.PromoCode) != "" {
			if err := promo.RecordUsageTx(ctx, q, promoRow.ID, orderID, in.UserID, promoDiscount); err != nil {
				return err
			}
		}
		if in.RewardID != nil {
			if _, err := reward.ConsumeTx(ctx, q, *in.RewardID, orderID, *in.UserID, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, nil, err
	}
	return created, items, nil
}

// insertItemIsolated persists one order line under a savepoint when the
// querier supports them, so a line that fails to insert poisons only its own
// savepoint and the remaining lines can still land.
func insertItemIsolated(ctx context.Context, q Querier, arg InsertItemParams) (Item, error) {
	sp, ok := q.(SavepointRunner)
	if !ok {
		return q.InsertOrderItem(ctx, arg)
	}
	var row Item
	err := sp.RunSavepoint(ctx, func(q Querier) error {
		var err error
		row, err = q.InsertOrderItem(ctx, arg)
		return err
	})
	return row, err
}

// nextOrderNumber derives the next human-readable number from the highest one
// issued so far. A concurrent creator can win the race; the unique constraint
// surfaces that and Create retries.
func (s *Service) nextOrderNumber(ctx context.Context, q Querier) (string, error) {
	last, err := q.GetLastOrderNumber(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Sprintf("ORD-%03d", 1), nil
		}
		return "", err
	}
	seq := 0
	if parts := strings.SplitN(last, "-", 2); len(parts) == 2 {
		if n, perr := strconv.Atoi(parts[1]); perr == nil {
			seq = n
		}
	}
	return fmt.Sprintf("ORD-%03d", seq+1), nil
}

// Get returns an order with its items, scoped to the owner when userID is set.
func (s *Service) Get(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (Order, []Item, error) {
	var (
		ord   Order
		items []Item
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if userID != nil && (ord.UserID == nil || *ord.UserID != *userID) {
			return common.NotFoundError("order not found")
		}
		items, err = q.ListOrderItems(ctx, orderID)
		return err
	})
	return ord, items, err
}

// Track looks an order up by its public number. Orders owned by an account
// are only visible to that account; guest orders are trackable by anyone
// holding the number.
func (s *Service) Track(ctx context.Context, orderNumber string, userID *uuid.UUID) (Order, []Item, error) {
	var (
		ord   Order
		items []Item
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrderByNumber(ctx, strings.TrimSpace(orderNumber))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if ord.UserID != nil && (userID == nil || *ord.UserID != *userID) {
			return common.NewAppError("FORBIDDEN", "you do not have permission to view this order", http.StatusForbidden, nil)
		}
		items, err = q.ListOrderItems(ctx, ord.ID)
		return err
	})
	return ord, items, err
}

// List returns a page of the user's orders, newest first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]Order, int64, error) {
	var (
		rows  []Order
		total int64
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		total, err = q.CountOrdersByUser(ctx, userID)
		if err != nil {
			return err
		}
		rows, err = q.ListOrdersByUser(ctx, userID, limit, offset)
		return err
	})
	return rows, total, err
}

// ListAll returns a page of every order, for staff.
func (s *Service) ListAll(ctx context.Context, limit, offset int32) ([]Order, int64, error) {
	var (
		rows  []Order
		total int64
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		total, err = q.CountOrders(ctx)
		if err != nil {
			return err
		}
		rows, err = q.ListOrders(ctx, limit, offset)
		return err
	})
	return rows, total, err
}

// Cancel transitions an order to cancelled. Delivered, cancelled and refunded
// orders are final and cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, orderID uuid.UUID, userID *uuid.UUID) (Order, error) {
	var ord Order
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if userID != nil && (ord.UserID == nil || *ord.UserID != *userID) {
			return common.NotFoundError("order not found")
		}
		switch ord.Status {
		case StatusDelivered, StatusCancelled, StatusRefunded:
			return common.ValidationError("order cannot be cancelled in its current status", nil)
		}
		if err := q.UpdateOrderStatus(ctx, UpdateStatusParams{ID: ord.ID, Status: StatusCancelled}); err != nil {
			return err
		}
		ord.Status = StatusCancelled
		return nil
	})
	return ord, err
}

// statusRank orders the forward progression; cancellation and refunds are
// handled separately.
var statusRank = map[string]int{
	StatusPending:        0,
	StatusConfirmed:      1,
	StatusPreparing:      2,
	StatusReady:          3,
	StatusOutForDelivery: 4,
	StatusDelivered:      5,
}

func allowedTransition(from, to string) bool {
	switch to {
	case StatusRefunded:
		// only finished orders can be refunded
		return from == StatusDelivered || from == StatusCancelled
	case StatusCancelled:
		return from != StatusDelivered && from != StatusCancelled && from != StatusRefunded
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// UpdateStatus patches the order status (staff operation) with state-machine
// validation. Reaching delivered stamps the actual delivery time.
func (s *Service) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string, estimated *time.Time) (Order, error) {
	if _, known := statusRank[status]; !known && status != StatusCancelled && status != StatusRefunded {
		return Order{}, common.ValidationError("unsupported status", nil)
	}
	var ord Order
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if !allowedTransition(ord.Status, status) {
			return common.ConflictError(fmt.Sprintf("cannot transition from %s to %s", ord.Status, status))
		}
		arg := UpdateStatusParams{ID: ord.ID, Status: status, EstimatedDelivery: estimated}
		if status == StatusDelivered {
			now := s.now()
			arg.ActualDelivery = &now
			ord.ActualDelivery = &now
		}
		if err := q.UpdateOrderStatus(ctx, arg); err != nil {
			return err
		}
		ord.Status = status
		if estimated != nil {
			ord.EstimatedDelivery = estimated
		}
		return nil
	})
	return ord, err
}

// ConfirmPayment marks the order paid and releases the post-payment loyalty
// side effects. Idempotent: a second confirmation of an already paid order is
// a no-op and never double-credits points.
func (s *Service) ConfirmPayment(ctx context.Context, orderID uuid.UUID) (Order, error) {
	var (
		ord         Order
		alreadyPaid bool
	)
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if ord.PaymentStatus == PaymentPaid {
			alreadyPaid = true
			return nil
		}
		now := s.now()
		if err := q.MarkOrderPaid(ctx, ord.ID, now); err != nil {
			return err
		}
		ord.PaymentStatus = PaymentPaid
		ord.PaymentVerifiedAt = &now

		if ord.UserID != nil {
			credit, err := reward.CashbackForOrderTx(ctx, q, ord.ID)
			if err != nil {
				return err
			}
			if credit.IsPositive() {
				points := cashbackPoints(credit, s.PointsPerUnit)
				if points > 0 {
					if _, err := loyalty.EarnTx(ctx, q, *ord.UserID, points, loyalty.KindBonus,
						fmt.Sprintf("Cashback for order %s", ord.OrderNumber), &ord.ID); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	if !alreadyPaid && s.Earning != nil {
		s.Earning.AwardForOrderBestEffort(ctx, loyalty.OrderInfo{
			OrderID:     ord.ID,
			OrderNumber: ord.OrderNumber,
			UserID:      ord.UserID,
			Subtotal:    ord.Subtotal,
		})
	}
	return ord, nil
}

// FailPayment records a definitive gateway failure. Timeouts must not reach
// this: an unconfirmed charge stays pending.
func (s *Service) FailPayment(ctx context.Context, orderID uuid.UUID) error {
	return s.Runner.RunOrderTx(ctx, func(q Querier) error {
		ord, err := q.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		if ord.PaymentStatus == PaymentPaid {
			return nil
		}
		return q.MarkPaymentFailed(ctx, ord.ID)
	})
}

// AttachPaymentInit stores the gateway correlation fields after a successful
// transaction initialisation.
func (s *Service) AttachPaymentInit(ctx context.Context, orderID uuid.UUID, reference, accessCode string) error {
	return s.Runner.RunOrderTx(ctx, func(q Querier) error {
		return q.SetPaymentInit(ctx, orderID, reference, accessCode)
	})
}

// ByReference resolves an order from a gateway reference.
func (s *Service) ByReference(ctx context.Context, reference string) (Order, error) {
	var ord Order
	err := s.Runner.RunOrderTx(ctx, func(q Querier) error {
		var err error
		ord, err = q.GetOrderByReference(ctx, reference)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return common.NotFoundError("order not found")
			}
			return err
		}
		return nil
	})
	return ord, err
}

// estimateDeliveryTime mirrors the kitchen's rule of thumb: 20 minutes of
// preparation, 10 more for large orders, 15 for the ride.
func estimateDeliveryTime(now time.Time, deliveryType string, totalQty int) time.Time {
	minutes := 20
	if totalQty > 5 {
		minutes += 10
	}
	if deliveryType == TypeDelivery {
		minutes += 15
	}
	return now.Add(time.Duration(minutes) * time.Minute)
}

func cashbackPoints(credit decimal.Decimal, pointsPerUnit int) int64 {
	if pointsPerUnit <= 0 {
		pointsPerUnit = 1
	}
	return credit.Mul(decimal.NewFromInt(int64(pointsPerUnit))).Floor().IntPart()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

func recordOrderCreated(deliveryType, result string) {
	if obs.OrdersCreatedTotal == nil {
		return
	}
	obs.OrdersCreatedTotal.WithLabelValues(deliveryType, result).Inc()
}

func recordReconcile(result string) {
	if obs.PricingReconcileTotal == nil {
		return
	}
	obs.PricingReconcileTotal.WithLabelValues(result).Inc()
}
