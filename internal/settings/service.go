package settings

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/config"
)

// Restaurant mirrors the single restaurant_settings row.
type Restaurant struct {
	ID                    int64           `json:"id"`
	Name                  string          `json:"name"`
	Description           string          `json:"description"`
	Tagline               string          `json:"tagline"`
	Address               string          `json:"address"`
	Phone                 string          `json:"phone"`
	Email                 string          `json:"email"`
	Website               string          `json:"website"`
	Latitude              decimal.Decimal `json:"latitude"`
	Longitude             decimal.Decimal `json:"longitude"`
	IsOpen                bool            `json:"is_open"`
	DeliveryRadiusKM      decimal.Decimal `json:"delivery_radius"`
	MinimumOrder          decimal.Decimal `json:"minimum_order"`
	FreeDeliveryThreshold decimal.Decimal `json:"free_delivery_threshold"`
	VATRate               decimal.Decimal `json:"vat_rate"`
	PickupFee             decimal.Decimal `json:"pickup_delivery_fee"`
	DeliveryFeeBase       decimal.Decimal `json:"delivery_fee_base"`
	DeliveryFeePerKM      decimal.Decimal `json:"delivery_fee_per_km"`
	AcceptsCash           bool            `json:"accepts_cash"`
	AcceptsCard           bool            `json:"accepts_card"`
	MaintenanceMode       bool            `json:"maintenance_mode"`
	MaintenanceMessage    string          `json:"maintenance_message"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// Params are the pricing and delivery values the rest of the system consumes.
type Params struct {
	VATRate               decimal.Decimal
	DeliveryFeeBase       decimal.Decimal
	DeliveryFeePerKM      decimal.Decimal
	PickupFee             decimal.Decimal
	MinimumOrder          decimal.Decimal
	FreeDeliveryThreshold decimal.Decimal
	DeliveryRadiusKM      decimal.Decimal
	Latitude              decimal.Decimal
	Longitude             decimal.Decimal
}

// UpdateParams carries the mutable delivery and pricing settings.
type UpdateParams struct {
	Name                  *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Description           *string          `json:"description"`
	Address               *string          `json:"address"`
	Phone                 *string          `json:"phone" validate:"omitempty,max=20"`
	Email                 *string          `json:"email" validate:"omitempty,email"`
	IsOpen                *bool            `json:"is_open"`
	MinimumOrder          *decimal.Decimal `json:"minimum_order"`
	FreeDeliveryThreshold *decimal.Decimal `json:"free_delivery_threshold"`
	VATRate               *decimal.Decimal `json:"vat_rate"`
	PickupFee             *decimal.Decimal `json:"pickup_delivery_fee"`
	DeliveryFeeBase       *decimal.Decimal `json:"delivery_fee_base"`
	DeliveryFeePerKM      *decimal.Decimal `json:"delivery_fee_per_km"`
	MaintenanceMode       *bool            `json:"maintenance_mode"`
	MaintenanceMessage    *string          `json:"maintenance_message"`
}

// Querier captures the database methods required by the settings service.
type Querier interface {
	GetRestaurantSettings(ctx context.Context) (Restaurant, error)
	UpdateRestaurantSettings(ctx context.Context, arg UpdateParams) (Restaurant, error)
}

// Service loads the restaurant settings row and falls back to configured
// defaults when the row has not been seeded yet.
type Service struct {
	Q   Querier
	Cfg *config.Config

	mu       sync.Mutex
	cached   *Restaurant
	cachedAt time.Time
	ttl      time.Duration
	now      func() time.Time
}

// NewService constructs a Service with a short in-process cache.
func NewService(q Querier, cfg *config.Config) *Service {
	return &Service{Q: q, Cfg: cfg, ttl: 30 * time.Second, now: time.Now}
}

// Get returns the current restaurant settings, serving defaults when unseeded.
func (s *Service) Get(ctx context.Context) (Restaurant, error) {
	s.mu.Lock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.ttl {
		row := *s.cached
		s.mu.Unlock()
		return row, nil
	}
	s.mu.Unlock()

	row, err := s.Q.GetRestaurantSettings(ctx)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s.defaults(), nil
		}
		return Restaurant{}, err
	}

	s.mu.Lock()
	s.cached = &row
	s.cachedAt = s.now()
	s.mu.Unlock()
	return row, nil
}

// Params returns the pricing values derived from the settings row.
func (s *Service) Params(ctx context.Context) (Params, error) {
	row, err := s.Get(ctx)
	if err != nil {
		return Params{}, err
	}
	return Params{
		VATRate:               row.VATRate,
		DeliveryFeeBase:       row.DeliveryFeeBase,
		DeliveryFeePerKM:      row.DeliveryFeePerKM,
		PickupFee:             row.PickupFee,
		MinimumOrder:          row.MinimumOrder,
		FreeDeliveryThreshold: row.FreeDeliveryThreshold,
		DeliveryRadiusKM:      row.DeliveryRadiusKM,
		Latitude:              row.Latitude,
		Longitude:             row.Longitude,
	}, nil
}

// Update applies the patch and invalidates the cache.
func (s *Service) Update(ctx context.Context, arg UpdateParams) (Restaurant, error) {
	row, err := s.Q.UpdateRestaurantSettings(ctx, arg)
	if err != nil {
		return Restaurant{}, err
	}
	s.mu.Lock()
	s.cached = &row
	s.cachedAt = s.now()
	s.mu.Unlock()
	return row, nil
}

func (s *Service) defaults() Restaurant {
	nowTime := s.now()
	return Restaurant{
		ID:                    1,
		Name:                  "Chopsticks and Bowls",
		Description:           "Authentic Korean Cuisine in Abuja",
		Address:               "Abuja, Nigeria",
		Latitude:              decimal.RequireFromString("9.0820"),
		Longitude:             decimal.RequireFromString("7.3986"),
		IsOpen:                true,
		DeliveryRadiusKM:      decimal.RequireFromString("10.00"),
		MinimumOrder:          s.Cfg.MinimumOrder,
		FreeDeliveryThreshold: s.Cfg.FreeDeliveryThreshold,
		VATRate:               s.Cfg.VATRate,
		PickupFee:             s.Cfg.PickupFee,
		DeliveryFeeBase:       s.Cfg.DeliveryFeeBase,
		DeliveryFeePerKM:      s.Cfg.DeliveryFeePerKM,
		AcceptsCash:           true,
		AcceptsCard:           true,
		CreatedAt:             nowTime,
		UpdatedAt:             nowTime,
	}
}
