package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Category is a menu section.
type Category struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	IsActive    bool      `json:"is_active"`
	SortOrder   int       `json:"sort_order"`
}

// MenuItem is a sellable dish.
type MenuItem struct {
	ID              uuid.UUID       `json:"id"`
	CategoryID      uuid.UUID       `json:"category_id"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	Price           decimal.Decimal `json:"price"`
	Badges          []string        `json:"badges"`
	Allergens       []string        `json:"allergens"`
	IsAvailable     bool            `json:"is_available"`
	IsFeatured      bool            `json:"is_featured"`
	PreparationMins int             `json:"preparation_time"`
	SortOrder       int             `json:"sort_order"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// ListParams captures filters for menu listing.
type ListParams struct {
	Query      string
	CategoryID *uuid.UUID
	Featured   *bool
	Page       int
	Limit      int
}

// ListResult contains list data and pagination metadata.
type ListResult struct {
	Items []MenuItem
	Total int64
	Page  int
	Limit int
}

// Querier captures the database methods required by the catalog service.
type Querier interface {
	ListCategories(ctx context.Context) ([]Category, error)
	CountMenuItems(ctx context.Context, arg ListParams) (int64, error)
	ListMenuItems(ctx context.Context, arg ListParams) ([]MenuItem, error)
	GetMenuItem(ctx context.Context, id uuid.UUID) (MenuItem, error)
	GetMenuItems(ctx context.Context, ids []uuid.UUID) ([]MenuItem, error)
}

// Service orchestrates menu queries, DTO assembly, and caching.
type Service struct {
	Q            Querier
	Cache        *Cache
	DefaultLimit int
	MaxLimit     int
}

// NewService constructs a Service with limit defaults applied.
func NewService(q Querier, cache *Cache) *Service {
	return &Service{Q: q, Cache: cache, DefaultLimit: 20, MaxLimit: 100}
}

// ParseListParams normalises raw query values into strongly typed filters.
func (s *Service) ParseListParams(values url.Values) (ListParams, error) {
	params := ListParams{Page: 1, Limit: s.DefaultLimit}
	params.Query = strings.TrimSpace(values.Get("q"))

	if v := strings.TrimSpace(values.Get("category")); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			return params, common.ValidationError("category must be a valid id", map[string]string{"category": v})
		}
		params.CategoryID = &id
	}
	if v := strings.TrimSpace(values.Get("featured")); v != "" {
		featured, err := strconv.ParseBool(v)
		if err != nil {
			return params, common.ValidationError("featured must be a boolean", nil)
		}
		params.Featured = &featured
	}
	if v := strings.TrimSpace(values.Get("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil || page < 1 {
			return params, common.ValidationError("page must be a positive integer", nil)
		}
		params.Page = page
	}
	if v := strings.TrimSpace(values.Get("limit")); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return params, common.ValidationError("limit must be a positive integer", nil)
		}
		params.Limit = limit
	}
	if params.Limit > s.MaxLimit {
		params.Limit = s.MaxLimit
	}
	return params, nil
}

// Categories returns active menu sections.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	const key = "catalog:categories"
	var cached []Category
	if ok, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && ok {
		return cached, nil
	}
	rows, err := s.Q.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	_ = s.Cache.SetJSON(ctx, key, rows)
	return rows, nil
}

// List returns menu items matching the filters.
func (s *Service) List(ctx context.Context, params ListParams) (ListResult, error) {
	total, err := s.Q.CountMenuItems(ctx, params)
	if err != nil {
		return ListResult{}, err
	}
	items, err := s.Q.ListMenuItems(ctx, params)
	if err != nil {
		return ListResult{}, err
	}
	return ListResult{Items: items, Total: total, Page: params.Page, Limit: params.Limit}, nil
}

// Get returns a single menu item by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (MenuItem, error) {
	item, err := s.Q.GetMenuItem(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return MenuItem{}, common.NotFoundError("menu item not found")
		}
		return MenuItem{}, err
	}
	return item, nil
}

// Snapshot resolves the given ids to current unit prices and availability.
// It is the pricing layer's source of truth for server-side prices.
func (s *Service) Snapshot(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]MenuItem, error) {
	if len(ids) == 0 {
		return map[uuid.UUID]MenuItem{}, nil
	}
	items, err := s.Q.GetMenuItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[uuid.UUID]MenuItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := out[id]; !ok {
			return nil, common.ValidationError(fmt.Sprintf("unknown menu item %s", id), nil)
		}
	}
	return out, nil
}
