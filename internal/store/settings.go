package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/settings"
)

const settingsColumns = `id, name, description, tagline, address, phone, email, website,
	latitude, longitude, is_open, delivery_radius_km, minimum_order,
	free_delivery_threshold, vat_rate, pickup_fee, delivery_fee_base,
	delivery_fee_per_km, accepts_cash, accepts_card, maintenance_mode,
	maintenance_message, created_at, updated_at`

func scanSettings(row pgx.Row) (settings.Restaurant, error) {
	var r settings.Restaurant
	err := row.Scan(
		&r.ID, &r.Name, &r.Description, &r.Tagline, &r.Address, &r.Phone, &r.Email,
		&r.Website, &r.Latitude, &r.Longitude, &r.IsOpen, &r.DeliveryRadiusKM,
		&r.MinimumOrder, &r.FreeDeliveryThreshold, &r.VATRate, &r.PickupFee,
		&r.DeliveryFeeBase, &r.DeliveryFeePerKM, &r.AcceptsCash, &r.AcceptsCard,
		&r.MaintenanceMode, &r.MaintenanceMessage, &r.CreatedAt, &r.UpdatedAt,
	)
	return r, err
}

func (q *Queries) GetRestaurantSettings(ctx context.Context) (settings.Restaurant, error) {
	row := q.db.QueryRow(ctx, `SELECT `+settingsColumns+` FROM restaurant_settings ORDER BY id LIMIT 1`)
	return scanSettings(row)
}

func (q *Queries) UpdateRestaurantSettings(ctx context.Context, arg settings.UpdateParams) (settings.Restaurant, error) {
	// The settings table is a singleton; seed it on first write.
	if _, err := q.GetRestaurantSettings(ctx); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return settings.Restaurant{}, err
		}
		if _, err := q.db.Exec(ctx, `INSERT INTO restaurant_settings DEFAULT VALUES`); err != nil {
			return settings.Restaurant{}, err
		}
	}
	row := q.db.QueryRow(ctx, `
		UPDATE restaurant_settings SET
			name = COALESCE($1, name),
			description = COALESCE($2, description),
			address = COALESCE($3, address),
			phone = COALESCE($4, phone),
			email = COALESCE($5, email),
			is_open = COALESCE($6, is_open),
			minimum_order = COALESCE($7, minimum_order),
			free_delivery_threshold = COALESCE($8, free_delivery_threshold),
			vat_rate = COALESCE($9, vat_rate),
			pickup_fee = COALESCE($10, pickup_fee),
			delivery_fee_base = COALESCE($11, delivery_fee_base),
			delivery_fee_per_km = COALESCE($12, delivery_fee_per_km),
			maintenance_mode = COALESCE($13, maintenance_mode),
			maintenance_message = COALESCE($14, maintenance_message),
			updated_at = now()
		WHERE id = (SELECT id FROM restaurant_settings ORDER BY id LIMIT 1)
		RETURNING `+settingsColumns,
		arg.Name, arg.Description, arg.Address, arg.Phone, arg.Email, arg.IsOpen,
		arg.MinimumOrder, arg.FreeDeliveryThreshold, arg.VATRate, arg.PickupFee,
		arg.DeliveryFeeBase, arg.DeliveryFeePerKM, arg.MaintenanceMode, arg.MaintenanceMessage,
	)
	return scanSettings(row)
}
