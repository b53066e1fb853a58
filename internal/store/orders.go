package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/noah-isme/backend-resto/internal/order"
)

const orderColumns = `id, order_number, user_id, guest_name, guest_email,
	guest_phone, delivery_type, delivery_address, special_instructions,
	subtotal, tax_amount, delivery_fee, discount_amount, total_amount,
	status, payment_status, paystack_reference, paystack_access_code,
	payment_verified_at, estimated_delivery_time, actual_delivery_time,
	created_at, updated_at`

func scanOrder(row pgx.Row) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.UserID, &o.GuestName, &o.GuestEmail,
		&o.GuestPhone, &o.DeliveryType, &o.DeliveryAddress, &o.SpecialInstructions,
		&o.Subtotal, &o.TaxAmount, &o.DeliveryFee, &o.DiscountAmount, &o.TotalAmount,
		&o.Status, &o.PaymentStatus, &o.PaystackReference, &o.PaystackAccessCode,
		&o.PaymentVerifiedAt, &o.EstimatedDelivery, &o.ActualDelivery,
		&o.CreatedAt, &o.UpdatedAt,
	)
	return o, err
}

func collectOrders(rows pgx.Rows) ([]order.Order, error) {
	defer rows.Close()
	var out []order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (q *Queries) GetLastOrderNumber(ctx context.Context) (string, error) {
	var number string
	err := q.db.QueryRow(ctx,
		`SELECT order_number FROM orders ORDER BY order_number DESC LIMIT 1`).
		Scan(&number)
	return number, err
}

func (q *Queries) InsertOrder(ctx context.Context, arg order.InsertOrderParams) (order.Order, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO orders (
			id, order_number, user_id, guest_name, guest_email, guest_phone,
			delivery_type, delivery_address, special_instructions,
			subtotal, tax_amount, delivery_fee, discount_amount, total_amount,
			estimated_delivery_time
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING `+orderColumns,
		arg.ID, arg.OrderNumber, arg.UserID, arg.GuestName, arg.GuestEmail, arg.GuestPhone,
		arg.DeliveryType, arg.DeliveryAddress, arg.SpecialInstructions,
		arg.Subtotal, arg.TaxAmount, arg.DeliveryFee, arg.DiscountAmount, arg.TotalAmount,
		arg.EstimatedDelivery)
	return scanOrder(row)
}

const orderItemColumns = `id, order_id, menu_item_id, item_name, quantity,
	unit_price, total_price, special_instructions`

func scanOrderItem(row pgx.Row) (order.Item, error) {
	var it order.Item
	err := row.Scan(
		&it.ID, &it.OrderID, &it.MenuItemID, &it.Name, &it.Quantity,
		&it.UnitPrice, &it.TotalPrice, &it.SpecialInstructions,
	)
	return it, err
}

func (q *Queries) InsertOrderItem(ctx context.Context, arg order.InsertItemParams) (order.Item, error) {
	row := q.db.QueryRow(ctx,
		`INSERT INTO order_items (
			order_id, menu_item_id, item_name, quantity,
			unit_price, total_price, special_instructions
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+orderItemColumns,
		arg.OrderID, arg.MenuItemID, arg.Name, arg.Quantity,
		arg.UnitPrice, arg.TotalPrice, arg.SpecialInstructions)
	return scanOrderItem(row)
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]order.Item, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderItemColumns+` FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []order.Item
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (order.Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (order.Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderByNumber(ctx context.Context, number string) (order.Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE order_number = $1`, number)
	return scanOrder(row)
}

func (q *Queries) GetOrderByReference(ctx context.Context, reference string) (order.Order, error) {
	row := q.db.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE paystack_reference = $1`, reference)
	return scanOrder(row)
}

func (q *Queries) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]order.Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) CountOrdersByUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE user_id = $1`, userID).Scan(&n)
	return n, err
}

func (q *Queries) ListOrders(ctx context.Context, limit, offset int32) ([]order.Order, error) {
	rows, err := q.db.Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectOrders(rows)
}

func (q *Queries) CountOrders(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg order.UpdateStatusParams) error {
	_, err := q.db.Exec(ctx,
		`UPDATE orders SET
			status = $2,
			estimated_delivery_time = COALESCE($3, estimated_delivery_time),
			actual_delivery_time = COALESCE($4, actual_delivery_time),
			updated_at = now()
		WHERE id = $1`,
		arg.ID, arg.Status, arg.EstimatedDelivery, arg.ActualDelivery)
	return err
}

func (q *Queries) SetPaymentInit(ctx context.Context, id uuid.UUID, reference, accessCode string) error {
	_, err := q.db.Exec(ctx,
		`UPDATE orders SET
			paystack_reference = $2,
			paystack_access_code = $3,
			updated_at = now()
		WHERE id = $1`,
		id, reference, accessCode)
	return err
}

func (q *Queries) MarkOrderPaid(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error {
	_, err := q.db.Exec(ctx,
		`UPDATE orders SET
			payment_status = 'paid',
			payment_verified_at = $2,
			updated_at = now()
		WHERE id = $1`,
		id, verifiedAt)
	return err
}

func (q *Queries) MarkPaymentFailed(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx,
		`UPDATE orders SET payment_status = 'failed', updated_at = now() WHERE id = $1`, id)
	return err
}
