package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const orderColumns = `id, number, table_id, waiter_id, state, service_pct, subtotal, service_charge, created_at, updated_at`

func scanOrder(row interface{ Scan(dest ...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.Number, &o.TableID, &o.WaiterID, &o.State,
		&o.ServicePct, &o.Subtotal, &o.ServiceCharge, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

type CreateOrderParams struct {
	TableID  uuid.UUID
	WaiterID uuid.UUID
}

// CreateOrder inserts a new open order, assigning the next sequential
// display number. The number subquery can race with a concurrent insert;
// callers retry on the unique violation like any other order-number race.
func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO orders (table_id, waiter_id, number)
		VALUES ($1, $2, (SELECT COALESCE(MAX(number), 0) + 1 FROM orders))
		RETURNING `+orderColumns,
		arg.TableID, arg.WaiterID)
	return scanOrder(row)
}

func (q *Queries) GetOrder(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

// GetOrderForUpdate locks the order row for the duration of the enclosing
// transaction. Used by the payment path to serialize concurrent payments.
func (q *Queries) GetOrderForUpdate(ctx context.Context, id uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (q *Queries) GetOrderHeader(ctx context.Context, id uuid.UUID) (OrderHeaderRow, error) {
	var h OrderHeaderRow
	err := q.db.QueryRow(ctx, `
		SELECT o.id, o.number, t.number, COALESCE(u.full_name, ''),
		       o.state, o.service_pct, o.subtotal, o.service_charge, o.created_at
		  FROM orders o
		  JOIN tables t ON t.id = o.table_id
		  LEFT JOIN users u ON u.id = o.waiter_id
		 WHERE o.id = $1`, id).
		Scan(&h.ID, &h.Number, &h.TableNumber, &h.WaiterName,
			&h.State, &h.ServicePct, &h.Subtotal, &h.ServiceCharge, &h.CreatedAt)
	return h, err
}

// GetOpenOrderByTable returns the most recent open or sent order for a table.
func (q *Queries) GetOpenOrderByTable(ctx context.Context, tableID uuid.UUID) (Order, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+orderColumns+`
		  FROM orders
		 WHERE table_id = $1 AND state IN ('OPEN', 'SENT')
		 ORDER BY created_at DESC
		 LIMIT 1`, tableID)
	return scanOrder(row)
}

func (q *Queries) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]OrderItemRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, c.channel, i.quantity, i.unit_price, i.note
		  FROM order_items i
		  JOIN products p ON p.id = i.product_id
		  LEFT JOIN categories c ON c.id = p.category_id
		 WHERE i.order_id = $1
		 ORDER BY i.created_at, i.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItemRow
	for rows.Next() {
		var it OrderItemRow
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName,
			&it.Channel, &it.Quantity, &it.UnitPrice, &it.Note); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ListOrderItemAddons returns every addon attachment for an order, joined
// with the addon name, in a single query.
func (q *Queries) ListOrderItemAddons(ctx context.Context, orderID uuid.UUID) ([]OrderItemAddonRow, error) {
	rows, err := q.db.Query(ctx, `
		SELECT ia.order_item_id, ia.addon_id, a.name, ia.extra_price
		  FROM order_item_addons ia
		  JOIN addons a ON a.id = ia.addon_id
		  JOIN order_items i ON i.id = ia.order_item_id
		 WHERE i.order_id = $1
		 ORDER BY a.name, ia.addon_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addons []OrderItemAddonRow
	for rows.Next() {
		var a OrderItemAddonRow
		if err := rows.Scan(&a.OrderItemID, &a.AddonID, &a.Name, &a.ExtraPrice); err != nil {
			return nil, err
		}
		addons = append(addons, a)
	}
	return addons, rows.Err()
}

type CreateOrderItemParams struct {
	OrderID   uuid.UUID
	ProductID uuid.UUID
}

// CreateOrderItem inserts a quantity-1 line item, capturing the product's
// current price as the immutable unit price.
func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO order_items (order_id, product_id, quantity, unit_price)
		VALUES ($1, $2, 1, (SELECT price FROM products WHERE id = $2))
		RETURNING id, order_id, product_id, quantity, unit_price, note`,
		arg.OrderID, arg.ProductID).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Note)
	return it, err
}

func (q *Queries) GetOrderItem(ctx context.Context, id uuid.UUID) (OrderItem, error) {
	var it OrderItem
	err := q.db.QueryRow(ctx, `
		SELECT id, order_id, product_id, quantity, unit_price, note
		  FROM order_items WHERE id = $1`, id).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice, &it.Note)
	return it, err
}

type SetOrderItemQuantityParams struct {
	ID       uuid.UUID
	Quantity int32
}

func (q *Queries) SetOrderItemQuantity(ctx context.Context, arg SetOrderItemQuantityParams) error {
	_, err := q.db.Exec(ctx, `UPDATE order_items SET quantity = $2 WHERE id = $1`, arg.ID, arg.Quantity)
	return err
}

func (q *Queries) DeleteOrderItem(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_items WHERE id = $1`, id)
	return err
}

func (q *Queries) DeleteOrderItemAddons(ctx context.Context, orderItemID uuid.UUID) error {
	_, err := q.db.Exec(ctx, `DELETE FROM order_item_addons WHERE order_item_id = $1`, orderItemID)
	return err
}

type UpsertItemAddonParams struct {
	OrderItemID uuid.UUID
	AddonID     uuid.UUID
}

// UpsertItemAddon attaches an addon to a line item, capturing the addon's
// current extra price. Re-attaching refreshes the captured price.
func (q *Queries) UpsertItemAddon(ctx context.Context, arg UpsertItemAddonParams) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO order_item_addons (order_item_id, addon_id, extra_price)
		VALUES ($1, $2, (SELECT extra_price FROM addons WHERE id = $2))
		ON CONFLICT (order_item_id, addon_id)
		DO UPDATE SET extra_price = EXCLUDED.extra_price`,
		arg.OrderItemID, arg.AddonID)
	return err
}

type SetOrderItemNoteParams struct {
	ID   uuid.UUID
	Note string
}

func (q *Queries) SetOrderItemNote(ctx context.Context, arg SetOrderItemNoteParams) error {
	_, err := q.db.Exec(ctx, `UPDATE order_items SET note = $2 WHERE id = $1`, arg.ID, arg.Note)
	return err
}

type SetServicePercentageParams struct {
	OrderID uuid.UUID
	Pct     int32
}

func (q *Queries) SetServicePercentage(ctx context.Context, arg SetServicePercentageParams) error {
	_, err := q.db.Exec(ctx, `UPDATE orders SET service_pct = $2, updated_at = now() WHERE id = $1`,
		arg.OrderID, arg.Pct)
	return err
}

type PersistTotalsParams struct {
	OrderID       uuid.UUID
	Subtotal      pgtype.Numeric
	Pct           int32
	ServiceCharge pgtype.Numeric
}

// PersistTotals writes all derived totals in one statement so no partially
// updated order is ever observable.
func (q *Queries) PersistTotals(ctx context.Context, arg PersistTotalsParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE orders
		   SET subtotal = $2, service_pct = $3, service_charge = $4, updated_at = now()
		 WHERE id = $1`,
		arg.OrderID, arg.Subtotal, arg.Pct, arg.ServiceCharge)
	return err
}

type SetOrderStateParams struct {
	ID    uuid.UUID
	State string
}

// SetOrderState transitions an order out of a non-terminal state. Returns
// pgx.ErrNoRows when the order is missing or already paid/voided, so the
// caller can distinguish a lost race from success.
func (q *Queries) SetOrderState(ctx context.Context, arg SetOrderStateParams) (Order, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE orders
		   SET state = $2, updated_at = now()
		 WHERE id = $1 AND state IN ('OPEN', 'SENT')
		RETURNING `+orderColumns,
		arg.ID, arg.State)
	return scanOrder(row)
}

func (q *Queries) CountOrderItems(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, `SELECT COUNT(*) FROM order_items WHERE order_id = $1`, orderID).Scan(&n)
	return n, err
}
