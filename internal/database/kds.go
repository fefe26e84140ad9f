package database

import (
	"context"

	"github.com/google/uuid"
)

const kdsTicketColumns = `id, order_id, order_number, table_number, channel, state, waiter_name, created_at, updated_at`

func scanKdsTicket(row interface{ Scan(dest ...any) error }) (KdsTicket, error) {
	var t KdsTicket
	err := row.Scan(&t.ID, &t.OrderID, &t.OrderNumber, &t.TableNumber, &t.Channel,
		&t.State, &t.WaiterName, &t.CreatedAt, &t.UpdatedAt)
	return t, err
}

type CreateKdsTicketParams struct {
	OrderID     uuid.UUID
	OrderNumber int32
	TableNumber int32
	Channel     string
	WaiterName  string
}

func (q *Queries) CreateKdsTicket(ctx context.Context, arg CreateKdsTicketParams) (KdsTicket, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO kds_tickets (order_id, order_number, table_number, channel, waiter_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+kdsTicketColumns,
		arg.OrderID, arg.OrderNumber, arg.TableNumber, arg.Channel, arg.WaiterName)
	return scanKdsTicket(row)
}

type CreateKdsItemParams struct {
	TicketID    uuid.UUID
	ProductName string
	Note        string
	AddonNames  []string
}

func (q *Queries) CreateKdsItem(ctx context.Context, arg CreateKdsItemParams) (KdsItem, error) {
	var it KdsItem
	err := q.db.QueryRow(ctx, `
		INSERT INTO kds_items (ticket_id, product_name, note, addon_names)
		VALUES ($1, $2, $3, $4)
		RETURNING id, ticket_id, product_name, note, addon_names, state`,
		arg.TicketID, arg.ProductName, arg.Note, arg.AddonNames).
		Scan(&it.ID, &it.TicketID, &it.ProductName, &it.Note, &it.AddonNames, &it.State)
	return it, err
}

func (q *Queries) GetKdsTicket(ctx context.Context, id uuid.UUID) (KdsTicket, error) {
	row := q.db.QueryRow(ctx, `SELECT `+kdsTicketColumns+` FROM kds_tickets WHERE id = $1`, id)
	return scanKdsTicket(row)
}

// ListOpenKdsTickets returns tickets still in progress, oldest first.
func (q *Queries) ListOpenKdsTickets(ctx context.Context) ([]KdsTicket, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+kdsTicketColumns+`
		  FROM kds_tickets
		 WHERE state IN ('PENDING', 'PREPARING')
		 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []KdsTicket
	for rows.Next() {
		t, err := scanKdsTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func (q *Queries) ListKdsItemsByTicket(ctx context.Context, ticketID uuid.UUID) ([]KdsItem, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, ticket_id, product_name, note, addon_names, state
		  FROM kds_items
		 WHERE ticket_id = $1
		 ORDER BY product_name, id`, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []KdsItem
	for rows.Next() {
		var it KdsItem
		if err := rows.Scan(&it.ID, &it.TicketID, &it.ProductName, &it.Note, &it.AddonNames, &it.State); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type UpdateKdsTicketStateParams struct {
	ID    uuid.UUID
	State string
}

func (q *Queries) UpdateKdsTicketState(ctx context.Context, arg UpdateKdsTicketStateParams) (KdsTicket, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE kds_tickets
		   SET state = $2, updated_at = now()
		 WHERE id = $1
		RETURNING `+kdsTicketColumns,
		arg.ID, arg.State)
	return scanKdsTicket(row)
}

type UpdateKdsItemStateParams struct {
	ID    uuid.UUID
	State string
}

func (q *Queries) UpdateKdsItemState(ctx context.Context, arg UpdateKdsItemStateParams) (KdsItem, error) {
	var it KdsItem
	err := q.db.QueryRow(ctx, `
		UPDATE kds_items
		   SET state = $2
		 WHERE id = $1
		RETURNING id, ticket_id, product_name, note, addon_names, state`,
		arg.ID, arg.State).
		Scan(&it.ID, &it.TicketID, &it.ProductName, &it.Note, &it.AddonNames, &it.State)
	return it, err
}

// AllKdsItemsReady reports whether every item on a ticket is ready, used to
// auto-promote the ticket itself.
func (q *Queries) AllKdsItemsReady(ctx context.Context, ticketID uuid.UUID) (bool, error) {
	var ready bool
	err := q.db.QueryRow(ctx, `
		SELECT COALESCE(bool_and(state = 'READY'), false)
		  FROM kds_items WHERE ticket_id = $1`, ticketID).Scan(&ready)
	return ready, err
}
