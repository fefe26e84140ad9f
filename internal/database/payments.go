package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type CreatePaymentParams struct {
	OrderID      uuid.UUID
	CashierID    uuid.UUID
	Method       string
	Total        pgtype.Numeric
	CashAmount   pgtype.Numeric
	CardAmount   pgtype.Numeric
	ChangeAmount pgtype.Numeric
}

func (q *Queries) CreatePayment(ctx context.Context, arg CreatePaymentParams) (Payment, error) {
	var p Payment
	err := q.db.QueryRow(ctx, `
		INSERT INTO payments (order_id, cashier_id, method, total, cash_amount, card_amount, change_amount)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, order_id, cashier_id, method, total, cash_amount, card_amount, change_amount, created_at`,
		arg.OrderID, arg.CashierID, arg.Method, arg.Total, arg.CashAmount, arg.CardAmount, arg.ChangeAmount).
		Scan(&p.ID, &p.OrderID, &p.CashierID, &p.Method, &p.Total,
			&p.CashAmount, &p.CardAmount, &p.ChangeAmount, &p.CreatedAt)
	return p, err
}

func (q *Queries) ListPaymentsByOrder(ctx context.Context, orderID uuid.UUID) ([]Payment, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, order_id, cashier_id, method, total, cash_amount, card_amount, change_amount, created_at
		  FROM payments
		 WHERE order_id = $1
		 ORDER BY created_at`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.OrderID, &p.CashierID, &p.Method, &p.Total,
			&p.CashAmount, &p.CardAmount, &p.ChangeAmount, &p.CreatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
