package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
	"github.com/picada-pos/api/internal/enum"
)

var (
	ErrInvalidMethod      = errors.New("invalid payment method")
	ErrOrderNotPayable    = errors.New("order is not payable")
	ErrInsufficientTender = errors.New("tendered amount is less than the total")
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PaymentStore defines the DB methods needed to settle an order.
// Satisfied by *database.Queries (and its WithTx variant).
type PaymentStore interface {
	GetOrderForUpdate(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRow, error)
	ListOrderItemAddons(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemAddonRow, error)
	PersistTotals(ctx context.Context, arg database.PersistTotalsParams) error
	CreatePayment(ctx context.Context, arg database.CreatePaymentParams) (database.Payment, error)
	SetOrderState(ctx context.Context, arg database.SetOrderStateParams) (database.Order, error)
	ReleaseTable(ctx context.Context, id uuid.UUID) error
}

// NewPaymentStore creates a PaymentStore from a DBTX (pool or tx).
type NewPaymentStore func(db database.DBTX) PaymentStore

type PayRequest struct {
	OrderID    uuid.UUID
	CashierID  uuid.UUID
	Method     string
	CashAmount decimal.Decimal
	CardAmount decimal.Decimal
}

type PayResult struct {
	Payment database.Payment
	Order   database.Order
	Totals  Totals
	Change  decimal.Decimal
}

// PaymentService settles orders. The whole settlement runs in one
// transaction so a crash can never leave an order paid but its table
// occupied, or vice versa.
type PaymentService struct {
	pool     TxBeginner
	newStore NewPaymentStore
}

func NewPaymentService(pool TxBeginner, newStore NewPaymentStore) *PaymentService {
	return &PaymentService{pool: pool, newStore: newStore}
}

// Pay recomputes the order's totals from its lines inside the transaction,
// validates the tendered amounts against the fresh total, records the
// payment, marks the order PAID and frees its table.
func (s *PaymentService) Pay(ctx context.Context, req PayRequest) (*PayResult, error) {
	switch req.Method {
	case enum.PaymentMethodCash, enum.PaymentMethodCard, enum.PaymentMethodMixed:
	default:
		return nil, ErrInvalidMethod
	}
	if req.CashAmount.IsNegative() || req.CardAmount.IsNegative() {
		return nil, ErrInvalidMethod
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Printf("ERROR: rollback payment tx: %v", rbErr)
		}
	}()

	store := s.newStore(tx)

	order, err := store.GetOrderForUpdate(ctx, req.OrderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if IsTerminalOrderState(order.State) {
		return nil, ErrOrderNotPayable
	}

	items, err := store.ListOrderItems(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	if len(items) == 0 {
		return nil, ErrEmptyOrder
	}
	addons, err := store.ListOrderItemAddons(ctx, req.OrderID)
	if err != nil {
		return nil, fmt.Errorf("list addons: %w", err)
	}

	// The cashier's screen may be stale; the charged total always comes
	// from the lines as they are now.
	totals := Compute(items, addons, order.ServicePct)
	if err := store.PersistTotals(ctx, database.PersistTotalsParams{
		OrderID:       req.OrderID,
		Subtotal:      database.NumericFromDecimal(totals.Subtotal),
		Pct:           totals.ServicePct,
		ServiceCharge: database.NumericFromDecimal(totals.ServiceCharge),
	}); err != nil {
		return nil, fmt.Errorf("persist totals: %w", err)
	}

	tendered := req.CashAmount.Add(req.CardAmount)
	if tendered.LessThan(totals.Total) {
		return nil, ErrInsufficientTender
	}
	change := tendered.Sub(totals.Total)

	payment, err := store.CreatePayment(ctx, database.CreatePaymentParams{
		OrderID:      req.OrderID,
		CashierID:    req.CashierID,
		Method:       req.Method,
		Total:        database.NumericFromDecimal(totals.Total),
		CashAmount:   database.NumericFromDecimal(req.CashAmount),
		CardAmount:   database.NumericFromDecimal(req.CardAmount),
		ChangeAmount: database.NumericFromDecimal(change),
	})
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	paid, err := store.SetOrderState(ctx, database.SetOrderStateParams{
		ID:    req.OrderID,
		State: enum.OrderStatePaid,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotPayable
		}
		return nil, fmt.Errorf("mark order paid: %w", err)
	}

	if err := store.ReleaseTable(ctx, paid.TableID); err != nil {
		return nil, fmt.Errorf("release table: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &PayResult{
		Payment: payment,
		Order:   paid,
		Totals:  totals,
		Change:  change,
	}, nil
}
