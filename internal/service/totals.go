// Package service holds the order domain logic that sits between the HTTP
// handlers and the database: totals recomputation, the emission lock, the
// order state machine, and ticket building/emission.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/picada-pos/api/internal/database"
)

var ErrOrderNotFound = errors.New("order not found")

type TotalsStore interface {
	GetOrder(ctx context.Context, id uuid.UUID) (database.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemRow, error)
	ListOrderItemAddons(ctx context.Context, orderID uuid.UUID) ([]database.OrderItemAddonRow, error)
	PersistTotals(ctx context.Context, arg database.PersistTotalsParams) error
}

// Totals is the derived money state of an order. Total itself is never
// stored, only recomputed from the persisted subtotal and service charge.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	ServicePct    int32           `json:"service_pct"`
	ServiceCharge decimal.Decimal `json:"service_charge"`
	Total         decimal.Decimal `json:"total"`
}

// TotalsEngine recomputes and persists order totals. Every mutation of an
// order's lines goes through Recompute before the response is written, so
// the stored totals never lag the stored lines.
type TotalsEngine struct {
	store TotalsStore
}

func NewTotalsEngine(store TotalsStore) *TotalsEngine {
	return &TotalsEngine{store: store}
}

// Recompute reads the order's lines, derives the totals and persists them.
func (e *TotalsEngine) Recompute(ctx context.Context, orderID uuid.UUID) (Totals, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Totals{}, ErrOrderNotFound
		}
		return Totals{}, fmt.Errorf("get order: %w", err)
	}

	items, err := e.store.ListOrderItems(ctx, orderID)
	if err != nil {
		return Totals{}, fmt.Errorf("list items: %w", err)
	}
	addons, err := e.store.ListOrderItemAddons(ctx, orderID)
	if err != nil {
		return Totals{}, fmt.Errorf("list addons: %w", err)
	}

	t := Compute(items, addons, order.ServicePct)

	err = e.store.PersistTotals(ctx, database.PersistTotalsParams{
		OrderID:       orderID,
		Subtotal:      database.NumericFromDecimal(t.Subtotal),
		Pct:           t.ServicePct,
		ServiceCharge: database.NumericFromDecimal(t.ServiceCharge),
	})
	if err != nil {
		return Totals{}, fmt.Errorf("persist totals: %w", err)
	}
	return t, nil
}

// Compute derives totals from raw lines. Each line is worth
// (unit price + sum of its addon extras) * quantity; the service charge is
// subtotal * pct / 100 rounded half up to a whole peso.
func Compute(items []database.OrderItemRow, addons []database.OrderItemAddonRow, servicePct int32) Totals {
	extrasByItem := make(map[uuid.UUID]decimal.Decimal, len(items))
	for _, a := range addons {
		extrasByItem[a.OrderItemID] = extrasByItem[a.OrderItemID].
			Add(database.DecimalFromNumeric(a.ExtraPrice))
	}

	subtotal := decimal.Zero
	for _, it := range items {
		unit := database.DecimalFromNumeric(it.UnitPrice).Add(extrasByItem[it.ID])
		subtotal = subtotal.Add(unit.Mul(decimal.NewFromInt32(it.Quantity)))
	}

	charge := subtotal.
		Mul(decimal.NewFromInt32(servicePct)).
		Div(decimal.NewFromInt(100)).
		Round(0)

	return Totals{
		Subtotal:      subtotal,
		ServicePct:    servicePct,
		ServiceCharge: charge,
		Total:         subtotal.Add(charge),
	}
}

// TotalsFromOrder rebuilds the totals view from an already persisted order
// row without touching the lines.
func TotalsFromOrder(o database.Order) Totals {
	subtotal := database.DecimalFromNumeric(o.Subtotal)
	charge := database.DecimalFromNumeric(o.ServiceCharge)
	return Totals{
		Subtotal:      subtotal,
		ServicePct:    o.ServicePct,
		ServiceCharge: charge,
		Total:         subtotal.Add(charge),
	}
}
