package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/picada-pos/api/internal/database"
)

var (
	ErrTableNotFound = errors.New("table not found")
	ErrTableNotFree  = errors.New("table is not free")
)

// claimAttempts bounds retries of the order-number race.
const claimAttempts = 3

// ClaimStore defines the DB methods needed to open an order on a table.
// Satisfied by *database.Queries (and its WithTx variant).
type ClaimStore interface {
	GetTable(ctx context.Context, id uuid.UUID) (database.Table, error)
	ClaimTable(ctx context.Context, arg database.ClaimTableParams) (database.Table, error)
	GetOpenOrderByTable(ctx context.Context, tableID uuid.UUID) (database.Order, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
}

// NewClaimStore creates a ClaimStore from a DBTX (pool or tx).
type NewClaimStore func(db database.DBTX) ClaimStore

type ClaimResult struct {
	Table    database.Table
	Order    database.Order
	Existing bool
}

// TableService opens orders by claiming tables. The claim and the order
// insert run in one transaction so a failed insert can never leave a table
// occupied without an order.
type TableService struct {
	pool     TxBeginner
	newStore NewClaimStore
}

func NewTableService(pool TxBeginner, newStore NewClaimStore) *TableService {
	return &TableService{pool: pool, newStore: newStore}
}

// Claim occupies a free table for the waiter and opens an order on it.
// Re-claiming a table that already has an active order is idempotent for
// the assigned waiter. The sequential order number can collide with a
// concurrent insert; the whole transaction retries on that unique
// violation.
func (s *TableService) Claim(ctx context.Context, tableID, waiterID uuid.UUID) (*ClaimResult, error) {
	var lastErr error
	for attempt := 0; attempt < claimAttempts; attempt++ {
		result, err := s.claimOnce(ctx, tableID, waiterID)
		if err != nil && isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return result, err
	}
	return nil, fmt.Errorf("claim table: %w", lastErr)
}

func (s *TableService) claimOnce(ctx context.Context, tableID, waiterID uuid.UUID) (*ClaimResult, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			log.Printf("ERROR: rollback claim tx: %v", rbErr)
		}
	}()

	store := s.newStore(tx)

	// An active order on the table decides the claim before touching the
	// table row.
	existing, err := store.GetOpenOrderByTable(ctx, tableID)
	if err == nil {
		if existing.WaiterID == waiterID {
			return &ClaimResult{Order: existing, Existing: true}, nil
		}
		return nil, ErrTableNotFree
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get open order: %w", err)
	}

	table, err := store.ClaimTable(ctx, database.ClaimTableParams{ID: tableID, WaiterID: waiterID})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// The table is missing, or another waiter won the claim race.
			if _, getErr := store.GetTable(ctx, tableID); errors.Is(getErr, pgx.ErrNoRows) {
				return nil, ErrTableNotFound
			}
			return nil, ErrTableNotFree
		}
		return nil, fmt.Errorf("claim table: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{TableID: tableID, WaiterID: waiterID})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return &ClaimResult{Table: table, Order: order}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
