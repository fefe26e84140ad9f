package database

import (
	"context"

	"github.com/google/uuid"
)

const tableColumns = `id, number, state, waiter_id`

func scanTable(row interface{ Scan(dest ...any) error }) (Table, error) {
	var t Table
	err := row.Scan(&t.ID, &t.Number, &t.State, &t.WaiterID)
	return t, err
}

func (q *Queries) ListTables(ctx context.Context) ([]Table, error) {
	rows, err := q.db.Query(ctx, `SELECT `+tableColumns+` FROM tables ORDER BY number`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []Table
	for rows.Next() {
		t, err := scanTable(rows)
		if err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (q *Queries) GetTable(ctx context.Context, id uuid.UUID) (Table, error) {
	row := q.db.QueryRow(ctx, `SELECT `+tableColumns+` FROM tables WHERE id = $1`, id)
	return scanTable(row)
}

type ClaimTableParams struct {
	ID       uuid.UUID
	WaiterID uuid.UUID
}

// ClaimTable occupies a free table for a waiter in one conditional write.
// When two waiters race for the same table exactly one update matches the
// WHERE clause; the loser gets pgx.ErrNoRows.
func (q *Queries) ClaimTable(ctx context.Context, arg ClaimTableParams) (Table, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE tables
		   SET state = 'OCCUPIED', waiter_id = $2
		 WHERE id = $1 AND state = 'FREE'
		RETURNING `+tableColumns,
		arg.ID, arg.WaiterID)
	return scanTable(row)
}

func (q *Queries) ReleaseTable(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, `
		UPDATE tables SET state = 'FREE', waiter_id = NULL WHERE id = $1`, id)
	return err
}
