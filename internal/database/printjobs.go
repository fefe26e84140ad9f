package database

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const printJobColumns = `id, kind, printer_name, body, state, error, created_at, updated_at`

func scanPrintJob(row interface{ Scan(dest ...any) error }) (PrintJob, error) {
	var j PrintJob
	err := row.Scan(&j.ID, &j.Kind, &j.PrinterName, &j.Body, &j.State, &j.Error, &j.CreatedAt, &j.UpdatedAt)
	return j, err
}

type CreatePrintJobParams struct {
	Kind        string
	PrinterName string
	Body        []byte
}

func (q *Queries) CreatePrintJob(ctx context.Context, arg CreatePrintJobParams) (PrintJob, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO print_jobs (kind, printer_name, body)
		VALUES ($1, $2, $3)
		RETURNING `+printJobColumns,
		arg.Kind, arg.PrinterName, arg.Body)
	return scanPrintJob(row)
}

// ListPendingPrintJobs returns the oldest unprinted jobs for one printer,
// the batch the printer agent polls for.
func (q *Queries) ListPendingPrintJobs(ctx context.Context, printerName string) ([]PrintJob, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+printJobColumns+`
		  FROM print_jobs
		 WHERE printer_name = $1 AND state = 'PENDING'
		 ORDER BY created_at
		 LIMIT 20`, printerName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []PrintJob
	for rows.Next() {
		j, err := scanPrintJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type AckPrintJobParams struct {
	ID    uuid.UUID
	State string
	Error pgtype.Text
}

func (q *Queries) AckPrintJob(ctx context.Context, arg AckPrintJobParams) (PrintJob, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE print_jobs
		   SET state = $2, error = $3, updated_at = now()
		 WHERE id = $1
		RETURNING `+printJobColumns,
		arg.ID, arg.State, arg.Error)
	return scanPrintJob(row)
}
