package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/banalytics/harvester/internal/domain"
)

// ErrDuplicateRun is returned when a run id has already been loaded. The
// caller skips the file; nothing from the rejected batch is inserted.
var ErrDuplicateRun = errors.New("run already loaded")

// uniqueViolation is the Postgres error code for unique constraint breaks.
const uniqueViolation = "23505"

const insertRunQuery = `
	INSERT INTO runs (run_id, started_at, ended_at, vendor)
	VALUES ($1, $2, $3, $4)
	RETURNING id
`

const insertDatapointQuery = `
	INSERT INTO datapoints (item_id, name, quantity, unit, price, sale_price, unique_key, fetched_at, run_id)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

// RunRepository persists runs and their datapoints.
type RunRepository struct {
	db *sqlx.DB
}

// NewRunRepository creates a run repository.
func NewRunRepository(db *sqlx.DB) *RunRepository {
	return &RunRepository{db: db}
}

// InsertRun inserts the run row and all of its datapoints as one
// transaction. A duplicate run id rolls the whole batch back and returns
// ErrDuplicateRun: re-loading the same crawl output must never produce
// partial or doubled rows.
func (r *RunRepository) InsertRun(ctx context.Context, run *domain.Run, rows []domain.Row) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin load transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	var runPK int64
	insertErr := tx.QueryRowxContext(
		ctx, insertRunQuery,
		run.RunID, run.StartedAt, run.EndedAt, run.Vendor,
	).Scan(&runPK)
	if insertErr != nil {
		if isUniqueViolation(insertErr) {
			return fmt.Errorf("%w: %s", ErrDuplicateRun, run.RunID)
		}
		return fmt.Errorf("insert run %s: %w", run.RunID, insertErr)
	}

	stmt, prepErr := tx.PreparexContext(ctx, insertDatapointQuery)
	if prepErr != nil {
		return fmt.Errorf("prepare datapoint insert: %w", prepErr)
	}
	defer stmt.Close()

	for i := range rows {
		row := &rows[i]
		if _, execErr := stmt.ExecContext(
			ctx,
			row.ID, row.Name, row.Quantity, row.Unit,
			row.Price, row.SalePrice, row.UniqueKey, row.FetchedAt, runPK,
		); execErr != nil {
			return fmt.Errorf("insert datapoint %s for run %s: %w", row.ID, run.RunID, execErr)
		}
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit run %s: %w", run.RunID, commitErr)
	}

	return nil
}

// isUniqueViolation reports whether err is a Postgres unique violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}
