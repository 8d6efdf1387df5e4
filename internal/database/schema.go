package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema creates the load tables when they do not exist yet. Schema
// evolution beyond this bootstrap is managed outside the loader.
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id         BIGSERIAL PRIMARY KEY,
	run_id     TEXT NOT NULL UNIQUE,
	started_at TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ,
	vendor     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS datapoints (
	id         BIGSERIAL PRIMARY KEY,
	item_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	quantity   DOUBLE PRECISION NOT NULL,
	unit       TEXT NOT NULL,
	price      DOUBLE PRECISION NOT NULL,
	sale_price DOUBLE PRECISION NOT NULL,
	unique_key TEXT NOT NULL,
	fetched_at TIMESTAMPTZ NOT NULL,
	run_id     BIGINT NOT NULL REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_datapoints_run_id ON datapoints(run_id);
`

// EnsureSchema creates the runs and datapoints tables if needed.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure load schema: %w", err)
	}
	return nil
}
