// Package postgres implementuje úložiště nad PostgreSQL/TimescaleDB přes pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tenant-telemetry/internal/apperr"
	"tenant-telemetry/internal/store"
)

// Open vytvoří pool a ověří, že databáze odpovídá.
func Open(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("chyba konfigurace DB: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, apperr.Transient("DB není dostupná", err)
	}
	return pool, nil
}

// New vrátí všechna úložiště nad jedním poolem.
func New(pool *pgxpool.Pool) store.Stores {
	return store.Stores{
		Readings:  &Readings{db: pool},
		Sensors:   &Sensors{db: pool},
		Access:    &Access{db: pool},
		AccessLog: &AccessLog{db: pool},
	}
}

// schema vytvoří tabulky, pokud chybí. Registr senzorů plní externí správa,
// tabulku ale potřebujeme kvůli cizímu klíči grantů (ON DELETE CASCADE).
const schema = `
CREATE TABLE IF NOT EXISTS sensors (
	id          TEXT PRIMARY KEY,
	sensor_id   TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	location    TEXT NOT NULL DEFAULT '',
	type        TEXT NOT NULL DEFAULT '',
	company_id  TEXT NOT NULL,
	is_active   BOOLEAN NOT NULL DEFAULT true
);

CREATE TABLE IF NOT EXISTS sensor_data (
	id              TEXT PRIMARY KEY,
	sensor_id       TEXT NOT NULL,
	timestamp       TIMESTAMPTZ NOT NULL,
	temperature     DOUBLE PRECISION,
	humidity        DOUBLE PRECISION,
	additional_data JSONB,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sensor_data_sensor_time_idx ON sensor_data (sensor_id, timestamp DESC);

CREATE TABLE IF NOT EXISTS sensor_user_access (
	id          TEXT PRIMARY KEY,
	sensor_id   TEXT NOT NULL REFERENCES sensors(id) ON DELETE CASCADE,
	user_id     TEXT NOT NULL,
	can_view    BOOLEAN NOT NULL DEFAULT true,
	can_edit    BOOLEAN NOT NULL DEFAULT false,
	can_delete  BOOLEAN NOT NULL DEFAULT false,
	description TEXT NOT NULL DEFAULT '',
	created_by  TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (sensor_id, user_id)
);

CREATE TABLE IF NOT EXISTS sensor_access_logs (
	id        TEXT PRIMARY KEY,
	user_id   TEXT NOT NULL,
	sensor_id TEXT NOT NULL,
	action    TEXT NOT NULL,
	timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS sensor_access_logs_user_idx ON sensor_access_logs (user_id, timestamp DESC);
`

// Migrate vytvoří schéma. Příkazy jsou idempotentní.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrace schématu selhala: %w", err)
	}
	return nil
}

// Kódy chyb PostgreSQL, které rozlišujeme.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// classify převede chybu drivera na chybu z taxonomie apperr.
func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, pgx.ErrNoRows):
		return apperr.NotFound("%s", op)
	case pgCode(err) == pgUniqueViolation:
		return apperr.Conflict("%s", op)
	case pgCode(err) == pgForeignKeyViolation:
		return apperr.NotFound("%s: referenced sensor", op)
	default:
		return apperr.Transient(op, err)
	}
}
