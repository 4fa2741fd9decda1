package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the full database schema. Applied idempotently by Migrate; the
// CLI exposes it via `peerramp db migrate`.
const Schema = `
CREATE TABLE IF NOT EXISTS transaction_records (
	wallet_address TEXT        NOT NULL,
	tx_hash        TEXT        NOT NULL,
	type           TEXT        NOT NULL CHECK (type IN ('onramp', 'offramp')),
	status         TEXT        NOT NULL CHECK (status IN ('pending', 'success', 'failed')),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (wallet_address, tx_hash)
);

CREATE INDEX IF NOT EXISTS idx_transaction_records_wallet_status
	ON transaction_records (wallet_address, status);

CREATE TABLE IF NOT EXISTS reservations (
	off_ramp_address TEXT        NOT NULL,
	reserved_by      TEXT        NOT NULL,
	correlation_id   TEXT        NOT NULL,
	settlement_tx    TEXT,
	reserved_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at       TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (off_ramp_address)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_correlation
	ON reservations (correlation_id);

CREATE TABLE IF NOT EXISTS registrations (
	wallet_address TEXT        NOT NULL,
	email          TEXT        NOT NULL,
	status         TEXT        NOT NULL CHECK (status IN ('not_registered', 'pending', 'registered')),
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (wallet_address)
);

CREATE TABLE IF NOT EXISTS payment_attempts (
	correlation_id TEXT        NOT NULL,
	state          TEXT        NOT NULL CHECK (state IN ('not_started', 'in_progress', 'done')),
	outcome        TEXT        CHECK (outcome IN ('success', 'failed')),
	token          TEXT,
	payer_id       TEXT,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (correlation_id)
);
`

// Migrate applies the schema to the database.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
