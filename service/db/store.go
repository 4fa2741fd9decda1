package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Transaction record statuses. Transitions are monotonic: pending is the only
// non-terminal status, and a terminal status is never overwritten.
const (
	TxStatusPending = "pending"
	TxStatusSuccess = "success"
	TxStatusFailed  = "failed"
)

// Transaction record types.
const (
	TxTypeOnRamp  = "onramp"
	TxTypeOffRamp = "offramp"
)

// Store provides database operations for the service: durable transaction
// records, off-ramp reservations, registrations, and payment capture attempts.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store with the given database connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the underlying connection pool for migrations and test setup.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// TransactionRecord is the durable record of one settlement submission,
// visible to both sides of a match while the ledger confirms it.
type TransactionRecord struct {
	WalletAddress string
	TxHash        string
	Type          string // "onramp" or "offramp"
	Status        string // "pending", "success", "failed"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateTransactionRecordParams contains the parameters for creating a
// transaction record. Records always start pending.
type CreateTransactionRecordParams struct {
	WalletAddress string
	TxHash        string
	Type          string
}

// CreateTransactionRecord inserts a new pending transaction record.
func (s *Store) CreateTransactionRecord(ctx context.Context, params CreateTransactionRecordParams) (*TransactionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO transaction_records (wallet_address, tx_hash, type, status)
		VALUES ($1, $2, $3, 'pending')
		RETURNING wallet_address, tx_hash, type, status, created_at, updated_at`,
		params.WalletAddress, params.TxHash, params.Type,
	)
	return scanTransactionRecord(row)
}

// GetTransactionRecord retrieves one participant's record of a settlement tx.
func (s *Store) GetTransactionRecord(ctx context.Context, walletAddress, txHash string) (*TransactionRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet_address, tx_hash, type, status, created_at, updated_at
		FROM transaction_records
		WHERE wallet_address = $1 AND tx_hash = $2`,
		walletAddress, txHash,
	)
	rec, err := scanTransactionRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// UpdateTransactionStatus moves a pending record to a terminal status.
// The status guard in the WHERE clause enforces monotonicity: a record that
// has already reached success or failed is never rewritten. Violations
// return ErrInvalidTransition.
func (s *Store) UpdateTransactionStatus(ctx context.Context, walletAddress, txHash, newStatus string) (*TransactionRecord, error) {
	if newStatus != TxStatusSuccess && newStatus != TxStatusFailed {
		return nil, ErrInvalidTransition
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE transaction_records
		SET status = $3, updated_at = now()
		WHERE wallet_address = $1 AND tx_hash = $2 AND status = 'pending'
		RETURNING wallet_address, tx_hash, type, status, created_at, updated_at`,
		walletAddress, txHash, newStatus,
	)
	rec, err := scanTransactionRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// Either the record does not exist or it already reached a terminal
		// status. Distinguish so callers can surface the right error.
		existing, getErr := s.GetTransactionRecord(ctx, walletAddress, txHash)
		if getErr != nil {
			return nil, ErrNotFound
		}
		if existing.Status == newStatus {
			// Idempotent re-delivery of the same terminal outcome.
			return existing, nil
		}
		return nil, ErrInvalidTransition
	}
	return rec, err
}

// ListPendingTransactions retrieves all pending records for a wallet, newest
// first. Used by the polling UI collaborators.
func (s *Store) ListPendingTransactions(ctx context.Context, walletAddress string) ([]*TransactionRecord, error) {
	return s.listTransactions(ctx, `
		SELECT wallet_address, tx_hash, type, status, created_at, updated_at
		FROM transaction_records
		WHERE wallet_address = $1 AND status = 'pending'
		ORDER BY created_at DESC`,
		walletAddress,
	)
}

// ListPendingOffRamps retrieves pending off-ramp records for a wallet.
func (s *Store) ListPendingOffRamps(ctx context.Context, walletAddress string) ([]*TransactionRecord, error) {
	return s.listTransactions(ctx, `
		SELECT wallet_address, tx_hash, type, status, created_at, updated_at
		FROM transaction_records
		WHERE wallet_address = $1 AND status = 'pending' AND type = 'offramp'
		ORDER BY created_at DESC`,
		walletAddress,
	)
}

// ListTransactionsByWallet retrieves all records for a wallet, newest first.
func (s *Store) ListTransactionsByWallet(ctx context.Context, walletAddress string, limit, offset int32) ([]*TransactionRecord, error) {
	return s.listTransactions(ctx, `
		SELECT wallet_address, tx_hash, type, status, created_at, updated_at
		FROM transaction_records
		WHERE wallet_address = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		walletAddress, limit, offset,
	)
}

// ConfirmAllPendingTransactions force-moves every pending record for a wallet
// to success. Development/test shim only; the server mounts it solely in dev
// mode. The production confirmation path is ledger receipt polling.
func (s *Store) ConfirmAllPendingTransactions(ctx context.Context, walletAddress string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE transaction_records
		SET status = 'success', updated_at = now()
		WHERE wallet_address = $1 AND status = 'pending'`,
		walletAddress,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) listTransactions(ctx context.Context, query string, args ...any) ([]*TransactionRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*TransactionRecord
	for rows.Next() {
		rec, err := scanTransactionRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanTransactionRecord(row pgx.Row) (*TransactionRecord, error) {
	var rec TransactionRecord
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&rec.WalletAddress, &rec.TxHash, &rec.Type, &rec.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Time
	return &rec, nil
}
