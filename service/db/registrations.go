package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Registration statuses. not_connected is implicit (no row); a row exists
// once a wallet is bound.
const (
	RegStatusNotRegistered = "not_registered"
	RegStatusPending       = "pending"
	RegStatusRegistered    = "registered"
)

// Registration links a wallet identity to a payment-processor identity
// (email) through the multi-step registration flow.
type Registration struct {
	WalletAddress string
	Email         string
	Status        string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateRegistration records a registration submission for a wallet, moving
// it to pending. The conditional upsert is a single statement, so concurrent
// submissions for the same wallet have exactly one winner; the loser gets
// ErrAlreadyRegistered. A wallet whose previous attempt failed (status back
// at not_registered) may submit again.
func (s *Store) CreateRegistration(ctx context.Context, walletAddress, email string) (*Registration, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO registrations (wallet_address, email, status)
		VALUES ($1, $2, 'pending')
		ON CONFLICT (wallet_address) DO UPDATE
		SET email = EXCLUDED.email, status = 'pending', updated_at = now()
		WHERE registrations.status = 'not_registered'
		RETURNING wallet_address, email, status, created_at, updated_at`,
		walletAddress, email,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAlreadyRegistered
	}
	return reg, err
}

// GetRegistration retrieves the registration state for a wallet.
// Returns ErrNotFound when the wallet has never submitted a registration
// (the not_connected / not_registered initial states).
func (s *Store) GetRegistration(ctx context.Context, walletAddress string) (*Registration, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT wallet_address, email, status, created_at, updated_at
		FROM registrations
		WHERE wallet_address = $1`,
		walletAddress,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

// MarkRegistrationStatus records the outcome of a registration poll:
// registered on ledger confirmation, not_registered on failure.
func (s *Store) MarkRegistrationStatus(ctx context.Context, walletAddress, status string) (*Registration, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE registrations
		SET status = $2, updated_at = now()
		WHERE wallet_address = $1
		RETURNING wallet_address, email, status, created_at, updated_at`,
		walletAddress, status,
	)
	reg, err := scanRegistration(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return reg, err
}

func scanRegistration(row pgx.Row) (*Registration, error) {
	var reg Registration
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&reg.WalletAddress, &reg.Email, &reg.Status, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	reg.CreatedAt = createdAt.Time
	reg.UpdatedAt = updatedAt.Time
	return &reg, nil
}
