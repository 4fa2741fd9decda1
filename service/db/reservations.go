package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Reservation is an exclusive, time-bounded claim on an off-ramp address for
// the duration of one settlement attempt. At most one live reservation exists
// per address; the claim is a single atomic statement, never read-then-write.
type Reservation struct {
	OffRampAddress string
	ReservedBy     string // on-ramper wallet address
	CorrelationID  string
	SettlementTx   *string // ledger tx hash once settlement is submitted
	ReservedAt     time.Time
	ExpiresAt      time.Time
}

// Reserve atomically claims an off-ramp address for a settlement attempt.
// The ON CONFLICT arm reclaims a reservation whose expiry has passed, so a
// crashed or abandoned on-ramper cannot permanently starve a counter-party.
// Returns ErrAlreadyReserved when another attempt holds a live claim.
func (s *Store) Reserve(ctx context.Context, offRampAddress, reservedBy, correlationID string, ttl time.Duration) (*Reservation, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO reservations (off_ramp_address, reserved_by, correlation_id, reserved_at, expires_at)
		VALUES ($1, $2, $3, now(), now() + $4)
		ON CONFLICT (off_ramp_address) DO UPDATE
		SET reserved_by = EXCLUDED.reserved_by,
		    correlation_id = EXCLUDED.correlation_id,
		    settlement_tx = NULL,
		    reserved_at = EXCLUDED.reserved_at,
		    expires_at = EXCLUDED.expires_at
		WHERE reservations.expires_at <= now()
		RETURNING off_ramp_address, reserved_by, correlation_id, settlement_tx, reserved_at, expires_at`,
		offRampAddress, reservedBy, correlationID, ttl,
	)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conditional update did not fire: a live reservation exists.
		return nil, ErrAlreadyReserved
	}
	return res, err
}

// Release removes the reservation for a settlement attempt. Idempotent:
// releasing an already-released or expired reservation is not an error.
func (s *Store) Release(ctx context.Context, correlationID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM reservations WHERE correlation_id = $1`,
		correlationID,
	)
	return err
}

// GetReservation retrieves the live reservation for a correlation id.
// Expired reservations are treated as gone.
func (s *Store) GetReservation(ctx context.Context, correlationID string) (*Reservation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT off_ramp_address, reserved_by, correlation_id, settlement_tx, reserved_at, expires_at
		FROM reservations
		WHERE correlation_id = $1 AND expires_at > now()`,
		correlationID,
	)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return res, err
}

// AttachSettlementTx links the submitted ledger transaction to the live
// reservation so later confirmation can resolve it.
func (s *Store) AttachSettlementTx(ctx context.Context, correlationID, txHash string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE reservations
		SET settlement_tx = $2
		WHERE correlation_id = $1 AND expires_at > now()`,
		correlationID, txHash,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListLiveReservedAddresses returns the off-ramp addresses with an unexpired
// reservation. Callers feed this snapshot into the match exclusion set.
func (s *Store) ListLiveReservedAddresses(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT off_ramp_address FROM reservations WHERE expires_at > now()`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

// SweepExpiredReservations deletes reservations whose expiry has passed.
// Reserve already reclaims expired rows in place; the sweep keeps the table
// small and is driven by a recurring schedule.
func (s *Store) SweepExpiredReservations(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM reservations WHERE expires_at <= now()`,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanReservation(row pgx.Row) (*Reservation, error) {
	var res Reservation
	var settlementTx pgtype.Text
	var reservedAt, expiresAt pgtype.Timestamptz
	if err := row.Scan(&res.OffRampAddress, &res.ReservedBy, &res.CorrelationID, &settlementTx, &reservedAt, &expiresAt); err != nil {
		return nil, err
	}
	if settlementTx.Valid {
		res.SettlementTx = &settlementTx.String
	}
	res.ReservedAt = reservedAt.Time
	res.ExpiresAt = expiresAt.Time
	return &res, nil
}
