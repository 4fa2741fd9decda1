package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// Payment capture states for one correlation id. The tri-state guards the
// redirect callback against duplicate delivery: a callback arriving while
// in_progress or done is a no-op, not a retry.
const (
	CaptureNotStarted = "not_started"
	CaptureInProgress = "in_progress"
	CaptureDone       = "done"
)

// PaymentAttempt tracks the capture handshake for one settlement attempt.
type PaymentAttempt struct {
	CorrelationID string
	State         string
	Outcome       *string // "success" or "failed" once done
	Token         *string
	PayerID       *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// BeginPaymentCapture atomically moves a correlation id from not_started to
// in_progress, recording the callback parameters. The insert-or-conditional-
// update is a single statement, so two concurrent deliveries of the same
// callback have exactly one winner; the loser gets ErrDuplicateCallback.
//
// Re-beginning an in_progress attempt with the same token and payer id
// returns the row instead of ErrDuplicateCallback: a retry of the owning
// verification resumes its own attempt. A done attempt, or an in_progress
// attempt begun with different parameters, is a duplicate.
func (s *Store) BeginPaymentCapture(ctx context.Context, correlationID, token, payerID string) (*PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		INSERT INTO payment_attempts (correlation_id, state, token, payer_id)
		VALUES ($1, 'in_progress', $2, $3)
		ON CONFLICT (correlation_id) DO UPDATE
		SET state = 'in_progress', token = EXCLUDED.token, payer_id = EXCLUDED.payer_id, updated_at = now()
		WHERE payment_attempts.state = 'not_started'
		   OR (payment_attempts.state = 'in_progress'
		       AND payment_attempts.token IS NOT DISTINCT FROM EXCLUDED.token
		       AND payment_attempts.payer_id IS NOT DISTINCT FROM EXCLUDED.payer_id)
		RETURNING correlation_id, state, outcome, token, payer_id, created_at, updated_at`,
		correlationID, token, payerID,
	)
	attempt, err := scanPaymentAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicateCallback
	}
	return attempt, err
}

// FinishPaymentCapture marks a capture attempt done with its outcome.
func (s *Store) FinishPaymentCapture(ctx context.Context, correlationID, outcome string) (*PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE payment_attempts
		SET state = 'done', outcome = $2, updated_at = now()
		WHERE correlation_id = $1 AND state = 'in_progress'
		RETURNING correlation_id, state, outcome, token, payer_id, created_at, updated_at`,
		correlationID, outcome,
	)
	attempt, err := scanPaymentAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return attempt, err
}

// GetPaymentAttempt retrieves the capture attempt for a correlation id.
func (s *Store) GetPaymentAttempt(ctx context.Context, correlationID string) (*PaymentAttempt, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT correlation_id, state, outcome, token, payer_id, created_at, updated_at
		FROM payment_attempts
		WHERE correlation_id = $1`,
		correlationID,
	)
	attempt, err := scanPaymentAttempt(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return attempt, err
}

func scanPaymentAttempt(row pgx.Row) (*PaymentAttempt, error) {
	var attempt PaymentAttempt
	var outcome, token, payerID pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	if err := row.Scan(&attempt.CorrelationID, &attempt.State, &outcome, &token, &payerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if outcome.Valid {
		attempt.Outcome = &outcome.String
	}
	if token.Valid {
		attempt.Token = &token.String
	}
	if payerID.Valid {
		attempt.PayerID = &payerID.String
	}
	attempt.CreatedAt = createdAt.Time
	attempt.UpdatedAt = updatedAt.Time
	return &attempt, nil
}
