package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/ledger"
	"github.com/peerramp/peerramp/service/metrics"
)

// ErrNoPeerAvailable indicates the off-ramp queue, minus reserved and
// excluded addresses, is empty. Callers should surface this to the
// on-ramper rather than retry immediately.
var ErrNoPeerAvailable = errors.New("no off-ramp peer available")

// maxClaimAttempts bounds the claim loop when concurrent matchers race
// over the same queue head.
const maxClaimAttempts = 8

// IntentQueue is the subset of the ledger client the finder needs.
type IntentQueue interface {
	GetLongestQueuingOffRampIntent(ctx context.Context, excluded []string) (*ledger.OffRampIntent, error)
}

// ReservationStore is the subset of the database store the finder needs.
type ReservationStore interface {
	ListLiveReservedAddresses(ctx context.Context) ([]string, error)
	Reserve(ctx context.Context, offRampAddress, reservedBy, correlationID string, ttl time.Duration) (*db.Reservation, error)
}

// Match is a claimed off-ramp peer. The reservation is held until the
// settlement attempt releases it.
type Match struct {
	OffRampAddress string
	OffRampEmail   string
	AmountReserved string
	Reservation    *db.Reservation
}

// Finder pairs on-rampers with the longest-queuing unreserved off-ramp
// intent, claiming an exclusive reservation on the winner.
type Finder struct {
	queue   IntentQueue
	store   ReservationStore
	ttl     time.Duration
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewFinder creates a peer finder.
// If m is nil, no metrics will be recorded.
func NewFinder(queue IntentQueue, store ReservationStore, ttl time.Duration, m *metrics.Metrics, logger *slog.Logger) *Finder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{
		queue:   queue,
		store:   store,
		ttl:     ttl,
		metrics: m,
		logger:  logger,
	}
}

// FindPeer returns the longest-queuing off-ramp intent whose address is in
// neither the live reservation set nor the extra exclusion list. It does
// not claim the peer.
func (f *Finder) FindPeer(ctx context.Context, extraExcluded []string) (*ledger.OffRampIntent, error) {
	reserved, err := f.store.ListLiveReservedAddresses(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list reserved addresses: %w", err)
	}

	excluded := make([]string, 0, len(reserved)+len(extraExcluded))
	excluded = append(excluded, reserved...)
	excluded = append(excluded, extraExcluded...)

	intent, err := f.queue.GetLongestQueuingOffRampIntent(ctx, excluded)
	if err != nil {
		if errors.Is(err, ledger.ErrNoOpenIntents) {
			return nil, ErrNoPeerAvailable
		}
		return nil, err
	}
	return intent, nil
}

// FindAndClaim finds a peer and atomically reserves it for the given
// settlement attempt. When the claim races with another matcher, the lost
// address is excluded and the search repeats, up to maxClaimAttempts.
func (f *Finder) FindAndClaim(ctx context.Context, onRampAddress, correlationID string) (*Match, error) {
	var lost []string
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		intent, err := f.FindPeer(ctx, lost)
		if err != nil {
			return nil, err
		}

		res, err := f.store.Reserve(ctx, intent.Address, onRampAddress, correlationID, f.ttl)
		if err != nil {
			if errors.Is(err, db.ErrAlreadyReserved) {
				if f.metrics != nil {
					f.metrics.RecordReservationClaim("lost")
				}
				f.logger.DebugContext(ctx, "lost reservation race, retrying",
					"off_ramp_address", intent.Address,
					"attempt", attempt+1,
				)
				lost = append(lost, intent.Address)
				continue
			}
			return nil, fmt.Errorf("failed to reserve peer: %w", err)
		}

		if f.metrics != nil {
			f.metrics.RecordReservationClaim("won")
		}
		f.logger.InfoContext(ctx, "claimed off-ramp peer",
			"off_ramp_address", intent.Address,
			"correlation_id", correlationID,
		)
		return &Match{
			OffRampAddress: intent.Address,
			OffRampEmail:   intent.Email,
			AmountReserved: intent.AmountReserved,
			Reservation:    res,
		}, nil
	}
	return nil, ErrNoPeerAvailable
}
