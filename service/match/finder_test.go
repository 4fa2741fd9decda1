package match

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/ledger"
)

type fakeQueue struct {
	intents []*ledger.OffRampIntent
	calls   [][]string
}

func (q *fakeQueue) GetLongestQueuingOffRampIntent(ctx context.Context, excluded []string) (*ledger.OffRampIntent, error) {
	q.calls = append(q.calls, append([]string(nil), excluded...))
	skip := make(map[string]bool, len(excluded))
	for _, a := range excluded {
		skip[a] = true
	}
	for _, intent := range q.intents {
		if !skip[intent.Address] {
			return intent, nil
		}
	}
	return nil, ledger.ErrNoOpenIntents
}

type fakeReservations struct {
	live   []string
	taken  map[string]bool
	failAt map[string]int // address -> remaining claim failures
}

func (r *fakeReservations) ListLiveReservedAddresses(ctx context.Context) ([]string, error) {
	return r.live, nil
}

func (r *fakeReservations) Reserve(ctx context.Context, offRampAddress, reservedBy, correlationID string, ttl time.Duration) (*db.Reservation, error) {
	if r.failAt[offRampAddress] > 0 {
		r.failAt[offRampAddress]--
		return nil, db.ErrAlreadyReserved
	}
	if r.taken == nil {
		r.taken = make(map[string]bool)
	}
	if r.taken[offRampAddress] {
		return nil, db.ErrAlreadyReserved
	}
	r.taken[offRampAddress] = true
	return &db.Reservation{
		OffRampAddress: offRampAddress,
		ReservedBy:     reservedBy,
		CorrelationID:  correlationID,
		ExpiresAt:      time.Now().Add(ttl),
	}, nil
}

func TestFindPeer_ExcludesReservedAddresses(t *testing.T) {
	queue := &fakeQueue{intents: []*ledger.OffRampIntent{
		{Address: "0xaaa", Email: "a@example.com"},
		{Address: "0xbbb", Email: "b@example.com"},
	}}
	store := &fakeReservations{live: []string{"0xaaa"}}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	intent, err := finder.FindPeer(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", intent.Address)
	require.Len(t, queue.calls, 1)
	assert.Contains(t, queue.calls[0], "0xaaa")
}

func TestFindPeer_NoPeerAvailable(t *testing.T) {
	queue := &fakeQueue{}
	store := &fakeReservations{}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	_, err := finder.FindPeer(context.Background(), nil)
	require.ErrorIs(t, err, ErrNoPeerAvailable)
}

func TestFindAndClaim_ClaimsLongestQueuing(t *testing.T) {
	queue := &fakeQueue{intents: []*ledger.OffRampIntent{
		{Address: "0xaaa", Email: "a@example.com", AmountReserved: "1000000000000000000"},
	}}
	store := &fakeReservations{}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	m, err := finder.FindAndClaim(context.Background(), "0xonramper", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", m.OffRampAddress)
	assert.Equal(t, "a@example.com", m.OffRampEmail)
	require.NotNil(t, m.Reservation)
	assert.Equal(t, "corr-1", m.Reservation.CorrelationID)
}

func TestFindAndClaim_RetriesAfterLostRace(t *testing.T) {
	queue := &fakeQueue{intents: []*ledger.OffRampIntent{
		{Address: "0xaaa", Email: "a@example.com"},
		{Address: "0xbbb", Email: "b@example.com"},
	}}
	store := &fakeReservations{failAt: map[string]int{"0xaaa": 1}}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	m, err := finder.FindAndClaim(context.Background(), "0xonramper", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", m.OffRampAddress)
}

func TestFindAndClaim_ExhaustedQueueReturnsNoPeer(t *testing.T) {
	queue := &fakeQueue{intents: []*ledger.OffRampIntent{
		{Address: "0xaaa", Email: "a@example.com"},
	}}
	store := &fakeReservations{failAt: map[string]int{"0xaaa": maxClaimAttempts + 1}}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	_, err := finder.FindAndClaim(context.Background(), "0xonramper", "corr-1")
	require.ErrorIs(t, err, ErrNoPeerAvailable)
}

func TestFindAndClaim_SecondAttemptGetsNextPeer(t *testing.T) {
	queue := &fakeQueue{intents: []*ledger.OffRampIntent{
		{Address: "0xaaa", Email: "a@example.com"},
		{Address: "0xbbb", Email: "b@example.com"},
	}}
	store := &fakeReservations{}
	finder := NewFinder(queue, store, time.Minute, nil, nil)

	first, err := finder.FindAndClaim(context.Background(), "0xone", "corr-1")
	require.NoError(t, err)
	assert.Equal(t, "0xaaa", first.OffRampAddress)

	// Simulate the reservation becoming visible to later matchers.
	store.live = []string{"0xaaa"}

	second, err := finder.FindAndClaim(context.Background(), "0xtwo", "corr-2")
	require.NoError(t, err)
	assert.Equal(t, "0xbbb", second.OffRampAddress)
}
