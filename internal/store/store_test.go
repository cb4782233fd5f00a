package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Create(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateRefusesExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	s, err := Create(path)
	require.NoError(t, err)
	s.Close()

	_, err = Create(path)
	require.Error(t, err)
}

func TestBulkInsertAndFind(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1abc", InitialAmount: 100},
		{Address: "ALPHA1DEF", InitialAmount: 200},
		{Address: "alpha1zero", InitialAmount: 0},
	})
	require.NoError(t, err)

	b, err := s.Find(ctx, "alpha1abc")
	require.NoError(t, err)
	require.NotNil(t, b)
	require.EqualValues(t, 100, b.InitialAmount)
	require.False(t, b.Consumed)

	// case-insensitive lookup
	b2, err := s.Find(ctx, "Alpha1Def")
	require.NoError(t, err)
	require.NotNil(t, b2)
	require.EqualValues(t, 200, b2.InitialAmount)

	// zero-balance rows are never inserted
	b3, err := s.Find(ctx, "alpha1zero")
	require.NoError(t, err)
	require.Nil(t, b3)

	total, err := s.CountTotal(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
}

func TestBulkInsertRejectsWholeBatchOnCollision(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1abc", InitialAmount: 100},
	}))

	err := s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1xyz", InitialAmount: 50},
		{Address: "alpha1abc", InitialAmount: 999}, // collides
	})
	require.Error(t, err)

	// the non-colliding row must not have leaked in
	b, err := s.Find(ctx, "alpha1xyz")
	require.NoError(t, err)
	require.Nil(t, b)
}

func TestAtomicConsumeNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	outcome, b, err := s.AtomicConsume(ctx, "alpha1nope", "dest", "")
	require.NoError(t, err)
	require.Equal(t, ConsumeNotFound, outcome)
	require.Nil(t, b)
}

func TestAtomicConsumeSuccessThenAlreadyConsumed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1abc", InitialAmount: 100},
	}))

	outcome, b, err := s.AtomicConsume(ctx, "alpha1abc", "dest-1", "")
	require.NoError(t, err)
	require.Equal(t, ConsumeSuccess, outcome)
	require.NotNil(t, b)
	require.True(t, b.Consumed)
	require.NotNil(t, b.DestinationID)
	require.Equal(t, "dest-1", *b.DestinationID)

	outcome2, b2, err := s.AtomicConsume(ctx, "alpha1abc", "dest-2", "")
	require.NoError(t, err)
	require.Equal(t, ConsumeAlreadyConsumed, outcome2)
	require.NotNil(t, b2)
	require.Equal(t, "dest-1", *b2.DestinationID) // first writer wins
}

func TestFinalizeRelayTxIDIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1abc", InitialAmount: 100},
	}))
	_, _, err := s.AtomicConsume(ctx, "alpha1abc", "dest-1", "")
	require.NoError(t, err)

	require.NoError(t, s.FinalizeRelayTxID(ctx, "alpha1abc", "dest-1", "tx-123"))
	require.NoError(t, s.FinalizeRelayTxID(ctx, "alpha1abc", "dest-1", "tx-123"))

	b, err := s.Find(ctx, "alpha1abc")
	require.NoError(t, err)
	require.Equal(t, "tx-123", *b.RelayTxID)
}

// TestAtomicConsumeIsExactlyOnceUnderRace hammers a single balance row with
// concurrent AtomicConsume calls: exactly one must observe ConsumeSuccess.
func TestAtomicConsumeIsExactlyOnceUnderRace(t *testing.T) {
	const trials = 50
	const racers = 20

	for trial := 0; trial < trials; trial++ {
		t.Run(fmt.Sprintf("trial-%d", trial), func(t *testing.T) {
			s := newTestStore(t)
			ctx := context.Background()
			addrStr := "alpha1race"
			require.NoError(t, s.BulkInsertBalances(ctx, []BalanceSeed{
				{Address: addrStr, InitialAmount: 42},
			}))

			var wg sync.WaitGroup
			var mu sync.Mutex
			successes := 0
			races := 0

			for i := 0; i < racers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					outcome, _, err := s.AtomicConsume(ctx, addrStr, fmt.Sprintf("dest-%d", i), "")
					require.NoError(t, err)
					mu.Lock()
					defer mu.Unlock()
					switch outcome {
					case ConsumeSuccess:
						successes++
					case ConsumeRaced, ConsumeAlreadyConsumed:
						races++
					}
				}(i)
			}
			wg.Wait()

			require.Equal(t, 1, successes)
			require.Equal(t, racers-1, races)
		})
	}
}

func TestClaimRequestLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id, err := s.LogClaimRequest(ctx, "alpha1abc", "dest-1", 100, "aabbcc")
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	errText := "upstream timeout"
	require.NoError(t, s.UpdateClaimRequest(ctx, id, "failed", &errText, nil))
}

func TestListClaimRequestsReturnsMostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id1, err := s.LogClaimRequest(ctx, "alpha1abc", "dest-1", 100, "aabbcc")
	require.NoError(t, err)
	id2, err := s.LogClaimRequest(ctx, "alpha1abc", "dest-2", 100, "ddeeff")
	require.NoError(t, err)
	// a claim against a different address must not leak in
	_, err = s.LogClaimRequest(ctx, "alpha1other", "dest-3", 50, "112233")
	require.NoError(t, err)

	errText := "upstream timeout"
	require.NoError(t, s.UpdateClaimRequest(ctx, id2, "failed", &errText, nil))

	rows, err := s.ListClaimRequests(ctx, "ALPHA1ABC") // case-insensitive
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, id2, rows[0].ID)
	require.Equal(t, "failed", rows[0].Status)
	require.NotNil(t, rows[0].ErrorMessage)
	require.Equal(t, errText, *rows[0].ErrorMessage)
	require.Equal(t, id1, rows[1].ID)
	require.Equal(t, "pending", rows[1].Status)
}

func TestSnapshotMetaRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	meta, err := s.GetSnapshotMeta(ctx)
	require.NoError(t, err)
	require.Nil(t, meta)

	require.NoError(t, s.SetSnapshotMeta(ctx, SnapshotMeta{
		BlockHeight:  800000,
		AddressCount: 3,
		TotalAmount:  300,
		RPCNode:      "http://127.0.0.1:8332",
		MintEndpoint: "http://mint.example/api",
	}))

	got, err := s.GetSnapshotMeta(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	require.EqualValues(t, 800000, got.BlockHeight)
	require.EqualValues(t, 3, got.AddressCount)
}

func TestCountUnconsumed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.BulkInsertBalances(ctx, []BalanceSeed{
		{Address: "alpha1a", InitialAmount: 10},
		{Address: "alpha1b", InitialAmount: 20},
	}))
	_, _, err := s.AtomicConsume(ctx, "alpha1a", "dest", "")
	require.NoError(t, err)

	n, err := s.CountUnconsumed(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}
