package history

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

type fakeIndexer struct {
	transfers []indexer.TransferRecord
	calls     int
	err       error
}

func (f *fakeIndexer) Transfers(_ context.Context, _ string, limit, skip int) ([]indexer.TransferRecord, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if skip >= len(f.transfers) {
		return nil, nil
	}
	end := skip + limit
	if end > len(f.transfers) {
		end = len(f.transfers)
	}
	return f.transfers[skip:end], nil
}

func (f *fakeIndexer) Events(context.Context, int64, int) (*indexer.EventsResponse, error) {
	return nil, nil
}
func (f *fakeIndexer) Balances(context.Context, string) ([]indexer.TokenBalance, error) {
	return nil, nil
}
func (f *fakeIndexer) Listings(context.Context, string) (*indexer.Listings, error) { return nil, nil }
func (f *fakeIndexer) Prices(context.Context, string) (*indexer.PriceInfo, error)  { return nil, nil }
func (f *fakeIndexer) Reservations(context.Context, string, int) ([]indexer.ReservationRecord, error) {
	return nil, nil
}

func TestBackfillSeedsSeenContracts(t *testing.T) {
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)

	var transfers []indexer.TransferRecord
	for i := 0; i < 150; i++ {
		transfers = append(transfers, indexer.TransferRecord{
			Contract: fmt.Sprintf("c%d", i%3),
			TxHash:   fmt.Sprintf("t%d", i),
		})
	}
	idx := &fakeIndexer{transfers: transfers}

	s := New(idx, st, l)
	s.Backfill("addrA", "aa11")

	seen := st.SeenContracts("addrA")
	assert.Len(t, seen, 3)
	assert.True(t, st.IsFullyScanned("addrA"))
	// 150 records page as 100 + 50.
	assert.Equal(t, 2, idx.calls)
}

func TestBackfillSkipsWhenAlreadyScanned(t *testing.T) {
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)
	require.NoError(t, st.MarkFullyScanned(context.Background(), "addrA"))

	idx := &fakeIndexer{}
	New(idx, st, l).Backfill("addrA", "aa11")
	assert.Zero(t, idx.calls)
}

func TestBackfillAbsorbsIndexerFailure(t *testing.T) {
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)

	idx := &fakeIndexer{err: fmt.Errorf("indexer 503")}
	New(idx, st, l).Backfill("addrA", "aa11")

	assert.False(t, st.IsFullyScanned("addrA"))
	assert.Empty(t, st.SeenContracts("addrA"))
}
