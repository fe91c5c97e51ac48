package utxo

import (
	"context"
	"encoding/json"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

type fakeRPC struct {
	mu      sync.Mutex
	utxos   map[string][]rpc.UTXO
	csvSeen map[string]bool
}

func (f *fakeRPC) GetBlockNumber(context.Context) (int64, error)              { return 0, nil }
func (f *fakeRPC) GetBlock(context.Context, int64) (*rpc.Block, error)        { return nil, nil }
func (f *fakeRPC) GetPublicKeyInfo(context.Context, string) (*rpc.OwnerInfo, error) {
	return nil, nil
}
func (f *fakeRPC) GetBalance(context.Context, string, bool) (*big.Int, error)  { return nil, nil }
func (f *fakeRPC) GetCSV1ForAddress(context.Context, string) (string, error)   { return "", nil }

func (f *fakeRPC) GetUTXOs(_ context.Context, address string, isCSV bool) ([]rpc.UTXO, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.csvSeen == nil {
		f.csvSeen = make(map[string]bool)
	}
	f.csvSeen[address] = isCSV
	return f.utxos[address], nil
}

func u(txid string, vout uint32, value string) rpc.UTXO {
	return rpc.UTXO{TransactionID: txid, OutputIndex: vout, Value: json.Number(value)}
}

func TestSeedUnionsAllLinkedForms(t *testing.T) {
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)

	chain := &fakeRPC{utxos: map[string][]rpc.UTXO{
		"primary1":  {u("t1", 0, "1000")},
		"alias-tr":  {u("t2", 0, "2000")},
		"alias-csv": {u("t3", 1, "3000"), u("t1", 0, "1000")}, // overlap dedupes
		"bad":       {u("t4", 0, "zero?")},
	}}
	tracker := NewTracker(chain, st, l)

	linkage := &models.IdentityLinkage{
		MLDSAHash: "aa11",
		P2TR:      "alias-tr",
		CSV1:      "alias-csv",
	}
	require.NoError(t, tracker.Seed(context.Background(), "primary1", linkage))

	utxoMap := st.UTXOMap()
	assert.Len(t, utxoMap, 3)
	// Every stored UTXO belongs to the canonical primary, regardless of the
	// form that received it.
	for _, entry := range utxoMap {
		assert.Equal(t, "primary1", entry.Address)
	}
	assert.True(t, st.IsSeeded("primary1"))

	// The CSV form resolves through the dedicated node path.
	assert.True(t, chain.csvSeen["alias-csv"])
	assert.False(t, chain.csvSeen["primary1"])
	assert.False(t, chain.csvSeen["alias-tr"])
}

func TestSeedSkipsMalformedValues(t *testing.T) {
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)

	chain := &fakeRPC{utxos: map[string][]rpc.UTXO{
		"primary1": {u("t1", 0, "1000"), u("t2", 0, "not-a-number")},
	}}
	require.NoError(t, NewTracker(chain, st, l).Seed(context.Background(), "primary1", nil))
	assert.Len(t, st.UTXOMap(), 1)
}
