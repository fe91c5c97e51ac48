package scanner

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	return l
}

func output(addr string, value int64, index uint32) rpc.TxOutput {
	return rpc.TxOutput{
		ScriptPubKey: rpc.ScriptPubKey{Address: addr},
		Value:        json.Number(big.NewInt(value).String()),
		Index:        index,
	}
}

func projectionFor(primaries ...string) store.Projection {
	p := store.Projection{
		TrackedSet:   make(map[string]struct{}),
		MldsaMap:     make(map[string]string),
		CanonicalMap: make(map[string]string),
	}
	for _, addr := range primaries {
		p.TrackedSet[addr] = struct{}{}
		p.CanonicalMap[addr] = addr
	}
	return p
}

func TestScanBlockConfirmedSpendWithChange(t *testing.T) {
	s := New(testLogger(t))
	proj := projectionFor("addrA")
	utxoMap := map[string]store.UTXOEntry{
		"t0:0": {Address: "addrA", Value: big.NewInt(500000)},
	}

	block := &rpc.Block{Transactions: []rpc.Transaction{{
		Hash:   "t1",
		Inputs: []rpc.TxInput{{OriginalTransactionID: "t0", OutputTransactionIndex: 0}},
		Outputs: []rpc.TxOutput{
			output("addrB", 300000, 0),
			output("addrA", 199500, 1),
		},
	}}}

	result := s.ScanBlock(block, 100, proj, utxoMap)

	var sent, received []events.WalletEvent
	for _, ev := range result.Events {
		switch ev.Kind {
		case events.KindBTCSent:
			sent = append(sent, ev)
		case events.KindBTCReceived:
			received = append(received, ev)
		}
	}
	require.Len(t, sent, 1)
	assert.Equal(t, "addrA", sent[0].Address)
	assert.Equal(t, int64(500000), sent[0].Satoshis.Int64())
	assert.Equal(t, "addrB", sent[0].Counterparty)
	assert.Equal(t, int64(300000), sent[0].RecipientAmount.Int64())

	require.Len(t, received, 1)
	assert.Equal(t, "addrA", received[0].Address)
	assert.Equal(t, int64(199500), received[0].Satoshis.Int64())

	assert.Equal(t, []string{"t0:0"}, result.SpentKeys)
	require.Len(t, result.Received, 1)
	assert.Equal(t, "t1", result.Received[0].TxID)
	assert.Equal(t, uint32(1), result.Received[0].Vout)

	// The live map reflects the delta: spent gone, change present.
	_, spentStill := utxoMap["t0:0"]
	assert.False(t, spentStill)
	entry, ok := utxoMap["t1:1"]
	require.True(t, ok)
	assert.Equal(t, int64(199500), entry.Value.Int64())
}

func TestScanBlockInferredSendWithoutInputAddresses(t *testing.T) {
	s := New(testLogger(t))
	proj := projectionFor("addrA")
	utxoMap := map[string]store.UTXOEntry{}

	block := &rpc.Block{Transactions: []rpc.Transaction{{
		Hash:   "t2",
		Inputs: []rpc.TxInput{{OriginalTransactionID: "unknown", OutputTransactionIndex: 0}},
		Outputs: []rpc.TxOutput{
			output("addrA", 100000, 0),
			output("addrB", 400000, 1),
		},
	}}}

	result := s.ScanBlock(block, 101, proj, utxoMap)

	require.Len(t, result.Events, 1)
	assert.Equal(t, events.KindBTCReceived, result.Events[0].Kind)
	assert.Equal(t, "addrA", result.Events[0].Address)

	require.Len(t, result.InferredSends, 1)
	inferred := result.InferredSends[0]
	assert.Equal(t, "t2", inferred.TxHash)
	assert.Equal(t, "addrA", inferred.Address)
	assert.Equal(t, int64(400000), inferred.TotalSent.Int64())
	assert.Equal(t, "addrB", inferred.Counterparty)
	assert.Empty(t, result.SpentKeys)
}

func TestScanBlockReceiveNormalizesToCanonicalPrimary(t *testing.T) {
	s := New(testLogger(t))
	proj := projectionFor("primary1")
	proj.TrackedSet["alias1"] = struct{}{}
	proj.CanonicalMap["alias1"] = "primary1"

	block := &rpc.Block{Transactions: []rpc.Transaction{{
		Hash:    "t3",
		Outputs: []rpc.TxOutput{output("alias1", 42000, 0)},
	}}}

	result := s.ScanBlock(block, 102, proj, projEmptyUTXOs())

	require.Len(t, result.Events, 1)
	assert.Equal(t, "primary1", result.Events[0].Address)
	require.Len(t, result.Received, 1)
	assert.Equal(t, "primary1", result.Received[0].Address)
}

func TestScanBlockSameBlockSpendOfReceived(t *testing.T) {
	s := New(testLogger(t))
	proj := projectionFor("addrA")
	utxoMap := map[string]store.UTXOEntry{}

	// tx1 pays addrA; tx2 spends that fresh output in the same block.
	block := &rpc.Block{Transactions: []rpc.Transaction{
		{
			Hash:    "tx1",
			Outputs: []rpc.TxOutput{output("addrA", 80000, 0)},
		},
		{
			Hash:    "tx2",
			Inputs:  []rpc.TxInput{{OriginalTransactionID: "tx1", OutputTransactionIndex: 0}},
			Outputs: []rpc.TxOutput{output("addrC", 79000, 0)},
		},
	}}

	result := s.ScanBlock(block, 103, proj, utxoMap)

	var kinds []events.Kind
	for _, ev := range result.Events {
		kinds = append(kinds, ev.Kind)
	}
	assert.Contains(t, kinds, events.KindBTCReceived)
	assert.Contains(t, kinds, events.KindBTCSent)
	assert.Contains(t, result.SpentKeys, "tx1:0")
}

func TestScanBlockMultipleTrackedInputs(t *testing.T) {
	s := New(testLogger(t))
	proj := projectionFor("addrA", "addrB")
	utxoMap := map[string]store.UTXOEntry{
		"u1:0": {Address: "addrA", Value: big.NewInt(10000)},
		"u2:0": {Address: "addrB", Value: big.NewInt(20000)},
	}

	block := &rpc.Block{Transactions: []rpc.Transaction{{
		Hash: "t4",
		Inputs: []rpc.TxInput{
			{OriginalTransactionID: "u1", OutputTransactionIndex: 0},
			{OriginalTransactionID: "u2", OutputTransactionIndex: 0},
		},
		Outputs: []rpc.TxOutput{output("addrX", 29000, 0)},
	}}}

	result := s.ScanBlock(block, 104, proj, utxoMap)

	var sentAddrs []string
	for _, ev := range result.Events {
		if ev.Kind == events.KindBTCSent {
			sentAddrs = append(sentAddrs, ev.Address)
		}
	}
	assert.ElementsMatch(t, []string{"addrA", "addrB"}, sentAddrs)
}

func projEmptyUTXOs() map[string]store.UTXOEntry {
	return map[string]store.UTXOEntry{}
}

func TestStoredUTXOKeyFormat(t *testing.T) {
	u := &models.StoredUTXO{TxID: "abc", Vout: 7}
	assert.Equal(t, "abc:7", u.Key())
}
