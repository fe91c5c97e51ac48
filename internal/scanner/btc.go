package scanner

import (
	"math/big"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Result is one block's scan output. SpentKeys and Received form the UTXO
// delta; InferredSends are candidates the orchestrator promotes only when
// the UTXO path produced no confirmed spend for the same transaction.
type Result struct {
	Events        []events.WalletEvent
	Received      []*models.StoredUTXO
	SpentKeys     []string
	InferredSends []events.InferredSend
}

// Scanner derives raw-BTC events from full blocks. It holds no state of its
// own; all state lives in the maps the orchestrator hands in, and ScanBlock
// updates the UTXO map in place.
type Scanner struct {
	appLogger *logger.Logger
}

func New(appLogger *logger.Logger) *Scanner {
	return &Scanner{appLogger: appLogger}
}

// ScanBlock runs the three passes over every transaction: confirmed spends
// against the UTXO map, receives against the tracked set, and inferred-send
// candidates for transactions that pay a tracked wallet change alongside
// external outputs.
//
// The map is mutated in place as transactions are scanned, spends before
// receives, so a later transaction spending an output created earlier in
// the same block is detected.
func (s *Scanner) ScanBlock(block *rpc.Block, height int64, proj store.Projection, utxoMap map[string]store.UTXOEntry) Result {
	var result Result
	for i := range block.Transactions {
		s.scanTransaction(&block.Transactions[i], height, proj, utxoMap, &result)
	}
	return result
}

func (s *Scanner) scanTransaction(tx *rpc.Transaction, height int64, proj store.Projection, utxoMap map[string]store.UTXOEntry, result *Result) {
	// Pass 1: confirmed spends. Input address data is unreliable on this
	// chain, so detection keys off the stored UTXO map alone.
	counterparty, counterpartyValue := firstExternalOutput(tx, proj.TrackedSet)
	for _, input := range tx.Inputs {
		key := models.UTXOKey(input.OriginalTransactionID, input.OutputTransactionIndex)
		entry, tracked := utxoMap[key]
		if !tracked {
			continue
		}
		ev := events.WalletEvent{
			Kind:         events.KindBTCSent,
			Address:      entry.Address,
			TxHash:       tx.Hash,
			BlockHeight:  height,
			Direction:    events.DirectionOut,
			Satoshis:     entry.Value,
			Counterparty: counterparty,
		}
		if counterpartyValue != nil {
			ev.RecipientAmount = counterpartyValue
		}
		result.Events = append(result.Events, ev)
		result.SpentKeys = append(result.SpentKeys, key)
		delete(utxoMap, key)
	}

	// Pass 2: receives, attributed to the canonical primary. An alias
	// address must never surface in a notification.
	trackedReceive := false
	for _, output := range tx.Outputs {
		addr := output.ScriptPubKey.Address
		if addr == "" {
			continue
		}
		if _, tracked := proj.TrackedSet[addr]; !tracked {
			continue
		}
		value := output.Satoshis()
		if value == nil || value.Sign() <= 0 {
			s.appLogger.Warn("Skipping output with malformed value", "tx", tx.Hash, "index", output.Index)
			continue
		}
		primary := addr
		if canonical, ok := proj.CanonicalMap[addr]; ok {
			primary = canonical
		}
		trackedReceive = true
		result.Events = append(result.Events, events.WalletEvent{
			Kind:        events.KindBTCReceived,
			Address:     primary,
			TxHash:      tx.Hash,
			BlockHeight: height,
			Direction:   events.DirectionIn,
			Satoshis:    value,
		})
		result.Received = append(result.Received, &models.StoredUTXO{
			TxID:    tx.Hash,
			Vout:    output.Index,
			Value:   value.String(),
			Address: primary,
		})
		utxoMap[models.UTXOKey(tx.Hash, output.Index)] = store.UTXOEntry{Address: primary, Value: value}
	}

	// Pass 3: inferred send. A tracked change output plus external outputs
	// is the shape of a wallet paying out; the orchestrator corroborates
	// before this becomes an event.
	if trackedReceive && counterparty != "" {
		totalSent := new(big.Int)
		for _, output := range tx.Outputs {
			addr := output.ScriptPubKey.Address
			if addr == "" {
				continue
			}
			if _, tracked := proj.TrackedSet[addr]; tracked {
				continue
			}
			if value := output.Satoshis(); value != nil {
				totalSent.Add(totalSent, value)
			}
		}
		if totalSent.Sign() > 0 {
			primary := receivePrimary(tx, proj)
			result.InferredSends = append(result.InferredSends, events.InferredSend{
				TxHash:       tx.Hash,
				BlockHeight:  height,
				Address:      primary,
				TotalSent:    totalSent,
				Counterparty: counterparty,
			})
		}
	}
}

// firstExternalOutput returns the first output address outside the tracked
// set, with its value. That output is treated as the spend counterparty.
func firstExternalOutput(tx *rpc.Transaction, trackedSet map[string]struct{}) (string, *big.Int) {
	for _, output := range tx.Outputs {
		addr := output.ScriptPubKey.Address
		if addr == "" {
			continue
		}
		if _, tracked := trackedSet[addr]; tracked {
			continue
		}
		return addr, output.Satoshis()
	}
	return "", nil
}

// receivePrimary attributes an inferred send to the primary behind the
// transaction's first tracked output.
func receivePrimary(tx *rpc.Transaction, proj store.Projection) string {
	for _, output := range tx.Outputs {
		addr := output.ScriptPubKey.Address
		if addr == "" {
			continue
		}
		if _, tracked := proj.TrackedSet[addr]; !tracked {
			continue
		}
		if canonical, ok := proj.CanonicalMap[addr]; ok {
			return canonical
		}
		return addr
	}
	return ""
}
