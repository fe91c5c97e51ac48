package rpc

import (
	"encoding/json"
	"math/big"
)

// Block is a chain block with full transactions.
type Block struct {
	Height       json.Number   `json:"height"`
	Hash         string        `json:"hash"`
	Transactions []Transaction `json:"transactions"`
}

// Transaction carries raw BTC movement plus contract events keyed by
// contract address.
type Transaction struct {
	Hash    string                     `json:"hash"`
	From    string                     `json:"from,omitempty"`
	Inputs  []TxInput                  `json:"inputs"`
	Outputs []TxOutput                 `json:"outputs"`
	Events  map[string][]ContractEvent `json:"events,omitempty"`
}

// TxInput references the output it spends. Address is optional; some
// networks expose block inputs without address data, which is why spend
// detection relies on the stored UTXO map.
type TxInput struct {
	OriginalTransactionID  string `json:"originalTransactionId"`
	OutputTransactionIndex uint32 `json:"outputTransactionIndex"`
	Address                string `json:"address,omitempty"`
}

type ScriptPubKey struct {
	Address string `json:"address"`
}

type TxOutput struct {
	ScriptPubKey ScriptPubKey `json:"scriptPubKey"`
	Value        json.Number  `json:"value"`
	Index        uint32       `json:"index"`
}

// Satoshis parses the output value. Returns nil on malformed data; callers
// skip the record.
func (o *TxOutput) Satoshis() *big.Int {
	v, ok := new(big.Int).SetString(o.Value.String(), 10)
	if !ok {
		return nil
	}
	return v
}

type ContractEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// OwnerInfo is the chain-level key-material record for an address. MLDSAHash
// is the serialized record, lowercase hex, and acts as the canonical
// cross-address identity. PublicKey is only present when the original key was
// revealed on chain.
type OwnerInfo struct {
	MLDSAHash     string `json:"mldsaHash"`
	TweakedPubkey string `json:"tweakedPubkey,omitempty"`
	PublicKey     string `json:"publicKey,omitempty"`
	P2OP          string `json:"p2op,omitempty"`
}

// UTXO is one unspent output as reported by the node's UTXO manager.
type UTXO struct {
	TransactionID string      `json:"transactionId"`
	OutputIndex   uint32      `json:"outputIndex"`
	Value         json.Number `json:"value"`
	Address       string      `json:"scriptPubKeyAddress,omitempty"`
}

// Satoshis parses the UTXO value. Returns nil on malformed data.
func (u *UTXO) Satoshis() *big.Int {
	v, ok := new(big.Int).SetString(u.Value.String(), 10)
	if !ok {
		return nil
	}
	return v
}
