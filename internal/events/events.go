package events

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Kind tags the semantic wallet-event variants produced by the BTC scanner
// and the indexer matcher.
type Kind string

const (
	KindBTCSent           Kind = "btc_sent"
	KindBTCReceived       Kind = "btc_received"
	KindToken             Kind = "token"
	KindNFTTransfer       Kind = "nft_transfer"
	KindLiquidityReserved Kind = "liquidity_reserved"
	KindProviderConsumed  Kind = "provider_consumed"
	KindSwapExecuted      Kind = "swap_executed"
	KindLiquidityAdded    Kind = "liquidity_added"
	KindLiquidityRemoved  Kind = "liquidity_removed"
	KindStaked            Kind = "staked"
	KindUnstaked          Kind = "unstaked"
	KindRewardsClaimed    Kind = "rewards_claimed"
)

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
	DirectionNA  Direction = ""
)

// Role on liquidity reservations.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
)

// WalletEvent is one semantic on-chain action attributed to a tracked
// primary address. Amount fields are populated per kind: Satoshis for BTC
// movement and swap cost, TokenAmount for contract-level transfers.
type WalletEvent struct {
	Kind        Kind
	Address     string // canonical primary address of the subscription
	TxHash      string
	BlockHeight int64
	Contract    string
	Direction   Direction
	Role        string

	Satoshis        *big.Int
	TokenAmount     decimal.Decimal
	Counterparty    string
	RecipientAmount *big.Int
}

// DedupKey identifies an event across the two sources. Two events with the
// same key describe the same on-chain action and only one survives.
func (e *WalletEvent) DedupKey() string {
	return fmt.Sprintf("%s|%s|%s|%s|%s", e.Kind, e.TxHash, e.Address, e.Contract, e.Direction)
}

// InferredSend is a candidate btc_sent produced by the block scanner when a
// transaction pays a tracked address change alongside non-tracked outputs.
// It only becomes an event if the UTXO path did not already confirm a spend
// for the same transaction.
type InferredSend struct {
	TxHash       string
	BlockHeight  int64
	Address      string
	TotalSent    *big.Int
	Counterparty string
}

// PriceAlert is delivered to the chat owning the token watch; it is not a
// wallet event and skips the dedup and suppression stages.
type PriceAlert struct {
	ChatID    int64
	Contract  string
	Label     string
	ChangePct float64
	Price     decimal.Decimal
}

// ReservationNotice fires when a reservation on a watched contract meets
// the watch's minimum-satoshi floor.
type ReservationNotice struct {
	ChatID      int64
	Contract    string
	Label       string
	Satoshis    *big.Int
	TokenAmount decimal.Decimal
}
