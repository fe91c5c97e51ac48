package indexer

// Record shapes returned by the indexer. Amount fields are decimal strings;
// hashes are lowercase hex, with or without an 0x prefix.

type EventsResponse struct {
	LastIndexedBlock int64               `json:"lastIndexedBlock"`
	Since            int64               `json:"since"`
	Transfers        []TransferRecord    `json:"transfers"`
	Reservations     []ReservationRecord `json:"reservations"`
	Swaps            []SwapRecord        `json:"swaps"`
	PriceChanges     []PriceChangeRecord `json:"priceChanges"`
	PoolEvents       []PoolEventRecord   `json:"poolEvents,omitempty"`
	StakingEvents    []StakingEventRecord `json:"stakingEvents,omitempty"`
}

type TransferRecord struct {
	Contract    string `json:"contract"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
}

// ReservationRecord: ProviderMldsa identifies the seller side by identity
// hash; BuyerAddress may carry either a hash or a BTC address.
type ReservationRecord struct {
	Contract      string `json:"contract"`
	ProviderMldsa string `json:"providerMldsa"`
	BuyerAddress  string `json:"buyerAddress"`
	Satoshis      string `json:"satoshis"`
	TokenAmount   string `json:"tokenAmount"`
	Status        string `json:"status,omitempty"`
	Consumed      bool   `json:"consumed,omitempty"`
	TxHash        string `json:"txHash"`
	BlockHeight   int64  `json:"blockHeight"`
}

type SwapRecord struct {
	Contract       string `json:"contract"`
	Buyer          string `json:"buyer"`
	BTCSpent       string `json:"btcSpent"`
	TokensReceived string `json:"tokensReceived"`
	TxHash         string `json:"txHash"`
	BlockHeight    int64  `json:"blockHeight"`
}

type PriceChangeRecord struct {
	Contract    string  `json:"contract"`
	ChangePct   float64 `json:"changePct"`
	Price       string  `json:"price"`
	BlockHeight int64   `json:"blockHeight"`
}

// PoolEventRecord covers liquidity adds and removals. Kind is "add" or
// "remove".
type PoolEventRecord struct {
	Contract    string `json:"contract"`
	Kind        string `json:"kind"`
	Provider    string `json:"provider"`
	Satoshis    string `json:"satoshis"`
	TokenAmount string `json:"tokenAmount"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
}

// StakingEventRecord covers stake, unstake and reward claims. Kind is
// "stake", "unstake" or "claim".
type StakingEventRecord struct {
	Contract    string `json:"contract"`
	Kind        string `json:"kind"`
	Staker      string `json:"staker"`
	Amount      string `json:"amount"`
	TxHash      string `json:"txHash"`
	BlockHeight int64  `json:"blockHeight"`
}

type TokenBalance struct {
	Contract string `json:"contract"`
	Symbol   string `json:"symbol,omitempty"`
	Balance  string `json:"balance"`
	Decimals int    `json:"decimals,omitempty"`
}

// Listings describes the NativeSwap provider queues for a contract.
type Listings struct {
	Contract       string            `json:"contract"`
	PriorityCount  int               `json:"priorityCount"`
	StandardCount  int               `json:"standardCount"`
	Priority       []ProviderListing `json:"priority,omitempty"`
	Standard       []ProviderListing `json:"standard,omitempty"`
	TotalLiquidity string            `json:"totalLiquidity,omitempty"`
}

type ProviderListing struct {
	Provider string `json:"provider"`
	Amount   string `json:"amount"`
}

// PriceInfo carries the current virtual reserves plus recent price-change
// history for a contract.
type PriceInfo struct {
	Contract        string              `json:"contract"`
	VirtualBTC      string              `json:"virtualBtcReserve"`
	VirtualToken    string              `json:"virtualTokenReserve"`
	Price           string              `json:"price"`
	History         []PriceChangeRecord `json:"history,omitempty"`
}
