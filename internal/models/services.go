package models

import (
	"context"
	"math/big"

	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/rpc"
)

// ChainRPC is the node surface the pipeline consumes. The concrete
// implementation lives in internal/rpc; fakes implement it in tests.
type ChainRPC interface {
	GetBlockNumber(ctx context.Context) (int64, error)
	GetBlock(ctx context.Context, height int64) (*rpc.Block, error)
	GetPublicKeyInfo(ctx context.Context, address string) (*rpc.OwnerInfo, error)
	GetBalance(ctx context.Context, address string, confirmedOnly bool) (*big.Int, error)
	GetCSV1ForAddress(ctx context.Context, owner string) (string, error)
	GetUTXOs(ctx context.Context, address string, isCSV bool) ([]rpc.UTXO, error)
}

// IndexerAPI is the contract-event surface the pipeline and the command
// handlers consume.
type IndexerAPI interface {
	Events(ctx context.Context, since int64, limit int) (*indexer.EventsResponse, error)
	Balances(ctx context.Context, address string) ([]indexer.TokenBalance, error)
	Listings(ctx context.Context, contract string) (*indexer.Listings, error)
	Prices(ctx context.Context, contract string) (*indexer.PriceInfo, error)
	Reservations(ctx context.Context, status string, limit int) ([]indexer.ReservationRecord, error)
	Transfers(ctx context.Context, mldsaHash string, limit, skip int) ([]indexer.TransferRecord, error)
}

// Messenger is the chat-platform surface: deliver one rendered message to
// one chat.
type Messenger interface {
	SendMessage(chatID int64, text string) error
}
