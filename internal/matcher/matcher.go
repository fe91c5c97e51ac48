package matcher

import (
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Output is one batch's projection: semantic wallet events, chat-level
// alerts, and the seen-contract updates to persist once the tick commits.
type Output struct {
	Events             []events.WalletEvent
	PriceAlerts        []events.PriceAlert
	ReservationNotices []events.ReservationNotice
	SeenContracts      map[string][]string
}

// Matcher projects indexer record batches against the identity maps.
// Actor fields carry either an identity hash (compared lowercase,
// 0x-stripped) or a BTC address (matched through the tracked set and
// canonicalized).
type Matcher struct {
	store     *store.Store
	appLogger *logger.Logger
}

func New(st *store.Store, appLogger *logger.Logger) *Matcher {
	return &Matcher{store: st, appLogger: appLogger}
}

func (m *Matcher) Project(batch *indexer.EventsResponse, proj store.Projection) Output {
	out := Output{SeenContracts: make(map[string][]string)}
	nftSet := m.store.NFTContracts()

	for i := range batch.Transfers {
		m.projectTransfer(&batch.Transfers[i], proj, nftSet, &out)
	}
	for i := range batch.Reservations {
		m.projectReservation(&batch.Reservations[i], proj, &out)
	}
	for i := range batch.Swaps {
		m.projectSwap(&batch.Swaps[i], proj, &out)
	}
	for i := range batch.PoolEvents {
		m.projectPoolEvent(&batch.PoolEvents[i], proj, &out)
	}
	for i := range batch.StakingEvents {
		m.projectStakingEvent(&batch.StakingEvents[i], proj, &out)
	}
	for i := range batch.PriceChanges {
		m.projectPriceChange(&batch.PriceChanges[i], &out)
	}
	return out
}

// matchActor resolves an actor field to the primaries it belongs to. A hash
// matches through mldsaMap; a BTC address matches through the tracked set
// with canonical normalisation.
func matchActor(actor string, proj store.Projection) []string {
	if actor == "" {
		return nil
	}
	normalized := models.NormalizeHash(actor)
	var matched []string
	for primary, hash := range proj.MldsaMap {
		if hash == normalized {
			matched = append(matched, primary)
		}
	}
	if len(matched) > 0 {
		return matched
	}
	if _, tracked := proj.TrackedSet[actor]; tracked {
		if canonical, ok := proj.CanonicalMap[actor]; ok {
			return []string{canonical}
		}
		return []string{actor}
	}
	return nil
}

func (m *Matcher) projectTransfer(rec *indexer.TransferRecord, proj store.Projection, nftSet map[string]struct{}, out *Output) {
	amount, err := decimal.NewFromString(rec.Value)
	if err != nil {
		m.appLogger.Warn("Skipping transfer with malformed value", "tx", rec.TxHash, "value", rec.Value)
		return
	}
	kind := events.KindToken
	if _, nft := nftSet[rec.Contract]; nft {
		kind = events.KindNFTTransfer
	}

	for _, primary := range matchActor(rec.From, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, Direction: events.DirectionOut, TokenAmount: amount,
			Counterparty: rec.To,
		})
		out.SeenContracts[primary] = append(out.SeenContracts[primary], rec.Contract)
	}
	for _, primary := range matchActor(rec.To, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, Direction: events.DirectionIn, TokenAmount: amount,
			Counterparty: rec.From,
		})
		out.SeenContracts[primary] = append(out.SeenContracts[primary], rec.Contract)
	}
}

func (m *Matcher) projectReservation(rec *indexer.ReservationRecord, proj store.Projection, out *Output) {
	sats, ok := new(big.Int).SetString(rec.Satoshis, 10)
	if !ok {
		m.appLogger.Warn("Skipping reservation with malformed satoshis", "tx", rec.TxHash, "satoshis", rec.Satoshis)
		return
	}
	tokens, err := decimal.NewFromString(rec.TokenAmount)
	if err != nil {
		m.appLogger.Warn("Skipping reservation with malformed token amount", "tx", rec.TxHash, "tokenAmount", rec.TokenAmount)
		return
	}
	kind := events.KindLiquidityReserved
	if rec.Consumed || rec.Status == "consumed" {
		kind = events.KindProviderConsumed
	}

	for _, primary := range matchActor(rec.ProviderMldsa, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, Role: events.RoleSeller, Satoshis: sats, TokenAmount: tokens,
		})
	}
	for _, primary := range matchActor(rec.BuyerAddress, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, Role: events.RoleBuyer, Satoshis: sats, TokenAmount: tokens,
		})
	}

	// Token-watch reservation floor: watches on this contract with a
	// configured minimum get a notice regardless of wallet matching.
	for _, watch := range m.store.TokenWatches() {
		if watch.Contract != rec.Contract || watch.MinReserveSats <= 0 {
			continue
		}
		if sats.Cmp(big.NewInt(watch.MinReserveSats)) >= 0 {
			out.ReservationNotices = append(out.ReservationNotices, events.ReservationNotice{
				ChatID: watch.ChatID, Contract: watch.Contract, Label: watch.Label,
				Satoshis: sats, TokenAmount: tokens,
			})
		}
	}
}

func (m *Matcher) projectSwap(rec *indexer.SwapRecord, proj store.Projection, out *Output) {
	btcSpent, ok := new(big.Int).SetString(rec.BTCSpent, 10)
	if !ok {
		m.appLogger.Warn("Skipping swap with malformed btcSpent", "tx", rec.TxHash, "btcSpent", rec.BTCSpent)
		return
	}
	tokens, err := decimal.NewFromString(rec.TokensReceived)
	if err != nil {
		m.appLogger.Warn("Skipping swap with malformed tokensReceived", "tx", rec.TxHash, "tokensReceived", rec.TokensReceived)
		return
	}
	for _, primary := range matchActor(rec.Buyer, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: events.KindSwapExecuted, Address: primary, TxHash: rec.TxHash,
			BlockHeight: rec.BlockHeight, Contract: rec.Contract,
			Satoshis: btcSpent, TokenAmount: tokens,
		})
		out.SeenContracts[primary] = append(out.SeenContracts[primary], rec.Contract)
	}
}

func (m *Matcher) projectPoolEvent(rec *indexer.PoolEventRecord, proj store.Projection, out *Output) {
	sats, ok := new(big.Int).SetString(rec.Satoshis, 10)
	if !ok {
		m.appLogger.Warn("Skipping pool event with malformed satoshis", "tx", rec.TxHash, "satoshis", rec.Satoshis)
		return
	}
	tokens, err := decimal.NewFromString(rec.TokenAmount)
	if err != nil {
		m.appLogger.Warn("Skipping pool event with malformed token amount", "tx", rec.TxHash, "tokenAmount", rec.TokenAmount)
		return
	}
	kind := events.KindLiquidityAdded
	if rec.Kind == "remove" {
		kind = events.KindLiquidityRemoved
	}
	for _, primary := range matchActor(rec.Provider, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, Satoshis: sats, TokenAmount: tokens,
		})
	}
}

func (m *Matcher) projectStakingEvent(rec *indexer.StakingEventRecord, proj store.Projection, out *Output) {
	amount, err := decimal.NewFromString(rec.Amount)
	if err != nil {
		m.appLogger.Warn("Skipping staking event with malformed amount", "tx", rec.TxHash, "amount", rec.Amount)
		return
	}
	var kind events.Kind
	switch rec.Kind {
	case "stake":
		kind = events.KindStaked
	case "unstake":
		kind = events.KindUnstaked
	case "claim":
		kind = events.KindRewardsClaimed
	default:
		m.appLogger.Warn("Skipping staking event with unknown kind", "tx", rec.TxHash, "kind", rec.Kind)
		return
	}
	for _, primary := range matchActor(rec.Staker, proj) {
		out.Events = append(out.Events, events.WalletEvent{
			Kind: kind, Address: primary, TxHash: rec.TxHash, BlockHeight: rec.BlockHeight,
			Contract: rec.Contract, TokenAmount: amount,
		})
	}
}

func (m *Matcher) projectPriceChange(rec *indexer.PriceChangeRecord, out *Output) {
	price, err := decimal.NewFromString(rec.Price)
	if err != nil {
		price = decimal.Zero
	}
	delta := rec.ChangePct
	if delta < 0 {
		delta = -delta
	}
	for _, watch := range m.store.TokenWatches() {
		if watch.Contract != rec.Contract || watch.AlertPct <= 0 {
			continue
		}
		if delta >= watch.AlertPct {
			out.PriceAlerts = append(out.PriceAlerts, events.PriceAlert{
				ChatID: watch.ChatID, Contract: watch.Contract, Label: watch.Label,
				ChangePct: rec.ChangePct, Price: price,
			})
		}
	}
}
