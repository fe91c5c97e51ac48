package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/matcher"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/rpc"
	"github.com/trypto13/jeet-tracker/internal/scanner"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/internal/utxo"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Config holds the orchestrator tunables.
type Config struct {
	PollInterval  time.Duration
	BlockBatch    int
	TxLRUSize     int
	EventFetchMax int
}

// Orchestrator drives one tick at a time: advance the cursor window, pull
// both sources, reconcile, and fan out. The cursor only moves once every
// step of the tick succeeded, so a failed tick replays the same block range
// idempotently.
type Orchestrator struct {
	store     *store.Store
	rpc       models.ChainRPC
	indexer   models.IndexerAPI
	resolver  Resolver
	tracker   *utxo.Tracker
	scanner   *scanner.Scanner
	matcher   *matcher.Matcher
	notifier  Dispatcher
	appLogger *logger.Logger

	cfg      Config
	notified *txLRU
}

// Resolver is the identity-resolution surface the tick consumes.
type Resolver interface {
	Resolve(ctx context.Context, address string) (*models.IdentityLinkage, error)
}

// Dispatcher is the notification surface the tick hands surviving events to.
type Dispatcher interface {
	Dispatch(evts []events.WalletEvent)
	DispatchPriceAlerts(alerts []events.PriceAlert)
	DispatchReservationNotices(notices []events.ReservationNotice)
}

func NewOrchestrator(
	st *store.Store,
	chainRPC models.ChainRPC,
	indexerAPI models.IndexerAPI,
	resolver Resolver,
	tracker *utxo.Tracker,
	blockScanner *scanner.Scanner,
	m *matcher.Matcher,
	dispatcher Dispatcher,
	cfg Config,
	appLogger *logger.Logger,
) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.BlockBatch <= 0 {
		cfg.BlockBatch = 10
	}
	return &Orchestrator{
		store:     st,
		rpc:       chainRPC,
		indexer:   indexerAPI,
		resolver:  resolver,
		tracker:   tracker,
		scanner:   blockScanner,
		matcher:   m,
		notifier:  dispatcher,
		cfg:       cfg,
		notified:  newTxLRU(cfg.TxLRUSize),
		appLogger: appLogger,
	}
}

// Run ticks until the context is cancelled. Ticks never overlap; an
// in-flight tick finishes opportunistically and the loop exits at the next
// boundary.
func (o *Orchestrator) Run(ctx context.Context) {
	o.appLogger.Info("Pipeline started", "pollInterval", o.cfg.PollInterval.String(), "blockBatch", o.cfg.BlockBatch)
	ticker := time.NewTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := o.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				o.appLogger.Info("Pipeline stopping, tick cut short", "error", err)
				return
			}
			o.appLogger.Error("Tick failed, cursor preserved", "error", err)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			o.appLogger.Info("Pipeline stopped")
			return
		}
	}
}

// Tick runs the full protocol once. Any failure in the event-producing
// steps returns before the cursor write, so the next tick retries from the
// same height.
func (o *Orchestrator) Tick(ctx context.Context) error {
	cursor := o.store.Cursor()
	since := cursor + 1
	if since < 1 {
		since = 1
	}

	batch, err := o.indexer.Events(ctx, since, o.cfg.EventFetchMax)
	if err != nil {
		return fmt.Errorf("indexer fetch since %d failed: %w", since, err)
	}
	target := batch.LastIndexedBlock
	if cursor >= target {
		return nil
	}
	o.appLogger.Debug("Tick window", "from", since, "to", target)

	// Fill identity and seed gaps before matching so this tick's events
	// already attribute through the freshest projection.
	if err := o.fillGaps(ctx); err != nil {
		return err
	}
	proj := o.store.IdentityProjection()

	matched := o.matcher.Project(batch, proj)

	btcEvents, inferred, err := o.scanBlocks(ctx, since, target, proj)
	if err != nil {
		return err
	}

	merged := append(btcEvents, matched.Events...)
	merged = append(merged, promoteInferredSends(inferred, btcEvents)...)
	merged = dedupe(merged)
	merged = suppressBTC(merged)

	// Session-scoped at-most-once per transaction hash.
	var deliverable []events.WalletEvent
	for _, ev := range merged {
		if o.notified.Contains(ev.TxHash) {
			continue
		}
		deliverable = append(deliverable, ev)
	}
	sort.SliceStable(deliverable, func(i, j int) bool {
		return deliverable[i].BlockHeight < deliverable[j].BlockHeight
	})

	o.notifier.Dispatch(deliverable)
	o.notifier.DispatchPriceAlerts(matched.PriceAlerts)
	o.notifier.DispatchReservationNotices(matched.ReservationNotices)
	for _, ev := range deliverable {
		o.notified.Add(ev.TxHash)
	}

	for primary, contracts := range matched.SeenContracts {
		if err := o.store.AddSeenContracts(ctx, primary, contracts); err != nil {
			return fmt.Errorf("persisting seen contracts for %s failed: %w", primary, err)
		}
	}

	if err := o.store.SetCursor(ctx, target); err != nil {
		return fmt.Errorf("cursor advance to %d failed: %w", target, err)
	}
	o.appLogger.Info("Tick complete", "cursor", target, "events", len(deliverable),
		"priceAlerts", len(matched.PriceAlerts))
	return nil
}

// fillGaps resolves identities for primaries with no stored hash and seeds
// UTXO sets for primaries not yet seeded. Resolution failures are absorbed;
// the address stays unresolved and retries next tick.
func (o *Orchestrator) fillGaps(ctx context.Context) error {
	proj := o.store.IdentityProjection()
	for _, sub := range o.store.Subscriptions() {
		if _, resolved := proj.MldsaMap[sub.Address]; !resolved {
			linkage, err := o.resolver.Resolve(ctx, sub.Address)
			if err != nil {
				o.appLogger.Warn("Identity resolution deferred", "address", sub.Address, "error", err)
			} else if linkage != nil {
				if err := o.store.SetLinkage(ctx, sub.ID, linkage); err != nil {
					o.appLogger.Warn("Identity linkage rejected", "address", sub.Address, "error", err)
				}
			}
		}
	}
	for _, primary := range o.store.TrackedPrimaries() {
		if o.store.IsSeeded(primary) {
			continue
		}
		var linkage *models.IdentityLinkage
		for _, sub := range o.store.Subscriptions() {
			if sub.Address == primary && sub.Linkage != nil {
				linkage = sub.Linkage
				break
			}
		}
		if err := o.tracker.Seed(ctx, primary, linkage); err != nil {
			return fmt.Errorf("UTXO seeding for %s failed: %w", primary, err)
		}
	}
	return nil
}

// scanBlocks walks heights [from..to] in chunks, fetching blocks in
// parallel within a chunk and scanning them in height order against the
// live UTXO map. Each chunk's delta persists before the next chunk runs.
func (o *Orchestrator) scanBlocks(ctx context.Context, from, to int64, proj store.Projection) ([]events.WalletEvent, []events.InferredSend, error) {
	liveMap := o.store.UTXOMap()
	var allEvents []events.WalletEvent
	var allInferred []events.InferredSend

	for chunkStart := from; chunkStart <= to; chunkStart += int64(o.cfg.BlockBatch) {
		chunkEnd := chunkStart + int64(o.cfg.BlockBatch) - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks := make([]*rpc.Block, chunkEnd-chunkStart+1)
		g, gctx := errgroup.WithContext(ctx)
		for height := chunkStart; height <= chunkEnd; height++ {
			height := height
			g.Go(func() error {
				block, err := o.rpc.GetBlock(gctx, height)
				if err != nil {
					return fmt.Errorf("block fetch at %d failed: %w", height, err)
				}
				blocks[height-chunkStart] = block
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, err
		}

		var chunkReceived []*models.StoredUTXO
		var chunkSpent []string
		for i, block := range blocks {
			if block == nil {
				o.appLogger.Warn("Missing block in chunk, skipping", "height", chunkStart+int64(i))
				continue
			}
			result := o.scanner.ScanBlock(block, chunkStart+int64(i), proj, liveMap)
			allEvents = append(allEvents, result.Events...)
			allInferred = append(allInferred, result.InferredSends...)
			chunkReceived = append(chunkReceived, result.Received...)
			chunkSpent = append(chunkSpent, result.SpentKeys...)
		}
		if err := o.tracker.Apply(ctx, chunkReceived, chunkSpent); err != nil {
			return nil, nil, fmt.Errorf("UTXO delta persist for chunk %d-%d failed: %w", chunkStart, chunkEnd, err)
		}
	}
	return allEvents, allInferred, nil
}

// promoteInferredSends turns candidates into btc_sent events when the UTXO
// path produced no confirmed spend for the same transaction. Suppression
// afterwards weeds out the false positives.
func promoteInferredSends(inferred []events.InferredSend, btcEvents []events.WalletEvent) []events.WalletEvent {
	confirmed := make(map[string]struct{})
	for _, ev := range btcEvents {
		if ev.Kind == events.KindBTCSent {
			confirmed[ev.TxHash] = struct{}{}
		}
	}
	var promoted []events.WalletEvent
	for _, cand := range inferred {
		if _, ok := confirmed[cand.TxHash]; ok {
			continue
		}
		promoted = append(promoted, events.WalletEvent{
			Kind:            events.KindBTCSent,
			Address:         cand.Address,
			TxHash:          cand.TxHash,
			BlockHeight:     cand.BlockHeight,
			Direction:       events.DirectionOut,
			Satoshis:        cand.TotalSent,
			Counterparty:    cand.Counterparty,
			RecipientAmount: cand.TotalSent,
		})
	}
	return promoted
}

// dedupe drops events that describe the same on-chain action across the two
// sources.
func dedupe(evts []events.WalletEvent) []events.WalletEvent {
	seen := make(map[string]struct{}, len(evts))
	out := evts[:0]
	for _, ev := range evts {
		key := ev.DedupKey()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, ev)
	}
	return out
}

type suppressKey struct {
	address string
	height  int64
}

// suppressBTC drops raw BTC events wherever contract semantics already
// explain the transaction: swaps carry their own net cost, and the BTC in
// reservation, pool and staking transactions is gas plumbing. A token in
// plus token out at the same (address, block) marks a token-to-token trade,
// where BTC is gas too.
func suppressBTC(evts []events.WalletEvent) []events.WalletEvent {
	suppress := make(map[suppressKey]struct{})
	tokenIn := make(map[suppressKey]struct{})
	tokenOut := make(map[suppressKey]struct{})

	for _, ev := range evts {
		key := suppressKey{address: ev.Address, height: ev.BlockHeight}
		switch ev.Kind {
		case events.KindSwapExecuted,
			events.KindLiquidityReserved,
			events.KindProviderConsumed,
			events.KindLiquidityAdded,
			events.KindLiquidityRemoved,
			events.KindStaked,
			events.KindUnstaked,
			events.KindRewardsClaimed:
			suppress[key] = struct{}{}
		case events.KindToken, events.KindNFTTransfer:
			if ev.Direction == events.DirectionIn {
				tokenIn[key] = struct{}{}
			} else {
				tokenOut[key] = struct{}{}
			}
		}
	}
	for key := range tokenIn {
		if _, out := tokenOut[key]; out {
			suppress[key] = struct{}{}
		}
	}

	result := evts[:0]
	for _, ev := range evts {
		if ev.Kind == events.KindBTCSent || ev.Kind == events.KindBTCReceived {
			if _, drop := suppress[suppressKey{address: ev.Address, height: ev.BlockHeight}]; drop {
				continue
			}
		}
		result = append(result, ev)
	}
	return result
}
