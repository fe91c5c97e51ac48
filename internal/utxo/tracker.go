package utxo

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// seedFanout bounds the concurrent per-address RPC calls during seeding.
const seedFanout = 10

// Tracker maintains the per-wallet UTXO set. Seeding happens once per
// primary, on first sight; afterwards each block's scan delta keeps the
// stored set equal to the chain's view at cursor height.
type Tracker struct {
	rpc       models.ChainRPC
	store     *store.Store
	appLogger *logger.Logger
}

func NewTracker(rpc models.ChainRPC, st *store.Store, appLogger *logger.Logger) *Tracker {
	return &Tracker{rpc: rpc, store: st, appLogger: appLogger}
}

// Seed fetches the current UTXO set for a primary address and every linked
// form, unions the results and stores them under the canonical primary. The
// CSV form resolves through the node's dedicated path.
func (t *Tracker) Seed(ctx context.Context, primary string, linkage *models.IdentityLinkage) error {
	type target struct {
		address string
		isCSV   bool
	}
	targets := []target{{address: primary}}
	if linkage != nil {
		for _, alias := range linkage.Aliases() {
			if alias == primary {
				continue
			}
			targets = append(targets, target{address: alias, isCSV: alias == linkage.CSV1})
		}
	}

	var mu sync.Mutex
	union := make(map[string]*models.StoredUTXO)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seedFanout)
	for _, tgt := range targets {
		tgt := tgt
		g.Go(func() error {
			utxos, err := t.rpc.GetUTXOs(gctx, tgt.address, tgt.isCSV)
			if err != nil {
				return fmt.Errorf("UTXO fetch for %s failed: %w", tgt.address, err)
			}
			mu.Lock()
			defer mu.Unlock()
			for _, u := range utxos {
				value := u.Satoshis()
				if value == nil || value.Sign() <= 0 {
					t.appLogger.Warn("Skipping UTXO with malformed or non-positive value",
						"address", tgt.address, "txid", u.TransactionID, "value", u.Value.String())
					continue
				}
				stored := &models.StoredUTXO{
					TxID:    u.TransactionID,
					Vout:    u.OutputIndex,
					Value:   value.String(),
					Address: primary,
				}
				union[stored.Key()] = stored
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	seeded := make([]*models.StoredUTXO, 0, len(union))
	for _, u := range union {
		seeded = append(seeded, u)
	}
	if err := t.store.SeedUTXOs(ctx, primary, seeded); err != nil {
		return err
	}
	t.appLogger.Info("UTXO set seeded", "primary", primary, "utxos", len(seeded), "forms", len(targets))
	return nil
}

// Apply commits a block chunk's delta to the store. The block scanner has
// already mirrored the same delta onto the live map, spends before
// receives, so later chunks in the tick observe it.
func (t *Tracker) Apply(ctx context.Context, received []*models.StoredUTXO, spentKeys []string) error {
	return t.store.ApplyUTXODelta(ctx, received, spentKeys)
}
