package history

import (
	"context"
	"time"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

const pageSize = 100

// Scanner backfills the seen-contract set for a newly tracked identity. It
// runs fire-and-forget: failures are logged and the identity simply stays
// un-backfilled until the next track of the same wallet.
type Scanner struct {
	indexer   models.IndexerAPI
	store     *store.Store
	appLogger *logger.Logger
}

func New(indexerAPI models.IndexerAPI, st *store.Store, appLogger *logger.Logger) *Scanner {
	return &Scanner{indexer: indexerAPI, store: st, appLogger: appLogger}
}

// Backfill pages all prior transfers for the identity and seeds the
// primary's seen-contract set, then marks the identity fully scanned.
func (s *Scanner) Backfill(primary, mldsaHash string) {
	if s.store.IsFullyScanned(primary) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	skip := 0
	total := 0
	for {
		transfers, err := s.indexer.Transfers(ctx, mldsaHash, pageSize, skip)
		if err != nil {
			s.appLogger.Warn("Historical transfer scan aborted", "primary", primary, "error", err)
			return
		}
		if len(transfers) == 0 {
			break
		}
		contracts := make([]string, 0, len(transfers))
		for _, t := range transfers {
			contracts = append(contracts, t.Contract)
		}
		if err := s.store.AddSeenContracts(ctx, primary, contracts); err != nil {
			s.appLogger.Warn("Failed to persist seen contracts during backfill", "primary", primary, "error", err)
			return
		}
		total += len(transfers)
		if len(transfers) < pageSize {
			break
		}
		skip += pageSize
	}

	if err := s.store.MarkFullyScanned(ctx, primary); err != nil {
		s.appLogger.Warn("Failed to mark identity fully scanned", "primary", primary, "error", err)
		return
	}
	s.appLogger.Info("Historical scan complete", "primary", primary, "transfers", total)
}
