package matcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/indexer"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

func setup(t *testing.T) (*Matcher, *store.Store) {
	t.Helper()
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	st := store.NewMemory(l)
	return New(st, l), st
}

func trackedProjection(primary, hash string) store.Projection {
	return store.Projection{
		TrackedSet:   map[string]struct{}{primary: {}},
		MldsaMap:     map[string]string{primary: models.NormalizeHash(hash)},
		CanonicalMap: map[string]string{primary: primary},
	}
}

func TestProjectTransferBothDirections(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primary1", "aa11")

	batch := &indexer.EventsResponse{Transfers: []indexer.TransferRecord{
		{Contract: "c1", From: "0xAA11", To: "0xBB22", Value: "1000", TxHash: "tx1", BlockHeight: 200},
		{Contract: "c1", From: "0xCC33", To: "aa11", Value: "2000", TxHash: "tx2", BlockHeight: 201},
	}}
	out := m.Project(batch, proj)

	require.Len(t, out.Events, 2)
	assert.Equal(t, events.KindToken, out.Events[0].Kind)
	assert.Equal(t, events.DirectionOut, out.Events[0].Direction)
	assert.Equal(t, "primary1", out.Events[0].Address)
	assert.Equal(t, events.DirectionIn, out.Events[1].Direction)
	assert.Equal(t, "primary1", out.Events[1].Address)

	// Both matches feed the seen-contract updates.
	assert.Equal(t, []string{"c1", "c1"}, out.SeenContracts["primary1"])
}

func TestProjectTransferNFTKind(t *testing.T) {
	m, st := setup(t)
	require.NoError(t, st.AddTokenWatch(context.Background(), &models.TokenWatch{
		ID: "w1", ChatID: 7, Contract: "nft-coll", Kind: models.TokenWatchNFT,
	}))
	proj := trackedProjection("primary1", "aa11")

	batch := &indexer.EventsResponse{Transfers: []indexer.TransferRecord{
		{Contract: "nft-coll", From: "0xff00", To: "0xaa11", Value: "1", TxHash: "tx1", BlockHeight: 10},
	}}
	out := m.Project(batch, proj)
	require.Len(t, out.Events, 1)
	assert.Equal(t, events.KindNFTTransfer, out.Events[0].Kind)
}

func TestProjectReservationSellerSide(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primaryH", "deadbeef")

	batch := &indexer.EventsResponse{Reservations: []indexer.ReservationRecord{{
		Contract:      "c1",
		ProviderMldsa: "0xDEADBEEF",
		BuyerAddress:  "0x1234",
		Satoshis:      "10000",
		TokenAmount:   "1000000000",
		TxHash:        "tx5",
		BlockHeight:   300,
	}}}
	out := m.Project(batch, proj)

	require.Len(t, out.Events, 1)
	ev := out.Events[0]
	assert.Equal(t, events.KindLiquidityReserved, ev.Kind)
	assert.Equal(t, events.RoleSeller, ev.Role)
	assert.Equal(t, "primaryH", ev.Address)
	assert.Equal(t, int64(10000), ev.Satoshis.Int64())
	assert.Equal(t, "1000000000", ev.TokenAmount.String())
}

func TestProjectReservationBuyerByBTCAddress(t *testing.T) {
	m, _ := setup(t)
	proj := store.Projection{
		TrackedSet:   map[string]struct{}{"bc1qbuyer": {}, "bc1qalias": {}},
		MldsaMap:     map[string]string{},
		CanonicalMap: map[string]string{"bc1qbuyer": "bc1qbuyer", "bc1qalias": "bc1qbuyer"},
	}
	batch := &indexer.EventsResponse{Reservations: []indexer.ReservationRecord{{
		Contract: "c1", ProviderMldsa: "0xother", BuyerAddress: "bc1qalias",
		Satoshis: "500", TokenAmount: "1", TxHash: "tx6", BlockHeight: 301,
	}}}
	out := m.Project(batch, proj)

	require.Len(t, out.Events, 1)
	assert.Equal(t, events.RoleBuyer, out.Events[0].Role)
	assert.Equal(t, "bc1qbuyer", out.Events[0].Address)
}

func TestProjectSwap(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primaryA", "aa11")
	batch := &indexer.EventsResponse{Swaps: []indexer.SwapRecord{{
		Contract: "c1", Buyer: "0xaa11", BTCSpent: "50000", TokensReceived: "1000000000000",
		TxHash: "tx7", BlockHeight: 200,
	}}}
	out := m.Project(batch, proj)

	require.Len(t, out.Events, 1)
	ev := out.Events[0]
	assert.Equal(t, events.KindSwapExecuted, ev.Kind)
	assert.Equal(t, int64(50000), ev.Satoshis.Int64())
	assert.Equal(t, "1000000000000", ev.TokenAmount.String())
}

func TestProjectMalformedRecordsSkipped(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primaryA", "aa11")
	batch := &indexer.EventsResponse{
		Transfers: []indexer.TransferRecord{
			{Contract: "c1", From: "0xaa11", To: "0xbb", Value: "not-a-number", TxHash: "tx1"},
			{Contract: "c1", From: "0xaa11", To: "0xbb", Value: "5", TxHash: "tx2"},
		},
		Swaps: []indexer.SwapRecord{
			{Contract: "c1", Buyer: "0xaa11", BTCSpent: "bogus", TokensReceived: "1", TxHash: "tx3"},
		},
	}
	out := m.Project(batch, proj)
	require.Len(t, out.Events, 1)
	assert.Equal(t, "tx2", out.Events[0].TxHash)
}

func TestProjectPriceChangeAlerts(t *testing.T) {
	m, st := setup(t)
	ctx := context.Background()
	require.NoError(t, st.AddTokenWatch(ctx, &models.TokenWatch{
		ID: "w1", ChatID: 7, Contract: "c1", Kind: models.TokenWatchFungible, AlertPct: 5,
	}))
	require.NoError(t, st.AddTokenWatch(ctx, &models.TokenWatch{
		ID: "w2", ChatID: 8, Contract: "c1", Kind: models.TokenWatchFungible, AlertPct: 20,
	}))
	require.NoError(t, st.AddTokenWatch(ctx, &models.TokenWatch{
		ID: "w3", ChatID: 9, Contract: "c1", Kind: models.TokenWatchFungible, AlertPct: 0,
	}))

	batch := &indexer.EventsResponse{PriceChanges: []indexer.PriceChangeRecord{
		{Contract: "c1", ChangePct: -12.5, Price: "0.0000012"},
	}}
	out := m.Project(batch, store.Projection{
		TrackedSet: map[string]struct{}{}, MldsaMap: map[string]string{}, CanonicalMap: map[string]string{},
	})

	// Threshold 5 fires on a 12.5% drop; threshold 20 and disabled do not.
	require.Len(t, out.PriceAlerts, 1)
	assert.Equal(t, int64(7), out.PriceAlerts[0].ChatID)
	assert.Equal(t, -12.5, out.PriceAlerts[0].ChangePct)
}

func TestProjectReservationNoticeFloor(t *testing.T) {
	m, st := setup(t)
	require.NoError(t, st.AddTokenWatch(context.Background(), &models.TokenWatch{
		ID: "w1", ChatID: 7, Contract: "c1", Kind: models.TokenWatchFungible, MinReserveSats: 5000,
	}))
	batch := &indexer.EventsResponse{Reservations: []indexer.ReservationRecord{
		{Contract: "c1", ProviderMldsa: "0xzz", BuyerAddress: "0xyy", Satoshis: "10000", TokenAmount: "1", TxHash: "tx1"},
		{Contract: "c1", ProviderMldsa: "0xzz", BuyerAddress: "0xyy", Satoshis: "100", TokenAmount: "1", TxHash: "tx2"},
	}}
	out := m.Project(batch, store.Projection{
		TrackedSet: map[string]struct{}{}, MldsaMap: map[string]string{}, CanonicalMap: map[string]string{},
	})
	require.Len(t, out.ReservationNotices, 1)
	assert.Equal(t, int64(7), out.ReservationNotices[0].ChatID)
	assert.Equal(t, int64(10000), out.ReservationNotices[0].Satoshis.Int64())
}

func TestStakingKinds(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primaryA", "aa11")
	batch := &indexer.EventsResponse{StakingEvents: []indexer.StakingEventRecord{
		{Contract: "c1", Kind: "stake", Staker: "0xaa11", Amount: "10", TxHash: "t1"},
		{Contract: "c1", Kind: "unstake", Staker: "0xaa11", Amount: "5", TxHash: "t2"},
		{Contract: "c1", Kind: "claim", Staker: "0xaa11", Amount: "1", TxHash: "t3"},
		{Contract: "c1", Kind: "mystery", Staker: "0xaa11", Amount: "1", TxHash: "t4"},
	}}
	out := m.Project(batch, proj)
	require.Len(t, out.Events, 3)
	assert.Equal(t, events.KindStaked, out.Events[0].Kind)
	assert.Equal(t, events.KindUnstaked, out.Events[1].Kind)
	assert.Equal(t, events.KindRewardsClaimed, out.Events[2].Kind)
}

func TestMatchActorIgnoresUnrelated(t *testing.T) {
	m, _ := setup(t)
	proj := trackedProjection("primaryA", "aa11")
	batch := &indexer.EventsResponse{Transfers: []indexer.TransferRecord{
		{Contract: "c1", From: "0xother", To: "0xstranger", Value: "5", TxHash: "tx1", BlockHeight: 5},
	}}
	out := m.Project(batch, proj)
	assert.Empty(t, out.Events)
}
