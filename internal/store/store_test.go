package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	l, err := logger.NewLogger(logger.Config{Level: "error"})
	require.NoError(t, err)
	return NewMemory(l)
}

func sub(id string, chatID int64, address string) *models.Subscription {
	return &models.Subscription{ID: id, ChatID: chatID, Address: address, CreatedAt: time.Now().UTC()}
}

func TestAddSubscriptionEnforcesUniquenessAndCap(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "addr1"), 2))
	assert.ErrorIs(t, s.AddSubscription(ctx, sub("s2", 7, "addr1"), 2), ErrDuplicateSubscription)
	require.NoError(t, s.AddSubscription(ctx, sub("s3", 7, "addr2"), 2))
	assert.ErrorIs(t, s.AddSubscription(ctx, sub("s4", 7, "addr3"), 2), ErrWalletLimit)

	// Another chat is unaffected by the first chat's cap.
	require.NoError(t, s.AddSubscription(ctx, sub("s5", 8, "addr1"), 2))
}

func TestSetLinkageRejectsDuplicateIdentityPerChat(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "bc1qfirst"), 0))
	require.NoError(t, s.AddSubscription(ctx, sub("s2", 7, "bc1psecond"), 0))

	linkage := &models.IdentityLinkage{MLDSAHash: "0xABCDEF01"}
	require.NoError(t, s.SetLinkage(ctx, "s1", linkage))

	// Same identity under a different format: rejected for the same chat.
	err := s.SetLinkage(ctx, "s2", &models.IdentityLinkage{MLDSAHash: "abcdef01"})
	assert.ErrorIs(t, err, ErrDuplicateIdentity)

	// A different chat may link the same identity.
	require.NoError(t, s.AddSubscription(ctx, sub("s3", 8, "bc1qfirst"), 0))
	require.NoError(t, s.SetLinkage(ctx, "s3", &models.IdentityLinkage{MLDSAHash: "abcdef01"}))
}

func TestFindChatSubscriptionByHashNormalizes(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "bc1qfirst"), 0))
	require.NoError(t, s.SetLinkage(ctx, "s1", &models.IdentityLinkage{MLDSAHash: "deadbeef"}))

	found := s.FindChatSubscriptionByHash(7, "0xDEADBEEF")
	require.NotNil(t, found)
	assert.Equal(t, "s1", found.ID)
	assert.Nil(t, s.FindChatSubscriptionByHash(8, "0xDEADBEEF"))
}

func TestIdentityProjection(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "primary1"), 0))
	require.NoError(t, s.SetLinkage(ctx, "s1", &models.IdentityLinkage{
		MLDSAHash: "0xAA11",
		P2TR:      "alias-tr",
		CSV1:      "alias-csv",
	}))

	proj := s.IdentityProjection()
	assert.Contains(t, proj.TrackedSet, "primary1")
	assert.Contains(t, proj.TrackedSet, "alias-tr")
	assert.Contains(t, proj.TrackedSet, "alias-csv")

	// mldsaMap keys by primary only.
	assert.Equal(t, map[string]string{"primary1": "aa11"}, proj.MldsaMap)

	assert.Equal(t, "primary1", proj.CanonicalMap["alias-tr"])
	assert.Equal(t, "primary1", proj.CanonicalMap["alias-csv"])
	assert.Equal(t, "primary1", proj.CanonicalMap["primary1"])
}

func TestUTXODeltaSpendsBeforeReceives(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyUTXODelta(ctx, []*models.StoredUTXO{
		{TxID: "t0", Vout: 0, Value: "500000", Address: "addrA"},
	}, nil))
	utxoMap := s.UTXOMap()
	require.Contains(t, utxoMap, "t0:0")
	assert.Equal(t, "addrA", utxoMap["t0:0"].Address)
	assert.Equal(t, int64(500000), utxoMap["t0:0"].Value.Int64())

	require.NoError(t, s.ApplyUTXODelta(ctx, []*models.StoredUTXO{
		{TxID: "t1", Vout: 1, Value: "199500", Address: "addrA"},
	}, []string{"t0:0"}))
	utxoMap = s.UTXOMap()
	assert.NotContains(t, utxoMap, "t0:0")
	assert.Contains(t, utxoMap, "t1:1")

	// Replaying the same delta is a no-op.
	require.NoError(t, s.ApplyUTXODelta(ctx, []*models.StoredUTXO{
		{TxID: "t1", Vout: 1, Value: "199500", Address: "addrA"},
	}, []string{"t0:0"}))
	assert.Len(t, s.UTXOMap(), 1)
}

func TestCursorMonotonic(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	assert.Equal(t, int64(0), s.Cursor())

	require.NoError(t, s.SetCursor(ctx, 100))
	assert.Equal(t, int64(100), s.Cursor())

	// A smaller height never rewinds the cursor.
	require.NoError(t, s.SetCursor(ctx, 50))
	assert.Equal(t, int64(100), s.Cursor())

	require.NoError(t, s.SetCursor(ctx, 101))
	assert.Equal(t, int64(101), s.Cursor())
}

func TestRedeemCodeLifecycle(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.SeedAccessCode(ctx, &models.AccessCode{
		Code:         "JT-ABCDEF123456",
		ExpiresAt:    now.AddDate(0, 1, 0),
		DurationDays: 30,
	}))

	_, err := s.RedeemCode(ctx, "JT-UNKNOWN000000", 7, now)
	assert.ErrorIs(t, err, ErrCodeUnknown)

	paid, err := s.RedeemCode(ctx, "JT-ABCDEF123456", 7, now)
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 0, 30), paid.ExpiresAt)
	assert.True(t, s.HasActiveSubscription(7, now))
	assert.False(t, s.HasActiveSubscription(7, now.AddDate(0, 0, 31)))

	// Same chat again: idempotent, no second extension.
	again, err := s.RedeemCode(ctx, "JT-ABCDEF123456", 7, now)
	require.NoError(t, err)
	assert.Equal(t, paid.ExpiresAt, again.ExpiresAt)

	// Another chat: refused.
	_, err = s.RedeemCode(ctx, "JT-ABCDEF123456", 8, now)
	assert.ErrorIs(t, err, ErrCodeUsed)
}

func TestRedeemCodeExpired(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SeedAccessCode(ctx, &models.AccessCode{
		Code:         "JT-EXPIRED000001",
		ExpiresAt:    now.AddDate(0, 0, -1),
		DurationDays: 30,
	}))
	_, err := s.RedeemCode(ctx, "JT-EXPIRED000001", 7, now)
	assert.ErrorIs(t, err, ErrCodeExpired)
}

func TestRemoveSubscriptionDropsOrphanedUTXOs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "addrA"), 0))
	require.NoError(t, s.AddSubscription(ctx, sub("s2", 8, "addrA"), 0))
	require.NoError(t, s.ApplyUTXODelta(ctx, []*models.StoredUTXO{
		{TxID: "t0", Vout: 0, Value: "1000", Address: "addrA"},
	}, nil))

	// Another chat still tracks addrA; the UTXO set stays.
	require.NoError(t, s.RemoveSubscription(ctx, 7, "s1"))
	assert.Len(t, s.UTXOMap(), 1)

	require.NoError(t, s.RemoveSubscription(ctx, 8, "s2"))
	assert.Empty(t, s.UTXOMap())
}

func TestSeenContractsAndNFTSet(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	require.NoError(t, s.AddSeenContracts(ctx, "addrA", []string{"c1", "c2", "c1"}))
	seen := s.SeenContracts("addrA")
	assert.Len(t, seen, 2)

	require.NoError(t, s.AddTokenWatch(ctx, &models.TokenWatch{ID: "w1", ChatID: 7, Contract: "c9", Kind: models.TokenWatchNFT}))
	require.NoError(t, s.AddTokenWatch(ctx, &models.TokenWatch{ID: "w2", ChatID: 7, Contract: "c8", Kind: models.TokenWatchFungible}))
	assert.ErrorIs(t, s.AddTokenWatch(ctx, &models.TokenWatch{ID: "w3", ChatID: 7, Contract: "c9"}), ErrDuplicateWatch)

	nft := s.NFTContracts()
	assert.Contains(t, nft, "c9")
	assert.NotContains(t, nft, "c8")
}

func TestChatsTracking(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()
	require.NoError(t, s.AddSubscription(ctx, sub("s1", 7, "addrA"), 0))
	require.NoError(t, s.AddSubscription(ctx, sub("s2", 8, "addrA"), 0))
	require.NoError(t, s.AddSubscription(ctx, sub("s3", 9, "addrB"), 0))

	chats := s.ChatsTracking("addrA")
	assert.ElementsMatch(t, []int64{7, 8}, chats)
}
