package store

import (
	"context"
	"math/big"
	"sort"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/trypto13/jeet-tracker/internal/models"
)

// Projection is the identity view the hot path matches against. TrackedSet
// holds every address that can appear on chain for a tracked wallet;
// MldsaMap is keyed by primary only, so indexer events attribute to the
// subscription address; CanonicalMap folds any linked alias back to its
// primary.
type Projection struct {
	TrackedSet   map[string]struct{}
	MldsaMap     map[string]string
	CanonicalMap map[string]string
}

// UTXOEntry is the in-memory projection of a stored UTXO.
type UTXOEntry struct {
	Address string
	Value   *big.Int
}

// --- subscriptions ---

func (s *Store) Subscriptions() []*models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Subscription, 0, len(s.subs))
	for _, sub := range s.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) SubscriptionsForChat(chatID int64) []*models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Subscription
	for _, sub := range s.subs {
		if sub.ChatID == chatID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) SubscriptionByID(chatID int64, id string) *models.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[id]
	if !ok || sub.ChatID != chatID {
		return nil
	}
	return sub
}

// FindChatSubscriptionByHash scans the chat's subscriptions for a linkage
// carrying the given identity hash. O(N) over the cache; only the track
// command uses it.
func (s *Store) FindChatSubscriptionByHash(chatID int64, hash string) *models.Subscription {
	normalized := models.NormalizeHash(hash)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if sub.ChatID == chatID && sub.Linkage != nil && models.NormalizeHash(sub.Linkage.MLDSAHash) == normalized {
			return sub
		}
	}
	return nil
}

// AddSubscription enforces the per-chat wallet cap and the (chat, address)
// uniqueness invariant before inserting.
func (s *Store) AddSubscription(ctx context.Context, sub *models.Subscription, maxPerChat int) error {
	s.mu.Lock()
	count := 0
	for _, existing := range s.subs {
		if existing.ChatID != sub.ChatID {
			continue
		}
		count++
		if existing.Address == sub.Address {
			s.mu.Unlock()
			return ErrDuplicateSubscription
		}
	}
	if maxPerChat > 0 && count >= maxPerChat {
		s.mu.Unlock()
		return ErrWalletLimit
	}
	s.subs[sub.ID] = sub
	s.mu.Unlock()
	return s.w.upsert(ctx, collSubscriptions, bson.M{"_id": sub.ID}, sub)
}

// RemoveSubscription deletes the chat's subscription. When no other chat
// still tracks the same address, it also drops every UTXO stored under that
// address and its seeded flag.
func (s *Store) RemoveSubscription(ctx context.Context, chatID int64, id string) error {
	s.mu.Lock()
	sub, ok := s.subs[id]
	if !ok || sub.ChatID != chatID {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.subs, id)

	// Only drop the UTXO set if no other chat still tracks the same address.
	stillTracked := false
	for _, other := range s.subs {
		if other.Address == sub.Address {
			stillTracked = true
			break
		}
	}
	var orphaned []string
	if !stillTracked {
		for key, u := range s.utxos {
			if u.Address == sub.Address {
				orphaned = append(orphaned, key)
				delete(s.utxos, key)
			}
		}
	}
	s.mu.Unlock()

	if err := s.w.remove(ctx, collSubscriptions, bson.M{"_id": id}); err != nil {
		return err
	}
	if !stillTracked {
		if err := s.w.remove(ctx, collState, bson.M{"_id": models.StateKeySeedPrefix + sub.Address}); err != nil {
			return err
		}
		s.mu.Lock()
		delete(s.state, models.StateKeySeedPrefix+sub.Address)
		s.mu.Unlock()
	}
	for _, key := range orphaned {
		u := parseUTXOKey(key)
		if err := s.w.remove(ctx, collUTXOs, bson.M{"txid": u.txid, "vout": u.vout}); err != nil {
			return err
		}
	}
	return nil
}

// SetLinkage attaches a resolved identity to a subscription, enforcing the
// one-identity-per-chat invariant.
func (s *Store) SetLinkage(ctx context.Context, subID string, linkage *models.IdentityLinkage) error {
	s.mu.Lock()
	sub, ok := s.subs[subID]
	if !ok {
		s.mu.Unlock()
		return ErrNotFound
	}
	normalized := models.NormalizeHash(linkage.MLDSAHash)
	for _, other := range s.subs {
		if other.ID != subID && other.ChatID == sub.ChatID && other.Linkage != nil &&
			models.NormalizeHash(other.Linkage.MLDSAHash) == normalized {
			s.mu.Unlock()
			return ErrDuplicateIdentity
		}
	}
	sub.Linkage = linkage
	s.mu.Unlock()
	return s.w.upsert(ctx, collSubscriptions, bson.M{"_id": subID}, sub)
}

// TrackedPrimaries returns the distinct primary addresses across all
// subscriptions.
func (s *Store) TrackedPrimaries() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := make(map[string]struct{})
	for _, sub := range s.subs {
		set[sub.Address] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for addr := range set {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// ChatsTracking returns every chat subscribed to the given canonical
// primary address.
func (s *Store) ChatsTracking(address string) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[int64]struct{})
	var out []int64
	for _, sub := range s.subs {
		if sub.Address == address {
			if _, dup := seen[sub.ChatID]; !dup {
				seen[sub.ChatID] = struct{}{}
				out = append(out, sub.ChatID)
			}
		}
	}
	return out
}

// IdentityProjection builds the three hot-path maps in one pass.
func (s *Store) IdentityProjection() Projection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p := Projection{
		TrackedSet:   make(map[string]struct{}),
		MldsaMap:     make(map[string]string),
		CanonicalMap: make(map[string]string),
	}
	for _, sub := range s.subs {
		p.TrackedSet[sub.Address] = struct{}{}
		p.CanonicalMap[sub.Address] = sub.Address
		if sub.Linkage == nil {
			continue
		}
		p.MldsaMap[sub.Address] = models.NormalizeHash(sub.Linkage.MLDSAHash)
		for _, alias := range sub.Linkage.Aliases() {
			p.TrackedSet[alias] = struct{}{}
			if _, exists := p.CanonicalMap[alias]; !exists || alias == sub.Address {
				p.CanonicalMap[alias] = sub.Address
			}
		}
	}
	return p
}

// --- UTXO set ---

type parsedKey struct {
	txid string
	vout uint32
}

func parseUTXOKey(key string) parsedKey {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == ':' {
			vout, _ := strconv.ParseUint(key[i+1:], 10, 32)
			return parsedKey{txid: key[:i], vout: uint32(vout)}
		}
	}
	return parsedKey{txid: key}
}

// UTXOMap projects the cached UTXO set as (txid:vout) → {primary, value}.
// Rebuilt once per tick.
func (s *Store) UTXOMap() map[string]UTXOEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]UTXOEntry, len(s.utxos))
	for key, u := range s.utxos {
		value, ok := new(big.Int).SetString(u.Value, 10)
		if !ok {
			s.appLogger.Warn("Stored UTXO carries malformed value, skipping", "key", key, "value", u.Value)
			continue
		}
		out[key] = UTXOEntry{Address: u.Address, Value: value}
	}
	return out
}

// ApplyUTXODelta removes spent outputs and inserts received ones, spends
// first. Replays are idempotent: deletes of missing keys and upserts of
// existing keys are both no-ops.
func (s *Store) ApplyUTXODelta(ctx context.Context, received []*models.StoredUTXO, spentKeys []string) error {
	s.mu.Lock()
	for _, key := range spentKeys {
		delete(s.utxos, key)
	}
	for _, u := range received {
		s.utxos[u.Key()] = u
	}
	s.mu.Unlock()

	for _, key := range spentKeys {
		k := parseUTXOKey(key)
		if err := s.w.remove(ctx, collUTXOs, bson.M{"txid": k.txid, "vout": k.vout}); err != nil {
			return err
		}
	}
	for _, u := range received {
		if err := s.w.upsert(ctx, collUTXOs, bson.M{"txid": u.TxID, "vout": u.Vout}, u); err != nil {
			return err
		}
	}
	return nil
}

// SeedUTXOs stores the first-sight UTXO union for a primary and marks it
// seeded so the seeding step runs exactly once.
func (s *Store) SeedUTXOs(ctx context.Context, primary string, utxos []*models.StoredUTXO) error {
	if err := s.ApplyUTXODelta(ctx, utxos, nil); err != nil {
		return err
	}
	return s.setState(ctx, models.StateKeySeedPrefix+primary, "1")
}

func (s *Store) IsSeeded(primary string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state[models.StateKeySeedPrefix+primary]
	return ok
}

// --- scan cursor and state ---

func (s *Store) Cursor() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.state[models.StateKeyCursor]
	if !ok {
		return 0
	}
	cursor, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return cursor
}

// SetCursor advances the scan cursor. The cursor is monotonic; a smaller
// height is refused silently because a concurrent reset is not a supported
// operation.
func (s *Store) SetCursor(ctx context.Context, height int64) error {
	if height < s.Cursor() {
		return nil
	}
	return s.setState(ctx, models.StateKeyCursor, strconv.FormatInt(height, 10))
}

func (s *Store) setState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	s.state[key] = value
	s.mu.Unlock()
	return s.w.upsert(ctx, collState, bson.M{"_id": key}, &models.StateEntry{Key: key, Value: value})
}

func (s *Store) IsFullyScanned(primary string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.state[models.StateKeyScannedPrefix+primary]
	return ok
}

func (s *Store) MarkFullyScanned(ctx context.Context, primary string) error {
	return s.setState(ctx, models.StateKeyScannedPrefix+primary, "1")
}

// --- seen contracts ---

func (s *Store) SeenContracts(primary string) map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.seen[primary]))
	for c := range s.seen[primary] {
		out[c] = struct{}{}
	}
	return out
}

// AddSeenContracts merges newly observed contracts into the primary's set.
// No-op writes are skipped.
func (s *Store) AddSeenContracts(ctx context.Context, primary string, contracts []string) error {
	s.mu.Lock()
	set, ok := s.seen[primary]
	if !ok {
		set = make(map[string]struct{})
		s.seen[primary] = set
	}
	changed := false
	for _, c := range contracts {
		if _, exists := set[c]; !exists {
			set[c] = struct{}{}
			changed = true
		}
	}
	var doc *models.SeenContracts
	if changed {
		doc = &models.SeenContracts{Address: primary, Contracts: make([]string, 0, len(set))}
		for c := range set {
			doc.Contracts = append(doc.Contracts, c)
		}
		sort.Strings(doc.Contracts)
	}
	s.mu.Unlock()

	if doc == nil {
		return nil
	}
	return s.w.upsert(ctx, collSeenContracts, bson.M{"_id": primary}, doc)
}

// --- authorization and paid subscriptions ---

func (s *Store) IsAuthorized(chatID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.authorized[chatID]
	return ok
}

func (s *Store) Authorize(ctx context.Context, chatID int64) error {
	s.mu.Lock()
	if _, ok := s.authorized[chatID]; ok {
		s.mu.Unlock()
		return nil
	}
	chat := &models.AuthorizedChat{ChatID: chatID, AuthorizedAt: nowUTC()}
	s.authorized[chatID] = chat
	s.mu.Unlock()
	return s.w.upsert(ctx, collAuthorized, bson.M{"_id": chatID}, chat)
}

func (s *Store) PaidSubscription(chatID int64) *models.PaidSubscription {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paid[chatID]
}

// HasActiveSubscription is consulted before every outbound notification.
func (s *Store) HasActiveSubscription(chatID int64, now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.paid[chatID]
	return ok && sub.Live(now)
}

// ExpiringChats lists chats whose paid subscription lapses inside the
// window (now, cutoff].
func (s *Store) ExpiringChats(now, cutoff time.Time) []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []int64
	for chatID, sub := range s.paid {
		if sub.ExpiresAt.After(now) && !sub.ExpiresAt.After(cutoff) {
			out = append(out, chatID)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LiveChatCount reports how many chats currently admit notifications.
func (s *Store) LiveChatCount(now time.Time) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, sub := range s.paid {
		if sub.Live(now) {
			count++
		}
	}
	return count
}

// RedeemCode consumes an access code for a chat. A code redeems at most
// once; a repeat call from the same chat is an idempotent success and does
// not extend the subscription again.
func (s *Store) RedeemCode(ctx context.Context, code string, chatID int64, now time.Time) (*models.PaidSubscription, error) {
	s.mu.Lock()
	ac, ok := s.codes[code]
	if !ok {
		s.mu.Unlock()
		return nil, ErrCodeUnknown
	}
	if ac.Redeemed {
		redeemedBy := ac.RedeemedBy
		paid := s.paid[chatID]
		s.mu.Unlock()
		if redeemedBy == chatID {
			return paid, nil
		}
		return nil, ErrCodeUsed
	}
	if !ac.ExpiresAt.IsZero() && now.After(ac.ExpiresAt) {
		s.mu.Unlock()
		return nil, ErrCodeExpired
	}

	ac.Redeemed = true
	ac.RedeemedBy = chatID

	base := now
	if existing, ok := s.paid[chatID]; ok && existing.ExpiresAt.After(now) {
		base = existing.ExpiresAt
	}
	paid := &models.PaidSubscription{
		ChatID:    chatID,
		ExpiresAt: base.AddDate(0, 0, ac.DurationDays),
		Code:      ac.Code,
		PaidBy:    ac.FundingTx,
	}
	s.paid[chatID] = paid
	s.mu.Unlock()

	if err := s.w.upsert(ctx, collAccessCodes, bson.M{"_id": ac.Code}, ac); err != nil {
		return nil, err
	}
	if err := s.w.upsert(ctx, collPaidSubs, bson.M{"_id": chatID}, paid); err != nil {
		return nil, err
	}
	return paid, nil
}

// --- token watches ---

func (s *Store) TokenWatchesForChat(chatID int64) []*models.TokenWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.TokenWatch
	for _, w := range s.watches {
		if w.ChatID == chatID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) TokenWatches() []*models.TokenWatch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.TokenWatch, 0, len(s.watches))
	for _, w := range s.watches {
		out = append(out, w)
	}
	return out
}

func (s *Store) AddTokenWatch(ctx context.Context, watch *models.TokenWatch) error {
	s.mu.Lock()
	for _, existing := range s.watches {
		if existing.ChatID == watch.ChatID && existing.Contract == watch.Contract {
			s.mu.Unlock()
			return ErrDuplicateWatch
		}
	}
	s.watches[watch.ID] = watch
	s.mu.Unlock()
	return s.w.upsert(ctx, collTokenWatches, bson.M{"_id": watch.ID}, watch)
}

func (s *Store) RemoveTokenWatch(ctx context.Context, chatID int64, id string) error {
	s.mu.Lock()
	w, ok := s.watches[id]
	if !ok || w.ChatID != chatID {
		s.mu.Unlock()
		return ErrNotFound
	}
	delete(s.watches, id)
	s.mu.Unlock()
	return s.w.remove(ctx, collTokenWatches, bson.M{"_id": id})
}

func (s *Store) SetWatchAlert(ctx context.Context, chatID int64, id string, pct float64) error {
	s.mu.Lock()
	w, ok := s.watches[id]
	if !ok || w.ChatID != chatID {
		s.mu.Unlock()
		return ErrNotFound
	}
	w.AlertPct = pct
	s.mu.Unlock()
	return s.w.upsert(ctx, collTokenWatches, bson.M{"_id": id}, w)
}

// NFTContracts returns the contracts any chat watches as NFT collections;
// token transfers on these render as nft_transfer.
func (s *Store) NFTContracts() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{})
	for _, w := range s.watches {
		if w.Kind == models.TokenWatchNFT {
			out[w.Contract] = struct{}{}
		}
	}
	return out
}
