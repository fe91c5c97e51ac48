package models

import (
	"strconv"
	"strings"
	"time"
)

// Subscription is one chat's watch on one primary address. The address is
// stored exactly as the user supplied it; notifications attribute to this
// form, never to a linked alias.
type Subscription struct {
	ID        string           `bson:"_id"`
	ChatID    int64            `bson:"chatId"`
	Address   string           `bson:"address"`
	Label     string           `bson:"label,omitempty"`
	CreatedAt time.Time        `bson:"createdAt"`
	Linkage   *IdentityLinkage `bson:"linkage,omitempty"`
}

// IdentityLinkage holds the chain-level identity hash and every address form
// derivable from it. Each form is optional; some derivations require the
// original public key, which may not be on chain.
type IdentityLinkage struct {
	MLDSAHash     string `bson:"mldsaHash"`
	TweakedPubkey string `bson:"tweakedPubkey,omitempty"`
	P2OP          string `bson:"p2op,omitempty"`
	P2TR          string `bson:"p2tr,omitempty"`
	P2WPKH        string `bson:"p2wpkh,omitempty"`
	P2PKH         string `bson:"p2pkh,omitempty"`
	CSV1          string `bson:"csv1,omitempty"`
}

// Aliases returns every non-empty linked address form.
func (l *IdentityLinkage) Aliases() []string {
	var out []string
	for _, addr := range []string{l.P2OP, l.P2TR, l.P2WPKH, l.P2PKH, l.CSV1} {
		if addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// NormalizeHash lowercases a hex hash and strips an optional 0x prefix so
// identity comparisons are format-insensitive.
func NormalizeHash(h string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h)), "0x")
}

// StoredUTXO is one unspent output owned by a tracked wallet. Address is the
// canonical primary of the owning subscription, regardless of which linked
// form actually received the output. Value is a decimal string so satoshi
// amounts stay arbitrary precision in the store.
type StoredUTXO struct {
	TxID    string `bson:"txid"`
	Vout    uint32 `bson:"vout"`
	Value   string `bson:"value"`
	Address string `bson:"address"`
}

// Key is the global identity of the output.
func (u *StoredUTXO) Key() string {
	return UTXOKey(u.TxID, u.Vout)
}

func UTXOKey(txid string, vout uint32) string {
	return txid + ":" + strconv.FormatUint(uint64(vout), 10)
}

// AuthorizedChat passed the legacy password gate or redeemed a code.
// Authorization is necessary but not sufficient for notifications; a live
// paid subscription is the gating condition.
type AuthorizedChat struct {
	ChatID       int64     `bson:"_id"`
	AuthorizedAt time.Time `bson:"authorizedAt"`
}

// PaidSubscription gates notification delivery for a chat.
type PaidSubscription struct {
	ChatID    int64     `bson:"_id"`
	ExpiresAt time.Time `bson:"expiresAt"`
	Code      string    `bson:"code,omitempty"`
	PaidBy    string    `bson:"paidBy,omitempty"`
}

// Live reports whether the subscription currently admits notifications.
func (p *PaidSubscription) Live(now time.Time) bool {
	return now.Before(p.ExpiresAt)
}

// AccessCode is a structured token created by the payment pipeline and
// consumed by redeem. A code is redeemable at most once; redemption is
// idempotent with respect to the caller chat.
type AccessCode struct {
	Code         string    `bson:"_id"`
	Redeemed     bool      `bson:"redeemed"`
	RedeemedBy   int64     `bson:"redeemedBy,omitempty"`
	ExpiresAt    time.Time `bson:"expiresAt"`
	DurationDays int       `bson:"durationDays"`
	FundingTx    string    `bson:"fundingTx,omitempty"`
}

// TokenWatch is a chat-level watch on a specific contract.
type TokenWatch struct {
	ID              string  `bson:"_id"`
	ChatID          int64   `bson:"chatId"`
	Contract        string  `bson:"contract"`
	Label           string  `bson:"label,omitempty"`
	Kind            string  `bson:"kind"` // "fungible" or "nft"
	AlertPct        float64 `bson:"alertPct"`        // 0 disables price alerts
	MinReserveSats  int64   `bson:"minReserveSats"`  // 0 disables reservation floor
}

const (
	TokenWatchFungible = "fungible"
	TokenWatchNFT      = "nft"
)

// SeenContracts records, per primary address, every contract ever observed
// interacting with that identity. It bounds which contract balances are
// reported. Whether a contract renders as an NFT collection is decided by
// kind=nft token watches, not by this set.
type SeenContracts struct {
	Address   string   `bson:"_id"`
	Contracts []string `bson:"contracts"`
}

// StateEntry is a generic persisted key, e.g. the scan cursor and the
// per-primary seeded/fully-scanned flags.
type StateEntry struct {
	Key   string `bson:"_id"`
	Value string `bson:"value"`
}

const (
	StateKeyCursor       = "cursor"
	StateKeySeedPrefix   = "seeded:"
	StateKeyScannedPrefix = "scanned:"
)
