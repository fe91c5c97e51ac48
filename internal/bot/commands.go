package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/env"
)

var accessCodePattern = regexp.MustCompile(`^JT-[A-Z0-9]{12}$`)

// addressPattern accepts bech32/base58 BTC address forms, p2op addresses and
// raw identity hashes (with or without 0x). Deep validation happens at
// resolution time.
var addressPattern = regexp.MustCompile(`^(0x)?[A-Za-z0-9]{20,90}$`)

var cooldowns = struct {
	sync.Mutex
	lastUse map[string]time.Time
}{lastUse: make(map[string]time.Time)}

// checkCooldown enforces the per-(chat, command) rate limit. Returns the
// remaining wait when the command is still cooling down.
func checkCooldown(chatID int64, command string, cooldown time.Duration) (time.Duration, bool) {
	key := fmt.Sprintf("%d:%s", chatID, command)
	now := time.Now()
	cooldowns.Lock()
	defer cooldowns.Unlock()
	if last, ok := cooldowns.lastUse[key]; ok {
		if wait := cooldown - now.Sub(last); wait > 0 {
			return wait, false
		}
	}
	cooldowns.lastUse[key] = now
	return 0, true
}

func HandleCommand(update tgbotapi.Update) {
	command := update.Message.Command()
	args := strings.TrimSpace(update.Message.CommandArguments())
	chatID := update.Message.Chat.ID

	if appLogger == nil || deps == nil {
		fmt.Printf("ERROR: bot package not initialized when handling command '%s'\n", command)
		return
	}

	appLogger.Info("Processing command", "command", command, "chatID", chatID)

	switch command {
	case "start", "help":
		handleHelpCommand(chatID)
	case "auth":
		handleAuthCommand(chatID, args)
	case "redeem":
		handleRedeemCommand(chatID, args)
	case "track":
		handleTrackCommand(chatID, args)
	case "untrack":
		handleUntrackCommand(chatID, args)
	case "list":
		handleListCommand(chatID)
	case "balance":
		handleBalanceCommand(chatID, args)
	case "portfolio":
		handlePortfolioCommand(chatID)
	case "pool":
		handlePoolCommand(chatID, args)
	case "watchtoken":
		handleWatchTokenCommand(chatID, args)
	case "unwatchtoken":
		handleUnwatchTokenCommand(chatID, args)
	case "alerts":
		handleAlertsCommand(chatID, args)
	default:
		appLogger.Warn("Unknown command received", "command", command)
		SendReply(chatID, fmt.Sprintf("Unknown command: /%s", command))
	}
}

func handleHelpCommand(chatID int64) {
	helpText := `Available commands:
/track {address} [label] - Watch a wallet.
/untrack {id} - Stop watching a wallet.
/list - Show watched wallets.
/balance {address|id} - BTC + token balances.
/portfolio - Rollup across all watched wallets.
/pool {contract} - Live NativeSwap pool state.
/watchtoken {contract} [label] [nft] - Watch a token contract.
/unwatchtoken {id} - Stop watching a contract.
/alerts {id} {percent} - Set a price-alert threshold.
/redeem {code} - Redeem an access code.
/help - Show this help message.`
	SendReply(chatID, helpText)
}

// requireAccess gates the stateful commands behind the legacy password gate
// or a redeemed code.
func requireAccess(chatID int64) bool {
	if deps.Store.IsAuthorized(chatID) {
		return true
	}
	if env.BotPassword != "" {
		SendReply(chatID, "This chat is not authorized. Use /auth {password} or /redeem {code} first.")
	} else {
		SendReply(chatID, "This chat is not authorized. Redeem an access code with /redeem {code} first.")
	}
	return false
}

func handleAuthCommand(chatID int64, args string) {
	if env.BotPassword == "" {
		SendReply(chatID, "Password auth is disabled. Use /redeem {code} instead.")
		return
	}
	if args != env.BotPassword {
		appLogger.Warn("Failed password attempt", "chatID", chatID)
		SendReply(chatID, "Wrong password.")
		return
	}
	if err := deps.Store.Authorize(context.Background(), chatID); err != nil {
		appLogger.Error("Failed to authorize chat", "chatID", chatID, "error", err)
		SendReply(chatID, "An error occurred while authorizing this chat.")
		return
	}
	SendReply(chatID, "Chat authorized. Notifications still require an active subscription (/redeem).")
}

func handleRedeemCommand(chatID int64, args string) {
	code := strings.ToUpper(args)
	if !accessCodePattern.MatchString(code) {
		SendReply(chatID, "Usage: /redeem JT-XXXXXXXXXXXX")
		return
	}
	ctx := context.Background()
	paid, err := deps.Store.RedeemCode(ctx, code, chatID, time.Now().UTC())
	switch {
	case errors.Is(err, store.ErrCodeUnknown):
		SendReply(chatID, "Unknown access code.")
		return
	case errors.Is(err, store.ErrCodeExpired):
		SendReply(chatID, "This access code has expired.")
		return
	case errors.Is(err, store.ErrCodeUsed):
		SendReply(chatID, "This access code was already redeemed by another chat.")
		return
	case err != nil:
		appLogger.Error("Redeem failed", "chatID", chatID, "error", err)
		SendReply(chatID, "An error occurred while redeeming the code.")
		return
	}
	if err := deps.Store.Authorize(ctx, chatID); err != nil {
		appLogger.Error("Failed to authorize chat after redeem", "chatID", chatID, "error", err)
	}
	if paid != nil {
		SendReply(chatID, fmt.Sprintf("Code redeemed. Subscription active until %s.", paid.ExpiresAt.Format("2006-01-02")))
	} else {
		SendReply(chatID, "Code already redeemed by this chat.")
	}
}

func handleTrackCommand(chatID int64, args string) {
	if !requireAccess(chatID) {
		return
	}
	parts := strings.Fields(args)
	if len(parts) == 0 {
		SendReply(chatID, "Usage: /track {address} [label]")
		return
	}
	address := parts[0]
	label := strings.Join(parts[1:], " ")
	if !addressPattern.MatchString(address) {
		SendReply(chatID, "That does not look like a valid address.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Resolve first so the cross-format duplicate check can run before the
	// subscription exists. Resolution failure is not fatal; the pipeline
	// retries on its next tick.
	linkage, err := deps.Resolver.Resolve(ctx, address)
	if err != nil {
		appLogger.Warn("Identity resolution failed during track, deferring to pipeline", "address", address, "error", err)
		linkage = nil
	}
	if linkage != nil {
		if existing := deps.Store.FindChatSubscriptionByHash(chatID, linkage.MLDSAHash); existing != nil {
			SendReply(chatID, fmt.Sprintf("Already tracking this wallet as `%s` (%s).", existing.Address, existing.ID))
			return
		}
	}

	sub := &models.Subscription{
		ID:        newShortID(),
		ChatID:    chatID,
		Address:   address,
		Label:     label,
		CreatedAt: time.Now().UTC(),
		Linkage:   linkage,
	}
	err = deps.Store.AddSubscription(ctx, sub, deps.Limits.MaxWalletsPerUser)
	switch {
	case errors.Is(err, store.ErrDuplicateSubscription):
		SendReply(chatID, "This chat already tracks that address.")
		return
	case errors.Is(err, store.ErrWalletLimit):
		SendReply(chatID, fmt.Sprintf("Wallet limit reached (%d per chat).", deps.Limits.MaxWalletsPerUser))
		return
	case err != nil:
		appLogger.Error("Track failed", "chatID", chatID, "address", address, "error", err)
		SendReply(chatID, "An error occurred while adding the wallet.")
		return
	}

	if linkage != nil {
		go deps.History.Backfill(address, linkage.MLDSAHash)
	}
	SendReply(chatID, fmt.Sprintf("Now tracking `%s` (id: %s).", address, sub.ID))
	appLogger.Info("Wallet tracked", "chatID", chatID, "address", address, "id", sub.ID)
}

func handleUntrackCommand(chatID int64, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		SendReply(chatID, "Usage: /untrack {id}")
		return
	}
	err := deps.Store.RemoveSubscription(context.Background(), chatID, id)
	if errors.Is(err, store.ErrNotFound) {
		SendReply(chatID, fmt.Sprintf("No watched wallet with id `%s`.", id))
		return
	}
	if err != nil {
		appLogger.Error("Untrack failed", "chatID", chatID, "id", id, "error", err)
		SendReply(chatID, "An error occurred while removing the wallet.")
		return
	}
	SendReply(chatID, fmt.Sprintf("Stopped tracking `%s`.", id))
}

func handleListCommand(chatID int64) {
	subs := deps.Store.SubscriptionsForChat(chatID)
	if len(subs) == 0 {
		SendReply(chatID, "No watched wallets. Add one with /track {address}.")
		return
	}
	var sb strings.Builder
	sb.WriteString("*Watched wallets:*\n")
	for _, sub := range subs {
		label := sub.Label
		if label == "" {
			label = "-"
		}
		resolved := ""
		if sub.Linkage != nil {
			resolved = " ✅"
		}
		sb.WriteString(fmt.Sprintf("`%s` %s (%s)%s\n", sub.ID, sub.Address, label, resolved))
	}
	watches := deps.Store.TokenWatchesForChat(chatID)
	if len(watches) > 0 {
		sb.WriteString("*Watched tokens:*\n")
		for _, w := range watches {
			sb.WriteString(fmt.Sprintf("`%s` %s (%s, alerts: %.1f%%)\n", w.ID, w.Contract, w.Kind, w.AlertPct))
		}
	}
	SendReply(chatID, sb.String())
}

func handleBalanceCommand(chatID int64, args string) {
	if !requireAccess(chatID) {
		return
	}
	cooldown := time.Duration(deps.Limits.BalanceCooldownSec) * time.Second
	if wait, ok := checkCooldown(chatID, "balance", cooldown); !ok {
		SendReply(chatID, fmt.Sprintf("Slow down. Try again in %ds.", int(wait.Seconds())+1))
		return
	}
	target := strings.TrimSpace(args)
	if target == "" {
		SendReply(chatID, "Usage: /balance {address|id}")
		return
	}
	if sub := deps.Store.SubscriptionByID(chatID, target); sub != nil {
		target = sub.Address
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	balance, err := deps.RPC.GetBalance(ctx, target, true)
	if err != nil {
		appLogger.Warn("Balance lookup failed", "address", target, "error", err)
		SendReply(chatID, "Could not fetch the balance right now. Try again later.")
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Balance for* `%s`\nBTC: %s\n", target, formatSatsBTC(balance)))

	seen := deps.Store.SeenContracts(target)
	tokens, err := deps.Indexer.Balances(ctx, target)
	if err != nil {
		appLogger.Debug("Token balance lookup failed", "address", target, "error", err)
	} else {
		for _, tb := range tokens {
			if len(seen) > 0 {
				if _, ok := seen[tb.Contract]; !ok {
					continue
				}
			}
			symbol := tb.Symbol
			if symbol == "" {
				symbol = shortContract(tb.Contract)
			}
			sb.WriteString(fmt.Sprintf("%s: %s\n", symbol, tb.Balance))
		}
	}
	SendReply(chatID, sb.String())
}

func handlePortfolioCommand(chatID int64) {
	if !requireAccess(chatID) {
		return
	}
	cooldown := time.Duration(deps.Limits.PortfolioCooldownSec) * time.Second
	if wait, ok := checkCooldown(chatID, "portfolio", cooldown); !ok {
		SendReply(chatID, fmt.Sprintf("Slow down. Try again in %ds.", int(wait.Seconds())+1))
		return
	}
	subs := deps.Store.SubscriptionsForChat(chatID)
	if len(subs) == 0 {
		SendReply(chatID, "No watched wallets. Add one with /track {address}.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	var sb strings.Builder
	sb.WriteString("*Portfolio*\n")
	for _, sub := range subs {
		name := sub.Label
		if name == "" {
			name = shortContract(sub.Address)
		}
		balance, err := deps.RPC.GetBalance(ctx, sub.Address, true)
		if err != nil {
			sb.WriteString(fmt.Sprintf("%s: n/a\n", name))
			continue
		}
		sb.WriteString(fmt.Sprintf("%s: %s\n", name, formatSatsBTC(balance)))

		for contract := range deps.Store.SeenContracts(sub.Address) {
			info := deps.Prices.Get(ctx, contract)
			if info == nil || info.Price == "" {
				continue
			}
			sb.WriteString(fmt.Sprintf("  %s price: %s\n", shortContract(contract), info.Price))
		}
	}
	SendReply(chatID, sb.String())
}

func handlePoolCommand(chatID int64, args string) {
	if !requireAccess(chatID) {
		return
	}
	contract := strings.TrimSpace(args)
	if contract == "" {
		SendReply(chatID, "Usage: /pool {contract}")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	listings, err := deps.Indexer.Listings(ctx, contract)
	if err != nil {
		appLogger.Warn("Pool lookup failed", "contract", contract, "error", err)
		SendReply(chatID, "Could not fetch pool state right now. Try again later.")
		return
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Pool* `%s`\nPriority providers: %d\nStandard providers: %d\n",
		contract, listings.PriorityCount, listings.StandardCount))
	if listings.TotalLiquidity != "" {
		sb.WriteString(fmt.Sprintf("Total liquidity: %s\n", listings.TotalLiquidity))
	}
	if info := deps.Prices.Get(ctx, contract); info != nil {
		if info.Price != "" {
			sb.WriteString(fmt.Sprintf("Price: %s\n", info.Price))
		}
		if info.VirtualBTC != "" && info.VirtualToken != "" {
			sb.WriteString(fmt.Sprintf("Reserves: %s sat / %s tokens\n", info.VirtualBTC, info.VirtualToken))
		}
	}
	SendReply(chatID, sb.String())
}

func handleWatchTokenCommand(chatID int64, args string) {
	if !requireAccess(chatID) {
		return
	}
	parts := strings.Fields(args)
	if len(parts) == 0 {
		SendReply(chatID, "Usage: /watchtoken {contract} [label] [nft]")
		return
	}
	contract := parts[0]
	kind := models.TokenWatchFungible
	var labelParts []string
	for _, p := range parts[1:] {
		if strings.EqualFold(p, "nft") {
			kind = models.TokenWatchNFT
			continue
		}
		labelParts = append(labelParts, p)
	}

	watch := &models.TokenWatch{
		ID:       newShortID(),
		ChatID:   chatID,
		Contract: contract,
		Label:    strings.Join(labelParts, " "),
		Kind:     kind,
	}
	err := deps.Store.AddTokenWatch(context.Background(), watch)
	if errors.Is(err, store.ErrDuplicateWatch) {
		SendReply(chatID, "This chat already watches that contract.")
		return
	}
	if err != nil {
		appLogger.Error("Watchtoken failed", "chatID", chatID, "contract", contract, "error", err)
		SendReply(chatID, "An error occurred while adding the token watch.")
		return
	}
	SendReply(chatID, fmt.Sprintf("Now watching `%s` (id: %s, kind: %s). Set alerts with /alerts %s {percent}.",
		contract, watch.ID, kind, watch.ID))
}

func handleUnwatchTokenCommand(chatID int64, args string) {
	id := strings.TrimSpace(args)
	if id == "" {
		SendReply(chatID, "Usage: /unwatchtoken {id}")
		return
	}
	err := deps.Store.RemoveTokenWatch(context.Background(), chatID, id)
	if errors.Is(err, store.ErrNotFound) {
		SendReply(chatID, fmt.Sprintf("No token watch with id `%s`.", id))
		return
	}
	if err != nil {
		appLogger.Error("Unwatchtoken failed", "chatID", chatID, "id", id, "error", err)
		SendReply(chatID, "An error occurred while removing the token watch.")
		return
	}
	SendReply(chatID, fmt.Sprintf("Stopped watching `%s`.", id))
}

func handleAlertsCommand(chatID int64, args string) {
	parts := strings.Fields(args)
	if len(parts) != 2 {
		SendReply(chatID, "Usage: /alerts {id} {percent} (0 disables)")
		return
	}
	pct, err := strconv.ParseFloat(parts[1], 64)
	if err != nil || pct < 0 {
		SendReply(chatID, "Percent must be a non-negative number.")
		return
	}
	err = deps.Store.SetWatchAlert(context.Background(), chatID, parts[0], pct)
	if errors.Is(err, store.ErrNotFound) {
		SendReply(chatID, fmt.Sprintf("No token watch with id `%s`.", parts[0]))
		return
	}
	if err != nil {
		appLogger.Error("Alerts update failed", "chatID", chatID, "id", parts[0], "error", err)
		SendReply(chatID, "An error occurred while updating the alert threshold.")
		return
	}
	if pct == 0 {
		SendReply(chatID, "Price alerts disabled for this watch.")
	} else {
		SendReply(chatID, fmt.Sprintf("Price alerts set at %.1f%%.", pct))
	}
}

func newShortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func formatSatsBTC(sats fmt.Stringer) string {
	d, err := decimal.NewFromString(sats.String())
	if err != nil {
		return sats.String() + " sat"
	}
	return d.Shift(-8).String() + " BTC"
}

func shortContract(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
