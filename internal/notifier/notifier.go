package notifier

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/trypto13/jeet-tracker/internal/events"
	"github.com/trypto13/jeet-tracker/internal/models"
	"github.com/trypto13/jeet-tracker/internal/store"
	"github.com/trypto13/jeet-tracker/shared/env"
	"github.com/trypto13/jeet-tracker/shared/logger"
)

// Notifier renders event groups into chat messages and fans them out to
// subscribed chats behind the paid-subscription gate.
type Notifier struct {
	store     *store.Store
	messenger models.Messenger
	appLogger *logger.Logger

	mu            sync.Mutex
	expiryNotices map[int64]struct{}
}

func New(st *store.Store, messenger models.Messenger, appLogger *logger.Logger) *Notifier {
	return &Notifier{
		store:         st,
		messenger:     messenger,
		appLogger:     appLogger,
		expiryNotices: make(map[int64]struct{}),
	}
}

type groupKey struct {
	address string
	txHash  string
}

// Dispatch groups events by (wallet, tx) and sends one message per group to
// every chat tracking the wallet. Delivery failures are absorbed: a chat
// that cannot be reached does not fail the tick.
func (n *Notifier) Dispatch(evts []events.WalletEvent) {
	groups := make(map[groupKey][]events.WalletEvent)
	var order []groupKey
	for _, ev := range evts {
		key := groupKey{address: ev.Address, txHash: ev.TxHash}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ev)
	}
	sort.SliceStable(order, func(i, j int) bool {
		return minHeight(groups[order[i]]) < minHeight(groups[order[j]])
	})

	for _, key := range order {
		body := renderGroup(groups[key])
		if body == "" {
			continue
		}
		txLine := fmt.Sprintf("`%s`", key.txHash)
		if env.MempoolURL != "" {
			txLine = fmt.Sprintf("[%s](%s/tx/%s)", shortAddr(key.txHash), strings.TrimRight(env.MempoolURL, "/"), key.txHash)
		}
		for _, chatID := range n.store.ChatsTracking(key.address) {
			if !n.gate(chatID) {
				continue
			}
			text := fmt.Sprintf("👛 *%s*\n%s\n%s", n.walletLabel(chatID, key.address), body, txLine)
			if err := n.messenger.SendMessage(chatID, text); err != nil {
				n.appLogger.Warn("Failed to deliver wallet notification", "chatID", chatID, "tx", key.txHash, "error", err)
			}
		}
	}
}

func minHeight(group []events.WalletEvent) int64 {
	min := group[0].BlockHeight
	for _, ev := range group[1:] {
		if ev.BlockHeight < min {
			min = ev.BlockHeight
		}
	}
	return min
}

// DispatchPriceAlerts sends price-change alerts to watch owners.
func (n *Notifier) DispatchPriceAlerts(alerts []events.PriceAlert) {
	for _, alert := range alerts {
		if !n.gate(alert.ChatID) {
			continue
		}
		direction := "📈"
		if alert.ChangePct < 0 {
			direction = "📉"
		}
		label := alert.Label
		if label == "" {
			label = shortAddr(alert.Contract)
		}
		text := fmt.Sprintf("%s *Price Alert: %s*\nChange: %.2f%%\nPrice: %s\n`%s`",
			direction, label, alert.ChangePct, alert.Price.String(), alert.Contract)
		if err := n.messenger.SendMessage(alert.ChatID, text); err != nil {
			n.appLogger.Warn("Failed to deliver price alert", "chatID", alert.ChatID, "contract", alert.Contract, "error", err)
		}
	}
}

// DispatchReservationNotices sends reservation-floor notices to watch owners.
func (n *Notifier) DispatchReservationNotices(notices []events.ReservationNotice) {
	for _, notice := range notices {
		if !n.gate(notice.ChatID) {
			continue
		}
		label := notice.Label
		if label == "" {
			label = shortAddr(notice.Contract)
		}
		text := fmt.Sprintf("💧 *Large Reservation: %s*\nBTC: %s\nTokens: %s\n`%s`",
			label, formatSats(notice.Satoshis), formatTokens(notice.TokenAmount), notice.Contract)
		if err := n.messenger.SendMessage(notice.ChatID, text); err != nil {
			n.appLogger.Warn("Failed to deliver reservation notice", "chatID", notice.ChatID, "contract", notice.Contract, "error", err)
		}
	}
}

// gate enforces the paid-subscription check before any outbound message.
// An expired chat receives a one-time-per-session notice and is muted until
// it renews.
func (n *Notifier) gate(chatID int64) bool {
	if n.store.HasActiveSubscription(chatID, time.Now().UTC()) {
		return true
	}
	n.mu.Lock()
	_, alreadyNotified := n.expiryNotices[chatID]
	if !alreadyNotified {
		n.expiryNotices[chatID] = struct{}{}
	}
	n.mu.Unlock()
	if !alreadyNotified {
		text := "⏰ Your subscription has expired. Notifications are paused until you redeem a new code with /redeem."
		if err := n.messenger.SendMessage(chatID, text); err != nil {
			n.appLogger.Warn("Failed to deliver expiry notice", "chatID", chatID, "error", err)
		}
	}
	return false
}

// ResetExpiryNotices clears the once-per-session expiry bookkeeping, e.g.
// after the daily sweep, so renewed-then-lapsed chats get a fresh notice.
func (n *Notifier) ResetExpiryNotices() {
	n.mu.Lock()
	n.expiryNotices = make(map[int64]struct{})
	n.mu.Unlock()
}

func (n *Notifier) walletLabel(chatID int64, address string) string {
	for _, sub := range n.store.SubscriptionsForChat(chatID) {
		if sub.Address == address {
			if sub.Label != "" {
				return sub.Label
			}
			break
		}
	}
	return shortAddr(address)
}
