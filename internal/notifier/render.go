package notifier

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/trypto13/jeet-tracker/internal/events"
)

// renderGroup turns one (wallet, tx) event group into a message body,
// collapsing the recognized composite patterns into a single summary.
func renderGroup(group []events.WalletEvent) string {
	var swap *events.WalletEvent
	var btcSent, btcReceived, tokenIn, tokenOut, others []events.WalletEvent

	for i := range group {
		ev := &group[i]
		switch ev.Kind {
		case events.KindSwapExecuted:
			if swap == nil {
				swap = ev
			}
		case events.KindBTCSent:
			btcSent = append(btcSent, *ev)
		case events.KindBTCReceived:
			btcReceived = append(btcReceived, *ev)
		case events.KindToken, events.KindNFTTransfer:
			if ev.Direction == events.DirectionIn {
				tokenIn = append(tokenIn, *ev)
			} else {
				tokenOut = append(tokenOut, *ev)
			}
		default:
			others = append(others, *ev)
		}
	}

	var lines []string

	switch {
	case swap != nil:
		lines = append(lines, "🔄 *Swap Executed*")
		lines = append(lines, fmt.Sprintf("BTC Spent: %s", formatSats(swap.Satoshis)))
		lines = append(lines, fmt.Sprintf("Received: %s (%s)", formatTokens(swap.TokenAmount), shortAddr(swap.Contract)))
		for _, ev := range btcReceived {
			lines = append(lines, fmt.Sprintf("Change: %s", formatSats(ev.Satoshis)))
		}

	case len(tokenIn) > 0 && len(tokenOut) > 0:
		lines = append(lines, "🔁 *Token Swap*")
		for _, ev := range tokenOut {
			lines = append(lines, fmt.Sprintf("Sent: %s (%s)", formatTokens(ev.TokenAmount), shortAddr(ev.Contract)))
		}
		for _, ev := range tokenIn {
			lines = append(lines, fmt.Sprintf("Received: %s (%s)", formatTokens(ev.TokenAmount), shortAddr(ev.Contract)))
		}

	case len(btcSent) > 0 && btcSent[0].Counterparty == "":
		lines = append(lines, "🔁 *Internal Transfer*")
		input := sumSats(btcSent)
		change := sumSats(btcReceived)
		lines = append(lines, fmt.Sprintf("Moved: %s", formatSats(change)))
		if fee := new(big.Int).Sub(input, change); fee.Sign() > 0 {
			lines = append(lines, fmt.Sprintf("Fee: %s", formatSats(fee)))
		}

	case len(btcSent) > 0:
		lines = append(lines, "📤 *BTC Sent*")
		input := sumSats(btcSent)
		change := sumSats(btcReceived)
		recipient := btcSent[0].RecipientAmount
		if recipient != nil {
			lines = append(lines, fmt.Sprintf("Amount: %s", formatSats(recipient)))
		} else {
			lines = append(lines, fmt.Sprintf("Amount: %s", formatSats(input)))
		}
		lines = append(lines, fmt.Sprintf("To: `%s`", btcSent[0].Counterparty))
		if change.Sign() > 0 {
			lines = append(lines, fmt.Sprintf("Change: %s", formatSats(change)))
		}
		if recipient != nil {
			if fee := new(big.Int).Sub(new(big.Int).Sub(input, recipient), change); fee.Sign() > 0 {
				lines = append(lines, fmt.Sprintf("Fee: %s", formatSats(fee)))
			}
		}

	default:
		for _, ev := range btcReceived {
			lines = append(lines, fmt.Sprintf("📥 *BTC Received*: %s", formatSats(ev.Satoshis)))
		}
		for _, ev := range tokenIn {
			lines = append(lines, renderTokenLine(ev))
		}
		for _, ev := range tokenOut {
			lines = append(lines, renderTokenLine(ev))
		}
	}

	for _, ev := range others {
		lines = append(lines, renderEventLine(ev))
	}
	// Token legs riding along a swap are not rendered on their own; the swap
	// summary above covers them. A group that renders no line yields "".
	if swap == nil && len(lines) == 0 {
		return ""
	}
	return strings.Join(lines, "\n")
}

func renderTokenLine(ev events.WalletEvent) string {
	verb := "Sent"
	icon := "🪙"
	if ev.Direction == events.DirectionIn {
		verb = "Received"
	}
	if ev.Kind == events.KindNFTTransfer {
		icon = "🖼"
	}
	return fmt.Sprintf("%s %s %s (%s)", icon, verb, formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
}

func renderEventLine(ev events.WalletEvent) string {
	switch ev.Kind {
	case events.KindLiquidityReserved:
		return fmt.Sprintf("💧 *Liquidity Reserved* (%s): %s for %s", ev.Role, formatSats(ev.Satoshis), formatTokens(ev.TokenAmount))
	case events.KindProviderConsumed:
		return fmt.Sprintf("💧 *Provider Consumed* (%s): %s for %s", ev.Role, formatSats(ev.Satoshis), formatTokens(ev.TokenAmount))
	case events.KindLiquidityAdded:
		return fmt.Sprintf("➕ *Liquidity Added*: %s + %s (%s)", formatSats(ev.Satoshis), formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
	case events.KindLiquidityRemoved:
		return fmt.Sprintf("➖ *Liquidity Removed*: %s + %s (%s)", formatSats(ev.Satoshis), formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
	case events.KindStaked:
		return fmt.Sprintf("🔒 *Staked*: %s (%s)", formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
	case events.KindUnstaked:
		return fmt.Sprintf("🔓 *Unstaked*: %s (%s)", formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
	case events.KindRewardsClaimed:
		return fmt.Sprintf("🎁 *Rewards Claimed*: %s (%s)", formatTokens(ev.TokenAmount), shortAddr(ev.Contract))
	}
	return fmt.Sprintf("%s on %s", ev.Kind, shortAddr(ev.Contract))
}

func sumSats(evts []events.WalletEvent) *big.Int {
	total := new(big.Int)
	for _, ev := range evts {
		if ev.Satoshis != nil {
			total.Add(total, ev.Satoshis)
		}
	}
	return total
}

// formatSats renders a satoshi amount as BTC with trailing zeros trimmed.
func formatSats(sats *big.Int) string {
	if sats == nil {
		return "0 BTC"
	}
	btc := decimal.NewFromBigInt(sats, -8)
	return btc.String() + " BTC"
}

func formatTokens(amount decimal.Decimal) string {
	return amount.String()
}

func shortAddr(addr string) string {
	if len(addr) <= 14 {
		return addr
	}
	return addr[:8] + "…" + addr[len(addr)-4:]
}
