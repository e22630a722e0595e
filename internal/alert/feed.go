package alert

import (
	"fmt"
	"strings"

	"vaultwatch/internal/hyperliquid"
)

const timeLayout = "2006-01-02 15:04:05"

// FeedOptions identifies the tracked account quoted in feed alerts.
type FeedOptions struct {
	Options
	Address string
}

// Fills renders one fills message. Within the message a fill whose
// direction repeats the previous alerted direction for the same coin is
// dropped, so each direction change per coin gets its own block: fills of
// Long, Long, Short, Long on ETH render three blocks, not one. Returns an
// empty batch when nothing is left to say.
func Fills(fills []hyperliquid.Fill, opts FeedOptions) Batch {
	const title = "🚨 Trade Filled Alert 🚨"

	var (
		plain  strings.Builder
		blocks []string
		last   = map[string]string{}
	)
	plain.WriteString(title)
	for _, f := range fills {
		dir := strings.ToLower(strings.TrimSpace(f.Dir))
		if prev, ok := last[f.Coin]; ok && prev == dir {
			continue
		}
		last[f.Coin] = dir

		when := f.Timestamp().In(opts.loc()).Format(timeLayout)
		icon := FillIcon(f.Dir)
		fmt.Fprintf(&plain, "\nTracked Address: %s\nTime: %s\nCoin: %s\nPrice: $%s\nSize (in USD): $%s\n%s Direction: %s\n",
			opts.Address, when, f.Coin, money(f.Px.Float()), money(f.SizeUSD()), icon, f.Dir)
		blocks = append(blocks, fmt.Sprintf(
			"🔗 *Tracked Address*: %s\n⏰ *Time*: %s\n💰 *Coin*: %s\n📊 *Price*: $%s\n💵 *Size \\(in USD\\)*: $%s\n%s *Direction*: %s\n",
			code(opts.Address), esc(when), esc(f.Coin), esc(money(f.Px.Float())), esc(money(f.SizeUSD())), icon, esc(f.Dir)))
	}
	if len(blocks) == 0 {
		return Batch{Kind: KindFills}
	}
	return newBatch(KindFills, bold(title)+"\n", blocks, plain.String(), opts.limit())
}

// OrderUpdates renders one order updates message.
func OrderUpdates(updates []hyperliquid.OrderUpdate, opts FeedOptions) Batch {
	const title = "🚨 Order Updates Alert 🚨"

	var (
		plain  strings.Builder
		blocks []string
	)
	plain.WriteString(title)
	for _, u := range updates {
		o := u.Order
		when := o.Time().In(opts.loc()).Format(timeLayout)
		dir := o.Direction()
		status := capitalize(u.Status)
		fmt.Fprintf(&plain, "\nTracked Address: %s\nTime: %s\nCoin: %s\nLimit Price: $%s\nSize (in USD): $%s\n%s Direction: %s\nOrder Status: %s\n",
			opts.Address, when, o.Coin, money(o.LimitPx.Float()), money(o.SizeUSD()), FillIcon(dir), dir, status)
		blocks = append(blocks, fmt.Sprintf(
			"🔗 *Tracked Address*: %s\n⏰ *Time*: %s\n💰 *Coin*: %s\n📊 *Limit Price*: $%s\n💵 *Size \\(in USD\\)*: $%s\n%s *Direction*: %s\n🛒 *Order Status*: %s\n",
			code(opts.Address), esc(when), esc(o.Coin), esc(money(o.LimitPx.Float())), esc(money(o.SizeUSD())), FillIcon(dir), esc(dir), esc(status)))
	}
	if len(blocks) == 0 {
		return Batch{Kind: KindOrders}
	}
	return newBatch(KindOrders, bold(title)+"\n", blocks, plain.String(), opts.limit())
}

// capitalize upper-cases the first letter and lower-cases the rest.
func capitalize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	rs := []rune(strings.ToLower(s))
	rs[0] = []rune(strings.ToUpper(string(rs[0])))[0]
	return string(rs)
}
