package alert

import (
	"fmt"
	"strings"

	"vaultwatch/internal/vault"
)

const (
	plainRule = "----------------------------------------"
	plainBar  = "========================================"
)

var mdSeparator = esc(strings.Repeat("_", 32))

// VaultOptions adds the thresholds quoted in the vault update title and
// summary.
type VaultOptions struct {
	Options
	MinTVL           float64
	MinAPR           float64
	MinPositionCount int
}

// VaultUpdates renders one diff result. A result without deltas yields an
// empty batch whose Plain text says so.
func VaultUpdates(res vault.Result, opts VaultOptions) Batch {
	if len(res.Deltas) == 0 {
		return Batch{Kind: KindVaultUpdates, Plain: "No vault updates found."}
	}

	heading := fmt.Sprintf("Hyperliquid Vaults Updates (TVL >= %s USD & APR >= %s%%):",
		money(opts.MinTVL), money(opts.MinAPR))

	var plain strings.Builder
	plain.WriteString(plainBar + "\n" + heading + "\n" + plainBar)

	blocks := make([]string, 0, len(res.Deltas)*3+1)
	for _, d := range res.Deltas {
		fmt.Fprintf(&plain, "\n📌 Vault: %s\n🔗 Address: %s\n💰 TVL: %s USD\n📈 APR: %s%%\n%s",
			d.Name, d.Address, money(d.TVL), money(d.APR), plainRule)
		blocks = append(blocks, fmt.Sprintf("*📌 Vault: %s*\n🔗 Address: %s\n💰 TVL: %s USD\n📈 APR: %s%%",
			esc(d.Name), code(d.Address), esc(money(d.TVL)), esc(money(d.APR))))

		for _, coin := range d.Coins() {
			p := describe(d.Positions[coin])
			fmt.Fprintf(&plain, "\n%s Coin: %s\n   - Leverage: %s → %s\n   - Direction: %s → %s\n%s",
				p.icon, coin, p.levBefore, p.levAfter, p.dirBefore, p.dirAfter, plainRule)
			blocks = append(blocks, fmt.Sprintf("\n%s *Coin: %s*\n• Leverage: %s → %s\n• Direction: %s → %s",
				p.icon, esc(coin), esc(p.levBefore), esc(p.levAfter), esc(p.dirBefore), esc(p.dirAfter)))
		}
		blocks = append(blocks, mdSeparator+"\n")
	}

	sumPlain, sumMD := summary(res, opts.MinPositionCount)
	plain.WriteString(sumPlain)
	blocks = append(blocks, sumMD, mdSeparator+"\n")

	return newBatch(KindVaultUpdates, bold(heading)+"\n", blocks, plain.String(), opts.limit())
}

type positionLine struct {
	icon                string
	levBefore, levAfter string
	dirBefore, dirAfter string
}

func describe(d vault.PositionDelta) positionLine {
	p := positionLine{levBefore: Opened, dirBefore: Opened, levAfter: Closed, dirAfter: Closed}
	if d.Before != nil {
		p.levBefore = num(d.Before.Leverage)
		p.dirBefore = string(d.Before.Direction)
	}
	if d.After != nil {
		p.levAfter = num(d.After.Leverage)
		p.dirAfter = string(d.After.Direction)
	}
	p.icon = Icon(p.dirBefore, p.dirAfter)
	return p
}

func summary(res vault.Result, minCount int) (string, string) {
	title := fmt.Sprintf("Summary of Long/Short Positions (Count >= %d):", minCount)

	var plain, md strings.Builder
	fmt.Fprintf(&plain, "\n📊 %s\n\nTotal No. of Vaults: %d", title, res.QualifyingEntities)
	fmt.Fprintf(&md, "\n📊 %s\n\n*Total No\\. of Vaults:* %d", bold(title), res.QualifyingEntities)

	for _, dir := range []vault.Direction{vault.Long, vault.Short} {
		icon, total := IconUp, res.TotalLong
		if dir == vault.Short {
			icon, total = IconDown, res.TotalShort
		}
		head := fmt.Sprintf("%s Positions (Total Positions Value = %s USD):", dir, money(total))
		plain.WriteString("\n" + head)
		md.WriteString("\n\n" + bold(head))
		for _, cc := range res.Counter.Sorted(dir) {
			if cc.Count < minCount {
				continue
			}
			line := fmt.Sprintf("%s %s: %d time(s)", icon, cc.Coin, cc.Count)
			plain.WriteString("\n" + line)
			md.WriteString("\n" + esc(line))
		}
	}
	plain.WriteString("\n" + plainRule)
	return plain.String(), md.String()
}
