package vault

import (
	"errors"
	"math"
	"sort"
)

// ErrNoData signals an empty current observation. Callers must abort the
// cycle and keep the previous snapshot.
var ErrNoData = errors.New("vault: no data in current state")

// Result is the outcome of one Diff.
type Result struct {
	// Deltas are filtered to entities with APR >= minApr, sorted by TVL
	// desc then address asc.
	Deltas  []EntityDelta
	Counter DirectionCounter
	// Totals sum PositionValue over every current position, by direction.
	TotalLong  float64
	TotalShort float64
	// QualifyingEntities counts current entities with APR >= minApr.
	QualifyingEntities int
}

// Diff compares two observations. A position is CHANGED only when leverage
// or direction differs; size, value and pnl drift is ignored.
func Diff(prev, cur StateTable, minApr float64) (Result, error) {
	if len(cur) == 0 {
		return Result{}, ErrNoData
	}

	res := Result{Counter: NewDirectionCounter()}
	var deltas []EntityDelta

	for _, addr := range sortedAddrs(cur) {
		ent := cur[addr]
		qualifies := finite(ent.APR) >= minApr
		if qualifies {
			res.QualifyingEntities++
		}

		var before map[string]PositionRecord
		if p, ok := prev[addr]; ok {
			before = p.Positions
		}

		changed := map[string]PositionDelta{}
		for coin, raw := range ent.Positions {
			after := normalize(coin, raw)
			if after.Direction == Short {
				res.TotalShort += after.PositionValue
			} else {
				res.TotalLong += after.PositionValue
			}
			if qualifies {
				res.Counter.Add(after.Direction, coin)
			}

			old, had := before[coin]
			if !had {
				a := after
				changed[coin] = PositionDelta{Coin: coin, After: &a}
				continue
			}
			old = normalize(coin, old)
			if old.Leverage != after.Leverage || old.Direction != after.Direction {
				b, a := old, after
				changed[coin] = PositionDelta{Coin: coin, Before: &b, After: &a}
			}
		}
		for coin, raw := range before {
			if _, still := ent.Positions[coin]; still {
				continue
			}
			b := normalize(coin, raw)
			changed[coin] = PositionDelta{Coin: coin, Before: &b}
		}

		if len(changed) > 0 {
			deltas = append(deltas, EntityDelta{
				Address:   addr,
				Name:      ent.DisplayName(),
				TVL:       finite(ent.TVL),
				APR:       finite(ent.APR),
				Positions: changed,
			})
		}
	}

	// Entities that disappeared close every position they held.
	for _, addr := range sortedAddrs(prev) {
		if _, ok := cur[addr]; ok {
			continue
		}
		old := prev[addr]
		if len(old.Positions) == 0 {
			continue
		}
		closed := make(map[string]PositionDelta, len(old.Positions))
		for coin, raw := range old.Positions {
			b := normalize(coin, raw)
			closed[coin] = PositionDelta{Coin: coin, Before: &b}
		}
		deltas = append(deltas, EntityDelta{
			Address:   addr,
			Name:      old.DisplayName(),
			TVL:       finite(old.TVL),
			APR:       finite(old.APR),
			Positions: closed,
		})
	}

	filtered := deltas[:0]
	for _, d := range deltas {
		if d.APR >= minApr {
			filtered = append(filtered, d)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if filtered[i].TVL != filtered[j].TVL {
			return filtered[i].TVL > filtered[j].TVL
		}
		return filtered[i].Address < filtered[j].Address
	})
	res.Deltas = filtered
	return res, nil
}

// normalize coerces malformed numeric fields to zero and repairs a missing
// direction from the size sign.
func normalize(coin string, p PositionRecord) PositionRecord {
	p.Coin = coin
	p.Leverage = finite(p.Leverage)
	p.PositionValue = finite(p.PositionValue)
	p.Size = finite(p.Size)
	p.UnrealisedPnl = finite(p.UnrealisedPnl)
	if d, ok := ParseDirection(string(p.Direction)); ok {
		p.Direction = d
	} else {
		p.Direction = DirectionOf(p.Size)
	}
	return p
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func sortedAddrs(t StateTable) []string {
	out := make([]string, 0, len(t))
	for a := range t {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}
