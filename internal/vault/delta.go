package vault

import "sort"

// DeltaKind classifies a PositionDelta.
type DeltaKind int

const (
	Opened DeltaKind = iota + 1
	Closed
	Changed
)

func (k DeltaKind) String() string {
	switch k {
	case Opened:
		return "OPENED"
	case Closed:
		return "CLOSED"
	case Changed:
		return "CHANGED"
	default:
		return "UNKNOWN"
	}
}

// PositionDelta is the change of one coin between two observations.
// At least one of Before/After is always set.
type PositionDelta struct {
	Coin   string
	Before *PositionRecord
	After  *PositionRecord
}

func (d PositionDelta) Kind() DeltaKind {
	switch {
	case d.Before == nil:
		return Opened
	case d.After == nil:
		return Closed
	default:
		return Changed
	}
}

// EntityDelta groups the position deltas of one entity.
type EntityDelta struct {
	Address   string
	Name      string
	TVL       float64
	APR       float64
	Positions map[string]PositionDelta
}

// Coins returns the changed coins in a stable order.
func (e EntityDelta) Coins() []string {
	out := make([]string, 0, len(e.Positions))
	for c := range e.Positions {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// DirectionCounter counts, per direction, how many qualifying entities hold
// each coin.
type DirectionCounter struct {
	Long  map[string]int
	Short map[string]int
}

func NewDirectionCounter() DirectionCounter {
	return DirectionCounter{Long: map[string]int{}, Short: map[string]int{}}
}

func (c *DirectionCounter) Add(dir Direction, coin string) {
	if c.Long == nil || c.Short == nil {
		*c = NewDirectionCounter()
	}
	if dir == Short {
		c.Short[coin]++
		return
	}
	c.Long[coin]++
}

// CoinCount is one row of a sorted counter.
type CoinCount struct {
	Coin  string
	Count int
}

// Sorted returns the counts for dir ordered by count desc, then coin asc.
func (c DirectionCounter) Sorted(dir Direction) []CoinCount {
	m := c.Long
	if dir == Short {
		m = c.Short
	}
	out := make([]CoinCount, 0, len(m))
	for coin, n := range m {
		out = append(out, CoinCount{Coin: coin, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Coin < out[j].Coin
	})
	return out
}
