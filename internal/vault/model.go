// Package vault holds the tracked-entity data model and the snapshot diff
// engine that classifies position changes between two observations.
package vault

import "strings"

// Direction is the side of an open position.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// DirectionOf derives the direction from a signed size; zero counts as long.
func DirectionOf(size float64) Direction {
	if size >= 0 {
		return Long
	}
	return Short
}

// ParseDirection accepts any casing and returns ok=false for unknown values.
func ParseDirection(s string) (Direction, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case string(Long):
		return Long, true
	case string(Short):
		return Short, true
	default:
		return "", false
	}
}

// PositionRecord is one coin's exposure inside an entity.
type PositionRecord struct {
	Coin          string    `json:"coin"`
	Leverage      float64   `json:"leverage"`
	PositionValue float64   `json:"position_value"`
	Size          float64   `json:"size"`
	UnrealisedPnl float64   `json:"unrealised_pnl"`
	Direction     Direction `json:"direction"`
}

// NewPosition fills Direction from the sign of size.
func NewPosition(coin string, leverage, value, size, pnl float64) PositionRecord {
	return PositionRecord{
		Coin:          coin,
		Leverage:      leverage,
		PositionValue: value,
		Size:          size,
		UnrealisedPnl: pnl,
		Direction:     DirectionOf(size),
	}
}

// EntitySnapshot is one observation of a tracked vault or account.
// APR is expressed in percent.
type EntitySnapshot struct {
	Address   string                    `json:"address"`
	Name      string                    `json:"name"`
	TVL       float64                   `json:"tvl"`
	APR       float64                   `json:"apr"`
	Positions map[string]PositionRecord `json:"positions"`
}

// DisplayName falls back to the address for unnamed entities.
func (e EntitySnapshot) DisplayName() string {
	if strings.TrimSpace(e.Name) == "" {
		return e.Address
	}
	return e.Name
}

func (e EntitySnapshot) clone() EntitySnapshot {
	cp := e
	cp.Positions = make(map[string]PositionRecord, len(e.Positions))
	for k, v := range e.Positions {
		cp.Positions[k] = v
	}
	return cp
}

// StateTable maps address to snapshot. Map keys make duplicate addresses
// impossible; values are compared by value, never mutated across cycles.
type StateTable map[string]EntitySnapshot

// Clone returns a deep copy.
func (t StateTable) Clone() StateTable {
	out := make(StateTable, len(t))
	for k, v := range t {
		out[k] = v.clone()
	}
	return out
}

// Put inserts e keyed by its address, normalising the map key.
func (t StateTable) Put(e EntitySnapshot) {
	if e.Positions == nil {
		e.Positions = map[string]PositionRecord{}
	}
	t[e.Address] = e
}
