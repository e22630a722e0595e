package hyperliquid

import (
	"errors"
	"fmt"

	"vaultwatch/internal/vault"
)

// ErrStatus is matched by every StatusError.
var ErrStatus = errors.New("hyperliquid: unexpected http status")

// ErrNoPositions marks an entity skipped because it holds nothing.
var ErrNoPositions = errors.New("hyperliquid: no asset positions")

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("hyperliquid: http %d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

type vaultListEntry struct {
	Summary VaultSummary `json:"summary"`
}

// VaultSummary is one row of the public vault list.
type VaultSummary struct {
	Name         string `json:"name"`
	VaultAddress string `json:"vaultAddress"`
	TVL          Num    `json:"tvl"`
}

// VaultDetails is the subset of the vaultDetails response we consume.
// APR is a fraction; APRPercent converts it.
type VaultDetails struct {
	Name         string `json:"name"`
	VaultAddress string `json:"vaultAddress"`
	APR          Num    `json:"apr"`
}

func (d VaultDetails) APRPercent() float64 { return d.APR.Float() * 100 }

type ClearinghouseState struct {
	AssetPositions []AssetPosition `json:"assetPositions"`
}

type AssetPosition struct {
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

type Leverage struct {
	Type  string `json:"type"`
	Value Num    `json:"value"`
}

type Position struct {
	Coin          string   `json:"coin"`
	Szi           Num      `json:"szi"`
	Leverage      Leverage `json:"leverage"`
	PositionValue Num      `json:"positionValue"`
	UnrealizedPnl Num      `json:"unrealizedPnl"`
}

// Positions converts the state into records keyed by coin. A missing
// leverage counts as 1x.
func (s ClearinghouseState) Positions() map[string]vault.PositionRecord {
	out := make(map[string]vault.PositionRecord, len(s.AssetPositions))
	for _, ap := range s.AssetPositions {
		p := ap.Position
		if p.Coin == "" {
			continue
		}
		lev := p.Leverage.Value.Float()
		if lev == 0 {
			lev = 1
		}
		out[p.Coin] = vault.NewPosition(p.Coin, lev, p.PositionValue.Float(), p.Szi.Float(), p.UnrealizedPnl.Float())
	}
	return out
}
