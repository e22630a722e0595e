// Package snapshot persists the last observed state table between poll
// cycles. Every Save fully replaces the previous state.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"vaultwatch/internal/vault"
	logx "vaultwatch/pkg/logx"
)

var ErrUnknownDriver = errors.New("snapshot: unknown storage driver")

// Config selects a driver:
//   - "file": one JSON document, replaced atomically via tmp+rename
//   - "sqlite": table entity_snapshots, replaced in a single transaction
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only
}

// Store loads and saves the state table. Load on a store that was never
// saved returns an empty table and no error.
type Store interface {
	Load(ctx context.Context) (vault.StateTable, error)
	Save(ctx context.Context, t vault.StateTable) error
	Close() error
}

func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "snapshot"))
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("snapshot: storage.path is required")
	}
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "file", "json":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
