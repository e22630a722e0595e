package app

import (
	"strings"
	"time"

	"vaultwatch/internal/config"
	"vaultwatch/internal/snapshot"
)

func mapSnapshotConfig(cfg *config.Config) snapshot.Config {
	sc := cfg.Storage
	busy := sc.BusyTimeout.D()
	if busy <= 0 {
		busy = time.Second
	}
	return snapshot.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		BusyTimeout: busy,
	}
}
