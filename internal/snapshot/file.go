package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vaultwatch/internal/vault"
	logx "vaultwatch/pkg/logx"
)

type fileStore struct {
	path string
	log  logx.Logger
	mu   sync.Mutex
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: cfg.Path, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) (vault.StateTable, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return vault.StateTable{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return vault.StateTable{}, nil
	}
	var t vault.StateTable
	if err := json.Unmarshal(b, &t); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.path, err)
	}
	out := make(vault.StateTable, len(t))
	for addr, e := range t {
		if e.Address == "" {
			e.Address = addr
		}
		out.Put(e)
	}
	return out, nil
}

func (s *fileStore) Save(ctx context.Context, t vault.StateTable) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("snapshot saved", logx.String("path", s.path), logx.Int("entities", len(t)))
	return nil
}

func (s *fileStore) Close() error { return nil }
