package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"vaultwatch/internal/vault"
	logx "vaultwatch/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("snapshot migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (vault.StateTable, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT address, name, tvl, apr, positions FROM entity_snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := vault.StateTable{}
	for rows.Next() {
		var (
			e   vault.EntitySnapshot
			raw string
		)
		if err := rows.Scan(&e.Address, &e.Name, &e.TVL, &e.APR, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(raw), &e.Positions); err != nil {
			s.log.Warn("corrupt positions row; treating as empty", logx.String("address", e.Address), logx.Err(err))
			e.Positions = nil
		}
		out.Put(e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, t vault.StateTable) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_snapshots`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO entity_snapshots(address, name, tvl, apr, positions, updated_at) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for addr, e := range t {
		raw, err := json.Marshal(e.Positions)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, addr, e.Name, e.TVL, e.APR, string(raw), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
