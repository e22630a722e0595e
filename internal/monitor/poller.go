// Package monitor runs the vault polling cycle: load the last snapshot,
// fetch the current state, diff, persist, render and enqueue.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/snapshot"
	"vaultwatch/internal/vault"
	logx "vaultwatch/pkg/logx"
)

// EventCycle is published after every cycle with a Report payload.
const EventCycle = "monitor.cycle"

// Fetcher returns the current state of every vault above minTVL.
type Fetcher interface {
	FetchVaults(ctx context.Context, minTVL float64, excluded []string) (vault.StateTable, error)
}

type Enqueuer interface {
	Enqueue(b alert.Batch) error
}

type Thresholds struct {
	MinTVL           float64
	MinAPR           float64
	MinPositionCount int
	Excluded         []string
}

type Config struct {
	Thresholds Thresholds
	Alerts     alert.Options
	// TerminalPath receives the plain rendering of each cycle; empty or "-"
	// disables it.
	TerminalPath string
}

// Report summarizes one cycle.
type Report struct {
	Started    time.Time
	Took       time.Duration
	Entities   int
	Qualifying int
	Deltas     int
	BatchID    string
	Fragments  int
	NoData     bool
	Error      string
}

type Poller struct {
	fetch Fetcher
	store snapshot.Store
	out   Enqueuer
	log   logx.Logger
	bus   eventbus.Bus

	mu  sync.RWMutex
	cfg Config

	// run serializes cycles; a cycle never overlaps another.
	run sync.Mutex
}

type Option func(*Poller)

func WithLogger(log logx.Logger) Option { return func(p *Poller) { p.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(p *Poller) { p.bus = bus } }

func NewPoller(cfg Config, f Fetcher, st snapshot.Store, out Enqueuer, opts ...Option) *Poller {
	p := &Poller{fetch: f, store: st, out: out, cfg: cfg}
	for _, o := range opts {
		o(p)
	}
	if p.log.IsZero() {
		p.log = logx.Nop()
	}
	p.log = p.log.With(logx.String("comp", "monitor"))
	return p
}

// Apply swaps thresholds and rendering options; the next cycle uses them.
func (p *Poller) Apply(cfg Config) {
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
}

func (p *Poller) config() Config {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg
}

// RunCycle performs one full observation cycle. An empty fetch returns
// vault.ErrNoData and leaves the stored snapshot untouched.
func (p *Poller) RunCycle(ctx context.Context) (Report, error) {
	p.run.Lock()
	defer p.run.Unlock()

	rep := Report{Started: time.Now()}
	err := p.cycle(ctx, p.config(), &rep)
	rep.Took = time.Since(rep.Started)
	if err != nil {
		rep.Error = err.Error()
	}
	eventbus.Publish(p.bus, EventCycle, rep)
	return rep, err
}

func (p *Poller) cycle(ctx context.Context, cfg Config, rep *Report) error {
	th := cfg.Thresholds

	prev, err := p.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	cur, err := p.fetch.FetchVaults(ctx, th.MinTVL, th.Excluded)
	if err != nil {
		return fmt.Errorf("fetch vaults: %w", err)
	}
	rep.Entities = len(cur)

	res, err := vault.Diff(prev, cur, th.MinAPR)
	if errors.Is(err, vault.ErrNoData) {
		rep.NoData = true
		p.log.Warn("no vault data fetched; keeping previous snapshot", logx.Int("previous", len(prev)))
		return err
	}
	if err != nil {
		return err
	}
	rep.Qualifying = res.QualifyingEntities
	rep.Deltas = len(res.Deltas)

	if err := p.store.Save(ctx, cur); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	b := alert.VaultUpdates(res, alert.VaultOptions{
		Options:          cfg.Alerts,
		MinTVL:           th.MinTVL,
		MinAPR:           th.MinAPR,
		MinPositionCount: th.MinPositionCount,
	})
	p.log.Info("vault updates\n" + b.Plain)

	rep.BatchID = b.ID
	rep.Fragments = len(b.Fragments)
	if b.Empty() {
		p.log.Info("cycle done; nothing to send",
			logx.Int("entities", rep.Entities),
			logx.Int("qualifying", rep.Qualifying),
		)
		return nil
	}
	// The terminal file keeps the last report that had changes.
	if err := writeTerminal(cfg.TerminalPath, b.Plain); err != nil {
		p.log.Warn("terminal output not written", logx.String("path", cfg.TerminalPath), logx.Err(err))
	}
	if err := p.out.Enqueue(b); err != nil {
		return fmt.Errorf("enqueue: %w", err)
	}
	p.log.Info("cycle done",
		logx.Int("entities", rep.Entities),
		logx.Int("qualifying", rep.Qualifying),
		logx.Int("deltas", rep.Deltas),
		logx.String("batch", b.ID),
		logx.Int("fragments", rep.Fragments),
	)
	return nil
}

func writeTerminal(path, text string) error {
	if path == "" || path == "-" {
		return nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(text+"\n"), 0o644)
}
