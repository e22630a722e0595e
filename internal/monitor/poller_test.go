package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/vault"
)

type fakeFetcher struct {
	tables []vault.StateTable
	err    error
	calls  int
	minTVL float64
}

func (f *fakeFetcher) FetchVaults(_ context.Context, minTVL float64, _ []string) (vault.StateTable, error) {
	f.minTVL = minTVL
	if f.err != nil {
		return nil, f.err
	}
	i := f.calls
	f.calls++
	if i >= len(f.tables) {
		return vault.StateTable{}, nil
	}
	return f.tables[i].Clone(), nil
}

type memStore struct {
	mu    sync.Mutex
	table vault.StateTable
	saves int
}

func (s *memStore) Load(context.Context) (vault.StateTable, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.table == nil {
		return vault.StateTable{}, nil
	}
	return s.table.Clone(), nil
}

func (s *memStore) Save(_ context.Context, t vault.StateTable) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.table = t.Clone()
	s.saves++
	return nil
}

func (s *memStore) Close() error { return nil }

type batches struct {
	mu  sync.Mutex
	got []alert.Batch
}

func (b *batches) Enqueue(x alert.Batch) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.got = append(b.got, x)
	return nil
}

func (b *batches) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.got)
}

func stateOf(apr float64, lev float64) vault.StateTable {
	t := vault.StateTable{}
	t.Put(vault.EntitySnapshot{
		Address: "0xA",
		Name:    "Alpha",
		TVL:     250000,
		APR:     apr,
		Positions: map[string]vault.PositionRecord{
			"BTC": vault.NewPosition("BTC", lev, 1000, 0.5, 0),
			"ETH": vault.NewPosition("ETH", 3, 500, -2, 0),
		},
	})
	return t
}

func testConfig(dir string) Config {
	return Config{
		Thresholds:   Thresholds{MinTVL: 1e5, MinAPR: 10, MinPositionCount: 1},
		TerminalPath: filepath.Join(dir, "out", "terminal.txt"),
	}
}

func TestRunCycleFirstObservationOpensEverything(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := &fakeFetcher{tables: []vault.StateTable{stateOf(20, 5)}}
	st := &memStore{}
	out := &batches{}
	p := NewPoller(testConfig(dir), f, st, out)

	rep, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rep.Entities != 1 || rep.Deltas != 1 || rep.Fragments == 0 {
		t.Fatalf("report = %+v", rep)
	}
	if out.len() != 1 {
		t.Fatalf("enqueued = %d, want 1", out.len())
	}
	if st.saves != 1 || len(st.table) != 1 {
		t.Fatalf("store saves=%d len=%d", st.saves, len(st.table))
	}
	if f.minTVL != 1e5 {
		t.Fatalf("fetch minTVL = %v", f.minTVL)
	}

	b, err := os.ReadFile(filepath.Join(dir, "out", "terminal.txt"))
	if err != nil {
		t.Fatalf("terminal file: %v", err)
	}
	for _, want := range []string{"📌 Vault: Alpha", "Leverage: OPENED → 5", "Total No. of Vaults: 1"} {
		if !strings.Contains(string(b), want) {
			t.Fatalf("terminal output missing %q:\n%s", want, b)
		}
	}
}

func TestRunCycleUnchangedStateSendsNothing(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := &fakeFetcher{tables: []vault.StateTable{stateOf(20, 5), stateOf(20, 5)}}
	st := &memStore{}
	out := &batches{}
	p := NewPoller(testConfig(dir), f, st, out)

	if _, err := p.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "out", "terminal.txt"))
	if err != nil {
		t.Fatalf("terminal file after first cycle: %v", err)
	}
	rep, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if rep.Deltas != 0 || out.len() != 1 {
		t.Fatalf("second cycle deltas=%d enqueued=%d", rep.Deltas, out.len())
	}
	if st.saves != 2 {
		t.Fatalf("saves = %d, want 2", st.saves)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "out", "terminal.txt"))
	if string(b) != string(first) || strings.Contains(string(b), "No vault updates found.") {
		t.Fatalf("unchanged cycle overwrote terminal output: %q", b)
	}
}

func TestRunCycleEmptyFetchKeepsSnapshot(t *testing.T) {
	t.Parallel()
	st := &memStore{table: stateOf(20, 5)}
	out := &batches{}
	p := NewPoller(testConfig(t.TempDir()), &fakeFetcher{}, st, out)

	rep, err := p.RunCycle(context.Background())
	if !errors.Is(err, vault.ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if !rep.NoData {
		t.Fatalf("report.NoData not set")
	}
	if st.saves != 0 || len(st.table) != 1 {
		t.Fatalf("snapshot touched: saves=%d len=%d", st.saves, len(st.table))
	}
	if out.len() != 0 {
		t.Fatalf("enqueued %d batches on empty fetch", out.len())
	}
}

func TestRunCycleFetchErrorDoesNotSave(t *testing.T) {
	t.Parallel()
	st := &memStore{}
	boom := errors.New("upstream down")
	p := NewPoller(testConfig(t.TempDir()), &fakeFetcher{err: boom}, st, &batches{})

	if _, err := p.RunCycle(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped %v", err, boom)
	}
	if st.saves != 0 {
		t.Fatalf("saved after fetch error")
	}
}

func TestApplyChangesThresholds(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	f := &fakeFetcher{tables: []vault.StateTable{stateOf(20, 5)}}
	out := &batches{}
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	p := NewPoller(testConfig(dir), f, &memStore{}, out, WithBus(bus))

	cfg := testConfig(dir)
	cfg.Thresholds.MinAPR = 50
	p.Apply(cfg)

	rep, err := p.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle: %v", err)
	}
	if rep.Deltas != 0 || out.len() != 0 {
		t.Fatalf("entity below new APR threshold alerted: %+v", rep)
	}

	select {
	case e := <-events:
		if e.Type != EventCycle {
			t.Fatalf("event type = %q", e.Type)
		}
		if r, ok := e.Data.(Report); !ok || r.Entities != 1 {
			t.Fatalf("event data = %#v", e.Data)
		}
	default:
		t.Fatalf("no cycle event published")
	}
}
