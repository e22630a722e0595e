package monitor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "vaultwatch/pkg/logx"
)

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw   string
		kind  SpecKind
		cron  string
		every time.Duration
		err   bool
	}{
		{raw: "", kind: SpecOnce},
		{raw: "*/15 * * * *", kind: SpecCron, cron: "*/15 * * * *"},
		{raw: "@hourly", kind: SpecCron, cron: "@hourly"},
		{raw: "cron:0 9 * * *", kind: SpecCron, cron: "0 9 * * *"},
		{raw: "15m", kind: SpecInterval, every: 15 * time.Minute},
		{raw: "00:30", kind: SpecInterval, every: 30 * time.Minute},
		{raw: "every: 02:15", kind: SpecInterval, every: 2*time.Hour + 15*time.Minute},
		{raw: "interval:1h", kind: SpecInterval, every: time.Hour},
		{raw: "00:75", err: true},
		{raw: "00:00", err: true},
		{raw: "-5m", err: true},
		{raw: "soon", err: true},
		{raw: "cron:", err: true},
	}
	for _, tc := range cases {
		got, err := ParseSchedule(tc.raw)
		if tc.err {
			if err == nil {
				t.Fatalf("ParseSchedule(%q) = %+v, want error", tc.raw, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseSchedule(%q) error: %v", tc.raw, err)
		}
		if got.Kind != tc.kind || got.Cron != tc.cron || got.Every != tc.every {
			t.Fatalf("ParseSchedule(%q) = %+v", tc.raw, got)
		}
	}
}

func TestNewSchedulerRejectsBadCron(t *testing.T) {
	t.Parallel()
	spec := ParsedSpec{Kind: SpecCron, Cron: "61 * * * *"}
	if _, err := NewScheduler(spec, time.UTC, func(context.Context) {}, logx.Nop()); err == nil {
		t.Fatal("expected error for invalid cron spec")
	}
}

func TestSchedulerOnceRunsSingleCycle(t *testing.T) {
	t.Parallel()
	var n atomic.Int32
	s, err := NewScheduler(ParsedSpec{Kind: SpecOnce}, nil, func(context.Context) { n.Add(1) }, logx.Nop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if n.Load() != 1 {
		t.Fatalf("runs = %d, want 1", n.Load())
	}
}

func TestSchedulerRunOnStartAndStop(t *testing.T) {
	t.Parallel()
	ran := make(chan struct{}, 4)
	s, err := NewScheduler(ParsedSpec{Kind: SpecInterval, Every: time.Hour}, time.UTC, func(context.Context) {
		ran <- struct{}{}
	}, logx.Nop())
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not run on start")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestParsedSpecValidate(t *testing.T) {
	t.Parallel()
	good, _ := ParseSchedule("cron:*/15 * * * *")
	if err := good.Validate(); err != nil {
		t.Fatalf("Validate(%q) = %v", good.Cron, err)
	}
	bad, err := ParseSchedule("cron:not a cron")
	if err != nil {
		t.Fatalf("ParseSchedule: %v", err)
	}
	if err := bad.Validate(); err == nil {
		t.Fatal("expected invalid cron to be rejected")
	}
	if err := (ParsedSpec{Kind: SpecInterval, Every: time.Minute}).Validate(); err != nil {
		t.Fatalf("interval Validate = %v", err)
	}
}
