package systemd

import (
	"context"
	"sync"
	"testing"
	"time"
)

type sent struct {
	mu     sync.Mutex
	states []string
}

func (s *sent) send(state string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, state)
	return true, nil
}

func (s *sent) count(state string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, v := range s.states {
		if v == state {
			n++
		}
	}
	return n
}

func TestNotifierStates(t *testing.T) {
	t.Parallel()
	rec := &sent{}
	n := Notifier{send: rec.send}

	_, _ = n.Ready()
	_, _ = n.Status("polling")
	_, _ = n.Stopping()

	want := []string{"READY=1", "STATUS=polling", "STOPPING=1"}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v", rec.states)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states = %v, want %v", rec.states, want)
		}
	}
}

func TestWatchdogPingsUntilCancelled(t *testing.T) {
	t.Parallel()
	rec := &sent{}
	n := Notifier{send: rec.send}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.watchdogEvery(ctx, 5*time.Millisecond) }()

	deadline := time.Now().Add(2 * time.Second)
	for rec.count("WATCHDOG=1") < 2 {
		if time.Now().After(deadline) {
			t.Fatal("watchdog did not ping")
		}
		time.Sleep(time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("watchdog: %v", err)
	}
}

func TestZeroNotifierOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	var n Notifier
	if ok, err := n.Ready(); ok || err != nil {
		t.Fatalf("Ready() = %v, %v; want false, nil", ok, err)
	}
	if err := n.Watchdog(context.Background()); err != nil {
		t.Fatalf("Watchdog() = %v", err)
	}
}
