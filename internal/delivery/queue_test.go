package delivery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/transport"
)

type recordingSink struct {
	mu       sync.Mutex
	sent     []string
	attempts map[string]int
	failN    map[string]int // text -> failures before success; -1 fails forever
	block    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{attempts: map[string]int{}, failN: map[string]int{}}
}

func (s *recordingSink) Send(ctx context.Context, _ transport.ChatTarget, text string, _ *transport.SendOptions) error {
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[text]++
	if n := s.failN[text]; n < 0 || s.attempts[text] <= n {
		return errors.New("sink unavailable")
	}
	s.sent = append(s.sent, text)
	return nil
}

func (s *recordingSink) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func batch(id string, frags ...string) alert.Batch {
	return alert.Batch{ID: id, Kind: alert.KindFills, Fragments: frags}
}

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, RetryAfter: time.Millisecond}
}

func TestQueuePreservesOrderAcrossRetries(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.failN["B1.f2"] = 2
	q := New("test", sink, transport.ChatTarget{ChatID: 1}, fastPolicy(3))

	if err := q.Enqueue(batch("B1", "B1.f1", "B1.f2", "B1.f3")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(batch("B2", "B2.f1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	q.Start(context.Background())
	defer q.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.snapshot()) == 4 })
	want := []string{"B1.f1", "B1.f2", "B1.f3", "B2.f1"}
	got := sink.snapshot()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if n := sink.attempts["B1.f2"]; n != 3 {
		t.Fatalf("B1.f2 attempts = %d, want 3", n)
	}
}

func TestQueueDropsRestOfBatchOnExhaustion(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.failN["B1.f2"] = -1
	bus := eventbus.New()
	events, unsub := bus.Subscribe(32)
	defer unsub()

	q := New("test", sink, transport.ChatTarget{ChatID: 1}, fastPolicy(2), WithBus(bus))
	_ = q.Enqueue(batch("B1", "B1.f1", "B1.f2", "B1.f3"))
	_ = q.Enqueue(batch("B2", "B2.f1"))
	q.Start(context.Background())
	defer q.Stop(context.Background())

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	got := sink.snapshot()
	if got[0] != "B1.f1" || got[1] != "B2.f1" {
		t.Fatalf("sent = %v, want [B1.f1 B2.f1]", got)
	}
	sink.mu.Lock()
	if n := sink.attempts["B1.f3"]; n != 0 {
		t.Fatalf("B1.f3 must not be attempted, got %d", n)
	}
	if n := sink.attempts["B1.f2"]; n != 2 {
		t.Fatalf("B1.f2 attempts = %d, want 2", n)
	}
	sink.mu.Unlock()

	waitFor(t, func() bool {
		for {
			select {
			case e := <-events:
				if e.Type == EventDropped {
					ev := e.Data.(Event)
					return ev.BatchID == "B1" && ev.Fragment == 2
				}
			default:
				return false
			}
		}
	})
}

func TestEnqueueNeverBlocks(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	q := New("test", sink, transport.ChatTarget{ChatID: 1}, fastPolicy(1))
	q.Start(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			_ = q.Enqueue(batch("b", "f"))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Enqueue blocked while the worker was busy")
	}
	close(sink.block)
	q.Stop(context.Background())
}

func TestStopDiscardsPendingAndRejectsNewBatches(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	q := New("test", sink, transport.ChatTarget{ChatID: 1}, fastPolicy(1))
	q.Start(context.Background())

	_ = q.Enqueue(batch("inflight", "x"))
	waitFor(t, func() bool { return q.Pending() == 0 })
	_ = q.Enqueue(batch("p1", "y"))
	_ = q.Enqueue(batch("p2", "z"))

	stopped := make(chan int, 1)
	go func() { stopped <- q.Stop(context.Background()) }()
	// Let the in-flight attempt finish.
	time.Sleep(10 * time.Millisecond)
	close(sink.block)

	select {
	case n := <-stopped:
		if n != 2 {
			t.Fatalf("discarded = %d, want 2", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	if got := sink.snapshot(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("sent = %v, want only the in-flight fragment", got)
	}
	if err := q.Enqueue(batch("late", "w")); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue after Stop = %v, want ErrStopped", err)
	}
}

func TestEmptyBatchIgnored(t *testing.T) {
	t.Parallel()
	q := New("test", newRecordingSink(), transport.ChatTarget{ChatID: 1}, fastPolicy(1))
	if err := q.Enqueue(alert.Batch{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if q.Pending() != 0 {
		t.Fatal("empty batch must not be queued")
	}
}

func TestDrainWaitsForInFlightBatch(t *testing.T) {
	t.Parallel()
	sink := newRecordingSink()
	sink.block = make(chan struct{})
	q := New("test", sink, transport.ChatTarget{ChatID: 1}, fastPolicy(1))
	q.Start(context.Background())
	defer q.Stop(context.Background())

	if err := q.Enqueue(batch("B1", "B1.f1")); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitFor(t, func() bool { return q.Pending() == 0 })

	short, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := q.Drain(short); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Drain with blocked sink = %v, want deadline", err)
	}

	close(sink.block)
	if err := q.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if got := sink.snapshot(); len(got) != 1 {
		t.Fatalf("sent = %v", got)
	}
}
