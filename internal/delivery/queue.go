// Package delivery sends alert batches to a notification sink from a single
// worker, so the channel observes alerts in the order they were enqueued.
package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/eventbus"
	rtsup "vaultwatch/internal/runtime/supervisor"
	"vaultwatch/internal/transport"
	logx "vaultwatch/pkg/logx"
)

var ErrStopped = errors.New("delivery: queue stopped")

// Event types published on the bus.
const (
	EventQueued  = "delivery.queued"
	EventSent    = "delivery.sent"
	EventRetry   = "delivery.retry"
	EventDropped = "delivery.dropped"
)

// Event is the payload of every delivery bus event.
type Event struct {
	Queue     string     `json:"queue"`
	BatchID   string     `json:"batch_id"`
	Kind      alert.Kind `json:"kind"`
	Fragment  int        `json:"fragment"`
	Fragments int        `json:"fragments"`
	Attempt   int        `json:"attempt,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// Policy is the per-fragment retry policy. MaxRetries counts attempts.
type Policy struct {
	MaxRetries         int
	RetryAfter         time.Duration
	InterFragmentDelay time.Duration
	SendTimeout        time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxRetries < 1 {
		p.MaxRetries = 1
	}
	if p.RetryAfter < 0 {
		p.RetryAfter = 0
	}
	if p.SendTimeout <= 0 {
		p.SendTimeout = 30 * time.Second
	}
	return p
}

// Queue is an unbounded FIFO of batches drained by exactly one worker.
// It is safe for concurrent use.
type Queue struct {
	name string
	sink transport.Sink
	to   transport.ChatTarget
	opt  *transport.SendOptions
	log  logx.Logger
	bus  eventbus.Bus

	mu      sync.Mutex
	policy  Policy
	pace    *rate.Limiter
	pending []alert.Batch
	busy    bool
	closed  bool
	wake    chan struct{}
	sup     *rtsup.Supervisor
}

type Option func(*Queue)

func WithBus(bus eventbus.Bus) Option { return func(q *Queue) { q.bus = bus } }

func WithLogger(log logx.Logger) Option { return func(q *Queue) { q.log = log } }

func WithSendOptions(opt *transport.SendOptions) Option {
	return func(q *Queue) { q.opt = opt }
}

func New(name string, sink transport.Sink, to transport.ChatTarget, p Policy, opts ...Option) *Queue {
	q := &Queue{
		name: name,
		sink: sink,
		to:   to,
		opt:  &transport.SendOptions{ParseMode: transport.ParseModeMarkdownV2, DisablePreview: true},
		wake: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(q)
	}
	if q.log.IsZero() {
		q.log = logx.Nop()
	}
	q.log = q.log.With(logx.String("comp", "delivery"), logx.String("queue", name))
	q.Apply(p)
	return q
}

// Apply swaps the retry policy; the fragment in flight keeps the old one.
func (q *Queue) Apply(p Policy) {
	p = p.normalized()
	lim := rate.NewLimiter(rate.Inf, 1)
	if p.InterFragmentDelay > 0 {
		lim = rate.NewLimiter(rate.Every(p.InterFragmentDelay), 1)
	}
	q.mu.Lock()
	q.policy = p
	q.pace = lim
	q.mu.Unlock()
}

// Enqueue appends b and returns immediately. Empty batches are ignored.
func (q *Queue) Enqueue(b alert.Batch) error {
	if b.Empty() {
		return nil
	}
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrStopped
	}
	q.pending = append(q.pending, b)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	eventbus.Publish(q.bus, EventQueued, q.event(b, 0, 0, nil))
	return nil
}

// Pending reports batches not yet picked up by the worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Start runs the worker under a supervisor. Calling Start twice is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.sup != nil || q.closed {
		return
	}
	q.sup = rtsup.New(ctx, rtsup.WithLogger(q.log))
	q.sup.Go("delivery."+q.name+".worker", q.Run)
}

// Stop closes intake and cancels the worker. An attempt already in flight
// is allowed to finish; queued batches are discarded and their count is
// returned.
func (q *Queue) Stop(ctx context.Context) int {
	q.mu.Lock()
	q.closed = true
	sup := q.sup
	q.mu.Unlock()

	if sup != nil {
		if err := sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
			q.log.Warn("delivery worker stop", logx.Err(err))
		}
	}

	q.mu.Lock()
	n := len(q.pending)
	q.pending = nil
	q.mu.Unlock()
	if n > 0 {
		q.log.Warn("pending batches discarded on stop", logx.Int("count", n))
	}
	return n
}

// Run is the worker loop. It returns when ctx is done.
func (q *Queue) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, ok := q.pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-q.wake:
				continue
			}
		}
		err := q.deliver(ctx, b)
		q.mu.Lock()
		q.busy = false
		q.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// Drain blocks until every queued batch has been handled (sent or dropped)
// or ctx is done.
func (q *Queue) Drain(ctx context.Context) error {
	t := time.NewTicker(50 * time.Millisecond)
	defer t.Stop()
	for {
		q.mu.Lock()
		idle := len(q.pending) == 0 && !q.busy
		q.mu.Unlock()
		if idle {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

func (q *Queue) pop() (alert.Batch, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return alert.Batch{}, false
	}
	b := q.pending[0]
	q.pending[0] = alert.Batch{}
	q.pending = q.pending[1:]
	q.busy = true
	return b, true
}

// deliver sends the fragments of b in order. Exhausting the retries of one
// fragment drops it and the rest of the batch. Only cancellation is
// returned as an error.
func (q *Queue) deliver(ctx context.Context, b alert.Batch) error {
	q.mu.Lock()
	p, pace := q.policy, q.pace
	q.mu.Unlock()

	for i, frag := range b.Fragments {
		if err := pace.Wait(ctx); err != nil {
			return err
		}
		err := q.sendFragment(ctx, p, b, i, frag)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		q.log.Error("fragment dropped after retries",
			logx.String("batch", b.ID),
			logx.String("kind", string(b.Kind)),
			logx.Int("fragment", i+1),
			logx.Int("fragments", len(b.Fragments)),
			logx.Int("discarded", len(b.Fragments)-i),
			logx.Err(err),
		)
		eventbus.Publish(q.bus, EventDropped, q.event(b, i, p.MaxRetries, err))
		return nil
	}
	q.log.Debug("batch delivered", logx.String("batch", b.ID), logx.Int("fragments", len(b.Fragments)))
	return nil
}

func (q *Queue) sendFragment(ctx context.Context, p Policy, b alert.Batch, i int, text string) error {
	var lastErr error
	for attempt := 1; attempt <= p.MaxRetries; attempt++ {
		// The attempt itself is not cut short by Stop.
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.SendTimeout)
		err := q.sink.Send(callCtx, q.to, text, q.opt)
		cancel()
		if err == nil {
			eventbus.Publish(q.bus, EventSent, q.event(b, i, attempt, nil))
			return nil
		}
		lastErr = err
		if attempt == p.MaxRetries {
			break
		}
		q.log.Warn("send failed; retrying",
			logx.String("batch", b.ID),
			logx.Int("fragment", i+1),
			logx.Int("attempt", attempt),
			logx.Int("max", p.MaxRetries),
			logx.Duration("retry_after", p.RetryAfter),
			logx.Err(err),
		)
		eventbus.Publish(q.bus, EventRetry, q.event(b, i, attempt, err))
		t := time.NewTimer(p.RetryAfter)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return lastErr
}

func (q *Queue) event(b alert.Batch, frag, attempt int, err error) Event {
	e := Event{
		Queue:     q.name,
		BatchID:   b.ID,
		Kind:      b.Kind,
		Fragment:  frag + 1,
		Fragments: len(b.Fragments),
		Attempt:   attempt,
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
