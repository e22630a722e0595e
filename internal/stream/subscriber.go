package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/hyperliquid"
	logx "vaultwatch/pkg/logx"
)

// ErrClosed is reported when the peer closed the connection cleanly.
var ErrClosed = errors.New("stream: connection closed by peer")

// Bus event types.
const (
	EventState   = "stream.state"
	EventMessage = "stream.message"
)

// StateEvent is published on every state transition.
type StateEvent struct {
	User    string
	Feed    string
	State   State
	Session int
	Error   string
}

// Enqueuer accepts alert batches without blocking.
type Enqueuer interface {
	Enqueue(b alert.Batch) error
}

// Handler processes the data of one feed message. It must not block on
// delivery; it enqueues and returns.
type Handler interface {
	Feed() string
	Handle(ctx context.Context, sess *Session, data json.RawMessage) error
}

type Config struct {
	Subscription   hyperliquid.Subscription
	ReconnectDelay time.Duration
	// PingInterval sends keepalive pings; 0 disables them.
	PingInterval time.Duration
	Buffer       int
	Alerts       alert.Options
}

type Subscriber struct {
	cfg Config
	tr  Transport
	h   Handler
	out Enqueuer
	log logx.Logger
	bus eventbus.Bus

	state    atomic.Int32
	sessions int

	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped bool
}

type Option func(*Subscriber)

func WithLogger(log logx.Logger) Option { return func(s *Subscriber) { s.log = log } }

func WithBus(bus eventbus.Bus) Option { return func(s *Subscriber) { s.bus = bus } }

func New(cfg Config, tr Transport, h Handler, out Enqueuer, opts ...Option) *Subscriber {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 256
	}
	s := &Subscriber{cfg: cfg, tr: tr, h: h, out: out}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}
	s.log = s.log.With(logx.String("comp", "stream"), logx.String("feed", cfg.Subscription.Type))
	return s
}

func (s *Subscriber) State() State { return State(s.state.Load()) }

// Run connects, subscribes and reconnects after a fixed delay whenever the
// connection fails, until ctx is done or Stop is called. It always returns
// nil on cancellation.
func (s *Subscriber) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	defer s.setState(Disconnected, nil)

	for {
		err := s.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		s.setState(Errored, err)
		if errors.Is(err, ErrClosed) {
			s.log.Warn("connection closed; reconnecting", logx.Duration("delay", s.cfg.ReconnectDelay))
			s.enqueue(alert.ConnectionLost(nil, s.cfg.Alerts))
		} else {
			s.log.Warn("connection error; reconnecting", logx.Duration("delay", s.cfg.ReconnectDelay), logx.Err(err))
			s.enqueue(alert.ConnectionLost(err, s.cfg.Alerts))
		}

		t := time.NewTimer(s.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}

// Stop ends Run and suppresses further reconnects. Safe to call repeatedly.
func (s *Subscriber) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Subscriber) session(ctx context.Context) error {
	s.sessions++
	sess := &Session{Number: s.sessions, Subscription: s.cfg.Subscription}
	s.setState(Connecting, nil)

	conn, err := s.tr.Dial(ctx)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-connCtx.Done()
		_ = conn.Close()
	}()

	if err := conn.WriteJSON(hyperliquid.SubscribeRequest(s.cfg.Subscription)); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	s.log.Info("subscribed", logx.Int("session", sess.Number), logx.String("user", s.cfg.Subscription.User))
	s.enqueue(alert.Started(s.cfg.Subscription.Type, s.cfg.Subscription.User, s.cfg.Alerts))

	msgs := make(chan []byte, s.cfg.Buffer)
	errc := make(chan error, 1)
	go func() {
		defer close(msgs)
		for {
			b, err := conn.ReadMessage()
			if err != nil {
				errc <- err
				return
			}
			select {
			case msgs <- b:
			case <-connCtx.Done():
				errc <- connCtx.Err()
				return
			}
		}
	}()

	var ping <-chan time.Time
	if s.cfg.PingInterval > 0 {
		t := time.NewTicker(s.cfg.PingInterval)
		defer t.Stop()
		ping = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-msgs:
			if !ok {
				err := <-errc
				if errors.Is(err, io.EOF) {
					return ErrClosed
				}
				return err
			}
			s.dispatch(ctx, sess, b)
		case <-ping:
			if err := conn.WriteJSON(hyperliquid.PingRequest()); err != nil {
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (s *Subscriber) dispatch(ctx context.Context, sess *Session, b []byte) {
	env, err := hyperliquid.DecodeEnvelope(b)
	if err != nil {
		s.log.Warn("undecodable frame", logx.Err(err), logx.Int("len", len(b)))
		return
	}
	switch env.Channel {
	case hyperliquid.ChannelSubscriptionResponse:
		s.setState(Subscribed, nil)
	case hyperliquid.ChannelPong:
	case hyperliquid.ChannelError:
		s.log.Warn("feed error", logx.String("data", string(env.Data)))
	case s.h.Feed():
		if s.State() != Subscribed {
			s.setState(Subscribed, nil)
		}
		eventbus.Publish(s.bus, EventMessage, env.Channel)
		if err := s.h.Handle(ctx, sess, env.Data); err != nil {
			s.log.Error("message processing failed", logx.Int("session", sess.Number), logx.Err(err))
			s.enqueue(alert.ProcessingFailed(env.Channel, err, s.cfg.Alerts))
		}
	default:
		s.log.Debug("ignored channel", logx.String("channel", env.Channel))
	}
}

func (s *Subscriber) setState(st State, err error) {
	prev := State(s.state.Swap(int32(st)))
	if prev == st {
		return
	}
	ev := StateEvent{User: s.cfg.Subscription.User, Feed: s.cfg.Subscription.Type, State: st, Session: s.sessions}
	if err != nil {
		ev.Error = err.Error()
	}
	s.log.Debug("state", logx.String("from", prev.String()), logx.String("to", st.String()))
	eventbus.Publish(s.bus, EventState, ev)
}

func (s *Subscriber) enqueue(b alert.Batch) {
	if s.out == nil {
		return
	}
	if err := s.out.Enqueue(b); err != nil {
		s.log.Warn("alert not queued", logx.String("kind", string(b.Kind)), logx.Err(err))
	}
}
