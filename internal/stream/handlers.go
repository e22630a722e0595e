package stream

import (
	"context"
	"encoding/json"
	"fmt"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/hyperliquid"
	logx "vaultwatch/pkg/logx"
)

// FillsHandler alerts on userFills messages.
type FillsHandler struct {
	Out  Enqueuer
	Opts alert.FeedOptions
	Log  logx.Logger
}

func (h *FillsHandler) Feed() string { return hyperliquid.FeedUserFills }

func (h *FillsHandler) Handle(_ context.Context, sess *Session, data json.RawMessage) error {
	var msg hyperliquid.FillsMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("decode fills: %w", err)
	}
	if len(msg.Fills) == 0 {
		h.Log.Debug("no fills in message")
		return nil
	}
	if sess.SuppressFirst() {
		h.Log.Info("skipping historical fills", logx.Int("session", sess.Number), logx.Int("fills", len(msg.Fills)))
		return nil
	}
	b := alert.Fills(msg.Fills, h.Opts)
	if b.Empty() {
		return nil
	}
	h.Log.Info(b.Plain)
	return h.Out.Enqueue(b)
}

// OrdersHandler alerts on orderUpdates messages.
type OrdersHandler struct {
	Out  Enqueuer
	Opts alert.FeedOptions
	Log  logx.Logger
}

func (h *OrdersHandler) Feed() string { return hyperliquid.FeedOrderUpdates }

func (h *OrdersHandler) Handle(_ context.Context, sess *Session, data json.RawMessage) error {
	var updates []hyperliquid.OrderUpdate
	if err := json.Unmarshal(data, &updates); err != nil {
		return fmt.Errorf("decode order updates: %w", err)
	}
	if len(updates) == 0 {
		h.Log.Debug("no orders in message")
		return nil
	}
	if sess.SuppressFirst() {
		h.Log.Info("skipping historical order updates", logx.Int("session", sess.Number), logx.Int("orders", len(updates)))
		return nil
	}
	b := alert.OrderUpdates(updates, h.Opts)
	if b.Empty() {
		return nil
	}
	h.Log.Info(b.Plain)
	return h.Out.Enqueue(b)
}

// NewHandler picks the handler for a subscription type.
func NewHandler(feed string, out Enqueuer, opts alert.FeedOptions, log logx.Logger) (Handler, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch feed {
	case hyperliquid.FeedUserFills:
		return &FillsHandler{Out: out, Opts: opts, Log: log}, nil
	case hyperliquid.FeedOrderUpdates:
		return &OrdersHandler{Out: out, Opts: opts, Log: log}, nil
	default:
		return nil, fmt.Errorf("stream: unsupported subscription type %q", feed)
	}
}
