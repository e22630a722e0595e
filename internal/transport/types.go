// Package transport defines the notification sink contract shared by the
// delivery queue, the log forwarder and the concrete chat adapters.
package transport

import (
	"context"
	"errors"
)

// ErrEmptyText is returned by sinks asked to deliver an empty fragment.
var ErrEmptyText = errors.New("transport: empty text")

// ChatTarget addresses one chat (and optionally a forum topic) on the channel.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (t ChatTarget) IsZero() bool { return t.ChatID == 0 }

// Parse modes understood by the telegram sink.
const (
	ParseModeNone       = ""
	ParseModeMarkdownV2 = "MarkdownV2"
	ParseModeHTML       = "HTML"
)

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sink is the notification channel. A returned error is treated as
// transient by callers and may trigger a retry.
type Sink interface {
	Send(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}

// SinkFunc adapts a plain function to Sink.
type SinkFunc func(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error

func (f SinkFunc) Send(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error {
	return f(ctx, to, text, opt)
}
