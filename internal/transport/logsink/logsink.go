// Package logsink is a dry-run notification sink that writes messages to
// the log (and optionally a writer) instead of a chat.
package logsink

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"vaultwatch/internal/transport"
	logx "vaultwatch/pkg/logx"
)

type Sink struct {
	log logx.Logger

	mu sync.Mutex
	w  io.Writer
}

// New returns a sink logging at INFO. w may be nil.
func New(log logx.Logger, w io.Writer) *Sink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Sink{log: log.With(logx.String("comp", "logsink")), w: w}
}

func (s *Sink) Send(ctx context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) error {
	if strings.TrimSpace(text) == "" {
		return transport.ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.log.Info("dry-run message", logx.Int64("chat_id", to.ChatID), logx.Int("len", len(text)))
	if s.w == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.w, "--- chat %d ---\n%s\n", to.ChatID, text)
	return err
}
