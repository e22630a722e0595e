// Package telegram is the Telegram Bot API notification sink.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"vaultwatch/internal/transport"
	logx "vaultwatch/pkg/logx"
)

type Config struct {
	Token string
	// APIURL overrides the Bot API endpoint; empty means api.telegram.org.
	APIURL  string
	Timeout time.Duration
}

// Sink sends messages through telebot. It never polls for updates.
type Sink struct {
	bot *tele.Bot
	log logx.Logger
}

// New builds the sink without contacting Telegram, so an API outage at
// startup only surfaces later as retried send failures. A malformed token
// is rejected.
func New(cfg Config, log logx.Logger) (*Sink, error) {
	if err := checkToken(cfg.Token); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   strings.TrimSpace(cfg.Token),
		URL:     cfg.APIURL,
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "telegram"))
	log.Info("telegram sink ready", logx.Duration("timeout", timeout))
	return &Sink{bot: b, log: log}, nil
}

// checkToken accepts the Bot API form "<bot id>:<secret>".
func checkToken(token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return errors.New("telegram token is empty")
	}
	id, secret, ok := strings.Cut(token, ":")
	if !ok || id == "" || secret == "" || strings.TrimLeft(id, "0123456789") != "" {
		return errors.New("telegram token is malformed (want <bot id>:<secret>)")
	}
	return nil
}

// Send delivers one message. It returns ctx.Err() as soon as ctx is done;
// the abandoned request is bounded by the HTTP client timeout and may still
// land.
func (s *Sink) Send(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) error {
	if strings.TrimSpace(text) == "" {
		return transport.ErrEmptyText
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if opt == nil {
		opt = &transport.SendOptions{}
	}
	done := make(chan error, 1)
	go func() {
		_, err := s.bot.Send(&tele.Chat{ID: to.ChatID}, text, &tele.SendOptions{
			ParseMode:             opt.ParseMode,
			DisableWebPagePreview: opt.DisablePreview,
			ThreadID:              to.ThreadID,
		})
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Debug("telegram send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
		}
		return err
	case <-ctx.Done():
		s.log.Debug("telegram send abandoned", logx.Int64("chat_id", to.ChatID), logx.Err(ctx.Err()))
		return ctx.Err()
	}
}
