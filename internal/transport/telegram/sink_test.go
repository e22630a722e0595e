package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"vaultwatch/internal/transport"
)

type fakeAPI struct {
	mu    sync.Mutex
	texts []string
	modes []string
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		_, _ = w.Write([]byte(`{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"watch","username":"watch_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			_ = r.ParseForm()
		}
		text := r.FormValue("text")
		mode := r.FormValue("parse_mode")
		if text == "" {
			text, mode = decodeJSONBody(r)
		}
		f.mu.Lock()
		f.texts = append(f.texts, text)
		f.modes = append(f.modes, mode)
		f.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":0,"chat":{"id":100,"type":"private"}}}`))
	default:
		http.NotFound(w, r)
	}
}

func TestSinkSend(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", APIURL: srv.URL}, loggerForTest())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	err = s.Send(context.Background(), transport.ChatTarget{ChatID: 100}, "*hello*", &transport.SendOptions{ParseMode: transport.ParseModeMarkdownV2})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	api.mu.Lock()
	defer api.mu.Unlock()
	if len(api.texts) != 1 || api.texts[0] != "*hello*" || api.modes[0] != "MarkdownV2" {
		t.Fatalf("api saw texts=%q modes=%q", api.texts, api.modes)
	}
}

func TestSinkRejectsEmptyText(t *testing.T) {
	t.Parallel()
	api := &fakeAPI{}
	srv := httptest.NewServer(http.HandlerFunc(api.handler))
	defer srv.Close()

	s, err := New(Config{Token: "123:abc", APIURL: srv.URL}, loggerForTest())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Send(context.Background(), transport.ChatTarget{ChatID: 1}, "  ", nil); !errors.Is(err, transport.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestNewRejectsBadTokens(t *testing.T) {
	t.Parallel()
	for _, tok := range []string{"", "  ", "abc", "123:", ":secret", "12a:secret"} {
		if _, err := New(Config{Token: tok}, loggerForTest()); err == nil {
			t.Fatalf("New(%q) accepted a malformed token", tok)
		}
	}
}

func TestNewDoesNotContactAPI(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(Config{Token: "123:abc", APIURL: srv.URL}, loggerForTest()); err != nil {
		t.Fatalf("New with an unavailable API: %v", err)
	}
	if n := hits.Load(); n != 0 {
		t.Fatalf("New made %d API calls, want 0", n)
	}
}

func TestSendHonorsContextDeadline(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
		http.Error(w, "late", http.StatusGatewayTimeout)
	}))
	defer srv.Close()
	defer close(release)

	s, err := New(Config{Token: "123:abc", APIURL: srv.URL, Timeout: 10 * time.Second}, loggerForTest())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	err = s.Send(ctx, transport.ChatTarget{ChatID: 1}, "hi", nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want DeadlineExceeded", err)
	}
	if took := time.Since(start); took > 2*time.Second {
		t.Fatalf("Send returned after %v", took)
	}
}
