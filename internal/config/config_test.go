package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "vaultwatch/pkg/logx"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if cfg.Thresholds.MinTVL != 1e5 || cfg.Thresholds.MinAPR != 10 || cfg.Thresholds.MinPositionCount != 3 {
		t.Fatalf("unexpected thresholds: %+v", cfg.Thresholds)
	}
	if len(cfg.Thresholds.ExcludedAddresses) != 4 {
		t.Fatalf("excluded = %d, want 4", len(cfg.Thresholds.ExcludedAddresses))
	}
	if cfg.Delivery.Poll.MaxRetries != 10 || cfg.Delivery.Poll.RetryAfter.D() != 10*time.Second {
		t.Fatalf("poll delivery = %+v", cfg.Delivery.Poll)
	}
	if cfg.Delivery.Stream.MaxRetries != 1 || cfg.Delivery.Stream.RetryAfter.D() != 5*time.Second {
		t.Fatalf("stream delivery = %+v", cfg.Delivery.Stream)
	}
	if cfg.Stream.ReconnectDelay.D() != 2*time.Second {
		t.Fatalf("reconnect delay = %v", cfg.Stream.ReconnectDelay)
	}
	loc, err := cfg.Location()
	if err != nil || loc.String() != "Asia/Singapore" {
		t.Fatalf("Location() = %v, %v", loc, err)
	}
}

func TestDecodeYAMLKeepsDefaults(t *testing.T) {
	t.Parallel()

	doc := `
telegram:
  token: abc
  group_chat_id: -100
thresholds:
  min_apr: 25
delivery:
  poll:
    max_retries: 3
    retry_after: 2s
poll:
  schedule: "*/15 * * * *"
`
	cfg, err := Decode("config.yaml", []byte(doc))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Thresholds.MinAPR != 25 {
		t.Fatalf("min_apr = %v, want 25", cfg.Thresholds.MinAPR)
	}
	if cfg.Thresholds.MinTVL != 1e5 {
		t.Fatalf("min_tvl default lost: %v", cfg.Thresholds.MinTVL)
	}
	if cfg.Delivery.Poll.MaxRetries != 3 || cfg.Delivery.Poll.RetryAfter.D() != 2*time.Second {
		t.Fatalf("poll delivery = %+v", cfg.Delivery.Poll)
	}
	if cfg.Delivery.Poll.MaxFragmentLen != 4000 {
		t.Fatalf("max_fragment_len default lost: %d", cfg.Delivery.Poll.MaxFragmentLen)
	}
	if cfg.Poll.Schedule != "*/15 * * * *" {
		t.Fatalf("schedule = %q", cfg.Poll.Schedule)
	}
}

func TestDecodeRejects(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		path string
		doc  string
		want string
	}{
		{"unknown field", "c.json", `{"telegram":{"tokn":"x"}}`, "unknown field"},
		{"trailing data", "c.json", `{} {}`, "trailing data"},
		{"numeric duration", "c.json", `{"stream":{"reconnect_delay":2}}`, "duration"},
		{"negative duration", "c.json", `{"stream":{"reconnect_delay":"-1s"}}`, ">= 0"},
		{"subscription", "c.yaml", "tracking:\n  subscription_type: trades\n", "subscription_type"},
		{"timezone", "c.json", `{"timezone":"Mars/Olympus"}`, "timezone"},
		{"negative apr", "c.json", `{"thresholds":{"min_apr":-1}}`, "min_apr"},
		{"zero retries", "c.json", `{"delivery":{"stream":{"max_retries":0}}}`, "delivery.stream.max_retries"},
		{"driver", "c.json", `{"storage":{"driver":"redis"}}`, "storage.driver"},
		{"empty address", "c.json", `{"tracking":{"addresses":["0xabc"," "]}}`, "tracking.addresses[1]"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tc.path, []byte(tc.doc))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Decode() err = %v, want containing %q", err, tc.want)
			}
		})
	}
}

func TestResolveChat(t *testing.T) {
	t.Parallel()

	cfg := Default()
	cfg.Telegram.GroupChatID = -1001
	cfg.Telegram.UserChatID = 42

	cases := []struct {
		sel     string
		want    int64
		wantErr error
	}{
		{"GROUP", -1001, nil},
		{"group", -1001, nil},
		{" User ", 42, nil},
		{"CHANNEL", 0, ErrUnsupportedChat},
		{"", 0, ErrUnsupportedChat},
	}
	for _, tc := range cases {
		got, err := cfg.ResolveChat(tc.sel)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("ResolveChat(%q) err = %v, want %v", tc.sel, err, tc.wantErr)
			}
			continue
		}
		if err != nil || got.ChatID != tc.want {
			t.Fatalf("ResolveChat(%q) = %v, %v; want %d", tc.sel, got, err, tc.want)
		}
	}

	cfg.Telegram.UserChatID = 0
	if _, err := cfg.ResolveChat("USER"); err == nil || errors.Is(err, ErrUnsupportedChat) {
		t.Fatalf("missing chat id: err = %v", err)
	}
}

func TestEnvOverridesToken(t *testing.T) {
	t.Setenv(EnvTelegramToken, "from-env")

	cfg, err := Decode("c.json", []byte(`{"telegram":{"token":"from-file"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want from-env", cfg.Telegram.Token)
	}
}

func TestLoadEnvIgnoresMissingFile(t *testing.T) {
	dir := t.TempDir()
	if err := LoadEnv(filepath.Join(dir, "absent.env")); err != nil {
		t.Fatalf("LoadEnv(missing) = %v", err)
	}

	p := filepath.Join(dir, "test.env")
	if err := os.WriteFile(p, []byte("VAULTWATCH_TEST_LOADENV=yes\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("VAULTWATCH_TEST_LOADENV", "")
	os.Unsetenv("VAULTWATCH_TEST_LOADENV")
	if err := LoadEnv(p); err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if got := os.Getenv("VAULTWATCH_TEST_LOADENV"); got != "yes" {
		t.Fatalf("env = %q, want yes", got)
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()

	a := Default()
	b := Default()
	b.Thresholds.MinAPR = 20
	b.Telegram.Token = "secret"

	sections, attrs := SummarizeConfigChange(&a, &b)
	if strings.Join(sections, ",") != "telegram,thresholds" {
		t.Fatalf("sections = %v", sections)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}

	sections, _ = SummarizeConfigChange(&a, &a)
	if len(sections) != 0 {
		t.Fatalf("unchanged config reported %v", sections)
	}
}

func TestManagerWatchPublishesReload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"thresholds":{"min_apr":10}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	m := NewManager(path)
	m.SetLogger(logx.Nop())
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = m.Watch(ctx)
	}()

	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-sub:
			if got.Thresholds.MinAPR != 30 {
				t.Fatalf("published min_apr = %v", got.Thresholds.MinAPR)
			}
			if m.Get().Thresholds.MinAPR != 30 {
				t.Fatalf("Get() not committed")
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// Rewrite until the watcher is up and sees a change.
			_ = os.WriteFile(path, []byte(`{"thresholds":{"min_apr":30}}`), 0o600)
		case <-deadline:
			t.Fatalf("no reload published")
		}
	}
}

func TestManagerValidatorRejects(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	sub := m.Subscribe(1)

	if err := os.WriteFile(path, []byte(`{"thresholds":{"min_apr":30}}`), 0o600); err != nil {
		t.Fatal(err)
	}
	m.reload(context.Background())

	select {
	case <-sub:
		t.Fatalf("rejected config was published")
	default:
	}
	if m.Get().Thresholds.MinAPR != 10 {
		t.Fatalf("rejected config was committed")
	}
}

func TestExampleConfigDecodes(t *testing.T) {
	t.Parallel()
	path := filepath.Join("..", "..", "config.example.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read example: %v", err)
	}
	cfg, err := Decode(path, data)
	if err != nil {
		t.Fatalf("Decode example: %v", err)
	}
	if cfg.Poll.Schedule == "" || len(cfg.Tracking.Addresses) != 1 || cfg.Delivery.Poll.RetryAfter.D() != 10*time.Second {
		t.Fatalf("example config = %+v", cfg)
	}
}
