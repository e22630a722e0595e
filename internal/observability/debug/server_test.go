package debug

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	logx "vaultwatch/pkg/logx"
)

func testRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounter(prometheus.CounterOpts{Name: "vaultwatch_test_total", Help: "test"})
	c.Add(3)
	reg.MustRegister(c)
	return reg
}

func TestHandlerRoutesAndAuth(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Token: "s3cret"}, testRegistry(), logx.Nop())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	cases := []struct {
		path   string
		header string
		code   int
		body   string
	}{
		{"/healthz", "", http.StatusUnauthorized, ""},
		{"/healthz?token=s3cret", "", http.StatusOK, "ok"},
		{"/metrics", "Bearer s3cret", http.StatusOK, "vaultwatch_test_total 3"},
		{"/metrics", "Bearer wrong", http.StatusUnauthorized, ""},
		{"/debug/pprof/", "Bearer s3cret", http.StatusOK, "goroutine"},
	}
	for _, tc := range cases {
		req, _ := http.NewRequest(http.MethodGet, ts.URL+tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("GET %s: %v", tc.path, err)
		}
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != tc.code {
			t.Fatalf("GET %s = %d, want %d", tc.path, resp.StatusCode, tc.code)
		}
		if tc.body != "" && !strings.Contains(string(b), tc.body) {
			t.Fatalf("GET %s body missing %q:\n%s", tc.path, tc.body, b)
		}
	}
}

func TestStartRefusesPublicAddrWithoutToken(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "0.0.0.0:0"}, nil, logx.Nop())
	if err := s.Start(context.Background()); err == nil {
		t.Fatal("expected refusal for public bind without token")
	}
}

func TestStartServesAndStops(t *testing.T) {
	t.Parallel()
	s := New(Config{Enabled: true, Addr: "127.0.0.1:0"}, testRegistry(), logx.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.Addr() == "" {
		if time.Now().After(deadline) {
			t.Fatal("server did not bind")
		}
		time.Sleep(5 * time.Millisecond)
	}
	resp, err := http.Get("http://" + s.Addr() + "/healthz")
	if err != nil {
		t.Fatalf("GET healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	s.Stop(ctx)
	if s.Addr() != "" {
		t.Fatal("addr still set after stop")
	}
}
