// Package hyperliquid talks to the public Hyperliquid info API and decodes
// the websocket feed messages used by the stream subscriber.
package hyperliquid

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"vaultwatch/internal/vault"
	logx "vaultwatch/pkg/logx"
)

const (
	DefaultInfoURL   = "https://api.hyperliquid.xyz/info"
	DefaultVaultsURL = "https://stats-data.hyperliquid.xyz/Mainnet/vaults"
	DefaultWSURL     = "wss://api.hyperliquid.xyz/ws"
)

type Config struct {
	InfoURL   string
	VaultsURL string
	Timeout   time.Duration
	// RequestPause is the minimum spacing between two info requests.
	RequestPause time.Duration
	// MaxRetries bounds attempts per entity; RetryAfter spaces them.
	MaxRetries int
	RetryAfter time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) *Client {
	if cfg.InfoURL == "" {
		cfg.InfoURL = DefaultInfoURL
	}
	if cfg.VaultsURL == "" {
		cfg.VaultsURL = DefaultVaultsURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	lim := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestPause > 0 {
		lim = rate.NewLimiter(rate.Every(cfg.RequestPause), 1)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: lim,
		log:     log,
	}
}

// TopVaults lists vaults with tvl >= minTVL, excluding the given addresses
// (case-insensitive), sorted by tvl descending.
func (c *Client) TopVaults(ctx context.Context, minTVL float64, excluded []string) ([]VaultSummary, error) {
	var rows []vaultListEntry
	if err := c.do(ctx, http.MethodGet, c.cfg.VaultsURL, nil, &rows); err != nil {
		return nil, fmt.Errorf("list vaults: %w", err)
	}
	skip := make(map[string]struct{}, len(excluded))
	for _, a := range excluded {
		skip[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	out := make([]VaultSummary, 0, len(rows))
	for _, r := range rows {
		s := r.Summary
		if s.VaultAddress == "" || s.TVL.Float() < minTVL {
			continue
		}
		if _, ok := skip[strings.ToLower(s.VaultAddress)]; ok {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TVL > out[j].TVL })
	return out, nil
}

func (c *Client) VaultDetails(ctx context.Context, addr string) (VaultDetails, error) {
	var d VaultDetails
	err := c.info(ctx, map[string]string{"type": "vaultDetails", "vaultAddress": addr}, &d)
	return d, err
}

func (c *Client) ClearinghouseState(ctx context.Context, user string) (ClearinghouseState, error) {
	var s ClearinghouseState
	err := c.info(ctx, map[string]string{"type": "clearinghouseState", "user": user}, &s)
	return s, err
}

// Snapshot observes one vault, retrying failed requests at a fixed interval.
// ErrNoPositions is returned without retrying.
func (c *Client) Snapshot(ctx context.Context, v VaultSummary) (vault.EntitySnapshot, error) {
	var lastErr error
	for attempt := 1; attempt <= c.cfg.MaxRetries; attempt++ {
		snap, err := c.snapshotOnce(ctx, v)
		if err == nil || errors.Is(err, ErrNoPositions) {
			return snap, err
		}
		if ctx.Err() != nil {
			return vault.EntitySnapshot{}, ctx.Err()
		}
		lastErr = err
		if attempt == c.cfg.MaxRetries {
			break
		}
		c.log.Warn("vault query failed; retrying",
			logx.String("vault", v.VaultAddress),
			logx.Int("attempt", attempt),
			logx.Duration("retry_after", c.cfg.RetryAfter),
			logx.Err(err),
		)
		if err := sleepCtx(ctx, c.cfg.RetryAfter); err != nil {
			return vault.EntitySnapshot{}, err
		}
	}
	return vault.EntitySnapshot{}, fmt.Errorf("vault %s: retries exhausted: %w", v.VaultAddress, lastErr)
}

func (c *Client) snapshotOnce(ctx context.Context, v VaultSummary) (vault.EntitySnapshot, error) {
	det, err := c.VaultDetails(ctx, v.VaultAddress)
	if err != nil {
		return vault.EntitySnapshot{}, fmt.Errorf("vault details: %w", err)
	}
	st, err := c.ClearinghouseState(ctx, v.VaultAddress)
	if err != nil {
		return vault.EntitySnapshot{}, fmt.Errorf("clearinghouse state: %w", err)
	}
	positions := st.Positions()
	if len(positions) == 0 {
		return vault.EntitySnapshot{}, ErrNoPositions
	}
	name := v.Name
	if strings.TrimSpace(name) == "" {
		name = v.VaultAddress
	}
	return vault.EntitySnapshot{
		Address:   v.VaultAddress,
		Name:      name,
		TVL:       v.TVL.Float(),
		APR:       det.APRPercent(),
		Positions: positions,
	}, nil
}

// FetchVaults builds the current state table. Entities that fail or hold
// no positions are logged and left out; only the vault list request can
// fail the whole fetch.
func (c *Client) FetchVaults(ctx context.Context, minTVL float64, excluded []string) (vault.StateTable, error) {
	list, err := c.TopVaults(ctx, minTVL, excluded)
	if err != nil {
		return nil, err
	}
	out := make(vault.StateTable, len(list))
	for i, v := range list {
		c.log.Debug("retrieving vault", logx.String("vault", v.VaultAddress), logx.Int("n", i+1), logx.Int("of", len(list)))
		snap, err := c.Snapshot(ctx, v)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Warn("vault skipped", logx.String("vault", v.VaultAddress), logx.Err(err))
			continue
		}
		out.Put(snap)
	}
	return out, nil
}

func (c *Client) info(ctx context.Context, payload any, out any) error {
	return c.do(ctx, http.MethodPost, c.cfg.InfoURL, payload, out)
}

func (c *Client) do(ctx context.Context, method, url string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
