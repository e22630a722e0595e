package app

import (
	"fmt"
	"strings"
	"time"

	"vaultwatch/internal/alert"
	"vaultwatch/internal/config"
	"vaultwatch/internal/delivery"
	"vaultwatch/internal/hyperliquid"
	"vaultwatch/internal/monitor"
	"vaultwatch/internal/observability/debug"
	"vaultwatch/internal/stream"
	logx "vaultwatch/pkg/logx"
)

// Mode selects what the process watches.
type Mode string

const (
	ModePoll   Mode = "poll"
	ModeStream Mode = "stream"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModePoll, ModeStream:
		return m, nil
	case "":
		return ModePoll, nil
	default:
		return "", fmt.Errorf("unsupported mode %q (want poll or stream)", s)
	}
}

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File: logx.FileConfig{
			Enabled:    lc.File.Enabled,
			Path:       lc.File.Path,
			MaxSizeMB:  lc.File.MaxSizeMB,
			MaxBackups: lc.File.MaxBackups,
			MaxAgeDays: lc.File.MaxAgeDays,
			Compress:   lc.File.Compress,
		},
		Notify: logx.NotifyConfig{
			Enabled:    lc.Telegram.Enabled && cfg.Telegram.OpsChatID != 0,
			Target:     cfg.OpsChat(),
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func (m Mode) policy(cfg *config.Config) config.DeliveryPolicy {
	if m == ModeStream {
		return cfg.Delivery.Stream
	}
	return cfg.Delivery.Poll
}

func mapPolicy(p config.DeliveryPolicy) delivery.Policy {
	return delivery.Policy{
		MaxRetries:         p.MaxRetries,
		RetryAfter:         p.RetryAfter.D(),
		InterFragmentDelay: p.InterFragmentDelay.D(),
		SendTimeout:        p.SendTimeout.D(),
	}
}

func mapAlertOptions(p config.DeliveryPolicy, loc *time.Location) alert.Options {
	return alert.Options{Location: loc, FragmentLimit: p.MaxFragmentLen}
}

func mapClientConfig(cfg *config.Config) hyperliquid.Config {
	pc := cfg.Poll
	return hyperliquid.Config{
		InfoURL:      pc.InfoURL,
		VaultsURL:    pc.VaultsURL,
		Timeout:      pc.Timeout.D(),
		RequestPause: pc.RequestPause.D(),
		MaxRetries:   pc.FetchMaxRetries,
		RetryAfter:   pc.FetchRetryAfter.D(),
	}
}

func mapPollerConfig(cfg *config.Config, loc *time.Location) monitor.Config {
	t := cfg.Thresholds
	return monitor.Config{
		Thresholds: monitor.Thresholds{
			MinTVL:           t.MinTVL,
			MinAPR:           t.MinAPR,
			MinPositionCount: t.MinPositionCount,
			Excluded:         append([]string(nil), t.ExcludedAddresses...),
		},
		Alerts:       mapAlertOptions(cfg.Delivery.Poll, loc),
		TerminalPath: cfg.Output.TerminalPath,
	}
}

func mapStreamConfig(cfg *config.Config, addr string, loc *time.Location) stream.Config {
	sc := cfg.Stream
	return stream.Config{
		Subscription: hyperliquid.Subscription{
			Type:            cfg.Tracking.SubscriptionType,
			User:            addr,
			AggregateByTime: cfg.Tracking.AggregateByTime,
		},
		ReconnectDelay: sc.ReconnectDelay.D(),
		PingInterval:   sc.PingInterval.D(),
		Buffer:         sc.Buffer,
		Alerts:         mapAlertOptions(cfg.Delivery.Stream, loc),
	}
}

func mapDialer(cfg *config.Config) stream.WSDialer {
	sc := cfg.Stream
	url := strings.TrimSpace(sc.URL)
	if url == "" {
		url = hyperliquid.DefaultWSURL
	}
	return stream.WSDialer{
		URL:              url,
		HandshakeTimeout: sc.HandshakeTimeout.D(),
		ReadTimeout:      sc.ReadTimeout.D(),
		WriteTimeout:     10 * time.Second,
	}
}

func mapDebugConfig(cfg *config.Config) debug.Config {
	return debug.Config{Enabled: cfg.Debug.Enabled, Addr: cfg.Debug.Addr, Token: cfg.Debug.Token}
}
