package config

import (
	"reflect"
	"sort"
	"strings"

	logx "vaultwatch/pkg/logx"
)

// RestartSections are applied only at startup; a change is logged but not
// picked up until the process restarts.
var RestartSections = map[string]bool{
	"telegram": true,
	"tracking": true,
	"stream":   true,
	"storage":  true,
	"debug":    true,
}

// SummarizeConfigChange returns the sorted list of changed sections and
// safe structured attrs for logging. Tokens are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.GroupChatID != n.GroupChatID || o.UserChatID != n.UserChatID ||
		o.StreamChatID != n.StreamChatID || o.OpsChatID != n.OpsChatID ||
		o.APIURL != n.APIURL || o.Timeout != n.Timeout ||
		o.Token != n.Token {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Bool("telegram.token_set", n.Token != ""),
			logx.Bool("telegram.token_changed", o.Token != n.Token),
		)
	}

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
			logx.Bool("logging.telegram_enabled", newCfg.Logging.Telegram.Enabled),
		)
	}

	if strings.TrimSpace(oldCfg.Timezone) != strings.TrimSpace(newCfg.Timezone) {
		changed = append(changed, "timezone")
		attrs = append(attrs, logx.String("timezone", strings.TrimSpace(newCfg.Timezone)))
	}

	if !reflect.DeepEqual(oldCfg.Tracking, newCfg.Tracking) {
		changed = append(changed, "tracking")
		attrs = append(attrs,
			logx.Int("tracking.addresses", len(newCfg.Tracking.Addresses)),
			logx.String("tracking.subscription_type", newCfg.Tracking.SubscriptionType),
		)
	}

	if !reflect.DeepEqual(oldCfg.Thresholds, newCfg.Thresholds) {
		t := newCfg.Thresholds
		changed = append(changed, "thresholds")
		attrs = append(attrs,
			logx.Float64("thresholds.min_tvl", t.MinTVL),
			logx.Float64("thresholds.min_apr", t.MinAPR),
			logx.Int("thresholds.min_position_count", t.MinPositionCount),
			logx.Int("thresholds.excluded", len(t.ExcludedAddresses)),
		)
	}

	if oldCfg.Delivery != newCfg.Delivery {
		changed = append(changed, "delivery")
		attrs = append(attrs,
			logx.Int("delivery.poll.max_retries", newCfg.Delivery.Poll.MaxRetries),
			logx.Duration("delivery.poll.retry_after", newCfg.Delivery.Poll.RetryAfter.D()),
			logx.Int("delivery.stream.max_retries", newCfg.Delivery.Stream.MaxRetries),
			logx.Duration("delivery.stream.retry_after", newCfg.Delivery.Stream.RetryAfter.D()),
		)
	}

	if oldCfg.Poll != newCfg.Poll {
		changed = append(changed, "poll")
		attrs = append(attrs,
			logx.String("poll.schedule", newCfg.Poll.Schedule),
			logx.Int("poll.fetch_max_retries", newCfg.Poll.FetchMaxRetries),
		)
	}

	if oldCfg.Stream != newCfg.Stream {
		changed = append(changed, "stream")
		attrs = append(attrs, logx.Duration("stream.reconnect_delay", newCfg.Stream.ReconnectDelay.D()))
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Storage.Path) != ""),
		)
	}

	od, nd := oldCfg.Debug, newCfg.Debug
	if od.Enabled != nd.Enabled || od.Addr != nd.Addr || (od.Token != "") != (nd.Token != "") {
		changed = append(changed, "debug")
		attrs = append(attrs,
			logx.Bool("debug.enabled", nd.Enabled),
			logx.String("debug.addr", nd.Addr),
			logx.Bool("debug.token_set", nd.Token != ""),
		)
	}

	if oldCfg.Output != newCfg.Output {
		changed = append(changed, "output")
		attrs = append(attrs, logx.String("output.terminal_path", newCfg.Output.TerminalPath))
	}

	sort.Strings(changed)
	return changed, attrs
}
