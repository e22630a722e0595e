package config

import "time"

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`

	// Timezone renders alert timestamps and drives the poll schedule.
	Timezone string `json:"timezone,omitempty"`

	Tracking   TrackingConfig   `json:"tracking"`
	Thresholds ThresholdsConfig `json:"thresholds"`
	Delivery   DeliveryConfig   `json:"delivery"`
	Poll       PollConfig       `json:"poll"`
	Stream     StreamConfig     `json:"stream"`
	Storage    StorageConfig    `json:"storage"`
	Debug      DebugConfig      `json:"debug,omitempty"`
	Output     OutputConfig     `json:"output,omitempty"`
}

// TelegramConfig holds the bot token and the chats alerts go to.
// The token may also come from VAULTWATCH_TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token  string `json:"token"`
	APIURL string `json:"api_url,omitempty"`

	GroupChatID  int64 `json:"group_chat_id,omitempty"`
	UserChatID   int64 `json:"user_chat_id,omitempty"`
	StreamChatID int64 `json:"stream_chat_id,omitempty"`
	OpsChatID    int64 `json:"ops_chat_id,omitempty"`

	Timeout Duration `json:"timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// LoggingTelegram forwards WARN+ log lines to telegram.ops_chat_id.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TrackingConfig selects what the stream mode subscribes to.
type TrackingConfig struct {
	Addresses        []string `json:"addresses"`
	SubscriptionType string   `json:"subscription_type"`
	AggregateByTime  bool     `json:"aggregate_by_time,omitempty"`
}

type ThresholdsConfig struct {
	MinTVL            float64  `json:"min_tvl"`
	MinAPR            float64  `json:"min_apr"`
	MinPositionCount  int      `json:"min_position_count"`
	ExcludedAddresses []string `json:"excluded_addresses"`
}

type DeliveryConfig struct {
	Poll   DeliveryPolicy `json:"poll"`
	Stream DeliveryPolicy `json:"stream"`
}

// DeliveryPolicy bounds retries per fragment. MaxRetries counts attempts.
// SendTimeout bounds each attempt; the Telegram request itself is also cut
// off by telegram.timeout.
type DeliveryPolicy struct {
	MaxRetries         int      `json:"max_retries"`
	RetryAfter         Duration `json:"retry_after"`
	InterFragmentDelay Duration `json:"inter_fragment_delay,omitempty"`
	SendTimeout        Duration `json:"send_timeout,omitempty"`
	MaxFragmentLen     int      `json:"max_fragment_len,omitempty"`
}

// PollConfig controls the vault polling cycle.
//
// Schedule accepts a cron expression ("*/15 * * * *"), a Go duration
// ("15m") or an "HH:MM" interval ("00:30"). Empty runs a single cycle and exits.
type PollConfig struct {
	Schedule        string   `json:"schedule,omitempty"`
	InfoURL         string   `json:"info_url,omitempty"`
	VaultsURL       string   `json:"vaults_url,omitempty"`
	Timeout         Duration `json:"timeout,omitempty"`
	RequestPause    Duration `json:"request_pause,omitempty"`
	FetchMaxRetries int      `json:"fetch_max_retries"`
	FetchRetryAfter Duration `json:"fetch_retry_after"`
}

type StreamConfig struct {
	URL              string   `json:"url,omitempty"`
	ReconnectDelay   Duration `json:"reconnect_delay"`
	HandshakeTimeout Duration `json:"handshake_timeout,omitempty"`
	PingInterval     Duration `json:"ping_interval,omitempty"`
	ReadTimeout      Duration `json:"read_timeout,omitempty"`
	Buffer           int      `json:"buffer,omitempty"`
}

// StorageConfig selects the snapshot store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./vaultwatch.db" }
type StorageConfig struct {
	Driver      string   `json:"driver"`
	Path        string   `json:"path"`
	BusyTimeout Duration `json:"busy_timeout,omitempty"`
}

// DebugConfig controls the optional pprof + /metrics HTTP server.
// Prefer binding to localhost.
type DebugConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}

type OutputConfig struct {
	// TerminalPath receives the plain rendering of the last vault update.
	// "-" disables the file.
	TerminalPath string `json:"terminal_path,omitempty"`
}

// HLP vaults are excluded from the leaderboard by default.
var defaultExcluded = []string{
	"0xdfc24b077bc1425ad1dea75bcb6f8158e10df303",
	"0x010461c14e146ac35fe42271bdc1134ee31c703a",
	"0x2e3d94f0562703b25c83308a05046ddaf9a8dd14",
	"0x31ca8395cf837de08b24da3f660e77761dfb974b",
}

const (
	SubscriptionUserFills    = "userFills"
	SubscriptionOrderUpdates = "orderUpdates"

	DefaultTerminalPath = "latest_vault_updates_terminal_output.txt"
)

// Default returns a config with every field set to its documented default.
// Parse decodes on top of it, so omitted keys keep these values.
func Default() Config {
	return Config{
		Telegram: TelegramConfig{Timeout: Duration(10 * time.Second)},
		Logging: LoggingConfig{
			Level:   "INFO",
			Console: true,
			File:    LoggingFile{Path: "./logs/vaultwatch.log"},
			Telegram: LoggingTelegram{
				MinLevel:   "WARN",
				RatePerSec: 1,
			},
		},
		Timezone: "Asia/Singapore",
		Tracking: TrackingConfig{SubscriptionType: SubscriptionUserFills},
		Thresholds: ThresholdsConfig{
			MinTVL:            1e5,
			MinAPR:            10,
			MinPositionCount:  3,
			ExcludedAddresses: append([]string(nil), defaultExcluded...),
		},
		Delivery: DeliveryConfig{
			Poll: DeliveryPolicy{
				MaxRetries:         10,
				RetryAfter:         Duration(10 * time.Second),
				InterFragmentDelay: Duration(time.Second),
				SendTimeout:        Duration(30 * time.Second),
				MaxFragmentLen:     4000,
			},
			Stream: DeliveryPolicy{
				MaxRetries:     1,
				RetryAfter:     Duration(5 * time.Second),
				SendTimeout:    Duration(30 * time.Second),
				MaxFragmentLen: 4000,
			},
		},
		Poll: PollConfig{
			Timeout:         Duration(30 * time.Second),
			FetchMaxRetries: 10,
			FetchRetryAfter: Duration(10 * time.Second),
		},
		Stream: StreamConfig{
			ReconnectDelay:   Duration(2 * time.Second),
			HandshakeTimeout: Duration(10 * time.Second),
			PingInterval:     Duration(50 * time.Second),
			Buffer:           64,
		},
		Storage: StorageConfig{Driver: "file", Path: "./vault_snapshot.json"},
		Debug:   DebugConfig{Addr: "127.0.0.1:6060"},
		Output:  OutputConfig{TerminalPath: DefaultTerminalPath},
	}
}
