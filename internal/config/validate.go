package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"vaultwatch/internal/transport"
)

// ErrUnsupportedChat is returned for a chat selector other than GROUP or USER.
var ErrUnsupportedChat = errors.New("config: unsupported chat selector")

const (
	ChatGroup = "GROUP"
	ChatUser  = "USER"
)

// Validate rejects configs that would fail at runtime. It never touches the
// network.
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("config: nil")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Tracking.SubscriptionType {
	case SubscriptionUserFills, SubscriptionOrderUpdates:
	default:
		return fmt.Errorf("tracking.subscription_type: unsupported %q (want %s or %s)",
			c.Tracking.SubscriptionType, SubscriptionUserFills, SubscriptionOrderUpdates)
	}
	for i, a := range c.Tracking.Addresses {
		if strings.TrimSpace(a) == "" {
			return fmt.Errorf("tracking.addresses[%d]: empty address", i)
		}
	}

	t := c.Thresholds
	if t.MinTVL < 0 {
		return fmt.Errorf("thresholds.min_tvl must be >= 0")
	}
	if t.MinAPR < 0 {
		return fmt.Errorf("thresholds.min_apr must be >= 0")
	}
	if t.MinPositionCount < 0 {
		return fmt.Errorf("thresholds.min_position_count must be >= 0")
	}

	if err := c.Delivery.Poll.validate("delivery.poll"); err != nil {
		return err
	}
	if err := c.Delivery.Stream.validate("delivery.stream"); err != nil {
		return err
	}

	if c.Poll.FetchMaxRetries < 1 {
		return fmt.Errorf("poll.fetch_max_retries must be >= 1")
	}
	if c.Stream.Buffer < 0 {
		return fmt.Errorf("stream.buffer must be >= 0")
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "file", "json", "sqlite", "sqlite3":
	default:
		return fmt.Errorf("storage.driver: unsupported %q", c.Storage.Driver)
	}
	return nil
}

func (p DeliveryPolicy) validate(path string) error {
	if p.MaxRetries < 1 {
		return fmt.Errorf("%s.max_retries must be >= 1", path)
	}
	if p.MaxFragmentLen < 0 {
		return fmt.Errorf("%s.max_fragment_len must be >= 0", path)
	}
	return nil
}

// Location resolves Timezone; empty means UTC.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timezone)
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone: invalid %q: %w", tz, err)
	}
	return loc, nil
}

// ResolveChat maps the poll-mode chat selector to a chat target.
func (c *Config) ResolveChat(selector string) (transport.ChatTarget, error) {
	var id int64
	switch strings.ToUpper(strings.TrimSpace(selector)) {
	case ChatGroup:
		id = c.Telegram.GroupChatID
	case ChatUser:
		id = c.Telegram.UserChatID
	default:
		return transport.ChatTarget{}, fmt.Errorf("%w: %q", ErrUnsupportedChat, selector)
	}
	if id == 0 {
		return transport.ChatTarget{}, fmt.Errorf("telegram: no chat id configured for %s", strings.ToUpper(selector))
	}
	return transport.ChatTarget{ChatID: id}, nil
}

// StreamChat is the chat stream-mode alerts go to.
func (c *Config) StreamChat() (transport.ChatTarget, error) {
	if c.Telegram.StreamChatID == 0 {
		return transport.ChatTarget{}, errors.New("telegram.stream_chat_id is required in stream mode")
	}
	return transport.ChatTarget{ChatID: c.Telegram.StreamChatID}, nil
}

// OpsChat is where forwarded log lines go; zero when unset.
func (c *Config) OpsChat() transport.ChatTarget {
	return transport.ChatTarget{ChatID: c.Telegram.OpsChatID, ThreadID: c.Logging.Telegram.ThreadID}
}
