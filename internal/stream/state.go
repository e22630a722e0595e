// Package stream keeps one websocket subscription alive, reconnecting after
// a fixed delay forever, and hands every feed message to a Handler.
package stream

import "vaultwatch/internal/hyperliquid"

// State is the subscriber's connection state.
type State int32

const (
	Disconnected State = iota
	Connecting
	Subscribed
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Subscribed:
		return "SUBSCRIBED"
	case Errored:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Session is the per-connection context passed to handlers. A new Session
// is created for every connection, so the leading-message flag resets on
// reconnect.
type Session struct {
	Number       int
	Subscription hyperliquid.Subscription

	seenFirst bool
}

// SuppressFirst reports true exactly once per session: for the first data
// message, which replays history.
func (s *Session) SuppressFirst() bool {
	if s.seenFirst {
		return false
	}
	s.seenFirst = true
	return true
}
