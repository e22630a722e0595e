package hyperliquid

import (
	"encoding/json"
	"strings"
	"time"
)

// Feed types accepted by the websocket subscription.
const (
	FeedUserFills    = "userFills"
	FeedOrderUpdates = "orderUpdates"
)

// Channels carried in the envelope of inbound websocket frames.
const (
	ChannelSubscriptionResponse = "subscriptionResponse"
	ChannelPong                 = "pong"
	ChannelError                = "error"
)

type Subscription struct {
	Type            string `json:"type"`
	User            string `json:"user"`
	AggregateByTime bool   `json:"aggregateByTime,omitempty"`
}

type Request struct {
	Method       string        `json:"method"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

func SubscribeRequest(sub Subscription) Request {
	return Request{Method: "subscribe", Subscription: &sub}
}

func PingRequest() Request { return Request{Method: "ping"} }

// Envelope is the outer shape of every inbound frame.
type Envelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(b, &env)
	return env, err
}

type FillsMessage struct {
	User       string `json:"user"`
	IsSnapshot bool   `json:"isSnapshot"`
	Fills      []Fill `json:"fills"`
}

type Fill struct {
	Coin string `json:"coin"`
	Px   Num    `json:"px"`
	Sz   Num    `json:"sz"`
	Side string `json:"side"`
	Time Num    `json:"time"`
	Dir  string `json:"dir"`
	Hash string `json:"hash"`
}

func (f Fill) SizeUSD() float64 { return f.Px.Float() * f.Sz.Float() }

func (f Fill) Timestamp() time.Time { return millis(f.Time) }

type Order struct {
	Coin      string `json:"coin"`
	Side      string `json:"side"`
	LimitPx   Num    `json:"limitPx"`
	Sz        Num    `json:"sz"`
	OrigSz    Num    `json:"origSz"`
	Oid       int64  `json:"oid"`
	Timestamp Num    `json:"timestamp"`
}

// Direction maps the book side to a position direction: A is the ask side.
func (o Order) Direction() string {
	switch strings.ToUpper(strings.TrimSpace(o.Side)) {
	case "A":
		return "Short"
	case "B":
		return "Long"
	default:
		return "Unknown"
	}
}

func (o Order) SizeUSD() float64 { return o.LimitPx.Float() * o.Sz.Float() }

func (o Order) Time() time.Time { return millis(o.Timestamp) }

type OrderUpdate struct {
	Order           Order  `json:"order"`
	Status          string `json:"status"`
	StatusTimestamp Num    `json:"statusTimestamp"`
}

func millis(n Num) time.Time { return time.UnixMilli(int64(n)) }
