package feed

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotConnected is returned when sending on a closed or unopened connection.
	ErrNotConnected = errors.New("not connected")

	// ErrAlreadyClosed is returned when connecting a client after Close.
	ErrAlreadyClosed = errors.New("client already closed")

	// ErrStaleConnection is emitted when no ping or pong arrives within the
	// configured timeout.
	ErrStaleConnection = errors.New("stale connection: no ping received")
)

// State is the connector's position in its lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateSubscribed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateSubscribed:
		return "subscribed"
	default:
		return "unknown"
	}
}

// ClientConfig configures a single websocket connection.
type ClientConfig struct {
	URL          string
	PingTimeout  time.Duration
	WriteTimeout time.Duration
	BufferSize   int
}

// subscribeCommand is the per-symbol subscription frame.
type subscribeCommand struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
}

// envelope is the upstream message wrapper. Only type "trade" carries data.
type envelope struct {
	Type string      `json:"type"`
	Data []wireTrade `json:"data"`
}

// wireTrade is one trade inside a trade envelope.
type wireTrade struct {
	Symbol    string          `json:"s"`
	Price     decimal.Decimal `json:"p"`
	Volume    decimal.Decimal `json:"v"`
	Timestamp int64           `json:"t"` // ms since epoch
}
