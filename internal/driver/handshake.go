package driver

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/foxseedlab/koedriver/internal/udp"
	"github.com/foxseedlab/koedriver/internal/ws"
)

var (
	ErrClosed = errors.New("driver: closed")
	// ErrProtocolViolation marks a voice gateway that answered out of
	// order or with an unusable payload.
	ErrProtocolViolation = errors.New("driver: voice gateway protocol violation")
	ErrIncompleteInfo    = errors.New("driver: connection info is incomplete")
)

// UDPConn is the voice socket. *net.UDPConn satisfies it.
type UDPConn interface {
	udp.Conn
	Write(b []byte) (int, error)
}

// Established is a voice session that finished its handshake. The driver
// takes ownership of both connections.
type Established struct {
	WS                ws.Conn
	HeartbeatInterval time.Duration
	UDP               UDPConn
	SSRC              uint32
	Mode              crypto.Mode
	Key               [crypto.KeySize]byte
}

type Handshaker interface {
	Handshake(ctx context.Context, info model.ConnectionInfo, mode crypto.Mode) (*Established, error)
}

func disconnectReason(err error) events.DisconnectReason {
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return events.ReasonTimedOut
	case errors.Is(err, context.Canceled):
		return events.ReasonAttemptDiscarded
	case errors.Is(err, ErrProtocolViolation):
		return events.ReasonProtocolViolation
	case errors.Is(err, ws.ErrClosed):
		return events.ReasonWsClosed
	case errors.As(err, &ne):
		if ne.Timeout() {
			return events.ReasonTimedOut
		}
		return events.ReasonIO
	default:
		return events.ReasonInternal
	}
}
