// Package voicegw opens a voice session against a Discord voice server: the
// gateway handshake over a websocket followed by UDP IP discovery.
package voicegw

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"slices"
	"strconv"
	"time"

	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/driver"
	"github.com/foxseedlab/koedriver/internal/model"
	"github.com/gorilla/websocket"
)

const (
	gatewayVersion = "4"
	defaultTimeout = 10 * time.Second
)

type Handshaker struct {
	Dialer *websocket.Dialer
	// Scheme of the gateway URL, wss unless overridden.
	Scheme  string
	Timeout time.Duration
	Logger  *slog.Logger
}

func New(logger *slog.Logger) *Handshaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handshaker{
		Dialer:  &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		Scheme:  "wss",
		Timeout: defaultTimeout,
		Logger:  logger,
	}
}

func (h *Handshaker) Handshake(ctx context.Context, info model.ConnectionInfo, mode crypto.Mode) (*driver.Established, error) {
	deadline := time.Now().Add(h.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	u := url.URL{Scheme: h.scheme(), Host: info.Endpoint, Path: "/", RawQuery: "v=" + gatewayVersion}
	dialer := h.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial voice gateway %s: %w", info.Endpoint, err)
	}
	// Unblock reads when ctx is cancelled before the deadline.
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()
	_ = conn.SetReadDeadline(deadline)

	est, err := h.negotiate(ctx, conn, info, mode, deadline)
	if err != nil {
		_ = conn.Close()
		ctxErr := ctx.Err()
		if ctxErr == nil && !time.Now().Before(deadline) {
			ctxErr = context.DeadlineExceeded
		}
		if ctxErr != nil && !errors.Is(err, ctxErr) {
			err = fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	// The cancel hook must be gone before the deadline is cleared, or a late
	// cancellation would leave the established socket unreadable.
	if !stop() {
		_ = conn.Close()
		_ = est.UDP.Close()
		return nil, fmt.Errorf("voice gateway handshake cancelled: %w", context.Cause(ctx))
	}
	_ = conn.SetReadDeadline(time.Time{})
	return est, nil
}

func (h *Handshaker) negotiate(ctx context.Context, conn *websocket.Conn, info model.ConnectionInfo, mode crypto.Mode, deadline time.Time) (*driver.Established, error) {
	var hello model.Hello
	if err := expect(conn, model.OpHello, &hello); err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(model.GatewayRequest{Op: model.OpIdentify, Data: model.Identify{
		ServerID:  info.GuildID,
		UserID:    info.UserID,
		SessionID: info.SessionID,
		Token:     info.Token,
	}}); err != nil {
		return nil, fmt.Errorf("send identify: %w", err)
	}

	var ready model.Ready
	if err := expect(conn, model.OpReady, &ready); err != nil {
		return nil, err
	}
	if !slices.Contains(ready.Modes, mode.String()) {
		return nil, fmt.Errorf("%w: server does not offer %s", driver.ErrProtocolViolation, mode)
	}
	h.Logger.Debug("voice gateway ready", "guild_id", info.GuildID, "ssrc", ready.SSRC, "ip", ready.IP, "port", ready.Port)

	udpConn, err := (&net.Dialer{}).DialContext(ctx, "udp", net.JoinHostPort(ready.IP, strconv.Itoa(ready.Port)))
	if err != nil {
		return nil, fmt.Errorf("dial voice udp: %w", err)
	}
	udp := udpConn.(*net.UDPConn)
	ok := false
	defer func() {
		if !ok {
			_ = udp.Close()
		}
	}()

	addr, port, err := discoverIP(udp, ready.SSRC, deadline)
	if err != nil {
		return nil, err
	}
	if err := conn.WriteJSON(model.GatewayRequest{Op: model.OpSelectProtocol, Data: model.SelectProtocol{
		Protocol: "udp",
		Data:     model.SelectProtocolData{Address: addr, Port: port, Mode: mode.String()},
	}}); err != nil {
		return nil, fmt.Errorf("send select protocol: %w", err)
	}

	var desc model.SessionDescription
	if err := expect(conn, model.OpSessionDescription, &desc); err != nil {
		return nil, err
	}
	if desc.Mode != mode.String() {
		return nil, fmt.Errorf("%w: session uses %q, requested %s", driver.ErrProtocolViolation, desc.Mode, mode)
	}
	ok = true
	return &driver.Established{
		WS:                conn,
		HeartbeatInterval: time.Duration(hello.HeartbeatInterval * float64(time.Millisecond)),
		UDP:               udp,
		SSRC:              ready.SSRC,
		Mode:              mode,
		Key:               desc.SecretKey,
	}, nil
}

// expect reads gateway events until op arrives. Events a fresh session may
// legitimately see in between are skipped.
func expect(conn *websocket.Conn, op int, v any) error {
	for {
		var ev model.GatewayEvent
		if err := conn.ReadJSON(&ev); err != nil {
			return fmt.Errorf("read voice gateway event (waiting for op %d): %w", op, err)
		}
		switch ev.Op {
		case op:
			if err := json.Unmarshal(ev.Data, v); err != nil {
				return fmt.Errorf("%w: op %d payload: %v", driver.ErrProtocolViolation, op, err)
			}
			return nil
		case model.OpHello, model.OpHeartbeatAck, model.OpSpeaking, model.OpClientDisconnect:
			continue
		default:
			return fmt.Errorf("%w: unexpected op %d while waiting for op %d", driver.ErrProtocolViolation, ev.Op, op)
		}
	}
}

func (h *Handshaker) scheme() string {
	if h.Scheme == "" {
		return "wss"
	}
	return h.Scheme
}

func (h *Handshaker) timeout() time.Duration {
	if h.Timeout <= 0 {
		return defaultTimeout
	}
	return h.Timeout
}
