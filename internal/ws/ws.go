// Package ws runs the voice gateway control channel once the handshake has
// completed: heartbeats, outbound speaking state and inbound user events.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/model"
)

// ErrClosed is reported when the gateway closes the control channel.
var ErrClosed = errors.New("ws: voice gateway closed the connection")

// Conn is satisfied by *websocket.Conn.
type Conn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

type Config struct {
	Conn              Conn
	SSRC              uint32
	HeartbeatInterval time.Duration
	Events            chanx.Sender[events.Message]
	Logger            *slog.Logger
	// OnError is called once if the channel fails while the task is live.
	OnError func(error)
}

type task struct {
	cfg     Config
	log     *slog.Logger
	pending int
}

// Run owns all writes to cfg.Conn. Reads happen on a helper goroutine that
// ends when the connection is closed on exit.
func Run(ctx context.Context, rx chanx.Receiver[message.WsMessage], cfg Config) {
	defer rx.Close()
	defer cfg.Conn.Close()
	t := &task{cfg: cfg, log: cfg.Logger}
	if t.log == nil {
		t.log = slog.Default()
	}
	interval := cfg.HeartbeatInterval
	if interval <= 0 {
		interval = 41250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	inbound := make(chan model.GatewayEvent)
	readErr := make(chan error, 1)
	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	go t.readLoop(readCtx, inbound, readErr)

	t.log.Debug("ws task started", "ssrc", cfg.SSRC, "heartbeat_interval", interval.String())
	for {
		select {
		case <-ctx.Done():
			t.log.Debug("ws task stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			if err := t.heartbeat(); err != nil {
				t.fail(err)
				return
			}
		case ev := <-inbound:
			t.handleEvent(ev)
		case err := <-readErr:
			if !t.drain(rx, ticker) {
				return
			}
			t.fail(err)
			return
		case <-rx.Notify():
			if !t.drain(rx, ticker) {
				t.log.Debug("ws task poisoned")
				return
			}
		}
	}
}

// drain applies pending commands and reports whether the task should keep
// running.
func (t *task) drain(rx chanx.Receiver[message.WsMessage], ticker *time.Ticker) bool {
	for {
		msg, ok := rx.TryRecv()
		if !ok {
			return true
		}
		switch msg := msg.(type) {
		case message.WsPoison:
			return false
		case message.WsSetKeepalive:
			if msg.Interval > 0 {
				ticker.Reset(msg.Interval)
			}
		case message.WsSpeaking:
			if err := t.speaking(msg.Speaking); err != nil {
				t.log.Debug("failed to send speaking state", "speaking", msg.Speaking, "error", err)
			}
		}
	}
}

func (t *task) readLoop(ctx context.Context, out chan<- model.GatewayEvent, errs chan<- error) {
	for {
		var ev model.GatewayEvent
		if err := t.cfg.Conn.ReadJSON(&ev); err != nil {
			errs <- err
			return
		}
		select {
		case out <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func (t *task) heartbeat() error {
	if t.pending > 1 {
		t.log.Warn("voice gateway missed heartbeat acks", "pending", t.pending)
	}
	t.pending++
	nonce := time.Now().UnixMilli()
	return t.cfg.Conn.WriteJSON(model.GatewayRequest{Op: model.OpHeartbeat, Data: nonce})
}

func (t *task) speaking(on bool) error {
	var state model.SpeakingState
	if on {
		state = model.SpeakingMicrophone
	}
	delay := uint32(0)
	return t.cfg.Conn.WriteJSON(model.GatewayRequest{
		Op: model.OpSpeaking,
		Data: model.Speaking{
			Delay:    &delay,
			Speaking: state,
			SSRC:     t.cfg.SSRC,
		},
	})
}

func (t *task) handleEvent(ev model.GatewayEvent) {
	switch ev.Op {
	case model.OpHeartbeatAck:
		var nonce int64
		if err := json.Unmarshal(ev.Data, &nonce); err == nil {
			t.log.Debug("heartbeat acknowledged", "latency_ms", time.Now().UnixMilli()-nonce)
		}
		t.pending = 0
	case model.OpSpeaking:
		var s model.Speaking
		if err := json.Unmarshal(ev.Data, &s); err != nil {
			t.log.Debug("failed to parse speaking payload", "error", err)
			return
		}
		t.fire(events.CoreSpeakingStateUpdate{Data: s})
	case model.OpClientDisconnect:
		var cd model.ClientDisconnect
		if err := json.Unmarshal(ev.Data, &cd); err != nil {
			t.log.Debug("failed to parse client disconnect payload", "error", err)
			return
		}
		t.fire(events.CoreClientDisconnect{Data: cd})
	default:
		t.log.Debug("ignoring voice gateway event", "op", ev.Op)
	}
}

func (t *task) fire(c events.CoreContext) {
	if err := t.cfg.Events.Send(events.FireCoreEvent{Ctx: c}); err != nil {
		t.log.Debug("event task unavailable; dropping event", "error", err)
	}
}

func (t *task) fail(err error) {
	err = fmt.Errorf("%w: %w", ErrClosed, err)
	t.log.Warn("voice gateway connection failed", "error", err)
	if t.cfg.OnError != nil {
		t.cfg.OnError(err)
	}
}
