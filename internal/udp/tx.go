// Package udp runs the voice transport tasks. Each connection generation gets
// its own transmit and receive task, stopped by the poison markers sent when
// the mixer drops the connection.
package udp

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"time"

	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/metrics"
)

const (
	KeepaliveInterval = 5 * time.Second
	keepaliveSize     = 8
)

type TxConfig struct {
	Conn    io.Writer
	SSRC    uint32
	Metrics *metrics.Metrics
	Logger  *slog.Logger
	// Keepalive overrides KeepaliveInterval when positive.
	Keepalive time.Duration
}

// RunTx writes packets queued by the mixer and keeps the NAT binding alive.
// Packets from a generation older than the newest one seen are dropped.
func RunTx(ctx context.Context, rx chanx.Receiver[message.UDPTxMessage], cfg TxConfig) {
	defer rx.Close()
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	interval := cfg.Keepalive
	if interval <= 0 {
		interval = KeepaliveInterval
	}
	keepalive := make([]byte, keepaliveSize)
	binary.BigEndian.PutUint32(keepalive, cfg.SSRC)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	var filter message.GenerationFilter
	log.Debug("udp tx task started", "ssrc", cfg.SSRC)
	for {
		select {
		case <-ctx.Done():
			log.Debug("udp tx task stopped", "ssrc", cfg.SSRC, "reason", ctx.Err())
			return
		case <-ticker.C:
			if _, err := cfg.Conn.Write(keepalive); err != nil {
				log.Debug("failed to send udp keepalive", "ssrc", cfg.SSRC, "error", err)
			}
		case <-rx.Notify():
			for {
				msg, ok := rx.TryRecv()
				if !ok {
					break
				}
				switch msg := msg.(type) {
				case message.UDPTxPoison:
					log.Debug("udp tx task poisoned", "ssrc", cfg.SSRC)
					return
				case message.UDPTxPacket:
					if !filter.Accept(msg.Generation) {
						cfg.Metrics.UDPPacket("tx", "stale")
						continue
					}
					if _, err := cfg.Conn.Write(msg.Data); err != nil {
						cfg.Metrics.UDPPacket("tx", "error")
						log.Debug("failed to write voice packet", "ssrc", cfg.SSRC, "generation", msg.Generation, "error", err)
						continue
					}
					cfg.Metrics.UDPPacket("tx", "ok")
				}
			}
		}
	}
}
