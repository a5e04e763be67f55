package udp

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/foxseedlab/koedriver/internal/audio"
	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/config"
	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/events"
	"github.com/foxseedlab/koedriver/internal/message"
	"github.com/foxseedlab/koedriver/internal/metrics"
	"github.com/pion/rtp"
)

const (
	// SpeakingTimeout ends a speaking burst when an SSRC goes quiet.
	SpeakingTimeout = 200 * time.Millisecond
	pollInterval    = 50 * time.Millisecond
	maxPacketSize   = 1460
	rtcpHeaderLen   = 8
	// maxDecodedSamples is 120 ms of stereo audio, the longest opus frame.
	maxDecodedSamples = audio.SampleRate / 1000 * 120 * 2
)

// Conn is the socket side of the receive task. *net.UDPConn satisfies it.
type Conn interface {
	Read(b []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type RxConfig struct {
	Conn       Conn
	Cipher     crypto.Cipher
	Mode       crypto.Mode
	Driver     config.Driver
	NewDecoder audio.DecoderFactory
	Events     chanx.Sender[events.Message]
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	// OnError is called once if the socket fails while the task is live.
	OnError func(error)
}

type ssrcState struct {
	lastSeen time.Time
	speaking bool
	decoder  audio.Decoder
}

type receiver struct {
	cfg   RxConfig
	log   *slog.Logger
	ssrcs map[uint32]*ssrcState
	now   func() time.Time
}

// RunRx reads, decrypts and classifies inbound packets until poisoned. The
// socket is closed when the task exits.
func RunRx(ctx context.Context, rx chanx.Receiver[message.UDPRxMessage], cfg RxConfig) {
	defer rx.Close()
	defer cfg.Conn.Close()
	r := &receiver{
		cfg:   cfg,
		log:   cfg.Logger,
		ssrcs: make(map[uint32]*ssrcState),
		now:   time.Now,
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	buf := make([]byte, maxPacketSize)
	r.log.Debug("udp rx task started", "crypto_mode", cfg.Mode.String())
	for {
		if ctx.Err() != nil {
			r.log.Debug("udp rx task stopped", "reason", ctx.Err())
			return
		}
		if !r.drain(rx) {
			r.log.Debug("udp rx task poisoned")
			return
		}
		r.expireSpeaking()

		if err := cfg.Conn.SetReadDeadline(r.now().Add(pollInterval)); err != nil {
			r.fail(err)
			return
		}
		n, err := cfg.Conn.Read(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if !r.drain(rx) || ctx.Err() != nil {
				return
			}
			r.fail(err)
			return
		}
		r.process(buf[:n])
	}
}

// drain applies pending commands and reports whether the task should keep
// running.
func (r *receiver) drain(rx chanx.Receiver[message.UDPRxMessage]) bool {
	for {
		msg, ok := rx.TryRecv()
		if !ok {
			return true
		}
		switch msg := msg.(type) {
		case message.UDPRxPoison:
			return false
		case message.UDPRxSetConfig:
			r.cfg.Driver = msg.Config
			r.log.Debug("udp rx config updated", "decode_mode", msg.Config.DecodeMode.String())
		}
	}
}

func (r *receiver) fail(err error) {
	r.log.Warn("udp socket failed", "error", err)
	if r.cfg.OnError != nil {
		r.cfg.OnError(err)
	}
}

func isRTCP(packet []byte) bool {
	return len(packet) >= 2 && packet[1] >= 200 && packet[1] <= 204
}

func (r *receiver) process(raw []byte) {
	if len(raw) < rtcpHeaderLen || raw[0]>>6 != 2 {
		r.cfg.Metrics.UDPPacket("rx", "malformed")
		return
	}
	if isRTCP(raw) {
		r.processRTCP(raw)
		return
	}
	r.processRTP(raw)
}

// open returns a fresh packet holding the cleartext header followed by the
// decrypted body.
func (r *receiver) open(raw []byte, headerLen int) ([]byte, bool) {
	if r.cfg.Driver.DecodeMode == config.DecodePass {
		return bytes.Clone(raw), true
	}
	plain, err := r.cfg.Cipher.Open(r.cfg.Mode, raw, headerLen)
	if err != nil {
		r.cfg.Metrics.UDPPacket("rx", "decrypt_failed")
		r.log.Debug("failed to decrypt packet", "error", err)
		return nil, false
	}
	out := make([]byte, 0, headerLen+len(plain))
	out = append(out, raw[:headerLen]...)
	return append(out, plain...), true
}

func (r *receiver) processRTCP(raw []byte) {
	packet, ok := r.open(raw, rtcpHeaderLen)
	if !ok {
		return
	}
	r.cfg.Metrics.UDPPacket("rx", "rtcp")
	r.fire(events.CoreRtcpPacket{Data: &events.InternalRtcpPacket{
		Packet:        packet,
		PayloadOffset: rtcpHeaderLen,
	}})
}

func (r *receiver) processRTP(raw []byte) {
	headerLen := 12 + 4*int(raw[0]&0x0f)
	if len(raw) < headerLen {
		r.cfg.Metrics.UDPPacket("rx", "malformed")
		return
	}
	packet, ok := r.open(raw, headerLen)
	if !ok {
		return
	}

	ssrc := binary.BigEndian.Uint32(raw[8:12])
	offset := headerLen
	endPad := 0
	// Extensions and padding live inside the encrypted body, so the full
	// header can only be parsed once decrypted.
	if r.cfg.Driver.DecodeMode != config.DecodePass {
		var h rtp.Header
		n, err := h.Unmarshal(packet)
		if err != nil {
			r.cfg.Metrics.UDPPacket("rx", "malformed")
			r.log.Debug("failed to parse rtp header", "ssrc", ssrc, "error", err)
			return
		}
		offset = n
		if h.Padding && len(packet) > offset {
			endPad = int(packet[len(packet)-1])
		}
		if offset+endPad > len(packet) {
			r.cfg.Metrics.UDPPacket("rx", "malformed")
			return
		}
	}
	r.cfg.Metrics.UDPPacket("rx", "rtp")

	payload := packet[offset : len(packet)-endPad]
	st := r.track(ssrc)
	silent := bytes.Equal(payload, audio.SilenceFrame)
	r.setSpeaking(ssrc, st, !silent)

	var pcm []int16
	if r.cfg.Driver.DecodeMode == config.DecodeDecode && !silent {
		pcm = r.decode(st, ssrc, payload)
	}
	r.fire(events.CoreVoicePacket{Data: &events.InternalVoicePacket{
		SSRC:          ssrc,
		Audio:         pcm,
		Packet:        packet,
		PayloadOffset: offset,
		PayloadEndPad: endPad,
	}})
}

func (r *receiver) track(ssrc uint32) *ssrcState {
	st, ok := r.ssrcs[ssrc]
	if !ok {
		st = &ssrcState{}
		r.ssrcs[ssrc] = st
	}
	st.lastSeen = r.now()
	return st
}

func (r *receiver) decode(st *ssrcState, ssrc uint32, payload []byte) []int16 {
	if st.decoder == nil {
		if r.cfg.NewDecoder == nil {
			return nil
		}
		dec, err := r.cfg.NewDecoder()
		if err != nil {
			r.log.Warn("failed to create decoder", "ssrc", ssrc, "error", err)
			return nil
		}
		st.decoder = dec
	}
	pcm := make([]int16, maxDecodedSamples)
	n, err := st.decoder.Decode(payload, pcm)
	if err != nil {
		r.log.Debug("failed to decode voice packet", "ssrc", ssrc, "error", err)
		return nil
	}
	return pcm[:n]
}

func (r *receiver) setSpeaking(ssrc uint32, st *ssrcState, speaking bool) {
	if st.speaking == speaking {
		return
	}
	st.speaking = speaking
	r.fire(events.CoreSpeakingUpdate{Data: events.InternalSpeakingUpdate{SSRC: ssrc, Speaking: speaking}})
}

func (r *receiver) expireSpeaking() {
	now := r.now()
	for ssrc, st := range r.ssrcs {
		if st.speaking && now.Sub(st.lastSeen) >= SpeakingTimeout {
			r.setSpeaking(ssrc, st, false)
		}
	}
}

func (r *receiver) fire(c events.CoreContext) {
	if err := r.cfg.Events.Send(events.FireCoreEvent{Ctx: c}); err != nil {
		r.log.Debug("event task unavailable; dropping event", "error", err)
	}
}
