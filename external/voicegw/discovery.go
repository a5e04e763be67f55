package voicegw

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/foxseedlab/koedriver/internal/driver"
)

const (
	discoveryLen      = 74
	discoveryRequest  = 0x1
	discoveryResponse = 0x2
)

// discoverIP asks the voice server for the public address it sees for conn.
func discoverIP(conn *net.UDPConn, ssrc uint32, deadline time.Time) (string, uint16, error) {
	req := make([]byte, discoveryLen)
	binary.BigEndian.PutUint16(req[0:2], discoveryRequest)
	binary.BigEndian.PutUint16(req[2:4], discoveryLen-4)
	binary.BigEndian.PutUint32(req[4:8], ssrc)
	if _, err := conn.Write(req); err != nil {
		return "", 0, fmt.Errorf("send ip discovery: %w", err)
	}

	_ = conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})
	resp := make([]byte, discoveryLen)
	n, err := conn.Read(resp)
	if err != nil {
		return "", 0, fmt.Errorf("read ip discovery: %w", err)
	}
	return parseDiscovery(resp[:n], ssrc)
}

func parseDiscovery(b []byte, ssrc uint32) (string, uint16, error) {
	if len(b) < discoveryLen {
		return "", 0, fmt.Errorf("%w: ip discovery response has %d bytes", driver.ErrProtocolViolation, len(b))
	}
	if binary.BigEndian.Uint16(b[0:2]) != discoveryResponse {
		return "", 0, fmt.Errorf("%w: ip discovery response type %#x", driver.ErrProtocolViolation, b[0:2])
	}
	if got := binary.BigEndian.Uint32(b[4:8]); got != ssrc {
		return "", 0, fmt.Errorf("%w: ip discovery for ssrc %d, expected %d", driver.ErrProtocolViolation, got, ssrc)
	}
	addr := b[8:72]
	if i := bytes.IndexByte(addr, 0); i >= 0 {
		addr = addr[:i]
	}
	if net.ParseIP(string(addr)) == nil {
		return "", 0, fmt.Errorf("%w: ip discovery address %q", driver.ErrProtocolViolation, addr)
	}
	return string(addr), binary.BigEndian.Uint16(b[72:74]), nil
}
