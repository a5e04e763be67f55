package mixer

import (
	"sync"

	"github.com/foxseedlab/koedriver/internal/chanx"
	"github.com/foxseedlab/koedriver/internal/crypto"
	"github.com/foxseedlab/koedriver/internal/message"
)

// Connection is one live encrypted transport session as seen by the mixer.
// Whoever drops a Connection must call Close so the network tasks behind it
// stop.
type Connection struct {
	Cipher crypto.Cipher
	Crypto *crypto.State
	UDPRx  chanx.Sender[message.UDPRxMessage]
	UDPTx  chanx.Sender[message.UDPTxMessage]
	SSRC   uint32

	closeOnce sync.Once
}

func NewConnection(cipher crypto.Cipher, state *crypto.State, ssrc uint32, udpRx chanx.Sender[message.UDPRxMessage], udpTx chanx.Sender[message.UDPTxMessage]) *Connection {
	return &Connection{
		Cipher: cipher,
		Crypto: state,
		UDPRx:  udpRx,
		UDPTx:  udpTx,
		SSRC:   ssrc,
	}
}

// Close poisons the receive and transmit tasks. Only the first call sends;
// a task that already exited is ignored.
func (c *Connection) Close() {
	if c == nil {
		return
	}
	c.closeOnce.Do(func() {
		_ = c.UDPRx.Send(message.UDPRxPoison{})
		_ = c.UDPTx.Send(message.UDPTxPoison{})
	})
}
