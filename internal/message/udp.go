// Package message defines the commands exchanged with the network tasks that
// sit beside the mixer.
package message

import (
	"time"

	"github.com/foxseedlab/koedriver/internal/config"
)

// UDPRxMessage is consumed by the receive task.
type UDPRxMessage interface {
	isUDPRxMessage()
}

type UDPRxSetConfig struct {
	Config config.Driver
}

type UDPRxPoison struct{}

func (UDPRxSetConfig) isUDPRxMessage() {}
func (UDPRxPoison) isUDPRxMessage()    {}

// UDPTxMessage is consumed by the transmit task.
type UDPTxMessage interface {
	isUDPTxMessage()
}

// UDPTxPacket is an encrypted datagram produced under one connection
// generation.
type UDPTxPacket struct {
	Generation uint32
	Data       []byte
}

type UDPTxPoison struct{}

func (UDPTxPacket) isUDPTxMessage() {}
func (UDPTxPoison) isUDPTxMessage() {}

// WsMessage is consumed by the control-channel task.
type WsMessage interface {
	isWsMessage()
}

type WsSpeaking struct {
	Speaking bool
}

type WsSetKeepalive struct {
	Interval time.Duration
}

type WsPoison struct{}

func (WsSpeaking) isWsMessage()     {}
func (WsSetKeepalive) isWsMessage() {}
func (WsPoison) isWsMessage()       {}
