package codec

import (
	"encoding/binary"
	"fmt"

	"github.com/lysShub/meshcrypt/node"
)

type Type uint8

const (
	TypeUniversal Type = 1
	TypeAck       Type = 2
)

func (t Type) String() string {
	switch t {
	case TypeUniversal:
		return "universal"
	case TypeAck:
		return "ack"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// Header fields shared by all packet variants
type Header struct {
	Sender     node.ID
	Receiver   node.ID
	Broadcast  bool
	Sequence   uint16
	RetryCount uint8 // carried only, retransmit is scheduled by caller
	AckRequest bool
	Payload    []byte
}

func (h *Header) Head() *Header { return h }

// Packet is one of *Universal, *Ack.
type Packet interface {
	Head() *Header
	Type() Type
	packet()
}

// Universal carry application payload
type Universal struct {
	Header
}

func NewUniversal(sender node.ID) *Universal {
	return &Universal{Header: Header{Sender: sender}}
}

func (*Universal) Type() Type { return TypeUniversal }
func (*Universal) packet()    {}

const ackSize = 2

// Ack acknowledge the packet with sequence Acked, from Receiver to Sender.
type Ack struct {
	Header
}

func NewAck(sender node.ID, acked uint16) *Ack {
	var a = &Ack{Header: Header{Sender: sender, Payload: make([]byte, ackSize)}}
	binary.BigEndian.PutUint16(a.Payload, acked)
	return a
}

func (*Ack) Type() Type { return TypeAck }
func (*Ack) packet()    {}

func (a *Ack) Acked() uint16 {
	if len(a.Payload) < ackSize {
		return 0
	}
	return binary.BigEndian.Uint16(a.Payload)
}

func (h *Header) String() string {
	return fmt.Sprintf("%s->%s seq:%d retry:%d broadcast:%t ack:%t len:%d",
		h.Sender, h.Receiver, h.Sequence, h.RetryCount, h.Broadcast, h.AckRequest, len(h.Payload))
}
