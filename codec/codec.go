// Package codec build and parse the plaintext mesh frame.
//
// frame layout, big endian:
//
//	0       1       2               4               6               8               10              12      13
//	+-------+-------+---------------+---------------+---------------+---------------+---------------+-------+---------
//	| type  | flags |    sender     |   receiver    |   sequence    |  payload len  |   checksum    | retry | payload
//	+-------+-------+---------------+---------------+---------------+---------------+---------------+-------+---------
//
// checksum is the internet checksum of the whole frame, its offset must
// be even to line up with the summed 16-bit words. Frames are only ever
// seen after CBC decryption, which has no integrity by itself, so the
// checksum is what rejects frames sealed under another key.
package codec

import (
	"bytes"
	"encoding/binary"
	"math"

	"github.com/lysShub/netkit/debug"
	"github.com/lysShub/netkit/packet"
	"github.com/pkg/errors"
	"gvisor.dev/gvisor/pkg/tcpip/checksum"

	"github.com/lysShub/meshcrypt/node"
)

const (
	offType     = 0
	offFlags    = 1
	offSender   = 2
	offReceiver = 4
	offSeq      = 6
	offLen      = 8
	offSum      = 10
	offRetry    = 12
	HeaderSize  = 13

	MaxPayload = math.MaxUint16
)

const (
	flagBroadcast  uint8 = 0x01
	flagAckRequest uint8 = 0x02
)

var (
	ErrTruncated         = errors.New("frame truncated")
	ErrLengthMismatch    = errors.New("frame payload length mismatch")
	ErrChecksum          = errors.New("frame checksum mismatch")
	ErrPayloadTooLarge   = errors.New("frame payload too large")
	ErrUnknownPacketType = errors.New("unknown packet type")
)

func Encode(p Packet) ([]byte, error) {
	h := p.Head()
	if len(h.Payload) > MaxPayload {
		return nil, errors.Wrapf(ErrPayloadTooLarge, "%d bytes", len(h.Payload))
	}

	// reserve head room, Attach write header in place
	var b = make([]byte, HeaderSize+len(h.Payload))
	copy(b[HeaderSize:], h.Payload)
	pkt := packet.From(b).SetHead(HeaderSize)
	pkt.Attach(h.encode(p.Type()))

	b = pkt.Bytes()
	binary.BigEndian.PutUint16(b[offSum:], ^checksum.Checksum(b, 0))
	if debug.Debug() && checksum.Checksum(b, 0) != 0xffff {
		panic("codec: invalid frame checksum")
	}
	return b, nil
}

// Decode parse b as the concrete packet variant named by its type tag.
// b is not retained.
func Decode(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return nil, errors.WithStack(ErrTruncated)
	}
	pkt := packet.From(b)

	hdr := pkt.Bytes()[:HeaderSize]
	if n := int(binary.BigEndian.Uint16(hdr[offLen:])); n != len(b)-HeaderSize {
		return nil, errors.Wrapf(ErrLengthMismatch, "header %d, got %d", n, len(b)-HeaderSize)
	}
	if checksum.Checksum(b, 0) != 0xffff {
		return nil, errors.WithStack(ErrChecksum)
	}

	var h Header
	h.decode(hdr)
	pkt.SetHead(pkt.Head() + HeaderSize)
	h.Payload = bytes.Clone(pkt.Bytes())

	switch t := Type(hdr[offType]); t {
	case TypeUniversal:
		return &Universal{Header: h}, nil
	case TypeAck:
		if len(h.Payload) < ackSize {
			return nil, errors.Wrap(ErrTruncated, "ack payload")
		}
		return &Ack{Header: h}, nil
	default:
		return nil, errors.Wrapf(ErrUnknownPacketType, "%d", uint8(t))
	}
}

func (h *Header) encode(t Type) []byte {
	var b = make([]byte, HeaderSize)
	b[offType] = byte(t)
	if h.Broadcast {
		b[offFlags] |= flagBroadcast
	}
	if h.AckRequest {
		b[offFlags] |= flagAckRequest
	}
	binary.BigEndian.PutUint16(b[offSender:], uint16(h.Sender))
	binary.BigEndian.PutUint16(b[offReceiver:], uint16(h.Receiver))
	binary.BigEndian.PutUint16(b[offSeq:], h.Sequence)
	b[offRetry] = h.RetryCount
	binary.BigEndian.PutUint16(b[offLen:], uint16(len(h.Payload)))
	return b
}

func (h *Header) decode(b []byte) {
	flags := b[offFlags]
	h.Broadcast = flags&flagBroadcast != 0
	h.AckRequest = flags&flagAckRequest != 0
	h.Sender = node.ID(binary.BigEndian.Uint16(b[offSender:]))
	h.Receiver = node.ID(binary.BigEndian.Uint16(b[offReceiver:]))
	h.Sequence = binary.BigEndian.Uint16(b[offSeq:])
	h.RetryCount = b[offRetry]
}

// Frame default codec of the mesh
type Frame struct{}

func (Frame) Encode(p Packet) ([]byte, error) { return Encode(p) }
func (Frame) Decode(b []byte) (Packet, error) { return Decode(b) }
