package meshcrypt

import "github.com/lysShub/meshcrypt/codec"

// Codec build and parse plaintext frames. Decode must return the concrete
// packet variant, and an error wrapping codec.ErrUnknownPacketType for a
// tag it not know.
type Codec interface {
	Encode(p codec.Packet) ([]byte, error)
	Decode(b []byte) (codec.Packet, error)
}

var _ Codec = codec.Frame{}
