package meshcrypt

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/crypto"
	"github.com/lysShub/meshcrypt/node"
)

// Handler seal payloads into encrypted mesh frames and open received
// frames. All methods are safe for concurrent use, the key is the only
// state and never change after New.
type Handler struct {
	config *Config
	crypto crypto.Crypto
	m      *metrics
}

// New create handler, key must be crypto.Bytes long, it's copied.
func New(key []byte, config *Config) (*Handler, error) {
	k, err := crypto.ParseKey(key)
	if err != nil {
		return nil, err
	}
	return NewWithKey(k, config)
}

func NewWithKey(key crypto.Key, config *Config) (*Handler, error) {
	if err := config.Init(); err != nil {
		return nil, err
	}

	cbc, err := crypto.NewCBC(key)
	if err != nil {
		return nil, err
	}
	return &Handler{
		config: config,
		crypto: cbc,
		m:      newMetrics(config.Registerer, config.Logger),
	}, nil
}

func (h *Handler) LocalID() node.ID { return h.config.Identity.ID() }

// Encrypt return iv || ciphertext, iv is fresh random every call.
func (h *Handler) Encrypt(plaintext []byte) ([]byte, error) {
	return h.crypto.Encrypt(plaintext)
}

func (h *Handler) Decrypt(blob []byte) ([]byte, error) {
	return h.crypto.Decrypt(blob)
}

// EncMsg build an universal packet from local node to receiver and
// encrypt it, ready for transmit.
func (h *Handler) EncMsg(payload []byte, receiver node.ID, opts ...MsgOption) ([]byte, error) {
	var o = defaultMsgOptions()
	for _, opt := range opts {
		opt(&o)
	}

	var p codec.Packet
	switch o.dataType {
	case DataUniversal:
		u := codec.NewUniversal(h.LocalID())
		u.Payload = payload
		p = u
	default:
		return nil, errors.Wrapf(ErrUnsupportedDataType, "%q", string(o.dataType))
	}
	return h.seal(p, receiver, o)
}

// EncAck build an ack for the packet acked received from receiver.
func (h *Handler) EncAck(receiver node.ID, acked uint16, opts ...MsgOption) ([]byte, error) {
	var o = defaultMsgOptions()
	o.ackRequest = false
	for _, opt := range opts {
		opt(&o)
	}
	return h.seal(codec.NewAck(h.LocalID(), acked), receiver, o)
}

func (h *Handler) seal(p codec.Packet, receiver node.ID, o msgOptions) ([]byte, error) {
	hdr := p.Head()
	if len(hdr.Payload) > h.config.MaxPayload {
		return nil, errors.WithStack(ErrOverflowPayload(len(hdr.Payload)))
	}
	hdr.Receiver = receiver
	hdr.Broadcast = o.broadcast
	hdr.Sequence = o.seq
	hdr.RetryCount = o.retry
	hdr.AckRequest = o.ackRequest

	plain, err := h.config.Codec.Encode(p)
	if err != nil {
		return nil, err
	}
	blob, err := h.Encrypt(plain)
	if err != nil {
		return nil, err
	}
	h.m.sealed.WithLabelValues(p.Type().String()).Inc()
	return blob, nil
}

// Recv decrypt and parse blob. ok is false when the packet is neither
// broadcast nor addressed to local node, and sniffer not set; that's a
// silent drop, not an error.
func (h *Handler) Recv(blob []byte, sniffer bool) (p codec.Packet, ok bool, err error) {
	plain, err := h.Decrypt(blob)
	if err != nil {
		h.m.errors.WithLabelValues(stageDecrypt).Inc()
		return nil, false, err
	}

	p, err = h.config.Codec.Decode(plain)
	if err != nil {
		if errors.Is(err, codec.ErrUnknownPacketType) && h.config.UnknownType == UnknownDrop {
			h.m.dropped.WithLabelValues(dropUnknownType).Inc()
			h.config.Logger.Debug("drop packet", slog.String("reason", err.Error()))
			return nil, false, nil
		}
		h.m.errors.WithLabelValues(stageDecode).Inc()
		return nil, false, err
	}

	hdr := p.Head()
	if !(hdr.Broadcast || hdr.Receiver == h.LocalID() || sniffer) {
		h.m.dropped.WithLabelValues(dropNotForUs).Inc()
		h.config.Logger.Debug("drop packet",
			slog.String("reason", dropNotForUs),
			slog.String("header", hdr.String()),
		)
		return nil, false, nil
	}
	h.m.opened.WithLabelValues(p.Type().String()).Inc()
	return p, true, nil
}
