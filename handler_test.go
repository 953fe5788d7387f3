package meshcrypt

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/crypto"
	"github.com/lysShub/meshcrypt/node"
)

var key = crypto.Key{9: 1}

func newHandler(t *testing.T, id node.ID, cfgs ...func(*Config)) *Handler {
	t.Helper()
	var cfg = &Config{Identity: node.Static(id)}
	for _, fn := range cfgs {
		fn(cfg)
	}
	h, err := NewWithKey(key, cfg)
	require.NoError(t, err)
	return h
}

func Test_New(t *testing.T) {
	t.Run("key length", func(t *testing.T) {
		for _, n := range []int{0, 16, 31, 33} {
			_, err := New(make([]byte, n), &Config{Identity: node.Static(1)})
			require.True(t, errors.Is(err, ErrInvalidKeyLength), n)
		}

		h, err := New(make([]byte, crypto.Bytes), &Config{Identity: node.Static(1)})
		require.NoError(t, err)
		require.Equal(t, node.ID(1), h.LocalID())
	})

	t.Run("key copied", func(t *testing.T) {
		var k = make([]byte, crypto.Bytes)
		h, err := New(k, &Config{Identity: node.Static(1)})
		require.NoError(t, err)

		blob, err := h.Encrypt([]byte("hello"))
		require.NoError(t, err)
		k[0] = 0xff
		plain, err := h.Decrypt(blob)
		require.NoError(t, err)
		require.Equal(t, []byte("hello"), plain)
	})

	t.Run("identity required", func(t *testing.T) {
		_, err := NewWithKey(key, &Config{})
		require.Error(t, err)
	})
}

func Test_EncryptDecrypt(t *testing.T) {
	var h = newHandler(t, 1)

	t.Run("recover", func(t *testing.T) {
		r := rand.New(rand.NewSource(0))
		for i := 0; i < 64; i++ {
			plain := make([]byte, r.Intn(300))
			r.Read(plain)

			blob, err := h.Encrypt(plain)
			require.NoError(t, err)
			got, err := h.Decrypt(blob)
			require.NoError(t, err)
			require.True(t, bytes.Equal(plain, got))
		}
	})

	t.Run("nondeterministic", func(t *testing.T) {
		b1, err := h.Encrypt([]byte("hello"))
		require.NoError(t, err)
		b2, err := h.Encrypt([]byte("hello"))
		require.NoError(t, err)
		require.NotEqual(t, b1, b2)
	})

	t.Run("short", func(t *testing.T) {
		for _, n := range []int{0, 1, 15} {
			_, err := h.Decrypt(make([]byte, n))
			require.True(t, errors.Is(err, ErrInvalidPacketLength), n)

			_, _, err = h.Recv(make([]byte, n), true)
			require.True(t, errors.Is(err, ErrInvalidPacketLength), n)
		}
	})
}

func Test_EncMsg(t *testing.T) {
	var (
		sender   = newHandler(t, 1)
		receiver = newHandler(t, 7)
	)

	t.Run("default", func(t *testing.T) {
		blob, err := sender.EncMsg([]byte("hello"), 7)
		require.NoError(t, err)

		plain, err := receiver.Decrypt(blob)
		require.NoError(t, err)
		p, err := codec.Decode(plain)
		require.NoError(t, err)

		u, ok := p.(*codec.Universal)
		require.True(t, ok)
		require.Equal(t, node.ID(1), u.Sender)
		require.Equal(t, node.ID(7), u.Receiver)
		require.Equal(t, []byte("hello"), u.Payload)
		require.True(t, u.AckRequest)
		require.False(t, u.Broadcast)
		require.Zero(t, u.Sequence)
		require.Zero(t, u.RetryCount)
	})

	t.Run("options", func(t *testing.T) {
		blob, err := sender.EncMsg([]byte("hello"), 7,
			WithSequence(12), WithRetryCount(2), WithAckRequest(false),
			WithBroadcast(), WithDataType(DataUniversal),
		)
		require.NoError(t, err)

		p, ok, err := receiver.Recv(blob, false)
		require.NoError(t, err)
		require.True(t, ok)
		hdr := p.Head()
		require.Equal(t, uint16(12), hdr.Sequence)
		require.Equal(t, uint8(2), hdr.RetryCount)
		require.False(t, hdr.AckRequest)
		require.True(t, hdr.Broadcast)
	})

	t.Run("unsupported data type", func(t *testing.T) {
		_, err := sender.EncMsg([]byte("hello"), 7, WithDataType("stream"))
		require.True(t, errors.Is(err, ErrUnsupportedDataType))
	})

	t.Run("payload too large", func(t *testing.T) {
		_, err := sender.EncMsg(make([]byte, DefaultMaxPayload+1), 7)
		var e ErrOverflowPayload
		require.True(t, errors.As(err, &e))
		require.Equal(t, DefaultMaxPayload+1, int(e))
		require.False(t, errors.Is(err, codec.ErrPayloadTooLarge))

		blob, err := sender.EncMsg(make([]byte, DefaultMaxPayload), 7)
		require.NoError(t, err)
		require.LessOrEqual(t, len(blob), 255)
	})
}

func Test_HelloToNode7(t *testing.T) {
	var cfg = func(id node.ID) *Config { return &Config{Identity: node.Static(id)} }

	n1, err := NewWithKey(crypto.Key{}, cfg(1))
	require.NoError(t, err)
	blob, err := n1.EncMsg([]byte("hello"), 7)
	require.NoError(t, err)

	serialized := codec.HeaderSize + len("hello")
	require.Equal(t, 16+(serialized+15)/16*16, len(blob))

	n7, err := NewWithKey(crypto.Key{}, cfg(7))
	require.NoError(t, err)
	p, ok, err := n7.Recv(blob, false)
	require.NoError(t, err)
	require.True(t, ok)
	u, ok := p.(*codec.Universal)
	require.True(t, ok)
	require.Equal(t, []byte("hello"), u.Payload)
	require.Equal(t, node.ID(1), u.Sender)
	require.Equal(t, node.ID(7), u.Receiver)

	n2, err := NewWithKey(crypto.Key{}, cfg(2))
	require.NoError(t, err)
	p, ok, err = n2.Recv(blob, false)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, p)
}

func Test_RecvFilter(t *testing.T) {
	var (
		sender = newHandler(t, 1)
		other  = newHandler(t, 2)
	)

	unicast, err := sender.EncMsg([]byte("x"), 7)
	require.NoError(t, err)
	broadcast, err := sender.EncMsg([]byte("x"), 7, WithBroadcast())
	require.NoError(t, err)

	t.Run("not for us", func(t *testing.T) {
		p, ok, err := other.Recv(unicast, false)
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, p)
	})

	t.Run("broadcast", func(t *testing.T) {
		p, ok, err := other.Recv(broadcast, false)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, node.ID(7), p.Head().Receiver)
	})

	t.Run("sniffer", func(t *testing.T) {
		p, ok, err := other.Recv(unicast, true)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, []byte("x"), p.Head().Payload)
	})

	t.Run("runtime identity", func(t *testing.T) {
		var id = node.NewVar(2)
		h, err := NewWithKey(key, &Config{Identity: id})
		require.NoError(t, err)

		_, ok, err := h.Recv(unicast, false)
		require.NoError(t, err)
		require.False(t, ok)

		id.Set(7)
		_, ok, err = h.Recv(unicast, false)
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func Test_RecvAck(t *testing.T) {
	var (
		n1 = newHandler(t, 1)
		n7 = newHandler(t, 7)
	)

	blob, err := n7.EncAck(1, 33, WithSequence(4))
	require.NoError(t, err)

	p, ok, err := n1.Recv(blob, false)
	require.NoError(t, err)
	require.True(t, ok)
	a, ok := p.(*codec.Ack)
	require.True(t, ok)
	require.Equal(t, uint16(33), a.Acked())
	require.Equal(t, uint16(4), a.Sequence)
	require.Equal(t, node.ID(7), a.Sender)
	require.False(t, a.AckRequest)
}

func Test_RecvWrongKey(t *testing.T) {
	var sender = newHandler(t, 1)
	other, err := NewWithKey(crypto.Key{9: 2}, &Config{Identity: node.Static(7)})
	require.NoError(t, err)

	for i := 0; i < 16; i++ {
		blob, err := sender.EncMsg(bytes.Repeat([]byte{byte(i)}, i*7), 7)
		require.NoError(t, err)

		_, ok, err := other.Recv(blob, true)
		require.Error(t, err)
		require.False(t, ok)
	}
}

type mocker struct {
	codec.Frame
}

func (mocker) Decode(b []byte) (codec.Packet, error) {
	return nil, errors.Wrapf(codec.ErrUnknownPacketType, "%d", 0x7f)
}

func Test_UnknownType(t *testing.T) {
	var sender = newHandler(t, 1)
	blob, err := sender.EncMsg([]byte("x"), 7)
	require.NoError(t, err)

	t.Run("fail", func(t *testing.T) {
		h := newHandler(t, 7, func(c *Config) { c.Codec = mocker{} })
		_, ok, err := h.Recv(blob, false)
		require.True(t, errors.Is(err, ErrUnknownPacketType))
		require.False(t, ok)
	})

	t.Run("drop", func(t *testing.T) {
		h := newHandler(t, 7, func(c *Config) {
			c.Codec = mocker{}
			c.UnknownType = UnknownDrop
		})
		p, ok, err := h.Recv(blob, false)
		require.NoError(t, err)
		require.False(t, ok)
		require.Nil(t, p)
		require.Equal(t, 1.0, testutil.ToFloat64(h.m.dropped.WithLabelValues(dropUnknownType)))
	})
}

func Test_Metrics(t *testing.T) {
	var reg = prometheus.NewRegistry()
	var withReg = func(c *Config) { c.Registerer = reg }

	h1 := newHandler(t, 1, withReg)
	h2 := newHandler(t, 2, withReg)

	blob, err := h1.EncMsg([]byte("x"), 7)
	require.NoError(t, err)
	_, ok, err := h2.Recv(blob, false)
	require.NoError(t, err)
	require.False(t, ok)
	_, ok, err = h2.Recv(blob, true)
	require.NoError(t, err)
	require.True(t, ok)
	_, _, err = h2.Recv(blob[:8], true)
	require.Error(t, err)

	require.Equal(t, 1.0, testutil.ToFloat64(h2.m.sealed.WithLabelValues("universal")))
	require.Equal(t, 1.0, testutil.ToFloat64(h1.m.opened.WithLabelValues("universal")))
	require.Equal(t, 1.0, testutil.ToFloat64(h1.m.dropped.WithLabelValues(dropNotForUs)))
	require.Equal(t, 1.0, testutil.ToFloat64(h1.m.errors.WithLabelValues(stageDecrypt)))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func Test_Concurrent(t *testing.T) {
	var (
		sender   = newHandler(t, 1)
		receiver = newHandler(t, 7)
		eg       errgroup.Group
	)

	for i := 0; i < 16; i++ {
		i := i
		eg.Go(func() error {
			for j := 0; j < 64; j++ {
				payload := []byte{byte(i), byte(j)}
				blob, err := sender.EncMsg(payload, 7, WithSequence(uint16(j)))
				if err != nil {
					return err
				}
				p, ok, err := receiver.Recv(blob, false)
				if err != nil {
					return err
				} else if !ok {
					return errors.New("packet dropped")
				}
				if !bytes.Equal(payload, p.Head().Payload) || p.Head().Sequence != uint16(j) {
					return errors.Errorf("mismatch %d-%d", i, j)
				}
			}
			return nil
		})
	}
	require.NoError(t, eg.Wait())
}
