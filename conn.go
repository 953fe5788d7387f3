package meshcrypt

import (
	"context"
	"log/slog"

	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"

	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/node"
)

// Radio transmit and receive whole encrypted frames
type Radio interface {
	Write(ctx context.Context, frame []byte) error
	Read(ctx context.Context) (frame []byte, err error)
	Close() error
}

// Conn mesh datagram conn over a Radio. Send is safe for concurrent
// use, Recv should be called from one goroutine.
type Conn struct {
	radio   Radio
	h       *Handler
	tinyCnt int

	closeErr errorx.CloseErr
}

func NewConn(radio Radio, h *Handler) *Conn {
	return &Conn{radio: radio, h: h}
}

func (c *Conn) Handler() *Handler { return c.h }

func (c *Conn) Send(ctx context.Context, payload []byte, receiver node.ID, opts ...MsgOption) error {
	frame, err := c.h.EncMsg(payload, receiver, opts...)
	if err != nil {
		return err
	}
	return c.radio.Write(ctx, frame)
}

func (c *Conn) SendAck(ctx context.Context, to codec.Packet) error {
	hdr := to.Head()
	frame, err := c.h.EncAck(hdr.Sender, hdr.Sequence)
	if err != nil {
		return err
	}
	return c.radio.Write(ctx, frame)
}

// Recv read next packet delivered to this node. Invalid frames return
// temporary error, after Config.RecvErrLimit consecutive invalid frames
// return ErrRecvTooManyErrors.
func (c *Conn) Recv(ctx context.Context) (codec.Packet, error) {
	for {
		frame, err := c.radio.Read(ctx)
		if err != nil {
			return nil, err
		}

		p, ok, err := c.h.Recv(frame, c.h.config.Sniffer)
		if err != nil {
			if c.tinyCnt++; c.tinyCnt > c.h.config.RecvErrLimit {
				return nil, errors.WithStack(&ErrRecvTooManyErrors{err})
			}

			c.h.config.Logger.Warn(err.Error(), slog.Int("len", len(frame)))
			return nil, errorx.WrapTemp(err)
		}
		c.tinyCnt = 0

		if !ok {
			continue
		}
		return p, nil
	}
}

func (c *Conn) close(cause error) error {
	return c.closeErr.Close(func() (errs []error) {
		errs = append(errs, cause)
		if c.radio != nil {
			errs = append(errs, c.radio.Close())
		}
		return
	})
}

func (c *Conn) Close() error { return c.close(nil) }
