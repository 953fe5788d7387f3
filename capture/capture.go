// Package capture record raw radio frames to file, the frames stay
// encrypted, decode them later with the mesh key in sniffer mode.
package capture

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/lysShub/netkit/errorx"
	"github.com/pkg/errors"

	"github.com/lysShub/meshcrypt"
)

type Dir uint8

const (
	Inbound  Dir = 1
	Outbound Dir = 2
)

func (d Dir) String() string {
	switch d {
	case Inbound:
		return "in"
	case Outbound:
		return "out"
	default:
		return "unknown"
	}
}

type Record struct {
	Time  time.Time `cbor:"time"`
	Dir   Dir       `cbor:"dir"`
	Frame []byte    `cbor:"frame"`
}

var encMode = func() cbor.EncMode {
	em, err := cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

type RadioWrap struct {
	meshcrypt.Radio

	mu       sync.Mutex
	fd       *os.File
	enc      *cbor.Encoder
	closeErr errorx.CloseErr
}

var _ meshcrypt.Radio = (*RadioWrap)(nil)

// WrapRadio append every frame through child to file path
func WrapRadio(child meshcrypt.Radio, path string) (*RadioWrap, error) {
	fd, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &RadioWrap{Radio: child, fd: fd, enc: encMode.NewEncoder(fd)}, nil
}

func (r *RadioWrap) Read(ctx context.Context) ([]byte, error) {
	frame, err := r.Radio.Read(ctx)
	if err != nil {
		return nil, err
	}
	return frame, r.record(Inbound, frame)
}

func (r *RadioWrap) Write(ctx context.Context, frame []byte) error {
	if err := r.record(Outbound, frame); err != nil {
		return err
	}
	return r.Radio.Write(ctx, frame)
}

func (r *RadioWrap) record(dir Dir, frame []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	err := r.enc.Encode(Record{Time: time.Now(), Dir: dir, Frame: frame})
	return errors.WithStack(err)
}

// Close close capture file and child radio, return the first error.
func (r *RadioWrap) Close() error {
	return r.closeErr.Close(func() (errs []error) {
		r.mu.Lock()
		errs = append(errs, errors.WithStack(r.fd.Close()))
		r.mu.Unlock()

		errs = append(errs, errors.WithStack(r.Radio.Close()))
		return errs
	})
}

func ReadFile(path string) ([]Record, error) {
	fd, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer fd.Close()
	return Read(fd)
}

func Read(r io.Reader) (rs []Record, err error) {
	dec := cbor.NewDecoder(r)
	for {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				return rs, nil
			}
			return rs, errors.WithStack(err)
		}
		rs = append(rs, rec)
	}
}
