package meshcrypt

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/crypto"
)

var (
	ErrInvalidKeyLength    = crypto.ErrInvalidKeyLength
	ErrInvalidPacketLength = crypto.ErrInvalidPacketLength
	ErrUnknownPacketType   = codec.ErrUnknownPacketType
	ErrUnsupportedDataType = errors.New("unsupported data type")
)

type ErrRecvTooManyErrors struct{ error }

func (e *ErrRecvTooManyErrors) Error() string {
	return fmt.Sprintf("meshcrypt recv too many error: %s", e.error.Error())
}

func (e *ErrRecvTooManyErrors) Unwrap() error { return e.error }

type ErrOverflowPayload int

func (e ErrOverflowPayload) Error() string {
	return fmt.Sprintf("payload size %d overflow limit", int(e))
}
