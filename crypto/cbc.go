package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"io"

	"github.com/pkg/errors"
)

var (
	ErrInvalidKeyLength    = errors.Errorf("key must be %d bytes", Bytes)
	ErrInvalidPacketLength = errors.New("invalid encrypted packet length")
	ErrInvalidPadding      = errors.New("invalid padding")
)

// CBC AES-256-CBC with PKCS#7 padding, wire format is iv || ciphertext.
//
// cipher.Block returned by crypto/aes is reentrant, every call build
// it's own BlockMode, so CBC is safe for concurrent use.
type CBC struct {
	block cipher.Block
	rand  io.Reader
}

var _ Crypto = (*CBC)(nil)

func NewCBC(key Key) (*CBC, error) {
	return newCBC(key, rand.Reader)
}

func newCBC(key Key, rand io.Reader) (*CBC, error) {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &CBC{block: block, rand: rand}, nil
}

func (c *CBC) Overhead() int { return Overhead }

// GenerateIV read n bytes from crypto random source
func (c *CBC) GenerateIV(n int) ([]byte, error) {
	iv := make([]byte, n)
	if _, err := io.ReadFull(c.rand, iv); err != nil {
		return nil, errors.WithStack(err)
	}
	return iv, nil
}

func (c *CBC) Encrypt(plaintext []byte) ([]byte, error) {
	pad := BlockSize - len(plaintext)%BlockSize

	iv, err := c.GenerateIV(IVBytes)
	if err != nil {
		return nil, err
	}
	blob := make([]byte, IVBytes+len(plaintext)+pad)
	copy(blob, iv)
	n := copy(blob[IVBytes:], plaintext)
	for i := IVBytes + n; i < len(blob); i++ {
		blob[i] = byte(pad)
	}

	cipher.NewCBCEncrypter(c.block, iv).CryptBlocks(blob[IVBytes:], blob[IVBytes:])
	return blob, nil
}

func (c *CBC) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < IVBytes {
		return nil, errors.WithStack(ErrInvalidPacketLength)
	}
	iv, ct := blob[:IVBytes], blob[IVBytes:]
	if len(ct) == 0 || len(ct)%BlockSize != 0 {
		return nil, errors.WithStack(ErrInvalidPacketLength)
	}

	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(c.block, iv).CryptBlocks(plain, ct)
	return unpad(plain)
}

func unpad(b []byte) ([]byte, error) {
	pad := int(b[len(b)-1])
	if pad == 0 || pad > BlockSize || pad > len(b) {
		return nil, errors.WithStack(ErrInvalidPadding)
	}

	var want = make([]byte, pad)
	for i := range want {
		want[i] = byte(pad)
	}
	if subtle.ConstantTimeCompare(b[len(b)-pad:], want) != 1 {
		return nil, errors.WithStack(ErrInvalidPadding)
	}
	return b[:len(b)-pad], nil
}
