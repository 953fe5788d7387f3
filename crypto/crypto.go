package crypto

const (
	Bytes     = 32 // key size, AES-256
	IVBytes   = 16
	BlockSize = 16

	// Overhead max bytes Encrypt adds to plaintext: iv and a full padding block
	Overhead = IVBytes + BlockSize
)

type Key = [Bytes]byte

// Crypto encrypt/decrypt whole datagram. implement must be safe for
// concurrent use, the handler shares one instance between all callers.
type Crypto interface {
	Overhead() int
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(blob []byte) ([]byte, error)
}
