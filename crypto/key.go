package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/argon2"
)

// ParseKey copy b as Key, b must be exactly Bytes long
func ParseKey(b []byte) (Key, error) {
	if len(b) != Bytes {
		return Key{}, errors.Wrapf(ErrInvalidKeyLength, "got %d", len(b))
	}
	return Key(b), nil
}

func ParseHexKey(s string) (Key, error) {
	b, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Key{}, errors.WithStack(err)
	}
	return ParseKey(b)
}

// argon2id parameters, all nodes of one mesh must agree on them
const (
	argonTime    = 3
	argonMemory  = 32 * 1024
	argonThreads = 4
)

// KeyFromPassphrase derive mesh key from a shared passphrase. salt is
// usually the mesh name, so different meshes with same passphrase not
// share key.
func KeyFromPassphrase(passphrase, salt []byte) Key {
	return Key(argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, Bytes))
}

func RandKey() (Key, error) {
	var k Key
	if _, err := rand.Read(k[:]); err != nil {
		return Key{}, errors.WithStack(err)
	}
	return k, nil
}
