package meshcrypt

import (
	"log/slog"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/crypto"
	"github.com/lysShub/meshcrypt/node"
)

type Config struct {
	// Identity supply local node id, required
	Identity node.Identity

	// Codec default codec.Frame
	Codec Codec

	// UnknownType decide what Recv does with a frame that decrypt and
	// checksum fine but carry a type tag this build not know.
	UnknownType UnknownPolicy

	// MaxPayload limit EncMsg payload size. LoRa phy allow 255 bytes
	// per frame, minus crypto.Overhead and codec.HeaderSize.
	MaxPayload int

	// Sniffer Conn receive all frames, ignore addressing
	Sniffer bool

	// RecvErrLimit Conn.Recv fail after this many consecutive invalid frames
	RecvErrLimit int

	Logger *slog.Logger

	// Registerer if not nil, handler metrics register to it
	Registerer prometheus.Registerer
}

const DefaultMaxPayload = 255 - crypto.Overhead - codec.HeaderSize

func (c *Config) Init() error {
	if c == nil {
		panic("nil config")
	}

	if c.Identity == nil {
		return errors.New("config require node identity")
	}
	if c.Codec == nil {
		c.Codec = codec.Frame{}
	}
	if c.MaxPayload == 0 {
		c.MaxPayload = DefaultMaxPayload
	} else if c.MaxPayload < 0 || c.MaxPayload > codec.MaxPayload {
		return errors.Errorf("invalid max payload %d", c.MaxPayload)
	}
	if c.RecvErrLimit == 0 {
		c.RecvErrLimit = 8
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

type UnknownPolicy uint8

const (
	UnknownFail UnknownPolicy = iota
	UnknownDrop
)

func (p UnknownPolicy) String() string {
	switch p {
	case UnknownFail:
		return "fail"
	case UnknownDrop:
		return "drop"
	default:
		return "invalid"
	}
}

func (p *UnknownPolicy) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "fail":
		*p = UnknownFail
	case "drop":
		*p = UnknownDrop
	default:
		return errors.Errorf("invalid unknown type policy %q", string(b))
	}
	return nil
}

// FileConfig node configuration file, toml encoded. Key given either as
// hex string or derived from Passphrase and Salt.
type FileConfig struct {
	NodeID       uint16
	Key          string
	Passphrase   string
	Salt         string
	UnknownType  UnknownPolicy
	MaxPayload   int
	Sniffer      bool
	RecvErrLimit int
}

func Load(b []byte) (*FileConfig, error) {
	var cfg = &FileConfig{}
	if _, err := toml.Decode(string(b), cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadFile(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	cfg, err := Load(b)
	if err != nil {
		return nil, errors.WithMessagef(err, "load config %s", path)
	}
	return cfg, nil
}

func (f *FileConfig) validate() error {
	if f.Key == "" && f.Passphrase == "" {
		return errors.New("config require Key or Passphrase")
	}
	if f.Key != "" && f.Passphrase != "" {
		return errors.New("config Key and Passphrase are exclusive")
	}
	if f.Key != "" {
		if _, err := crypto.ParseHexKey(f.Key); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileConfig) MeshKey() (crypto.Key, error) {
	if f.Key != "" {
		return crypto.ParseHexKey(f.Key)
	}
	return crypto.KeyFromPassphrase([]byte(f.Passphrase), []byte(f.Salt)), nil
}

// Config build handler config, identity is static NodeID
func (f *FileConfig) Config() *Config {
	return &Config{
		Identity:     node.Static(f.NodeID),
		UnknownType:  f.UnknownType,
		MaxPayload:   f.MaxPayload,
		Sniffer:      f.Sniffer,
		RecvErrLimit: f.RecvErrLimit,
	}
}
