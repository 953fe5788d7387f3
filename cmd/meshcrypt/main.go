package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/lysShub/meshcrypt"
	"github.com/lysShub/meshcrypt/capture"
	"github.com/lysShub/meshcrypt/codec"
	"github.com/lysShub/meshcrypt/crypto"
	"github.com/lysShub/meshcrypt/node"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	config   string
	logLevel string
}

func newRootCommand() *cobra.Command {
	var f rootFlags

	cmd := &cobra.Command{
		Use:          "meshcrypt",
		Short:        "seal and open encrypted mesh frames",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&f.config, "config", "c", "node.toml", "node configuration file")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")

	cmd.AddCommand(
		newKeygenCommand(),
		newSealCommand(&f),
		newOpenCommand(&f),
		newDumpCommand(&f),
	)
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var passphrase, salt string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "print a new mesh key as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var key crypto.Key
			if passphrase != "" {
				key = crypto.KeyFromPassphrase([]byte(passphrase), []byte(salt))
			} else {
				var err error
				if key, err = crypto.RandKey(); err != nil {
					return err
				}
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(key[:]))
			return err
		},
	}
	cmd.Flags().StringVarP(&passphrase, "passphrase", "p", "", "derive key from passphrase")
	cmd.Flags().StringVarP(&salt, "salt", "s", "", "salt for passphrase, usually mesh name")
	return cmd
}

func newSealCommand(f *rootFlags) *cobra.Command {
	var (
		to        uint16
		seq       uint16
		retry     uint8
		noAck     bool
		broadcast bool
	)

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "encrypt stdin payload into a frame, print it as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(f)
			if err != nil {
				return err
			}
			payload, err := io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return errors.WithStack(err)
			}

			var opts = []meshcrypt.MsgOption{
				meshcrypt.WithSequence(seq),
				meshcrypt.WithRetryCount(retry),
				meshcrypt.WithAckRequest(!noAck),
			}
			if broadcast {
				opts = append(opts, meshcrypt.WithBroadcast())
			}
			frame, err := h.EncMsg(payload, node.ID(to), opts...)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(frame))
			return err
		},
	}
	cmd.Flags().Uint16VarP(&to, "to", "t", 0, "receiver node id")
	cmd.Flags().Uint16Var(&seq, "seq", 0, "sequence number")
	cmd.Flags().Uint8Var(&retry, "retry", 0, "retry count")
	cmd.Flags().BoolVar(&noAck, "no-ack", false, "not request ack")
	cmd.Flags().BoolVarP(&broadcast, "broadcast", "b", false, "broadcast to all nodes")
	return cmd
}

func newOpenCommand(f *rootFlags) *cobra.Command {
	var sniffer bool

	cmd := &cobra.Command{
		Use:   "open",
		Short: "decrypt hex frames from stdin, one per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(f)
			if err != nil {
				return err
			}

			s := bufio.NewScanner(cmd.InOrStdin())
			for s.Scan() {
				line := strings.TrimSpace(s.Text())
				if line == "" {
					continue
				}
				frame, err := hex.DecodeString(line)
				if err != nil {
					return errors.WithStack(err)
				}
				if err := open(cmd.OutOrStdout(), h, frame, sniffer); err != nil {
					return err
				}
			}
			return errors.WithStack(s.Err())
		},
	}
	cmd.Flags().BoolVar(&sniffer, "sniffer", false, "show frames not addressed to this node")
	return cmd
}

func newDumpCommand(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "dump FILE",
		Short: "decrypt and print a capture file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := newHandler(f)
			if err != nil {
				return err
			}
			rs, err := capture.ReadFile(args[0])
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			for _, r := range rs {
				_, err := fmt.Fprintf(w, "%s %-3s ", r.Time.Format("15:04:05.000"), r.Dir)
				if err != nil {
					return errors.WithStack(err)
				}
				if e := open(w, h, r.Frame, true); e != nil {
					if errors.Is(e, errWrite) {
						return e
					}
					if _, err := fmt.Fprintf(w, "invalid: %s\n", e); err != nil {
						return errors.WithStack(err)
					}
				}
			}
			return nil
		},
	}
}

var errWrite = errors.New("write output")

// open print one frame, a frame error is returned as is, an output
// error is wrapped with errWrite.
func open(w io.Writer, h *meshcrypt.Handler, frame []byte, sniffer bool) error {
	p, ok, err := h.Recv(frame, sniffer)
	if err != nil {
		return err
	}

	var line string
	if !ok {
		line = "not for us"
	} else {
		line = fmt.Sprintf("%s %s %q", p.Type(), p.Head(), p.Head().Payload)
		if a, ok := p.(*codec.Ack); ok {
			line += fmt.Sprintf(" acked:%d", a.Acked())
		}
	}
	if _, err := fmt.Fprintln(w, line); err != nil {
		return errors.Wrapf(errWrite, "%s", err)
	}
	return nil
}

func newHandler(f *rootFlags) (*meshcrypt.Handler, error) {
	fc, err := meshcrypt.LoadFile(f.config)
	if err != nil {
		return nil, err
	}
	key, err := fc.MeshKey()
	if err != nil {
		return nil, err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(f.logLevel)); err != nil {
		return nil, errors.WithStack(err)
	}
	cfg := fc.Config()
	cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	return meshcrypt.NewWithKey(key, cfg)
}
