package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx/hexct"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

type kdfFlags struct {
	purpose    string
	hash       string
	salt       string
	iterations int
	length     int
	upper      bool
}

func newKDFCmd(opts *rootOptions) *cobra.Command {
	f := &kdfFlags{}
	cmd := &cobra.Command{
		Use:   "kdf",
		Short: "Derive key, IV or MAC key material with the PKCS#12 KDF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.runKDF(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&f.purpose, "purpose", "key", "purpose: key, iv, mac")
	flags.StringVar(&f.hash, "hash", "sha256", "hash primitive, e.g. sha1, sha256, sha3-256, streebog256")
	flags.StringVar(&f.salt, "salt", "", "salt in hex")
	flags.IntVar(&f.iterations, "iterations", 2048, "iteration count")
	flags.IntVar(&f.length, "length", 32, "output length in bytes")
	flags.BoolVar(&f.upper, "upper", false, "print upper case hex")
	return cmd
}

func (o *rootOptions) runKDF(cmd *cobra.Command, f *kdfFlags) error {
	purpose, err := kdf.ParsePurpose(strings.ToLower(f.purpose))
	if err != nil {
		return err
	}
	h, ok := kdf.HashByName(f.hash)
	if !ok {
		return fmt.Errorf("unknown hash %q", f.hash)
	}
	salt, err := hexct.DecodeString(f.salt)
	if err != nil {
		return fmt.Errorf("decoding salt: %w", err)
	}

	password, err := o.readPassword(cmd, "Password: ")
	if err != nil {
		return err
	}
	defer kdf.Wipe(password)
	bmp, err := kdf.EncodePasswordBytes(password)
	if err != nil {
		return err
	}
	defer kdf.Wipe(bmp)

	m, err := kdf.DeriveMaterial(h, purpose, bmp, salt, f.iterations, f.length)
	if err != nil {
		return err
	}
	defer m.Wipe()

	out := hexct.EncodeLowerToString(m.Bytes())
	if f.upper {
		out = hexct.EncodeUpperToString(m.Bytes())
	}
	fmt.Fprintln(cmd.OutOrStdout(), out)
	return nil
}
