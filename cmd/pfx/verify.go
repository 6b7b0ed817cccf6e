package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <file>",
		Short: "Check the integrity MAC of a PKCS#12 file",
		Long:  "Check the integrity MAC of a PKCS#12 file without decrypting its contents.\nThe exit code is non-zero when the check fails.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.runVerify(cmd, args[0])
		},
	}
}

func (o *rootOptions) runVerify(cmd *cobra.Command, file string) error {
	p, password, err := o.readContainer(cmd, file)
	if err != nil {
		return err
	}
	defer kdf.Wipe(password)

	if p.MacData == nil {
		if o.allowNoMAC {
			fmt.Fprintln(cmd.OutOrStdout(), "No MAC present, integrity not verified")
			return nil
		}
		return errors.New("no MAC present (use --allow-no-mac to accept)")
	}

	md := p.MacData
	slog.Debug("Verifying MAC", "digest", md.Mac.Algorithm.String(), "iterations", md.Iterations)
	if err := pfx.VerifyMAC(p, password); err != nil {
		if errors.Is(err, pfx.ErrIntegrity) {
			return fmt.Errorf("MAC verification failed: wrong password or corrupted file")
		}
		return fmt.Errorf("MAC verification failed: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "MAC OK (%s, %d iterations)\n", md.Mac.Algorithm, md.Iterations)
	return nil
}
