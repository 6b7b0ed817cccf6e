package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/legacy"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

func newConvertCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert legacy BER-encoded PKCS#12 to DER",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.runConvert(cmd, args[0], args[1])
		},
	}
}

func (o *rootOptions) runConvert(cmd *cobra.Command, input, output string) error {
	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading file: %w", err)
	}

	if legacy.IsBER(data) {
		password, err := o.readPassword(cmd, "Password: ")
		if err != nil {
			return err
		}
		defer kdf.Wipe(password)
		converted, err := legacy.ConvertWithOpenSSL(cmd.Context(), data, string(password))
		if err != nil {
			return fmt.Errorf("converting legacy BER-encoded PKCS#12: %w", err)
		}
		if _, err := pfx.Parse(converted); err != nil {
			return fmt.Errorf("converted file does not parse: %w", err)
		}
		data = converted
		slog.Info("Converted legacy BER format to DER", "input", input)
		fmt.Fprintln(cmd.ErrOrStderr(), "Converted legacy BER format to DER")
	} else {
		fmt.Fprintln(cmd.ErrOrStderr(), "File is already DER encoded, copying")
	}

	if err := os.WriteFile(output, data, 0600); err != nil {
		return fmt.Errorf("writing output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Written to %s\n", output)
	return nil
}
