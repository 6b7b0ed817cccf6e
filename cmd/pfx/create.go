package main

import (
	"crypto/sha1"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/hexct"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

type createFlags struct {
	certFiles []string
	keyFile   string
	output    string
	name      string
}

func newCreateCmd(opts *rootOptions) *cobra.Command {
	f := &createFlags{}
	cmd := &cobra.Command{
		Use:   "create --cert <cert.pem> [--cert <chain.pem>] [--key <key.pem>] --out <file.p12>",
		Short: "Create a PKCS#12 file from certificates and a private key",
		Long: "Create a PKCS#12 file from PEM or DER certificates and an optional PKCS#8 private key.\n" +
			"Protection follows the profile section of the config file (env: PFX_PROFILE_*).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.runCreate(cmd, f)
		},
	}
	flags := cmd.Flags()
	flags.StringArrayVar(&f.certFiles, "cert", nil, "certificate file (PEM or DER), can be repeated")
	flags.StringVar(&f.keyFile, "key", "", "private key file (PKCS#8, PEM or DER)")
	flags.StringVar(&f.output, "out", "", "output PKCS#12 file")
	flags.StringVar(&f.name, "name", "", "friendly name for the first certificate and the key")
	flags.String("preset", "modern", "protection preset: modern, legacy")
	flags.Int("iterations", 0, "KDF iterations for encryption (default: preset)")
	cmd.MarkFlagRequired("cert")
	cmd.MarkFlagRequired("out")
	opts.v.BindPFlag("profile.preset", flags.Lookup("preset"))
	opts.v.BindPFlag("profile.iterations", flags.Lookup("iterations"))
	return cmd
}

func (o *rootOptions) runCreate(cmd *cobra.Command, f *createFlags) error {
	profile, err := loadProfile(o.v)
	if err != nil {
		return err
	}
	encodeOpts, err := profile.EncodeOptions()
	if err != nil {
		return err
	}

	bags := &pfx.Bags{}
	var localKeyID []byte
	for i, file := range f.certFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading certificate %s: %w", file, err)
		}
		certs := parseCertificates(data)
		if len(certs) == 0 {
			return fmt.Errorf("no certificates found in %s", file)
		}
		for j, der := range certs {
			cert, err := parseCertificate(der)
			if err != nil {
				return fmt.Errorf("parsing certificate from %s: %w", file, err)
			}
			cb := pfx.CertificateBag{Raw: der}
			// the first certificate is the one the key belongs to
			if i == 0 && j == 0 {
				sum := sha1.Sum(der)
				localKeyID = sum[:]
				cb.FriendlyName = f.name
				cb.LocalKeyID = localKeyID
			}
			bags.Certificates = append(bags.Certificates, cb)
			slog.Debug("Loaded certificate", "subject", cert.Subject.String(), "file", file)
		}
	}

	if f.keyFile != "" {
		data, err := os.ReadFile(f.keyFile)
		if err != nil {
			return fmt.Errorf("reading private key: %w", err)
		}
		der := data
		if block, _ := pem.Decode(data); block != nil {
			der = block.Bytes
		}
		if _, err := parsePrivateKey(der); err != nil {
			return fmt.Errorf("parsing private key (PKCS#8 required): %w", err)
		}
		bags.PrivateKeys = append(bags.PrivateKeys, pfx.PrivateKeyBag{
			Raw:          der,
			FriendlyName: f.name,
			LocalKeyID:   localKeyID,
		})
	}

	password, err := o.readPassword(cmd, "Password for new PKCS#12 file: ")
	if err != nil {
		return err
	}
	defer kdf.Wipe(password)

	data, err := pfx.Encode(bags, password, encodeOpts)
	if err != nil {
		return fmt.Errorf("encoding PKCS#12: %w", err)
	}
	if err := os.WriteFile(f.output, data, 0600); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	printKeyValue(cmd.OutOrStdout(), func(w io.Writer) {
		fmt.Fprintf(w, "Written\t%s\n", f.output)
		fmt.Fprintf(w, "Certificates\t%d\n", len(bags.Certificates))
		fmt.Fprintf(w, "Private Keys\t%d\n", len(bags.PrivateKeys))
		if localKeyID != nil {
			fmt.Fprintf(w, "Local Key ID\t%s\n", hexct.EncodeLowerToString(localKeyID))
		}
		fmt.Fprintf(w, "Profile\t%s\n", profile.Preset)
	})
	return nil
}

// parseCertificates returns the DER certificates of a PEM bundle, or data
// itself when it is not PEM.
func parseCertificates(data []byte) [][]byte {
	var certs [][]byte
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type == "CERTIFICATE" {
			certs = append(certs, block.Bytes)
		}
	}
	if len(certs) == 0 && len(data) > 0 && data[0] == 0x30 {
		certs = append(certs, data)
	}
	return certs
}
