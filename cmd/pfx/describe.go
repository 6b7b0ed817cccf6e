package main

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"log/slog"
	"os"

	"github.com/gematik/zero-lab/go/brainpool"
	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/legacy"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// readContainer reads a PKCS#12 file in DER or PEM form. BER files are
// converted with OpenSSL first, which needs the password up front. The
// caller wipes the returned password.
func (o *rootOptions) readContainer(cmd *cobra.Command, file string) (*pfx.PFX, []byte, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, nil, fmt.Errorf("reading file: %w", err)
	}

	password, err := o.readPassword(cmd, "Password: ")
	if err != nil {
		return nil, nil, err
	}

	if legacy.IsBER(data) {
		slog.Warn("Legacy BER encoding detected, converting with openssl", "file", file)
		converted, err := legacy.ConvertWithOpenSSL(cmd.Context(), data, string(password))
		if err != nil {
			kdf.Wipe(password)
			return nil, nil, fmt.Errorf("converting legacy BER-encoded PKCS#12: %w", err)
		}
		data = converted
	}

	p, err := pfx.ParseAny(data)
	if err != nil {
		kdf.Wipe(password)
		return nil, nil, fmt.Errorf("parsing PKCS#12: %w", err)
	}
	return p, password, nil
}

func (o *rootOptions) decodeOptions() *pfx.DecodeOptions {
	opts := pfx.DefaultDecodeOptions()
	opts.RequireMAC = !o.allowNoMAC
	return opts
}

func parseCertificate(der []byte) (*x509.Certificate, error) {
	return brainpool.ParseCertificate(der)
}

// parsePrivateKey parses PKCS#8, falling back to the brainpool parser for
// curves crypto/x509 does not know.
func parsePrivateKey(der []byte) (any, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err == nil {
		return key, nil
	}
	if ecKey, bpErr := brainpool.ParseECPrivateKey(der); bpErr == nil {
		return ecKey, nil
	}
	return nil, err
}

func describePublicKey(pub any) string {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return fmt.Sprintf("RSA %d bit", k.N.BitLen())
	case *ecdsa.PublicKey:
		return "EC " + describeECCurve(k.Curve)
	case ed25519.PublicKey:
		return "Ed25519"
	default:
		return fmt.Sprintf("%T", pub)
	}
}

func describePrivateKey(raw []byte) string {
	key, err := parsePrivateKey(raw)
	if err != nil {
		return fmt.Sprintf("unparsed, %d bytes", len(raw))
	}
	switch k := key.(type) {
	case *rsa.PrivateKey:
		return describePublicKey(&k.PublicKey)
	case *ecdsa.PrivateKey:
		return describePublicKey(&k.PublicKey)
	case ed25519.PrivateKey:
		return "Ed25519"
	default:
		return fmt.Sprintf("%T", key)
	}
}

func describeECCurve(c elliptic.Curve) string {
	name := c.Params().Name
	if name != "" {
		return name
	}
	return fmt.Sprintf("%d bit EC", c.Params().BitSize)
}
