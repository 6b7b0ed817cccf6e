package main

import (
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/gematik/zero-lab/go/brainpool"
	"github.com/lestrrat-go/jwx/v2/cert"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/hexct"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

type exportFlags struct {
	format  string
	output  string
	noKeys  bool
	noCerts bool
}

func newExportCmd(opts *rootOptions) *cobra.Command {
	f := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Write the certificates and keys of a PKCS#12 file as PEM or JWK",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return opts.runExport(cmd, args[0], f)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&f.format, "format", "f", "pem", "output format: pem, jwk")
	flags.StringVar(&f.output, "out", "", "output file (default: stdout)")
	flags.BoolVar(&f.noKeys, "no-keys", false, "omit private keys")
	flags.BoolVar(&f.noCerts, "no-certs", false, "omit certificates")
	return cmd
}

func (o *rootOptions) runExport(cmd *cobra.Command, file string, f *exportFlags) error {
	p, password, err := o.readContainer(cmd, file)
	if err != nil {
		return err
	}
	defer kdf.Wipe(password)
	bags, err := pfx.ExtractBagsWithOptions(p, password, o.decodeOptions())
	if err != nil {
		return fmt.Errorf("decoding PKCS#12: %w", err)
	}
	defer bags.Wipe()
	if f.noKeys {
		bags.PrivateKeys = nil
	}
	if f.noCerts {
		bags.Certificates = nil
	}
	if len(bags.PrivateKeys) > 0 {
		slog.Warn("Exporting unencrypted private keys", "count", len(bags.PrivateKeys))
	}

	w := cmd.OutOrStdout()
	if f.output != "" {
		out, err := os.OpenFile(f.output, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer out.Close()
		w = out
	}

	switch f.format {
	case "pem":
		return writePEM(w, bags)
	case "jwk":
		set, err := jwkSet(bags)
		if err != nil {
			return err
		}
		return printJSON(w, set)
	default:
		return fmt.Errorf("unknown format %q (use pem or jwk)", f.format)
	}
}

func writePEM(w io.Writer, bags *pfx.Bags) error {
	for _, kb := range bags.PrivateKeys {
		block := &pem.Block{Type: "PRIVATE KEY", Bytes: kb.Raw}
		if kb.FriendlyName != "" {
			block.Headers = map[string]string{"Friendly-Name": kb.FriendlyName}
		}
		encoded := pem.EncodeToMemory(block)
		_, err := w.Write(encoded)
		kdf.Wipe(encoded)
		if err != nil {
			return err
		}
	}
	for _, cb := range bags.Certificates {
		if err := pem.Encode(w, &pem.Block{Type: "CERTIFICATE", Bytes: cb.Raw}); err != nil {
			return err
		}
	}
	for _, crl := range bags.CRLs {
		if err := pem.Encode(w, &pem.Block{Type: "X509 CRL", Bytes: crl.Raw}); err != nil {
			return err
		}
	}
	return nil
}

type keySet struct {
	Keys []json.RawMessage `json:"keys"`
}

// jwkSet converts the private keys to JWKs, with the matching certificate
// chain in x5c. Brainpool keys are not supported by jwx and go through the
// brainpool package.
func jwkSet(bags *pfx.Bags) (*keySet, error) {
	set := &keySet{Keys: []json.RawMessage{}}
	for i, kb := range bags.PrivateKeys {
		key, err := parsePrivateKey(kb.Raw)
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i+1, err)
		}
		kid := hexct.EncodeLowerToString(kb.LocalKeyID)
		var chain [][]byte
		if cb := bags.FindCertificate(kb.LocalKeyID); cb != nil && len(kb.LocalKeyID) > 0 {
			chain = append(chain, cb.Raw)
		}

		var data []byte
		if ecKey, ok := key.(*ecdsa.PrivateKey); ok && brainpool.IsBrainpoolCurve(ecKey.Curve) {
			data, err = brainpoolJWK(ecKey, kid, chain)
		} else {
			data, err = standardJWK(key, kid, chain)
		}
		if err != nil {
			return nil, fmt.Errorf("private key %d: %w", i+1, err)
		}
		set.Keys = append(set.Keys, data)
	}
	return set, nil
}

func standardJWK(key any, kid string, chain [][]byte) ([]byte, error) {
	k, err := jwk.FromRaw(key)
	if err != nil {
		return nil, fmt.Errorf("creating JWK: %w", err)
	}
	if kid != "" {
		if err := k.Set(jwk.KeyIDKey, kid); err != nil {
			return nil, err
		}
	}
	if len(chain) > 0 {
		var c cert.Chain
		for _, der := range chain {
			c.AddString(base64.StdEncoding.EncodeToString(der))
		}
		if err := k.Set(jwk.X509CertChainKey, &c); err != nil {
			return nil, err
		}
	}
	return json.Marshal(k)
}

func brainpoolJWK(key *ecdsa.PrivateKey, kid string, chain [][]byte) ([]byte, error) {
	k := &brainpool.JSONWebKey{
		KeyType:         "EC",
		KeyID:           kid,
		Key:             key,
		CurveName:       brainpool.JWAForCurve(key.Curve),
		CertificatesRaw: chain,
	}
	return json.Marshal(k)
}
