package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gematik/zero-lab/go/pfx"
	"github.com/gematik/zero-lab/go/pfx/hexct"
	"github.com/gematik/zero-lab/go/pfx/kdf"
)

type inspectReport struct {
	File         string              `json:"file" yaml:"file"`
	Version      int                 `json:"version" yaml:"version"`
	Integrity    string              `json:"integrity" yaml:"integrity"`
	MAC          *macReport          `json:"mac,omitempty" yaml:"mac,omitempty"`
	ContentInfos []contentInfoReport `json:"contentInfos" yaml:"contentInfos"`
	Bags         []bagReport         `json:"bags" yaml:"bags"`
}

type macReport struct {
	Digest     string `json:"digest" yaml:"digest"`
	Salt       string `json:"salt" yaml:"salt"`
	Iterations int    `json:"iterations" yaml:"iterations"`
	Value      string `json:"value" yaml:"value"`
}

type contentInfoReport struct {
	Index      int    `json:"index" yaml:"index"`
	Type       string `json:"type" yaml:"type"`
	Encryption string `json:"encryption,omitempty" yaml:"encryption,omitempty"`
}

type bagReport struct {
	ContentInfo  int         `json:"contentInfo" yaml:"contentInfo"`
	Path         string      `json:"path" yaml:"path"`
	Type         string      `json:"type" yaml:"type"`
	FriendlyName string      `json:"friendlyName,omitempty" yaml:"friendlyName,omitempty"`
	LocalKeyID   string      `json:"localKeyId,omitempty" yaml:"localKeyId,omitempty"`
	Encryption   string      `json:"encryption,omitempty" yaml:"encryption,omitempty"`
	Attributes   []string    `json:"otherAttributes,omitempty" yaml:"otherAttributes,omitempty"`
	Certificate  *certReport `json:"certificate,omitempty" yaml:"certificate,omitempty"`
	Key          string      `json:"key,omitempty" yaml:"key,omitempty"`
	Detail       string      `json:"detail,omitempty" yaml:"detail,omitempty"`
}

type certReport struct {
	Subject   string   `json:"subject" yaml:"subject"`
	Issuer    string   `json:"issuer" yaml:"issuer"`
	Serial    string   `json:"serial" yaml:"serial"`
	NotBefore string   `json:"notBefore" yaml:"notBefore"`
	NotAfter  string   `json:"notAfter" yaml:"notAfter"`
	PublicKey string   `json:"publicKey" yaml:"publicKey"`
	DNSNames  []string `json:"dnsNames,omitempty" yaml:"dnsNames,omitempty"`
	IsCA      bool     `json:"isCA" yaml:"isCA"`
}

func newInspectCmd(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "inspect <file>",
		Short: "Show the structure and contents of a PKCS#12 file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			report, err := opts.inspect(cmd, args[0])
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			switch output {
			case "json":
				return printJSON(w, report)
			case "yaml":
				return printYAML(w, report)
			case "text":
				return printReport(w, report)
			default:
				return fmt.Errorf("unknown output format %q (use text, json or yaml)", output)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json, yaml")
	return cmd
}

func (o *rootOptions) inspect(cmd *cobra.Command, file string) (*inspectReport, error) {
	p, password, err := o.readContainer(cmd, file)
	if err != nil {
		return nil, err
	}
	defer kdf.Wipe(password)

	report := &inspectReport{
		File:      file,
		Version:   p.Version,
		Integrity: "verified",
	}
	if md := p.MacData; md != nil {
		report.MAC = &macReport{
			Digest:     md.Mac.Algorithm.String(),
			Salt:       hexct.EncodeLowerToString(md.MacSalt),
			Iterations: md.Iterations,
			Value:      hexct.EncodeLowerToString(md.Mac.Digest),
		}
	} else {
		report.Integrity = "absent"
	}

	contents, err := p.DecodeBags(password, o.decodeOptions())
	if err != nil {
		if p.MacData != nil && errors.Is(err, pfx.ErrIntegrity) {
			return nil, fmt.Errorf("wrong password or corrupted file: %w", err)
		}
		return nil, fmt.Errorf("decoding PKCS#12: %w", err)
	}
	defer contents.Wipe()

	as, err := p.AuthenticatedSafe()
	if err != nil {
		return nil, err
	}
	for i, ci := range as.ContentInfos {
		cr := contentInfoReport{Index: i, Type: pfx.OIDName(ci.ContentType)}
		if ed, err := ci.EncryptedData(); err == nil {
			cr.Encryption = ed.Algorithm.String()
		}
		report.ContentInfos = append(report.ContentInfos, cr)
	}

	for _, b := range contents.Bags {
		report.Bags = append(report.Bags, describeBag(b))
	}
	return report, nil
}

func describeBag(b pfx.DecodedBag) bagReport {
	br := bagReport{
		ContentInfo: b.ContentInfo,
		Path:        formatPath(b.Path),
		Type:        pfx.OIDName(b.BagID()),
	}
	if name, ok := b.FriendlyName(); ok {
		br.FriendlyName = name
	}
	if id, ok := b.LocalKeyID(); ok {
		br.LocalKeyID = hexct.EncodeLowerToString(id)
	}
	for _, a := range b.Attributes {
		if !a.ID.Equal(pfx.OIDFriendlyName) && !a.ID.Equal(pfx.OIDLocalKeyID) {
			br.Attributes = append(br.Attributes, pfx.OIDName(a.ID))
		}
	}

	switch v := b.Value.(type) {
	case *pfx.KeyBag:
		br.Key = describePrivateKey(b.PrivateKey)
	case *pfx.ShroudedKeyBag:
		br.Encryption = v.Algorithm.String()
		br.Key = describePrivateKey(b.PrivateKey)
	case *pfx.CertBag:
		der, err := v.Certificate()
		if err != nil {
			br.Detail = fmt.Sprintf("%s certificate", pfx.OIDName(v.CertType))
			break
		}
		cert, err := parseCertificate(der)
		if err != nil {
			br.Detail = fmt.Sprintf("unparsable certificate: %v", err)
			break
		}
		br.Certificate = &certReport{
			Subject:   cert.Subject.String(),
			Issuer:    cert.Issuer.String(),
			Serial:    cert.SerialNumber.String(),
			NotBefore: cert.NotBefore.Format("2006-01-02 15:04:05"),
			NotAfter:  cert.NotAfter.Format("2006-01-02 15:04:05"),
			PublicKey: describePublicKey(cert.PublicKey),
			DNSNames:  cert.DNSNames,
			IsCA:      cert.IsCA,
		}
	case *pfx.CRLBag:
		br.Detail = fmt.Sprintf("%s, %d bytes", pfx.OIDName(v.CRLType), len(v.Value))
	case *pfx.SecretBag:
		br.Detail = fmt.Sprintf("secret type %s", pfx.OIDName(v.SecretType))
	case *pfx.OpaqueBag:
		br.Detail = fmt.Sprintf("%d bytes", len(v.Value))
	}
	return br
}

func formatPath(path []int) string {
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = strconv.Itoa(p)
	}
	return strings.Join(parts, ".")
}

func printReport(out io.Writer, r *inspectReport) error {
	sectionHeader(out, "=== PKCS#12 Structure ===")
	printKeyValue(out, func(w io.Writer) {
		fmt.Fprintf(w, "File\t%s\n", r.File)
		fmt.Fprintf(w, "Version\t%d\n", r.Version)
		fmt.Fprintf(w, "Integrity\t%s\n", r.Integrity)
		if r.MAC != nil {
			fmt.Fprintf(w, "MAC Digest\t%s\n", r.MAC.Digest)
			fmt.Fprintf(w, "MAC Iterations\t%d\n", r.MAC.Iterations)
			fmt.Fprintf(w, "MAC Salt\t%s\n", r.MAC.Salt)
		}
		for _, ci := range r.ContentInfos {
			desc := ci.Type
			if ci.Encryption != "" {
				desc += " (" + ci.Encryption + ")"
			}
			fmt.Fprintf(w, "Content Info %d\t%s\n", ci.Index, desc)
		}
	})
	fmt.Fprintln(out)

	for i, b := range r.Bags {
		sectionHeader(out, fmt.Sprintf("--- Bag %d: %s ---", i+1, b.Type))
		printKeyValue(out, func(w io.Writer) {
			fmt.Fprintf(w, "Location\tcontent info %d, bag %s\n", b.ContentInfo, b.Path)
			if b.FriendlyName != "" {
				fmt.Fprintf(w, "Friendly Name\t%s\n", b.FriendlyName)
			}
			if b.LocalKeyID != "" {
				fmt.Fprintf(w, "Local Key ID\t%s\n", b.LocalKeyID)
			}
			if b.Encryption != "" {
				fmt.Fprintf(w, "Encryption\t%s\n", b.Encryption)
			}
			if b.Key != "" {
				fmt.Fprintf(w, "Key Info\t%s\n", b.Key)
			}
			if c := b.Certificate; c != nil {
				fmt.Fprintf(w, "Subject\t%s\n", c.Subject)
				fmt.Fprintf(w, "Issuer\t%s\n", c.Issuer)
				fmt.Fprintf(w, "Serial\t%s\n", c.Serial)
				fmt.Fprintf(w, "Not Before\t%s\n", c.NotBefore)
				fmt.Fprintf(w, "Not After\t%s\n", c.NotAfter)
				fmt.Fprintf(w, "Public Key\t%s\n", c.PublicKey)
				if len(c.DNSNames) > 0 {
					fmt.Fprintf(w, "DNS Names\t%s\n", strings.Join(c.DNSNames, ", "))
				}
				fmt.Fprintf(w, "Is CA\t%v\n", c.IsCA)
			}
			if b.Detail != "" {
				fmt.Fprintf(w, "Detail\t%s\n", b.Detail)
			}
			if len(b.Attributes) > 0 {
				fmt.Fprintf(w, "Other Attributes\t%s\n", strings.Join(b.Attributes, ", "))
			}
		})
		fmt.Fprintln(out)
	}
	return nil
}
