package pfx

import (
	"bytes"
	"encoding/pem"
	"fmt"
	"math"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// PEM block types accepted by ParsePEM. MarshalPEM writes the first.
var PEMTypes = []string{"PKCS12", "PFX"}

// PFX represents the PKCS#12 PFX structure (RFC 7292 Section 4)
type PFX struct {
	Version  int
	AuthSafe ContentInfo
	MacData  *MacData
}

// MacData represents MAC data for integrity verification (RFC 7292 Section 4)
type MacData struct {
	Mac        DigestInfo
	MacSalt    []byte
	Iterations int

	// explicitIterations records an iterations field that was encoded
	// although it equals the DEFAULT, so that Marshal reproduces it.
	explicitIterations bool
}

// DigestInfo represents algorithm and digest
type DigestInfo struct {
	Algorithm AlgorithmIdentifier
	Digest    []byte
}

// Parse parses a DER PFX. The version is checked here, before any
// integrity verification can take place.
func Parse(der []byte) (*PFX, error) {
	if len(der) < 2 {
		return nil, structuralf("input too small (%d bytes)", len(der))
	}
	if der[0] == 0x30 && der[1] == 0x80 {
		return nil, structuralf("BER indefinite-length encoding detected, convert with github.com/gematik/zero-lab/go/pfx/legacy")
	}
	if der[0] != 0x30 {
		return nil, structuralf("expected SEQUENCE tag (0x30), got 0x%02x", der[0])
	}

	// PFX ::= SEQUENCE {
	//   version    INTEGER {v3(3)}(v3,...),
	//   authSafe   ContentInfo,
	//   macData    MacData OPTIONAL
	// }
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return nil, structuralf("failed to read PFX SEQUENCE, input is not valid DER")
	}
	if !input.Empty() {
		return nil, structuralf("%d bytes of trailing data after PFX", len(input))
	}

	p := &PFX{}
	if !seq.ReadASN1Integer(&p.Version) {
		return nil, structuralf("failed to read version")
	}
	if p.Version != 3 {
		return nil, structuralf("unsupported version %d", p.Version)
	}

	var err error
	if p.AuthSafe, err = parseContentInfo(&seq); err != nil {
		return nil, fmt.Errorf("authSafe: %w", err)
	}

	if !seq.Empty() {
		if p.MacData, err = parseMacData(&seq); err != nil {
			return nil, fmt.Errorf("macData: %w", err)
		}
		if !seq.Empty() {
			return nil, structuralf("trailing data in PFX")
		}
	}
	return p, nil
}

// ParsePEM parses the first PEM block of a type listed in PEMTypes.
func ParsePEM(data []byte) (*PFX, error) {
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			return nil, structuralf("no PKCS12 PEM block found")
		}
		for _, t := range PEMTypes {
			if block.Type == t {
				return Parse(block.Bytes)
			}
		}
	}
}

// ParseAny accepts DER or PEM input.
func ParseAny(data []byte) (*PFX, error) {
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("-----BEGIN ")) {
		return ParsePEM(data)
	}
	return Parse(data)
}

func parseMacData(s *cryptobyte.String) (*MacData, error) {
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return nil, structuralf("failed to read MacData SEQUENCE")
	}

	md := &MacData{}
	var digestInfo cryptobyte.String
	if !seq.ReadASN1(&digestInfo, cryptobyte_asn1.SEQUENCE) {
		return nil, structuralf("failed to read DigestInfo")
	}
	var err error
	if md.Mac.Algorithm, err = parseAlgorithmIdentifier(&digestInfo); err != nil {
		return nil, err
	}
	var digest cryptobyte.String
	if !digestInfo.ReadASN1(&digest, cryptobyte_asn1.OCTET_STRING) || !digestInfo.Empty() {
		return nil, structuralf("failed to read digest")
	}
	md.Mac.Digest = digest

	var salt cryptobyte.String
	if !seq.ReadASN1(&salt, cryptobyte_asn1.OCTET_STRING) {
		return nil, structuralf("failed to read macSalt")
	}
	md.MacSalt = salt

	// iterations INTEGER DEFAULT 1
	md.Iterations = 1
	if !seq.Empty() {
		if !seq.ReadASN1Integer(&md.Iterations) || !seq.Empty() {
			return nil, structuralf("failed to read iterations")
		}
		md.explicitIterations = md.Iterations == 1
	}
	if !validIterations(md.Iterations) {
		return nil, structuralf("invalid MAC iteration count %d", md.Iterations)
	}
	return md, nil
}

// validIterations reports whether n fits the unsigned 32-bit iteration
// count of the key derivation.
func validIterations(n int) bool {
	return n >= 1 && int64(n) <= math.MaxUint32
}

// NewPFX wraps as into a version 3 PFX without MAC.
func NewPFX(as *AuthenticatedSafe) (*PFX, error) {
	der, err := as.Marshal()
	if err != nil {
		return nil, err
	}
	return &PFX{Version: 3, AuthSafe: NewDataContentInfo(der)}, nil
}

// SignedData returns the bytes the MAC is computed over: the payload of the
// authSafe data ContentInfo.
func (p *PFX) SignedData() ([]byte, error) {
	switch {
	case p.AuthSafe.ContentType.Equal(OIDData):
		return p.AuthSafe.Data()
	case p.AuthSafe.ContentType.Equal(OIDSignedData):
		return nil, fmt.Errorf("%w: public-key integrity mode (signedData)", ErrUnsupportedAlgorithm)
	}
	return nil, structuralf("authSafe content type %v", OIDName(p.AuthSafe.ContentType))
}

// AuthenticatedSafe parses the AuthenticatedSafe carried by the authSafe.
// It does not verify the MAC.
func (p *PFX) AuthenticatedSafe() (*AuthenticatedSafe, error) {
	data, err := p.SignedData()
	if err != nil {
		return nil, err
	}
	return ParseAuthenticatedSafe(data)
}

// Marshal returns the DER encoding of p.
func (p *PFX) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(int64(p.Version))
		p.AuthSafe.marshal(b)
		if p.MacData != nil {
			p.MacData.marshal(b)
		}
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	return der, nil
}

// MarshalPEM returns p as a PKCS12 PEM block.
func (p *PFX) MarshalPEM() ([]byte, error) {
	der, err := p.Marshal()
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: PEMTypes[0], Bytes: der}), nil
}

func (md *MacData) marshal(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			md.Mac.Algorithm.marshal(b)
			b.AddASN1OctetString(md.Mac.Digest)
		})
		b.AddASN1OctetString(md.MacSalt)
		if md.Iterations != 1 || md.explicitIterations {
			b.AddASN1Int64(int64(md.Iterations))
		}
	})
}
