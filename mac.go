package pfx

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"encoding/asn1"
	"fmt"
	"io"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// MacOptions selects the parameters of a new MacData. The zero value of a
// field selects its default.
type MacOptions struct {
	// Digest algorithm OID (default: SHA-256)
	Digest asn1.ObjectIdentifier

	// KDF iterations (default: 2048)
	Iterations int

	// Salt to use. If nil, SaltLength random bytes are read from Rand.
	Salt       []byte
	SaltLength int

	// Source of randomness (default: crypto/rand)
	Rand io.Reader
}

const (
	defaultMacIterations = 2048
	defaultSaltLength    = 16
)

func (o *MacOptions) withDefaults() MacOptions {
	var out MacOptions
	if o != nil {
		out = *o
	}
	if out.Digest == nil {
		out.Digest = OIDSHA256
	}
	if out.Iterations == 0 {
		out.Iterations = defaultMacIterations
	}
	if out.SaltLength == 0 {
		out.SaltLength = defaultSaltLength
	}
	if out.Rand == nil {
		out.Rand = rand.Reader
	}
	return out
}

// macHash resolves the digest of md and checks the digest length.
func macHash(md *MacData) (kdf.Hash, error) {
	h, ok := kdf.HashForOID(md.Mac.Algorithm.Algorithm)
	if !ok {
		return kdf.Hash{}, fmt.Errorf("%w: MAC digest %v", ErrUnsupportedAlgorithm, md.Mac.Algorithm.Algorithm)
	}
	if len(md.Mac.Digest) != h.Size() {
		return kdf.Hash{}, structuralf("MAC digest is %d bytes, %s produces %d", len(md.Mac.Digest), h.Name, h.Size())
	}
	return h, nil
}

// computeMAC derives the MAC key from the PKCS#12 form of the password and
// returns HMAC(key, data). The key is wiped before returning.
func computeMAC(h kdf.Hash, bmpPassword, salt []byte, iterations int, data []byte) ([]byte, error) {
	key, err := kdf.DeriveMaterial(h, kdf.MAC, bmpPassword, salt, iterations, h.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	defer key.Wipe()

	mac := hmac.New(h.New, key.Bytes())
	mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyMAC verifies the password integrity MAC of p.
//
// password is the UTF-8 password. An empty password is tried both as the
// BMPString NUL pair and as zero bytes, since producers disagree on its
// encoding; both candidates are always computed.
//
// A PFX without MacData does not verify.
func VerifyMAC(p *PFX, password []byte) error {
	if p.MacData == nil {
		return fmt.Errorf("%w: no MAC present", ErrIntegrity)
	}
	h, err := macHash(p.MacData)
	if err != nil {
		return err
	}
	signed, err := p.SignedData()
	if err != nil {
		return err
	}

	bmp, err := kdf.EncodePasswordBytes(password)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIntegrity, err)
	}
	defer kdf.Wipe(bmp)

	candidates := [][]byte{bmp}
	if len(password) == 0 {
		candidates = append(candidates, nil)
	}

	match := 0
	for _, c := range candidates {
		sum, err := computeMAC(h, c, p.MacData.MacSalt, p.MacData.Iterations, signed)
		if err != nil {
			return err
		}
		match |= subtle.ConstantTimeCompare(sum, p.MacData.Mac.Digest)
	}
	if match != 1 {
		return ErrIntegrity
	}
	return nil
}

// NewMacData computes a MacData over signed.
func NewMacData(signed, password []byte, opts *MacOptions) (*MacData, error) {
	o := opts.withDefaults()
	h, ok := kdf.HashForOID(o.Digest)
	if !ok {
		return nil, fmt.Errorf("%w: MAC digest %v", ErrUnsupportedAlgorithm, o.Digest)
	}
	digestOID, _ := kdf.DigestOID(h)
	if o.Iterations < 1 {
		return nil, structuralf("invalid MAC iteration count %d", o.Iterations)
	}

	salt := o.Salt
	if salt == nil {
		salt = make([]byte, o.SaltLength)
		if _, err := io.ReadFull(o.Rand, salt); err != nil {
			return nil, fmt.Errorf("failed to generate MAC salt: %w", err)
		}
	}

	bmp, err := kdf.EncodePasswordBytes(password)
	if err != nil {
		return nil, structuralf("password: %v", err)
	}
	defer kdf.Wipe(bmp)

	digest, err := computeMAC(h, bmp, salt, o.Iterations, signed)
	if err != nil {
		return nil, err
	}
	return &MacData{
		Mac: DigestInfo{
			Algorithm: AlgorithmIdentifier{Algorithm: digestOID, Parameters: asn1NULL},
			Digest:    digest,
		},
		MacSalt:    salt,
		Iterations: o.Iterations,
	}, nil
}

// SetMAC replaces the MacData of p with one computed for password.
func (p *PFX) SetMAC(password []byte, opts *MacOptions) error {
	signed, err := p.SignedData()
	if err != nil {
		return err
	}
	md, err := NewMacData(signed, password, opts)
	if err != nil {
		return err
	}
	p.MacData = md
	return nil
}
