package pfx

import (
	"bytes"
	"encoding/asn1"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// CertificateBag represents a certificate from a PKCS#12 file with metadata
type CertificateBag struct {
	// Raw certificate data (DER-encoded X.509)
	Raw []byte

	// FriendlyName is a human-readable name for the certificate
	FriendlyName string

	// LocalKeyID links this certificate to its corresponding private key
	LocalKeyID []byte
}

// PrivateKeyBag represents a private key from a PKCS#12 file with metadata
type PrivateKeyBag struct {
	// Raw private key data (DER-encoded PKCS#8)
	Raw []byte

	FriendlyName string
	LocalKeyID   []byte
}

// RevocationList is an X.509 CRL from a CRLBag.
type RevocationList struct {
	Raw          []byte
	FriendlyName string
	LocalKeyID   []byte
}

// Secret is the value of a SecretBag.
type Secret struct {
	Type         asn1.ObjectIdentifier
	Value        []byte // DER-encoded secretValue
	FriendlyName string
	LocalKeyID   []byte
}

// Bags contains everything extracted from a PKCS#12 file. All slices are
// copies; nothing aliases the input.
type Bags struct {
	Certificates []CertificateBag
	PrivateKeys  []PrivateKeyBag
	CRLs         []RevocationList
	Secrets      []Secret
}

// Decode reads PKCS#12 data and extracts all bags with the default
// DecodeOptions.
//
// Example:
//
//	data, _ := os.ReadFile("keystore.p12")
//	bags, err := pfx.Decode(data, []byte("password"))
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer bags.Wipe()
//	for _, certBag := range bags.Certificates {
//		cert, _ := x509.ParseCertificate(certBag.Raw)
//		fmt.Println("Cert:", cert.Subject)
//	}
func Decode(data, password []byte) (*Bags, error) {
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return ExtractBags(p, password)
}

// ExtractBags verifies and decrypts p and sorts its leaf bags by kind.
// Bags of unknown type and certificates or CRLs of non-X.509 type are
// skipped.
func ExtractBags(p *PFX, password []byte) (*Bags, error) {
	return ExtractBagsWithOptions(p, password, nil)
}

// ExtractBagsWithOptions is ExtractBags with explicit DecodeOptions.
func ExtractBagsWithOptions(p *PFX, password []byte, opts *DecodeOptions) (*Bags, error) {
	contents, err := p.DecodeBags(password, opts)
	if err != nil {
		return nil, err
	}
	defer contents.Wipe()

	bags := &Bags{}
	for _, b := range contents.Bags {
		name, _ := b.FriendlyName()
		keyID, _ := b.LocalKeyID()
		keyID = bytes.Clone(keyID)

		switch v := b.Value.(type) {
		case *KeyBag, *ShroudedKeyBag:
			bags.PrivateKeys = append(bags.PrivateKeys, PrivateKeyBag{
				Raw:          bytes.Clone(b.PrivateKey),
				FriendlyName: name,
				LocalKeyID:   keyID,
			})
		case *CertBag:
			der, err := v.Certificate()
			if err != nil {
				continue
			}
			bags.Certificates = append(bags.Certificates, CertificateBag{
				Raw:          bytes.Clone(der),
				FriendlyName: name,
				LocalKeyID:   keyID,
			})
		case *CRLBag:
			der, err := v.CRL()
			if err != nil {
				continue
			}
			bags.CRLs = append(bags.CRLs, RevocationList{
				Raw:          bytes.Clone(der),
				FriendlyName: name,
				LocalKeyID:   keyID,
			})
		case *SecretBag:
			bags.Secrets = append(bags.Secrets, Secret{
				Type:         v.SecretType,
				Value:        bytes.Clone(v.Value),
				FriendlyName: name,
				LocalKeyID:   keyID,
			})
		}
	}
	return bags, nil
}

// Wipe zeroes all private keys and secrets.
func (b *Bags) Wipe() {
	if b == nil {
		return
	}
	for _, k := range b.PrivateKeys {
		kdf.Wipe(k.Raw)
	}
	for _, s := range b.Secrets {
		kdf.Wipe(s.Value)
	}
}

// FindCertificate finds a certificate by localKeyID
func (b *Bags) FindCertificate(localKeyID []byte) *CertificateBag {
	for i := range b.Certificates {
		if bytes.Equal(b.Certificates[i].LocalKeyID, localKeyID) {
			return &b.Certificates[i]
		}
	}
	return nil
}

// FindPrivateKey finds a private key by localKeyID
func (b *Bags) FindPrivateKey(localKeyID []byte) *PrivateKeyBag {
	for i := range b.PrivateKeys {
		if bytes.Equal(b.PrivateKeys[i].LocalKeyID, localKeyID) {
			return &b.PrivateKeys[i]
		}
	}
	return nil
}

// CertKeyPair represents a matched certificate and private key pair
type CertKeyPair struct {
	Certificate *CertificateBag
	PrivateKey  *PrivateKeyBag
}

// FindMatchingPairs returns pairs of certificates and their corresponding
// private keys based on localKeyID matching. The correlation is a
// convention of producers; nothing in the format enforces it.
func (b *Bags) FindMatchingPairs() []CertKeyPair {
	var pairs []CertKeyPair
	for i := range b.Certificates {
		cert := &b.Certificates[i]
		if len(cert.LocalKeyID) == 0 {
			continue
		}
		if key := b.FindPrivateKey(cert.LocalKeyID); key != nil {
			pairs = append(pairs, CertKeyPair{Certificate: cert, PrivateKey: key})
		}
	}
	return pairs
}
