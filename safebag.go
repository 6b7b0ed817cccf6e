package pfx

import (
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// BagValue is the payload of a SafeBag. The concrete type determines the
// bagId: *KeyBag, *ShroudedKeyBag, *CertBag, *CRLBag, *SecretBag,
// *SafeContentsBag, or *OpaqueBag for bag types this package does not know.
type BagValue interface {
	BagID() asn1.ObjectIdentifier
	marshalValue(b *cryptobyte.Builder) error
}

// KeyBag holds an unencrypted PKCS#8 PrivateKeyInfo.
type KeyBag struct {
	PrivateKeyInfo EncodedValue
}

// ShroudedKeyBag holds a PKCS#8 EncryptedPrivateKeyInfo.
type ShroudedKeyBag struct {
	Algorithm     AlgorithmIdentifier
	EncryptedData []byte
}

// CertBag holds a certificate of type CertType. Value is the encoded
// certValue, an OCTET STRING wrapping the DER certificate for
// x509Certificate.
type CertBag struct {
	CertType asn1.ObjectIdentifier
	Value    EncodedValue
}

// CRLBag holds a CRL of type CRLType, encoded like CertBag.
type CRLBag struct {
	CRLType asn1.ObjectIdentifier
	Value   EncodedValue
}

// SecretBag holds an opaque secret of type SecretType.
type SecretBag struct {
	SecretType asn1.ObjectIdentifier
	Value      EncodedValue
}

// SafeContentsBag nests another SafeContents.
type SafeContentsBag struct {
	Contents *SafeContents
}

// OpaqueBag preserves a bag with an unrecognized bagId.
type OpaqueBag struct {
	ID    asn1.ObjectIdentifier
	Value EncodedValue
}

func (*KeyBag) BagID() asn1.ObjectIdentifier          { return OIDKeyBag }
func (*ShroudedKeyBag) BagID() asn1.ObjectIdentifier  { return OIDPKCS8ShroudedKeyBag }
func (*CertBag) BagID() asn1.ObjectIdentifier         { return OIDCertBag }
func (*CRLBag) BagID() asn1.ObjectIdentifier          { return OIDCRLBag }
func (*SecretBag) BagID() asn1.ObjectIdentifier       { return OIDSecretBag }
func (*SafeContentsBag) BagID() asn1.ObjectIdentifier { return OIDSafeContentsBag }
func (o *OpaqueBag) BagID() asn1.ObjectIdentifier     { return o.ID }

// SafeBag is one entry of a SafeContents.
type SafeBag struct {
	Value      BagValue
	Attributes Attributes
}

// BagID returns the bagId implied by the value's type.
func (b SafeBag) BagID() asn1.ObjectIdentifier {
	if b.Value == nil {
		return nil
	}
	return b.Value.BagID()
}

// FriendlyName is a shortcut for b.Attributes.FriendlyName.
func (b SafeBag) FriendlyName() (string, bool) { return b.Attributes.FriendlyName() }

// LocalKeyID is a shortcut for b.Attributes.LocalKeyID.
func (b SafeBag) LocalKeyID() ([]byte, bool) { return b.Attributes.LocalKeyID() }

// NewKeyBag wraps a DER PrivateKeyInfo.
func NewKeyBag(privateKeyInfo []byte) (*KeyBag, error) {
	if err := checkSequence(privateKeyInfo, "PrivateKeyInfo"); err != nil {
		return nil, err
	}
	return &KeyBag{PrivateKeyInfo: EncodedValue(privateKeyInfo)}, nil
}

// NewCertBag wraps a DER X.509 certificate.
func NewCertBag(der []byte) *CertBag {
	return &CertBag{CertType: OIDX509Certificate, Value: encodeOctetString(der)}
}

// NewCRLBag wraps a DER X.509 CRL.
func NewCRLBag(der []byte) *CRLBag {
	return &CRLBag{CRLType: OIDX509CRL, Value: encodeOctetString(der)}
}

// NewSecretBag wraps an encoded secret value.
func NewSecretBag(secretType asn1.ObjectIdentifier, value EncodedValue) *SecretBag {
	return &SecretBag{SecretType: secretType, Value: value}
}

// NewSafeContentsBag nests sc.
func NewSafeContentsBag(sc *SafeContents) *SafeContentsBag {
	return &SafeContentsBag{Contents: sc}
}

// Certificate returns the DER certificate of an x509Certificate bag.
func (c *CertBag) Certificate() ([]byte, error) {
	if !c.CertType.Equal(OIDX509Certificate) {
		return nil, fmt.Errorf("%w: certificate type %v", ErrUnsupportedAlgorithm, c.CertType)
	}
	der, ok := octetStringContents(c.Value)
	if !ok {
		return nil, structuralf("x509Certificate value is not an OCTET STRING")
	}
	return der, nil
}

// CRL returns the DER CRL of an x509CRL bag.
func (c *CRLBag) CRL() ([]byte, error) {
	if !c.CRLType.Equal(OIDX509CRL) {
		return nil, fmt.Errorf("%w: CRL type %v", ErrUnsupportedAlgorithm, c.CRLType)
	}
	der, ok := octetStringContents(c.Value)
	if !ok {
		return nil, structuralf("x509CRL value is not an OCTET STRING")
	}
	return der, nil
}

// parseSafeBag parses one SafeBag. depth is the nesting level of the
// SafeContents the bag belongs to.
func parseSafeBag(s *cryptobyte.String, depth, maxDepth int) (SafeBag, error) {
	var bag SafeBag
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return bag, structuralf("failed to read SafeBag SEQUENCE")
	}

	var id asn1.ObjectIdentifier
	if !seq.ReadASN1ObjectIdentifier(&id) {
		return bag, structuralf("failed to read bagId")
	}

	// bagValue [0] EXPLICIT
	var explicit cryptobyte.String
	if !seq.ReadASN1(&explicit, cryptobyte_asn1.Tag(0).ContextSpecific().Constructed()) {
		return bag, structuralf("failed to read bagValue of %v", OIDName(id))
	}
	value, ok := readEncodedValue(&explicit)
	if !ok || !explicit.Empty() {
		return bag, structuralf("bagValue of %v is not a single element", OIDName(id))
	}

	var err error
	if bag.Value, err = parseBagValue(id, value, depth, maxDepth); err != nil {
		return bag, err
	}

	if !seq.Empty() {
		if bag.Attributes, err = parseAttributes(&seq); err != nil {
			return bag, err
		}
		if !seq.Empty() {
			return bag, structuralf("trailing data in SafeBag")
		}
	}
	return bag, nil
}

func parseBagValue(id asn1.ObjectIdentifier, value EncodedValue, depth, maxDepth int) (BagValue, error) {
	switch {
	case id.Equal(OIDKeyBag):
		if err := checkSequence(value, "keyBag value"); err != nil {
			return nil, err
		}
		return &KeyBag{PrivateKeyInfo: value}, nil

	case id.Equal(OIDPKCS8ShroudedKeyBag):
		return parseShroudedKeyBag(value)

	case id.Equal(OIDCertBag):
		typ, v, err := parseTypedValue(value, "certBag")
		if err != nil {
			return nil, err
		}
		if err := checkCertValue(typ, v); err != nil {
			return nil, err
		}
		return &CertBag{CertType: typ, Value: v}, nil

	case id.Equal(OIDCRLBag):
		typ, v, err := parseTypedValue(value, "crlBag")
		if err != nil {
			return nil, err
		}
		if typ.Equal(OIDX509CRL) && v.Tag() != cryptobyte_asn1.OCTET_STRING {
			return nil, structuralf("x509CRL value is not an OCTET STRING")
		}
		return &CRLBag{CRLType: typ, Value: v}, nil

	case id.Equal(OIDSecretBag):
		typ, v, err := parseTypedValue(value, "secretBag")
		if err != nil {
			return nil, err
		}
		return &SecretBag{SecretType: typ, Value: v}, nil

	case id.Equal(OIDSafeContentsBag):
		if depth+1 > maxDepth {
			return nil, fmt.Errorf("%w: %w (limit %d)", ErrStructure, errNestingLimit, maxDepth)
		}
		sc, err := parseSafeContents(value, depth+1, maxDepth)
		if err != nil {
			return nil, err
		}
		return &SafeContentsBag{Contents: sc}, nil
	}
	return &OpaqueBag{ID: id, Value: value}, nil
}

func parseShroudedKeyBag(value EncodedValue) (*ShroudedKeyBag, error) {
	s := cryptobyte.String(value)
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return nil, structuralf("failed to read EncryptedPrivateKeyInfo SEQUENCE")
	}
	alg, err := parseAlgorithmIdentifier(&seq)
	if err != nil {
		return nil, err
	}
	var data cryptobyte.String
	if !seq.ReadASN1(&data, cryptobyte_asn1.OCTET_STRING) || !seq.Empty() {
		return nil, structuralf("failed to read encryptedData of EncryptedPrivateKeyInfo")
	}
	return &ShroudedKeyBag{Algorithm: alg, EncryptedData: data}, nil
}

// parseTypedValue parses the SEQUENCE { type OID, value [0] EXPLICIT ANY }
// shape shared by CertBag, CRLBag and SecretBag.
func parseTypedValue(value EncodedValue, what string) (asn1.ObjectIdentifier, EncodedValue, error) {
	s := cryptobyte.String(value)
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return nil, nil, structuralf("failed to read %s SEQUENCE", what)
	}
	var typ asn1.ObjectIdentifier
	if !seq.ReadASN1ObjectIdentifier(&typ) {
		return nil, nil, structuralf("failed to read %s type", what)
	}
	var explicit cryptobyte.String
	if !seq.ReadASN1(&explicit, cryptobyte_asn1.Tag(0).ContextSpecific().Constructed()) || !seq.Empty() {
		return nil, nil, structuralf("failed to read %s value", what)
	}
	v, ok := readEncodedValue(&explicit)
	if !ok || !explicit.Empty() {
		return nil, nil, structuralf("%s value is not a single element", what)
	}
	return typ, v, nil
}

func checkCertValue(typ asn1.ObjectIdentifier, v EncodedValue) error {
	switch {
	case typ.Equal(OIDX509Certificate):
		if v.Tag() != cryptobyte_asn1.OCTET_STRING {
			return structuralf("x509Certificate value is not an OCTET STRING")
		}
	case typ.Equal(OIDSDSICertificate):
		if v.Tag() != cryptobyte_asn1.IA5String {
			return structuralf("sdsiCertificate value is not an IA5String")
		}
	}
	return nil
}

func checkSequence(der []byte, what string) error {
	s := cryptobyte.String(der)
	if !s.SkipASN1(cryptobyte_asn1.SEQUENCE) || !s.Empty() {
		return structuralf("%s is not a DER SEQUENCE", what)
	}
	return nil
}

func marshalSafeBag(b *cryptobyte.Builder, bag SafeBag) error {
	if bag.Value == nil {
		return structuralf("SafeBag without value")
	}
	var err error
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(bag.Value.BagID())
		b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			err = bag.Value.marshalValue(b)
		})
		bag.Attributes.marshal(b)
	})
	return err
}

func (k *KeyBag) marshalValue(b *cryptobyte.Builder) error {
	if k.PrivateKeyInfo.IsEmpty() {
		return structuralf("keyBag without PrivateKeyInfo")
	}
	b.AddBytes(k.PrivateKeyInfo)
	return nil
}

func (k *ShroudedKeyBag) marshalValue(b *cryptobyte.Builder) error {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		k.Algorithm.marshal(b)
		b.AddASN1OctetString(k.EncryptedData)
	})
	return nil
}

func marshalTypedValue(b *cryptobyte.Builder, typ asn1.ObjectIdentifier, v EncodedValue, what string) error {
	if v.IsEmpty() {
		return structuralf("%s without value", what)
	}
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(typ)
		b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
			b.AddBytes(v)
		})
	})
	return nil
}

func (c *CertBag) marshalValue(b *cryptobyte.Builder) error {
	return marshalTypedValue(b, c.CertType, c.Value, "certBag")
}

func (c *CRLBag) marshalValue(b *cryptobyte.Builder) error {
	return marshalTypedValue(b, c.CRLType, c.Value, "crlBag")
}

func (s *SecretBag) marshalValue(b *cryptobyte.Builder) error {
	return marshalTypedValue(b, s.SecretType, s.Value, "secretBag")
}

func (s *SafeContentsBag) marshalValue(b *cryptobyte.Builder) error {
	if s.Contents == nil {
		return structuralf("safeContentsBag without contents")
	}
	return s.Contents.marshal(b)
}

func (o *OpaqueBag) marshalValue(b *cryptobyte.Builder) error {
	if o.Value.IsEmpty() {
		return structuralf("bag %v without value", o.ID)
	}
	b.AddBytes(o.Value)
	return nil
}
