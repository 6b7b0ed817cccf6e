package pfx

import (
	"encoding/asn1"
	"unicode/utf16"
	"unicode/utf8"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Attribute is a PKCS12Attribute: an identifier and its set of values.
// Values are kept encoded; unknown identifiers are carried through
// unchanged.
type Attribute struct {
	ID     asn1.ObjectIdentifier
	Values []EncodedValue
}

// Attributes is the bagAttributes field of a SafeBag in encoded order.
// A nil Attributes is an absent field; a non-nil empty one is encoded as an
// empty SET.
type Attributes []Attribute

// Get returns the first attribute with the given identifier.
func (a Attributes) Get(id asn1.ObjectIdentifier) (Attribute, bool) {
	for _, attr := range a {
		if attr.ID.Equal(id) {
			return attr, true
		}
	}
	return Attribute{}, false
}

// FriendlyName decodes the first friendlyName value.
func (a Attributes) FriendlyName() (string, bool) {
	attr, ok := a.Get(OIDFriendlyName)
	if !ok || len(attr.Values) == 0 {
		return "", false
	}
	s := cryptobyte.String(attr.Values[0])
	var bmp cryptobyte.String
	if !s.ReadASN1(&bmp, cryptobyte_asn1.Tag(30)) {
		return "", false
	}
	name, err := decodeBMPString(bmp)
	if err != nil {
		return "", false
	}
	return name, true
}

// LocalKeyID returns the first localKeyId value.
func (a Attributes) LocalKeyID() ([]byte, bool) {
	attr, ok := a.Get(OIDLocalKeyID)
	if !ok || len(attr.Values) == 0 {
		return nil, false
	}
	return octetStringContents(attr.Values[0])
}

// NewFriendlyNameAttribute returns a friendlyName attribute holding name as
// a BMPString.
func NewFriendlyNameAttribute(name string) (Attribute, error) {
	if !utf8.ValidString(name) {
		return Attribute{}, structuralf("friendly name is not valid UTF-8")
	}
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.Tag(30), func(b *cryptobyte.Builder) {
		b.AddBytes(encodeBMPString(name))
	})
	return Attribute{ID: OIDFriendlyName, Values: []EncodedValue{b.BytesOrPanic()}}, nil
}

// NewLocalKeyIDAttribute returns a localKeyId attribute.
func NewLocalKeyIDAttribute(id []byte) Attribute {
	return Attribute{ID: OIDLocalKeyID, Values: []EncodedValue{encodeOctetString(id)}}
}

func parseAttributes(s *cryptobyte.String) (Attributes, error) {
	var set cryptobyte.String
	if !s.ReadASN1(&set, cryptobyte_asn1.SET) {
		return nil, structuralf("failed to read bagAttributes SET")
	}
	attrs := Attributes{}
	for !set.Empty() {
		attr, err := parseAttribute(&set)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func parseAttribute(s *cryptobyte.String) (Attribute, error) {
	var attr Attribute
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return attr, structuralf("failed to read Attribute SEQUENCE")
	}
	if !seq.ReadASN1ObjectIdentifier(&attr.ID) {
		return attr, structuralf("failed to read attribute ID")
	}
	var values cryptobyte.String
	if !seq.ReadASN1(&values, cryptobyte_asn1.SET) || !seq.Empty() {
		return attr, structuralf("failed to read values of attribute %v", attr.ID)
	}
	for !values.Empty() {
		v, ok := readEncodedValue(&values)
		if !ok {
			return attr, structuralf("failed to read value of attribute %v", attr.ID)
		}
		attr.Values = append(attr.Values, v)
	}
	return attr, nil
}

func (a Attributes) marshal(b *cryptobyte.Builder) {
	if a == nil {
		return
	}
	b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
		for _, attr := range a {
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(attr.ID)
				b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
					for _, v := range attr.Values {
						b.AddBytes(v)
					}
				})
			})
		}
	})
}

// decodeBMPString decodes UTF-16BE, including surrogate pairs.
func decodeBMPString(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", structuralf("odd BMPString length %d", len(b))
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return string(utf16.Decode(units)), nil
}

func encodeBMPString(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, 2*len(units))
	for _, u := range units {
		out = append(out, byte(u>>8), byte(u))
	}
	return out
}
