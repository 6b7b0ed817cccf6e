package pfx

import (
	"bytes"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// EncodedValue is a complete DER element (tag, length and contents) that
// has not been interpreted. Values produced by parsing alias the input
// buffer; marshaling an EncodedValue writes its bytes unchanged.
//
// The zero value is the absent value.
type EncodedValue []byte

// ParseEncodedValue checks that der is exactly one DER element.
func ParseEncodedValue(der []byte) (EncodedValue, error) {
	s := cryptobyte.String(der)
	var elem cryptobyte.String
	if !s.ReadAnyASN1Element(&elem, nil) || !s.Empty() {
		return nil, structuralf("not a single DER element")
	}
	return EncodedValue(elem), nil
}

// readEncodedValue reads the next element of s.
func readEncodedValue(s *cryptobyte.String) (EncodedValue, bool) {
	var elem cryptobyte.String
	if !s.ReadAnyASN1Element(&elem, nil) {
		return nil, false
	}
	return EncodedValue(elem), true
}

// Tag returns the element's tag, or 0 for the empty value.
func (v EncodedValue) Tag() cryptobyte_asn1.Tag {
	var tag cryptobyte_asn1.Tag
	s := cryptobyte.String(v)
	var contents cryptobyte.String
	if !s.ReadAnyASN1(&contents, &tag) {
		return 0
	}
	return tag
}

// Contents returns the element's contents octets without tag and length.
func (v EncodedValue) Contents() []byte {
	s := cryptobyte.String(v)
	var contents cryptobyte.String
	if !s.ReadAnyASN1(&contents, nil) {
		return nil
	}
	return contents
}

func (v EncodedValue) IsEmpty() bool { return len(v) == 0 }

func (v EncodedValue) Equal(o EncodedValue) bool { return bytes.Equal(v, o) }

// Clone returns a copy that does not alias the parsed input.
func (v EncodedValue) Clone() EncodedValue {
	if v == nil {
		return nil
	}
	return bytes.Clone(v)
}

// Bytes returns the full encoding.
func (v EncodedValue) Bytes() []byte { return v }

// encodeOctetString returns the DER OCTET STRING holding b.
func encodeOctetString(b []byte) EncodedValue {
	var bld cryptobyte.Builder
	bld.AddASN1OctetString(b)
	return EncodedValue(bld.BytesOrPanic())
}

// octetStringContents returns the payload of an OCTET STRING element.
func octetStringContents(v EncodedValue) ([]byte, bool) {
	s := cryptobyte.String(v)
	var out cryptobyte.String
	if !s.ReadASN1(&out, cryptobyte_asn1.OCTET_STRING) || !s.Empty() {
		return nil, false
	}
	return out, true
}
