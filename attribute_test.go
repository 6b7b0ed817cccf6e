package pfx

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"testing"

	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

func TestDecodeBMPString(t *testing.T) {
	tests := []struct {
		name    string
		input   []byte
		want    string
		wantErr bool
	}{
		{"empty", []byte{}, "", false},
		{"ascii", []byte{0x00, 'H', 0x00, 'i'}, "Hi", false},
		{"umlaut", []byte{0x00, 0xfc}, "ü", false},
		{"euro", []byte{0x20, 0xac}, "€", false},
		{"surrogate pair", []byte{0xd8, 0x3d, 0xdd, 0x11}, "🔑", false},
		{"odd length", []byte{0x00, 'H', 0x00}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeBMPString(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeBMPString error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("decodeBMPString = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeBMPString(t *testing.T) {
	for _, s := range []string{"", "Test Key", "Schlüssel", "🔑 key"} {
		got, err := decodeBMPString(encodeBMPString(s))
		if err != nil || got != s {
			t.Errorf("round trip of %q: %q, %v", s, got, err)
		}
	}
	if !bytes.Equal(encodeBMPString("A€"), []byte{0x00, 0x41, 0x20, 0xac}) {
		t.Errorf("Unexpected encoding %x", encodeBMPString("A€"))
	}
}

func TestFriendlyNameAttribute(t *testing.T) {
	attr, err := NewFriendlyNameAttribute("Test")
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{0x1e, 0x08, 0x00, 'T', 0x00, 'e', 0x00, 's', 0x00, 't'}
	if !attr.ID.Equal(OIDFriendlyName) || len(attr.Values) != 1 || !bytes.Equal(attr.Values[0], want) {
		t.Errorf("Unexpected attribute %v %x", attr.ID, attr.Values)
	}

	if _, err := NewFriendlyNameAttribute(string([]byte{0xff, 0xfe})); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure for invalid UTF-8, got %v", err)
	}
}

func TestFriendlyNameInvalid(t *testing.T) {
	tests := []struct {
		name  string
		attrs Attributes
	}{
		{"absent", nil},
		{"no values", Attributes{{ID: OIDFriendlyName}}},
		{"not a BMPString", Attributes{{ID: OIDFriendlyName, Values: []EncodedValue{{0x0c, 0x01, 'x'}}}}},
		{"odd length", Attributes{{ID: OIDFriendlyName, Values: []EncodedValue{{0x1e, 0x01, 'x'}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if name, ok := tt.attrs.FriendlyName(); ok {
				t.Errorf("Expected no friendly name, got %q", name)
			}
		})
	}
}

func TestLocalKeyID(t *testing.T) {
	attrs := Attributes{
		{ID: asn1.ObjectIdentifier{1, 2, 3}, Values: []EncodedValue{asn1NULL}},
		NewLocalKeyIDAttribute([]byte{0xde, 0xad}),
	}
	id, ok := attrs.LocalKeyID()
	if !ok || !bytes.Equal(id, []byte{0xde, 0xad}) {
		t.Errorf("LocalKeyID = %x, %v", id, ok)
	}
	if _, ok := (Attributes{}).LocalKeyID(); ok {
		t.Error("LocalKeyID found in empty attributes")
	}
	if _, ok := attrs.Get(OIDFriendlyName); ok {
		t.Error("Get found an absent attribute")
	}
}

func TestEncodedValue(t *testing.T) {
	v, err := ParseEncodedValue([]byte{0x04, 0x02, 0xab, 0xcd})
	if err != nil {
		t.Fatalf("ParseEncodedValue failed: %v", err)
	}
	if v.Tag() != cryptobyte_asn1.OCTET_STRING {
		t.Errorf("Tag = %v", v.Tag())
	}
	if !bytes.Equal(v.Contents(), []byte{0xab, 0xcd}) {
		t.Errorf("Contents = %x", v.Contents())
	}
	clone := v.Clone()
	clone[2] = 0
	if v[2] != 0xab {
		t.Error("Clone aliases the original")
	}
	if v.IsEmpty() || !EncodedValue(nil).IsEmpty() {
		t.Error("IsEmpty is wrong")
	}
	if EncodedValue(nil).Clone() != nil {
		t.Error("Clone of nil must be nil")
	}

	for _, bad := range [][]byte{nil, {0x04}, {0x04, 0x02, 0x00}, {0x05, 0x00, 0x05, 0x00}, {0x30, 0x80, 0x00, 0x00}} {
		if _, err := ParseEncodedValue(bad); !errors.Is(err, ErrStructure) {
			t.Errorf("ParseEncodedValue(%x): expected ErrStructure, got %v", bad, err)
		}
	}
}

func TestAlgorithmIdentifierParameters(t *testing.T) {
	for _, alg := range []AlgorithmIdentifier{
		{Algorithm: OIDSHA256},
		{Algorithm: OIDSHA256, Parameters: asn1NULL},
	} {
		sc := &SafeContents{Bags: []SafeBag{{Value: &ShroudedKeyBag{Algorithm: alg, EncryptedData: []byte{1}}}}}
		der, err := sc.Marshal()
		if err != nil {
			t.Fatal(err)
		}
		parsed, err := ParseSafeContents(der)
		if err != nil {
			t.Fatal(err)
		}
		got := parsed.Bags[0].Value.(*ShroudedKeyBag).Algorithm
		if !bytes.Equal(got.Parameters, alg.Parameters) {
			t.Errorf("Parameters %x, want %x", got.Parameters, alg.Parameters)
		}
		if got.String() != "SHA-256" {
			t.Errorf("String = %q", got.String())
		}
	}
}

func TestEncryptedDataRoundTrip(t *testing.T) {
	ed := &EncryptedData{
		Version:          2,
		ContentType:      OIDData,
		Algorithm:        AlgorithmIdentifier{Algorithm: OIDPBES2, Parameters: asn1NULL},
		EncryptedContent: []byte{1, 2, 3, 4, 5, 6, 7, 8},
		UnprotectedAttrs: EncodedValue{0xa1, 0x00},
	}
	ci, err := ed.ContentInfo()
	if err != nil {
		t.Fatalf("ContentInfo failed: %v", err)
	}
	parsed, err := ci.EncryptedData()
	if err != nil {
		t.Fatalf("EncryptedData failed: %v", err)
	}
	if parsed.Version != 2 || !bytes.Equal(parsed.EncryptedContent, ed.EncryptedContent) || !parsed.UnprotectedAttrs.Equal(ed.UnprotectedAttrs) {
		t.Errorf("Round trip mismatch: %+v", parsed)
	}

	ed.Version = 1
	ci, err = ed.ContentInfo()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ci.EncryptedData(); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure for version 1, got %v", err)
	}

	if _, err := NewDataContentInfo(nil).EncryptedData(); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure for a data content info, got %v", err)
	}
}

func TestLocationErrorMessage(t *testing.T) {
	tests := []struct {
		err  *LocationError
		want string
	}{
		{&LocationError{ContentInfo: -1, Err: ErrDecryption}, "pfx: decryption failed"},
		{&LocationError{ContentInfo: 2, Err: ErrDecryption}, "content info 2: pfx: decryption failed"},
		{&LocationError{ContentInfo: -1, Bag: []int{3}, Err: ErrDecryption}, "bag 3: pfx: decryption failed"},
		{&LocationError{ContentInfo: 0, Bag: []int{1, 0, 4}, Err: ErrDecryption}, "content info 0, bag 1.0.4: pfx: decryption failed"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("Error() = %q, want %q", got, tt.want)
		}
		if !errors.Is(tt.err, ErrDecryption) {
			t.Error("LocationError does not unwrap")
		}
	}

	err := atContentInfo(1, atBag(0, atBag(2, ErrStructure)))
	var le *LocationError
	if !errors.As(err, &le) || le.ContentInfo != 1 || len(le.Bag) != 2 || le.Bag[0] != 0 || le.Bag[1] != 2 {
		t.Errorf("Unexpected location %v", err)
	}
}
