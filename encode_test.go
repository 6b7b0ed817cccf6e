package pfx

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"errors"
	"testing"
)

func TestEncodeAndDecode(t *testing.T) {
	certDER, keyDER := generateTestCertAndKey(t)

	bags := &Bags{
		Certificates: []CertificateBag{{
			Raw:          certDER,
			FriendlyName: "My Certificate",
			LocalKeyID:   []byte{0x01, 0x02, 0x03},
		}},
		PrivateKeys: []PrivateKeyBag{{
			Raw:          keyDER,
			FriendlyName: "My Key",
			LocalKeyID:   []byte{0x01, 0x02, 0x03},
		}},
	}
	password := []byte("testpassword")

	presets := []struct {
		name string
		opts func() *EncodeOptions
	}{
		{"default", func() *EncodeOptions { return nil }},
		{"modern", ModernEncodeOptions},
		{"legacy", LegacyEncodeOptions},
	}
	for _, preset := range presets {
		t.Run(preset.name, func(t *testing.T) {
			p12Data, err := Encode(bags, password, preset.opts())
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			decoded, err := Decode(p12Data, password)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			defer decoded.Wipe()

			if len(decoded.Certificates) != 1 || len(decoded.PrivateKeys) != 1 {
				t.Fatalf("Expected 1 certificate and 1 key, got %d and %d", len(decoded.Certificates), len(decoded.PrivateKeys))
			}
			cert := decoded.Certificates[0]
			if !bytes.Equal(cert.Raw, certDER) {
				t.Error("Certificate mismatch")
			}
			if cert.FriendlyName != "My Certificate" {
				t.Errorf("Certificate friendly name %q", cert.FriendlyName)
			}
			key := decoded.PrivateKeys[0]
			if !bytes.Equal(key.Raw, keyDER) {
				t.Error("Private key mismatch")
			}
			if key.FriendlyName != "My Key" {
				t.Errorf("Key friendly name %q", key.FriendlyName)
			}
			if !bytes.Equal(key.LocalKeyID, []byte{0x01, 0x02, 0x03}) {
				t.Errorf("Key localKeyID %x", key.LocalKeyID)
			}
		})
	}
}

func TestEncodeLayout(t *testing.T) {
	certDER, keyDER := generateTestCertAndKey(t)
	bags := &Bags{
		Certificates: []CertificateBag{{Raw: certDER}},
		PrivateKeys:  []PrivateKeyBag{{Raw: keyDER}},
	}
	password := []byte("layout")

	tests := []struct {
		name       string
		opts       *EncodeOptions
		certType   asn1.ObjectIdentifier
		keyBagType asn1.ObjectIdentifier
		macDigest  asn1.ObjectIdentifier
		scheme     asn1.ObjectIdentifier
	}{
		{"modern", ModernEncodeOptions(), OIDEncryptedData, OIDPKCS8ShroudedKeyBag, OIDSHA256, OIDPBES2},
		{"legacy", LegacyEncodeOptions(), OIDEncryptedData, OIDPKCS8ShroudedKeyBag, OIDSHA1, OIDPBEWithSHAAnd3KeyTripleDESCBC},
		{"plain", &EncodeOptions{Mac: &MacOptions{}}, OIDData, OIDKeyBag, OIDSHA256, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Rand = testRand(20)
			data, err := Encode(bags, password, tt.opts)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}
			p, err := Parse(data)
			if err != nil {
				t.Fatalf("Parse failed: %v", err)
			}
			if !p.MacData.Mac.Algorithm.Algorithm.Equal(tt.macDigest) {
				t.Errorf("MAC digest %v, want %v", p.MacData.Mac.Algorithm.Algorithm, tt.macDigest)
			}
			as, err := p.AuthenticatedSafe()
			if err != nil {
				t.Fatalf("AuthenticatedSafe failed: %v", err)
			}
			if len(as.ContentInfos) != 2 {
				t.Fatalf("Expected 2 content infos, got %d", len(as.ContentInfos))
			}
			if !as.ContentInfos[0].ContentType.Equal(tt.certType) {
				t.Errorf("Certificates in %v, want %v", OIDName(as.ContentInfos[0].ContentType), OIDName(tt.certType))
			}
			if tt.scheme != nil {
				ed, err := as.ContentInfos[0].EncryptedData()
				if err != nil {
					t.Fatalf("EncryptedData failed: %v", err)
				}
				if !ed.Algorithm.Algorithm.Equal(tt.scheme) {
					t.Errorf("Certificate scheme %v, want %v", ed.Algorithm, OIDName(tt.scheme))
				}
			}

			payload, err := as.ContentInfos[1].Data()
			if err != nil {
				t.Fatalf("Keys are not in a data content info: %v", err)
			}
			sc, err := ParseSafeContents(payload)
			if err != nil {
				t.Fatalf("ParseSafeContents failed: %v", err)
			}
			if got := sc.Bags[0].BagID(); !got.Equal(tt.keyBagType) {
				t.Errorf("Key bag %v, want %v", OIDName(got), OIDName(tt.keyBagType))
			}
		})
	}
}

func TestEncodeIsDeterministicWithFixedRand(t *testing.T) {
	certDER, keyDER := generateTestCertAndKey(t)
	bags := &Bags{
		Certificates: []CertificateBag{{Raw: certDER}},
		PrivateKeys:  []PrivateKeyBag{{Raw: keyDER}},
	}

	encode := func() []byte {
		opts := ModernEncodeOptions()
		opts.Rand = testRand(21)
		data, err := Encode(bags, []byte("pw"), opts)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		return data
	}
	if !bytes.Equal(encode(), encode()) {
		t.Error("Same inputs and randomness produced different encodings")
	}
}

func TestEncodeNoMAC(t *testing.T) {
	certDER, _ := generateTestCertAndKey(t)
	bags := &Bags{Certificates: []CertificateBag{{Raw: certDER}}}

	opts := ModernEncodeOptions()
	opts.Mac = nil
	data, err := Encode(bags, []byte("pw"), opts)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if p.MacData != nil {
		t.Error("Expected no MacData")
	}

	if _, err := ExtractBags(p, []byte("pw")); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity with the default options, got %v", err)
	}
	decoded, err := ExtractBagsWithOptions(p, []byte("pw"), &DecodeOptions{})
	if err != nil {
		t.Fatalf("ExtractBagsWithOptions failed: %v", err)
	}
	if len(decoded.Certificates) != 1 {
		t.Errorf("Expected 1 certificate, got %d", len(decoded.Certificates))
	}
}

func TestEncodeEmptyBags(t *testing.T) {
	data, err := Encode(&Bags{}, []byte("pw"), nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data, []byte("pw"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Certificates)+len(decoded.PrivateKeys)+len(decoded.CRLs)+len(decoded.Secrets) != 0 {
		t.Errorf("Expected no bags, got %+v", decoded)
	}
}

func TestEncodeCRLsAndSecrets(t *testing.T) {
	crl := []byte{0x30, 0x03, 0x02, 0x01, 0x00}
	secretType := asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 25, 3}
	secretValue := []byte{0x04, 0x04, 's', 'e', 'c', 'r'}
	bags := &Bags{
		CRLs:    []RevocationList{{Raw: crl, FriendlyName: "crl"}},
		Secrets: []Secret{{Type: secretType, Value: secretValue, LocalKeyID: []byte{9}}},
	}
	password := []byte("other bags")

	data, err := Encode(bags, password, nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data, password)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	defer decoded.Wipe()

	if len(decoded.CRLs) != 1 || !bytes.Equal(decoded.CRLs[0].Raw, crl) || decoded.CRLs[0].FriendlyName != "crl" {
		t.Errorf("CRL mismatch: %+v", decoded.CRLs)
	}
	if len(decoded.Secrets) != 1 {
		t.Fatalf("Expected 1 secret, got %d", len(decoded.Secrets))
	}
	s := decoded.Secrets[0]
	if !s.Type.Equal(secretType) || !bytes.Equal(s.Value, secretValue) || !bytes.Equal(s.LocalKeyID, []byte{9}) {
		t.Errorf("Secret mismatch: %+v", s)
	}

	bags.Secrets[0].Value = []byte("not DER")
	if _, err := Encode(bags, password, nil); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure for a non-DER secret, got %v", err)
	}
}

func TestEncodeRejectsInvalidKey(t *testing.T) {
	bags := &Bags{PrivateKeys: []PrivateKeyBag{{Raw: []byte("garbage")}}}
	if _, err := Encode(bags, []byte("pw"), nil); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure, got %v", err)
	}
}

func TestEncodeEmptyPasswordInterop(t *testing.T) {
	certDER, keyDER := generateTestCertAndKey(t)
	bags := &Bags{
		Certificates: []CertificateBag{{Raw: certDER}},
		PrivateKeys:  []PrivateKeyBag{{Raw: keyDER}},
	}
	for _, opts := range []*EncodeOptions{ModernEncodeOptions(), LegacyEncodeOptions()} {
		data, err := Encode(bags, nil, opts)
		if err != nil {
			t.Fatalf("Encode failed: %v", err)
		}
		decoded, err := Decode(data, []byte{})
		if err != nil {
			t.Fatalf("Decode failed: %v", err)
		}
		if len(decoded.PrivateKeys) != 1 || !bytes.Equal(decoded.PrivateKeys[0].Raw, keyDER) {
			t.Error("Private key mismatch")
		}
		decoded.Wipe()
	}
}

func TestExtractBagsMultipleCerts(t *testing.T) {
	var certs []CertificateBag
	for i := 0; i < 3; i++ {
		der, _ := generateTestCertAndKey(t)
		certs = append(certs, CertificateBag{Raw: der, LocalKeyID: []byte{byte(i)}})
	}
	data, err := Encode(&Bags{Certificates: certs}, []byte("multi"), nil)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	decoded, err := Decode(data, []byte("multi"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Certificates) != 3 {
		t.Fatalf("Expected 3 certificates, got %d", len(decoded.Certificates))
	}
	for i, c := range decoded.Certificates {
		if !bytes.Equal(c.Raw, certs[i].Raw) {
			t.Errorf("certificate %d out of order", i)
		}
		if _, err := x509.ParseCertificate(c.Raw); err != nil {
			t.Errorf("certificate %d: %v", i, err)
		}
	}
}

func TestFindMatchingPairs(t *testing.T) {
	cert1, key1 := generateTestCertAndKey(t)
	cert2, key2 := generateTestCertAndKey(t)
	cert3, _ := generateTestCertAndKey(t)

	bags := &Bags{
		Certificates: []CertificateBag{
			{Raw: cert1, LocalKeyID: []byte{1}},
			{Raw: cert2, LocalKeyID: []byte{2}},
			{Raw: cert3},
		},
		PrivateKeys: []PrivateKeyBag{
			{Raw: key2, LocalKeyID: []byte{2}},
			{Raw: key1, LocalKeyID: []byte{1}},
		},
	}
	pairs := bags.FindMatchingPairs()
	if len(pairs) != 2 {
		t.Fatalf("Expected 2 pairs, got %d", len(pairs))
	}
	if !bytes.Equal(pairs[0].Certificate.Raw, cert1) || !bytes.Equal(pairs[0].PrivateKey.Raw, key1) {
		t.Error("First pair mismatch")
	}
	if !bytes.Equal(pairs[1].Certificate.Raw, cert2) || !bytes.Equal(pairs[1].PrivateKey.Raw, key2) {
		t.Error("Second pair mismatch")
	}

	if c := bags.FindCertificate([]byte{2}); c == nil || !bytes.Equal(c.Raw, cert2) {
		t.Error("FindCertificate failed")
	}
	if k := bags.FindPrivateKey([]byte{3}); k != nil {
		t.Error("FindPrivateKey found a key for an unknown ID")
	}
}

func TestBagsWipe(t *testing.T) {
	bags := &Bags{
		PrivateKeys: []PrivateKeyBag{{Raw: []byte{1, 2, 3}}},
		Secrets:     []Secret{{Value: []byte{4, 5}}},
	}
	bags.Wipe()
	if !bytes.Equal(bags.PrivateKeys[0].Raw, []byte{0, 0, 0}) || !bytes.Equal(bags.Secrets[0].Value, []byte{0, 0}) {
		t.Error("Wipe left secret material behind")
	}
	var nilBags *Bags
	nilBags.Wipe()
}

func TestExtractBagsSkipsOtherCertTypes(t *testing.T) {
	sdsi := &CertBag{CertType: OIDSDSICertificate, Value: EncodedValue{0x16, 0x03, 'a', 'b', 'c'}}
	password := []byte("sdsi")
	data := buildPFX(t, password, NewDataContentInfo(mustMarshalSafeContents(t, SafeBag{Value: sdsi})))

	decoded, err := Decode(data, password)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if len(decoded.Certificates) != 0 {
		t.Errorf("Expected the sdsi certificate to be skipped, got %d", len(decoded.Certificates))
	}

	contents, err := DecodeBags(data, password, nil)
	if err != nil {
		t.Fatalf("DecodeBags failed: %v", err)
	}
	if _, err := contents.Bags[0].Value.(*CertBag).Certificate(); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("Expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func BenchmarkExtractBags(b *testing.B) {
	data := loadRealWorldPFX(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bags, err := Decode(data, testPFXPassword)
		if err != nil {
			b.Fatal(err)
		}
		bags.Wipe()
	}
}
