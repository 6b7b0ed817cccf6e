package pfx

import (
	"bytes"
	"encoding/asn1"
	"errors"
	"testing"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

func newTestPFX(t *testing.T) *PFX {
	t.Helper()

	_, keyDER := generateTestCertAndKey(t)
	key, err := NewKeyBag(keyDER)
	if err != nil {
		t.Fatalf("NewKeyBag failed: %v", err)
	}
	sc := mustMarshalSafeContents(t, SafeBag{Value: key})
	p, err := NewPFX(&AuthenticatedSafe{ContentInfos: []ContentInfo{NewDataContentInfo(sc)}})
	if err != nil {
		t.Fatalf("NewPFX failed: %v", err)
	}
	return p
}

func TestMACDigests(t *testing.T) {
	digests := []struct {
		name string
		oid  asn1.ObjectIdentifier
	}{
		{"SHA-1", OIDSHA1},
		{"SHA-256", OIDSHA256},
		{"SHA-384", OIDSHA384},
		{"SHA-512", OIDSHA512},
		{"SHA3-256", kdf.OIDSHA3_256},
		{"GOST R 34.11-2012-256", kdf.OIDGOST34112012_256},
	}
	p := newTestPFX(t)
	password := []byte("test123")

	for _, d := range digests {
		t.Run(d.name, func(t *testing.T) {
			if err := p.SetMAC(password, &MacOptions{Digest: d.oid, Iterations: 16, Rand: testRand(2)}); err != nil {
				t.Fatalf("SetMAC failed: %v", err)
			}
			if !p.MacData.Mac.Algorithm.Algorithm.Equal(d.oid) {
				t.Errorf("Expected digest %v, got %v", d.oid, p.MacData.Mac.Algorithm.Algorithm)
			}
			if len(p.MacData.MacSalt) != 16 {
				t.Errorf("Expected 16 byte salt, got %d", len(p.MacData.MacSalt))
			}
			if err := VerifyMAC(p, password); err != nil {
				t.Errorf("VerifyMAC failed: %v", err)
			}
			if err := VerifyMAC(p, []byte("test124")); !errors.Is(err, ErrIntegrity) {
				t.Errorf("Expected ErrIntegrity, got %v", err)
			}
		})
	}
}

func TestMACAcceptsHMACOID(t *testing.T) {
	p := newTestPFX(t)
	password := []byte("pw")
	if err := p.SetMAC(password, &MacOptions{Rand: testRand(3)}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	// Some producers put the HMAC OID into the DigestInfo.
	p.MacData.Mac.Algorithm.Algorithm = OIDHMACSHA256
	if err := VerifyMAC(p, password); err != nil {
		t.Errorf("VerifyMAC failed: %v", err)
	}
}

func TestMACDefaults(t *testing.T) {
	p := newTestPFX(t)
	if err := p.SetMAC([]byte("pw"), nil); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	md := p.MacData
	if !md.Mac.Algorithm.Algorithm.Equal(OIDSHA256) {
		t.Errorf("Expected SHA-256, got %v", md.Mac.Algorithm.Algorithm)
	}
	if !bytes.Equal(md.Mac.Algorithm.Parameters, asn1NULL) {
		t.Errorf("Expected NULL parameters, got %x", md.Mac.Algorithm.Parameters)
	}
	if md.Iterations != 2048 {
		t.Errorf("Expected 2048 iterations, got %d", md.Iterations)
	}
	if len(md.MacSalt) != 16 {
		t.Errorf("Expected 16 byte salt, got %d", len(md.MacSalt))
	}
}

func TestMACFixedSaltIsDeterministic(t *testing.T) {
	p := newTestPFX(t)
	opts := &MacOptions{Salt: []byte("saltsalt"), Iterations: 100}
	if err := p.SetMAC([]byte("pw"), opts); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	first := bytes.Clone(p.MacData.Mac.Digest)
	if err := p.SetMAC([]byte("pw"), opts); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	if !bytes.Equal(first, p.MacData.Mac.Digest) {
		t.Error("Same password, salt and iterations produced different MACs")
	}
	if !bytes.Equal(p.MacData.MacSalt, []byte("saltsalt")) {
		t.Errorf("Salt not used: %x", p.MacData.MacSalt)
	}
}

func TestMACTamperedSignedData(t *testing.T) {
	p := newTestPFX(t)
	password := []byte("test123")
	if err := p.SetMAC(password, &MacOptions{Iterations: 10, Rand: testRand(4)}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}

	signed, err := p.SignedData()
	if err != nil {
		t.Fatalf("SignedData failed: %v", err)
	}
	tampered := bytes.Clone(signed)
	tampered[len(tampered)-1] ^= 0x80
	p.AuthSafe = NewDataContentInfo(tampered)

	if err := VerifyMAC(p, password); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity, got %v", err)
	}
}

func TestMACEmptyPasswordEncodings(t *testing.T) {
	p := newTestPFX(t)
	signed, err := p.SignedData()
	if err != nil {
		t.Fatalf("SignedData failed: %v", err)
	}
	salt := []byte("12345678")

	// A producer that treats the empty password as zero bytes.
	digest, err := computeMAC(kdf.SHA256, nil, salt, 1, signed)
	if err != nil {
		t.Fatalf("computeMAC failed: %v", err)
	}
	p.MacData = &MacData{
		Mac:        DigestInfo{Algorithm: AlgorithmIdentifier{Algorithm: OIDSHA256, Parameters: asn1NULL}, Digest: digest},
		MacSalt:    salt,
		Iterations: 1,
	}
	if err := VerifyMAC(p, nil); err != nil {
		t.Errorf("zero-length encoding: VerifyMAC failed: %v", err)
	}
	if err := VerifyMAC(p, []byte("x")); !errors.Is(err, ErrIntegrity) {
		t.Errorf("Expected ErrIntegrity, got %v", err)
	}

	// The RFC encoding: a single NUL pair.
	if err := p.SetMAC(nil, &MacOptions{Salt: salt, Iterations: 1}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	if bytes.Equal(p.MacData.Mac.Digest, digest) {
		t.Fatal("Both empty password encodings produced the same MAC")
	}
	if err := VerifyMAC(p, []byte{}); err != nil {
		t.Errorf("NUL pair encoding: VerifyMAC failed: %v", err)
	}
}

func TestMACDigestLengthMismatch(t *testing.T) {
	p := newTestPFX(t)
	if err := p.SetMAC([]byte("pw"), &MacOptions{Iterations: 1}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	p.MacData.Mac.Digest = p.MacData.Mac.Digest[:20]
	if err := VerifyMAC(p, []byte("pw")); !errors.Is(err, ErrStructure) {
		t.Errorf("Expected ErrStructure, got %v", err)
	}
}

func TestMACUnsupportedDigest(t *testing.T) {
	p := newTestPFX(t)
	err := p.SetMAC([]byte("pw"), &MacOptions{Digest: asn1.ObjectIdentifier{1, 2, 3}})
	if !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("SetMAC: expected ErrUnsupportedAlgorithm, got %v", err)
	}

	if err := p.SetMAC([]byte("pw"), &MacOptions{Iterations: 1}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	p.MacData.Mac.Algorithm.Algorithm = asn1.ObjectIdentifier{1, 2, 3}
	if err := VerifyMAC(p, []byte("pw")); !errors.Is(err, ErrUnsupportedAlgorithm) {
		t.Errorf("VerifyMAC: expected ErrUnsupportedAlgorithm, got %v", err)
	}
}

func BenchmarkVerifyMAC(b *testing.B) {
	p, err := Parse(loadRealWorldPFX(b))
	if err != nil {
		b.Fatalf("Parse failed: %v", err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if err := VerifyMAC(p, testPFXPassword); err != nil {
			b.Fatal(err)
		}
	}
}
