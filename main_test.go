package pfx

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"io"
	"math/big"
	mrand "math/rand/v2"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// generateTestCertAndKey returns a self-signed P-256 certificate and its
// PKCS#8 private key.
func generateTestCertAndKey(t testing.TB) (certDER []byte, keyDER []byte) {
	t.Helper()

	privKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err = x509.MarshalPKCS8PrivateKey(privKey)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			CommonName: "Test Certificate",
		},
		NotBefore:             time.Now(),
		NotAfter:              time.Now().Add(365 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	certDER, err = x509.CreateCertificate(rand.Reader, &template, &template, &privKey.PublicKey, privKey)
	if err != nil {
		t.Fatal(err)
	}
	return certDER, keyDER
}

// testRand returns a deterministic source for salts and IVs.
func testRand(seed byte) io.Reader {
	var s [32]byte
	s[0] = seed
	return mrand.NewChaCha8(s)
}

func loadRealWorldPFX(t testing.TB) []byte {
	t.Helper()

	data, err := base64.StdEncoding.DecodeString(string(testPFXBase64))
	if err != nil {
		t.Fatalf("Failed to decode base64: %v", err)
	}
	return data
}

// mustMarshalSafeContents builds a SafeContents encoding from bags.
func mustMarshalSafeContents(t testing.TB, bags ...SafeBag) []byte {
	t.Helper()

	der, err := (&SafeContents{Bags: bags}).Marshal()
	if err != nil {
		t.Fatalf("SafeContents.Marshal failed: %v", err)
	}
	return der
}

// buildPFX wraps the given ContentInfos into a PFX with a SHA-256 MAC for
// password.
func buildPFX(t testing.TB, password []byte, cis ...ContentInfo) []byte {
	t.Helper()

	p, err := NewPFX(&AuthenticatedSafe{ContentInfos: cis})
	if err != nil {
		t.Fatalf("NewPFX failed: %v", err)
	}
	if err := p.SetMAC(password, &MacOptions{Rand: testRand(1)}); err != nil {
		t.Fatalf("SetMAC failed: %v", err)
	}
	der, err := p.Marshal()
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	return der
}
