package legacy

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gematik/zero-lab/go/pfx"
)

func TestIsBER(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want bool
	}{
		{
			name: "BER indefinite length",
			data: []byte{0x30, 0x80, 0x01, 0x02},
			want: true,
		},
		{
			name: "DER definite length",
			data: []byte{0x30, 0x04, 0x02, 0x01, 0x03, 0x05},
			want: false,
		},
		{
			name: "DER length longer than input",
			data: []byte{0x30, 0x10, 0x01, 0x02},
			want: false,
		},
		{
			name: "nested indefinite length",
			data: []byte{0x30, 0x09, 0x02, 0x01, 0x03, 0xa0, 0x80, 0x05, 0x00, 0x00, 0x00},
			want: true,
		},
		{
			name: "constructed OCTET STRING",
			data: []byte{0x30, 0x08, 0x24, 0x06, 0x04, 0x01, 0xaa, 0x04, 0x01, 0xbb},
			want: true,
		},
		{
			name: "long form length",
			data: append([]byte{0x30, 0x81, 0x81, 0x04, 0x7f}, make([]byte, 0x7f)...),
			want: false,
		},
		{
			name: "indefinite length on a primitive",
			data: []byte{0x04, 0x80, 0x00, 0x00},
			want: false,
		},
		{
			name: "too short",
			data: []byte{0x30},
			want: false,
		},
		{
			name: "empty",
			data: []byte{},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsBER(tt.data))
		})
	}
}

func TestIsBERDeepNesting(t *testing.T) {
	var data []byte
	for i := 0; i < 100; i++ {
		data = append([]byte{0x30, byte(len(data))}, data...)
		if len(data) > 0x7f {
			break
		}
	}
	assert.False(t, IsBER(data))
}

func generateContainer(t *testing.T, password []byte) []byte {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "legacy"},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().Add(time.Hour),
	}
	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	data, err := pfx.Encode(&pfx.Bags{
		Certificates: []pfx.CertificateBag{{Raw: certDER, LocalKeyID: []byte{1}}},
		PrivateKeys:  []pfx.PrivateKeyBag{{Raw: keyDER, LocalKeyID: []byte{1}}},
	}, password, nil)
	require.NoError(t, err)
	return data
}

// toIndefinite re-encodes the outer SEQUENCE of der with an indefinite
// length.
func toIndefinite(t *testing.T, der []byte) []byte {
	t.Helper()

	require.Equal(t, byte(0x30), der[0])
	hdr := 2
	if der[1]&0x80 != 0 {
		hdr += int(der[1] & 0x7f)
	}
	out := []byte{0x30, 0x80}
	out = append(out, der[hdr:]...)
	return append(out, 0x00, 0x00)
}

func TestConvertWithOpenSSL(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not available")
	}

	password := "legacy-test"
	der := generateContainer(t, []byte(password))
	ber := toIndefinite(t, der)
	require.True(t, IsBER(ber))
	require.False(t, IsBER(der))

	_, err := pfx.Parse(ber)
	require.ErrorIs(t, err, pfx.ErrStructure)

	converted, err := ConvertWithOpenSSL(context.Background(), ber, password)
	require.NoError(t, err)
	require.NotEmpty(t, converted)
	assert.False(t, IsBER(converted))

	bags, err := pfx.Decode(converted, []byte(password))
	require.NoError(t, err)
	defer bags.Wipe()

	assert.Len(t, bags.Certificates, 1)
	assert.Len(t, bags.PrivateKeys, 1)
	assert.Len(t, bags.FindMatchingPairs(), 1)
}

func TestConvertWithOpenSSLWrongPassword(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not available")
	}

	ber := toIndefinite(t, generateContainer(t, []byte("right")))
	_, err := ConvertWithOpenSSL(context.Background(), ber, "wrong")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openssl pkcs12 decode failed")
}

func TestConvertWithOpenSSLCanceled(t *testing.T) {
	if _, err := exec.LookPath("openssl"); err != nil {
		t.Skip("openssl not available")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ConvertWithOpenSSL(ctx, []byte{0x30, 0x80, 0x00, 0x00}, "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConvertWithOpenSSLNotFound(t *testing.T) {
	t.Setenv("PATH", t.TempDir())

	_, err := ConvertWithOpenSSL(context.Background(), []byte{0x30, 0x80, 0x00, 0x00}, "")
	require.ErrorIs(t, err, ErrOpenSSLNotFound)
}
