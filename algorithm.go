package pfx

import (
	"encoding/asn1"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// AlgorithmIdentifier is an X.509 AlgorithmIdentifier whose parameters are
// kept encoded. Empty Parameters means the field is absent, which is
// distinct from an explicit NULL.
type AlgorithmIdentifier struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters EncodedValue
}

var asn1NULL = EncodedValue{0x05, 0x00}

func parseAlgorithmIdentifier(s *cryptobyte.String) (AlgorithmIdentifier, error) {
	var alg AlgorithmIdentifier
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return alg, structuralf("failed to read AlgorithmIdentifier")
	}
	if !seq.ReadASN1ObjectIdentifier(&alg.Algorithm) {
		return alg, structuralf("failed to read algorithm OID")
	}
	if !seq.Empty() {
		params, ok := readEncodedValue(&seq)
		if !ok || !seq.Empty() {
			return alg, structuralf("failed to read parameters of %v", alg.Algorithm)
		}
		alg.Parameters = params
	}
	return alg, nil
}

func (a AlgorithmIdentifier) marshal(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(a.Algorithm)
		b.AddBytes(a.Parameters)
	})
}

func (a AlgorithmIdentifier) String() string {
	return OIDName(a.Algorithm)
}
