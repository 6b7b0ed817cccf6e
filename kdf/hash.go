package kdf

import (
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"hash"

	"github.com/thefish/gogost/gost28147"
	"github.com/thefish/gogost/gost34112012256"
	"github.com/thefish/gogost/gost341194"
	"golang.org/x/crypto/sha3"
)

// Digest algorithm OIDs
var (
	OIDSHA1       = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	OIDSHA256     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	OIDSHA384     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	OIDSHA512     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	OIDSHA224     = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
	OIDSHA512_224 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 5}
	OIDSHA512_256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 6}
	OIDSHA3_224   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 7}
	OIDSHA3_256   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 8}
	OIDSHA3_384   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 9}
	OIDSHA3_512   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 10}

	OIDGOST341194       = asn1.ObjectIdentifier{1, 2, 643, 2, 2, 9}
	OIDGOST34112012_256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 2, 2}
)

// HMAC algorithm OIDs, used as PBKDF2 PRFs and by some producers as MAC digest identifiers
var (
	OIDHMACSHA1       = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 7}
	OIDHMACSHA224     = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 8}
	OIDHMACSHA256     = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 9}
	OIDHMACSHA384     = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 10}
	OIDHMACSHA512     = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 11}
	OIDHMACSHA512_224 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 12}
	OIDHMACSHA512_256 = asn1.ObjectIdentifier{1, 2, 840, 113549, 2, 13}
	OIDHMACSHA3_224   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 13}
	OIDHMACSHA3_256   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 14}
	OIDHMACSHA3_384   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 15}
	OIDHMACSHA3_512   = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 16}

	OIDHMACGOST34112012_256 = asn1.ObjectIdentifier{1, 2, 643, 7, 1, 1, 4, 1}
)

// Hash is a hash primitive the key derivation runs on. Derive needs both
// the output size (u) and the input block size (v) of the function, which
// are taken from the hash.Hash returned by New.
type Hash struct {
	Name string
	New  func() hash.Hash
}

// Size returns the output size u in bytes.
func (h Hash) Size() int { return h.New().Size() }

// BlockSize returns the input block size v in bytes.
func (h Hash) BlockSize() int { return h.New().BlockSize() }

func (h Hash) String() string { return h.Name }

func (h Hash) valid() bool { return h.New != nil }

var (
	SHA1       = Hash{Name: "SHA-1", New: sha1.New}
	SHA224     = Hash{Name: "SHA-224", New: sha256.New224}
	SHA256     = Hash{Name: "SHA-256", New: sha256.New}
	SHA384     = Hash{Name: "SHA-384", New: sha512.New384}
	SHA512     = Hash{Name: "SHA-512", New: sha512.New}
	SHA512_224 = Hash{Name: "SHA-512/224", New: sha512.New512_224}
	SHA512_256 = Hash{Name: "SHA-512/256", New: sha512.New512_256}
	SHA3_224   = Hash{Name: "SHA3-224", New: sha3.New224}
	SHA3_256   = Hash{Name: "SHA3-256", New: sha3.New256}
	SHA3_384   = Hash{Name: "SHA3-384", New: sha3.New384}
	SHA3_512   = Hash{Name: "SHA3-512", New: sha3.New512}

	GOST341194 = Hash{Name: "GOST R 34.11-94", New: func() hash.Hash {
		return gost341194.New(&gost28147.SboxIdGostR341194CryptoProParamSet)
	}}
	GOST34112012_256 = Hash{Name: "GOST R 34.11-2012-256", New: func() hash.Hash {
		return gost34112012256.New()
	}}
)

type registration struct {
	digest asn1.ObjectIdentifier
	hmac   asn1.ObjectIdentifier
	hash   Hash
}

var registry = []registration{
	{OIDSHA1, OIDHMACSHA1, SHA1},
	{OIDSHA224, OIDHMACSHA224, SHA224},
	{OIDSHA256, OIDHMACSHA256, SHA256},
	{OIDSHA384, OIDHMACSHA384, SHA384},
	{OIDSHA512, OIDHMACSHA512, SHA512},
	{OIDSHA512_224, OIDHMACSHA512_224, SHA512_224},
	{OIDSHA512_256, OIDHMACSHA512_256, SHA512_256},
	{OIDSHA3_224, OIDHMACSHA3_224, SHA3_224},
	{OIDSHA3_256, OIDHMACSHA3_256, SHA3_256},
	{OIDSHA3_384, OIDHMACSHA3_384, SHA3_384},
	{OIDSHA3_512, OIDHMACSHA3_512, SHA3_512},
	{OIDGOST341194, nil, GOST341194},
	{OIDGOST34112012_256, OIDHMACGOST34112012_256, GOST34112012_256},
}

// HashForOID returns the hash primitive identified by oid. Both digest
// OIDs and the corresponding HMAC OIDs are accepted.
func HashForOID(oid asn1.ObjectIdentifier) (Hash, bool) {
	for _, r := range registry {
		if oid.Equal(r.digest) || (r.hmac != nil && oid.Equal(r.hmac)) {
			return r.hash, true
		}
	}
	return Hash{}, false
}

// HashForHMACOID returns the hash primitive behind an HMAC OID only.
func HashForHMACOID(oid asn1.ObjectIdentifier) (Hash, bool) {
	for _, r := range registry {
		if r.hmac != nil && oid.Equal(r.hmac) {
			return r.hash, true
		}
	}
	return Hash{}, false
}

// DigestOID returns the digest OID registered for h.
func DigestOID(h Hash) (asn1.ObjectIdentifier, bool) {
	for _, r := range registry {
		if r.hash.Name == h.Name {
			return r.digest, true
		}
	}
	return nil, false
}

// HMACOID returns the HMAC OID registered for h, if any.
func HMACOID(h Hash) (asn1.ObjectIdentifier, bool) {
	for _, r := range registry {
		if r.hash.Name == h.Name && r.hmac != nil {
			return r.hmac, true
		}
	}
	return nil, false
}

// HashByName looks up a primitive by its case-sensitive name or by one of
// the short aliases used on the command line (sha1, sha256, sha3-256, ...).
func HashByName(name string) (Hash, bool) {
	for _, r := range registry {
		if r.hash.Name == name {
			return r.hash, true
		}
	}
	h, ok := aliases[name]
	return h, ok
}

var aliases = map[string]Hash{
	"sha1":        SHA1,
	"sha224":      SHA224,
	"sha256":      SHA256,
	"sha384":      SHA384,
	"sha512":      SHA512,
	"sha512-224":  SHA512_224,
	"sha512-256":  SHA512_256,
	"sha3-224":    SHA3_224,
	"sha3-256":    SHA3_256,
	"sha3-384":    SHA3_384,
	"sha3-512":    SHA3_512,
	"gost3411-94": GOST341194,
	"streebog256": GOST34112012_256,
}
