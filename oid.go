package pfx

import (
	"encoding/asn1"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// Common PKCS#12 OIDs as defined in RFC 7292
var (
	// PKCS#7 Content Types
	OIDData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	OIDSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	OIDEnvelopedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 3}
	OIDEncryptedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 6}

	// PKCS#12 Bag Types (RFC 7292 Section 4.2.1)
	OIDKeyBag              = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 1}
	OIDPKCS8ShroudedKeyBag = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 2}
	OIDCertBag             = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 3}
	OIDCRLBag              = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 4}
	OIDSecretBag           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 5}
	OIDSafeContentsBag     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 10, 1, 6}

	// Certificate and CRL Types
	OIDX509Certificate = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 22, 1}
	OIDSDSICertificate = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 22, 2}
	OIDX509CRL         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 23, 1}

	// Attribute OIDs
	OIDFriendlyName = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 20}
	OIDLocalKeyID   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 21}

	// PBES2 (RFC 8018)
	OIDPBES2      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 13}
	OIDPBKDF2     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 5, 12}
	OIDAes128CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 2}
	OIDAes192CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 22}
	OIDAes256CBC  = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 1, 42}
	OIDDESEDE3CBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 3, 7}

	// PKCS#12 PBE (RFC 7292 Appendix C)
	OIDPBEWithSHAAnd128BitRC4        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 1}
	OIDPBEWithSHAAnd40BitRC4         = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 2}
	OIDPBEWithSHAAnd3KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 3}
	OIDPBEWithSHAAnd2KeyTripleDESCBC = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 4}
	OIDPBEWithSHAAnd128BitRC2CBC     = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 5}
	OIDPBEWithSHAAnd40BitRC2CBC      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 12, 1, 6}

	// Digest and HMAC algorithms, shared with the kdf registry
	OIDSHA1       = kdf.OIDSHA1
	OIDSHA256     = kdf.OIDSHA256
	OIDSHA384     = kdf.OIDSHA384
	OIDSHA512     = kdf.OIDSHA512
	OIDHMACSHA1   = kdf.OIDHMACSHA1
	OIDHMACSHA256 = kdf.OIDHMACSHA256
	OIDHMACSHA384 = kdf.OIDHMACSHA384
	OIDHMACSHA512 = kdf.OIDHMACSHA512
)

var oidNames = []struct {
	oid  asn1.ObjectIdentifier
	name string
}{
	{OIDData, "data"},
	{OIDSignedData, "signedData"},
	{OIDEnvelopedData, "envelopedData"},
	{OIDEncryptedData, "encryptedData"},
	{OIDKeyBag, "keyBag"},
	{OIDPKCS8ShroudedKeyBag, "pkcs8ShroudedKeyBag"},
	{OIDCertBag, "certBag"},
	{OIDCRLBag, "crlBag"},
	{OIDSecretBag, "secretBag"},
	{OIDSafeContentsBag, "safeContentsBag"},
	{OIDX509Certificate, "x509Certificate"},
	{OIDSDSICertificate, "sdsiCertificate"},
	{OIDX509CRL, "x509CRL"},
	{OIDFriendlyName, "friendlyName"},
	{OIDLocalKeyID, "localKeyID"},
	{OIDPBES2, "PBES2"},
	{OIDPBKDF2, "PBKDF2"},
	{OIDAes128CBC, "aes128-CBC"},
	{OIDAes192CBC, "aes192-CBC"},
	{OIDAes256CBC, "aes256-CBC"},
	{OIDDESEDE3CBC, "des-EDE3-CBC"},
	{OIDPBEWithSHAAnd128BitRC4, "pbeWithSHAAnd128BitRC4"},
	{OIDPBEWithSHAAnd40BitRC4, "pbeWithSHAAnd40BitRC4"},
	{OIDPBEWithSHAAnd3KeyTripleDESCBC, "pbeWithSHAAnd3-KeyTripleDES-CBC"},
	{OIDPBEWithSHAAnd2KeyTripleDESCBC, "pbeWithSHAAnd2-KeyTripleDES-CBC"},
	{OIDPBEWithSHAAnd128BitRC2CBC, "pbeWithSHAAnd128BitRC2-CBC"},
	{OIDPBEWithSHAAnd40BitRC2CBC, "pbewithSHAAnd40BitRC2-CBC"},
}

// OIDName returns a readable name for the OIDs this package knows,
// including the digest and HMAC OIDs of the kdf registry, and the dotted
// form for everything else.
func OIDName(oid asn1.ObjectIdentifier) string {
	for _, n := range oidNames {
		if oid.Equal(n.oid) {
			return n.name
		}
	}
	if h, ok := kdf.HashForHMACOID(oid); ok {
		return "HMAC-" + h.Name
	}
	if h, ok := kdf.HashForOID(oid); ok {
		return h.Name
	}
	return oid.String()
}
