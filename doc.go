// Package pfx implements PKCS#12 (RFC 7292) containers.
//
// PKCS#12 bundles private keys, certificates, CRLs and secrets into one
// password protected file, typically with a .p12 or .pfx extension.
//
// # API Levels
//
// High-Level:
//
//	Decode(data, password)         - Parse, verify and extract in one step
//	Encode(bags, password, opts)   - Create a container from Bags
//
// Mid-Level:
//
//	DecodeBags(data, password, opts) - Verified, decrypted leaf SafeBags
//	VerifyMAC(pfx, password)         - Password integrity check
//	(*PFX).SetMAC(password, opts)    - Seal a PFX
//
// Low-Level:
//
//	Parse, ParsePEM, ParseAny       - PFX envelope
//	(*PFX).AuthenticatedSafe()      - ContentInfo sequence
//	ParseSafeContents(der)          - SafeBags
//	NewKeyBag, NewCertBag, ...      - Bag constructors for the encode path
//
// Every structure decoded by this package re-encodes to the same bytes:
// unknown attributes and unknown bag types are kept encoded
// (EncodedValue, OpaqueBag) instead of being dropped.
//
// # Structure
//
//	PFX
//	├── Version (3)
//	├── AuthSafe (ContentInfo, data)
//	│   └── AuthenticatedSafe
//	│       └── [ContentInfo...]
//	│           ├── Data (unencrypted SafeContents)
//	│           └── EncryptedData (encrypted SafeContents)
//	│               └── SafeContents
//	│                   └── [SafeBag...]
//	│                       ├── KeyBag, PKCS8ShroudedKeyBag
//	│                       ├── CertBag, CRLBag, SecretBag
//	│                       ├── SafeContentsBag (nested SafeContents)
//	│                       └── Attributes (FriendlyName, LocalKeyID, ...)
//	└── MacData (HMAC keyed by the RFC 7292 Appendix B KDF)
//
// # Errors
//
// Every error unwraps to one of ErrStructure, ErrUnsupportedAlgorithm,
// ErrIntegrity or ErrDecryption. Errors inside the AuthenticatedSafe are
// wrapped in a *LocationError naming the ContentInfo and bag.
//
// # Algorithms
//
// MAC digests: SHA-1, SHA-2, SHA-3, GOST R 34.11-94, GOST R 34.11-2012.
// Encryption: PBES2 (PBKDF2 with any of the HMAC PRFs above, AES-CBC or
// DES-EDE3-CBC) and pbeWithSHAAnd3-KeyTripleDES-CBC /
// pbeWithSHAAnd2-KeyTripleDES-CBC. RC2 and RC4 are refused.
//
// Containers with BER indefinite-length encoding are rejected; the legacy
// subpackage converts them to DER.
//
// # References
//
// RFC 7292: PKCS #12: Personal Information Exchange Syntax v1.1
// https://tools.ietf.org/html/rfc7292
//
// RFC 8018: PKCS #5: Password-Based Cryptography Specification Version 2.1
// https://tools.ietf.org/html/rfc8018
package pfx
