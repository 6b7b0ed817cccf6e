package pfx

import (
	"crypto/rand"
	"encoding/asn1"
	"fmt"
	"io"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// EncryptionOptions selects a password based encryption scheme for new
// contents or keys.
type EncryptionOptions struct {
	// OIDPBES2 or one of the PKCS#12 3DES PBE OIDs
	Algorithm asn1.ObjectIdentifier

	// PBES2 only: cipher and PBKDF2 PRF
	Cipher asn1.ObjectIdentifier
	PRF    asn1.ObjectIdentifier

	Iterations int
	SaltLength int
}

// NewAlgorithm returns a fresh AlgorithmIdentifier for the scheme.
func (o *EncryptionOptions) NewAlgorithm(rand io.Reader) (AlgorithmIdentifier, error) {
	if o.Algorithm == nil || o.Algorithm.Equal(OIDPBES2) {
		return NewPBES2Algorithm(rand, PBES2Options{
			Cipher:     o.Cipher,
			PRF:        o.PRF,
			Iterations: o.Iterations,
			SaltLength: o.SaltLength,
		})
	}
	iterations := o.Iterations
	if iterations == 0 {
		iterations = defaultMacIterations
	}
	return NewPKCS12PBEAlgorithm(rand, o.Algorithm, iterations, o.SaltLength)
}

// EncodeOptions configures PKCS#12 encoding. What to protect and how is
// the caller's policy; the presets below cover the usual choices.
type EncodeOptions struct {
	// Scheme for private keys. Nil writes unencrypted KeyBags.
	KeyEncryption *EncryptionOptions

	// Scheme for the SafeContents holding certificates, CRLs and secrets.
	// Nil writes them in a data ContentInfo.
	CertEncryption *EncryptionOptions

	// MAC parameters. Nil writes no MAC.
	Mac *MacOptions

	// Encrypter (default: PasswordCipher)
	Encrypter Encrypter

	// Source of salts and IVs (default: crypto/rand)
	Rand io.Reader
}

// ModernEncodeOptions returns PBES2 with AES-256-CBC and HMAC-SHA256 for
// keys and certificates, and a SHA-256 MAC, all with 2048 iterations.
func ModernEncodeOptions() *EncodeOptions {
	enc := &EncryptionOptions{
		Algorithm:  OIDPBES2,
		Cipher:     OIDAes256CBC,
		PRF:        OIDHMACSHA256,
		Iterations: 2048,
	}
	return &EncodeOptions{
		KeyEncryption:  enc,
		CertEncryption: enc,
		Mac:            &MacOptions{Digest: OIDSHA256, Iterations: 2048},
	}
}

// LegacyEncodeOptions returns pbeWithSHAAnd3-KeyTripleDES-CBC for keys and
// certificates and a SHA-1 MAC, readable by old consumers.
func LegacyEncodeOptions() *EncodeOptions {
	enc := &EncryptionOptions{
		Algorithm:  OIDPBEWithSHAAnd3KeyTripleDESCBC,
		Iterations: 2048,
	}
	return &EncodeOptions{
		KeyEncryption:  enc,
		CertEncryption: enc,
		Mac:            &MacOptions{Digest: OIDSHA1, Iterations: 2048, SaltLength: 8},
	}
}

// Encode creates a PKCS#12 file from bags.
//
// Certificates, CRLs and secrets go into the first ContentInfo, keys into
// the second, the layout OpenSSL writes. A nil opts means
// ModernEncodeOptions.
func Encode(bags *Bags, password []byte, opts *EncodeOptions) ([]byte, error) {
	if opts == nil {
		opts = ModernEncodeOptions()
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.Reader
	}
	enc := opts.Encrypter
	if enc == nil {
		enc = PasswordCipher{}
	}

	var certBags []SafeBag
	for _, cert := range bags.Certificates {
		attrs, err := newAttributes(cert.FriendlyName, cert.LocalKeyID)
		if err != nil {
			return nil, err
		}
		certBags = append(certBags, SafeBag{Value: NewCertBag(cert.Raw), Attributes: attrs})
	}
	for _, crl := range bags.CRLs {
		attrs, err := newAttributes(crl.FriendlyName, crl.LocalKeyID)
		if err != nil {
			return nil, err
		}
		certBags = append(certBags, SafeBag{Value: NewCRLBag(crl.Raw), Attributes: attrs})
	}
	for _, secret := range bags.Secrets {
		value, err := ParseEncodedValue(secret.Value)
		if err != nil {
			return nil, fmt.Errorf("secret value: %w", err)
		}
		attrs, err := newAttributes(secret.FriendlyName, secret.LocalKeyID)
		if err != nil {
			return nil, err
		}
		certBags = append(certBags, SafeBag{Value: NewSecretBag(secret.Type, value), Attributes: attrs})
	}

	var keyBags []SafeBag
	for _, key := range bags.PrivateKeys {
		attrs, err := newAttributes(key.FriendlyName, key.LocalKeyID)
		if err != nil {
			return nil, err
		}
		var value BagValue
		if opts.KeyEncryption == nil {
			value, err = NewKeyBag(key.Raw)
		} else {
			var alg AlgorithmIdentifier
			if alg, err = opts.KeyEncryption.NewAlgorithm(rnd); err != nil {
				return nil, err
			}
			value, err = NewShroudedKeyBag(key.Raw, alg, password, enc)
		}
		if err != nil {
			return nil, fmt.Errorf("private key: %w", err)
		}
		keyBags = append(keyBags, SafeBag{Value: value, Attributes: attrs})
	}

	as := &AuthenticatedSafe{}
	if len(certBags) > 0 {
		ci, err := newContentInfo(&SafeContents{Bags: certBags}, opts.CertEncryption, rnd, password, enc)
		if err != nil {
			return nil, err
		}
		as.ContentInfos = append(as.ContentInfos, ci)
	}
	if len(keyBags) > 0 {
		// Unencrypted keys are written in plain data; shrouded keys are
		// already protected.
		ci, err := newContentInfo(&SafeContents{Bags: keyBags}, nil, rnd, password, enc)
		if err != nil {
			return nil, err
		}
		as.ContentInfos = append(as.ContentInfos, ci)
	}

	p, err := NewPFX(as)
	if err != nil {
		return nil, err
	}
	if opts.Mac != nil {
		mac := *opts.Mac
		if mac.Rand == nil {
			mac.Rand = rnd
		}
		if err := p.SetMAC(password, &mac); err != nil {
			return nil, err
		}
	}
	return p.Marshal()
}

func newAttributes(friendlyName string, localKeyID []byte) (Attributes, error) {
	var attrs Attributes
	if friendlyName != "" {
		attr, err := NewFriendlyNameAttribute(friendlyName)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	if len(localKeyID) > 0 {
		attrs = append(attrs, NewLocalKeyIDAttribute(localKeyID))
	}
	return attrs, nil
}

func newContentInfo(sc *SafeContents, encOpts *EncryptionOptions, rnd io.Reader, password []byte, enc Encrypter) (ContentInfo, error) {
	if encOpts == nil {
		der, err := sc.Marshal()
		if err != nil {
			return ContentInfo{}, err
		}
		return NewDataContentInfo(der), nil
	}
	alg, err := encOpts.NewAlgorithm(rnd)
	if err != nil {
		return ContentInfo{}, err
	}
	return NewEncryptedContentInfo(sc, alg, password, enc)
}

// NewShroudedKeyBag encrypts a DER PrivateKeyInfo under alg.
func NewShroudedKeyBag(privateKeyInfo []byte, alg AlgorithmIdentifier, password []byte, enc Encrypter) (*ShroudedKeyBag, error) {
	if err := checkSequence(privateKeyInfo, "PrivateKeyInfo"); err != nil {
		return nil, err
	}
	if enc == nil {
		enc = PasswordCipher{}
	}
	ciphertext, err := enc.Encrypt(alg, password, privateKeyInfo)
	if err != nil {
		return nil, err
	}
	return &ShroudedKeyBag{Algorithm: alg, EncryptedData: ciphertext}, nil
}

// NewEncryptedContentInfo encrypts the encoding of sc into an
// encryptedData ContentInfo. The plaintext encoding is wiped afterwards.
func NewEncryptedContentInfo(sc *SafeContents, alg AlgorithmIdentifier, password []byte, enc Encrypter) (ContentInfo, error) {
	if enc == nil {
		enc = PasswordCipher{}
	}
	plaintext, err := sc.Marshal()
	if err != nil {
		return ContentInfo{}, err
	}
	defer kdf.Wipe(plaintext)

	ciphertext, err := enc.Encrypt(alg, password, plaintext)
	if err != nil {
		return ContentInfo{}, err
	}
	ed := &EncryptedData{
		Version:          0,
		ContentType:      OIDData,
		Algorithm:        alg,
		EncryptedContent: ciphertext,
	}
	return ed.ContentInfo()
}
