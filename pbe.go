package pfx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/subtle"
	"encoding/asn1"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
	"golang.org/x/crypto/pbkdf2"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// Decrypter decrypts ciphertext protected by a password based encryption
// scheme. password is the UTF-8 password; each scheme converts it to the
// form it needs.
type Decrypter interface {
	Decrypt(alg AlgorithmIdentifier, password, ciphertext []byte) ([]byte, error)
}

// Encrypter is the encrypting counterpart of Decrypter. The salt and IV are
// taken from alg.
type Encrypter interface {
	Encrypt(alg AlgorithmIdentifier, password, plaintext []byte) ([]byte, error)
}

// PasswordCipher is the built-in Decrypter and Encrypter. It implements
// PBES2 with PBKDF2 and AES-CBC or DES-EDE3-CBC, and the PKCS#12 3DES PBE
// schemes. The RC2 and RC4 PKCS#12 schemes are refused.
type PasswordCipher struct{}

var (
	_ Decrypter = PasswordCipher{}
	_ Encrypter = PasswordCipher{}
)

// pbeParams is a parsed PBE AlgorithmIdentifier reduced to what the cipher
// needs.
type pbeParams struct {
	newCipher func(key []byte) (cipher.Block, error)
	keyLen    int
	blockSize int
	iv        []byte

	// PBES2
	prf  kdf.Hash
	salt []byte
	iter int

	// PKCS#12 PBE
	pkcs12            bool
	twoKey            bool
	emptyAsZeroLength bool
}

func (c PasswordCipher) Decrypt(alg AlgorithmIdentifier, password, ciphertext []byte) ([]byte, error) {
	return c.decrypt(alg, password, ciphertext, nil)
}

// decrypt tries each encoding the scheme has for password and returns the
// first plaintext accept takes; rejected plaintexts are wiped. An empty
// password has two PKCS#12 encodings in the wild, and a wrong one still
// yields valid padding about once in 256 tries.
//
// A nil accept takes any DER SEQUENCE when there is more than one
// candidate, falling back to the first plaintext with valid padding.
func (PasswordCipher) decrypt(alg AlgorithmIdentifier, password, ciphertext []byte, accept func([]byte) error) ([]byte, error) {
	params, err := parsePBEParams(alg)
	if err != nil {
		return nil, err
	}
	encodings := []bool{false}
	if params.pkcs12 && len(password) == 0 {
		encodings = append(encodings, true)
	}
	lenient := accept == nil
	if lenient {
		if len(encodings) == 1 {
			return params.crypt(password, ciphertext, false)
		}
		accept = func(b []byte) error { return checkSequence(b, "plaintext") }
	}

	var fallback []byte
	rejected := ErrDecryption
	for _, zeroLength := range encodings {
		params.emptyAsZeroLength = zeroLength
		plaintext, err := params.crypt(password, ciphertext, false)
		if errors.Is(err, ErrDecryption) {
			continue
		}
		if err != nil {
			kdf.Wipe(fallback)
			return nil, err
		}
		if err := accept(plaintext); err != nil {
			if lenient && fallback == nil {
				fallback = plaintext
				continue
			}
			kdf.Wipe(plaintext)
			rejected = err
			continue
		}
		kdf.Wipe(fallback)
		return plaintext, nil
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, rejected
}

func (PasswordCipher) Encrypt(alg AlgorithmIdentifier, password, plaintext []byte) ([]byte, error) {
	params, err := parsePBEParams(alg)
	if err != nil {
		return nil, err
	}
	return params.crypt(password, plaintext, true)
}

func parsePBEParams(alg AlgorithmIdentifier) (*pbeParams, error) {
	switch {
	case alg.Algorithm.Equal(OIDPBES2):
		return parsePBES2Params(alg.Parameters)
	case alg.Algorithm.Equal(OIDPBEWithSHAAnd3KeyTripleDESCBC):
		return parsePKCS12PBEParams(alg.Parameters, false)
	case alg.Algorithm.Equal(OIDPBEWithSHAAnd2KeyTripleDESCBC):
		return parsePKCS12PBEParams(alg.Parameters, true)
	}
	return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, OIDName(alg.Algorithm))
}

// parsePKCS12PBEParams parses pkcs-12PbeParams ::= SEQUENCE { salt OCTET STRING, iterations INTEGER }
func parsePKCS12PBEParams(params EncodedValue, twoKey bool) (*pbeParams, error) {
	input := cryptobyte.String(params)
	var seq, salt cryptobyte.String
	p := &pbeParams{
		newCipher: des.NewTripleDESCipher,
		keyLen:    24,
		blockSize: des.BlockSize,
		prf:       kdf.SHA1,
		pkcs12:    true,
		twoKey:    twoKey,
	}
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() ||
		!seq.ReadASN1(&salt, cryptobyte_asn1.OCTET_STRING) ||
		!seq.ReadASN1Integer(&p.iter) || !seq.Empty() {
		return nil, structuralf("failed to read PKCS#12 PBE parameters")
	}
	if !validIterations(p.iter) {
		return nil, structuralf("invalid PBE iteration count %d", p.iter)
	}
	p.salt = salt
	return p, nil
}

// parsePBES2Params parses PBES2-params (RFC 8018 Appendix A.4).
func parsePBES2Params(params EncodedValue) (*pbeParams, error) {
	input := cryptobyte.String(params)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, structuralf("failed to read PBES2 parameters")
	}
	kdfAlg, err := parseAlgorithmIdentifier(&seq)
	if err != nil {
		return nil, err
	}
	encAlg, err := parseAlgorithmIdentifier(&seq)
	if err != nil {
		return nil, err
	}
	if !seq.Empty() {
		return nil, structuralf("trailing data in PBES2 parameters")
	}
	if !kdfAlg.Algorithm.Equal(OIDPBKDF2) {
		return nil, fmt.Errorf("%w: PBES2 key derivation %v", ErrUnsupportedAlgorithm, OIDName(kdfAlg.Algorithm))
	}

	p := &pbeParams{newCipher: aes.NewCipher, blockSize: aes.BlockSize}
	switch {
	case encAlg.Algorithm.Equal(OIDAes128CBC):
		p.keyLen = 16
	case encAlg.Algorithm.Equal(OIDAes192CBC):
		p.keyLen = 24
	case encAlg.Algorithm.Equal(OIDAes256CBC):
		p.keyLen = 32
	case encAlg.Algorithm.Equal(OIDDESEDE3CBC):
		p.newCipher, p.keyLen, p.blockSize = des.NewTripleDESCipher, 24, des.BlockSize
	default:
		return nil, fmt.Errorf("%w: PBES2 encryption scheme %v", ErrUnsupportedAlgorithm, OIDName(encAlg.Algorithm))
	}
	iv, ok := octetStringContents(encAlg.Parameters)
	if !ok {
		return nil, structuralf("failed to read IV of %v", OIDName(encAlg.Algorithm))
	}
	p.iv = iv

	// PBKDF2-params ::= SEQUENCE {
	//   salt CHOICE { specified OCTET STRING, otherSource AlgorithmIdentifier },
	//   iterationCount INTEGER,
	//   keyLength INTEGER OPTIONAL,
	//   prf AlgorithmIdentifier DEFAULT hmacWithSHA1
	// }
	kdfInput := cryptobyte.String(kdfAlg.Parameters)
	var kdfSeq, salt cryptobyte.String
	if !kdfInput.ReadASN1(&kdfSeq, cryptobyte_asn1.SEQUENCE) || !kdfInput.Empty() {
		return nil, structuralf("failed to read PBKDF2 parameters")
	}
	if !kdfSeq.ReadASN1(&salt, cryptobyte_asn1.OCTET_STRING) {
		return nil, fmt.Errorf("%w: PBKDF2 salt source other than specified", ErrUnsupportedAlgorithm)
	}
	p.salt = salt
	if !kdfSeq.ReadASN1Integer(&p.iter) {
		return nil, structuralf("failed to read PBKDF2 iteration count")
	}
	if !validIterations(p.iter) {
		return nil, structuralf("invalid PBKDF2 iteration count %d", p.iter)
	}
	if kdfSeq.PeekASN1Tag(cryptobyte_asn1.INTEGER) {
		var keyLen int
		if !kdfSeq.ReadASN1Integer(&keyLen) {
			return nil, structuralf("failed to read PBKDF2 key length")
		}
		if keyLen != p.keyLen {
			return nil, structuralf("PBKDF2 key length %d does not match %v", keyLen, OIDName(encAlg.Algorithm))
		}
	}
	p.prf = kdf.SHA1
	if !kdfSeq.Empty() {
		prfAlg, err := parseAlgorithmIdentifier(&kdfSeq)
		if err != nil {
			return nil, err
		}
		h, ok := kdf.HashForHMACOID(prfAlg.Algorithm)
		if !ok {
			return nil, fmt.Errorf("%w: PBKDF2 PRF %v", ErrUnsupportedAlgorithm, OIDName(prfAlg.Algorithm))
		}
		p.prf = h
	}
	if !kdfSeq.Empty() {
		return nil, structuralf("trailing data in PBKDF2 parameters")
	}
	return p, nil
}

// deriveKeyIV derives the cipher key and, for PKCS#12 PBE, the IV.
func (p *pbeParams) deriveKeyIV(password []byte) (key, iv []byte, err error) {
	if !p.pkcs12 {
		return pbkdf2.Key(password, p.salt, p.iter, p.keyLen, p.prf.New), p.iv, nil
	}

	var bmp []byte
	if !p.emptyAsZeroLength {
		if bmp, err = kdf.EncodePasswordBytes(password); err != nil {
			return nil, nil, structuralf("password: %v", err)
		}
		defer kdf.Wipe(bmp)
	}

	if p.twoKey {
		k, err := kdf.Derive(p.prf, kdf.Key, bmp, p.salt, p.iter, 16)
		if err != nil {
			return nil, nil, structuralf("%v", err)
		}
		// K1 || K2 || K1
		key = make([]byte, 24)
		copy(key, k)
		copy(key[16:], k[:8])
		kdf.Wipe(k)
	} else if key, err = kdf.Derive(p.prf, kdf.Key, bmp, p.salt, p.iter, p.keyLen); err != nil {
		return nil, nil, structuralf("%v", err)
	}
	if iv, err = kdf.Derive(p.prf, kdf.IV, bmp, p.salt, p.iter, p.blockSize); err != nil {
		kdf.Wipe(key)
		return nil, nil, structuralf("%v", err)
	}
	return key, iv, nil
}

// crypt runs CBC with PKCS#7 padding in either direction. Every
// decryption failure is reported as the bare ErrDecryption.
func (p *pbeParams) crypt(password, in []byte, encrypt bool) ([]byte, error) {
	key, iv, err := p.deriveKeyIV(password)
	if err != nil {
		return nil, err
	}
	defer kdf.Wipe(key)
	if p.pkcs12 {
		defer kdf.Wipe(iv)
	}

	block, err := p.newCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, err)
	}
	if len(iv) != block.BlockSize() {
		return nil, structuralf("IV is %d bytes, cipher block is %d", len(iv), block.BlockSize())
	}

	if encrypt {
		out := pad(in, block.BlockSize())
		cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, out)
		return out, nil
	}

	if len(in) == 0 || len(in)%block.BlockSize() != 0 {
		return nil, ErrDecryption
	}
	out := make([]byte, len(in))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, in)
	n, ok := unpad(out, block.BlockSize())
	if !ok {
		kdf.Wipe(out)
		return nil, ErrDecryption
	}
	return out[:n], nil
}

func pad(in []byte, blockSize int) []byte {
	n := blockSize - len(in)%blockSize
	out := make([]byte, len(in)+n)
	copy(out, in)
	for i := len(in); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// unpad checks PKCS#7 padding over the whole last block without branching
// on its contents and returns the unpadded length.
func unpad(b []byte, blockSize int) (int, bool) {
	n := int(b[len(b)-1])
	good := subtle.ConstantTimeLessOrEq(1, n) & subtle.ConstantTimeLessOrEq(n, blockSize)
	last := b[len(b)-blockSize:]
	for i := range last {
		// Byte i of the last block is padding iff blockSize-i <= n.
		isPad := subtle.ConstantTimeLessOrEq(blockSize-i, n)
		eq := subtle.ConstantTimeByteEq(last[i], byte(n))
		good &= subtle.ConstantTimeSelect(isPad, eq, 1)
	}
	if good != 1 {
		return 0, false
	}
	return len(b) - n, true
}

// PBES2Options selects the parameters of a new PBES2 algorithm identifier.
type PBES2Options struct {
	// Cipher OID (default: AES-256-CBC)
	Cipher asn1.ObjectIdentifier
	// PBKDF2 PRF OID (default: HMAC-SHA256)
	PRF asn1.ObjectIdentifier
	// PBKDF2 iterations (default: 2048)
	Iterations int
	// Salt length in bytes (default: 16)
	SaltLength int
}

// NewPBES2Algorithm returns a PBES2 AlgorithmIdentifier with fresh salt and
// IV read from rand.
func NewPBES2Algorithm(rand io.Reader, opts PBES2Options) (AlgorithmIdentifier, error) {
	if opts.Cipher == nil {
		opts.Cipher = OIDAes256CBC
	}
	if opts.PRF == nil {
		opts.PRF = OIDHMACSHA256
	}
	if opts.Iterations == 0 {
		opts.Iterations = defaultMacIterations
	}
	if opts.SaltLength == 0 {
		opts.SaltLength = defaultSaltLength
	}
	if opts.Iterations < 1 {
		return AlgorithmIdentifier{}, structuralf("invalid PBKDF2 iteration count %d", opts.Iterations)
	}

	ivLen := aes.BlockSize
	switch {
	case opts.Cipher.Equal(OIDAes128CBC), opts.Cipher.Equal(OIDAes192CBC), opts.Cipher.Equal(OIDAes256CBC):
	case opts.Cipher.Equal(OIDDESEDE3CBC):
		ivLen = des.BlockSize
	default:
		return AlgorithmIdentifier{}, fmt.Errorf("%w: PBES2 encryption scheme %v", ErrUnsupportedAlgorithm, OIDName(opts.Cipher))
	}
	if _, ok := kdf.HashForHMACOID(opts.PRF); !ok {
		return AlgorithmIdentifier{}, fmt.Errorf("%w: PBKDF2 PRF %v", ErrUnsupportedAlgorithm, OIDName(opts.PRF))
	}

	salt := make([]byte, opts.SaltLength)
	iv := make([]byte, ivLen)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("failed to generate salt: %w", err)
	}
	if _, err := io.ReadFull(rand, iv); err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("failed to generate IV: %w", err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(OIDPBKDF2)
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1OctetString(salt)
				b.AddASN1Int64(int64(opts.Iterations))
				if !opts.PRF.Equal(OIDHMACSHA1) {
					AlgorithmIdentifier{Algorithm: opts.PRF, Parameters: asn1NULL}.marshal(b)
				}
			})
		})
		AlgorithmIdentifier{Algorithm: opts.Cipher, Parameters: encodeOctetString(iv)}.marshal(b)
	})
	params, err := b.Bytes()
	if err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	return AlgorithmIdentifier{Algorithm: OIDPBES2, Parameters: params}, nil
}

// NewPKCS12PBEAlgorithm returns an AlgorithmIdentifier for one of the
// PKCS#12 3DES PBE schemes with a fresh salt read from rand.
func NewPKCS12PBEAlgorithm(rand io.Reader, oid asn1.ObjectIdentifier, iterations, saltLen int) (AlgorithmIdentifier, error) {
	if !oid.Equal(OIDPBEWithSHAAnd3KeyTripleDESCBC) && !oid.Equal(OIDPBEWithSHAAnd2KeyTripleDESCBC) {
		return AlgorithmIdentifier{}, fmt.Errorf("%w: %v", ErrUnsupportedAlgorithm, OIDName(oid))
	}
	if iterations < 1 {
		return AlgorithmIdentifier{}, structuralf("invalid PBE iteration count %d", iterations)
	}
	if saltLen == 0 {
		saltLen = 8
	}
	salt := make([]byte, saltLen)
	if _, err := io.ReadFull(rand, salt); err != nil {
		return AlgorithmIdentifier{}, fmt.Errorf("failed to generate salt: %w", err)
	}

	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1OctetString(salt)
		b.AddASN1Int64(int64(iterations))
	})
	return AlgorithmIdentifier{Algorithm: oid, Parameters: b.BytesOrPanic()}, nil
}
