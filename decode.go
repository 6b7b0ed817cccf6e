package pfx

import (
	"errors"
	"fmt"

	"github.com/gematik/zero-lab/go/pfx/kdf"
)

// DecodeOptions configures DecodeBags.
type DecodeOptions struct {
	// Decrypter for encryptedData contents and shrouded keys
	// (default: PasswordCipher)
	Decrypter Decrypter

	// Maximum SafeContentsBag nesting (default: DefaultMaxNestingDepth)
	MaxNestingDepth int

	// Fail on containers without MacData instead of skipping verification
	RequireMAC bool

	// Highest MAC or PBE iteration count accepted before any key is
	// derived (default: DefaultMaxIterations)
	MaxIterations int
}

// DefaultMaxIterations bounds the iteration counts DecodeBags accepts.
const DefaultMaxIterations = 10_000_000

// DefaultDecodeOptions returns the options used when nil is passed:
// built-in ciphers, default nesting depth, MAC required.
func DefaultDecodeOptions() *DecodeOptions {
	return &DecodeOptions{
		Decrypter:       PasswordCipher{},
		MaxNestingDepth: DefaultMaxNestingDepth,
		RequireMAC:      true,
		MaxIterations:   DefaultMaxIterations,
	}
}

func (o *DecodeOptions) withDefaults() DecodeOptions {
	if o == nil {
		return *DefaultDecodeOptions()
	}
	out := *o
	if out.Decrypter == nil {
		out.Decrypter = PasswordCipher{}
	}
	if out.MaxNestingDepth == 0 {
		out.MaxNestingDepth = DefaultMaxNestingDepth
	}
	if out.MaxIterations == 0 {
		out.MaxIterations = DefaultMaxIterations
	}
	return out
}

// DecodedBag is a leaf SafeBag of a decoded container.
type DecodedBag struct {
	SafeBag

	// PrivateKey is the plaintext PKCS#8 PrivateKeyInfo of a KeyBag or a
	// decrypted ShroudedKeyBag. It is owned by the Contents and wiped by
	// Contents.Wipe.
	PrivateKey []byte

	// ContentInfo is the index of the AuthenticatedSafe entry the bag
	// came from.
	ContentInfo int

	// Path is the bag's index path, outermost SafeContents first.
	Path []int
}

// Contents is the result of DecodeBags.
type Contents struct {
	PFX  *PFX
	Bags []DecodedBag

	// plaintext of decrypted encryptedData contents; bags alias it
	decrypted [][]byte
}

// Wipe zeroes all private keys and decrypted contents. Bags decoded from
// encrypted contents must not be used afterwards.
func (c *Contents) Wipe() {
	if c == nil {
		return
	}
	for _, b := range c.Bags {
		kdf.Wipe(b.PrivateKey)
	}
	for _, d := range c.decrypted {
		kdf.Wipe(d)
	}
}

// DecodeBags parses data, verifies the MAC, decrypts all encrypted
// contents and shrouded keys, and returns the leaf bags in encoded order.
// SafeContentsBags are descended into and not returned themselves.
//
// Decoding is total: on error no partial result is returned and every
// buffer holding decrypted material has been wiped.
func DecodeBags(data, password []byte, opts *DecodeOptions) (*Contents, error) {
	p, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return p.DecodeBags(password, opts)
}

// DecodeBags is DecodeBags for an already parsed PFX.
func (p *PFX) DecodeBags(password []byte, opts *DecodeOptions) (*Contents, error) {
	o := opts.withDefaults()

	if p.MacData != nil && p.MacData.Iterations > o.MaxIterations {
		return nil, fmt.Errorf("%w: MAC iteration count %d exceeds %d", ErrUnsupportedAlgorithm, p.MacData.Iterations, o.MaxIterations)
	}
	if p.MacData != nil || o.RequireMAC {
		if err := VerifyMAC(p, password); err != nil {
			return nil, err
		}
	}

	as, err := p.AuthenticatedSafe()
	if err != nil {
		return nil, err
	}

	c := &Contents{PFX: p}
	if err := c.decode(as, password, &o); err != nil {
		c.Wipe()
		return nil, err
	}
	return c, nil
}

func (c *Contents) decode(as *AuthenticatedSafe, password []byte, o *DecodeOptions) error {
	for i, ci := range as.ContentInfos {
		sc, err := c.safeContents(ci, password, o)
		if err != nil {
			return atContentInfo(i, err)
		}
		if err := c.collect(sc, i, nil, password, o); err != nil {
			return atContentInfo(i, err)
		}
	}
	return nil
}

// safeContents returns the SafeContents carried by ci, decrypting it if
// needed.
func (c *Contents) safeContents(ci ContentInfo, password []byte, o *DecodeOptions) (*SafeContents, error) {
	switch {
	case ci.ContentType.Equal(OIDData):
		payload, err := ci.Data()
		if err != nil {
			return nil, err
		}
		return parseSafeContents(payload, 0, o.MaxNestingDepth)
	case ci.ContentType.Equal(OIDEncryptedData):
		ed, err := ci.EncryptedData()
		if err != nil {
			return nil, err
		}
		if len(ed.EncryptedContent) == 0 {
			return nil, structuralf("encryptedData without encryptedContent")
		}
		var sc *SafeContents
		plaintext, err := decrypt(o, ed.Algorithm, password, ed.EncryptedContent, func(b []byte) error {
			parsed, err := parseSafeContents(b, 0, o.MaxNestingDepth)
			switch {
			case err == nil:
				sc = parsed
				return nil
			case errors.Is(err, errNestingLimit):
				return err
			}
			// Garbage from a wrong key that happened to unpad.
			return ErrDecryption
		})
		if err != nil {
			return nil, err
		}
		c.decrypted = append(c.decrypted, plaintext)
		return sc, nil
	}
	return nil, fmt.Errorf("%w: content type %v", ErrUnsupportedAlgorithm, OIDName(ci.ContentType))
}

// decrypt runs the configured Decrypter and passes the plaintext through
// accept. The built-in cipher applies accept to every candidate password
// encoding.
func decrypt(o *DecodeOptions, alg AlgorithmIdentifier, password, ciphertext []byte, accept func([]byte) error) ([]byte, error) {
	if err := checkIterations(alg, o.MaxIterations); err != nil {
		return nil, err
	}
	dec := o.Decrypter
	switch pc := dec.(type) {
	case PasswordCipher:
		return pc.decrypt(alg, password, ciphertext, accept)
	case *PasswordCipher:
		return PasswordCipher{}.decrypt(alg, password, ciphertext, accept)
	}
	plaintext, err := dec.Decrypt(alg, password, ciphertext)
	if err != nil {
		return nil, err
	}
	if err := accept(plaintext); err != nil {
		kdf.Wipe(plaintext)
		return nil, err
	}
	return plaintext, nil
}

// checkIterations refuses built-in schemes whose iteration count exceeds
// max. Algorithms it cannot parse are left to the Decrypter.
func checkIterations(alg AlgorithmIdentifier, max int) error {
	params, err := parsePBEParams(alg)
	if err != nil {
		return nil
	}
	if params.iter > max {
		return fmt.Errorf("%w: iteration count %d exceeds %d", ErrUnsupportedAlgorithm, params.iter, max)
	}
	return nil
}

func acceptPrivateKeyInfo(b []byte) error {
	if checkSequence(b, "decrypted PrivateKeyInfo") != nil {
		return ErrDecryption
	}
	return nil
}

func (c *Contents) collect(sc *SafeContents, ci int, path []int, password []byte, o *DecodeOptions) error {
	for i, bag := range sc.Bags {
		bagPath := append(append([]int(nil), path...), i)

		switch v := bag.Value.(type) {
		case *SafeContentsBag:
			if err := c.collect(v.Contents, ci, bagPath, password, o); err != nil {
				return err
			}
			continue

		case *KeyBag:
			key := make([]byte, len(v.PrivateKeyInfo))
			copy(key, v.PrivateKeyInfo)
			c.Bags = append(c.Bags, DecodedBag{SafeBag: bag, PrivateKey: key, ContentInfo: ci, Path: bagPath})

		case *ShroudedKeyBag:
			key, err := decrypt(o, v.Algorithm, password, v.EncryptedData, acceptPrivateKeyInfo)
			if err != nil {
				return &LocationError{ContentInfo: -1, Bag: bagPath, Err: err}
			}
			c.Bags = append(c.Bags, DecodedBag{SafeBag: bag, PrivateKey: key, ContentInfo: ci, Path: bagPath})

		default:
			c.Bags = append(c.Bags, DecodedBag{SafeBag: bag, ContentInfo: ci, Path: bagPath})
		}
	}
	return nil
}
