package pfx

import (
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// DefaultMaxNestingDepth bounds how many SafeContentsBag levels are
// followed when parsing.
const DefaultMaxNestingDepth = 8

// SafeContents is a sequence of SafeBags
type SafeContents struct {
	Bags []SafeBag
}

// ParseSafeContents parses a DER SafeContents, following at most
// DefaultMaxNestingDepth levels of nested SafeContentsBags.
func ParseSafeContents(der []byte) (*SafeContents, error) {
	return parseSafeContents(der, 0, DefaultMaxNestingDepth)
}

func parseSafeContents(der []byte, depth, maxDepth int) (*SafeContents, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, structuralf("failed to read SafeContents SEQUENCE")
	}

	sc := &SafeContents{}
	for i := 0; !seq.Empty(); i++ {
		bag, err := parseSafeBag(&seq, depth, maxDepth)
		if err != nil {
			return nil, atBag(i, err)
		}
		sc.Bags = append(sc.Bags, bag)
	}
	return sc, nil
}

// Marshal returns the DER encoding of sc.
func (sc *SafeContents) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	if err := sc.marshal(&b); err != nil {
		return nil, err
	}
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	return der, nil
}

func (sc *SafeContents) marshal(b *cryptobyte.Builder) error {
	var err error
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for i, bag := range sc.Bags {
			if e := marshalSafeBag(b, bag); e != nil {
				err = atBag(i, e)
				return
			}
		}
	})
	return err
}

// ContentInfo is a PKCS#7 ContentInfo. Content is the element inside the
// [0] EXPLICIT wrapper; an empty Content means the field is absent.
type ContentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     EncodedValue
}

// NewDataContentInfo returns a data ContentInfo carrying payload.
func NewDataContentInfo(payload []byte) ContentInfo {
	return ContentInfo{ContentType: OIDData, Content: encodeOctetString(payload)}
}

// Data returns the payload of a data ContentInfo without copying.
func (ci ContentInfo) Data() ([]byte, error) {
	if !ci.ContentType.Equal(OIDData) {
		return nil, structuralf("content type %v is not data", OIDName(ci.ContentType))
	}
	payload, ok := octetStringContents(ci.Content)
	if !ok {
		return nil, structuralf("data content is not an OCTET STRING")
	}
	return payload, nil
}

// EncryptedData parses the content of an encryptedData ContentInfo.
func (ci ContentInfo) EncryptedData() (*EncryptedData, error) {
	if !ci.ContentType.Equal(OIDEncryptedData) {
		return nil, structuralf("content type %v is not encryptedData", OIDName(ci.ContentType))
	}
	return parseEncryptedData(ci.Content)
}

func parseContentInfo(s *cryptobyte.String) (ContentInfo, error) {
	var ci ContentInfo
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return ci, structuralf("failed to read ContentInfo SEQUENCE")
	}
	if !seq.ReadASN1ObjectIdentifier(&ci.ContentType) {
		return ci, structuralf("failed to read contentType")
	}

	// content [0] EXPLICIT ANY DEFINED BY contentType OPTIONAL
	var explicit cryptobyte.String
	var present bool
	if !seq.ReadOptionalASN1(&explicit, &present, cryptobyte_asn1.Tag(0).ContextSpecific().Constructed()) || !seq.Empty() {
		return ci, structuralf("failed to read content of %v", OIDName(ci.ContentType))
	}
	if present {
		content, ok := readEncodedValue(&explicit)
		if !ok || !explicit.Empty() {
			return ci, structuralf("content of %v is not a single element", OIDName(ci.ContentType))
		}
		ci.Content = content
	}
	return ci, nil
}

func (ci ContentInfo) marshal(b *cryptobyte.Builder) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(ci.ContentType)
		if !ci.Content.IsEmpty() {
			b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				b.AddBytes(ci.Content)
			})
		}
	})
}

// EncryptedData is a CMS EncryptedData (RFC 5652 Section 8) whose
// encryptedContentInfo is inlined. An empty EncryptedContent is absent
// unless it was parsed as present.
type EncryptedData struct {
	Version          int
	ContentType      asn1.ObjectIdentifier
	Algorithm        AlgorithmIdentifier
	EncryptedContent []byte
	UnprotectedAttrs EncodedValue

	// emptyContentPresent records an encryptedContent [0] of zero length
	// so that it survives re-encoding.
	emptyContentPresent bool
}

var (
	tagEncryptedContent = cryptobyte_asn1.Tag(0).ContextSpecific()
	tagUnprotectedAttrs = cryptobyte_asn1.Tag(1).ContextSpecific().Constructed()
)

func parseEncryptedData(content EncodedValue) (*EncryptedData, error) {
	input := cryptobyte.String(content)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, structuralf("failed to read EncryptedData SEQUENCE")
	}

	ed := &EncryptedData{}
	if !seq.ReadASN1Integer(&ed.Version) {
		return nil, structuralf("failed to read EncryptedData version")
	}
	if ed.Version != 0 && ed.Version != 2 {
		return nil, structuralf("unsupported EncryptedData version %d", ed.Version)
	}

	var eci cryptobyte.String
	if !seq.ReadASN1(&eci, cryptobyte_asn1.SEQUENCE) {
		return nil, structuralf("failed to read EncryptedContentInfo")
	}
	if !eci.ReadASN1ObjectIdentifier(&ed.ContentType) {
		return nil, structuralf("failed to read EncryptedContentInfo contentType")
	}
	var err error
	if ed.Algorithm, err = parseAlgorithmIdentifier(&eci); err != nil {
		return nil, err
	}
	var encrypted cryptobyte.String
	var present bool
	if !eci.ReadOptionalASN1(&encrypted, &present, tagEncryptedContent) || !eci.Empty() {
		return nil, structuralf("failed to read encryptedContent")
	}
	ed.EncryptedContent = encrypted
	ed.emptyContentPresent = present && len(encrypted) == 0

	if !seq.Empty() {
		attrs, ok := readEncodedValue(&seq)
		if !ok || attrs.Tag() != tagUnprotectedAttrs || !seq.Empty() {
			return nil, structuralf("trailing data in EncryptedData")
		}
		ed.UnprotectedAttrs = attrs
	}
	return ed, nil
}

// ContentInfo wraps ed into an encryptedData ContentInfo.
func (ed *EncryptedData) ContentInfo() (ContentInfo, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1Int64(int64(ed.Version))
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(ed.ContentType)
			ed.Algorithm.marshal(b)
			if len(ed.EncryptedContent) > 0 || ed.emptyContentPresent {
				b.AddASN1(tagEncryptedContent, func(b *cryptobyte.Builder) {
					b.AddBytes(ed.EncryptedContent)
				})
			}
		})
		b.AddBytes(ed.UnprotectedAttrs)
	})
	der, err := b.Bytes()
	if err != nil {
		return ContentInfo{}, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	return ContentInfo{ContentType: OIDEncryptedData, Content: der}, nil
}

// AuthenticatedSafe contains the authenticated safe contents
type AuthenticatedSafe struct {
	ContentInfos []ContentInfo
}

// ParseAuthenticatedSafe parses a DER AuthenticatedSafe.
func ParseAuthenticatedSafe(der []byte) (*AuthenticatedSafe, error) {
	input := cryptobyte.String(der)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, structuralf("failed to read AuthenticatedSafe SEQUENCE")
	}

	as := &AuthenticatedSafe{}
	for i := 0; !seq.Empty(); i++ {
		ci, err := parseContentInfo(&seq)
		if err != nil {
			return nil, atContentInfo(i, err)
		}
		as.ContentInfos = append(as.ContentInfos, ci)
	}
	return as, nil
}

// Marshal returns the DER encoding of as.
func (as *AuthenticatedSafe) Marshal() ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		for _, ci := range as.ContentInfos {
			ci.marshal(b)
		}
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStructure, err)
	}
	return der, nil
}
