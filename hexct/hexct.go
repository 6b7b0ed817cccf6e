// Package hexct implements Base16 (RFC 4648 hex) encoding and decoding
// without data-dependent branches or lookup tables.
//
// It is used wherever secret or secret-adjacent bytes (MAC digests, derived
// keys, salts, local key ids) are rendered or parsed. Running time depends on
// the length of the input only, never on its contents.
//
// Lower and upper case alphabets are separate; DecodeMixed accepts both.
package hexct

import "errors"

var (
	// ErrInvalidEncoding is returned when the input contains a byte outside
	// the selected alphabet.
	ErrInvalidEncoding = errors.New("hexct: invalid Base16 encoding")
	// ErrInvalidLength is returned for odd-length input or an output buffer
	// that is too small.
	ErrInvalidLength = errors.New("hexct: invalid Base16 length")
)

// EncodedLen returns the length of the encoding of n source bytes.
func EncodedLen(n int) int { return n * 2 }

// DecodedLen returns the number of bytes encoded by n hex characters.
func DecodedLen(n int) (int, error) {
	if n&1 != 0 {
		return 0, ErrInvalidLength
	}
	return n / 2, nil
}

// EncodeLower writes the lower case encoding of src into dst and returns the
// written prefix of dst.
func EncodeLower(dst, src []byte) ([]byte, error) {
	return encode(dst, src, encodeNibbleLower)
}

// EncodeUpper is EncodeLower with the upper case alphabet.
func EncodeUpper(dst, src []byte) ([]byte, error) {
	return encode(dst, src, encodeNibbleUpper)
}

// EncodeLowerToString returns the lower case encoding of src.
func EncodeLowerToString(src []byte) string {
	dst := make([]byte, EncodedLen(len(src)))
	out, _ := EncodeLower(dst, src)
	return string(out)
}

// EncodeUpperToString returns the upper case encoding of src.
func EncodeUpperToString(src []byte) string {
	dst := make([]byte, EncodedLen(len(src)))
	out, _ := EncodeUpper(dst, src)
	return string(out)
}

// DecodeLower decodes lower case hex from src into dst and returns the
// written prefix of dst. Upper case letters are rejected.
func DecodeLower(dst, src []byte) ([]byte, error) {
	return decode(dst, src, decodeNibbleLower)
}

// DecodeUpper decodes upper case hex. Lower case letters are rejected.
func DecodeUpper(dst, src []byte) ([]byte, error) {
	return decode(dst, src, decodeNibbleUpper)
}

// DecodeMixed decodes hex in either case, including mixed case input.
func DecodeMixed(dst, src []byte) ([]byte, error) {
	return decode(dst, src, decodeNibbleMixed)
}

// DecodeString decodes s in either case into a freshly allocated slice.
func DecodeString(s string) ([]byte, error) {
	n, err := DecodedLen(len(s))
	if err != nil {
		return nil, err
	}
	return DecodeMixed(make([]byte, n), []byte(s))
}

func encode(dst, src []byte, encodeNibble func(byte) byte) ([]byte, error) {
	n := EncodedLen(len(src))
	if len(dst) < n {
		return nil, ErrInvalidLength
	}
	dst = dst[:n]
	for i, b := range src {
		dst[2*i] = encodeNibble(b >> 4)
		dst[2*i+1] = encodeNibble(b & 0x0f)
	}
	return dst, nil
}

func decode(dst, src []byte, decodeNibble func(byte) uint16) ([]byte, error) {
	n, err := DecodedLen(len(src))
	if err != nil {
		return nil, err
	}
	if len(dst) < n {
		return nil, ErrInvalidLength
	}
	dst = dst[:n]

	// An invalid nibble decodes to 0xffff, which sets bits above the low
	// byte whichever half of the pair it is in.
	var bad uint16
	for i := range dst {
		v := decodeNibble(src[2*i])<<4 | decodeNibble(src[2*i+1])
		bad |= v >> 8
		dst[i] = byte(v)
	}
	if bad != 0 {
		clear(dst)
		return nil, ErrInvalidEncoding
	}
	return dst, nil
}

// encodeNibble maps 0..9 to '0'..'9' and 10..15 to alpha..alpha+5.
func encodeNibble(n byte, alpha int16) byte {
	r := int16(n) + 0x30
	// (0x39 - r) is negative exactly when r is past '9'.
	r += ((0x39 - r) >> 8) & (alpha - 0x3a)
	return byte(r)
}

func encodeNibbleLower(n byte) byte { return encodeNibble(n, 'a') }

func encodeNibbleUpper(n byte) byte { return encodeNibble(n, 'A') }

// rangeValue returns c-lo+offset+1 if lo <= c <= hi and 0 otherwise.
func rangeValue(c, lo, hi, offset int16) int16 {
	return (((lo - 1 - c) & (c - hi - 1)) >> 8) & (c - lo + offset + 1)
}

func decodeNibbleLower(c byte) uint16 {
	b := int16(c)
	r := int16(-1)
	r += rangeValue(b, '0', '9', 0)
	r += rangeValue(b, 'a', 'f', 10)
	return uint16(r)
}

func decodeNibbleUpper(c byte) uint16 {
	b := int16(c)
	r := int16(-1)
	r += rangeValue(b, '0', '9', 0)
	r += rangeValue(b, 'A', 'F', 10)
	return uint16(r)
}

func decodeNibbleMixed(c byte) uint16 {
	b := int16(c)
	r := int16(-1)
	r += rangeValue(b, '0', '9', 0)
	r += rangeValue(b, 'a', 'f', 10)
	r += rangeValue(b, 'A', 'F', 10)
	return uint16(r)
}
