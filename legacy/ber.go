// Package legacy converts BER-encoded (legacy) PKCS#12 files to DER.
//
// The pfx package requires DER as mandated by RFC 7292. Many files written
// by older tools and smart card vendors use BER indefinite-length encoding
// or constructed OCTET STRINGs instead. This package detects such files and
// re-encodes them with OpenSSL.
package legacy

// IsBER reports whether data contains an encoding DER forbids anywhere in
// its element tree: an indefinite length or a constructed OCTET STRING.
// Malformed input is not BER either, it reports false.
func IsBER(data []byte) bool {
	ber, _ := walk(data, 0)
	return ber
}

const maxDepth = 64

// walk scans the elements of data. It returns whether a BER-only encoding
// was found and whether the walk could read the input at all.
func walk(data []byte, depth int) (ber, ok bool) {
	if depth > maxDepth {
		return false, false
	}
	for len(data) > 0 {
		tag, constructed, hdr, ok := readTag(data)
		if !ok {
			return false, false
		}
		if len(data) <= hdr {
			return false, false
		}
		l := data[hdr]
		hdr++
		if l == 0x80 {
			return constructed, constructed
		}
		if constructed && tag == 0x04 {
			return true, true
		}

		var length int
		if l < 0x80 {
			length = int(l)
		} else {
			n := int(l & 0x7f)
			if n > 4 || len(data) < hdr+n {
				return false, false
			}
			for _, b := range data[hdr : hdr+n] {
				length = length<<8 | int(b)
			}
			hdr += n
		}
		if length < 0 || len(data)-hdr < length {
			return false, false
		}

		if constructed {
			if ber, ok := walk(data[hdr:hdr+length], depth+1); ber || !ok {
				return ber, ok
			}
		}
		data = data[hdr+length:]
	}
	return false, true
}

// readTag returns the tag number of a universal class tag (or 0xff for any
// other class), whether the element is constructed, and the header length
// consumed so far.
func readTag(data []byte) (tag int, constructed bool, n int, ok bool) {
	b := data[0]
	constructed = b&0x20 != 0
	tag = int(b & 0x1f)
	if b&0xc0 != 0 {
		tag = 0xff
	}
	n = 1
	if b&0x1f == 0x1f {
		// high tag number form
		for {
			if n >= len(data) || n > 5 {
				return 0, false, 0, false
			}
			more := data[n]&0x80 != 0
			n++
			if !more {
				break
			}
		}
		tag = 0xff
	}
	return tag, constructed, n, true
}
