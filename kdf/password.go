package kdf

import (
	"fmt"
	"unicode/utf16"
	"unicode/utf8"
)

// EncodePassword converts a UTF-8 password into the form the PKCS#12 KDF
// consumes: big-endian UTF-16 code units followed by two zero bytes. Code
// points outside the BMP are written as surrogate pairs. The empty password
// encodes to the NUL pair alone.
//
// The returned slice holds password material; callers wipe it when done.
func EncodePassword(password string) ([]byte, error) {
	return EncodePasswordBytes([]byte(password))
}

// EncodePasswordBytes is EncodePassword for a password held in a byte
// slice, so that callers never have to turn a secret into a string they
// cannot wipe themselves.
func EncodePasswordBytes(password []byte) ([]byte, error) {
	if !utf8.Valid(password) {
		return nil, fmt.Errorf("%w: password is not valid UTF-8", ErrInvalidParameter)
	}
	out := make([]byte, 0, 2*len(password)+2)
	for i := 0; i < len(password); {
		r, n := utf8.DecodeRune(password[i:])
		i += n
		if r1, r2 := utf16.EncodeRune(r); r1 != utf8.RuneError {
			out = append(out, byte(r1>>8), byte(r1), byte(r2>>8), byte(r2))
			continue
		}
		out = append(out, byte(r>>8), byte(r))
	}
	return append(out, 0, 0), nil
}
