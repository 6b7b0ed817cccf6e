// Package kdf implements the PKCS#12 password based key derivation function
// from RFC 7292, Appendix B.2.
//
// The function derives key, IV or MAC-key material of arbitrary length from
// a password, a salt and an iteration count, parameterized by a hash
// primitive. Passwords are expected in the PKCS#12 form: UTF-16BE code units
// followed by a NUL pair, as produced by EncodePassword.
//
// All intermediate buffers that hold password-derived data are wiped before
// Derive returns.
package kdf

import (
	"errors"
	"fmt"
	"hash"
)

// Purpose is the diversifier ID of RFC 7292 Appendix B.3.
type Purpose byte

const (
	Key Purpose = 1
	IV  Purpose = 2
	MAC Purpose = 3
)

func (p Purpose) String() string {
	switch p {
	case Key:
		return "key"
	case IV:
		return "iv"
	case MAC:
		return "mac"
	default:
		return fmt.Sprintf("purpose(%d)", byte(p))
	}
}

// ParsePurpose parses the names returned by Purpose.String.
func ParsePurpose(s string) (Purpose, error) {
	switch s {
	case "key":
		return Key, nil
	case "iv":
		return IV, nil
	case "mac":
		return MAC, nil
	}
	return 0, fmt.Errorf("%w: unknown purpose %q", ErrInvalidParameter, s)
}

var ErrInvalidParameter = errors.New("kdf: invalid parameter")

// Derive returns size bytes of material for the given purpose.
//
// password must already be in PKCS#12 form (see EncodePassword); a
// zero-length password and a zero-length salt are both valid and simply
// contribute no blocks to I. iterations must be at least 1.
func Derive(h Hash, purpose Purpose, password, salt []byte, iterations, size int) ([]byte, error) {
	if err := checkParams(h, purpose, iterations, size); err != nil {
		return nil, err
	}
	out := make([]byte, size)
	derive(h.New, purpose, password, salt, iterations, out)
	return out, nil
}

func checkParams(h Hash, purpose Purpose, iterations, size int) error {
	if !h.valid() {
		return fmt.Errorf("%w: no hash function", ErrInvalidParameter)
	}
	switch purpose {
	case Key, IV, MAC:
	default:
		return fmt.Errorf("%w: %v", ErrInvalidParameter, purpose)
	}
	if iterations < 1 {
		return fmt.Errorf("%w: iteration count %d", ErrInvalidParameter, iterations)
	}
	if size < 0 {
		return fmt.Errorf("%w: output size %d", ErrInvalidParameter, size)
	}
	return nil
}

func derive(newHash func() hash.Hash, id Purpose, password, salt []byte, iterations int, out []byte) {
	hf := newHash()
	u := hf.Size()
	v := hf.BlockSize()

	// Step 1: D is v copies of the ID byte.
	d := make([]byte, v)
	for i := range d {
		d[i] = byte(id)
	}

	// Steps 2-4: I = S || P, each padded by repetition to a multiple of v.
	sLen := roundUp(len(salt), v)
	pLen := roundUp(len(password), v)
	in := make([]byte, sLen+pLen)
	defer Wipe(in)
	fillRepeated(in[:sLen], salt)
	fillRepeated(in[sLen:], password)

	a := make([]byte, 0, u)
	defer func() { Wipe(a[:cap(a)]) }()
	b := make([]byte, v)
	defer Wipe(b)

	// Step 6: c = ceil(size/u) rounds.
	for n := 0; n < len(out); n += u {
		hf.Reset()
		hf.Write(d)
		hf.Write(in)
		a = hf.Sum(a[:0])
		for j := 1; j < iterations; j++ {
			hf.Reset()
			hf.Write(a)
			a = hf.Sum(a[:0])
		}
		copy(out[n:], a)

		if n+u >= len(out) {
			break
		}

		// Step 6B: B is A repeated to v bytes.
		for j := range b {
			b[j] = a[j%u]
		}
		// Step 6C: I_j = (I_j + B + 1) mod 2^(8v) for every v-byte block.
		for j := 0; j < len(in); j += v {
			addOneWithCarry(in[j:j+v], b)
		}
	}
}

// addOneWithCarry sets block = block + b + 1, treating both as big-endian
// unsigned integers of len(block) bytes. The carry out of the top byte is
// dropped.
func addOneWithCarry(block, b []byte) {
	carry := uint16(1)
	for k := len(block) - 1; k >= 0; k-- {
		sum := uint16(block[k]) + uint16(b[k]) + carry
		block[k] = byte(sum)
		carry = sum >> 8
	}
}

func roundUp(n, v int) int {
	return v * ((n + v - 1) / v)
}

func fillRepeated(dst, pattern []byte) {
	if len(pattern) == 0 {
		return
	}
	for i := range dst {
		dst[i] = pattern[i%len(pattern)]
	}
}
