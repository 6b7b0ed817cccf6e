package kdf

// Material is derived key material tagged with the purpose it was derived
// for. It must be wiped by the operation that requested it as soon as the
// material has been consumed.
type Material struct {
	purpose Purpose
	b       []byte
}

// DeriveMaterial is Derive returning a purpose-tagged buffer.
func DeriveMaterial(h Hash, purpose Purpose, password, salt []byte, iterations, size int) (*Material, error) {
	b, err := Derive(h, purpose, password, salt, iterations, size)
	if err != nil {
		return nil, err
	}
	return &Material{purpose: purpose, b: b}, nil
}

func (m *Material) Purpose() Purpose { return m.purpose }

// Bytes returns the underlying buffer. The slice is only valid until Wipe.
func (m *Material) Bytes() []byte { return m.b }

func (m *Material) Len() int { return len(m.b) }

// Wipe zeroes the material. It is safe to call on a nil Material and more
// than once.
func (m *Material) Wipe() {
	if m == nil {
		return
	}
	Wipe(m.b)
}

// Wipe overwrites b with zeros.
func Wipe(b []byte) {
	clear(b)
}
