package mdict

import (
	ripemd128 "github.com/c0mm4nd/go-ripemd"
)

// decryptor implements the RIPEMD-128-keyed stream transform over the
// keyword-index block. It holds no state at all — each call derives its
// own permuted key.
type decryptor struct{}

func newDecryptor() *decryptor { return &decryptor{} }

// decrypt returns a new slice; the transform is logically in-place but we
// never hand back a view into the caller's buffer since payload here is
// always a slice of the scanner's backing array, which must stay
// immutable for re-reads.
func (d *decryptor) decrypt(payload []byte, key []byte) []byte {
	h := ripemd128.New128()
	h.Write(key)
	permuted := h.Sum(nil) // 16-byte digest

	out := make([]byte, len(payload))
	var prev byte = 0x36
	for i, b := range payload {
		b = (b >> 4) | ((b << 4) & 0xF0)
		b = b ^ prev ^ byte(i&0xFF) ^ permuted[i%16]
		prev = payload[i]
		out[i] = b
	}
	return out
}
