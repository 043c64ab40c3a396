package mdict

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

// blockScanner is a cursor over an immutable byte buffer with a
// big-endian reader. It is the sole place that knows how to decode
// version-dependent fields (short/num widths) and text under
// the dictionary's encoding.
type blockScanner struct {
	buf     []byte
	pos     uint32
	profile scannerProfile
}

func newBlockScanner(buf []byte, profile scannerProfile) *blockScanner {
	return &blockScanner{buf: buf, profile: profile}
}

func (s *blockScanner) position() uint32 { return s.pos }

func (s *blockScanner) seek(absolute uint32) { s.pos = absolute }

func (s *blockScanner) advance(n uint32) { s.pos += n }

func (s *blockScanner) remaining() uint32 {
	if s.pos >= uint32(len(s.buf)) {
		return 0
	}
	return uint32(len(s.buf)) - s.pos
}

func (s *blockScanner) ensure(n uint32) error {
	if s.remaining() < n {
		return fmt.Errorf("mdict: need %d bytes at offset %d, have %d: %w", n, s.pos, s.remaining(), ErrTruncated)
	}
	return nil
}

func (s *blockScanner) readU8() (byte, error) {
	if err := s.ensure(1); err != nil {
		return 0, err
	}
	b := s.buf[s.pos]
	s.pos++
	return b, nil
}

func (s *blockScanner) readU16BE() (uint16, error) {
	if err := s.ensure(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v, nil
}

func (s *blockScanner) readU32BE() (uint32, error) {
	if err := s.ensure(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(s.buf[s.pos:])
	s.pos += 4
	return v, nil
}

func (s *blockScanner) readU64BE() (uint64, error) {
	if err := s.ensure(8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(s.buf[s.pos:])
	s.pos += 8
	return v, nil
}

// readShort reads a u8 for v1, a big-endian u16 for v2.
func (s *blockScanner) readShort() (uint32, error) {
	if s.profile.shortSize == 1 {
		b, err := s.readU8()
		return uint32(b), err
	}
	v, err := s.readU16BE()
	return uint32(v), err
}

// readNum reads a 32-bit big-endian integer for v1; for v2, reads 64 bits
// but only the low 32 are returned — the high 32 must be zero or the file
// is rejected as exceeding 4 GiB.
func (s *blockScanner) readNum() (uint32, error) {
	if !s.profile.isV2 {
		return s.readU32BE()
	}
	v, err := s.readU64BE()
	if err != nil {
		return 0, err
	}
	if v>>32 != 0 {
		return 0, fmt.Errorf("mdict: 64-bit field has nonzero high word (file exceeds 4 GiB): %w", ErrTruncated)
	}
	return uint32(v), nil
}

// readSizedText reads units*bytesPerUnit bytes, decodes under the
// scanner's encoding, then advances an additional textTail bytes (the
// trailing NUL unit present on v2).
func (s *blockScanner) readSizedText(units uint32) (string, error) {
	n := units * s.profile.bytesPerUnit
	if err := s.ensure(n); err != nil {
		return "", err
	}
	raw := s.buf[s.pos : s.pos+n]
	s.pos += n
	if err := s.ensure(s.profile.textTail); err != nil {
		return "", err
	}
	s.pos += s.profile.textTail
	return decodeText(raw, s.profile.encoding)
}

// readNulText scans forward for a NUL terminator (one bytesPerUnit-wide
// zero for UTF-16, a zero byte otherwise), decodes up to it, and
// advances past the terminator.
func (s *blockScanner) readNulText() (string, error) {
	width := s.profile.bytesPerUnit
	start := s.pos
	i := s.pos
	for {
		if i+width > uint32(len(s.buf)) {
			return "", fmt.Errorf("mdict: NUL terminator not found from offset %d: %w", start, ErrTruncated)
		}
		isZero := true
		for k := uint32(0); k < width; k++ {
			if s.buf[i+k] != 0 {
				isZero = false
				break
			}
		}
		if isZero {
			break
		}
		i += width
	}
	raw := s.buf[start:i]
	s.pos = i + width
	return decodeText(raw, s.profile.encoding)
}

// readRaw returns a view of n bytes and advances.
func (s *blockScanner) readRaw(n uint32) ([]byte, error) {
	if err := s.ensure(n); err != nil {
		return nil, err
	}
	out := s.buf[s.pos : s.pos+n]
	s.pos += n
	return out, nil
}

func (s *blockScanner) skipChecksum() error {
	if err := s.ensure(4); err != nil {
		return err
	}
	s.pos += 4
	return nil
}

// readBlock is the compression/decryption unwrap. It reads a one-byte
// compression tag at the current position, then — for a compressed block
// — 3 zero bytes and a 4-byte checksum, decrypts and decompresses the
// following compSize-8 bytes, and returns a new scanner bound to the
// decompressed buffer. A raw (tag 0) v2 block still carries the full
// 8-byte header; a raw v1 block does not — only the 1-byte tag precedes
// the payload, so the cursor advances just past it. The outer cursor is
// left advanced past the compressed payload (i.e. past compSize bytes
// total from where readBlock started).
func (s *blockScanner) readBlock(compSize, decompSize uint32, dec *decryptor) (*blockScanner, error) {
	start := s.pos
	if err := s.ensure(compSize); err != nil {
		return nil, err
	}
	compType, err := s.readU8()
	if err != nil {
		return nil, err
	}

	if compType == 0 && !s.profile.isV2 {
		// v1 raw block: no zero padding or checksum, cursor sits just
		// past the 1-byte tag.
		raw := s.buf[s.pos : start+compSize]
		s.seek(start + compSize)
		return newBlockScanner(raw, s.profile), nil
	}

	// 3 zero bytes + 4-byte checksum.
	zero, err := s.readRaw(3)
	if err != nil {
		return nil, err
	}
	_ = zero
	checksumBytes, err := s.readRaw(4)
	if err != nil {
		return nil, err
	}

	if compType == 0 {
		// v2 raw block: cursor sits just past the 8-byte header; the
		// caller reads decompSize bytes directly from here.
		raw := s.buf[s.pos : start+compSize]
		s.seek(start + compSize)
		return newBlockScanner(raw, s.profile), nil
	}

	payload := s.buf[s.pos : start+compSize]
	s.seek(start + compSize)

	if dec != nil {
		key := make([]byte, 8)
		copy(key[:4], checksumBytes)
		key[4], key[5], key[6], key[7] = 0x95, 0x36, 0x00, 0x00
		payload = dec.decrypt(payload, key)
	}

	var out []byte
	switch compType {
	case 1:
		out, err = lzoDecompress(payload, decompSize)
	case 2:
		out, err = zlibDecompress(payload, decompSize)
	default:
		return nil, fmt.Errorf("mdict: compression tag %d: %w", compType, ErrBadCompressionTag)
	}
	if err != nil {
		return nil, err
	}
	return newBlockScanner(out, s.profile), nil
}

// decodeText decodes raw bytes under enc. UTF-16 is little-endian per the
// container format; GBK/BIG5 route through golang.org/x/text since those
// code pages are not in the standard library.
func decodeText(raw []byte, enc Encoding) (string, error) {
	switch enc {
	case EncodingUTF16:
		return decodeUTF16LE(raw)
	case EncodingGBK:
		out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("mdict: GBK decode: %w", err)
		}
		return string(out), nil
	case EncodingBig5:
		out, err := traditionalchinese.Big5.NewDecoder().Bytes(raw)
		if err != nil {
			return "", fmt.Errorf("mdict: BIG5 decode: %w", err)
		}
		return string(out), nil
	default:
		return string(raw), nil
	}
}

func decodeUTF16LE(raw []byte) (string, error) {
	if len(raw)%2 != 0 {
		return "", fmt.Errorf("mdict: odd-length UTF-16 buffer (%d bytes)", len(raw))
	}
	units := make([]uint16, len(raw)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(raw[2*i:])
	}
	return string(utf16.Decode(units)), nil
}
