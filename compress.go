package mdict

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	lzo "github.com/rasky/go-lzo"
)

// lzoMaxOutputSize is the maximum bound the format allows for one block's
// decompressed size, used for buffer allocation.
const lzoMaxOutputSize = 1_308_672

// lzoDecompress decompresses a raw LZO1x-framed block. expected is the
// decompressed size the caller already knows from the block index.
func lzoDecompress(payload []byte, expected uint32) ([]byte, error) {
	if expected > lzoMaxOutputSize {
		return nil, fmt.Errorf("mdict: LZO output size %d exceeds block cap %d: %w", expected, lzoMaxOutputSize, ErrDecompressionFailure)
	}
	out, err := lzo.Decompress1X(bytes.NewReader(payload), len(payload), int(expected))
	if err != nil {
		return nil, fmt.Errorf("mdict: LZO decompress (expected %d bytes): %w: %w", expected, err, ErrDecompressionFailure)
	}
	if uint32(len(out)) != expected {
		return nil, fmt.Errorf("mdict: LZO output size mismatch: expected %d, got %d: %w", expected, len(out), ErrDecompressionFailure)
	}
	return out, nil
}

// zlibDecompress decompresses a zlib-framed block. zlib self-describes
// its output length, but we still verify against the caller's expectation
// when one is supplied (expected == 0 means "unknown, trust the stream").
func zlibDecompress(payload []byte, expected uint32) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("mdict: zlib header: %w: %w", err, ErrDecompressionFailure)
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("mdict: zlib decompress: %w: %w", err, ErrDecompressionFailure)
	}
	if expected != 0 && uint32(len(out)) != expected {
		return nil, fmt.Errorf("mdict: zlib output size mismatch: expected %d, got %d: %w", expected, len(out), ErrDecompressionFailure)
	}
	return out, nil
}
