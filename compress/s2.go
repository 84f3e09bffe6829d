package compress

import (
	"fmt"

	"github.com/klauspost/compress/s2"
)

// s2Codec balances ratio and speed, a good default for caches that are hit
// often. Payloads are written once and decoded on every hit, so encoding uses
// the slower "better" mode.
type s2Codec struct{}

func (s2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return s2.EncodeBetter(nil, data), nil
}

func (s2Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	n, err := s2.DecodedLen(data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}
	if n > maxPayload {
		return nil, fmt.Errorf("s2 payload of %d bytes exceeds %d", n, maxPayload)
	}

	out, err := s2.Decode(make([]byte, n), data)
	if err != nil {
		return nil, fmt.Errorf("s2 decompression failed: %w", err)
	}

	return out, nil
}
