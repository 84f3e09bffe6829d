package compress

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

// maxPayload bounds the decoded size of one cached projection.
const maxPayload = 1 << 30

// lz4 block modes.
const (
	lz4Stored byte = iota // block was incompressible and is kept raw
	lz4Block
)

var lz4CompressorPool = sync.Pool{
	New: func() any {
		return &lz4.Compressor{}
	},
}

// lz4Codec offers the fastest decompression of the built-in codecs.
//
// The LZ4 block format does not record the decoded size, so every payload
// starts with a mode byte and the uvarint size of the encoded projection.
type lz4Codec struct{}

func (lz4Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	dst := make([]byte, 1+binary.MaxVarintLen64+lz4.CompressBlockBound(len(data)))
	dst[0] = lz4Block
	head := 1 + binary.PutUvarint(dst[1:], uint64(len(data)))

	lc, _ := lz4CompressorPool.Get().(*lz4.Compressor)
	defer lz4CompressorPool.Put(lc)

	n, err := lc.CompressBlock(data, dst[head:])
	if err != nil {
		return nil, err
	}
	if n == 0 {
		dst[0] = lz4Stored
		return append(dst[:head], data...), nil
	}

	return dst[:head+n], nil
}

func (lz4Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	size, k := binary.Uvarint(data[1:])
	if k <= 0 {
		return nil, fmt.Errorf("lz4 payload header is malformed")
	}
	if size > maxPayload {
		return nil, fmt.Errorf("lz4 payload of %d bytes exceeds %d", size, maxPayload)
	}
	body := data[1+k:]

	switch data[0] {
	case lz4Stored:
		if uint64(len(body)) != size {
			return nil, fmt.Errorf("lz4 stored payload has %d bytes, want %d", len(body), size)
		}
		return append([]byte(nil), body...), nil
	case lz4Block:
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(body, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		if uint64(n) != size {
			return nil, fmt.Errorf("lz4 payload decoded to %d bytes, want %d", n, size)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("lz4 payload has unknown mode %d", data[0])
	}
}
