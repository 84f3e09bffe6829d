package compress

import (
	"fmt"

	"github.com/arloliu/projpred/format"
)

// Codec compresses cached projection payloads and restores them.
//
// Compress never aliases its input, since the cache keeps the result for the
// lifetime of the entry. Decompress returns an error for corrupted data or
// data produced by another codec. Codecs are safe for concurrent use.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtinCodecs = map[format.CompressionType]Codec{
	format.CompressionNone: noopCodec{},
	format.CompressionZstd: zstdCodec{},
	format.CompressionS2:   s2Codec{},
	format.CompressionLZ4:  lz4Codec{},
}

// GetCodec retrieves the built-in Codec for a compression type.
//
// Parameters:
//   - compressionType: None, Zstd, S2 or LZ4
//
// Returns:
//   - Codec: shared, stateless codec instance
//   - error: unsupported compression type
func GetCodec(compressionType format.CompressionType) (Codec, error) {
	if codec, ok := builtinCodecs[compressionType]; ok {
		return codec, nil
	}

	return nil, fmt.Errorf("unsupported compression type: %s", compressionType)
}

// Ratio returns compressed/original size, or 0 for an empty original.
func Ratio(original, compressed int) float64 {
	if original == 0 {
		return 0
	}

	return float64(compressed) / float64(original)
}

// noopCodec stores payloads as encoded.
type noopCodec struct{}

func (noopCodec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	return append([]byte(nil), data...), nil
}

// Decompress returns data unchanged; the cache only reads the result.
func (noopCodec) Decompress(data []byte) ([]byte, error) {
	return data, nil
}
