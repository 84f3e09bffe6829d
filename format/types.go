// Package format defines the enumerated identifiers shared by the cache codec
// and the configuration layer.
package format

import (
	"fmt"
	"strings"
)

// CompressionType identifies the compression applied to cached projection payloads.
type CompressionType uint8

const (
	CompressionNone CompressionType = 0x1 // CompressionNone stores payloads as encoded.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents Zstandard compression.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents S2 compression.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents LZ4 compression.
)

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// ParseCompressionType maps a case-insensitive name ("none", "zstd", "s2",
// "lz4") to its CompressionType. The empty string maps to CompressionNone.
func ParseCompressionType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "s2":
		return CompressionS2, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression type %q", name)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c CompressionType) MarshalText() ([]byte, error) {
	return []byte(strings.ToLower(c.String())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so that configuration
// files and environment variables can name the compression.
func (c *CompressionType) UnmarshalText(text []byte) error {
	v, err := ParseCompressionType(string(text))
	if err != nil {
		return err
	}
	*c = v

	return nil
}
