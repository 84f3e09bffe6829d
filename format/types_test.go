package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseCompressionType(t *testing.T) {
	tests := map[string]CompressionType{
		"":     CompressionNone,
		"none": CompressionNone,
		"ZSTD": CompressionZstd,
		"s2":   CompressionS2,
		" lz4": CompressionLZ4,
	}
	for in, want := range tests {
		got, err := ParseCompressionType(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := ParseCompressionType("gzip")
	require.Error(t, err)
}

func TestCompressionType_Text(t *testing.T) {
	var c CompressionType
	require.NoError(t, c.UnmarshalText([]byte("s2")))
	require.Equal(t, CompressionS2, c)

	text, err := CompressionLZ4.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "lz4", string(text))
	require.Equal(t, "Unknown", CompressionType(0).String())
}
