package encoding

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/endian"
	"github.com/arloliu/projpred/errs"
)

func TestMatrixCodec(t *testing.T) {
	for _, engine := range []endian.EndianEngine{endian.GetLittleEndianEngine(), binary.BigEndian} {
		enc := NewMatrixEncoder(engine)
		dec := NewMatrixDecoder(engine)

		t.Run("matrix and vectors", func(t *testing.T) {
			m := mat.NewDense(2, 3, []float64{1, -2.5, math.Pi, 0, math.Inf(1), 1e-300})
			payload := enc.Encode(m, []float64{0.5, 0.25}, nil, []float64{7})

			got, vecs, err := dec.Decode(payload)
			require.NoError(t, err)
			require.True(t, mat.Equal(m, got))
			require.Equal(t, [][]float64{{0.5, 0.25}, {}, {7}}, vecs)
		})

		t.Run("nil matrix", func(t *testing.T) {
			payload := enc.Encode(nil, []float64{1, 2})
			got, vecs, err := dec.Decode(payload)
			require.NoError(t, err)
			require.Nil(t, got)
			require.Equal(t, []float64{1, 2}, vecs[0])
		})
	}
}

func TestMatrixDecoder_Malformed(t *testing.T) {
	enc := NewMatrixEncoder(endian.GetLittleEndianEngine())
	dec := NewMatrixDecoder(endian.GetLittleEndianEngine())
	payload := enc.Encode(mat.NewDense(1, 2, []float64{1, 2}), []float64{3})

	tests := map[string][]byte{
		"too short": payload[:8],
		"truncated": payload[:len(payload)-1],
		"bad magic": append([]byte{0, 0, 0, 0}, payload[4:]...),
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := dec.Decode(data)
			require.ErrorIs(t, err, errs.ErrCacheDecode)
		})
	}

	t.Run("wrong byte order", func(t *testing.T) {
		_, _, err := NewMatrixDecoder(binary.BigEndian).Decode(payload)
		require.ErrorIs(t, err, errs.ErrCacheDecode)
	})
}
