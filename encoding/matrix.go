package encoding

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/arloliu/projpred/endian"
	"github.com/arloliu/projpred/errs"
	"github.com/arloliu/projpred/internal/pool"
)

// matrixMagic identifies a payload produced by MatrixEncoder.
const matrixMagic uint32 = 0x50504d31 // "PPM1"

// headerSize is magic + rows + cols + vector count.
const headerSize = 16

// MatrixEncoder encodes a dense matrix followed by a list of float64 vectors
// in their IEEE 754 representation.
//
// Layout (all integers uint32, byte order from the endian engine):
//
//	magic | rows | cols | nvec | len(vec_0) ... len(vec_{nvec-1}) | matrix (row-major) | vec_0 | ... | vec_{nvec-1}
//
// An empty matrix is encoded with rows = cols = 0.
type MatrixEncoder struct {
	engine endian.EndianEngine
}

// NewMatrixEncoder creates an encoder using the given byte order.
func NewMatrixEncoder(engine endian.EndianEngine) MatrixEncoder {
	return MatrixEncoder{engine: engine}
}

// Encode returns the encoded payload. The returned slice is owned by the caller.
//
// Parameters:
//   - m: matrix to encode (may be nil)
//   - vectors: additional float64 columns stored after the matrix
//
// Returns:
//   - []byte: encoded payload
func (e MatrixEncoder) Encode(m *mat.Dense, vectors ...[]float64) []byte {
	rows, cols := 0, 0
	if m != nil {
		rows, cols = m.Dims()
	}

	total := rows * cols
	for _, v := range vectors {
		total += len(v)
	}

	buf := pool.GetMatrixBuffer()
	defer pool.PutMatrixBuffer(buf)
	buf.Grow(headerSize + 4*len(vectors) + 8*total)

	b := buf.B
	b = e.engine.AppendUint32(b, matrixMagic)
	b = e.engine.AppendUint32(b, uint32(rows))
	b = e.engine.AppendUint32(b, uint32(cols))
	b = e.engine.AppendUint32(b, uint32(len(vectors)))
	for _, v := range vectors {
		b = e.engine.AppendUint32(b, uint32(len(v)))
	}
	for i := 0; i < rows; i++ {
		for _, v := range m.RawRowView(i) {
			b = e.engine.AppendUint64(b, math.Float64bits(v))
		}
	}
	for _, vec := range vectors {
		for _, v := range vec {
			b = e.engine.AppendUint64(b, math.Float64bits(v))
		}
	}
	buf.B = b

	return append([]byte(nil), b...)
}

// MatrixDecoder decodes payloads produced by MatrixEncoder.
type MatrixDecoder struct {
	engine endian.EndianEngine
}

// NewMatrixDecoder creates a decoder using the given byte order.
func NewMatrixDecoder(engine endian.EndianEngine) MatrixDecoder {
	return MatrixDecoder{engine: engine}
}

// Decode returns the matrix (nil when it was empty) and the vectors.
//
// Returns errs.ErrCacheDecode when the payload is truncated or malformed.
func (d MatrixDecoder) Decode(data []byte) (*mat.Dense, [][]float64, error) {
	if len(data) < headerSize {
		return nil, nil, fmt.Errorf("%w: payload of %d bytes", errs.ErrCacheDecode, len(data))
	}
	if d.engine.Uint32(data) != matrixMagic {
		return nil, nil, fmt.Errorf("%w: bad magic", errs.ErrCacheDecode)
	}
	rows := int(d.engine.Uint32(data[4:]))
	cols := int(d.engine.Uint32(data[8:]))
	nvec := int(d.engine.Uint32(data[12:]))

	off := headerSize
	if len(data) < off+4*nvec {
		return nil, nil, fmt.Errorf("%w: truncated vector lengths", errs.ErrCacheDecode)
	}
	lens := make([]int, nvec)
	total := rows * cols
	for i := range lens {
		lens[i] = int(d.engine.Uint32(data[off:]))
		total += lens[i]
		off += 4
	}
	if len(data) != off+8*total {
		return nil, nil, fmt.Errorf("%w: want %d bytes, got %d", errs.ErrCacheDecode, off+8*total, len(data))
	}

	next := func() float64 {
		v := math.Float64frombits(d.engine.Uint64(data[off:]))
		off += 8

		return v
	}

	var m *mat.Dense
	if rows > 0 && cols > 0 {
		raw := make([]float64, rows*cols)
		for i := range raw {
			raw[i] = next()
		}
		m = mat.NewDense(rows, cols, raw)
	}

	vectors := make([][]float64, nvec)
	for i, n := range lens {
		vectors[i] = make([]float64, n)
		for j := range vectors[i] {
			vectors[i][j] = next()
		}
	}

	return m, vectors, nil
}
