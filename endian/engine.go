// Package endian provides the byte order engine used by the cache payload codec.
//
// An EndianEngine combines binary.ByteOrder and binary.AppendByteOrder so that
// encoders can append values to a growing buffer and decoders can read them
// back through the same value:
//
//	engine := endian.GetLittleEndianEngine()
//	buf = engine.AppendUint64(buf, math.Float64bits(v))
//	v = math.Float64frombits(engine.Uint64(buf))
//
// All engines are immutable and safe for concurrent use.
package endian

import "encoding/binary"

// EndianEngine combines ByteOrder and AppendByteOrder from encoding/binary.
//
// binary.LittleEndian and binary.BigEndian both satisfy it.
type EndianEngine interface {
	binary.ByteOrder
	binary.AppendByteOrder
}

// GetLittleEndianEngine returns the little-endian engine, the byte order of
// every cache payload.
func GetLittleEndianEngine() EndianEngine {
	return binary.LittleEndian
}
