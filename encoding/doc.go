// Package encoding provides the binary codec used to store projected draws in
// the projection cache.
//
// A payload holds one dense matrix (the projected coefficients) followed by a
// list of float64 vectors (dispersion, divergence, iteration counts, ...). All
// numbers are stored in their IEEE 754 representation with an explicit byte
// order from package endian, so payloads round-trip bit for bit.
//
//	enc := encoding.NewMatrixEncoder(endian.GetLittleEndianEngine())
//	payload := enc.Encode(coef, dispersion, deviance)
//
//	dec := encoding.NewMatrixDecoder(endian.GetLittleEndianEngine())
//	coef, vectors, err := dec.Decode(payload)
//
// Payloads are usually compressed afterwards with a codec from package compress.
package encoding
