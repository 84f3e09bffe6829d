// Package compress provides the payload codecs of the projection cache.
//
// Cached projections are stored as encoded float64 matrices (see package
// encoding). With a large cache those payloads dominate memory, so the cache
// can compress them with one of the built-in algorithms:
//   - None: payload stored as encoded (fastest, largest)
//   - Zstd: best ratio, moderate speed
//   - S2: balanced ratio and speed
//   - LZ4: fastest decompression
//
// Codecs are stateless values, safe for concurrent use, and looked up by
// format.CompressionType:
//
//	codec, err := compress.GetCodec(format.CompressionS2)
//	packed, err := codec.Compress(payload)
//	payload, err = codec.Decompress(packed)
//
// Coefficient matrices of projected draws are dense float64 data with little
// redundancy, so ratios are modest; compression pays off mainly for
// intercept-heavy small subsets and large S.
package compress
