// Package encoding implements the sortable byte encoding for indexed
// float32 point dimensions.
//
// Each dimension of a point occupies BytesPerDim bytes. The encoding is
// chosen so that lexicographic comparison of the encoded bytes matches
// numeric comparison of the floats: the sign bit is flipped for
// non-negative values and all bits are flipped for negative values,
// then the result is written big-endian.
package encoding

import (
	"encoding/binary"
	"math"
)

// BytesPerDim is the encoded size of one dimension.
const BytesPerDim = 4

// EncodeDimension writes the sortable encoding of value into dst[0:4].
func EncodeDimension(value float32, dst []byte) {
	sortableIntToBytes(floatToSortableInt(value), dst)
}

// DecodeDimension decodes the dimension starting at b[offset].
func DecodeDimension(b []byte, offset int) float32 {
	return sortableIntToFloat(sortableBytesToInt(b[offset:]))
}

// Pack encodes all dimensions of a point into a freshly allocated slice
// of len(values)*BytesPerDim bytes.
func Pack(values []float32) []byte {
	packed := make([]byte, len(values)*BytesPerDim)
	for i, v := range values {
		EncodeDimension(v, packed[i*BytesPerDim:])
	}
	return packed
}

// Unpack decodes a packed point back into float32 coordinates.
func Unpack(packed []byte) []float32 {
	values := make([]float32, len(packed)/BytesPerDim)
	for i := range values {
		values[i] = DecodeDimension(packed, i*BytesPerDim)
	}
	return values
}

// floatToSortableInt converts value to a signed int32 whose natural
// order matches the float order (NaN sorts above +Inf).
func floatToSortableInt(value float32) int32 {
	bits := int32(math.Float32bits(value))
	return bits ^ (bits>>31)&0x7fffffff
}

func sortableIntToFloat(v int32) float32 {
	return math.Float32frombits(uint32(v ^ (v>>31)&0x7fffffff))
}

// sortableIntToBytes flips the sign bit so that unsigned byte order
// matches signed int order.
func sortableIntToBytes(v int32, dst []byte) {
	binary.BigEndian.PutUint32(dst, uint32(v)^0x80000000)
}

func sortableBytesToInt(b []byte) int32 {
	return int32(binary.BigEndian.Uint32(b) ^ 0x80000000)
}
