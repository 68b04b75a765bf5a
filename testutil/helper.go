package testutil

import (
	"math"

	"github.com/google/go-cmp/cmp"
)

// Buffer builds synthetic binary input in the little-endian, CR-delimited
// layout the decoders expect.
type Buffer struct {
	data []byte
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Bytes appends raw bytes.
func (b *Buffer) Bytes(p ...byte) *Buffer {
	b.data = append(b.data, p...)
	return b
}

// Int appends v as a width-byte little-endian integer.
func (b *Buffer) Int(v int64, width int) *Buffer {
	for i := 0; i < width; i++ {
		b.data = append(b.data, byte(v>>(8*i)))
	}
	return b
}

// Delimited appends s followed by the 0x0d field delimiter.
func (b *Buffer) Delimited(s string) *Buffer {
	b.data = append(b.data, s...)
	b.data = append(b.data, 0x0d)
	return b
}

// Fixed appends s padded with NUL bytes (or cut) to width.
func (b *Buffer) Fixed(s string, width int) *Buffer {
	p := make([]byte, width)
	copy(p, s)
	b.data = append(b.data, p...)
	return b
}

// Pad appends n zero bytes.
func (b *Buffer) Pad(n int) *Buffer {
	b.data = append(b.data, make([]byte, n)...)
	return b
}

// Len returns the number of bytes written so far.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Build returns a copy of the accumulated bytes.
func (b *Buffer) Build() []byte {
	return append([]byte(nil), b.data...)
}

// ConvertToInt64 converts various numeric types to int64 for comparison.
// Returns the int64 value and a boolean indicating success.
func ConvertToInt64(i any) (int64, bool) {
	switch v := i.(type) {
	case float64:
		if v == float64(int64(v)) {
			return int64(v), true
		}
		return 0, false
	case int:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v <= math.MaxInt64 {
			return int64(v), true
		}
		return 0, false
	default:
		return 0, false
	}
}

// NumericComparer is a cmp.Comparer for flexible numeric comparison, so that
// trees decoded from JSON (float64) compare equal to decoded int64 fields.
var NumericComparer = cmp.FilterValues(func(x, y any) bool {
	_, xOk := ConvertToInt64(x)
	_, yOk := ConvertToInt64(y)
	return xOk && yOk
}, cmp.Comparer(func(x, y any) bool {
	xInt, _ := ConvertToInt64(x)
	yInt, _ := ConvertToInt64(y)
	return xInt == yInt
}))

// FilterMapKeys recursively creates a new map from 'source' containing only keys present in 'reference'.
func FilterMapKeys(source map[string]any, reference map[string]any) map[string]any {
	result := make(map[string]any)
	for key, refVal := range reference {
		srcVal, ok := source[key]
		if !ok {
			continue
		}
		refSubMap, refIsMap := refVal.(map[string]any)
		srcSubMap, srcIsMap := srcVal.(map[string]any)
		if refIsMap && srcIsMap {
			result[key] = FilterMapKeys(srcSubMap, refSubMap)
			continue
		}
		result[key] = srcVal
	}
	return result
}
