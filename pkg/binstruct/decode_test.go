package binstruct

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDecodeInt(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected int64
	}{
		{"single byte", []byte{0x2a}, 42},
		{"two bytes", []byte{0x34, 0x12}, 0x1234},
		{"three bytes", []byte{0x39, 0x05, 0x00}, 1337},
		{"four bytes", []byte{0x78, 0x56, 0x34, 0x12}, 0x12345678},
		{"max four bytes", []byte{0xff, 0xff, 0xff, 0xff}, 0xffffffff},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeInt(tt.input))
		})
	}
}

// Re-encoding every decoded value reproduces the input bytes.
func TestDecodeIntRoundTrip(t *testing.T) {
	encode := func(v int64, width int) []byte {
		b := make([]byte, width)
		for i := range width {
			b[i] = byte(v >> (8 * i))
		}
		return b
	}
	values := []int64{0, 1, 0x7f, 0x80, 0xff, 0x100, 0xbeef, 0xffff, 0x10000, 0xabcdef, 0xffffff, 0x1000000, 0x7fffffff, 0xffffffff}

	for width := 1; width <= 4; width++ {
		limit := int64(1) << (8 * width)
		for _, v := range values {
			if v >= limit {
				continue
			}
			b := encode(v, width)
			assert.Equal(t, v, DecodeInt(b), "width %d value %#x", width, v)

			var sum int64
			for i := range b {
				sum += int64(b[i]) << (8 * i)
			}
			assert.Equal(t, sum, DecodeInt(b))
		}
	}
}

func TestDecodeDate(t *testing.T) {
	tests := []struct {
		name     string
		input    []byte
		expected string
	}{
		{"zero is unknown", []byte{0x00, 0x00, 0x00}, DateUnknown},
		{"all ones is defined", []byte{0xff, 0xff, 0xff}, DateDefined},
		{"four byte all ones is defined", []byte{0xff, 0xff, 0xff, 0xff}, DateDefined},
		{"literal value", []byte{0x39, 0x05, 0x00}, "1337"},
		{"year and day", []byte{0xd9, 0xf3, 0x10}, "1111001"},
		{"three byte value in four bytes", []byte{0xff, 0xff, 0xff, 0x00}, "16777215"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DecodeDate(tt.input, DateUnknown, DateDefined))
		})
	}

	assert.Equal(t, "UNKNOWN", DecodeDate([]byte{0, 0, 0}, "UNKNOWN", "DEFINED"))
}

func TestDecodeColour(t *testing.T) {
	assert.Equal(t, "0x0000ff", DecodeColour([]byte{0xff, 0x00, 0x00}))
	assert.Equal(t, "0xff0000", DecodeColour([]byte{0x00, 0x00, 0xff}))
	assert.Equal(t, "0x000000", DecodeColour([]byte{0x00, 0x00, 0x00}))
}

func TestTrim(t *testing.T) {
	assert.Equal(t, []byte("Pedigree"), Trim([]byte("Pedigree\x00\x00junk"), 0x00))
	assert.Equal(t, []byte("no nul"), Trim([]byte("no nul"), 0x00))
	assert.Empty(t, Trim([]byte{0x00, 'a'}, 0x00))
}

func TestSplitText(t *testing.T) {
	marker := []byte{0x09, 0x03}
	assert.Equal(t, []byte("line one\nline two"), SplitText([]byte("line one\x09\x03line two"), marker))
	assert.Equal(t, []byte("single"), SplitText([]byte("single"), marker))
	assert.Equal(t, []byte("as is"), SplitText([]byte("as is"), nil))
}

func TestRaw(t *testing.T) {
	assert.Equal(t, "01 ab ff", Raw([]byte{0x01, 0xab, 0xff}))
	assert.Equal(t, "", Raw(nil))
}

func TestLookupEnum(t *testing.T) {
	sex := Table{0: "male", 1: "female", 2: "unknown"}

	name, known := LookupEnum(sex, 1)
	assert.True(t, known)
	assert.Equal(t, "female", name)

	name, known = LookupEnum(sex, 0xfe)
	assert.False(t, known)
	assert.Equal(t, "fe", name)

	name, _ = LookupEnum(nil, 3)
	assert.Equal(t, "03", name)
}

func TestExpandFlags(t *testing.T) {
	relationship := Table{0x01: "informal", 0x04: "separated"}

	flags := ExpandFlags("relationship", relationship, 0b00000101)
	assert.Equal(t, []Flag{
		{Name: "informal", Bit: 0x01, Known: true},
		{Name: "separated", Bit: 0x04, Known: true},
	}, flags)

	flags = ExpandFlags("relationship", relationship, 0b10000010)
	assert.Equal(t, []Flag{
		{Name: "flags_relationship_02", Bit: 0x02},
		{Name: "flags_relationship_80", Bit: 0x80},
	}, flags)

	assert.Empty(t, ExpandFlags("relationship", relationship, 0))
}
