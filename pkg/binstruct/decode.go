package binstruct

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Date sentinels used when the schema does not rename them.
const (
	DateUnknown = "unknown"
	DateDefined = "defined"
)

// DecodeInt decodes a little-endian unsigned integer: the last byte is the most
// significant digit in base 256.
func DecodeInt(b []byte) int64 {
	var v int64
	for i := len(b) - 1; i >= 0; i-- {
		v = v*0x100 + int64(b[i])
	}
	return v
}

// DecodeDate decodes a date field of any width. Zero means unknown, all bits set
// means the date is defined but unspecified, anything else is returned as its
// decimal digits (year followed by the zero padded day of the year).
func DecodeDate(b []byte, unknown, defined string) string {
	v := DecodeInt(b)
	if v == 0 {
		return unknown
	}
	if len(b) > 0 && len(b) < 8 && v == int64(1)<<(8*len(b))-1 {
		return defined
	}
	return strconv.FormatInt(v, 10)
}

// DecodeColour renders a 3-byte little-endian RGB value as 0xrrggbb.
func DecodeColour(b []byte) string {
	return fmt.Sprintf("0x%06x", DecodeInt(b))
}

// Trim cuts b at the first occurrence of the trim byte.
func Trim(b []byte, trim byte) []byte {
	if i := bytes.IndexByte(b, trim); i >= 0 {
		return b[:i]
	}
	return b
}

// SplitText splits a text block on a two byte line marker and joins the lines
// with newlines.
func SplitText(b []byte, marker []byte) []byte {
	if len(marker) == 0 {
		return b
	}
	return bytes.Join(bytes.Split(b, marker), []byte("\n"))
}

// Raw renders bytes as space separated lowercase hex pairs.
func Raw(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	var sb strings.Builder
	enc := hex.EncodeToString(b)
	for i := 0; i < len(enc); i += 2 {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(enc[i : i+2])
	}
	return sb.String()
}

// Table maps small integer codes to names. It serves both enumerations and
// flag sets; for flags the keys are single bit values.
type Table map[int64]string

// LookupEnum returns the name for code, or the code as two lowercase hex digits
// when the table does not know it. The boolean reports whether the code was known.
func LookupEnum(table Table, code int64) (string, bool) {
	if name, ok := table[code]; ok {
		return name, true
	}
	return fmt.Sprintf("%02x", code), false
}

// Flag is one set bit of a bitfield.
type Flag struct {
	Name  string
	Bit   int64
	Known bool
}

// ExpandFlags returns an entry for every set bit of the low byte of bits, in bit
// order. Unnamed bits are reported as flags_<tableName>_<hex bit>.
func ExpandFlags(tableName string, table Table, bits int64) []Flag {
	var flags []Flag
	for i := 0; i < 8; i++ {
		bit := int64(1) << i
		if bits&bit == 0 {
			continue
		}
		if name, ok := table[bit]; ok {
			flags = append(flags, Flag{Name: name, Bit: bit, Known: true})
			continue
		}
		flags = append(flags, Flag{Name: fmt.Sprintf("flags_%s_%02x", tableName, bit), Bit: bit})
	}
	return flags
}
