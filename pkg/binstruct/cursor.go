package binstruct

import (
	"bytes"
	"fmt"
	"io"

	"github.com/kaitai-io/kaitai_struct_go_runtime/kaitai"
)

// DefaultFieldDelimiter terminates variable-width fields.
const DefaultFieldDelimiter byte = 0x0d

// Cursor reads fixed-width and delimiter-terminated fields from an in-memory
// buffer. Returned slices are views into that buffer and must not be modified.
type Cursor struct {
	data      []byte
	stream    *kaitai.Stream
	size      int64
	delimiter byte
}

// NewCursor creates a cursor positioned at the start of data.
func NewCursor(data []byte, delimiter byte) *Cursor {
	return &Cursor{
		data:      data,
		stream:    kaitai.NewStream(bytes.NewReader(data)),
		size:      int64(len(data)),
		delimiter: delimiter,
	}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int64 {
	pos, err := c.stream.Pos()
	if err != nil {
		return c.size
	}
	return pos
}

// Len returns the total buffer size.
func (c *Cursor) Len() int64 {
	return c.size
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int64 {
	return c.size - c.Offset()
}

// EOF reports whether every byte has been consumed.
func (c *Cursor) EOF() bool {
	return c.Remaining() <= 0
}

// Take returns the next width bytes, or with width 0 the bytes up to the next
// delimiter. The delimiter itself is consumed but not returned.
func (c *Cursor) Take(width int) ([]byte, error) {
	if width == 0 {
		return c.takeDelimited()
	}
	offset := c.Offset()
	if remaining := c.size - offset; int64(width) > remaining {
		return nil, &TruncatedInputError{Offset: offset, Requested: width, Remaining: remaining}
	}
	if err := c.advance(offset + int64(width)); err != nil {
		return nil, err
	}
	return c.data[offset : offset+int64(width)], nil
}

func (c *Cursor) takeDelimited() ([]byte, error) {
	offset := c.Offset()
	i := bytes.IndexByte(c.data[offset:], c.delimiter)
	if i < 0 {
		return nil, &TruncatedInputError{Offset: offset, Remaining: c.size - offset}
	}
	end := offset + int64(i)
	if err := c.advance(end + 1); err != nil {
		return nil, err
	}
	return c.data[offset:end], nil
}

func (c *Cursor) advance(pos int64) error {
	if _, err := c.stream.Seek(pos, io.SeekStart); err != nil {
		return fmt.Errorf("seeking to offset 0x%06x: %w", pos, err)
	}
	return nil
}

// ReadByte consumes a single byte.
func (c *Cursor) ReadByte() (byte, error) {
	offset := c.Offset()
	if offset >= c.size {
		return 0, &TruncatedInputError{Offset: offset, Requested: 1, Remaining: 0}
	}
	v, err := c.stream.ReadU1()
	if err != nil {
		return 0, &TruncatedInputError{Offset: offset, Requested: 1, Remaining: c.size - offset}
	}
	return v, nil
}
