package binstruct

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncatedInput is returned when a read needs more bytes than remain in the buffer.
	ErrTruncatedInput = errors.New("truncated input")
	// ErrFormat is returned when the data does not match a structural requirement of the schema.
	ErrFormat = errors.New("format error")
	// ErrConfig is returned for schema mistakes: unknown kinds, missing tables, forward references.
	ErrConfig = errors.New("schema configuration error")
)

// TruncatedInputError records where a read ran off the end of the buffer.
type TruncatedInputError struct {
	Offset    int64
	Requested int
	Remaining int64
	Field     string
}

func (e *TruncatedInputError) Error() string {
	what := fmt.Sprintf("%d bytes", e.Requested)
	if e.Requested == 0 {
		what = "delimited field"
	}
	msg := fmt.Sprintf("truncated input at offset 0x%06x: need %s, %d remaining", e.Offset, what, e.Remaining)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field '%s')", e.Field)
	}
	return msg
}

func (e *TruncatedInputError) Is(target error) bool {
	return target == ErrTruncatedInput
}

// FormatError reports a structural mismatch between the data and the schema.
type FormatError struct {
	Offset   int64
	Field    string
	Msg      string
	Expected any
	Found    any
}

func (e *FormatError) Error() string {
	msg := fmt.Sprintf("format error at offset 0x%06x", e.Offset)
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	msg += ": " + e.Msg
	if e.Expected != nil || e.Found != nil {
		msg += fmt.Sprintf(" (expected %q, found %q)", fmt.Sprint(e.Expected), fmt.Sprint(e.Found))
	}
	return msg
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// ConfigError is a caller bug in the schema, never a data problem.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return "schema error: " + e.Msg
	}
	return fmt.Sprintf("schema error in field '%s': %s", e.Field, e.Msg)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

func configErrorf(field, format string, args ...any) *ConfigError {
	return &ConfigError{Field: field, Msg: fmt.Sprintf(format, args...)}
}
