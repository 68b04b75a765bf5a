package binstruct

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/text/encoding"

	internalCel "github.com/twinfer/fam-parser/internal/cel"
)

// DefaultMaxIterations bounds every repeated group.
const DefaultMaxIterations = 65536

// Interpreter decodes byte buffers against a validated schema. It holds no
// per-decode state and is safe for concurrent use.
type Interpreter struct {
	schema         *Schema
	expressionPool *internalCel.ExpressionPool
	encoding       encoding.Encoding
	logger         *slog.Logger
	debug          bool
	maxIterations  int
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithDebug keeps unnamed fields in the output under raw_NNN keys.
func WithDebug(enabled bool) Option {
	return func(in *Interpreter) {
		in.debug = enabled
	}
}

// WithMaxIterations overrides the per-group iteration limit.
func WithMaxIterations(n int) Option {
	return func(in *Interpreter) {
		if n > 0 {
			in.maxIterations = n
		}
	}
}

// WithExpressionPool shares a CEL program cache between interpreters.
func WithExpressionPool(pool *internalCel.ExpressionPool) Option {
	return func(in *Interpreter) {
		if pool != nil {
			in.expressionPool = pool
		}
	}
}

// Result is a successful decode.
type Result struct {
	Tree         *Record
	Internal     map[string]any // top-level internal fields
	Offset       int64          // cursor position after the last field
	Size         int64
	SkippedBytes int64 // bytes consumed by unnamed fields
}

// NewInterpreter validates schema and compiles its expressions.
func NewInterpreter(schema *Schema, logger *slog.Logger, opts ...Option) (*Interpreter, error) {
	if schema == nil {
		return nil, configErrorf("", "nil schema")
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	enc, err := lookupEncoding(schema.Meta.Encoding)
	if err != nil {
		return nil, configErrorf("", "%v", err)
	}

	log := logger
	if log == nil {
		log = slog.Default()
	}

	in := &Interpreter{
		schema:        schema,
		encoding:      enc,
		logger:        log,
		maxIterations: DefaultMaxIterations,
	}
	for _, opt := range opts {
		opt(in)
	}

	if in.expressionPool == nil {
		pool, err := internalCel.NewExpressionPool()
		if err != nil {
			return nil, fmt.Errorf("failed to create expression pool: %w", err)
		}
		in.expressionPool = pool
	}
	if err := in.compileExpressions(schema.Root); err != nil {
		return nil, err
	}
	return in, nil
}

// Schema returns the schema the interpreter decodes with.
func (in *Interpreter) Schema() *Schema {
	return in.schema
}

func (in *Interpreter) compileExpressions(g *Group) error {
	if r, ok := g.Repeat.(RepeatUntilExpr); ok {
		if _, err := in.expressionPool.GetExpression(r.Expr); err != nil {
			return configErrorf(g.Name, "%v", err)
		}
	}
	for _, child := range g.Children {
		switch n := child.(type) {
		case *Group:
			if err := in.compileExpressions(n); err != nil {
				return err
			}
		case *Scalar:
			if n.Kind != KindValue {
				continue
			}
			if _, err := in.expressionPool.GetExpression(n.Expr); err != nil {
				return configErrorf(n.Name, "%v", err)
			}
		}
	}
	return nil
}

// session is the mutable state of one decode.
type session struct {
	cursor   *Cursor
	rawCount int
	skipped  int64
}

// Parse decodes data. On error no partial tree is returned.
func (in *Interpreter) Parse(ctx context.Context, data []byte) (*Result, error) {
	in.logger.DebugContext(ctx, "Starting decode", "schema", in.schema.Meta.ID, "size", len(data))
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s := &session{cursor: NewCursor(data, in.schema.FieldDelimiter)}
	root := newScope(nil, "")
	if err := in.decodeBody(ctx, s, in.schema.Root.Children, root); err != nil {
		in.logger.ErrorContext(ctx, "Decode failed", "schema", in.schema.Meta.ID, "offset", s.cursor.Offset(), "error", err)
		return nil, err
	}

	in.logger.DebugContext(ctx, "Finished decode", "offset", s.cursor.Offset(), "remaining", s.cursor.Remaining(), "skipped", s.skipped)
	return &Result{
		Tree:         root.record,
		Internal:     root.internal,
		Offset:       s.cursor.Offset(),
		Size:         s.cursor.Len(),
		SkippedBytes: s.skipped,
	}, nil
}

func (in *Interpreter) decodeBody(ctx context.Context, s *session, children []Node, sc *scope) error {
	for _, child := range children {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		switch n := child.(type) {
		case *Group:
			if err := in.decodeGroup(ctx, s, n, sc); err != nil {
				return err
			}
		case *Scalar:
			if err := in.decodeScalar(ctx, s, n, sc); err != nil {
				return err
			}
		}
	}
	return nil
}

func (in *Interpreter) decodeGroup(ctx context.Context, s *session, g *Group, sc *scope) error {
	path := sc.child(g.Name)
	in.logger.DebugContext(ctx, "Parsing group", "group", path, "offset", s.cursor.Offset(), "repeat", fmt.Sprintf("%T", g.Repeat))

	if _, ok := g.Repeat.(RepeatOnce); ok {
		body := newScope(sc, path)
		if err := in.decodeBody(ctx, s, g.Children, body); err != nil {
			return err
		}
		sc.record.Set(g.Name, body.record)
		return nil
	}

	items := make([]any, 0)
	iteration := func(i int) (*scope, error) {
		if i >= in.maxIterations {
			return nil, &FormatError{
				Offset: s.cursor.Offset(),
				Field:  path,
				Msg:    fmt.Sprintf("repetition exceeded %d iterations", in.maxIterations),
			}
		}
		body := newScope(sc, fmt.Sprintf("%s[%d]", path, i))
		if err := in.decodeBody(ctx, s, g.Children, body); err != nil {
			return nil, err
		}
		items = append(items, body.record)
		return body, nil
	}

	switch r := g.Repeat.(type) {
	case RepeatFixed:
		for i := range r.N {
			if _, err := iteration(i); err != nil {
				return err
			}
		}

	case RepeatCount:
		v, _ := sc.lookup(r.Field)
		n, ok := v.(int64)
		if !ok {
			return &FormatError{Offset: s.cursor.Offset(), Field: path, Msg: fmt.Sprintf("count field '%s' holds %T, not an integer", r.Field, v)}
		}
		in.logger.DebugContext(ctx, "Determined repeat count", "group", path, "count_field", r.Field, "count", n)
		if n > int64(in.maxIterations) {
			return &FormatError{
				Offset: s.cursor.Offset(),
				Field:  path,
				Msg:    fmt.Sprintf("count %d exceeds the iteration limit", n),
			}
		}
		for i := range int(n) {
			if _, err := iteration(i); err != nil {
				return err
			}
		}

	case RepeatUntilDelimiter:
		for i := 0; ; i++ {
			b, err := s.cursor.ReadByte()
			if err != nil {
				var te *TruncatedInputError
				if errors.As(err, &te) {
					te.Field = path
				}
				return err
			}
			if b == r.Marker {
				break
			}
			if _, err := iteration(i); err != nil {
				return err
			}
		}

	case RepeatUntilValue:
		want, _ := sc.lookup(r.Equals)
		for i := 0; ; i++ {
			if s.cursor.EOF() {
				return s.endOfData(path)
			}
			body, err := iteration(i)
			if err != nil {
				return err
			}
			got, _ := body.lookupOwn(r.Field)
			if sameValue(got, want) {
				break
			}
		}

	case RepeatUntilExpr:
		for i := 0; ; i++ {
			if s.cursor.EOF() {
				return s.endOfData(path)
			}
			body, err := iteration(i)
			if err != nil {
				return err
			}
			done, err := in.expressionPool.Evaluate(r.Expr, body.flatten())
			if err != nil {
				return fmt.Errorf("evaluating until-expr of '%s': %w", path, err)
			}
			if stop, _ := done.(bool); stop {
				break
			}
		}

	default:
		return configErrorf(path, "unsupported repetition %T", g.Repeat)
	}

	in.logger.DebugContext(ctx, "Finished group", "group", path, "items", len(items), "offset", s.cursor.Offset())
	sc.record.Set(g.Name, items)
	return nil
}

func (in *Interpreter) decodeScalar(ctx context.Context, s *session, n *Scalar, sc *scope) error {
	path := sc.child(n.Name)

	if n.Condition != "" && !sc.truthy(n.Condition) {
		in.logger.DebugContext(ctx, "Skipping conditional field", "field", path, "condition", n.Condition)
		return nil
	}

	if n.Kind == KindValue {
		v, err := in.expressionPool.Evaluate(n.Expr, sc.flatten())
		if err != nil {
			return fmt.Errorf("evaluating field '%s': %w", path, err)
		}
		in.store(sc, n, v)
		return nil
	}

	offset := s.cursor.Offset()
	b, err := s.cursor.Take(n.Width)
	if err != nil {
		var te *TruncatedInputError
		if errors.As(err, &te) {
			te.Field = path
		}
		return err
	}
	in.logger.DebugContext(ctx, "Read field", "field", path, "offset", offset, "width", n.Width, "read", len(b), "kind", n.Kind)

	if n.Name == "" && n.Kind != KindFlags {
		s.skipped += s.cursor.Offset() - offset
		if in.debug {
			s.rawCount++
			sc.record.Set(fmt.Sprintf("raw_%03d", s.rawCount), Raw(b))
		}
		return nil
	}

	var v any
	switch n.Kind {
	case KindString:
		v, err = decodeString(in.encoding, b)
	case KindRaw:
		v = Raw(b)
	case KindTrim:
		v, err = decodeString(in.encoding, Trim(b, in.schema.TrimDelimiter))
	case KindInt:
		v = DecodeInt(b)
	case KindDate:
		v = DecodeDate(b, in.schema.DateUnknown, in.schema.DateDefined)
	case KindColour:
		v = DecodeColour(b)
	case KindEnum:
		code := DecodeInt(b)
		name, known := LookupEnum(in.schema.Maps[n.Table], code)
		if !known {
			in.logger.DebugContext(ctx, "Unknown enum code", "field", path, "map", n.Table, "code", name, "offset", offset)
		}
		v = name
	case KindFlags:
		in.applyFlags(ctx, n, sc, DecodeInt(b), offset)
		return nil
	case KindText:
		v, err = decodeString(in.encoding, SplitText(b, in.schema.Markers[n.Split]))
	default:
		return configErrorf(path, "unsupported decode kind %s", n.Kind)
	}
	if err != nil {
		return &FormatError{Offset: offset, Field: path, Msg: fmt.Sprintf("decoding %s: %v", in.schema.Meta.Encoding, err)}
	}

	in.store(sc, n, v)
	return nil
}

// endOfData reports a loop that ran out of input before its terminating
// condition held. The next iteration needs at least one more byte.
func (s *session) endOfData(path string) error {
	return &TruncatedInputError{Offset: s.cursor.Offset(), Requested: 1, Remaining: 0, Field: path}
}

// applyFlags writes a sparse entry per set bit to the record and a dense
// boolean per named bit to the scope.
func (in *Interpreter) applyFlags(ctx context.Context, n *Scalar, sc *scope, bits int64, offset int64) {
	table := in.schema.Flags[n.Table]
	for bit, name := range table {
		sc.internal[name] = bits&bit != 0
	}
	for _, f := range ExpandFlags(n.Table, table, bits) {
		if !f.Known {
			in.logger.DebugContext(ctx, "Unnamed flag bit", "flags", n.Table, "bit", f.Bit, "offset", offset)
			sc.internal[f.Name] = true
		}
		if !n.Internal {
			sc.record.Set(f.Name, true)
		}
	}
	if n.Name != "" {
		sc.internal[n.Name] = bits
	}
}

func (in *Interpreter) store(sc *scope, n *Scalar, v any) {
	if n.Internal {
		sc.internal[n.Name] = v
		return
	}
	sc.record.Set(n.Name, v)
}

// sameValue compares decoded values; integers compare by value whatever
// their Go type.
func sameValue(a, b any) bool {
	ai, aok := asInt64(a)
	bi, bok := asInt64(b)
	if aok && bok {
		return ai == bi
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	return aok && bok && as == bs
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}
