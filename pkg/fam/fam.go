package fam

import (
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	internalCel "github.com/twinfer/fam-parser/internal/cel"
	"github.com/twinfer/fam-parser/pkg/binstruct"
)

//go:embed schema/fam.yml
var defaultSchema []byte

// DefaultSchema returns a copy of the embedded FAM schema.
func DefaultSchema() []byte {
	return append([]byte(nil), defaultSchema...)
}

// Parser decodes FAM files and caches one interpreter per schema.
type Parser struct {
	cache          map[string]*binstruct.Interpreter
	cacheMutex     sync.RWMutex
	expressionPool *internalCel.ExpressionPool
	options        options
}

type options struct {
	logger        *slog.Logger
	schemaData    []byte
	schemaPath    string
	debugMode     bool
	maxIterations int
	enableCaching bool
}

// Option is a function that configures parser options
type Option func(*options)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchema decodes with the given schema YAML instead of the embedded one.
func WithSchema(data []byte) Option {
	return func(o *options) {
		o.schemaData = data
		o.schemaPath = ""
	}
}

// WithSchemaFile decodes with the schema stored at path.
func WithSchemaFile(path string) Option {
	return func(o *options) {
		o.schemaPath = path
		o.schemaData = nil
	}
}

// WithDebugMode keeps unnamed fields in the output and tags log records.
func WithDebugMode(enabled bool) Option {
	return func(o *options) {
		o.debugMode = enabled
	}
}

// WithMaxIterations bounds every repeated group.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIterations = n
	}
}

// WithCaching toggles interpreter caching.
func WithCaching(enabled bool) Option {
	return func(o *options) {
		o.enableCaching = enabled
	}
}

// decodeLogger is the logger a decode with these options writes to. Debug
// mode tags every record.
func (o options) decodeLogger() *slog.Logger {
	if o.debugMode {
		return o.logger.With("debug", true)
	}
	return o.logger
}

func defaultOptions() options {
	return options{
		logger:        slog.Default(),
		maxIterations: binstruct.DefaultMaxIterations,
		enableCaching: true,
	}
}

var globalParser *Parser
var globalParserOnce sync.Once

func getGlobalParser() *Parser {
	globalParserOnce.Do(func() {
		globalParser = NewParser()
	})
	return globalParser
}

// NewParser creates a new parser instance with the given options
func NewParser(opts ...Option) *Parser {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	// The pool only fails when the base CEL environment cannot be built; the
	// interpreter then creates its own and reports the error there.
	pool, _ := internalCel.NewExpressionPool()

	return &Parser{
		cache:          make(map[string]*binstruct.Interpreter),
		expressionPool: pool,
		options:        options,
	}
}

// Parse decodes data with the embedded schema.
func Parse(data []byte, opts ...Option) (*Tree, error) {
	return getGlobalParser().Parse(context.Background(), data, opts...)
}

// ParseWithContext decodes data with the embedded schema and a context.
func ParseWithContext(ctx context.Context, data []byte, opts ...Option) (*Tree, error) {
	return getGlobalParser().Parse(ctx, data, opts...)
}

// ParseFile reads and decodes the file at path.
func (p *Parser) ParseFile(ctx context.Context, path string, opts ...Option) (*Tree, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading FAM file: %w", err)
	}
	return p.Parse(ctx, data, opts...)
}

// Parse decodes one FAM file. Per-call options override the parser's.
func (p *Parser) Parse(ctx context.Context, data []byte, opts ...Option) (*Tree, error) {
	options := p.options
	for _, opt := range opts {
		opt(&options)
	}

	logger := options.decodeLogger()

	interp, err := p.interpreter(options)
	if err != nil {
		return nil, err
	}
	schema := interp.Schema()

	res, err := interp.Parse(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("parsing FAM data: %w", err)
	}

	if err := checkEOFMarker(schema, res); err != nil {
		logger.ErrorContext(ctx, "End-of-file marker mismatch", "offset", res.Offset, "error", err)
		return nil, err
	}
	if res.Offset < res.Size {
		logger.WarnContext(ctx, "Trailing bytes after end-of-file marker", "offset", res.Offset, "size", res.Size)
	}

	relationships := 0
	if members, ok := res.Tree.GetList("members"); ok {
		rels := Deduplicate(members)
		relationships = len(rels)
		res.Tree.Set("relationships", rels)
	}

	grouped := GroupSections(res.Tree, schema.Sections, schema.DefaultSection)
	logger.DebugContext(ctx, "Decoded FAM file",
		"sections", grouped.Keys(),
		"relationships", relationships,
		"offset", res.Offset,
		"skipped", res.SkippedBytes)

	return &Tree{
		Data:         grouped,
		Internal:     res.Internal,
		Offset:       res.Offset,
		Size:         res.Size,
		SkippedBytes: res.SkippedBytes,
	}, nil
}

// ValidateSchema loads the configured schema and compiles it without decoding.
func (p *Parser) ValidateSchema(opts ...Option) error {
	options := p.options
	for _, opt := range opts {
		opt(&options)
	}
	_, err := p.interpreter(options)
	return err
}

// ValidateSchemaFile checks a schema file without decoding any data.
func ValidateSchemaFile(path string) error {
	return getGlobalParser().ValidateSchema(WithSchemaFile(path))
}

// ClearCache drops every cached interpreter.
func (p *Parser) ClearCache() {
	p.cacheMutex.Lock()
	defer p.cacheMutex.Unlock()
	p.cache = make(map[string]*binstruct.Interpreter)
}

func (p *Parser) interpreter(o options) (*binstruct.Interpreter, error) {
	source, key, err := schemaSource(o)
	if err != nil {
		return nil, err
	}
	// Interpreters log through the logger they were built with.
	key = fmt.Sprintf("%s|debug=%t|max=%d|logger=%p", key, o.debugMode, o.maxIterations, o.logger)

	if o.enableCaching {
		p.cacheMutex.RLock()
		cached, exists := p.cache[key]
		p.cacheMutex.RUnlock()
		if exists {
			return cached, nil
		}
	}

	schema, err := binstruct.LoadSchema(source)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}
	interp, err := binstruct.NewInterpreter(schema, o.decodeLogger(),
		binstruct.WithDebug(o.debugMode),
		binstruct.WithMaxIterations(o.maxIterations),
		binstruct.WithExpressionPool(p.expressionPool),
	)
	if err != nil {
		return nil, fmt.Errorf("creating interpreter: %w", err)
	}

	if o.enableCaching {
		p.cacheMutex.Lock()
		p.cache[key] = interp
		p.cacheMutex.Unlock()
	}
	return interp, nil
}

func schemaSource(o options) ([]byte, string, error) {
	switch {
	case o.schemaPath != "":
		data, err := os.ReadFile(o.schemaPath)
		if err != nil {
			return nil, "", fmt.Errorf("reading schema file: %w", err)
		}
		return data, "file:" + o.schemaPath, nil
	case o.schemaData != nil:
		return o.schemaData, fmt.Sprintf("inline:%x", sha256.Sum256(o.schemaData)), nil
	default:
		return defaultSchema, "embedded", nil
	}
}

// checkEOFMarker compares the internal eof_marker field with the marker the
// schema declares.
func checkEOFMarker(schema *binstruct.Schema, res *binstruct.Result) error {
	want := schema.Meta.EOFMarker
	if want == "" {
		return nil
	}
	got, _ := res.Internal["eof_marker"].(string)
	if got == want {
		return nil
	}
	return &binstruct.FormatError{
		Offset:   res.Offset - int64(len(got)),
		Field:    "eof_marker",
		Msg:      "missing end-of-file marker",
		Expected: want,
		Found:    got,
	}
}

// Tree is a decoded FAM file.
type Tree struct {
	Data         *binstruct.Record
	Internal     map[string]any
	Offset       int64
	Size         int64
	SkippedBytes int64
}

// Section returns one top-level section, e.g. "family".
func (t *Tree) Section(name string) (*binstruct.Record, bool) {
	v, ok := t.Data.Get(name)
	if !ok {
		return nil, false
	}
	r, ok := v.(*binstruct.Record)
	return r, ok
}

// Members returns the family members in file order.
func (t *Tree) Members() []*binstruct.Record {
	return t.familyList("members")
}

// Relationships returns the de-duplicated relationships.
func (t *Tree) Relationships() []*binstruct.Record {
	return t.familyList("relationships")
}

func (t *Tree) familyList(key string) []*binstruct.Record {
	family, ok := t.Section("family")
	if !ok {
		return nil
	}
	list, _ := family.GetList(key)
	out := make([]*binstruct.Record, 0, len(list))
	for _, item := range list {
		if r, ok := item.(*binstruct.Record); ok {
			out = append(out, r)
		}
	}
	return out
}

// JSON renders the tree as indented JSON in decode order.
func (t *Tree) JSON() ([]byte, error) {
	out, err := json.MarshalIndent(t.Data, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("marshaling to JSON: %w", err)
	}
	return out, nil
}

// YAML renders the tree as YAML in decode order.
func (t *Tree) YAML() ([]byte, error) {
	out, err := yaml.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("marshaling to YAML: %w", err)
	}
	return out, nil
}
