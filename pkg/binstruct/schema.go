package binstruct

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// DecodeKind selects the scalar decoder for a field.
type DecodeKind int

const (
	KindString DecodeKind = iota // bytes used as-is
	KindRaw                      // hex dump, for fields whose meaning is unknown
	KindTrim                     // cut at the first trim byte
	KindInt                      // little-endian unsigned integer
	KindDate                     // little-endian integer with unknown/defined sentinels
	KindColour                   // 0xrrggbb
	KindEnum                     // single byte looked up in a named map
	KindFlags                    // single byte expanded into named flags
	KindText                     // delimited text block split on a line marker
	KindValue                    // derived value, consumes no bytes
)

var kindNames = map[string]DecodeKind{
	"string":      KindString,
	"raw":         KindRaw,
	"trim":        KindTrim,
	"int":         KindInt,
	"short":       KindInt,
	"date":        KindDate,
	"colour":      KindColour,
	"color":       KindColour,
	"map":         KindEnum,
	"flags":       KindFlags,
	"text":        KindText,
	"conditional": KindString,
	"value":       KindValue,
}

// defaultWidths apply when neither the field nor the schema sizes table sets one.
var defaultWidths = map[string]int{
	"int":    1,
	"short":  2,
	"date":   3,
	"colour": 3,
	"color":  3,
	"map":    1,
	"flags":  1,
}

func (k DecodeKind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindRaw:
		return "raw"
	case KindTrim:
		return "trim"
	case KindInt:
		return "int"
	case KindDate:
		return "date"
	case KindColour:
		return "colour"
	case KindEnum:
		return "map"
	case KindFlags:
		return "flags"
	case KindText:
		return "text"
	case KindValue:
		return "value"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Node is a field or a group in a schema. The set of implementations is closed.
type Node interface {
	NodeName() string
	node()
}

// Scalar is a single decoded field. Width 0 means delimiter-terminated.
type Scalar struct {
	Name      string
	Width     int
	Kind      DecodeKind
	Table     string // map or flags table
	Split     string // line marker name for text blocks
	Condition string // earlier flag or field that must be true for the field to be present
	Expr      string // CEL expression for derived values
	Internal  bool   // decoded into the scope only, never emitted
}

// Group is a nested structure, decoded once or repeatedly.
type Group struct {
	Name     string
	Children []Node
	Repeat   Repetition
}

func (s *Scalar) NodeName() string { return s.Name }
func (g *Group) NodeName() string  { return g.Name }
func (*Scalar) node()              {}
func (*Group) node()               {}

// Repetition decides how many times a group body is decoded.
type Repetition interface {
	repetition()
}

// RepeatOnce decodes the body a single time into a nested record.
type RepeatOnce struct{}

// RepeatFixed decodes the body N times.
type RepeatFixed struct{ N int }

// RepeatCount decodes the body as many times as an earlier integer field says.
type RepeatCount struct{ Field string }

// RepeatUntilDelimiter reads one byte before every iteration and stops when it
// equals Marker. Bytes that do not match are discarded.
type RepeatUntilDelimiter struct {
	Name   string
	Marker byte
}

// RepeatUntilValue stops after the iteration whose Field equals the value of
// the earlier field Equals.
type RepeatUntilValue struct {
	Field  string
	Equals string
}

// RepeatUntilExpr stops after the iteration for which the CEL expression is true.
type RepeatUntilExpr struct{ Expr string }

func (RepeatOnce) repetition()           {}
func (RepeatFixed) repetition()          {}
func (RepeatCount) repetition()          {}
func (RepeatUntilDelimiter) repetition() {}
func (RepeatUntilValue) repetition()     {}
func (RepeatUntilExpr) repetition()      {}

// Meta describes the format the schema decodes.
type Meta struct {
	ID        string `yaml:"id"`
	Title     string `yaml:"title"`
	Version   string `yaml:"version"`
	Encoding  string `yaml:"encoding"`
	EOFMarker string `yaml:"eof-marker"`
}

// Section groups top-level output keys.
type Section struct {
	Name string   `yaml:"name"`
	Keys []string `yaml:"keys"`
}

// Schema is a fully loaded structure description plus its lookup tables.
type Schema struct {
	Meta           Meta
	FieldDelimiter byte
	TrimDelimiter  byte
	Markers        map[string][]byte
	Maps           map[string]Table
	Flags          map[string]Table
	DateUnknown    string
	DateDefined    string
	Root           *Group
	Sections       []Section
	DefaultSection string
}

type schemaSpec struct {
	Meta           Meta                  `yaml:"meta"`
	Delimiters     map[string]any        `yaml:"delimiters"`
	Sizes          map[string]int        `yaml:"sizes"`
	Maps           map[string]Table      `yaml:"maps"`
	Flags          map[string]Table      `yaml:"flags"`
	Dates          map[string]string     `yaml:"dates"`
	Types          map[string][]nodeSpec `yaml:"types"`
	Structure      []nodeSpec            `yaml:"structure"`
	Sections       []Section             `yaml:"sections"`
	DefaultSection string                `yaml:"default-section"`
}

type nodeSpec struct {
	Name      string     `yaml:"name"`
	Size      *int       `yaml:"size"`
	Type      string     `yaml:"type"`
	Map       string     `yaml:"map"`
	Flags     string     `yaml:"flags"`
	Split     string     `yaml:"split"`
	Condition string     `yaml:"condition"`
	Value     string     `yaml:"value"`
	Internal  bool       `yaml:"internal"`
	Structure []nodeSpec `yaml:"structure"`
	Count     string     `yaml:"count"`
	Delimiter string     `yaml:"delimiter"`
	Until     *untilSpec `yaml:"until"`
	UntilExpr string     `yaml:"until-expr"`
}

type untilSpec struct {
	Field  string `yaml:"field"`
	Equals string `yaml:"equals"`
}

// LoadSchema parses a YAML structure description and validates it.
func LoadSchema(data []byte) (*Schema, error) {
	var spec schemaSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parsing schema YAML: %w", err)
	}

	s := &Schema{
		Meta:           spec.Meta,
		FieldDelimiter: DefaultFieldDelimiter,
		Markers:        make(map[string][]byte),
		Maps:           spec.Maps,
		Flags:          spec.Flags,
		DateUnknown:    DateUnknown,
		DateDefined:    DateDefined,
		Sections:       spec.Sections,
		DefaultSection: spec.DefaultSection,
	}
	if s.Maps == nil {
		s.Maps = make(map[string]Table)
	}
	if s.Flags == nil {
		s.Flags = make(map[string]Table)
	}
	if v, ok := spec.Dates["unknown"]; ok {
		s.DateUnknown = v
	}
	if v, ok := spec.Dates["defined"]; ok {
		s.DateDefined = v
	}

	for name, raw := range spec.Delimiters {
		marker, err := markerBytes(raw)
		if err != nil {
			return nil, configErrorf("", "delimiter '%s': %v", name, err)
		}
		switch name {
		case "field":
			if len(marker) != 1 {
				return nil, configErrorf("", "field delimiter must be a single byte")
			}
			s.FieldDelimiter = marker[0]
		case "trim":
			if len(marker) != 1 {
				return nil, configErrorf("", "trim delimiter must be a single byte")
			}
			s.TrimDelimiter = marker[0]
		}
		s.Markers[name] = marker
	}

	b := &builder{spec: &spec, sizes: spec.Sizes}
	children, err := b.buildNodes(spec.Structure)
	if err != nil {
		return nil, err
	}
	s.Root = &Group{Name: spec.Meta.ID, Children: children, Repeat: RepeatOnce{}}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func markerBytes(v any) ([]byte, error) {
	switch val := v.(type) {
	case int:
		if val < 0 || val > 0xff {
			return nil, fmt.Errorf("byte value %d out of range", val)
		}
		return []byte{byte(val)}, nil
	case string:
		return []byte(val), nil
	case []any:
		out := make([]byte, 0, len(val))
		for _, item := range val {
			b, err := markerBytes(item)
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported delimiter value %v (%T)", v, v)
}

type builder struct {
	spec      *schemaSpec
	sizes     map[string]int
	typeStack []string
}

func (b *builder) buildNodes(specs []nodeSpec) ([]Node, error) {
	nodes := make([]Node, 0, len(specs))
	for _, ns := range specs {
		n, err := b.buildNode(ns)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

func (b *builder) buildNode(ns nodeSpec) (Node, error) {
	if _, isType := b.spec.Types[ns.Type]; isType || ns.Structure != nil {
		return b.buildGroup(ns)
	}
	return b.buildScalar(ns)
}

func (b *builder) buildGroup(ns nodeSpec) (*Group, error) {
	g := &Group{Name: ns.Name}
	if g.Name == "" {
		return nil, configErrorf("", "group without a name")
	}

	body := ns.Structure
	if ns.Type != "" {
		if ns.Structure != nil {
			return nil, configErrorf(ns.Name, "group has both a type and an inline structure")
		}
		if slices.Contains(b.typeStack, ns.Type) {
			return nil, configErrorf(ns.Name, "circular type reference: %s -> %s", strings.Join(b.typeStack, " -> "), ns.Type)
		}
		b.typeStack = append(b.typeStack, ns.Type)
		defer func() { b.typeStack = b.typeStack[:len(b.typeStack)-1] }()
		body = b.spec.Types[ns.Type]
	}

	children, err := b.buildNodes(body)
	if err != nil {
		return nil, err
	}
	g.Children = children

	var strategies []string
	g.Repeat = RepeatOnce{}
	if ns.Size != nil {
		g.Repeat = RepeatFixed{N: *ns.Size}
		strategies = append(strategies, "size")
	}
	if ns.Count != "" {
		g.Repeat = RepeatCount{Field: ns.Count}
		strategies = append(strategies, "count")
	}
	if ns.Delimiter != "" {
		marker, ok := b.spec.Delimiters[ns.Delimiter]
		if !ok {
			return nil, configErrorf(ns.Name, "unknown delimiter '%s'", ns.Delimiter)
		}
		mb, err := markerBytes(marker)
		if err != nil || len(mb) != 1 {
			return nil, configErrorf(ns.Name, "group delimiter '%s' must be a single byte", ns.Delimiter)
		}
		g.Repeat = RepeatUntilDelimiter{Name: ns.Delimiter, Marker: mb[0]}
		strategies = append(strategies, "delimiter")
	}
	if ns.Until != nil {
		g.Repeat = RepeatUntilValue{Field: ns.Until.Field, Equals: ns.Until.Equals}
		strategies = append(strategies, "until")
	}
	if ns.UntilExpr != "" {
		g.Repeat = RepeatUntilExpr{Expr: ns.UntilExpr}
		strategies = append(strategies, "until-expr")
	}
	if len(strategies) > 1 {
		return nil, configErrorf(ns.Name, "conflicting repetition: %s", strings.Join(strategies, ", "))
	}
	return g, nil
}

func (b *builder) buildScalar(ns nodeSpec) (*Scalar, error) {
	typeName := ns.Type
	if typeName == "" {
		typeName = "string"
		if ns.Value != "" {
			typeName = "value"
		}
	}
	kind, ok := kindNames[typeName]
	if !ok {
		return nil, configErrorf(ns.Name, "unknown type '%s'", ns.Type)
	}

	s := &Scalar{
		Name:      ns.Name,
		Kind:      kind,
		Split:     ns.Split,
		Condition: ns.Condition,
		Expr:      ns.Value,
		Internal:  ns.Internal,
	}
	switch kind {
	case KindEnum:
		s.Table = ns.Map
	case KindFlags:
		s.Table = ns.Flags
	}
	if typeName == "conditional" && s.Condition == "" {
		return nil, configErrorf(ns.Name, "conditional field without a condition")
	}

	if w, ok := defaultWidths[typeName]; ok {
		s.Width = w
	}
	if w, ok := b.sizes[typeName]; ok {
		s.Width = w
	}
	if ns.Size != nil {
		s.Width = *ns.Size
	}
	return s, nil
}

// Validate checks the node tree in document order: every table and marker
// reference must exist, and every count, condition or until reference must name
// a field declared earlier in the same or an enclosing scope.
func (s *Schema) Validate() error {
	if s.Root == nil {
		return configErrorf("", "schema has no structure")
	}
	for _, name := range slices.Sorted(maps.Keys(s.Flags)) {
		for bit := range s.Flags[name] {
			if bit < 0x01 || bit > 0x80 || bit&(bit-1) != 0 {
				return configErrorf("", "flags '%s': key 0x%02x is not a single bit", name, bit)
			}
		}
	}
	return s.validateGroup(s.Root, newDeclScope(nil))
}

type declKind int

const (
	declValue declKind = iota
	declInt
	declFlag
	declGroup
)

type declScope struct {
	names  map[string]declKind
	parent *declScope
}

func newDeclScope(parent *declScope) *declScope {
	return &declScope{names: make(map[string]declKind), parent: parent}
}

func (d *declScope) lookup(name string) (declKind, bool) {
	for sc := d; sc != nil; sc = sc.parent {
		if k, ok := sc.names[name]; ok {
			return k, true
		}
	}
	return 0, false
}

func (s *Schema) validateGroup(g *Group, scope *declScope) error {
	switch r := g.Repeat.(type) {
	case RepeatOnce, RepeatUntilDelimiter, RepeatUntilExpr:
	case RepeatFixed:
		if r.N < 0 {
			return configErrorf(g.Name, "negative repeat count %d", r.N)
		}
	case RepeatCount:
		k, ok := scope.lookup(r.Field)
		if !ok {
			return configErrorf(g.Name, "count field '%s' is not decoded before this group", r.Field)
		}
		if k != declInt {
			return configErrorf(g.Name, "count field '%s' is not an integer", r.Field)
		}
	case RepeatUntilValue:
		if _, ok := scope.lookup(r.Equals); !ok {
			return configErrorf(g.Name, "until field '%s' is not decoded before this group", r.Equals)
		}
	case nil:
		return configErrorf(g.Name, "group has no repetition")
	}

	inner := newDeclScope(scope)
	for _, child := range g.Children {
		switch n := child.(type) {
		case *Group:
			if err := s.validateGroup(n, inner); err != nil {
				return err
			}
			inner.names[n.Name] = declGroup
		case *Scalar:
			if err := s.validateScalar(n, inner); err != nil {
				return err
			}
		}
	}

	if r, ok := g.Repeat.(RepeatUntilValue); ok {
		if _, declared := inner.names[r.Field]; !declared {
			return configErrorf(g.Name, "until field '%s' is not part of the group", r.Field)
		}
	}
	return nil
}

func (s *Schema) validateScalar(n *Scalar, scope *declScope) error {
	if n.Condition != "" {
		if _, ok := scope.lookup(n.Condition); !ok {
			return configErrorf(n.Name, "condition '%s' is not decoded before this field", n.Condition)
		}
	}

	switch n.Kind {
	case KindInt, KindDate, KindColour:
		if n.Width < 1 || n.Width > 4 {
			return configErrorf(n.Name, "%s width must be 1 to 4 bytes, got %d", n.Kind, n.Width)
		}
	case KindEnum:
		if _, ok := s.Maps[n.Table]; !ok {
			return configErrorf(n.Name, "unknown map '%s'", n.Table)
		}
		if n.Width != 1 {
			return configErrorf(n.Name, "map fields are one byte wide")
		}
	case KindFlags:
		if _, ok := s.Flags[n.Table]; !ok {
			return configErrorf(n.Name, "unknown flags '%s'", n.Table)
		}
		if n.Width != 1 {
			return configErrorf(n.Name, "flags fields are one byte wide")
		}
	case KindText:
		marker, ok := s.Markers[n.Split]
		if !ok {
			return configErrorf(n.Name, "unknown split marker '%s'", n.Split)
		}
		if len(marker) != 2 {
			return configErrorf(n.Name, "split marker '%s' must be two bytes", n.Split)
		}
		if n.Width != 0 {
			return configErrorf(n.Name, "text blocks are delimiter-terminated")
		}
	case KindValue:
		if n.Expr == "" {
			return configErrorf(n.Name, "derived field without an expression")
		}
		if n.Name == "" {
			return configErrorf(n.Name, "derived field without a name")
		}
	case KindString, KindRaw, KindTrim:
	default:
		return configErrorf(n.Name, "unknown decode kind %s", n.Kind)
	}
	if n.Width < 0 {
		return configErrorf(n.Name, "negative width %d", n.Width)
	}

	switch {
	case n.Kind == KindFlags:
		for _, name := range s.Flags[n.Table] {
			scope.names[name] = declFlag
		}
		if n.Name != "" {
			scope.names[n.Name] = declInt
		}
	case n.Name == "":
	case n.Kind == KindInt:
		scope.names[n.Name] = declInt
	default:
		scope.names[n.Name] = declValue
	}
	return nil
}
