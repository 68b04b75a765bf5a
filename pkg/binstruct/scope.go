package binstruct

// scope holds the fields decoded so far for one group iteration. Lookups walk
// outward through the enclosing scopes.
type scope struct {
	record   *Record
	internal map[string]any
	parent   *scope
	path     string
}

func newScope(parent *scope, path string) *scope {
	return &scope{
		record:   NewRecord(),
		internal: make(map[string]any),
		parent:   parent,
		path:     path,
	}
}

// lookup finds name in this scope or an enclosing one. Internal values shadow
// emitted ones so that flag names resolve to their dense boolean.
func (s *scope) lookup(name string) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.internal[name]; ok {
			return v, true
		}
		if v, ok := sc.record.Get(name); ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) lookupOwn(name string) (any, bool) {
	if v, ok := s.internal[name]; ok {
		return v, true
	}
	return s.record.Get(name)
}

// truthy reports whether name holds a true-ish value; absent names are false.
func (s *scope) truthy(name string) bool {
	v, ok := s.lookup(name)
	if !ok {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case int64:
		return val != 0
	case string:
		return val != ""
	case nil:
		return false
	}
	return true
}

// flatten merges the values visible from this scope into one map, inner
// scopes taking precedence.
func (s *scope) flatten() map[string]any {
	var chain []*scope
	for sc := s; sc != nil; sc = sc.parent {
		chain = append(chain, sc)
	}
	vars := make(map[string]any)
	for i := len(chain) - 1; i >= 0; i-- {
		sc := chain[i]
		for _, k := range sc.record.Keys() {
			v, _ := sc.record.Get(k)
			vars[k] = toPlain(v)
		}
		for k, v := range sc.internal {
			vars[k] = toPlain(v)
		}
	}
	return vars
}

func (s *scope) child(name string) string {
	if s.path == "" {
		return name
	}
	return s.path + "." + name
}
