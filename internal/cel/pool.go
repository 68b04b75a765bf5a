package cel

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// ExpressionPool caches compiled CEL expressions
type ExpressionPool struct {
	mu          sync.RWMutex
	expressions map[string]cel.Program
	env         *cel.Env
}

// NewExpressionPool creates a new expression pool with the default environment
func NewExpressionPool() (*ExpressionPool, error) {
	env, err := NewEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create environment: %w", err)
	}
	return NewExpressionPoolWithEnv(env)
}

// NewExpressionPoolWithEnv creates a new expression pool with a custom CEL environment
func NewExpressionPoolWithEnv(env *cel.Env) (*ExpressionPool, error) {
	if env == nil {
		return nil, fmt.Errorf("CEL environment cannot be nil")
	}
	return &ExpressionPool{
		env:         env,
		expressions: make(map[string]cel.Program),
	}, nil
}

// Len returns the number of cached programs.
func (e *ExpressionPool) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.expressions)
}

// GetExpression retrieves or compiles an expression. Every free identifier
// becomes a dynamically typed variable.
func (e *ExpressionPool) GetExpression(exprStr string) (cel.Program, error) {
	e.mu.RLock()
	if program, ok := e.expressions[exprStr]; ok {
		e.mu.RUnlock()
		return program, nil
	}
	e.mu.RUnlock()

	vars := extractVariables(exprStr)
	envOpts := make([]cel.EnvOption, 0, len(vars))
	for _, varName := range vars {
		envOpts = append(envOpts, cel.Variable(varName, cel.DynType))
	}

	extEnv, err := e.env.Extend(envOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to extend environment: %w", err)
	}

	ast, issues := extEnv.Compile(exprStr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile expression '%s': %w", exprStr, issues.Err())
	}

	program, err := extEnv.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	e.mu.Lock()
	e.expressions[exprStr] = program
	e.mu.Unlock()

	return program, nil
}

// Evaluate compiles (or reuses) exprStr and runs it against params.
func (e *ExpressionPool) Evaluate(exprStr string, params map[string]any) (any, error) {
	program, err := e.GetExpression(exprStr)
	if err != nil {
		return nil, err
	}
	return e.EvaluateExpression(program, params)
}

// EvaluateExpression evaluates a compiled expression with parameters
func (e *ExpressionPool) EvaluateExpression(program cel.Program, params map[string]any) (any, error) {
	if params == nil {
		params = make(map[string]any)
	}

	activation, err := cel.NewActivation(params)
	if err != nil {
		return nil, fmt.Errorf("failed to create activation: %w", err)
	}

	val, _, err := program.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("expression evaluation error: %w", err)
	}

	return adaptCELResult(val), nil
}

// adaptCELResult converts CEL result values to Go native types
func adaptCELResult(val ref.Val) any {
	switch v := val.(type) {
	case types.Int:
		return int64(v)
	case types.Uint:
		return uint64(v)
	case types.Double:
		return float64(v)
	case types.Bool:
		return bool(v)
	case types.String:
		return string(v)
	case types.Bytes:
		return []byte(v)
	case types.Null:
		return nil
	}

	if lister, ok := val.(traits.Lister); ok {
		size := lister.Size().(types.Int)
		result := make([]any, size)
		for i := types.Int(0); i < size; i++ {
			result[i] = adaptCELResult(lister.Get(i))
		}
		return result
	}

	if mapper, ok := val.(traits.Mapper); ok {
		result := make(map[string]any)
		iter := mapper.Iterator()
		for iter.HasNext() == types.True {
			key := iter.Next()
			keyStr, ok := key.Value().(string)
			if !ok {
				keyStr = fmt.Sprintf("%v", key.Value())
			}
			result[keyStr] = adaptCELResult(mapper.Get(key))
		}
		return result
	}

	return val.Value()
}

var celKeywords = map[string]bool{
	"true":  true,
	"false": true,
	"null":  true,
	"in":    true,
}

// extractVariables finds the free identifiers of an expression. String
// literals, member selections and function names are skipped.
func extractVariables(expr string) []string {
	var vars []string
	seen := make(map[string]bool)

	isWordChar := func(c byte) bool {
		return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_'
	}

	for i := 0; i < len(expr); {
		c := expr[i]
		switch {
		case c == '"' || c == '\'':
			i = skipString(expr, i)
		case isWordChar(c):
			start := i
			for i < len(expr) && isWordChar(expr[i]) {
				i++
			}
			word := expr[start:i]
			if word[0] >= '0' && word[0] <= '9' {
				continue
			}
			if celKeywords[word] || seen[word] {
				continue
			}
			if prev := prevNonSpace(expr, start); prev == '.' {
				continue
			}
			if next := nextNonSpace(expr, i); next == '(' {
				continue
			}
			seen[word] = true
			vars = append(vars, word)
		default:
			i++
		}
	}
	return vars
}

func skipString(expr string, i int) int {
	quote := expr[i]
	for i++; i < len(expr); i++ {
		switch expr[i] {
		case '\\':
			i++
		case quote:
			return i + 1
		}
	}
	return i
}

func prevNonSpace(expr string, i int) byte {
	for i--; i >= 0; i-- {
		if expr[i] != ' ' && expr[i] != '\t' {
			return expr[i]
		}
	}
	return 0
}

func nextNonSpace(expr string, i int) byte {
	for ; i < len(expr); i++ {
		if expr[i] != ' ' && expr[i] != '\t' {
			return expr[i]
		}
	}
	return 0
}
