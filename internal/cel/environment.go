package cel

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// NewEnvironment creates the base CEL environment for derived fields and
// repetition predicates. Field variables are declared per expression by the pool.
func NewEnvironment() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.CustomTypeAdapter(NewFieldTypeAdapter()),
		BitwiseFunctions(),
		TextFunctions(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// FieldTypeAdapter extends the default adapter with the narrow integer widths
// that callers may place in an activation.
type FieldTypeAdapter struct {
	types.Adapter
}

// NewFieldTypeAdapter wraps the default CEL type adapter.
func NewFieldTypeAdapter() *FieldTypeAdapter {
	return &FieldTypeAdapter{Adapter: types.DefaultTypeAdapter}
}

// NativeToValue converts Go values to CEL values, widening small integers.
func (a *FieldTypeAdapter) NativeToValue(value any) ref.Val {
	switch v := value.(type) {
	case int8:
		return types.Int(v)
	case int16:
		return types.Int(v)
	case int32:
		return types.Int(v)
	case int:
		return types.Int(v)
	case uint8:
		return types.Int(v)
	case uint16:
		return types.Int(v)
	case uint32:
		return types.Int(v)
	case float32:
		return types.Double(v)
	default:
		return a.Adapter.NativeToValue(value)
	}
}
