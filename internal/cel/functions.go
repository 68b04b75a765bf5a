package cel

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// BitwiseFunctions returns CEL functions for masking raw flag bytes.
func BitwiseFunctions() cel.EnvOption {
	return cel.Lib(&bitwiseLib{})
}

type bitwiseLib struct{}

func (*bitwiseLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		cel.Function("bitAnd",
			cel.Overload("bitand_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return bitwiseOp(lhs, rhs, func(a, b int64) int64 { return a & b })
				}),
			),
		),
		cel.Function("bitOr",
			cel.Overload("bitor_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return bitwiseOp(lhs, rhs, func(a, b int64) int64 { return a | b })
				}),
			),
		),
		cel.Function("bitXor",
			cel.Overload("bitxor_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.IntType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					return bitwiseOp(lhs, rhs, func(a, b int64) int64 { return a ^ b })
				}),
			),
		),
		// bitTest(value, mask) is true when any bit of mask is set in value.
		cel.Function("bitTest",
			cel.Overload("bittest_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.BoolType,
				cel.BinaryBinding(func(lhs, rhs ref.Val) ref.Val {
					v := bitwiseOp(lhs, rhs, func(a, b int64) int64 { return a & b })
					if types.IsError(v) {
						return v
					}
					return types.Bool(v.(types.Int) != 0)
				}),
			),
		),
	}
}

func (*bitwiseLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

func bitwiseOp(lhs, rhs ref.Val, op func(int64, int64) int64) ref.Val {
	l, ok1 := lhs.(types.Int)
	r, ok2 := rhs.(types.Int)
	if !ok1 || !ok2 {
		return types.NewErr("bitwise arguments must be integers, got %T and %T", lhs.Value(), rhs.Value())
	}
	return types.Int(op(int64(l), int64(r)))
}

// TextFunctions returns CEL helpers for formatting decoded values.
func TextFunctions() cel.EnvOption {
	return cel.Lib(&textLib{})
}

type textLib struct{}

func (*textLib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		// hex(value, digits) renders an integer as zero padded lowercase hex.
		cel.Function("hex",
			cel.Overload("hex_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.StringType,
				cel.BinaryBinding(func(val, digits ref.Val) ref.Val {
					v, ok1 := val.(types.Int)
					d, ok2 := digits.(types.Int)
					if !ok1 || !ok2 {
						return types.NewErr("hex expects (int, int)")
					}
					if d < 0 || d > 16 {
						return types.NewErr("hex digit count out of range: %d", d)
					}
					return types.String(fmt.Sprintf("%0*x", int(d), int64(v)))
				}),
			),
		),
		cel.Function("trim",
			cel.MemberOverload("string_trim", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(func(val ref.Val) ref.Val {
					s, ok := val.(types.String)
					if !ok {
						return types.NewErr("expected string type for trim")
					}
					return types.String(strings.TrimSpace(string(s)))
				}),
			),
		),
	}
}

func (*textLib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}
