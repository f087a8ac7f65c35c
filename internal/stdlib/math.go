// Package stdlib registers the host-side library modules that sit
// outside the VM core: math, thin wrappers over Go's math package,
// and sql, a thin wrapper over database/sql. Neither is part of the
// interpreter itself — both are registered through the same
// vm.Register hook any embedder would use for its own callbacks.
package stdlib

import (
	"fmt"
	"math"

	"maru/internal/value"
	"maru/internal/vm"
)

// RegisterMath installs lib.sin/cos/tan/sqrt/abs/floor/ceil/pow/log,
// one argument (or two for pow) in, one float out, matching design's
// "thin math.X wrappers, nothing more".
func RegisterMath(m *vm.VM) {
	unary := map[string]func(float64) float64{
		"sin": math.Sin, "cos": math.Cos, "tan": math.Tan,
		"sqrt": math.Sqrt, "abs": math.Abs, "floor": math.Floor,
		"ceil": math.Ceil, "log": math.Log, "exp": math.Exp,
	}
	for name, fn := range unary {
		fn := fn
		m.Register(name, func(abi value.Stack, argc int) (int, error) {
			if argc != 1 {
				return 0, fmt.Errorf("%s requires one numeric argument", name)
			}
			a := abi.Pop()
			if !a.IsNumber() {
				return 0, fmt.Errorf("%s requires a number, got %s", name, a.Kind)
			}
			abi.Push(value.Float(fn(a.Float())))
			return 1, nil
		})
	}

	m.Register("pow", func(abi value.Stack, argc int) (int, error) {
		if argc != 2 {
			return 0, fmt.Errorf("pow requires (base, exponent)")
		}
		e := abi.Pop()
		b := abi.Pop()
		if !b.IsNumber() || !e.IsNumber() {
			return 0, fmt.Errorf("pow requires two numbers")
		}
		abi.Push(value.Float(math.Pow(b.Float(), e.Float())))
		return 1, nil
	})
}
