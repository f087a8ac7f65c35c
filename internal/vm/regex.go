package vm

import (
	"fmt"
	"regexp"

	"maru/internal/value"
)

// opMatch implements `a ~ b`: a compiled against b as a regular
// expression, true if a matches anywhere in b. Patterns are compiled
// on every call rather than cached per call-site — maru scripts are
// short-lived enough that a compile cache would be premature.
func (vm *VM) opMatch(co *Coroutine) error {
	b := co.pop()
	a := co.pop()
	if !a.IsString() || !b.IsString() {
		return fmt.Errorf("vm: '~' requires two strings, got %s and %s", a.Kind, b.Kind)
	}
	re, err := regexp.Compile(a.Str.Bytes)
	if err != nil {
		return fmt.Errorf("vm: bad pattern %q: %w", a.Str.Bytes, err)
	}
	co.push(value.Bool(re.MatchString(b.Str.Bytes)))
	return nil
}

// registerRegexLib installs lib.regexfind/regexfindall/regexreplace, the
// richer regex surface the `~` operator alone can't express, grounded
// on the same reference interpreter functions (regex_find/regex_find_all) plus a
// replace analogous to other string-substitution
// builtins.
func registerRegexLib(vm *VM) {
	vm.Register("regexfind", func(abi value.Stack, argc int) (int, error) {
		if argc != 2 {
			return 0, fmt.Errorf("regexfind requires (pattern, text)")
		}
		text := abi.Pop()
		pattern := abi.Pop()
		if !pattern.IsString() || !text.IsString() {
			return 0, fmt.Errorf("regexfind requires two strings")
		}
		re, err := regexp.Compile(pattern.Str.Bytes)
		if err != nil {
			return 0, fmt.Errorf("regexfind bad pattern: %w", err)
		}
		m := re.FindString(text.Str.Bytes)
		if m == "" && !re.MatchString(text.Str.Bytes) {
			abi.Push(value.Nil())
		} else {
			abi.Push(value.String(vm.Heap.Interner.Intern(m)))
		}
		return 1, nil
	})

	vm.Register("regexfindall", func(abi value.Stack, argc int) (int, error) {
		if argc != 2 {
			return 0, fmt.Errorf("regexfindall requires (pattern, text)")
		}
		text := abi.Pop()
		pattern := abi.Pop()
		if !pattern.IsString() || !text.IsString() {
			return 0, fmt.Errorf("regexfindall requires two strings")
		}
		re, err := regexp.Compile(pattern.Str.Bytes)
		if err != nil {
			return 0, fmt.Errorf("regexfindall bad pattern: %w", err)
		}
		matches := re.FindAllString(text.Str.Bytes, -1)
		vecVal := vm.Heap.NewVector()
		vec, _ := vm.Heap.Vector(vecVal)
		for _, m := range matches {
			vec.Items = append(vec.Items, value.String(vm.Heap.Interner.Intern(m)))
		}
		abi.Push(vecVal)
		return 1, nil
	})

	vm.Register("regexreplace", func(abi value.Stack, argc int) (int, error) {
		if argc != 3 {
			return 0, fmt.Errorf("regexreplace requires (pattern, text, replacement)")
		}
		repl := abi.Pop()
		text := abi.Pop()
		pattern := abi.Pop()
		if !pattern.IsString() || !text.IsString() || !repl.IsString() {
			return 0, fmt.Errorf("regexreplace requires three strings")
		}
		re, err := regexp.Compile(pattern.Str.Bytes)
		if err != nil {
			return 0, fmt.Errorf("regexreplace bad pattern: %w", err)
		}
		out := re.ReplaceAllString(text.Str.Bytes, repl.Str.Bytes)
		abi.Push(value.String(vm.Heap.Interner.Intern(out)))
		return 1, nil
	})
}
