// Package value implements the tagged-union Value type shared by the
// compiler, the VM, and the heap: nil, int, float, bool, interned
// string, vector, map, subroutine, coroutine, host callback, userdata,
// and (compile-time only) parser node.
package value

import (
	"fmt"
	"math"
)

// Kind tags a Value's active variant.
type Kind uint8

const (
	KNil Kind = iota
	KInt
	KFloat
	KBool
	KString
	KVector
	KMap
	KSubroutine
	KCoroutine
	KCallback
	KUserdata
	KNode // compile-time only; never observed at runtime
)

func (k Kind) String() string {
	switch k {
	case KNil:
		return "nil"
	case KInt:
		return "int"
	case KFloat:
		return "float"
	case KBool:
		return "bool"
	case KString:
		return "string"
	case KVector:
		return "vector"
	case KMap:
		return "map"
	case KSubroutine:
		return "subroutine"
	case KCoroutine:
		return "coroutine"
	case KCallback:
		return "callback"
	case KUserdata:
		return "userdata"
	case KNode:
		return "node"
	default:
		return "?"
	}
}

// Str is an interned string: equality is pointer equality. Two
// distinct *Str with equal Bytes never coexist once interned (see
// internal/heap.Interner).
type Str struct {
	Bytes string
}

// Handle is an opaque (index, generation) reference into one of the
// heap's object pools — an arena index rather than a raw pointer. The
// pool a Handle belongs to is determined by the Kind of the Value
// carrying it.
type Handle struct {
	Index uint32
	Gen uint32
}

// Callback is a host-registered native function. It receives the
// interpreter (as an opaque stack-ABI façade, see internal/host) and
// the argument count pushed above the call mark, and is expected to
// leave its return values on the stack above that mark.
type Callback func(abi Stack, argc int) (int, error)

// Stack is the minimal ABI a Callback needs to interact with the
// running VM's operand stack; internal/vm's coStack implements it.
// Kept here (rather than in internal/vm) so that Callback can be
// defined without value depending on vm.
type Stack interface {
	Push(Value)
	Pop() Value
	Pick(fromTop int) Value
	Depth() int
}

// Node is the compile-time-only payload for KNode values: an opaque
// pointer to a parser AST node, carried through Value only so the
// compiler can treat "parsed sub-expression" uniformly with runtime
// values in a handful of desugaring spots. It is never produced by
// the VM.
type Node interface{}

// Value is a tagged struct (a Kind tag plus one field per payload
// kind), not a packed union. It is POD and copied by
// assignment; Vector/Map/Coroutine/Userdata payloads are heap.Handle
// references whose lifetime is owned exclusively by the collector.
type Value struct {
	Kind Kind
	Num uint64 // int64 bits / float64 bits / bool (0 or 1)
	Str *Str
	Ref Handle
	Fn Callback
	Node Node
}

func Nil() Value { return Value{Kind: KNil} }

func Bool(b bool) Value {
	n := uint64(0)
	if b {
		n = 1
	}
	return Value{Kind: KBool, Num: n}
}

func Int(i int64) Value { return Value{Kind: KInt, Num: uint64(i)} }

func Float(f float64) Value { return Value{Kind: KFloat, Num: floatBits(f)} }

func String(s *Str) Value { return Value{Kind: KString, Str: s} }

func Vector(h Handle) Value { return Value{Kind: KVector, Ref: h} }

func Map(h Handle) Value { return Value{Kind: KMap, Ref: h} }

func Subroutine(entry int) Value { return Value{Kind: KSubroutine, Num: uint64(int64(entry))} }

func Coroutine(h Handle) Value { return Value{Kind: KCoroutine, Ref: h} }

func FromCallback(fn Callback) Value { return Value{Kind: KCallback, Fn: fn} }

func Userdata(h Handle) Value { return Value{Kind: KUserdata, Ref: h} }

func FromNode(n Node) Value { return Value{Kind: KNode, Node: n} }

func (v Value) IsNil() bool { return v.Kind == KNil }
func (v Value) IsInt() bool { return v.Kind == KInt }
func (v Value) IsFloat() bool { return v.Kind == KFloat }
func (v Value) IsNumber() bool { return v.Kind == KInt || v.Kind == KFloat }
func (v Value) IsBool() bool { return v.Kind == KBool }
func (v Value) IsString() bool { return v.Kind == KString }
func (v Value) IsVector() bool { return v.Kind == KVector }
func (v Value) IsMap() bool { return v.Kind == KMap }
func (v Value) IsCallable() bool {
	return v.Kind == KSubroutine || v.Kind == KCallback
}
func (v Value) IsCoroutine() bool { return v.Kind == KCoroutine }

func (v Value) Int() int64 { return int64(v.Num) }

func (v Value) Float() float64 {
	if v.Kind == KInt {
		return float64(int64(v.Num))
	}
	return floatFromBits(v.Num)
}

func (v Value) Bool() bool { return v.Num != 0 }

// Truthy implements the language's truthiness rule: everything is
// truthy except nil and the boolean false.
func (v Value) Truthy() bool {
	if v.Kind == KNil {
		return false
	}
	if v.Kind == KBool {
		return v.Num != 0
	}
	return true
}

func (v Value) Entry() int { return int(int64(v.Num)) }

// Equal is raw, element-less equality: containers compare by handle
// identity here. Deep/meta equality lives in internal/vm, which is the
// only layer that knows how to invoke a meta "==" handler.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KNil:
		return true
	case KInt, KFloat, KBool:
		return v.Num == o.Num
	case KString:
		return v.Str == o.Str
	case KVector, KMap, KCoroutine, KUserdata:
		return v.Ref == o.Ref
	case KSubroutine:
		return v.Num == o.Num
	case KCallback:
		return false // Go func values are not comparable
	default:
		return false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KNil:
		return "nil"
	case KInt:
		return fmt.Sprintf("%d", v.Int())
	case KFloat:
		return fmt.Sprintf("%g", v.Float())
	case KBool:
		return fmt.Sprintf("%t", v.Bool())
	case KString:
		return v.Str.Bytes
	case KVector:
		return "<vector>"
	case KMap:
		return "<map>"
	case KSubroutine:
		return fmt.Sprintf("<function@%d>", v.Entry())
	case KCoroutine:
		return "<coroutine>"
	case KCallback:
		return "<native function>"
	case KUserdata:
		return "<userdata>"
	default:
		return "<node>"
	}
}

func floatBits(f float64) uint64 { return math.Float64bits(f) }
func floatFromBits(n uint64) float64 { return math.Float64frombits(n) }

// rank orders Kinds by type first (nil < int < float < string <
// ...). Containers and callables sort after the scalars; their
// relative order only matters for map-key sorting, which never holds
// container keys in practice but must still total-order them for
// safety.
func rank(k Kind) int {
	switch k {
	case KNil:
		return 0
	case KInt:
		return 1
	case KFloat:
		return 2
	case KBool:
		return 3
	case KString:
		return 4
	case KVector:
		return 5
	case KMap:
		return 6
	case KSubroutine:
		return 7
	case KCallback:
		return 8
	case KCoroutine:
		return 9
	case KUserdata:
		return 10
	default:
		return 11
	}
}

// CompareScalar implements the total order for the scalar kinds (nil,
// int, float, bool, string). Containers compare by size and are
// handled one level up in internal/heap, which is the only layer that
// can dereference a Handle.
func CompareScalar(a, b Value) int {
	if a.Kind != b.Kind {
		ra, rb := rank(a.Kind), rank(b.Kind)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return 0
		}
	}
	switch a.Kind {
	case KNil:
		return 0
	case KInt:
		ai, bi := a.Int(), b.Int()
		switch {
		case ai < bi:
			return -1
		case ai > bi:
			return 1
		default:
			return 0
		}
	case KFloat:
		af, bf := a.Float(), b.Float()
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	case KBool:
		switch {
		case a.Num < b.Num:
			return -1
		case a.Num > b.Num:
			return 1
		default:
			return 0
		}
	case KString:
		if a.Str == b.Str {
			return 0
		}
		if a.Str.Bytes < b.Str.Bytes {
			return -1
		}
		return 1
	default:
		return 0
	}
}
