package bytecode

import "maru/internal/value"

// DebugInfo carries the source position of one instruction, kept in
// a parallel array rather than embedding position fields in every
// cell.
type DebugInfo struct {
	Line int
	File string
}

// Instr is one bytecode cell: an opcode, an inline-cache slot (FOR and
// LOOP keep their loop-variable count here, and a fused CFUNC carries
// the argument count of the CALL it replaced), and a literal
// Value (used by LIT, jumps' target ip, FNAME/GNAME's name, etc).
type Instr struct {
	Op OpCode
	Cache int32
	Lit value.Value
}

// Chunk is the flat, whole-program bytecode array: every module and
// every function compiled into one VM shares this one Code slice, and
// a subroutine Value is simply the ip its body starts at.
type Chunk struct {
	Code []Instr
	Debug []DebugInfo
}

func NewChunk() *Chunk {
	return &Chunk{}
}

// Emit appends an instruction and returns its index.
func (c *Chunk) Emit(op OpCode, lit value.Value, line int) int {
	idx := len(c.Code)
	c.Code = append(c.Code, Instr{Op: op, Lit: lit, Cache: -1})
	c.Debug = append(c.Debug, DebugInfo{Line: line})
	return idx
}

func (c *Chunk) Len() int { return len(c.Code) }

// Patch overwrites the literal of an already-emitted instruction,
// used to back-patch jump targets once they're known.
func (c *Chunk) Patch(ip int, lit value.Value) {
	c.Code[ip].Lit = lit
}

// PatchCache overwrites the inline-cache slot of an already-emitted
// instruction — used by FOR to record its declared loop-variable
// count, which the peephole pass's fixed-effect table never inspects.
func (c *Chunk) PatchCache(ip int, n int32) {
	c.Code[ip].Cache = n
}

func (c *Chunk) At(ip int) Instr { return c.Code[ip] }

// Truncate drops every instruction from ip onward; used by the
// peephole pass to remove a fused sequence's tail cells.
func (c *Chunk) Truncate(ip int) {
	c.Code = c.Code[:ip]
	c.Debug = c.Debug[:ip]
}
