// Package compiler lowers the parser's AST into the flat bytecode
// array of internal/bytecode in a single pass: no separate
// optimization IR, a MARK…LIMIT envelope around every node, and a
// peephole pass over the finished array. One Compiler walks
// statements and expressions directly into a shared Chunk, with small
// per-construct compile* methods.
package compiler

import (
	"fmt"

	"maru/internal/bytecode"
	"maru/internal/heap"
	"maru/internal/parser"
	"maru/internal/program"
	"maru/internal/value"
)

// All is the list-form want: "leave every value produced, however
// many there are" — passed to compileNode as the LIMIT operand.
const All = -1

type Compiler struct {
	prog *program.Program
	chunk *bytecode.Chunk
	interner *heap.Interner
	scopePath []int
	funcID int // id of the function currently being compiled, 0 at module top level
}

func New(interner *heap.Interner) *Compiler {
	p := program.New()
	return &Compiler{prog: p, chunk: p.Chunk, interner: interner}
}

// CompileModules compiles each module's statement list in turn,
// appending to one shared Chunk, and returns the finished Program
// after running the peephole pass over the whole array.
func (c *Compiler) CompileModules(names []string, modules [][]parser.Node) (*program.Program, error) {
	for i, stmts := range modules {
		entry := c.chunk.Len()
		c.prog.ModuleEntries = append(c.prog.ModuleEntries, entry)
		name := ""
		if i < len(names) {
			name = names[i]
		}
		c.prog.ModuleNames = append(c.prog.ModuleNames, name)
		c.scopePath = nil
		c.funcID = 0
		for _, s := range stmts {
			if err := c.compileStmt(s); err != nil {
				return nil, err
			}
		}
		c.emit(bytecode.STOP, value.Nil(), 0)
	}
	peephole(c.chunk)
	return c.prog, nil
}

func (c *Compiler) emit(op bytecode.OpCode, lit value.Value, line int) int {
	return c.chunk.Emit(op, lit, line)
}

func (c *Compiler) name(s string) *value.Str {
	return c.interner.Intern(s)
}

func lineOf(n parser.Node) int {
	switch v := n.(type) {
	case parser.Name:
		return v.Line
	case parser.Operator:
		return v.Line
	case parser.Assign:
		return v.Line
	}
	return 0
}

// ---- statements ----

func (c *Compiler) compileStmt(n parser.Node) error {
	switch s := n.(type) {
	case parser.If:
		return c.compileIf(s)
	case parser.While:
		return c.compileWhile(s)
	case parser.For:
		return c.compileFor(s)
	case parser.Function:
		if s.Name == "" {
			return fmt.Errorf("function statement requires a name")
		}
		if err := c.compileFunctionLiteral(s); err != nil {
			return err
		}
		return c.compileAssignTo(parser.Name{Ident: s.Name}, 0)
	case parser.Return:
		return c.compileReturn(s)
	case parser.Break:
		c.emit(bytecode.BREAK, value.Nil(), 0)
		return nil
	case parser.Continue:
		c.emit(bytecode.CONTINUE, value.Nil(), 0)
		return nil
	case parser.Assign:
		return c.compileAssign(s)
	default:
		// bare expression statement: evaluate and discard every value
		return c.compileNode(n, 0)
	}
}

func (c *Compiler) compileIf(s parser.If) error {
	if err := c.compileNode(s.Cond, 1); err != nil {
		return err
	}
	jf := c.emit(bytecode.JFALSE, value.Nil(), 0)
	for _, st := range s.Then {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	if len(s.Else) == 0 {
		c.chunk.Patch(jf, value.Int(int64(c.chunk.Len())))
		return nil
	}
	jEnd := c.emit(bytecode.JMP, value.Nil(), 0)
	c.chunk.Patch(jf, value.Int(int64(c.chunk.Len())))
	for _, st := range s.Else {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.chunk.Patch(jEnd, value.Int(int64(c.chunk.Len())))
	return nil
}

func (c *Compiler) compileWhile(s parser.While) error {
	top := c.chunk.Len()
	if err := c.compileNode(s.Cond, 1); err != nil {
		return err
	}
	jf := c.emit(bytecode.JFALSE, value.Nil(), 0)
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.emit(bytecode.JMP, value.Int(int64(top)), 0)
	c.chunk.Patch(jf, value.Int(int64(c.chunk.Len())))
	return nil
}

// compileFor lowers the `for [k,]v in iter ... end` sugar to the
// FOR/LOOP/UNLOOP triple: FOR initializes the loop record and either
// falls into the body or jumps to UNLOOP, which pops that record
// again; LOOP re-enters
// the body or falls through to UNLOOP; BREAK/CONTINUE consult the
// runtime loop stack directly and carry no literal operand.
func (c *Compiler) compileFor(s parser.For) error {
	if err := c.compileNode(s.Iter, 1); err != nil {
		return err
	}
	forIP := c.emit(bytecode.FOR, value.Nil(), 0)
	c.chunk.PatchCache(forIP, int32(len(s.Vars)))
	bodyIP := c.chunk.Len()
	if len(s.Vars) == 2 {
		c.emit(bytecode.ASSIGNL, value.String(c.name(s.Vars[1])), 0)
		c.emit(bytecode.ASSIGNL, value.String(c.name(s.Vars[0])), 0)
	} else if len(s.Vars) == 1 {
		c.emit(bytecode.ASSIGNL, value.String(c.name(s.Vars[0])), 0)
	}
	for _, st := range s.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	loopIP := c.emit(bytecode.LOOP, value.Int(int64(bodyIP)), 0)
	c.chunk.PatchCache(loopIP, int32(len(s.Vars)))
	unloopIP := c.emit(bytecode.UNLOOP, value.Nil(), 0)
	c.chunk.Patch(forIP, value.Int(int64(unloopIP)))
	return nil
}

func (c *Compiler) compileReturn(s parser.Return) error {
	if err := c.compileList(s.Values, All); err != nil {
		return err
	}
	c.emit(bytecode.RETURN, value.Nil(), 0)
	return nil
}

// compileAssign lowers `targets = values`: values are reconciled to
// len(targets) first, then bound right-to-left so the
// last target receives the top-of-stack value.
func (c *Compiler) compileAssign(s parser.Assign) error {
	want := len(s.Targets)
	if err := c.compileList(s.Values, want); err != nil {
		return err
	}
	for i := len(s.Targets) - 1; i >= 0; i-- {
		if err := c.compileAssignTo(s.Targets[i], 0); err != nil {
			return err
		}
	}
	return nil
}

// compileAssignTo consumes one value already on top of the operand
// stack and binds it to target, which is either a bare Name (a local
// binding) or a CallChain ending in a field/index suffix (a container
// SET) or `global.name` (the global map). For a container target the
// value is shunted aside while the container and key are pushed, then
// shifted back on top through an empty MARK (SHIFT inserts at the
// innermost mark) so SET sees container, key, value; the container SET
// leaves behind is dropped.
func (c *Compiler) compileAssignTo(target parser.Node, _ int) error {
	switch t := target.(type) {
	case parser.Name:
		c.emit(bytecode.ASSIGNL, value.String(c.name(t.Ident)), t.Line)
		return nil
	case parser.CallChain:
		if len(t.Suffixes) == 0 {
			if nm, ok := t.Base.(parser.Name); ok {
				c.emit(bytecode.ASSIGNL, value.String(c.name(nm.Ident)), nm.Line)
				return nil
			}
			return fmt.Errorf("invalid assignment target")
		}
		last := t.Suffixes[len(t.Suffixes)-1]
		head := parser.CallChain{Base: t.Base, Suffixes: t.Suffixes[:len(t.Suffixes)-1]}
		switch suf := last.(type) {
		case parser.FieldSuffix:
			c.emit(bytecode.SHUNT, value.Nil(), 0)
			if err := c.compileNode(head, 1); err != nil {
				return err
			}
			c.emit(bytecode.LIT, value.String(c.name(suf.Name)), 0)
			c.emit(bytecode.MARK, value.Nil(), 0)
			c.emit(bytecode.SHIFT, value.Nil(), 0)
			c.emit(bytecode.LIMIT, value.Int(All), 0)
			c.emit(bytecode.SET, value.Nil(), 0)
			c.emit(bytecode.DROP, value.Nil(), 0)
			return nil
		case parser.IndexSuffix:
			c.emit(bytecode.SHUNT, value.Nil(), 0)
			if err := c.compileNode(head, 1); err != nil {
				return err
			}
			if err := c.compileNode(suf.Index, 1); err != nil {
				return err
			}
			c.emit(bytecode.MARK, value.Nil(), 0)
			c.emit(bytecode.SHIFT, value.Nil(), 0)
			c.emit(bytecode.LIMIT, value.Int(All), 0)
			c.emit(bytecode.SET, value.Nil(), 0)
			c.emit(bytecode.DROP, value.Nil(), 0)
			return nil
		default:
			return fmt.Errorf("invalid assignment target")
		}
	default:
		return fmt.Errorf("invalid assignment target")
	}
}

// compileList compiles a value list for a context that wants exactly
// `want` values overall (All = leave whatever the list naturally
// produces). Every element but the last is forced to exactly one
// value; the last element expands when it is itself multi-valued
// (a call or a `...x` spread), matching ordinary multi-return
// reconciliation.
func (c *Compiler) compileList(nodes []parser.Node, want int) error {
	if len(nodes) == 0 {
		if want > 0 {
			c.emit(bytecode.MARK, value.Nil(), 0)
			c.emit(bytecode.LIMIT, value.Int(int64(want)), 0)
		}
		return nil
	}
	c.emit(bytecode.MARK, value.Nil(), 0)
	for i, n := range nodes {
		last := i == len(nodes)-1
		if last {
			if err := c.produce(n); err != nil {
				return err
			}
		} else {
			if err := c.produceOne(n); err != nil {
				return err
			}
		}
	}
	c.emit(bytecode.LIMIT, value.Int(int64(want)), 0)
	return nil
}

// compileNode is the MARK…LIMIT envelope: every AST node is compiled
// between a MARK and a LIMIT(want).
func (c *Compiler) compileNode(n parser.Node, want int) error {
	c.emit(bytecode.MARK, value.Nil(), lineOf(n))
	if err := c.produce(n); err != nil {
		return err
	}
	c.emit(bytecode.LIMIT, value.Int(int64(want)), 0)
	return nil
}

// produceOne forces a single node to exactly one value without an
// outer MARK of its own being visible to callers (it still uses one
// internally via compileNode).
func (c *Compiler) produceOne(n parser.Node) error {
	return c.compileNode(n, 1)
}

// produce emits whatever values n naturally produces, with no
// enclosing MARK/LIMIT — used inside compileNode/compileList, which
// supply the envelope themselves.
func (c *Compiler) produce(n parser.Node) error {
	switch node := n.(type) {
	case parser.Literal:
		lit := node.Value
		if lit.IsString() && lit.Str != nil {
			lit = value.String(c.name(lit.Str.Bytes))
		}
		c.emit(bytecode.LIT, lit, 0)
		return nil
	case parser.Name:
		c.emit(bytecode.LIT, value.String(c.name(node.Ident)), node.Line)
		c.emit(bytecode.FIND, value.Nil(), node.Line)
		return nil
	case parser.Opcode:
		return c.produceOpcode(node)
	case parser.Operator:
		return c.produceOperator(node)
	case parser.CallChain:
		return c.produceCallChain(node)
	case parser.Vec:
		return c.produceVec(node)
	case parser.MapLit:
		return c.produceMap(node)
	case parser.Interp:
		return c.produceInterp(node)
	case parser.Function:
		return c.compileFunctionLiteral(node)
	case parser.Multi:
		return c.compileList(node.Values, All)
	default:
		return fmt.Errorf("compiler: cannot produce a value for %T", n)
	}
}

func (c *Compiler) produceOpcode(node parser.Opcode) error {
	switch node.Op {
	case "neg":
		if err := c.produceOne(node.Operand); err != nil {
			return err
		}
		c.emit(bytecode.NEG, value.Nil(), 0)
	case "not":
		if err := c.produceOne(node.Operand); err != nil {
			return err
		}
		c.emit(bytecode.NOT, value.Nil(), 0)
	case "#":
		if err := c.produceOne(node.Operand); err != nil {
			return err
		}
		c.emit(bytecode.COUNT, value.Nil(), 0)
	case "$":
		c.emit(bytecode.LIT, value.String(c.name("")), 0)
		if err := c.produceOne(node.Operand); err != nil {
			return err
		}
		c.emit(bytecode.CONCAT, value.Nil(), 0)
	case "...":
		if err := c.produceOne(node.Operand); err != nil {
			return err
		}
		c.emit(bytecode.UNPACK, value.Nil(), 0)
	default:
		return fmt.Errorf("compiler: unknown unary opcode %q", node.Op)
	}
	return nil
}

var binOp = map[string]bytecode.OpCode{
	"+": bytecode.ADD, "-": bytecode.SUB, "*": bytecode.MUL,
	"/": bytecode.DIV, "%": bytecode.MOD, "..": bytecode.CONCAT,
	"==": bytecode.EQ, "!=": bytecode.NE, "<": bytecode.LT,
	"<=": bytecode.LTE, ">": bytecode.GT, ">=": bytecode.GTE,
	"~": bytecode.MATCH,
}

func (c *Compiler) produceOperator(node parser.Operator) error {
	if node.Left == nil {
		return c.produceOpcode(parser.Opcode{Op: node.Op, Operand: node.Right})
	}
	switch node.Op {
	case "and":
		if err := c.produceOne(node.Left); err != nil {
			return err
		}
		j := c.emit(bytecode.AND, value.Nil(), node.Line)
		if err := c.produceOne(node.Right); err != nil {
			return err
		}
		c.chunk.Patch(j, value.Int(int64(c.chunk.Len())))
		return nil
	case "or":
		if err := c.produceOne(node.Left); err != nil {
			return err
		}
		j := c.emit(bytecode.OR, value.Nil(), node.Line)
		if err := c.produceOne(node.Right); err != nil {
			return err
		}
		c.chunk.Patch(j, value.Int(int64(c.chunk.Len())))
		return nil
	}
	op, ok := binOp[node.Op]
	if !ok {
		return fmt.Errorf("compiler: unknown operator %q", node.Op)
	}
	if err := c.produceOne(node.Left); err != nil {
		return err
	}
	if err := c.produceOne(node.Right); err != nil {
		return err
	}
	c.emit(op, value.Nil(), node.Line)
	return nil
}

// produceCallChain implements the call protocol worked out in
// DESIGN.md: a CallSuffix's callee sits at the bottom of its argument
// region (pushed before the args), so CALL can find it at
// top-argc-1 with no extra bookkeeping. A MethodSuffix additionally
// uses SHUNT/SHIFT to move the looked-up method ahead of the receiver
// it just copied, so the receiver lands as argument zero.
func (c *Compiler) produceCallChain(node parser.CallChain) error {
	if err := c.produceOne(node.Base); err != nil {
		return err
	}
	for i, suf := range node.Suffixes {
		last := i == len(node.Suffixes)-1
		switch s := suf.(type) {
		case parser.FieldSuffix:
			c.emit(bytecode.LIT, value.String(c.name(s.Name)), 0)
			c.emit(bytecode.GET, value.Nil(), 0)
		case parser.IndexSuffix:
			if err := c.produceOne(s.Index); err != nil {
				return err
			}
			c.emit(bytecode.GET, value.Nil(), 0)
		case parser.CallSuffix:
			want := 1
			if last {
				want = All
			}
			if err := c.compileCallArgs(s.Args, want); err != nil {
				return err
			}
		case parser.MethodSuffix:
			want := 1
			if last {
				want = All
			}
			if err := c.compileMethodCall(s, want); err != nil {
				return err
			}
		}
	}
	return nil
}

// compileCallArgs assumes the callee is already the sole value in the
// active region (the top of the operand stack). It wraps the argument
// push and CALL in their own MARK…LIMIT(want) so that intermediate
// links in a call chain are forced to exactly one value while the
// chain's final call is left to the enclosing envelope.
func (c *Compiler) compileCallArgs(args []parser.Node, want int) error {
	c.emit(bytecode.MARK, value.Nil(), 0)
	argc := 0
	for _, a := range args {
		if op, ok := a.(parser.Opcode); ok && op.Op == "..." {
			if err := c.produceOne(op.Operand); err != nil {
				return err
			}
			c.emit(bytecode.UNPACK, value.Nil(), 0)
			argc = -1 // variable; CALL will use runtime depth instead
			continue
		}
		if err := c.produceOne(a); err != nil {
			return err
		}
		if argc >= 0 {
			argc++
		}
	}
	c.emit(bytecode.CALL, value.Int(int64(argc)), 0)
	c.emit(bytecode.LIMIT, value.Int(int64(want)), 0)
	return nil
}

func (c *Compiler) compileMethodCall(s parser.MethodSuffix, want int) error {
	c.emit(bytecode.COPY, value.Nil(), 0)
	c.emit(bytecode.SHUNT, value.Nil(), 0)
	c.emit(bytecode.LIT, value.String(c.name(s.Name)), 0)
	c.emit(bytecode.GET, value.Nil(), 0)
	c.emit(bytecode.MARK, value.Nil(), 0)
	c.emit(bytecode.SHIFT, value.Nil(), 0)
	argc := 1 // the receiver
	for _, a := range s.Args {
		if op, ok := a.(parser.Opcode); ok && op.Op == "..." {
			if err := c.produceOne(op.Operand); err != nil {
				return err
			}
			c.emit(bytecode.UNPACK, value.Nil(), 0)
			argc = -1
			continue
		}
		if err := c.produceOne(a); err != nil {
			return err
		}
		if argc >= 0 {
			argc++
		}
	}
	c.emit(bytecode.CALL, value.Int(int64(argc)), 0)
	c.emit(bytecode.LIMIT, value.Int(int64(want)), 0)
	return nil
}

// produceVec builds a vector value with VECTOR and VPUSH ,
// merging any `...x` spread element in with UNPACK: popping the
// spread vector and folding its elements into the vector under
// construction, which is exposed just beneath it on the stack.
func (c *Compiler) produceVec(node parser.Vec) error {
	c.emit(bytecode.VECTOR, value.Nil(), 0)
	for _, e := range node.Elems {
		if op, ok := e.(parser.Opcode); ok && op.Op == "..." {
			if err := c.produceOne(op.Operand); err != nil {
				return err
			}
			c.emit(bytecode.UNPACK, value.Nil(), 0)
			continue
		}
		if err := c.produceOne(e); err != nil {
			return err
		}
		c.emit(bytecode.VPUSH, value.Nil(), 0)
	}
	return nil
}

func (c *Compiler) produceMap(node parser.MapLit) error {
	c.emit(bytecode.MAPNEW, value.Nil(), 0)
	for i := range node.Keys {
		if err := c.produceOne(node.Keys[i]); err != nil {
			return err
		}
		if err := c.produceOne(node.Vals[i]); err != nil {
			return err
		}
		c.emit(bytecode.SET, value.Nil(), 0)
	}
	return nil
}

// produceInterp folds an interpolated string's parts with CONCAT; a
// non-literal part is coerced to its string form the same way the
// `$expr` unary operator is (CONCAT itself always stringifies).
func (c *Compiler) produceInterp(node parser.Interp) error {
	if len(node.Parts) == 0 {
		c.emit(bytecode.LIT, value.String(c.name("")), 0)
		return nil
	}
	if err := c.produceOne(node.Parts[0]); err != nil {
		return err
	}
	for _, p := range node.Parts[1:] {
		if err := c.produceOne(p); err != nil {
			return err
		}
		c.emit(bytecode.CONCAT, value.Nil(), 0)
	}
	return nil
}

// compileFunctionLiteral emits a JMP over the function body, then the
// body itself prefixed by a PID instruction carrying the function's
// scope path, then pushes the Subroutine value pointing at the
// body's entry ip. Named parameters and the variadic flag are
// recorded in the Program's side table for CALL to bind.
func (c *Compiler) compileFunctionLiteral(fn parser.Function) error {
	skip := c.emit(bytecode.JMP, value.Nil(), 0)
	entry := c.chunk.Len()

	outerPath, outerID := c.scopePath, c.funcID
	c.scopePath = append(append([]int{}, outerPath...), fn.ID)
	c.funcID = fn.ID

	pathCopy := make([]int, len(c.scopePath))
	copy(pathCopy, c.scopePath)
	c.emit(bytecode.PID, value.FromNode(pathCopy), 0)

	c.prog.Funcs[entry] = program.FuncInfo{Params: fn.Params, Variadic: fn.Variadic}

	for _, st := range fn.Body {
		if err := c.compileStmt(st); err != nil {
			return err
		}
	}
	c.emit(bytecode.CLEAN, value.Nil(), 0)
	c.emit(bytecode.RETURN, value.Nil(), 0)

	c.scopePath, c.funcID = outerPath, outerID
	c.chunk.Patch(skip, value.Int(int64(c.chunk.Len())))
	c.emit(bytecode.LIT, value.Subroutine(entry), 0)
	return nil
}
