package compiler

import (
	"maru/internal/bytecode"
	"maru/internal/value"
)

// item is one pending output instruction produced by the elision
// stage, tagged with the original indices it stands in for so that
// jump-target literals (set during emission against the unfused
// index space) can be remapped afterward. Original indices that never
// appear in any item's origs (a collapsed MARK or LIMIT cell) are
// handled by peephole's forward-fill, not by this struct.
type item struct {
	instr bytecode.Instr
	dbg bytecode.DebugInfo
	origs []int
}

// effect gives the fixed net operand-stack delta of an opcode that is
// allowed to appear inside an elidable MARK…LIMIT span: every opcode
// here has a statically known, input-independent stack effect. Any
// opcode not listed (CALL, the jump family, loop control, YIELD,
// RESUME, UNPACK, CLEAN, MARK, LIMIT, …) is excluded from elision, so
// its span is left exactly as emitted.
var effect = map[bytecode.OpCode]int{
	bytecode.LIT: 1, bytecode.FIND: 0, bytecode.GET: -1, bytecode.SET: -2,
	bytecode.ASSIGNL: -1, bytecode.NEG: 0, bytecode.NOT: 0, bytecode.COUNT: 0,
	bytecode.ADD: -1, bytecode.SUB: -1, bytecode.MUL: -1, bytecode.DIV: -1,
	bytecode.MOD: -1, bytecode.EQ: -1, bytecode.NE: -1, bytecode.LT: -1,
	bytecode.LTE: -1, bytecode.GT: -1, bytecode.GTE: -1, bytecode.CONCAT: -1,
	bytecode.VECTOR: 1, bytecode.VPUSH: -1, bytecode.MAPNEW: 1,
	bytecode.COPY: 1, bytecode.SHUNT: -1, bytecode.SHIFT: 1, bytecode.DROP: -1,
}

// peephole runs the elision stage (collapsing MARK…LIMIT envelopes
// that wrap a span of fixed-effect opcodes down to their bare
// content, since the envelope exists so results can be "reconciled",
// not as permanent overhead —) followed by the named fusion
// stage (explicit rewrite list), rewriting every
// jump-carrying opcode's target at each stage boundary.
func peephole(c *bytecode.Chunk) {
	items, _ := parseRun(c.Code, c.Debug, 0, len(c.Code))
	newCode := make([]bytecode.Instr, 0, len(items))
	newDebug := make([]bytecode.DebugInfo, 0, len(items))
	origToNew := make(map[int]int, len(c.Code))
	for _, it := range items {
		idx := len(newCode)
		newCode = append(newCode, it.instr)
		newDebug = append(newDebug, it.dbg)
		for _, o := range it.origs {
			origToNew[o] = idx
		}
	}
	fillGaps(origToNew, len(newCode), len(c.Code))
	remapJumps(newCode, func(o int) int { return origToNew[o] })

	code2, debug2 := fuse(newCode, newDebug)
	c.Code = code2
	c.Debug = debug2
}

// fillGaps maps every original index in [0,oldLen) that no surviving
// item claimed to the nearest surviving index at or after it — a
// collapsed MARK/LIMIT cell redirects to whatever now occupies the
// position right after it.
func fillGaps(origToNew map[int]int, newLen, oldLen int) {
	last := newLen
	for o := oldLen - 1; o >= 0; o-- {
		if n, ok := origToNew[o]; ok {
			last = n
		} else {
			origToNew[o] = last
		}
	}
}

func isJump(op bytecode.OpCode) bool {
	switch op {
	case bytecode.JMP, bytecode.JFALSE, bytecode.JTRUE, bytecode.AND, bytecode.OR,
		bytecode.FOR, bytecode.LOOP:
		return true
	}
	return false
}

func remapJumps(code []bytecode.Instr, remap func(int) int) {
	for i := range code {
		if isJump(code[i].Op) {
			code[i].Lit = value.Int(int64(remap(int(code[i].Lit.Int()))))
		}
	}
}

// parseRun walks code[pos:end], recursing into nested MARK…LIMIT spans
// (via parseSpan) and passing everything else through as a leaf item.
func parseRun(code []bytecode.Instr, debug []bytecode.DebugInfo, pos, end int) ([]item, int) {
	var out []item
	for pos < end {
		if code[pos].Op == bytecode.MARK {
			sub, next := parseSpan(code, debug, pos)
			out = append(out, sub...)
			pos = next
			continue
		}
		out = append(out, item{instr: code[pos], dbg: debug[pos], origs: []int{pos}})
		pos++
	}
	return out, pos
}

// parseSpan assumes code[pos] is a MARK and consumes through its
// matching LIMIT (a raw LIMIT is never seen here except the one
// belonging to this MARK, since every nested MARK is fully consumed,
// LIMIT included, by the recursive parseSpan call that handles it).
func parseSpan(code []bytecode.Instr, debug []bytecode.DebugInfo, pos int) ([]item, int) {
	cur := pos + 1
	var inner []item
	for code[cur].Op != bytecode.LIMIT {
		if code[cur].Op == bytecode.MARK {
			sub, next := parseSpan(code, debug, cur)
			inner = append(inner, sub...)
			cur = next
			continue
		}
		inner = append(inner, item{instr: code[cur], dbg: debug[cur], origs: []int{cur}})
		cur++
	}
	limitOrig := cur
	want := int(code[limitOrig].Lit.Int())
	limitDbg := debug[limitOrig]
	cur++

	collapsible := want >= 0
	net := 0
	for _, it := range inner {
		eff, ok := effect[it.instr.Op]
		if !ok {
			collapsible = false
			break
		}
		net += eff
	}

	if collapsible && net >= want {
		for extra := net - want; extra > 0; extra-- {
			inner = append(inner, item{instr: bytecode.Instr{Op: bytecode.DROP, Cache: -1}, dbg: limitDbg})
		}
		return inner, cur
	}

	// not collapsible: reconstruct MARK, inner content, LIMIT verbatim
	out := make([]item, 0, len(inner)+2)
	out = append(out, item{instr: code[pos], dbg: debug[pos], origs: []int{pos}})
	out = append(out, inner...)
	out = append(out, item{instr: code[limitOrig], dbg: limitDbg, origs: []int{limitOrig}})
	return out, cur
}

// fuse runs the named peephole rewrites of over the
// elision stage's output. It scans left to right, consulting the
// already-emitted tail (dst) for the one 4-cell rule (compound
// update) and the upcoming cells (src) for the 2-cell rules.
//
// ASSIGNP and UPDATE cannot replicate the exact cell counts design
// names (a single Instr cell holds one opcode, one cache slot, and
// one literal Value — it cannot carry both a name and an independent
// constant). Both are implemented as the closest 2-cell equivalent.
func fuse(src []bytecode.Instr, srcDebug []bytecode.DebugInfo) ([]bytecode.Instr, []bytecode.DebugInfo) {
	var dst []bytecode.Instr
	var dbg []bytecode.DebugInfo
	origToNew := make(map[int]int, len(src))
	i := 0
	for i < len(src) {
		if src[i].Op == bytecode.LIT && i+1 < len(src) && src[i+1].Op == bytecode.ASSIGNL {
			origToNew[i] = len(dst)
			dst = append(dst, src[i])
			dbg = append(dbg, srcDebug[i])
			origToNew[i+1] = len(dst)
			dst = append(dst, bytecode.Instr{Op: bytecode.ASSIGNP, Cache: -1, Lit: src[i+1].Lit})
			dbg = append(dbg, srcDebug[i+1])
			i += 2
			continue
		}
		if src[i].Op == bytecode.LIT && isNumeric(src[i].Lit) && i+1 < len(src) && src[i+1].Op == bytecode.NEG {
			origToNew[i] = len(dst)
			origToNew[i+1] = len(dst)
			dst = append(dst, bytecode.Instr{Op: bytecode.LIT, Cache: -1, Lit: negate(src[i].Lit)})
			dbg = append(dbg, srcDebug[i])
			i += 2
			continue
		}
		if src[i].Op == bytecode.LIT && i+1 < len(src) && (src[i+1].Op == bytecode.ADD || src[i+1].Op == bytecode.MUL) {
			op := bytecode.ADD_LIT
			if src[i+1].Op == bytecode.MUL {
				op = bytecode.MUL_LIT
			}
			origToNew[i] = len(dst)
			origToNew[i+1] = len(dst)
			dst = append(dst, bytecode.Instr{Op: op, Cache: -1, Lit: src[i].Lit})
			dbg = append(dbg, srcDebug[i])
			i += 2

			// compound update: FNAME(name), ADD_LIT(const), LIT(name), ASSIGNL(name)
			if op == bytecode.ADD_LIT && len(dst) >= 2 && dst[len(dst)-2].Op == bytecode.FNAME &&
				i+1 < len(src) && src[i].Op == bytecode.LIT && src[i+1].Op == bytecode.ASSIGNL &&
				sameName(dst[len(dst)-2].Lit, src[i].Lit) && sameName(dst[len(dst)-2].Lit, src[i+1].Lit) {
				name := dst[len(dst)-2].Lit
				addLit := dst[len(dst)-1]
				dst = dst[:len(dst)-2]
				dbg = dbg[:len(dbg)-2]
				dst = append(dst, addLit)
				dbg = append(dbg, srcDebug[i])
				origToNew[i] = len(dst) - 1
				origToNew[i+1] = len(dst)
				dst = append(dst, bytecode.Instr{Op: bytecode.UPDATE, Cache: -1, Lit: name})
				dbg = append(dbg, srcDebug[i+1])
				i += 2
			}
			continue
		}
		if src[i].Op == bytecode.LIT && i+1 < len(src) && (src[i+1].Op == bytecode.FIND || src[i+1].Op == bytecode.GET) {
			op := bytecode.FNAME
			if src[i+1].Op == bytecode.GET {
				op = bytecode.GNAME
			}
			origToNew[i] = len(dst)
			origToNew[i+1] = len(dst)
			dst = append(dst, bytecode.Instr{Op: op, Cache: -1, Lit: src[i].Lit})
			dbg = append(dbg, srcDebug[i])
			i += 2
			continue
		}
		if src[i].Op == bytecode.FNAME && i+1 < len(src) && src[i+1].Op == bytecode.CALL {
			origToNew[i] = len(dst)
			origToNew[i+1] = len(dst)
			dst = append(dst, bytecode.Instr{Op: bytecode.CFUNC, Cache: int32(src[i+1].Lit.Int()), Lit: src[i].Lit})
			dbg = append(dbg, srcDebug[i])
			i += 2
			continue
		}
		origToNew[i] = len(dst)
		dst = append(dst, src[i])
		dbg = append(dbg, srcDebug[i])
		i++
	}
	fillGaps(origToNew, len(dst), len(src))
	remapJumps(dst, func(o int) int { return origToNew[o] })
	return dst, dbg
}

func isNumeric(v value.Value) bool { return v.IsInt() || v.IsFloat() }

func negate(v value.Value) value.Value {
	if v.IsInt() {
		return value.Int(-v.Int())
	}
	return value.Float(-v.Float())
}

func sameName(a, b value.Value) bool {
	return a.IsString() && b.IsString() && a.Str == b.Str
}
