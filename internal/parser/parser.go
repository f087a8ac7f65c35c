package parser

import (
	"fmt"
	"strconv"
	"strings"

	"maru/internal/lexer"
	"maru/internal/value"
)

// Parser is a single-pass recursive-descent parser; expressions are
// parsed by precedence climbing (parseBinary), the idiomatic
// equivalent of the shunting-yard algorithm — both produce the same
// left-associative, precedence-respecting tree.
type Parser struct {
	toks []lexer.Token
	pos int
	nextFID int
}

func New(toks []lexer.Token) *Parser {
	return &Parser{toks: toks}
}

func (p *Parser) Parse() ([]Node, error) {
	var stmts []Node
	for {
		for p.match(lexer.TSemi) {
		}
		if p.atEnd() {
			break
		}
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
	return stmts, nil
}

// --- token helpers ---

func (p *Parser) peek() lexer.Token { return p.toks[p.pos] }
func (p *Parser) previous() lexer.Token {
	return p.toks[p.pos-1]
}
func (p *Parser) atEnd() bool { return p.peek().Type == lexer.TEOF }

func (p *Parser) check(t lexer.TokenType) bool {
	return !p.atEnd() && p.peek().Type == t
}

func (p *Parser) advance() lexer.Token {
	if !p.atEnd() {
		p.pos++
	}
	return p.previous()
}

func (p *Parser) match(types ...lexer.TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) consume(t lexer.TokenType, msg string) (lexer.Token, error) {
	if p.check(t) {
		return p.advance(), nil
	}
	return lexer.Token{}, fmt.Errorf("line %d: %s (got %q)", p.peek().Line, msg, p.peek().Lexeme)
}

// --- statements ---

func (p *Parser) statement() (Node, error) {
	switch {
	case p.match(lexer.TIf):
		return p.ifStmt()
	case p.match(lexer.TWhile):
		return p.whileStmt()
	case p.match(lexer.TFor):
		return p.forStmt()
	case p.match(lexer.TFunction):
		return p.functionStmt()
	case p.match(lexer.TReturn):
		return p.returnStmt()
	case p.match(lexer.TBreak):
		p.match(lexer.TSemi)
		return Break{}, nil
	case p.match(lexer.TContinue):
		p.match(lexer.TSemi)
		return Continue{}, nil
	default:
		return p.exprOrAssignStmt()
	}
}

func (p *Parser) block(enders ...lexer.TokenType) ([]Node, error) {
	var stmts []Node
	for {
		for p.match(lexer.TSemi) {
		}
		if p.atEnd() {
			return nil, fmt.Errorf("line %d: unexpected end of input", p.peek().Line)
		}
		for _, e := range enders {
			if p.check(e) {
				return stmts, nil
			}
		}
		st, err := p.statement()
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, st)
	}
}

func (p *Parser) ifStmt() (Node, error) {
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	then, err := p.block(lexer.TElse, lexer.TEnd)
	if err != nil {
		return nil, err
	}
	var els []Node
	if p.match(lexer.TElse) {
		els, err = p.block(lexer.TEnd)
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.consume(lexer.TEnd, "expected 'end' to close if"); err != nil {
		return nil, err
	}
	return If{Cond: cond, Then: then, Else: els}, nil
}

func (p *Parser) whileStmt() (Node, error) {
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block(lexer.TEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.TEnd, "expected 'end' to close while"); err != nil {
		return nil, err
	}
	return While{Cond: cond, Body: body}, nil
}

func (p *Parser) forStmt() (Node, error) {
	var vars []string
	first, err := p.consume(lexer.TIdent, "expected loop variable")
	if err != nil {
		return nil, err
	}
	vars = append(vars, first.Lexeme)
	if p.match(lexer.TComma) {
		second, err := p.consume(lexer.TIdent, "expected second loop variable")
		if err != nil {
			return nil, err
		}
		vars = append(vars, second.Lexeme)
	}
	if _, err := p.consume(lexer.TIn, "expected 'in' in for loop"); err != nil {
		return nil, err
	}
	iter, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block(lexer.TEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.TEnd, "expected 'end' to close for"); err != nil {
		return nil, err
	}
	return For{Vars: vars, Iter: iter, Body: body}, nil
}

func (p *Parser) functionStmt() (Node, error) {
	fn, err := p.functionRest(true)
	if err != nil {
		return nil, err
	}
	return fn, nil
}

// functionRest parses params/body; allowName is true for `function name(..)
// ... end` statement form, false for the anonymous expression form.
func (p *Parser) functionRest(allowName bool) (Node, error) {
	name := ""
	if allowName && p.check(lexer.TIdent) {
		name = p.advance().Lexeme
	}
	if _, err := p.consume(lexer.TLParen, "expected '(' after function name"); err != nil {
		return nil, err
	}
	var params []string
	variadic := false
	for !p.check(lexer.TRParen) {
		if p.match(lexer.TDotDotDot) {
			variadic = true
			break
		}
		id, err := p.consume(lexer.TIdent, "expected parameter name")
		if err != nil {
			return nil, err
		}
		params = append(params, id.Lexeme)
		if !p.match(lexer.TComma) {
			break
		}
	}
	if _, err := p.consume(lexer.TRParen, "expected ')' after parameters"); err != nil {
		return nil, err
	}
	body, err := p.block(lexer.TEnd)
	if err != nil {
		return nil, err
	}
	if _, err := p.consume(lexer.TEnd, "expected 'end' to close function"); err != nil {
		return nil, err
	}
	p.nextFID++
	return Function{Name: name, Params: params, Variadic: variadic, Body: body, ID: p.nextFID}, nil
}

func (p *Parser) returnStmt() (Node, error) {
	if p.atEndOfStmt() {
		return Return{}, nil
	}
	vals, err := p.expressionList()
	if err != nil {
		return nil, err
	}
	return Return{Values: vals}, nil
}

func (p *Parser) atEndOfStmt() bool {
	switch p.peek().Type {
	case lexer.TEnd, lexer.TElse, lexer.TEOF, lexer.TSemi:
		return true
	}
	return false
}

func (p *Parser) expressionList() ([]Node, error) {
	var out []Node
	for {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		out = append(out, e)
		if !p.match(lexer.TComma) {
			break
		}
	}
	return out, nil
}

// exprOrAssignStmt disambiguates `target[, target...] = value[,
// value...]` from a bare expression statement by parsing an
// expression list first and checking for a following '='.
func (p *Parser) exprOrAssignStmt() (Node, error) {
	line := p.peek().Line
	first, err := p.expression()
	if err != nil {
		return nil, err
	}
	targets := []Node{first}
	for p.match(lexer.TComma) {
		n, err := p.expression()
		if err != nil {
			return nil, err
		}
		targets = append(targets, n)
	}
	if p.match(lexer.TAssign) {
		values, err := p.expressionList()
		if err != nil {
			return nil, err
		}
		p.match(lexer.TSemi)
		return Assign{Targets: targets, Values: values, Line: line}, nil
	}
	p.match(lexer.TSemi)
	if len(targets) == 1 {
		return targets[0], nil
	}
	return Multi{Values: targets}, nil
}

// --- expressions: precedence climbing ---

var binPrec = map[lexer.TokenType]int{
	lexer.TOr: 0,
	lexer.TAnd: 1,
	lexer.TEq: 2,
	lexer.TNe: 2,
	lexer.TLt: 2,
	lexer.TLe: 2,
	lexer.TGt: 2,
	lexer.TGe: 2,
	lexer.TTilde: 2,
	lexer.TPlus: 3,
	lexer.TMinus: 3,
	lexer.TDotDot: 3,
	lexer.TStar: 4,
	lexer.TSlash: 4,
	lexer.TPercent: 4,
}

func (p *Parser) expression() (Node, error) {
	return p.parseBinary(0)
}

func (p *Parser) parseBinary(minPrec int) (Node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		prec, ok := binPrec[p.peek().Type]
		if !ok || prec < minPrec {
			return left, nil
		}
		opTok := p.advance()
		right, err := p.parseBinary(prec + 1)
		if err != nil {
			return nil, err
		}
		left = Operator{Op: opTok.Lexeme, Left: left, Right: right, Line: opTok.Line}
	}
}

// parseUnary handles the prefix operators that says "bind
// tighter than any binary": `#` (count), `-` (negate), `!` (not), and
// `...` (unpack/spread).
func (p *Parser) parseUnary() (Node, error) {
	switch {
	case p.match(lexer.THash):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Opcode{Op: "#", Operand: operand}, nil
	case p.match(lexer.TMinus):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Opcode{Op: "neg", Operand: operand}, nil
	case p.match(lexer.TBang):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Opcode{Op: "not", Operand: operand}, nil
	case p.match(lexer.TDotDotDot):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Opcode{Op: "...", Operand: operand}, nil
	case p.match(lexer.TDollar):
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return Opcode{Op: "$", Operand: operand}, nil
	default:
		return p.parseCallChain()
	}
}

func (p *Parser) parseCallChain() (Node, error) {
	base, err := p.primary()
	if err != nil {
		return nil, err
	}
	var suffixes []Suffix
	for {
		switch {
		case p.match(lexer.TDot):
			id, err := p.consume(lexer.TIdent, "expected field name after '.'")
			if err != nil {
				return nil, err
			}
			suffixes = append(suffixes, FieldSuffix{Name: id.Lexeme})
		case p.match(lexer.TLBracket):
			idx, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(lexer.TRBracket, "expected ']'"); err != nil {
				return nil, err
			}
			suffixes = append(suffixes, IndexSuffix{Index: idx})
		case p.match(lexer.TLParen):
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			suffixes = append(suffixes, CallSuffix{Args: args})
		case p.match(lexer.TColon):
			id, err := p.consume(lexer.TIdent, "expected method name after ':'")
			if err != nil {
				return nil, err
			}
			if _, err := p.consume(lexer.TLParen, "expected '(' after method name"); err != nil {
				return nil, err
			}
			args, err := p.argList()
			if err != nil {
				return nil, err
			}
			suffixes = append(suffixes, MethodSuffix{Name: id.Lexeme, Args: args})
		default:
			if len(suffixes) == 0 {
				return base, nil
			}
			return CallChain{Base: base, Suffixes: suffixes}, nil
		}
	}
}

func (p *Parser) argList() ([]Node, error) {
	var args []Node
	if p.check(lexer.TRParen) {
		p.advance()
		return args, nil
	}
	for {
		a, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
		if !p.match(lexer.TComma) {
			break
		}
	}
	if _, err := p.consume(lexer.TRParen, "expected ')' after arguments"); err != nil {
		return nil, err
	}
	return args, nil
}

func (p *Parser) primary() (Node, error) {
	tok := p.peek()
	switch tok.Type {
	case lexer.TInt:
		p.advance()
		var n int64
		if strings.HasPrefix(tok.Lexeme, "0x") || strings.HasPrefix(tok.Lexeme, "0X") {
			v, err := strconv.ParseInt(tok.Lexeme[2:], 16, 64)
			if err != nil {
				return nil, err
			}
			n = v
		} else {
			v, err := strconv.ParseInt(tok.Lexeme, 10, 64)
			if err != nil {
				return nil, err
			}
			n = v
		}
		return Literal{Value: value.Int(n)}, nil
	case lexer.TFloat:
		p.advance()
		f, err := strconv.ParseFloat(tok.Lexeme, 64)
		if err != nil {
			return nil, err
		}
		return Literal{Value: value.Float(f)}, nil
	case lexer.TString:
		p.advance()
		return p.parseInterp(tok.Lexeme)
	case lexer.TTrue:
		p.advance()
		return Literal{Value: value.Bool(true)}, nil
	case lexer.TFalse:
		p.advance()
		return Literal{Value: value.Bool(false)}, nil
	case lexer.TNil:
		p.advance()
		return Literal{Value: value.Nil()}, nil
	case lexer.TIdent:
		p.advance()
		return Name{Ident: tok.Lexeme, Line: tok.Line}, nil
	case lexer.TLParen:
		p.advance()
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, err := p.consume(lexer.TRParen, "expected ')'"); err != nil {
			return nil, err
		}
		return e, nil
	case lexer.TLBracket:
		return p.vecLiteral()
	case lexer.TLBrace:
		return p.mapLiteral()
	case lexer.TFunction:
		p.advance()
		return p.functionRest(false)
	default:
		return nil, fmt.Errorf("line %d: unexpected token %q", tok.Line, tok.Lexeme)
	}
}

func (p *Parser) vecLiteral() (Node, error) {
	p.advance() // '['
	var elems []Node
	for !p.check(lexer.TRBracket) {
		e, err := p.expression()
		if err != nil {
			return nil, err
		}
		elems = append(elems, e)
		if !p.match(lexer.TComma) {
			break
		}
	}
	if _, err := p.consume(lexer.TRBracket, "expected ']'"); err != nil {
		return nil, err
	}
	return Vec{Elems: elems}, nil
}

// mapLiteral parses `{ name = 1, "complex key" = 2 }`.
func (p *Parser) mapLiteral() (Node, error) {
	p.advance() // '{'
	var keys, vals []Node
	for !p.check(lexer.TRBrace) {
		var key Node
		if p.check(lexer.TIdent) && p.peekType(1) == lexer.TAssign {
			id := p.advance()
			key = Literal{Value: value.String(&value.Str{Bytes: id.Lexeme})}
		} else {
			k, err := p.expression()
			if err != nil {
				return nil, err
			}
			key = k
		}
		if _, err := p.consume(lexer.TAssign, "expected '=' in map literal"); err != nil {
			return nil, err
		}
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
		vals = append(vals, v)
		if !p.match(lexer.TComma) {
			break
		}
	}
	if _, err := p.consume(lexer.TRBrace, "expected '}'"); err != nil {
		return nil, err
	}
	return MapLit{Keys: keys, Vals: vals}, nil
}

func (p *Parser) peekType(ahead int) lexer.TokenType {
	i := p.pos + ahead
	if i >= len(p.toks) {
		return lexer.TEOF
	}
	return p.toks[i].Type
}

// parseInterp splits a scanned string literal's raw content on
// `$name` and `$(expr)` markers into literal fragments and
// sub-expressions, the string-interpolation grammar.
func (p *Parser) parseInterp(raw string) (Node, error) {
	if !strings.ContainsRune(raw, '$') {
		return Literal{Value: value.String(&value.Str{Bytes: raw})}, nil
	}
	var parts []Node
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			parts = append(parts, Literal{Value: value.String(&value.Str{Bytes: lit.String()})})
			lit.Reset()
		}
	}
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c == '$' && i+1 < len(raw) {
			if raw[i+1] == '(' {
				depth := 1
				j := i + 2
				for j < len(raw) && depth > 0 {
					if raw[j] == '(' {
						depth++
					} else if raw[j] == ')' {
						depth--
						if depth == 0 {
							break
						}
					}
					j++
				}
				if depth != 0 {
					return nil, fmt.Errorf("unterminated $(..) interpolation")
				}
				flush()
				sub, err := parseSubExpr(raw[i+2 : j])
				if err != nil {
					return nil, err
				}
				parts = append(parts, sub)
				i = j + 1
				continue
			}
			if isAlphaStart(raw[i+1]) {
				j := i + 1
				for j < len(raw) && isIdentRune(raw[j]) {
					j++
				}
				flush()
				sub, err := parseSubExpr(raw[i+1 : j])
				if err != nil {
					return nil, err
				}
				parts = append(parts, sub)
				i = j
				continue
			}
		}
		lit.WriteByte(c)
		i++
	}
	flush()
	if len(parts) == 1 {
		if _, ok := parts[0].(Literal); ok {
			return parts[0], nil
		}
	}
	return Interp{Parts: parts}, nil
}

func isAlphaStart(c byte) bool { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentRune(c byte) bool {
	return isAlphaStart(c) || (c >= '0' && c <= '9')
}

func parseSubExpr(src string) (Node, error) {
	toks, err := lexer.New(src).Scan()
	if err != nil {
		return nil, err
	}
	sub := New(toks)
	return sub.expression()
}
