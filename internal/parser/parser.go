package parser

import (
	"fmt"

	"octet/internal/ast"
	"octet/internal/lexer"
)

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError represents a single error found during parsing.
type ParseError struct {
	Message string
	Line    int
	Column  int
}

func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, col %d: %s", e.Line, e.Column, e.Message)
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser holds the state for a single parse pass over a token stream.
type Parser struct {
	tokens []lexer.Token
	pos    int
	errors []ParseError
}

// Parse is the main entry point. It takes a token slice (as produced by
// lexer.Lex) and returns the listing plus any parse errors collected.
func Parse(tokens []lexer.Token) (*ast.Listing, []ParseError) {
	p := &Parser{tokens: tokens, pos: 0}
	listing := p.parseListing()
	return listing, p.errors
}

// ---------------------------------------------------------------------------
// Token helpers
// ---------------------------------------------------------------------------

// peek returns the current token without consuming it.
func (p *Parser) peek() lexer.Token {
	if p.pos < len(p.tokens) {
		return p.tokens[p.pos]
	}
	return lexer.Token{Type: lexer.EOF}
}

// peekAt returns the token at a given offset from the current position.
func (p *Parser) peekAt(offset int) lexer.Token {
	idx := p.pos + offset
	if idx >= 0 && idx < len(p.tokens) {
		return p.tokens[idx]
	}
	return lexer.Token{Type: lexer.EOF}
}

// advance consumes and returns the current token.
func (p *Parser) advance() lexer.Token {
	tok := p.peek()
	if tok.Type != lexer.EOF {
		p.pos++
	}
	return tok
}

// check returns true if the current token has the given type.
func (p *Parser) check(typ string) bool {
	return p.peek().Type == typ
}

// match consumes the current token if it matches any of the given types.
func (p *Parser) match(types ...string) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

// expect consumes the current token if it matches typ; otherwise it records
// an error and returns the current token WITHOUT advancing.
func (p *Parser) expect(typ string, msg string) (lexer.Token, bool) {
	if p.check(typ) {
		return p.advance(), true
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("%s (got %s %q)", msg, tok.Type, tok.Value))
	return tok, false
}

// addError appends a ParseError at the given token's location.
func (p *Parser) addError(tok lexer.Token, msg string) {
	p.errors = append(p.errors, ParseError{
		Message: msg,
		Line:    tok.Line,
		Column:  tok.Column,
	})
}

// synchronize skips to the start of the next line so one bad statement
// yields one error.
func (p *Parser) synchronize() {
	for !p.check(lexer.EOF) && !p.check(lexer.NEWLINE) {
		p.advance()
	}
	p.match(lexer.NEWLINE)
}

// endLine requires the end of a statement line.
func (p *Parser) endLine() bool {
	if p.match(lexer.NEWLINE) || p.check(lexer.EOF) {
		return true
	}
	tok := p.peek()
	p.addError(tok, fmt.Sprintf("expected end of line (got %s %q)", tok.Type, tok.Value))
	p.synchronize()
	return false
}

func pos(tok lexer.Token) ast.Position {
	return ast.Position{Line: tok.Line, Column: tok.Column}
}

// ---------------------------------------------------------------------------
// Listing and declarations
// ---------------------------------------------------------------------------

func (p *Parser) parseListing() *ast.Listing {
	listing := &ast.Listing{Pos: pos(p.peek())}
	for !p.check(lexer.EOF) {
		switch {
		case p.match(lexer.NEWLINE):
		case p.check(lexer.VAR):
			if v := p.parseVarDecl(); v != nil {
				listing.Globals = append(listing.Globals, v)
			}
		case p.check(lexer.FUNC):
			if fn := p.parseFuncDecl(); fn != nil {
				listing.Functions = append(listing.Functions, fn)
			}
		default:
			tok := p.peek()
			p.addError(tok, fmt.Sprintf("expected var or func declaration (got %s %q)", tok.Type, tok.Value))
			p.synchronize()
		}
	}
	return listing
}

// parseVarDecl parses: var <name> <type> [in <reg>]
func (p *Parser) parseVarDecl() *ast.VarDecl {
	start := p.advance()
	name, ok := p.expect(lexer.IDENT, "expected variable name")
	if !ok {
		p.synchronize()
		return nil
	}
	typ, ok := p.expect(lexer.IDENT, "expected variable type")
	if !ok {
		p.synchronize()
		return nil
	}
	v := &ast.VarDecl{Name: name.Value, Type: typ.Value, Pos: pos(start)}
	if p.match(lexer.IN) {
		r, ok := p.expect(lexer.IDENT, "expected register name after 'in'")
		if !ok {
			p.synchronize()
			return nil
		}
		v.Register = r.Value
	}
	if !p.endLine() {
		return nil
	}
	return v
}

// parseFuncDecl parses a function up to and including its 'end' line.
func (p *Parser) parseFuncDecl() *ast.FuncDecl {
	start := p.advance()
	name, ok := p.expect(lexer.IDENT, "expected function name")
	if !ok {
		p.skipFunction()
		return nil
	}
	fn := &ast.FuncDecl{Name: name.Value, Pos: pos(start)}
	if _, ok := p.expect(lexer.LPAREN, "expected '(' after function name"); !ok {
		p.skipFunction()
		return nil
	}
	if !p.check(lexer.RPAREN) {
		for {
			prm := p.parseParam()
			if prm == nil {
				p.skipFunction()
				return nil
			}
			fn.Params = append(fn.Params, prm)
			if !p.match(lexer.COMMA) {
				break
			}
		}
	}
	if _, ok := p.expect(lexer.RPAREN, "expected ')' after parameters"); !ok {
		p.skipFunction()
		return nil
	}
	if p.check(lexer.IDENT) {
		fn.Result = p.advance().Value
	}
	p.endLine()

	for !p.check(lexer.END) {
		if p.check(lexer.EOF) {
			p.addError(p.peek(), fmt.Sprintf("missing 'end' of function %s", fn.Name))
			return fn
		}
		if p.match(lexer.NEWLINE) {
			continue
		}
		if p.check(lexer.VAR) {
			if v := p.parseVarDecl(); v != nil {
				fn.Locals = append(fn.Locals, v)
			}
			continue
		}
		if s := p.parseStatement(); s != nil {
			fn.Body = append(fn.Body, s)
		}
	}
	p.advance()
	p.endLine()
	return fn
}

func (p *Parser) skipFunction() {
	for !p.check(lexer.EOF) && !p.check(lexer.END) {
		p.advance()
	}
	p.match(lexer.END)
	p.synchronize()
}

// parseParam parses: <name> <type> [in <reg> | in mem]
func (p *Parser) parseParam() *ast.Param {
	name, ok := p.expect(lexer.IDENT, "expected parameter name")
	if !ok {
		return nil
	}
	typ, ok := p.expect(lexer.IDENT, "expected parameter type")
	if !ok {
		return nil
	}
	prm := &ast.Param{Name: name.Value, Type: typ.Value, Pos: pos(name)}
	if p.match(lexer.IN) {
		if p.match(lexer.MEM) {
			prm.Memory = true
			return prm
		}
		r, ok := p.expect(lexer.IDENT, "expected register name or 'mem' after 'in'")
		if !ok {
			return nil
		}
		prm.Register = r.Value
	}
	return prm
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() ast.Stmt {
	tok := p.peek()
	var s ast.Stmt
	switch tok.Type {
	case lexer.RETURN:
		s = p.parseReturn()
	case lexer.IF:
		s = p.parseIfGoto()
	case lexer.LOOP:
		s = p.parseLoop()
	case lexer.GOTO:
		p.advance()
		label, ok := p.expect(lexer.IDENT, "expected label after 'goto'")
		if ok {
			s = &ast.GotoStmt{Label: label.Value, Pos: pos(tok)}
		}
	case lexer.IDENT:
		switch p.peekAt(1).Type {
		case lexer.COLON:
			p.advance()
			p.advance()
			s = &ast.LabelStmt{Name: tok.Value, Pos: pos(tok)}
		case lexer.LPAREN:
			if call := p.parseCall(); call != nil {
				s = &ast.CallStmt{Call: call, Pos: pos(tok)}
			}
		default:
			s = p.parseAssign()
		}
	default:
		s = p.parseAssign()
	}
	if s == nil {
		p.synchronize()
		return nil
	}
	if !p.endLine() {
		return nil
	}
	return s
}

func (p *Parser) parseReturn() ast.Stmt {
	tok := p.advance()
	r := &ast.ReturnStmt{Pos: pos(tok)}
	if !p.check(lexer.NEWLINE) && !p.check(lexer.EOF) {
		r.Value = p.parseOperand()
		if r.Value == nil {
			return nil
		}
	}
	return r
}

var comparisons = map[string]string{
	lexer.EQ:  "==",
	lexer.NEQ: "!=",
	lexer.LT:  "<",
	lexer.GT:  ">",
	lexer.LTE: "<=",
	lexer.GTE: ">=",
}

// parseIfGoto parses: if <operand> <cmp> <operand> goto <label>
func (p *Parser) parseIfGoto() ast.Stmt {
	tok := p.advance()
	left := p.parseOperand()
	if left == nil {
		return nil
	}
	op, ok := comparisons[p.peek().Type]
	if !ok {
		t := p.peek()
		p.addError(t, fmt.Sprintf("expected comparison operator (got %s %q)", t.Type, t.Value))
		return nil
	}
	p.advance()
	right := p.parseOperand()
	if right == nil {
		return nil
	}
	if _, ok := p.expect(lexer.GOTO, "expected 'goto' after condition"); !ok {
		return nil
	}
	label, ok := p.expect(lexer.IDENT, "expected label after 'goto'")
	if !ok {
		return nil
	}
	return &ast.IfGotoStmt{Left: left, Op: op, Right: right, Label: label.Value, Pos: pos(tok)}
}

// parseLoop parses: loop <counter> goto <label>
func (p *Parser) parseLoop() ast.Stmt {
	tok := p.advance()
	counter := p.parseOperand()
	if counter == nil {
		return nil
	}
	if _, ok := p.expect(lexer.GOTO, "expected 'goto' after loop counter"); !ok {
		return nil
	}
	label, ok := p.expect(lexer.IDENT, "expected label after 'goto'")
	if !ok {
		return nil
	}
	return &ast.LoopStmt{Counter: counter, Label: label.Value, Pos: pos(tok)}
}

var binaryOperators = map[string]string{
	lexer.PLUS:      "+",
	lexer.MINUS:     "-",
	lexer.AMPERSAND: "&",
	lexer.PIPE:      "|",
	lexer.CARET:     "^",
}

// parseAssign parses: <dest> = <operand> [<op> <operand>] | <dest> = <call>
func (p *Parser) parseAssign() ast.Stmt {
	start := p.peek()
	dest := p.parseOperand()
	if dest == nil {
		return nil
	}
	if _, ok := p.expect(lexer.ASSIGN, "expected '='"); !ok {
		return nil
	}
	s := &ast.AssignStmt{Dest: dest, Pos: pos(start)}
	if p.check(lexer.IDENT) && p.peekAt(1).Type == lexer.LPAREN {
		call := p.parseCall()
		if call == nil {
			return nil
		}
		s.Value = call
		return s
	}
	left := p.parseOperand()
	if left == nil {
		return nil
	}
	op, ok := binaryOperators[p.peek().Type]
	if !ok {
		s.Value = left
		return s
	}
	opTok := p.advance()
	right := p.parseOperand()
	if right == nil {
		return nil
	}
	s.Value = &ast.BinaryExpr{Op: op, Left: left, Right: right, Pos: pos(opTok)}
	return s
}

// parseCall parses: <name>(<operand>, ...)
func (p *Parser) parseCall() *ast.CallExpr {
	name := p.advance()
	p.advance()
	call := &ast.CallExpr{Name: name.Value, Pos: pos(name)}
	if p.match(lexer.RPAREN) {
		return call
	}
	for {
		arg := p.parseOperand()
		if arg == nil {
			return nil
		}
		call.Args = append(call.Args, arg)
		if !p.match(lexer.COMMA) {
			break
		}
	}
	if _, ok := p.expect(lexer.RPAREN, "expected ')' after arguments"); !ok {
		return nil
	}
	return call
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

func (p *Parser) parseOperand() ast.Operand {
	tok := p.peek()
	switch tok.Type {
	case lexer.INT:
		p.advance()
		return p.intLit(tok, false)
	case lexer.MINUS:
		p.advance()
		n, ok := p.expect(lexer.INT, "expected integer after '-'")
		if !ok {
			return nil
		}
		return p.intLit(n, true)
	case lexer.IDENT:
		p.advance()
		return &ast.Name{Name: tok.Value, Pos: pos(tok)}
	case lexer.AT:
		p.advance()
		label, ok := p.expect(lexer.IDENT, "expected label after '@'")
		if !ok {
			return nil
		}
		return &ast.AddrOf{Label: label.Value, Pos: pos(tok)}
	case lexer.PERCENT:
		p.advance()
		r, ok := p.expect(lexer.IDENT, "expected register name after '%'")
		if !ok {
			return nil
		}
		return &ast.RegRef{Register: r.Value, Pos: pos(tok)}
	case lexer.LBRACKET:
		return p.parseDeref()
	}
	p.addError(tok, fmt.Sprintf("expected operand (got %s %q)", tok.Type, tok.Value))
	return nil
}

func (p *Parser) intLit(tok lexer.Token, negative bool) ast.Operand {
	n, err := lexer.ParseInt(tok.Value)
	if err != nil {
		p.addError(tok, fmt.Sprintf("malformed integer %q", tok.Value))
		return nil
	}
	if negative {
		n = -n
	}
	return &ast.IntLit{Value: n, Pos: pos(tok)}
}

// parseDeref parses: [<pointer>] | [<pointer>+<n>] | [<pointer>-<n>]
func (p *Parser) parseDeref() ast.Operand {
	start := p.advance()
	ptr, ok := p.expect(lexer.IDENT, "expected pointer variable after '['")
	if !ok {
		return nil
	}
	d := &ast.Deref{Pointer: ptr.Value, Pos: pos(start)}
	if p.check(lexer.PLUS) || p.check(lexer.MINUS) {
		sign := p.advance()
		n, ok := p.expect(lexer.INT, "expected offset")
		if !ok {
			return nil
		}
		off, err := lexer.ParseInt(n.Value)
		if err != nil {
			p.addError(n, fmt.Sprintf("malformed offset %q", n.Value))
			return nil
		}
		if sign.Type == lexer.MINUS {
			off = -off
		}
		d.Offset = off
	}
	if _, ok := p.expect(lexer.RBRACKET, "expected ']'"); !ok {
		return nil
	}
	return d
}
