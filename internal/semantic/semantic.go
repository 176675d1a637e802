package semantic

import (
	"fmt"

	"octet/internal/ast"
	"octet/internal/codegen"
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Diagnostic severity
// ---------------------------------------------------------------------------

// Severity grades a diagnostic.
type Severity int

const (
	Error Severity = iota
	Warning
)

func (s Severity) String() string {
	switch s {
	case Error:
		return "error"
	case Warning:
		return "warning"
	default:
		return "unknown"
	}
}

// ---------------------------------------------------------------------------
// Diagnostic
// ---------------------------------------------------------------------------

// Diagnostic is one finding, positioned at the offending token.
type Diagnostic struct {
	Message  string
	Pos      ast.Position
	Severity Severity
}

func (d Diagnostic) Error() string {
	return fmt.Sprintf("line %d, col %d: %s: %s", d.Pos.Line, d.Pos.Column, d.Severity, d.Message)
}

// HasErrors reports whether diags contains an error.
func HasErrors(diags []Diagnostic) bool {
	for _, d := range diags {
		if d.Severity == Error {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Symbol
// ---------------------------------------------------------------------------

// SymbolKind tells declarations apart.
type SymbolKind int

const (
	SymVar   SymbolKind = iota // global, local or parameter
	SymFunc                    // function
	SymLabel                   // jump label
)

// Symbol is one declared name.
type Symbol struct {
	Name string
	Kind SymbolKind
	Type *codegen.Type // variables: declared type; functions: result type
	Pos  ast.Position
	Used bool

	// Function-only fields.
	Params []*codegen.Type
}

// ---------------------------------------------------------------------------
// Scope
// ---------------------------------------------------------------------------

// Scope maps names to symbols. Function scopes chain to the global one.
type Scope struct {
	parent  *Scope
	symbols map[string]*Symbol
}

func newScope(parent *Scope) *Scope {
	return &Scope{parent: parent, symbols: make(map[string]*Symbol)}
}

// define binds sym.Name in s, replacing an earlier binding.
func (s *Scope) define(sym *Symbol) {
	s.symbols[sym.Name] = sym
}

// lookupLocal searches s alone.
func (s *Scope) lookupLocal(name string) *Symbol {
	return s.symbols[name]
}

// lookup searches s and then its parents.
func (s *Scope) lookup(name string) *Symbol {
	if sym := s.symbols[name]; sym != nil {
		return sym
	}
	if s.parent != nil {
		return s.parent.lookup(name)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Analyser
// ---------------------------------------------------------------------------

// Analyzer checks one listing against a register file.
type Analyzer struct {
	diagnostics []Diagnostic
	registers   *reg.File
	scope       *Scope
	labels      map[string]*Symbol
	currentFunc *ast.FuncDecl
	result      *codegen.Type
}

// Analyze checks a listing against the register file of the target it will
// be compiled for and returns all diagnostics. The slice is empty when the
// listing can be lowered.
func Analyze(listing *ast.Listing, registers *reg.File) []Diagnostic {
	a := &Analyzer{
		registers: registers,
		scope:     newScope(nil),
	}
	a.analyzeListing(listing)
	return a.diagnostics
}

// ---- helpers ----

func (a *Analyzer) error(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Message:  msg,
		Pos:      pos,
		Severity: Error,
	})
}

func (a *Analyzer) warn(pos ast.Position, msg string) {
	a.diagnostics = append(a.diagnostics, Diagnostic{
		Message:  msg,
		Pos:      pos,
		Severity: Warning,
	})
}

func (a *Analyzer) pushScope() {
	a.scope = newScope(a.scope)
}

func (a *Analyzer) popScope() {
	a.scope = a.scope.parent
}

func (a *Analyzer) resolveType(name string, pos ast.Position) *codegen.Type {
	t, ok := codegen.TypeByName(name)
	if !ok || t.ByteCount == 0 {
		a.error(pos, fmt.Sprintf("unknown type %q", name))
		return nil
	}
	return t
}

// resolveRegister looks up a register and checks its width against t.
func (a *Analyzer) resolveRegister(name string, t *codegen.Type, pos ast.Position) reg.Register {
	r, ok := a.registers.Lookup(name)
	if !ok {
		a.error(pos, fmt.Sprintf("unknown register %q", name))
		return nil
	}
	if t != nil && r.ByteCount() != t.ByteCount {
		a.error(pos, fmt.Sprintf("register %s holds %d bytes, type %s needs %d", name, r.ByteCount(), t.Name, t.ByteCount))
		return nil
	}
	return r
}

// declare defines a variable in the current scope.
func (a *Analyzer) declare(name, typ, register string, pos ast.Position) {
	if _, ok := a.registers.Lookup(name); ok {
		a.error(pos, fmt.Sprintf("cannot use register name %q as variable name", name))
		return
	}
	if existing := a.scope.lookupLocal(name); existing != nil {
		a.error(pos, fmt.Sprintf("%q already declared at %s", name, existing.Pos))
		return
	}
	t := a.resolveType(typ, pos)
	if register != "" {
		a.resolveRegister(register, t, pos)
	}
	a.scope.define(&Symbol{Name: name, Kind: SymVar, Type: t, Pos: pos})
}

// ---------------------------------------------------------------------------
// Listing analysis
// ---------------------------------------------------------------------------

func (a *Analyzer) analyzeListing(listing *ast.Listing) {
	for _, g := range listing.Globals {
		a.declare(g.Name, g.Type, g.Register, g.Pos)
		if g.Register != "" {
			a.error(g.Pos, fmt.Sprintf("global %q cannot be pinned to a register", g.Name))
		}
	}

	// First pass: every function is callable from every other, in any order.
	for _, fn := range listing.Functions {
		if existing := a.scope.lookupLocal(fn.Name); existing != nil {
			a.error(fn.Pos, fmt.Sprintf("%q already declared at %s", fn.Name, existing.Pos))
			continue
		}
		sym := &Symbol{Name: fn.Name, Kind: SymFunc, Pos: fn.Pos, Type: codegen.VoidType}
		if fn.Result != "" {
			sym.Type = a.resolveType(fn.Result, fn.Pos)
		}
		for _, p := range fn.Params {
			t, _ := codegen.TypeByName(p.Type)
			sym.Params = append(sym.Params, t)
		}
		a.scope.define(sym)
	}

	for _, fn := range listing.Functions {
		if sym := a.scope.lookupLocal(fn.Name); sym == nil || sym.Kind != SymFunc || sym.Pos != fn.Pos {
			continue
		}
		a.analyzeFunction(fn)
	}
}

func (a *Analyzer) analyzeFunction(fn *ast.FuncDecl) {
	a.currentFunc = fn
	a.result = a.scope.lookup(fn.Name).Type
	if a.result == nil {
		a.result = codegen.VoidType
	}
	a.labels = make(map[string]*Symbol)
	a.pushScope()
	defer a.popScope()

	var taken []reg.Register
	for _, p := range fn.Params {
		a.declare(p.Name, p.Type, "", p.Pos)
		if p.Register == "" {
			continue
		}
		t, _ := codegen.TypeByName(p.Type)
		r := a.resolveRegister(p.Register, t, p.Pos)
		if r == nil {
			continue
		}
		for _, other := range taken {
			if reg.Overlaps(r, other) {
				a.error(p.Pos, fmt.Sprintf("parameter register %s overlaps %s", r, other))
			}
		}
		taken = append(taken, r)
	}
	for _, v := range fn.Locals {
		a.declare(v.Name, v.Type, v.Register, v.Pos)
	}

	for _, s := range fn.Body {
		if l, ok := s.(*ast.LabelStmt); ok {
			if existing := a.labels[l.Name]; existing != nil {
				a.error(l.Pos, fmt.Sprintf("label %q already defined at %s", l.Name, existing.Pos))
				continue
			}
			a.labels[l.Name] = &Symbol{Name: l.Name, Kind: SymLabel, Pos: l.Pos}
		}
	}
	for _, s := range fn.Body {
		a.analyzeStmt(s)
	}

	if a.result.ByteCount > 0 {
		if len(fn.Body) == 0 {
			a.warn(fn.Pos, fmt.Sprintf("function %s ends without returning a value", fn.Name))
		} else if _, ok := fn.Body[len(fn.Body)-1].(*ast.ReturnStmt); !ok {
			a.warn(fn.Pos, fmt.Sprintf("function %s ends without returning a value", fn.Name))
		}
	}
	for _, l := range a.labels {
		if !l.Used {
			a.warn(l.Pos, fmt.Sprintf("label %q is never used", l.Name))
		}
	}
	for _, v := range fn.Locals {
		if sym := a.scope.lookupLocal(v.Name); sym != nil && sym.Pos == v.Pos && !sym.Used {
			a.warn(v.Pos, fmt.Sprintf("variable %q is never used", v.Name))
		}
	}
}

// ---------------------------------------------------------------------------
// Statement analysis
// ---------------------------------------------------------------------------

func (a *Analyzer) analyzeStmt(stmt ast.Stmt) {
	switch s := stmt.(type) {
	case *ast.LabelStmt:
	case *ast.AssignStmt:
		a.analyzeAssign(s)
	case *ast.CallStmt:
		a.analyzeCall(s.Call)
	case *ast.IfGotoStmt:
		l := a.width(s.Left)
		r := a.width(s.Right)
		if l > 0 && r > 0 && l != r {
			a.error(s.Pos, fmt.Sprintf("comparison of %d-byte and %d-byte values", l, r))
		}
		a.useLabel(s.Label, s.Pos)
	case *ast.LoopStmt:
		a.assignable(s.Counter)
		if a.width(s.Counter) == 2 {
			a.error(s.Pos, "loop counter must be a byte")
		}
		a.useLabel(s.Label, s.Pos)
	case *ast.GotoStmt:
		a.useLabel(s.Label, s.Pos)
	case *ast.ReturnStmt:
		a.analyzeReturn(s)
	default:
		a.error(stmt.GetPos(), "unsupported statement")
	}
}

func (a *Analyzer) analyzeAssign(s *ast.AssignStmt) {
	a.assignable(s.Dest)
	dst := a.width(s.Dest)
	var src int
	switch v := s.Value.(type) {
	case *ast.CallExpr:
		t := a.analyzeCall(v)
		if t != nil && t.ByteCount == 0 {
			a.error(v.Pos, fmt.Sprintf("%s returns no value", v.Name))
			return
		}
		if t != nil {
			src = t.ByteCount
		}
	case *ast.BinaryExpr:
		l, r := a.width(v.Left), a.width(v.Right)
		if l > 0 && r > 0 && l != r {
			a.error(v.Pos, fmt.Sprintf("operands of %s differ in width", v.Op))
		}
		src = max(l, r)
	case ast.Operand:
		src = a.width(v)
	}
	if dst > 0 && src > 0 && dst != src {
		a.error(s.Pos, fmt.Sprintf("cannot assign a %d-byte value to a %d-byte destination", src, dst))
	}
}

func (a *Analyzer) analyzeReturn(s *ast.ReturnStmt) {
	if s.Value == nil {
		if a.result.ByteCount > 0 {
			a.error(s.Pos, fmt.Sprintf("function %s must return a %s", a.currentFunc.Name, a.result.Name))
		}
		return
	}
	w := a.width(s.Value)
	switch {
	case a.result.ByteCount == 0:
		a.error(s.Pos, fmt.Sprintf("function %s returns no value", a.currentFunc.Name))
	case w > 0 && w != a.result.ByteCount:
		a.error(s.Pos, fmt.Sprintf("returning a %d-byte value from a %s function", w, a.result.Name))
	}
}

// analyzeCall checks a call and returns the callee's result type, or nil when
// the callee is unknown.
func (a *Analyzer) analyzeCall(call *ast.CallExpr) *codegen.Type {
	sym := a.scope.lookup(call.Name)
	for _, arg := range call.Args {
		a.width(arg)
	}
	if sym == nil {
		a.error(call.Pos, fmt.Sprintf("undefined function %q", call.Name))
		return nil
	}
	if sym.Kind != SymFunc {
		a.error(call.Pos, fmt.Sprintf("%q is not a function", call.Name))
		return nil
	}
	sym.Used = true
	if len(call.Args) != len(sym.Params) {
		a.error(call.Pos, fmt.Sprintf("%s takes %d arguments, got %d", call.Name, len(sym.Params), len(call.Args)))
		return sym.Type
	}
	for i, arg := range call.Args {
		if w, p := a.width(arg), sym.Params[i]; w > 0 && p != nil && w != p.ByteCount {
			a.error(arg.GetPos(), fmt.Sprintf("argument %d of %s: %d-byte value for a %s parameter", i+1, call.Name, w, p.Name))
		}
	}
	return sym.Type
}

func (a *Analyzer) useLabel(name string, pos ast.Position) {
	l := a.labels[name]
	if l == nil {
		a.error(pos, fmt.Sprintf("undefined label %q", name))
		return
	}
	l.Used = true
}

// ---------------------------------------------------------------------------
// Operand analysis
// ---------------------------------------------------------------------------

// width resolves an operand and returns its width in bytes, or 0 when the
// width follows from the other side (integers, dereferences) or is unknown.
func (a *Analyzer) width(op ast.Operand) int {
	switch o := op.(type) {
	case *ast.IntLit:
		return 0
	case *ast.AddrOf:
		return 2
	case *ast.RegRef:
		if r := a.resolveRegister(o.Register, nil, o.Pos); r != nil {
			return r.ByteCount()
		}
	case *ast.Name:
		if t := a.variable(o.Name, o.Pos); t != nil {
			return t.ByteCount
		}
	case *ast.Deref:
		if t := a.variable(o.Pointer, o.Pos); t != nil && t.ByteCount != 2 {
			a.error(o.Pos, fmt.Sprintf("%s is not a pointer", o.Pointer))
		}
	}
	return 0
}

func (a *Analyzer) variable(name string, pos ast.Position) *codegen.Type {
	sym := a.scope.lookup(name)
	if sym == nil {
		a.error(pos, fmt.Sprintf("undefined variable %q", name))
		return nil
	}
	if sym.Kind != SymVar {
		a.error(pos, fmt.Sprintf("%q is not a variable", name))
		return nil
	}
	sym.Used = true
	return sym.Type
}

func (a *Analyzer) assignable(op ast.Operand) {
	switch o := op.(type) {
	case *ast.IntLit, *ast.AddrOf:
		a.error(op.GetPos(), fmt.Sprintf("cannot assign to %s", o))
	}
}
