package codegen

import (
	"fmt"

	"octet/internal/ast"
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Lowerer: translates a parsed listing into IR functions
// ---------------------------------------------------------------------------

// Lowerer walks a listing and builds Functions through the instruction
// factories, so usages and anchor origins are recorded as it goes.
type Lowerer struct {
	arch      *Architecture
	program   *Program
	functions map[string]*Function
	globals   map[string]*Variable

	// Per-function state.
	fn     *Function
	vars   map[string]*Variable
	labels map[string]*Anchor

	err error
}

// Lower translates a listing into a Program for arch. Names are expected to
// have been checked; the first unresolvable one is returned as an error.
func Lower(listing *ast.Listing, arch *Architecture) (*Program, error) {
	l := &Lowerer{
		arch:      arch,
		program:   &Program{Name: listing.Name},
		functions: make(map[string]*Function),
		globals:   make(map[string]*Variable),
	}
	for _, g := range listing.Globals {
		t := l.resolveType(g.Type, g.Pos)
		if t == nil {
			continue
		}
		v := NewGlobal(g.Name, t)
		l.globals[g.Name] = v
		l.program.Globals = append(l.program.Globals, v)
	}

	// Signatures first: calls may precede the callee's definition.
	for _, decl := range listing.Functions {
		l.declareFunction(decl)
	}
	for _, decl := range listing.Functions {
		if l.err != nil {
			break
		}
		l.lowerFunction(decl)
	}
	if l.err != nil {
		return nil, l.err
	}
	return l.program, nil
}

func (l *Lowerer) fail(pos ast.Position, format string, args ...any) {
	if l.err == nil {
		l.err = fmt.Errorf("line %d, col %d: %s", pos.Line, pos.Column, fmt.Sprintf(format, args...))
	}
}

func (l *Lowerer) resolveType(name string, pos ast.Position) *Type {
	t, ok := TypeByName(name)
	if !ok || t.ByteCount == 0 {
		l.fail(pos, "unknown type %q", name)
		return nil
	}
	return t
}

func (l *Lowerer) register(name string, pos ast.Position) reg.Register {
	r, ok := l.arch.Registers.Lookup(name)
	if !ok {
		l.fail(pos, "unknown register %q on %s", name, l.arch.Name)
		return nil
	}
	return r
}

func (l *Lowerer) declareFunction(decl *ast.FuncDecl) {
	var result *Type
	if decl.Result != "" {
		result = l.resolveType(decl.Result, decl.Pos)
	}
	fn := NewFunction(decl.Name, result)
	for _, p := range decl.Params {
		t := l.resolveType(p.Type, p.Pos)
		if t == nil {
			return
		}
		switch {
		case p.Memory:
			fn.AddMemoryParameter(p.Name, t)
		case p.Register != "":
			r := l.register(p.Register, p.Pos)
			if r == nil {
				return
			}
			fn.AddRegisterParameter(p.Name, t, r)
		default:
			fn.AddParameter(p.Name, t)
		}
	}
	l.functions[decl.Name] = fn
	l.program.Functions = append(l.program.Functions, fn)
}

func (l *Lowerer) lowerFunction(decl *ast.FuncDecl) {
	fn := l.functions[decl.Name]
	if fn == nil {
		return
	}
	l.fn = fn
	l.vars = make(map[string]*Variable)
	l.labels = make(map[string]*Anchor)
	for _, p := range fn.Parameters {
		l.vars[p.Name] = p.Variable
	}
	for _, v := range decl.Locals {
		t := l.resolveType(v.Type, v.Pos)
		if t == nil {
			return
		}
		if v.Register != "" {
			r := l.register(v.Register, v.Pos)
			if r == nil {
				return
			}
			l.vars[v.Name] = fn.AddPinnedVariable(v.Name, t, r)
		} else {
			l.vars[v.Name] = fn.AddVariable(v.Name, t)
		}
	}
	for _, s := range decl.Body {
		if lbl, ok := s.(*ast.LabelStmt); ok {
			l.labels[lbl.Name] = fn.CreateNamedAnchor(lbl.Name)
		}
	}
	for _, s := range decl.Body {
		if l.err != nil {
			return
		}
		l.lowerStmt(s)
	}
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

func (l *Lowerer) lowerStmt(stmt ast.Stmt) {
	fn := l.fn
	switch s := stmt.(type) {
	case *ast.LabelStmt:
		fn.PlaceAnchor(l.labels[s.Name])

	case *ast.AssignStmt:
		l.lowerAssign(s)

	case *ast.CallStmt:
		target, args := l.lowerCall(s.Call)
		if target != nil {
			fn.Call(target, nil, args...)
		}

	case *ast.IfGotoStmt:
		cond, ok := ConditionByName(s.Op)
		if !ok {
			l.fail(s.Pos, "unknown comparison %q", s.Op)
			return
		}
		hint := l.typeOf(s.Left, l.typeOf(s.Right, nil))
		left, right := l.operand(s.Left, hint), l.operand(s.Right, hint)
		if target := l.label(s.Label, s.Pos); target != nil && left != nil && right != nil {
			fn.CompareJump(cond, left, right, target)
		}

	case *ast.LoopStmt:
		counter := l.destination(s.Counter, ByteType)
		if target := l.label(s.Label, s.Pos); target != nil && counter != nil {
			fn.DecrementJump(counter, target)
		}

	case *ast.GotoStmt:
		if target := l.label(s.Label, s.Pos); target != nil {
			fn.Jump(target)
		}

	case *ast.ReturnStmt:
		if s.Value == nil {
			fn.Return(nil)
			return
		}
		if v := l.operand(s.Value, fn.Result); v != nil {
			fn.Return(v)
		}

	default:
		l.fail(stmt.GetPos(), "unsupported statement %T", stmt)
	}
}

var binaryOperators = map[string]Operator{
	"+": OpAdd,
	"-": OpSub,
	"&": OpAnd,
	"|": OpOr,
	"^": OpXor,
}

func (l *Lowerer) lowerAssign(s *ast.AssignStmt) {
	fn := l.fn
	switch v := s.Value.(type) {
	case *ast.CallExpr:
		target, args := l.lowerCall(v)
		if target == nil {
			return
		}
		if dst := l.destination(s.Dest, target.Result); dst != nil {
			fn.Call(target, dst, args...)
		}

	case *ast.BinaryExpr:
		op, ok := binaryOperators[v.Op]
		if !ok {
			l.fail(v.Pos, "unknown operator %q", v.Op)
			return
		}
		hint := l.typeOf(s.Dest, l.typeOf(v.Left, l.typeOf(v.Right, nil)))
		dst := l.destination(s.Dest, hint)
		left, right := l.operand(v.Left, hint), l.operand(v.Right, hint)
		if dst != nil && left != nil && right != nil {
			fn.Binomial(op, dst, left, right)
		}

	case ast.Operand:
		hint := l.typeOf(s.Dest, l.typeOf(v, nil))
		src := l.operand(v, hint)
		if src == nil {
			return
		}
		if d, ok := s.Dest.(*ast.Deref); ok {
			if ptr := l.pointer(d); ptr != nil {
				fn.Store(ptr, d.Offset, src)
			}
			return
		}
		if dst := l.destination(s.Dest, hint); dst != nil {
			fn.Load(dst, src)
		}
	}
}

func (l *Lowerer) lowerCall(call *ast.CallExpr) (*Function, []Operand) {
	target := l.functions[call.Name]
	if target == nil {
		l.fail(call.Pos, "undefined function %q", call.Name)
		return nil, nil
	}
	if len(call.Args) != len(target.Parameters) {
		l.fail(call.Pos, "%s takes %d arguments, got %d", call.Name, len(target.Parameters), len(call.Args))
		return nil, nil
	}
	args := make([]Operand, len(call.Args))
	for i, a := range call.Args {
		if args[i] = l.operand(a, target.Parameters[i].Type); args[i] == nil {
			return nil, nil
		}
	}
	return target, args
}

func (l *Lowerer) label(name string, pos ast.Position) *Anchor {
	a := l.labels[name]
	if a == nil {
		l.fail(pos, "undefined label %q", name)
	}
	return a
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// typeOf returns the type an operand has on its own, or fallback when it
// takes its width from context.
func (l *Lowerer) typeOf(op ast.Operand, fallback *Type) *Type {
	switch o := op.(type) {
	case *ast.Name:
		if v := l.variable(o.Name); v != nil {
			return v.Type
		}
	case *ast.RegRef:
		if r, ok := l.arch.Registers.Lookup(o.Register); ok {
			return registerType(r)
		}
	case *ast.AddrOf:
		return PointerType
	}
	return fallback
}

func registerType(r reg.Register) *Type {
	if r.ByteCount() == 1 {
		return ByteType
	}
	return WordType
}

func (l *Lowerer) variable(name string) *Variable {
	if v := l.vars[name]; v != nil {
		return v
	}
	return l.globals[name]
}

// operand lowers a source operand. hint types integers and dereferences;
// nil means the narrowest type that holds the value.
func (l *Lowerer) operand(op ast.Operand, hint *Type) Operand {
	switch o := op.(type) {
	case *ast.IntLit:
		t := hint
		if t == nil {
			t = ByteType
			if o.Value > 0xff || o.Value < -0x80 {
				t = WordType
			}
		}
		return NewInteger(t, o.Value)
	case *ast.AddrOf:
		return NewString(PointerType, o.Label)
	case *ast.Name, *ast.Deref, *ast.RegRef:
		return l.destination(op, hint)
	}
	l.fail(op.GetPos(), "unsupported operand %s", op)
	return nil
}

func (l *Lowerer) pointer(d *ast.Deref) *Variable {
	ptr := l.variable(d.Pointer)
	if ptr == nil {
		l.fail(d.Pos, "undefined variable %q", d.Pointer)
		return nil
	}
	if ptr.Type.ByteCount != 2 {
		l.fail(d.Pos, "%s is not a pointer", d.Pointer)
		return nil
	}
	return ptr
}

// destination lowers an assignable operand.
func (l *Lowerer) destination(op ast.Operand, hint *Type) AssignableOperand {
	switch o := op.(type) {
	case *ast.Name:
		v := l.variable(o.Name)
		if v == nil {
			l.fail(o.Pos, "undefined variable %q", o.Name)
			return nil
		}
		return NewVariable(v)
	case *ast.Deref:
		ptr := l.pointer(o)
		if ptr == nil {
			return nil
		}
		t := hint
		if t == nil {
			t = ByteType
		}
		return NewIndirect(t, ptr, o.Offset)
	case *ast.RegRef:
		r := l.register(o.Register, o.Pos)
		if r == nil {
			return nil
		}
		return NewRegister(registerType(r), r)
	}
	l.fail(op.GetPos(), "cannot assign to %s", op)
	return nil
}
