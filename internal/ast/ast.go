package ast

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Source position
// ---------------------------------------------------------------------------

// Position represents a line/column pair in source code (1-based).
type Position struct {
	Line   int
	Column int
}

func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is implemented by every AST node.
type Node interface {
	GetPos() Position
}

// Stmt is implemented by every statement node.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is implemented by the right-hand sides of assignments.
type Expr interface {
	Node
	exprNode()
}

// Operand is implemented by the leaf operands of statements. Every operand is
// also an expression.
type Operand interface {
	Expr
	operandNode()
	String() string
}

// ---------------------------------------------------------------------------
// Listing (root)
// ---------------------------------------------------------------------------

// Listing is a whole IR listing: globals and functions in source order.
type Listing struct {
	Name      string
	Globals   []*VarDecl
	Functions []*FuncDecl
	Pos       Position
}

func (n *Listing) GetPos() Position { return n.Pos }

// ---------------------------------------------------------------------------
// Declarations
// ---------------------------------------------------------------------------

// VarDecl declares a variable: var <name> <type> [in <reg>].
type VarDecl struct {
	Name     string
	Type     string
	Register string // pinned register name, empty if none
	Pos      Position
}

func (n *VarDecl) GetPos() Position { return n.Pos }

// Param is a function parameter: <name> <type> [in <reg> | in mem].
type Param struct {
	Name     string
	Type     string
	Register string // explicit parameter register, empty if by convention
	Memory   bool   // explicitly passed in the parameter block
	Pos      Position
}

// FuncDecl is a function definition: func <name>(<params>) [<type>] ... end.
type FuncDecl struct {
	Name   string
	Params []*Param
	Result string // empty for void
	Locals []*VarDecl
	Body   []Stmt
	Pos    Position
}

func (n *FuncDecl) GetPos() Position { return n.Pos }

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// AssignStmt is <dest> = <value>.
type AssignStmt struct {
	Dest  Operand
	Value Expr
	Pos   Position
}

// CallStmt is a call whose result, if any, is discarded.
type CallStmt struct {
	Call *CallExpr
	Pos  Position
}

// IfGotoStmt is if <left> <op> <right> goto <label>.
type IfGotoStmt struct {
	Left  Operand
	Op    string
	Right Operand
	Label string
	Pos   Position
}

// LoopStmt is loop <counter> goto <label>: decrement and jump while not zero.
type LoopStmt struct {
	Counter Operand
	Label   string
	Pos     Position
}

// GotoStmt is goto <label>.
type GotoStmt struct {
	Label string
	Pos   Position
}

// ReturnStmt is return [<value>].
type ReturnStmt struct {
	Value Operand // nil for a bare return
	Pos   Position
}

// LabelStmt is <name>:.
type LabelStmt struct {
	Name string
	Pos  Position
}

func (n *AssignStmt) GetPos() Position { return n.Pos }
func (n *CallStmt) GetPos() Position   { return n.Pos }
func (n *IfGotoStmt) GetPos() Position { return n.Pos }
func (n *LoopStmt) GetPos() Position   { return n.Pos }
func (n *GotoStmt) GetPos() Position   { return n.Pos }
func (n *ReturnStmt) GetPos() Position { return n.Pos }
func (n *LabelStmt) GetPos() Position  { return n.Pos }

func (*AssignStmt) stmtNode() {}
func (*CallStmt) stmtNode()   {}
func (*IfGotoStmt) stmtNode() {}
func (*LoopStmt) stmtNode()   {}
func (*GotoStmt) stmtNode()   {}
func (*ReturnStmt) stmtNode() {}
func (*LabelStmt) stmtNode()  {}

// ---------------------------------------------------------------------------
// Expressions
// ---------------------------------------------------------------------------

// BinaryExpr is <left> <op> <right> with op one of + - & | ^.
type BinaryExpr struct {
	Op    string
	Left  Operand
	Right Operand
	Pos   Position
}

// CallExpr is <name>(<args>).
type CallExpr struct {
	Name string
	Args []Operand
	Pos  Position
}

func (n *BinaryExpr) GetPos() Position { return n.Pos }
func (n *CallExpr) GetPos() Position   { return n.Pos }

func (*BinaryExpr) exprNode() {}
func (*CallExpr) exprNode()   {}

func (n *CallExpr) String() string {
	args := make([]string, len(n.Args))
	for i, a := range n.Args {
		args[i] = a.String()
	}
	return n.Name + "(" + strings.Join(args, ", ") + ")"
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// IntLit is an integer literal.
type IntLit struct {
	Value int
	Pos   Position
}

// Name refers to a variable or parameter.
type Name struct {
	Name string
	Pos  Position
}

// Deref is [<pointer>+<offset>]: the byte or word a pointer variable points
// at.
type Deref struct {
	Pointer string
	Offset  int
	Pos     Position
}

// AddrOf is @<label>: the address of a label as a constant.
type AddrOf struct {
	Label string
	Pos   Position
}

// RegRef is %<reg>: a physical register used directly.
type RegRef struct {
	Register string
	Pos      Position
}

func (n *IntLit) GetPos() Position { return n.Pos }
func (n *Name) GetPos() Position   { return n.Pos }
func (n *Deref) GetPos() Position  { return n.Pos }
func (n *AddrOf) GetPos() Position { return n.Pos }
func (n *RegRef) GetPos() Position { return n.Pos }

func (*IntLit) exprNode() {}
func (*Name) exprNode()   {}
func (*Deref) exprNode()  {}
func (*AddrOf) exprNode() {}
func (*RegRef) exprNode() {}

func (*IntLit) operandNode() {}
func (*Name) operandNode()   {}
func (*Deref) operandNode()  {}
func (*AddrOf) operandNode() {}
func (*RegRef) operandNode() {}

func (n *IntLit) String() string { return fmt.Sprint(n.Value) }
func (n *Name) String() string   { return n.Name }
func (n *AddrOf) String() string { return "@" + n.Label }
func (n *RegRef) String() string { return "%" + n.Register }

func (n *Deref) String() string {
	switch {
	case n.Offset > 0:
		return fmt.Sprintf("[%s+%d]", n.Pointer, n.Offset)
	case n.Offset < 0:
		return fmt.Sprintf("[%s%d]", n.Pointer, n.Offset)
	}
	return "[" + n.Pointer + "]"
}
