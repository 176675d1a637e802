package codegen

import (
	"fmt"

	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// IR: architecture-neutral operands
//
// Instructions refer to values through operands: integer and address
// constants, variables (optionally at a byte offset), locations reached
// through a pointer variable, and values that already sit in a physical
// register. Variables without a pinned register live in memory; the engine
// only caches them in registers for the span of straight-line code.
// ---------------------------------------------------------------------------

// ---------------------------------------------------------------------------
// Types
// ---------------------------------------------------------------------------

// Type is the storage type of a value.
type Type struct {
	Name      string
	ByteCount int
	Signed    bool
	Pointer   bool
}

func (t *Type) String() string { return t.Name }

var (
	VoidType       = &Type{Name: "void"}
	ByteType       = &Type{Name: "byte", ByteCount: 1}
	SignedByteType = &Type{Name: "sbyte", ByteCount: 1, Signed: true}
	WordType       = &Type{Name: "word", ByteCount: 2}
	SignedWordType = &Type{Name: "sword", ByteCount: 2, Signed: true}
	PointerType    = &Type{Name: "ptr", ByteCount: 2, Pointer: true}
)

// TypeByName resolves the names used in listings.
func TypeByName(name string) (*Type, bool) {
	for _, t := range []*Type{VoidType, ByteType, SignedByteType, WordType, SignedWordType, PointerType} {
		if t.Name == name {
			return t, true
		}
	}
	return nil, false
}

// ---------------------------------------------------------------------------
// Variables
// ---------------------------------------------------------------------------

// Usage is the kind of an access recorded in a variable's usage log.
type Usage int

const (
	Read Usage = iota
	Write
)

func (u Usage) String() string {
	if u == Write {
		return "write"
	}
	return "read"
}

// UsageEvent is one entry of a variable's usage log.
type UsageEvent struct {
	Address int
	Usage   Usage
}

// Variable is a named storage location with a memory label. When Register is
// set the variable is pinned: its value always lives in that register.
type Variable struct {
	Name     string
	Type     *Type
	Label    string
	Register reg.Register

	usages  []UsageEvent
	inBlock bool
}

// AddUsage appends to the usage log.
func (v *Variable) AddUsage(address int, u Usage) {
	v.usages = append(v.usages, UsageEvent{Address: address, Usage: u})
}

// Usages returns the usage log in recording order.
func (v *Variable) Usages() []UsageEvent { return v.usages }

// IsReadAfter reports whether the variable is read by an instruction after
// address.
func (v *Variable) IsReadAfter(address int) bool {
	for _, u := range v.usages {
		if u.Usage == Read && u.Address > address {
			return true
		}
	}
	return false
}

// MemoryAddress is the assembler expression for the byte at offset.
func (v *Variable) MemoryAddress(offset int) string {
	if offset == 0 {
		return v.Label
	}
	return fmt.Sprintf("%s+%d", v.Label, offset)
}

// HasStorage reports whether the variable needs its own storage definition.
// Memory-passed parameters live inside their function's parameter block.
func (v *Variable) HasStorage() bool { return !v.inBlock && v.Register == nil }

func (v *Variable) String() string { return v.Name }

// pinnedRegister returns the pinned register narrowed to the accessed bytes.
func (v *Variable) pinnedRegister(offset, byteCount int) reg.Register {
	switch r := v.Register.(type) {
	case *reg.Byte:
		if offset == 0 && byteCount == 1 {
			return r
		}
	case *reg.Word:
		if offset == 0 && byteCount == 2 {
			return r
		}
		if byteCount == 1 && r.IsPair() && (offset == 0 || offset == 1) {
			return r.Half(offset)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Operands
// ---------------------------------------------------------------------------

// Operand is a value read or written by an instruction. The variants are
// *IntegerOperand, *StringOperand, *VariableOperand, *IndirectOperand and
// *RegisterOperand.
type Operand interface {
	Type() *Type
	// Register returns the register that always holds the operand (a pinned
	// variable or a register operand), or nil.
	Register() reg.Register
	// SameStorage reports whether both operands denote the same location.
	SameStorage(other Operand) bool
	AddUsage(address int, u Usage)
	String() string

	operand()
}

// AssignableOperand is an operand that can be the destination of a store.
type AssignableOperand interface {
	Operand
	assignable()
}

// IntegerOperand is a numeric constant.
type IntegerOperand struct {
	typ   *Type
	Value int
}

// NewInteger returns a constant of type t.
func NewInteger(t *Type, value int) *IntegerOperand {
	return &IntegerOperand{typ: t, Value: value}
}

func (o *IntegerOperand) Type() *Type            { return o.typ }
func (o *IntegerOperand) Register() reg.Register { return nil }
func (o *IntegerOperand) AddUsage(int, Usage)    {}
func (o *IntegerOperand) operand()               {}
func (o *IntegerOperand) String() string         { return fmt.Sprint(o.Value) }
func (o *IntegerOperand) SameStorage(Operand) bool {
	return false
}

// Literal renders the value truncated to the operand width.
func (o *IntegerOperand) Literal() string {
	if o.typ.ByteCount == 1 {
		return fmt.Sprint(o.Value & 0xff)
	}
	return fmt.Sprint(o.Value & 0xffff)
}

// StringOperand is an address constant: a label, optionally with an
// assembler expression around it.
type StringOperand struct {
	typ   *Type
	Value string
}

// NewString returns an address constant of type t.
func NewString(t *Type, value string) *StringOperand {
	return &StringOperand{typ: t, Value: value}
}

func (o *StringOperand) Type() *Type            { return o.typ }
func (o *StringOperand) Register() reg.Register { return nil }
func (o *StringOperand) AddUsage(int, Usage)    {}
func (o *StringOperand) operand()               {}
func (o *StringOperand) String() string         { return o.Value }
func (o *StringOperand) SameStorage(Operand) bool {
	return false
}

// VariableOperand accesses a variable, or part of it at a byte offset.
type VariableOperand struct {
	typ      *Type
	Variable *Variable
	Offset   int
}

// NewVariable returns an operand for the whole variable.
func NewVariable(v *Variable) *VariableOperand {
	return &VariableOperand{typ: v.Type, Variable: v}
}

// NewVariableAt returns an operand of type t at a byte offset into v.
func NewVariableAt(v *Variable, t *Type, offset int) *VariableOperand {
	return &VariableOperand{typ: t, Variable: v, Offset: offset}
}

func (o *VariableOperand) Type() *Type { return o.typ }
func (o *VariableOperand) Register() reg.Register {
	return o.Variable.pinnedRegister(o.Offset, o.typ.ByteCount)
}
func (o *VariableOperand) AddUsage(address int, u Usage) { o.Variable.AddUsage(address, u) }
func (o *VariableOperand) operand()                      {}
func (o *VariableOperand) assignable()                   {}
func (o *VariableOperand) String() string {
	if o.Offset != 0 {
		return fmt.Sprintf("%s+%d", o.Variable.Name, o.Offset)
	}
	return o.Variable.Name
}
func (o *VariableOperand) SameStorage(other Operand) bool {
	x, ok := other.(*VariableOperand)
	return ok && x.Variable == o.Variable && x.Offset == o.Offset
}

// IndirectOperand accesses memory at the address held by a pointer variable
// plus a constant offset.
type IndirectOperand struct {
	typ     *Type
	Pointer *Variable
	Offset  int
}

// NewIndirect returns an operand of type t at pointer+offset.
func NewIndirect(t *Type, pointer *Variable, offset int) *IndirectOperand {
	return &IndirectOperand{typ: t, Pointer: pointer, Offset: offset}
}

func (o *IndirectOperand) Type() *Type            { return o.typ }
func (o *IndirectOperand) Register() reg.Register { return nil }
func (o *IndirectOperand) AddUsage(address int, _ Usage) {
	// The pointer itself is only read, whichever way the target is accessed.
	o.Pointer.AddUsage(address, Read)
}
func (o *IndirectOperand) operand()    {}
func (o *IndirectOperand) assignable() {}
func (o *IndirectOperand) String() string {
	if o.Offset != 0 {
		return fmt.Sprintf("[%s%+d]", o.Pointer.Name, o.Offset)
	}
	return fmt.Sprintf("[%s]", o.Pointer.Name)
}
func (o *IndirectOperand) SameStorage(other Operand) bool {
	x, ok := other.(*IndirectOperand)
	return ok && x.Pointer == o.Pointer && x.Offset == o.Offset
}

// RegisterOperand is a value that already sits in a physical register.
type RegisterOperand struct {
	typ *Type
	Reg reg.Register
}

// NewRegister wraps r as an operand of type t.
func NewRegister(t *Type, r reg.Register) *RegisterOperand {
	return &RegisterOperand{typ: t, Reg: r}
}

func (o *RegisterOperand) Type() *Type            { return o.typ }
func (o *RegisterOperand) Register() reg.Register { return o.Reg }
func (o *RegisterOperand) AddUsage(int, Usage)    {}
func (o *RegisterOperand) operand()               {}
func (o *RegisterOperand) assignable()            {}
func (o *RegisterOperand) String() string         { return "%" + o.Reg.Name() }
func (o *RegisterOperand) SameStorage(other Operand) bool {
	x, ok := other.(*RegisterOperand)
	return ok && x.Reg == o.Reg
}

// ---------------------------------------------------------------------------
// Word splitting
// ---------------------------------------------------------------------------

// LowByte returns the low byte of a word operand.
func LowByte(op Operand, arch *Architecture) Operand { return byteOf(op, arch, 0) }

// HighByte returns the high byte of a word operand.
func HighByte(op Operand, arch *Architecture) Operand { return byteOf(op, arch, 1) }

func byteOf(op Operand, arch *Architecture, offset int) Operand {
	t := ByteType
	if op.Type().Signed && offset == 1 {
		t = SignedByteType
	}
	switch o := op.(type) {
	case *IntegerOperand:
		return NewInteger(t, (o.Value>>(8*offset))&0xff)
	case *StringOperand:
		return NewString(t, arch.AddressByte(o.Value, offset == 1))
	case *VariableOperand:
		return NewVariableAt(o.Variable, t, o.Offset+offset)
	case *IndirectOperand:
		return NewIndirect(t, o.Pointer, o.Offset+offset)
	case *RegisterOperand:
		if w, ok := o.Reg.(*reg.Word); ok && w.IsPair() {
			return NewRegister(t, w.Half(offset))
		}
	}
	panic(&InternalError{Operand: op.String(), Message: "operand has no byte halves"})
}

// ---------------------------------------------------------------------------
// Anchors
// ---------------------------------------------------------------------------

// Anchor is a jump target inside a function.
type Anchor struct {
	Label string
	// Address is the instruction address the anchor precedes, or -1 while
	// the anchor is not placed yet.
	Address int
	origins []int
}

// AddOrigin records the address of an instruction that jumps here.
func (a *Anchor) AddOrigin(address int) {
	for _, o := range a.origins {
		if o == address {
			return
		}
	}
	a.origins = append(a.origins, address)
}

// Origins returns the addresses of the jumps to the anchor.
func (a *Anchor) Origins() []int { return a.origins }

func (a *Anchor) String() string { return a.Label }
