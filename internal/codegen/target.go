package codegen

import (
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Operators, modifiers and conditions
// ---------------------------------------------------------------------------

// Operator is a two-operand byte operation performed in place on a register.
type Operator int

const (
	OpAdd Operator = iota
	OpAddCarry
	OpSub
	OpSubBorrow
	OpAnd
	OpOr
	OpXor
	// OpCompare sets flags like OpSub without changing the register.
	OpCompare
)

var operatorNames = map[Operator]string{
	OpAdd: "add", OpAddCarry: "adc", OpSub: "sub", OpSubBorrow: "sbc",
	OpAnd: "and", OpOr: "or", OpXor: "xor", OpCompare: "cmp",
}

func (op Operator) String() string {
	if s, ok := operatorNames[op]; ok {
		return s
	}
	return fmt.Sprintf("operator_%d", int(op))
}

// IsCommutative reports whether the operands may be swapped.
func (op Operator) IsCommutative() bool {
	switch op {
	case OpAdd, OpAnd, OpOr, OpXor:
		return true
	}
	return false
}

// carryChain returns the operators for the low and high byte of a word
// operation.
func (op Operator) carryChain() (low, high Operator) {
	switch op {
	case OpAdd:
		return OpAdd, OpAddCarry
	case OpSub:
		return OpSub, OpSubBorrow
	}
	return op, op
}

// Modifier is a single-register operation without a second operand.
type Modifier int

const (
	ModIncrement Modifier = iota
	ModDecrement
	ModShiftLeft
	ModShiftRight
)

func (m Modifier) String() string {
	switch m {
	case ModIncrement:
		return "inc"
	case ModDecrement:
		return "dec"
	case ModShiftLeft:
		return "shl"
	case ModShiftRight:
		return "shr"
	}
	return fmt.Sprintf("modifier_%d", int(m))
}

// Condition is the relation tested by a conditional branch after a compare.
type Condition int

const (
	CondEqual Condition = iota
	CondNotEqual
	CondLess
	CondGreaterEqual
	CondGreater
	CondLessEqual
)

var conditionNames = map[Condition]string{
	CondEqual: "==", CondNotEqual: "!=", CondLess: "<",
	CondGreaterEqual: ">=", CondGreater: ">", CondLessEqual: "<=",
}

func (c Condition) String() string {
	if s, ok := conditionNames[c]; ok {
		return s
	}
	return fmt.Sprintf("condition_%d", int(c))
}

// ConditionByName resolves a relational operator token.
func ConditionByName(name string) (Condition, bool) {
	for c, s := range conditionNames {
		if s == name {
			return c, true
		}
	}
	return 0, false
}

// swapped returns the condition that holds with the operands exchanged.
func (c Condition) swapped() Condition {
	switch c {
	case CondLess:
		return CondGreater
	case CondGreater:
		return CondLess
	case CondLessEqual:
		return CondGreaterEqual
	case CondGreaterEqual:
		return CondLessEqual
	}
	return c
}

// ---------------------------------------------------------------------------
// Backend primitives
// ---------------------------------------------------------------------------

// ByteEmitter writes the byte-register instructions of an architecture. The
// engine wraps every call with its bookkeeping, so implementations only
// append lines and reserve whatever scratch registers they need. A primitive
// that cannot handle its arguments calls Context.Unsupported.
type ByteEmitter interface {
	LoadConstant(c *Context, r *reg.Byte, value string)
	LoadFromMemory(c *Context, r *reg.Byte, label string)
	StoreToMemory(c *Context, r *reg.Byte, label string)
	// LoadIndirect and StoreIndirect are only called with an offset the
	// pointer can address directly.
	LoadIndirect(c *Context, r *reg.Byte, pointer *reg.Word, offset int)
	StoreIndirect(c *Context, r *reg.Byte, pointer *reg.Word, offset int)
	Copy(c *Context, dst, src *reg.Byte)
	// CanExchange reports whether Exchange is a native instruction for a and b.
	CanExchange(a, b *reg.Byte) bool
	Exchange(c *Context, a, b *reg.Byte)
	OperateConstant(c *Context, r *reg.Byte, op Operator, value string)
	OperateRegister(c *Context, r *reg.Byte, op Operator, src *reg.Byte)
	OperateMemory(c *Context, r *reg.Byte, op Operator, label string)
	OperateIndirect(c *Context, r *reg.Byte, op Operator, pointer *reg.Word, offset int)
	Modify(c *Context, r *reg.Byte, m Modifier)
}

// ByteClearer is implemented by backends that can zero a memory byte without
// a register.
type ByteClearer interface {
	ClearMemory(c *Context, label string)
}

// ConstantIndirectStorer is implemented by backends that can store a
// constant through a pointer.
type ConstantIndirectStorer interface {
	StoreConstantIndirect(c *Context, pointer *reg.Word, offset int, value string)
}

// WordEmitter writes the word-register instructions of an architecture.
type WordEmitter interface {
	LoadConstant(c *Context, r *reg.Word, value string)
	LoadFromMemory(c *Context, r *reg.Word, label string)
	StoreToMemory(c *Context, r *reg.Word, label string)
	Copy(c *Context, dst, src *reg.Word)
	CanExchange(a, b *reg.Word) bool
	Exchange(c *Context, a, b *reg.Word)
	// AddConstant adds delta to r and must preserve every other register
	// and the flags.
	AddConstant(c *Context, r *reg.Word, delta int)
}

// FlowEmitter writes labels, jumps and calls.
type FlowEmitter interface {
	Label(c *Context, label string)
	Jump(c *Context, label string)
	// Branch jumps to label when cond holds for the flags left by the last
	// OpCompare (or OpCompare followed by OpSubBorrow for words).
	Branch(c *Context, cond Condition, signed bool, label string)
	Call(c *Context, label string)
	Return(c *Context)
}

// StorageEmitter is implemented by backends that can reserve memory for
// variables in the generated listing.
type StorageEmitter interface {
	Storage(label string, size int) string
}

// PreambleEmitter is implemented by backends whose listings need definitions
// ahead of the code, such as the addresses of pseudo registers.
type PreambleEmitter interface {
	Preamble() []string
}

// ---------------------------------------------------------------------------
// Architecture
// ---------------------------------------------------------------------------

// Passing selects how memory-passed parameters reach the callee.
type Passing int

const (
	// PassDirect stores each memory parameter to its label.
	PassDirect Passing = iota
	// PassViaPointer walks one pointer register over the parameter block.
	PassViaPointer
)

func (p Passing) String() string {
	if p == PassViaPointer {
		return "via-pointer"
	}
	return "direct"
}

// Architecture holds everything the engine needs to know about a target:
// the register file, candidate lists by role, the calling convention and the
// instruction emitters.
type Architecture struct {
	Name      string
	Registers *reg.File

	// ByteRegisters are the general byte candidates in preference order.
	ByteRegisters []*reg.Byte
	// Accumulators are the byte registers arithmetic can target.
	Accumulators []*reg.Byte
	// WordRegisters are the general word candidates in preference order.
	WordRegisters []*reg.Word

	ByteParameters []*reg.Byte
	WordParameters []*reg.Word
	ByteReturn     *reg.Byte
	WordReturn     *reg.Word
	Passing        Passing
	// Preserved registers survive a call.
	Preserved []reg.Register

	Bytes ByteEmitter
	Words WordEmitter
	Flow  FlowEmitter

	// AddressByte renders the assembler expression for the low or high byte
	// of an address constant.
	AddressByte func(label string, high bool) string
}

// Validate reports missing pieces of an architecture description.
func (a *Architecture) Validate() error {
	var errs []error
	if a.Registers == nil {
		errs = append(errs, errors.New("no register file"))
	}
	if len(a.ByteRegisters) == 0 || len(a.Accumulators) == 0 {
		errs = append(errs, errors.New("no byte candidates"))
	}
	if len(a.PointerRegisters(0)) == 0 {
		errs = append(errs, errors.New("no pointer-capable word register"))
	}
	if a.ByteReturn == nil || a.WordReturn == nil {
		errs = append(errs, errors.New("no return registers"))
	}
	if a.Bytes == nil || a.Words == nil || a.Flow == nil {
		errs = append(errs, errors.New("missing emitters"))
	}
	if a.AddressByte == nil {
		errs = append(errs, errors.New("no address byte syntax"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("architecture %s: %w", a.Name, errors.Join(errs...))
	}
	return nil
}

// PointerRegisters returns the word candidates that can address offset
// directly. When none can, it returns the pointer-capable ones and the access
// biases the pointer.
func (a *Architecture) PointerRegisters(offset int) []*reg.Word {
	var direct, capable []*reg.Word
	for _, w := range a.WordRegisters {
		if w.IsPointer(offset) {
			direct = append(direct, w)
		}
		if w.IsPointerCapable() {
			capable = append(capable, w)
		}
	}
	if len(direct) > 0 {
		return direct
	}
	return capable
}

// PairRegisters returns the word candidates that have byte halves.
func (a *Architecture) PairRegisters() []*reg.Word {
	var pairs []*reg.Word
	for _, w := range a.WordRegisters {
		if w.IsPair() {
			pairs = append(pairs, w)
		}
	}
	return pairs
}

// ReturnRegister is the register holding a result of the given width.
func (a *Architecture) ReturnRegister(byteCount int) reg.Register {
	if byteCount == 1 {
		return a.ByteReturn
	}
	return a.WordReturn
}

// IsPreserved reports whether r survives a call.
func (a *Architecture) IsPreserved(r reg.Register) bool {
	return slices.ContainsFunc(a.Preserved, func(p reg.Register) bool { return r.Matches(p) })
}

// candidates returns the general candidates for a width.
func (a *Architecture) candidates(byteCount int) []reg.Register {
	var out []reg.Register
	if byteCount == 1 {
		for _, b := range a.ByteRegisters {
			out = append(out, b)
		}
		return out
	}
	for _, w := range a.WordRegisters {
		out = append(out, w)
	}
	return out
}
