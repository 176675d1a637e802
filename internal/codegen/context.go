package codegen

import (
	"fmt"
	"log/slog"
	"maps"
	"strconv"

	"golang.org/x/exp/slices"

	"octet/internal/log"
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Per-instruction lowering state
// ---------------------------------------------------------------------------

// binding records that a register holds a copy of variable bytes starting at
// offset. The copy in memory is always current; bindings only save loads.
type binding struct {
	variable *Variable
	offset   int
	register reg.Register
}

func (b binding) overlaps(v *Variable, offset, count int) bool {
	return b.variable == v && offset < b.offset+b.register.ByteCount() && b.offset < offset+count
}

// state is what an instruction hands on to the one after it.
type state struct {
	bindings  []binding
	constants map[reg.Register]string
}

// Context is the lowering state of one instruction: its output lines, the
// reservation stack, registers held by resolved call parameters, protected
// source registers, the changed set and the caches carried between
// instructions.
type Context struct {
	arch        *Architecture
	function    *Function
	instruction Instruction
	address     int
	logger      *slog.Logger

	lines    []string
	reserved []reg.Register
	held     []reg.Register
	sources  []reg.Register
	pinned   []reg.Register
	changed  []reg.Register

	bindings  []binding
	constants map[reg.Register]string
}

func newContext(arch *Architecture, fn *Function, instr Instruction, address int, in state, logger *slog.Logger) *Context {
	c := &Context{
		arch:        arch,
		function:    fn,
		instruction: instr,
		address:     address,
		logger:      logger,
		bindings:    in.bindings,
		constants:   in.constants,
	}
	if c.constants == nil {
		c.constants = make(map[reg.Register]string)
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}
	if fn != nil {
		for _, v := range fn.Variables() {
			if v.Register != nil {
				c.pinned = append(c.pinned, v.Register)
			}
		}
	}
	return c
}

// commit returns the state for the next instruction. Bindings of variables
// that are never read again are dropped.
func (c *Context) commit() state {
	if len(c.reserved) != 0 {
		c.Fail("%d register reservations not released", len(c.reserved))
	}
	out := state{constants: maps.Clone(c.constants)}
	for _, b := range c.bindings {
		if b.variable.IsReadAfter(c.address) {
			out.bindings = append(out.bindings, b)
		}
	}
	return out
}

func (c *Context) Arch() *Architecture  { return c.arch }
func (c *Context) Function() *Function  { return c.function }
func (c *Context) Address() int         { return c.address }
func (c *Context) Logger() *slog.Logger { return c.logger }

// ---------------------------------------------------------------------------
// Output
// ---------------------------------------------------------------------------

// WriteLine appends one line of assembly.
func (c *Context) WriteLine(line string) {
	c.lines = append(c.lines, line)
}

// Writef appends a formatted instruction line, indented by a tab.
func (c *Context) Writef(format string, args ...any) {
	c.lines = append(c.lines, "\t"+fmt.Sprintf(format, args...))
}

// Lines returns the assembly written so far.
func (c *Context) Lines() []string { return c.lines }

// NewLabel returns a fresh function-local label.
func (c *Context) NewLabel() string {
	if c.function == nil {
		c.Fail("local label outside a function")
	}
	return c.function.newLabel("S")
}

// ---------------------------------------------------------------------------
// Changed set and caches
// ---------------------------------------------------------------------------

// AddChanged records that r was written by this instruction.
func (c *Context) AddChanged(r reg.Register) {
	if !slices.Contains(c.changed, r) {
		c.changed = append(c.changed, r)
	}
}

// IsChanged reports whether r or a register sharing storage with it was
// written by this instruction.
func (c *Context) IsChanged(r reg.Register) bool {
	return slices.ContainsFunc(c.changed, func(x reg.Register) bool { return reg.Overlaps(x, r) })
}

// Changed returns the registers written by this instruction.
func (c *Context) Changed() []reg.Register { return c.changed }

// RemoveRegisterAssignment forgets every cached fact about r and the
// registers sharing storage with it.
func (c *Context) RemoveRegisterAssignment(r reg.Register) {
	c.bindings = slices.DeleteFunc(c.bindings, func(b binding) bool { return reg.Overlaps(b.register, r) })
	for k := range c.constants {
		if reg.Overlaps(k, r) {
			delete(c.constants, k)
		}
	}
}

// Clobber records a write to r: it is added to the changed set and its cached
// contents are forgotten. Backends call it for scratch registers they modify.
func (c *Context) Clobber(r reg.Register) {
	c.AddChanged(r)
	c.RemoveRegisterAssignment(r)
}

// VariableRegister returns the register holding byteCount bytes of v at
// offset: the pinned register, a bound register, or the half of a bound pair.
func (c *Context) VariableRegister(v *Variable, offset, byteCount int) reg.Register {
	if v.Register != nil {
		return v.pinnedRegister(offset, byteCount)
	}
	for _, b := range c.bindings {
		if b.variable != v {
			continue
		}
		if b.offset == offset && b.register.ByteCount() == byteCount {
			return b.register
		}
		if w, ok := b.register.(*reg.Word); ok && byteCount == 1 && w.IsPair() {
			if d := offset - b.offset; d == 0 || d == 1 {
				return w.Half(d)
			}
		}
	}
	return nil
}

// SetVariableRegister records that r now holds v's bytes at offset. Pinned
// variables are not cached.
func (c *Context) SetVariableRegister(v *Variable, offset int, r reg.Register) {
	if v.Register != nil {
		return
	}
	c.RemoveVariableRegister(v, offset, r.ByteCount())
	c.bindings = append(c.bindings, binding{variable: v, offset: offset, register: r})
}

// RemoveVariableRegister forgets the registers caching v's bytes in
// [offset, offset+count).
func (c *Context) RemoveVariableRegister(v *Variable, offset, count int) {
	c.bindings = slices.DeleteFunc(c.bindings, func(b binding) bool { return b.overlaps(v, offset, count) })
}

// forgetVariables drops every binding. Used after a store through a pointer,
// which may alias any variable.
func (c *Context) forgetVariables() {
	c.bindings = nil
}

// swapAssignments exchanges the cached contents of a and b, including the
// halves of two pairs.
func (c *Context) swapAssignments(a, b reg.Register) {
	m := map[reg.Register]reg.Register{a: b, b: a}
	wa, okA := a.(*reg.Word)
	wb, okB := b.(*reg.Word)
	if okA && okB && wa.IsPair() && wb.IsPair() {
		m[wa.Low()], m[wb.Low()] = wb.Low(), wa.Low()
		m[wa.High()], m[wb.High()] = wb.High(), wa.High()
	}
	touched := func(r reg.Register) bool { return reg.Overlaps(r, a) || reg.Overlaps(r, b) }

	var bindings []binding
	for _, bd := range c.bindings {
		if to, ok := m[bd.register]; ok {
			bd.register = to
		} else if touched(bd.register) {
			continue
		}
		bindings = append(bindings, bd)
	}
	c.bindings = bindings

	constants := make(map[reg.Register]string, len(c.constants))
	for r, v := range c.constants {
		if to, ok := m[r]; ok {
			constants[to] = v
		} else if !touched(r) {
			constants[r] = v
		}
	}
	c.constants = constants
}

// IsConstantAssigned reports whether r is known to hold value.
func (c *Context) IsConstantAssigned(r reg.Register, value string) bool {
	v, ok := c.constants[r]
	return ok && v == value
}

// SetRegisterConstant records that r holds value.
func (c *Context) SetRegisterConstant(r reg.Register, value string) {
	c.constants[r] = value
}

// registerWithConstant finds a candidate known to hold value.
func (c *Context) registerWithConstant(value string, byteCount int) reg.Register {
	if c.arch == nil {
		return nil
	}
	for _, r := range c.arch.Registers.All() {
		if r.ByteCount() == byteCount && c.IsConstantAssigned(r, value) {
			return r
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Register occupancy
// ---------------------------------------------------------------------------

func containsOverlap(list []reg.Register, r reg.Register) bool {
	return slices.ContainsFunc(list, func(x reg.Register) bool { return reg.Overlaps(x, r) })
}

// IsRegisterReserved reports whether r or a register sharing storage with it
// is reserved or held by a resolved call parameter.
func (c *Context) IsRegisterReserved(r reg.Register) bool {
	return containsOverlap(c.reserved, r) || containsOverlap(c.held, r)
}

// IsRegisterInUse reports whether writing r could destroy a value still
// needed: it is reserved, held, a protected source or pinned to a variable.
func (c *Context) IsRegisterInUse(r reg.Register) bool {
	return c.IsRegisterReserved(r) || containsOverlap(c.sources, r) || containsOverlap(c.pinned, r)
}

func (c *Context) hold(r reg.Register) { c.held = append(c.held, r) }

func (c *Context) releaseHeld() { c.held = nil }

func (c *Context) unhold(r reg.Register) {
	if i := slices.Index(c.held, r); i >= 0 {
		c.held = slices.Delete(c.held, i, i+1)
	}
}

func (c *Context) addSource(r reg.Register) {
	if r != nil {
		c.sources = append(c.sources, r)
	}
}

func (c *Context) removeSource(r reg.Register) {
	if i := slices.Index(c.sources, r); r != nil && i >= 0 {
		c.sources = slices.Delete(c.sources, i, i+1)
	}
}

// protectSources marks the registers currently holding the operands as
// sources for the rest of the instruction.
func (c *Context) protectSources(operands ...Operand) {
	for _, op := range operands {
		c.addSource(c.sourceRegister(op))
	}
}

// sourceRegister is the register an operand's value currently lives in, or
// the pointer register for an indirect operand.
func (c *Context) sourceRegister(op Operand) reg.Register {
	switch o := op.(type) {
	case *RegisterOperand:
		return o.Reg
	case *VariableOperand:
		return c.VariableRegister(o.Variable, o.Offset, o.typ.ByteCount)
	case *IndirectOperand:
		return c.VariableRegister(o.Pointer, 0, 2)
	}
	return nil
}

// operandRegister is the register a reservation should prefer for op.
func (c *Context) operandRegister(op Operand) reg.Register {
	switch o := op.(type) {
	case nil:
		return nil
	case *IntegerOperand:
		return c.registerWithConstant(o.Literal(), o.typ.ByteCount)
	case *StringOperand:
		return c.registerWithConstant(o.Value, o.typ.ByteCount)
	case *IndirectOperand:
		return nil
	}
	return c.sourceRegister(op)
}

// literal renders an integer or address constant.
func literal(op Operand) (string, bool) {
	switch o := op.(type) {
	case *IntegerOperand:
		return o.Literal(), true
	case *StringOperand:
		return o.Value, true
	}
	return "", false
}

func itoa(n int) string { return strconv.Itoa(n) }
