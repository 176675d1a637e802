// Package z80 describes the Zilog Z80 to the code generator: its register
// file, calling convention and the text of its instructions.
package z80

import (
	"fmt"

	"octet/internal/codegen"
	"octet/internal/reg"
)

// Name is the target name used on the command line.
const Name = "z80"

type registers struct {
	a, b, c, d, e, h, l *reg.Byte
	bc, de, hl, ix, iy  *reg.Word
}

// New builds the architecture description. Every call returns fresh
// registers, so descriptions must not be mixed.
func New() *codegen.Architecture {
	f := reg.NewFile(true)
	r := &registers{
		a: f.Byte("a"),
		b: f.Byte("b"), c: f.Byte("c"),
		d: f.Byte("d"), e: f.Byte("e"),
		h: f.Byte("h"), l: f.Byte("l"),
	}
	r.bc = f.Pair("bc", r.b, r.c)
	r.de = f.Pair("de", r.d, r.e)
	r.hl = f.Pair("hl", r.h, r.l, reg.Pointer())
	r.ix = f.Word("ix", reg.Indexed(-128, 127))
	r.iy = f.Word("iy", reg.Indexed(-128, 127))

	return &codegen.Architecture{
		Name:           Name,
		Registers:      f,
		ByteRegisters:  []*reg.Byte{r.a, r.d, r.e, r.b, r.c, r.h, r.l},
		Accumulators:   []*reg.Byte{r.a},
		WordRegisters:  []*reg.Word{r.hl, r.de, r.bc, r.ix, r.iy},
		ByteParameters: []*reg.Byte{r.a, r.e, r.c},
		WordParameters: []*reg.Word{r.hl, r.de, r.bc},
		ByteReturn:     r.a,
		WordReturn:     r.hl,
		Passing:        codegen.PassDirect,
		Bytes:          &byteEmitter{r},
		Words:          &wordEmitter{r},
		Flow:           flowEmitter{},
		AddressByte: func(label string, high bool) string {
			if high {
				return "high(" + label + ")"
			}
			return "low(" + label + ")"
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func isFree(c *codegen.Context, r reg.Register) bool {
	return !c.IsRegisterInUse(r)
}

// indirect renders the memory operand of an access through ptr.
func indirect(ptr *reg.Word, offset int) string {
	if !ptr.IsIndex() {
		return "(" + ptr.Name() + ")"
	}
	if offset < 0 {
		return fmt.Sprintf("(%s-%d)", ptr.Name(), -offset)
	}
	return fmt.Sprintf("(%s+%d)", ptr.Name(), offset)
}

// throughHL runs emit with hl pointing at label. hl is used as scratch when
// nothing depends on it and saved on the stack otherwise; neither path
// touches the flags. emit must not write h or l.
func (r *registers) throughHL(c *codegen.Context, label string, emit func()) {
	if isFree(c, r.hl) {
		c.Writef("ld hl,%s", label)
		emit()
		c.Clobber(r.hl)
		return
	}
	c.Writef("push hl")
	c.Writef("ld hl,%s", label)
	emit()
	c.Writef("pop hl")
}

// throughA runs emit with a free to be overwritten, saving it with af when
// something depends on it. The flags survive either way.
func (r *registers) throughA(c *codegen.Context, emit func()) {
	if isFree(c, r.a) {
		emit()
		c.Clobber(r.a)
		return
	}
	c.Writef("push af")
	emit()
	c.Writef("pop af")
}

func (r *registers) isHL(b *reg.Byte) bool { return b == r.h || b == r.l }

// ---------------------------------------------------------------------------
// Byte instructions
// ---------------------------------------------------------------------------

type byteEmitter struct{ r *registers }

func (e *byteEmitter) LoadConstant(c *codegen.Context, r *reg.Byte, value string) {
	c.Writef("ld %s,%s", r, value)
}

func (e *byteEmitter) LoadFromMemory(c *codegen.Context, r *reg.Byte, label string) {
	switch {
	case r == e.r.a:
		c.Writef("ld a,(%s)", label)
	case !e.r.isHL(r):
		e.r.throughHL(c, label, func() { c.Writef("ld %s,(hl)", r) })
	default:
		e.r.throughA(c, func() {
			c.Writef("ld a,(%s)", label)
			c.Writef("ld %s,a", r)
		})
	}
}

func (e *byteEmitter) StoreToMemory(c *codegen.Context, r *reg.Byte, label string) {
	switch {
	case r == e.r.a:
		c.Writef("ld (%s),a", label)
	case !e.r.isHL(r):
		e.r.throughHL(c, label, func() { c.Writef("ld (hl),%s", r) })
	default:
		e.r.throughA(c, func() {
			c.Writef("ld a,%s", r)
			c.Writef("ld (%s),a", label)
		})
	}
}

func (e *byteEmitter) LoadIndirect(c *codegen.Context, r *reg.Byte, ptr *reg.Word, offset int) {
	c.Writef("ld %s,%s", r, indirect(ptr, offset))
}

func (e *byteEmitter) StoreIndirect(c *codegen.Context, r *reg.Byte, ptr *reg.Word, offset int) {
	c.Writef("ld %s,%s", indirect(ptr, offset), r)
}

func (e *byteEmitter) StoreConstantIndirect(c *codegen.Context, ptr *reg.Word, offset int, value string) {
	c.Writef("ld %s,%s", indirect(ptr, offset), value)
}

func (e *byteEmitter) Copy(c *codegen.Context, dst, src *reg.Byte) {
	c.Writef("ld %s,%s", dst, src)
}

func (e *byteEmitter) CanExchange(a, b *reg.Byte) bool { return false }

func (e *byteEmitter) Exchange(c *codegen.Context, a, b *reg.Byte) {
	c.Fail("z80 has no byte exchange for %s and %s", a, b)
}

// operation returns the mnemonic and operand prefix of op.
func operation(op codegen.Operator) string {
	switch op {
	case codegen.OpAdd:
		return "add a,"
	case codegen.OpAddCarry:
		return "adc a,"
	case codegen.OpSub:
		return "sub "
	case codegen.OpSubBorrow:
		return "sbc a,"
	case codegen.OpAnd:
		return "and "
	case codegen.OpOr:
		return "or "
	case codegen.OpXor:
		return "xor "
	case codegen.OpCompare:
		return "cp "
	}
	panic(fmt.Sprintf("z80: unknown operator %s", op))
}

func (e *byteEmitter) accumulator(c *codegen.Context, r *reg.Byte) {
	if r != e.r.a {
		c.Fail("z80 arithmetic needs the accumulator, got %s", r)
	}
}

func (e *byteEmitter) OperateConstant(c *codegen.Context, r *reg.Byte, op codegen.Operator, value string) {
	e.accumulator(c, r)
	c.Writef("%s%s", operation(op), value)
}

func (e *byteEmitter) OperateRegister(c *codegen.Context, r *reg.Byte, op codegen.Operator, src *reg.Byte) {
	e.accumulator(c, r)
	c.Writef("%s%s", operation(op), src)
}

func (e *byteEmitter) OperateMemory(c *codegen.Context, r *reg.Byte, op codegen.Operator, label string) {
	e.accumulator(c, r)
	e.r.throughHL(c, label, func() { c.Writef("%s(hl)", operation(op)) })
}

func (e *byteEmitter) OperateIndirect(c *codegen.Context, r *reg.Byte, op codegen.Operator, ptr *reg.Word, offset int) {
	e.accumulator(c, r)
	c.Writef("%s%s", operation(op), indirect(ptr, offset))
}

func (e *byteEmitter) Modify(c *codegen.Context, r *reg.Byte, m codegen.Modifier) {
	switch m {
	case codegen.ModIncrement:
		c.Writef("inc %s", r)
	case codegen.ModDecrement:
		c.Writef("dec %s", r)
	case codegen.ModShiftLeft:
		c.Writef("sla %s", r)
	case codegen.ModShiftRight:
		c.Writef("srl %s", r)
	default:
		c.Fail("z80: unknown modifier %s", m)
	}
}

// ---------------------------------------------------------------------------
// Word instructions
// ---------------------------------------------------------------------------

type wordEmitter struct{ r *registers }

func (e *wordEmitter) LoadConstant(c *codegen.Context, r *reg.Word, value string) {
	c.Writef("ld %s,%s", r, value)
}

func (e *wordEmitter) LoadFromMemory(c *codegen.Context, r *reg.Word, label string) {
	c.Writef("ld %s,(%s)", r, label)
}

func (e *wordEmitter) StoreToMemory(c *codegen.Context, r *reg.Word, label string) {
	c.Writef("ld (%s),%s", label, r)
}

func (e *wordEmitter) Copy(c *codegen.Context, dst, src *reg.Word) {
	if dst.IsPair() && src.IsPair() {
		c.Writef("ld %s,%s", dst.High(), src.High())
		c.Writef("ld %s,%s", dst.Low(), src.Low())
		return
	}
	c.Writef("push %s", src)
	c.Writef("pop %s", dst)
}

func (e *wordEmitter) CanExchange(a, b *reg.Word) bool {
	return (a == e.r.de && b == e.r.hl) || (a == e.r.hl && b == e.r.de)
}

func (e *wordEmitter) Exchange(c *codegen.Context, a, b *reg.Word) {
	if !e.CanExchange(a, b) {
		c.Fail("z80 cannot exchange %s and %s", a, b)
	}
	c.Writef("ex de,hl")
}

// AddConstant uses the flag-neutral 16-bit inc/dec for small deltas and a
// saved addition otherwise.
func (e *wordEmitter) AddConstant(c *codegen.Context, r *reg.Word, delta int) {
	if delta >= -4 && delta <= 4 {
		m := "inc"
		if delta < 0 {
			m, delta = "dec", -delta
		}
		for range delta {
			c.Writef("%s %s", m, r)
		}
		return
	}
	value := delta & 0xffff
	c.Writef("push af")
	switch r {
	case e.r.hl, e.r.ix, e.r.iy:
		c.Writef("push de")
		c.Writef("ld de,%d", value)
		c.Writef("add %s,de", r)
		c.Writef("pop de")
	default:
		c.Writef("push hl")
		c.Writef("ld hl,%d", value)
		c.Writef("add hl,%s", r)
		c.Writef("ld %s,h", r.High())
		c.Writef("ld %s,l", r.Low())
		c.Writef("pop hl")
	}
	c.Writef("pop af")
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

type flowEmitter struct{}

func (flowEmitter) Label(c *codegen.Context, label string) { c.WriteLine(label + ":") }
func (flowEmitter) Jump(c *codegen.Context, label string)  { c.Writef("jp %s", label) }
func (flowEmitter) Call(c *codegen.Context, label string)  { c.Writef("call %s", label) }
func (flowEmitter) Return(c *codegen.Context)              { c.Writef("ret") }

func (e flowEmitter) Branch(c *codegen.Context, cond codegen.Condition, signed bool, label string) {
	switch cond {
	case codegen.CondEqual:
		c.Writef("jp z,%s", label)
		return
	case codegen.CondNotEqual:
		c.Writef("jp nz,%s", label)
		return
	}
	if signed {
		e.signed(c, cond, label)
		return
	}
	switch cond {
	case codegen.CondLess:
		c.Writef("jp c,%s", label)
	case codegen.CondGreaterEqual:
		c.Writef("jp nc,%s", label)
	case codegen.CondLessEqual:
		c.Writef("jp c,%s", label)
		c.Writef("jp z,%s", label)
	case codegen.CondGreater:
		skip := c.NewLabel()
		c.Writef("jp z,%s", skip)
		c.Writef("jp nc,%s", label)
		c.WriteLine(skip + ":")
	}
}

// signed branches on the sign flag corrected by the overflow flag: less
// holds when they differ.
func (flowEmitter) signed(c *codegen.Context, cond codegen.Condition, label string) {
	var noOverflow, overflow string
	switch cond {
	case codegen.CondLess:
		noOverflow, overflow = "m", "p"
	case codegen.CondGreaterEqual:
		noOverflow, overflow = "p", "m"
	default:
		c.Fail("z80: signed %s is not normalized", cond)
	}
	over, done := c.NewLabel(), c.NewLabel()
	c.Writef("jp pe,%s", over)
	c.Writef("jp %s,%s", noOverflow, label)
	c.Writef("jp %s", done)
	c.WriteLine(over + ":")
	c.Writef("jp %s,%s", overflow, label)
	c.WriteLine(done + ":")
}

func (flowEmitter) Storage(label string, size int) string {
	return fmt.Sprintf("%s:\tds %d", label, size)
}
