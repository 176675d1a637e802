// Package mos6502 describes the MOS 6502 to the code generator. Besides a, x
// and y it models eight zero-page bytes as registers, paired into four
// pointer words addressed through (zp),y.
package mos6502

import (
	"fmt"

	"octet/internal/codegen"
	"octet/internal/reg"
)

// Name is the target name used on the command line.
const Name = "6502"

const (
	// zeroPage is the address of zp0. zp0..zp7 follow it, then the
	// backend's own scratch byte.
	zeroPage = 0xe0
	scratch  = "zt"
)

type registers struct {
	a, x, y *reg.Byte
	zp      []*reg.Byte
	zw      []*reg.Word
}

// New builds the architecture description.
func New() *codegen.Architecture {
	f := reg.NewFile(false)
	r := &registers{a: f.Byte("a"), x: f.Byte("x"), y: f.Byte("y")}
	for i := range 8 {
		r.zp = append(r.zp, f.Byte(fmt.Sprintf("zp%d", i)))
	}
	for i := range 4 {
		w := f.Pair(fmt.Sprintf("zw%d", i), r.zp[2*i+1], r.zp[2*i], reg.Indexed(0, 255))
		r.zw = append(r.zw, w)
	}

	// y is the index of every indirect access and never allocated.
	bytes := append([]*reg.Byte{r.a, r.x}, r.zp...)
	return &codegen.Architecture{
		Name:           Name,
		Registers:      f,
		ByteRegisters:  bytes,
		Accumulators:   []*reg.Byte{r.a},
		WordRegisters:  r.zw,
		ByteParameters: []*reg.Byte{r.a, r.x},
		WordParameters: []*reg.Word{r.zw[0]},
		ByteReturn:     r.a,
		WordReturn:     r.zw[0],
		Passing:        codegen.PassViaPointer,
		Bytes:          &byteEmitter{r},
		Words:          &wordEmitter{r},
		Flow:           &flowEmitter{r},
		AddressByte: func(label string, high bool) string {
			if high {
				return ">" + label
			}
			return "<" + label
		},
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// cpu returns the letter of a processor register, or "" for a zero-page one.
func (r *registers) cpu(b *reg.Byte) string {
	switch b {
	case r.a:
		return "a"
	case r.x:
		return "x"
	case r.y:
		return "y"
	}
	return ""
}

// transit runs emit with a processor register it may overwrite, named by
// its letter. A free register is used when there is one; otherwise a is
// saved on the stack, which changes n and z but keeps the carry.
func (r *registers) transit(c *codegen.Context, emit func(t string)) {
	for _, b := range []*reg.Byte{r.x, r.a} {
		if !c.IsRegisterInUse(b) {
			emit(r.cpu(b))
			c.Clobber(b)
			return
		}
	}
	c.Writef("pha")
	emit("a")
	c.Writef("pla")
}

// index loads y with an indirect offset.
func (r *registers) index(c *codegen.Context, offset int) {
	if c.IsRegisterInUse(r.y) {
		c.Fail("y is needed as index but holds a value")
	}
	c.Writef("ldy #%d", offset)
	c.Clobber(r.y)
}

// withA runs emit free to overwrite a, saving it on the stack when it holds
// a value.
func (r *registers) withA(c *codegen.Context, emit func()) {
	if !c.IsRegisterInUse(r.a) {
		emit()
		c.Clobber(r.a)
		return
	}
	c.Writef("pha")
	emit()
	c.Writef("pla")
}

// ---------------------------------------------------------------------------
// Byte instructions
// ---------------------------------------------------------------------------

type byteEmitter struct{ r *registers }

func (e *byteEmitter) LoadConstant(c *codegen.Context, r *reg.Byte, value string) {
	if t := e.r.cpu(r); t != "" {
		c.Writef("ld%s #%s", t, value)
		return
	}
	e.r.transit(c, func(t string) {
		c.Writef("ld%s #%s", t, value)
		c.Writef("st%s %s", t, r)
	})
}

func (e *byteEmitter) LoadFromMemory(c *codegen.Context, r *reg.Byte, label string) {
	if t := e.r.cpu(r); t != "" {
		c.Writef("ld%s %s", t, label)
		return
	}
	e.r.transit(c, func(t string) {
		c.Writef("ld%s %s", t, label)
		c.Writef("st%s %s", t, r)
	})
}

func (e *byteEmitter) StoreToMemory(c *codegen.Context, r *reg.Byte, label string) {
	if t := e.r.cpu(r); t != "" {
		c.Writef("st%s %s", t, label)
		return
	}
	e.r.transit(c, func(t string) {
		c.Writef("ld%s %s", t, r)
		c.Writef("st%s %s", t, label)
	})
}

// fromA moves a into r.
func (e *byteEmitter) fromA(c *codegen.Context, r *reg.Byte) {
	switch r {
	case e.r.a:
	case e.r.x:
		c.Writef("tax")
	case e.r.y:
		c.Writef("tay")
	default:
		c.Writef("sta %s", r)
	}
}

// toA moves r into a.
func (e *byteEmitter) toA(c *codegen.Context, r *reg.Byte) {
	switch r {
	case e.r.a:
	case e.r.x:
		c.Writef("txa")
	case e.r.y:
		c.Writef("tya")
	default:
		c.Writef("lda %s", r)
	}
}

func (e *byteEmitter) LoadIndirect(c *codegen.Context, r *reg.Byte, ptr *reg.Word, offset int) {
	load := func() {
		e.r.index(c, offset)
		c.Writef("lda (%s),y", ptr)
		e.fromA(c, r)
	}
	if r == e.r.a {
		load()
		return
	}
	e.r.withA(c, load)
}

func (e *byteEmitter) StoreIndirect(c *codegen.Context, r *reg.Byte, ptr *reg.Word, offset int) {
	store := func() {
		e.toA(c, r)
		e.r.index(c, offset)
		c.Writef("sta (%s),y", ptr)
	}
	if r == e.r.a {
		store()
		return
	}
	e.r.withA(c, store)
}

func (e *byteEmitter) Copy(c *codegen.Context, dst, src *reg.Byte) {
	d, s := e.r.cpu(dst), e.r.cpu(src)
	switch {
	case d == "a" && s != "":
		e.toA(c, src)
	case s == "a" && d != "":
		e.fromA(c, dst)
	case d != "" && s != "":
		c.Writef("st%s %s", s, scratch)
		c.Writef("ld%s %s", d, scratch)
	case s != "":
		c.Writef("st%s %s", s, dst)
	case d != "":
		c.Writef("ld%s %s", d, src)
	default:
		e.r.transit(c, func(t string) {
			c.Writef("ld%s %s", t, src)
			c.Writef("st%s %s", t, dst)
		})
	}
}

func (e *byteEmitter) CanExchange(a, b *reg.Byte) bool { return false }

func (e *byteEmitter) Exchange(c *codegen.Context, a, b *reg.Byte) {
	c.Fail("6502 has no exchange for %s and %s", a, b)
}

// operation renders op applied to operand, including the carry setup that
// plain addition and subtraction need.
func operation(c *codegen.Context, op codegen.Operator, operand string) {
	switch op {
	case codegen.OpAdd:
		c.Writef("clc")
		c.Writef("adc %s", operand)
	case codegen.OpAddCarry:
		c.Writef("adc %s", operand)
	case codegen.OpSub:
		c.Writef("sec")
		c.Writef("sbc %s", operand)
	case codegen.OpSubBorrow:
		c.Writef("sbc %s", operand)
	case codegen.OpAnd:
		c.Writef("and %s", operand)
	case codegen.OpOr:
		c.Writef("ora %s", operand)
	case codegen.OpXor:
		c.Writef("eor %s", operand)
	case codegen.OpCompare:
		c.Writef("cmp %s", operand)
	default:
		c.Fail("6502: unknown operator %s", op)
	}
}

func (e *byteEmitter) accumulator(c *codegen.Context, r *reg.Byte) {
	if r != e.r.a {
		c.Fail("6502 arithmetic needs the accumulator, got %s", r)
	}
}

func (e *byteEmitter) OperateConstant(c *codegen.Context, r *reg.Byte, op codegen.Operator, value string) {
	e.accumulator(c, r)
	operation(c, op, "#"+value)
}

func (e *byteEmitter) OperateRegister(c *codegen.Context, r *reg.Byte, op codegen.Operator, src *reg.Byte) {
	e.accumulator(c, r)
	if t := e.r.cpu(src); t != "" {
		c.Writef("st%s %s", t, scratch)
		operation(c, op, scratch)
		return
	}
	operation(c, op, src.Name())
}

func (e *byteEmitter) OperateMemory(c *codegen.Context, r *reg.Byte, op codegen.Operator, label string) {
	e.accumulator(c, r)
	operation(c, op, label)
}

func (e *byteEmitter) OperateIndirect(c *codegen.Context, r *reg.Byte, op codegen.Operator, ptr *reg.Word, offset int) {
	e.accumulator(c, r)
	e.r.index(c, offset)
	operation(c, op, fmt.Sprintf("(%s),y", ptr))
}

func (e *byteEmitter) Modify(c *codegen.Context, r *reg.Byte, m codegen.Modifier) {
	switch e.r.cpu(r) {
	case "a":
		switch m {
		case codegen.ModIncrement:
			operation(c, codegen.OpAdd, "#1")
		case codegen.ModDecrement:
			operation(c, codegen.OpSub, "#1")
		case codegen.ModShiftLeft:
			c.Writef("asl a")
		case codegen.ModShiftRight:
			c.Writef("lsr a")
		}
	case "x", "y":
		t := e.r.cpu(r)
		switch m {
		case codegen.ModIncrement:
			c.Writef("in%s", t)
		case codegen.ModDecrement:
			c.Writef("de%s", t)
		default:
			c.Writef("st%s %s", t, scratch)
			e.modifyMemory(c, scratch, m)
			c.Writef("ld%s %s", t, scratch)
		}
	default:
		e.modifyMemory(c, r.Name(), m)
	}
}

func (e *byteEmitter) modifyMemory(c *codegen.Context, operand string, m codegen.Modifier) {
	switch m {
	case codegen.ModIncrement:
		c.Writef("inc %s", operand)
	case codegen.ModDecrement:
		c.Writef("dec %s", operand)
	case codegen.ModShiftLeft:
		c.Writef("asl %s", operand)
	case codegen.ModShiftRight:
		c.Writef("lsr %s", operand)
	}
}

// ---------------------------------------------------------------------------
// Word instructions
// ---------------------------------------------------------------------------

type wordEmitter struct{ r *registers }

// halves moves a word byte by byte through a transit register. from and to
// render the source and destination of the low (0) or high (1) byte.
func (e *wordEmitter) halves(c *codegen.Context, from, to func(k int) string) {
	e.r.transit(c, func(t string) {
		for k := range 2 {
			c.Writef("ld%s %s", t, from(k))
			c.Writef("st%s %s", t, to(k))
		}
	})
}

func half(w *reg.Word, k int) string { return w.Half(k).Name() }

func offsetLabel(label string, k int) string {
	if k == 0 {
		return label
	}
	return fmt.Sprintf("%s+%d", label, k)
}

func (e *wordEmitter) LoadConstant(c *codegen.Context, r *reg.Word, value string) {
	e.halves(c,
		func(k int) string {
			if k == 0 {
				return "#<" + value
			}
			return "#>" + value
		},
		func(k int) string { return half(r, k) })
}

func (e *wordEmitter) LoadFromMemory(c *codegen.Context, r *reg.Word, label string) {
	e.halves(c,
		func(k int) string { return offsetLabel(label, k) },
		func(k int) string { return half(r, k) })
}

func (e *wordEmitter) StoreToMemory(c *codegen.Context, r *reg.Word, label string) {
	e.halves(c,
		func(k int) string { return half(r, k) },
		func(k int) string { return offsetLabel(label, k) })
}

func (e *wordEmitter) Copy(c *codegen.Context, dst, src *reg.Word) {
	e.halves(c,
		func(k int) string { return half(src, k) },
		func(k int) string { return half(dst, k) })
}

func (e *wordEmitter) CanExchange(a, b *reg.Word) bool { return false }

func (e *wordEmitter) Exchange(c *codegen.Context, a, b *reg.Word) {
	c.Fail("6502 has no exchange for %s and %s", a, b)
}

// AddConstant saves the flags and a around a two-byte addition.
func (e *wordEmitter) AddConstant(c *codegen.Context, r *reg.Word, delta int) {
	value := delta & 0xffff
	c.Writef("php")
	c.Writef("pha")
	c.Writef("clc")
	c.Writef("lda %s", r.Low())
	c.Writef("adc #%d", value&0xff)
	c.Writef("sta %s", r.Low())
	c.Writef("lda %s", r.High())
	c.Writef("adc #%d", value>>8)
	c.Writef("sta %s", r.High())
	c.Writef("pla")
	c.Writef("plp")
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

type flowEmitter struct{ r *registers }

func (e *flowEmitter) Label(c *codegen.Context, label string) { c.WriteLine(label + ":") }
func (e *flowEmitter) Jump(c *codegen.Context, label string)  { c.Writef("jmp %s", label) }
func (e *flowEmitter) Call(c *codegen.Context, label string)  { c.Writef("jsr %s", label) }
func (e *flowEmitter) Return(c *codegen.Context)              { c.Writef("rts") }

// Branch jumps over a jmp with the inverted short branch, so the target may
// be anywhere.
func (e *flowEmitter) Branch(c *codegen.Context, cond codegen.Condition, signed bool, label string) {
	if signed && cond != codegen.CondEqual && cond != codegen.CondNotEqual {
		c.Fail("signed %s comparison is not supported on 6502", cond)
	}
	skip := c.NewLabel()
	switch cond {
	case codegen.CondEqual:
		c.Writef("bne %s", skip)
	case codegen.CondNotEqual:
		c.Writef("beq %s", skip)
	case codegen.CondLess:
		c.Writef("bcs %s", skip)
	case codegen.CondGreaterEqual:
		c.Writef("bcc %s", skip)
	case codegen.CondLessEqual:
		taken := c.NewLabel()
		c.Writef("beq %s", taken)
		c.Writef("bcs %s", skip)
		c.WriteLine(taken + ":")
	case codegen.CondGreater:
		c.Writef("beq %s", skip)
		c.Writef("bcc %s", skip)
	}
	c.Writef("jmp %s", label)
	c.WriteLine(skip + ":")
}

func (e *flowEmitter) Storage(label string, size int) string {
	return fmt.Sprintf("%s:\t.res %d", label, size)
}

// Preamble assigns the zero-page registers their addresses.
func (e *flowEmitter) Preamble() []string {
	var lines []string
	for i, b := range e.r.zp {
		lines = append(lines, fmt.Sprintf("%s = $%02x", b, zeroPage+i))
	}
	return append(lines, fmt.Sprintf("%s = $%02x", scratch, zeroPage+len(e.r.zp)))
}
