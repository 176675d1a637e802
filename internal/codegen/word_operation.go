package codegen

import (
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Word register operations
// ---------------------------------------------------------------------------

// LoadWordConstant loads an integer into r unless r already holds it.
func (c *Context) LoadWordConstant(r *reg.Word, value int) {
	c.loadWordLiteral(r, itoa(value&0xffff))
}

func (c *Context) loadWordLiteral(r *reg.Word, value string) {
	if c.IsConstantAssigned(r, value) {
		return
	}
	c.protect(r, func() { c.arch.Words.LoadConstant(c, r, value) })
	c.Clobber(r)
	c.SetRegisterConstant(r, value)
}

// LoadWordFromVariable loads v's word at offset from memory and binds it.
func (c *Context) LoadWordFromVariable(r *reg.Word, v *Variable, offset int) {
	c.protect(r, func() { c.arch.Words.LoadFromMemory(c, r, v.MemoryAddress(offset)) })
	c.Clobber(r)
	c.SetVariableRegister(v, offset, r)
}

// StoreWordToVariable writes r to v's memory at offset and binds it.
func (c *Context) StoreWordToVariable(r *reg.Word, v *Variable, offset int) {
	c.protect(r, func() { c.arch.Words.StoreToMemory(c, r, v.MemoryAddress(offset)) })
	c.SetVariableRegister(v, offset, r)
}

// LoadWordIndirect loads the word at ptr+offset, low byte first.
func (c *Context) LoadWordIndirect(r *reg.Word, ptr *reg.Word, offset int) {
	if !r.IsPair() {
		UsingAnyRegister(c, without(c.arch.PairRegisters(), ptr, r), nil, func(t *reg.Word) {
			c.LoadWordIndirect(t, ptr, offset)
			c.CopyWord(r, t)
		})
		return
	}
	if reg.Overlaps(r, ptr) {
		// Loading the first half would destroy the pointer.
		if others := without(c.arch.PointerRegisters(offset), r); HasFreeRegister(c, others) {
			UsingAnyRegister(c, others, nil, func(t *reg.Word) {
				c.CopyWord(t, ptr)
				c.LoadWordIndirect(r, t, offset)
			})
			return
		}
		c.protect(ptr, func() {
			UsingAnyRegister(c, without(c.arch.ByteRegisters, ptr), nil, func(t *reg.Byte) {
				c.LoadByteIndirect(t, ptr, offset)
				c.LoadByteIndirect(r.High(), ptr, offset+1)
				c.CopyByte(r.Low(), t)
			})
		})
		c.Clobber(r)
		return
	}
	c.protect(ptr, func() {
		c.LoadByteIndirect(r.Low(), ptr, offset)
		c.LoadByteIndirect(r.High(), ptr, offset+1)
	})
	c.Clobber(r)
}

// StoreWordIndirect stores r at ptr+offset, low byte first.
func (c *Context) StoreWordIndirect(r *reg.Word, ptr *reg.Word, offset int) {
	if !r.IsPair() {
		UsingAnyRegister(c, without(c.arch.PairRegisters(), ptr, r), nil, func(t *reg.Word) {
			c.CopyWord(t, r)
			c.StoreWordIndirect(t, ptr, offset)
		})
		return
	}
	if reg.Overlaps(r, ptr) {
		UsingAnyRegister(c, without(c.arch.PointerRegisters(offset), r), nil, func(t *reg.Word) {
			c.CopyWord(t, ptr)
			c.StoreWordIndirect(r, t, offset)
		})
		return
	}
	c.protect(r, func() {
		c.protect(ptr, func() {
			c.StoreByteIndirect(r.Low(), ptr, offset)
			c.StoreByteIndirect(r.High(), ptr, offset+1)
		})
	})
}

// CopyWord copies src into dst. dst inherits src's cached contents.
func (c *Context) CopyWord(dst, src *reg.Word) {
	if dst == src {
		return
	}
	c.protect(src, func() {
		c.protect(dst, func() { c.arch.Words.Copy(c, dst, src) })
	})
	c.Clobber(dst)
	c.copyAssignments(dst, src)
}

// ExchangeWords swaps the contents of a and b: natively, through a spare word
// register, or half by half for two pairs.
func (c *Context) ExchangeWords(a, b *reg.Word) {
	if a == b {
		return
	}
	switch {
	case c.arch.Words.CanExchange(a, b):
		c.arch.Words.Exchange(c, a, b)
	case HasFreeRegister(c, without(c.arch.WordRegisters, a, b)):
		c.protect(a, func() {
			c.protect(b, func() {
				UsingAnyRegister(c, without(c.arch.WordRegisters, a, b), nil, func(t *reg.Word) {
					c.arch.Words.Copy(c, t, a)
					c.arch.Words.Copy(c, a, b)
					c.arch.Words.Copy(c, b, t)
					c.Clobber(t)
				})
			})
		})
	case a.IsPair() && b.IsPair():
		// The byte exchanges already moved the bindings of the halves.
		c.ExchangeBytes(a.Low(), b.Low())
		c.ExchangeBytes(a.High(), b.High())
		c.AddChanged(a)
		c.AddChanged(b)
		return
	default:
		c.Fail("cannot exchange %s and %s", a, b)
	}
	c.AddChanged(a)
	c.AddChanged(b)
	c.swapAssignments(a, b)
}

// AddWordConstant adds delta to r.
func (c *Context) AddWordConstant(r *reg.Word, delta int) {
	if delta == 0 {
		return
	}
	c.protect(r, func() { c.arch.Words.AddConstant(c, r, delta) })
	c.Clobber(r)
}

// LoadWord brings a word operand into r, cheapest way first.
func (c *Context) LoadWord(r *reg.Word, operand Operand) {
	switch o := operand.(type) {
	case *IntegerOperand:
		if o.Type().ByteCount == 2 {
			c.LoadWordConstant(r, o.Value)
		} else {
			c.loadWordLiteral(r, o.Literal())
		}
	case *StringOperand:
		c.loadWordLiteral(r, o.Value)
	case *VariableOperand:
		if src, ok := c.VariableRegister(o.Variable, o.Offset, 2).(*reg.Word); ok {
			c.CopyWord(r, src)
			return
		}
		c.LoadWordFromVariable(r, o.Variable, o.Offset)
	case *IndirectOperand:
		c.withPointer(o.Pointer, o.Offset, r, func(ptr *reg.Word) {
			c.LoadWordIndirect(r, ptr, o.Offset)
		})
	case *RegisterOperand:
		src, ok := o.Reg.(*reg.Word)
		if !ok {
			c.Unsupported(o, "byte register as word source")
		}
		c.CopyWord(r, src)
	default:
		c.Unsupported(operand, "word source")
	}
}

// StoreWord writes r to a word destination.
func (c *Context) StoreWord(r *reg.Word, operand Operand) {
	switch o := operand.(type) {
	case *VariableOperand:
		if pinned, ok := o.Register().(*reg.Word); ok {
			c.CopyWord(pinned, r)
			return
		}
		c.StoreWordToVariable(r, o.Variable, o.Offset)
	case *IndirectOperand:
		c.withPointer(o.Pointer, o.Offset, r, func(ptr *reg.Word) {
			c.StoreWordIndirect(r, ptr, o.Offset)
		})
	case *RegisterOperand:
		dst, ok := o.Reg.(*reg.Word)
		if !ok {
			c.Unsupported(o, "byte register as word destination")
		}
		c.CopyWord(dst, r)
	default:
		c.Unsupported(operand, "word destination")
	}
}

// ---------------------------------------------------------------------------
// Width dispatch
// ---------------------------------------------------------------------------

// Load brings operand into r of either width.
func (c *Context) Load(r reg.Register, operand Operand) {
	switch x := r.(type) {
	case *reg.Byte:
		c.LoadByte(x, operand)
	case *reg.Word:
		c.LoadWord(x, operand)
	}
}

// Store writes r of either width to operand.
func (c *Context) Store(r reg.Register, operand Operand) {
	switch x := r.(type) {
	case *reg.Byte:
		c.StoreByte(x, operand)
	case *reg.Word:
		c.StoreWord(x, operand)
	}
}

// CopyRegister copies between registers of the same width.
func (c *Context) CopyRegister(dst, src reg.Register) {
	switch d := dst.(type) {
	case *reg.Byte:
		c.CopyByte(d, src.(*reg.Byte))
	case *reg.Word:
		c.CopyWord(d, src.(*reg.Word))
	}
}

// ExchangeRegisters swaps two registers of the same width.
func (c *Context) ExchangeRegisters(a, b reg.Register) {
	switch x := a.(type) {
	case *reg.Byte:
		c.ExchangeBytes(x, b.(*reg.Byte))
	case *reg.Word:
		c.ExchangeWords(x, b.(*reg.Word))
	}
}

// canExchange reports whether a and b can be swapped with one native
// instruction.
func (c *Context) canExchange(a, b reg.Register) bool {
	switch x := a.(type) {
	case *reg.Byte:
		y, ok := b.(*reg.Byte)
		return ok && c.arch.Bytes.CanExchange(x, y)
	case *reg.Word:
		y, ok := b.(*reg.Word)
		return ok && c.arch.Words.CanExchange(x, y)
	}
	return false
}
