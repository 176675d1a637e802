package codegen

import (
	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Byte register operations
//
// Each wrapper emits through the architecture's ByteEmitter and keeps the
// context consistent: written registers are clobbered, variable bindings
// follow the data, and the constant cache is consulted and updated.
// ---------------------------------------------------------------------------

// LoadByteConstant loads an integer into r unless r already holds it.
func (c *Context) LoadByteConstant(r *reg.Byte, value int) {
	c.loadByteLiteral(r, itoa(value&0xff))
}

func (c *Context) loadByteLiteral(r *reg.Byte, value string) {
	if c.IsConstantAssigned(r, value) {
		return
	}
	c.protect(r, func() { c.arch.Bytes.LoadConstant(c, r, value) })
	c.Clobber(r)
	c.SetRegisterConstant(r, value)
}

// LoadByteFromLabel loads the byte at label.
func (c *Context) LoadByteFromLabel(r *reg.Byte, label string) {
	c.protect(r, func() { c.arch.Bytes.LoadFromMemory(c, r, label) })
	c.Clobber(r)
}

// StoreByteToLabel stores r at label.
func (c *Context) StoreByteToLabel(r *reg.Byte, label string) {
	c.protect(r, func() { c.arch.Bytes.StoreToMemory(c, r, label) })
}

// LoadByteFromVariable loads v's byte at offset from memory and binds it.
func (c *Context) LoadByteFromVariable(r *reg.Byte, v *Variable, offset int) {
	c.LoadByteFromLabel(r, v.MemoryAddress(offset))
	c.SetVariableRegister(v, offset, r)
}

// StoreByteToVariable writes r to v's memory at offset and binds it.
func (c *Context) StoreByteToVariable(r *reg.Byte, v *Variable, offset int) {
	c.StoreByteToLabel(r, v.MemoryAddress(offset))
	c.SetVariableRegister(v, offset, r)
}

// LoadByteIndirect loads the byte at ptr+offset. An offset the pointer cannot
// address directly is reached by biasing the pointer and restoring it.
func (c *Context) LoadByteIndirect(r *reg.Byte, ptr *reg.Word, offset int) {
	if reg.Overlaps(r, ptr) && !ptr.IsOffsetInRange(offset) {
		UsingAnyRegister(c, without(c.arch.PointerRegisters(offset), r), nil, func(tmp *reg.Word) {
			c.CopyWord(tmp, ptr)
			c.LoadByteIndirect(r, tmp, offset)
		})
		return
	}
	c.protect(ptr, func() {
		c.protect(r, func() {
			c.biased(ptr, offset, func(o int) { c.arch.Bytes.LoadIndirect(c, r, ptr, o) })
		})
	})
	c.Clobber(r)
}

// StoreByteIndirect stores r at ptr+offset. Any variable may live there, so
// all bindings are dropped.
func (c *Context) StoreByteIndirect(r *reg.Byte, ptr *reg.Word, offset int) {
	if reg.Overlaps(r, ptr) && !ptr.IsOffsetInRange(offset) {
		UsingAnyRegister(c, without(c.arch.PointerRegisters(offset), r), nil, func(tmp *reg.Word) {
			c.CopyWord(tmp, ptr)
			c.StoreByteIndirect(r, tmp, offset)
		})
		return
	}
	c.protect(ptr, func() {
		c.protect(r, func() {
			c.biased(ptr, offset, func(o int) { c.arch.Bytes.StoreIndirect(c, r, ptr, o) })
		})
	})
	c.forgetVariables()
}

// StoreByteConstantIndirect stores a constant at ptr+offset, natively when
// the backend can, otherwise through a scratch register.
func (c *Context) StoreByteConstantIndirect(ptr *reg.Word, offset int, value int) {
	lit := itoa(value & 0xff)
	if s, ok := c.arch.Bytes.(ConstantIndirectStorer); ok {
		c.protect(ptr, func() {
			c.biased(ptr, offset, func(o int) { s.StoreConstantIndirect(c, ptr, o, lit) })
		})
		c.forgetVariables()
		return
	}
	c.protect(ptr, func() {
		UsingAnyRegister(c, without(c.arch.ByteRegisters, ptr), []Operand{NewInteger(ByteType, value)}, func(r *reg.Byte) {
			c.LoadByteConstant(r, value)
			c.StoreByteIndirect(r, ptr, offset)
		})
	})
}

// ClearByte sets v's byte at offset to zero.
func (c *Context) ClearByte(v *Variable, offset int) {
	if cl, ok := c.arch.Bytes.(ByteClearer); ok {
		cl.ClearMemory(c, v.MemoryAddress(offset))
		c.RemoveVariableRegister(v, offset, 1)
		return
	}
	zero := NewInteger(ByteType, 0)
	UsingAnyRegister(c, c.arch.ByteRegisters, []Operand{zero}, func(r *reg.Byte) {
		c.LoadByteConstant(r, 0)
		c.StoreByteToVariable(r, v, offset)
	})
}

// CopyByte copies src into dst. dst inherits src's cached contents.
func (c *Context) CopyByte(dst, src *reg.Byte) {
	if dst == src {
		return
	}
	c.protect(src, func() {
		c.protect(dst, func() { c.arch.Bytes.Copy(c, dst, src) })
	})
	c.Clobber(dst)
	c.copyAssignments(dst, src)
}

// ExchangeBytes swaps the contents of a and b, natively or through a spare
// register.
func (c *Context) ExchangeBytes(a, b *reg.Byte) {
	if a == b {
		return
	}
	if c.arch.Bytes.CanExchange(a, b) {
		c.arch.Bytes.Exchange(c, a, b)
	} else {
		c.protect(a, func() {
			c.protect(b, func() {
				UsingAnyRegister(c, without(c.arch.ByteRegisters, a, b), nil, func(t *reg.Byte) {
					c.arch.Bytes.Copy(c, t, a)
					c.arch.Bytes.Copy(c, a, b)
					c.arch.Bytes.Copy(c, b, t)
					c.Clobber(t)
				})
			})
		})
	}
	c.AddChanged(a)
	c.AddChanged(b)
	c.swapAssignments(a, b)
}

// OperateByte applies r = r op operand. OpCompare leaves r unchanged.
func (c *Context) OperateByte(r *reg.Byte, op Operator, operand Operand) {
	c.protect(r, func() {
		switch o := operand.(type) {
		case *IntegerOperand:
			c.arch.Bytes.OperateConstant(c, r, op, o.Literal())
		case *StringOperand:
			c.arch.Bytes.OperateConstant(c, r, op, o.Value)
		case *VariableOperand:
			if src, ok := c.VariableRegister(o.Variable, o.Offset, 1).(*reg.Byte); ok {
				c.arch.Bytes.OperateRegister(c, r, op, src)
			} else {
				c.arch.Bytes.OperateMemory(c, r, op, o.Variable.MemoryAddress(o.Offset))
			}
		case *RegisterOperand:
			src, ok := o.Reg.(*reg.Byte)
			if !ok {
				c.Unsupported(o, "word register in byte operation")
			}
			c.arch.Bytes.OperateRegister(c, r, op, src)
		case *IndirectOperand:
			c.withPointer(o.Pointer, o.Offset, r, func(ptr *reg.Word) {
				c.biased(ptr, o.Offset, func(off int) { c.arch.Bytes.OperateIndirect(c, r, op, ptr, off) })
			})
		default:
			c.Unsupported(operand, "operand")
		}
	})
	if op != OpCompare {
		c.Clobber(r)
	}
}

// ModifyByte applies a single-register modifier to r.
func (c *Context) ModifyByte(r *reg.Byte, m Modifier) {
	c.protect(r, func() { c.arch.Bytes.Modify(c, r, m) })
	c.Clobber(r)
}

// LoadByte brings a byte operand into r, cheapest way first: nothing when r
// already holds it, a register copy, a memory load, then an indirect load.
func (c *Context) LoadByte(r *reg.Byte, operand Operand) {
	switch o := operand.(type) {
	case *IntegerOperand:
		c.loadByteLiteral(r, o.Literal())
	case *StringOperand:
		c.loadByteLiteral(r, o.Value)
	case *VariableOperand:
		if src, ok := c.VariableRegister(o.Variable, o.Offset, 1).(*reg.Byte); ok {
			c.CopyByte(r, src)
			return
		}
		c.LoadByteFromVariable(r, o.Variable, o.Offset)
	case *IndirectOperand:
		c.withPointer(o.Pointer, o.Offset, r, func(ptr *reg.Word) {
			c.LoadByteIndirect(r, ptr, o.Offset)
		})
	case *RegisterOperand:
		src, ok := o.Reg.(*reg.Byte)
		if !ok {
			c.Unsupported(o, "word register as byte source")
		}
		c.CopyByte(r, src)
	default:
		c.Unsupported(operand, "byte source")
	}
}

// StoreByte writes r to a byte destination.
func (c *Context) StoreByte(r *reg.Byte, operand Operand) {
	switch o := operand.(type) {
	case *VariableOperand:
		if pinned, ok := o.Register().(*reg.Byte); ok {
			c.CopyByte(pinned, r)
			return
		}
		c.StoreByteToVariable(r, o.Variable, o.Offset)
	case *IndirectOperand:
		c.withPointer(o.Pointer, o.Offset, r, func(ptr *reg.Word) {
			c.StoreByteIndirect(r, ptr, o.Offset)
		})
	case *RegisterOperand:
		dst, ok := o.Reg.(*reg.Byte)
		if !ok {
			c.Unsupported(o, "word register as byte destination")
		}
		c.CopyByte(dst, r)
	case *StringOperand:
		c.StoreByteToLabel(r, o.Value)
		c.forgetVariables()
	default:
		c.Unsupported(operand, "byte destination")
	}
}

// ---------------------------------------------------------------------------
// Pointer access helpers
// ---------------------------------------------------------------------------

// withPointer runs fn with a pointer-capable register holding pointer's
// value: the register already caching it when there is one, otherwise a
// scratch register loaded for the purpose. The scratch register never
// overlaps avoid.
func (c *Context) withPointer(pointer *Variable, offset int, avoid reg.Register, fn func(ptr *reg.Word)) {
	if w, ok := c.VariableRegister(pointer, 0, 2).(*reg.Word); ok && w.IsPointerCapable() &&
		(!reg.Overlaps(w, avoid) || w.IsOffsetInRange(offset)) {
		c.protect(w, func() { fn(w) })
		return
	}
	op := NewVariable(pointer)
	UsingAnyRegister(c, without(c.arch.PointerRegisters(offset), avoid), []Operand{op}, func(w *reg.Word) {
		c.LoadWord(w, op)
		fn(w)
	})
}

// biased performs an indirect access at ptr+offset. When offset is out of
// the pointer's range the pointer is adjusted by the excess around the
// access, so its value (and binding) is the same afterwards.
func (c *Context) biased(ptr *reg.Word, offset int, access func(offset int)) {
	if ptr.IsOffsetInRange(offset) {
		access(offset)
		return
	}
	direct := ptr.ClampOffset(offset)
	excess := offset - direct
	c.arch.Words.AddConstant(c, ptr, excess)
	access(direct)
	c.arch.Words.AddConstant(c, ptr, -excess)
}

// copyAssignments makes dst share src's cached contents.
func (c *Context) copyAssignments(dst, src reg.Register) {
	for _, b := range c.bindings {
		if b.register == src {
			c.bindings = append(c.bindings, binding{variable: b.variable, offset: b.offset, register: dst})
		}
	}
	if v, ok := c.constants[src]; ok {
		c.constants[dst] = v
	}
}
