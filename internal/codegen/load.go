package codegen

import (
	"fmt"

	"octet/internal/reg"
)

// LoadInstruction copies Source into Destination.
type LoadInstruction struct {
	instruction
	Destination AssignableOperand
	Source      Operand
}

func (i *LoadInstruction) String() string {
	return fmt.Sprintf("%s = %s", i.Destination, i.Source)
}

func (i *LoadInstruction) Build(c *Context) {
	dst, src := i.Destination, i.Source
	width := dst.Type().ByteCount
	if n, ok := src.(*IntegerOperand); ok {
		src = NewInteger(dst.Type(), n.Value)
	} else if src.Type().ByteCount != width {
		c.Unsupported(src, fmt.Sprintf("%d-byte source for %d-byte destination", src.Type().ByteCount, width))
	}
	if dst.SameStorage(src) {
		return
	}
	c.protectSources(src)

	switch width {
	case 1:
		if n, ok := src.(*IntegerOperand); ok {
			if ind, ok := dst.(*IndirectOperand); ok {
				c.withPointer(ind.Pointer, ind.Offset, nil, func(ptr *reg.Word) {
					c.StoreByteConstantIndirect(ptr, ind.Offset, n.Value)
				})
				return
			}
		}
		UsingAnyRegister(c, c.arch.ByteRegisters, []Operand{dst, src}, func(r *reg.Byte) {
			c.LoadByte(r, src)
			c.StoreByte(r, dst)
		})
	case 2:
		UsingAnyRegister(c, c.arch.WordRegisters, []Operand{dst, src}, func(r *reg.Word) {
			c.LoadWord(r, src)
			c.StoreWord(r, dst)
		})
	default:
		c.Unsupported(dst, fmt.Sprintf("%d-byte value", width))
	}
}

// JumpInstruction jumps to an anchor unconditionally.
type JumpInstruction struct {
	instruction
	Target *Anchor
}

func (i *JumpInstruction) String() string { return "goto " + i.Target.Label }

func (i *JumpInstruction) Build(c *Context) {
	c.arch.Flow.Jump(c, i.Target.Label)
}

// ReturnInstruction loads the result into the return register and leaves the
// function.
type ReturnInstruction struct {
	instruction
	Value Operand
}

func (i *ReturnInstruction) String() string {
	if i.Value == nil {
		return "return"
	}
	return "return " + i.Value.String()
}

func (i *ReturnInstruction) Build(c *Context) {
	if i.Value != nil {
		r := c.arch.ReturnRegister(i.Value.Type().ByteCount)
		c.protectSources(i.Value)
		c.protect(r, func() { c.Load(r, i.Value) })
	}
	if !i.isLast() {
		c.arch.Flow.Jump(c, i.function.Exit.Label)
	}
}
