package codegen

import (
	"fmt"

	"octet/internal/reg"
)

// BinomialInstruction computes Destination = Left op Right.
type BinomialInstruction struct {
	instruction
	Operator    Operator
	Destination AssignableOperand
	Left, Right Operand
}

func (i *BinomialInstruction) String() string {
	return fmt.Sprintf("%s = %s %s %s", i.Destination, i.Left, i.Operator, i.Right)
}

func (i *BinomialInstruction) Build(c *Context) {
	t := i.Destination.Type()
	left := retype(i.Left, t)
	right := retype(i.Right, t)
	for _, op := range []Operand{left, right} {
		if op.Type().ByteCount != t.ByteCount {
			c.Unsupported(op, "operand width differs from destination")
		}
	}
	c.protectSources(left, right)
	switch t.ByteCount {
	case 1:
		i.buildByte(c, left, right)
	case 2:
		i.buildWord(c, left, right)
	default:
		c.Unsupported(i.Destination, fmt.Sprintf("%d-byte arithmetic", t.ByteCount))
	}
}

func (i *BinomialInstruction) buildByte(c *Context, left, right Operand) {
	op := i.Operator
	dst := i.Destination
	if n, ok := right.(*IntegerOperand); ok && n.Value&0xff == 1 && (op == OpAdd || op == OpSub) {
		m := ModIncrement
		if op == OpSub {
			m = ModDecrement
		}
		UsingAnyRegister(c, c.arch.ByteRegisters, append([]Operand{dst}, changeable(left)...), func(r *reg.Byte) {
			c.LoadByte(r, left)
			c.ModifyByte(r, m)
			c.StoreByte(r, dst)
		})
		return
	}
	left, right, moved := c.freeAccumulator(op.IsCommutative(), left, right)
	if moved != nil {
		defer moved.Release()
	}
	prefs := changeable(left)
	if !reg.Overlaps(dst.Register(), c.sourceRegister(right)) {
		prefs = append([]Operand{dst}, prefs...)
	}
	UsingAnyRegister(c, c.arch.Accumulators, prefs, func(r *reg.Byte) {
		c.LoadByte(r, left)
		c.OperateByte(r, op, right)
		c.StoreByte(r, dst)
	})
}

// buildWord works byte by byte through an accumulator, low byte first, with
// the carry propagating from the low to the high operation.
func (i *BinomialInstruction) buildWord(c *Context, left, right Operand) {
	lowOp, highOp := i.Operator.carryChain()
	dst := i.Destination
	UsingAnyRegister(c, c.arch.Accumulators, nil, func(r *reg.Byte) {
		for k, op := range []Operator{lowOp, highOp} {
			c.LoadByte(r, byteOf(left, c.arch, k))
			c.OperateByte(r, op, byteOf(right, c.arch, k))
			c.StoreByte(r, byteOf(dst, c.arch, k))
		}
	})
}

// freeAccumulator makes sure the right operand does not occupy an
// accumulator that has to be loaded with the left one. A cached variable is
// simply left to be read from memory; a register-resident value is commuted
// to the left when allowed, or else copied into a reserved spare register
// that the caller releases.
func (c *Context) freeAccumulator(commutative bool, left, right Operand) (Operand, Operand, *Reservation[*reg.Byte]) {
	rr, ok := c.sourceRegister(right).(*reg.Byte)
	if !ok || !containsOverlap(byteRegisters(c.arch.Accumulators), rr) {
		return left, right, nil
	}
	if v, ok := right.(*VariableOperand); ok && v.Register() == nil {
		c.removeSource(rr)
		return left, right, nil
	}
	if lr := c.sourceRegister(left); commutative && (lr == nil || !containsOverlap(byteRegisters(c.arch.Accumulators), lr)) {
		return right, left, nil
	}
	spare := ReserveAnyRegister(c, without(c.arch.ByteRegisters, byteRegisters(c.arch.Accumulators)...))
	c.CopyByte(spare.Register, rr)
	return left, NewRegister(right.Type(), spare.Register), spare
}

func byteRegisters(bs []*reg.Byte) []reg.Register {
	out := make([]reg.Register, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

// retype gives an integer constant the type of the destination.
func retype(op Operand, t *Type) Operand {
	if n, ok := op.(*IntegerOperand); ok && n.typ != t {
		return NewInteger(t, n.Value)
	}
	return op
}

// ---------------------------------------------------------------------------
// Conditional jumps
// ---------------------------------------------------------------------------

// CompareJumpInstruction jumps to Target when Left Condition Right holds.
type CompareJumpInstruction struct {
	instruction
	Condition   Condition
	Left, Right Operand
	Target      *Anchor
}

func (i *CompareJumpInstruction) String() string {
	return fmt.Sprintf("if %s %s %s goto %s", i.Left, i.Condition, i.Right, i.Target.Label)
}

func (i *CompareJumpInstruction) Build(c *Context) {
	cond, left, right := i.Condition, i.Left, i.Right
	if _, ok := left.(*IntegerOperand); ok {
		left, right = right, left
		cond = cond.swapped()
	}
	right = retype(right, left.Type())
	if cond == CondGreater || cond == CondLessEqual {
		left, right = right, left
		cond = cond.swapped()
	}
	if left.Type().ByteCount != right.Type().ByteCount {
		c.Unsupported(right, "operand width differs in comparison")
	}
	signed := left.Type().Signed || right.Type().Signed
	c.protectSources(left, right)

	if left.Type().ByteCount == 1 {
		left, right, moved := c.freeAccumulator(false, left, right)
		if moved != nil {
			defer moved.Release()
		}
		UsingAnyRegister(c, c.arch.Accumulators, changeable(left), func(r *reg.Byte) {
			c.LoadByte(r, left)
			c.OperateByte(r, OpCompare, right)
			c.arch.Flow.Branch(c, cond, signed, i.Target.Label)
		})
		return
	}

	switch cond {
	case CondEqual, CondNotEqual:
		skip := ""
		UsingAnyRegister(c, c.arch.Accumulators, nil, func(r *reg.Byte) {
			for k := 0; k < 2; k++ {
				c.LoadByte(r, byteOf(left, c.arch, k))
				c.OperateByte(r, OpCompare, byteOf(right, c.arch, k))
				switch {
				case cond == CondNotEqual:
					c.arch.Flow.Branch(c, CondNotEqual, false, i.Target.Label)
				case k == 0:
					skip = c.NewLabel()
					c.arch.Flow.Branch(c, CondNotEqual, false, skip)
				default:
					c.arch.Flow.Branch(c, CondEqual, false, i.Target.Label)
				}
			}
		})
		if skip != "" {
			c.arch.Flow.Label(c, skip)
			// The path through skip did not see the high-byte loads.
			for _, r := range c.changed {
				c.RemoveRegisterAssignment(r)
			}
		}
	default:
		UsingAnyRegister(c, c.arch.Accumulators, nil, func(r *reg.Byte) {
			c.LoadByte(r, byteOf(left, c.arch, 0))
			c.OperateByte(r, OpCompare, byteOf(right, c.arch, 0))
			c.LoadByte(r, byteOf(left, c.arch, 1))
			c.OperateByte(r, OpSubBorrow, byteOf(right, c.arch, 1))
			c.arch.Flow.Branch(c, cond, signed, i.Target.Label)
		})
	}
}

// DecrementJumpInstruction decrements a byte counter and jumps to Target
// while it is not zero.
type DecrementJumpInstruction struct {
	instruction
	Counter AssignableOperand
	Target  *Anchor
}

func (i *DecrementJumpInstruction) String() string {
	return fmt.Sprintf("loop %s goto %s", i.Counter, i.Target.Label)
}

func (i *DecrementJumpInstruction) Build(c *Context) {
	if i.Counter.Type().ByteCount != 1 {
		c.Unsupported(i.Counter, "word loop counter")
	}
	UsingAnyRegister(c, c.arch.ByteRegisters, []Operand{i.Counter}, func(r *reg.Byte) {
		c.LoadByte(r, i.Counter)
		c.ModifyByte(r, ModDecrement)
		c.StoreByte(r, i.Counter)
		c.arch.Flow.Branch(c, CondNotEqual, false, i.Target.Label)
	})
}
