package codegen

import (
	"golang.org/x/exp/slices"

	"octet/internal/reg"
)

// prologue stores the register parameters of a function into their
// variables. It runs before the first instruction, at address -1.
type prologue struct {
	function *Function
}

func (p *prologue) Address() int { return -1 }

func (p *prologue) String() string { return p.function.Name + ":" }

func (p *prologue) Build(c *Context) {
	var params []*Parameter
	for _, prm := range p.function.Parameters {
		if prm.Register != nil {
			params = append(params, prm)
			c.hold(prm.Register)
		}
	}
	// Accumulator parameters first: storing the others may need the
	// accumulator as scratch.
	accumulator := func(prm *Parameter) bool {
		b, ok := prm.Register.(*reg.Byte)
		return ok && slices.Contains(c.arch.Accumulators, b)
	}
	slices.SortStableFunc(params, func(a, b *Parameter) int {
		switch {
		case accumulator(a) && !accumulator(b):
			return -1
		case accumulator(b) && !accumulator(a):
			return 1
		}
		return 0
	})
	for _, prm := range params {
		r := prm.Register
		c.unhold(r)
		if len(prm.Variable.Usages()) == 0 {
			continue
		}
		c.protect(r, func() {
			switch x := r.(type) {
			case *reg.Byte:
				c.StoreByteToVariable(x, prm.Variable, 0)
			case *reg.Word:
				c.StoreWordToVariable(x, prm.Variable, 0)
			}
		})
	}
}
