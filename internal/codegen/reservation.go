package codegen

import (
	"golang.org/x/exp/slices"

	"octet/internal/reg"
)

// Reservation is a scoped claim on a register for the current instruction.
// Reservations nest: they must be released in reverse order of acquisition,
// which `defer r.Release()` right after acquiring guarantees.
type Reservation[R reg.Register] struct {
	Register R

	c        *Context
	depth    int
	released bool
}

// Release returns the register. Releasing twice is a no-op; releasing out of
// order is an internal error.
func (r *Reservation[R]) Release() {
	if r.released {
		return
	}
	c := r.c
	if len(c.reserved) != r.depth+1 || c.reserved[r.depth] != reg.Register(r.Register) {
		c.Fail("reservation of %s released out of order", r.Register)
	}
	c.reserved = c.reserved[:r.depth]
	r.released = true
}

// ReserveRegister claims r. Reserving a register that is already reserved, or
// shares storage with a reserved one, is an internal error. The operands are
// accepted for symmetry with ReserveAnyRegister and only used in messages.
func ReserveRegister[R reg.Register](c *Context, r R, operands ...Operand) *Reservation[R] {
	var x reg.Register = r
	if c.IsRegisterReserved(x) {
		msg := "register " + x.Name() + " is already reserved"
		if len(operands) > 0 && operands[0] != nil {
			panic(c.internalError(operands[0].String(), msg))
		}
		c.Fail("%s", msg)
	}
	c.reserved = append(c.reserved, x)
	return &Reservation[R]{Register: r, c: c, depth: len(c.reserved) - 1}
}

// ReserveAnyRegister claims one of candidates. A candidate that already holds
// one of the operands is preferred as long as it is not reserved; otherwise
// the first candidate not in use is taken. No free candidate is an internal
// error.
func ReserveAnyRegister[R reg.Register](c *Context, candidates []R, operands ...Operand) *Reservation[R] {
	if r, ok := pickRegister(c, candidates, operands...); ok {
		return ReserveRegister(c, r)
	}
	var names []string
	for _, r := range candidates {
		names = append(names, reg.Register(r).Name())
	}
	c.Fail("no free register among %v", names)
	return nil
}

// pickRegister chooses without reserving.
func pickRegister[R reg.Register](c *Context, candidates []R, operands ...Operand) (R, bool) {
	for _, op := range operands {
		pref := c.operandRegister(op)
		if pref == nil {
			continue
		}
		i := slices.IndexFunc(candidates, func(r R) bool { return reg.Register(r) == pref })
		if i >= 0 && !c.IsRegisterReserved(pref) {
			return candidates[i], true
		}
	}
	for _, r := range candidates {
		if !c.IsRegisterInUse(r) {
			return r, true
		}
	}
	var zero R
	return zero, false
}

// HasFreeRegister reports whether ReserveAnyRegister would succeed.
func HasFreeRegister[R reg.Register](c *Context, candidates []R, operands ...Operand) bool {
	_, ok := pickRegister(c, candidates, operands...)
	return ok
}

// UsingRegister runs fn with r reserved.
func UsingRegister[R reg.Register](c *Context, r R, fn func()) {
	res := ReserveRegister(c, r)
	defer res.Release()
	fn()
}

// UsingAnyRegister runs fn with one of candidates reserved.
func UsingAnyRegister[R reg.Register](c *Context, candidates []R, operands []Operand, fn func(R)) {
	res := ReserveAnyRegister(c, candidates, operands...)
	defer res.Release()
	fn(res.Register)
}

// protect reserves r for the duration of fn unless it is already reserved.
func (c *Context) protect(r reg.Register, fn func()) {
	if r == nil || c.IsRegisterReserved(r) {
		fn()
		return
	}
	UsingRegister(c, r, fn)
}

// without filters out candidates overlapping any of the given registers.
func without[R reg.Register](candidates []R, avoid ...reg.Register) []R {
	var out []R
	for _, r := range candidates {
		if !slices.ContainsFunc(avoid, func(a reg.Register) bool { return reg.Overlaps(r, a) }) {
			out = append(out, r)
		}
	}
	return out
}

// changeable drops operands whose register must not be modified: pinned
// variables and register operands. The result is used as reservation
// preference for registers that will be overwritten.
func changeable(operands ...Operand) []Operand {
	var out []Operand
	for _, op := range operands {
		if op != nil && op.Register() == nil {
			out = append(out, op)
		}
	}
	return out
}
