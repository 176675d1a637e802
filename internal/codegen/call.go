package codegen

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"octet/internal/log"
	"octet/internal/reg"
)

// CallInstruction calls Target with Arguments and stores the result, if any,
// into Destination.
type CallInstruction struct {
	instruction
	Target      *Function
	Destination AssignableOperand
	Arguments   []Operand

	rounds int
}

func (i *CallInstruction) String() string {
	args := make([]string, len(i.Arguments))
	for k, a := range i.Arguments {
		args[k] = a.String()
	}
	call := fmt.Sprintf("%s(%s)", i.Target.Name, strings.Join(args, ", "))
	if i.Destination != nil {
		return i.Destination.String() + " = " + call
	}
	return call
}

// Rounds is the number of resolver rounds the last Build needed.
func (i *CallInstruction) Rounds() int { return i.rounds }

// ---------------------------------------------------------------------------
// Parameter assignments
// ---------------------------------------------------------------------------

// parameterAssignment tracks one argument on its way to its parameter.
type parameterAssignment struct {
	parameter *Parameter
	operand   Operand
	// location is the register currently holding the argument value, or nil
	// when it has to be loaded from memory or is a constant.
	location reg.Register
	// source is the register protected on behalf of the argument: its
	// location, or the pointer register of an indirect operand.
	source reg.Register
	// register is the register holding the value once done. It differs from
	// the parameter register while the assignment is twisted.
	register reg.Register
	done     bool
}

func (a *parameterAssignment) target() reg.Register { return a.parameter.Register }

func (a *parameterAssignment) twisted() bool {
	return a.done && a.register != nil && a.register != a.target()
}

// value is the operand to load: the register it sits in when known.
func (a *parameterAssignment) value() Operand {
	if a.location != nil {
		return NewRegister(a.operand.Type(), a.location)
	}
	return a.operand
}

func (a *parameterAssignment) String() string {
	return fmt.Sprintf("%s<-%s", a.parameter.Name, a.operand)
}

func (a *parameterAssignment) finish(c *Context, r reg.Register) {
	c.removeSource(a.source)
	a.source, a.location = nil, nil
	a.done = true
	a.register = r
	c.hold(r)
}

// current is the register holding the argument value while it is pending
// or twisted.
func (a *parameterAssignment) current() reg.Register {
	if a.done {
		if a.twisted() {
			return a.register
		}
		return nil
	}
	return a.location
}

// occupies reports whether the argument value or pointer of a pending or
// twisted assignment sits in r.
func (a *parameterAssignment) occupies(r reg.Register) bool {
	if a.done {
		return a.twisted() && a.register == r
	}
	return a.source == r
}

// ---------------------------------------------------------------------------
// Build
// ---------------------------------------------------------------------------

func (i *CallInstruction) Build(c *Context) {
	fn := i.Target
	fn.AssignParameters(c.arch)
	if len(i.Arguments) != len(fn.Parameters) {
		c.Fail("%s takes %d arguments, got %d", fn.Name, len(fn.Parameters), len(i.Arguments))
	}

	// A pinned value in a register the callee clobbers is dead after the
	// call (checked below) and is only needed as an argument, which is
	// protected as a source.
	c.pinned = slices.DeleteFunc(c.pinned, func(r reg.Register) bool { return !c.arch.IsPreserved(r) })

	var registers, memory []*parameterAssignment
	for k, p := range fn.Parameters {
		arg := retype(i.Arguments[k], p.Type)
		if arg.Type().ByteCount != p.Type.ByteCount {
			c.Unsupported(arg, "argument width differs from parameter "+p.Name)
		}
		a := &parameterAssignment{parameter: p, operand: arg}
		if _, ok := arg.(*IndirectOperand); !ok {
			a.location = c.sourceRegister(arg)
		}
		a.source = c.sourceRegister(arg)
		c.addSource(a.source)
		if p.Register == nil {
			memory = append(memory, a)
		} else {
			registers = append(registers, a)
		}
	}

	if c.arch.Passing == PassViaPointer {
		i.storeParametersViaPointer(c, memory)
	} else {
		i.storeParametersDirect(c, memory)
	}
	i.fillParameters(c, registers)

	c.arch.Flow.Call(c, fn.Label())
	c.releaseHeld()
	c.sources = nil

	// The callee may write any variable and any register it does not preserve.
	c.forgetVariables()
	for _, r := range c.arch.Registers.All() {
		if c.arch.IsPreserved(r) {
			continue
		}
		for _, v := range c.function.Variables() {
			if reg.Overlaps(v.Register, r) && v.IsReadAfter(i.address) {
				c.Fail("%s pinned in %s does not survive the call of %s", v.Name, v.Register, fn.Name)
			}
		}
		c.Clobber(r)
	}

	if i.Destination != nil {
		if fn.Result.ByteCount == 0 {
			c.Fail("%s returns no value", fn.Name)
		}
		if i.Destination.Type().ByteCount != fn.Result.ByteCount {
			c.Unsupported(i.Destination, "result width differs from "+fn.Name)
		}
		r := c.arch.ReturnRegister(fn.Result.ByteCount)
		c.protect(r, func() { c.Store(r, i.Destination) })
	}
}

// ---------------------------------------------------------------------------
// Memory parameters
// ---------------------------------------------------------------------------

// storeParametersDirect stores each memory parameter into its slot of the
// parameter block. Arguments already in registers go first, ordered by
// register id, so that scratch registers used later cannot disturb them.
func (i *CallInstruction) storeParametersDirect(c *Context, memory []*parameterAssignment) {
	ordered := slices.Clone(memory)
	slices.SortStableFunc(ordered, func(a, b *parameterAssignment) int {
		return registerOrder(a.location) - registerOrder(b.location)
	})
	for _, a := range ordered {
		v := a.parameter.Variable
		value := a.value()
		switch a.parameter.Type.ByteCount {
		case 1:
			if n, ok := value.(*IntegerOperand); ok && n.Value&0xff == 0 {
				c.ClearByte(v, 0)
				break
			}
			UsingAnyRegister(c, c.arch.ByteRegisters, []Operand{value}, func(r *reg.Byte) {
				c.LoadByte(r, value)
				c.StoreByteToVariable(r, v, 0)
			})
		case 2:
			UsingAnyRegister(c, c.arch.WordRegisters, []Operand{value}, func(r *reg.Word) {
				c.LoadWord(r, value)
				c.StoreWordToVariable(r, v, 0)
			})
		}
		c.removeSource(a.source)
		a.source, a.done = nil, true
	}
}

func registerOrder(r reg.Register) int {
	if r == nil {
		return int(^uint(0) >> 1)
	}
	return r.ID()
}

// storeParametersViaPointer walks one pointer register over the parameter
// block in declaration order.
func (i *CallInstruction) storeParametersViaPointer(c *Context, memory []*parameterAssignment) {
	if len(memory) == 0 {
		return
	}
	UsingAnyRegister(c, c.arch.PointerRegisters(0), nil, func(ptr *reg.Word) {
		c.loadWordLiteral(ptr, i.Target.ParameterBlock())
		for k, a := range memory {
			value := a.value()
			switch a.parameter.Type.ByteCount {
			case 1:
				if n, ok := value.(*IntegerOperand); ok {
					c.StoreByteConstantIndirect(ptr, 0, n.Value)
				} else if b, ok := a.location.(*reg.Byte); ok {
					c.StoreByteIndirect(b, ptr, 0)
				} else {
					UsingAnyRegister(c, without(c.arch.ByteRegisters, ptr), []Operand{value}, func(r *reg.Byte) {
						c.LoadByte(r, value)
						c.StoreByteIndirect(r, ptr, 0)
					})
				}
			case 2:
				store := func(w *reg.Word) {
					c.StoreByteIndirect(w.Low(), ptr, 0)
					c.AddWordConstant(ptr, 1)
					c.StoreByteIndirect(w.High(), ptr, 0)
				}
				if w, ok := a.location.(*reg.Word); ok && w.IsPair() && !reg.Overlaps(w, ptr) {
					store(w)
				} else {
					UsingAnyRegister(c, without(c.arch.PairRegisters(), ptr), []Operand{value}, func(w *reg.Word) {
						c.LoadWord(w, value)
						store(w)
					})
				}
			}
			c.removeSource(a.source)
			a.source, a.done = nil, true
			if k < len(memory)-1 {
				c.AddWordConstant(ptr, 1)
			}
		}
	})
}

// ---------------------------------------------------------------------------
// Register parameters
// ---------------------------------------------------------------------------

const maxWidening = 2

// fillParameters moves every register argument into its parameter register.
// Each round applies the rules in priority order to the pending assignments
// in reverse declaration order and stops at the first rule that made
// progress:
//
//  1. the value already sits in the parameter register;
//  2. the parameter register is free: load it;
//  3. the value blocks another parameter register: park it in a free
//     register (a twisted assignment, closed later). At most one value is
//     parked per round so the loads it unblocks run first;
//  4. two values sit in each other's parameter registers: exchange them.
//
// When a round makes no progress the rules are widened: level 1 closes
// twisted assignments whose parameter register has become free, level 2
// shortens register cycles by exchanging a value, pending or twisted, into
// its parameter register and moving the value found there, pending or
// twisted, to the vacated one. Twisted assignments are closed at the end,
// lowest parameter index first.
func (i *CallInstruction) fillParameters(c *Context, assignments []*parameterAssignment) {
	i.rounds = 0
	rules := []struct {
		apply func(*Context, *parameterAssignment, []*parameterAssignment) bool
		once  bool
	}{
		{apply: i.alreadyInPlace},
		{apply: i.loadIntoFreeTarget},
		{apply: i.parkInFreeRegister, once: true},
		{apply: i.exchangePair},
	}
	level := 0
	limit := 4*len(assignments) + 8
	for pending(assignments) > 0 {
		i.rounds++
		if i.rounds > limit {
			c.Fail("parameters of %s cannot be resolved", i.Target.Name)
		}
		progress := false
		for _, rule := range rules {
			for k := len(assignments) - 1; k >= 0; k-- {
				if a := assignments[k]; !a.done && rule.apply(c, a, assignments) {
					progress = true
					if rule.once {
						break
					}
				}
			}
			if progress {
				break
			}
		}
		if !progress {
			level++
			switch level {
			case 1:
				progress = i.closeFreeTwisted(c, assignments)
			case 2:
				progress = i.shortenCycle(c, assignments)
			}
			if !progress && level >= maxWidening {
				c.Fail("no free register to resolve parameters of %s", i.Target.Name)
			}
		}
		if progress {
			level = 0
		}
		c.logger.Log(context.Background(), log.LevelTrace, "resolver round",
			"call", i.Target.Name, "round", i.rounds, "level", level, "pending", pending(assignments))
	}
	i.drainTwisted(c, assignments)
}

func pending(assignments []*parameterAssignment) int {
	n := 0
	for _, a := range assignments {
		if !a.done {
			n++
		}
	}
	return n
}

// wanted reports whether r is the parameter register of a pending assignment
// other than self.
func wanted(r reg.Register, self *parameterAssignment, assignments []*parameterAssignment) bool {
	for _, b := range assignments {
		if b != self && !b.done && reg.Overlaps(b.target(), r) {
			return true
		}
	}
	return false
}

// awaited reports whether r is the parameter register of a twisted
// assignment.
func awaited(r reg.Register, assignments []*parameterAssignment) bool {
	for _, b := range assignments {
		if b.twisted() && reg.Overlaps(b.target(), r) {
			return true
		}
	}
	return false
}

// isFreeFor reports whether r can be written on behalf of a without
// destroying anything else. a's own source does not count.
func (c *Context) isFreeFor(r reg.Register, a *parameterAssignment) bool {
	c.removeSource(a.source)
	free := !c.IsRegisterInUse(r)
	c.addSource(a.source)
	return free
}

func (i *CallInstruction) alreadyInPlace(c *Context, a *parameterAssignment, _ []*parameterAssignment) bool {
	p := a.target()
	if a.location == p {
		a.finish(c, p)
		return true
	}
	if lit, ok := literal(a.operand); ok && c.IsConstantAssigned(p, lit) && c.isFreeFor(p, a) {
		a.finish(c, p)
		return true
	}
	return false
}

func (i *CallInstruction) loadIntoFreeTarget(c *Context, a *parameterAssignment, _ []*parameterAssignment) bool {
	p := a.target()
	if !c.isFreeFor(p, a) {
		return false
	}
	value := a.value()
	c.protect(p, func() { c.Load(p, value) })
	a.finish(c, p)
	return true
}

func (i *CallInstruction) parkInFreeRegister(c *Context, a *parameterAssignment, assignments []*parameterAssignment) bool {
	if a.source == nil || !wanted(a.source, a, assignments) {
		return false
	}
	if i.nativeSwapPartner(c, a, assignments) != nil {
		return false
	}
	var free, fallback reg.Register
	for _, r := range c.arch.candidates(a.parameter.Type.ByteCount) {
		if reg.Overlaps(r, a.source) || !c.isFreeFor(r, a) || awaited(r, assignments) {
			continue
		}
		if !wanted(r, nil, assignments) {
			free = r
			break
		}
		if fallback == nil {
			fallback = r
		}
	}
	if free == nil {
		free = fallback
	}
	if free == nil {
		return false
	}
	value := a.value()
	c.protect(free, func() { c.Load(free, value) })
	a.finish(c, free)
	return true
}

// nativeSwapPartner finds an assignment whose value sits in a's parameter
// register while it wants a's location, when one native exchange fixes both.
func (i *CallInstruction) nativeSwapPartner(c *Context, a *parameterAssignment, assignments []*parameterAssignment) *parameterAssignment {
	b := swapPartner(a, assignments)
	if b != nil && c.canExchange(a.location, b.location) {
		return b
	}
	return nil
}

func swapPartner(a *parameterAssignment, assignments []*parameterAssignment) *parameterAssignment {
	if a.location == nil {
		return nil
	}
	for _, b := range assignments {
		if b != a && !b.done && b.location == a.target() && b.target() == a.location {
			return b
		}
	}
	return nil
}

func (i *CallInstruction) exchangePair(c *Context, a *parameterAssignment, assignments []*parameterAssignment) bool {
	b := swapPartner(a, assignments)
	if b == nil {
		return false
	}
	x, y := a.location, b.location
	c.removeSource(a.source)
	c.removeSource(b.source)
	a.source, b.source = nil, nil
	c.ExchangeRegisters(x, y)
	a.finish(c, y)
	b.finish(c, x)
	return true
}

// closeFreeTwisted moves twisted values whose parameter register is free.
func (i *CallInstruction) closeFreeTwisted(c *Context, assignments []*parameterAssignment) bool {
	progress := false
	for _, a := range assignments {
		if a.twisted() && !c.IsRegisterInUse(a.target()) {
			i.close(c, a)
			progress = true
		}
	}
	return progress
}

// shortenCycle exchanges a value into its parameter register when that
// register holds another argument's value, which moves to the vacated one.
// Both sides may be pending or twisted.
func (i *CallInstruction) shortenCycle(c *Context, assignments []*parameterAssignment) bool {
	for k := len(assignments) - 1; k >= 0; k-- {
		a := assignments[k]
		x := a.current()
		if x == nil || x == a.target() {
			continue
		}
		y := a.target()
		if !slices.ContainsFunc(assignments, func(b *parameterAssignment) bool { return b != a && b.occupies(y) }) {
			continue
		}
		i.exchangeValues(c, x, y, assignments)
		if !a.done {
			a.finish(c, y)
		}
		return true
	}
	return false
}

// exchangeValues swaps the contents of x and y and moves the bookkeeping of
// every argument whose value or pointer sits in one of them.
func (i *CallInstruction) exchangeValues(c *Context, x, y reg.Register, assignments []*parameterAssignment) {
	c.ExchangeRegisters(x, y)
	other := func(r reg.Register) reg.Register {
		if r == x {
			return y
		}
		return x
	}
	for _, b := range assignments {
		switch {
		case b.twisted() && (b.register == x || b.register == y):
			c.unhold(b.register)
			b.register = other(b.register)
			c.hold(b.register)
		case !b.done && (b.source == x || b.source == y):
			c.removeSource(b.source)
			b.source = other(b.source)
			if b.location != nil {
				b.location = b.source
			}
			c.addSource(b.source)
		}
	}
}

func (i *CallInstruction) close(c *Context, a *parameterAssignment) {
	held, p := a.register, a.target()
	c.unhold(held)
	c.protect(p, func() { c.CopyRegister(p, held) })
	a.register = p
	c.hold(p)
}

// drainTwisted serializes the twisted assignments, lowest parameter index
// first. A cycle among them is broken by exchanging registers.
func (i *CallInstruction) drainTwisted(c *Context, assignments []*parameterAssignment) {
	for {
		var twisted []*parameterAssignment
		for _, a := range assignments {
			if a.twisted() {
				twisted = append(twisted, a)
			}
		}
		if len(twisted) == 0 {
			return
		}
		closed := false
		for _, a := range twisted {
			if !c.IsRegisterInUse(a.target()) {
				i.close(c, a)
				closed = true
				break
			}
		}
		if closed {
			continue
		}
		a := twisted[0]
		owner := slices.IndexFunc(twisted, func(b *parameterAssignment) bool { return b.register == a.target() })
		if owner < 0 {
			c.Fail("parameter register %s of %s is occupied", a.target(), i.Target.Name)
		}
		b := twisted[owner]
		x, y := a.register, b.register
		c.ExchangeRegisters(x, y)
		a.register, b.register = y, x
	}
}
