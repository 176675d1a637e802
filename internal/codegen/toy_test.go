package codegen

import (
	"fmt"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Toy architecture: seven byte registers, three pairs and an index register.
// Arithmetic only works on a; d/e and de/hl have native exchanges.
// ---------------------------------------------------------------------------

type toyRegs struct {
	a, b, c, d, e, h, l *reg.Byte
	bc, de, hl, ix      *reg.Word
}

func newToy() (*Architecture, *toyRegs) {
	f := reg.NewFile(false)
	r := &toyRegs{
		a: f.Byte("a"), b: f.Byte("b"), c: f.Byte("c"), d: f.Byte("d"),
		e: f.Byte("e"), h: f.Byte("h"), l: f.Byte("l"),
	}
	r.bc = f.Pair("bc", r.b, r.c)
	r.de = f.Pair("de", r.d, r.e)
	r.hl = f.Pair("hl", r.h, r.l, reg.Pointer())
	r.ix = f.Word("ix", reg.Indexed(-2, 2))

	arch := &Architecture{
		Name:           "toy",
		Registers:      f,
		ByteRegisters:  []*reg.Byte{r.a, r.b, r.c, r.d, r.e, r.h, r.l},
		Accumulators:   []*reg.Byte{r.a},
		WordRegisters:  []*reg.Word{r.hl, r.de, r.bc, r.ix},
		ByteParameters: []*reg.Byte{r.a, r.b, r.c},
		WordParameters: []*reg.Word{r.hl, r.de},
		ByteReturn:     r.a,
		WordReturn:     r.hl,
		Passing:        PassDirect,
		Bytes:          toyBytes{r},
		Words:          toyWords{r},
		Flow:           toyFlow{},
		AddressByte: func(label string, high bool) string {
			if high {
				return "hi(" + label + ")"
			}
			return "lo(" + label + ")"
		},
	}
	return arch, r
}

func toyIndirect(ptr *reg.Word, offset int) string {
	return fmt.Sprintf("(%s%+d)", ptr, offset)
}

type toyBytes struct{ r *toyRegs }

func (e toyBytes) LoadConstant(c *Context, r *reg.Byte, value string) {
	c.Writef("ld %s,#%s", r, value)
}

func (e toyBytes) LoadFromMemory(c *Context, r *reg.Byte, label string) {
	c.Writef("ld %s,(%s)", r, label)
}

func (e toyBytes) StoreToMemory(c *Context, r *reg.Byte, label string) {
	c.Writef("st %s,(%s)", r, label)
}

func (e toyBytes) LoadIndirect(c *Context, r *reg.Byte, ptr *reg.Word, offset int) {
	c.Writef("ld %s,%s", r, toyIndirect(ptr, offset))
}

func (e toyBytes) StoreIndirect(c *Context, r *reg.Byte, ptr *reg.Word, offset int) {
	c.Writef("st %s,%s", r, toyIndirect(ptr, offset))
}

func (e toyBytes) StoreConstantIndirect(c *Context, ptr *reg.Word, offset int, value string) {
	c.Writef("st %s,#%s", toyIndirect(ptr, offset), value)
}

func (e toyBytes) ClearMemory(c *Context, label string) {
	c.Writef("clr (%s)", label)
}

func (e toyBytes) Copy(c *Context, dst, src *reg.Byte) {
	c.Writef("mov %s,%s", dst, src)
}

func (e toyBytes) CanExchange(a, b *reg.Byte) bool {
	return (a == e.r.d && b == e.r.e) || (a == e.r.e && b == e.r.d)
}

func (e toyBytes) Exchange(c *Context, a, b *reg.Byte) {
	if !e.CanExchange(a, b) {
		c.Fail("no exchange of %s and %s", a, b)
	}
	c.Writef("xch %s,%s", a, b)
}

func (e toyBytes) accumulator(c *Context, r *reg.Byte) {
	if r != e.r.a {
		c.Fail("arithmetic on %s", r)
	}
}

func (e toyBytes) OperateConstant(c *Context, r *reg.Byte, op Operator, value string) {
	e.accumulator(c, r)
	c.Writef("%s %s,#%s", op, r, value)
}

func (e toyBytes) OperateRegister(c *Context, r *reg.Byte, op Operator, src *reg.Byte) {
	e.accumulator(c, r)
	c.Writef("%s %s,%s", op, r, src)
}

func (e toyBytes) OperateMemory(c *Context, r *reg.Byte, op Operator, label string) {
	e.accumulator(c, r)
	c.Writef("%s %s,(%s)", op, r, label)
}

func (e toyBytes) OperateIndirect(c *Context, r *reg.Byte, op Operator, ptr *reg.Word, offset int) {
	e.accumulator(c, r)
	c.Writef("%s %s,%s", op, r, toyIndirect(ptr, offset))
}

func (e toyBytes) Modify(c *Context, r *reg.Byte, m Modifier) {
	c.Writef("%s %s", m, r)
}

type toyWords struct{ r *toyRegs }

func (e toyWords) LoadConstant(c *Context, r *reg.Word, value string) {
	c.Writef("ldw %s,#%s", r, value)
}

func (e toyWords) LoadFromMemory(c *Context, r *reg.Word, label string) {
	c.Writef("ldw %s,(%s)", r, label)
}

func (e toyWords) StoreToMemory(c *Context, r *reg.Word, label string) {
	c.Writef("stw %s,(%s)", r, label)
}

func (e toyWords) Copy(c *Context, dst, src *reg.Word) {
	c.Writef("movw %s,%s", dst, src)
}

func (e toyWords) CanExchange(a, b *reg.Word) bool {
	return (a == e.r.de && b == e.r.hl) || (a == e.r.hl && b == e.r.de)
}

func (e toyWords) Exchange(c *Context, a, b *reg.Word) {
	c.Writef("xchw %s,%s", a, b)
}

func (e toyWords) AddConstant(c *Context, r *reg.Word, delta int) {
	c.Writef("addw %s,#%d", r, delta)
}

type toyFlow struct{}

var toyBranches = map[Condition]string{
	CondEqual: "beq", CondNotEqual: "bne", CondLess: "blt",
	CondGreaterEqual: "bge", CondGreater: "bgt", CondLessEqual: "ble",
}

func (toyFlow) Label(c *Context, label string) { c.WriteLine(label + ":") }
func (toyFlow) Jump(c *Context, label string)  { c.Writef("jmp %s", label) }
func (toyFlow) Call(c *Context, label string)  { c.Writef("call %s", label) }
func (toyFlow) Return(c *Context)              { c.Writef("ret") }

func (toyFlow) Branch(c *Context, cond Condition, signed bool, label string) {
	name := toyBranches[cond]
	if signed {
		switch cond {
		case CondLess, CondGreaterEqual:
			name += "s"
		case CondGreater, CondLessEqual:
			c.Fail("signed %s reached the backend", cond)
		}
	}
	c.Writef("%s %s", name, label)
}

func (toyFlow) Storage(label string, size int) string {
	return fmt.Sprintf("%s:\t.ds %d", label, size)
}

func (toyFlow) Preamble() []string { return []string{"; toy listing"} }

// ---------------------------------------------------------------------------
// Interpreter for toy listings
// ---------------------------------------------------------------------------

var toyPairs = map[string][2]string{"bc": {"b", "c"}, "de": {"d", "e"}, "hl": {"h", "l"}}

type machine struct {
	t     *testing.T
	regs  map[string]int
	mem   map[int]int
	syms  map[string]int
	z, cf bool
	n, v  bool

	// calls holds the registers at every call instruction.
	calls []map[string]int
	// external runs for calls of labels outside the listing.
	external func(m *machine, label string)
}

func newMachine(t *testing.T) *machine {
	return &machine{
		t:    t,
		regs: make(map[string]int),
		mem:  make(map[int]int),
		syms: make(map[string]int),
	}
}

func (m *machine) get(r string) int {
	if p, ok := toyPairs[r]; ok {
		return m.regs[p[0]]<<8 | m.regs[p[1]]
	}
	return m.regs[r]
}

func (m *machine) set(r string, v int) {
	if p, ok := toyPairs[r]; ok {
		m.regs[p[0]], m.regs[p[1]] = v>>8&0xff, v&0xff
		return
	}
	if r == "ix" {
		m.regs[r] = v & 0xffff
		return
	}
	m.regs[r] = v & 0xff
}

func isToyWord(name string) bool {
	_, ok := toyPairs[name]
	return ok || name == "ix"
}

func (m *machine) symbol(name string) int {
	if a, ok := m.syms[name]; ok {
		return a
	}
	a := 0x100 + 0x20*len(m.syms)
	m.syms[name] = a
	return a
}

// expr evaluates a constant: a number, a label with an offset, lo() or hi().
func (m *machine) expr(s string) int {
	switch {
	case strings.HasPrefix(s, "lo("):
		return m.expr(s[3:len(s)-1]) & 0xff
	case strings.HasPrefix(s, "hi("):
		return m.expr(s[3:len(s)-1]) >> 8 & 0xff
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if i := strings.IndexAny(s, "+-"); i > 0 {
		off, err := strconv.Atoi(s[i:])
		require.NoError(m.t, err, "bad offset in %q", s)
		return m.symbol(s[:i]) + off
	}
	return m.symbol(s)
}

// address resolves a memory operand in parentheses.
func (m *machine) address(op string) int {
	inner := strings.TrimSuffix(strings.TrimPrefix(op, "("), ")")
	if i := strings.IndexAny(inner, "+-"); i > 0 && isToyWord(inner[:i]) {
		off, err := strconv.Atoi(inner[i:])
		require.NoError(m.t, err)
		return (m.get(inner[:i]) + off) & 0xffff
	}
	return m.expr(inner)
}

func (m *machine) read(op string) int {
	switch {
	case strings.HasPrefix(op, "#"):
		return m.expr(op[1:])
	case strings.HasPrefix(op, "("):
		return m.mem[m.address(op)]
	}
	return m.get(op)
}

func (m *machine) poke(label string, v int) { m.mem[m.expr(label)] = v & 0xff }

func (m *machine) pokeWord(label string, v int) {
	a := m.expr(label)
	m.mem[a], m.mem[a+1] = v&0xff, v>>8&0xff
}

func (m *machine) peek(label string) int { return m.mem[m.expr(label)] }

func (m *machine) peekWord(label string) int {
	a := m.expr(label)
	return m.mem[a] | m.mem[a+1]<<8
}

func (m *machine) alu(op, dst string, x int) {
	a := m.get(dst)
	carry := 0
	if m.cf {
		carry = 1
	}
	var res int
	switch op {
	case "add":
		res = a + x
	case "adc":
		res = a + x + carry
	case "sub", "cmp":
		res = a - x
	case "sbc":
		res = a - x - carry
	case "and":
		res = a & x
	case "or":
		res = a | x
	case "xor":
		res = a ^ x
	}
	r := res & 0xff
	m.z, m.n = r == 0, r&0x80 != 0
	switch op {
	case "add", "adc":
		m.cf, m.v = res > 0xff, (a^r)&(x^r)&0x80 != 0
	case "sub", "sbc", "cmp":
		m.cf, m.v = res < 0, (a^x)&(a^r)&0x80 != 0
	default:
		m.cf, m.v = false, false
	}
	if op != "cmp" {
		m.set(dst, r)
	}
}

func (m *machine) taken(op string) bool {
	switch op {
	case "beq":
		return m.z
	case "bne":
		return !m.z
	case "blt":
		return m.cf
	case "bge":
		return !m.cf
	case "bgt":
		return !m.cf && !m.z
	case "ble":
		return m.cf || m.z
	case "blts":
		return m.n != m.v
	case "bges":
		return m.n == m.v
	}
	m.t.Fatalf("unknown branch %s", op)
	return false
}

// run executes lines from the entry label until its ret. Calls of labels in
// the listing are executed; others are handed to m.external.
func (m *machine) run(lines []string, entry string) {
	m.t.Helper()
	labels := make(map[string]int)
	for i, l := range lines {
		if strings.HasSuffix(l, ":") && !strings.HasPrefix(l, "\t") {
			labels[strings.TrimSuffix(l, ":")] = i
		}
	}
	jump := func(label string) int {
		pc, ok := labels[label]
		require.True(m.t, ok, "undefined label %s", label)
		return pc
	}
	pc := jump(entry)
	var stack []int
	for steps := 0; ; steps++ {
		require.Less(m.t, steps, 10000, "program does not terminate")
		require.Less(m.t, pc, len(lines), "ran past the end of the listing")
		line := lines[pc]
		pc++
		if !strings.HasPrefix(line, "\t") {
			continue
		}
		op, rest, _ := strings.Cut(strings.TrimPrefix(line, "\t"), " ")
		var args []string
		if rest != "" {
			args = strings.Split(rest, ",")
		}
		switch op {
		case "ld", "ldw":
			if op == "ldw" && strings.HasPrefix(args[1], "(") {
				a := m.address(args[1])
				m.set(args[0], m.mem[a]|m.mem[a+1]<<8)
			} else {
				m.set(args[0], m.read(args[1]))
			}
		case "st":
			if strings.HasPrefix(args[0], "(") {
				m.mem[m.address(args[0])] = m.read(args[1]) & 0xff
			} else {
				m.mem[m.address(args[1])] = m.get(args[0])
			}
		case "stw":
			a, v := m.address(args[1]), m.get(args[0])
			m.mem[a], m.mem[a+1] = v&0xff, v>>8&0xff
		case "clr":
			m.mem[m.address(args[0])] = 0
		case "mov", "movw":
			m.set(args[0], m.get(args[1]))
		case "xch", "xchw":
			x, y := m.get(args[0]), m.get(args[1])
			m.set(args[0], y)
			m.set(args[1], x)
		case "addw":
			m.set(args[0], m.get(args[0])+m.read(args[1]))
		case "add", "adc", "sub", "sbc", "and", "or", "xor", "cmp":
			m.alu(op, args[0], m.read(args[1]))
		case "inc", "dec":
			d := 1
			if op == "dec" {
				d = -1
			}
			r := (m.get(args[0]) + d) & 0xff
			m.set(args[0], r)
			m.z, m.n = r == 0, r&0x80 != 0
		case "shl":
			x := m.get(args[0])
			m.cf = x&0x80 != 0
			m.set(args[0], x<<1)
		case "shr":
			x := m.get(args[0])
			m.cf = x&1 != 0
			m.set(args[0], x>>1)
		case "jmp":
			pc = jump(args[0])
		case "call":
			snapshot := make(map[string]int, len(m.regs))
			for k, v := range m.regs {
				snapshot[k] = v
			}
			m.calls = append(m.calls, snapshot)
			if _, ok := labels[args[0]]; ok {
				stack = append(stack, pc)
				pc = jump(args[0])
			} else if m.external != nil {
				m.external(m, args[0])
			}
		case "ret":
			if len(stack) == 0 {
				return
			}
			pc, stack = stack[len(stack)-1], stack[:len(stack)-1]
		default:
			if strings.HasPrefix(op, "b") {
				if m.taken(op) {
					pc = jump(args[0])
				}
				continue
			}
			m.t.Fatalf("unknown instruction %q", line)
		}
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func compile(t *testing.T, arch *Architecture, fn *Function) []string {
	t.Helper()
	c, err := NewCompiler(arch)
	require.NoError(t, err)
	lines, err := c.LowerFunction(fn)
	require.NoError(t, err)
	return lines
}

func compileErr(t *testing.T, arch *Architecture, fn *Function) error {
	t.Helper()
	c, err := NewCompiler(arch)
	require.NoError(t, err)
	_, err = c.LowerFunction(fn)
	return err
}

// count returns the number of instruction lines starting with prefix.
func count(lines []string, prefix string) int {
	n := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "\t"+prefix) {
			n++
		}
	}
	return n
}

func byteConst(n int) *IntegerOperand { return NewInteger(ByteType, n) }
