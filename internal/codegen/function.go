package codegen

import (
	"fmt"

	"octet/internal/reg"
)

// ---------------------------------------------------------------------------
// Instructions
// ---------------------------------------------------------------------------

// Instruction is one IR instruction of a function. Build lowers it into the
// context's output, reading and updating the register state handed over from
// the previous instruction.
type Instruction interface {
	Address() int
	Build(c *Context)
	String() string
}

type instruction struct {
	function *Function
	address  int
}

func (i *instruction) Address() int { return i.address }

// isLast reports whether no instruction follows.
func (i *instruction) isLast() bool {
	return i.address == len(i.function.instructions)-1
}

// ---------------------------------------------------------------------------
// Parameters
// ---------------------------------------------------------------------------

type placement int

const (
	placeByConvention placement = iota
	placeInRegister
	placeInMemory
)

// Parameter is a formal parameter. Register is nil for a memory-passed
// parameter, which the caller stores into the callee's parameter block.
type Parameter struct {
	Index    int
	Name     string
	Type     *Type
	Register reg.Register
	Variable *Variable

	placement placement
}

func (p *Parameter) String() string {
	if p.Register != nil {
		return fmt.Sprintf("%s %s in %s", p.Name, p.Type, p.Register)
	}
	return fmt.Sprintf("%s %s", p.Name, p.Type)
}

// ---------------------------------------------------------------------------
// Function
// ---------------------------------------------------------------------------

// Function is an IR function: parameters, local variables, anchors and an
// instruction list whose addresses increase monotonically.
type Function struct {
	Name       string
	Result     *Type
	Parameters []*Parameter
	// Exit is the anchor before the epilogue; returns that are not the last
	// instruction jump to it.
	Exit *Anchor

	instructions []Instruction
	variables    []*Variable
	anchors      []*Anchor
	labelCount   int
	assigned     bool
	blockSize    int
}

// NewFunction returns an empty function. A nil result means void.
func NewFunction(name string, result *Type) *Function {
	if result == nil {
		result = VoidType
	}
	return &Function{
		Name:   name,
		Result: result,
		Exit:   &Anchor{Label: name + "_exit", Address: -1},
	}
}

// NewGlobal returns a variable stored under its own name.
func NewGlobal(name string, t *Type) *Variable {
	return &Variable{Name: name, Type: t, Label: name}
}

func (f *Function) String() string { return f.Name }

// Label is the entry label.
func (f *Function) Label() string { return f.Name }

// NextAddress is the address the next instruction will get.
func (f *Function) NextAddress() int { return len(f.instructions) }

// Instructions returns the instruction list.
func (f *Function) Instructions() []Instruction { return f.instructions }

// Variables returns the parameter variables followed by the locals.
func (f *Function) Variables() []*Variable { return f.variables }

// Anchors returns the anchors created so far.
func (f *Function) Anchors() []*Anchor { return f.anchors }

func (f *Function) newLabel(kind string) string {
	f.labelCount++
	return fmt.Sprintf("%s_%s%d", f.Name, kind, f.labelCount)
}

// AddVariable adds a local stored at <function>_<name>.
func (f *Function) AddVariable(name string, t *Type) *Variable {
	v := &Variable{Name: name, Type: t, Label: f.Name + "_" + name}
	f.variables = append(f.variables, v)
	return v
}

// AddPinnedVariable adds a local that always lives in r.
func (f *Function) AddPinnedVariable(name string, t *Type, r reg.Register) *Variable {
	v := f.AddVariable(name, t)
	v.Register = r
	return v
}

// CreateTemporary adds an unnamed local.
func (f *Function) CreateTemporary(t *Type) *Variable {
	return f.AddVariable(f.newLabel("T")[len(f.Name)+1:], t)
}

// AddParameter adds a parameter placed by the calling convention.
func (f *Function) AddParameter(name string, t *Type) *Parameter {
	return f.addParameter(name, t, nil, placeByConvention)
}

// AddRegisterParameter adds a parameter passed in r.
func (f *Function) AddRegisterParameter(name string, t *Type, r reg.Register) *Parameter {
	return f.addParameter(name, t, r, placeInRegister)
}

// AddMemoryParameter adds a parameter passed in the parameter block.
func (f *Function) AddMemoryParameter(name string, t *Type) *Parameter {
	return f.addParameter(name, t, nil, placeInMemory)
}

func (f *Function) addParameter(name string, t *Type, r reg.Register, pl placement) *Parameter {
	p := &Parameter{
		Index:     len(f.Parameters),
		Name:      name,
		Type:      t,
		Register:  r,
		Variable:  f.AddVariable(name, t),
		placement: pl,
	}
	f.Parameters = append(f.Parameters, p)
	f.assigned = false
	return p
}

// AssignParameters places the parameters left to the calling convention:
// each takes the first parameter register of its width that does not
// conflict with a register already taken; the others are passed in memory.
// Memory parameters are laid out consecutively in the parameter block.
func (f *Function) AssignParameters(arch *Architecture) {
	if f.assigned {
		return
	}
	var taken []reg.Register
	for _, p := range f.Parameters {
		if p.placement == placeInRegister {
			taken = append(taken, p.Register)
		}
	}
	for _, p := range f.Parameters {
		if p.placement != placeByConvention {
			continue
		}
		p.Register = nil
		for _, r := range parameterCandidates(arch, p.Type.ByteCount) {
			if !containsOverlap(taken, r) {
				p.Register = r
				taken = append(taken, r)
				break
			}
		}
	}
	f.blockSize = 0
	for _, p := range f.Parameters {
		if p.Register != nil {
			continue
		}
		p.Variable.Label = f.ParameterBlock()
		if f.blockSize > 0 {
			p.Variable.Label = fmt.Sprintf("%s+%d", f.ParameterBlock(), f.blockSize)
		}
		p.Variable.inBlock = true
		f.blockSize += p.Type.ByteCount
	}
	f.assigned = true
}

func parameterCandidates(arch *Architecture, byteCount int) []reg.Register {
	var out []reg.Register
	if byteCount == 1 {
		for _, b := range arch.ByteParameters {
			out = append(out, b)
		}
		return out
	}
	for _, w := range arch.WordParameters {
		out = append(out, w)
	}
	return out
}

// ParameterBlock is the label of the memory block holding memory-passed
// parameters.
func (f *Function) ParameterBlock() string { return f.Name + "_params" }

// ParameterBlockSize is the size of the parameter block in bytes.
func (f *Function) ParameterBlockSize() int { return f.blockSize }

// ---------------------------------------------------------------------------
// Anchors
// ---------------------------------------------------------------------------

// CreateAnchor returns a new unplaced anchor.
func (f *Function) CreateAnchor() *Anchor {
	a := &Anchor{Label: f.newLabel("L"), Address: -1}
	f.anchors = append(f.anchors, a)
	return a
}

// CreateNamedAnchor returns a new unplaced anchor with a readable label.
func (f *Function) CreateNamedAnchor(name string) *Anchor {
	a := &Anchor{Label: f.Name + "_" + name, Address: -1}
	f.anchors = append(f.anchors, a)
	return a
}

// PlaceAnchor binds a to the next instruction address.
func (f *Function) PlaceAnchor(a *Anchor) {
	a.Address = f.NextAddress()
}

// ---------------------------------------------------------------------------
// Instruction factories
// ---------------------------------------------------------------------------

func (f *Function) add(i Instruction) {
	f.instructions = append(f.instructions, i)
}

func (f *Function) base() instruction {
	return instruction{function: f, address: f.NextAddress()}
}

// Load appends dst = src.
func (f *Function) Load(dst AssignableOperand, src Operand) *LoadInstruction {
	i := &LoadInstruction{instruction: f.base(), Destination: dst, Source: src}
	src.AddUsage(i.address, Read)
	dst.AddUsage(i.address, Write)
	f.add(i)
	return i
}

// Store appends [pointer+offset] = src, typed by src.
func (f *Function) Store(pointer *Variable, offset int, src Operand) *LoadInstruction {
	return f.Load(NewIndirect(src.Type(), pointer, offset), src)
}

// Call appends a call of target. dst may be nil.
func (f *Function) Call(target *Function, dst AssignableOperand, args ...Operand) *CallInstruction {
	i := &CallInstruction{instruction: f.base(), Target: target, Destination: dst, Arguments: args}
	for _, a := range args {
		a.AddUsage(i.address, Read)
	}
	if dst != nil {
		dst.AddUsage(i.address, Write)
	}
	f.add(i)
	return i
}

// Return appends a return. value may be nil.
func (f *Function) Return(value Operand) *ReturnInstruction {
	i := &ReturnInstruction{instruction: f.base(), Value: value}
	if value != nil {
		value.AddUsage(i.address, Read)
	}
	f.Exit.AddOrigin(i.address)
	f.add(i)
	return i
}

// Jump appends an unconditional jump.
func (f *Function) Jump(target *Anchor) *JumpInstruction {
	i := &JumpInstruction{instruction: f.base(), Target: target}
	target.AddOrigin(i.address)
	f.add(i)
	return i
}

// CompareJump appends: if left cond right goto target.
func (f *Function) CompareJump(cond Condition, left, right Operand, target *Anchor) *CompareJumpInstruction {
	i := &CompareJumpInstruction{instruction: f.base(), Condition: cond, Left: left, Right: right, Target: target}
	left.AddUsage(i.address, Read)
	right.AddUsage(i.address, Read)
	target.AddOrigin(i.address)
	f.add(i)
	return i
}

// Binomial appends dst = left op right.
func (f *Function) Binomial(op Operator, dst AssignableOperand, left, right Operand) *BinomialInstruction {
	i := &BinomialInstruction{instruction: f.base(), Operator: op, Destination: dst, Left: left, Right: right}
	left.AddUsage(i.address, Read)
	right.AddUsage(i.address, Read)
	dst.AddUsage(i.address, Write)
	f.add(i)
	return i
}

// DecrementJump appends: counter = counter - 1; if counter != 0 goto target.
func (f *Function) DecrementJump(counter AssignableOperand, target *Anchor) *DecrementJumpInstruction {
	i := &DecrementJumpInstruction{instruction: f.base(), Counter: counter, Target: target}
	counter.AddUsage(i.address, Read)
	counter.AddUsage(i.address, Write)
	target.AddOrigin(i.address)
	f.add(i)
	return i
}
