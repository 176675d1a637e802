package codegen

import (
	"errors"
	"fmt"
	"strings"
)

// InternalError reports a situation the engine or a backend cannot lower:
// register exhaustion, an unbalanced reservation, or an operand a primitive
// does not support. Lowering code panics with it; Compiler recovers it at the
// function boundary and returns it as an error.
type InternalError struct {
	Function    string
	Instruction string
	Operand     string
	Message     string
}

func (e *InternalError) Error() string {
	var sb strings.Builder
	sb.WriteString("internal error")
	if e.Function != "" {
		fmt.Fprintf(&sb, " in %s", e.Function)
	}
	if e.Instruction != "" {
		fmt.Fprintf(&sb, " at %q", e.Instruction)
	}
	if e.Operand != "" {
		fmt.Fprintf(&sb, " (operand %s)", e.Operand)
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	return sb.String()
}

// IsInternal reports whether err wraps an *InternalError.
func IsInternal(err error) bool {
	var ie *InternalError
	return errors.As(err, &ie)
}

// Fail aborts lowering of the current instruction.
func (c *Context) Fail(format string, args ...any) {
	panic(c.internalError("", fmt.Sprintf(format, args...)))
}

// Unsupported aborts lowering because a primitive cannot handle operand.
func (c *Context) Unsupported(operand fmt.Stringer, what string) {
	panic(c.internalError(operand.String(), what+" is not supported"))
}

func (c *Context) internalError(operand, msg string) *InternalError {
	e := &InternalError{Operand: operand, Message: msg}
	if c.function != nil {
		e.Function = c.function.Name
	}
	if c.instruction != nil {
		e.Instruction = c.instruction.String()
	}
	return e
}

// recoverInternal turns an *InternalError panic into *err. Other panics are
// re-raised.
func recoverInternal(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if ie, ok := r.(*InternalError); ok {
		*err = ie
		return
	}
	panic(r)
}
