// Package reg models the physical register files of 8-bit targets: byte
// registers, word registers that may be built from two byte halves, and the
// storage-sharing relation between them.
package reg

import "fmt"

// ---------------------------------------------------------------------------
// Register: closed sum of *Byte and *Word
// ---------------------------------------------------------------------------

// Register is a physical register. The only implementations are *Byte and
// *Word.
type Register interface {
	// ID is unique within the register's width class.
	ID() int
	Name() string
	// ByteCount is 1 for byte registers and 2 for word registers.
	ByteCount() int
	// Conflicts reports whether other is a distinct register that shares
	// storage with this one.
	Conflicts(other Register) bool
	// Matches reports whether other is this register or contains it.
	Matches(other Register) bool
	String() string

	register()
}

// Overlaps reports whether writing a disturbs b: they are the same register
// or they conflict.
func Overlaps(a, b Register) bool {
	if a == nil || b == nil {
		return false
	}
	return a == b || a.Conflicts(b)
}

// ---------------------------------------------------------------------------
// Byte registers
// ---------------------------------------------------------------------------

// Byte is an 8-bit register.
type Byte struct {
	id   int
	name string
	// pair is set when the register file aliases pair halves; the two halves
	// of pair then conflict with each other.
	pair *Word
}

func (b *Byte) ID() int        { return b.id }
func (b *Byte) Name() string   { return b.name }
func (b *Byte) ByteCount() int { return 1 }
func (b *Byte) String() string { return b.name }
func (b *Byte) register()      {}

func (b *Byte) Conflicts(other Register) bool {
	switch o := other.(type) {
	case *Byte:
		if o == nil || o == b {
			return false
		}
		return b.pair != nil && b.pair == o.pair
	case *Word:
		if o == nil {
			return false
		}
		return o.Contains(b)
	}
	return false
}

func (b *Byte) Matches(other Register) bool {
	switch o := other.(type) {
	case *Byte:
		return o == b
	case *Word:
		return o != nil && o.Contains(b)
	}
	return false
}

// Pair returns the word this byte is a half of, or nil when the register file
// does not alias halves or the byte is not part of a pair.
func (b *Byte) Pair() *Word { return b.pair }

// ---------------------------------------------------------------------------
// Word registers
// ---------------------------------------------------------------------------

// Word is a 16-bit register, either a pair of two byte registers or a
// standalone register such as an index register.
type Word struct {
	id        int
	name      string
	low, high *Byte

	pointer   bool
	indexed   bool
	minOffset int
	maxOffset int
}

func (w *Word) ID() int        { return w.id }
func (w *Word) Name() string   { return w.name }
func (w *Word) ByteCount() int { return 2 }
func (w *Word) String() string { return w.name }
func (w *Word) register()      {}

func (w *Word) Conflicts(other Register) bool {
	switch o := other.(type) {
	case *Byte:
		if o == nil {
			return false
		}
		return w.Contains(o)
	case *Word:
		if o == nil || o == w {
			return false
		}
		return w.Contains(o.low) || w.Contains(o.high)
	}
	return false
}

func (w *Word) Matches(other Register) bool {
	o, ok := other.(*Word)
	return ok && o == w
}

// Low returns the low half, or nil for a register without halves.
func (w *Word) Low() *Byte { return w.low }

// High returns the high half, or nil for a register without halves.
func (w *Word) High() *Byte { return w.high }

// IsPair reports whether the word consists of two byte registers.
func (w *Word) IsPair() bool { return w.low != nil && w.high != nil }

// Contains reports whether b is one of the halves.
func (w *Word) Contains(b *Byte) bool {
	return b != nil && (w.low == b || w.high == b)
}

// IsIndex reports whether the register supports base+offset addressing.
func (w *Word) IsIndex() bool { return w.indexed }

// IsOffsetInRange reports whether offset can be encoded directly in an
// indirect access through w.
func (w *Word) IsOffsetInRange(offset int) bool {
	return offset >= w.minOffset && offset <= w.maxOffset
}

// ClampOffset returns the directly addressable offset nearest to offset.
func (w *Word) ClampOffset(offset int) int {
	switch {
	case offset < w.minOffset:
		return w.minOffset
	case offset > w.maxOffset:
		return w.maxOffset
	}
	return offset
}

// IsPointer reports whether w can address memory with the given offset
// without adjustment.
func (w *Word) IsPointer(offset int) bool {
	return w.pointer && w.IsOffsetInRange(offset)
}

// IsPointerCapable reports whether w can be used as a memory pointer at all.
func (w *Word) IsPointerCapable() bool { return w.pointer }

// Half returns the half that holds byte offset 0 (low) or 1 (high).
func (w *Word) Half(offset int) *Byte {
	switch offset {
	case 0:
		return w.low
	case 1:
		return w.high
	}
	panic(fmt.Sprintf("reg: %s has no byte at offset %d", w.name, offset))
}
