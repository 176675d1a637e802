package reg

import (
	"fmt"

	"golang.org/x/exp/slices"
)

// File is the register table of one architecture. Backends build it once at
// construction time and never change it afterwards.
type File struct {
	aliasHalves bool
	bytes       []*Byte
	words       []*Word
}

// NewFile returns an empty register file. When aliasHalves is set, the two
// halves of every pair conflict with each other, so that loading one half is
// treated as disturbing the whole pair.
func NewFile(aliasHalves bool) *File {
	return &File{aliasHalves: aliasHalves}
}

// WordOption configures a word register.
type WordOption func(*Word)

// Pointer marks a word as usable for indirect addressing with offset 0.
func Pointer() WordOption {
	return func(w *Word) { w.pointer = true }
}

// Indexed marks a word as a pointer with a directly addressable offset range.
func Indexed(min, max int) WordOption {
	return func(w *Word) {
		w.pointer = true
		w.indexed = true
		w.minOffset = min
		w.maxOffset = max
	}
}

// Byte adds a byte register. Ids start at 1.
func (f *File) Byte(name string) *Byte {
	f.mustBeNew(name)
	b := &Byte{id: len(f.bytes) + 1, name: name}
	f.bytes = append(f.bytes, b)
	return b
}

// Pair adds a word built from two existing byte registers.
func (f *File) Pair(name string, high, low *Byte, opts ...WordOption) *Word {
	if high.pair != nil || low.pair != nil {
		panic(fmt.Sprintf("reg: halves of %s already belong to a pair", name))
	}
	w := f.word(name, opts)
	w.high, w.low = high, low
	if f.aliasHalves {
		high.pair, low.pair = w, w
	}
	return w
}

// Word adds a word register without byte halves.
func (f *File) Word(name string, opts ...WordOption) *Word {
	return f.word(name, opts)
}

func (f *File) word(name string, opts []WordOption) *Word {
	f.mustBeNew(name)
	w := &Word{id: len(f.words) + 1, name: name}
	for _, opt := range opts {
		opt(w)
	}
	f.words = append(f.words, w)
	return w
}

func (f *File) mustBeNew(name string) {
	if _, ok := f.Lookup(name); ok {
		panic(fmt.Sprintf("reg: duplicate register %q", name))
	}
}

// AliasesHalves reports whether pair halves conflict with each other.
func (f *File) AliasesHalves() bool { return f.aliasHalves }

// Bytes returns the byte registers in declaration order.
func (f *File) Bytes() []*Byte { return slices.Clone(f.bytes) }

// Words returns the word registers in declaration order.
func (f *File) Words() []*Word { return slices.Clone(f.words) }

// Pairs returns the word registers that have byte halves.
func (f *File) Pairs() []*Word {
	var pairs []*Word
	for _, w := range f.words {
		if w.IsPair() {
			pairs = append(pairs, w)
		}
	}
	return pairs
}

// All returns every register, bytes first.
func (f *File) All() []Register {
	all := make([]Register, 0, len(f.bytes)+len(f.words))
	for _, b := range f.bytes {
		all = append(all, b)
	}
	for _, w := range f.words {
		all = append(all, w)
	}
	return all
}

// Lookup finds a register by name.
func (f *File) Lookup(name string) (Register, bool) {
	if i := slices.IndexFunc(f.bytes, func(b *Byte) bool { return b.name == name }); i >= 0 {
		return f.bytes[i], true
	}
	if i := slices.IndexFunc(f.words, func(w *Word) bool { return w.name == name }); i >= 0 {
		return f.words[i], true
	}
	return nil, false
}
