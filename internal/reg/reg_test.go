package reg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func z80Like(alias bool) *File {
	f := NewFile(alias)
	f.Byte("a")
	b, c := f.Byte("b"), f.Byte("c")
	d, e := f.Byte("d"), f.Byte("e")
	h, l := f.Byte("h"), f.Byte("l")
	f.Pair("bc", b, c)
	f.Pair("de", d, e)
	f.Pair("hl", h, l, Pointer())
	f.Word("ix", Indexed(-128, 127))
	return f
}

func mustLookup(t *testing.T, f *File, name string) Register {
	t.Helper()
	r, ok := f.Lookup(name)
	require.True(t, ok, "register %s", name)
	return r
}

func TestConflictsIsSymmetricAndIrreflexive(t *testing.T) {
	for _, alias := range []bool{false, true} {
		f := z80Like(alias)
		for _, x := range f.All() {
			assert.False(t, x.Conflicts(x), "%s conflicts with itself", x)
			for _, y := range f.All() {
				assert.Equal(t, x.Conflicts(y), y.Conflicts(x), "asymmetric %s/%s alias=%v", x, y, alias)
			}
		}
	}
}

func TestConflictsSharedStorage(t *testing.T) {
	f := z80Like(false)
	hl := mustLookup(t, f, "hl")
	h := mustLookup(t, f, "h")
	l := mustLookup(t, f, "l")
	de := mustLookup(t, f, "de")
	ix := mustLookup(t, f, "ix")
	a := mustLookup(t, f, "a")

	assert.True(t, hl.Conflicts(h))
	assert.True(t, l.Conflicts(hl))
	assert.False(t, hl.Conflicts(de))
	assert.False(t, ix.Conflicts(l))
	assert.False(t, h.Conflicts(l), "halves only conflict when aliased")
	assert.False(t, a.Conflicts(nil))
	assert.False(t, Overlaps(a, nil))
	assert.True(t, Overlaps(hl, hl))
	assert.True(t, Overlaps(h, hl))
}

func TestAliasedHalvesConflict(t *testing.T) {
	f := z80Like(true)
	h := mustLookup(t, f, "h")
	l := mustLookup(t, f, "l")
	d := mustLookup(t, f, "d")

	assert.True(t, h.Conflicts(l))
	assert.True(t, l.Conflicts(h))
	assert.False(t, h.Conflicts(d))
	assert.Same(t, mustLookup(t, f, "hl"), h.(*Byte).Pair())
}

func TestMatches(t *testing.T) {
	f := z80Like(true)
	hl := mustLookup(t, f, "hl")
	h := mustLookup(t, f, "h")
	l := mustLookup(t, f, "l")

	assert.True(t, h.Matches(h))
	assert.True(t, h.Matches(hl), "hl contains h")
	assert.False(t, hl.Matches(h))
	assert.True(t, hl.Matches(hl))
	assert.False(t, h.Matches(l))
}

func TestWordAddressing(t *testing.T) {
	f := z80Like(false)
	hl := mustLookup(t, f, "hl").(*Word)
	ix := mustLookup(t, f, "ix").(*Word)
	de := mustLookup(t, f, "de").(*Word)

	assert.True(t, hl.IsPointer(0))
	assert.False(t, hl.IsPointer(1))
	assert.True(t, ix.IsPointer(-128))
	assert.False(t, ix.IsPointer(128))
	assert.Equal(t, 127, ix.ClampOffset(300))
	assert.Equal(t, -128, ix.ClampOffset(-300))
	assert.False(t, de.IsPointerCapable())
	assert.True(t, hl.IsPair())
	assert.False(t, ix.IsPair())
	assert.Equal(t, "l", hl.Half(0).Name())
	assert.Equal(t, "h", hl.Half(1).Name())
}

func TestFileIDsAndLookup(t *testing.T) {
	f := z80Like(false)
	bytes := f.Bytes()
	require.Len(t, bytes, 7)
	for i, b := range bytes {
		assert.Equal(t, i+1, b.ID())
	}
	assert.Len(t, f.Pairs(), 3)
	assert.Len(t, f.Words(), 4)
	_, ok := f.Lookup("sp")
	assert.False(t, ok)

	assert.Panics(t, func() { f.Byte("a") })
}
