package chunk

import (
	"fmt"
	"math/bits"
	"slices"
)

// paletteKind fixes the geometry and growth limits of a palette.
type paletteKind struct {
	name       string
	size       int
	minBits    int
	maxBits    int
	directBits int
}

var (
	blockPalette = &paletteKind{name: "block", size: 16 * 16 * 16, minBits: 4, maxBits: 8, directBits: 15}
	biomePalette = &paletteKind{name: "biome", size: 4 * 4 * 4, minBits: 1, maxBits: 3, directBits: 6}
)

// bitsFor is the index width a palette of n entries uses.
func (k *paletteKind) bitsFor(n int) int {
	if n <= 1 {
		return 0
	}
	return max(k.minBits, bits.Len(uint(n-1)))
}

// Palette stores one value per slot through an indirection table. A palette
// holding a single value needs no index array; it widens as distinct values
// are added and past maxBits stores raw values instead.
type Palette struct {
	kind    *paletteKind
	bits    int
	entries []uint16 // nil when direct
	indexes bitArray
}

func newPalette(k *paletteKind, fill uint16) *Palette {
	return &Palette{kind: k, entries: []uint16{fill}}
}

// Len is the number of slots.
func (p *Palette) Len() int { return p.kind.size }

// Bits is the current index width; 0 for a single-valued palette.
func (p *Palette) Bits() int { return p.bits }

// Direct reports whether values are stored without indirection.
func (p *Palette) Direct() bool { return p.entries == nil }

// Get returns the value in slot i.
func (p *Palette) Get(i int) uint16 {
	switch {
	case p.bits == 0:
		return p.entries[0]
	case p.entries == nil:
		return uint16(p.indexes.get(i))
	}
	return p.entries[p.indexes.get(i)]
}

// Set stores v in slot i and returns the previous value.
func (p *Palette) Set(i int, v uint16) uint16 {
	old := p.Get(i)
	if old == v {
		return old
	}
	if p.entries == nil {
		p.indexes.set(i, uint64(v))
		return old
	}
	idx := slices.Index(p.entries, v)
	if idx < 0 {
		idx = len(p.entries)
		p.entries = append(p.entries, v)
		if need := p.kind.bitsFor(len(p.entries)); need > p.bits {
			p.grow(need)
		}
		if p.entries == nil {
			p.indexes.set(i, uint64(v))
			return old
		}
	}
	p.indexes.set(i, uint64(idx))
	return old
}

// grow rewrites the index array at the new width. The newest entry must
// already be appended; it is not referenced by any slot yet.
func (p *Palette) grow(width int) {
	old := *p
	old.entries = old.entries[:len(old.entries)-1]
	if width > p.kind.maxBits {
		p.bits = p.kind.directBits
		p.entries = nil
	} else {
		p.bits = width
	}
	p.indexes = newBitArray(p.bits, p.kind.size)
	for i := 0; i < p.kind.size; i++ {
		v := old.Get(i)
		if p.entries == nil {
			p.indexes.set(i, uint64(v))
		} else {
			p.indexes.set(i, uint64(slices.Index(p.entries, v)))
		}
	}
}

// Values returns the distinct values, in first-use order for an indirect
// palette and first-occurrence order for a direct one.
func (p *Palette) Values() []uint16 {
	if p.entries != nil {
		return slices.Clone(p.entries)
	}
	var out []uint16
	seen := make(map[uint16]bool)
	for i := 0; i < p.kind.size; i++ {
		v := p.Get(i)
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// export returns the storage form: a table of values and indexes into it
// packed at the width the table size calls for.
func (p *Palette) export() ([]uint16, []uint64) {
	if p.entries != nil {
		return slices.Clone(p.entries), slices.Clone(p.indexes.data)
	}
	values := p.Values()
	idx := make(map[uint16]int, len(values))
	for i, v := range values {
		idx[v] = i
	}
	arr := newBitArray(p.kind.bitsFor(len(values)), p.kind.size)
	for i := 0; i < p.kind.size; i++ {
		arr.set(i, uint64(idx[p.Get(i)]))
	}
	return values, arr.data
}

// importPalette rebuilds a palette from its storage form.
func importPalette(k *paletteKind, values []uint16, data []uint64) (*Palette, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("%s palette is empty", k.name)
	}
	if len(values) > k.size {
		return nil, fmt.Errorf("%s palette has %d entries for %d slots", k.name, len(values), k.size)
	}
	width := k.bitsFor(len(values))
	if want := longsFor(width, k.size); len(data) != want {
		return nil, fmt.Errorf("%s palette data has %d longs, want %d", k.name, len(data), want)
	}
	if width == 0 {
		return newPalette(k, values[0]), nil
	}

	src := bitArray{bits: width, perLong: 64 / width, mask: 1<<width - 1, data: data}
	p := &Palette{kind: k, bits: width, entries: slices.Clone(values), indexes: newBitArray(width, k.size)}
	if width > k.maxBits {
		p.bits = k.directBits
		p.entries = nil
		p.indexes = newBitArray(k.directBits, k.size)
	}
	for i := 0; i < k.size; i++ {
		idx := src.get(i)
		if idx >= uint64(len(values)) {
			return nil, fmt.Errorf("%s palette index %d out of range at slot %d", k.name, idx, i)
		}
		if p.entries == nil {
			p.indexes.set(i, uint64(values[idx]))
		} else {
			p.indexes.set(i, idx)
		}
	}
	return p, nil
}

// Clone returns an independent copy of p.
func (p *Palette) Clone() *Palette {
	c := *p
	c.entries = slices.Clone(p.entries)
	c.indexes.data = slices.Clone(p.indexes.data)
	return &c
}
