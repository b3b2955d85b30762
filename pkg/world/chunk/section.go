// Package chunk holds the runtime form of generated terrain: palette-compressed
// sections, the chunk column that owns them and its storage encoding.
package chunk

import (
	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
)

// Section is a 16×16×16 block volume with biomes at 4×4×4 resolution.
type Section struct {
	Blocks *Palette
	Biomes *Palette
}

// NewSection returns a section filled with one block and one biome.
func NewSection(fill block.State, b biome.ID) *Section {
	return &Section{
		Blocks: newPalette(blockPalette, uint16(fill)),
		Biomes: newPalette(biomePalette, uint16(b)),
	}
}

func blockIndex(x, y, z int) int { return y<<8 | z<<4 | x }

func biomeIndex(x, y, z int) int { return y<<4 | z<<2 | x }

// Block returns the block at local coordinates.
func (s *Section) Block(x, y, z int) block.State {
	return block.State(s.Blocks.Get(blockIndex(x, y, z)))
}

// SetBlock stores a block at local coordinates and returns the previous one.
func (s *Section) SetBlock(x, y, z int, st block.State) block.State {
	return block.State(s.Blocks.Set(blockIndex(x, y, z), uint16(st)))
}

// Biome returns the biome of the 4×4×4 cell at quart coordinates.
func (s *Section) Biome(qx, qy, qz int) biome.ID {
	return biome.ID(s.Biomes.Get(biomeIndex(qx, qy, qz)))
}

// SetBiome stores the biome of the cell at quart coordinates.
func (s *Section) SetBiome(qx, qy, qz int, b biome.ID) {
	s.Biomes.Set(biomeIndex(qx, qy, qz), uint16(b))
}

// Empty reports whether the section holds nothing but air.
func (s *Section) Empty() bool {
	for _, v := range s.Blocks.Values() {
		if !block.State(v).IsAir() {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of s.
func (s *Section) Clone() *Section {
	return &Section{Blocks: s.Blocks.Clone(), Biomes: s.Biomes.Clone()}
}

// Sections is the stack of sections of one chunk column, bottom first.
type Sections struct {
	MinY int32
	List []*Section
}

// NewSections returns an all-air column spanning [minY, minY+height).
func NewSections(minY, height int32, b biome.ID) *Sections {
	s := &Sections{MinY: minY, List: make([]*Section, height/16)}
	for i := range s.List {
		s.List[i] = NewSection(block.Air, b)
	}
	return s
}

// Height is the number of blocks in the column.
func (s *Sections) Height() int32 { return int32(len(s.List)) * 16 }

func (s *Sections) section(y int32) (*Section, bool) {
	i := (y - s.MinY) >> 4
	if y < s.MinY || int(i) >= len(s.List) {
		return nil, false
	}
	return s.List[i], true
}

// Block returns the block at local x and z and absolute y. Heights outside the
// column are air.
func (s *Sections) Block(x, y, z int32) block.State {
	sec, ok := s.section(y)
	if !ok {
		return block.Air
	}
	return sec.Block(int(x&15), int((y-s.MinY)&15), int(z&15))
}

// SetBlock stores a block at local x and z and absolute y. Writes outside the
// column are dropped and report air.
func (s *Sections) SetBlock(x, y, z int32, st block.State) block.State {
	sec, ok := s.section(y)
	if !ok {
		return block.Air
	}
	return sec.SetBlock(int(x&15), int((y-s.MinY)&15), int(z&15), st)
}

// Biome returns the biome at local x and z and absolute y, clamped to the column.
func (s *Sections) Biome(x, y, z int32) biome.ID {
	y = min(max(y, s.MinY), s.MinY+s.Height()-1)
	sec, _ := s.section(y)
	return sec.Biome(int(x&15)>>2, int((y-s.MinY)&15)>>2, int(z&15)>>2)
}

// SetBiome stores the biome of the quart cell at local quart qx, qz and
// absolute quart qy.
func (s *Sections) SetBiome(qx, qy, qz int32, b biome.ID) {
	sec, ok := s.section(qy << 2)
	if !ok {
		return
	}
	sec.SetBiome(int(qx&3), int((qy<<2-s.MinY)&15)>>2, int(qz&3), b)
}

// Clone returns an independent copy of s.
func (s *Sections) Clone() *Sections {
	c := &Sections{MinY: s.MinY, List: make([]*Section, len(s.List))}
	for i, sec := range s.List {
		c.List[i] = sec.Clone()
	}
	return c
}

// Equal reports whether both columns hold the same blocks and biomes.
func (s *Sections) Equal(o *Sections) bool {
	if s.MinY != o.MinY || len(s.List) != len(o.List) {
		return false
	}
	for i, a := range s.List {
		b := o.List[i]
		for j := 0; j < blockPalette.size; j++ {
			if a.Blocks.Get(j) != b.Blocks.Get(j) {
				return false
			}
		}
		for j := 0; j < biomePalette.size; j++ {
			if a.Biomes.Get(j) != b.Biomes.Get(j) {
				return false
			}
		}
	}
	return true
}
