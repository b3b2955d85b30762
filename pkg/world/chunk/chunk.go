package chunk

import (
	"fmt"
	"sync"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
)

// Pos identifies a chunk column.
type Pos struct{ X, Z int32 }

func (p Pos) String() string { return fmt.Sprintf("(%d, %d)", p.X, p.Z) }

// Region returns the region file holding p.
func (p Pos) Region() (int32, int32) { return p.X >> 5, p.Z >> 5 }

// Status is the generation stage a stored chunk reached.
type Status string

const (
	StatusEmpty   Status = "minecraft:empty"
	StatusBiomes  Status = "minecraft:biomes"
	StatusNoise   Status = "minecraft:noise"
	StatusSurface Status = "minecraft:surface"
	StatusFull    Status = "minecraft:full"
)

// Heightmaps hold, per column (index z*16+x), one above the highest block
// matching each predicate. A column with no match holds the column's min y.
type Heightmaps struct {
	WorldSurface   [256]int32 // any non-air block
	MotionBlocking [256]int32 // solid or fluid
	OceanFloor     [256]int32 // solid
}

// Update raises the heightmaps of column (x, z) for a block placed at y.
func (h *Heightmaps) Update(x, y, z int32, st block.State) {
	i := (z&15)<<4 | x&15
	if st.IsAir() {
		return
	}
	h.WorldSurface[i] = max(h.WorldSurface[i], y+1)
	h.MotionBlocking[i] = max(h.MotionBlocking[i], y+1)
	if st.IsSolid() {
		h.OceanFloor[i] = max(h.OceanFloor[i], y+1)
	}
}

// Reset sets every column to minY.
func (h *Heightmaps) Reset(minY int32) {
	for i := range h.WorldSurface {
		h.WorldSurface[i] = minY
		h.MotionBlocking[i] = minY
		h.OceanFloor[i] = minY
	}
}

// Compute rebuilds every heightmap from the blocks of s.
func (h *Heightmaps) Compute(s *Sections) {
	h.Reset(s.MinY)
	top := s.MinY + s.Height() - 1
	for z := int32(0); z < 16; z++ {
		for x := int32(0); x < 16; x++ {
			i := z<<4 | x
			for y := top; y >= s.MinY; y-- {
				st := s.Block(x, y, z)
				if st.IsAir() {
					continue
				}
				if h.WorldSurface[i] == s.MinY {
					h.WorldSurface[i] = y + 1
					h.MotionBlocking[i] = y + 1
				}
				if st.IsSolid() {
					h.OceanFloor[i] = y + 1
					break
				}
			}
		}
	}
}

// Tick is a scheduled block or fluid update.
type Tick struct {
	ID       string `nbt:"i"`
	X        int32  `nbt:"x"`
	Y        int32  `nbt:"y"`
	Z        int32  `nbt:"z"`
	Delay    int32  `nbt:"t"`
	Priority int32  `nbt:"p"`
}

// BlockEntity is the stored state of a block with extra data.
type BlockEntity struct {
	ID string `nbt:"id"`
	X  int32  `nbt:"x"`
	Y  int32  `nbt:"y"`
	Z  int32  `nbt:"z"`
}

// Data is everything stored for one chunk column.
type Data struct {
	Status        Status
	Sections      *Sections
	Heightmaps    Heightmaps
	BlockTicks    []Tick
	FluidTicks    []Tick
	BlockEntities []BlockEntity
}

// Chunk is a finished chunk column shared between the level and its
// consumers. Readers take the read lock through View; block edits go through
// Update, which marks the chunk dirty.
type Chunk struct {
	Pos Pos

	saveMu sync.Mutex

	mu      sync.RWMutex
	data    Data
	version uint64
	saved   uint64
}

// New wraps d. The chunk starts clean.
func New(pos Pos, d Data) *Chunk {
	return &Chunk{Pos: pos, data: d}
}

// View calls fn with the chunk's data under the read lock. fn must not keep
// references past its return.
func (c *Chunk) View(fn func(d *Data)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(&c.data)
}

// Update calls fn with the chunk's data under the write lock and marks the chunk dirty.
func (c *Chunk) Update(fn func(d *Data)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
	c.version++
}

// Block returns the block at local x and z and absolute y.
func (c *Chunk) Block(x, y, z int32) block.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data.Sections.Block(x, y, z)
}

// SetBlock stores a block at local x and z and absolute y.
func (c *Chunk) SetBlock(x, y, z int32, st block.State) {
	c.Update(func(d *Data) {
		d.Sections.SetBlock(x, y, z, st)
		d.Heightmaps.Update(x, y, z, st)
	})
}

// Dirty reports whether the chunk changed since it was last marked saved.
func (c *Chunk) Dirty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version != c.saved
}

// MarkDirty forces the chunk to be written on the next save.
func (c *Chunk) MarkDirty() {
	c.mu.Lock()
	c.version++
	c.mu.Unlock()
}

// MarkSaved records that the state with the given version is on disk. Changes
// made after that version keep the chunk dirty.
func (c *Chunk) MarkSaved(version uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if version > c.saved {
		c.saved = version
	}
}

// Persist encodes the chunk and passes the bytes to write. Persists of one
// chunk run one at a time, so storage never ends up holding an older
// encoding than the version marked saved. On success the chunk is marked
// saved at the encoded version and the payload size is returned.
func (c *Chunk) Persist(write func(b []byte) error) (int, error) {
	c.saveMu.Lock()
	defer c.saveMu.Unlock()
	b, version, err := c.Encode()
	if err != nil {
		return 0, err
	}
	if err := write(b); err != nil {
		return 0, err
	}
	c.MarkSaved(version)
	return len(b), nil
}

// Encode serializes the chunk and returns the version the bytes reflect.
func (c *Chunk) Encode() ([]byte, uint64, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, err := EncodeData(c.Pos, &c.data)
	return b, c.version, err
}
