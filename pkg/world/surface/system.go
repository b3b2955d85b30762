// Package surface replaces the top layers of raw terrain with biome
// materials according to a tree of rules and conditions.
package surface

import (
	"fmt"
	"math"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

const bandCount = 192

// Target is the chunk a System paints. Coordinates are absolute.
type Target interface {
	Block(x, y, z int32) block.State
	SetBlock(x, y, z int32, st block.State)
	Biome(x, y, z int32) biome.ID
	// Top returns the highest non-air y of a column, or a value below the
	// world when the column is empty.
	Top(x, z int32) int32
}

// Estimator returns the preliminary surface height of a column.
type Estimator interface {
	Estimate(x, z int32) int32
}

// System holds everything compiled once per world: the rule tree, the
// depth noises and the clay band table. It is safe for concurrent use.
type System struct {
	rule         Rule
	defaultBlock block.State
	minY, height int32

	base       noise.Deriver
	surface    *noise.DoublePerlin
	secondary  *noise.DoublePerlin
	bandOffset *noise.DoublePerlin
	bands      [bandCount]block.State
}

// Noise names the system samples besides those named in rules.
const (
	SurfaceNoise          = "surface"
	SurfaceSecondaryNoise = "surface_secondary"
	ClayBandsOffsetNoise  = "clay_bands_offset"
)

// NewSystem compiles def for a world whose terrain is made of defaultBlock.
func NewSystem(def *RuleDef, noises NoiseSource, seeds *noise.Seeds, defaultBlock block.State, minY, height int32) (*System, error) {
	cp := &compiler{noises: noises, seeds: seeds}
	rule, err := cp.rule(def)
	if err != nil {
		return nil, fmt.Errorf("compile surface rule: %w", err)
	}
	s := &System{
		rule:         rule,
		defaultBlock: defaultBlock,
		minY:         minY,
		height:       height,
		base:         seeds.Base,
	}
	for _, n := range []struct {
		name string
		dst  **noise.DoublePerlin
	}{
		{SurfaceNoise, &s.surface},
		{SurfaceSecondaryNoise, &s.secondary},
		{ClayBandsOffsetNoise, &s.bandOffset},
	} {
		if *n.dst, err = noises.Noise(n.name); err != nil {
			return nil, fmt.Errorf("surface system: %w", err)
		}
	}
	s.bands = clayBands(seeds.Base.FromHash("minecraft:clay_bands"))
	return s, nil
}

func clayBands(r noise.Random) [bandCount]block.State {
	var bands [bandCount]block.State
	for i := range bands {
		bands[i] = block.Terracotta
	}
	for i := 0; i < bandCount; i++ {
		i += int(r.NextIntn(5)) + 1
		if i >= bandCount {
			break
		}
		bands[i] = block.OrangeTerracotta
	}
	addBands(r, &bands, 1, block.YellowTerracotta)
	addBands(r, &bands, 2, block.BrownTerracotta)
	addBands(r, &bands, 1, block.RedTerracotta)

	whites := int(r.NextIntn(7)) + 9
	for n, i := 0, 0; n < whites && i < bandCount; n, i = n+1, i+int(r.NextIntn(16))+4 {
		bands[i] = block.WhiteTerracotta
		if i-1 > 0 && r.NextBool() {
			bands[i-1] = block.LightGrayTerracotta
		}
		if i+1 < bandCount && r.NextBool() {
			bands[i+1] = block.LightGrayTerracotta
		}
	}
	return bands
}

func addBands(r noise.Random, bands *[bandCount]block.State, minSize int, st block.State) {
	count := int(r.NextIntn(10)) + 6
	for i := 0; i < count; i++ {
		size := minSize + int(r.NextIntn(3))
		start := int(r.NextIntn(bandCount))
		for m := 0; start+m < bandCount && m < size; m++ {
			bands[start+m] = st
		}
	}
}

func (s *System) band(x, y, z int32) block.State {
	off := int32(math.Floor(s.bandOffset.Sample(float64(x), 0, float64(z))*4 + 0.5))
	i := (y + off + bandCount) % bandCount
	if i < 0 {
		i += bandCount
	}
	return s.bands[i]
}

// Bands returns the clay band table, bottom band first.
func (s *System) Bands() [bandCount]block.State { return s.bands }

// Context is the state rules see at one position. A Context is reused
// across all positions of a chunk and is not safe for concurrent use.
type Context struct {
	sys    *System
	target Target
	est    Estimator

	X, Y, Z int32

	runDepth     int32
	secondary    float64
	minSurfaceY  int32
	minSurfaceOK bool
	stoneAbove   int32
	stoneBelow   int32
	fluidHeight  int32
}

func (c *Context) biome() biome.ID { return c.target.Biome(c.X, c.Y, c.Z) }

func (c *Context) setColumn(x, z int32) {
	c.X, c.Z = x, z
	c.runDepth = int32(c.sys.surface.Sample(float64(x), 0, float64(z))*2.75 + 3 +
		c.sys.base.At(x, 0, z).NextDouble()*0.25)
	c.secondary = c.sys.secondary.Sample(float64(x), 0, float64(z))
	c.minSurfaceOK = false
}

// minSurface interpolates the preliminary surface between the corners of
// the chunk holding the column, lowered by 8 and raised by the run depth.
func (c *Context) minSurface() int32 {
	if c.minSurfaceOK {
		return c.minSurfaceY
	}
	cx, cz := c.X>>4, c.Z>>4
	v00 := float64(c.est.Estimate(cx<<4, cz<<4))
	v10 := float64(c.est.Estimate((cx+1)<<4, cz<<4))
	v01 := float64(c.est.Estimate(cx<<4, (cz+1)<<4))
	v11 := float64(c.est.Estimate((cx+1)<<4, (cz+1)<<4))
	h := math.Floor(noise.Lerp2(float64(c.X&15)/16, float64(c.Z&15)/16, v00, v10, v01, v11))
	h += float64(c.runDepth) - 8
	c.minSurfaceY = int32(max(math.MinInt32, min(math.MaxInt32, h)))
	c.minSurfaceOK = true
	return c.minSurfaceY
}

// Build applies the rules to every column of chunk (chunkX, chunkZ).
// Only blocks that are still the default block are replaced.
func (s *System) Build(t Target, chunkX, chunkZ int32, est Estimator) {
	c := &Context{sys: s, target: t, est: est}
	for lx := int32(0); lx < 16; lx++ {
		for lz := int32(0); lz < 16; lz++ {
			s.buildColumn(c, chunkX<<4+lx, chunkZ<<4+lz)
		}
	}
}

func (s *System) buildColumn(c *Context, x, z int32) {
	c.setColumn(x, z)
	c.stoneAbove = 0
	c.fluidHeight = math.MinInt32
	below := int32(math.MaxInt32)

	top := min(c.target.Top(x, z), s.minY+s.height-1)
	for y := top; y >= s.minY; y-- {
		st := c.target.Block(x, y, z)
		if st.IsAir() {
			c.stoneAbove = 0
			c.fluidHeight = math.MinInt32
			continue
		}
		if st.IsFluid() {
			if c.fluidHeight == math.MinInt32 {
				c.fluidHeight = y + 1
			}
			continue
		}
		if below >= y {
			below = math.MinInt32
			for w := y - 1; w >= s.minY-1; w-- {
				if w < s.minY || !c.target.Block(x, w, z).IsSolid() {
					below = w + 1
					break
				}
			}
		}
		c.stoneAbove++
		c.stoneBelow = y - below + 1
		c.Y = y
		if st != s.defaultBlock {
			continue
		}
		if res, ok := s.rule.apply(c); ok {
			c.target.SetBlock(x, y, z, res)
		}
	}
}
