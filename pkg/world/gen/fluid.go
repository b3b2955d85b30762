package gen

import (
	"math"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
)

const (
	// Below this y the global fluid is lava.
	lavaLevel = -54
	// Level of a dry aquifer cell, far below any world.
	dryLevel = -32512

	aquiferWidth  = 16
	aquiferHeight = 12
	spreadHeight  = 40
	lavaGridWidth = 64
)

// fluidStatus fills every y below level with state.
type fluidStatus struct {
	level int32
	state block.State
}

func (f fluidStatus) at(y int32) block.State {
	if y < f.level {
		return f.state
	}
	return block.Air
}

// globalFluid is the sea: the default fluid up to sea level, lava in the
// deepest layers.
func (c *Context) globalFluid(y int32) fluidStatus {
	if y < min(lavaLevel, c.SeaLevel) {
		return fluidStatus{level: lavaLevel, state: block.Lava}
	}
	return fluidStatus{level: c.SeaLevel, state: c.DefaultFluid}
}

// aquifer decides what fills non-solid blocks. With aquifers disabled that
// is the global fluid. Otherwise space is split into jittered cells, each
// with its own fluid level, and barriers of solid block separate cells
// whose fluids would meet. Results depend only on the absolute position.
type aquifer struct {
	ctx     *Context
	enabled bool

	// direct samples a router slot at exact block resolution.
	direct func(s router.Slot, p density.Pos) float64
	// surface is the preliminary surface of the column at (x, z).
	surface func(x, z int32) int32

	centers  map[[3]int32][3]int32
	statuses map[[3]int32]fluidStatus
}

func newAquifer(ctx *Context, enabled bool, direct func(router.Slot, density.Pos) float64, surface func(x, z int32) int32) *aquifer {
	return &aquifer{
		ctx:      ctx,
		enabled:  enabled,
		direct:   direct,
		surface:  surface,
		centers:  make(map[[3]int32][3]int32),
		statuses: make(map[[3]int32]fluidStatus),
	}
}

// compute returns the state of a block with final density d. It reports
// false when the block stays solid.
func (a *aquifer) compute(x, y, z int32, d float64) (block.State, bool) {
	if d > 0 {
		return 0, false
	}
	if !a.enabled {
		return a.ctx.globalFluid(y).at(y), true
	}

	gx, gy, gz := floorDiv(x-5, aquiferWidth), floorDiv(y+1, aquiferHeight), floorDiv(z-5, aquiferWidth)
	type candidate struct {
		dist   int64
		center [3]int32
	}
	first := candidate{dist: math.MaxInt64}
	second := candidate{dist: math.MaxInt64}
	for dx := int32(0); dx <= 1; dx++ {
		for dy := int32(-1); dy <= 1; dy++ {
			for dz := int32(0); dz <= 1; dz++ {
				c := a.center([3]int32{gx + dx, gy + dy, gz + dz})
				ex, ey, ez := int64(c[0]-x), int64(c[1]-y), int64(c[2]-z)
				dist := ex*ex + ey*ey + ez*ez
				switch {
				case dist < first.dist:
					second = first
					first = candidate{dist, c}
				case dist < second.dist:
					second = candidate{dist, c}
				}
			}
		}
	}

	s1 := a.status(first.center)
	st := s1.at(y)
	sim := 1 - float64(second.dist-first.dist)/25
	if sim <= 0 {
		return st, true
	}
	s2 := a.status(second.center)
	if d+sim*a.pressure(x, y, z, s1, s2) > 0 {
		return 0, false
	}
	return st, true
}

// center is the jittered centre of aquifer cell g.
func (a *aquifer) center(g [3]int32) [3]int32 {
	if c, ok := a.centers[g]; ok {
		return c
	}
	r := a.ctx.Seeds.Aquifer.At(g[0], g[1], g[2])
	c := [3]int32{
		g[0]*aquiferWidth + r.NextIntn(10),
		g[1]*aquiferHeight + r.NextIntn(9),
		g[2]*aquiferWidth + r.NextIntn(10),
	}
	a.centers[g] = c
	return c
}

func (a *aquifer) status(c [3]int32) fluidStatus {
	if s, ok := a.statuses[c]; ok {
		return s
	}
	s := a.computeStatus(c[0], c[1], c[2])
	a.statuses[c] = s
	return s
}

// computeStatus picks the fluid of the cell centred at (x, y, z). Cells
// near the surface share the global fluid so lakes meet the sea.
func (a *aquifer) computeStatus(x, y, z int32) fluidStatus {
	global := a.ctx.globalFluid(y)
	surface := a.surface(x, z)
	if surface == math.MaxInt32 || y > surface-aquiferHeight {
		return global
	}

	flood := clamp(a.direct(router.FluidLevelFloodedness, density.Pos{X: x, Y: y, Z: z}), -1, 1)
	switch {
	case flood > 0.8:
		return global
	case flood <= -0.3:
		return fluidStatus{level: dryLevel, state: block.Air}
	}

	gx, gy, gz := floorDiv(x, aquiferWidth), floorDiv(y, spreadHeight), floorDiv(z, aquiferWidth)
	spread := a.direct(router.FluidLevelSpread, density.Pos{X: gx, Y: gy, Z: gz}) * 10
	level := gy*spreadHeight + spreadHeight/2 + int32(math.Floor(spread/3))*3
	level = min(level, surface-8)

	state := a.ctx.DefaultFluid
	if level <= -10 {
		lx, ly, lz := floorDiv(x, lavaGridWidth), floorDiv(y, spreadHeight), floorDiv(z, lavaGridWidth)
		if math.Abs(a.direct(router.Lava, density.Pos{X: lx, Y: ly, Z: lz})) > 0.3 {
			state = block.Lava
		}
	}
	return fluidStatus{level: level, state: state}
}

// pressure pushes towards a solid barrier between two cells. Lava next to
// water always gets one.
func (a *aquifer) pressure(x, y, z int32, s1, s2 fluidStatus) float64 {
	b1, b2 := s1.at(y), s2.at(y)
	if b1.IsFluid() && b2.IsFluid() && b1 != b2 {
		return 2
	}
	diff := s1.level - s2.level
	if diff < 0 {
		diff = -diff
	}
	if diff == 0 {
		return 0
	}
	mid := 0.5 * (float64(s1.level) + float64(s2.level))
	offset := float64(y) + 0.5 - mid
	dist := float64(diff)/2 - math.Abs(offset)

	var u float64
	if offset > 0 {
		if dist > 0 {
			u = dist / 1.5
		} else {
			u = dist / 2.5
		}
	} else {
		t := 3 + dist
		if t > 0 {
			u = t / 3
		} else {
			u = t / 10
		}
	}

	var barrier float64
	if u >= -2 && u <= 2 {
		barrier = a.direct(router.Barrier, density.Pos{X: x, Y: y, Z: z})
	}
	return 2 * (barrier + u)
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
