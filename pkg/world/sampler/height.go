package sampler

import (
	"math"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
)

// SurfaceCutoff is the density above which a block counts as terrain for
// the preliminary surface.
const SurfaceCutoff = 0.390625

// HeightEstimator finds the preliminary surface of biome columns from an
// initial density function, without interpolation.
type HeightEstimator struct {
	s     *Sampler
	fn    density.Function
	cache map[[2]int32]int32
}

// HeightEstimator returns an estimator that samples fn in Direct mode.
func (s *Sampler) HeightEstimator(fn density.Function) *HeightEstimator {
	return &HeightEstimator{s: s, fn: fn, cache: make(map[[2]int32]int32)}
}

// Estimate returns the highest y, scanning down in cell-height steps, whose
// density exceeds SurfaceCutoff in the biome column holding (x, z). A column
// with no such y reports math.MaxInt32.
func (h *HeightEstimator) Estimate(x, z int32) int32 {
	key := [2]int32{x &^ 3, z &^ 3}
	if y, ok := h.cache[key]; ok {
		return y
	}
	y := h.scan(key[0], key[1])
	h.cache[key] = y
	return y
}

func (h *HeightEstimator) scan(x, z int32) int32 {
	shape := h.s.shape
	for y := shape.MaxY(); y >= shape.MinY; y -= shape.CellHeight {
		if h.s.Direct(h.fn, density.Pos{X: x, Y: y, Z: z}) > SurfaceCutoff {
			return y
		}
	}
	return math.MaxInt32
}
