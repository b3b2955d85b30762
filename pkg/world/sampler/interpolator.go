package sampler

import "github.com/OCharnyshevich/minecraft-world/pkg/world/noise"

// interpolator holds the corner buffers of one interpolated function. The
// start buffer covers the x slice at the near edge of the current cell
// column, the end buffer the far edge; both are indexed cz*(cellsY+1)+cy.
type interpolator struct {
	cellsY     int
	start, end []float64

	// Corners of the current cell: start (cy,cz), (cy,cz+1), (cy+1,cz),
	// (cy+1,cz+1), then the same four from the end buffer.
	corners [8]float64

	y      [4]float64
	x      [2]float64
	result float64
}

func newInterpolator(cellsXZ, cellsY int) *interpolator {
	n := (cellsXZ + 1) * (cellsY + 1)
	return &interpolator{
		cellsY: cellsY,
		start:  make([]float64, n),
		end:    make([]float64, n),
	}
}

func (it *interpolator) index(cy, cz int) int {
	return cz*(it.cellsY+1) + cy
}

func (it *interpolator) onCorners(cy, cz int) {
	c := &it.corners
	c[0] = it.start[it.index(cy, cz)]
	c[1] = it.start[it.index(cy, cz+1)]
	c[2] = it.start[it.index(cy+1, cz)]
	c[3] = it.start[it.index(cy+1, cz+1)]
	c[4] = it.end[it.index(cy, cz)]
	c[5] = it.end[it.index(cy, cz+1)]
	c[6] = it.end[it.index(cy+1, cz)]
	c[7] = it.end[it.index(cy+1, cz+1)]
}

func (it *interpolator) interpolateY(d float64) {
	c := &it.corners
	it.y[0] = noise.Lerp(d, c[0], c[2])
	it.y[1] = noise.Lerp(d, c[1], c[3])
	it.y[2] = noise.Lerp(d, c[4], c[6])
	it.y[3] = noise.Lerp(d, c[5], c[7])
}

func (it *interpolator) interpolateX(d float64) {
	it.x[0] = noise.Lerp(d, it.y[0], it.y[2])
	it.x[1] = noise.Lerp(d, it.y[1], it.y[3])
}

func (it *interpolator) interpolateZ(d float64) {
	it.result = noise.Lerp(d, it.x[0], it.x[1])
}

// at interpolates in the same order as the staged calls, leaving them untouched.
func (it *interpolator) at(dx, dy, dz float64) float64 {
	c := &it.corners
	y0 := noise.Lerp(dy, c[0], c[2])
	y1 := noise.Lerp(dy, c[1], c[3])
	y2 := noise.Lerp(dy, c[4], c[6])
	y3 := noise.Lerp(dy, c[5], c[7])
	x0 := noise.Lerp(dx, y0, y2)
	x1 := noise.Lerp(dx, y1, y3)
	return noise.Lerp(dz, x0, x1)
}
