package noise

import "math"

var gradients = [16][3]float64{
	{1, 1, 0}, {-1, 1, 0}, {1, -1, 0}, {-1, -1, 0},
	{1, 0, 1}, {-1, 0, 1}, {1, 0, -1}, {-1, 0, -1},
	{0, 1, 1}, {0, -1, 1}, {0, 1, -1}, {0, -1, -1},
	{1, 1, 0}, {0, -1, 1}, {-1, 1, 0}, {0, -1, -1},
}

// Perlin is a single octave of improved Perlin noise with a shuffled permutation table.
type Perlin struct {
	perm       [256]byte
	xo, yo, zo float64
}

// NewPerlin consumes three doubles for the origin and 256 ints for the permutation.
func NewPerlin(r Random) *Perlin {
	p := &Perlin{
		xo: r.NextDouble() * 256,
		yo: r.NextDouble() * 256,
		zo: r.NextDouble() * 256,
	}
	for i := range p.perm {
		p.perm[i] = byte(i)
	}
	for i := 0; i < 256; i++ {
		j := int(r.NextIntn(int32(256 - i)))
		p.perm[i], p.perm[i+j] = p.perm[i+j], p.perm[i]
	}
	return p
}

func (p *Perlin) hash(i int) int {
	return int(p.perm[i&0xFF])
}

// Sample evaluates the octave at (x, y, z). A non-zero yScale quantises the
// vertical fade, which the blended terrain noise uses to smear values along Y.
func (p *Perlin) Sample(x, y, z, yScale, yMax float64) float64 {
	dx, dy, dz := x+p.xo, y+p.yo, z+p.zo
	ix, iy, iz := math.Floor(dx), math.Floor(dy), math.Floor(dz)
	fx, fy, fz := dx-ix, dy-iy, dz-iz

	var shift float64
	if yScale != 0 {
		limit := fy
		if yMax >= 0 && yMax < fy {
			limit = yMax
		}
		shift = math.Floor(limit/yScale+1.0e-7) * yScale
	}
	return p.sampleAndLerp(int(ix), int(iy), int(iz), fx, fy-shift, fz, fy)
}

func (p *Perlin) sampleAndLerp(x, y, z int, dx, dy, dz, fadeY float64) float64 {
	i := p.hash(x)
	j := p.hash(x + 1)
	k := p.hash(i + y)
	l := p.hash(i + y + 1)
	m := p.hash(j + y)
	n := p.hash(j + y + 1)

	d := grad(p.hash(k+z), dx, dy, dz)
	e := grad(p.hash(m+z), dx-1, dy, dz)
	f := grad(p.hash(l+z), dx, dy-1, dz)
	g := grad(p.hash(n+z), dx-1, dy-1, dz)
	h := grad(p.hash(k+z+1), dx, dy, dz-1)
	o := grad(p.hash(m+z+1), dx-1, dy, dz-1)
	q := grad(p.hash(l+z+1), dx, dy-1, dz-1)
	r := grad(p.hash(n+z+1), dx-1, dy-1, dz-1)

	return Lerp3(fade(dx), fade(fadeY), fade(dz), d, e, f, g, h, o, q, r)
}

func grad(hash int, x, y, z float64) float64 {
	g := gradients[hash&15]
	return g[0]*x + g[1]*y + g[2]*z
}

func fade(t float64) float64 {
	return t * t * t * (t*(t*6-15) + 10)
}

// Lerp interpolates between a and b.
func Lerp(t, a, b float64) float64 {
	return a + t*(b-a)
}

// Lerp2 interpolates bilinearly.
func Lerp2(dx, dy, a, b, c, d float64) float64 {
	return Lerp(dy, Lerp(dx, a, b), Lerp(dx, c, d))
}

// Lerp3 interpolates trilinearly.
func Lerp3(dx, dy, dz, a, b, c, d, e, f, g, h float64) float64 {
	return Lerp(dz, Lerp2(dx, dy, a, b, c, d), Lerp2(dx, dy, e, f, g, h))
}

// ClampedLerp clamps t to [0, 1] before interpolating.
func ClampedLerp(a, b, t float64) float64 {
	if t < 0 {
		return a
	}
	if t > 1 {
		return b
	}
	return Lerp(t, a, b)
}

// wrap keeps large coordinates inside the range where doubles keep sub-block precision.
func wrap(v float64) float64 {
	const period = 3.3554432e7
	return v - math.Floor(v/period+0.5)*period
}
