package density

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Curve is a cubic Hermite spline over a coordinate function. Point values are
// constants or nested curves. Arithmetic is single precision.
type Curve struct {
	Coordinate Function
	Points     []CurvePoint
	lo, hi     float32
}

// CurvePoint is one control point of a Curve.
type CurvePoint struct {
	Location   float32
	Value      CurveValue
	Derivative float32
}

// CurveValue is either a constant or a nested curve.
type CurveValue struct {
	Constant float32
	Curve    *Curve
}

func (v CurveValue) rangeOf() (float32, float32) {
	if v.Curve != nil {
		return v.Curve.lo, v.Curve.hi
	}
	return v.Constant, v.Constant
}

func (v CurveValue) sample(p Pos, ctx Context) float32 {
	if v.Curve != nil {
		return v.Curve.sample(p, ctx)
	}
	return v.Constant
}

// NewCurve validates the points and computes the curve's range.
func NewCurve(coordinate Function, points []CurvePoint) (*Curve, error) {
	if coordinate == nil {
		return nil, errors.New("spline has no coordinate")
	}
	if len(points) == 0 {
		return nil, errors.New("spline has no points")
	}
	for i := 1; i < len(points); i++ {
		if !(points[i].Location > points[i-1].Location) {
			return nil, fmt.Errorf("spline locations must increase: %v after %v", points[i].Location, points[i-1].Location)
		}
	}
	c := &Curve{Coordinate: coordinate, Points: points}
	c.lo, c.hi = c.computeRange()
	return c, nil
}

func (c *Curve) extend(loc float32, value float32, i int) float32 {
	d := c.Points[i].Derivative
	if d == 0 {
		return value
	}
	return value + d*(loc-c.Points[i].Location)
}

func (c *Curve) computeRange() (float32, float32) {
	lo, hi := float32(math.Inf(1)), float32(math.Inf(-1))
	cmin, cmax := c.Coordinate.Range()
	coordLo, coordHi := float32(cmin), float32(cmax)
	last := len(c.Points) - 1

	if coordLo < c.Points[0].Location {
		vlo, vhi := c.Points[0].Value.rangeOf()
		a, b := c.extend(coordLo, vlo, 0), c.extend(coordLo, vhi, 0)
		lo, hi = min(lo, a, b), max(hi, a, b)
	}
	if coordHi > c.Points[last].Location {
		vlo, vhi := c.Points[last].Value.rangeOf()
		a, b := c.extend(coordHi, vlo, last), c.extend(coordHi, vhi, last)
		lo, hi = min(lo, a, b), max(hi, a, b)
	}
	for _, p := range c.Points {
		vlo, vhi := p.Value.rangeOf()
		lo, hi = min(lo, vlo), max(hi, vhi)
	}
	for i := 0; i < last; i++ {
		a, b := c.Points[i], c.Points[i+1]
		if a.Derivative == 0 && b.Derivative == 0 {
			continue
		}
		span := b.Location - a.Location
		p, q := a.Value.rangeOf()
		r, s := b.Value.rangeOf()
		v := a.Derivative * span
		w := b.Derivative * span
		x, y := min(p, r), max(q, s)
		z := v - s + p
		aa := v - r + q
		ab := -w + r - q
		ac := -w + s - p
		lo = min(lo, x+0.25*min(z, ab))
		hi = max(hi, y+0.25*max(aa, ac))
	}
	return lo, hi
}

func (c *Curve) sample(p Pos, ctx Context) float32 {
	loc := float32(Sample(c.Coordinate, p, ctx))
	last := len(c.Points) - 1
	// Last point whose location is <= loc, or -1.
	i := sort.Search(len(c.Points), func(i int) bool { return c.Points[i].Location > loc }) - 1
	if i < 0 {
		return c.extend(loc, c.Points[0].Value.sample(p, ctx), 0)
	}
	if i == last {
		return c.extend(loc, c.Points[last].Value.sample(p, ctx), last)
	}

	a, b := c.Points[i], c.Points[i+1]
	span := b.Location - a.Location
	t := (loc - a.Location) / span
	n := a.Value.sample(p, ctx)
	o := b.Value.sample(p, ctx)
	q0 := a.Derivative*span - (o - n)
	q1 := -b.Derivative*span + (o - n)
	return lerp32(t, n, o) + t*(1-t)*lerp32(t, q0, q1)
}

func lerp32(t, a, b float32) float32 {
	return a + t*(b-a)
}

// coordinates appends the coordinate functions of c and its nested curves.
func (c *Curve) coordinates(out []Function) []Function {
	out = append(out, c.Coordinate)
	for _, p := range c.Points {
		if p.Value.Curve != nil {
			out = p.Value.Curve.coordinates(out)
		}
	}
	return out
}
