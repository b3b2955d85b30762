package density

import (
	"fmt"
	"math"
)

// Context serves caching wrappers while a chunk is sampled. Implementations
// must return the same value a fresh evaluation of the wrapper would produce
// under the context's sampling mode.
type Context interface {
	Wrapped(w *Wrapper, p Pos) float64
}

// Evaluate samples fn at p without any chunk context.
func Evaluate(fn Function, p Pos) float64 {
	return Sample(fn, p, nil)
}

// Fill evaluates fn at every position. It produces exactly what repeated
// Sample calls with the same context produce.
func Fill(fn Function, ps []Pos, ctx Context) []float64 {
	out := make([]float64, len(ps))
	for i, p := range ps {
		out[i] = Sample(fn, p, ctx)
	}
	return out
}

// FlatPos is the position a flat-cached function is sampled at for block p.
func FlatPos(p Pos) Pos {
	return Pos{X: p.X &^ 3, Z: p.Z &^ 3}
}

// Sample evaluates fn at p. Wrappers are routed through ctx when it is non-nil;
// with a nil ctx a wrapper evaluates its input, flat caches at FlatPos.
func Sample(fn Function, p Pos, ctx Context) float64 {
	switch f := fn.(type) {
	case *Constant:
		return f.Value

	case *Noise:
		return f.noise.Sample(float64(p.X)*f.XZScale, float64(p.Y)*f.YScale, float64(p.Z)*f.XZScale)

	case *ShiftedNoise:
		x := float64(p.X)*f.XZScale + Sample(f.ShiftX, p, ctx)
		y := float64(p.Y)*f.YScale + Sample(f.ShiftY, p, ctx)
		z := float64(p.Z)*f.XZScale + Sample(f.ShiftZ, p, ctx)
		return f.noise.Sample(x, y, z)

	case *Shift:
		x, y, z := float64(p.X)*0.25, float64(p.Y)*0.25, float64(p.Z)*0.25
		switch f.Kind {
		case ShiftA:
			return f.noise.Sample(x, 0, z) * 4
		case ShiftB:
			return f.noise.Sample(z, x, 0) * 4
		}
		return f.noise.Sample(x, y, z) * 4

	case *BlendedNoise:
		return f.noise.Sample(float64(p.X), float64(p.Y), float64(p.Z))

	case *WeirdScaled:
		e := f.Mapper.scale(Sample(f.Input, p, ctx))
		return e * math.Abs(f.noise.Sample(float64(p.X)/e, float64(p.Y)/e, float64(p.Z)/e))

	case *EndIslands:
		return f.islands.sample(p.X/8, p.Z/8)

	case *YClampedGradient:
		return clampedMap(float64(p.Y), float64(f.FromY), float64(f.ToY), f.FromValue, f.ToValue)

	case *Binary:
		a := Sample(f.A, p, ctx)
		switch f.Op {
		case Add:
			return a + Sample(f.B, p, ctx)
		case Mul:
			if a == 0 {
				return 0
			}
			return a * Sample(f.B, p, ctx)
		case Min:
			if lo, _ := f.B.Range(); a < lo {
				return a
			}
			return min(a, Sample(f.B, p, ctx))
		default:
			if _, hi := f.B.Range(); a > hi {
				return a
			}
			return max(a, Sample(f.B, p, ctx))
		}

	case *Linear:
		v := Sample(f.Input, p, ctx)
		if f.Op == Mul {
			return v * f.Arg
		}
		return v + f.Arg

	case *Unary:
		return applyUnary(f.Op, Sample(f.Input, p, ctx))

	case *Clamp:
		return clamp(Sample(f.Input, p, ctx), f.Min, f.Max)

	case *RangeChoice:
		v := Sample(f.Input, p, ctx)
		if v >= f.MinInclusive && v < f.MaxExclusive {
			return Sample(f.InRange, p, ctx)
		}
		return Sample(f.OutOfRange, p, ctx)

	case *Spline:
		return float64(f.Curve.sample(p, ctx))

	case *Wrapper:
		if ctx != nil {
			return ctx.Wrapped(f, p)
		}
		if f.Kind == FlatCache {
			return Sample(f.Input, FlatPos(p), nil)
		}
		return Sample(f.Input, p, nil)

	case *Blend:
		switch f.Kind {
		case BlendAlpha:
			return 1
		case BlendDensity:
			return Sample(f.Input, p, ctx)
		}
		return 0
	}
	panic(fmt.Sprintf("density: unhandled function %T", fn))
}

func applyUnary(op UnaryOp, v float64) float64 {
	switch op {
	case Abs:
		return math.Abs(v)
	case Square:
		return v * v
	case Cube:
		return v * v * v
	case HalfNegative:
		if v > 0 {
			return v
		}
		return v * 0.5
	case QuarterNegative:
		if v > 0 {
			return v
		}
		return v * 0.25
	}
	c := clamp(v, -1, 1)
	return c/2 - c*c*c/24
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampedMap(v, fromLo, fromHi, toLo, toHi float64) float64 {
	t := (v - fromLo) / (fromHi - fromLo)
	if t < 0 {
		return toLo
	}
	if t > 1 {
		return toHi
	}
	return toLo + t*(toHi-toLo)
}
