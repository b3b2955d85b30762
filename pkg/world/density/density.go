// Package density implements the density-function graph: a closed set of node
// types that map a block position to a value with a statically known range.
//
// Graphs are built once per world seed from Def documents (see Builder) and are
// immutable afterwards. Caching wrappers carry a slot number; a Context passed
// to Sample decides how a wrapper is served while a chunk is being sampled.
package density

import (
	"sort"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

// Pos is a block position.
type Pos struct {
	X, Y, Z int32
}

// Function is a node of a density graph. The set of implementations is closed.
type Function interface {
	// Range returns bounds every sample of the function lies within.
	Range() (lo, hi float64)
	isFunction()
}

type bounds struct {
	lo, hi float64
}

func (b bounds) Range() (float64, float64) { return b.lo, b.hi }
func (bounds) isFunction()                 {}

// Constant is a fixed value.
type Constant struct {
	bounds
	Value float64
}

// NewConstant returns a constant node.
func NewConstant(v float64) *Constant {
	return &Constant{bounds: bounds{v, v}, Value: v}
}

// Noise samples a double Perlin noise at the scaled block position.
type Noise struct {
	bounds
	Name    string
	XZScale float64
	YScale  float64
	noise   *noise.DoublePerlin
}

// ShiftedNoise samples a noise at the scaled position plus per-axis shift functions.
type ShiftedNoise struct {
	bounds
	Name                   string
	XZScale                float64
	YScale                 float64
	ShiftX, ShiftY, ShiftZ Function
	noise                  *noise.DoublePerlin
}

// ShiftKind selects the axes a Shift node samples.
type ShiftKind uint8

const (
	// ShiftA samples at (x/4, 0, z/4).
	ShiftA ShiftKind = iota
	// ShiftB samples at (z/4, x/4, 0).
	ShiftB
	// ShiftXYZ samples at (x/4, y/4, z/4).
	ShiftXYZ
)

// Shift produces coordinate offsets for shifted noises.
type Shift struct {
	bounds
	Kind  ShiftKind
	Name  string
	noise *noise.DoublePerlin
}

// BlendedNoise is the three-octave-set terrain noise.
type BlendedNoise struct {
	bounds
	Params noise.BlendedParams
	noise  *noise.Blended
}

// RarityMapper scales the input of a WeirdScaled node.
type RarityMapper uint8

const (
	// Tunnels is "type_1".
	Tunnels RarityMapper = iota
	// Caves is "type_2".
	Caves
)

func (m RarityMapper) scale(v float64) float64 {
	if m == Tunnels {
		switch {
		case v < -0.5:
			return 0.75
		case v < 0:
			return 1
		case v < 0.5:
			return 1.5
		}
		return 2
	}
	switch {
	case v < -0.75:
		return 0.5
	case v < -0.5:
		return 0.75
	case v < 0.5:
		return 1
	case v < 0.75:
		return 2
	}
	return 3
}

func (m RarityMapper) maxScale() float64 {
	if m == Tunnels {
		return 2
	}
	return 3
}

// WeirdScaled samples a noise at a frequency picked by its input.
type WeirdScaled struct {
	bounds
	Input  Function
	Mapper RarityMapper
	Name   string
	noise  *noise.DoublePerlin
}

// EndIslands is the simplex island field of the end dimension.
type EndIslands struct {
	bounds
	islands *islandField
}

// YClampedGradient maps Y linearly from [FromY, ToY] to [FromValue, ToValue], clamped.
type YClampedGradient struct {
	bounds
	FromY, ToY         int32
	FromValue, ToValue float64
}

// BinaryOp is the operator of a Binary node.
type BinaryOp uint8

const (
	Add BinaryOp = iota
	Mul
	Min
	Max
)

// Binary combines two functions.
type Binary struct {
	bounds
	Op   BinaryOp
	A, B Function
}

// Linear is Add or Mul with a constant operand.
type Linear struct {
	bounds
	Op    BinaryOp
	Input Function
	Arg   float64
}

// UnaryOp is the operator of a Unary node.
type UnaryOp uint8

const (
	Abs UnaryOp = iota
	Square
	Cube
	HalfNegative
	QuarterNegative
	Squeeze
)

// Unary applies a fixed transform to its input.
type Unary struct {
	bounds
	Op    UnaryOp
	Input Function
}

// Clamp limits its input to [Min, Max].
type Clamp struct {
	bounds
	Input    Function
	Min, Max float64
}

// RangeChoice picks InRange when the input lies in [MinInclusive, MaxExclusive).
type RangeChoice struct {
	bounds
	Input                      Function
	MinInclusive, MaxExclusive float64
	InRange, OutOfRange        Function
}

// Spline evaluates a cubic spline curve.
type Spline struct {
	bounds
	Curve *Curve
}

// WrapperKind is the caching strategy of a Wrapper.
type WrapperKind uint8

const (
	// Interpolated values are sampled at cell corners and interpolated inside the cell.
	Interpolated WrapperKind = iota
	// FlatCache values are sampled once per biome column at y = 0.
	FlatCache
	// Cache2D memoizes the last (x, z) column.
	Cache2D
	// CacheOnce memoizes the value for the position currently being sampled.
	CacheOnce
	// CellCache precomputes every block of the current cell.
	CellCache
)

var wrapperNames = [...]string{"interpolated", "flat_cache", "cache_2d", "cache_once", "cache_all_in_cell"}

func (k WrapperKind) String() string { return wrapperNames[k] }

// Wrapper marks its input for caching by a sampling Context. Slot is unique per
// wrapper within one Builder.
type Wrapper struct {
	bounds
	Kind  WrapperKind
	Input Function
	Slot  int
}

// BlendKind selects the role of a Blend node.
type BlendKind uint8

const (
	BlendAlpha BlendKind = iota
	BlendOffset
	BlendDensity
	Beardifier
)

// Blend is a placeholder for chunk blending and structure carving inputs.
// Alpha is 1, offset and beardifier are 0 and density passes its input through.
type Blend struct {
	bounds
	Kind  BlendKind
	Input Function
}

// Children returns the direct inputs of fn.
func Children(fn Function) []Function {
	switch f := fn.(type) {
	case *ShiftedNoise:
		return []Function{f.ShiftX, f.ShiftY, f.ShiftZ}
	case *WeirdScaled:
		return []Function{f.Input}
	case *Binary:
		return []Function{f.A, f.B}
	case *Linear:
		return []Function{f.Input}
	case *Unary:
		return []Function{f.Input}
	case *Clamp:
		return []Function{f.Input}
	case *RangeChoice:
		return []Function{f.Input, f.InRange, f.OutOfRange}
	case *Spline:
		return f.Curve.coordinates(nil)
	case *Wrapper:
		return []Function{f.Input}
	case *Blend:
		if f.Input != nil {
			return []Function{f.Input}
		}
	}
	return nil
}

// Walk visits every node reachable from roots once, parents before children.
func Walk(visit func(Function), roots ...Function) {
	seen := make(map[Function]bool)
	var walk func(Function)
	walk = func(fn Function) {
		if fn == nil || seen[fn] {
			return
		}
		seen[fn] = true
		visit(fn)
		for _, c := range Children(fn) {
			walk(c)
		}
	}
	for _, r := range roots {
		walk(r)
	}
}

// Wrappers returns the caching wrappers reachable from roots, ordered by slot.
func Wrappers(roots ...Function) []*Wrapper {
	var out []*Wrapper
	Walk(func(fn Function) {
		if w, ok := fn.(*Wrapper); ok {
			out = append(out, w)
		}
	}, roots...)
	sort.Slice(out, func(i, j int) bool { return out[i].Slot < out[j].Slot })
	return out
}
