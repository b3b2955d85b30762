package density

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

// Builder turns Defs into Functions bound to one world seed. Named functions
// are built once, so every reference to a name shares the same node and the
// same wrapper slots.
type Builder struct {
	seeds  *noise.Seeds
	noises map[string]noise.Params
	defs   map[string]*Def

	named     map[string]Function
	resolving map[string]bool
	perlins   map[string]*noise.DoublePerlin
	islands   *islandField
	slots     int
}

// NewBuilder prepares a builder. Keys of noises and defs may omit the
// "minecraft:" namespace.
func NewBuilder(seeds *noise.Seeds, noises map[string]noise.Params, defs map[string]*Def) *Builder {
	b := &Builder{
		seeds:     seeds,
		noises:    make(map[string]noise.Params, len(noises)),
		defs:      make(map[string]*Def, len(defs)),
		named:     make(map[string]Function),
		resolving: make(map[string]bool),
		perlins:   make(map[string]*noise.DoublePerlin),
	}
	for k, v := range noises {
		b.noises[noise.Namespaced(k)] = v
	}
	for k, v := range defs {
		b.defs[noise.Namespaced(k)] = v
	}
	return b
}

// Slots is the number of wrapper slots handed out so far.
func (b *Builder) Slots() int { return b.slots }

// Perlin returns the seeded noise registered under name, building it on first use.
func (b *Builder) Perlin(name string) (*noise.DoublePerlin, error) {
	id := noise.Namespaced(name)
	if n, ok := b.perlins[id]; ok {
		return n, nil
	}
	params, ok := b.noises[id]
	if !ok {
		return nil, fmt.Errorf("unknown noise %q", name)
	}
	n, err := b.seeds.DoublePerlin(id, params)
	if err != nil {
		return nil, fmt.Errorf("build noise %q: %w", name, err)
	}
	b.perlins[id] = n
	return n, nil
}

// Named builds the function registered under name.
func (b *Builder) Named(name string) (Function, error) {
	id := noise.Namespaced(name)
	if fn, ok := b.named[id]; ok {
		return fn, nil
	}
	if b.resolving[id] {
		return nil, fmt.Errorf("reference cycle through %q", id)
	}
	def, ok := b.defs[id]
	if !ok {
		return nil, fmt.Errorf("unknown density function %q", name)
	}
	b.resolving[id] = true
	fn, err := b.Build(def)
	delete(b.resolving, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	b.named[id] = fn
	return fn, nil
}

// Build turns d into a Function.
func (b *Builder) Build(d *Def) (Function, error) {
	if d == nil {
		return nil, errors.New("missing density function")
	}
	if d.Ref != "" {
		return b.Named(d.Ref)
	}
	if d.IsConstant {
		if err := finite("constant", d.Constant); err != nil {
			return nil, err
		}
		return NewConstant(d.Constant), nil
	}

	typ := strings.TrimPrefix(d.Type, "minecraft:")
	if err := d.checkFinite(); err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	fn, err := b.build(typ, d)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", typ, err)
	}
	return fn, nil
}

func (b *Builder) build(typ string, d *Def) (Function, error) {
	switch typ {
	case "constant":
		if d.Argument == nil || !d.Argument.IsConstant {
			return nil, errors.New("argument must be a number")
		}
		return b.Build(d.Argument)

	case "noise":
		n, err := b.Perlin(d.Noise)
		if err != nil {
			return nil, err
		}
		m := n.MaxValue()
		return &Noise{
			bounds:  bounds{-m, m},
			Name:    noise.Namespaced(d.Noise),
			XZScale: floatOr(d.XZScale, 1),
			YScale:  floatOr(d.YScale, 1),
			noise:   n,
		}, nil

	case "shifted_noise":
		n, err := b.Perlin(d.Noise)
		if err != nil {
			return nil, err
		}
		shifts := make([]Function, 3)
		for i, s := range []*Def{d.ShiftX, d.ShiftY, d.ShiftZ} {
			if s == nil {
				shifts[i] = NewConstant(0)
				continue
			}
			if shifts[i], err = b.Build(s); err != nil {
				return nil, err
			}
		}
		m := n.MaxValue()
		return &ShiftedNoise{
			bounds:  bounds{-m, m},
			Name:    noise.Namespaced(d.Noise),
			XZScale: floatOr(d.XZScale, 1),
			YScale:  floatOr(d.YScale, 1),
			ShiftX:  shifts[0],
			ShiftY:  shifts[1],
			ShiftZ:  shifts[2],
			noise:   n,
		}, nil

	case "shift_a", "shift_b", "shift":
		if d.Argument == nil || d.Argument.Ref == "" {
			return nil, errors.New("argument must name a noise")
		}
		n, err := b.Perlin(d.Argument.Ref)
		if err != nil {
			return nil, err
		}
		kind := map[string]ShiftKind{"shift_a": ShiftA, "shift_b": ShiftB, "shift": ShiftXYZ}[typ]
		m := n.MaxValue() * 4
		return &Shift{bounds: bounds{-m, m}, Kind: kind, Name: noise.Namespaced(d.Argument.Ref), noise: n}, nil

	case "old_blended_noise":
		p := noise.BlendedParams{
			XZScale:              floatOr(d.XZScale, 1),
			YScale:               floatOr(d.YScale, 1),
			XZFactor:             floatOr(d.XZFactor, 80),
			YFactor:              floatOr(d.YFactor, 160),
			SmearScaleMultiplier: floatOr(d.SmearScaleMultiplier, 8),
		}
		n, err := noise.NewBlended(b.seeds.Base.FromHash("minecraft:terrain"), p)
		if err != nil {
			return nil, err
		}
		m := n.MaxValue()
		return &BlendedNoise{bounds: bounds{-m, m}, Params: p, noise: n}, nil

	case "weird_scaled_sampler":
		input, err := b.Build(d.Input)
		if err != nil {
			return nil, err
		}
		n, err := b.Perlin(d.Noise)
		if err != nil {
			return nil, err
		}
		var mapper RarityMapper
		switch d.RarityValueMapper {
		case "type_1":
			mapper = Tunnels
		case "type_2":
			mapper = Caves
		default:
			return nil, fmt.Errorf("unknown rarity_value_mapper %q", d.RarityValueMapper)
		}
		return &WeirdScaled{
			bounds: bounds{0, mapper.maxScale() * n.MaxValue()},
			Input:  input,
			Mapper: mapper,
			Name:   noise.Namespaced(d.Noise),
			noise:  n,
		}, nil

	case "end_islands":
		if b.islands == nil {
			b.islands = newIslandField(b.seeds.Seed)
		}
		return &EndIslands{bounds: bounds{-0.84375, 0.5625}, islands: b.islands}, nil

	case "y_clamped_gradient":
		if d.FromY == nil || d.ToY == nil || d.FromValue == nil || d.ToValue == nil {
			return nil, errors.New("from_y, to_y, from_value and to_value are required")
		}
		if *d.FromY == *d.ToY {
			return nil, errors.New("from_y and to_y must differ")
		}
		return &YClampedGradient{
			bounds:    bounds{min(*d.FromValue, *d.ToValue), max(*d.FromValue, *d.ToValue)},
			FromY:     *d.FromY,
			ToY:       *d.ToY,
			FromValue: *d.FromValue,
			ToValue:   *d.ToValue,
		}, nil

	case "add", "mul", "min", "max":
		a, err := b.Build(d.Argument1)
		if err != nil {
			return nil, fmt.Errorf("argument1: %w", err)
		}
		c, err := b.Build(d.Argument2)
		if err != nil {
			return nil, fmt.Errorf("argument2: %w", err)
		}
		op := map[string]BinaryOp{"add": Add, "mul": Mul, "min": Min, "max": Max}[typ]
		return NewBinary(op, a, c), nil

	case "abs", "square", "cube", "half_negative", "quarter_negative", "squeeze":
		input, err := b.Build(d.Argument)
		if err != nil {
			return nil, err
		}
		op := map[string]UnaryOp{
			"abs": Abs, "square": Square, "cube": Cube,
			"half_negative": HalfNegative, "quarter_negative": QuarterNegative, "squeeze": Squeeze,
		}[typ]
		return NewUnary(op, input), nil

	case "clamp":
		input, err := b.Build(d.Input)
		if err != nil {
			return nil, err
		}
		if d.Min == nil || d.Max == nil {
			return nil, errors.New("min and max are required")
		}
		if *d.Min > *d.Max {
			return nil, fmt.Errorf("min %v > max %v", *d.Min, *d.Max)
		}
		lo, hi := input.Range()
		return &Clamp{
			bounds: bounds{clamp(lo, *d.Min, *d.Max), clamp(hi, *d.Min, *d.Max)},
			Input:  input,
			Min:    *d.Min,
			Max:    *d.Max,
		}, nil

	case "range_choice":
		if d.MinInclusive == nil || d.MaxExclusive == nil {
			return nil, errors.New("min_inclusive and max_exclusive are required")
		}
		input, err := b.Build(d.Input)
		if err != nil {
			return nil, fmt.Errorf("input: %w", err)
		}
		in, err := b.Build(d.WhenInRange)
		if err != nil {
			return nil, fmt.Errorf("when_in_range: %w", err)
		}
		out, err := b.Build(d.WhenOutOfRange)
		if err != nil {
			return nil, fmt.Errorf("when_out_of_range: %w", err)
		}
		inLo, inHi := in.Range()
		outLo, outHi := out.Range()
		return &RangeChoice{
			bounds:       bounds{min(inLo, outLo), max(inHi, outHi)},
			Input:        input,
			MinInclusive: *d.MinInclusive,
			MaxExclusive: *d.MaxExclusive,
			InRange:      in,
			OutOfRange:   out,
		}, nil

	case "spline":
		if d.Spline == nil {
			return nil, errors.New("spline is required")
		}
		if d.Spline.Curve == nil {
			if err := finite("spline", float64(d.Spline.Constant)); err != nil {
				return nil, err
			}
			return NewConstant(float64(d.Spline.Constant)), nil
		}
		c, err := b.curve(d.Spline.Curve)
		if err != nil {
			return nil, err
		}
		return &Spline{bounds: bounds{float64(c.lo), float64(c.hi)}, Curve: c}, nil

	case "interpolated", "flat_cache", "cache_2d", "cache_once", "cache_all_in_cell":
		input, err := b.Build(d.Argument)
		if err != nil {
			return nil, err
		}
		kind := map[string]WrapperKind{
			"interpolated": Interpolated, "flat_cache": FlatCache, "cache_2d": Cache2D,
			"cache_once": CacheOnce, "cache_all_in_cell": CellCache,
		}[typ]
		return b.Wrap(kind, input), nil

	case "blend_alpha":
		return &Blend{bounds: bounds{1, 1}, Kind: BlendAlpha}, nil
	case "blend_offset":
		return &Blend{Kind: BlendOffset}, nil
	case "beardifier":
		return &Blend{Kind: Beardifier}, nil
	case "blend_density":
		input, err := b.Build(d.Argument)
		if err != nil {
			return nil, err
		}
		lo, hi := input.Range()
		return &Blend{bounds: bounds{lo, hi}, Kind: BlendDensity, Input: input}, nil

	case "":
		return nil, errors.New("missing type")
	}
	return nil, fmt.Errorf("unknown density function type %q", typ)
}

func (b *Builder) curve(d *CurveDef) (*Curve, error) {
	coord, err := b.Build(d.Coordinate)
	if err != nil {
		return nil, fmt.Errorf("coordinate: %w", err)
	}
	points := make([]CurvePoint, len(d.Points))
	for i, p := range d.Points {
		for name, v := range map[string]float32{"location": p.Location, "derivative": p.Derivative, "value": p.Value.Constant} {
			if err := finite(name, float64(v)); err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
		}
		points[i] = CurvePoint{Location: p.Location, Derivative: p.Derivative, Value: CurveValue{Constant: p.Value.Constant}}
		if p.Value.Curve != nil {
			if points[i].Value.Curve, err = b.curve(p.Value.Curve); err != nil {
				return nil, fmt.Errorf("point %d: %w", i, err)
			}
		}
	}
	return NewCurve(coord, points)
}

// Wrap returns a new caching wrapper around input with the next free slot.
func (b *Builder) Wrap(kind WrapperKind, input Function) *Wrapper {
	lo, hi := input.Range()
	w := &Wrapper{bounds: bounds{lo, hi}, Kind: kind, Input: input, Slot: b.slots}
	b.slots++
	return w
}

// NewBinary combines a and c. A constant operand of Add or Mul yields a Linear node.
func NewBinary(op BinaryOp, a, c Function) Function {
	if op == Add || op == Mul {
		if k, ok := a.(*Constant); ok {
			return NewLinear(op, c, k.Value)
		}
		if k, ok := c.(*Constant); ok {
			return NewLinear(op, a, k.Value)
		}
	}

	alo, ahi := a.Range()
	clo, chi := c.Range()
	var lo, hi float64
	switch op {
	case Add:
		lo, hi = alo+clo, ahi+chi
	case Mul:
		lo = min(alo*clo, alo*chi, ahi*clo, ahi*chi)
		hi = max(alo*clo, alo*chi, ahi*clo, ahi*chi)
	case Min:
		lo, hi = min(alo, clo), min(ahi, chi)
	default:
		lo, hi = max(alo, clo), max(ahi, chi)
	}
	return &Binary{bounds: bounds{lo, hi}, Op: op, A: a, B: c}
}

// NewLinear applies Add or Mul with the constant arg.
func NewLinear(op BinaryOp, input Function, arg float64) *Linear {
	lo, hi := input.Range()
	if op == Add {
		lo, hi = lo+arg, hi+arg
	} else {
		lo, hi = lo*arg, hi*arg
		if arg < 0 {
			lo, hi = hi, lo
		}
	}
	return &Linear{bounds: bounds{lo, hi}, Op: op, Input: input, Arg: arg}
}

// NewUnary applies op to input.
func NewUnary(op UnaryOp, input Function) *Unary {
	lo, hi := input.Range()
	a, c := applyUnary(op, lo), applyUnary(op, hi)
	switch {
	case op != Abs && op != Square:
		// Monotonic transforms.
	case lo >= 0:
	case hi <= 0:
		a, c = c, a
	default:
		a, c = 0, max(a, c)
	}
	return &Unary{bounds: bounds{a, c}, Op: op, Input: input}
}

// checkFinite rejects NaN and infinities in every numeric field of d.
func (d *Def) checkFinite() error {
	fields := []struct {
		name string
		v    *float64
	}{
		{"xz_scale", d.XZScale}, {"y_scale", d.YScale},
		{"xz_factor", d.XZFactor}, {"y_factor", d.YFactor},
		{"smear_scale_multiplier", d.SmearScaleMultiplier},
		{"from_value", d.FromValue}, {"to_value", d.ToValue},
		{"min", d.Min}, {"max", d.Max},
		{"min_inclusive", d.MinInclusive}, {"max_exclusive", d.MaxExclusive},
	}
	for _, f := range fields {
		if f.v == nil {
			continue
		}
		if err := finite(f.name, *f.v); err != nil {
			return err
		}
	}
	return nil
}

func finite(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s %v is not finite", name, v)
	}
	return nil
}

func floatOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}
