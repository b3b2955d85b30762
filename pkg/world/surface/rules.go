package surface

import (
	"fmt"
	"math"
	"strings"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

// Rule picks the block for the current position, if it applies.
type Rule interface {
	apply(c *Context) (block.State, bool)
}

// Condition is a predicate over the current position.
type Condition interface {
	test(c *Context) bool
}

type blockRule block.State

func (r blockRule) apply(*Context) (block.State, bool) { return block.State(r), true }

type sequenceRule []Rule

func (r sequenceRule) apply(c *Context) (block.State, bool) {
	for _, rule := range r {
		if st, ok := rule.apply(c); ok {
			return st, true
		}
	}
	return 0, false
}

type conditionRule struct {
	cond Condition
	then Rule
}

func (r conditionRule) apply(c *Context) (block.State, bool) {
	if !r.cond.test(c) {
		return 0, false
	}
	return r.then.apply(c)
}

type bandlandsRule struct{}

func (bandlandsRule) apply(c *Context) (block.State, bool) {
	return c.sys.band(c.X, c.Y, c.Z), true
}

type constCondition bool

func (k constCondition) test(*Context) bool { return bool(k) }

type notCondition struct{ c Condition }

func (n notCondition) test(c *Context) bool { return !n.c.test(c) }

type biomeCondition []bool

func (b biomeCondition) test(c *Context) bool {
	id := int(c.biome())
	return id < len(b) && b[id]
}

type noiseCondition struct {
	noise    *noise.DoublePerlin
	min, max float64
}

func (n noiseCondition) test(c *Context) bool {
	v := n.noise.Sample(float64(c.X), 0, float64(c.Z))
	return v >= n.min && v <= n.max
}

type gradientCondition struct {
	random          noise.Deriver
	trueAt, falseAt YOffset
}

func (g gradientCondition) test(c *Context) bool {
	lo := g.trueAt.Resolve(c.sys.minY, c.sys.height)
	hi := g.falseAt.Resolve(c.sys.minY, c.sys.height)
	if c.Y <= lo {
		return true
	}
	if c.Y >= hi {
		return false
	}
	chance := 1 - float64(c.Y-lo)/float64(hi-lo)
	return float64(g.random.At(c.X, c.Y, c.Z).NextFloat()) < chance
}

type yAboveCondition struct {
	anchor   YOffset
	mult     int32
	addStone bool
}

func (a yAboveCondition) test(c *Context) bool {
	y := c.Y
	if a.addStone {
		y += c.stoneAbove
	}
	return y >= a.anchor.Resolve(c.sys.minY, c.sys.height)+c.runDepth*a.mult
}

type waterCondition struct {
	offset   int32
	mult     int32
	addStone bool
}

func (w waterCondition) test(c *Context) bool {
	if c.fluidHeight == math.MinInt32 {
		return true
	}
	y := c.Y
	if w.addStone {
		y += c.stoneAbove
	}
	return y >= c.fluidHeight+w.offset+c.runDepth*w.mult
}

type holeCondition struct{}

func (holeCondition) test(c *Context) bool { return c.runDepth <= 0 }

type abovePreliminaryCondition struct{}

func (abovePreliminaryCondition) test(c *Context) bool { return c.Y >= c.minSurface() }

type stoneDepthCondition struct {
	offset     int32
	addSurface bool
	rangeMax   int32
	ceiling    bool
}

func (s stoneDepthCondition) test(c *Context) bool {
	depth := c.stoneAbove
	if s.ceiling {
		depth = c.stoneBelow
	}
	limit := 1 + s.offset
	if s.addSurface {
		limit += c.runDepth
	}
	if s.rangeMax != 0 {
		// map secondary from [-1, 1] onto [0, rangeMax]
		limit += int32((c.secondary + 1) / 2 * float64(s.rangeMax))
	}
	return depth <= limit
}

// NoiseSource resolves noise names used by noise_threshold conditions.
type NoiseSource interface {
	Noise(name string) (*noise.DoublePerlin, error)
}

type compiler struct {
	noises NoiseSource
	seeds  *noise.Seeds
}

func trimType(t string) string { return strings.TrimPrefix(t, "minecraft:") }

func (cp *compiler) rule(d *RuleDef) (Rule, error) {
	if d == nil {
		return nil, fmt.Errorf("missing surface rule")
	}
	switch trimType(d.Type) {
	case "block":
		if d.ResultState == nil {
			return nil, fmt.Errorf("block rule: missing result_state")
		}
		st, ok := block.ByName(d.ResultState.Name)
		if !ok {
			return nil, fmt.Errorf("block rule: unknown block %q", d.ResultState.Name)
		}
		// Surface rules only reskin solid blocks.
		if !st.IsSolid() {
			return nil, fmt.Errorf("block rule: %s is not a solid block", st.Name())
		}
		return blockRule(st), nil
	case "sequence":
		seq := make(sequenceRule, 0, len(d.Sequence))
		for i, sub := range d.Sequence {
			r, err := cp.rule(sub)
			if err != nil {
				return nil, fmt.Errorf("sequence[%d]: %w", i, err)
			}
			seq = append(seq, r)
		}
		return seq, nil
	case "condition":
		cond, err := cp.condition(d.IfTrue)
		if err != nil {
			return nil, fmt.Errorf("condition rule: %w", err)
		}
		then, err := cp.rule(d.ThenRun)
		if err != nil {
			return nil, fmt.Errorf("condition rule: %w", err)
		}
		return conditionRule{cond: cond, then: then}, nil
	case "bandlands":
		return bandlandsRule{}, nil
	case "":
		return nil, fmt.Errorf("surface rule without type")
	}
	return nil, fmt.Errorf("unknown surface rule type %q", d.Type)
}

func checkMultiplier(m int32) error {
	if m < -20 || m > 20 {
		return fmt.Errorf("surface_depth_multiplier %d outside [-20, 20]", m)
	}
	return nil
}

func (cp *compiler) condition(d *ConditionDef) (Condition, error) {
	if d == nil {
		return nil, fmt.Errorf("missing condition")
	}
	switch trimType(d.Type) {
	case "biome":
		set := make(biomeCondition, biome.Count())
		for _, name := range d.BiomeIs {
			id, ok := biome.ByName(name)
			if !ok {
				return nil, fmt.Errorf("biome condition: unknown biome %q", name)
			}
			set[id] = true
		}
		return set, nil
	case "noise_threshold":
		if d.MinThreshold == nil || d.MaxThreshold == nil {
			return nil, fmt.Errorf("noise_threshold: min_threshold and max_threshold are required")
		}
		n, err := cp.noises.Noise(d.Noise)
		if err != nil {
			return nil, fmt.Errorf("noise_threshold: %w", err)
		}
		return noiseCondition{noise: n, min: *d.MinThreshold, max: *d.MaxThreshold}, nil
	case "vertical_gradient":
		if d.RandomName == "" || d.TrueAtAndBelow == nil || d.FalseAtAndAbove == nil {
			return nil, fmt.Errorf("vertical_gradient: random_name, true_at_and_below and false_at_and_above are required")
		}
		return gradientCondition{
			random:  cp.seeds.Base.FromHash(noise.Namespaced(d.RandomName)).Deriver(),
			trueAt:  *d.TrueAtAndBelow,
			falseAt: *d.FalseAtAndAbove,
		}, nil
	case "y_above":
		if d.Anchor == nil {
			return nil, fmt.Errorf("y_above: missing anchor")
		}
		if err := checkMultiplier(d.SurfaceDepthMultiplier); err != nil {
			return nil, fmt.Errorf("y_above: %w", err)
		}
		return yAboveCondition{anchor: *d.Anchor, mult: d.SurfaceDepthMultiplier, addStone: d.AddStoneDepth}, nil
	case "water":
		if err := checkMultiplier(d.SurfaceDepthMultiplier); err != nil {
			return nil, fmt.Errorf("water: %w", err)
		}
		return waterCondition{offset: d.Offset, mult: d.SurfaceDepthMultiplier, addStone: d.AddStoneDepth}, nil
	case "temperature", "steep":
		return constCondition(false), nil
	case "not":
		inner, err := cp.condition(d.Invert)
		if err != nil {
			return nil, fmt.Errorf("not: %w", err)
		}
		return notCondition{inner}, nil
	case "hole":
		return holeCondition{}, nil
	case "above_preliminary_surface":
		return abovePreliminaryCondition{}, nil
	case "stone_depth":
		var ceiling bool
		switch d.SurfaceType {
		case "floor", "":
		case "ceiling":
			ceiling = true
		default:
			return nil, fmt.Errorf("stone_depth: unknown surface_type %q", d.SurfaceType)
		}
		return stoneDepthCondition{
			offset:     d.Offset,
			addSurface: d.AddSurfaceDepth,
			rangeMax:   d.SecondaryDepthRange,
			ceiling:    ceiling,
		}, nil
	case "":
		return nil, fmt.Errorf("condition without type")
	}
	return nil, fmt.Errorf("unknown condition type %q", d.Type)
}
