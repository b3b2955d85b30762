package surface

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// RuleDef is a surface rule as written in a worldgen document.
type RuleDef struct {
	Type        string        `yaml:"type"`
	ResultState *StateDef     `yaml:"result_state"`
	Sequence    []*RuleDef    `yaml:"sequence"`
	IfTrue      *ConditionDef `yaml:"if_true"`
	ThenRun     *RuleDef      `yaml:"then_run"`
}

// StateDef names a block state.
type StateDef struct {
	Name string `yaml:"Name"`
}

// ConditionDef is a surface rule condition as written in a worldgen document.
type ConditionDef struct {
	Type string `yaml:"type"`

	BiomeIs []string `yaml:"biome_is"`

	Noise        string   `yaml:"noise"`
	MinThreshold *float64 `yaml:"min_threshold"`
	MaxThreshold *float64 `yaml:"max_threshold"`

	RandomName      string   `yaml:"random_name"`
	TrueAtAndBelow  *YOffset `yaml:"true_at_and_below"`
	FalseAtAndAbove *YOffset `yaml:"false_at_and_above"`

	Anchor                 *YOffset `yaml:"anchor"`
	SurfaceDepthMultiplier int32    `yaml:"surface_depth_multiplier"`
	AddStoneDepth          bool     `yaml:"add_stone_depth"`

	Offset              int32  `yaml:"offset"`
	AddSurfaceDepth     bool   `yaml:"add_surface_depth"`
	SecondaryDepthRange int32  `yaml:"secondary_depth_range"`
	SurfaceType         string `yaml:"surface_type"`

	Invert *ConditionDef `yaml:"invert"`
}

// Anchor says what a YOffset is measured from.
type Anchor uint8

const (
	Absolute Anchor = iota
	AboveBottom
	BelowTop
)

// YOffset is a height relative to the bottom or top of the world, or an
// absolute y.
type YOffset struct {
	Anchor Anchor
	Value  int32
}

// Resolve returns the absolute y of o in a world of the given bounds.
func (o YOffset) Resolve(minY, height int32) int32 {
	switch o.Anchor {
	case AboveBottom:
		return minY + o.Value
	case BelowTop:
		return minY + height - 1 - o.Value
	}
	return o.Value
}

// UnmarshalYAML accepts a mapping with exactly one of absolute,
// above_bottom or below_top.
func (o *YOffset) UnmarshalYAML(node *yaml.Node) error {
	var m map[string]int32
	if err := node.Decode(&m); err != nil {
		return fmt.Errorf("line %d: y offset: %w", node.Line, err)
	}
	if len(m) != 1 {
		return fmt.Errorf("line %d: y offset needs exactly one anchor, got %d", node.Line, len(m))
	}
	for k, v := range m {
		switch k {
		case "absolute":
			o.Anchor = Absolute
		case "above_bottom":
			o.Anchor = AboveBottom
		case "below_top":
			o.Anchor = BelowTop
		default:
			return fmt.Errorf("line %d: unknown y anchor %q", node.Line, k)
		}
		o.Value = v
	}
	return nil
}
