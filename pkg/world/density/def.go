package density

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Def is a density function as written in a worldgen document. A bare number
// is a constant, a bare string references a named function, and a mapping
// has a "type" plus the fields of that type.
type Def struct {
	Ref        string  `yaml:"-"`
	Constant   float64 `yaml:"-"`
	IsConstant bool    `yaml:"-"`

	Type      string `yaml:"type"`
	Argument  *Def   `yaml:"argument"`
	Argument1 *Def   `yaml:"argument1"`
	Argument2 *Def   `yaml:"argument2"`
	Input     *Def   `yaml:"input"`

	Noise   string   `yaml:"noise"`
	XZScale *float64 `yaml:"xz_scale"`
	YScale  *float64 `yaml:"y_scale"`
	ShiftX  *Def     `yaml:"shift_x"`
	ShiftY  *Def     `yaml:"shift_y"`
	ShiftZ  *Def     `yaml:"shift_z"`

	XZFactor             *float64 `yaml:"xz_factor"`
	YFactor              *float64 `yaml:"y_factor"`
	SmearScaleMultiplier *float64 `yaml:"smear_scale_multiplier"`

	RarityValueMapper string `yaml:"rarity_value_mapper"`

	FromY     *int32   `yaml:"from_y"`
	ToY       *int32   `yaml:"to_y"`
	FromValue *float64 `yaml:"from_value"`
	ToValue   *float64 `yaml:"to_value"`

	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`

	MinInclusive   *float64 `yaml:"min_inclusive"`
	MaxExclusive   *float64 `yaml:"max_exclusive"`
	WhenInRange    *Def     `yaml:"when_in_range"`
	WhenOutOfRange *Def     `yaml:"when_out_of_range"`

	Spline *CurveValueDef `yaml:"spline"`
}

// UnmarshalYAML decodes the three accepted shapes of a Def.
func (d *Def) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.ShortTag() == "!!str" {
			d.Ref = node.Value
			return nil
		}
		if err := node.Decode(&d.Constant); err != nil {
			return fmt.Errorf("line %d: density constant: %w", node.Line, err)
		}
		d.IsConstant = true
		return nil
	case yaml.MappingNode:
		type plain Def
		return node.Decode((*plain)(d))
	}
	return fmt.Errorf("line %d: density function must be a number, a name or a mapping", node.Line)
}

// CurveDef is a spline as written in a worldgen document.
type CurveDef struct {
	Coordinate *Def            `yaml:"coordinate"`
	Points     []CurvePointDef `yaml:"points"`
}

// CurvePointDef is one spline control point.
type CurvePointDef struct {
	Location   float32       `yaml:"location"`
	Value      CurveValueDef `yaml:"value"`
	Derivative float32       `yaml:"derivative"`
}

// CurveValueDef is a constant or a nested spline.
type CurveValueDef struct {
	Constant float32   `yaml:"-"`
	Curve    *CurveDef `yaml:"-"`
}

// UnmarshalYAML accepts a number or a spline mapping.
func (v *CurveValueDef) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if err := node.Decode(&v.Constant); err != nil {
			return fmt.Errorf("line %d: spline value: %w", node.Line, err)
		}
		return nil
	case yaml.MappingNode:
		v.Curve = new(CurveDef)
		return node.Decode(v.Curve)
	}
	return fmt.Errorf("line %d: spline value must be a number or a spline", node.Line)
}
