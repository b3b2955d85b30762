package biome

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Axes of a climate point.
const (
	Temperature = iota
	Humidity
	Continentalness
	Erosion
	Depth
	Weirdness
	Offset

	axes
)

// Quantize converts a climate value to the fixed-point form used by the index.
func Quantize(v float64) int64 {
	return int64(float32(v) * 10000)
}

// Point is a quantized climate sample. The offset axis of a target point is always zero.
type Point [axes]int64

// NewPoint quantizes the six sampled climate channels.
func NewPoint(temperature, humidity, continentalness, erosion, depth, weirdness float64) Point {
	return Point{
		Quantize(temperature),
		Quantize(humidity),
		Quantize(continentalness),
		Quantize(erosion),
		Quantize(depth),
		Quantize(weirdness),
		0,
	}
}

// Range is an inclusive quantized interval.
type Range struct {
	Min, Max int64
}

func (r Range) distance(v int64) int64 {
	switch {
	case v > r.Max:
		return v - r.Max
	case v < r.Min:
		return r.Min - v
	}
	return 0
}

func (r Range) span(o Range) Range {
	return Range{Min: min(r.Min, o.Min), Max: max(r.Max, o.Max)}
}

// Hypercube is one range per climate axis.
type Hypercube [axes]Range

// Distance is the squared Euclidean distance from p to the nearest point of h.
func (h Hypercube) Distance(p Point) int64 {
	var sum int64
	for i, r := range h {
		d := r.distance(p[i])
		sum += d * d
	}
	return sum
}

func (h Hypercube) span(o Hypercube) Hypercube {
	var out Hypercube
	for i := range h {
		out[i] = h[i].span(o[i])
	}
	return out
}

// ParamRange is a climate interval as written in biome documents: either a
// single number or a [min, max] pair.
type ParamRange struct {
	Min, Max float64
}

// UnmarshalYAML accepts a scalar or a two-element sequence.
func (p *ParamRange) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var v float64
		if err := node.Decode(&v); err != nil {
			return fmt.Errorf("decode parameter: %w", err)
		}
		p.Min, p.Max = v, v
		return nil
	case yaml.SequenceNode:
		var vs []float64
		if err := node.Decode(&vs); err != nil {
			return fmt.Errorf("decode parameter range: %w", err)
		}
		if len(vs) != 2 {
			return fmt.Errorf("line %d: parameter range needs 2 values, got %d", node.Line, len(vs))
		}
		if vs[0] > vs[1] {
			return fmt.Errorf("line %d: parameter range min %v > max %v", node.Line, vs[0], vs[1])
		}
		p.Min, p.Max = vs[0], vs[1]
		return nil
	}
	return fmt.Errorf("line %d: parameter must be a number or [min, max]", node.Line)
}

func (p ParamRange) quantize() Range {
	return Range{Min: Quantize(p.Min), Max: Quantize(p.Max)}
}

// Parameters is the climate region a biome occupies.
type Parameters struct {
	Temperature     ParamRange `yaml:"temperature"`
	Humidity        ParamRange `yaml:"humidity"`
	Continentalness ParamRange `yaml:"continentalness"`
	Erosion         ParamRange `yaml:"erosion"`
	Depth           ParamRange `yaml:"depth"`
	Weirdness       ParamRange `yaml:"weirdness"`
	Offset          float64    `yaml:"offset"`
}

// Hypercube quantizes p.
func (p Parameters) Hypercube() Hypercube {
	off := Quantize(p.Offset)
	return Hypercube{
		p.Temperature.quantize(),
		p.Humidity.quantize(),
		p.Continentalness.quantize(),
		p.Erosion.quantize(),
		p.Depth.quantize(),
		p.Weirdness.quantize(),
		{Min: off, Max: off},
	}
}
