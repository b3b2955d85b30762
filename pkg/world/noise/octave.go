package noise

import (
	"fmt"
	"math"
)

// Params describes a noise: the first (lowest frequency) octave and one amplitude per octave.
type Params struct {
	FirstOctave int       `json:"first_octave" yaml:"first_octave"`
	Amplitudes  []float64 `json:"amplitudes" yaml:"amplitudes"`
}

// Octave sums several Perlin octaves with halving amplitude and doubling frequency.
type Octave struct {
	levels      []*Perlin
	amplitudes  []float64
	inputFactor float64
	valueFactor float64
	maxValue    float64
}

// NewOctave builds the octaves for firstOctave..firstOctave+len(amplitudes)-1.
// Octaves with a zero amplitude are skipped. The legacy layout consumes the
// random stream sequentially and only supports non-positive octaves.
func NewOctave(r Random, firstOctave int, amplitudes []float64, legacy bool) (*Octave, error) {
	n := len(amplitudes)
	if n == 0 {
		return nil, fmt.Errorf("octave noise needs at least one amplitude")
	}
	o := &Octave{
		levels:      make([]*Perlin, n),
		amplitudes:  amplitudes,
		inputFactor: math.Pow(2, float64(firstOctave)),
		valueFactor: math.Pow(2, float64(n-1)) / (math.Pow(2, float64(n)) - 1),
	}

	if legacy {
		top := -firstOctave
		if top < n-1 {
			return nil, fmt.Errorf("legacy octave noise does not support positive octaves (first %d, count %d)", firstOctave, n)
		}
		first := NewPerlin(r)
		if top < n && amplitudes[top] != 0 {
			o.levels[top] = first
		}
		for l := top - 1; l >= 0; l-- {
			if l < n && amplitudes[l] != 0 {
				o.levels[l] = NewPerlin(r)
				continue
			}
			r.Skip(262)
		}
	} else {
		d := r.Deriver()
		for l, amp := range amplitudes {
			if amp != 0 {
				o.levels[l] = NewPerlin(d.FromHash(fmt.Sprintf("octave_%d", firstOctave+l)))
			}
		}
	}

	o.maxValue = o.edgeValue(2)
	return o, nil
}

func (o *Octave) edgeValue(scale float64) float64 {
	var sum float64
	f := o.valueFactor
	for i, level := range o.levels {
		if level != nil {
			sum += o.amplitudes[i] * scale * f
		}
		f /= 2
	}
	return sum
}

// MaxValue is the largest magnitude Sample can return.
func (o *Octave) MaxValue() float64 { return o.maxValue }

// Sample evaluates all octaves at (x, y, z).
func (o *Octave) Sample(x, y, z float64) float64 {
	var sum float64
	e := o.inputFactor
	f := o.valueFactor
	for i, level := range o.levels {
		if level != nil {
			v := level.Sample(wrap(x*e), wrap(y*e), wrap(z*e), 0, 0)
			sum += o.amplitudes[i] * v * f
		}
		e *= 2
		f /= 2
	}
	return sum
}

// level returns the octave counted from the highest frequency down.
func (o *Octave) level(i int) *Perlin {
	return o.levels[len(o.levels)-1-i]
}

// DoublePerlin averages two octave noises sampled at slightly different frequencies.
type DoublePerlin struct {
	first, second *Octave
	amplitude     float64
	maxValue      float64
}

const doublePerlinFactor = 1.0181268882175227

// NewDoublePerlin builds both octave noises from r in sequence.
func NewDoublePerlin(r Random, p Params, legacy bool) (*DoublePerlin, error) {
	first, err := NewOctave(r, p.FirstOctave, p.Amplitudes, legacy)
	if err != nil {
		return nil, fmt.Errorf("build first octave noise: %w", err)
	}
	second, err := NewOctave(r, p.FirstOctave, p.Amplitudes, legacy)
	if err != nil {
		return nil, fmt.Errorf("build second octave noise: %w", err)
	}

	lo, hi := math.MaxInt, math.MinInt
	for i, amp := range p.Amplitudes {
		if amp != 0 {
			lo = min(lo, i)
			hi = max(hi, i)
		}
	}
	if lo > hi {
		return nil, fmt.Errorf("noise has only zero amplitudes")
	}

	amplitude := (1.0 / 6.0) / (0.1 * (1 + 1/float64(hi-lo+1)))
	return &DoublePerlin{
		first:     first,
		second:    second,
		amplitude: amplitude,
		maxValue:  (first.MaxValue() + second.MaxValue()) * amplitude,
	}, nil
}

// MaxValue is the largest magnitude Sample can return.
func (d *DoublePerlin) MaxValue() float64 { return d.maxValue }

// Sample evaluates the noise at (x, y, z).
func (d *DoublePerlin) Sample(x, y, z float64) float64 {
	a := d.first.Sample(x, y, z)
	b := d.second.Sample(x*doublePerlinFactor, y*doublePerlinFactor, z*doublePerlinFactor)
	return (a + b) * d.amplitude
}
