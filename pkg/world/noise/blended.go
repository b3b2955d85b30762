package noise

import "fmt"

// Blended is the three-noise terrain field: a main noise selects between a
// lower and an upper limit noise.
type Blended struct {
	lower, upper, main *Octave

	xzMultiplier, yMultiplier float64
	xzFactor, yFactor         float64
	smearScaleMultiplier      float64
	maxValue                  float64
}

// BlendedParams are the scale and smear settings of a Blended noise.
type BlendedParams struct {
	XZScale              float64
	YScale               float64
	XZFactor             float64
	YFactor              float64
	SmearScaleMultiplier float64
}

// NewBlended builds the limit noises (octaves -15..0) and main noise (-7..0) from r.
func NewBlended(r Random, p BlendedParams) (*Blended, error) {
	if p.XZFactor == 0 || p.YFactor == 0 {
		return nil, fmt.Errorf("blended noise factors must be non-zero")
	}
	ones := func(n int) []float64 {
		a := make([]float64, n)
		for i := range a {
			a[i] = 1
		}
		return a
	}
	lower, err := NewOctave(r, -15, ones(16), true)
	if err != nil {
		return nil, fmt.Errorf("build lower limit noise: %w", err)
	}
	upper, err := NewOctave(r, -15, ones(16), true)
	if err != nil {
		return nil, fmt.Errorf("build upper limit noise: %w", err)
	}
	main, err := NewOctave(r, -7, ones(8), true)
	if err != nil {
		return nil, fmt.Errorf("build main noise: %w", err)
	}

	b := &Blended{
		lower:                lower,
		upper:                upper,
		main:                 main,
		xzMultiplier:         684.412 * p.XZScale,
		yMultiplier:          684.412 * p.YScale,
		xzFactor:             p.XZFactor,
		yFactor:              p.YFactor,
		smearScaleMultiplier: p.SmearScaleMultiplier,
	}
	b.maxValue = lower.edgeValue(b.yMultiplier + 2)
	return b, nil
}

// MaxValue bounds the magnitude of Sample.
func (b *Blended) MaxValue() float64 { return b.maxValue }

// Sample evaluates the field at a block position.
func (b *Blended) Sample(x, y, z float64) float64 {
	d := x * b.xzMultiplier
	e := y * b.yMultiplier
	f := z * b.xzMultiplier
	g := d / b.xzFactor
	h := e / b.yFactor
	i := f / b.xzFactor
	smear := b.yMultiplier * b.smearScaleMultiplier
	smearMain := smear / b.yFactor

	var n float64
	o := 1.0
	for p := 0; p < 8; p++ {
		if level := b.main.level(p); level != nil {
			n += level.Sample(wrap(g*o), wrap(h*o), wrap(i*o), smearMain*o, h*o) / o
		}
		o /= 2
	}

	t := (n/10 + 1) / 2
	skipLower := t >= 1
	skipUpper := t <= 0

	var l, m float64
	o = 1.0
	for s := 0; s < 16; s++ {
		wx, wy, wz := wrap(d*o), wrap(e*o), wrap(f*o)
		ys := smear * o
		if !skipLower {
			if level := b.lower.level(s); level != nil {
				l += level.Sample(wx, wy, wz, ys, e*o) / o
			}
		}
		if !skipUpper {
			if level := b.upper.level(s); level != nil {
				m += level.Sample(wx, wy, wz, ys, e*o) / o
			}
		}
		o /= 2
	}
	return ClampedLerp(l/512, m/512, t) / 128
}
