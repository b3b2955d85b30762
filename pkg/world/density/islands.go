package density

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// islandField is the simplex height field of the end islands.
type islandField struct {
	noise opensimplex.Noise
}

func newIslandField(seed int64) *islandField {
	return &islandField{noise: opensimplex.New(seed)}
}

func clamp32(v, lo, hi float32) float32 {
	return float32(clamp(float64(v), float64(lo), float64(hi)))
}

// height returns the island height at a cell coordinate (block / 8).
func (f *islandField) height(x, z int32) float32 {
	i, j := int64(x/2), int64(z/2)
	k, l := x%2, z%2
	h := 100 - float32(math.Sqrt(float64(int64(x)*int64(x)+int64(z)*int64(z))))*8
	h = clamp32(h, -100, 80)

	for m := int64(-12); m <= 12; m++ {
		for n := int64(-12); n <= 12; n++ {
			o, p := i+m, j+n
			if o*o+p*p <= 4096 || f.noise.Eval2(float64(o), float64(p)) >= -0.9 {
				continue
			}
			g := float32(math.Mod(float64(float32(math.Abs(float64(o)))*3439+float32(math.Abs(float64(p)))*147), 13)) + 9
			dx := float32(int64(k) - m*2)
			dz := float32(int64(l) - n*2)
			r := 100 - float32(math.Sqrt(float64(dx*dx+dz*dz)))*g
			h = max(h, clamp32(r, -100, 80))
		}
	}
	return h
}

func (f *islandField) sample(x, z int32) float64 {
	return (float64(f.height(x, z)) - 8) / 128
}
