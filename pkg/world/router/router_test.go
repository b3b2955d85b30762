package router

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

const testDocument = `
functions:
  test/shape:
    type: interpolated
    argument:
      type: add
      argument1:
        type: y_clamped_gradient
        from_y: -64
        to_y: 320
        from_value: 1
        to_value: -1
      argument2:
        type: noise
        noise: test
        xz_scale: 1
        y_scale: 1
router:
  barrier: 0
  fluid_level_floodedness: 0
  fluid_level_spread: 0
  lava: 0
  temperature: {type: flat_cache, argument: {type: noise, noise: test}}
  vegetation: 0
  continents: 0
  erosion: 0
  depth: 0
  ridges: 0
  initial_density_without_jaggedness: test/shape
  final_density: test/shape
  vein_toggle: 0
  vein_ridged: 0
  vein_gap: 0
`

func testNoises() map[string]noise.Params {
	return map[string]noise.Params{"test": {FirstOctave: -5, Amplitudes: []float64{1, 1}}}
}

func parse(t *testing.T, src string) *Document {
	t.Helper()
	var doc Document
	if err := yaml.Unmarshal([]byte(src), &doc); err != nil {
		t.Fatalf("parse: %v", err)
	}
	return &doc
}

func TestBuild(t *testing.T) {
	r, err := Build(parse(t, testDocument), noise.NewSeeds(0, false), testNoises())
	if err != nil {
		t.Fatal(err)
	}
	final, ok := r.Get(FinalDensity).(*density.Wrapper)
	if !ok || final.Kind != density.CellCache {
		t.Fatalf("final density: got %T, want a cell cache wrapper", r.Get(FinalDensity))
	}
	sum, ok := final.Input.(*density.Binary)
	if !ok || sum.Op != density.Add {
		t.Fatalf("final density input: got %T, want add", final.Input)
	}
	if sum.A != r.Get(InitialDensityWithoutJaggedness) {
		t.Error("final density does not share the named shape with initial density")
	}
	if blend, ok := sum.B.(*density.Blend); !ok || blend.Kind != density.Beardifier {
		t.Errorf("final density addend: got %T, want beardifier", sum.B)
	}
	// interpolated shape, flat cache and the final cell cache.
	if got := r.CacheSlots(); got != 3 {
		t.Errorf("got %d cache slots, want 3", got)
	}
	if got := len(r.Functions()); got != int(NumSlots) {
		t.Errorf("got %d functions, want %d", got, NumSlots)
	}
}

func TestSameSeedSameRouter(t *testing.T) {
	a, err := Build(parse(t, testDocument), noise.NewSeeds(7, false), testNoises())
	if err != nil {
		t.Fatal(err)
	}
	b, err := Build(parse(t, testDocument), noise.NewSeeds(7, false), testNoises())
	if err != nil {
		t.Fatal(err)
	}
	c, err := Build(parse(t, testDocument), noise.NewSeeds(8, false), testNoises())
	if err != nil {
		t.Fatal(err)
	}
	differs := false
	for x := int32(-40); x < 40; x += 3 {
		for y := int32(-64); y < 320; y += 17 {
			p := density.Pos{X: x, Y: y, Z: x * 2}
			va := density.Evaluate(a.Get(FinalDensity), p)
			if vb := density.Evaluate(b.Get(FinalDensity), p); va != vb {
				t.Fatalf("at %+v: got %v and %v from one seed", p, va, vb)
			}
			if density.Evaluate(c.Get(FinalDensity), p) != va {
				differs = true
			}
		}
	}
	if !differs {
		t.Error("seeds 7 and 8 produced identical terrain")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name, old, new, want string
	}{
		{"missing slot", "  vein_gap: 0\n", "", "missing slot vein_gap"},
		{"unknown slot", "  vein_gap: 0\n", "  vein_gap: 0\n  carvers: 0\n", "unknown slots carvers"},
		{"bad function", "  lava: 0\n", "  lava: {type: bogus}\n", "slot lava"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			src := strings.Replace(testDocument, tt.old, tt.new, 1)
			_, err := Build(parse(t, src), noise.NewSeeds(0, false), testNoises())
			if err == nil {
				t.Fatal("got nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestNoiseLookup(t *testing.T) {
	r, err := Build(parse(t, testDocument), noise.NewSeeds(0, false), testNoises())
	if err != nil {
		t.Fatal(err)
	}
	a, err := r.Noise("test")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := r.Noise("minecraft:test")
	if a != b {
		t.Error("namespaced and bare names returned different noises")
	}
	if _, err := r.Noise("absent"); err == nil {
		t.Error("absent noise: got nil error")
	}
}
