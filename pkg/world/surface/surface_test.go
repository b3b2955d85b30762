package surface

import (
	"fmt"
	"math"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

const (
	testMinY   = -64
	testHeight = 384
)

type testNoises struct{ seeds *noise.Seeds }

func (n testNoises) Noise(name string) (*noise.DoublePerlin, error) {
	switch name {
	case SurfaceNoise, SurfaceSecondaryNoise, ClayBandsOffsetNoise, "badlands_pillar":
		return n.seeds.DoublePerlin(name, noise.Params{FirstOctave: -6, Amplitudes: []float64{1, 1, 1}})
	}
	return nil, fmt.Errorf("unknown noise %q", name)
}

// column is a fake chunk: each column is described by fill layers and a
// biome.
type column struct {
	blocks map[[3]int32]block.State
	biomes func(x, z int32) biome.ID
}

func newColumn() *column {
	return &column{
		blocks: make(map[[3]int32]block.State),
		biomes: func(int32, int32) biome.ID { return biome.Plains },
	}
}

// fill sets y in [from, to] of every column in chunk 0,0.
func (c *column) fill(from, to int32, st block.State) {
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			for y := from; y <= to; y++ {
				c.blocks[[3]int32{x, y, z}] = st
			}
		}
	}
}

func (c *column) Block(x, y, z int32) block.State { return c.blocks[[3]int32{x, y, z}] }

func (c *column) SetBlock(x, y, z int32, st block.State) { c.blocks[[3]int32{x, y, z}] = st }

func (c *column) Biome(x, _, z int32) biome.ID { return c.biomes(x, z) }

func (c *column) Top(x, z int32) int32 {
	for y := int32(testMinY + testHeight - 1); y >= testMinY; y-- {
		if !c.Block(x, y, z).IsAir() {
			return y
		}
	}
	return testMinY - 1
}

type flatEstimate int32

func (f flatEstimate) Estimate(int32, int32) int32 { return int32(f) }

func compile(t *testing.T, src string) *System {
	t.Helper()
	var def RuleDef
	if err := yaml.Unmarshal([]byte(src), &def); err != nil {
		t.Fatalf("unmarshal rule: %v", err)
	}
	seeds := noise.NewSeeds(1234, false)
	s, err := NewSystem(&def, testNoises{seeds}, seeds, block.Stone, testMinY, testHeight)
	if err != nil {
		t.Fatalf("NewSystem: %v", err)
	}
	return s
}

// runDepthAt recomputes the run depth a column sees.
func runDepthAt(s *System, x, z int32) int32 {
	c := &Context{sys: s}
	c.setColumn(x, z)
	return c.runDepth
}

const grassRule = `
type: sequence
sequence:
  - type: condition
    if_true: {type: stone_depth, offset: 0, surface_type: floor}
    then_run:
      type: condition
      if_true: {type: water, offset: -1, surface_depth_multiplier: 0, add_stone_depth: false}
      then_run: {type: block, result_state: {Name: "minecraft:grass_block"}}
  - type: condition
    if_true: {type: stone_depth, offset: 0, add_surface_depth: true, surface_type: floor}
    then_run:
      type: sequence
      sequence:
        - type: condition
          if_true: {type: water, offset: -6, surface_depth_multiplier: -1, add_stone_depth: true}
          then_run: {type: block, result_state: {Name: dirt}}
        - {type: block, result_state: {Name: "minecraft:sand"}}
`

func TestGrassOverDirt(t *testing.T) {
	s := compile(t, grassRule)
	col := newColumn()
	col.fill(testMinY, 63, block.Stone)
	s.Build(col, 0, 0, flatEstimate(63))

	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			if got := col.Block(x, 63, z); got != block.GrassBlock {
				t.Fatalf("block at %d,63,%d = %s, want grass_block", x, z, got)
			}
			depth := runDepthAt(s, x, z)
			for k := int32(2); k <= 12; k++ {
				want := block.Stone
				if k <= 1+depth {
					want = block.Dirt
				}
				if got := col.Block(x, 64-k, z); got != want {
					t.Fatalf("block at %d,%d,%d = %s, want %s (run depth %d)", x, 64-k, z, got, want, depth)
				}
			}
			if got := col.Block(x, testMinY, z); got != block.Stone {
				t.Fatalf("bottom block = %s, want stone", got)
			}
		}
	}
}

func TestSeaFloorUnderWater(t *testing.T) {
	s := compile(t, grassRule)
	col := newColumn()
	col.fill(testMinY, 40, block.Stone)
	col.fill(41, 62, block.Water)
	s.Build(col, 0, 0, flatEstimate(40))

	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			want := block.Sand
			if runDepthAt(s, x, z) < 0 {
				want = block.Stone
			}
			if got := col.Block(x, 40, z); got != want {
				t.Fatalf("floor at %d,40,%d = %s, want %s", x, z, got, want)
			}
			if got := col.Block(x, 41, z); got != block.Water {
				t.Fatalf("water at %d,41,%d replaced by %s", x, z, got)
			}
		}
	}
}

func TestOnlyDefaultBlockReplaced(t *testing.T) {
	s := compile(t, `{type: block, result_state: {Name: gravel}}`)
	col := newColumn()
	col.fill(0, 10, block.Stone)
	col.fill(5, 5, block.Granite)
	s.Build(col, 0, 0, flatEstimate(10))

	if got := col.Block(3, 5, 3); got != block.Granite {
		t.Fatalf("granite replaced by %s", got)
	}
	if got := col.Block(3, 4, 3); got != block.Gravel {
		t.Fatalf("stone at y=4 = %s, want gravel", got)
	}
	if got := col.Block(3, 11, 3); got != block.Air {
		t.Fatalf("air at y=11 = %s, want air", got)
	}
}

func TestVerticalGradient(t *testing.T) {
	s := compile(t, `
type: condition
if_true:
  type: vertical_gradient
  random_name: bedrock_floor
  true_at_and_below: {above_bottom: 0}
  false_at_and_above: {above_bottom: 5}
then_run: {type: block, result_state: {Name: bedrock}}
`)
	build := func() *column {
		col := newColumn()
		col.fill(testMinY, testMinY+20, block.Stone)
		s.Build(col, 0, 0, flatEstimate(0))
		return col
	}
	col := build()
	mixed := 0
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			if got := col.Block(x, testMinY, z); got != block.Bedrock {
				t.Fatalf("bottom at %d,%d = %s, want bedrock", x, z, got)
			}
			for y := int32(testMinY + 5); y <= testMinY+20; y++ {
				if got := col.Block(x, y, z); got != block.Stone {
					t.Fatalf("block at %d,%d,%d = %s, want stone", x, y, z, got)
				}
			}
			if col.Block(x, testMinY+2, z) == block.Bedrock {
				mixed++
			}
		}
	}
	if mixed == 0 || mixed == 256 {
		t.Fatalf("got %d bedrock blocks at y=%d, want a mix", mixed, testMinY+2)
	}

	again := build()
	for k, v := range col.blocks {
		if again.blocks[k] != v {
			t.Fatalf("block at %v differs between runs: %s vs %s", k, v, again.blocks[k])
		}
	}
}

func TestBiomeCondition(t *testing.T) {
	s := compile(t, `
type: sequence
sequence:
  - type: condition
    if_true: {type: biome, biome_is: ["minecraft:desert", badlands]}
    then_run: {type: block, result_state: {Name: sand}}
  - type: condition
    if_true: {type: not, invert: {type: hole}}
    then_run: {type: block, result_state: {Name: dirt}}
`)
	col := newColumn()
	col.biomes = func(x, _ int32) biome.ID {
		if x < 8 {
			return biome.Desert
		}
		return biome.Forest
	}
	col.fill(0, 0, block.Stone)
	s.Build(col, 0, 0, flatEstimate(0))

	for x := int32(0); x < 16; x++ {
		got := col.Block(x, 0, 4)
		want := block.Sand
		if x >= 8 {
			want = block.Dirt
			if runDepthAt(s, x, 4) <= 0 {
				want = block.Stone
			}
		}
		if got != want {
			t.Fatalf("block at x=%d = %s, want %s", x, got, want)
		}
	}
}

func TestAbovePreliminarySurface(t *testing.T) {
	s := compile(t, `
type: condition
if_true: {type: above_preliminary_surface}
then_run: {type: block, result_state: {Name: gravel}}
`)
	col := newColumn()
	col.fill(0, 80, block.Stone)
	s.Build(col, 0, 0, flatEstimate(60))

	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			limit := 60 + runDepthAt(s, x, z) - 8
			for y := int32(0); y <= 80; y++ {
				want := block.Stone
				if y >= limit {
					want = block.Gravel
				}
				if got := col.Block(x, y, z); got != want {
					t.Fatalf("block at %d,%d,%d = %s, want %s", x, y, z, got, want)
				}
			}
		}
	}
}

func TestMinSurfaceInterpolatesCorners(t *testing.T) {
	s := compile(t, `{type: block, result_state: {Name: stone}}`)
	est := cornerEstimate{}
	c := &Context{sys: s, est: est}
	c.setColumn(8, 4)
	// Corners: (0,0)=0, (16,0)=16, (0,16)=32, (16,16)=48.
	want := int32(8+8) + c.runDepth - 8
	if got := c.minSurface(); got != want {
		t.Fatalf("got min surface %d, want %d", got, want)
	}
}

type cornerEstimate struct{}

func (cornerEstimate) Estimate(x, z int32) int32 { return x + 2*z }

func TestClayBands(t *testing.T) {
	s := compile(t, `{type: bandlands}`)
	bands := s.Bands()
	seen := map[block.State]int{}
	for _, b := range bands {
		if !strings.HasSuffix(b.Name(), "terracotta") {
			t.Fatalf("band %s is not terracotta", b)
		}
		seen[b]++
	}
	for _, want := range []block.State{block.Terracotta, block.OrangeTerracotta, block.WhiteTerracotta} {
		if seen[want] == 0 {
			t.Errorf("no %s band", want)
		}
	}
	if got := compile(t, `{type: bandlands}`).Bands(); got != bands {
		t.Fatal("clay bands differ for the same seed")
	}

	col := newColumn()
	col.fill(testMinY, 100, block.Stone)
	s.Build(col, 0, 0, flatEstimate(100))
	for _, y := range []int32{testMinY, 0, 99} {
		if got, want := col.Block(1, y, 2), s.band(1, y, 2); got != want {
			t.Fatalf("block at y=%d = %s, want band %s", y, got, want)
		}
	}
}

func TestYOffset(t *testing.T) {
	tests := []struct {
		src  string
		want int32
	}{
		{"{absolute: 12}", 12},
		{"{above_bottom: 5}", -59},
		{"{below_top: 0}", 319},
		{"{below_top: 10}", 309},
	}
	for _, tt := range tests {
		var o YOffset
		if err := yaml.Unmarshal([]byte(tt.src), &o); err != nil {
			t.Fatalf("unmarshal %s: %v", tt.src, err)
		}
		if got := o.Resolve(testMinY, testHeight); got != tt.want {
			t.Errorf("%s resolves to %d, want %d", tt.src, got, tt.want)
		}
	}
	for _, bad := range []string{"{absolute: 1, below_top: 2}", "{middle: 3}", "{}", "[1]"} {
		var o YOffset
		if err := yaml.Unmarshal([]byte(bad), &o); err == nil {
			t.Errorf("expected an error for %s", bad)
		}
	}
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"no type", `{result_state: {Name: stone}}`, "without type"},
		{"unknown rule", `{type: mystery}`, "unknown surface rule type"},
		{"unknown block", `{type: block, result_state: {Name: unobtainium}}`, "unknown block"},
		{"missing state", `{type: block}`, "missing result_state"},
		{"air result", `{type: block, result_state: {Name: minecraft:air}}`, "not a solid block"},
		{"fluid result", `{type: block, result_state: {Name: water}}`, "not a solid block"},
		{"nested fluid", `{type: sequence, sequence: [{type: block, result_state: {Name: stone}}, {type: block, result_state: {Name: lava}}]}`, "not a solid block"},
		{"unknown biome", `{type: condition, if_true: {type: biome, biome_is: [moon]}, then_run: {type: bandlands}}`, "unknown biome"},
		{"unknown noise", `{type: condition, if_true: {type: noise_threshold, noise: nope, min_threshold: 0, max_threshold: 1}, then_run: {type: bandlands}}`, "unknown noise"},
		{"missing threshold", `{type: condition, if_true: {type: noise_threshold, noise: surface}, then_run: {type: bandlands}}`, "required"},
		{"multiplier", `{type: condition, if_true: {type: water, surface_depth_multiplier: 21}, then_run: {type: bandlands}}`, "outside [-20, 20]"},
		{"surface type", `{type: condition, if_true: {type: stone_depth, surface_type: side}, then_run: {type: bandlands}}`, "unknown surface_type"},
		{"unknown condition", `{type: condition, if_true: {type: sideways}, then_run: {type: bandlands}}`, "unknown condition type"},
		{"missing then", `{type: condition, if_true: {type: hole}}`, "missing surface rule"},
		{"nested", `{type: sequence, sequence: [{type: bandlands}, {type: oops}]}`, "sequence[1]"},
	}
	seeds := noise.NewSeeds(1, false)
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var def RuleDef
			if err := yaml.Unmarshal([]byte(tt.src), &def); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			_, err := NewSystem(&def, testNoises{seeds}, seeds, block.Stone, testMinY, testHeight)
			if err == nil {
				t.Fatalf("expected an error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("got error %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestNoiseThreshold(t *testing.T) {
	s := compile(t, `
type: condition
if_true: {type: noise_threshold, noise: badlands_pillar, min_threshold: 0, max_threshold: .inf}
then_run: {type: block, result_state: {Name: calcite}}
`)
	col := newColumn()
	col.fill(0, 0, block.Stone)
	s.Build(col, 0, 0, flatEstimate(0))

	n, _ := testNoises{noise.NewSeeds(1234, false)}.Noise("badlands_pillar")
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			want := block.Stone
			if v := n.Sample(float64(x), 0, float64(z)); v >= 0 && v <= math.Inf(1) {
				want = block.Calcite
			}
			if got := col.Block(x, 0, z); got != want {
				t.Fatalf("block at %d,0,%d = %s, want %s", x, z, got, want)
			}
		}
	}
}
