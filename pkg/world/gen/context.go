package gen

import (
	"fmt"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/settings"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/surface"
)

// Context is everything built once per world before any chunk is
// generated. It is immutable and shared by all chunk builds.
type Context struct {
	Preset   *settings.Preset
	Seeds    *noise.Seeds
	Router   *router.Router
	Biomes   *biome.Tree
	Surface  *surface.System
	Shape    sampler.Shape
	SeaLevel int32

	DefaultBlock block.State
	DefaultFluid block.State

	veins veinTypes
}

// NewContext binds a preset to a world seed. Every configuration error
// surfaces here; chunk builds from the returned Context cannot fail.
func NewContext(p *settings.Preset, seed int64) (*Context, error) {
	c := &Context{
		Preset:   p,
		Seeds:    noise.NewSeeds(seed, p.Settings.LegacyRandom),
		Shape:    p.Settings.Shape,
		SeaLevel: p.Settings.SeaLevel,
	}
	if err := c.Shape.Validate(); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	var ok bool
	if c.DefaultBlock, ok = block.ByName(p.Settings.DefaultBlock); !ok {
		return nil, fmt.Errorf("new context: unknown default block %q", p.Settings.DefaultBlock)
	}
	if c.DefaultFluid, ok = block.ByName(p.Settings.DefaultFluid); !ok {
		return nil, fmt.Errorf("new context: unknown default fluid %q", p.Settings.DefaultFluid)
	}

	var err error
	if c.Router, err = router.Build(&p.Router, c.Seeds, p.Noises); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	entries, err := p.BiomeEntries()
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}
	if c.Biomes, err = biome.NewTree(entries); err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	c.Surface, err = surface.NewSystem(&p.Surface, c.Router, c.Seeds, c.DefaultBlock, c.Shape.MinY, c.Shape.Height)
	if err != nil {
		return nil, fmt.Errorf("new context: %w", err)
	}

	c.veins = defaultVeins()
	return c, nil
}

// NewProtoChunk starts an empty build of the chunk at pos.
func (c *Context) NewProtoChunk(pos chunk.Pos) *ProtoChunk {
	p := &ProtoChunk{
		Pos:      pos,
		ctx:      c,
		sections: chunk.NewSections(c.Shape.MinY, c.Shape.Height, biome.TheVoid),
		sampler:  sampler.New(c.Shape, pos.X, pos.Z, c.Router.Functions()...),
	}
	p.heightmaps.Reset(c.Shape.MinY)
	p.estimator = p.sampler.HeightEstimator(c.Router.Get(router.InitialDensityWithoutJaggedness))
	return p
}
