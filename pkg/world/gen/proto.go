package gen

import (
	"errors"
	"fmt"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
)

// Stage is how far a ProtoChunk has been built.
type Stage uint8

const (
	StageEmpty Stage = iota
	StageBiomes
	StageNoise
	StageSurface
)

var stageNames = [...]string{"empty", "biomes", "noise", "surface"}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", s)
}

// ErrStage is returned when a stage runs out of order or twice.
var ErrStage = errors.New("generation stage out of order")

// ProtoChunk is a chunk column while it is being generated. Stages run in
// order, each at most once: PopulateBiomes, PopulateNoise, BuildSurface,
// then Finish hands the result over. A ProtoChunk belongs to one goroutine.
type ProtoChunk struct {
	Pos chunk.Pos

	ctx        *Context
	stage      Stage
	finished   bool
	sections   *chunk.Sections
	heightmaps chunk.Heightmaps
	sampler    *sampler.Sampler
	estimator  *sampler.HeightEstimator
}

// Stage returns the last completed stage.
func (p *ProtoChunk) Stage() Stage { return p.stage }

func (p *ProtoChunk) expect(want Stage, op string) error {
	if p.finished {
		return fmt.Errorf("%s chunk %s: %w: already finished", op, p.Pos, ErrStage)
	}
	if p.stage != want {
		return fmt.Errorf("%s chunk %s: %w: at stage %s, want %s", op, p.Pos, ErrStage, p.stage, want)
	}
	return nil
}

var climateSlots = [...]router.Slot{
	router.Temperature,
	router.Vegetation,
	router.Continents,
	router.Erosion,
	router.Depth,
	router.Ridges,
}

// PopulateBiomes resolves the biome of every 4×4×4 cell from the climate
// slots of the router.
func (p *ProtoChunk) PopulateBiomes() error {
	if err := p.expect(StageEmpty, "populate biomes"); err != nil {
		return err
	}
	var fns [len(climateSlots)]density.Function
	for i, s := range climateSlots {
		fns[i] = p.ctx.Router.Get(s)
	}

	var hint biome.Hint
	minQY := p.ctx.Shape.MinY >> 2
	maxQY := p.ctx.Shape.MaxY() >> 2
	for lqx := int32(0); lqx < 4; lqx++ {
		for lqz := int32(0); lqz < 4; lqz++ {
			qx, qz := p.Pos.X<<2+lqx, p.Pos.Z<<2+lqz
			for qy := minQY; qy < maxQY; qy++ {
				pos := density.Pos{X: qx << 2, Y: qy << 2, Z: qz << 2}
				var v [len(climateSlots)]float64
				for i, fn := range fns {
					v[i] = p.sampler.Direct(fn, pos)
				}
				id := p.ctx.Biomes.Lookup(biome.NewPoint(v[0], v[1], v[2], v[3], v[4], v[5]), &hint)
				p.sections.SetBiome(qx, qy, qz, id)
			}
		}
	}
	p.stage = StageBiomes
	return nil
}

// PopulateNoise fills the column from the final density: positive density
// is terrain, the rest is left to the aquifer. Ore veins replace terrain.
func (p *ProtoChunk) PopulateNoise() error {
	if err := p.expect(StageBiomes, "populate noise"); err != nil {
		return err
	}
	s := p.sampler
	rt := p.ctx.Router
	final := rt.Get(router.FinalDensity)
	aq := newAquifer(p.ctx, p.ctx.Preset.Settings.AquifersEnabled, p.direct, p.estimator.Estimate)
	veins := p.ctx.Preset.Settings.OreVeinsEnabled

	var cur density.Pos
	sample := func(slot router.Slot) float64 { return s.Sample(rt.Get(slot), cur) }

	s.SampleStart()
	for cx := 0; cx < s.CellsXZ(); cx++ {
		s.SampleEnd(cx)
		for cz := 0; cz < s.CellsXZ(); cz++ {
			for cy := s.CellsY() - 1; cy >= 0; cy-- {
				s.OnCellCorners(cx, cy, cz)
				for by := s.CellHeight() - 1; by >= 0; by-- {
					s.InterpolateY(by)
					for bx := 0; bx < s.CellWidth(); bx++ {
						s.InterpolateX(bx)
						for bz := 0; bz < s.CellWidth(); bz++ {
							s.InterpolateZ(bz)
							cur = s.Block()
							st, ok := aq.compute(cur.X, cur.Y, cur.Z, s.Sample(final, cur))
							if !ok {
								st = p.ctx.DefaultBlock
								if veins {
									if v, ok := oreVein(p.ctx.veins, p.ctx.Seeds.Ore, cur.X, cur.Y, cur.Z, sample); ok {
										st = v
									}
								}
							}
							if !st.IsAir() {
								p.SetBlock(cur.X, cur.Y, cur.Z, st)
							}
						}
					}
				}
			}
		}
		s.SwapBuffers()
	}
	p.stage = StageNoise
	return nil
}

func (p *ProtoChunk) direct(slot router.Slot, pos density.Pos) float64 {
	return p.sampler.Direct(p.ctx.Router.Get(slot), pos)
}

// BuildSurface paints biome materials over the terrain.
func (p *ProtoChunk) BuildSurface() error {
	if err := p.expect(StageNoise, "build surface"); err != nil {
		return err
	}
	p.ctx.Surface.Build(p, p.Pos.X, p.Pos.Z, p.estimator)
	p.stage = StageSurface
	return nil
}

// Finish converts a surfaced ProtoChunk into stored chunk data. The
// ProtoChunk cannot be used afterwards.
func (p *ProtoChunk) Finish() (*chunk.Data, error) {
	if err := p.expect(StageSurface, "finish"); err != nil {
		return nil, err
	}
	d := &chunk.Data{Status: chunk.StatusFull, Sections: p.sections}
	d.Heightmaps.Compute(p.sections)
	p.finished = true
	p.sections, p.sampler, p.estimator = nil, nil, nil
	return d, nil
}

// Generate runs every remaining stage and finishes the chunk.
func (p *ProtoChunk) Generate() (*chunk.Data, error) {
	steps := []struct {
		from Stage
		run  func() error
	}{
		{StageEmpty, p.PopulateBiomes},
		{StageBiomes, p.PopulateNoise},
		{StageNoise, p.BuildSurface},
	}
	for _, st := range steps {
		if p.stage == st.from && !p.finished {
			if err := st.run(); err != nil {
				return nil, err
			}
		}
	}
	return p.Finish()
}

// Block returns the block at absolute coordinates inside the chunk. Heights
// outside the world are air.
func (p *ProtoChunk) Block(x, y, z int32) block.State { return p.sections.Block(x, y, z) }

// SetBlock stores a block. Heights outside the world are ignored.
func (p *ProtoChunk) SetBlock(x, y, z int32, st block.State) {
	p.sections.SetBlock(x, y, z, st)
	if y >= p.ctx.Shape.MinY && y < p.ctx.Shape.MaxY() {
		p.heightmaps.Update(x, y, z, st)
	}
}

// Biome returns the biome cell holding the block.
func (p *ProtoChunk) Biome(x, y, z int32) biome.ID { return p.sections.Biome(x, y, z) }

// Top returns the highest non-air y of the column, or one below the world.
func (p *ProtoChunk) Top(x, z int32) int32 {
	return p.heightmaps.WorldSurface[(z&15)<<4|x&15] - 1
}
