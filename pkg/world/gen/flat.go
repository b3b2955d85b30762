package gen

import (
	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
)

// FlatGenerator generates a classic superflat world on top of the shape's
// bottom: bedrock, two layers of stone, dirt, grass.
type FlatGenerator struct {
	shape  sampler.Shape
	layers []block.State
}

// NewFlatGenerator creates a FlatGenerator for a world of the given shape.
func NewFlatGenerator(shape sampler.Shape) *FlatGenerator {
	return &FlatGenerator{
		shape:  shape,
		layers: []block.State{block.Bedrock, block.Stone, block.Stone, block.Dirt, block.GrassBlock},
	}
}

func (g *FlatGenerator) GenerateChunk(chunk.Pos) *chunk.Data {
	s := chunk.NewSections(g.shape.MinY, g.shape.Height, biome.Plains)
	for x := int32(0); x < 16; x++ {
		for z := int32(0); z < 16; z++ {
			for i, st := range g.layers {
				s.SetBlock(x, g.shape.MinY+int32(i), z, st)
			}
		}
	}
	d := &chunk.Data{Status: chunk.StatusFull, Sections: s}
	d.Heightmaps.Compute(s)
	return d
}

func (g *FlatGenerator) GenerateEntities(chunk.Pos) []Entity { return nil }

// HeightAt returns one above the grass layer.
func (g *FlatGenerator) HeightAt(_, _ int32) int32 {
	return g.shape.MinY + int32(len(g.layers))
}
