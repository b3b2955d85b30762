// Package gen generates chunk columns from a worldgen preset.
package gen

import (
	"fmt"
	"math"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
)

// Entity is a spawned entity placed by generation.
type Entity struct {
	ID      string
	X, Y, Z float64
}

// Generator produces chunk data deterministically from a seed. It must be
// safe for concurrent use.
type Generator interface {
	GenerateChunk(pos chunk.Pos) *chunk.Data
	// GenerateEntities returns the entities spawned with a chunk, or nil.
	GenerateEntities(pos chunk.Pos) []Entity
	// HeightAt estimates the surface height of a column.
	HeightAt(x, z int32) int32
}

// NoiseGenerator builds chunks through the full proto-chunk pipeline.
type NoiseGenerator struct {
	ctx *Context
}

// NewNoiseGenerator creates a NoiseGenerator over ctx.
func NewNoiseGenerator(ctx *Context) *NoiseGenerator {
	return &NoiseGenerator{ctx: ctx}
}

// Context returns the world context the generator builds from.
func (g *NoiseGenerator) Context() *Context { return g.ctx }

func (g *NoiseGenerator) GenerateChunk(pos chunk.Pos) *chunk.Data {
	d, err := g.ctx.NewProtoChunk(pos).Generate()
	if err != nil {
		// Stages run in order on a fresh proto-chunk.
		panic(fmt.Sprintf("gen: generate chunk %s: %v", pos, err))
	}
	return d
}

// GenerateEntities returns nil: terrain generation places no entities.
func (g *NoiseGenerator) GenerateEntities(chunk.Pos) []Entity { return nil }

// HeightAt returns the preliminary surface of the column holding (x, z),
// or the bottom of the world when the column has no terrain.
func (g *NoiseGenerator) HeightAt(x, z int32) int32 {
	s := sampler.New(g.ctx.Shape, x>>4, z>>4, g.ctx.Router.Functions()...)
	h := s.HeightEstimator(g.ctx.Router.Get(router.InitialDensityWithoutJaggedness)).Estimate(x, z)
	if h == math.MaxInt32 {
		return g.ctx.Shape.MinY
	}
	return h
}
