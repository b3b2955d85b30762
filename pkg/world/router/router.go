// Package router binds a worldgen router document to one world seed.
package router

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
)

// Slot names one entry point of a Router.
type Slot uint8

const (
	Barrier Slot = iota
	FluidLevelFloodedness
	FluidLevelSpread
	Lava
	Temperature
	Vegetation
	Continents
	Erosion
	Depth
	Ridges
	InitialDensityWithoutJaggedness
	FinalDensity
	VeinToggle
	VeinRidged
	VeinGap

	NumSlots
)

var slotNames = [NumSlots]string{
	"barrier",
	"fluid_level_floodedness",
	"fluid_level_spread",
	"lava",
	"temperature",
	"vegetation",
	"continents",
	"erosion",
	"depth",
	"ridges",
	"initial_density_without_jaggedness",
	"final_density",
	"vein_toggle",
	"vein_ridged",
	"vein_gap",
}

func (s Slot) String() string {
	if s < NumSlots {
		return slotNames[s]
	}
	return fmt.Sprintf("slot(%d)", s)
}

// Document is a router as written in a worldgen data file: named functions
// shared between entry points, and one definition per slot.
type Document struct {
	Functions map[string]*density.Def `yaml:"functions" json:"functions"`
	Router    map[string]*density.Def `yaml:"router" json:"router"`
}

// Router is a Document specialized to one world seed. It is immutable and
// safe for concurrent use; per-chunk state lives in the sampler.
type Router struct {
	funcs   [NumSlots]density.Function
	builder *density.Builder
}

// Build resolves every slot of doc against seeded noises. The final density
// slot is wrapped as cache_all_in_cell(add(final_density, beardifier)).
func Build(doc *Document, seeds *noise.Seeds, noises map[string]noise.Params) (*Router, error) {
	if doc == nil {
		return nil, errors.New("build router: no document")
	}
	var unknown []string
	for name := range doc.Router {
		if !knownSlot(name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("build router: unknown slots %s", strings.Join(unknown, ", "))
	}

	b := density.NewBuilder(seeds, noises, doc.Functions)
	r := &Router{builder: b}
	for s := Slot(0); s < NumSlots; s++ {
		def, ok := doc.Router[s.String()]
		if !ok {
			return nil, fmt.Errorf("build router: missing slot %s", s)
		}
		fn, err := b.Build(def)
		if err != nil {
			return nil, fmt.Errorf("build router slot %s: %w", s, err)
		}
		r.funcs[s] = fn
	}

	beard, err := b.Build(&density.Def{Type: "beardifier"})
	if err != nil {
		return nil, fmt.Errorf("build router: %w", err)
	}
	r.funcs[FinalDensity] = b.Wrap(density.CellCache, density.NewBinary(density.Add, r.funcs[FinalDensity], beard))
	return r, nil
}

func knownSlot(name string) bool {
	for _, n := range slotNames {
		if n == name {
			return true
		}
	}
	return false
}

// Get returns the function bound to s.
func (r *Router) Get(s Slot) density.Function { return r.funcs[s] }

// Functions returns every slot's function, indexed by Slot.
func (r *Router) Functions() []density.Function {
	out := make([]density.Function, NumSlots)
	copy(out, r.funcs[:])
	return out
}

// CacheSlots is the number of caching wrappers in the router's graph.
func (r *Router) CacheSlots() int { return r.builder.Slots() }

// Noise returns a seeded noise by name. Surface rules and the aquifer use it
// for noises that are not part of any slot.
func (r *Router) Noise(name string) (*noise.DoublePerlin, error) {
	return r.builder.Perlin(name)
}

// Function builds a named function from the document after the router itself.
// It shares nodes and noises with the slots.
func (r *Router) Function(name string) (density.Function, error) {
	return r.builder.Named(name)
}
