// Package biome holds the biome registry and the multi-noise lookup index.
package biome

import (
	"fmt"
	"strings"
)

// ID identifies a biome inside a chunk's biome palette.
type ID uint8

const (
	TheVoid ID = iota
	Plains
	SnowyPlains
	Desert
	Forest
	Taiga
	Savanna
	Badlands
	ErodedBadlands
	StonyPeaks
	Beach
	River
	Ocean
	DeepOcean
	FrozenOcean
	WarmOcean
)

// Biome describes one biome.
type Biome struct {
	ID            ID
	Name          string
	Category      string
	Temperature   float64
	Downfall      float64
	Precipitation string
}

var biomes = []Biome{
	{TheVoid, "the_void", "none", 0.5, 0.5, "none"},
	{Plains, "plains", "plains", 0.8, 0.4, "rain"},
	{SnowyPlains, "snowy_plains", "icy", 0.0, 0.5, "snow"},
	{Desert, "desert", "desert", 2.0, 0.0, "none"},
	{Forest, "forest", "forest", 0.7, 0.8, "rain"},
	{Taiga, "taiga", "taiga", 0.25, 0.8, "rain"},
	{Savanna, "savanna", "savanna", 2.0, 0.0, "none"},
	{Badlands, "badlands", "mesa", 2.0, 0.0, "none"},
	{ErodedBadlands, "eroded_badlands", "mesa", 2.0, 0.0, "none"},
	{StonyPeaks, "stony_peaks", "mountain", 1.0, 0.3, "rain"},
	{Beach, "beach", "beach", 0.8, 0.4, "rain"},
	{River, "river", "river", 0.5, 0.5, "rain"},
	{Ocean, "ocean", "ocean", 0.5, 0.5, "rain"},
	{DeepOcean, "deep_ocean", "ocean", 0.5, 0.5, "rain"},
	{FrozenOcean, "frozen_ocean", "ocean", 0.0, 0.5, "snow"},
	{WarmOcean, "warm_ocean", "ocean", 0.5, 0.5, "rain"},
}

var byName = func() map[string]ID {
	m := make(map[string]ID, len(biomes))
	for _, b := range biomes {
		m[b.Name] = b.ID
	}
	return m
}()

// Count is the number of registered biomes.
func Count() int { return len(biomes) }

// ByName resolves a biome name with or without the "minecraft:" namespace.
func ByName(name string) (ID, bool) {
	id, ok := byName[strings.TrimPrefix(name, "minecraft:")]
	return id, ok
}

// Get returns the registry entry of id.
func Get(id ID) Biome {
	if int(id) >= len(biomes) {
		return biomes[TheVoid]
	}
	return biomes[id]
}

// Name returns the namespaced biome name.
func (id ID) Name() string {
	if int(id) >= len(biomes) {
		return fmt.Sprintf("minecraft:unknown_%d", id)
	}
	return "minecraft:" + biomes[id].Name
}

func (id ID) String() string { return id.Name() }
