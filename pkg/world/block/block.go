// Package block is the block-state table used by terrain generation and chunk storage.
package block

import (
	"fmt"
	"strings"
)

// State is a block-state id. Ids are stable for the lifetime of a world since
// they are written into chunk palettes by name, not by number.
type State uint16

const (
	Air State = iota
	CaveAir
	Stone
	Granite
	Diorite
	Andesite
	Deepslate
	Tuff
	Calcite
	Bedrock
	Dirt
	CoarseDirt
	GrassBlock
	Podzol
	Mud
	Sand
	RedSand
	Sandstone
	RedSandstone
	Gravel
	Clay
	Terracotta
	WhiteTerracotta
	OrangeTerracotta
	YellowTerracotta
	BrownTerracotta
	RedTerracotta
	LightGrayTerracotta
	SnowBlock
	PowderSnow
	Ice
	PackedIce
	Water
	Lava
	CopperOre
	RawCopperBlock
	IronOre
	DeepslateIronOre
	RawIronBlock
	Netherrack
	EndStone

	count
)

var names = [count]string{
	Air:                 "air",
	CaveAir:             "cave_air",
	Stone:               "stone",
	Granite:             "granite",
	Diorite:             "diorite",
	Andesite:            "andesite",
	Deepslate:           "deepslate",
	Tuff:                "tuff",
	Calcite:             "calcite",
	Bedrock:             "bedrock",
	Dirt:                "dirt",
	CoarseDirt:          "coarse_dirt",
	GrassBlock:          "grass_block",
	Podzol:              "podzol",
	Mud:                 "mud",
	Sand:                "sand",
	RedSand:             "red_sand",
	Sandstone:           "sandstone",
	RedSandstone:        "red_sandstone",
	Gravel:              "gravel",
	Clay:                "clay",
	Terracotta:          "terracotta",
	WhiteTerracotta:     "white_terracotta",
	OrangeTerracotta:    "orange_terracotta",
	YellowTerracotta:    "yellow_terracotta",
	BrownTerracotta:     "brown_terracotta",
	RedTerracotta:       "red_terracotta",
	LightGrayTerracotta: "light_gray_terracotta",
	SnowBlock:           "snow_block",
	PowderSnow:          "powder_snow",
	Ice:                 "ice",
	PackedIce:           "packed_ice",
	Water:               "water",
	Lava:                "lava",
	CopperOre:           "copper_ore",
	RawCopperBlock:      "raw_copper_block",
	IronOre:             "iron_ore",
	DeepslateIronOre:    "deepslate_iron_ore",
	RawIronBlock:        "raw_iron_block",
	Netherrack:          "netherrack",
	EndStone:            "end_stone",
}

var byName = func() map[string]State {
	m := make(map[string]State, count)
	for s, n := range names {
		m[n] = State(s)
	}
	return m
}()

// Count is the number of known block states.
const Count = int(count)

// ByName resolves a block name. The "minecraft:" namespace is optional.
func ByName(name string) (State, bool) {
	s, ok := byName[strings.TrimPrefix(name, "minecraft:")]
	return s, ok
}

// MustByName is ByName for names known at compile time.
func MustByName(name string) State {
	s, ok := ByName(name)
	if !ok {
		panic(fmt.Sprintf("block: unknown block %q", name))
	}
	return s
}

// Name returns the namespaced name of s.
func (s State) Name() string {
	if int(s) >= len(names) {
		return fmt.Sprintf("minecraft:unknown_%d", s)
	}
	return "minecraft:" + names[s]
}

func (s State) String() string { return s.Name() }

// IsAir reports whether s is one of the air variants.
func (s State) IsAir() bool { return s == Air || s == CaveAir }

// IsFluid reports whether s is water or lava.
func (s State) IsFluid() bool { return s == Water || s == Lava }

// IsSolid reports whether s is neither air nor a fluid.
func (s State) IsSolid() bool { return !s.IsAir() && !s.IsFluid() }
