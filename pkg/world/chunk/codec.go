package chunk

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"

	"github.com/Tnze/go-mc/nbt"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
)

// DataVersion is written into every stored chunk.
const DataVersion = 3700

type stateNBT struct {
	Name string `nbt:"Name"`
}

type blockStatesNBT struct {
	Palette []stateNBT `nbt:"palette"`
	Data    []int64    `nbt:"data"`
}

type biomesNBT struct {
	Palette []string `nbt:"palette"`
	Data    []int64  `nbt:"data"`
}

type sectionNBT struct {
	Y           int8           `nbt:"Y"`
	BlockStates blockStatesNBT `nbt:"block_states"`
	Biomes      biomesNBT      `nbt:"biomes"`
}

type heightmapsNBT struct {
	WorldSurface   []int64 `nbt:"WORLD_SURFACE"`
	MotionBlocking []int64 `nbt:"MOTION_BLOCKING"`
	OceanFloor     []int64 `nbt:"OCEAN_FLOOR"`
}

type chunkNBT struct {
	DataVersion   int32         `nbt:"DataVersion"`
	XPos          int32         `nbt:"xPos"`
	YPos          int32         `nbt:"yPos"`
	ZPos          int32         `nbt:"zPos"`
	Status        string        `nbt:"Status"`
	Sections      []sectionNBT  `nbt:"sections"`
	Heightmaps    heightmapsNBT `nbt:"Heightmaps"`
	BlockTicks    []Tick        `nbt:"block_ticks"`
	FluidTicks    []Tick        `nbt:"fluid_ticks"`
	BlockEntities []BlockEntity `nbt:"block_entities"`
}

func toSigned(data []uint64) []int64 {
	out := make([]int64, len(data))
	for i, v := range data {
		out[i] = int64(v)
	}
	return out
}

func toUnsigned(data []int64) []uint64 {
	out := make([]uint64, len(data))
	for i, v := range data {
		out[i] = uint64(v)
	}
	return out
}

func heightBits(height int32) int { return bits.Len(uint(height) + 1) }

func packHeights(h *[256]int32, minY, height int32) []int64 {
	arr := newBitArray(heightBits(height), 256)
	for i, v := range h {
		arr.set(i, uint64(v-minY))
	}
	return toSigned(arr.data)
}

func unpackHeights(dst *[256]int32, data []int64, minY, height int32) error {
	w := heightBits(height)
	if want := longsFor(w, 256); len(data) != want {
		return fmt.Errorf("heightmap has %d longs, want %d", len(data), want)
	}
	arr := bitArray{bits: w, perLong: 64 / w, mask: 1<<w - 1, data: toUnsigned(data)}
	for i := range dst {
		v := int32(arr.get(i))
		if v > height {
			return fmt.Errorf("heightmap value %d above column height %d", v, height)
		}
		dst[i] = v + minY
	}
	return nil
}

// EncodeData serializes d as uncompressed NBT.
func EncodeData(pos Pos, d *Data) ([]byte, error) {
	if d.Sections == nil {
		return nil, errors.New("encode chunk: no sections")
	}
	s := d.Sections
	out := chunkNBT{
		DataVersion:   DataVersion,
		XPos:          pos.X,
		YPos:          s.MinY >> 4,
		ZPos:          pos.Z,
		Status:        string(d.Status),
		Sections:      make([]sectionNBT, len(s.List)),
		BlockTicks:    d.BlockTicks,
		FluidTicks:    d.FluidTicks,
		BlockEntities: d.BlockEntities,
		Heightmaps: heightmapsNBT{
			WorldSurface:   packHeights(&d.Heightmaps.WorldSurface, s.MinY, s.Height()),
			MotionBlocking: packHeights(&d.Heightmaps.MotionBlocking, s.MinY, s.Height()),
			OceanFloor:     packHeights(&d.Heightmaps.OceanFloor, s.MinY, s.Height()),
		},
	}
	for i, sec := range s.List {
		sn := &out.Sections[i]
		sn.Y = int8(s.MinY>>4 + int32(i))

		values, data := sec.Blocks.export()
		sn.BlockStates.Palette = make([]stateNBT, len(values))
		for j, v := range values {
			sn.BlockStates.Palette[j].Name = block.State(v).Name()
		}
		sn.BlockStates.Data = toSigned(data)

		values, data = sec.Biomes.export()
		sn.Biomes.Palette = make([]string, len(values))
		for j, v := range values {
			sn.Biomes.Palette[j] = biome.ID(v).Name()
		}
		sn.Biomes.Data = toSigned(data)
	}

	var buf bytes.Buffer
	if err := nbt.NewEncoder(&buf).Encode(out, ""); err != nil {
		return nil, fmt.Errorf("encode chunk %s: %w", pos, err)
	}
	return buf.Bytes(), nil
}

// Decode parses a chunk written by EncodeData.
func Decode(b []byte) (*Chunk, error) {
	var in chunkNBT
	if _, err := nbt.NewDecoder(bytes.NewReader(b)).Decode(&in); err != nil {
		return nil, fmt.Errorf("decode chunk nbt: %w", err)
	}
	pos := Pos{X: in.XPos, Z: in.ZPos}
	if len(in.Sections) == 0 {
		return nil, fmt.Errorf("decode chunk %s: no sections", pos)
	}

	s := &Sections{MinY: in.YPos << 4, List: make([]*Section, len(in.Sections))}
	for _, sn := range in.Sections {
		sn := sn
		i := int32(sn.Y) - in.YPos
		if i < 0 || int(i) >= len(s.List) {
			return nil, fmt.Errorf("decode chunk %s: section y %d out of range", pos, sn.Y)
		}
		if s.List[i] != nil {
			return nil, fmt.Errorf("decode chunk %s: duplicate section y %d", pos, sn.Y)
		}
		sec, err := decodeSection(&sn)
		if err != nil {
			return nil, fmt.Errorf("decode chunk %s section %d: %w", pos, sn.Y, err)
		}
		s.List[i] = sec
	}

	d := Data{
		Status:        Status(in.Status),
		Sections:      s,
		BlockTicks:    in.BlockTicks,
		FluidTicks:    in.FluidTicks,
		BlockEntities: in.BlockEntities,
	}
	maps := []struct {
		dst  *[256]int32
		data []int64
	}{
		{&d.Heightmaps.WorldSurface, in.Heightmaps.WorldSurface},
		{&d.Heightmaps.MotionBlocking, in.Heightmaps.MotionBlocking},
		{&d.Heightmaps.OceanFloor, in.Heightmaps.OceanFloor},
	}
	for _, m := range maps {
		if err := unpackHeights(m.dst, m.data, s.MinY, s.Height()); err != nil {
			return nil, fmt.Errorf("decode chunk %s: %w", pos, err)
		}
	}
	return New(pos, d), nil
}

func decodeSection(sn *sectionNBT) (*Section, error) {
	states := make([]uint16, len(sn.BlockStates.Palette))
	for i, st := range sn.BlockStates.Palette {
		v, ok := block.ByName(st.Name)
		if !ok {
			return nil, fmt.Errorf("unknown block %q", st.Name)
		}
		states[i] = uint16(v)
	}
	blocks, err := importPalette(blockPalette, states, toUnsigned(sn.BlockStates.Data))
	if err != nil {
		return nil, err
	}

	ids := make([]uint16, len(sn.Biomes.Palette))
	for i, name := range sn.Biomes.Palette {
		v, ok := biome.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown biome %q", name)
		}
		ids[i] = uint16(v)
	}
	biomes, err := importPalette(biomePalette, ids, toUnsigned(sn.Biomes.Data))
	if err != nil {
		return nil, err
	}
	return &Section{Blocks: blocks, Biomes: biomes}, nil
}
