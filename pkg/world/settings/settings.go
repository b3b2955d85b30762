// Package settings loads worldgen presets: generation settings, noise
// parameters, the noise router, the biome table and the surface rules.
package settings

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/biome"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/noise"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/router"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/surface"
)

//go:embed data
var embedded embed.FS

// ErrUnknownPreset is returned by Open for names that were never registered.
var ErrUnknownPreset = errors.New("unknown preset")

// Document file names inside a preset directory.
const (
	SettingsFile = "settings.yaml"
	NoisesFile   = "noises.yaml"
	RouterFile   = "router.yaml"
	BiomesFile   = "biomes.yaml"
	SurfaceFile  = "surface.yaml"
)

// Settings are the dimension-wide generation settings.
type Settings struct {
	SeaLevel        int32         `yaml:"sea_level"`
	DefaultBlock    string        `yaml:"default_block"`
	DefaultFluid    string        `yaml:"default_fluid"`
	LegacyRandom    bool          `yaml:"legacy_random_source"`
	AquifersEnabled bool          `yaml:"aquifers_enabled"`
	OreVeinsEnabled bool          `yaml:"ore_veins_enabled"`
	Shape           sampler.Shape `yaml:"noise"`
}

// BiomeEntry places one biome in climate space.
type BiomeEntry struct {
	Biome      string           `yaml:"biome"`
	Parameters biome.Parameters `yaml:"parameters"`
}

type biomesDoc struct {
	Biomes []BiomeEntry `yaml:"biomes"`
}

// Preset is a complete, validated set of worldgen documents.
type Preset struct {
	Name     string
	Settings Settings
	Noises   map[string]noise.Params
	Router   router.Document
	Biomes   []BiomeEntry
	Surface  surface.RuleDef
}

// BiomeEntries resolves the biome table against the registry.
func (p *Preset) BiomeEntries() ([]biome.Entry, error) {
	entries := make([]biome.Entry, 0, len(p.Biomes))
	for i, b := range p.Biomes {
		id, ok := biome.ByName(b.Biome)
		if !ok {
			return nil, fmt.Errorf("biome entry %d: unknown biome %q", i, b.Biome)
		}
		entries = append(entries, biome.Entry{Biome: id, Cube: b.Parameters.Hypercube()})
	}
	return entries, nil
}

var (
	mu      sync.RWMutex
	presets = map[string]func() (*Preset, error){}
)

// Register makes a preset available to Open. A later registration under
// the same name replaces the earlier one.
func Register(name string, open func() (*Preset, error)) {
	mu.Lock()
	defer mu.Unlock()
	presets[name] = open
}

// Open loads the preset registered under name.
func Open(name string) (*Preset, error) {
	mu.RLock()
	open, ok := presets[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("open preset %q: %w", name, ErrUnknownPreset)
	}
	p, err := open()
	if err != nil {
		return nil, fmt.Errorf("open preset %q: %w", name, err)
	}
	return p, nil
}

// Presets returns the registered preset names in order.
func Presets() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	entries, err := fs.ReadDir(embedded, "data/presets")
	if err != nil {
		panic(fmt.Sprintf("settings: read embedded presets: %v", err))
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		Register(name, func() (*Preset, error) {
			sub, err := fs.Sub(embedded, "data/presets/"+name)
			if err != nil {
				return nil, err
			}
			return LoadFS(sub, name)
		})
	}
}

// LoadDir loads a preset from a directory on disk. The preset is named
// after the directory.
func LoadDir(dir string) (*Preset, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("load preset dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("load preset dir: %s is not a directory", dir)
	}
	return LoadFS(os.DirFS(dir), filepath.Base(dir))
}

// LoadFS reads and validates the five preset documents from fsys.
func LoadFS(fsys fs.FS, name string) (*Preset, error) {
	p := &Preset{Name: name}
	var biomes biomesDoc
	docs := []struct {
		file string
		dst  any
	}{
		{SettingsFile, &p.Settings},
		{NoisesFile, &p.Noises},
		{RouterFile, &p.Router},
		{BiomesFile, &biomes},
		{SurfaceFile, &p.Surface},
	}
	for _, d := range docs {
		if err := loadDoc(fsys, d.file, d.dst); err != nil {
			return nil, err
		}
	}
	p.Biomes = biomes.Biomes
	if err := p.Settings.Shape.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", SettingsFile, err)
	}
	if _, err := p.BiomeEntries(); err != nil {
		return nil, fmt.Errorf("%s: %w", BiomesFile, err)
	}
	return p, nil
}

func loadDoc(fsys fs.FS, file string, dst any) error {
	b, err := fs.ReadFile(fsys, file)
	if err != nil {
		return fmt.Errorf("read %s: %w", file, err)
	}
	var raw any
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse %s: %w", file, err)
	}
	if err := validate(file, raw); err != nil {
		return fmt.Errorf("validate %s: %w", file, err)
	}
	if err := yaml.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("decode %s: %w", file, err)
	}
	return nil
}
