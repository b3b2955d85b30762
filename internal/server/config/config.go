package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/anvil"
)

// Config holds the server configuration.
type Config struct {
	Dir          string `json:"dir" yaml:"dir"`
	Seed         int64  `json:"seed" yaml:"seed"`
	Generator    string `json:"generator" yaml:"generator"` // "noise" or "flat"
	Preset       string `json:"preset" yaml:"preset"`
	DataDir      string `json:"data_dir" yaml:"data_dir"` // worldgen documents overriding the preset
	Workers      int    `json:"workers" yaml:"workers"`
	FetchBuffer  int    `json:"fetch_buffer" yaml:"fetch_buffer"`
	PregenRadius int    `json:"pregen_radius" yaml:"pregen_radius"` // chunks around spawn generated at startup
	LogLevel     string `json:"log_level" yaml:"log_level"`

	Chunk   ChunkConfig   `json:"chunk" yaml:"chunk"`
	Inspect InspectConfig `json:"inspect" yaml:"inspect"`
}

// ChunkConfig controls how chunks are written to region files.
type ChunkConfig struct {
	Format       string `json:"format" yaml:"format"`                 // anvil or linear
	Compression  string `json:"compression" yaml:"compression"`       // anvil only: none, gzip, zlib, lz4 or zstd
	Level        int    `json:"level" yaml:"level"`                   // 0 picks the scheme's default
	WriteInPlace string `json:"write_in_place" yaml:"write_in_place"` // anvil only: off, reuse or trim
}

// InspectConfig controls the inspection endpoint. An empty Addr disables it.
type InspectConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Dir:          "world",
		Generator:    "noise",
		Preset:       "overworld",
		FetchBuffer:  64,
		PregenRadius: 2,
		LogLevel:     "info",
		Chunk: ChunkConfig{
			Format:       "anvil",
			Compression:  "lz4",
			WriteInPlace: "off",
		},
	}
}

// LoadFile reads a YAML config file on top of the defaults. A missing file
// yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Merge applies file-loaded config values into cfg, but only for fields
// that were NOT explicitly set via CLI flags. explicitFlags contains the
// flag names that were explicitly provided on the command line.
func Merge(cfg *Config, fromFile *Config, explicitFlags map[string]bool) {
	if !explicitFlags["dir"] {
		cfg.Dir = fromFile.Dir
	}
	if !explicitFlags["seed"] {
		cfg.Seed = fromFile.Seed
	}
	if !explicitFlags["generator"] {
		cfg.Generator = fromFile.Generator
	}
	if !explicitFlags["preset"] {
		cfg.Preset = fromFile.Preset
	}
	if !explicitFlags["data-dir"] {
		cfg.DataDir = fromFile.DataDir
	}
	if !explicitFlags["workers"] {
		cfg.Workers = fromFile.Workers
	}
	if !explicitFlags["fetch-buffer"] {
		cfg.FetchBuffer = fromFile.FetchBuffer
	}
	if !explicitFlags["pregen-radius"] {
		cfg.PregenRadius = fromFile.PregenRadius
	}
	if !explicitFlags["log-level"] {
		cfg.LogLevel = fromFile.LogLevel
	}
	if !explicitFlags["chunk-format"] {
		cfg.Chunk.Format = fromFile.Chunk.Format
	}
	if !explicitFlags["compression"] {
		cfg.Chunk.Compression = fromFile.Chunk.Compression
	}
	if !explicitFlags["compression-level"] {
		cfg.Chunk.Level = fromFile.Chunk.Level
	}
	if !explicitFlags["write-in-place"] {
		cfg.Chunk.WriteInPlace = fromFile.Chunk.WriteInPlace
	}
	if !explicitFlags["inspect-addr"] {
		cfg.Inspect.Addr = fromFile.Inspect.Addr
	}
}

// Validate checks the enumerated fields and ranges.
func (c *Config) Validate() error {
	if c.Dir == "" {
		return fmt.Errorf("dir is required")
	}
	switch c.Generator {
	case "noise", "flat":
	default:
		return fmt.Errorf("unknown generator %q", c.Generator)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.FetchBuffer < 0 {
		return fmt.Errorf("fetch_buffer must not be negative, got %d", c.FetchBuffer)
	}
	if c.PregenRadius < 0 {
		return fmt.Errorf("pregen_radius must not be negative, got %d", c.PregenRadius)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if _, err := c.Chunk.Options(); err != nil {
		return err
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("parse log_level: %w", err)
	}
	return l, nil
}

// Options converts the chunk settings into anvil region file options. For
// the linear format only Level is used, as a zstd level.
func (c ChunkConfig) Options() (anvil.Options, error) {
	switch c.Format {
	case "anvil", "":
	case "linear":
		if c.Level < 0 || c.Level > 22 {
			return anvil.Options{}, fmt.Errorf("chunk.level must be between 0 and 22 for linear files, got %d", c.Level)
		}
		return anvil.Options{Level: c.Level}, nil
	default:
		return anvil.Options{}, fmt.Errorf("unknown chunk.format %q", c.Format)
	}
	comp, err := anvil.ParseCompression(c.Compression)
	if err != nil {
		return anvil.Options{}, fmt.Errorf("parse chunk.compression: %w", err)
	}
	policy, err := anvil.ParseInPlacePolicy(c.WriteInPlace)
	if err != nil {
		return anvil.Options{}, fmt.Errorf("parse chunk.write_in_place: %w", err)
	}
	if c.Level < -1 || c.Level > 9 {
		return anvil.Options{}, fmt.Errorf("chunk.level must be between -1 and 9, got %d", c.Level)
	}
	return anvil.Options{Compression: comp, Level: c.Level, InPlace: policy}, nil
}
