package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Storage handles the files of one level directory: level.json, the region
// files and the chunk index.
type Storage struct {
	dir string
	log *slog.Logger
}

// New creates a new Storage rooted at dir, creating subdirectories as needed.
func New(dir string, log *slog.Logger) (*Storage, error) {
	dirs := []string{
		dir,
		filepath.Join(dir, "region"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", d, err)
		}
	}
	return &Storage{dir: dir, log: log}, nil
}

// RegionDir is the directory holding the region files.
func (s *Storage) RegionDir() string { return filepath.Join(s.dir, "region") }

// IndexPath is the path of the SQLite chunk index.
func (s *Storage) IndexPath() string { return filepath.Join(s.dir, "index.db") }

// LoadLevel reads level.json, or returns nil if the level is new.
func (s *Storage) LoadLevel() (*LevelInfo, error) {
	path := filepath.Join(s.dir, "level.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read level: %w", err)
	}
	var info LevelInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse level: %w", err)
	}
	if info.UUID == uuid.Nil {
		return nil, fmt.Errorf("parse level: missing uuid")
	}
	return &info, nil
}

// SaveLevel writes info to level.json atomically, stamping SavedAt.
func (s *Storage) SaveLevel(info *LevelInfo) error {
	info.SavedAt = time.Now().UTC()
	return s.atomicWriteJSON(filepath.Join(s.dir, "level.json"), info)
}

// OpenLevel loads level.json, creating it from the given settings for a new
// level. A stored level keeps its own seed, generator and preset.
func (s *Storage) OpenLevel(seed int64, generator, preset string) (*LevelInfo, error) {
	info, err := s.LoadLevel()
	if err != nil {
		return nil, err
	}
	if info != nil {
		if info.Seed != seed || info.Generator != generator || info.Preset != preset {
			s.log.Warn("level settings differ from config, keeping stored ones",
				"seed", info.Seed, "generator", info.Generator, "preset", info.Preset)
		}
		s.log.Info("loaded level", "uuid", info.UUID, "seed", info.Seed)
		return info, nil
	}

	info = &LevelInfo{
		UUID:      uuid.New(),
		Seed:      seed,
		Generator: generator,
		Preset:    preset,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.SaveLevel(info); err != nil {
		return nil, err
	}
	s.log.Info("created level", "uuid", info.UUID, "seed", seed)
	return info, nil
}

// atomicWriteJSON marshals v to JSON and writes it atomically using a temp file + rename.
func (s *Storage) atomicWriteJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	data = append(data, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
