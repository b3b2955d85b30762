package storage

import (
	"time"

	"github.com/google/uuid"
)

// LevelInfo is the serializable description of a level, kept in level.json.
type LevelInfo struct {
	UUID      uuid.UUID `json:"uuid"`
	Seed      int64     `json:"seed"`
	Generator string    `json:"generator"`
	Preset    string    `json:"preset"`
	CreatedAt time.Time `json:"created_at"`
	SavedAt   time.Time `json:"saved_at"`
}
