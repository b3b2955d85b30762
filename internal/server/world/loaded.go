package world

import (
	"fmt"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
)

// Kind tells which of the LoadedData fields is meaningful.
type Kind uint8

const (
	KindLoaded Kind = iota
	KindMissing
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindLoaded:
		return "loaded"
	case KindMissing:
		return "missing"
	case KindError:
		return "error"
	}
	return fmt.Sprintf("kind(%d)", k)
}

// LoadedData is the outcome of loading one chunk: the chunk, the fact that
// nothing is stored for the position, or the error that stopped the read.
type LoadedData struct {
	Kind  Kind
	Pos   chunk.Pos
	Chunk *chunk.Chunk
	Err   error
}

// Loaded wraps a chunk.
func Loaded(c *chunk.Chunk) LoadedData {
	return LoadedData{Kind: KindLoaded, Pos: c.Pos, Chunk: c}
}

// Missing reports that pos has no stored chunk.
func Missing(pos chunk.Pos) LoadedData {
	return LoadedData{Kind: KindMissing, Pos: pos}
}

// Failed reports a read error for pos.
func Failed(pos chunk.Pos, err error) LoadedData {
	return LoadedData{Kind: KindError, Pos: pos, Err: err}
}
