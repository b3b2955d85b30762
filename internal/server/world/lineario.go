package world

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/linear"
)

type linearRegion struct {
	// mu is held from encoding the first chunk of a save until the file is
	// renamed into place, which also serializes saves of one chunk.
	mu     sync.Mutex
	region *linear.Region
}

// LinearIO stores chunks in linear region files. Every save rewrites the
// whole file of each region it touches.
type LinearIO struct {
	dir     string
	level   int
	log     *slog.Logger
	regions *regionCache[*linearRegion]
}

var _ ChunkIO = (*LinearIO)(nil)

// NewLinearIO returns a LinearIO writing to dir. level is the zstd level
// of the region files; 0 picks the default.
func NewLinearIO(dir string, level int, log *slog.Logger) *LinearIO {
	open := func(k regionKey) (*linearRegion, error) {
		r, err := linear.Read(dir, k.x, k.z)
		if err != nil {
			return nil, err
		}
		return &linearRegion{region: r}, nil
	}
	// Saves write through, so dropping a region loses nothing.
	closeFn := func(*linearRegion) error { return nil }
	return &LinearIO{dir: dir, level: level, log: log, regions: newRegionCache(open, closeFn, log)}
}

// Load reads and decodes the chunk at pos.
func (lio *LinearIO) Load(pos chunk.Pos) LoadedData {
	k := keyOf(pos)
	h, err := lio.regions.acquire(k)
	if err != nil {
		return Failed(pos, err)
	}
	defer lio.regions.release(k, h)

	h.region.mu.Lock()
	b, ok, err := h.region.region.Chunk(pos.X, pos.Z)
	h.region.mu.Unlock()
	if err != nil {
		return Failed(pos, err)
	}
	if !ok {
		return Missing(pos)
	}
	return decodeStored(pos, b)
}

// Save writes each touched region file once, in its own goroutine. Chunks
// are marked saved only after their file is in place.
func (lio *LinearIO) Save(ctx context.Context, chunks []*chunk.Chunk) ([]Saved, error) {
	byRegion := make(map[regionKey][]*chunk.Chunk)
	for _, c := range chunks {
		k := keyOf(c.Pos)
		byRegion[k] = append(byRegion[k], c)
	}

	var (
		mu    sync.Mutex
		saved []Saved
	)
	g, ctx := errgroup.WithContext(ctx)
	for k, list := range byRegion {
		k, list := k, list
		g.Go(func() error {
			h, err := lio.regions.acquire(k)
			if err != nil {
				return err
			}
			defer lio.regions.release(k, h)
			if err := ctx.Err(); err != nil {
				return err
			}

			lr := h.region
			lr.mu.Lock()
			defer lr.mu.Unlock()
			now := uint32(time.Now().Unix())
			versions := make([]uint64, len(list))
			written := make([]Saved, len(list))
			for i, c := range list {
				b, version, err := c.Encode()
				if err != nil {
					return err
				}
				if err := lr.region.Put(c.Pos.X, c.Pos.Z, b, now); err != nil {
					return fmt.Errorf("write chunk %s: %w", c.Pos, err)
				}
				versions[i] = version
				written[i] = Saved{Pos: c.Pos, Bytes: len(b)}
			}
			if err := lr.region.Write(lio.dir, lio.level); err != nil {
				return fmt.Errorf("write linear region %d, %d: %w", k.x, k.z, err)
			}
			for i, c := range list {
				c.MarkSaved(versions[i])
			}
			lio.log.Debug("linear region written", "x", k.x, "z", k.z, "chunks", len(list))

			mu.Lock()
			saved = append(saved, written...)
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	return saved, err
}

// Watch keeps the decoded region holding pos in memory until Unwatch.
func (lio *LinearIO) Watch(pos chunk.Pos) error {
	return lio.regions.watch(keyOf(pos))
}

// Unwatch undoes one Watch of a chunk in the same region.
func (lio *LinearIO) Unwatch(pos chunk.Pos) {
	lio.regions.unwatch(keyOf(pos))
}

// OpenRegions returns the number of regions held in memory.
func (lio *LinearIO) OpenRegions() int {
	return lio.regions.count()
}

// Close drops every region. Later calls fail with ErrClosed.
func (lio *LinearIO) Close() error {
	return lio.regions.closeAll()
}
