package world

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/anvil"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
)

// ErrIncomplete is returned for a stored chunk whose generation never
// reached the full status.
var ErrIncomplete = errors.New("chunk not fully generated")

// Saved describes one chunk written by ChunkIO.Save.
type Saved struct {
	Pos   chunk.Pos
	Bytes int
}

// ChunkIO moves chunks between memory and persistent storage.
type ChunkIO interface {
	// Load reads the chunk at pos. Never-stored chunks are Missing.
	Load(pos chunk.Pos) LoadedData
	// Save writes chunks and reports the ones that reached storage, also
	// when it returns an error.
	Save(ctx context.Context, chunks []*chunk.Chunk) ([]Saved, error)
	// Watch keeps the storage for pos ready until the matching Unwatch.
	Watch(pos chunk.Pos) error
	Unwatch(pos chunk.Pos)
	Close() error
}

// RegionIO stores chunks in anvil region files inside one directory. A
// region file is open while an operation uses it or a chunk inside it is
// watched.
type RegionIO struct {
	regions *regionCache[*anvil.Region]
}

var _ ChunkIO = (*RegionIO)(nil)

// NewRegionIO returns a RegionIO writing region files to dir with opts.
func NewRegionIO(dir string, opts anvil.Options, log *slog.Logger) *RegionIO {
	open := func(k regionKey) (*anvil.Region, error) {
		return anvil.Open(dir, k.x, k.z, opts, log)
	}
	return &RegionIO{regions: newRegionCache(open, (*anvil.Region).Close, log)}
}

// Load reads and decodes the chunk at pos.
func (rio *RegionIO) Load(pos chunk.Pos) LoadedData {
	k := keyOf(pos)
	h, err := rio.regions.acquire(k)
	if err != nil {
		return Failed(pos, err)
	}
	defer rio.regions.release(k, h)

	b, ok, err := h.region.Read(pos.X, pos.Z)
	if err != nil {
		return Failed(pos, err)
	}
	if !ok {
		return Missing(pos)
	}
	return decodeStored(pos, b)
}

// decodeStored decodes the payload stored for pos and checks that it holds
// a finished chunk at that position.
func decodeStored(pos chunk.Pos, b []byte) LoadedData {
	c, err := chunk.Decode(b)
	if err != nil {
		return Failed(pos, err)
	}
	if c.Pos != pos {
		return Failed(pos, fmt.Errorf("read chunk %s: payload holds chunk %s", pos, c.Pos))
	}
	var status chunk.Status
	c.View(func(d *chunk.Data) { status = d.Status })
	if status != chunk.StatusFull {
		return Failed(pos, fmt.Errorf("read chunk %s: %w: status %s", pos, ErrIncomplete, status))
	}
	return Loaded(c)
}

// Save groups chunks by region and writes each region's chunks in its own
// goroutine. Every written chunk is marked saved at the version it was
// encoded from. Overlapping saves of one chunk are serialized by
// chunk.Chunk.Persist.
func (rio *RegionIO) Save(ctx context.Context, chunks []*chunk.Chunk) ([]Saved, error) {
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
			h, err := rio.regions.acquire(k)
			if err != nil {
				return err
			}
			defer rio.regions.release(k, h)
			for _, c := range list {
				c := c
				if err := ctx.Err(); err != nil {
					return err
				}
				n, err := c.Persist(func(b []byte) error {
					if err := h.region.Write(c.Pos.X, c.Pos.Z, b); err != nil {
						return fmt.Errorf("write chunk %s: %w", c.Pos, err)
					}
					return nil
				})
				if err != nil {
					return err
				}
				mu.Lock()
				saved = append(saved, Saved{Pos: c.Pos, Bytes: n})
				mu.Unlock()
			}
			return nil
		})
	}
	err := g.Wait()
	return saved, err
}

// Watch opens the region holding pos and keeps it open until Unwatch.
func (rio *RegionIO) Watch(pos chunk.Pos) error {
	return rio.regions.watch(keyOf(pos))
}

// Unwatch undoes one Watch of a chunk in the same region.
func (rio *RegionIO) Unwatch(pos chunk.Pos) {
	rio.regions.unwatch(keyOf(pos))
}

// OpenRegions returns the number of region files currently open.
func (rio *RegionIO) OpenRegions() int {
	return rio.regions.count()
}

// Close closes every region file. Later calls fail with ErrClosed.
func (rio *RegionIO) Close() error {
	return rio.regions.closeAll()
}
