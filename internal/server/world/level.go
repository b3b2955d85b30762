// Package world keeps the loaded chunks of a level: it fetches them from
// region files or the generator, tracks which ones are in use, and writes
// them back.
package world

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/gen"
)

// ErrClosed is returned by operations on a closed Level or RegionIO.
var ErrClosed = errors.New("level closed")

// Index records chunk bookkeeping outside the region files.
type Index interface {
	RecordGenerated(ctx context.Context, pos chunk.Pos) error
	RecordSaved(ctx context.Context, pos chunk.Pos, size int) error
}

// Options tune a Level. Zero values pick defaults.
type Options struct {
	// Workers bounds concurrent loads and generations. Default: NumCPU.
	Workers int
	// FetchBuffer is the capacity of the channel FetchChunks returns.
	// Default: 64.
	FetchBuffer int
	// Index, when set, is told about generated and saved chunks.
	Index Index
}

// Stats counts what a Level has done since it was created.
type Stats struct {
	Loaded    int // chunks in memory
	Watched   int // chunks with at least one watch
	Pending   int // loads in flight
	Generated int64
	Read      int64
}

// future is an in-flight load that later requests for the same chunk wait on.
type future struct {
	done chan struct{}
	res  LoadedData
}

func resolved(res LoadedData) *future {
	f := &future{done: make(chan struct{}), res: res}
	close(f.done)
	return f
}

// Level is the set of chunks a world keeps in memory. Each chunk is loaded
// or generated at most once at a time, however many callers ask for it.
type Level struct {
	generator gen.Generator
	io        ChunkIO
	index     Index
	log       *slog.Logger
	workers   *semaphore.Weighted
	buffer    int

	mu      sync.Mutex
	chunks  map[chunk.Pos]*chunk.Chunk
	pending map[chunk.Pos]*future
	watched map[chunk.Pos]int
	closed  bool

	// watchMu orders watch changes so ChunkIO sees them in sequence.
	watchMu sync.Mutex

	tasks     taskGroup
	generated atomic.Int64
	read      atomic.Int64
}

// NewLevel returns a Level backed by io that generates missing chunks with
// generator.
func NewLevel(generator gen.Generator, io ChunkIO, opts Options, log *slog.Logger) *Level {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.FetchBuffer <= 0 {
		opts.FetchBuffer = 64
	}
	l := &Level{
		generator: generator,
		io:        io,
		index:     opts.Index,
		log:       log,
		workers:   semaphore.NewWeighted(int64(opts.Workers)),
		buffer:    opts.FetchBuffer,
		chunks:    make(map[chunk.Pos]*chunk.Chunk),
		pending:   make(map[chunk.Pos]*future),
		watched:   make(map[chunk.Pos]int),
	}
	l.tasks.idle = sync.NewCond(&l.tasks.mu)
	return l
}

// FetchChunks returns a channel that receives one result per position, in
// completion order, and is closed after the last one. Chunks come from
// memory, then storage, then the generator. Cancelling ctx stops delivery;
// loads already started still finish and stay in memory.
func (l *Level) FetchChunks(ctx context.Context, positions []chunk.Pos) <-chan LoadedData {
	out := make(chan LoadedData, l.buffer)
	futures := make([]*future, len(positions))
	for i, pos := range positions {
		futures[i] = l.fetch(pos)
	}
	go func() {
		defer close(out)
		var wg sync.WaitGroup
		for _, f := range futures {
			f := f
			wg.Add(1)
			go func() {
				defer wg.Done()
				select {
				case <-f.done:
				case <-ctx.Done():
					return
				}
				select {
				case out <- f.res:
				case <-ctx.Done():
				}
			}()
		}
		wg.Wait()
	}()
	return out
}

// Fetch loads a single chunk and waits for it.
func (l *Level) Fetch(ctx context.Context, pos chunk.Pos) (*chunk.Chunk, error) {
	f := l.fetch(pos)
	select {
	case <-f.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if f.res.Kind == KindError {
		return nil, f.res.Err
	}
	return f.res.Chunk, nil
}

func (l *Level) fetch(pos chunk.Pos) *future {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return resolved(Failed(pos, ErrClosed))
	}
	if c, ok := l.chunks[pos]; ok {
		return resolved(Loaded(c))
	}
	if f, ok := l.pending[pos]; ok {
		return f
	}
	f := &future{done: make(chan struct{})}
	l.pending[pos] = f
	l.tasks.add()
	go l.load(pos, f)
	return f
}

func (l *Level) load(pos chunk.Pos, f *future) {
	defer l.tasks.done()
	// Acquire with a background context cannot fail.
	_ = l.workers.Acquire(context.Background(), 1)
	res := l.io.Load(pos)
	switch res.Kind {
	case KindLoaded:
		l.read.Add(1)
		l.log.Debug("chunk read", "x", pos.X, "z", pos.Z)
	case KindMissing:
		c := chunk.New(pos, *l.generator.GenerateChunk(pos))
		c.MarkDirty()
		res = Loaded(c)
		l.generated.Add(1)
		l.log.Debug("chunk generated", "x", pos.X, "z", pos.Z)
		if l.index != nil {
			if err := l.index.RecordGenerated(context.Background(), pos); err != nil {
				l.log.Warn("record generated chunk", "x", pos.X, "z", pos.Z, "error", err)
			}
		}
	case KindError:
		l.log.Warn("read chunk", "x", pos.X, "z", pos.Z, "error", res.Err)
	}
	l.workers.Release(1)

	l.mu.Lock()
	if res.Kind == KindLoaded {
		l.chunks[pos] = res.Chunk
	}
	delete(l.pending, pos)
	f.res = res
	close(f.done)
	l.mu.Unlock()
}

// Chunk returns the in-memory chunk at pos without loading it.
func (l *Level) Chunk(pos chunk.Pos) (*chunk.Chunk, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.chunks[pos]
	return c, ok
}

// SaveChunks writes chunks to storage. It may run alongside fetches and
// edits; a chunk edited while it is written stays dirty.
func (l *Level) SaveChunks(ctx context.Context, chunks []*chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	l.tasks.add()
	defer l.tasks.done()

	saved, err := l.io.Save(ctx, chunks)
	if l.index != nil {
		for _, s := range saved {
			if ierr := l.index.RecordSaved(ctx, s.Pos, s.Bytes); ierr != nil {
				l.log.Warn("record saved chunk", "x", s.Pos.X, "z", s.Pos.Z, "error", ierr)
			}
		}
	}
	l.log.Debug("chunks saved", "count", len(saved), "requested", len(chunks))
	return err
}

// SaveDirty writes every in-memory chunk that changed since its last save.
func (l *Level) SaveDirty(ctx context.Context) error {
	l.mu.Lock()
	var dirty []*chunk.Chunk
	for _, c := range l.chunks {
		if c.Dirty() {
			dirty = append(dirty, c)
		}
	}
	l.mu.Unlock()
	return l.SaveChunks(ctx, dirty)
}

// WatchChunks marks chunks as in use. A watched chunk is never evicted and
// keeps its region file open. A position whose storage cannot be watched is
// logged and left unwatched.
func (l *Level) WatchChunks(positions []chunk.Pos) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	for _, pos := range positions {
		l.mu.Lock()
		l.watched[pos]++
		first := l.watched[pos] == 1
		l.mu.Unlock()
		if first {
			if err := l.io.Watch(pos); err != nil {
				l.log.Warn("watch chunk", "x", pos.X, "z", pos.Z, "error", err)
				l.mu.Lock()
				delete(l.watched, pos)
				l.mu.Unlock()
			}
		}
	}
}

// UnwatchChunks undoes one WatchChunks call per position. Positions that are
// not watched are ignored.
func (l *Level) UnwatchChunks(positions []chunk.Pos) {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	for _, pos := range positions {
		l.mu.Lock()
		n, ok := l.watched[pos]
		if ok {
			if n <= 1 {
				delete(l.watched, pos)
			} else {
				l.watched[pos] = n - 1
			}
		}
		last := ok && n <= 1
		l.mu.Unlock()
		if last {
			l.io.Unwatch(pos)
		}
	}
}

// ClearWatchedChunks drops every watch.
func (l *Level) ClearWatchedChunks() {
	l.watchMu.Lock()
	defer l.watchMu.Unlock()
	l.mu.Lock()
	watched := l.watched
	l.watched = make(map[chunk.Pos]int)
	l.mu.Unlock()
	for pos := range watched {
		l.io.Unwatch(pos)
	}
}

// IsWatched reports whether pos has at least one watch.
func (l *Level) IsWatched(pos chunk.Pos) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watched[pos] > 0
}

// Evict writes back the dirty chunks nobody watches and drops every
// unwatched chunk from memory. It returns how many were dropped. Chunks
// that are watched or edited again meanwhile stay.
func (l *Level) Evict(ctx context.Context) (int, error) {
	l.mu.Lock()
	var candidates []*chunk.Chunk
	for pos, c := range l.chunks {
		if l.watched[pos] == 0 {
			candidates = append(candidates, c)
		}
	}
	l.mu.Unlock()

	var dirty []*chunk.Chunk
	for _, c := range candidates {
		if c.Dirty() {
			dirty = append(dirty, c)
		}
	}
	if err := l.SaveChunks(ctx, dirty); err != nil {
		return 0, err
	}

	var n int
	l.mu.Lock()
	for _, c := range candidates {
		if l.watched[c.Pos] == 0 && l.chunks[c.Pos] == c && !c.Dirty() {
			delete(l.chunks, c.Pos)
			n++
		}
	}
	l.mu.Unlock()
	l.log.Debug("chunks evicted", "count", n)
	return n, nil
}

// BlockAndAwaitOngoingTasks returns once every load and save in flight when
// it was called, and any started meanwhile, has finished.
func (l *Level) BlockAndAwaitOngoingTasks() {
	l.tasks.wait()
}

// SpawnHeight returns the y a player at (0, 0) would stand on.
func (l *Level) SpawnHeight() int32 {
	return l.generator.HeightAt(0, 0) + 1
}

// Stats returns a snapshot of the level's counters.
func (l *Level) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Stats{
		Loaded:    len(l.chunks),
		Watched:   len(l.watched),
		Pending:   len(l.pending),
		Generated: l.generated.Load(),
		Read:      l.read.Load(),
	}
}

// Close stops new fetches, waits for running tasks, saves dirty chunks and
// closes storage.
func (l *Level) Close(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrClosed
	}
	l.closed = true
	l.mu.Unlock()

	l.tasks.wait()
	l.ClearWatchedChunks()
	err := l.SaveDirty(ctx)
	return errors.Join(err, l.io.Close())
}

// taskGroup counts running tasks. Unlike sync.WaitGroup, tasks may start
// while another goroutine waits.
type taskGroup struct {
	mu   sync.Mutex
	idle *sync.Cond
	n    int
}

func (g *taskGroup) add() {
	g.mu.Lock()
	g.n++
	g.mu.Unlock()
}

func (g *taskGroup) done() {
	g.mu.Lock()
	g.n--
	if g.n == 0 {
		g.idle.Broadcast()
	}
	g.mu.Unlock()
}

func (g *taskGroup) wait() {
	g.mu.Lock()
	for g.n > 0 {
		g.idle.Wait()
	}
	g.mu.Unlock()
}
