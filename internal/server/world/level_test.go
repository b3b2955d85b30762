package world

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/anvil"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/block"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/gen"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/sampler"
)

var testShape = sampler.Shape{MinY: -64, Height: 384, CellWidth: 4, CellHeight: 8}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// countingGenerator wraps the flat generator, counts calls and can hold
// every call until release is closed.
type countingGenerator struct {
	*gen.FlatGenerator
	calls   atomic.Int64
	release chan struct{}
}

func newCountingGenerator(gated bool) *countingGenerator {
	g := &countingGenerator{FlatGenerator: gen.NewFlatGenerator(testShape)}
	if gated {
		g.release = make(chan struct{})
	}
	return g
}

func (g *countingGenerator) GenerateChunk(pos chunk.Pos) *chunk.Data {
	g.calls.Add(1)
	if g.release != nil {
		<-g.release
	}
	return g.FlatGenerator.GenerateChunk(pos)
}

type fakeIndex struct {
	mu        sync.Mutex
	generated map[chunk.Pos]int
	saved     map[chunk.Pos]int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{generated: make(map[chunk.Pos]int), saved: make(map[chunk.Pos]int)}
}

func (f *fakeIndex) RecordGenerated(_ context.Context, pos chunk.Pos) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.generated[pos]++
	return nil
}

func (f *fakeIndex) RecordSaved(_ context.Context, pos chunk.Pos, size int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved[pos] = size
	return nil
}

func newTestLevel(t *testing.T, dir string, g gen.Generator, opts Options) *Level {
	t.Helper()
	return NewLevel(g, NewRegionIO(dir, anvil.Options{}, discardLogger()), opts, discardLogger())
}

func collect(t *testing.T, ch <-chan LoadedData) []LoadedData {
	t.Helper()
	var out []LoadedData
	timeout := time.After(10 * time.Second)
	for {
		select {
		case res, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, res)
		case <-timeout:
			t.Fatal("timed out waiting for fetch results")
		}
	}
}

func TestFetchGeneratesOnce(t *testing.T) {
	g := newCountingGenerator(true)
	l := newTestLevel(t, t.TempDir(), g, Options{Workers: 4})
	pos := chunk.Pos{X: 3, Z: -9}

	first := l.FetchChunks(context.Background(), []chunk.Pos{pos})
	second := l.FetchChunks(context.Background(), []chunk.Pos{pos, pos})
	close(g.release)

	results := append(collect(t, first), collect(t, second)...)
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	for _, res := range results {
		if res.Kind != KindLoaded {
			t.Fatalf("kind: got %s, want loaded (err %v)", res.Kind, res.Err)
		}
		if res.Chunk != results[0].Chunk {
			t.Error("requests for one position got different chunks")
		}
	}
	if got := g.calls.Load(); got != 1 {
		t.Errorf("generator calls: got %d, want 1", got)
	}
}

func TestFetchEmitsOnePerPosition(t *testing.T) {
	g := newCountingGenerator(false)
	l := newTestLevel(t, t.TempDir(), g, Options{Workers: 2, FetchBuffer: 1})

	var positions []chunk.Pos
	for x := int32(-3); x < 3; x++ {
		for z := int32(30); z < 34; z++ {
			positions = append(positions, chunk.Pos{X: x, Z: z})
		}
	}
	seen := make(map[chunk.Pos]int)
	for _, res := range collect(t, l.FetchChunks(context.Background(), positions)) {
		if res.Kind != KindLoaded {
			t.Fatalf("chunk %s: got %s, want loaded", res.Pos, res.Kind)
		}
		if res.Chunk.Pos != res.Pos {
			t.Errorf("result for %s holds chunk %s", res.Pos, res.Chunk.Pos)
		}
		seen[res.Pos]++
	}
	for _, pos := range positions {
		if seen[pos] != 1 {
			t.Errorf("chunk %s: got %d results, want 1", pos, seen[pos])
		}
	}
	if got := g.calls.Load(); got != int64(len(positions)) {
		t.Errorf("generator calls: got %d, want %d", got, len(positions))
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	idx := newFakeIndex()
	positions := []chunk.Pos{{X: 0, Z: 0}, {X: 31, Z: 31}, {X: 32, Z: 0}, {X: -1, Z: -40}}

	l := newTestLevel(t, dir, newCountingGenerator(false), Options{Index: idx})
	for _, res := range collect(t, l.FetchChunks(context.Background(), positions)) {
		if res.Kind != KindLoaded {
			t.Fatalf("chunk %s: got %s, want loaded", res.Pos, res.Kind)
		}
		res.Chunk.SetBlock(2, 10, 3, block.RawIronBlock)
	}
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	for _, pos := range positions {
		if idx.generated[pos] != 1 {
			t.Errorf("index generated %s: got %d, want 1", pos, idx.generated[pos])
		}
		if idx.saved[pos] == 0 {
			t.Errorf("index has no saved size for %s", pos)
		}
	}

	g := newCountingGenerator(false)
	l = newTestLevel(t, dir, g, Options{})
	defer l.Close(context.Background())
	for _, res := range collect(t, l.FetchChunks(context.Background(), positions)) {
		if res.Kind != KindLoaded {
			t.Fatalf("reload %s: got %s, want loaded (err %v)", res.Pos, res.Kind, res.Err)
		}
		if got := res.Chunk.Block(2, 10, 3); got != block.RawIronBlock {
			t.Errorf("reload %s: edited block got %s, want raw_iron_block", res.Pos, got)
		}
		if got := res.Chunk.Block(0, testShape.MinY, 0); got != block.Bedrock {
			t.Errorf("reload %s: floor got %s, want bedrock", res.Pos, got)
		}
		if res.Chunk.Dirty() {
			t.Errorf("reload %s: chunk is dirty", res.Pos)
		}
	}
	if got := g.calls.Load(); got != 0 {
		t.Errorf("generator calls after reload: got %d, want 0", got)
	}
	if got := l.Stats().Read; got != int64(len(positions)) {
		t.Errorf("chunks read: got %d, want %d", got, len(positions))
	}
}

func TestEvictKeepsWatched(t *testing.T) {
	g := newCountingGenerator(false)
	l := newTestLevel(t, t.TempDir(), g, Options{})
	defer l.Close(context.Background())
	kept, dropped := chunk.Pos{X: 1, Z: 1}, chunk.Pos{X: 2, Z: 1}

	l.WatchChunks([]chunk.Pos{kept, kept})
	collect(t, l.FetchChunks(context.Background(), []chunk.Pos{kept, dropped}))

	for i := 0; i < 3; i++ {
		if _, err := l.Evict(context.Background()); err != nil {
			t.Fatalf("Evict: %v", err)
		}
		if _, ok := l.Chunk(kept); !ok {
			t.Fatal("watched chunk was evicted")
		}
	}
	if _, ok := l.Chunk(dropped); ok {
		t.Fatal("unwatched chunk is still loaded")
	}

	// One watch remains after a single unwatch.
	l.UnwatchChunks([]chunk.Pos{kept})
	if n, _ := l.Evict(context.Background()); n != 0 {
		t.Errorf("evicted with one watch left: got %d, want 0", n)
	}
	l.UnwatchChunks([]chunk.Pos{kept})
	if n, _ := l.Evict(context.Background()); n != 1 {
		t.Errorf("evicted after last unwatch: got %d, want 1", n)
	}

	// Evicted chunks were written back and come from disk now.
	collect(t, l.FetchChunks(context.Background(), []chunk.Pos{kept, dropped}))
	if got := g.calls.Load(); got != 2 {
		t.Errorf("generator calls: got %d, want 2", got)
	}
	if got := l.Stats().Read; got != 2 {
		t.Errorf("chunks read: got %d, want 2", got)
	}
}

func TestClearWatchedChunks(t *testing.T) {
	l := newTestLevel(t, t.TempDir(), newCountingGenerator(false), Options{})
	defer l.Close(context.Background())
	positions := []chunk.Pos{{X: 0, Z: 0}, {X: 5, Z: 5}}
	l.WatchChunks(positions)
	l.WatchChunks(positions)
	if got := l.Stats().Watched; got != 2 {
		t.Fatalf("watched: got %d, want 2", got)
	}
	l.ClearWatchedChunks()
	for _, pos := range positions {
		if l.IsWatched(pos) {
			t.Errorf("chunk %s still watched", pos)
		}
	}
	// Unwatching after a clear is a no-op.
	l.UnwatchChunks(positions)
}

// refusingWatchIO fails Watch for one position.
type refusingWatchIO struct {
	*RegionIO
	refuse chunk.Pos
}

func (r *refusingWatchIO) Watch(pos chunk.Pos) error {
	if pos == r.refuse {
		return errors.New("watch refused")
	}
	return r.RegionIO.Watch(pos)
}

func TestFailedWatchIsRolledBack(t *testing.T) {
	rio := NewRegionIO(t.TempDir(), anvil.Options{}, discardLogger())
	kept, refused := chunk.Pos{X: 0, Z: 0}, chunk.Pos{X: 1, Z: 1}
	l := NewLevel(newCountingGenerator(false), &refusingWatchIO{RegionIO: rio, refuse: refused}, Options{}, discardLogger())
	defer l.Close(context.Background())

	l.WatchChunks([]chunk.Pos{kept, refused})
	if l.IsWatched(refused) {
		t.Error("chunk with a failed watch is reported watched")
	}
	if got := l.Stats().Watched; got != 1 {
		t.Errorf("watched: got %d, want 1", got)
	}

	// Both chunks share region 0,0; dropping the refused one must not
	// release the watch the other holds.
	l.UnwatchChunks([]chunk.Pos{refused})
	if got := rio.OpenRegions(); got != 1 {
		t.Errorf("open regions: got %d, want 1", got)
	}
	l.UnwatchChunks([]chunk.Pos{kept})
	if got := rio.OpenRegions(); got != 0 {
		t.Errorf("open regions after last unwatch: got %d, want 0", got)
	}
}

func TestFetchCancelledStillCaches(t *testing.T) {
	g := newCountingGenerator(true)
	l := newTestLevel(t, t.TempDir(), g, Options{})
	defer l.Close(context.Background())
	pos := chunk.Pos{X: -7, Z: 12}

	ctx, cancel := context.WithCancel(context.Background())
	ch := l.FetchChunks(ctx, []chunk.Pos{pos})
	cancel()
	if got := collect(t, ch); len(got) != 0 {
		t.Fatalf("results after cancel: got %d, want 0", len(got))
	}

	close(g.release)
	l.BlockAndAwaitOngoingTasks()
	if _, ok := l.Chunk(pos); !ok {
		t.Fatal("cancelled fetch did not keep the generated chunk")
	}
}

func TestBlockAndAwaitOngoingTasks(t *testing.T) {
	g := newCountingGenerator(true)
	l := newTestLevel(t, t.TempDir(), g, Options{})
	defer l.Close(context.Background())
	l.FetchChunks(context.Background(), []chunk.Pos{{X: 1, Z: 2}})

	waited := make(chan struct{})
	go func() {
		l.BlockAndAwaitOngoingTasks()
		close(waited)
	}()
	select {
	case <-waited:
		t.Fatal("returned while a generation was running")
	case <-time.After(50 * time.Millisecond):
	}
	close(g.release)
	select {
	case <-waited:
	case <-time.After(10 * time.Second):
		t.Fatal("did not return after the generation finished")
	}
	if got := l.Stats().Pending; got != 0 {
		t.Errorf("pending: got %d, want 0", got)
	}
}

func TestClosedLevel(t *testing.T) {
	l := newTestLevel(t, t.TempDir(), newCountingGenerator(false), Options{})
	if err := l.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := l.Close(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close: got %v, want ErrClosed", err)
	}
	res := collect(t, l.FetchChunks(context.Background(), []chunk.Pos{{}}))
	if len(res) != 1 || res[0].Kind != KindError || !errors.Is(res[0].Err, ErrClosed) {
		t.Fatalf("fetch after close: got %+v, want one ErrClosed error", res)
	}
}

func TestSpawnHeight(t *testing.T) {
	l := newTestLevel(t, t.TempDir(), newCountingGenerator(false), Options{})
	defer l.Close(context.Background())
	if got, want := l.SpawnHeight(), testShape.MinY+6; got != want {
		t.Errorf("SpawnHeight: got %d, want %d", got, want)
	}
}
