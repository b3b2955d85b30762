package world

import (
	"context"
	"errors"
	"testing"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/anvil"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/chunk"
	"github.com/OCharnyshevich/minecraft-world/pkg/world/gen"
)

func writeRaw(t *testing.T, dir string, pos chunk.Pos, payload []byte) {
	t.Helper()
	rx, rz := pos.Region()
	r, err := anvil.Open(dir, rx, rz, anvil.Options{}, discardLogger())
	if err != nil {
		t.Fatalf("open region: %v", err)
	}
	defer r.Close()
	if err := r.Write(pos.X, pos.Z, payload); err != nil {
		t.Fatalf("write chunk: %v", err)
	}
}

func TestRegionIOLoadKinds(t *testing.T) {
	dir := t.TempDir()
	flat := gen.NewFlatGenerator(testShape)

	stored := chunk.Pos{X: 4, Z: 4}
	garbage := chunk.Pos{X: 5, Z: 4}
	partial := chunk.Pos{X: 6, Z: 4}
	misplaced := chunk.Pos{X: 7, Z: 4}

	b, err := chunk.EncodeData(stored, flat.GenerateChunk(stored))
	if err != nil {
		t.Fatal(err)
	}
	writeRaw(t, dir, stored, b)
	writeRaw(t, dir, misplaced, b)
	writeRaw(t, dir, garbage, []byte("not nbt"))

	d := flat.GenerateChunk(partial)
	d.Status = chunk.StatusNoise
	if b, err = chunk.EncodeData(partial, d); err != nil {
		t.Fatal(err)
	}
	writeRaw(t, dir, partial, b)

	rio := NewRegionIO(dir, anvil.Options{}, discardLogger())
	defer rio.Close()

	tests := []struct {
		name string
		pos  chunk.Pos
		want Kind
	}{
		{"stored", stored, KindLoaded},
		{"never written", chunk.Pos{X: 8, Z: 4}, KindMissing},
		{"other region", chunk.Pos{X: -100, Z: 100}, KindMissing},
		{"garbage payload", garbage, KindError},
		{"partial status", partial, KindError},
		{"wrong position", misplaced, KindError},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			res := rio.Load(tt.pos)
			if res.Kind != tt.want {
				t.Fatalf("kind: got %s, want %s (err %v)", res.Kind, tt.want, res.Err)
			}
			if res.Pos != tt.pos {
				t.Errorf("pos: got %s, want %s", res.Pos, tt.pos)
			}
		})
	}

	if res := rio.Load(partial); !errors.Is(res.Err, ErrIncomplete) {
		t.Errorf("partial status error: got %v, want ErrIncomplete", res.Err)
	}
}

func TestRegionIOWatchKeepsRegionOpen(t *testing.T) {
	rio := NewRegionIO(t.TempDir(), anvil.Options{}, discardLogger())
	defer rio.Close()
	a, b := chunk.Pos{X: 0, Z: 0}, chunk.Pos{X: 31, Z: 2}

	if res := rio.Load(a); res.Kind != KindMissing {
		t.Fatalf("load: got %s, want missing", res.Kind)
	}
	if got := rio.OpenRegions(); got != 0 {
		t.Fatalf("open regions after load: got %d, want 0", got)
	}

	if err := rio.Watch(a); err != nil {
		t.Fatal(err)
	}
	if err := rio.Watch(b); err != nil {
		t.Fatal(err)
	}
	rio.Load(a)
	if got := rio.OpenRegions(); got != 1 {
		t.Fatalf("open regions while watched: got %d, want 1", got)
	}
	rio.Unwatch(a)
	if got := rio.OpenRegions(); got != 1 {
		t.Fatalf("open regions with one watch left: got %d, want 1", got)
	}
	rio.Unwatch(b)
	if got := rio.OpenRegions(); got != 0 {
		t.Fatalf("open regions after last unwatch: got %d, want 0", got)
	}
	// Extra unwatches are ignored.
	rio.Unwatch(b)
}

func TestRegionIOSaveMarksClean(t *testing.T) {
	dir := t.TempDir()
	rio := NewRegionIO(dir, anvil.Options{Compression: anvil.CompressionZstd}, discardLogger())
	flat := gen.NewFlatGenerator(testShape)

	var chunks []*chunk.Chunk
	for _, pos := range []chunk.Pos{{X: 0, Z: 0}, {X: 40, Z: 0}, {X: -3, Z: -70}} {
		c := chunk.New(pos, *flat.GenerateChunk(pos))
		c.MarkDirty()
		chunks = append(chunks, c)
	}
	saved, err := rio.Save(context.Background(), chunks)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(saved) != len(chunks) {
		t.Fatalf("saved: got %d, want %d", len(saved), len(chunks))
	}
	for _, c := range chunks {
		if c.Dirty() {
			t.Errorf("chunk %s still dirty after save", c.Pos)
		}
	}
	if err := rio.Close(); err != nil {
		t.Fatal(err)
	}
	if res := rio.Load(chunks[0].Pos); !errors.Is(res.Err, ErrClosed) {
		t.Errorf("load after close: got %v, want ErrClosed", res.Err)
	}

	rio = NewRegionIO(dir, anvil.Options{}, discardLogger())
	defer rio.Close()
	for _, c := range chunks {
		res := rio.Load(c.Pos)
		if res.Kind != KindLoaded {
			t.Fatalf("reload %s: got %s (err %v)", c.Pos, res.Kind, res.Err)
		}
		var got, want *chunk.Sections
		res.Chunk.View(func(d *chunk.Data) { got = d.Sections })
		c.View(func(d *chunk.Data) { want = d.Sections })
		if !got.Equal(want) {
			t.Errorf("reload %s: sections differ", c.Pos)
		}
	}
}
