package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"testing"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func openTest(t *testing.T, dir string, opts Options) *Region {
	t.Helper()
	r, err := Open(dir, 0, 0, opts, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { r.Close() })
	return r
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	rng.Read(b)
	return b
}

func checkNoOverlap(t *testing.T, r *Region) {
	t.Helper()
	ranges := r.Ranges()
	for i, a := range ranges {
		if a.Start < headerSectors {
			t.Fatalf("range %+v overlaps the header", a)
		}
		for _, b := range ranges[i+1:] {
			if a.Overlaps(b) {
				t.Fatalf("ranges %+v and %+v overlap", a, b)
			}
		}
	}
}

func TestFreshRegionIsMissing(t *testing.T) {
	r := openTest(t, t.TempDir(), Options{})
	for _, p := range [][2]int32{{0, 0}, {31, 31}, {5, 17}} {
		data, ok, err := r.Read(p[0], p[1])
		if err != nil {
			t.Fatalf("Read(%d,%d): %v", p[0], p[1], err)
		}
		if ok || data != nil {
			t.Fatalf("Read(%d,%d) = %d bytes, ok=%v, want missing", p[0], p[1], len(data), ok)
		}
	}
	info, err := os.Stat(r.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Size() != headerSectors*sectorSize {
		t.Fatalf("got file size %d, want %d", info.Size(), headerSectors*sectorSize)
	}
}

func TestRoundTripAllCompressions(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	payloads := map[[2]int32][]byte{
		{0, 0}:   bytes.Repeat([]byte("stone"), 4000),
		{3, 9}:   randomBytes(rng, 10000),
		{31, 31}: []byte{1},
	}
	for _, c := range []Compression{CompressionNone, CompressionGzip, CompressionZlib, CompressionLZ4, CompressionZstd} {
		c := c
		t.Run(c.String(), func(t *testing.T) {
			dir := t.TempDir()
			r, err := Open(dir, 0, 0, Options{Compression: c}, discard)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			for p, data := range payloads {
				if err := r.Write(p[0], p[1], data); err != nil {
					t.Fatalf("Write(%d,%d): %v", p[0], p[1], err)
				}
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r = openTest(t, dir, Options{Compression: c})
			for p, want := range payloads {
				got, ok, err := r.Read(p[0], p[1])
				if err != nil || !ok {
					t.Fatalf("Read(%d,%d): ok=%v err=%v", p[0], p[1], ok, err)
				}
				if !bytes.Equal(got, want) {
					t.Fatalf("Read(%d,%d) returned %d bytes, want %d", p[0], p[1], len(got), len(want))
				}
				if r.Timestamp(p[0], p[1]).IsZero() {
					t.Errorf("chunk %d,%d has no timestamp", p[0], p[1])
				}
			}
			checkNoOverlap(t, r)
		})
	}
}

func TestReadsOtherSchemes(t *testing.T) {
	dir := t.TempDir()
	w := openTest(t, dir, Options{Compression: CompressionZstd})
	if err := w.Write(1, 1, []byte("zstd payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	w.Close()

	r := openTest(t, dir, Options{Compression: CompressionGzip})
	got, ok, err := r.Read(1, 1)
	if err != nil || !ok {
		t.Fatalf("Read: ok=%v err=%v", ok, err)
	}
	if string(got) != "zstd payload" {
		t.Fatalf("got %q, want %q", got, "zstd payload")
	}
}

func TestSectorsNeverOverlap(t *testing.T) {
	for _, policy := range []InPlacePolicy{InPlaceOff, InPlaceReuse, InPlaceTrim} {
		policy := policy
		t.Run(policy.String(), func(t *testing.T) {
			dir := t.TempDir()
			r, err := Open(dir, 0, 0, Options{Compression: CompressionNone, InPlace: policy}, discard)
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			rng := rand.New(rand.NewSource(int64(policy) + 1))
			want := map[[2]int32][]byte{}
			for i := 0; i < 400; i++ {
				p := [2]int32{int32(rng.Intn(6)), int32(rng.Intn(6))}
				if rng.Intn(5) == 0 {
					if err := r.Delete(p[0], p[1]); err != nil {
						t.Fatalf("Delete: %v", err)
					}
					delete(want, p)
				} else {
					data := randomBytes(rng, 1+rng.Intn(5*sectorSize))
					if err := r.Write(p[0], p[1], data); err != nil {
						t.Fatalf("Write: %v", err)
					}
					want[p] = data
				}
				checkNoOverlap(t, r)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r = openTest(t, dir, Options{Compression: CompressionNone, InPlace: policy})
			checkNoOverlap(t, r)
			for x := int32(0); x < 6; x++ {
				for z := int32(0); z < 6; z++ {
					got, ok, err := r.Read(x, z)
					if err != nil {
						t.Fatalf("Read(%d,%d): %v", x, z, err)
					}
					data, present := want[[2]int32{x, z}]
					if ok != present {
						t.Fatalf("Read(%d,%d) ok=%v, want %v", x, z, ok, present)
					}
					if !bytes.Equal(got, data) {
						t.Fatalf("Read(%d,%d) returned different bytes", x, z)
					}
				}
			}
		})
	}
}

func TestInPlacePolicies(t *testing.T) {
	tests := []struct {
		policy    InPlacePolicy
		wantStart uint32
		wantCount uint32
		wantSize  uint32
	}{
		{InPlaceOff, 5, 1, 6},
		{InPlaceReuse, 2, 3, 5},
		{InPlaceTrim, 2, 1, 3},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.policy.String(), func(t *testing.T) {
			r := openTest(t, t.TempDir(), Options{Compression: CompressionNone, InPlace: tt.policy})
			if err := r.Write(0, 0, make([]byte, 10000)); err != nil {
				t.Fatalf("Write: %v", err)
			}
			if got := r.Ranges(); len(got) != 1 || got[0] != (Range{2, 3}) {
				t.Fatalf("got ranges %+v after first write, want [{2 3}]", got)
			}
			if err := r.Write(0, 0, []byte("small")); err != nil {
				t.Fatalf("Write: %v", err)
			}
			got := r.Ranges()
			want := Range{tt.wantStart, tt.wantCount}
			if len(got) != 1 || got[0] != want {
				t.Fatalf("got ranges %+v, want [%+v]", got, want)
			}
			if s := r.Sectors(); s != tt.wantSize {
				t.Fatalf("got %d sectors in use, want %d", s, tt.wantSize)
			}
			data, ok, err := r.Read(0, 0)
			if err != nil || !ok || string(data) != "small" {
				t.Fatalf("Read = %q, %v, %v", data, ok, err)
			}
		})
	}
}

func TestPayloadTooLarge(t *testing.T) {
	r := openTest(t, t.TempDir(), Options{Compression: CompressionNone})
	err := r.Write(0, 0, make([]byte, maxSectors*sectorSize))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got error %v, want ErrTooLarge", err)
	}
	if got := r.Ranges(); len(got) != 0 {
		t.Fatalf("got ranges %+v after rejected write, want none", got)
	}
	// 5 header bytes push this payload to exactly 255 sectors.
	if err := r.Write(0, 0, make([]byte, maxSectors*sectorSize-5)); err != nil {
		t.Fatalf("Write at the limit: %v", err)
	}
}

func TestTruncatedFileIsError(t *testing.T) {
	dir := t.TempDir()
	r := openTest(t, dir, Options{Compression: CompressionNone})
	if err := r.Write(0, 0, make([]byte, 10000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Write(1, 0, []byte("intact")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Close()

	// Cut into the first chunk's sectors; the second chunk lives after it
	// and is cut away entirely.
	if err := os.Truncate(Path(dir, 0, 0), (headerSectors+1)*sectorSize); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	r = openTest(t, dir, Options{Compression: CompressionNone})
	for _, x := range []int32{0, 1} {
		if _, ok, err := r.Read(x, 0); err == nil || ok {
			t.Fatalf("Read(%d,0): ok=%v err=%v, want an error", x, ok, err)
		}
	}
	if _, ok, err := r.Read(2, 0); err != nil || ok {
		t.Fatalf("Read(2,0): ok=%v err=%v, want missing", ok, err)
	}
}

func TestCorruptPayloadIsError(t *testing.T) {
	dir := t.TempDir()
	r := openTest(t, dir, Options{Compression: CompressionZlib})
	if err := r.Write(0, 0, bytes.Repeat([]byte{1, 2, 3}, 1000)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Close()

	f, err := os.OpenFile(Path(dir, 0, 0), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt(bytes.Repeat([]byte{0xFF}, 16), headerSectors*sectorSize+5); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	r = openTest(t, dir, Options{Compression: CompressionZlib})
	if _, _, err := r.Read(0, 0); err == nil {
		t.Fatal("expected a decompression error")
	}
}

func TestOverlappingHeaderEntry(t *testing.T) {
	dir := t.TempDir()
	r := openTest(t, dir, Options{Compression: CompressionNone})
	if err := r.Write(0, 0, []byte("first")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Close()

	// Point chunk (1,0) at the sectors of chunk (0,0).
	f, err := os.OpenFile(Path(dir, 0, 0), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var loc [4]byte
	binary.BigEndian.PutUint32(loc[:], headerSectors<<8|1)
	if _, err := f.WriteAt(loc[:], 4); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	r = openTest(t, dir, Options{Compression: CompressionNone})
	if data, ok, err := r.Read(0, 0); err != nil || !ok || string(data) != "first" {
		t.Fatalf("Read(0,0) = %q, %v, %v", data, ok, err)
	}
	if _, _, err := r.Read(1, 0); err == nil {
		t.Fatal("expected an error for the overlapping entry")
	}

	if err := r.Write(1, 0, []byte("second")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	checkNoOverlap(t, r)
	if data, ok, err := r.Read(0, 0); err != nil || !ok || string(data) != "first" {
		t.Fatalf("Read(0,0) after repair = %q, %v, %v", data, ok, err)
	}
	if data, ok, err := r.Read(1, 0); err != nil || !ok || string(data) != "second" {
		t.Fatalf("Read(1,0) after repair = %q, %v, %v", data, ok, err)
	}
}

func TestUnsupportedScheme(t *testing.T) {
	dir := t.TempDir()
	r := openTest(t, dir, Options{Compression: CompressionNone})
	if err := r.Write(0, 0, []byte("lzma?")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	r.Close()

	f, err := os.OpenFile(Path(dir, 0, 0), os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.WriteAt([]byte{9}, headerSectors*sectorSize+4); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}
	f.Close()

	r = openTest(t, dir, Options{Compression: CompressionNone})
	if _, _, err := r.Read(0, 0); err == nil {
		t.Fatal("expected an error for an unknown scheme tag")
	}
}

func TestDelete(t *testing.T) {
	dir := t.TempDir()
	r := openTest(t, dir, Options{})
	if err := r.Write(4, 4, []byte("gone soon")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := r.Delete(4, 4); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := r.Delete(4, 4); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	r.Close()

	r = openTest(t, dir, Options{})
	if _, ok, err := r.Read(4, 4); ok || err != nil {
		t.Fatalf("Read after delete: ok=%v err=%v, want missing", ok, err)
	}
	if got := r.Sectors(); got != headerSectors {
		t.Fatalf("got %d sectors in use, want %d", got, headerSectors)
	}
}

func TestChunkOutsideRegion(t *testing.T) {
	r := openTest(t, t.TempDir(), Options{})
	if _, _, err := r.Read(32, 0); err == nil {
		t.Fatal("expected an error for a chunk in region 1,0")
	}
	if err := r.Write(0, -1, nil); err == nil {
		t.Fatal("expected an error for a chunk in region 0,-1")
	}
}

func TestNegativeRegion(t *testing.T) {
	dir := t.TempDir()
	r, err := Open(dir, -1, -2, Options{}, discard)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if err := r.Write(-1, -33, []byte("corner")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if data, ok, err := r.Read(-1, -33); err != nil || !ok || string(data) != "corner" {
		t.Fatalf("Read = %q, %v, %v", data, ok, err)
	}
	if _, err := os.Stat(Path(dir, -1, -2)); err != nil {
		t.Fatalf("region file: %v", err)
	}
}

func TestSectorMapFirstFit(t *testing.T) {
	m := newSectorMap()
	for _, tt := range []struct{ n, start uint32 }{{3, 2}, {2, 5}, {4, 7}} {
		if got := m.allocate(tt.n); got.Start != tt.start {
			t.Fatalf("allocate(%d) at %d, want %d", tt.n, got.Start, tt.start)
		}
	}
	m.free(Range{5, 2})
	if got := m.allocate(1); got.Start != 5 {
		t.Fatalf("allocate(1) at %d, want 5", got.Start)
	}
	if got := m.allocate(2); got.Start != 11 {
		t.Fatalf("allocate(2) at %d, want 11", got.Start)
	}
	m.free(Range{7, 4})
	m.free(Range{11, 2})
	if got := m.allocate(6); got != (Range{6, 6}) {
		t.Fatalf("allocate(6) = %+v, want {6 6}", got)
	}
	if m.reserve(Range{10, 3}) {
		t.Fatal("reserve succeeded over used sectors")
	}
	if !m.reserve(Range{12, 2}) {
		t.Fatal("reserve failed over free sectors")
	}
}

func TestParsePolicies(t *testing.T) {
	if _, err := ParseCompression("lz4"); err == nil {
		t.Error("lz4 should not be a write scheme")
	}
	if c, err := ParseCompression("zstd"); err != nil || c != CompressionZstd {
		t.Errorf("ParseCompression(zstd) = %v, %v", c, err)
	}
	if p, err := ParseInPlacePolicy(""); err != nil || p != InPlaceOff {
		t.Errorf("ParseInPlacePolicy(\"\") = %v, %v, want off", p, err)
	}
	if _, err := ParseInPlacePolicy("always"); err == nil {
		t.Error("expected an error for an unknown policy")
	}
}

type failingFile struct {
	regionFile
	writes, failAt int
}

func (f *failingFile) WriteAt(p []byte, off int64) (int, error) {
	f.writes++
	if f.writes == f.failAt {
		return 0, errors.New("disk full")
	}
	return f.regionFile.WriteAt(p, off)
}

func TestFailedHeaderWriteKeepsOldPayload(t *testing.T) {
	// Write issues the payload, then the timestamp entry, then the location entry.
	for _, failAt := range []int{2, 3} {
		failAt := failAt
		t.Run(map[int]string{2: "timestamp", 3: "location"}[failAt], func(t *testing.T) {
			dir := t.TempDir()
			opts := Options{Compression: CompressionNone}
			r := openTest(t, dir, opts)
			if err := r.Write(0, 0, []byte("one")); err != nil {
				t.Fatalf("Write: %v", err)
			}

			r.f = &failingFile{regionFile: r.f, failAt: failAt}
			if err := r.Write(0, 0, bytes.Repeat([]byte("two"), 2000)); err == nil {
				t.Fatal("got nil error from failing write")
			}
			if err := r.Write(1, 0, []byte("three")); err != nil {
				t.Fatalf("Write after failure: %v", err)
			}
			if err := r.Close(); err != nil {
				t.Fatalf("Close: %v", err)
			}

			r = openTest(t, dir, opts)
			checkNoOverlap(t, r)
			for _, c := range []struct {
				x    int32
				want string
			}{{0, "one"}, {1, "three"}} {
				got, ok, err := r.Read(c.x, 0)
				if err != nil || !ok || string(got) != c.want {
					t.Errorf("Read(%d, 0) = %q, %v, %v, want %q", c.x, got, ok, err, c.want)
				}
			}
		})
	}
}
