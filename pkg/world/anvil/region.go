// Package anvil reads and writes region files: 32×32 chunk payloads in
// 4 KiB sectors behind a location and timestamp header.
package anvil

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	sectorSize    = 4096
	headerSectors = 2 // location table + timestamp table
	maxSectors    = 255
	regionChunks  = 32
)

// ErrTooLarge is returned when a compressed payload needs more sectors than a
// location entry can describe.
var ErrTooLarge = errors.New("chunk payload exceeds 255 sectors")

// InPlacePolicy controls whether a rewrite may reuse the sectors a chunk
// already occupies. Reuse and trim leave less free space behind, but a
// write that fails halfway can damage the only stored copy of the chunk.
type InPlacePolicy uint8

const (
	// InPlaceOff always writes to freshly allocated sectors.
	InPlaceOff InPlacePolicy = iota
	// InPlaceReuse overwrites the old sectors when the payload fits and
	// keeps the old sector count.
	InPlaceReuse
	// InPlaceTrim overwrites the old sectors when the payload fits and
	// releases the unused tail.
	InPlaceTrim
)

// ParseInPlacePolicy maps a config name to a policy.
func ParseInPlacePolicy(s string) (InPlacePolicy, error) {
	switch s {
	case "off", "":
		return InPlaceOff, nil
	case "reuse":
		return InPlaceReuse, nil
	case "trim":
		return InPlaceTrim, nil
	}
	return 0, fmt.Errorf("unknown write_in_place policy %q", s)
}

func (p InPlacePolicy) String() string {
	switch p {
	case InPlaceOff:
		return "off"
	case InPlaceReuse:
		return "reuse"
	case InPlaceTrim:
		return "trim"
	}
	return fmt.Sprintf("policy(%d)", uint8(p))
}

// Options configure how a Region writes payloads.
type Options struct {
	Compression Compression
	Level       int
	InPlace     InPlacePolicy
}

// Path returns the file name of region (rx, rz) inside dir.
func Path(dir string, rx, rz int32) string {
	return filepath.Join(dir, fmt.Sprintf("r.%d.%d.mca", rx, rz))
}

type regionFile interface {
	io.ReaderAt
	io.WriterAt
	Stat() (os.FileInfo, error)
	Sync() error
	Close() error
}

// Region is an open region file. It is safe for concurrent use.
type Region struct {
	X, Z int32

	path string
	opts Options
	log  *slog.Logger

	mu         sync.RWMutex
	f          regionFile
	locations  [regionChunks * regionChunks]uint32
	timestamps [regionChunks * regionChunks]uint32
	corrupt    [regionChunks * regionChunks]bool
	sectors    *sectorMap
}

// Open opens or creates region (rx, rz) in dir. Header entries that point
// outside the file or overlap an earlier entry are marked corrupt; reading
// them fails and writing them replaces them.
func Open(dir string, rx, rz int32, opts Options, log *slog.Logger) (*Region, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create region dir: %w", err)
	}
	if opts.Compression == 0 {
		opts.Compression = CompressionZlib
	}
	path := Path(dir, rx, rz)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open region file: %w", err)
	}
	r := &Region{X: rx, Z: rz, path: path, opts: opts, log: log, f: f, sectors: newSectorMap()}
	if err := r.loadHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func (r *Region) loadHeader() error {
	info, err := r.f.Stat()
	if err != nil {
		return fmt.Errorf("stat region file: %w", err)
	}
	size := info.Size()
	if size == 0 {
		if _, err := r.f.WriteAt(make([]byte, headerSectors*sectorSize), 0); err != nil {
			return fmt.Errorf("write region header: %w", err)
		}
		return nil
	}
	if size < headerSectors*sectorSize {
		return fmt.Errorf("region header truncated: %d bytes", size)
	}

	header := make([]byte, headerSectors*sectorSize)
	if _, err := r.f.ReadAt(header, 0); err != nil {
		return fmt.Errorf("read region header: %w", err)
	}
	fileSectors := uint32((size + sectorSize - 1) / sectorSize)
	for i := range r.locations {
		loc := binary.BigEndian.Uint32(header[i*4:])
		r.timestamps[i] = binary.BigEndian.Uint32(header[sectorSize+i*4:])
		if loc == 0 {
			continue
		}
		r.locations[i] = loc
		rng := Range{Start: loc >> 8, Count: loc & 0xFF}
		if rng.Start < headerSectors || rng.Count == 0 || rng.End() > fileSectors || !r.sectors.reserve(rng) {
			r.corrupt[i] = true
			r.log.Warn("corrupt region header entry",
				"region", r.path, "index", i, "offset", rng.Start, "sectors", rng.Count)
		}
	}
	return nil
}

func (r *Region) index(x, z int32) (int, error) {
	if x>>5 != r.X || z>>5 != r.Z {
		return 0, fmt.Errorf("chunk %d,%d is outside region %d,%d", x, z, r.X, r.Z)
	}
	return int(x&31) + int(z&31)*regionChunks, nil
}

// Read returns the decompressed payload of chunk (x, z). The boolean is
// false, with a nil error, when the chunk was never written.
func (r *Region) Read(x, z int32) ([]byte, bool, error) {
	idx, err := r.index(x, z)
	if err != nil {
		return nil, false, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.f == nil {
		return nil, false, fmt.Errorf("read chunk %d,%d: %w", x, z, os.ErrClosed)
	}
	loc := r.locations[idx]
	if loc == 0 {
		return nil, false, nil
	}
	if r.corrupt[idx] {
		return nil, false, fmt.Errorf("read chunk %d,%d: corrupt header entry %#x", x, z, loc)
	}

	rng := Range{Start: loc >> 8, Count: loc & 0xFF}
	buf := make([]byte, rng.Count*sectorSize)
	n, err := r.f.ReadAt(buf, int64(rng.Start)*sectorSize)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, false, fmt.Errorf("read chunk %d,%d: %w", x, z, err)
	}
	buf = buf[:n]
	if len(buf) < 5 {
		return nil, false, fmt.Errorf("read chunk %d,%d: payload truncated at %d bytes", x, z, len(buf))
	}
	length := binary.BigEndian.Uint32(buf)
	if length == 0 {
		return nil, false, fmt.Errorf("read chunk %d,%d: empty payload", x, z)
	}
	if uint64(length)+4 > uint64(len(buf)) {
		return nil, false, fmt.Errorf("read chunk %d,%d: payload truncated: have %d bytes, want %d",
			x, z, len(buf), uint64(length)+4)
	}
	tag := buf[4]
	if tag&externalFlag != 0 {
		return nil, false, fmt.Errorf("read chunk %d,%d: external payloads are not supported", x, z)
	}
	data, err := Compression(tag).decompress(buf[5 : 4+length])
	if err != nil {
		return nil, false, fmt.Errorf("read chunk %d,%d: %w", x, z, err)
	}
	return data, true, nil
}

// Write stores data as the payload of chunk (x, z). The payload is written
// before the header, and the location entry goes last, so a failed write
// leaves the previous payload in place unless the in-place policy
// overwrote it.
func (r *Region) Write(x, z int32, data []byte) error {
	idx, err := r.index(x, z)
	if err != nil {
		return err
	}
	compressed, err := r.opts.Compression.compress(data, r.opts.Level)
	if err != nil {
		return fmt.Errorf("compress chunk %d,%d: %w", x, z, err)
	}
	total := 5 + len(compressed)
	n := uint32((total + sectorSize - 1) / sectorSize)
	if n > maxSectors {
		return fmt.Errorf("write chunk %d,%d: %w (%d sectors)", x, z, ErrTooLarge, n)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return fmt.Errorf("write chunk %d,%d: %w", x, z, os.ErrClosed)
	}

	loc := r.locations[idx]
	hasOld := loc != 0 && !r.corrupt[idx]
	old := Range{Start: loc >> 8, Count: loc & 0xFF}

	inPlace := r.opts.InPlace != InPlaceOff && hasOld && n <= old.Count
	var target Range
	headerCount := n
	if inPlace {
		target = Range{Start: old.Start, Count: n}
		if r.opts.InPlace == InPlaceReuse {
			headerCount = old.Count
		}
	} else {
		target = r.sectors.allocate(n)
	}

	buf := make([]byte, int(n)*sectorSize)
	binary.BigEndian.PutUint32(buf, uint32(len(compressed))+1)
	buf[4] = byte(r.opts.Compression)
	copy(buf[5:], compressed)
	if _, err := r.f.WriteAt(buf, int64(target.Start)*sectorSize); err != nil {
		if !inPlace {
			r.sectors.free(target)
		}
		return fmt.Errorf("write chunk %d,%d: %w", x, z, err)
	}

	newLoc := target.Start<<8 | headerCount
	now := uint32(time.Now().Unix())
	if err := r.writeHeader(idx, newLoc, now); err != nil {
		if !inPlace {
			r.sectors.free(target)
		}
		return fmt.Errorf("write chunk %d,%d: %w", x, z, err)
	}

	r.locations[idx] = newLoc
	r.timestamps[idx] = now
	r.corrupt[idx] = false
	switch {
	case hasOld && !inPlace:
		r.sectors.free(old)
	case inPlace && r.opts.InPlace == InPlaceTrim && n < old.Count:
		r.sectors.free(Range{Start: old.Start + n, Count: old.Count - n})
	}

	r.log.Debug("write chunk", "x", x, "z", z,
		"offset", target.Start, "sectors", n, "in_place", inPlace, "bytes", len(compressed))
	return nil
}

// writeHeader commits a header entry. The location is written last: until
// it lands, the file still points at the previous payload.
func (r *Region) writeHeader(idx int, loc, ts uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], ts)
	if _, err := r.f.WriteAt(b[:], int64(sectorSize+idx*4)); err != nil {
		return fmt.Errorf("write timestamp entry: %w", err)
	}
	binary.BigEndian.PutUint32(b[:], loc)
	if _, err := r.f.WriteAt(b[:], int64(idx*4)); err != nil {
		return fmt.Errorf("write location entry: %w", err)
	}
	return nil
}

// Delete removes chunk (x, z) from the region and frees its sectors.
func (r *Region) Delete(x, z int32) error {
	idx, err := r.index(x, z)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return fmt.Errorf("delete chunk %d,%d: %w", x, z, os.ErrClosed)
	}
	loc := r.locations[idx]
	if loc == 0 {
		return nil
	}
	if err := r.writeHeader(idx, 0, 0); err != nil {
		return fmt.Errorf("delete chunk %d,%d: %w", x, z, err)
	}
	if !r.corrupt[idx] {
		r.sectors.free(Range{Start: loc >> 8, Count: loc & 0xFF})
	}
	r.locations[idx] = 0
	r.timestamps[idx] = 0
	r.corrupt[idx] = false
	return nil
}

// Ranges returns the sector ranges of every readable chunk, ordered by
// start sector.
func (r *Region) Ranges() []Range {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Range
	for i, loc := range r.locations {
		if loc == 0 || r.corrupt[i] {
			continue
		}
		out = append(out, Range{Start: loc >> 8, Count: loc & 0xFF})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Sectors returns the number of sectors the region file needs, header
// included.
func (r *Region) Sectors() uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sectors.size()
}

// Timestamp returns the last write time of chunk (x, z), or the zero time
// if it is absent.
func (r *Region) Timestamp(x, z int32) time.Time {
	idx, err := r.index(x, z)
	if err != nil {
		return time.Time{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.locations[idx] == 0 {
		return time.Time{}
	}
	return time.Unix(int64(r.timestamps[idx]), 0)
}

// Close flushes and closes the file. It is safe to call more than once.
func (r *Region) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.f == nil {
		return nil
	}
	f := r.f
	r.f = nil
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync region file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close region file: %w", err)
	}
	return nil
}
