// Package linear reads and writes linear region files: the 32×32 chunk
// payloads of a region stored back to back in one zstd frame, between a
// signature header and footer. A file is always rewritten whole.
package linear

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const (
	signature    uint64 = 0xc3ff13183cca9d9a
	version1            = 0x01
	fileHeader          = 24
	chunkHeader         = 8
	regionChunks        = 32 * 32
	// maxUncompressed bounds the decoded size of one file.
	maxUncompressed = 200 << 20
)

// ErrInvalidHeader is returned for files whose signature, version or
// sizes do not describe a readable region.
var ErrInvalidHeader = errors.New("invalid linear region header")

// Path returns the file name of region (rx, rz) inside dir.
func Path(dir string, rx, rz int32) string {
	return filepath.Join(dir, fmt.Sprintf("r.%d.%d.linear", rx, rz))
}

// Region is the decoded content of one linear file. It is not safe for
// concurrent use.
type Region struct {
	X, Z int32

	sizes      [regionChunks]uint32
	timestamps [regionChunks]uint32
	data       [regionChunks][]byte
}

// New returns an empty region.
func New(rx, rz int32) *Region {
	return &Region{X: rx, Z: rz}
}

func (r *Region) index(x, z int32) (int, error) {
	if x>>5 != r.X || z>>5 != r.Z {
		return 0, fmt.Errorf("chunk %d,%d is outside region %d,%d", x, z, r.X, r.Z)
	}
	return int(x&31) + int(z&31)*32, nil
}

// Chunk returns the payload of chunk (x, z). The boolean is false when the
// region holds no payload for it.
func (r *Region) Chunk(x, z int32) ([]byte, bool, error) {
	idx, err := r.index(x, z)
	if err != nil {
		return nil, false, err
	}
	if r.data[idx] == nil {
		return nil, false, nil
	}
	return r.data[idx], true, nil
}

// Put replaces the payload of chunk (x, z) and stamps it with ts, in unix
// seconds.
func (r *Region) Put(x, z int32, data []byte, ts uint32) error {
	idx, err := r.index(x, z)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("put chunk %d,%d: empty payload", x, z)
	}
	r.data[idx] = data
	r.sizes[idx] = uint32(len(data))
	r.timestamps[idx] = ts
	return nil
}

// Len returns the number of chunks with a payload.
func (r *Region) Len() int {
	n := 0
	for _, s := range r.sizes {
		if s != 0 {
			n++
		}
	}
	return n
}

// Read loads region (rx, rz) from dir. A missing file yields an empty region.
func Read(dir string, rx, rz int32) (*Region, error) {
	raw, err := os.ReadFile(Path(dir, rx, rz))
	if err != nil {
		if os.IsNotExist(err) {
			return New(rx, rz), nil
		}
		return nil, fmt.Errorf("read linear region: %w", err)
	}
	r, err := Decode(rx, rz, raw)
	if err != nil {
		return nil, fmt.Errorf("read linear region %d,%d: %w", rx, rz, err)
	}
	return r, nil
}

// Decode parses the bytes of a linear file.
func Decode(rx, rz int32, raw []byte) (*Region, error) {
	if len(raw) < 8+fileHeader+8 {
		return nil, fmt.Errorf("%w: file is %d bytes", ErrInvalidHeader, len(raw))
	}
	if binary.BigEndian.Uint64(raw) != signature {
		return nil, fmt.Errorf("%w: bad signature", ErrInvalidHeader)
	}
	h := raw[8 : 8+fileHeader]
	if h[0] != version1 {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidHeader, h[0])
	}
	body := raw[8+fileHeader:]
	size := binary.BigEndian.Uint32(h[12:16])
	if uint64(size)+8 != uint64(len(body)) {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrInvalidHeader, len(body)-8, size)
	}
	if binary.BigEndian.Uint64(body[size:]) != signature {
		return nil, fmt.Errorf("%w: bad footer", ErrInvalidHeader)
	}

	dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxUncompressed))
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	defer dec.Close()
	buf, err := dec.DecodeAll(body[:size], nil)
	if err != nil {
		return nil, fmt.Errorf("decompress linear region: %w", err)
	}
	if len(buf) < regionChunks*chunkHeader {
		return nil, fmt.Errorf("%w: chunk table truncated", ErrInvalidHeader)
	}

	r := New(rx, rz)
	var total uint64
	for i := 0; i < regionChunks; i++ {
		r.sizes[i] = binary.BigEndian.Uint32(buf[i*chunkHeader:])
		r.timestamps[i] = binary.BigEndian.Uint32(buf[i*chunkHeader+4:])
		total += uint64(r.sizes[i])
	}
	payloads := buf[regionChunks*chunkHeader:]
	if total != uint64(len(payloads)) {
		return nil, fmt.Errorf("%w: chunk sizes add up to %d, have %d bytes", ErrInvalidHeader, total, len(payloads))
	}
	off := 0
	for i, s := range r.sizes {
		if s == 0 {
			continue
		}
		r.data[i] = payloads[off : off+int(s)]
		off += int(s)
	}
	return r, nil
}

// Encode serializes the region. level is a zstd level; 0 picks the default.
func (r *Region) Encode(level int) ([]byte, error) {
	var body bytes.Buffer
	var newest uint32
	count := 0
	for i := 0; i < regionChunks; i++ {
		var e [chunkHeader]byte
		binary.BigEndian.PutUint32(e[:], r.sizes[i])
		binary.BigEndian.PutUint32(e[4:], r.timestamps[i])
		body.Write(e[:])
		if r.sizes[i] != 0 {
			count++
			newest = max(newest, r.timestamps[i])
		}
	}
	for _, d := range r.data {
		body.Write(d)
	}

	opts := []zstd.EOption{}
	if level > 0 {
		opts = append(opts, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	}
	enc, err := zstd.NewWriter(nil, opts...)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	compressed := enc.EncodeAll(body.Bytes(), nil)
	enc.Close()

	out := make([]byte, 0, 8+fileHeader+len(compressed)+8)
	out = binary.BigEndian.AppendUint64(out, signature)
	out = append(out, version1)
	out = binary.BigEndian.AppendUint64(out, uint64(newest))
	out = append(out, byte(level))
	out = binary.BigEndian.AppendUint16(out, uint16(count))
	out = binary.BigEndian.AppendUint32(out, uint32(len(compressed)))
	out = binary.BigEndian.AppendUint64(out, 0) // region hash, unused
	out = append(out, compressed...)
	out = binary.BigEndian.AppendUint64(out, signature)
	return out, nil
}

// Write stores the region in dir. The file is written to a temporary name
// and renamed over the old one.
func (r *Region) Write(dir string, level int) error {
	b, err := r.Encode(level)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create region dir: %w", err)
	}
	path := Path(dir, r.X, r.Z)
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp region file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp region file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp region file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp region file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename region file: %w", err)
	}
	return nil
}
