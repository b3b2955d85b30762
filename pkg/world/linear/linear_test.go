package linear

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"testing"
)

func TestMissingFileIsEmpty(t *testing.T) {
	r, err := Read(t.TempDir(), 2, -3)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("got %d chunks, want 0", r.Len())
	}
	if _, ok, err := r.Chunk(64, -96); ok || err != nil {
		t.Errorf("Chunk: ok=%v err=%v, want missing", ok, err)
	}
}

func TestWriteRead(t *testing.T) {
	dir := t.TempDir()
	r := New(-1, 0)
	payloads := map[[2]int32][]byte{
		{-32, 0}: bytes.Repeat([]byte("grass"), 3000),
		{-1, 31}: []byte{7},
		{-17, 4}: []byte("short"),
	}
	for p, data := range payloads {
		if err := r.Put(p[0], p[1], data, 1700000000); err != nil {
			t.Fatalf("Put(%d,%d): %v", p[0], p[1], err)
		}
	}
	for _, level := range []int{0, 3, 19} {
		if err := r.Write(dir, level); err != nil {
			t.Fatalf("Write level %d: %v", level, err)
		}
		got, err := Read(dir, -1, 0)
		if err != nil {
			t.Fatalf("Read level %d: %v", level, err)
		}
		if got.Len() != len(payloads) {
			t.Errorf("level %d: got %d chunks, want %d", level, got.Len(), len(payloads))
		}
		for p, want := range payloads {
			b, ok, err := got.Chunk(p[0], p[1])
			if err != nil || !ok || !bytes.Equal(b, want) {
				t.Errorf("level %d: Chunk(%d,%d) = %d bytes, %v, %v", level, p[0], p[1], len(b), ok, err)
			}
		}
	}
	if _, err := os.Stat(Path(dir, -1, 0) + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
}

func TestHeaderFields(t *testing.T) {
	r := New(0, 0)
	r.Put(1, 1, []byte("a"), 100)
	r.Put(2, 2, []byte("b"), 250)
	b, err := r.Encode(5)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if got := binary.BigEndian.Uint64(b); got != signature {
		t.Errorf("signature %#x", got)
	}
	if got := binary.BigEndian.Uint64(b[len(b)-8:]); got != signature {
		t.Errorf("footer %#x", got)
	}
	h := b[8 : 8+fileHeader]
	if h[0] != version1 {
		t.Errorf("version %d", h[0])
	}
	if got := binary.BigEndian.Uint64(h[1:9]); got != 250 {
		t.Errorf("newest timestamp %d, want 250", got)
	}
	if h[9] != 5 {
		t.Errorf("level %d, want 5", h[9])
	}
	if got := binary.BigEndian.Uint16(h[10:12]); got != 2 {
		t.Errorf("chunk count %d, want 2", got)
	}
	if got := int(binary.BigEndian.Uint32(h[12:16])); got != len(b)-8-fileHeader-8 {
		t.Errorf("body size %d, want %d", got, len(b)-8-fileHeader-8)
	}
}

func TestDecodeErrors(t *testing.T) {
	r := New(0, 0)
	r.Put(0, 0, []byte("payload"), 1)
	good, err := r.Encode(0)
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		mod  func(b []byte) []byte
	}{
		{"short", func(b []byte) []byte { return b[:20] }},
		{"signature", func(b []byte) []byte { b[0] ^= 0xFF; return b }},
		{"footer", func(b []byte) []byte { b[len(b)-1] ^= 0xFF; return b }},
		{"version 2", func(b []byte) []byte { b[8] = 2; return b }},
		{"body size", func(b []byte) []byte { b[8+15]++; return b }},
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(0, 0, tt.mod(bytes.Clone(good)))
			if !errors.Is(err, ErrInvalidHeader) {
				t.Errorf("got %v, want ErrInvalidHeader", err)
			}
		})
	}
}

func TestChunkOutsideRegion(t *testing.T) {
	r := New(1, 1)
	if err := r.Put(0, 40, []byte("x"), 0); err == nil {
		t.Error("Put outside the region succeeded")
	}
	if err := r.Put(40, 40, nil, 0); err == nil {
		t.Error("Put of an empty payload succeeded")
	}
}
