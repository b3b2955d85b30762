package anvil

import (
	"bytes"
	"encoding/binary"
	"math/rand"
	"strings"
	"testing"
)

func TestLZ4MultiBlock(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	data := append(bytes.Repeat([]byte("deepslate"), 20000), randomBytes(rng, 3*lz4BlockSize/2)...)

	enc, err := CompressionLZ4.compress(data, 0)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	if blocks := bytes.Count(enc, []byte(lz4Magic)); blocks < 5 {
		t.Errorf("got %d blocks, want at least 5 for %d bytes", blocks, len(data))
	}
	got, err := CompressionLZ4.decompress(enc)
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip returned %d bytes, want %d", len(got), len(data))
	}
}

// lz4RawStream builds a stream by hand the way lz4-java frames an
// incompressible block.
func lz4RawStream(payload []byte) []byte {
	var b bytes.Buffer
	b.WriteString("LZ4Block")
	b.WriteByte(0x16)
	binary.Write(&b, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&b, binary.LittleEndian, uint32(len(payload)))
	binary.Write(&b, binary.LittleEndian, lz4Checksum(payload))
	b.Write(payload)
	b.WriteString("LZ4Block")
	b.WriteByte(0x16)
	b.Write(make([]byte, 12))
	return b.Bytes()
}

func TestLZ4ReadsRawBlocks(t *testing.T) {
	got, err := decompressLZ4(lz4RawStream([]byte("chunk nbt")))
	if err != nil {
		t.Fatalf("decompress: %v", err)
	}
	if string(got) != "chunk nbt" {
		t.Errorf("got %q, want %q", got, "chunk nbt")
	}
}

func TestLZ4Errors(t *testing.T) {
	good := lz4RawStream([]byte("chunk nbt"))
	corrupt := func(f func(b []byte) []byte) []byte {
		return f(bytes.Clone(good))
	}
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"empty", nil, "end block"},
		{"no end block", good[:len(good)-lz4HeaderSize], "end block"},
		{"bad magic", corrupt(func(b []byte) []byte { b[0] = 'X'; return b }), "magic"},
		{"checksum", corrupt(func(b []byte) []byte { b[lz4HeaderSize] ^= 1; return b }), "checksum"},
		{"method", corrupt(func(b []byte) []byte { b[8] = 0x36; return b }), "method"},
		{"length", corrupt(func(b []byte) []byte { b[9] = 0xFF; return b }), "lengths"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := decompressLZ4(tt.data)
			if err == nil {
				t.Fatal("got nil error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("got %q, want it to mention %q", err, tt.want)
			}
		})
	}
}
