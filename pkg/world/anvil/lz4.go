package anvil

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/OneOfOne/xxhash"
	"github.com/pierrec/lz4/v4"
)

// LZ4 payloads use the LZ4Block stream written by lz4-java: a sequence of
// blocks, each with a 21-byte header, ended by an empty block.
const (
	lz4Magic      = "LZ4Block"
	lz4HeaderSize = len(lz4Magic) + 13
	lz4BlockSize  = 64 << 10
	lz4Seed       = 0x9747b28c

	lz4MethodRaw = 0x10
	lz4MethodLZ4 = 0x20
	// lz4Level is the block size exponent lz4-java stores in the token for
	// 64 KiB blocks.
	lz4Level = 6
)

func lz4Checksum(b []byte) uint32 {
	return xxhash.Checksum32S(b, lz4Seed) & 0x0FFFFFFF
}

func putLZ4Header(buf *bytes.Buffer, method byte, compressed, original int, check uint32) {
	var h [lz4HeaderSize]byte
	copy(h[:], lz4Magic)
	h[len(lz4Magic)] = method | lz4Level
	binary.LittleEndian.PutUint32(h[len(lz4Magic)+1:], uint32(compressed))
	binary.LittleEndian.PutUint32(h[len(lz4Magic)+5:], uint32(original))
	binary.LittleEndian.PutUint32(h[len(lz4Magic)+9:], check)
	buf.Write(h[:])
}

func compressLZ4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	dst := make([]byte, lz4.CompressBlockBound(lz4BlockSize))
	for len(data) > 0 {
		block := data[:min(len(data), lz4BlockSize)]
		data = data[len(block):]

		n, err := lz4.CompressBlock(block, dst, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 block: %w", err)
		}
		if n == 0 || n >= len(block) {
			putLZ4Header(&buf, lz4MethodRaw, len(block), len(block), lz4Checksum(block))
			buf.Write(block)
			continue
		}
		putLZ4Header(&buf, lz4MethodLZ4, n, len(block), lz4Checksum(block))
		buf.Write(dst[:n])
	}
	putLZ4Header(&buf, lz4MethodRaw, 0, 0, 0)
	return buf.Bytes(), nil
}

func decompressLZ4(data []byte) ([]byte, error) {
	var out []byte
	for {
		if len(data) < lz4HeaderSize {
			return nil, errors.New("lz4 stream ended before its end block")
		}
		if string(data[:len(lz4Magic)]) != lz4Magic {
			return nil, errors.New("lz4 block: bad magic")
		}
		token := data[len(lz4Magic)]
		compressed := int(binary.LittleEndian.Uint32(data[len(lz4Magic)+1:]))
		original := int(binary.LittleEndian.Uint32(data[len(lz4Magic)+5:]))
		check := binary.LittleEndian.Uint32(data[len(lz4Magic)+9:])
		data = data[lz4HeaderSize:]

		if original == 0 && compressed == 0 {
			if check != 0 {
				return nil, errors.New("lz4 end block: nonzero checksum")
			}
			return out, nil
		}
		if compressed < 0 || original < 0 || original > 1<<25 || compressed > len(data) {
			return nil, fmt.Errorf("lz4 block: bad lengths %d/%d", compressed, original)
		}

		var block []byte
		switch token & 0xF0 {
		case lz4MethodRaw:
			if compressed != original {
				return nil, fmt.Errorf("lz4 raw block: length %d != %d", compressed, original)
			}
			block = data[:compressed]
		case lz4MethodLZ4:
			block = make([]byte, original)
			n, err := lz4.UncompressBlock(data[:compressed], block)
			if err != nil {
				return nil, fmt.Errorf("lz4 block: %w", err)
			}
			if n != original {
				return nil, fmt.Errorf("lz4 block: got %d bytes, want %d", n, original)
			}
		default:
			return nil, fmt.Errorf("lz4 block: unknown method %#x", token&0xF0)
		}
		if got := lz4Checksum(block); got != check {
			return nil, fmt.Errorf("lz4 block: checksum %#x, want %#x", got, check)
		}
		out = append(out, block...)
		data = data[compressed:]
	}
}
