package noise

import (
	"crypto/md5"
	"encoding/binary"
)

// Random is a seeded pseudo-random stream.
type Random interface {
	NextInt() int32
	// NextIntn returns a value in [0, bound).
	NextIntn(bound int32) int32
	NextLong() int64
	NextBool() bool
	NextFloat() float32
	NextDouble() float64
	// Skip advances the stream by count ints.
	Skip(count int)
	// Deriver forks a positional deriver off this stream.
	Deriver() Deriver
}

// Deriver produces independent streams keyed by a position, a string or a seed.
type Deriver interface {
	At(x, y, z int32) Random
	FromHash(name string) Random
	FromSeed(seed int64) Random
}

// HashBlockPos mixes a block position into a 64-bit seed.
func HashBlockPos(x, y, z int32) int64 {
	l := int64(x*3129871) ^ int64(z)*116129781 ^ int64(y)
	l = l*l*42317861 + l*11
	return l >> 16
}

// NewRandom returns a xoroshiro stream, or the legacy LCG when legacy is set.
func NewRandom(seed int64, legacy bool) Random {
	if legacy {
		return NewLegacy(seed)
	}
	return NewXoroshiro(seed)
}

const (
	goldenRatio64 = 0x9E3779B97F4A7C15
	silverRatio64 = 0x6A09E667F3BCC909
)

func mixStafford13(z uint64) uint64 {
	z = (z ^ z>>30) * 0xBF58476D1CE4E5B9
	z = (z ^ z>>27) * 0x94D049BB133111EB
	return z ^ z>>31
}

// hashOf returns the 128-bit MD5 seed of name.
func hashOf(name string) (lo, hi uint64) {
	sum := md5.Sum([]byte(name))
	return binary.BigEndian.Uint64(sum[:8]), binary.BigEndian.Uint64(sum[8:])
}

// javaStringHash is String.hashCode over UTF-16 code units.
func javaStringHash(s string) int32 {
	var h int32
	for _, r := range s {
		if r >= 0x10000 {
			r -= 0x10000
			h = 31*h + int32(0xD800+(r>>10))
			h = 31*h + int32(0xDC00+(r&0x3FF))
			continue
		}
		h = 31*h + int32(r)
	}
	return h
}
