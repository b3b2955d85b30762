package noise

import "math/bits"

// Xoroshiro is the xoroshiro128++ generator used for modern world seeds.
type Xoroshiro struct {
	lo, hi uint64
}

// NewXoroshiro upgrades a 64-bit seed to a 128-bit xoroshiro state.
func NewXoroshiro(seed int64) *Xoroshiro {
	lo := uint64(seed) ^ silverRatio64
	hi := lo + goldenRatio64
	return newXoroshiro128(mixStafford13(lo), mixStafford13(hi))
}

func newXoroshiro128(lo, hi uint64) *Xoroshiro {
	if lo|hi == 0 {
		lo, hi = goldenRatio64, silverRatio64
	}
	return &Xoroshiro{lo: lo, hi: hi}
}

func (r *Xoroshiro) next() uint64 {
	l, m := r.lo, r.hi
	n := bits.RotateLeft64(l+m, 17) + l
	m ^= l
	r.lo = bits.RotateLeft64(l, 49) ^ m ^ (m << 21)
	r.hi = bits.RotateLeft64(m, 28)
	return n
}

func (r *Xoroshiro) nextBits(n uint) uint64 {
	return r.next() >> (64 - n)
}

func (r *Xoroshiro) NextLong() int64 { return int64(r.next()) }

func (r *Xoroshiro) NextInt() int32 { return int32(r.next()) }

func (r *Xoroshiro) NextIntn(bound int32) int32 {
	if bound <= 0 {
		panic("noise: bound must be positive")
	}
	l := uint64(uint32(r.next()))
	m := l * uint64(bound)
	low := m & 0xFFFFFFFF
	if low < uint64(bound) {
		threshold := uint64(uint32(-bound) % uint32(bound))
		for low < threshold {
			l = uint64(uint32(r.next()))
			m = l * uint64(bound)
			low = m & 0xFFFFFFFF
		}
	}
	return int32(m >> 32)
}

func (r *Xoroshiro) NextBool() bool { return r.next()&1 != 0 }

func (r *Xoroshiro) NextFloat() float32 {
	return float32(r.nextBits(24)) * 5.9604645e-8
}

func (r *Xoroshiro) NextDouble() float64 {
	return float64(r.nextBits(53)) * 0x1p-53
}

func (r *Xoroshiro) Skip(count int) {
	for i := 0; i < count; i++ {
		r.next()
	}
}

func (r *Xoroshiro) Deriver() Deriver {
	lo := r.next()
	hi := r.next()
	return XoroshiroDeriver{lo: lo, hi: hi}
}

// XoroshiroDeriver forks xoroshiro streams by position, name or seed.
type XoroshiroDeriver struct {
	lo, hi uint64
}

func (d XoroshiroDeriver) At(x, y, z int32) Random {
	return newXoroshiro128(uint64(HashBlockPos(x, y, z))^d.lo, d.hi)
}

func (d XoroshiroDeriver) FromHash(name string) Random {
	lo, hi := hashOf(name)
	return newXoroshiro128(lo^d.lo, hi^d.hi)
}

func (d XoroshiroDeriver) FromSeed(seed int64) Random {
	return newXoroshiro128(uint64(seed)^d.lo, uint64(seed)^d.hi)
}
