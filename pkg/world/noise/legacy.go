package noise

const (
	lcgMultiplier = 0x5DEECE66D
	lcgAddend     = 0xB
	lcgMask       = 1<<48 - 1
)

// Legacy is the 48-bit linear congruential generator of older world seeds.
type Legacy struct {
	seed int64
}

// NewLegacy scrambles seed the way java.util.Random does.
func NewLegacy(seed int64) *Legacy {
	return &Legacy{seed: (seed ^ lcgMultiplier) & lcgMask}
}

func (r *Legacy) next(n uint) int32 {
	r.seed = (r.seed*lcgMultiplier + lcgAddend) & lcgMask
	return int32(r.seed >> (48 - n))
}

func (r *Legacy) NextInt() int32 { return r.next(32) }

func (r *Legacy) NextIntn(bound int32) int32 {
	if bound <= 0 {
		panic("noise: bound must be positive")
	}
	if bound&-bound == bound {
		return int32((int64(bound) * int64(r.next(31))) >> 31)
	}
	for {
		b := r.next(31)
		v := b % bound
		if b-v+(bound-1) >= 0 {
			return v
		}
	}
}

func (r *Legacy) NextLong() int64 {
	return int64(r.next(32))<<32 + int64(r.next(32))
}

func (r *Legacy) NextBool() bool { return r.next(1) != 0 }

func (r *Legacy) NextFloat() float32 {
	return float32(r.next(24)) * 5.9604645e-8
}

func (r *Legacy) NextDouble() float64 {
	return float64(int64(r.next(26))<<27+int64(r.next(27))) * 0x1p-53
}

func (r *Legacy) Skip(count int) {
	for i := 0; i < count; i++ {
		r.next(32)
	}
}

func (r *Legacy) Deriver() Deriver {
	return LegacyDeriver{seed: r.NextLong()}
}

// LegacyDeriver forks LCG streams by position, name or seed.
type LegacyDeriver struct {
	seed int64
}

func (d LegacyDeriver) At(x, y, z int32) Random {
	return NewLegacy(HashBlockPos(x, y, z) ^ d.seed)
}

func (d LegacyDeriver) FromHash(name string) Random {
	return NewLegacy(int64(javaStringHash(name)) ^ d.seed)
}

func (d LegacyDeriver) FromSeed(seed int64) Random {
	return NewLegacy(seed ^ d.seed)
}
