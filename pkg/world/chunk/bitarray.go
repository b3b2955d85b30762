package chunk

// bitArray packs fixed-width unsigned values into longs. Values never span
// two longs; the unused high bits of each long stay zero.
type bitArray struct {
	bits    int
	perLong int
	mask    uint64
	data    []uint64
}

func longsFor(bits, size int) int {
	if bits == 0 {
		return 0
	}
	per := 64 / bits
	return (size + per - 1) / per
}

func newBitArray(bits, size int) bitArray {
	return bitArray{
		bits:    bits,
		perLong: 64 / bits,
		mask:    1<<bits - 1,
		data:    make([]uint64, longsFor(bits, size)),
	}
}

func (a bitArray) get(i int) uint64 {
	shift := (i % a.perLong) * a.bits
	return a.data[i/a.perLong] >> shift & a.mask
}

func (a bitArray) set(i int, v uint64) {
	shift := (i % a.perLong) * a.bits
	l := &a.data[i/a.perLong]
	*l = *l&^(a.mask<<shift) | (v&a.mask)<<shift
}
