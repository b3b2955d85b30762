package anvil

// Range is a run of sectors owned by one chunk.
type Range struct {
	Start, Count uint32
}

// End returns the first sector after r.
func (r Range) End() uint32 { return r.Start + r.Count }

// Overlaps reports whether r and o share a sector.
func (r Range) Overlaps(o Range) bool {
	return r.Start < o.End() && o.Start < r.End()
}

// sectorMap tracks which sectors of a region file are in use. The header
// sectors are always reserved.
type sectorMap struct {
	used []bool
}

func newSectorMap() *sectorMap {
	m := &sectorMap{used: make([]bool, headerSectors)}
	for i := range m.used {
		m.used[i] = true
	}
	return m
}

func (m *sectorMap) free(r Range) {
	for i := r.Start; i < r.End() && int(i) < len(m.used); i++ {
		if i >= headerSectors {
			m.used[i] = false
		}
	}
}

// reserve marks r as used. It fails if any sector is already taken.
func (m *sectorMap) reserve(r Range) bool {
	for i := r.Start; i < r.End(); i++ {
		if int(i) < len(m.used) && m.used[i] {
			return false
		}
	}
	m.mark(r)
	return true
}

func (m *sectorMap) mark(r Range) {
	for int(r.End()) > len(m.used) {
		m.used = append(m.used, false)
	}
	for i := r.Start; i < r.End(); i++ {
		m.used[i] = true
	}
}

// allocate reserves the first run of n free sectors, growing the file if
// no gap is large enough.
func (m *sectorMap) allocate(n uint32) Range {
	run := uint32(0)
	for i := uint32(headerSectors); int(i) < len(m.used); i++ {
		if m.used[i] {
			run = 0
			continue
		}
		run++
		if run == n {
			r := Range{Start: i + 1 - n, Count: n}
			m.mark(r)
			return r
		}
	}
	r := Range{Start: uint32(len(m.used)) - run, Count: n}
	m.mark(r)
	return r
}

// size returns the number of sectors up to the last used one.
func (m *sectorMap) size() uint32 {
	n := len(m.used)
	for n > headerSectors && !m.used[n-1] {
		n--
	}
	return uint32(n)
}
