// Package sampler evaluates density graphs over one chunk column.
//
// A Sampler samples interpolated functions at the corners of a coarse cell
// grid and interpolates between them for every block inside a cell. The
// driving loop is:
//
//	s.SampleStart()
//	for cx := 0; cx < s.CellsXZ(); cx++ {
//		s.SampleEnd(cx)
//		for cz := 0; cz < s.CellsXZ(); cz++ {
//			for cy := s.CellsY() - 1; cy >= 0; cy-- {
//				s.OnCellCorners(cx, cy, cz)
//				for by := s.CellHeight() - 1; by >= 0; by-- {
//					s.InterpolateY(by)
//					for bx := 0; bx < s.CellWidth(); bx++ {
//						s.InterpolateX(bx)
//						for bz := 0; bz < s.CellWidth(); bz++ {
//							s.InterpolateZ(bz)
//							v := s.Sample(fn, s.Block())
//						}
//					}
//				}
//			}
//		}
//		s.SwapBuffers()
//	}
//
// Every cached value equals what evaluating the wrapper's input under the
// same mode and state would return. A Sampler is not safe for concurrent use.
package sampler

import (
	"fmt"

	"github.com/OCharnyshevich/minecraft-world/pkg/world/density"
)

// Shape is the vertical extent of a dimension and its cell size.
type Shape struct {
	MinY       int32 `yaml:"min_y" json:"min_y"`
	Height     int32 `yaml:"height" json:"height"`
	CellWidth  int32 `yaml:"size_horizontal" json:"size_horizontal"`
	CellHeight int32 `yaml:"size_vertical" json:"size_vertical"`
}

// Validate checks that cells tile a chunk column exactly.
func (s Shape) Validate() error {
	switch {
	case s.CellWidth <= 0 || 16%s.CellWidth != 0:
		return fmt.Errorf("cell width %d does not divide 16", s.CellWidth)
	case s.CellHeight <= 0:
		return fmt.Errorf("cell height %d is not positive", s.CellHeight)
	case s.Height <= 0 || s.Height%16 != 0:
		return fmt.Errorf("height %d is not a positive multiple of 16", s.Height)
	case s.MinY%16 != 0:
		return fmt.Errorf("min y %d is not a multiple of 16", s.MinY)
	case s.Height%s.CellHeight != 0:
		return fmt.Errorf("cell height %d does not divide height %d", s.CellHeight, s.Height)
	}
	return nil
}

// MaxY is one above the highest block.
func (s Shape) MaxY() int32 { return s.MinY + s.Height }

type mode uint8

const (
	modeDirect mode = iota
	modeCorners
	modeCell
	modeInterpolate

	numModes
)

// modeContext routes wrappers to the sampler under one mode.
type modeContext struct {
	s    *Sampler
	mode mode
}

func (c *modeContext) Wrapped(w *density.Wrapper, p density.Pos) float64 {
	return c.s.wrapped(c.mode, w, p)
}

type memoKey struct {
	mode    mode
	version uint64
	pos     density.Pos
}

type slotState struct {
	interp *interpolator

	cell []float64

	flat   []float64
	flatOK []bool

	memoOK  bool
	memoKey memoKey
	memoVal float64
}

// Sampler is the per-chunk evaluation context.
type Sampler struct {
	shape Shape

	startCellX, startCellZ int32
	minCellY               int32
	cellsXZ, cellsY        int

	biomeX, biomeZ int32
	biomeSpan      int

	slots   []slotState
	interps []*density.Wrapper
	cells   []*density.Wrapper
	ctx     [numModes]modeContext

	// Origin of the current cell and the block offsets inside it.
	cellOrigin density.Pos
	bx, by, bz int32

	version uint64
}

// New prepares a sampler for the chunk at (chunkX, chunkZ). Every wrapper
// reachable from roots gets its caches; wrappers from other graphs are
// evaluated as pass-through in Direct mode.
func New(shape Shape, chunkX, chunkZ int32, roots ...density.Function) *Sampler {
	s := &Sampler{
		shape:      shape,
		startCellX: chunkX * 16 / shape.CellWidth,
		startCellZ: chunkZ * 16 / shape.CellWidth,
		minCellY:   floorDiv(shape.MinY, shape.CellHeight),
		cellsXZ:    int(16 / shape.CellWidth),
		cellsY:     int(shape.Height / shape.CellHeight),
		biomeX:     chunkX * 4,
		biomeZ:     chunkZ * 4,
		biomeSpan:  4 + 1,
	}
	for m := range s.ctx {
		s.ctx[m] = modeContext{s: s, mode: mode(m)}
	}

	wrappers := density.Wrappers(roots...)
	if n := len(wrappers); n > 0 {
		s.slots = make([]slotState, wrappers[n-1].Slot+1)
	}
	cellVolume := int(shape.CellWidth * shape.CellWidth * shape.CellHeight)
	for _, w := range wrappers {
		st := &s.slots[w.Slot]
		switch w.Kind {
		case density.Interpolated:
			st.interp = newInterpolator(s.cellsXZ, s.cellsY)
			s.interps = append(s.interps, w)
		case density.CellCache:
			st.cell = make([]float64, cellVolume)
			s.cells = append(s.cells, w)
		case density.FlatCache:
			st.flat = make([]float64, s.biomeSpan*s.biomeSpan)
			st.flatOK = make([]bool, s.biomeSpan*s.biomeSpan)
		}
	}
	return s
}

// Shape returns the sampler's shape.
func (s *Sampler) Shape() Shape { return s.shape }

// CellsXZ is the number of cells along each horizontal axis of the chunk.
func (s *Sampler) CellsXZ() int { return s.cellsXZ }

// CellsY is the number of cells stacked in the column.
func (s *Sampler) CellsY() int { return s.cellsY }

// CellWidth is the horizontal block size of a cell.
func (s *Sampler) CellWidth() int { return int(s.shape.CellWidth) }

// CellHeight is the vertical block size of a cell.
func (s *Sampler) CellHeight() int { return int(s.shape.CellHeight) }

// SampleStart fills the start buffers with the first x slice of corners.
func (s *Sampler) SampleStart() {
	s.fillSlice(true, s.startCellX)
}

// SampleEnd fills the end buffers with the corners at the far x edge of cell cx.
func (s *Sampler) SampleEnd(cx int) {
	s.fillSlice(false, s.startCellX+int32(cx)+1)
}

func (s *Sampler) fillSlice(start bool, cellX int32) {
	s.version++
	ctx := &s.ctx[modeCorners]
	x := cellX * s.shape.CellWidth
	for cz := 0; cz <= s.cellsXZ; cz++ {
		z := (s.startCellZ + int32(cz)) * s.shape.CellWidth
		for cy := 0; cy <= s.cellsY; cy++ {
			p := density.Pos{X: x, Y: (int32(cy) + s.minCellY) * s.shape.CellHeight, Z: z}
			s.version++
			for _, w := range s.interps {
				it := s.slots[w.Slot].interp
				buf := it.end
				if start {
					buf = it.start
				}
				buf[it.index(cy, cz)] = density.Sample(w.Input, p, ctx)
			}
		}
	}
}

// OnCellCorners loads the corners of cell (cx, cy, cz) and fills every cell cache.
func (s *Sampler) OnCellCorners(cx, cy, cz int) {
	s.version++
	s.cellOrigin = density.Pos{
		X: (s.startCellX + int32(cx)) * s.shape.CellWidth,
		Y: (int32(cy) + s.minCellY) * s.shape.CellHeight,
		Z: (s.startCellZ + int32(cz)) * s.shape.CellWidth,
	}
	for _, w := range s.interps {
		s.slots[w.Slot].interp.onCorners(cy, cz)
	}
	if len(s.cells) == 0 {
		return
	}

	ctx := &s.ctx[modeCell]
	width, height := s.shape.CellWidth, s.shape.CellHeight
	for by := int32(0); by < height; by++ {
		for bx := int32(0); bx < width; bx++ {
			for bz := int32(0); bz < width; bz++ {
				s.bx, s.by, s.bz = bx, by, bz
				s.version++
				p := density.Pos{X: s.cellOrigin.X + bx, Y: s.cellOrigin.Y + by, Z: s.cellOrigin.Z + bz}
				i := s.cellIndex(bx, by, bz)
				for _, w := range s.cells {
					s.slots[w.Slot].cell[i] = density.Sample(w.Input, p, ctx)
				}
			}
		}
	}
}

func (s *Sampler) cellIndex(bx, by, bz int32) int {
	w := s.shape.CellWidth
	return int((by*w+bx)*w + bz)
}

// InterpolateY moves every interpolator to block row by of the current cell.
func (s *Sampler) InterpolateY(by int) {
	s.version++
	s.by = int32(by)
	d := float64(by) / float64(s.shape.CellHeight)
	for _, w := range s.interps {
		s.slots[w.Slot].interp.interpolateY(d)
	}
}

// InterpolateX moves every interpolator to block column bx of the current row.
func (s *Sampler) InterpolateX(bx int) {
	s.version++
	s.bx = int32(bx)
	d := float64(bx) / float64(s.shape.CellWidth)
	for _, w := range s.interps {
		s.slots[w.Slot].interp.interpolateX(d)
	}
}

// InterpolateZ settles every interpolator on block bz of the current column.
func (s *Sampler) InterpolateZ(bz int) {
	s.version++
	s.bz = int32(bz)
	d := float64(bz) / float64(s.shape.CellWidth)
	for _, w := range s.interps {
		s.slots[w.Slot].interp.interpolateZ(d)
	}
}

// SwapBuffers makes the end slice the start of the next cell column.
func (s *Sampler) SwapBuffers() {
	s.version++
	for _, w := range s.interps {
		it := s.slots[w.Slot].interp
		it.start, it.end = it.end, it.start
	}
}

// Block is the position the interpolators are settled on.
func (s *Sampler) Block() density.Pos {
	return density.Pos{X: s.cellOrigin.X + s.bx, Y: s.cellOrigin.Y + s.by, Z: s.cellOrigin.Z + s.bz}
}

// Sample evaluates fn for the block the interpolators are settled on.
// Positions outside the current block fall back to Direct.
func (s *Sampler) Sample(fn density.Function, p density.Pos) float64 {
	if p != s.Block() {
		return s.Direct(fn, p)
	}
	return density.Sample(fn, p, &s.ctx[modeInterpolate])
}

// Direct evaluates fn at p at block resolution: interpolated and cell-cached
// functions evaluate their inputs, flat caches are served from the chunk's grid.
func (s *Sampler) Direct(fn density.Function, p density.Pos) float64 {
	return density.Sample(fn, p, &s.ctx[modeDirect])
}

func (s *Sampler) wrapped(m mode, w *density.Wrapper, p density.Pos) float64 {
	if w.Slot >= len(s.slots) {
		return s.passThrough(w, p)
	}
	st := &s.slots[w.Slot]

	switch w.Kind {
	case density.FlatCache:
		if st.flat == nil {
			return s.passThrough(w, p)
		}
		qx, qz := (p.X>>2)-s.biomeX, (p.Z>>2)-s.biomeZ
		if qx < 0 || qz < 0 || int(qx) >= s.biomeSpan || int(qz) >= s.biomeSpan {
			return s.passThrough(w, p)
		}
		i := int(qx)*s.biomeSpan + int(qz)
		if !st.flatOK[i] {
			st.flat[i] = density.Sample(w.Input, density.FlatPos(p), &s.ctx[modeDirect])
			st.flatOK[i] = true
		}
		return st.flat[i]

	case density.Interpolated:
		if st.interp == nil {
			return s.passThrough(w, p)
		}
		switch m {
		case modeInterpolate:
			if p == s.Block() {
				return st.interp.result
			}
		case modeCell:
			if off, ok := s.inCell(p); ok {
				return st.interp.at(
					float64(off.X)/float64(s.shape.CellWidth),
					float64(off.Y)/float64(s.shape.CellHeight),
					float64(off.Z)/float64(s.shape.CellWidth),
				)
			}
		case modeCorners:
			return density.Sample(w.Input, p, &s.ctx[modeCorners])
		}
		return s.passThrough(w, p)

	case density.CellCache:
		if st.cell != nil && m == modeInterpolate {
			if off, ok := s.inCell(p); ok {
				return st.cell[s.cellIndex(off.X, off.Y, off.Z)]
			}
		}
		if m == modeInterpolate {
			return s.passThrough(w, p)
		}
		return density.Sample(w.Input, p, &s.ctx[m])

	case density.Cache2D:
		key := s.key(m, density.Pos{X: p.X, Z: p.Z})
		if st.memoOK && st.memoKey == key {
			return st.memoVal
		}
		v := density.Sample(w.Input, p, &s.ctx[m])
		st.memoOK, st.memoKey, st.memoVal = true, key, v
		return v

	case density.CacheOnce:
		key := s.key(m, p)
		if st.memoOK && st.memoKey == key {
			return st.memoVal
		}
		v := density.Sample(w.Input, p, &s.ctx[m])
		st.memoOK, st.memoKey, st.memoVal = true, key, v
		return v
	}
	panic(fmt.Sprintf("sampler: unhandled wrapper kind %v", w.Kind))
}

// passThrough evaluates a wrapper in Direct mode.
func (s *Sampler) passThrough(w *density.Wrapper, p density.Pos) float64 {
	if w.Kind == density.FlatCache {
		p = density.FlatPos(p)
	}
	return density.Sample(w.Input, p, &s.ctx[modeDirect])
}

func (s *Sampler) key(m mode, p density.Pos) memoKey {
	if m == modeDirect {
		return memoKey{mode: m, pos: p}
	}
	return memoKey{mode: m, version: s.version, pos: p}
}

func (s *Sampler) inCell(p density.Pos) (density.Pos, bool) {
	off := density.Pos{X: p.X - s.cellOrigin.X, Y: p.Y - s.cellOrigin.Y, Z: p.Z - s.cellOrigin.Z}
	w, h := s.shape.CellWidth, s.shape.CellHeight
	if off.X < 0 || off.X >= w || off.Y < 0 || off.Y >= h || off.Z < 0 || off.Z >= w {
		return off, false
	}
	return off, true
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
