package biome

import (
	"errors"
	"sort"
)

const childrenPerNode = 6

// Entry places a biome at a climate hypercube.
type Entry struct {
	Biome ID
	Cube  Hypercube
}

type node struct {
	cube     Hypercube
	children []*node
	index    int // declaration order; leaves only
	biome    ID
}

func (n *node) leaf() bool { return n.children == nil }

// Tree is an R-tree over biome hypercubes. It is immutable once built and
// safe for concurrent lookups.
type Tree struct {
	root *node
	size int
}

// Hint carries the last matched leaf between lookups of neighbouring points.
// Each goroutine must use its own Hint.
type Hint struct {
	last *node
}

// NewTree indexes entries. Ties in Lookup go to the entry declared first.
func NewTree(entries []Entry) (*Tree, error) {
	if len(entries) == 0 {
		return nil, errors.New("biome tree needs at least one entry")
	}
	leaves := make([]*node, len(entries))
	for i, e := range entries {
		leaves[i] = &node{cube: e.Cube, index: i, biome: e.Biome}
	}
	return &Tree{root: build(leaves), size: len(entries)}, nil
}

// Len is the number of indexed entries.
func (t *Tree) Len() int { return t.size }

func build(nodes []*node) *node {
	if len(nodes) == 1 {
		return nodes[0]
	}
	if len(nodes) <= childrenPerNode {
		return parent(nodes)
	}

	axis := widestAxis(nodes)
	sorted := append([]*node(nil), nodes...)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].cube[axis], sorted[j].cube[axis]
		return a.Min+a.Max < b.Min+b.Max
	})

	step := (len(sorted) + childrenPerNode - 1) / childrenPerNode
	var children []*node
	for i := 0; i < len(sorted); i += step {
		end := min(i+step, len(sorted))
		children = append(children, build(sorted[i:end]))
	}
	return parent(children)
}

func parent(children []*node) *node {
	cube := children[0].cube
	for _, c := range children[1:] {
		cube = cube.span(c.cube)
	}
	return &node{cube: cube, children: children, index: -1}
}

func widestAxis(nodes []*node) int {
	best, bestSpan := 0, int64(-1)
	for axis := 0; axis < axes; axis++ {
		lo, hi := nodes[0].cube[axis].Min+nodes[0].cube[axis].Max, nodes[0].cube[axis].Min+nodes[0].cube[axis].Max
		for _, n := range nodes[1:] {
			c := n.cube[axis].Min + n.cube[axis].Max
			lo, hi = min(lo, c), max(hi, c)
		}
		if hi-lo > bestSpan {
			best, bestSpan = axis, hi-lo
		}
	}
	return best
}

// Lookup returns the biome whose hypercube is closest to p. hint may be nil.
func (t *Tree) Lookup(p Point, hint *Hint) ID {
	var best *node
	var bestDist int64
	if hint != nil && hint.last != nil {
		best, bestDist = hint.last, hint.last.cube.Distance(p)
	}
	best, _ = t.search(t.root, p, best, bestDist)
	if hint != nil {
		hint.last = best
	}
	return best.biome
}

func (t *Tree) search(n *node, p Point, best *node, bestDist int64) (*node, int64) {
	if n.leaf() {
		d := n.cube.Distance(p)
		if best == nil || d < bestDist || (d == bestDist && n.index < best.index) {
			return n, d
		}
		return best, bestDist
	}
	for _, c := range n.children {
		if best != nil && c.cube.Distance(p) > bestDist {
			continue
		}
		best, bestDist = t.search(c, p, best, bestDist)
	}
	return best, bestDist
}
