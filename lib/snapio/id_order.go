package snapio

// ZMajorUnigrid maps the particle IDs of a uniform-mass z-major grid to
// their 3-index in the grid. This is the ordering used by, e.g., 2LPTic and
// many other initial conditions codes.
type ZMajorUnigrid struct {
	n int
	n64 uint64
}

// NewZMajorUnigrid returns a z-major uniform density grid with width n on each
// side.
func NewZMajorUnigrid(n int) *ZMajorUnigrid {
	return &ZMajorUnigrid{ n, uint64(n) }
}

// IDToIndex converts an ID to its 3-index.
func (g *ZMajorUnigrid) IDToIndex(id uint64) [3]int {
	return [3]int{
		int(id / (g.n64 * g.n64)),
		int((id / g.n64) % g.n64),
		int(id % g.n64),
	}
}

// IndexToID converts a 3-index to its ID. Indices are wrapped into the grid.
func (g *ZMajorUnigrid) IndexToID(i [3]int) uint64 {
	for k := range i {
		i[k] %= g.n
		if i[k] < 0 { i[k] += g.n }
	}
	return uint64(i[2] + i[1]*g.n + i[0]*g.n*g.n)
}

// Width returns the number of particles on each side of the grid.
func (g *ZMajorUnigrid) Width() int { return g.n }
