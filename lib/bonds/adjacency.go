package bonds

// Adjacency lets callers iterate over the half-bonds that start at a
// particle. It is a snapshot: changes to the List after NewAdjacency are not
// seen.
type Adjacency struct {
	// first[i] is the index of the first half-bond of particle i, or -1.
	first []int
	// next[j] is the index of the next half-bond with the same A as
	// half-bond j, or -1.
	next []int
}

// NewAdjacency builds the per-particle half-bond lists of l for n particles.
func NewAdjacency(l *List, n int) (*Adjacency, error) {
	if err := l.CheckIndices(n); err != nil { return nil, err }

	adj := &Adjacency{ make([]int, n), make([]int, l.HalfCount()) }
	for i := range adj.first { adj.first[i] = -1 }

	// Walk backwards so that each particle's list comes out in increasing
	// half-bond order.
	for j := l.HalfCount() - 1; j >= 0; j-- {
		a := l.bonds[j].A
		adj.next[j] = adj.first[a]
		adj.first[a] = j
	}
	return adj, nil
}

// BondsOf returns the indices of the half-bonds starting at particle i.
func (adj *Adjacency) BondsOf(i int) []int {
	out := []int{ }
	if i < 0 || i >= len(adj.first) { return out }
	for j := adj.first[i]; j != -1; j = adj.next[j] {
		out = append(out, j)
	}
	return out
}

// Degree returns the number of half-bonds starting at particle i.
func (adj *Adjacency) Degree(i int) int {
	n := 0
	if i < 0 || i >= len(adj.first) { return n }
	for j := adj.first[i]; j != -1; j = adj.next[j] { n++ }
	return n
}
