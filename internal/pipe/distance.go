package pipe

// computeSourceDistances finds every connected terminal that can feed the
// network and records the hop distance from it to each reachable pipe.
func (n *Network) computeSourceDistances() {
	n.sources = make(map[Pos]map[Pos]int)
	for _, c := range SortedPositions(n.connected) {
		for _, d := range Directions {
			if !n.Has(c.Offset(d)) {
				continue
			}
			s, ok := n.world.LookupStorage(n.kind.Name, c, d)
			if ok && s != nil && s.SupportsExtraction() {
				n.sources[c] = n.distancesFrom(c)
				break
			}
		}
	}
}

// distancesFrom runs a breadth-first search over member pipes, seeded with
// every pipe adjacent to source at distance 0. Terminals are not traversed.
func (n *Network) distancesFrom(source Pos) map[Pos]int {
	dist := make(map[Pos]int)
	q := make([]Pos, 0, len(Directions))
	for _, d := range Directions {
		p := source.Offset(d)
		if !n.Has(p) {
			continue
		}
		dist[p] = 0
		q = append(q, p)
	}

	for len(q) > 0 {
		p := q[0]
		q = q[1:]
		for _, d := range Directions {
			np := p.Offset(d)
			if !n.Has(np) {
				continue
			}
			if _, seen := dist[np]; seen {
				continue
			}
			dist[np] = dist[p] + 1
			q = append(q, np)
		}
	}
	return dist
}

// Sources returns the terminals distances are tracked from, in canonical order.
func (n *Network) Sources() []Pos {
	return SortedPositions(n.sources)
}

// SourceDistances returns a copy of the per-source distance maps.
func (n *Network) SourceDistances() map[Pos]map[Pos]int {
	out := make(map[Pos]map[Pos]int, len(n.sources))
	for src, m := range n.sources {
		cp := make(map[Pos]int, len(m))
		for p, d := range m {
			cp[p] = d
		}
		out[src] = cp
	}
	return out
}

// Distance returns the hop distance from source to pipe.
func (n *Network) Distance(source, pipe Pos) (int, bool) {
	m, ok := n.sources[source]
	if !ok {
		return 0, false
	}
	d, ok := m[pipe]
	return d, ok
}

// NearestSource returns the closest tracked source for pipe. Ties go to the
// source that sorts first.
func (n *Network) NearestSource(pipe Pos) (Pos, int, bool) {
	var (
		best     Pos
		bestDist int
		found    bool
	)
	for _, src := range n.Sources() {
		d, ok := n.sources[src][pipe]
		if !ok {
			continue
		}
		if !found || d < bestDist {
			best, bestDist, found = src, d, true
		}
	}
	return best, bestDist, found
}
