package pipe

import "sort"

// component is one 6-connected group of pipes. min is its smallest position.
type component struct {
	pipes []Pos
	min   Pos
}

// splitComponents partitions pipes into connected components. Flood fills
// start from seeds first (the former neighbours of a removed pipe), then from
// any member left unvisited. The result is ordered largest first; equal sizes
// are ordered by their smallest position.
func splitComponents(pipes map[Pos]struct{}, seeds []Pos) []component {
	visited := make(map[Pos]bool, len(pipes))
	var out []component

	fill := func(start Pos) {
		if visited[start] {
			return
		}
		if _, ok := pipes[start]; !ok {
			return
		}
		visited[start] = true
		c := component{min: start}
		q := []Pos{start}
		for len(q) > 0 {
			p := q[0]
			q = q[1:]
			c.pipes = append(c.pipes, p)
			if Less(p, c.min) {
				c.min = p
			}
			for _, d := range Directions {
				np := p.Offset(d)
				if visited[np] {
					continue
				}
				if _, ok := pipes[np]; !ok {
					continue
				}
				visited[np] = true
				q = append(q, np)
			}
		}
		out = append(out, c)
	}

	for _, s := range seeds {
		fill(s)
	}
	if len(visited) < len(pipes) {
		for _, p := range SortedPositions(pipes) {
			fill(p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if len(out[i].pipes) != len(out[j].pipes) {
			return len(out[i].pipes) > len(out[j].pipes)
		}
		return Less(out[i].min, out[j].min)
	})
	for i := range out {
		SortPositions(out[i].pipes)
	}
	return out
}

// Contiguous reports whether pipes form a single 6-connected component.
// The empty set counts as connected.
func Contiguous(pipes []Pos) bool {
	if len(pipes) == 0 {
		return true
	}
	set := make(map[Pos]struct{}, len(pipes))
	for _, p := range pipes {
		set[p] = struct{}{}
	}
	return len(splitComponents(set, pipes[:1])) == 1
}
