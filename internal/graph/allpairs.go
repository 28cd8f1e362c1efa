package graph

import (
	"math"
	"sort"
)

// infinity is the internal "no path" distance. It is kept well below
// MaxInt64 so that two infinities can be added without overflow inside
// the Floyd-Warshall relaxation.
const infinity = int64(math.MaxInt64) / 4

// allPairs is an immutable snapshot of all-pairs shortest distances.
//
// A snapshot captures a dense index assignment for the nodes present at
// build time; it is replaced wholesale whenever the topology changes
// (Engine.dirty), never patched in place. Readers holding a snapshot
// therefore always see distances consistent with a single topology.
type allPairs struct {
	index map[string]int
	names []string
	dist  [][]int64
}

// buildAllPairs assembles the distance matrix with Floyd-Warshall.
// Caller must hold the write lock.
func (e *Engine) buildAllPairs() *allPairs {
	n := len(e.nodes)
	ap := &allPairs{
		index: make(map[string]int, n),
		names: make([]string, 0, n),
		dist:  make([][]int64, n),
	}
	for name := range e.nodes {
		ap.index[name] = len(ap.names)
		ap.names = append(ap.names, name)
	}

	for i := range ap.dist {
		row := make([]int64, n)
		for j := range row {
			row[j] = infinity
		}
		row[i] = 0
		ap.dist[i] = row
	}

	for key, weight := range e.edges {
		i, j := ap.index[key.from], ap.index[key.to]
		if w := int64(weight); w < ap.dist[i][j] {
			ap.dist[i][j] = w
		}
	}

	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			ik := ap.dist[i][k]
			if ik == infinity {
				continue
			}
			for j := 0; j < n; j++ {
				if through := ik + ap.dist[k][j]; through < ap.dist[i][j] {
					ap.dist[i][j] = through
				}
			}
		}
	}

	return ap
}

// closerThan lists the nodes strictly closer than limit to name,
// excluding name itself, sorted ascending. The second return is false
// iff name is not in the snapshot.
func (ap *allPairs) closerThan(limit int, name string) ([]string, bool) {
	src, ok := ap.index[name]
	if !ok {
		return nil, false
	}

	result := make([]string, 0)
	for i, other := range ap.names {
		if i == src {
			continue
		}
		if ap.dist[src][i] < int64(limit) {
			result = append(result, other)
		}
	}
	sort.Strings(result)
	return result, true
}

// distance returns the snapshot distance between two nodes, mapped to the
// ShortestPath sentinel convention. The second return is false iff either
// node is not in the snapshot.
func (ap *allPairs) distance(from, to string) (int, bool) {
	i, ok := ap.index[from]
	if !ok {
		return 0, false
	}
	j, ok := ap.index[to]
	if !ok {
		return 0, false
	}
	if ap.dist[i][j] >= infinity {
		return Unreachable, true
	}
	return int(ap.dist[i][j]), true
}
