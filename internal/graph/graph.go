// Package graph implements the shared in-memory graph engine.
//
// The engine holds a single directed, weighted graph and serves every
// connected session. All public methods are synchronous and safe for
// concurrent use; see the locking notes on Engine.
package graph

import (
	"math"
	"sync"
)

// Sentinel results for ShortestPath.
const (
	// Unreachable is returned when both endpoints exist but no directed
	// path connects them. It is the value clients see on the wire.
	Unreachable = math.MaxInt32

	// MissingEndpoint is returned when either endpoint is absent from the
	// graph. The protocol layer maps it to ERROR: NODE NOT FOUND.
	MissingEndpoint = -1
)

// node is a vertex with its adjacency in both directions.
//
// out maps successor name to edge weight and is the authoritative edge
// record alongside Engine.edges. in is a reverse-adjacency set kept so
// RemoveNode can delete inbound edges in O(deg) instead of scanning
// every vertex.
type node struct {
	name string
	out  map[string]int
	in   map[string]struct{}
}

func newNode(name string) *node {
	return &node{
		name: name,
		out:  make(map[string]int),
		in:   make(map[string]struct{}),
	}
}

// edgeKey identifies an edge by its ordered endpoint pair. Weight is not
// part of edge identity, which guarantees at most one edge per pair.
type edgeKey struct {
	from string
	to   string
}

// Engine is the thread-safe graph store shared by all sessions.
//
// Thread-safety model:
//   - Mutations (AddNode, AddEdge, RemoveNode, RemoveEdge) take the write lock.
//   - ShortestPath takes the read lock; Dijkstra never mutates engine state.
//   - CloserThan takes the read lock while the all-pairs cache is clean and
//     upgrades to the write lock (with a dirty re-check) when it must
//     rebuild the cache.
//
// INVARIANTS:
//   - Every edge's endpoints are present in nodes.
//   - edges and the union of node.out describe the same (from, to, weight)
//     set; node.in mirrors it in reverse.
//   - When dirty is false, cache describes shortest distances for the
//     current topology.
type Engine struct {
	mu    sync.RWMutex
	nodes map[string]*node
	edges map[edgeKey]int
	cache *allPairs
	dirty bool
}

// New creates an empty engine.
func New() *Engine {
	return &Engine{
		nodes: make(map[string]*node),
		edges: make(map[edgeKey]int),
		dirty: true,
	}
}

// AddNode inserts a node. Returns false if the name is already present,
// in which case the graph is unchanged.
func (e *Engine) AddNode(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.nodes[name]; ok {
		return false
	}
	e.nodes[name] = newNode(name)
	e.dirty = true
	return true
}

// AddEdge upserts the directed edge from -> to.
//
// Returns false iff either endpoint is missing. Otherwise the edge is
// present afterwards and the call succeeds: a new edge is inserted with
// the given weight, and an existing edge has its weight lowered when the
// new weight is strictly smaller. A non-improving weight leaves the graph
// (and the all-pairs cache) untouched.
//
// Weights are non-negative by contract; negative values are
// unrepresentable at the protocol layer and undefined here.
func (e *Engine) AddEdge(from, to string, weight int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, okFrom := e.nodes[from]
	dst, okTo := e.nodes[to]
	if !okFrom || !okTo {
		return false
	}

	key := edgeKey{from: from, to: to}
	if current, ok := e.edges[key]; ok {
		if weight >= current {
			return true
		}
	}
	e.edges[key] = weight
	src.out[to] = weight
	dst.in[from] = struct{}{}
	e.dirty = true
	return true
}

// RemoveNode deletes a node together with every edge that starts or ends
// at it. Returns false if the node is absent.
func (e *Engine) RemoveNode(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.nodes[name]
	if !ok {
		return false
	}

	for to := range n.out {
		delete(e.edges, edgeKey{from: name, to: to})
		delete(e.nodes[to].in, name)
	}
	for from := range n.in {
		delete(e.edges, edgeKey{from: from, to: name})
		delete(e.nodes[from].out, name)
	}
	delete(e.nodes, name)
	e.dirty = true
	return true
}

// RemoveEdge deletes the edge from -> to if it exists.
//
// Returns false iff either endpoint is missing. Removing an absent edge
// between existing endpoints is a vacuous success and does not disturb
// the all-pairs cache.
func (e *Engine) RemoveEdge(from, to string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	src, okFrom := e.nodes[from]
	dst, okTo := e.nodes[to]
	if !okFrom || !okTo {
		return false
	}

	key := edgeKey{from: from, to: to}
	if _, ok := e.edges[key]; !ok {
		return true
	}
	delete(e.edges, key)
	delete(src.out, to)
	delete(dst.in, from)
	e.dirty = true
	return true
}

// NodeCount returns the number of nodes.
func (e *Engine) NodeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.nodes)
}

// EdgeCount returns the number of edges.
func (e *Engine) EdgeCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.edges)
}

// ShortestPath returns the cost of the cheapest directed path from -> to.
//
// Returns MissingEndpoint if either endpoint is absent, Unreachable if no
// directed path exists, and 0 when from == to.
func (e *Engine) ShortestPath(from, to string) int {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if _, ok := e.nodes[from]; !ok {
		return MissingEndpoint
	}
	if _, ok := e.nodes[to]; !ok {
		return MissingEndpoint
	}
	return e.dijkstra(from, to)
}

// CloserThan returns the names of all nodes strictly closer than limit to
// the given node, following outgoing edges, excluding the node itself,
// sorted ascending.
//
// Returns nil iff the node is absent; an empty non-nil slice means the
// node exists but nothing is within the bound. The distinction matters to
// callers: nil maps to a protocol error, empty to an empty reply line.
func (e *Engine) CloserThan(limit int, name string) []string {
	// Fast path: cache is clean, answer under the read lock.
	e.mu.RLock()
	if !e.dirty && e.cache != nil {
		result, ok := e.cache.closerThan(limit, name)
		e.mu.RUnlock()
		if !ok {
			return nil
		}
		return result
	}
	e.mu.RUnlock()

	// Slow path: rebuild under the write lock. Another writer may have
	// slipped in between the locks, so re-check dirty after acquiring.
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dirty || e.cache == nil {
		e.cache = e.buildAllPairs()
		e.dirty = false
	}
	result, ok := e.cache.closerThan(limit, name)
	if !ok {
		return nil
	}
	return result
}
