package graph

import "container/heap"

// pqItem is a tentative distance entry in the Dijkstra frontier.
type pqItem struct {
	name string
	dist int64
}

// distHeap is a min-heap of pqItem ordered by tentative distance.
type distHeap []pqItem

func (h distHeap) Len() int           { return len(h) }
func (h distHeap) Less(i, j int) bool { return h[i].dist < h[j].dist }
func (h distHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *distHeap) Push(x any)        { *h = append(*h, x.(pqItem)) }
func (h *distHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// dijkstra computes the single-source shortest distance from `from` to
// `to`, relaxing forward edges only. Decrease-key is implemented by
// pushing a duplicate entry and skipping stale pops on the way out.
//
// Both endpoints must exist. Caller must hold at least the read lock.
func (e *Engine) dijkstra(from, to string) int {
	dist := map[string]int64{from: 0}
	done := make(map[string]struct{})

	frontier := &distHeap{{name: from, dist: 0}}
	heap.Init(frontier)

	for frontier.Len() > 0 {
		item := heap.Pop(frontier).(pqItem)
		if _, ok := done[item.name]; ok {
			// Stale duplicate from a lazy decrease-key.
			continue
		}
		done[item.name] = struct{}{}

		for succ, weight := range e.nodes[item.name].out {
			candidate := item.dist + int64(weight)
			if current, ok := dist[succ]; !ok || candidate < current {
				dist[succ] = candidate
				heap.Push(frontier, pqItem{name: succ, dist: candidate})
			}
		}
	}

	d, ok := dist[to]
	if !ok {
		return Unreachable
	}
	return int(d)
}
