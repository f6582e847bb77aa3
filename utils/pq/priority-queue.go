// Package pq provides the worklist of the fixpoint iterator: a priority
// queue without duplicates where elements are ordered by an integer rank.
package pq

import "container/heap"

type entry[T any] struct {
	x    T
	rank int
	// seq orders elements of equal rank by insertion.
	seq uint64
}

type entries[T any] []entry[T]

func (h entries[T]) Len() int      { return len(h) }
func (h entries[T]) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h entries[T]) Less(i, j int) bool {
	if h[i].rank != h[j].rank {
		return h[i].rank < h[j].rank
	}
	return h[i].seq < h[j].seq
}

func (h *entries[T]) Push(x any) { *h = append(*h, x.(entry[T])) }

func (h *entries[T]) Pop() any {
	old := *h
	e := old[len(old)-1]
	*h = old[:len(old)-1]
	return e
}

var _ heap.Interface = (*entries[int])(nil)

// PriorityQueue yields its elements lowest rank first. Adding an element
// that is already queued is a no-op.
type PriorityQueue[T comparable] struct {
	heap   entries[T]
	rank   func(T) int
	queued map[T]bool
	seq    uint64
}

// ByRank creates an empty priority queue ranking elements with the given
// function. Ranks are computed once, when an element is added.
func ByRank[T comparable](rank func(T) int) *PriorityQueue[T] {
	return &PriorityQueue[T]{
		rank:   rank,
		queued: make(map[T]bool),
	}
}

func (p *PriorityQueue[T]) IsEmpty() bool { return len(p.heap) == 0 }

func (p *PriorityQueue[T]) Len() int { return len(p.heap) }

// GetNext removes and returns the element of lowest rank.
func (p *PriorityQueue[T]) GetNext() T {
	e := heap.Pop(&p.heap).(entry[T])
	delete(p.queued, e.x)
	return e.x
}

// Add queues x, if not already queued.
func (p *PriorityQueue[T]) Add(x T) {
	if p.queued[x] {
		return
	}
	p.queued[x] = true
	p.seq++
	heap.Push(&p.heap, entry[T]{x: x, rank: p.rank(x), seq: p.seq})
}
