package sequence

import "container/heap"

// Item is a handle to a value stored in a PriorityQueue. It stays valid for
// Fix and Remove until the value is popped or removed.
type Item[T any] struct {
	Value T
	index int
}

// Queued reports whether the item is still held by its queue.
func (i *Item[T]) Queued() bool {
	return i.index >= 0
}

type priorityQueue[T any] struct {
	items []*Item[T]
	less  func(a, b T) bool
}

func (pq *priorityQueue[T]) Len() int {
	return len(pq.items)
}

func (pq *priorityQueue[T]) Less(i, j int) bool {
	return pq.less(pq.items[i].Value, pq.items[j].Value)
}

func (pq *priorityQueue[T]) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
	pq.items[i].index = i
	pq.items[j].index = j
}

func (pq *priorityQueue[T]) Push(x any) {
	item := x.(*Item[T])
	item.index = len(pq.items)
	pq.items = append(pq.items, item)
}

func (pq *priorityQueue[T]) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	pq.items = old[0 : n-1]
	return item
}

// PriorityQueue is a binary heap ordered by less: the value for which less
// holds against every other value is dequeued first. Not safe for concurrent use.
type PriorityQueue[T any] struct {
	pq priorityQueue[T]
}

func NewPriorityQueue[T any](less func(a, b T) bool) *PriorityQueue[T] {
	pq := &PriorityQueue[T]{pq: priorityQueue[T]{less: less}}
	heap.Init(&pq.pq)
	return pq
}

func (pq *PriorityQueue[T]) Enqueue(value T) *Item[T] {
	item := &Item[T]{Value: value}
	heap.Push(&pq.pq, item)
	return item
}

// Requeue pushes an item previously popped from this queue back in.
func (pq *PriorityQueue[T]) Requeue(item *Item[T]) {
	if item.Queued() {
		return
	}
	heap.Push(&pq.pq, item)
}

func (pq *PriorityQueue[T]) Dequeue() (T, bool) {
	if pq.pq.Len() == 0 {
		var zero T
		return zero, false
	}
	item := heap.Pop(&pq.pq).(*Item[T])
	return item.Value, true
}

func (pq *PriorityQueue[T]) Peek() (T, bool) {
	if pq.pq.Len() == 0 {
		var zero T
		return zero, false
	}
	return pq.pq.items[0].Value, true
}

// Fix restores ordering after the item's value changed in a way that affects less.
func (pq *PriorityQueue[T]) Fix(item *Item[T]) {
	if !item.Queued() {
		return
	}
	heap.Fix(&pq.pq, item.index)
}

// Remove drops the item from the queue. It reports false if it was not queued.
func (pq *PriorityQueue[T]) Remove(item *Item[T]) bool {
	if !item.Queued() || item.index >= pq.pq.Len() || pq.pq.items[item.index] != item {
		return false
	}
	heap.Remove(&pq.pq, item.index)
	return true
}

func (pq *PriorityQueue[T]) Len() int {
	return pq.pq.Len()
}

func (pq *PriorityQueue[T]) IsEmpty() bool {
	return pq.pq.Len() == 0
}
