// Package util
//
// This file provides a priority queue with direct key access, used by the
// main-view merge loop to replay committed change sets in sequence order.
//
// The implementation combines a binary heap with a hash map:
//
//   - O(log n) for priority operations (Push, Pop, Update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// The merge loop buffers change sets that arrive ahead of their turn and
// pops them as soon as the next expected sequence number reaches the top of
// the heap. Direct key access lets it drop a buffered entry when the
// producing context is torn down.
//
// Note: this implementation is not thread-safe; the single consumer that
// owns the heap must apply external synchronization if it shares it.
package util

import (
	"container/heap"
	"strconv"
)

// item is one entry of the heap: a uint64 key for identification and a
// uint64 priority used for ordering (min-heap)
type item struct {
	Key      uint64 // unique identifier for the item
	Priority uint64 // heap ordering value
	index    int    // index in the heap, maintained by the heap package
}

func (i *item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatUint(i.Priority, 10) + "}"
}

// MapHeap implements a min-priority queue with both heap operations and
// key-based access
type MapHeap struct {
	items    []*item          // the actual heap slice
	itemsMap map[uint64]*item // map for O(1) access by key
}

// NewMapHeap creates a new empty MapHeap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*item, 0),
		itemsMap: make(map[uint64]*item),
	}
}

// Len returns the number of items in the heap (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less compares items by priority (part of heap.Interface).
// Lowest priority first: the merge loop wants the smallest pending sequence.
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface)
func (h *MapHeap) Push(x interface{}) {
	n := len(h.items)
	item := x.(*item)
	item.index = n
	h.items = append(h.items, item)
	h.itemsMap[item.Key] = item
}

// Pop removes and returns the minimum item (part of heap.Interface)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // avoid memory leak
	item.index = -1 // for safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.Key)
	return item
}

// AddItem adds a new item to the heap or updates the priority of an existing one
func (h *MapHeap) AddItem(key, priority uint64) {
	if item, exists := h.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(h, item.index)
		return
	}

	item := &item{
		Key:      key,
		Priority: priority,
	}
	heap.Push(h, item)
}

// RemoveByKey removes an item by its key.
// Returns the removed priority and whether the key existed.
func (h *MapHeap) RemoveByKey(key uint64) (uint64, bool) {
	item, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(h, item.index)
	return item.Priority, true
}

// Peek returns the minimum item without removing it
func (h *MapHeap) Peek() (*item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// PopMin removes and returns the minimum item
func (h *MapHeap) PopMin() (*item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(h).(*item), true
}

// Contains checks if a key exists in the heap
func (h *MapHeap) Contains(key uint64) bool {
	_, exists := h.itemsMap[key]
	return exists
}
