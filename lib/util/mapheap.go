// Package util
//
// This file provides a specialized priority queue for clock driven expiry.
//
// The implementation combines a binary heap with a hash map to provide both
// efficient priority-based operations and key-based access. The time policy
// of the ref package registers every time cell here with its last-touch
// watermark as priority, so a clock advance only has to look at the cells
// whose watermark lies behind the new clock value.
//
// Time Complexity:
//   - O(log n) for priority operations (Push, Pop, Update)
//   - O(1) for key-based lookups and existence checks
//   - O(log n) for key-based removal
//
// Concurrency Considerations:
//   - This implementation is not thread-safe
//   - For concurrent use, external synchronization should be applied
//
// Example usage:
//
//	h := NewMapHeap()
//
//	// register cells with their watermark
//	h.AddItem(1001, watermark1)
//	h.AddItem(1002, watermark2)
//
//	// visit every cell behind the clock
//	for {
//	    item, ok := h.Peek()
//	    if !ok || item.Priority >= clock {
//	        break
//	    }
//	    h.PopItem()
//	}
package util

import (
	"container/heap"
	"strconv"
)

// Item is an entry of the MapHeap
// with a uint64 key for identification and an int64 priority (a clock value)
type Item struct {
	Key      uint64 // Unique identifier for the item
	Priority int64  // Priority used for ordering in the heap (lowest first)
	index    int    // Index in the heap, maintained by heap package
}

func (i *Item) String() string {
	return "{Key: " + strconv.FormatUint(i.Key, 10) + ", Priority: " + strconv.FormatInt(i.Priority, 10) + "}"
}

// MapHeap is a min-heap by priority with key-based access
type MapHeap struct {
	items    []*Item          // The actual heap slice
	itemsMap map[uint64]*Item // Map for O(1) access by key
}

// NewMapHeap creates a new, empty heap
func NewMapHeap() *MapHeap {
	return &MapHeap{
		items:    make([]*Item, 0),
		itemsMap: make(map[uint64]*Item),
	}
}

// Len returns the number of items in the queue (part of heap.Interface)
func (h *MapHeap) Len() int { return len(h.items) }

// Less compares items by priority (part of heap.Interface)
func (h *MapHeap) Less(i, j int) bool {
	return h.items[i].Priority < h.items[j].Priority
}

// Swap exchanges items at positions i and j (part of heap.Interface)
func (h *MapHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

// Push adds an item to the heap (part of heap.Interface, use AddItem instead)
func (h *MapHeap) Push(x interface{}) {
	n := len(h.items)
	item := x.(*Item)
	item.index = n
	h.items = append(h.items, item)
	h.itemsMap[item.Key] = item
}

// Pop removes and returns the last item (part of heap.Interface, use PopItem instead)
func (h *MapHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	item := old[n-1]
	old[n-1] = nil  // Avoid memory leak
	item.index = -1 // For safety
	h.items = old[:n-1]
	delete(h.itemsMap, item.Key)
	return item
}

// AddItem adds a new item or updates the priority of an existing one
func (h *MapHeap) AddItem(key uint64, priority int64) {
	// Check if item already exists
	if item, exists := h.itemsMap[key]; exists {
		item.Priority = priority
		heap.Fix(h, item.index)
		return
	}

	heap.Push(h, &Item{
		Key:      key,
		Priority: priority,
	})
}

// PopItem removes and returns the item with the lowest priority
func (h *MapHeap) PopItem() (*Item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return heap.Pop(h).(*Item), true
}

// RemoveByKey removes an item by its key and returns its priority
func (h *MapHeap) RemoveByKey(key uint64) (int64, bool) {
	item, exists := h.itemsMap[key]
	if !exists {
		return 0, false
	}

	heap.Remove(h, item.index)
	return item.Priority, true
}

// Peek returns the lowest priority item without removing it
func (h *MapHeap) Peek() (*Item, bool) {
	if len(h.items) == 0 {
		return nil, false
	}
	return h.items[0], true
}

// Contains checks if a key exists in the queue
func (h *MapHeap) Contains(key uint64) bool {
	_, exists := h.itemsMap[key]
	return exists
}

// GetByKey retrieves an item by its key without removing it
func (h *MapHeap) GetByKey(key uint64) (*Item, bool) {
	item, exists := h.itemsMap[key]
	return item, exists
}
