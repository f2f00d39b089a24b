package scan

import "github.com/spaolacci/murmur3"

// frontierItem is one pending page visit. The seed sits at depth 0;
// depth never decreases along the walk.
type frontierItem struct {
	url   string
	depth int
}

// frontier is the FIFO of discovered-but-unvisited URLs. Only the
// scheduling loop touches it, so it carries no lock.
type frontier struct {
	items []frontierItem
}

// Push appends items in discovery order.
func (f *frontier) Push(items ...frontierItem) {
	f.items = append(f.items, items...)
}

// Pop removes and returns the oldest item.
func (f *frontier) Pop() (frontierItem, bool) {
	if len(f.items) == 0 {
		return frontierItem{}, false
	}
	item := f.items[0]
	f.items = f.items[1:]
	return item, true
}

// Len reports how many items are queued.
func (f *frontier) Len() int { return len(f.items) }

// visitedSet records every URL handed to a worker, keyed by the
// normalized form. Alongside the string map it keeps a murmur3 hash
// set; a miss there is definitive, so most membership probes never
// compare string keys. Loop-owned, no lock.
type visitedSet struct {
	urls   map[string]struct{}
	hashes map[uint64]struct{}
}

func newVisitedSet() *visitedSet {
	return &visitedSet{
		urls:   make(map[string]struct{}),
		hashes: make(map[uint64]struct{}),
	}
}

// Add marks url visited.
func (v *visitedSet) Add(url string) {
	v.urls[url] = struct{}{}
	v.hashes[murmur3.Sum64([]byte(url))] = struct{}{}
}

// Has reports whether url was already visited. Only a hash hit falls
// through to the string map.
func (v *visitedSet) Has(url string) bool {
	if _, ok := v.hashes[murmur3.Sum64([]byte(url))]; !ok {
		return false
	}
	_, ok := v.urls[url]
	return ok
}

// Len reports how many URLs were visited.
func (v *visitedSet) Len() int { return len(v.urls) }
