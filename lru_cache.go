package httpcore

// lruCache is a doubly-linked-list LRU keyed by Question, used by DnsCache
// to support a bounded capacity with least-recently-used eviction. Adapted
// from the teacher's lru-cache.go (which keys on dns.Question plus an
// EDNS0 client-subnet/DO discriminator); this cache only needs the bare
// question since httpcore's DnsCache has no ECS or DNSSEC dimension.
type lruCache struct {
	maxItems   int
	items      map[Question]*lruItem
	head, tail *lruItem
}

type lruItem struct {
	key        Question
	entry      *dnsCacheEntry
	prev, next *lruItem
}

func newLRUCache(capacity int) *lruCache {
	head := new(lruItem)
	tail := new(lruItem)
	head.next = tail
	tail.prev = head
	return &lruCache{
		maxItems: capacity,
		items:    make(map[Question]*lruItem),
		head:     head,
		tail:     tail,
	}
}

// add inserts or updates an entry, evicting the least-recently-used item if
// doing so exceeds capacity. It returns the Question evicted as a result,
// if any.
func (c *lruCache) add(key Question, entry *dnsCacheEntry) (evicted *Question) {
	if item := c.touch(key); item != nil {
		item.entry = entry
		return nil
	}
	item := &lruItem{
		key:   key,
		entry: entry,
		next:  c.head.next,
		prev:  c.head,
	}
	c.head.next.prev = item
	c.head.next = item
	c.items[key] = item
	return c.resize()
}

// touch moves an existing item to the front (most-recently-used position)
// and returns it, or nil if the key isn't present.
func (c *lruCache) touch(key Question) *lruItem {
	item := c.items[key]
	if item == nil {
		return nil
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
	return item
}

func (c *lruCache) get(key Question) *dnsCacheEntry {
	item := c.touch(key)
	if item == nil {
		return nil
	}
	return item.entry
}

func (c *lruCache) delete(key Question) {
	item := c.items[key]
	if item == nil {
		return
	}
	item.prev.next = item.next
	item.next.prev = item.prev
	delete(c.items, key)
}

// resize shrinks the cache down to maxItems, returning the evicted
// Question when capacity forced a removal (maxItems <= 0 means unlimited).
func (c *lruCache) resize() *Question {
	if c.maxItems <= 0 || len(c.items) <= c.maxItems {
		return nil
	}
	item := c.tail.prev
	item.prev.next = c.tail
	c.tail.prev = item.prev
	delete(c.items, item.key)
	k := item.key
	return &k
}

func (c *lruCache) reset() {
	head := new(lruItem)
	tail := new(lruItem)
	head.next = tail
	tail.prev = head
	c.head = head
	c.tail = tail
	c.items = make(map[Question]*lruItem)
}

// deleteFunc iterates from most- to least-recently-used and removes any
// item for which f returns true.
func (c *lruCache) deleteFunc(f func(Question, *dnsCacheEntry) bool) {
	item := c.head.next
	for item != c.tail {
		next := item.next
		if f(item.key, item.entry) {
			item.prev.next = item.next
			item.next.prev = item.prev
			delete(c.items, item.key)
		}
		item = next
	}
}

func (c *lruCache) size() int {
	return len(c.items)
}
