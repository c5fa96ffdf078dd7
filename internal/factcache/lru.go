package factcache

import "container/list"

// lruTier is a non-thread-safe bounded LRU map; Cache serializes access.
type lruTier struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

type lruEntry struct {
	key   string
	value Entry
}

func newLRUTier(capacity int) *lruTier {
	if capacity <= 0 {
		capacity = 1024
	}
	return &lruTier{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (l *lruTier) get(key string) (Entry, bool) {
	elem, ok := l.index[key]
	if !ok {
		return Entry{}, false
	}
	l.order.MoveToFront(elem)
	return elem.Value.(*lruEntry).value, true
}

func (l *lruTier) put(key string, value Entry) {
	if elem, ok := l.index[key]; ok {
		elem.Value.(*lruEntry).value = value
		l.order.MoveToFront(elem)
		return
	}
	l.index[key] = l.order.PushFront(&lruEntry{key: key, value: value})
	if l.order.Len() > l.capacity {
		oldest := l.order.Back()
		if oldest != nil {
			l.order.Remove(oldest)
			delete(l.index, oldest.Value.(*lruEntry).key)
		}
	}
}

func (l *lruTier) len() int {
	return l.order.Len()
}
