package pipeline

import "container/list"

// txLRU is the session-scoped set of already-notified transaction hashes.
// Restart tolerance is intentionally not a goal; the persisted cursor keeps
// the indexer from re-serving old batches across restarts.
type txLRU struct {
	capacity int
	order    *list.List
	index    map[string]*list.Element
}

func newTxLRU(capacity int) *txLRU {
	if capacity <= 0 {
		capacity = 1000
	}
	return &txLRU{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[string]*list.Element, capacity),
	}
}

func (l *txLRU) Contains(txHash string) bool {
	_, ok := l.index[txHash]
	return ok
}

// Add records a hash, evicting the oldest entry on overflow.
func (l *txLRU) Add(txHash string) {
	if el, ok := l.index[txHash]; ok {
		l.order.MoveToBack(el)
		return
	}
	l.index[txHash] = l.order.PushBack(txHash)
	if l.order.Len() > l.capacity {
		oldest := l.order.Front()
		l.order.Remove(oldest)
		delete(l.index, oldest.Value.(string))
	}
}

func (l *txLRU) Len() int {
	return l.order.Len()
}
