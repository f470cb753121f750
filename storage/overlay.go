package storage

import "sync"

// Overlay buffers writes on top of a base Database so a whole call can be
// committed or discarded as one unit. Reads consult the buffer first and fall
// through to the base. Nothing reaches the base until Commit.
//
// Overlay is not safe for concurrent use with other writers of the same base;
// the ledger serializes entry points, which is the intended usage.
type Overlay struct {
	mu     sync.RWMutex
	base   Database
	writes map[string][]byte
}

func NewOverlay(base Database) *Overlay {
	return &Overlay{
		base:   base,
		writes: make(map[string][]byte),
	}
}

func (o *Overlay) Put(key []byte, value []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes[string(key)] = append([]byte(nil), value...)
	return nil
}

func (o *Overlay) Get(key []byte) ([]byte, error) {
	o.mu.RLock()
	if value, ok := o.writes[string(key)]; ok {
		o.mu.RUnlock()
		return append([]byte(nil), value...), nil
	}
	o.mu.RUnlock()
	return o.base.Get(key)
}

func (o *Overlay) Close() {}

// Commit flushes buffered writes to the base database. On error the buffer is
// left intact so the caller can retry or discard.
func (o *Overlay) Commit() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for key, value := range o.writes {
		if err := o.base.Put([]byte(key), value); err != nil {
			return err
		}
	}
	o.writes = make(map[string][]byte)
	return nil
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.writes = make(map[string][]byte)
}

// Dirty reports whether the overlay holds uncommitted writes.
func (o *Overlay) Dirty() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.writes) > 0
}
