package assets

import (
	"sync"

	"github.com/spaghettifunk/frameq/engine/containers"
)

// table is one resource table: a slot map plus a name cache behind a
// read/write lock. Lookups take the read lock, mutations the write lock.
type table[T any] struct {
	mu    sync.RWMutex
	names map[string]containers.Handle
	items *containers.SlotMap[T]
}

func newTable[T any]() *table[T] {
	return &table[T]{
		names: make(map[string]containers.Handle),
		items: containers.NewSlotMap[T](64),
	}
}

func (t *table[T]) get(h containers.Handle) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.items.Get(h)
}

func (t *table[T]) contains(h containers.Handle) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.items.Contains(h)
}

func (t *table[T]) lookup(name string) (containers.Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.names[name]
	return h, ok
}

// insert stores v, registering it under name when name is not empty. An
// existing name entry is overwritten.
func (t *table[T]) insert(name string, v T) containers.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	h := t.items.Insert(v)
	if name != "" {
		t.names[name] = h
	}
	return h
}

func (t *table[T]) replace(h containers.Handle, v T) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.items.Replace(h, v)
}

// remove drops h and every name that points at it.
func (t *table[T]) remove(h containers.Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.items.Remove(h)
	if ok {
		for name, nh := range t.names {
			if nh == h {
				delete(t.names, name)
			}
		}
	}
	return v, ok
}

func (t *table[T]) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.items.Len()
}

// drain removes every entry and returns the values.
func (t *table[T]) drain() []T {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []T
	t.items.Each(func(_ containers.Handle, v T) bool {
		out = append(out, v)
		return true
	})
	t.items = containers.NewSlotMap[T](64)
	t.names = make(map[string]containers.Handle)
	return out
}
