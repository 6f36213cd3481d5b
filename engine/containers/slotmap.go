package containers

import "fmt"

// Handle references a slot in a SlotMap. The zero Handle is never valid:
// generations start at 1 so a default-initialised handle always misses.
type Handle struct {
	Index      uint32
	Generation uint32
}

func (h Handle) IsValid() bool {
	return h.Generation != 0
}

func (h Handle) String() string {
	return fmt.Sprintf("%d:%d", h.Index, h.Generation)
}

type slot[T any] struct {
	value      T
	generation uint32
	occupied   bool
}

// SlotMap stores values behind generation-checked handles. Removing a value
// bumps the slot generation so every outstanding handle to it goes stale.
// It is not safe for concurrent use; callers guard it with their own lock.
type SlotMap[T any] struct {
	slots []slot[T]
	free  []uint32
	count int
}

func NewSlotMap[T any](capacity int) *SlotMap[T] {
	return &SlotMap[T]{
		slots: make([]slot[T], 0, capacity),
	}
}

// Insert stores value in the first free slot, growing the map if none is free.
func (sm *SlotMap[T]) Insert(value T) Handle {
	sm.count++
	if n := len(sm.free); n > 0 {
		idx := sm.free[n-1]
		sm.free = sm.free[:n-1]
		s := &sm.slots[idx]
		s.value = value
		s.occupied = true
		return Handle{Index: idx, Generation: s.generation}
	}
	sm.slots = append(sm.slots, slot[T]{value: value, generation: 1, occupied: true})
	return Handle{Index: uint32(len(sm.slots) - 1), Generation: 1}
}

func (sm *SlotMap[T]) Get(h Handle) (T, bool) {
	if !sm.Contains(h) {
		var zero T
		return zero, false
	}
	return sm.slots[h.Index].value, true
}

func (sm *SlotMap[T]) Contains(h Handle) bool {
	if !h.IsValid() || int(h.Index) >= len(sm.slots) {
		return false
	}
	s := sm.slots[h.Index]
	return s.occupied && s.generation == h.Generation
}

// Replace swaps the value stored under h. The handle stays valid.
func (sm *SlotMap[T]) Replace(h Handle, value T) (T, bool) {
	var old T
	if !sm.Contains(h) {
		return old, false
	}
	old = sm.slots[h.Index].value
	sm.slots[h.Index].value = value
	return old, true
}

func (sm *SlotMap[T]) Remove(h Handle) (T, bool) {
	var zero T
	if !sm.Contains(h) {
		return zero, false
	}
	s := &sm.slots[h.Index]
	old := s.value
	s.value = zero
	s.occupied = false
	s.generation++
	// skip 0 so a wrapped generation never matches the zero handle
	if s.generation == 0 {
		s.generation = 1
	}
	sm.free = append(sm.free, h.Index)
	sm.count--
	return old, true
}

func (sm *SlotMap[T]) Len() int {
	return sm.count
}

// Each calls fn for every live entry in slot order until fn returns false.
func (sm *SlotMap[T]) Each(fn func(h Handle, value T) bool) {
	for i := range sm.slots {
		s := sm.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Handle{Index: uint32(i), Generation: s.generation}, s.value) {
			return
		}
	}
}
