package sync

import "sync"

// TypedSyncMap is a thin generic wrapper around sync.Map so that
// callers do not need to type-assert every value they load.
type TypedSyncMap[K comparable, V any] struct {
	m sync.Map
}

func (m *TypedSyncMap[K, V]) Delete(key K) { m.m.Delete(key) }

func (m *TypedSyncMap[K, V]) Load(key K) (V, bool) {
	v, ok := m.m.Load(key)
	if !ok {
		return *new(V), ok
	}

	if vv, ok := v.(V); ok {
		return vv, true
	}
	return *new(V), false
}

func (m *TypedSyncMap[K, V]) LoadAndDelete(key K) (V, bool) {
	v, loaded := m.m.LoadAndDelete(key)
	if !loaded {
		return *new(V), loaded
	}

	if vv, ok := v.(V); ok {
		return vv, loaded
	}
	return *new(V), loaded
}

// Swap stores the value for the key and returns the previous
// value (if any). loaded reports whether a previous value existed.
func (m *TypedSyncMap[K, V]) Swap(key K, value V) (V, bool) {
	prev, loaded := m.m.Swap(key, value)
	if !loaded {
		return *new(V), false
	}

	if pv, ok := prev.(V); ok {
		return pv, true
	}
	return *new(V), true
}

// CompareAndDelete deletes the entry for key only if it is
// currently mapped to old. V must be a comparable type.
func (m *TypedSyncMap[K, V]) CompareAndDelete(key K, old V) bool {
	return m.m.CompareAndDelete(key, old)
}

// Range calls fn for each key/value in the map. If fn returns
// false, iteration stops.
func (m *TypedSyncMap[K, V]) Range(fn func(K, V) bool) {
	m.m.Range(func(k, v any) bool {
		kk, ok := k.(K)
		if !ok {
			return true
		}
		vv, ok := v.(V)
		if !ok {
			return true
		}

		return fn(kk, vv)
	})
}

func (m *TypedSyncMap[K, V]) Store(key K, value V) { m.m.Store(key, value) }
