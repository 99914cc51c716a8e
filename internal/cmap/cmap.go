// Package cmap provides a sharded concurrent map keyed by record id.
//
// Mutations on the same key serialize on the key's shard lock; mutations on
// keys in different shards proceed concurrently. Reads take a shard read
// lock and return copies of the stored value.
package cmap

import (
	"hash/maphash"
	"sync"
)

const shardCount = 32

type shard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// Map is a sharded map safe for concurrent use.
type Map[K comparable, V any] struct {
	shards [shardCount]shard[K, V]
	hash   func(K) uint64
}

// New creates a Map using the given key hash function.
func New[K comparable, V any](hash func(K) uint64) *Map[K, V] {
	m := &Map[K, V]{hash: hash}
	for i := range m.shards {
		m.shards[i].items = make(map[K]V)
	}
	return m
}

var seed = maphash.MakeSeed()

// NewInt64 creates a Map keyed by int64 ids.
func NewInt64[V any]() *Map[int64, V] {
	return New[int64, V](func(k int64) uint64 {
		return maphash.Comparable(seed, k)
	})
}

// NewString creates a Map keyed by strings.
func NewString[V any]() *Map[string, V] {
	return New[string, V](func(k string) uint64 {
		return maphash.String(seed, k)
	})
}

func (m *Map[K, V]) shardFor(key K) *shard[K, V] {
	return &m.shards[m.hash(key)%shardCount]
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	s := m.shardFor(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.items[key]
	return v, ok
}

// Set stores value under key, replacing any existing value.
func (m *Map[K, V]) Set(key K, value V) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = value
}

// Delete removes key. It reports whether the key was present.
func (m *Map[K, V]) Delete(key K) bool {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[key]
	delete(s.items, key)
	return ok
}

// Update applies fn to the current value under key while holding the
// shard's write lock. fn receives the current value and whether it exists,
// and returns the new value and whether to store it. A false store with an
// existing key leaves the entry unchanged.
func (m *Map[K, V]) Update(key K, fn func(cur V, exists bool) (V, bool)) {
	s := m.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[key]
	if next, store := fn(cur, ok); store {
		s.items[key] = next
	}
}

// Len returns the total number of entries.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		n += len(s.items)
		s.mu.RUnlock()
	}
	return n
}

// Range calls fn for every entry until fn returns false. Each shard is
// copied under its read lock before iteration, so fn runs without holding
// any lock and may call back into the map.
func (m *Map[K, V]) Range(fn func(key K, value V) bool) {
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.RLock()
		entries := make(map[K]V, len(s.items))
		for k, v := range s.items {
			entries[k] = v
		}
		s.mu.RUnlock()
		for k, v := range entries {
			if !fn(k, v) {
				return
			}
		}
	}
}

// Values returns a copy of all stored values in unspecified order.
func (m *Map[K, V]) Values() []V {
	out := make([]V, 0, m.Len())
	m.Range(func(_ K, v V) bool {
		out = append(out, v)
		return true
	})
	return out
}
