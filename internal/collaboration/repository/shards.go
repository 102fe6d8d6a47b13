package repository

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 256

type shard[V any] struct {
	mu    sync.RWMutex
	items map[string]V
}

// shardedMap spreads keys over independently locked shards so that
// operations on unrelated keys rarely touch the same mutex.
type shardedMap[V any] struct {
	shards [shardCount]*shard[V]
}

func newShardedMap[V any]() *shardedMap[V] {
	m := &shardedMap[V]{}
	for i := range m.shards {
		m.shards[i] = &shard[V]{items: make(map[string]V)}
	}
	return m
}

func (m *shardedMap[V]) shardFor(key string) *shard[V] {
	return m.shards[xxhash.Sum64String(key)%shardCount]
}

// collect returns copies of the values matching keep, one shard at a time.
func (m *shardedMap[V]) collect(keep func(V) bool) []V {
	var out []V
	for _, s := range m.shards {
		s.mu.RLock()
		for _, v := range s.items {
			if keep(v) {
				out = append(out, v)
			}
		}
		s.mu.RUnlock()
	}
	return out
}

func (m *shardedMap[V]) deleteWhere(match func(V) bool) int64 {
	var deleted int64
	for _, s := range m.shards {
		s.mu.Lock()
		for k, v := range s.items {
			if match(v) {
				delete(s.items, k)
				deleted++
			}
		}
		s.mu.Unlock()
	}
	return deleted
}
