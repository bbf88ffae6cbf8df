// Package keylock serializes work per key using a fixed set of mutex shards.
package keylock

import (
	"hash/fnv"
	"sync"
)

const DefaultShards = 256

type Locker struct {
	shards []sync.Mutex
}

func New(shards int) *Locker {
	if shards <= 0 {
		shards = DefaultShards
	}
	return &Locker{shards: make([]sync.Mutex, shards)}
}

// Lock blocks until key's shard is held and returns its unlock func.
func (l *Locker) Lock(key string) func() {
	mu := &l.shards[l.shard(key)]
	mu.Lock()
	return mu.Unlock
}

func (l *Locker) shard(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(l.shards)))
}
