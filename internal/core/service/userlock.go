package service

import (
	"hash/fnv"
	"sync"
)

const lockShards = 64

// userLock serializes mutations per user with a fixed set of sharded mutexes.
// Two mutations on the same user's timer can never interleave; mutations on
// different users contend only on a shard collision.
type userLock struct {
	shards [lockShards]sync.Mutex
}

func newUserLock() *userLock {
	return &userLock{}
}

func (l *userLock) lock(userID string) func() {
	m := &l.shards[shardIndex(userID)]
	m.Lock()
	return m.Unlock
}

// shardIndex maps a user ID deterministically to a shard.
func shardIndex(userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32()) % lockShards
}
