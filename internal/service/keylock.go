package service

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// keyLock 分段互斥锁：同一 key 的读改写串行，不同 key 大概率并行
type keyLock struct {
	stripes []sync.Mutex
}

func newKeyLock(stripes int) *keyLock {
	if stripes <= 0 {
		stripes = 256
	}
	return &keyLock{stripes: make([]sync.Mutex, stripes)}
}

// Lock returns the unlock func. Never hold two keys at once: stripes are
// shared, so nested locking can deadlock.
func (l *keyLock) Lock(key string) func() {
	mu := &l.stripes[xxhash.Sum64String(key)%uint64(len(l.stripes))]
	mu.Lock()
	return mu.Unlock
}
