// Package bufpool provides pooled scratch buffers for encode/decode workspaces.
package bufpool

import "sync"

var pool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 0, 4096)
	},
}

// Get returns a zero-length slice with at least size bytes of capacity.
func Get(size int) []byte {
	buf := pool.Get().([]byte)
	if cap(buf) < size {
		return make([]byte, 0, size*2)
	}
	return buf[:0]
}

// Release returns buf to the pool.
func Release(buf []byte) {
	//nolint:staticcheck // SA6002: slice descriptor copy is acceptable for sync.Pool
	pool.Put(buf[:0])
}
