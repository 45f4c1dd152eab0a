// Package bufpool provides reusable byte slices for streaming file bodies
// and draining connections, reducing allocation churn when many workers
// serve files concurrently.
//
// Buffers come in three size classes:
//   - Small (4KB): draining unread request bytes before close
//   - Medium (16KB): streaming file bodies
//   - Large (64KB): bulk copies
//
// Requests above the large class are allocated directly and never pooled.
//
// Thread Safety:
// All functions are safe for concurrent use.
package bufpool

import (
	"sync"
)

const (
	SmallSize  = 4 << 10  // 4KB
	MediumSize = 16 << 10 // 16KB
	LargeSize  = 64 << 10 // 64KB
)

// pool manages a set of byte slice pools organized by size class.
type pool struct {
	small  sync.Pool
	medium sync.Pool
	large  sync.Pool
}

func sizedPool(size int) sync.Pool {
	return sync.Pool{
		New: func() any {
			buf := make([]byte, size)
			return &buf
		},
	}
}

var global = &pool{
	small:  sizedPool(SmallSize),
	medium: sizedPool(MediumSize),
	large:  sizedPool(LargeSize),
}

// Get returns a byte slice of length size. Its capacity may be larger, to
// match the size class it was taken from.
//
// The caller should hand the slice back with Put once done with it.
func Get(size int) []byte {
	return global.get(size)
}

// Put returns a buffer obtained from Get. Buffers whose capacity does not
// match a size class are left to the garbage collector.
func Put(buf []byte) {
	global.put(buf)
}

func (p *pool) get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= SmallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= MediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= LargeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		return make([]byte, size)
	}

	return (*bufPtr)[:size]
}

func (p *pool) put(buf []byte) {
	if buf == nil {
		return
	}

	full := buf[:cap(buf)]
	switch cap(buf) {
	case SmallSize:
		p.small.Put(&full)
	case MediumSize:
		p.medium.Put(&full)
	case LargeSize:
		p.large.Put(&full)
	}
}
