package interceptor

import (
	"sync"
)

// bufferPool recycles MTU-sized buffers used to assemble outgoing compound
// packets. This avoids an allocation per flush on busy connections.
type bufferPool struct {
	size int
	pool sync.Pool
}

func newBufferPool(size int) *bufferPool {
	p := &bufferPool{size: size}
	p.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}
	return p
}

// get retrieves a buffer of exactly the pool's size.
func (p *bufferPool) get() *[]byte {
	return p.pool.Get().(*[]byte)
}

// put returns a buffer to the pool, restoring its full length.
func (p *bufferPool) put(b *[]byte) {
	if cap(*b) < p.size {
		return
	}
	*b = (*b)[:p.size]
	p.pool.Put(b)
}
