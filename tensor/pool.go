package tensor

import (
	"fmt"
	"sync"
)

// Pool recycles tensor buffers by shape. A released tensor must not be used
// again until Get hands it back out; releasing the same tensor twice is the
// allocator analogue of a double-free and panics.
type Pool struct {
	pools  map[string]*sync.Pool
	inPool map[*Tensor]bool
	mu     sync.Mutex
}

func NewPool() *Pool {
	return &Pool{
		pools:  make(map[string]*sync.Pool),
		inPool: make(map[*Tensor]bool),
	}
}

func shapeKey(n, c, h, w int) string {
	return fmt.Sprintf("%d,%d,%d,%d", n, c, h, w)
}

func (p *Pool) poolFor(n, c, h, w int) *sync.Pool {
	key := shapeKey(n, c, h, w)
	pool, exists := p.pools[key]
	if !exists {
		pool = &sync.Pool{
			New: func() interface{} {
				return New(n, c, h, w)
			},
		}
		p.pools[key] = pool
	}
	return pool
}

// Get returns a zeroed tensor of the requested shape, reusing a released
// buffer when one is available.
func (p *Pool) Get(n, c, h, w int) *Tensor {
	p.mu.Lock()
	pool := p.poolFor(n, c, h, w)
	t := pool.Get().(*Tensor)
	delete(p.inPool, t)
	p.mu.Unlock()

	t.Zero()
	return t
}

// Put releases a tensor back to the pool. Releasing a tensor that is
// already in the pool panics: the second release proves some caller still
// holds a pointer it no longer owns, and storing it twice would let two
// later Gets alias the same buffer.
func (p *Pool) Put(t *Tensor) {
	if t == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.inPool[t] {
		panic(fmt.Sprintf("tensor: double release of %s tensor to pool", t.ShapeString()))
	}
	p.inPool[t] = true
	p.poolFor(t.N, t.C, t.H, t.W).Put(t)
}
