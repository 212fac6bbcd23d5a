package mempool

import (
	"sync"
)

// Pool hands out scratch slices bucketed by size class so that filters
// working on same-sized frames reuse their intermediate buffers.
type Pool[T any] struct {
	classes sync.Map // key: size class (int), value: *sync.Pool
}

// Shared pools for the element types the filters use.
var (
	Float64 Pool[float64]
	Int32   Pool[int32]
	Uint8   Pool[uint8]
)

// sizeClass rounds n up to the next multiple of 1024.
func sizeClass(n int) int {
	const step = 1024
	if n <= step {
		return step
	}
	return (n + step - 1) / step * step
}

func (p *Pool[T]) pool(cls int) *sync.Pool {
	pAny, _ := p.classes.LoadOrStore(cls, &sync.Pool{New: func() any {
		buf := make([]T, cls)
		return &buf
	}})
	return pAny.(*sync.Pool) //nolint:forcetypeassert
}

// Get returns a zeroed slice of length n. The capacity may be larger.
// Return it with Put when done.
func (p *Pool[T]) Get(n int) []T {
	if n < 0 {
		n = 0
	}
	cls := sizeClass(n)
	bp, ok := p.pool(cls).Get().(*[]T)
	if !ok || cap(*bp) < cls {
		return make([]T, n, cls)
	}
	buf := (*bp)[:n]
	clear(buf)
	return buf
}

// Put returns a buffer to its size class. Nil slices and slices whose
// capacity is not a size class are dropped.
func (p *Pool[T]) Put(buf []T) {
	if buf == nil {
		return
	}
	c := cap(buf)
	if c != sizeClass(c) {
		return
	}
	buf = buf[:c]
	p.pool(c).Put(&buf)
}
