package kernels

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// workers bounds goroutine parallelism for the compute kernels. Values <= 1
// disable parallel execution.
var workers atomic.Int32

func init() {
	workers.Store(int32(runtime.NumCPU()))
}

// SetWorkers sets the maximum number of goroutines a kernel may fan out to.
// n <= 1 makes every kernel run sequentially.
func SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	workers.Store(int32(n))
}

func getWorkers() int {
	n := int(workers.Load())
	if n < 1 {
		return 1
	}
	return n
}

// parallelFor splits [0, n) into contiguous chunks and runs fn on each chunk
// from its own goroutine. Iteration order across chunks is unordered; within
// a chunk it is sequential.
func parallelFor(n int, fn func(lo, hi int)) {
	if n <= 0 {
		return
	}

	maxWorkers := getWorkers()
	if maxWorkers <= 1 || n == 1 {
		fn(0, n)
		return
	}
	if maxWorkers > n {
		maxWorkers = n
	}

	chunk := (n + maxWorkers - 1) / maxWorkers
	var wg sync.WaitGroup

	for lo := 0; lo < n; lo += chunk {
		hi := lo + chunk
		if hi > n {
			hi = n
		}
		wg.Add(1)
		go func(lo, hi int) {
			defer wg.Done()
			fn(lo, hi)
		}(lo, hi)
	}

	wg.Wait()
}
