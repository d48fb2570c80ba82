package kernels

import (
	"fmt"

	"github.com/muchq/synapse/tensor"
)

// PoolForward runs 2x2 stride-2 max pooling. When H or W is odd the last
// row/column pools over the partial window. Y is (N, C, ceil(H/2), ceil(W/2)).
func PoolForward(x, y *tensor.Tensor) {
	outH, outW := (x.H+1)/2, (x.W+1)/2
	if y.N != x.N || y.C != x.C || y.H != outH || y.W != outW {
		panic(fmt.Sprintf("kernels: pool output shape %s, want (%d,%d,%d,%d)", y.ShapeString(), x.N, x.C, outH, outW))
	}

	parallelFor(x.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for c := 0; c < x.C; c++ {
				in := x.Channel(n, c)
				out := y.Channel(n, c)
				for oi := 0; oi < outH; oi++ {
					for oj := 0; oj < outW; oj++ {
						i, j := oi*2, oj*2
						max := in[i*x.W+j]
						for di := 0; di < 2; di++ {
							for dj := 0; dj < 2; dj++ {
								if i+di >= x.H || j+dj >= x.W {
									continue
								}
								if v := in[(i+di)*x.W+(j+dj)]; v > max {
									max = v
								}
							}
						}
						out[oi*outW+oj] = max
					}
				}
			}
		}
	})
}

// PoolBackward routes dY to the argmax position of each 2x2 window of X and
// zeroes the rest. X is mutated in place and becomes dX when the call
// returns; the aliasing is deliberate, pooling keeps no other state.
func PoolBackward(x, dy *tensor.Tensor) {
	outH, outW := (x.H+1)/2, (x.W+1)/2
	if dy.N != x.N || dy.C != x.C || dy.H != outH || dy.W != outW {
		panic(fmt.Sprintf("kernels: pool backward dY shape %s, want (%d,%d,%d,%d)", dy.ShapeString(), x.N, x.C, outH, outW))
	}

	parallelFor(x.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for c := 0; c < x.C; c++ {
				in := x.Channel(n, c)
				grad := dy.Channel(n, c)
				for oi := 0; oi < outH; oi++ {
					for oj := 0; oj < outW; oj++ {
						i, j := oi*2, oj*2
						maxIdx := i*x.W + j
						max := in[maxIdx]
						for di := 0; di < 2; di++ {
							for dj := 0; dj < 2; dj++ {
								if i+di >= x.H || j+dj >= x.W {
									continue
								}
								idx := (i+di)*x.W + (j + dj)
								if in[idx] > max {
									max = in[idx]
									maxIdx = idx
								}
							}
						}
						g := grad[oi*outW+oj]
						for di := 0; di < 2; di++ {
							for dj := 0; dj < 2; dj++ {
								if i+di >= x.H || j+dj >= x.W {
									continue
								}
								idx := (i+di)*x.W + (j + dj)
								if idx == maxIdx {
									in[idx] = g
								} else {
									in[idx] = 0
								}
							}
						}
					}
				}
			}
		}
	})
}
