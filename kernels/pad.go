package kernels

import (
	"fmt"

	"github.com/muchq/synapse/tensor"
)

// PadForward writes x into the center of y, leaving a zero border of pad
// elements on every spatial side.
func PadForward(x, y *tensor.Tensor, pad int) {
	if pad < 1 {
		panic(fmt.Sprintf("kernels: pad must be positive, got %d", pad))
	}
	if y.N != x.N || y.C != x.C || y.H != x.H+2*pad || y.W != x.W+2*pad {
		panic(fmt.Sprintf("kernels: pad output shape %s, want (%d,%d,%d,%d)", y.ShapeString(), x.N, x.C, x.H+2*pad, x.W+2*pad))
	}

	parallelFor(x.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for c := 0; c < x.C; c++ {
				in := x.Channel(n, c)
				out := y.Channel(n, c)
				for i := range out {
					out[i] = 0
				}
				for h := 0; h < x.H; h++ {
					copy(out[(h+pad)*y.W+pad:(h+pad)*y.W+pad+x.W], in[h*x.W:(h+1)*x.W])
				}
			}
		}
	})
}

// PadBackward crops the border back off: dx receives the interior of dy.
func PadBackward(dy, dx *tensor.Tensor, pad int) {
	if dy.N != dx.N || dy.C != dx.C || dy.H != dx.H+2*pad || dy.W != dx.W+2*pad {
		panic(fmt.Sprintf("kernels: pad backward dY %s does not cover dX %s with pad %d", dy.ShapeString(), dx.ShapeString(), pad))
	}

	parallelFor(dx.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for c := 0; c < dx.C; c++ {
				grad := dy.Channel(n, c)
				out := dx.Channel(n, c)
				for h := 0; h < dx.H; h++ {
					copy(out[h*dx.W:(h+1)*dx.W], grad[(h+pad)*dy.W+pad:(h+pad)*dy.W+pad+dx.W])
				}
			}
		}
	})
}
