package kernels

import (
	"fmt"

	"github.com/muchq/synapse/tensor"
)

// DepthConcatForward stacks the inputs along the channel axis. Every input
// must share Y's sample count and spatial dims; Y's channel count must equal
// the sum of the input channel counts.
func DepthConcatForward(xs []*tensor.Tensor, y *tensor.Tensor) {
	if len(xs) < 2 {
		panic(fmt.Sprintf("kernels: depth concat needs at least 2 inputs, got %d", len(xs)))
	}
	channels := 0
	for _, x := range xs {
		if x.N != y.N || x.H != y.H || x.W != y.W {
			panic(fmt.Sprintf("kernels: depth concat input %s incompatible with output %s", x.ShapeString(), y.ShapeString()))
		}
		channels += x.C
	}
	if channels != y.C {
		panic(fmt.Sprintf("kernels: depth concat channel total %d, output has %d", channels, y.C))
	}

	parallelFor(y.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			offset := 0
			for _, x := range xs {
				for c := 0; c < x.C; c++ {
					copy(y.Channel(n, offset+c), x.Channel(n, c))
				}
				offset += x.C
			}
		}
	})
}

// DepthConcatBackward slices dY back into the per-input gradients using the
// same channel offsets as the forward pass.
func DepthConcatBackward(dy *tensor.Tensor, dxs []*tensor.Tensor) {
	channels := 0
	for _, dx := range dxs {
		if dx.N != dy.N || dx.H != dy.H || dx.W != dy.W {
			panic(fmt.Sprintf("kernels: depth concat backward slice %s incompatible with dY %s", dx.ShapeString(), dy.ShapeString()))
		}
		channels += dx.C
	}
	if channels != dy.C {
		panic(fmt.Sprintf("kernels: depth concat backward channel total %d, dY has %d", channels, dy.C))
	}

	parallelFor(dy.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			offset := 0
			for _, dx := range dxs {
				for c := 0; c < dx.C; c++ {
					copy(dx.Channel(n, c), dy.Channel(n, offset+c))
				}
				offset += dx.C
			}
		}
	})
}

// SumForward computes Y = Σ inputs; all shapes must match Y.
func SumForward(xs []*tensor.Tensor, y *tensor.Tensor) {
	if len(xs) < 2 {
		panic(fmt.Sprintf("kernels: sum needs at least 2 inputs, got %d", len(xs)))
	}
	for _, x := range xs {
		if !x.SameShape(y) {
			panic(fmt.Sprintf("kernels: sum input %s incompatible with output %s", x.ShapeString(), y.ShapeString()))
		}
	}

	parallelFor(y.Rows(), func(lo, hi int) {
		l := y.Cols()
		for i := lo * l; i < hi*l; i++ {
			var sum float32
			for _, x := range xs {
				sum += x.Data[i]
			}
			y.Data[i] = sum
		}
	})
}

// SumBackward hands every input a copy of dY.
func SumBackward(dy *tensor.Tensor, dxs []*tensor.Tensor) {
	for _, dx := range dxs {
		dx.Overwrite(dy)
	}
}
