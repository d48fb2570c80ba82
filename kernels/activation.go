package kernels

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/tensor"
)

// Activate computes Y[i] = f(X[i]) element-wise. X and Y may alias.
func Activate(f activations.Function, x, y *tensor.Tensor) {
	if !x.SameShape(y) {
		panic(fmt.Sprintf("kernels: activation shape mismatch, X %s Y %s", x.ShapeString(), y.ShapeString()))
	}

	parallelFor(x.Rows(), func(lo, hi int) {
		l := x.Cols()
		for i := lo * l; i < hi*l; i++ {
			y.Data[i] = f.Apply(x.Data[i])
		}
	})
}

// ActivateBack computes dX[i] = f'(Z[i]) * dY[i]. dY and dX may alias; the
// overlap is total and the write order matches the read order.
func ActivateBack(f activations.Function, z, dy, dx *tensor.Tensor) {
	if !z.SameShape(dy) || !z.SameShape(dx) {
		panic(fmt.Sprintf("kernels: activation backward shape mismatch, Z %s dY %s dX %s", z.ShapeString(), dy.ShapeString(), dx.ShapeString()))
	}

	parallelFor(z.Rows(), func(lo, hi int) {
		l := z.Cols()
		for i := lo * l; i < hi*l; i++ {
			dx.Data[i] = f.Prime(z.Data[i]) * dy.Data[i]
		}
	})
}

// SoftmaxForward runs the full softmax in one kernel: the scalar e^x pass,
// a per-row sum, then row normalization. X and Y may alias.
func SoftmaxForward(x, y *tensor.Tensor) {
	if !x.SameShape(y) {
		panic(fmt.Sprintf("kernels: softmax shape mismatch, X %s Y %s", x.ShapeString(), y.ShapeString()))
	}

	parallelFor(x.Rows(), func(lo, hi int) {
		l := x.Cols()
		for i := lo; i < hi; i++ {
			row := y.Data[i*l : (i+1)*l]
			src := x.Data[i*l : (i+1)*l]

			var sum float32
			for j, v := range src {
				e := activations.Softmax.Apply(v)
				row[j] = e
				sum += e
			}
			inv := 1 / sum
			for j := range row {
				row[j] *= inv
			}
		}
	})
}
