package kernels

import (
	"fmt"

	"github.com/muchq/synapse/tensor"
)

// Subtract computes Y = A - B element-wise. All three shapes must match.
func Subtract(a, b, y *tensor.Tensor) {
	if !a.SameShape(b) || !a.SameShape(y) {
		panic(fmt.Sprintf("kernels: subtract shape mismatch, A %s B %s Y %s", a.ShapeString(), b.ShapeString(), y.ShapeString()))
	}

	parallelFor(a.Rows(), func(lo, hi int) {
		l := a.Cols()
		for i := lo * l; i < hi*l; i++ {
			y.Data[i] = a.Data[i] - b.Data[i]
		}
	})
}

// MultiplyElementwise computes Y = A ⊙ B. All three shapes must match.
func MultiplyElementwise(a, b, y *tensor.Tensor) {
	if !a.SameShape(b) || !a.SameShape(y) {
		panic(fmt.Sprintf("kernels: hadamard shape mismatch, A %s B %s Y %s", a.ShapeString(), b.ShapeString(), y.ShapeString()))
	}

	parallelFor(a.Rows(), func(lo, hi int) {
		l := a.Cols()
		for i := lo * l; i < hi*l; i++ {
			y.Data[i] = a.Data[i] * b.Data[i]
		}
	})
}

// CompressVertically sums X across its entity dimension: Y[j] = Σ_i X[i,j].
// Y must be a 1 x length matrix. Columns are reduced in parallel.
func CompressVertically(x, y *tensor.Tensor) {
	n, l := x.Rows(), x.Cols()
	if y.Rows() != 1 || y.Cols() != l {
		panic(fmt.Sprintf("kernels: compress output shape %s, want 1x%d", y.ShapeString(), l))
	}

	parallelFor(l, func(lo, hi int) {
		for j := lo; j < hi; j++ {
			var sum float32
			for i := 0; i < n; i++ {
				sum += x.Data[i*l+j]
			}
			y.Data[j] = sum
		}
	})
}
