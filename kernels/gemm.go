package kernels

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/muchq/synapse/tensor"
)

// Multiply computes Y = A * B for the entities x length matrix views of the
// operands: A is n x l, B is l x k, Y is n x k. Rows of Y are computed in
// parallel across the sample dimension.
func Multiply(a, b, y *tensor.Tensor) {
	n, l := a.Rows(), a.Cols()
	k := b.Cols()
	if b.Rows() != l {
		panic(fmt.Sprintf("kernels: multiply inner dim mismatch, A %s B %s", a.ShapeString(), b.ShapeString()))
	}
	if y.Rows() != n || y.Cols() != k {
		panic(fmt.Sprintf("kernels: multiply output shape %s, want %dx%d", y.ShapeString(), n, k))
	}

	bm := blas32.General{Rows: l, Cols: k, Stride: k, Data: b.Data}

	parallelFor(n, func(lo, hi int) {
		rows := hi - lo
		am := blas32.General{Rows: rows, Cols: l, Stride: l, Data: a.Data[lo*l : hi*l]}
		ym := blas32.General{Rows: rows, Cols: k, Stride: k, Data: y.Data[lo*k : hi*k]}
		blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, am, bm, 0, ym)
	})
}

// Transpose writes X's matrix view transposed into Y: Y[j,i] = X[i,j].
func Transpose(x, y *tensor.Tensor) {
	n, l := x.Rows(), x.Cols()
	if y.Rows() != l || y.Cols() != n {
		panic(fmt.Sprintf("kernels: transpose output shape %s, want %dx%d", y.ShapeString(), l, n))
	}

	parallelFor(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			row := x.Data[i*l : (i+1)*l]
			for j, v := range row {
				y.Data[j*n+i] = v
			}
		}
	})
}
