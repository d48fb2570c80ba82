package kernels

import (
	"fmt"

	"github.com/muchq/synapse/tensor"
)

// rotate180 allocates a copy of w with every kH x kW slice rotated 180
// degrees: out[k,c,r,s] = w[k,c,kH-1-r,kW-1-s].
func rotate180(w *tensor.Tensor) *tensor.Tensor {
	out := tensor.Like(w)
	kH, kW := w.H, w.W
	for k := 0; k < w.N; k++ {
		for c := 0; c < w.C; c++ {
			src := w.Channel(k, c)
			dst := out.Channel(k, c)
			for r := 0; r < kH; r++ {
				for s := 0; s < kW; s++ {
					dst[r*kW+s] = src[(kH-1-r)*kW+(kW-1-s)]
				}
			}
		}
	}
	return out
}

// ConvolveForward runs a valid mathematical convolution of X with the kernel
// stack W plus per-kernel biases B:
//
//	Y[n,k,i,j] = B[k] + Σ_{c,r,s} X[n,c,i+r,j+s] * W[k,c,kH-1-r,kW-1-s]
//
// X is (N, C, H, W), W is (K, C, kH, kW), B is a K-vector, Y is
// (N, K, H-kH+1, W-kW+1). Samples are processed in parallel.
func ConvolveForward(x, w, b, y *tensor.Tensor) {
	kH, kW := w.H, w.W
	if x.C != w.C {
		panic(fmt.Sprintf("kernels: conv channel mismatch, X %s W %s", x.ShapeString(), w.ShapeString()))
	}
	if x.H < kH || x.W < kW {
		panic(fmt.Sprintf("kernels: conv kernel %dx%d does not fit input %s", kH, kW, x.ShapeString()))
	}
	outH, outW := x.H-kH+1, x.W-kW+1
	if y.N != x.N || y.C != w.N || y.H != outH || y.W != outW {
		panic(fmt.Sprintf("kernels: conv output shape %s, want (%d,%d,%d,%d)", y.ShapeString(), x.N, w.N, outH, outW))
	}
	if b.Size() != w.N {
		panic(fmt.Sprintf("kernels: conv bias length %d, want %d", b.Size(), w.N))
	}

	parallelFor(x.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for k := 0; k < w.N; k++ {
				out := y.Channel(n, k)
				bias := b.Data[k]
				for i := 0; i < outH; i++ {
					for j := 0; j < outW; j++ {
						sum := bias
						for c := 0; c < x.C; c++ {
							in := x.Channel(n, c)
							kern := w.Channel(k, c)
							for r := 0; r < kH; r++ {
								inRow := in[(i+r)*x.W+j:]
								kRow := kern[(kH-1-r)*kW:]
								for s := 0; s < kW; s++ {
									sum += inRow[s] * kRow[kW-1-s]
								}
							}
						}
						out[i*outW+j] = sum
					}
				}
			}
		}
	})
}

// ConvolveBackwardData runs the full convolution of the output error dY with
// the 180-degree-rotated kernels, restoring the forward input shape:
//
//	dX[n,c,i,j] = Σ_{k,r,s} dY[n,k,i-r,j-s] * W180[k,c,r,s]
//
// with out-of-range dY indices skipped. A temporary rotated-weights tensor is
// allocated for the duration of the call.
func ConvolveBackwardData(dy, w, dx *tensor.Tensor) {
	kH, kW := w.H, w.W
	if dy.C != w.N {
		panic(fmt.Sprintf("kernels: conv backward channel mismatch, dY %s W %s", dy.ShapeString(), w.ShapeString()))
	}
	inH, inW := dy.H+kH-1, dy.W+kW-1
	if dx.N != dy.N || dx.C != w.C || dx.H != inH || dx.W != inW {
		panic(fmt.Sprintf("kernels: conv backward output shape %s, want (%d,%d,%d,%d)", dx.ShapeString(), dy.N, w.C, inH, inW))
	}

	rot := rotate180(w)

	parallelFor(dy.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			for c := 0; c < dx.C; c++ {
				out := dx.Channel(n, c)
				for i := 0; i < inH; i++ {
					for j := 0; j < inW; j++ {
						var sum float32
						for k := 0; k < dy.C; k++ {
							grad := dy.Channel(n, k)
							kern := rot.Channel(k, c)
							for r := 0; r < kH; r++ {
								gi := i - r
								if gi < 0 || gi >= dy.H {
									continue
								}
								for s := 0; s < kW; s++ {
									gj := j - s
									if gj < 0 || gj >= dy.W {
										continue
									}
									sum += grad[gi*dy.W+gj] * kern[r*kW+s]
								}
							}
						}
						out[i*inW+j] = sum
					}
				}
			}
		}
	})
}

// ConvolveBackwardFilter computes the kernel gradient for the valid forward
// convolution. Per-sample gradient slices are produced in parallel and then
// compressed vertically: gradients are summed, never averaged, across the
// batch. dW is (K, C, kH, kW) matching the forward kernel stack.
func ConvolveBackwardFilter(x, dy, dw *tensor.Tensor) {
	kH, kW := dw.H, dw.W
	if dw.N != dy.C || dw.C != x.C {
		panic(fmt.Sprintf("kernels: filter gradient shape %s, want (%d,%d,...)", dw.ShapeString(), dy.C, x.C))
	}
	if x.H-dy.H+1 != kH || x.W-dy.W+1 != kW {
		panic(fmt.Sprintf("kernels: filter gradient %dx%d inconsistent with X %s dY %s", kH, kW, x.ShapeString(), dy.ShapeString()))
	}
	if x.N != dy.N {
		panic(fmt.Sprintf("kernels: filter gradient sample mismatch, X %s dY %s", x.ShapeString(), dy.ShapeString()))
	}

	sliceLen := dw.Size()
	perSample := tensor.NewMatrix(x.N, sliceLen)

	parallelFor(x.N, func(lo, hi int) {
		for n := lo; n < hi; n++ {
			row := perSample.Sample(n)
			for k := 0; k < dw.N; k++ {
				grad := dy.Channel(n, k)
				for c := 0; c < dw.C; c++ {
					in := x.Channel(n, c)
					base := (k*dw.C + c) * kH * kW
					for a := 0; a < kH; a++ {
						for bb := 0; bb < kW; bb++ {
							var sum float32
							for i := 0; i < dy.H; i++ {
								inRow := in[(i+kH-1-a)*x.W+(kW-1-bb):]
								gRow := grad[i*dy.W:]
								for j := 0; j < dy.W; j++ {
									sum += inRow[j] * gRow[j]
								}
							}
							row[base+a*kW+bb] = sum
						}
					}
				}
			}
		}
	})

	kN, kC := dw.N, dw.C
	dw.Reshape(1, 1, 1, sliceLen)
	CompressVertically(perSample, dw)
	dw.Reshape(kN, kC, kH, kW)
}

// ConvolveBackwardBias reduces dY into the per-kernel bias gradient:
// db[k] = Σ_{n,i,j} dY[n,k,i,j]. db is a K-vector.
func ConvolveBackwardBias(dy, db *tensor.Tensor) {
	if db.Size() != dy.C {
		panic(fmt.Sprintf("kernels: bias gradient length %d, want %d", db.Size(), dy.C))
	}

	parallelFor(dy.C, func(lo, hi int) {
		for k := lo; k < hi; k++ {
			var sum float32
			for n := 0; n < dy.N; n++ {
				for _, v := range dy.Channel(n, k) {
					sum += v
				}
			}
			db.Data[k] = sum
		}
	})
}
