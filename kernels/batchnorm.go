package kernels

import (
	"fmt"
	"math"

	"github.com/muchq/synapse/tensor"
)

// NormMode selects how batch normalization groups its statistics.
type NormMode byte

const (
	// PerChannel keeps one mean/variance scalar per channel, pooled over
	// samples and spatial positions.
	PerChannel NormMode = iota
	// PerActivation keeps one mean/variance scalar per (c, h, w) position,
	// pooled over samples only.
	PerActivation
)

func (m NormMode) String() string {
	if m == PerChannel {
		return "PerChannel"
	}
	return "PerActivation"
}

// Epsilon stabilizes the variance denominator in batch normalization.
const Epsilon = 1e-5

// ParamLen returns the statistics vector length for x under mode m.
func (m NormMode) ParamLen(c, h, w int) int {
	if m == PerChannel {
		return c
	}
	return c * h * w
}

func checkNormParams(mode NormMode, x *tensor.Tensor, params ...*tensor.Tensor) int {
	want := mode.ParamLen(x.C, x.H, x.W)
	for _, p := range params {
		if p.Size() != want {
			panic(fmt.Sprintf("kernels: batch norm %s param length %d, want %d", mode, p.Size(), want))
		}
	}
	return want
}

// groupSize returns the element count each statistic is pooled over.
func groupSize(mode NormMode, x *tensor.Tensor) int {
	if mode == PerChannel {
		return x.N * x.H * x.W
	}
	return x.N
}

// forEachInGroup walks every element of statistics group g of x.
func forEachInGroup(mode NormMode, x *tensor.Tensor, g int, fn func(idx int)) {
	if mode == PerChannel {
		hw := x.H * x.W
		for n := 0; n < x.N; n++ {
			base := (n*x.C + g) * hw
			for i := 0; i < hw; i++ {
				fn(base + i)
			}
		}
		return
	}
	l := x.EntityLen()
	for n := 0; n < x.N; n++ {
		fn(n*l + g)
	}
}

// BatchNormStats fills mu and sigma2 with the batch statistics of x under
// mode. The variance uses the freshly computed mean, matching the two-pass
// training forward.
func BatchNormStats(mode NormMode, x, mu, sigma2 *tensor.Tensor) {
	groups := checkNormParams(mode, x, mu, sigma2)
	m := float32(groupSize(mode, x))

	parallelFor(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			var sum float32
			forEachInGroup(mode, x, g, func(idx int) {
				sum += x.Data[idx]
			})
			mean := sum / m
			mu.Data[g] = mean

			var varSum float32
			forEachInGroup(mode, x, g, func(idx int) {
				d := x.Data[idx] - mean
				varSum += d * d
			})
			sigma2.Data[g] = varSum / m
		}
	})
}

// UpdateRunningStats folds the batch statistics into the running averages:
// running ← factor*batch + (1-factor)*running, element-wise.
func UpdateRunningStats(batch, running *tensor.Tensor, factor float32) {
	if !batch.SameShape(running) {
		panic(fmt.Sprintf("kernels: running stats shape mismatch, batch %s running %s", batch.ShapeString(), running.ShapeString()))
	}
	for i, v := range batch.Data {
		running.Data[i] = factor*v + (1-factor)*running.Data[i]
	}
}

// BatchNormForward normalizes x with the supplied statistics:
// y = γ*(x-μ)/sqrt(σ²+ε) + β. The caller picks batch statistics during
// training and running statistics during inference.
func BatchNormForward(mode NormMode, x, gamma, beta, mu, sigma2, y *tensor.Tensor) {
	groups := checkNormParams(mode, x, gamma, beta, mu, sigma2)
	if !x.SameShape(y) {
		panic(fmt.Sprintf("kernels: batch norm output shape %s, want %s", y.ShapeString(), x.ShapeString()))
	}

	parallelFor(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			inv := 1 / float32(math.Sqrt(float64(sigma2.Data[g])+Epsilon))
			gm, bt, mean := gamma.Data[g], beta.Data[g], mu.Data[g]
			forEachInGroup(mode, x, g, func(idx int) {
				y.Data[idx] = gm*(x.Data[idx]-mean)*inv + bt
			})
		}
	})
}

// BatchNormBackwardData derives dX from the analytic batch-norm gradient:
//
//	dX = γ/sqrt(σ²+ε) * (dY - mean(dY) - x̂*mean(dY*x̂))
//
// where x̂ is the normalized input and the means run over each statistics
// group.
func BatchNormBackwardData(mode NormMode, x, gamma, mu, sigma2, dy, dx *tensor.Tensor) {
	groups := checkNormParams(mode, x, gamma, mu, sigma2)
	if !x.SameShape(dy) || !x.SameShape(dx) {
		panic(fmt.Sprintf("kernels: batch norm backward shape mismatch, X %s dY %s dX %s", x.ShapeString(), dy.ShapeString(), dx.ShapeString()))
	}
	m := float32(groupSize(mode, x))

	parallelFor(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			inv := 1 / float32(math.Sqrt(float64(sigma2.Data[g])+Epsilon))
			mean := mu.Data[g]

			var sumDy, sumDyXhat float32
			forEachInGroup(mode, x, g, func(idx int) {
				xhat := (x.Data[idx] - mean) * inv
				sumDy += dy.Data[idx]
				sumDyXhat += dy.Data[idx] * xhat
			})
			meanDy := sumDy / m
			meanDyXhat := sumDyXhat / m

			scale := gamma.Data[g] * inv
			forEachInGroup(mode, x, g, func(idx int) {
				xhat := (x.Data[idx] - mean) * inv
				dx.Data[idx] = scale * (dy.Data[idx] - meanDy - xhat*meanDyXhat)
			})
		}
	})
}

// BatchNormBackwardGamma computes dγ[g] = Σ dY*x̂ over each group.
func BatchNormBackwardGamma(mode NormMode, x, mu, sigma2, dy, dgamma *tensor.Tensor) {
	groups := checkNormParams(mode, x, mu, sigma2, dgamma)
	if !x.SameShape(dy) {
		panic(fmt.Sprintf("kernels: gamma gradient shape mismatch, X %s dY %s", x.ShapeString(), dy.ShapeString()))
	}

	parallelFor(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			inv := 1 / float32(math.Sqrt(float64(sigma2.Data[g])+Epsilon))
			mean := mu.Data[g]
			var sum float32
			forEachInGroup(mode, x, g, func(idx int) {
				sum += dy.Data[idx] * (x.Data[idx] - mean) * inv
			})
			dgamma.Data[g] = sum
		}
	})
}

// BatchNormBackwardBeta computes dβ[g] = Σ dY over each group.
func BatchNormBackwardBeta(mode NormMode, dy, dbeta *tensor.Tensor) {
	groups := checkNormParams(mode, dy, dbeta)

	parallelFor(groups, func(lo, hi int) {
		for g := lo; g < hi; g++ {
			var sum float32
			forEachInGroup(mode, dy, g, func(idx int) {
				sum += dy.Data[idx]
			})
			dbeta.Data[g] = sum
		}
	})
}
