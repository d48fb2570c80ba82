package kernels

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/tensor"
)

func TestMultiplyIdentity(t *testing.T) {
	a := tensor.FromMatrix([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	identity := tensor.FromMatrix([]float32{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}, 3, 3)
	y := tensor.NewMatrix(2, 3)

	Multiply(a, identity, y)
	assert.Equal(t, a.Data, y.Data)
}

func TestMultiply(t *testing.T) {
	a := tensor.FromMatrix([]float32{1, 2, 3, 4}, 2, 2)
	b := tensor.FromMatrix([]float32{5, 6, 7, 8}, 2, 2)
	y := tensor.NewMatrix(2, 2)

	Multiply(a, b, y)
	assert.Equal(t, []float32{19, 22, 43, 50}, y.Data)
}

func TestMultiplyShapeChecks(t *testing.T) {
	a := tensor.NewMatrix(2, 3)
	b := tensor.NewMatrix(4, 2)
	y := tensor.NewMatrix(2, 2)
	assert.Panics(t, func() { Multiply(a, b, y) })

	b2 := tensor.NewMatrix(3, 2)
	bad := tensor.NewMatrix(3, 2)
	assert.Panics(t, func() { Multiply(a, b2, bad) })
}

func TestTransposeInvolution(t *testing.T) {
	x := tensor.FromMatrix([]float32{1, 2, 3, 4, 5, 6}, 2, 3)
	xt := tensor.NewMatrix(3, 2)
	back := tensor.NewMatrix(2, 3)

	Transpose(x, xt)
	assert.Equal(t, []float32{1, 4, 2, 5, 3, 6}, xt.Data)

	Transpose(xt, back)
	assert.Equal(t, x.Data, back.Data)
}

func TestSubtractSelfIsZero(t *testing.T) {
	x := tensor.FromMatrix([]float32{1, -2, 3.5, 0}, 2, 2)
	y := tensor.NewMatrix(2, 2)

	Subtract(x, x, y)
	for _, v := range y.Data {
		assert.Equal(t, float32(0), v)
	}
}

func TestCompressVertically(t *testing.T) {
	x := tensor.FromMatrix([]float32{
		1, 2, 3,
		4, 5, 6,
	}, 2, 3)
	y := tensor.NewMatrix(1, 3)

	CompressVertically(x, y)
	assert.Equal(t, []float32{5, 7, 9}, y.Data)
}

func TestActivateAndBack(t *testing.T) {
	x := tensor.FromMatrix([]float32{-1, 0, 2}, 1, 3)
	y := tensor.NewMatrix(1, 3)

	Activate(activations.ReLU, x, y)
	assert.Equal(t, []float32{0, 0, 2}, y.Data)

	dy := tensor.FromMatrix([]float32{5, 5, 5}, 1, 3)
	dx := tensor.NewMatrix(1, 3)
	ActivateBack(activations.ReLU, x, dy, dx)
	assert.Equal(t, []float32{0, 0, 5}, dx.Data)
}

func TestSoftmaxRowsSumToOne(t *testing.T) {
	x := tensor.FromMatrix([]float32{1, 2, 3}, 1, 3)
	y := tensor.NewMatrix(1, 3)

	SoftmaxForward(x, y)

	sum := float64(0)
	for _, v := range y.Data {
		sum += float64(v)
	}
	assert.InDelta(t, 1.0, sum, 1e-5)

	e1, e2, e3 := math.Exp(1), math.Exp(2), math.Exp(3)
	total := e1 + e2 + e3
	assert.InDelta(t, e1/total, float64(y.Data[0]), 1e-6)
	assert.InDelta(t, e2/total, float64(y.Data[1]), 1e-6)
	assert.InDelta(t, e3/total, float64(y.Data[2]), 1e-6)
}

func TestConvolveForward(t *testing.T) {
	x := tensor.From([]float32{
		0, 1, 0,
		2, 0, 1,
		1, 1, 0,
	}, 1, 1, 3, 3)
	w := tensor.From([]float32{
		1, 1,
		0, 1,
	}, 1, 1, 2, 2)
	b := tensor.FromMatrix([]float32{0.6}, 1, 1)
	y := tensor.New(1, 1, 2, 2)

	ConvolveForward(x, w, b, y)

	expected := []float32{2.6, 2.6, 4.6, 1.6}
	for i, v := range expected {
		assert.InDelta(t, float64(v), float64(y.Data[i]), 1e-6)
	}
}

func TestConvolveForwardChecks(t *testing.T) {
	x := tensor.New(1, 1, 2, 2)
	w := tensor.New(1, 1, 3, 3)
	b := tensor.NewMatrix(1, 1)
	y := tensor.New(1, 1, 1, 1)
	assert.Panics(t, func() { ConvolveForward(x, w, b, y) })

	x2 := tensor.New(1, 2, 4, 4)
	w2 := tensor.New(1, 1, 2, 2)
	y2 := tensor.New(1, 1, 3, 3)
	assert.Panics(t, func() { ConvolveForward(x2, w2, b, y2) })
}

func TestConvolveBackwardDataRestoresShape(t *testing.T) {
	x := tensor.New(2, 3, 6, 5)
	w := tensor.New(4, 3, 3, 2)
	b := tensor.NewMatrix(1, 4)
	y := tensor.New(2, 4, 4, 4)
	ConvolveForward(x, w, b, y)

	dx := tensor.New(2, 3, 6, 5)
	ConvolveBackwardData(y, w, dx)
	assert.True(t, dx.SameShape(x))
}

// finite-difference check of the filter gradient against the forward kernel
func TestConvolveBackwardFilterNumeric(t *testing.T) {
	x := tensor.From([]float32{
		0.5, -1, 2,
		1, 0.25, -0.5,
		-2, 1.5, 1,
	}, 1, 1, 3, 3)
	w := tensor.From([]float32{
		0.2, -0.4,
		0.7, 0.1,
	}, 1, 1, 2, 2)
	b := tensor.FromMatrix([]float32{0}, 1, 1)

	// J = sum(Y); dJ/dY = ones
	dy := tensor.New(1, 1, 2, 2)
	dy.Fill(1)

	dw := tensor.New(1, 1, 2, 2)
	ConvolveBackwardFilter(x, dy, dw)

	const h = 1e-3
	for i := range w.Data {
		sumAt := func(v float32) float64 {
			saved := w.Data[i]
			w.Data[i] = v
			y := tensor.New(1, 1, 2, 2)
			ConvolveForward(x, w, b, y)
			w.Data[i] = saved
			var s float64
			for _, e := range y.Data {
				s += float64(e)
			}
			return s
		}
		numeric := (sumAt(w.Data[i]+h) - sumAt(w.Data[i]-h)) / (2 * h)
		assert.InDelta(t, numeric, float64(dw.Data[i]), 1e-2, "dW[%d]", i)
	}
}

func TestConvolveBackwardDataNumeric(t *testing.T) {
	x := tensor.From([]float32{
		0.5, -1, 2,
		1, 0.25, -0.5,
		-2, 1.5, 1,
	}, 1, 1, 3, 3)
	w := tensor.From([]float32{
		0.2, -0.4,
		0.7, 0.1,
	}, 1, 1, 2, 2)
	b := tensor.FromMatrix([]float32{0}, 1, 1)

	dy := tensor.New(1, 1, 2, 2)
	dy.Fill(1)
	dx := tensor.New(1, 1, 3, 3)
	ConvolveBackwardData(dy, w, dx)

	const h = 1e-3
	for i := range x.Data {
		sumAt := func(v float32) float64 {
			saved := x.Data[i]
			x.Data[i] = v
			y := tensor.New(1, 1, 2, 2)
			ConvolveForward(x, w, b, y)
			x.Data[i] = saved
			var s float64
			for _, e := range y.Data {
				s += float64(e)
			}
			return s
		}
		numeric := (sumAt(x.Data[i]+h) - sumAt(x.Data[i]-h)) / (2 * h)
		assert.InDelta(t, numeric, float64(dx.Data[i]), 1e-2, "dX[%d]", i)
	}
}

func TestConvolveBackwardBias(t *testing.T) {
	dy := tensor.From([]float32{
		1, 2,
		3, 4,

		10, 20,
		30, 40,
	}, 1, 2, 2, 2)
	db := tensor.NewMatrix(1, 2)

	ConvolveBackwardBias(dy, db)
	assert.Equal(t, []float32{10, 100}, db.Data)
}

func TestPoolForward(t *testing.T) {
	x := tensor.From([]float32{
		-1, 0, 1, 2,
		1, 1, 1, 1,
		0, -0.3, -5, -0.5,
		-1, 10, -2, -1,
	}, 1, 1, 4, 4)
	y := tensor.New(1, 1, 2, 2)

	PoolForward(x, y)
	assert.Equal(t, []float32{1, 2, 10, -0.5}, y.Data)
}

func TestPoolForwardOddDims(t *testing.T) {
	x := tensor.From([]float32{
		1, 2, 3,
		4, 5, 6,
		7, 8, 9,
	}, 1, 1, 3, 3)
	y := tensor.New(1, 1, 2, 2)

	PoolForward(x, y)
	assert.Equal(t, []float32{5, 6, 8, 9}, y.Data)
}

func TestPoolBackwardRoutesToArgmax(t *testing.T) {
	x := tensor.From([]float32{
		-1, 0, 1, 2,
		1, 1, 1, 1,
		0, -0.3, -5, -0.5,
		-1, 10, -2, -1,
	}, 1, 1, 4, 4)
	dy := tensor.From([]float32{
		7, 8,
		9, 11,
	}, 1, 1, 2, 2)

	PoolBackward(x, dy)

	// one nonzero per window, at the window's argmax
	expected := []float32{
		0, 0, 0, 8,
		7, 0, 0, 0,
		0, 0, 0, 11,
		0, 9, 0, 0,
	}
	assert.Equal(t, expected, x.Data)
}

func TestDepthConcatRoundTrip(t *testing.T) {
	a := tensor.From([]float32{1, 2, 3, 4}, 1, 1, 2, 2)
	b := tensor.From([]float32{5, 6, 7, 8, 9, 10, 11, 12}, 1, 2, 2, 2)
	y := tensor.New(1, 3, 2, 2)

	DepthConcatForward([]*tensor.Tensor{a, b}, y)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, y.Data)

	da := tensor.New(1, 1, 2, 2)
	db := tensor.New(1, 2, 2, 2)
	DepthConcatBackward(y, []*tensor.Tensor{da, db})
	assert.Equal(t, a.Data, da.Data)
	assert.Equal(t, b.Data, db.Data)
}

func TestSumForwardBackward(t *testing.T) {
	a := tensor.From([]float32{1, 2}, 1, 1, 1, 2)
	b := tensor.From([]float32{10, 20}, 1, 1, 1, 2)
	y := tensor.New(1, 1, 1, 2)

	SumForward([]*tensor.Tensor{a, b}, y)
	assert.Equal(t, []float32{11, 22}, y.Data)

	da := tensor.New(1, 1, 1, 2)
	db := tensor.New(1, 1, 1, 2)
	SumBackward(y, []*tensor.Tensor{da, db})
	assert.Equal(t, y.Data, da.Data)
	assert.Equal(t, y.Data, db.Data)
}

func TestPadRoundTrip(t *testing.T) {
	x := tensor.From([]float32{1, 2, 3, 4}, 1, 1, 2, 2)
	y := tensor.New(1, 1, 4, 4)

	PadForward(x, y, 1)
	expected := []float32{
		0, 0, 0, 0,
		0, 1, 2, 0,
		0, 3, 4, 0,
		0, 0, 0, 0,
	}
	assert.Equal(t, expected, y.Data)

	dx := tensor.New(1, 1, 2, 2)
	PadBackward(y, dx, 1)
	assert.Equal(t, x.Data, dx.Data)
}

func TestBatchNormTrainingStatistics(t *testing.T) {
	// two channels, four samples, 2x2 spatial
	x := tensor.New(4, 2, 2, 2)
	for i := range x.Data {
		x.Data[i] = float32(i%7) - 2.5
	}

	mu := tensor.NewMatrix(1, 2)
	sigma2 := tensor.NewMatrix(1, 2)
	BatchNormStats(PerChannel, x, mu, sigma2)

	gamma := tensor.FromMatrix([]float32{1.5, 0.5}, 1, 2)
	beta := tensor.FromMatrix([]float32{0.25, -1}, 1, 2)
	y := tensor.New(4, 2, 2, 2)
	BatchNormForward(PerChannel, x, gamma, beta, mu, sigma2, y)

	// normalized output has mean beta and variance gamma^2 per channel
	for c := 0; c < 2; c++ {
		var sum, sumSq float64
		count := 0
		for n := 0; n < 4; n++ {
			for _, v := range y.Channel(n, c) {
				sum += float64(v)
				count++
			}
		}
		mean := sum / float64(count)
		for n := 0; n < 4; n++ {
			for _, v := range y.Channel(n, c) {
				d := float64(v) - mean
				sumSq += d * d
			}
		}
		variance := sumSq / float64(count)

		assert.InDelta(t, float64(beta.Data[c]), mean, 1e-4)
		assert.InDelta(t, float64(gamma.Data[c]*gamma.Data[c]), variance, 1e-4)
	}
}

func TestBatchNormPerActivationStats(t *testing.T) {
	x := tensor.From([]float32{
		1, 2,
		3, 4,
	}, 2, 1, 1, 2) // two samples, one channel, 1x2 spatial

	mu := tensor.NewMatrix(1, 2)
	sigma2 := tensor.NewMatrix(1, 2)
	BatchNormStats(PerActivation, x, mu, sigma2)

	assert.InDelta(t, 2.0, float64(mu.Data[0]), 1e-6)
	assert.InDelta(t, 3.0, float64(mu.Data[1]), 1e-6)
	assert.InDelta(t, 1.0, float64(sigma2.Data[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(sigma2.Data[1]), 1e-6)
}

func TestUpdateRunningStats(t *testing.T) {
	batch := tensor.FromMatrix([]float32{4}, 1, 1)
	running := tensor.FromMatrix([]float32{2}, 1, 1)

	UpdateRunningStats(batch, running, 0.5)
	assert.InDelta(t, 3.0, float64(running.Data[0]), 1e-6)
}

func TestBatchNormBackwardNumeric(t *testing.T) {
	x := tensor.From([]float32{
		0.5, -1,
		2, 1,
		-0.25, 0.75,
		1.5, -2,
	}, 4, 1, 1, 2)
	gamma := tensor.FromMatrix([]float32{1.2}, 1, 1)
	mu := tensor.NewMatrix(1, 1)
	sigma2 := tensor.NewMatrix(1, 1)
	BatchNormStats(PerChannel, x, mu, sigma2)

	dy := tensor.New(4, 1, 1, 2)
	for i := range dy.Data {
		dy.Data[i] = float32(i)*0.1 - 0.3
	}
	dx := tensor.New(4, 1, 1, 2)
	BatchNormBackwardData(PerChannel, x, gamma, mu, sigma2, dy, dx)

	beta := tensor.NewMatrix(1, 1)
	loss := func() float64 {
		m := tensor.NewMatrix(1, 1)
		s2 := tensor.NewMatrix(1, 1)
		BatchNormStats(PerChannel, x, m, s2)
		y := tensor.New(4, 1, 1, 2)
		BatchNormForward(PerChannel, x, gamma, beta, m, s2, y)
		var l float64
		for i, v := range y.Data {
			l += float64(dy.Data[i]) * float64(v)
		}
		return l
	}

	const h = 1e-2
	for i := range x.Data {
		saved := x.Data[i]
		x.Data[i] = saved + h
		up := loss()
		x.Data[i] = saved - h
		down := loss()
		x.Data[i] = saved
		numeric := (up - down) / (2 * h)
		assert.InDelta(t, numeric, float64(dx.Data[i]), 5e-2, "dX[%d]", i)
	}
}

func TestBatchNormBackwardGammaBeta(t *testing.T) {
	x := tensor.From([]float32{1, 2, 3, 4}, 2, 1, 1, 2)
	mu := tensor.NewMatrix(1, 1)
	sigma2 := tensor.NewMatrix(1, 1)
	BatchNormStats(PerChannel, x, mu, sigma2)

	dy := tensor.From([]float32{1, 1, 1, 1}, 2, 1, 1, 2)

	dbeta := tensor.NewMatrix(1, 1)
	BatchNormBackwardBeta(PerChannel, dy, dbeta)
	assert.InDelta(t, 4.0, float64(dbeta.Data[0]), 1e-6)

	dgamma := tensor.NewMatrix(1, 1)
	BatchNormBackwardGamma(PerChannel, x, mu, sigma2, dy, dgamma)
	// sum of xhat over a symmetric batch is zero
	assert.InDelta(t, 0.0, float64(dgamma.Data[0]), 1e-5)
}

func TestParallelForCoversRange(t *testing.T) {
	SetWorkers(4)
	defer SetWorkers(1)

	seen := make([]int32, 100)
	parallelFor(100, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			seen[i]++
		}
	})
	for i, v := range seen {
		require.Equal(t, int32(1), v, "index %d", i)
	}
}
