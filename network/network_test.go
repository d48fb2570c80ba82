package network

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/optimizers"
	"github.com/muchq/synapse/tensor"
)

func smallNet(t *testing.T) *Sequential {
	t.Helper()
	return NewSequential(tensor.Linear(2),
		layers.NewDense(2, 4, activations.Tanh),
		layers.NewOutput(4, 2, activations.Identity, cost.Quadratic),
	)
}

func TestNewSequentialValidatesChain(t *testing.T) {
	assert.Panics(t, func() {
		NewSequential(tensor.Linear(2),
			layers.NewDense(3, 4, activations.Tanh),
			layers.NewOutput(4, 2, activations.Identity, cost.Quadratic),
		)
	})

	assert.Panics(t, func() {
		NewSequential(tensor.Linear(2),
			layers.NewDense(2, 4, activations.Tanh),
		)
	})
}

func TestSequentialForwardShapes(t *testing.T) {
	net := smallNet(t)
	x := tensor.FromMatrix([]float32{0.5, -0.5, 1, 0}, 2, 2)

	zs, as := net.Forward(x, true)
	require.Len(t, zs, 2)
	assert.Equal(t, 4, as[0].EntityLen())
	assert.Equal(t, 2, as[1].EntityLen())
}

func TestSequentialPredictMatchesForward(t *testing.T) {
	net := smallNet(t)
	x := tensor.FromMatrix([]float32{0.5, -0.5}, 1, 2)

	_, as := net.Forward(x, false)
	p := net.Predict(x)
	assert.Equal(t, as[len(as)-1].Data, p.Data)
}

func TestTrainStepShrinksQuadraticCost(t *testing.T) {
	net := smallNet(t)
	x := tensor.FromMatrix([]float32{0.3, -0.7}, 1, 2)
	y := tensor.FromMatrix([]float32{1, 0}, 1, 2)

	opt := optimizers.NewSGD(0.05, 0)
	weighted := net.WeightedLayers()
	opt.Bind(weighted)

	before := net.CostFunction().Cost(net.Predict(x), y)
	grads := net.TrainStep(x, y)
	require.NotEmpty(t, grads)
	for _, g := range grads {
		opt.Update(g.LayerIndex, g.DW, g.DB, 1, weighted[g.LayerIndex])
	}
	after := net.CostFunction().Cost(net.Predict(x), y)

	assert.Less(t, after, before, "one small SGD step must strictly reduce the cost")
}

func TestSequentialGradientNumeric(t *testing.T) {
	net := smallNet(t)
	x := tensor.FromMatrix([]float32{0.3, -0.7}, 1, 2)
	y := tensor.FromMatrix([]float32{1, 0}, 1, 2)

	grads := net.TrainStep(x, y)
	weighted := net.WeightedLayers()

	const h = 1e-2
	for _, g := range grads {
		w := weighted[g.LayerIndex].Weights()
		for i := range w.Data {
			saved := w.Data[i]
			w.Data[i] = saved + h
			up := float64(net.CostFunction().Cost(net.Predict(x), y))
			w.Data[i] = saved - h
			down := float64(net.CostFunction().Cost(net.Predict(x), y))
			w.Data[i] = saved
			numeric := (up - down) / (2 * h)
			assert.InDelta(t, numeric, float64(g.DW.Data[i]), 5e-2,
				"layer %d weight %d", g.LayerIndex, i)
		}
	}
}

func TestSequentialCloneAndEquals(t *testing.T) {
	net := smallNet(t)
	c := net.Clone()
	require.True(t, net.Equals(c))

	c.WeightedLayers()[0].Weights().Data[0] += 1
	assert.False(t, net.Equals(c))
}

func TestConvChainTrains(t *testing.T) {
	net := NewSequential(tensor.Volume(1, 6, 6),
		layers.NewConv2D(tensor.Volume(1, 6, 6), 2, 3, 3, activations.ReLU),
		layers.NewMaxPool2D(tensor.Volume(2, 4, 4), activations.Identity),
		layers.NewSoftmaxOutput(2*2*2, 3),
	)

	x := tensor.New(2, 1, 6, 6)
	for i := range x.Data {
		x.Data[i] = float32(i%5)*0.1 - 0.2
	}
	y := tensor.FromMatrix([]float32{
		1, 0, 0,
		0, 0, 1,
	}, 2, 3)

	grads := net.TrainStep(x, y)
	require.Len(t, grads, 2)
	assert.Equal(t, net.WeightedLayers()[0].Weights().Size(), grads[0].DW.Size())
}

func TestAccuracy(t *testing.T) {
	yHat := tensor.FromMatrix([]float32{
		0.9, 0.1,
		0.2, 0.8,
		0.6, 0.4,
	}, 3, 2)
	y := tensor.FromMatrix([]float32{
		1, 0,
		0, 1,
		0, 1,
	}, 3, 2)

	assert.InDelta(t, 2.0/3.0, float64(Accuracy(yHat, y)), 1e-6)
}

func TestHasNaN(t *testing.T) {
	net := smallNet(t)
	assert.False(t, HasNaN(net))

	net.WeightedLayers()[0].Weights().Data[0] = float32(math.NaN())
	assert.True(t, HasNaN(net))
}
