package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/tensor"
)

func TestGraphSumMerge(t *testing.T) {
	b := NewGraphBuilder(tensor.Linear(2))
	left := b.Layer(b.Input(), layers.NewDense(2, 3, activations.Tanh))
	right := b.Layer(b.Input(), layers.NewDense(2, 3, activations.Tanh))
	merged := b.Sum(activations.Identity, left, right)
	b.Layer(merged, layers.NewOutput(3, 2, activations.Identity, cost.Quadratic))

	g, err := b.Build()
	require.NoError(t, err)

	x := tensor.FromMatrix([]float32{0.5, -0.5}, 1, 2)
	y := tensor.FromMatrix([]float32{1, 0}, 1, 2)

	p := g.Predict(x)
	assert.Equal(t, 2, p.EntityLen())

	grads := g.TrainStep(x, y)
	assert.Len(t, grads, 3)
}

func TestGraphSumForwardValue(t *testing.T) {
	// two identity dense branches summed: output = 2*x
	w := []float32{1, 0, 0, 1}
	zero := []float32{0, 0}
	l1, err := layers.RestoreDense(2, 2, activations.Identity, w, zero)
	require.NoError(t, err)
	l2, err := layers.RestoreDense(2, 2, activations.Identity, w, zero)
	require.NoError(t, err)
	out, err := layers.RestoreOutput(2, 2, activations.Identity, cost.Quadratic, w, zero)
	require.NoError(t, err)

	b := NewGraphBuilder(tensor.Linear(2))
	n1 := b.Layer(b.Input(), l1)
	n2 := b.Layer(b.Input(), l2)
	m := b.Sum(activations.Identity, n1, n2)
	b.Layer(m, out)

	g, err := b.Build()
	require.NoError(t, err)

	x := tensor.FromMatrix([]float32{3, 5}, 1, 2)
	p := g.Predict(x)
	assert.Equal(t, []float32{6, 10}, p.Data)
}

func TestGraphDepthConcat(t *testing.T) {
	in := tensor.Volume(1, 4, 4)
	b := NewGraphBuilder(in)
	c1 := b.Layer(b.Input(), layers.NewConv2D(in, 2, 1, 1, activations.ReLU))
	c2 := b.Layer(b.Input(), layers.NewConv2D(in, 3, 1, 1, activations.ReLU))
	cat := b.DepthConcat(activations.Identity, c1, c2)
	assert.Equal(t, tensor.Volume(5, 4, 4), cat.Shape())

	b.Layer(cat, layers.NewSoftmaxOutput(5*4*4, 2))
	g, err := b.Build()
	require.NoError(t, err)

	x := tensor.New(2, 1, 4, 4)
	for i := range x.Data {
		x.Data[i] = float32(i) * 0.01
	}
	y := tensor.FromMatrix([]float32{1, 0, 0, 1}, 2, 2)

	grads := g.TrainStep(x, y)
	assert.Len(t, grads, 3)
}

func TestGraphTrainingBranchSkippedAtInference(t *testing.T) {
	b := NewGraphBuilder(tensor.Linear(2))
	hidden := b.Layer(b.Input(), layers.NewDense(2, 4, activations.Tanh))

	aux := b.TrainingBranch(hidden)
	b.Layer(aux, layers.NewOutput(4, 2, activations.Identity, cost.Quadratic))

	b.Layer(hidden, layers.NewOutput(4, 2, activations.Identity, cost.Quadratic))

	g, err := b.Build()
	require.NoError(t, err)

	x := tensor.FromMatrix([]float32{1, -1}, 1, 2)
	y := tensor.FromMatrix([]float32{0, 1}, 1, 2)

	// inference: only the main tail runs
	_, as := g.Forward(x, false)
	auxOutputs := 0
	for _, n := range g.Nodes() {
		if n.auxiliary && as[n.id] != nil {
			auxOutputs++
		}
	}
	assert.Zero(t, auxOutputs)

	// training: the auxiliary head contributes gradients to the shared layer
	grads := g.TrainStep(x, y)
	assert.Len(t, grads, 3)
}

func TestGraphValidation(t *testing.T) {
	// no output node
	b := NewGraphBuilder(tensor.Linear(2))
	b.Layer(b.Input(), layers.NewDense(2, 2, activations.Tanh))
	_, err := b.Build()
	assert.Error(t, err)

	// two main outputs
	b2 := NewGraphBuilder(tensor.Linear(2))
	b2.Layer(b2.Input(), layers.NewOutput(2, 2, activations.Identity, cost.Quadratic))
	b2.Layer(b2.Input(), layers.NewOutput(2, 2, activations.Identity, cost.Quadratic))
	_, err = b2.Build()
	assert.Error(t, err)
}

func TestGraphCloneAndEquals(t *testing.T) {
	b := NewGraphBuilder(tensor.Linear(2))
	h := b.Layer(b.Input(), layers.NewDense(2, 3, activations.Tanh))
	b.Layer(h, layers.NewOutput(3, 2, activations.Identity, cost.Quadratic))
	g, err := b.Build()
	require.NoError(t, err)

	c := g.Clone()
	require.True(t, g.Equals(c))

	c.WeightedLayers()[0].Weights().Data[0] += 1
	assert.False(t, g.Equals(c))
}

func TestInceptionBlockShapes(t *testing.T) {
	in := tensor.Volume(4, 8, 8)
	b := NewGraphBuilder(in)
	cfg := InceptionConfig{
		Conv1x1:    8,
		Reduce3x3:  4,
		Conv3x3:    8,
		Reduce5x5:  2,
		Conv5x5:    4,
		Activation: activations.ReLU,
	}
	block := b.Inception(b.Input(), cfg)
	assert.Equal(t, tensor.Volume(cfg.OutputChannels(), 8, 8), block.Shape())

	b.Layer(block, layers.NewSoftmaxOutput(20*8*8, 3))
	g, err := b.Build()
	require.NoError(t, err)

	x := tensor.New(1, 4, 8, 8)
	p := g.Predict(x)
	assert.Equal(t, 3, p.EntityLen())

	y := tensor.FromMatrix([]float32{0, 1, 0}, 1, 3)
	grads := g.TrainStep(x, y)
	assert.Len(t, grads, 6) // five convs plus the output layer
}
