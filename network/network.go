package network

import (
	"math"

	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/tensor"
)

// Network is the training-facing surface shared by the sequential chain and
// the DAG graph.
type Network interface {
	InputShape() tensor.Shape
	OutputShape() tensor.Shape
	CostFunction() cost.Function

	// WeightedLayers lists the trainable layers in topological order; the
	// slice index is the layer index used by optimizers.
	WeightedLayers() []layers.Weighted

	// TrainStep runs one forward/backward pass over a batch and returns the
	// parameter gradients, one entry per weighted layer that produced any.
	TrainStep(x, y *tensor.Tensor) []Gradients

	// Predict runs an inference-mode forward pass and returns the main
	// output activation.
	Predict(x *tensor.Tensor) *tensor.Tensor

	Clone() Network
	Equals(Network) bool
}

// Gradients pairs a weighted layer's index with the gradients one batch
// produced for it.
type Gradients struct {
	LayerIndex int
	DW         *tensor.Tensor
	DB         *tensor.Tensor
}

// outputLayer is what a terminal node must wrap.
type outputLayer interface {
	layers.Weighted
	Cost() cost.Function
}

// Evaluate computes the mean cost and argmax accuracy of net over a labelled
// set.
func Evaluate(net Network, x, y *tensor.Tensor) (float32, float32) {
	yHat := net.Predict(x)
	c := net.CostFunction().Cost(yHat, y)
	return c, Accuracy(yHat, y)
}

// Accuracy reports the share of samples whose predicted argmax matches the
// target argmax.
func Accuracy(yHat, y *tensor.Tensor) float32 {
	n := yHat.Entities()
	l := yHat.EntityLen()
	correct := 0
	for i := 0; i < n; i++ {
		if argmax(yHat.Data[i*l:(i+1)*l]) == argmax(y.Data[i*l:(i+1)*l]) {
			correct++
		}
	}
	return float32(correct) / float32(n)
}

func argmax(row []float32) int {
	best := 0
	for j, v := range row {
		if v > row[best] {
			best = j
		}
	}
	return best
}

// HasNaN reports whether any trainable parameter of net has gone NaN, the
// trainer's numeric-overflow probe.
func HasNaN(net Network) bool {
	for _, l := range net.WeightedLayers() {
		if tensorHasNaN(l.Weights()) || tensorHasNaN(l.Biases()) {
			return true
		}
	}
	return false
}

func tensorHasNaN(t *tensor.Tensor) bool {
	for _, v := range t.Data {
		if math.IsNaN(float64(v)) {
			return true
		}
	}
	return false
}
