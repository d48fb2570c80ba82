package layers

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/tensor"
)

// Type identifies a layer kind. The numeric values double as the on-disk
// tags, so they must stay stable.
type Type byte

const (
	FullyConnectedType Type = iota
	ConvolutionalType
	PoolingType
	BatchNormType
	ActivationType
	SoftmaxType
	OutputType
	PaddingType
)

func (t Type) String() string {
	switch t {
	case FullyConnectedType:
		return "FullyConnected"
	case ConvolutionalType:
		return "Convolutional"
	case PoolingType:
		return "Pooling"
	case BatchNormType:
		return "BatchNorm"
	case ActivationType:
		return "Activation"
	case SoftmaxType:
		return "Softmax"
	case OutputType:
		return "Output"
	case PaddingType:
		return "Padding"
	}
	return fmt.Sprintf("Type(%d)", byte(t))
}

// Layer is the uniform surface every network node wraps. Forward returns the
// pre-activation z and the post-activation a; z is what backward passes need
// for the activation derivative.
type Layer interface {
	Type() Type
	Activation() activations.Function
	InputShape() tensor.Shape
	OutputShape() tensor.Shape
	Forward(x *tensor.Tensor, training bool) (z, a *tensor.Tensor)
	Clone() Layer
	Equals(Layer) bool
}

// Weighted is a layer owning trainable weight and bias arrays. Backward
// consumes dy as the error delta with respect to this layer's z and emits
// freshly allocated gradients; dx is the gradient with respect to the
// layer's input activation and is skipped when computeDx is false (the first
// layer has nowhere to send it).
type Weighted interface {
	Layer
	Weights() *tensor.Tensor
	Biases() *tensor.Tensor
	Backward(x, dy *tensor.Tensor, computeDx bool) (dx, dJdw, dJdb *tensor.Tensor)
}

// Constant is a parameter-free layer; backward only routes the delta.
type Constant interface {
	Layer
	Backward(x, dy *tensor.Tensor) *tensor.Tensor
}

// heInit fills w with He-normal samples, the right scale for ReLU-family
// activations.
func heInit(w *tensor.Tensor, fanIn int, rng *rand.Rand) {
	std := float32(math.Sqrt(2 / float64(fanIn)))
	for i := range w.Data {
		w.Data[i] = float32(rng.NormFloat64()) * std
	}
}

// xavierInit fills w with Xavier-uniform samples for saturating activations.
func xavierInit(w *tensor.Tensor, fanIn, fanOut int, rng *rand.Rand) {
	limit := float32(math.Sqrt(6 / float64(fanIn+fanOut)))
	for i := range w.Data {
		w.Data[i] = (rng.Float32()*2 - 1) * limit
	}
}

func initWeights(w *tensor.Tensor, fanIn, fanOut int, act activations.Function, rng *rand.Rand) {
	switch act {
	case activations.ReLU, activations.LeakyReLU, activations.ELU:
		heInit(w, fanIn, rng)
	default:
		xavierInit(w, fanIn, fanOut, rng)
	}
}
