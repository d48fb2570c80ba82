package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Activation applies an element-wise activation and nothing else. Its z is a
// copy of the input so the backward activation derivative has the usual
// pre-activation to work from.
type Activation struct {
	shape      tensor.Shape
	activation activations.Function
}

func NewActivation(shape tensor.Shape, activation activations.Function) *Activation {
	return &Activation{shape: shape, activation: activation}
}

func (a *Activation) Type() Type                       { return ActivationType }
func (a *Activation) Activation() activations.Function { return a.activation }
func (a *Activation) InputShape() tensor.Shape         { return a.shape }
func (a *Activation) OutputShape() tensor.Shape        { return a.shape }

func (a *Activation) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if !a.shape.Matches(x) {
		panic(fmt.Sprintf("layers: activation input %s, want %s", x.ShapeString(), a.shape))
	}

	z := x.Clone()
	out := tensor.Like(z)
	kernels.Activate(a.activation, z, out)
	return z, out
}

// Backward passes the delta straight through; the network applies this
// layer's activation derivative when it forms the delta, so nothing is left
// to do here.
func (a *Activation) Backward(x, dy *tensor.Tensor) *tensor.Tensor {
	return dy.Clone()
}

func (a *Activation) Clone() Layer {
	return &Activation{shape: a.shape, activation: a.activation}
}

func (a *Activation) Equals(other Layer) bool {
	o, ok := other.(*Activation)
	if !ok {
		return false
	}
	return a.shape == o.shape && a.activation == o.activation
}
