package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// MaxPool2D is the fixed 2x2 stride-2 max-pooling layer. Odd inputs pool
// their trailing row/column over the partial window.
type MaxPool2D struct {
	inShape    tensor.Shape
	activation activations.Function
}

func NewMaxPool2D(inShape tensor.Shape, activation activations.Function) *MaxPool2D {
	return &MaxPool2D{inShape: inShape, activation: activation}
}

func (m *MaxPool2D) Type() Type                       { return PoolingType }
func (m *MaxPool2D) Activation() activations.Function { return m.activation }
func (m *MaxPool2D) InputShape() tensor.Shape         { return m.inShape }

func (m *MaxPool2D) OutputShape() tensor.Shape {
	return tensor.Volume(m.inShape.C, (m.inShape.H+1)/2, (m.inShape.W+1)/2)
}

func (m *MaxPool2D) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if !m.inShape.Matches(x) {
		panic(fmt.Sprintf("layers: pool input %s, want %s", x.ShapeString(), m.inShape))
	}

	z := m.OutputShape().NewBatch(x.N)
	kernels.PoolForward(x, z)

	a := tensor.Like(z)
	kernels.Activate(m.activation, z, a)
	return z, a
}

// Backward routes dy through the pooling windows of x. The returned dx
// aliases x: the pooling kernel rewrites the cached input in place, which is
// safe because x is not read again for this batch.
func (m *MaxPool2D) Backward(x, dy *tensor.Tensor) *tensor.Tensor {
	kernels.PoolBackward(x, dy)
	return x
}

func (m *MaxPool2D) Clone() Layer {
	return &MaxPool2D{inShape: m.inShape, activation: m.activation}
}

func (m *MaxPool2D) Equals(other Layer) bool {
	o, ok := other.(*MaxPool2D)
	if !ok {
		return false
	}
	return m.inShape == o.inShape && m.activation == o.activation
}
