package layers

import (
	"fmt"
	"math/rand"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Dense is a fully-connected layer: z = x*W + b, a = f(z). W is laid out
// (inputs, outputs) so forward is a single GEMM over the batch.
type Dense struct {
	inputs     int
	outputs    int
	activation activations.Function
	weights    *tensor.Tensor // (inputs, outputs)
	biases     *tensor.Tensor // (1, outputs)
}

// NewDense creates a fully-connected layer with initialized weights.
func NewDense(inputs, outputs int, activation activations.Function) *Dense {
	if inputs < 1 || outputs < 1 {
		panic(fmt.Sprintf("layers: dense needs positive sizes, got %d -> %d", inputs, outputs))
	}

	d := &Dense{
		inputs:     inputs,
		outputs:    outputs,
		activation: activation,
		weights:    tensor.NewMatrix(inputs, outputs),
		biases:     tensor.NewMatrix(1, outputs),
	}
	initWeights(d.weights, inputs, outputs, activation, rand.New(rand.NewSource(rand.Int63())))
	return d
}

// newDenseWithParams builds a dense layer around existing parameter tensors,
// used by Clone and the loader.
func newDenseWithParams(inputs, outputs int, activation activations.Function, w, b *tensor.Tensor) *Dense {
	return &Dense{
		inputs:     inputs,
		outputs:    outputs,
		activation: activation,
		weights:    w,
		biases:     b,
	}
}

func (d *Dense) Type() Type                      { return FullyConnectedType }
func (d *Dense) Activation() activations.Function { return d.activation }
func (d *Dense) InputShape() tensor.Shape        { return tensor.Linear(d.inputs) }
func (d *Dense) OutputShape() tensor.Shape       { return tensor.Linear(d.outputs) }
func (d *Dense) Weights() *tensor.Tensor         { return d.weights }
func (d *Dense) Biases() *tensor.Tensor          { return d.biases }

func (d *Dense) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if x.EntityLen() != d.inputs {
		panic(fmt.Sprintf("layers: dense input %s, want %d values per sample", x.ShapeString(), d.inputs))
	}

	z := d.OutputShape().NewBatch(x.N)
	kernels.Multiply(x, d.weights, z)
	for n := 0; n < z.N; n++ {
		row := z.Sample(n)
		for j := range row {
			row[j] += d.biases.Data[j]
		}
	}

	a := tensor.Like(z)
	d.activate(z, a)
	return z, a
}

// activate runs the element-wise activation pass. SoftmaxOutput does not
// override it; it supplies its own Forward instead.
func (d *Dense) activate(z, a *tensor.Tensor) {
	kernels.Activate(d.activation, z, a)
}

func (d *Dense) Backward(x, dy *tensor.Tensor, computeDx bool) (dx, dJdw, dJdb *tensor.Tensor) {
	if x.Entities() != dy.Entities() || dy.EntityLen() != d.outputs {
		panic(fmt.Sprintf("layers: dense backward x %s dy %s", x.ShapeString(), dy.ShapeString()))
	}

	xT := tensor.NewMatrix(d.inputs, x.N)
	kernels.Transpose(x, xT)
	dJdw = tensor.NewMatrix(d.inputs, d.outputs)
	kernels.Multiply(xT, dy, dJdw)

	dJdb = tensor.NewMatrix(1, d.outputs)
	kernels.CompressVertically(dy, dJdb)

	if computeDx {
		wT := tensor.NewMatrix(d.outputs, d.inputs)
		kernels.Transpose(d.weights, wT)
		dx = tensor.Like(x)
		kernels.Multiply(dy, wT, dx)
	}
	return dx, dJdw, dJdb
}

func (d *Dense) Clone() Layer {
	return newDenseWithParams(d.inputs, d.outputs, d.activation, d.weights.Clone(), d.biases.Clone())
}

func (d *Dense) Equals(other Layer) bool {
	o, ok := other.(*Dense)
	if !ok {
		return false
	}
	return d.inputs == o.inputs && d.outputs == o.outputs &&
		d.activation == o.activation &&
		d.weights.Equal(o.weights) && d.biases.Equal(o.biases)
}
