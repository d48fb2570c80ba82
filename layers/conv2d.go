package layers

import (
	"fmt"
	"math/rand"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Conv2D is a valid-convolution layer. The kernel stack is laid out
// (kernels, in_channels, kernel_h, kernel_w) with one bias per kernel.
type Conv2D struct {
	inShape    tensor.Shape
	kernelsN   int
	kernelH    int
	kernelW    int
	activation activations.Function
	weights    *tensor.Tensor // (kernelsN, inShape.C, kernelH, kernelW)
	biases     *tensor.Tensor // (1, kernelsN)
}

// NewConv2D creates a convolutional layer with initialized weights. The
// kernel must fit entirely inside the input volume.
func NewConv2D(inShape tensor.Shape, kernelCount, kernelH, kernelW int, activation activations.Function) *Conv2D {
	if kernelCount < 1 {
		panic(fmt.Sprintf("layers: conv needs at least one kernel, got %d", kernelCount))
	}
	if kernelH < 1 || kernelW < 1 || inShape.H < kernelH || inShape.W < kernelW {
		panic(fmt.Sprintf("layers: conv kernel %dx%d does not fit input %s", kernelH, kernelW, inShape))
	}

	c := &Conv2D{
		inShape:    inShape,
		kernelsN:   kernelCount,
		kernelH:    kernelH,
		kernelW:    kernelW,
		activation: activation,
		weights:    tensor.New(kernelCount, inShape.C, kernelH, kernelW),
		biases:     tensor.NewMatrix(1, kernelCount),
	}
	fanIn := inShape.C * kernelH * kernelW
	fanOut := kernelCount * kernelH * kernelW
	initWeights(c.weights, fanIn, fanOut, activation, rand.New(rand.NewSource(rand.Int63())))
	return c
}

func newConv2DWithParams(inShape tensor.Shape, kernelCount, kernelH, kernelW int, activation activations.Function, w, b *tensor.Tensor) *Conv2D {
	return &Conv2D{
		inShape:    inShape,
		kernelsN:   kernelCount,
		kernelH:    kernelH,
		kernelW:    kernelW,
		activation: activation,
		weights:    w,
		biases:     b,
	}
}

func (c *Conv2D) Type() Type                       { return ConvolutionalType }
func (c *Conv2D) Activation() activations.Function { return c.activation }
func (c *Conv2D) InputShape() tensor.Shape         { return c.inShape }

func (c *Conv2D) OutputShape() tensor.Shape {
	return tensor.Volume(c.kernelsN, c.inShape.H-c.kernelH+1, c.inShape.W-c.kernelW+1)
}

// KernelSize returns (height, width, input channels) of the kernel stack.
func (c *Conv2D) KernelSize() (int, int, int) {
	return c.kernelH, c.kernelW, c.inShape.C
}

func (c *Conv2D) Weights() *tensor.Tensor { return c.weights }
func (c *Conv2D) Biases() *tensor.Tensor  { return c.biases }

func (c *Conv2D) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if !c.inShape.Matches(x) {
		panic(fmt.Sprintf("layers: conv input %s, want %s", x.ShapeString(), c.inShape))
	}

	z := c.OutputShape().NewBatch(x.N)
	kernels.ConvolveForward(x, c.weights, c.biases, z)

	a := tensor.Like(z)
	kernels.Activate(c.activation, z, a)
	return z, a
}

func (c *Conv2D) Backward(x, dy *tensor.Tensor, computeDx bool) (dx, dJdw, dJdb *tensor.Tensor) {
	dJdw = tensor.Like(c.weights)
	kernels.ConvolveBackwardFilter(x, dy, dJdw)

	dJdb = tensor.NewMatrix(1, c.kernelsN)
	kernels.ConvolveBackwardBias(dy, dJdb)

	if computeDx {
		dx = tensor.Like(x)
		kernels.ConvolveBackwardData(dy, c.weights, dx)
	}
	return dx, dJdw, dJdb
}

func (c *Conv2D) Clone() Layer {
	return newConv2DWithParams(c.inShape, c.kernelsN, c.kernelH, c.kernelW, c.activation,
		c.weights.Clone(), c.biases.Clone())
}

func (c *Conv2D) Equals(other Layer) bool {
	o, ok := other.(*Conv2D)
	if !ok {
		return false
	}
	return c.inShape == o.inShape && c.kernelsN == o.kernelsN &&
		c.kernelH == o.kernelH && c.kernelW == o.kernelW &&
		c.activation == o.activation &&
		c.weights.Equal(o.weights) && c.biases.Equal(o.biases)
}
