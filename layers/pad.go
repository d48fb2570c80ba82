package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Pad surrounds the spatial dims with a zero border, letting a following
// valid convolution preserve spatial extent. It carries no parameters and no
// activation of its own.
type Pad struct {
	inShape tensor.Shape
	pad     int
}

func NewPad(inShape tensor.Shape, pad int) *Pad {
	if pad < 1 {
		panic(fmt.Sprintf("layers: pad must be positive, got %d", pad))
	}
	return &Pad{inShape: inShape, pad: pad}
}

func (p *Pad) Type() Type                       { return PaddingType }
func (p *Pad) Activation() activations.Function { return activations.Identity }
func (p *Pad) InputShape() tensor.Shape         { return p.inShape }
func (p *Pad) Padding() int                     { return p.pad }

func (p *Pad) OutputShape() tensor.Shape {
	return tensor.Volume(p.inShape.C, p.inShape.H+2*p.pad, p.inShape.W+2*p.pad)
}

func (p *Pad) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if !p.inShape.Matches(x) {
		panic(fmt.Sprintf("layers: pad input %s, want %s", x.ShapeString(), p.inShape))
	}

	z := p.OutputShape().NewBatch(x.N)
	kernels.PadForward(x, z, p.pad)
	return z, z.Clone()
}

func (p *Pad) Backward(x, dy *tensor.Tensor) *tensor.Tensor {
	dx := tensor.Like(x)
	kernels.PadBackward(dy, dx, p.pad)
	return dx
}

func (p *Pad) Clone() Layer {
	return &Pad{inShape: p.inShape, pad: p.pad}
}

func (p *Pad) Equals(other Layer) bool {
	o, ok := other.(*Pad)
	if !ok {
		return false
	}
	return p.inShape == o.inShape && p.pad == o.pad
}
