package network

import (
	"fmt"

	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/tensor"
)

// Sequential is a plain chain of layers ending in an output layer.
type Sequential struct {
	input  tensor.Shape
	layers []layers.Layer
	costFn cost.Function
}

// NewSequential validates the chain: each layer's input size must equal its
// predecessor's output size, and the last layer must be an output layer.
func NewSequential(input tensor.Shape, ls ...layers.Layer) *Sequential {
	if len(ls) == 0 {
		panic("network: sequential needs at least one layer")
	}

	prev := input
	for i, l := range ls {
		if l.InputShape().Size() != prev.Size() {
			panic(fmt.Sprintf("network: layer %d (%s) expects input %s, previous produces %s",
				i, l.Type(), l.InputShape(), prev))
		}
		prev = l.OutputShape()
	}

	out, ok := ls[len(ls)-1].(outputLayer)
	if !ok {
		panic(fmt.Sprintf("network: last layer must be an output layer, got %s", ls[len(ls)-1].Type()))
	}

	return &Sequential{input: input, layers: ls, costFn: out.Cost()}
}

func (s *Sequential) InputShape() tensor.Shape  { return s.input }
func (s *Sequential) OutputShape() tensor.Shape { return s.layers[len(s.layers)-1].OutputShape() }
func (s *Sequential) CostFunction() cost.Function { return s.costFn }
func (s *Sequential) Layers() []layers.Layer    { return s.layers }

func (s *Sequential) WeightedLayers() []layers.Weighted {
	var ws []layers.Weighted
	for _, l := range s.layers {
		if w, ok := l.(layers.Weighted); ok {
			ws = append(ws, w)
		}
	}
	return ws
}

// Forward threads x through every layer and returns the per-layer
// pre-activation and activation stacks. Entry i holds layer i's outputs.
func (s *Sequential) Forward(x *tensor.Tensor, training bool) (zs, as []*tensor.Tensor) {
	zs = make([]*tensor.Tensor, len(s.layers))
	as = make([]*tensor.Tensor, len(s.layers))

	current := x
	for i, l := range s.layers {
		if current.EntityLen() != l.InputShape().Size() {
			panic(fmt.Sprintf("network: layer %d input %s, want %s", i, current.ShapeString(), l.InputShape()))
		}
		reshaped := viewAs(current, l.InputShape())
		zs[i], as[i] = l.Forward(reshaped, training)
		current = as[i]
	}
	return zs, as
}

// viewAs reinterprets t's per-sample data as shape sh without copying.
func viewAs(t *tensor.Tensor, sh tensor.Shape) *tensor.Tensor {
	if sh.Matches(t) {
		return t
	}
	v := &tensor.Tensor{Data: t.Data, N: t.N, C: t.C, H: t.H, W: t.W}
	v.Reshape(t.N, sh.C, sh.H, sh.W)
	return v
}

// Backward propagates the output delta down the chain, returning the
// gradients of every weighted layer. x is the batch input; zs and as are the
// stacks the forward pass produced; y holds the targets.
func (s *Sequential) Backward(x *tensor.Tensor, zs, as []*tensor.Tensor, y *tensor.Tensor) []Gradients {
	last := len(s.layers) - 1
	out := s.layers[last].(outputLayer)

	delta := tensor.Like(zs[last])
	s.costFn.Prime(as[last], y, zs[last], out.Activation(), delta)

	weightedIndex := len(s.WeightedLayers())
	var grads []Gradients

	for i := last; i >= 0; i-- {
		var input *tensor.Tensor
		if i == 0 {
			input = viewAs(x, s.layers[0].InputShape())
		} else {
			input = viewAs(as[i-1], s.layers[i].InputShape())
		}

		var dx *tensor.Tensor
		switch l := s.layers[i].(type) {
		case layers.Weighted:
			weightedIndex--
			var dw, db *tensor.Tensor
			dx, dw, db = l.Backward(input, delta, i > 0)
			grads = append(grads, Gradients{LayerIndex: weightedIndex, DW: dw, DB: db})
		case layers.Constant:
			if i > 0 {
				// constant backward may alias its input buffer (pooling);
				// never hand it the caller's batch tensor
				dx = l.Backward(input, delta)
			}
		default:
			panic(fmt.Sprintf("network: layer %d (%s) implements neither backward contract", i, s.layers[i].Type()))
		}

		if i > 0 {
			// dx is dJ/da of the previous layer; fold in its activation
			// derivative to form the next delta.
			delta = viewAs(dx, s.layers[i-1].OutputShape())
			kernels.ActivateBack(s.layers[i-1].Activation(), zs[i-1], delta, delta)
		}
	}

	// reverse into layer-index order for the optimizer
	for i, j := 0, len(grads)-1; i < j; i, j = i+1, j-1 {
		grads[i], grads[j] = grads[j], grads[i]
	}
	return grads
}

func (s *Sequential) TrainStep(x, y *tensor.Tensor) []Gradients {
	zs, as := s.Forward(x, true)
	return s.Backward(x, zs, as, y)
}

func (s *Sequential) Predict(x *tensor.Tensor) *tensor.Tensor {
	_, as := s.Forward(x, false)
	return as[len(as)-1]
}

func (s *Sequential) Clone() Network {
	cloned := make([]layers.Layer, len(s.layers))
	for i, l := range s.layers {
		cloned[i] = l.Clone()
	}
	return &Sequential{input: s.input, layers: cloned, costFn: s.costFn}
}

func (s *Sequential) Equals(other Network) bool {
	o, ok := other.(*Sequential)
	if !ok || s.input != o.input || len(s.layers) != len(o.layers) {
		return false
	}
	for i, l := range s.layers {
		if !l.Equals(o.layers[i]) {
			return false
		}
	}
	return true
}

// Summary renders a one-line-per-layer description.
func (s *Sequential) Summary() string {
	out := fmt.Sprintf("Sequential %s\n", s.input)
	for i, l := range s.layers {
		out += fmt.Sprintf("  %2d  %-14s %-10s %s -> %s\n", i, l.Type(), l.Activation(), l.InputShape(), l.OutputShape())
	}
	return out
}
