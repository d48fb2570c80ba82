package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Output is the terminal fully-connected layer paired with a cost function.
// Invalid activation/cost pairings are refused at construction.
type Output struct {
	*Dense
	cost cost.Function
}

// NewOutput creates a generic output layer. Log-likelihood is reserved for
// the softmax output; cross-entropy demands a sigmoid activation.
func NewOutput(inputs, outputs int, activation activations.Function, costFn cost.Function) *Output {
	if costFn == cost.LogLikelihood {
		panic("layers: log-likelihood cost requires a softmax output layer")
	}
	if costFn == cost.CrossEntropy && activation != activations.Sigmoid {
		panic(fmt.Sprintf("layers: cross-entropy cost requires a sigmoid output, got %s", activation))
	}
	if activation == activations.Softmax {
		panic("layers: softmax activation requires the softmax output layer")
	}

	return &Output{
		Dense: NewDense(inputs, outputs, activation),
		cost:  costFn,
	}
}

func (o *Output) Type() Type              { return OutputType }
func (o *Output) Cost() cost.Function     { return o.cost }

func (o *Output) Clone() Layer {
	return &Output{
		Dense: o.Dense.Clone().(*Dense),
		cost:  o.cost,
	}
}

func (o *Output) Equals(other Layer) bool {
	ot, ok := other.(*Output)
	if !ok {
		return false
	}
	return o.cost == ot.cost && o.Dense.Equals(ot.Dense)
}

// SoftmaxOutput is the output layer whose forward pass runs the row-wise
// softmax kernel. It always pairs with the log-likelihood cost.
type SoftmaxOutput struct {
	*Dense
	cost cost.Function
}

func NewSoftmaxOutput(inputs, outputs int) *SoftmaxOutput {
	return &SoftmaxOutput{
		Dense: NewDense(inputs, outputs, activations.Softmax),
		cost:  cost.LogLikelihood,
	}
}

func (s *SoftmaxOutput) Type() Type          { return SoftmaxType }
func (s *SoftmaxOutput) Cost() cost.Function { return s.cost }

func (s *SoftmaxOutput) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if x.EntityLen() != s.inputs {
		panic(fmt.Sprintf("layers: softmax output input %s, want %d values per sample", x.ShapeString(), s.inputs))
	}

	z := s.OutputShape().NewBatch(x.N)
	kernels.Multiply(x, s.weights, z)
	for n := 0; n < z.N; n++ {
		row := z.Sample(n)
		for j := range row {
			row[j] += s.biases.Data[j]
		}
	}

	a := tensor.Like(z)
	kernels.SoftmaxForward(z, a)
	return z, a
}

func (s *SoftmaxOutput) Clone() Layer {
	return &SoftmaxOutput{
		Dense: s.Dense.Clone().(*Dense),
		cost:  s.cost,
	}
}

func (s *SoftmaxOutput) Equals(other Layer) bool {
	o, ok := other.(*SoftmaxOutput)
	if !ok {
		return false
	}
	return s.Dense.Equals(o.Dense)
}
