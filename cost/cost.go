package cost

import (
	"fmt"
	"math"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// Function identifies a cost function. The numeric values double as the
// on-disk tags, so they must stay stable.
type Function byte

const (
	Quadratic Function = iota
	CrossEntropy
	LogLikelihood
)

func (f Function) String() string {
	switch f {
	case Quadratic:
		return "Quadratic"
	case CrossEntropy:
		return "CrossEntropy"
	case LogLikelihood:
		return "LogLikelihood"
	}
	return fmt.Sprintf("Function(%d)", byte(f))
}

// Parse maps a stored tag back to a Function.
func Parse(tag byte) (Function, error) {
	f := Function(tag)
	if f > LogLikelihood {
		return 0, fmt.Errorf("cost: unknown function tag %d", tag)
	}
	return f, nil
}

// Cost evaluates the scalar cost of predictions yHat against targets y,
// normalized per sample so values are comparable across batch sizes. Both
// tensors are read through their entities x length views, so the exact NCHW
// factoring does not matter as long as the per-sample lengths agree.
func (f Function) Cost(yHat, y *tensor.Tensor) float32 {
	if yHat.Entities() != y.Entities() || yHat.EntityLen() != y.EntityLen() {
		panic(fmt.Sprintf("cost: shape mismatch, yHat %s y %s", yHat.ShapeString(), y.ShapeString()))
	}

	switch f {
	case Quadratic:
		return quadraticCost(yHat, y)
	case CrossEntropy:
		return crossEntropyCost(yHat, y)
	case LogLikelihood:
		return logLikelihoodCost(yHat, y)
	}
	panic(fmt.Sprintf("cost: unknown function %d", byte(f)))
}

// Prime writes the output-layer error delta into dx. z is the output layer's
// pre-activation and act its activation function; cross-entropy and
// log-likelihood skip the activation derivative by contract.
func (f Function) Prime(yHat, y, z *tensor.Tensor, act activations.Function, dx *tensor.Tensor) {
	if yHat.Entities() != y.Entities() || yHat.EntityLen() != y.EntityLen() ||
		!yHat.SameSize(z) || !yHat.SameSize(dx) {
		panic(fmt.Sprintf("cost: prime shape mismatch, yHat %s y %s z %s dx %s",
			yHat.ShapeString(), y.ShapeString(), z.ShapeString(), dx.ShapeString()))
	}

	yHatV, yV, zV, dxV := yHat.MatrixView(), y.MatrixView(), z.MatrixView(), dx.MatrixView()

	switch f {
	case Quadratic:
		kernels.Subtract(yHatV, yV, dxV)
		kernels.ActivateBack(act, zV, dxV, dxV)
	case CrossEntropy, LogLikelihood:
		// The activation derivative cancels analytically against the
		// matching output activation (sigmoid resp. softmax).
		kernels.Subtract(yHatV, yV, dxV)
	default:
		panic(fmt.Sprintf("cost: unknown function %d", byte(f)))
	}
}

func quadraticCost(yHat, y *tensor.Tensor) float32 {
	var sum float32
	for i, v := range yHat.Data {
		d := v - y.Data[i]
		sum += d * d
	}
	return sum / 2 / float32(yHat.Entities())
}

func crossEntropyCost(yHat, y *tensor.Tensor) float32 {
	var sum float64
	for i, v := range yHat.Data {
		t := float64(y.Data[i])
		p := float64(v)
		contribution := t*math.Log(p) + (1-t)*math.Log(1-p)

		switch {
		case math.IsNaN(contribution):
			// 0*log(0) convention: contributes nothing.
		case math.IsInf(contribution, -1):
			sum += -math.MaxFloat32
		case math.IsInf(contribution, 1):
			panic(fmt.Sprintf("cost: cross-entropy overflow at element %d (yHat=%v y=%v)", i, v, y.Data[i]))
		default:
			sum += contribution
		}
	}
	return float32(-sum / float64(yHat.Entities()))
}

func logLikelihoodCost(yHat, y *tensor.Tensor) float32 {
	var sum float64
	l := y.EntityLen()
	for n := 0; n < y.Entities(); n++ {
		row := y.Sample(n)
		argmax := 0
		for j, v := range row {
			if v > row[argmax] {
				argmax = j
			}
		}
		sum += math.Log(float64(yHat.Data[n*l+argmax]))
	}
	return float32(-sum / float64(yHat.Entities()))
}
