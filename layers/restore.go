package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// The Restore constructors rebuild layers from persisted parameters. Unlike
// the New constructors they never panic: a malformed stream must surface as
// an error from the loader.

func restoreParams(wData, bData []float32, wantW, wantB int) (*tensor.Tensor, *tensor.Tensor, error) {
	if len(wData) != wantW {
		return nil, nil, fmt.Errorf("layers: restored weight length %d, want %d", len(wData), wantW)
	}
	if len(bData) != wantB {
		return nil, nil, fmt.Errorf("layers: restored bias length %d, want %d", len(bData), wantB)
	}
	w := tensor.FromMatrix(wData, 1, wantW)
	b := tensor.FromMatrix(bData, 1, wantB)
	return w, b, nil
}

func RestoreDense(inputs, outputs int, activation activations.Function, wData, bData []float32) (*Dense, error) {
	if inputs < 1 || outputs < 1 {
		return nil, fmt.Errorf("layers: restored dense sizes %d -> %d", inputs, outputs)
	}
	w, b, err := restoreParams(wData, bData, inputs*outputs, outputs)
	if err != nil {
		return nil, err
	}
	w.Reshape(inputs, 1, 1, outputs)
	return newDenseWithParams(inputs, outputs, activation, w, b), nil
}

func RestoreOutput(inputs, outputs int, activation activations.Function, costFn cost.Function, wData, bData []float32) (*Output, error) {
	if costFn == cost.LogLikelihood {
		return nil, fmt.Errorf("layers: restored output pairs log-likelihood with %s", activation)
	}
	if costFn == cost.CrossEntropy && activation != activations.Sigmoid {
		return nil, fmt.Errorf("layers: restored output pairs cross-entropy with %s", activation)
	}
	d, err := RestoreDense(inputs, outputs, activation, wData, bData)
	if err != nil {
		return nil, err
	}
	return &Output{Dense: d, cost: costFn}, nil
}

func RestoreSoftmaxOutput(inputs, outputs int, wData, bData []float32) (*SoftmaxOutput, error) {
	d, err := RestoreDense(inputs, outputs, activations.Softmax, wData, bData)
	if err != nil {
		return nil, err
	}
	return &SoftmaxOutput{Dense: d, cost: cost.LogLikelihood}, nil
}

func RestoreConv2D(inShape tensor.Shape, kernelCount, kernelH, kernelW int, activation activations.Function, wData, bData []float32) (*Conv2D, error) {
	if kernelCount < 1 || kernelH < 1 || kernelW < 1 || inShape.H < kernelH || inShape.W < kernelW {
		return nil, fmt.Errorf("layers: restored conv kernel %dx%dx%d does not fit input %s", kernelCount, kernelH, kernelW, inShape)
	}
	w, b, err := restoreParams(wData, bData, kernelCount*inShape.C*kernelH*kernelW, kernelCount)
	if err != nil {
		return nil, err
	}
	w.Reshape(kernelCount, inShape.C, kernelH, kernelW)
	return newConv2DWithParams(inShape, kernelCount, kernelH, kernelW, activation, w, b), nil
}

func RestoreBatchNorm(shape tensor.Shape, mode kernels.NormMode, activation activations.Function, gamma, beta, mu, sigma2 []float32) (*BatchNorm, error) {
	want := mode.ParamLen(shape.C, shape.H, shape.W)
	for name, data := range map[string][]float32{"gamma": gamma, "beta": beta, "mu": mu, "sigma2": sigma2} {
		if len(data) != want {
			return nil, fmt.Errorf("layers: restored batch norm %s length %d, want %d", name, len(data), want)
		}
	}

	b := NewBatchNorm(shape, mode, activation, nil)
	copy(b.gamma.Data, gamma)
	copy(b.beta.Data, beta)
	copy(b.runningMu.Data, mu)
	copy(b.runningVar.Data, sigma2)
	return b, nil
}
