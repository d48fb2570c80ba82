package layers

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/tensor"
)

// MomentumSchedule yields the running-statistics blend factor for a given
// forward iteration: running <- factor*batch + (1-factor)*running.
type MomentumSchedule func(iteration int) float32

// CumulativeMovingAverage weights the batch statistics by 1/(1+t), the
// default schedule.
func CumulativeMovingAverage(iteration int) float32 {
	return 1 / float32(1+iteration)
}

// BatchNorm normalizes activations over the batch, with per-channel or
// per-activation statistics, then applies a trainable scale and shift
// followed by the layer activation.
type BatchNorm struct {
	shape      tensor.Shape
	mode       kernels.NormMode
	activation activations.Function
	schedule   MomentumSchedule

	gamma *tensor.Tensor // trainable scale, exposed as Weights
	beta  *tensor.Tensor // trainable shift, exposed as Biases

	runningMu  *tensor.Tensor
	runningVar *tensor.Tensor
	iteration  int

	// batch statistics cached by the training forward for backward
	batchMu  *tensor.Tensor
	batchVar *tensor.Tensor
}

// NewBatchNorm creates a batch-normalization layer. A nil schedule selects
// the cumulative moving average.
func NewBatchNorm(shape tensor.Shape, mode kernels.NormMode, activation activations.Function, schedule MomentumSchedule) *BatchNorm {
	if schedule == nil {
		schedule = CumulativeMovingAverage
	}
	l := mode.ParamLen(shape.C, shape.H, shape.W)

	b := &BatchNorm{
		shape:      shape,
		mode:       mode,
		activation: activation,
		schedule:   schedule,
		gamma:      tensor.NewMatrix(1, l),
		beta:       tensor.NewMatrix(1, l),
		runningMu:  tensor.NewMatrix(1, l),
		runningVar: tensor.NewMatrix(1, l),
	}
	b.gamma.Fill(1)
	b.runningVar.Fill(1)
	return b
}

func (b *BatchNorm) Type() Type                       { return BatchNormType }
func (b *BatchNorm) Activation() activations.Function { return b.activation }
func (b *BatchNorm) InputShape() tensor.Shape         { return b.shape }
func (b *BatchNorm) OutputShape() tensor.Shape        { return b.shape }
func (b *BatchNorm) Mode() kernels.NormMode           { return b.mode }
func (b *BatchNorm) Weights() *tensor.Tensor          { return b.gamma }
func (b *BatchNorm) Biases() *tensor.Tensor           { return b.beta }

// RunningStats exposes the inference statistics for persistence.
func (b *BatchNorm) RunningStats() (mu, sigma2 *tensor.Tensor) {
	return b.runningMu, b.runningVar
}

// SetRunningStats overwrites the inference statistics, used by the loader.
func (b *BatchNorm) SetRunningStats(mu, sigma2 *tensor.Tensor) {
	b.runningMu.Overwrite(mu)
	b.runningVar.Overwrite(sigma2)
}

func (b *BatchNorm) Forward(x *tensor.Tensor, training bool) (*tensor.Tensor, *tensor.Tensor) {
	if !b.shape.Matches(x) {
		panic(fmt.Sprintf("layers: batch norm input %s, want %s", x.ShapeString(), b.shape))
	}

	z := tensor.Like(x)
	if training {
		b.batchMu = tensor.Like(b.runningMu)
		b.batchVar = tensor.Like(b.runningVar)
		kernels.BatchNormStats(b.mode, x, b.batchMu, b.batchVar)

		factor := b.schedule(b.iteration)
		b.iteration++
		kernels.UpdateRunningStats(b.batchMu, b.runningMu, factor)
		kernels.UpdateRunningStats(b.batchVar, b.runningVar, factor)

		kernels.BatchNormForward(b.mode, x, b.gamma, b.beta, b.batchMu, b.batchVar, z)
	} else {
		kernels.BatchNormForward(b.mode, x, b.gamma, b.beta, b.runningMu, b.runningVar, z)
	}

	a := tensor.Like(z)
	kernels.Activate(b.activation, z, a)
	return z, a
}

func (b *BatchNorm) Backward(x, dy *tensor.Tensor, computeDx bool) (dx, dJdw, dJdb *tensor.Tensor) {
	if b.batchMu == nil {
		panic("layers: batch norm backward before a training forward")
	}

	dJdw = tensor.Like(b.gamma)
	kernels.BatchNormBackwardGamma(b.mode, x, b.batchMu, b.batchVar, dy, dJdw)

	dJdb = tensor.Like(b.beta)
	kernels.BatchNormBackwardBeta(b.mode, dy, dJdb)

	if computeDx {
		dx = tensor.Like(x)
		kernels.BatchNormBackwardData(b.mode, x, b.gamma, b.batchMu, b.batchVar, dy, dx)
	}
	return dx, dJdw, dJdb
}

func (b *BatchNorm) Clone() Layer {
	c := &BatchNorm{
		shape:      b.shape,
		mode:       b.mode,
		activation: b.activation,
		schedule:   b.schedule,
		gamma:      b.gamma.Clone(),
		beta:       b.beta.Clone(),
		runningMu:  b.runningMu.Clone(),
		runningVar: b.runningVar.Clone(),
		iteration:  b.iteration,
	}
	if b.batchMu != nil {
		c.batchMu = b.batchMu.Clone()
		c.batchVar = b.batchVar.Clone()
	}
	return c
}

func (b *BatchNorm) Equals(other Layer) bool {
	o, ok := other.(*BatchNorm)
	if !ok {
		return false
	}
	return b.shape == o.shape && b.mode == o.mode && b.activation == o.activation &&
		b.gamma.Equal(o.gamma) && b.beta.Equal(o.beta) &&
		b.runningMu.Equal(o.runningMu) && b.runningVar.Equal(o.runningVar)
}
