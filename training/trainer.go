package training

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/muchq/synapse/data"
	"github.com/muchq/synapse/network"
	"github.com/muchq/synapse/optimizers"
)

// StopReason tells why a training run ended.
type StopReason byte

const (
	EpochsCompleted StopReason = iota
	EarlyStopping
	TrainingCanceled
	NumericOverflow
)

func (r StopReason) String() string {
	switch r {
	case EpochsCompleted:
		return "EpochsCompleted"
	case EarlyStopping:
		return "EarlyStopping"
	case TrainingCanceled:
		return "TrainingCanceled"
	case NumericOverflow:
		return "NumericOverflow"
	}
	return fmt.Sprintf("StopReason(%d)", byte(r))
}

// Snapshot materializes an immutable copy of the network on demand, so
// progress consumers never hold a live reference into mutating weights.
type Snapshot func() network.Network

// Progress reports one epoch's evaluation.
type Progress struct {
	Epoch    int
	Cost     float32
	Accuracy float32
}

// BatchProgress reports completion within an epoch.
type BatchProgress struct {
	BatchIndex   int
	SamplesDone  int
	SamplesTotal int
}

// Callbacks are optional observers of the training loop. A nil field is
// skipped, and skipping TrainingProgress also skips the training-set
// evaluation that feeds it.
type Callbacks struct {
	BatchProgress    func(BatchProgress)
	TrainingProgress func(Progress, Snapshot)
	TestProgress     func(Progress)
}

// Trainer drives the mini-batch loop over a network.
type Trainer struct {
	Epochs     int
	Optimizer  optimizers.Optimizer
	Validation *data.Collection
	Test       *data.Collection
	Monitor    *ConvergenceMonitor
	Callbacks  Callbacks
	Logger     *slog.Logger
}

// Result summarizes a finished run.
type Result struct {
	RunID  uuid.UUID
	Reason StopReason
	Epochs int
}

// Train runs the loop until the epoch budget is spent, the monitor reports
// convergence, a weight overflows, or ctx is cancelled. The current batch
// always runs to completion before a cancellation is honored.
func (t *Trainer) Train(ctx context.Context, net network.Network, batches *data.Collection) (Result, error) {
	if t.Epochs < 1 {
		return Result{}, fmt.Errorf("training: epoch count must be at least 1, got %d", t.Epochs)
	}
	if t.Optimizer == nil {
		return Result{}, fmt.Errorf("training: no optimizer configured")
	}
	log := t.Logger
	if log == nil {
		log = slog.Default()
	}

	runID := uuid.New()
	weighted := net.WeightedLayers()
	t.Optimizer.Bind(weighted)
	log.Info("training started",
		"run", runID,
		"epochs", t.Epochs,
		"batches", batches.Count(),
		"samples", batches.Samples(),
		"optimizer", t.Optimizer.Name())

	result := func(reason StopReason, epoch int) (Result, error) {
		log.Info("training stopped", "run", runID, "reason", reason, "epoch", epoch)
		return Result{RunID: runID, Reason: reason, Epochs: epoch}, nil
	}

	for epoch := 1; epoch <= t.Epochs; epoch++ {
		if ctx.Err() != nil {
			return result(TrainingCanceled, epoch-1)
		}

		batches.CrossShuffle()

		done := 0
		total := batches.Samples()
		for i, b := range batches.Batches() {
			if ctx.Err() != nil {
				return result(TrainingCanceled, epoch-1)
			}

			grads := net.TrainStep(b.X, b.Y)
			for _, g := range grads {
				t.Optimizer.Update(g.LayerIndex, g.DW, g.DB, b.Size(), weighted[g.LayerIndex])
			}

			done += b.Size()
			if t.Callbacks.BatchProgress != nil {
				t.Callbacks.BatchProgress(BatchProgress{BatchIndex: i, SamplesDone: done, SamplesTotal: total})
			}
		}

		if network.HasNaN(net) {
			return result(NumericOverflow, epoch)
		}

		if t.Callbacks.TrainingProgress != nil {
			c, acc := evaluateCollection(net, batches)
			log.Info("epoch evaluated", "run", runID, "epoch", epoch, "cost", c, "accuracy", acc)
			t.Callbacks.TrainingProgress(Progress{Epoch: epoch, Cost: c, Accuracy: acc}, func() network.Network {
				return net.Clone()
			})
		}

		if t.Validation != nil {
			_, acc := evaluateCollection(net, t.Validation)
			if t.Monitor != nil && t.Monitor.Observe(acc) {
				return result(EarlyStopping, epoch)
			}
		}

		if t.Test != nil && t.Callbacks.TestProgress != nil {
			c, acc := evaluateCollection(net, t.Test)
			t.Callbacks.TestProgress(Progress{Epoch: epoch, Cost: c, Accuracy: acc})
		}
	}

	return result(EpochsCompleted, t.Epochs)
}

// evaluateCollection averages cost and accuracy over a collection, weighting
// each batch by its sample count.
func evaluateCollection(net network.Network, c *data.Collection) (float32, float32) {
	var costSum, accSum float64
	total := 0
	for _, b := range c.Batches() {
		bc, acc := network.Evaluate(net, b.X, b.Y)
		n := b.Size()
		costSum += float64(bc) * float64(n)
		accSum += float64(acc) * float64(n)
		total += n
	}
	return float32(costSum / float64(total)), float32(accSum / float64(total))
}
