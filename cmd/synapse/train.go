package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/data"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/network"
	"github.com/muchq/synapse/optimizers"
	"github.com/muchq/synapse/persist"
	"github.com/muchq/synapse/tensor"
	"github.com/muchq/synapse/training"
)

func newTrainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train a network on a CSV dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTrain()
		},
	}

	f := cmd.Flags()
	f.String("data", "", "Training CSV (inputs then one-hot targets per row)")
	f.String("test-data", "", "Optional test CSV evaluated after each epoch")
	f.Int("inputs", 0, "Input vector size")
	f.Int("outputs", 0, "Target vector size")
	f.IntSlice("hidden", []int{32}, "Hidden layer sizes")
	f.String("activation", "relu", "Hidden activation (identity|sigmoid|tanh|relu|leakyrelu|elu)")
	f.Int("epochs", 10, "Epoch count")
	f.Int("batch-size", 32, "Mini-batch size")
	f.String("optimizer", "adam", "Optimizer (sgd|momentum|adagrad|adadelta|rmsprop|adam|adamax)")
	f.Float64("eta", 0.001, "Learning rate")
	f.Float64("lambda", 0, "L2 regularization factor (sgd, momentum)")
	f.Float64("mu", 0.9, "Momentum coefficient")
	f.Float64("rho", 0.9, "Decay rate (adadelta, rmsprop)")
	f.String("out", "model.syn", "Where to write the trained network")
	f.String("metrics-addr", "", "Optional address serving Prometheus metrics, e.g. :9400")
	_ = cmd.MarkFlagRequired("data")
	_ = cmd.MarkFlagRequired("inputs")
	_ = cmd.MarkFlagRequired("outputs")

	return cmd
}

func runTrain() error {
	inputs := viper.GetInt("inputs")
	outputs := viper.GetInt("outputs")

	batches, err := data.NewCollection(data.CSVProvider{
		Path:       viper.GetString("data"),
		InputSize:  inputs,
		OutputSize: outputs,
	}, viper.GetInt("batch-size"))
	if err != nil {
		return err
	}

	var test *data.Collection
	if path := viper.GetString("test-data"); path != "" {
		test, err = data.NewCollection(data.CSVProvider{Path: path, InputSize: inputs, OutputSize: outputs}, viper.GetInt("batch-size"))
		if err != nil {
			return err
		}
	}

	act, err := parseActivation(viper.GetString("activation"))
	if err != nil {
		return err
	}
	net, err := buildClassifier(inputs, outputs, viper.GetIntSlice("hidden"), act)
	if err != nil {
		return err
	}

	opt, err := buildOptimizer()
	if err != nil {
		return err
	}

	collector := training.NewCollector()
	if addr := viper.GetString("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collector)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				slog.Error("metrics server stopped", "error", err)
			}
		}()
	}

	callbacks := collector.Callbacks()
	userProgress := callbacks.TrainingProgress
	callbacks.TrainingProgress = func(p training.Progress, s training.Snapshot) {
		userProgress(p, s)
		slog.Info("epoch finished", "epoch", p.Epoch, "cost", p.Cost, "accuracy", p.Accuracy)
	}

	trainer := &training.Trainer{
		Epochs:    viper.GetInt("epochs"),
		Optimizer: opt,
		Test:      test,
		Callbacks: callbacks,
		Logger:    slog.Default(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	result, err := trainer.Train(ctx, net, batches)
	if err != nil {
		return err
	}
	slog.Info("run complete", "run", result.RunID, "reason", result.Reason, "epochs", result.Epochs)

	return persist.SaveNetworkFile(viper.GetString("out"), net)
}

// buildClassifier assembles dense hidden layers capped by a softmax output.
func buildClassifier(inputs, outputs int, hidden []int, act activations.Function) (*network.Sequential, error) {
	var ls []layers.Layer
	prev := inputs
	for _, h := range hidden {
		if h < 1 {
			return nil, fmt.Errorf("hidden layer size must be positive, got %d", h)
		}
		ls = append(ls, layers.NewDense(prev, h, act))
		prev = h
	}
	ls = append(ls, layers.NewSoftmaxOutput(prev, outputs))
	return network.NewSequential(tensor.Linear(inputs), ls...), nil
}

func parseActivation(name string) (activations.Function, error) {
	switch name {
	case "identity":
		return activations.Identity, nil
	case "sigmoid":
		return activations.Sigmoid, nil
	case "tanh":
		return activations.Tanh, nil
	case "relu":
		return activations.ReLU, nil
	case "leakyrelu":
		return activations.LeakyReLU, nil
	case "elu":
		return activations.ELU, nil
	}
	return 0, fmt.Errorf("unknown activation %q", name)
}

func buildOptimizer() (optimizers.Optimizer, error) {
	eta := float32(viper.GetFloat64("eta"))
	lambda := float32(viper.GetFloat64("lambda"))
	mu := float32(viper.GetFloat64("mu"))
	rho := float32(viper.GetFloat64("rho"))

	switch name := viper.GetString("optimizer"); name {
	case "sgd":
		return optimizers.NewSGD(eta, lambda), nil
	case "momentum":
		return optimizers.NewMomentum(eta, lambda, mu), nil
	case "adagrad":
		return optimizers.NewAdaGrad(eta), nil
	case "adadelta":
		return optimizers.NewAdaDelta(rho), nil
	case "rmsprop":
		return optimizers.NewRMSProp(eta, rho), nil
	case "adam":
		return optimizers.NewAdam(eta), nil
	case "adamax":
		return optimizers.NewAdaMax(eta), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q", name)
	}
}
