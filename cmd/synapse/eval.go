package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/muchq/synapse/data"
	"github.com/muchq/synapse/network"
	"github.com/muchq/synapse/persist"
)

func newEvalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a saved network on a CSV dataset",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEval()
		},
	}

	f := cmd.Flags()
	f.String("model", "model.syn", "Saved network file")
	f.String("data", "", "Evaluation CSV (inputs then one-hot targets per row)")
	f.Int("batch-size", 256, "Evaluation batch size")
	_ = cmd.MarkFlagRequired("data")

	return cmd
}

func runEval() error {
	net, err := persist.LoadNetworkFile(viper.GetString("model"))
	if err != nil {
		return err
	}

	inputs := net.InputShape().Size()
	outputs := net.OutputShape().Size()
	batches, err := data.NewCollection(data.CSVProvider{
		Path:       viper.GetString("data"),
		InputSize:  inputs,
		OutputSize: outputs,
	}, viper.GetInt("batch-size"))
	if err != nil {
		return err
	}

	var costSum, accSum float64
	total := 0
	for _, b := range batches.Batches() {
		c, acc := network.Evaluate(net, b.X, b.Y)
		n := b.Size()
		costSum += float64(c) * float64(n)
		accSum += float64(acc) * float64(n)
		total += n
	}

	fmt.Printf("samples: %d\ncost: %.6f\naccuracy: %.2f%%\n",
		total, costSum/float64(total), 100*accSum/float64(total))
	return nil
}
