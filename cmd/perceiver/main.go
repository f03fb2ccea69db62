// Command perceiver trains and evaluates the iterative latent-attention
// image classifier on IDX-format datasets.
package main

import (
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// envDefaults are directory defaults overridable via PERCEIVER_*
// environment variables, so containerized runs need no flags.
type envDefaults struct {
	DataDir string `envconfig:"DATA_DIR" default:"data"`
	OutDir  string `envconfig:"OUT_DIR" default:"out"`
}

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync() //nolint:errcheck

	log := logger.Sugar()

	var env envDefaults
	if err := envconfig.Process("perceiver", &env); err != nil {
		log.Fatalw("failed to read environment", "error", err)
	}

	root := &cobra.Command{
		Use:           "perceiver",
		Short:         "Train and evaluate a Perceiver image classifier",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newTrainCommand(log, env))
	root.AddCommand(newEvalCommand(log, env))

	if err := root.Execute(); err != nil {
		log.Errorw("command failed", "error", err)
		os.Exit(1)
	}
}
