package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/perceiver/internal/backend/cpu"
	"github.com/born-ml/perceiver/internal/dataset"
	"github.com/born-ml/perceiver/internal/nn"
	"github.com/born-ml/perceiver/internal/perceiver"
)

// evalOptions carries the eval command flags.
type evalOptions struct {
	modelOptions

	checkpoint    string
	dataDir       string
	outDir        string
	evalPrefix    string
	evalBatchSize int
}

func newEvalCommand(log *zap.SugaredLogger, env envDefaults) *cobra.Command {
	opts := &evalOptions{}

	cmd := &cobra.Command{
		Use:   "eval",
		Short: "Evaluate a checkpoint on an IDX dataset split",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runEval(log, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.checkpoint, "checkpoint", "", "path to a training checkpoint (required)")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", env.DataDir, "directory with IDX files")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", env.OutDir, "output directory for eval.txt")
	cmd.Flags().StringVar(&opts.evalPrefix, "eval-prefix", "t10k", "IDX file prefix of the evaluation split")
	cmd.Flags().IntVar(&opts.evalBatchSize, "eval-batch-size", 16, "evaluation batch size")
	_ = cmd.MarkFlagRequired("checkpoint")

	return cmd
}

func runEval(log *zap.SugaredLogger, opts *evalOptions) error {
	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Inference only: no autodiff decorator needed.
	backend := cpu.New()
	model, err := perceiver.New(cfg, backend)
	if err != nil {
		return err
	}

	ckpt, err := nn.LoadCheckpoint(opts.checkpoint)
	if err != nil {
		return err
	}
	if err := nn.RestoreParameters(ckpt, model.Parameters()); err != nil {
		return err
	}
	log.Infow("checkpoint restored", "path", opts.checkpoint, "epoch", ckpt.Epoch)

	data, err := dataset.Load(opts.dataDir, opts.evalPrefix, cfg.NumClasses)
	if err != nil {
		return err
	}

	loss := nn.NewCategoricalCrossEntropy(backend)
	meanLoss, meanAcc, err := evaluate(model, loss, data, opts.evalBatchSize, backend)
	if err != nil {
		return err
	}

	log.Infow("evaluation complete",
		"split", opts.evalPrefix,
		"samples", data.Len(),
		"loss", meanLoss,
		"accuracy", meanAcc)

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}
	summary := fmt.Sprintf("split: %s\nsamples: %d\nloss: %.6f\naccuracy: %.6f\n",
		opts.evalPrefix, data.Len(), meanLoss, meanAcc)
	if err := os.WriteFile(filepath.Join(opts.outDir, "eval.txt"), []byte(summary), 0o644); err != nil {
		return fmt.Errorf("write eval summary: %w", err)
	}

	return nil
}
