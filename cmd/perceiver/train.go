package main

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/born-ml/perceiver/internal/autodiff"
	"github.com/born-ml/perceiver/internal/backend/cpu"
	"github.com/born-ml/perceiver/internal/dataset"
	"github.com/born-ml/perceiver/internal/history"
	"github.com/born-ml/perceiver/internal/nn"
	"github.com/born-ml/perceiver/internal/optim"
	"github.com/born-ml/perceiver/internal/perceiver"
	"github.com/born-ml/perceiver/internal/tensor"
)

// trainOptions carries all train command flags.
type trainOptions struct {
	modelOptions

	epochs          int
	trainBatchSize  int
	evalBatchSize   int
	dataDir         string
	outDir          string
	trainPrefix     string
	evalPrefix      string
	learningRate    float64
	weightDecayRate float64
	optimizer       string
	hflipConcat     bool
	showConfig      bool
}

// modelOptions are the architecture flags shared by train and eval.
type modelOptions struct {
	numBlocks              int
	numSelfAttendsPerBlock int
	numCrossHeads          int
	numSelfAttendHeads     int
	latentDim              int
	latentChannels         int
	numFreqBands           int
	numClasses             int
	seed                   int64
}

func (m *modelOptions) register(cmd *cobra.Command) {
	defaults := perceiver.DefaultConfig()
	cmd.Flags().IntVar(&m.numBlocks, "num-blocks", defaults.NumBlocks, "number of weight-shared outer iterations")
	cmd.Flags().IntVar(&m.numSelfAttendsPerBlock, "num-self-attends-per-block", defaults.NumSelfAttendsPerBlock, "self-attention layers per block")
	cmd.Flags().IntVar(&m.numCrossHeads, "num-cross-heads", defaults.NumCrossHeads, "cross-attention heads")
	cmd.Flags().IntVar(&m.numSelfAttendHeads, "num-self-attend-heads", defaults.NumSelfAttendHeads, "self-attention heads")
	cmd.Flags().IntVar(&m.latentDim, "latent-dim", defaults.LatentDim, "number of latent positions")
	cmd.Flags().IntVar(&m.latentChannels, "latent-channels", defaults.LatentChannels, "latent channel width")
	cmd.Flags().IntVar(&m.numFreqBands, "num-freq-bands", defaults.NumFreqBands, "Fourier frequency bands per axis")
	cmd.Flags().IntVar(&m.numClasses, "num-classes", defaults.NumClasses, "number of output classes")
	cmd.Flags().Int64Var(&m.seed, "seed", defaults.Seed, "parameter initialization seed")
}

func (m *modelOptions) config() perceiver.Config {
	return perceiver.Config{
		NumBlocks:              m.numBlocks,
		NumSelfAttendsPerBlock: m.numSelfAttendsPerBlock,
		NumCrossHeads:          m.numCrossHeads,
		NumSelfAttendHeads:     m.numSelfAttendHeads,
		LatentDim:              m.latentDim,
		LatentChannels:         m.latentChannels,
		NumFreqBands:           m.numFreqBands,
		NumClasses:             m.numClasses,
		InputChannels:          1, // IDX datasets are grayscale
		Seed:                   m.seed,
	}
}

func newTrainCommand(log *zap.SugaredLogger, env envDefaults) *cobra.Command {
	opts := &trainOptions{}

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model on an IDX dataset",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runTrain(log, opts)
		},
	}

	opts.register(cmd)
	cmd.Flags().IntVar(&opts.epochs, "epochs", 10, "training epochs")
	cmd.Flags().IntVar(&opts.trainBatchSize, "batch-size", 64, "training batch size")
	cmd.Flags().IntVar(&opts.evalBatchSize, "eval-batch-size", 16, "evaluation batch size")
	cmd.Flags().StringVar(&opts.dataDir, "data-dir", env.DataDir, "directory with IDX files")
	cmd.Flags().StringVar(&opts.outDir, "out-dir", env.OutDir, "output directory for history and checkpoints")
	cmd.Flags().StringVar(&opts.trainPrefix, "train-prefix", "train", "IDX file prefix of the training split")
	cmd.Flags().StringVar(&opts.evalPrefix, "eval-prefix", "t10k", "IDX file prefix of the validation split")
	cmd.Flags().Float64Var(&opts.learningRate, "learning-rate", 4e-3, "optimizer learning rate")
	cmd.Flags().Float64Var(&opts.weightDecayRate, "weight-decay-rate", 1e-1, "decoupled weight decay (lamb only)")
	cmd.Flags().StringVar(&opts.optimizer, "optimizer", "lamb", "optimizer: lamb, adam or sgd")
	cmd.Flags().BoolVar(&opts.hflipConcat, "hflip-concat", false, "augment with horizontally flipped images and reversed labels")
	cmd.Flags().BoolVar(&opts.showConfig, "show-config", false, "print the resolved configuration and exit")

	return cmd
}

func runTrain(log *zap.SugaredLogger, opts *trainOptions) error {
	cfg := opts.config()
	if err := cfg.Validate(); err != nil {
		return err
	}

	if opts.showConfig {
		fmt.Printf("%+v\n", cfg)
		return nil
	}

	backend := autodiff.New(cpu.New())
	model, err := perceiver.New(cfg, backend)
	if err != nil {
		return err
	}
	log.Infow("model created",
		"parameters", model.NumParameters(),
		"blocks", cfg.NumBlocks,
		"selfAttendsPerBlock", cfg.NumSelfAttendsPerBlock)

	train, err := dataset.Load(opts.dataDir, opts.trainPrefix, cfg.NumClasses)
	if err != nil {
		return err
	}
	validation, err := dataset.Load(opts.dataDir, opts.evalPrefix, cfg.NumClasses)
	if err != nil {
		return err
	}
	if opts.hflipConcat {
		if err := train.HFlipConcat(); err != nil {
			return err
		}
		if err := validation.HFlipConcat(); err != nil {
			return err
		}
	}
	log.Infow("dataset loaded",
		"trainSamples", train.Len(),
		"validationSamples", validation.Len(),
		"imageSize", fmt.Sprintf("%dx%d", train.Height, train.Width))

	if err := os.MkdirAll(opts.outDir, 0o755); err != nil {
		return fmt.Errorf("create out dir: %w", err)
	}

	optimizer, err := newOptimizer(opts, model.Parameters(), backend)
	if err != nil {
		return err
	}

	loss := nn.NewCategoricalCrossEntropy(backend)
	rng := rand.New(rand.NewSource(cfg.Seed))
	hist := history.New()

	for epoch := 1; epoch <= opts.epochs; epoch++ {
		batches, err := dataset.Batches(train, opts.trainBatchSize, rng, backend)
		if err != nil {
			return err
		}

		var epochLoss, epochAcc float64
		for step, batch := range batches {
			backend.Tape().StartRecording()
			logits := model.Forward(batch.Images)
			stepLoss := loss.Forward(logits, batch.Labels)
			backend.Tape().StopRecording()

			grads := backend.Tape().Backward(onesGrad(backend), backend)
			optimizer.Step(grads)
			backend.Tape().Clear()

			lossVal := float64(stepLoss.Item())
			acc := float64(nn.Accuracy(logits, batch.Labels))
			epochLoss += lossVal * float64(batch.Size)
			epochAcc += acc * float64(batch.Size)

			if step%50 == 0 {
				log.Infow("step", "epoch", epoch, "step", step, "loss", lossVal, "accuracy", acc)
			}
		}
		epochLoss /= float64(train.Len())
		epochAcc /= float64(train.Len())

		valLoss, valAcc, err := evaluate(model, loss, validation, opts.evalBatchSize, backend)
		if err != nil {
			return err
		}

		log.Infow("epoch complete",
			"epoch", epoch,
			"loss", epochLoss, "accuracy", epochAcc,
			"valLoss", valLoss, "valAccuracy", valAcc)

		hist.Append(history.Record{
			Epoch:        epoch,
			Loss:         epochLoss,
			Accuracy:     epochAcc,
			ValLoss:      valLoss,
			ValAccuracy:  valAcc,
			LearningRate: float64(optimizer.GetLR()),
		})
		if err := hist.Save(filepath.Join(opts.outDir, "history.csv")); err != nil {
			return err
		}

		ckptPath := filepath.Join(opts.outDir, "checkpoint.gob")
		if err := nn.SaveCheckpoint(ckptPath, model.Parameters(), epoch, epoch*len(batches), epochLoss); err != nil {
			return err
		}
	}

	return nil
}

// evaluate runs the validation split without recording on the tape.
func evaluate[B tensor.Backend](
	model *perceiver.Perceiver[B],
	loss *nn.CategoricalCrossEntropy[B],
	data *dataset.Dataset,
	batchSize int,
	backend B,
) (meanLoss, meanAcc float64, err error) {
	batches, err := dataset.Batches(data, batchSize, nil, backend)
	if err != nil {
		return 0, 0, err
	}

	for _, batch := range batches {
		logits := model.Forward(batch.Images)
		batchLoss := loss.Forward(logits, batch.Labels)
		meanLoss += float64(batchLoss.Item()) * float64(batch.Size)
		meanAcc += float64(nn.Accuracy(logits, batch.Labels)) * float64(batch.Size)
	}

	n := float64(data.Len())
	return meanLoss / n, meanAcc / n, nil
}

func newOptimizer[B tensor.Backend](opts *trainOptions, params []*nn.Parameter[B], backend B) (optim.Optimizer, error) {
	switch opts.optimizer {
	case "lamb":
		return optim.NewLAMB(params, optim.LAMBConfig{
			LR:          float32(opts.learningRate),
			WeightDecay: float32(opts.weightDecayRate),
		}, backend), nil
	case "adam":
		return optim.NewAdam(params, optim.AdamConfig{
			LR: float32(opts.learningRate),
		}, backend), nil
	case "sgd":
		return optim.NewSGD(params, optim.SGDConfig{
			LR:       float32(opts.learningRate),
			Momentum: 0.9,
		}, backend), nil
	default:
		return nil, fmt.Errorf("unknown optimizer %q (want lamb, adam or sgd)", opts.optimizer)
	}
}

// onesGrad is the seed gradient for the scalar loss.
func onesGrad[B tensor.Backend](backend B) *tensor.RawTensor {
	return tensor.Ones[float32](tensor.Shape{1}, backend).Raw()
}
