// Package perceiver assembles the iterative latent-attention
// classifier: Fourier-encoded input, a learned latent array refined by
// weight-shared attention blocks, and a mean-pool decoder.
package perceiver

import "fmt"

// Config holds the model hyperparameters.
type Config struct {
	// NumBlocks is the number of outer iterations. Every iteration
	// reuses the same attention parameters, so this scales compute
	// but not parameter count.
	NumBlocks int

	// NumSelfAttendsPerBlock is the number of self-attention layers
	// applied after the cross-attention in each block. Each of the
	// layers has its own parameters, shared across blocks.
	NumSelfAttendsPerBlock int

	// NumCrossHeads is the head count of the cross-attention.
	NumCrossHeads int

	// NumSelfAttendHeads is the head count of the self-attentions.
	NumSelfAttendHeads int

	// LatentDim is the number of latent positions.
	LatentDim int

	// LatentChannels is the channel width of each latent position.
	LatentChannels int

	// NumFreqBands is the number of Fourier frequency bands per
	// spatial axis. Zero disables positional features.
	NumFreqBands int

	// NumClasses is the size of the output logit vector.
	NumClasses int

	// InputChannels is the raw channel count of input images.
	InputChannels int

	// Seed drives parameter initialization.
	Seed int64
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		NumBlocks:              8,
		NumSelfAttendsPerBlock: 6,
		NumCrossHeads:          1,
		NumSelfAttendHeads:     8,
		LatentDim:              512,
		LatentChannels:         1024,
		NumFreqBands:           64,
		NumClasses:             2,
		InputChannels:          3,
		Seed:                   42,
	}
}

// Validate rejects degenerate configurations at construction time.
func (c Config) Validate() error {
	if c.NumBlocks < 1 {
		return fmt.Errorf("config: NumBlocks must be at least 1, got %d", c.NumBlocks)
	}
	if c.NumSelfAttendsPerBlock < 0 {
		return fmt.Errorf("config: NumSelfAttendsPerBlock must be non-negative, got %d", c.NumSelfAttendsPerBlock)
	}
	if c.NumCrossHeads < 1 {
		return fmt.Errorf("config: NumCrossHeads must be at least 1, got %d", c.NumCrossHeads)
	}
	if c.NumSelfAttendHeads < 1 {
		return fmt.Errorf("config: NumSelfAttendHeads must be at least 1, got %d", c.NumSelfAttendHeads)
	}
	if c.LatentDim < 1 {
		return fmt.Errorf("config: LatentDim must be at least 1, got %d", c.LatentDim)
	}
	if c.LatentChannels < 1 {
		return fmt.Errorf("config: LatentChannels must be at least 1, got %d", c.LatentChannels)
	}
	if c.LatentChannels%c.NumCrossHeads != 0 {
		return fmt.Errorf("config: LatentChannels %d not divisible by NumCrossHeads %d", c.LatentChannels, c.NumCrossHeads)
	}
	if c.LatentChannels%c.NumSelfAttendHeads != 0 {
		return fmt.Errorf("config: LatentChannels %d not divisible by NumSelfAttendHeads %d", c.LatentChannels, c.NumSelfAttendHeads)
	}
	if c.NumFreqBands < 0 {
		return fmt.Errorf("config: NumFreqBands must be non-negative, got %d", c.NumFreqBands)
	}
	if c.NumClasses < 1 {
		return fmt.Errorf("config: NumClasses must be at least 1, got %d", c.NumClasses)
	}
	if c.InputChannels < 1 {
		return fmt.Errorf("config: InputChannels must be at least 1, got %d", c.InputChannels)
	}
	return nil
}

// EncodedChannels returns the channel width the cross-attention sees:
// raw channels plus 2*NumFreqBands per spatial axis.
func (c Config) EncodedChannels() int {
	return c.InputChannels + 2*c.NumFreqBands*2
}
