package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Decoder turns the final latent state into class logits: mean-pool
// over the latent index dimension, then a single linear projection.
type Decoder[B tensor.Backend] struct {
	latentChannels int
	numClasses     int
	proj           *Linear[B]
}

// NewDecoder creates the classification decoder.
func NewDecoder[B tensor.Backend](latentChannels, numClasses int, backend B, rng *rand.Rand) (*Decoder[B], error) {
	if numClasses <= 0 {
		return nil, fmt.Errorf("decoder: numClasses must be positive, got %d", numClasses)
	}
	return &Decoder[B]{
		latentChannels: latentChannels,
		numClasses:     numClasses,
		proj:           NewLinear("decoder.proj", latentChannels, numClasses, backend, rng),
	}, nil
}

// Forward maps [batch, latentDim, latentChannels] to raw logits
// [batch, numClasses]. No softmax here: the loss consumes logits.
func (d *Decoder[B]) Forward(latent *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := latent.Shape()
	if len(shape) != 3 || shape[2] != d.latentChannels {
		panic(fmt.Sprintf("Decoder.Forward: expected [batch, latentDim, %d], got %v", d.latentChannels, shape))
	}

	pooled := latent.MeanDim(1, false) // [batch, latentChannels]
	return d.proj.Forward(pooled)
}

// Parameters returns the projection parameters.
func (d *Decoder[B]) Parameters() []*Parameter[B] {
	return d.proj.Parameters()
}
