package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Latent holds the learned initial latent array [latentDim,
// latentChannels]. Every forward pass starts from a broadcast of the
// same parameter; the parameter itself is only changed by the
// optimizer.
type Latent[B tensor.Backend] struct {
	latentDim      int
	latentChannels int
	array          *Parameter[B]
	backend        B
}

// latentInitStd is the standard deviation of the initial latent values.
const latentInitStd = 0.02

// NewLatent creates the latent array with small-variance normal init.
func NewLatent[B tensor.Backend](latentDim, latentChannels int, backend B, rng *rand.Rand) (*Latent[B], error) {
	if latentDim <= 0 || latentChannels <= 0 {
		return nil, fmt.Errorf("latent: dimensions must be positive, got [%d, %d]", latentDim, latentChannels)
	}

	array := NewParameter("latent.array",
		ScaledNormal(tensor.Shape{latentDim, latentChannels}, latentInitStd, backend, rng))

	return &Latent[B]{
		latentDim:      latentDim,
		latentChannels: latentChannels,
		array:          array,
		backend:        backend,
	}, nil
}

// Broadcast returns the latent array repeated for each batch element:
// [batch, latentDim, latentChannels]. Going through Unsqueeze and
// Expand keeps the copies tied to the parameter on the tape, so the
// per-sample gradients sum back onto the single shared array.
func (l *Latent[B]) Broadcast(batch int) *tensor.Tensor[float32, B] {
	return l.array.Tensor().
		Unsqueeze(0).
		Expand(tensor.Shape{batch, l.latentDim, l.latentChannels})
}

// Parameters returns the latent array parameter.
func (l *Latent[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.array}
}

// Array returns the latent parameter.
func (l *Latent[B]) Array() *Parameter[B] {
	return l.array
}
