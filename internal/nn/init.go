package nn

import (
	"math"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Xavier initializes weights from the Glorot uniform distribution
// U(-sqrt(6/(fanIn+fanOut)), +sqrt(6/(fanIn+fanOut))), which keeps
// activation variance stable across layers.
//
// The random source is passed in so model construction is reproducible
// from a seed.
func Xavier[B tensor.Backend](fanIn, fanOut int, shape tensor.Shape, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))

	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32((rng.Float64()*2 - 1) * bound)
	}
	return t
}

// ScaledNormal initializes a tensor from N(0, std²). Used for the
// initial latent array, which wants small-variance values rather than
// fan-based scaling.
func ScaledNormal[B tensor.Backend](shape tensor.Shape, std float64, backend B, rng *rand.Rand) *tensor.Tensor[float32, B] {
	t := tensor.Zeros[float32](shape, backend)
	data := t.Data()
	for i := range data {
		data[i] = float32(rng.NormFloat64() * std)
	}
	return t
}

// Zeros creates a zero-filled float32 tensor, the bias initialization.
func Zeros[B tensor.Backend](shape tensor.Shape, backend B) *tensor.Tensor[float32, B] {
	return tensor.Zeros[float32](shape, backend)
}
