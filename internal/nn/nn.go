// Package nn implements the neural network building blocks of the
// perceiver model: linear projections, the residual attention
// primitive, the Fourier positional encoder, the latent array, the
// classification decoder and the cross-entropy loss.
package nn

import "github.com/born-ml/perceiver/internal/tensor"

// Module is the base interface for components carrying trainable
// parameters. Forward signatures vary per module (attention takes a
// query and a key/value source), so only parameter access is shared.
type Module[B tensor.Backend] interface {
	// Parameters returns all trainable parameters of this module,
	// including nested module parameters.
	Parameters() []*Parameter[B]
}

var (
	_ Module[tensor.Backend] = (*Linear[tensor.Backend])(nil)
	_ Module[tensor.Backend] = (*Attention[tensor.Backend])(nil)
	_ Module[tensor.Backend] = (*FourierEncoder[tensor.Backend])(nil)
	_ Module[tensor.Backend] = (*Latent[tensor.Backend])(nil)
	_ Module[tensor.Backend] = (*Decoder[tensor.Backend])(nil)
	_ Module[tensor.Backend] = (*CategoricalCrossEntropy[tensor.Backend])(nil)
)
