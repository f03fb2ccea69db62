// Package ops defines the differentiable operations recorded on the
// gradient tape. Each operation keeps pointers to its forward inputs
// and output; Backward turns the output gradient into input gradients
// by the chain rule.
package ops

import "github.com/born-ml/perceiver/internal/tensor"

// Operation represents one recorded step of the forward computation.
type Operation interface {
	// Backward computes gradients for the inputs given the output
	// gradient. The returned slice is parallel to Inputs().
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors of this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the tensor produced by this operation.
	Output() *tensor.RawTensor
}
