// Package optim implements the optimizers used to train the model:
// SGD with momentum, Adam, and LAMB with decoupled weight decay.
//
// Optimizers consume the gradient map produced by the autodiff tape:
//
//	grads := backend.Tape().Backward(lossGrad, backend)
//	optimizer.Step(grads)
//	backend.Tape().Clear()
package optim

import (
	"github.com/born-ml/perceiver/internal/nn"
	"github.com/born-ml/perceiver/internal/tensor"
)

// Optimizer applies gradient updates to model parameters in place.
type Optimizer interface {
	// Step updates all parameters from the gradient map returned by
	// the tape's backward pass. Parameters without a gradient entry
	// are skipped.
	Step(grads map[*tensor.RawTensor]*tensor.RawTensor)

	// GetLR returns the current learning rate.
	GetLR() float32

	// SetLR updates the learning rate, for scheduling.
	SetLR(lr float32)
}

// getGradient looks up the gradient recorded for a parameter's tensor.
// Returns nil when the parameter did not participate in the forward
// pass.
func getGradient[B tensor.Backend](param *nn.Parameter[B], grads map[*tensor.RawTensor]*tensor.RawTensor) *tensor.RawTensor {
	if param == nil {
		return nil
	}
	return grads[param.Tensor().Raw()]
}
