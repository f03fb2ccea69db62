package ops

import "github.com/born-ml/perceiver/internal/tensor"

// SoftmaxOp records output = softmax(x, dim).
//
// The Jacobian contracts to:
//
//	grad_x = s * (grad - Σ_dim(grad * s))
//
// where s is the softmax output saved from the forward pass.
type SoftmaxOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewSoftmaxOp creates a new SoftmaxOp. dim must be the resolved
// (non-negative) dimension used in the forward pass.
func NewSoftmaxOp(x, output *tensor.RawTensor, dim int) *SoftmaxOp {
	return &SoftmaxOp{inputs: []*tensor.RawTensor{x}, output: output, dim: dim}
}

// Backward computes the softmax input gradient.
func (op *SoftmaxOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	s := op.output
	weighted := backend.Mul(outputGrad, s)
	rowSum := backend.SumDim(weighted, op.dim, true)
	gradX := backend.Mul(s, backend.Sub(outputGrad, rowSum))
	return []*tensor.RawTensor{gradX}
}

// Inputs returns [x].
func (op *SoftmaxOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns softmax(x, dim).
func (op *SoftmaxOp) Output() *tensor.RawTensor { return op.output }
