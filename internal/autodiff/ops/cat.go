package ops

import (
	"fmt"

	"github.com/born-ml/perceiver/internal/tensor"
)

// CatOp records output = cat(inputs, dim).
type CatOp struct {
	inputs []*tensor.RawTensor
	output *tensor.RawTensor
	dim    int
}

// NewCatOp creates a new CatOp with a resolved dim.
func NewCatOp(inputs []*tensor.RawTensor, output *tensor.RawTensor, dim int) *CatOp {
	return &CatOp{inputs: inputs, output: output, dim: dim}
}

// Backward splits the gradient back into per-input blocks along dim.
func (op *CatOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	outShape := outputGrad.Shape()
	elemSize := outputGrad.DType().Size()

	outer, inner := 1, 1
	for i := 0; i < op.dim; i++ {
		outer *= outShape[i]
	}
	for i := op.dim + 1; i < len(outShape); i++ {
		inner *= outShape[i]
	}
	total := outShape[op.dim]

	grads := make([]*tensor.RawTensor, len(op.inputs))
	src := outputGrad.Data()
	offset := 0
	for i, input := range op.inputs {
		inShape := input.Shape()
		grad, err := tensor.NewRaw(inShape, outputGrad.DType(), outputGrad.Device())
		if err != nil {
			panic(fmt.Sprintf("cat backward: %v", err))
		}

		tDim := inShape[op.dim]
		dst := grad.Data()
		blockBytes := tDim * inner * elemSize
		for o := 0; o < outer; o++ {
			srcStart := (o*total*inner + offset*inner) * elemSize
			copy(dst[o*blockBytes:(o+1)*blockBytes], src[srcStart:srcStart+blockBytes])
		}

		grads[i] = grad
		offset += tDim
	}

	return grads
}

// Inputs returns the concatenated tensors.
func (op *CatOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the concatenation.
func (op *CatOp) Output() *tensor.RawTensor { return op.output }
