package ops

import (
	"fmt"

	"github.com/born-ml/perceiver/internal/tensor"
)

// reduceBroadcast reduces a gradient to the given target shape by
// summing over the dimensions the forward pass broadcast.
//
// Forward: a[3,1] + b[3,4] -> c[3,4]. Backward: grad_c[3,4] sums along
// dim 1 to give grad_a[3,1].
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	if grad.Shape().Equal(targetShape) {
		return grad
	}

	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	for i := range targetShape {
		if targetShape[i] == 1 && result.Shape()[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// fullLike creates a tensor of the given shape filled with value.
func fullLike(shape tensor.Shape, value float32, device tensor.Device) *tensor.RawTensor {
	result, err := tensor.NewRaw(shape, tensor.Float32, device)
	if err != nil {
		panic(fmt.Sprintf("fullLike: %v", err))
	}
	data := result.AsFloat32()
	for i := range data {
		data[i] = value
	}
	return result
}
