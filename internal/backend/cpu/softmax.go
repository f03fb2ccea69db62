package cpu

import (
	"fmt"
	"math"

	"github.com/born-ml/perceiver/internal/parallel"
	"github.com/born-ml/perceiver/internal/tensor"
)

// Softmax normalizes along dim. The row maximum is subtracted before
// exponentiation so large logits cannot overflow float32.
func (cpu *Backend) Softmax(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("softmax", dim, len(shape))
	if x.DType() != tensor.Float32 {
		panic(fmt.Sprintf("softmax: only float32 supported, got %s", x.DType()))
	}

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("softmax: %v", err))
	}

	outer, dimSize, inner := splitDims(shape, dim)
	if dimSize == 0 {
		return result
	}

	xd, rd := x.AsFloat32(), result.AsFloat32()
	parallel.For(outer*inner, func(k int) {
		o, i := k/inner, k%inner
		base := o*dimSize*inner + i

		maxVal := xd[base]
		for j := 1; j < dimSize; j++ {
			if v := xd[base+j*inner]; v > maxVal {
				maxVal = v
			}
		}

		var sum float32
		for j := 0; j < dimSize; j++ {
			e := float32(math.Exp(float64(xd[base+j*inner] - maxVal)))
			rd[base+j*inner] = e
			sum += e
		}

		inv := 1 / sum
		for j := 0; j < dimSize; j++ {
			rd[base+j*inner] *= inv
		}
	}, parallel.Config{Enabled: cpu.parallel.Enabled, NumWorkers: cpu.parallel.NumWorkers, MinChunkSize: 8})

	return result
}

// splitDims factors a shape into (outer, size, inner) around dim.
func splitDims(shape tensor.Shape, dim int) (outer, size, inner int) {
	outer, inner = 1, 1
	for i := 0; i < dim; i++ {
		outer *= shape[i]
	}
	for i := dim + 1; i < len(shape); i++ {
		inner *= shape[i]
	}
	return outer, shape[dim], inner
}

// normalizeDim resolves negative dims and bounds-checks.
func normalizeDim(name string, dim, ndim int) int {
	if dim < 0 {
		dim += ndim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("%s: dimension %d out of range for rank %d", name, dim, ndim))
	}
	return dim
}
