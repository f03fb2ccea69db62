package cpu

import (
	"fmt"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Reshape returns a view with the same elements and a new shape.
func (cpu *Backend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	result, err := t.WithShape(newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Transpose permutes dimensions according to axes. With no axes the
// last two dimensions are swapped.
func (cpu *Backend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	nd := len(shape)

	if len(axes) == 0 {
		if nd < 2 {
			panic(fmt.Sprintf("transpose: need at least 2 dimensions, got shape %v", shape))
		}
		axes = make([]int, nd)
		for i := range axes {
			axes[i] = i
		}
		axes[nd-2], axes[nd-1] = axes[nd-1], axes[nd-2]
	}
	if len(axes) != nd {
		panic(fmt.Sprintf("transpose: %d axes for rank %d tensor", len(axes), nd))
	}

	seen := make([]bool, nd)
	outShape := make(tensor.Shape, nd)
	for i, ax := range axes {
		if ax < 0 || ax >= nd || seen[ax] {
			panic(fmt.Sprintf("transpose: invalid axes %v for rank %d", axes, nd))
		}
		seen[ax] = true
		outShape[i] = shape[ax]
	}

	result, err := tensor.NewRaw(outShape, t.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("transpose: %v", err))
	}
	if t.NumElements() == 0 {
		return result
	}

	inStrides := shape.ComputeStrides()
	outStrides := outShape.ComputeStrides()
	elemSize := t.DType().Size()
	src, dst := t.Data(), result.Data()

	n := t.NumElements()
	for flat := 0; flat < n; flat++ {
		srcIdx := 0
		for d := 0; d < nd; d++ {
			coord := (flat / outStrides[d]) % outShape[d]
			srcIdx += coord * inStrides[axes[d]]
		}
		copy(dst[flat*elemSize:(flat+1)*elemSize], src[srcIdx*elemSize:(srcIdx+1)*elemSize])
	}

	return result
}

// Unsqueeze inserts a size-1 dimension at dim.
func (cpu *Backend) Unsqueeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	if dim < 0 {
		dim += len(shape) + 1
	}
	if dim < 0 || dim > len(shape) {
		panic(fmt.Sprintf("unsqueeze: dimension %d out of range for rank %d", dim, len(shape)))
	}

	newShape := make(tensor.Shape, 0, len(shape)+1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, 1)
	newShape = append(newShape, shape[dim:]...)
	return cpu.Reshape(x, newShape)
}

// Squeeze removes a size-1 dimension at dim.
func (cpu *Backend) Squeeze(x *tensor.RawTensor, dim int) *tensor.RawTensor {
	shape := x.Shape()
	dim = normalizeDim("squeeze", dim, len(shape))
	if shape[dim] != 1 {
		panic(fmt.Sprintf("squeeze: dimension %d has size %d, not 1", dim, shape[dim]))
	}

	newShape := make(tensor.Shape, 0, len(shape)-1)
	newShape = append(newShape, shape[:dim]...)
	newShape = append(newShape, shape[dim+1:]...)
	return cpu.Reshape(x, newShape)
}

// Expand materializes a broadcast of size-1 dimensions to the target
// shape. The rank must match and every non-1 dimension must agree.
func (cpu *Backend) Expand(x *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	inShape := x.Shape()
	if len(inShape) != len(shape) {
		panic(fmt.Sprintf("expand: rank mismatch: %v to %v", inShape, shape))
	}
	for i := range shape {
		if inShape[i] != shape[i] && inShape[i] != 1 {
			panic(fmt.Sprintf("expand: cannot expand %v to %v at dimension %d", inShape, shape, i))
		}
	}

	result, err := tensor.NewRaw(shape, x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("expand: %v", err))
	}
	if result.NumElements() == 0 {
		return result
	}

	idx := broadcastIndexer(inShape, shape)
	elemSize := x.DType().Size()
	src, dst := x.Data(), result.Data()
	n := result.NumElements()
	for flat := 0; flat < n; flat++ {
		srcIdx := idx(flat)
		copy(dst[flat*elemSize:(flat+1)*elemSize], src[srcIdx*elemSize:(srcIdx+1)*elemSize])
	}

	return result
}

// Cat concatenates tensors along dim. All inputs must share dtype and
// all dimensions except dim.
func (cpu *Backend) Cat(tensors []*tensor.RawTensor, dim int) *tensor.RawTensor {
	if len(tensors) == 0 {
		panic("cat: no tensors to concatenate")
	}

	first := tensors[0]
	shape := first.Shape()
	dim = normalizeDim("cat", dim, len(shape))

	total := 0
	for _, t := range tensors {
		tShape := t.Shape()
		if len(tShape) != len(shape) {
			panic(fmt.Sprintf("cat: rank mismatch: %v vs %v", shape, tShape))
		}
		if t.DType() != first.DType() {
			panic(fmt.Sprintf("cat: dtype mismatch: %s vs %s", first.DType(), t.DType()))
		}
		for i := range shape {
			if i != dim && tShape[i] != shape[i] {
				panic(fmt.Sprintf("cat: shapes %v and %v differ at dimension %d", shape, tShape, i))
			}
		}
		total += tShape[dim]
	}

	outShape := shape.Clone()
	outShape[dim] = total
	result, err := tensor.NewRaw(outShape, first.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("cat: %v", err))
	}

	// Copy row blocks: each input contributes a contiguous
	// dimSize*inner block per outer index.
	outer, _, inner := splitDims(outShape, dim)
	elemSize := first.DType().Size()
	dst := result.Data()

	dstOffset := 0
	for _, t := range tensors {
		tDim := t.Shape()[dim]
		src := t.Data()
		blockBytes := tDim * inner * elemSize
		for o := 0; o < outer; o++ {
			dstStart := (o*total*inner + dstOffset*inner) * elemSize
			srcStart := o * blockBytes
			copy(dst[dstStart:dstStart+blockBytes], src[srcStart:srcStart+blockBytes])
		}
		dstOffset += tDim
	}

	return result
}
