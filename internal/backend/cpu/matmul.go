package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"

	"github.com/born-ml/perceiver/internal/parallel"
	"github.com/born-ml/perceiver/internal/tensor"
)

// MatMul performs 2D matrix multiplication [M, K] @ [K, N] -> [M, N]
// through BLAS SGEMM.
func (cpu *Backend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != 2 || len(bShape) != 2 {
		panic(fmt.Sprintf("matmul: expected 2D tensors, got %v and %v", aShape, bShape))
	}
	if aShape[1] != bShape[0] {
		panic(fmt.Sprintf("matmul: inner dimensions mismatch: %v @ %v", aShape, bShape))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("matmul: only float32 supported, got %s and %s", a.DType(), b.DType()))
	}

	m, k, n := aShape[0], aShape[1], bShape[1]
	result, err := tensor.NewRaw(tensor.Shape{m, n}, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("matmul: %v", err))
	}

	sgemm(m, k, n, a.AsFloat32(), b.AsFloat32(), result.AsFloat32())
	return result
}

// BatchMatMul multiplies the last two dimensions of 3D or 4D tensors:
// [B, M, K] @ [B, K, N] -> [B, M, N] and the 4D analogue with a heads
// dimension. Batch dimensions must match exactly.
func (cpu *Backend) BatchMatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape, bShape := a.Shape(), b.Shape()
	if len(aShape) != len(bShape) || (len(aShape) != 3 && len(aShape) != 4) {
		panic(fmt.Sprintf("batch_matmul: expected matching 3D or 4D tensors, got %v and %v", aShape, bShape))
	}
	for i := 0; i < len(aShape)-2; i++ {
		if aShape[i] != bShape[i] {
			panic(fmt.Sprintf("batch_matmul: batch dimensions mismatch: %v vs %v", aShape, bShape))
		}
	}

	nd := len(aShape)
	m, k, n := aShape[nd-2], aShape[nd-1], bShape[nd-1]
	if k != bShape[nd-2] {
		panic(fmt.Sprintf("batch_matmul: inner dimensions mismatch: %v @ %v", aShape, bShape))
	}
	if a.DType() != tensor.Float32 || b.DType() != tensor.Float32 {
		panic(fmt.Sprintf("batch_matmul: only float32 supported, got %s and %s", a.DType(), b.DType()))
	}

	outShape := aShape.Clone()
	outShape[nd-1] = n
	result, err := tensor.NewRaw(outShape, tensor.Float32, cpu.device)
	if err != nil {
		panic(fmt.Sprintf("batch_matmul: %v", err))
	}

	ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
	aStep, bStep, rStep := m*k, k*n, m*n
	mul := func(i int) {
		sgemm(m, k, n,
			ad[i*aStep:(i+1)*aStep],
			bd[i*bStep:(i+1)*bStep],
			rd[i*rStep:(i+1)*rStep])
	}

	cfg := parallel.Config{Enabled: cpu.parallel.Enabled, NumWorkers: cpu.parallel.NumWorkers, MinChunkSize: 1}
	if nd == 4 {
		heads := aShape[1]
		parallel.ForBatch(aShape[0], heads, func(bi, hi int) { mul(bi*heads + hi) }, cfg)
		return result
	}
	parallel.For(aShape[0], mul, cfg)

	return result
}

// sgemm wraps blas32.Gemm for row-major C = A @ B.
// Degenerate sizes short-circuit: the zero-filled destination is
// already the correct product.
func sgemm(m, k, n int, a, b, c []float32) {
	if m == 0 || k == 0 || n == 0 {
		return
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1,
		blas32.General{Rows: m, Cols: k, Stride: k, Data: a},
		blas32.General{Rows: k, Cols: n, Stride: n, Data: b},
		0,
		blas32.General{Rows: m, Cols: n, Stride: n, Data: c})
}
