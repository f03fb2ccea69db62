package tensor

// Backend defines the primitive array operations a compute backend must
// implement. The CPU backend executes them directly; the autodiff backend
// wraps another Backend and records each call for backpropagation.
//
// Element-wise binary operations follow NumPy broadcasting rules.
// Shape violations are programming errors and panic with a descriptive
// message; recoverable failures (allocation, construction) stay on the
// constructor side of the API.
type Backend interface {
	// Element-wise binary operations (with broadcasting)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor
	Div(a, b *RawTensor) *RawTensor

	// Matrix operations.
	// MatMul: [M, K] @ [K, N] -> [M, N]
	// BatchMatMul: [..., M, K] @ [..., K, N] -> [..., M, N] with equal
	// leading batch dimensions (3D and 4D inputs).
	MatMul(a, b *RawTensor) *RawTensor
	BatchMatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor
	Unsqueeze(x *RawTensor, dim int) *RawTensor
	Squeeze(x *RawTensor, dim int) *RawTensor
	Expand(x *RawTensor, shape Shape) *RawTensor
	Cat(tensors []*RawTensor, dim int) *RawTensor

	// Scalar operations
	AddScalar(x *RawTensor, scalar any) *RawTensor
	MulScalar(x *RawTensor, scalar any) *RawTensor

	// Softmax along a dimension, with max-subtraction for stability.
	Softmax(x *RawTensor, dim int) *RawTensor

	// Reductions
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	MeanDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Argmax(x *RawTensor, dim int) *RawTensor

	// Metadata
	Name() string
	Device() Device
}
