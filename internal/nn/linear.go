package nn

import (
	"fmt"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Linear is a fully connected layer: y = x @ Wᵀ + b.
//
// The weight has shape [outFeatures, inFeatures] and the bias
// [outFeatures]. Inputs may be 2D [batch, in] or 3D [batch, seq, in];
// 3D inputs are flattened to rows for the matmul and restored after.
type Linear[B tensor.Backend] struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter[B]
	bias        *Parameter[B]
	backend     B
}

// NewLinear creates a Linear layer with Xavier weights and zero bias.
// name prefixes the parameter names for checkpoints.
func NewLinear[B tensor.Backend](name string, inFeatures, outFeatures int, backend B, rng *rand.Rand) *Linear[B] {
	weight := NewParameter(name+".weight",
		Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, backend, rng))
	bias := NewParameter(name+".bias", Zeros[B](tensor.Shape{outFeatures}, backend))

	return &Linear[B]{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
		backend:     backend,
	}
}

// Forward applies the affine transformation.
func (l *Linear[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	nd := len(shape)
	if nd != 2 && nd != 3 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D or 3D input, got shape %v", shape))
	}
	if shape[nd-1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected %d input features, got %d", l.inFeatures, shape[nd-1]))
	}

	x := input
	if nd == 3 {
		x = x.Reshape(tensor.Shape{shape[0] * shape[1], l.inFeatures})
	}

	wT := l.weight.Tensor().Transpose() // [in, out]
	output := x.MatMul(wT)
	output = output.Add(l.bias.Tensor().Reshape(tensor.Shape{1, l.outFeatures}))

	if nd == 3 {
		output = output.Reshape(tensor.Shape{shape[0], shape[1], l.outFeatures})
	}
	return output
}

// Parameters returns [weight, bias].
func (l *Linear[B]) Parameters() []*Parameter[B] {
	return []*Parameter[B]{l.weight, l.bias}
}

// Weight returns the weight parameter.
func (l *Linear[B]) Weight() *Parameter[B] {
	return l.weight
}

// Bias returns the bias parameter.
func (l *Linear[B]) Bias() *Parameter[B] {
	return l.bias
}

// InFeatures returns the input width.
func (l *Linear[B]) InFeatures() int {
	return l.inFeatures
}

// OutFeatures returns the output width.
func (l *Linear[B]) OutFeatures() int {
	return l.outFeatures
}
