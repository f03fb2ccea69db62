package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/born-ml/perceiver/internal/tensor"
)

// Attention is the shared attention primitive: multi-head scaled
// dot-product attention followed by an output projection and a residual
// connection from the query source.
//
// Cross-attention and self-attention are the same operation; callers
// pass different key/value sources. With the latent array as the query,
// keyValue = encoded input gives cross-attention and keyValue = latent
// gives self-attention.
//
// Projection widths:
//   - query:     [queryChannels -> queryChannels]
//   - key/value: [kvChannels -> queryChannels]
//   - output:    [queryChannels -> queryChannels]
//
// The residual add means a freshly zeroed attention block is the
// identity on its query.
type Attention[B tensor.Backend] struct {
	queryChannels int
	kvChannels    int
	numHeads      int
	headDim       int

	query  *Linear[B]
	key    *Linear[B]
	value  *Linear[B]
	output *Linear[B]

	backend B
}

// NewAttention creates an attention block. queryChannels must be
// divisible by numHeads.
func NewAttention[B tensor.Backend](name string, queryChannels, kvChannels, numHeads int, backend B, rng *rand.Rand) (*Attention[B], error) {
	if numHeads <= 0 {
		return nil, fmt.Errorf("attention %q: numHeads must be positive, got %d", name, numHeads)
	}
	if queryChannels <= 0 || kvChannels <= 0 {
		return nil, fmt.Errorf("attention %q: channels must be positive, got query=%d kv=%d", name, queryChannels, kvChannels)
	}
	if queryChannels%numHeads != 0 {
		return nil, fmt.Errorf("attention %q: queryChannels %d not divisible by numHeads %d", name, queryChannels, numHeads)
	}

	return &Attention[B]{
		queryChannels: queryChannels,
		kvChannels:    kvChannels,
		numHeads:      numHeads,
		headDim:       queryChannels / numHeads,
		query:         NewLinear(name+".query", queryChannels, queryChannels, backend, rng),
		key:           NewLinear(name+".key", kvChannels, queryChannels, backend, rng),
		value:         NewLinear(name+".value", kvChannels, queryChannels, backend, rng),
		output:        NewLinear(name+".output", queryChannels, queryChannels, backend, rng),
		backend:       backend,
	}, nil
}

// Forward attends the query over the key/value source.
//
// Shapes:
//   - query:    [batch, m, queryChannels]
//   - keyValue: [batch, n, kvChannels]
//   - returns:  [batch, m, queryChannels]
//
// An empty query (m == 0) is returned unchanged without touching the
// projections. An empty key/value source (n == 0) panics: softmax over
// zero keys has no value.
func (a *Attention[B]) Forward(query, keyValue *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	qShape, kvShape := query.Shape(), keyValue.Shape()
	if len(qShape) != 3 || len(kvShape) != 3 {
		panic(fmt.Sprintf("Attention.Forward: expected 3D inputs, got %v and %v", qShape, kvShape))
	}
	if qShape[0] != kvShape[0] {
		panic(fmt.Sprintf("Attention.Forward: batch mismatch: %d vs %d", qShape[0], kvShape[0]))
	}
	if qShape[2] != a.queryChannels {
		panic(fmt.Sprintf("Attention.Forward: expected %d query channels, got %d", a.queryChannels, qShape[2]))
	}
	if kvShape[2] != a.kvChannels {
		panic(fmt.Sprintf("Attention.Forward: expected %d key/value channels, got %d", a.kvChannels, kvShape[2]))
	}

	batch, m, n := qShape[0], qShape[1], kvShape[1]
	if m == 0 {
		return query.Clone()
	}
	if n == 0 {
		panic("Attention.Forward: key/value source must contain at least one position")
	}

	q := a.splitHeads(a.query.Forward(query), batch, m)    // [batch, heads, m, headDim]
	k := a.splitHeads(a.key.Forward(keyValue), batch, n)   // [batch, heads, n, headDim]
	v := a.splitHeads(a.value.Forward(keyValue), batch, n) // [batch, heads, n, headDim]

	// scores = q @ kᵀ / sqrt(headDim)
	scores := q.BatchMatMul(k.Transpose(0, 1, 3, 2))
	scores = scores.MulScalar(float32(1 / math.Sqrt(float64(a.headDim))))

	weights := scores.Softmax(-1)      // [batch, heads, m, n]
	attended := weights.BatchMatMul(v) // [batch, heads, m, headDim]

	merged := a.mergeHeads(attended, batch, m) // [batch, m, queryChannels]
	return a.output.Forward(merged).Add(query)
}

// splitHeads reshapes [batch, seq, channels] into
// [batch, heads, seq, headDim].
func (a *Attention[B]) splitHeads(t *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return t.
		Reshape(tensor.Shape{batch, seq, a.numHeads, a.headDim}).
		Transpose(0, 2, 1, 3)
}

// mergeHeads inverts splitHeads.
func (a *Attention[B]) mergeHeads(t *tensor.Tensor[float32, B], batch, seq int) *tensor.Tensor[float32, B] {
	return t.
		Transpose(0, 2, 1, 3).
		Reshape(tensor.Shape{batch, seq, a.queryChannels})
}

// Parameters returns the four projection parameter pairs.
func (a *Attention[B]) Parameters() []*Parameter[B] {
	params := make([]*Parameter[B], 0, 8)
	params = append(params, a.query.Parameters()...)
	params = append(params, a.key.Parameters()...)
	params = append(params, a.value.Parameters()...)
	params = append(params, a.output.Parameters()...)
	return params
}

// NumHeads returns the head count.
func (a *Attention[B]) NumHeads() int {
	return a.numHeads
}

// HeadDim returns the per-head channel width.
func (a *Attention[B]) HeadDim() int {
	return a.headDim
}
