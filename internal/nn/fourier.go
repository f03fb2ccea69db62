package nn

import (
	"fmt"
	"math"
	"sync"

	"github.com/born-ml/perceiver/internal/tensor"
)

// FourierEncoder tags every spatial position of an image with Fourier
// features of its coordinates, then flattens the spatial grid:
//
//	[batch, h, w, c] -> [batch, h*w, c + 2*numBands*2]
//
// Per axis, positions are normalized to [-1, 1] and encoded as
// sin(2π f x) and cos(2π f x) for numBands frequencies log-linearly
// spaced between 1 and the axis Nyquist rate (size/2). The encoding is
// deterministic and has no trainable parameters; with numBands == 0 the
// input is only flattened.
type FourierEncoder[B tensor.Backend] struct {
	numBands int
	backend  B

	// Position features depend only on the spatial size, so they are
	// built once per resolution and reused across batches. The mutex
	// keeps concurrent forward passes from racing on the cache.
	mu               sync.Mutex
	cachedH, cachedW int
	cached           *tensor.Tensor[float32, B]
}

// NewFourierEncoder creates an encoder with the given number of
// frequency bands per axis.
func NewFourierEncoder[B tensor.Backend](numBands int, backend B) (*FourierEncoder[B], error) {
	if numBands < 0 {
		return nil, fmt.Errorf("fourier encoder: numBands must be non-negative, got %d", numBands)
	}
	return &FourierEncoder[B]{numBands: numBands, backend: backend}, nil
}

// OutputChannels returns the encoded channel count for raw input
// channels c: c + 2*numBands per axis, two axes.
func (f *FourierEncoder[B]) OutputChannels(rawChannels int) int {
	return rawChannels + 2*f.numBands*2
}

// Forward encodes a [batch, h, w, c] image batch.
func (f *FourierEncoder[B]) Forward(input *tensor.Tensor[float32, B]) *tensor.Tensor[float32, B] {
	shape := input.Shape()
	if len(shape) != 4 {
		panic(fmt.Sprintf("FourierEncoder.Forward: expected 4D input [batch, h, w, c], got %v", shape))
	}

	batch, h, w, c := shape[0], shape[1], shape[2], shape[3]
	flat := input.Reshape(tensor.Shape{batch, h * w, c})
	if f.numBands == 0 {
		return flat
	}

	pos := f.positionFeatures(h, w) // [1, h*w, 4*numBands]
	expanded := pos.Expand(tensor.Shape{batch, h * w, pos.Shape()[2]})
	return tensor.Cat([]*tensor.Tensor[float32, B]{flat, expanded}, 2)
}

// positionFeatures builds (and caches) the constant position feature
// block for an h*w grid.
func (f *FourierEncoder[B]) positionFeatures(h, w int) *tensor.Tensor[float32, B] {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cached != nil && f.cachedH == h && f.cachedW == w {
		return f.cached
	}

	perAxis := 2 * f.numBands
	featDim := 2 * perAxis
	data := make([]float32, h*w*featDim)

	rows := axisCoordinates(h)
	cols := axisCoordinates(w)
	rowFreqs := frequencyBands(f.numBands, float64(h)/2)
	colFreqs := frequencyBands(f.numBands, float64(w)/2)

	for i := 0; i < h; i++ {
		for j := 0; j < w; j++ {
			out := data[(i*w+j)*featDim:]
			encodeAxis(out[:perAxis], rows[i], rowFreqs)
			encodeAxis(out[perAxis:featDim], cols[j], colFreqs)
		}
	}

	t, err := tensor.FromSlice(data, tensor.Shape{1, h * w, featDim}, f.backend)
	if err != nil {
		panic(fmt.Sprintf("FourierEncoder: %v", err))
	}

	f.cachedH, f.cachedW, f.cached = h, w, t
	return t
}

// Parameters returns nil: the encoding is fixed.
func (f *FourierEncoder[B]) Parameters() []*Parameter[B] {
	return nil
}

// axisCoordinates returns n positions normalized to [-1, 1].
func axisCoordinates(n int) []float64 {
	coords := make([]float64, n)
	if n == 1 {
		return coords
	}
	step := 2 / float64(n-1)
	for i := range coords {
		coords[i] = -1 + float64(i)*step
	}
	return coords
}

// frequencyBands returns numBands frequencies log-linearly spaced from
// 1 to nyquist. A single band sits at the Nyquist rate, the highest
// frequency the axis resolution supports.
func frequencyBands(numBands int, nyquist float64) []float64 {
	freqs := make([]float64, numBands)
	if numBands == 1 {
		freqs[0] = nyquist
		return freqs
	}

	logMax := math.Log(nyquist)
	step := logMax / float64(numBands-1)
	for k := range freqs {
		freqs[k] = math.Exp(float64(k) * step)
	}
	return freqs
}

// encodeAxis fills out with sin/cos features for one coordinate:
// all sine bands first, then all cosine bands.
func encodeAxis(out []float32, x float64, freqs []float64) {
	n := len(freqs)
	for k, f := range freqs {
		arg := 2 * math.Pi * f * x
		out[k] = float32(math.Sin(arg))
		out[n+k] = float32(math.Cos(arg))
	}
}
