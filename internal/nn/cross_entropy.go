package nn

import (
	"fmt"
	"math"

	"github.com/born-ml/perceiver/internal/tensor"
)

// CategoricalCrossEntropy computes cross-entropy between raw logits and
// one-hot encoded targets, averaged over the batch.
//
// The log-sum-exp trick keeps logits beyond the float32 exp range
// finite. On an autodiff-aware backend the whole loss is recorded as
// one tape operation whose backward pass is
// (softmax(logits) - targets) / batch.
type CategoricalCrossEntropy[B tensor.Backend] struct {
	backend B
}

// NewCategoricalCrossEntropy creates the loss function.
func NewCategoricalCrossEntropy[B tensor.Backend](backend B) *CategoricalCrossEntropy[B] {
	return &CategoricalCrossEntropy[B]{backend: backend}
}

// Forward computes the mean loss for logits and one-hot targets, both
// shaped [batch, numClasses]. Returns a single-element tensor.
func (c *CategoricalCrossEntropy[B]) Forward(
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[float32, B],
) *tensor.Tensor[float32, B] {
	// Autodiff-aware backends expose CrossEntropy directly so the
	// loss lands on the tape as a single fused operation.
	type crossEntropyBackend interface {
		CrossEntropy(logits, targets *tensor.RawTensor) *tensor.RawTensor
	}
	if ad, ok := any(c.backend).(crossEntropyBackend); ok {
		return tensor.New[float32, B](ad.CrossEntropy(logits.Raw(), targets.Raw()), c.backend)
	}

	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("CategoricalCrossEntropy: logits must be 2D [batch, classes], got %v", shape))
	}
	if !targets.Shape().Equal(shape) {
		panic(fmt.Sprintf("CategoricalCrossEntropy: targets shape %v does not match logits %v", targets.Shape(), shape))
	}

	batch, classes := shape[0], shape[1]
	if batch == 0 {
		panic("CategoricalCrossEntropy: empty batch")
	}

	logitsData := logits.Data()
	targetsData := targets.Data()

	var total float32
	for b := 0; b < batch; b++ {
		logProbs := logSoftmax(logitsData[b*classes : (b+1)*classes])
		for j := 0; j < classes; j++ {
			if t := targetsData[b*classes+j]; t != 0 {
				total -= t * logProbs[j]
			}
		}
	}

	raw, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, c.backend.Device())
	if err != nil {
		panic(err)
	}
	raw.AsFloat32()[0] = total / float32(batch)
	return tensor.New[float32, B](raw, c.backend)
}

// Parameters returns nil: loss functions are parameterless.
func (c *CategoricalCrossEntropy[B]) Parameters() []*Parameter[B] {
	return nil
}

// logSoftmax computes log(softmax(z)) via
// z - (max(z) + log Σ exp(z - max(z))).
func logSoftmax(z []float32) []float32 {
	maxZ := z[0]
	for _, v := range z[1:] {
		if v > maxZ {
			maxZ = v
		}
	}

	var sumExp float64
	for _, v := range z {
		sumExp += math.Exp(float64(v - maxZ))
	}
	logSumExp := maxZ + float32(math.Log(sumExp))

	result := make([]float32, len(z))
	for i, v := range z {
		result[i] = v - logSumExp
	}
	return result
}

// Accuracy computes the fraction of rows whose argmax matches the
// one-hot target's argmax. Both inputs are [batch, numClasses].
func Accuracy[B tensor.Backend](
	logits *tensor.Tensor[float32, B],
	targets *tensor.Tensor[float32, B],
) float32 {
	shape := logits.Shape()
	batch, classes := shape[0], shape[1]
	if batch == 0 {
		return 0
	}

	logitsData := logits.Data()
	targetsData := targets.Data()

	correct := 0
	for b := 0; b < batch; b++ {
		predicted := argmaxRow(logitsData[b*classes : (b+1)*classes])
		expected := argmaxRow(targetsData[b*classes : (b+1)*classes])
		if predicted == expected {
			correct++
		}
	}
	return float32(correct) / float32(batch)
}

func argmaxRow(z []float32) int {
	maxIdx := 0
	for i, v := range z[1:] {
		if v > z[maxIdx] {
			maxIdx = i + 1
		}
	}
	return maxIdx
}
