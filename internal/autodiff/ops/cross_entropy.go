package ops

import (
	"fmt"
	"math"

	"github.com/born-ml/perceiver/internal/tensor"
)

// CrossEntropyOp records the categorical cross-entropy between logits
// [batch, classes] and one-hot float32 targets of the same shape.
//
// Forward:
//
//	loss = -mean_batch( Σ_c targets[b,c] * log_softmax(logits)[b,c] )
//
// Backward:
//
//	∂loss/∂logits = (softmax(logits) - targets) / batch
//
// Targets are treated as constants; no gradient is produced for them.
type CrossEntropyOp struct {
	inputs []*tensor.RawTensor // [logits, targets]
	output *tensor.RawTensor   // scalar loss, shape [1]
}

// NewCrossEntropyOp creates a new CrossEntropyOp.
func NewCrossEntropyOp(logits, targets, output *tensor.RawTensor) *CrossEntropyOp {
	return &CrossEntropyOp{
		inputs: []*tensor.RawTensor{logits, targets},
		output: output,
	}
}

// Backward computes the logits gradient. The nil entry for targets
// tells the tape not to accumulate anything for them.
func (op *CrossEntropyOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	logits, targets := op.inputs[0], op.inputs[1]
	shape := logits.Shape()
	batch, classes := shape[0], shape[1]

	grad, err := tensor.NewRaw(shape, tensor.Float32, logits.Device())
	if err != nil {
		panic(fmt.Sprintf("cross_entropy backward: %v", err))
	}

	scale := outputGrad.AsFloat32()[0] / float32(batch)
	logitsData := logits.AsFloat32()
	targetsData := targets.AsFloat32()
	gradData := grad.AsFloat32()

	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		probs := softmaxRow(row)
		for c := 0; c < classes; c++ {
			gradData[b*classes+c] = (probs[c] - targetsData[b*classes+c]) * scale
		}
	}

	return []*tensor.RawTensor{grad, nil}
}

// Inputs returns [logits, targets].
func (op *CrossEntropyOp) Inputs() []*tensor.RawTensor { return op.inputs }

// Output returns the scalar loss.
func (op *CrossEntropyOp) Output() *tensor.RawTensor { return op.output }

// CrossEntropyForward computes the scalar loss for logits and one-hot
// targets. Shared by the autodiff backend and the inference-only path.
func CrossEntropyForward(logits, targets *tensor.RawTensor, device tensor.Device) *tensor.RawTensor {
	shape := logits.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("cross_entropy: logits must be 2D [batch, classes], got %v", shape))
	}
	if !targets.Shape().Equal(shape) {
		panic(fmt.Sprintf("cross_entropy: targets shape %v does not match logits %v", targets.Shape(), shape))
	}

	batch, classes := shape[0], shape[1]
	if batch == 0 {
		panic("cross_entropy: empty batch")
	}

	logitsData := logits.AsFloat32()
	targetsData := targets.AsFloat32()

	var total float32
	for b := 0; b < batch; b++ {
		row := logitsData[b*classes : (b+1)*classes]
		logProbs := logSoftmaxRow(row)
		for c := 0; c < classes; c++ {
			if t := targetsData[b*classes+c]; t != 0 {
				total -= t * logProbs[c]
			}
		}
	}

	result, err := tensor.NewRaw(tensor.Shape{1}, tensor.Float32, device)
	if err != nil {
		panic(fmt.Sprintf("cross_entropy: %v", err))
	}
	result.AsFloat32()[0] = total / float32(batch)
	return result
}

// logSoftmaxRow computes log(softmax(z)) with the log-sum-exp trick,
// so logits beyond the float32 exp range stay finite.
func logSoftmaxRow(z []float32) []float32 {
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

// softmaxRow computes softmax(z) = exp(logSoftmax(z)).
func softmaxRow(z []float32) []float32 {
	logProbs := logSoftmaxRow(z)
	result := make([]float32, len(logProbs))
	for i, lp := range logProbs {
		result[i] = float32(math.Exp(float64(lp)))
	}
	return result
}
