package autodiff

import (
	"fmt"
	"math"
	"testing"

	"github.com/born-ml/perceiver/internal/backend/cpu"
	"github.com/born-ml/perceiver/internal/tensor"
)

type adBackend = *Backend[*cpu.Backend]

func newBackend() adBackend {
	return New(cpu.New())
}

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, b adBackend) *tensor.Tensor[float32, adBackend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return out
}

func onesGrad(b adBackend) *tensor.RawTensor {
	return tensor.Ones[float32](tensor.Shape{1}, b).Raw()
}

func assertGrad(t *testing.T, grads map[*tensor.RawTensor]*tensor.RawTensor, of *tensor.RawTensor, want []float32, msg string) {
	t.Helper()
	grad, ok := grads[of]
	if !ok {
		t.Fatalf("%s: no gradient computed", msg)
	}
	got := grad.AsFloat32()
	if len(got) != len(want) {
		t.Fatalf("%s: gradient has %d elements, want %d", msg, len(got), len(want))
	}
	for i := range want {
		if math.Abs(float64(got[i]-want[i])) > 1e-5 {
			t.Errorf("%s[%d]: got %v, want %v", msg, i, got[i], want[i])
		}
	}
}

// Recording control

func TestTapeRecordsOnlyWhileRecording(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, backend)

	x.Add(x)
	if backend.Tape().NumOps() != 0 {
		t.Errorf("recorded %d ops before StartRecording", backend.Tape().NumOps())
	}

	backend.Tape().StartRecording()
	x.Add(x)
	if backend.Tape().NumOps() != 1 {
		t.Errorf("recorded %d ops, want 1", backend.Tape().NumOps())
	}

	backend.Tape().StopRecording()
	x.Add(x)
	if backend.Tape().NumOps() != 1 {
		t.Errorf("recorded %d ops after StopRecording, want 1", backend.Tape().NumOps())
	}

	backend.Tape().Clear()
	if backend.Tape().NumOps() != 0 {
		t.Errorf("Clear left %d ops", backend.Tape().NumOps())
	}
}

func TestBackwardOnEmptyTape(t *testing.T) {
	backend := newBackend()
	grads := backend.Tape().Backward(onesGrad(backend), backend)
	if len(grads) != 0 {
		t.Errorf("empty tape produced %d gradients", len(grads))
	}
}

// Element-wise gradients

func TestBackwardAdd(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)
	y := fromSlice(t, []float32{4, 5, 6}, tensor.Shape{3}, backend)

	backend.Tape().StartRecording()
	x.Add(y).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{1, 1, 1}, "dAdd/dx")
	assertGrad(t, grads, y.Raw(), []float32{1, 1, 1}, "dAdd/dy")
}

func TestBackwardSub(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, backend)
	y := fromSlice(t, []float32{3, 4}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	x.Sub(y).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{1, 1}, "dSub/dx")
	assertGrad(t, grads, y.Raw(), []float32{-1, -1}, "dSub/dy")
}

func TestBackwardMul(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{3}, backend)
	y := fromSlice(t, []float32{4, 5, 6}, tensor.Shape{3}, backend)

	backend.Tape().StartRecording()
	x.Mul(y).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{4, 5, 6}, "dMul/dx")
	assertGrad(t, grads, y.Raw(), []float32{1, 2, 3}, "dMul/dy")
}

func TestBackwardDiv(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{8, 6}, tensor.Shape{2}, backend)
	y := fromSlice(t, []float32{2, 3}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	x.Div(y).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// d(x/y)/dx = 1/y, d(x/y)/dy = -x/y^2
	assertGrad(t, grads, x.Raw(), []float32{0.5, 1.0 / 3}, "dDiv/dx")
	assertGrad(t, grads, y.Raw(), []float32{-2, -2.0 / 3}, "dDiv/dy")
}

func TestBackwardMulScalar(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, backend)

	backend.Tape().StartRecording()
	x.MulScalar(3).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{3, 3}, "dMulScalar/dx")
}

func TestBackwardBroadcastReducesGrad(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	bias := fromSlice(t, []float32{10, 20, 30}, tensor.Shape{1, 3}, backend)

	backend.Tape().StartRecording()
	x.Add(bias).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Bias was broadcast over 2 rows, so its gradient sums them.
	assertGrad(t, grads, bias.Raw(), []float32{2, 2, 2}, "broadcast bias grad")
}

// Matrix gradients

func TestBackwardMatMul(t *testing.T) {
	backend := newBackend()
	a := fromSlice(t, []float32{1, 2, 3, 4}, tensor.Shape{2, 2}, backend)
	b := fromSlice(t, []float32{5, 6, 7, 8}, tensor.Shape{2, 2}, backend)

	backend.Tape().StartRecording()
	a.MatMul(b).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// With upstream grad of ones: dA = ones @ B^T, dB = A^T @ ones.
	assertGrad(t, grads, a.Raw(), []float32{11, 15, 11, 15}, "dMatMul/dA")
	assertGrad(t, grads, b.Raw(), []float32{4, 4, 6, 6}, "dMatMul/dB")
}

func TestBackwardBatchMatMul(t *testing.T) {
	backend := newBackend()
	a := fromSlice(t, []float32{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2}, backend)
	b := fromSlice(t, []float32{1, 0, 0, 1, 1, 0, 0, 1}, tensor.Shape{2, 2, 2}, backend)

	backend.Tape().StartRecording()
	a.BatchMatMul(b).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Identity matrices on the right: dA = ones @ I = ones per batch.
	assertGrad(t, grads, a.Raw(), []float32{1, 1, 1, 1, 1, 1, 1, 1}, "dBatchMatMul/dA")
}

// Shape gradients

func TestBackwardReshapeRestoresShape(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	backend.Tape().StartRecording()
	x.Reshape(tensor.Shape{3, 2}).MulScalar(2).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	grad := grads[x.Raw()]
	if grad == nil {
		t.Fatal("no gradient for reshaped input")
	}
	if !grad.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("gradient shape %v, want [2 3]", grad.Shape())
	}
	assertGrad(t, grads, x.Raw(), []float32{2, 2, 2, 2, 2, 2}, "reshape grad")
}

func TestBackwardTransposeInvertsPermutation(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	backend.Tape().StartRecording()
	x.Transpose().MulScalar(1).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	grad := grads[x.Raw()]
	if grad == nil {
		t.Fatal("no gradient for transposed input")
	}
	if !grad.Shape().Equal(tensor.Shape{2, 3}) {
		t.Errorf("gradient shape %v, want [2 3]", grad.Shape())
	}
}

func TestBackwardExpandSumsOverCopies(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3}, tensor.Shape{1, 3}, backend)

	backend.Tape().StartRecording()
	x.Expand(tensor.Shape{4, 3}).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Each of the 4 broadcast copies contributes 1.
	assertGrad(t, grads, x.Raw(), []float32{4, 4, 4}, "expand grad")
}

func TestBackwardCatSplitsGrad(t *testing.T) {
	backend := newBackend()
	a := fromSlice(t, []float32{1, 2}, tensor.Shape{1, 2}, backend)
	b := fromSlice(t, []float32{3, 4, 5}, tensor.Shape{1, 3}, backend)

	backend.Tape().StartRecording()
	c := tensor.Cat([]*tensor.Tensor[float32, adBackend]{a, b}, 1)
	c.MulScalar(2).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, a.Raw(), []float32{2, 2}, "cat grad a")
	assertGrad(t, grads, b.Raw(), []float32{2, 2, 2}, "cat grad b")
}

// Softmax and reductions

func TestBackwardSoftmaxOfSumIsZero(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, -1, 0, 1}, tensor.Shape{2, 3}, backend)

	backend.Tape().StartRecording()
	x.Softmax(-1).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Softmax rows sum to 1 regardless of x, so the gradient vanishes.
	assertGrad(t, grads, x.Raw(), []float32{0, 0, 0, 0, 0, 0}, "softmax of sum grad")
}

func TestBackwardSoftmaxNumeric(t *testing.T) {
	backend := newBackend()
	input := []float32{0.5, -0.2, 1.1}

	// Analytic gradient of the first softmax output w.r.t. x.
	x := fromSlice(t, input, tensor.Shape{1, 3}, backend)
	backend.Tape().StartRecording()
	s := x.Softmax(-1)
	pick := fromSlice(t, []float32{1, 0, 0}, tensor.Shape{1, 3}, backend)
	s.Mul(pick).Sum()
	backend.Tape().StopRecording()
	grads := backend.Tape().Backward(onesGrad(backend), backend)
	analytic := grads[x.Raw()].AsFloat32()

	// Central differences on a plain backend.
	plain := cpu.New()
	f := func(v []float32) float32 {
		in, _ := tensor.FromSlice(v, tensor.Shape{1, 3}, plain)
		return in.Softmax(-1).At(0, 0)
	}
	const eps = 1e-3
	for i := range input {
		hi := append([]float32(nil), input...)
		lo := append([]float32(nil), input...)
		hi[i] += eps
		lo[i] -= eps
		numeric := (f(hi) - f(lo)) / (2 * eps)
		if math.Abs(float64(analytic[i]-numeric)) > 1e-3 {
			t.Errorf("softmax grad[%d]: analytic %v, numeric %v", i, analytic[i], numeric)
		}
	}
}

func TestBackwardSumDim(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	backend.Tape().StartRecording()
	x.SumDim(1, false).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{1, 1, 1, 1, 1, 1}, "sumdim grad")
}

func TestBackwardMeanDim(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)

	backend.Tape().StartRecording()
	x.MeanDim(1, false).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	third := float32(1.0 / 3.0)
	assertGrad(t, grads, x.Raw(), []float32{third, third, third, third, third, third}, "meandim grad")
}

// Reuse accumulation

func TestBackwardAccumulatesOverReuse(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{2}, backend)
	w := fromSlice(t, []float32{3, 4}, tensor.Shape{2}, backend)

	// w is used twice, as in weight-shared iterations.
	backend.Tape().StartRecording()
	x.Mul(w).Add(x.Mul(w)).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Each use contributes x, so the total is 2x.
	assertGrad(t, grads, w.Raw(), []float32{2, 4}, "shared weight grad")
}

// Cross-entropy

func TestCrossEntropyForwardAndBackward(t *testing.T) {
	backend := newBackend()
	logits := fromSlice(t, []float32{0, 0}, tensor.Shape{1, 2}, backend)
	targets := fromSlice(t, []float32{1, 0}, tensor.Shape{1, 2}, backend)

	backend.Tape().StartRecording()
	loss := backend.CrossEntropy(logits.Raw(), targets.Raw())
	backend.Tape().StopRecording()

	// Uniform logits over 2 classes: loss = ln 2.
	got := loss.AsFloat32()[0]
	want := float32(math.Log(2))
	if math.Abs(float64(got-want)) > 1e-5 {
		t.Errorf("loss = %v, want %v", got, want)
	}

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// grad = (softmax - target) / batch = [0.5-1, 0.5-0]
	assertGrad(t, grads, logits.Raw(), []float32{-0.5, 0.5}, "cross-entropy grad")

	if _, ok := grads[targets.Raw()]; ok {
		t.Error("targets must not receive a gradient")
	}
}

func TestCrossEntropyBatchAveraging(t *testing.T) {
	backend := newBackend()
	logits := fromSlice(t, []float32{0, 0, 0, 0}, tensor.Shape{2, 2}, backend)
	targets := fromSlice(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2}, backend)

	backend.Tape().StartRecording()
	backend.CrossEntropy(logits.Raw(), targets.Raw())
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	// Per-sample grad (softmax - target), averaged over batch of 2.
	assertGrad(t, grads, logits.Raw(), []float32{-0.25, 0.25, 0.25, -0.25}, "batched cross-entropy grad")
}

// Chained computation

func TestBackwardChain(t *testing.T) {
	backend := newBackend()
	x := fromSlice(t, []float32{1, 2}, tensor.Shape{1, 2}, backend)
	w := fromSlice(t, []float32{1, 0, 0, 1}, tensor.Shape{2, 2}, backend)

	backend.Tape().StartRecording()
	x.MatMul(w).MulScalar(3).Sum()
	backend.Tape().StopRecording()

	grads := backend.Tape().Backward(onesGrad(backend), backend)
	assertGrad(t, grads, x.Raw(), []float32{3, 3}, "chain dx")
	assertGrad(t, grads, w.Raw(), []float32{3, 3, 6, 6}, "chain dw")
}

func TestBackendName(t *testing.T) {
	backend := newBackend()
	if got := backend.Name(); got != "Autodiff(CPU)" {
		t.Errorf("Name() = %q", got)
	}
	_ = fmt.Sprintf("%v", backend.Device())
}
