package nn

import (
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/born-ml/perceiver/internal/backend/cpu"
	"github.com/born-ml/perceiver/internal/tensor"
)

// Test helpers shared across the package.

func testRNG() *rand.Rand {
	return rand.New(rand.NewSource(42))
}

func assertEqualFloat32(t *testing.T, expected, actual float32, msg string) {
	t.Helper()
	if math.Abs(float64(expected-actual)) > 1e-5 {
		t.Errorf("%s: expected %v, got %v", msg, expected, actual)
	}
}

func assertEqualShape(t *testing.T, expected, actual tensor.Shape, msg string) {
	t.Helper()
	if !expected.Equal(actual) {
		t.Errorf("%s: expected shape %v, got %v", msg, expected, actual)
	}
}

func fromSlice(t *testing.T, data []float32, shape tensor.Shape, b *cpu.Backend) *tensor.Tensor[float32, *cpu.Backend] {
	t.Helper()
	out, err := tensor.FromSlice(data, shape, b)
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}
	return out
}

// zeroFill overwrites a parameter with zeros.
func zeroFill[B tensor.Backend](p *Parameter[B]) {
	data := p.Tensor().Data()
	for i := range data {
		data[i] = 0
	}
}

// Linear

func TestLinearForward2D(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("test", 3, 2, backend, testRNG())

	// Overwrite with known values: W = [[1,0,0],[0,1,0]], b = [10, 20].
	copy(layer.Weight().Tensor().Data(), []float32{1, 0, 0, 0, 1, 0})
	copy(layer.Bias().Tensor().Data(), []float32{10, 20})

	input := fromSlice(t, []float32{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3}, backend)
	output := layer.Forward(input)

	assertEqualShape(t, tensor.Shape{2, 2}, output.Shape(), "Linear 2D output shape")
	expected := []float32{11, 22, 14, 25}
	for i, want := range expected {
		assertEqualFloat32(t, want, output.Data()[i], fmt.Sprintf("Linear 2D output[%d]", i))
	}
}

func TestLinearForward3D(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("test", 4, 6, backend, testRNG())

	input := tensor.Zeros[float32](tensor.Shape{2, 5, 4}, backend)
	output := layer.Forward(input)

	assertEqualShape(t, tensor.Shape{2, 5, 6}, output.Shape(), "Linear 3D output shape")
}

func TestLinearZeroInputGivesBias(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("test", 3, 2, backend, testRNG())
	copy(layer.Bias().Tensor().Data(), []float32{1.5, -2.5})

	input := tensor.Zeros[float32](tensor.Shape{1, 3}, backend)
	output := layer.Forward(input)

	assertEqualFloat32(t, 1.5, output.At(0, 0), "bias passthrough [0]")
	assertEqualFloat32(t, -2.5, output.At(0, 1), "bias passthrough [1]")
}

func TestLinearPanicsOnWrongWidth(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("test", 3, 2, backend, testRNG())
	input := tensor.Zeros[float32](tensor.Shape{1, 4}, backend)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for input width mismatch")
		}
	}()
	layer.Forward(input)
}

func TestLinearParameters(t *testing.T) {
	backend := cpu.New()
	layer := NewLinear("proj", 3, 2, backend, testRNG())

	params := layer.Parameters()
	if len(params) != 2 {
		t.Fatalf("got %d parameters, want 2", len(params))
	}
	if params[0].Name() != "proj.weight" || params[1].Name() != "proj.bias" {
		t.Errorf("parameter names = %q, %q", params[0].Name(), params[1].Name())
	}
	if params[0].NumElements() != 6 || params[1].NumElements() != 2 {
		t.Errorf("parameter sizes = %d, %d", params[0].NumElements(), params[1].NumElements())
	}
}

// Initializers

func TestXavierBounds(t *testing.T) {
	backend := cpu.New()
	fanIn, fanOut := 64, 32
	w := Xavier(fanIn, fanOut, tensor.Shape{fanOut, fanIn}, backend, testRNG())

	bound := float32(math.Sqrt(6.0 / float64(fanIn+fanOut)))
	var nonZero bool
	for i, v := range w.Data() {
		if v < -bound || v > bound {
			t.Fatalf("Xavier[%d] = %v outside [%v, %v]", i, v, -bound, bound)
		}
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("Xavier produced all zeros")
	}
}

func TestXavierReproducible(t *testing.T) {
	backend := cpu.New()
	a := Xavier(8, 8, tensor.Shape{8, 8}, backend, rand.New(rand.NewSource(7)))
	b := Xavier(8, 8, tensor.Shape{8, 8}, backend, rand.New(rand.NewSource(7)))

	for i := range a.Data() {
		if a.Data()[i] != b.Data()[i] {
			t.Fatal("same seed must give identical initialization")
		}
	}
}

func TestScaledNormalSpread(t *testing.T) {
	backend := cpu.New()
	const std = 0.02
	s := ScaledNormal(tensor.Shape{512, 32}, std, backend, testRNG())

	var sum, sumSq float64
	for _, v := range s.Data() {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	n := float64(len(s.Data()))
	mean := sum / n
	variance := sumSq/n - mean*mean

	if math.Abs(mean) > 1e-3 {
		t.Errorf("mean = %v, want ~0", mean)
	}
	if math.Abs(math.Sqrt(variance)-std) > 0.005 {
		t.Errorf("std = %v, want ~%v", math.Sqrt(variance), std)
	}
}
