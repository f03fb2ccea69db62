package tensor

import "testing"

func TestNewRawZeroFilled(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if raw.NumElements() != 6 {
		t.Errorf("NumElements = %d, want 6", raw.NumElements())
	}
	if raw.ByteSize() != 24 {
		t.Errorf("ByteSize = %d, want 24", raw.ByteSize())
	}
	for i, v := range raw.AsFloat32() {
		if v != 0 {
			t.Errorf("element %d = %v, want 0", i, v)
		}
	}
}

func TestNewRawRejectsNegativeDim(t *testing.T) {
	if _, err := NewRaw(Shape{2, -3}, Float32, CPU); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestRawTensorEmpty(t *testing.T) {
	raw, err := NewRaw(Shape{0, 1024}, Float32, CPU)
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}
	if got := raw.AsFloat32(); got != nil {
		t.Errorf("AsFloat32 on empty tensor = %v, want nil", got)
	}
}

func TestAsFloat32View(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Float32, CPU)
	view := raw.AsFloat32()
	view[2] = 3.5

	again := raw.AsFloat32()
	if again[2] != 3.5 {
		t.Error("AsFloat32 must return a view into the tensor's memory")
	}
}

func TestAsFloat32PanicsOnWrongDType(t *testing.T) {
	raw, _ := NewRaw(Shape{4}, Int32, CPU)

	defer func() {
		if recover() == nil {
			t.Error("expected panic for dtype mismatch")
		}
	}()
	raw.AsFloat32()
}

func TestRawTensorClone(t *testing.T) {
	raw, _ := NewRaw(Shape{3}, Float32, CPU)
	raw.AsFloat32()[0] = 7

	clone := raw.Clone()
	clone.AsFloat32()[0] = 99

	if raw.AsFloat32()[0] != 7 {
		t.Error("Clone shares memory with original")
	}
}

func TestWithShape(t *testing.T) {
	raw, _ := NewRaw(Shape{2, 3}, Float32, CPU)
	raw.AsFloat32()[4] = 5

	view, err := raw.WithShape(Shape{3, 2})
	if err != nil {
		t.Fatalf("WithShape failed: %v", err)
	}
	if view.AsFloat32()[4] != 5 {
		t.Error("WithShape must share the underlying buffer")
	}

	if _, err := raw.WithShape(Shape{4, 2}); err == nil {
		t.Error("expected error for element count mismatch")
	}
}
