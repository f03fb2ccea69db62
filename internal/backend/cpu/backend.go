// Package cpu implements the CPU backend. Dense matrix products go
// through gonum's BLAS implementation; everything else is plain Go over
// flat slices, parallelized where the workload justifies it.
package cpu

import (
	"fmt"

	"github.com/born-ml/perceiver/internal/parallel"
	"github.com/born-ml/perceiver/internal/tensor"
)

// Backend implements tensor.Backend on the host CPU.
type Backend struct {
	device   tensor.Device
	parallel parallel.Config
}

// New creates a CPU backend with default parallelism.
func New() *Backend {
	return &Backend{
		device:   tensor.CPU,
		parallel: parallel.DefaultConfig(),
	}
}

// Name returns the backend name.
func (cpu *Backend) Name() string {
	return "CPU"
}

// Device returns the compute device.
func (cpu *Backend) Device() tensor.Device {
	return cpu.device
}

// Add performs element-wise addition with NumPy-style broadcasting.
func (cpu *Backend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binop("add", a, b,
		func(x, y float32) float32 { return x + y },
		func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction with broadcasting.
func (cpu *Backend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binop("sub", a, b,
		func(x, y float32) float32 { return x - y },
		func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication with broadcasting.
func (cpu *Backend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binop("mul", a, b,
		func(x, y float32) float32 { return x * y },
		func(x, y float64) float64 { return x * y })
}

// Div performs element-wise division with broadcasting.
func (cpu *Backend) Div(a, b *tensor.RawTensor) *tensor.RawTensor {
	return cpu.binop("div", a, b,
		func(x, y float32) float32 { return x / y },
		func(x, y float64) float64 { return x / y })
}

// binop applies a binary operation element-wise, broadcasting as needed.
func (cpu *Backend) binop(
	name string,
	a, b *tensor.RawTensor,
	f32 func(x, y float32) float32,
	f64 func(x, y float64) float64,
) *tensor.RawTensor {
	if a.DType() != b.DType() {
		panic(fmt.Sprintf("%s: dtype mismatch: %s vs %s", name, a.DType(), b.DType()))
	}

	outShape, needsBroadcast, err := tensor.BroadcastShapes(a.Shape(), b.Shape())
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	result, err := tensor.NewRaw(outShape, a.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	if !needsBroadcast && a.Shape().Equal(b.Shape()) {
		switch a.DType() {
		case tensor.Float32:
			ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
			parallel.For(len(rd), func(i int) { rd[i] = f32(ad[i], bd[i]) }, cpu.parallel)
		case tensor.Float64:
			ad, bd, rd := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
			parallel.For(len(rd), func(i int) { rd[i] = f64(ad[i], bd[i]) }, cpu.parallel)
		default:
			panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
		}
		return result
	}

	aIdx := broadcastIndexer(a.Shape(), outShape)
	bIdx := broadcastIndexer(b.Shape(), outShape)

	switch a.DType() {
	case tensor.Float32:
		ad, bd, rd := a.AsFloat32(), b.AsFloat32(), result.AsFloat32()
		parallel.For(len(rd), func(i int) { rd[i] = f32(ad[aIdx(i)], bd[bIdx(i)]) }, cpu.parallel)
	case tensor.Float64:
		ad, bd, rd := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
		parallel.For(len(rd), func(i int) { rd[i] = f64(ad[aIdx(i)], bd[bIdx(i)]) }, cpu.parallel)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, a.DType()))
	}

	return result
}

// broadcastIndexer returns a function mapping a flat index in outShape
// to the corresponding flat index in inShape, where size-1 dimensions
// of inShape are held at index 0.
func broadcastIndexer(inShape, outShape tensor.Shape) func(int) int {
	outStrides := outShape.ComputeStrides()
	inStrides := inShape.ComputeStrides()
	offset := len(outShape) - len(inShape)

	return func(flat int) int {
		idx := 0
		for d := 0; d < len(outShape); d++ {
			coord := (flat / outStrides[d]) % outShape[d]
			inDim := d - offset
			if inDim < 0 {
				continue
			}
			if inShape[inDim] == 1 {
				continue
			}
			idx += coord * inStrides[inDim]
		}
		return idx
	}
}

// AddScalar adds a scalar to every element.
func (cpu *Backend) AddScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("add_scalar", x, scalar,
		func(v, s float32) float32 { return v + s },
		func(v, s float64) float64 { return v + s })
}

// MulScalar multiplies every element by a scalar.
func (cpu *Backend) MulScalar(x *tensor.RawTensor, scalar any) *tensor.RawTensor {
	return cpu.scalarOp("mul_scalar", x, scalar,
		func(v, s float32) float32 { return v * s },
		func(v, s float64) float64 { return v * s })
}

func (cpu *Backend) scalarOp(
	name string,
	x *tensor.RawTensor,
	scalar any,
	f32 func(v, s float32) float32,
	f64 func(v, s float64) float64,
) *tensor.RawTensor {
	result, err := tensor.NewRaw(x.Shape(), x.DType(), cpu.device)
	if err != nil {
		panic(fmt.Sprintf("%s: %v", name, err))
	}

	switch x.DType() {
	case tensor.Float32:
		s := toFloat64(name, scalar)
		xd, rd := x.AsFloat32(), result.AsFloat32()
		parallel.For(len(rd), func(i int) { rd[i] = f32(xd[i], float32(s)) }, cpu.parallel)
	case tensor.Float64:
		s := toFloat64(name, scalar)
		xd, rd := x.AsFloat64(), result.AsFloat64()
		parallel.For(len(rd), func(i int) { rd[i] = f64(xd[i], s) }, cpu.parallel)
	default:
		panic(fmt.Sprintf("%s: unsupported dtype %s", name, x.DType()))
	}

	return result
}

func toFloat64(name string, scalar any) float64 {
	switch s := scalar.(type) {
	case float32:
		return float64(s)
	case float64:
		return s
	case int:
		return float64(s)
	case int32:
		return float64(s)
	default:
		panic(fmt.Sprintf("%s: unsupported scalar type %T", name, scalar))
	}
}
