package storage

import (
	"fmt"
	"slices"

	"gorgonia.org/tensor"
)

// NewTensor builds a float32 state tensor with the given shape over data.
// The tensor takes ownership of data.
func NewTensor(shape []int, data []float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(shape...), tensor.WithBacking(data))
}

// ParseTensor is NewTensor for untrusted input: it fails with
// ErrShapeMismatch instead of panicking when data does not fill shape.
func ParseTensor(shape []int, data []float32) (*tensor.Dense, error) {
	if len(shape) == 0 {
		return nil, fmt.Errorf("%w: empty shape", ErrShapeMismatch)
	}
	for _, dim := range shape {
		if dim <= 0 {
			return nil, fmt.Errorf("%w: shape %v has a non-positive dimension", ErrShapeMismatch, shape)
		}
	}
	if size := tensor.Shape(shape).TotalSize(); size != len(data) {
		return nil, fmt.Errorf("%w: shape %v needs %d values, got %d", ErrShapeMismatch, shape, size, len(data))
	}
	return NewTensor(shape, data), nil
}

// TensorValues returns the float32 backing of d, or nil
func TensorValues(d *tensor.Dense) []float32 {
	if d == nil {
		return nil
	}
	data, _ := d.Data().([]float32)
	return data
}

// TensorShape returns a copy of the shape of d
func TensorShape(d *tensor.Dense) []int {
	if d == nil {
		return nil
	}
	return append([]int(nil), d.Shape()...)
}

// checkTensor verifies that d is a float32 tensor of exactly the given shape.
// Row and column vectors do not match a flat vector shape here, unlike
// tensor.Shape.Eq.
func checkTensor(name string, d *tensor.Dense, shape []int) error {
	if d == nil {
		return fmt.Errorf("%w: %s is nil, want shape %v", ErrShapeMismatch, name, shape)
	}
	if d.Dtype() != tensor.Float32 {
		return fmt.Errorf("%w: %s has element type %v, want float32", ErrShapeMismatch, name, d.Dtype())
	}
	if !slices.Equal([]int(d.Shape()), shape) {
		return fmt.Errorf("%w: %s has shape %v, want %v", ErrShapeMismatch, name, d.Shape(), shape)
	}
	if size := tensor.Shape(shape).TotalSize(); len(TensorValues(d)) != size {
		return fmt.Errorf("%w: %s holds %d values, want %d", ErrShapeMismatch, name, len(TensorValues(d)), size)
	}
	return nil
}
