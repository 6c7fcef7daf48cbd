// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors holds compile-time constant values of a MIL program.
//
// A Tensor is a flat Go slice plus the shape (see package shapes) it represents. Constant tensors are
// always concretely shaped: they can't have symbolic dimensions.
//
// Half-precision values use github.com/x448/float16 and github.com/gomlx/gopjrt/dtypes/bfloat16.
package tensors

import (
	"fmt"
	"math"
	"strings"

	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"
)

// Supported lists the Go types that can be stored in a Tensor.
type Supported interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | float16.Float16 | bfloat16.BFloat16
}

// Tensor is an immutable constant value.
type Tensor struct {
	shape shapes.Shape
	flat  any
}

// dtypeOf returns the DType for the Go type T.
func dtypeOf[T Supported]() dtypes.DType {
	var t T
	switch any(t).(type) {
	case bool:
		return dtypes.Bool
	case int8:
		return dtypes.Int8
	case int16:
		return dtypes.Int16
	case int32:
		return dtypes.Int32
	case int64:
		return dtypes.Int64
	case uint8:
		return dtypes.Uint8
	case uint16:
		return dtypes.Uint16
	case uint32:
		return dtypes.Uint32
	case uint64:
		return dtypes.Uint64
	case float32:
		return dtypes.Float32
	case float64:
		return dtypes.Float64
	case float16.Float16:
		return dtypes.Float16
	case bfloat16.BFloat16:
		return dtypes.BFloat16
	}
	return dtypes.InvalidDType
}

// FromFlatAndDimensions creates a Tensor from the flat values (copied) and the given dimensions.
//
// It panics if the number of values doesn't match the dimensions.
func FromFlatAndDimensions[T Supported](flat []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeOf[T](), dimensions...)
	size, _ := shape.Size()
	if size != len(flat) {
		exceptions.Panicf("tensors.FromFlatAndDimensions: %d values given for shape %s (size %d)",
			len(flat), shape, size)
	}
	return &Tensor{shape: shape, flat: append([]T(nil), flat...)}
}

// FromScalar creates a scalar Tensor.
func FromScalar[T Supported](value T) *Tensor {
	return &Tensor{shape: shapes.Scalar(dtypeOf[T]()), flat: []T{value}}
}

// FromFloat64s creates a Tensor of the given dtype and dimensions converting the values from float64.
// It's used to build constants from textual descriptions.
func FromFloat64s(dtype dtypes.DType, dimensions []int, values []float64) (*Tensor, error) {
	shape := shapes.Make(dtype, dimensions...)
	size, _ := shape.Size()
	if size != len(values) {
		return nil, errors.Errorf("%d values given for constant of shape %s (size %d)", len(values), shape, size)
	}
	var flat any
	switch dtype {
	case dtypes.Bool:
		bools := make([]bool, len(values))
		for ii, v := range values {
			bools[ii] = v != 0
		}
		flat = bools
	case dtypes.Int8:
		flat = convertFlat[int8](values)
	case dtypes.Int16:
		flat = convertFlat[int16](values)
	case dtypes.Int32:
		flat = convertFlat[int32](values)
	case dtypes.Int64:
		flat = convertFlat[int64](values)
	case dtypes.Uint8:
		flat = convertFlat[uint8](values)
	case dtypes.Uint16:
		flat = convertFlat[uint16](values)
	case dtypes.Uint32:
		flat = convertFlat[uint32](values)
	case dtypes.Uint64:
		flat = convertFlat[uint64](values)
	case dtypes.Float32:
		flat = convertFlat[float32](values)
	case dtypes.Float64:
		flat = convertFlat[float64](values)
	case dtypes.Float16:
		halfs := make([]float16.Float16, len(values))
		for ii, v := range values {
			halfs[ii] = float16.Fromfloat32(float32(v))
		}
		flat = halfs
	case dtypes.BFloat16:
		halfs := make([]bfloat16.BFloat16, len(values))
		for ii, v := range values {
			halfs[ii] = bfloat16.FromFloat32(float32(v))
		}
		flat = halfs
	default:
		return nil, errors.Errorf("dtype %s not supported for constants", dtype)
	}
	return &Tensor{shape: shape, flat: flat}, nil
}

func convertFlat[T constraints.Integer | constraints.Float](values []float64) []T {
	out := make([]T, len(values))
	for ii, v := range values {
		out[ii] = T(v)
	}
	return out
}

func appendAsFloat64[T constraints.Integer | constraints.Float](out []float64, values []T) []float64 {
	for _, v := range values {
		out = append(out, float64(v))
	}
	return out
}

func isInteger(dtype dtypes.DType) bool {
	switch dtype {
	case dtypes.Int8, dtypes.Int16, dtypes.Int32, dtypes.Int64,
		dtypes.Uint8, dtypes.Uint16, dtypes.Uint32, dtypes.Uint64:
		return true
	}
	return false
}

// Shape of the tensor.
func (t *Tensor) Shape() shapes.Shape { return t.shape }

// DType of the tensor elements.
func (t *Tensor) DType() dtypes.DType { return t.shape.DType }

// Size is the number of elements.
func (t *Tensor) Size() int {
	size, _ := t.shape.Size()
	return size
}

// IsScalar returns whether the tensor has rank 0.
func (t *Tensor) IsScalar() bool { return t.shape.IsScalar() }

// Flat returns the underlying flat slice (e.g. []float32). It must not be modified.
func (t *Tensor) Flat() any { return t.flat }

// Float64s returns the values converted to float64. Booleans are converted to 0 or 1.
func (t *Tensor) Float64s() []float64 {
	out := make([]float64, 0, t.Size())
	switch flat := t.flat.(type) {
	case []bool:
		for _, v := range flat {
			if v {
				out = append(out, 1)
			} else {
				out = append(out, 0)
			}
		}
	case []int8:
		out = appendAsFloat64(out, flat)
	case []int16:
		out = appendAsFloat64(out, flat)
	case []int32:
		out = appendAsFloat64(out, flat)
	case []int64:
		out = appendAsFloat64(out, flat)
	case []uint8:
		out = appendAsFloat64(out, flat)
	case []uint16:
		out = appendAsFloat64(out, flat)
	case []uint32:
		out = appendAsFloat64(out, flat)
	case []uint64:
		out = appendAsFloat64(out, flat)
	case []float32:
		out = appendAsFloat64(out, flat)
	case []float64:
		out = appendAsFloat64(out, flat)
	case []float16.Float16:
		for _, v := range flat {
			out = append(out, float64(v.Float32()))
		}
	case []bfloat16.BFloat16:
		for _, v := range flat {
			out = append(out, float64(v.Float32()))
		}
	default:
		exceptions.Panicf("tensors.Float64s: unsupported flat type %T", t.flat)
	}
	return out
}

// AllEqual returns whether every element of the tensor is equal to value.
// An empty tensor is vacuously equal to any value. NaN is never equal to anything.
func (t *Tensor) AllEqual(value float64) bool {
	for _, v := range t.Float64s() {
		if v != value {
			return false
		}
	}
	return true
}

// ScalarFloat64 returns the single value of a tensor holding exactly one element, converted to float64.
// It returns false if the tensor holds a different number of elements.
func (t *Tensor) ScalarFloat64() (float64, bool) {
	if t.Size() != 1 {
		return 0, false
	}
	return t.Float64s()[0], true
}

// Ints returns the values of an integer tensor as []int. It returns false for non-integer dtypes.
func (t *Tensor) Ints() ([]int, bool) {
	if !isInteger(t.DType()) {
		return nil, false
	}
	values := t.Float64s()
	ints := make([]int, len(values))
	for ii, v := range values {
		ints[ii] = int(v)
	}
	return ints, true
}

// String pretty-prints small tensors fully and larger ones abbreviated.
func (t *Tensor) String() string {
	const maxPrinted = 8
	values := t.Float64s()
	format := func(v float64) string {
		if t.DType() == dtypes.Bool {
			return fmt.Sprint(v != 0)
		}
		if math.Trunc(v) == v && isInteger(t.DType()) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%g", v)
	}
	if t.IsScalar() {
		return format(values[0])
	}
	parts := make([]string, 0, min(len(values), maxPrinted)+1)
	for ii, v := range values {
		if ii == maxPrinted {
			parts = append(parts, "...")
			break
		}
		parts = append(parts, format(v))
	}
	return fmt.Sprintf("%s{%s}", t.shape, strings.Join(parts, ", "))
}
