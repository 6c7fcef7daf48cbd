// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"math"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"
)

func TestFromFlatAndDimensions(t *testing.T) {
	flat := []float32{1, 2, 3, 4, 5, 6}
	tensor := FromFlatAndDimensions(flat, 2, 3)
	assert.Equal(t, dtypes.Float32, tensor.DType())
	assert.Equal(t, "fp32[2,3]", tensor.Shape().String())
	assert.Equal(t, 6, tensor.Size())
	flat[0] = 100
	assert.Equal(t, float32(1), tensor.Flat().([]float32)[0], "values must be copied")

	require.Panics(t, func() { _ = FromFlatAndDimensions([]int32{1, 2}, 3) })
}

func TestAllEqual(t *testing.T) {
	assert.True(t, FromScalar(float32(0)).AllEqual(0))
	assert.True(t, FromFlatAndDimensions([]int32{1, 1, 1}, 3).AllEqual(1))
	assert.False(t, FromFlatAndDimensions([]int32{1, 0, 1}, 3).AllEqual(1))
	assert.True(t, FromScalar(float16.Fromfloat32(1)).AllEqual(1))
	assert.True(t, FromScalar(bfloat16.FromFloat32(0)).AllEqual(0))
	assert.True(t, FromScalar(true).AllEqual(1))
	assert.False(t, FromScalar(float64(math.NaN())).AllEqual(math.NaN()))
	assert.True(t, FromFlatAndDimensions([]float32{}, 0).AllEqual(7), "empty tensors are vacuously equal")
}

func TestScalarAndInts(t *testing.T) {
	v, ok := FromScalar(float32(0.5)).ScalarFloat64()
	require.True(t, ok)
	assert.Equal(t, 0.5, v)
	v, ok = FromFlatAndDimensions([]int64{3}, 1).ScalarFloat64()
	require.True(t, ok)
	assert.Equal(t, 3.0, v)
	_, ok = FromFlatAndDimensions([]int64{3, 4}, 2).ScalarFloat64()
	assert.False(t, ok)

	ints, ok := FromFlatAndDimensions([]int32{-3, -2, -1}, 3).Ints()
	require.True(t, ok)
	assert.Equal(t, []int{-3, -2, -1}, ints)
	_, ok = FromScalar(float32(1)).Ints()
	assert.False(t, ok)
}

func TestFromFloat64s(t *testing.T) {
	for _, dtype := range []dtypes.DType{dtypes.Bool, dtypes.Int8, dtypes.Int32, dtypes.Int64, dtypes.Uint8,
		dtypes.Float16, dtypes.BFloat16, dtypes.Float32, dtypes.Float64} {
		tensor, err := FromFloat64s(dtype, []int{2}, []float64{1, 1})
		require.NoError(t, err, "dtype %s", dtype)
		assert.Equal(t, dtype, tensor.DType())
		assert.True(t, tensor.AllEqual(1), "dtype %s", dtype)
	}
	_, err := FromFloat64s(dtypes.Float32, []int{3}, []float64{1})
	assert.Error(t, err)
}

func TestString(t *testing.T) {
	assert.Equal(t, "0.5", FromScalar(float32(0.5)).String())
	assert.Equal(t, "int32[3]{1, 0, 2}", FromFlatAndDimensions([]int32{1, 0, 2}, 3).String())
	assert.Equal(t, "true", FromScalar(true).String())
	long := FromFlatAndDimensions(make([]float32, 10), 10).String()
	assert.Contains(t, long, "...")
}
