// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"strconv"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIotaAndMap(t *testing.T) {
	assert.Equal(t, []int{0, 1, 2}, Iota(0, 3))
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
	assert.Empty(t, Iota(0, 0))
	assert.Equal(t, []string{"1", "2"}, Map([]int{1, 2}, strconv.Itoa))
}

func TestFlag(t *testing.T) {
	f := &sliceFlag[int]{parsedSlice: []int{1, 2}, parserFn: strconv.Atoi}
	assert.Equal(t, "1,2", f.String())
	require.NoError(t, f.Set(" 3, 4,,5 "))
	assert.Equal(t, []int{3, 4, 5}, f.parsedSlice)
	require.NoError(t, f.Set(""))
	assert.Empty(t, f.parsedSlice)
	assert.Equal(t, "", f.String())

	errBad := errors.New("bad value")
	f = &sliceFlag[int]{parserFn: func(string) (int, error) { return 0, errBad }}
	require.ErrorIs(t, f.Set("x"), errBad)
}
