// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"strings"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// milDTypeNames maps the dtypes supported by MIL programs to their short names.
var milDTypeNames = map[dtypes.DType]string{
	dtypes.Bool:     "bool",
	dtypes.Int8:     "int8",
	dtypes.Int16:    "int16",
	dtypes.Int32:    "int32",
	dtypes.Int64:    "int64",
	dtypes.Uint8:    "uint8",
	dtypes.Uint16:   "uint16",
	dtypes.Uint32:   "uint32",
	dtypes.Uint64:   "uint64",
	dtypes.Float16:  "fp16",
	dtypes.Float32:  "fp32",
	dtypes.Float64:  "fp64",
	dtypes.BFloat16: "bf16",
}

var milNameToDType = func() map[string]dtypes.DType {
	m := make(map[string]dtypes.DType, 2*len(milDTypeNames))
	for dtype, name := range milDTypeNames {
		m[name] = dtype
		// Also accept the long names, e.g.: "float32", "bfloat16".
		m[strings.ToLower(dtype.String())] = dtype
	}
	return m
}()

// DTypeName returns the MIL short name of the dtype (e.g.: "fp32"), or the dtype's own name
// if it is not supported by MIL.
func DTypeName(dtype dtypes.DType) string {
	if name, found := milDTypeNames[dtype]; found {
		return name
	}
	return dtype.String()
}

// DTypeFromName parses either a MIL short name ("fp32", "int32") or a long
// name ("Float32", "float32") of a dtype.
func DTypeFromName(name string) (dtypes.DType, error) {
	if dtype, found := milNameToDType[strings.ToLower(name)]; found {
		return dtype, nil
	}
	return dtypes.InvalidDType, errors.Errorf("unknown dtype %q", name)
}
