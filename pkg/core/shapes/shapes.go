// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package shapes defines Shape, the symbolic type of a value in a MIL program.
//
// A Shape is composed of a DType (the element kind, see github.com/gomlx/gopjrt/dtypes) and a list
// of dimensions. Unlike tensors of concrete values, values in a program being compiled may have
// dimensions only known at runtime: those are represented by symbolic dimensions, identified by name.
// Two symbolic dimensions are considered equal only if they have the same name.
//
// ## Glossary
//
//   - Rank: number of axes (dimensions) of a value.
//   - Axis: the index of a dimension. Negative axes count from the end (-1 is the last axis).
//   - Dimension: the size of a value in one of its axes, either concrete (an int) or symbolic (a name).
//   - Scalar: a shape with no axes.
//
// Example: `shapes.MakeSymbolic(dtypes.Float32, shapes.Sym("batch"), shapes.D(3))` is printed
// as `fp32[batch,3]`, and can be parsed back with `shapes.Parse`.
package shapes

import (
	"slices"
	"strconv"
	"strings"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// Dim is one dimension of a Shape: either a concrete size or a named symbol.
type Dim struct {
	Size   int
	Symbol string
}

// D returns a concrete dimension of the given size.
func D(size int) Dim {
	if size < 0 {
		exceptions.Panicf("shapes.D(%d): dimensions cannot be negative", size)
	}
	return Dim{Size: size}
}

// Sym returns a symbolic dimension with the given name.
func Sym(name string) Dim {
	if name == "" {
		exceptions.Panicf("shapes.Sym(): symbolic dimension requires a name")
	}
	return Dim{Symbol: name}
}

// IsSymbolic returns whether the dimension is only known by name.
func (d Dim) IsSymbolic() bool { return d.Symbol != "" }

// String implements fmt.Stringer.
func (d Dim) String() string {
	if d.IsSymbolic() {
		return d.Symbol
	}
	return strconv.Itoa(d.Size)
}

// Shape is the symbolic type of a value: its DType and dimensions.
//
// Use Make or MakeSymbolic to create a new shape.
type Shape struct {
	DType dtypes.DType
	Dims  []Dim
}

// Make returns a Shape with the given dtype and concrete dimensions.
func Make(dtype dtypes.DType, dimensions ...int) Shape {
	s := Shape{DType: dtype, Dims: make([]Dim, 0, len(dimensions))}
	for _, dim := range dimensions {
		if dim < 0 {
			exceptions.Panicf("shapes.Make(%s, %v): cannot create a shape with a negative dimension",
				DTypeName(dtype), dimensions)
		}
		s.Dims = append(s.Dims, Dim{Size: dim})
	}
	return s
}

// MakeSymbolic returns a Shape with the given dtype and dimensions, which may be symbolic.
func MakeSymbolic(dtype dtypes.DType, dims ...Dim) Shape {
	return Shape{DType: dtype, Dims: slices.Clone(dims)}
}

// Scalar returns a scalar Shape for the given dtype.
func Scalar(dtype dtypes.DType) Shape {
	return Shape{DType: dtype}
}

// Invalid returns an invalid shape.
//
// Invalid().Ok() == false.
func Invalid() Shape {
	return Shape{DType: dtypes.InvalidDType}
}

// Ok returns whether this is a valid Shape. A "zero" Shape{} is invalid.
func (s Shape) Ok() bool { return s.DType != dtypes.InvalidDType }

// Rank of the shape, that is, the number of axes.
func (s Shape) Rank() int { return len(s.Dims) }

// IsScalar returns whether the shape represents a scalar.
func (s Shape) IsScalar() bool { return s.Ok() && s.Rank() == 0 }

// IsSymbolic returns whether any of the dimensions is symbolic.
func (s Shape) IsSymbolic() bool {
	return slices.ContainsFunc(s.Dims, Dim.IsSymbolic)
}

// Dim returns the dimension of the given axis. Negative axes count from the end.
// It panics for an out-of-bound axis.
func (s Shape) Dim(axis int) Dim {
	adjustedAxis := axis
	if adjustedAxis < 0 {
		adjustedAxis += s.Rank()
	}
	if adjustedAxis < 0 || adjustedAxis >= s.Rank() {
		exceptions.Panicf("Shape.Dim(%d) out-of-bounds for rank %d (shape=%s)", axis, s.Rank(), s)
	}
	return s.Dims[adjustedAxis]
}

// Dimensions returns the concrete dimensions of the shape, and false if any of them is symbolic.
func (s Shape) Dimensions() ([]int, bool) {
	dims := make([]int, len(s.Dims))
	for ii, d := range s.Dims {
		if d.IsSymbolic() {
			return nil, false
		}
		dims[ii] = d.Size
	}
	return dims, true
}

// Size returns the number of elements of the shape, and false if it has symbolic dimensions.
func (s Shape) Size() (int, bool) {
	size := 1
	for _, d := range s.Dims {
		if d.IsSymbolic() {
			return 0, false
		}
		size *= d.Size
	}
	return size, true
}

// Clone returns a deep copy of the shape.
func (s Shape) Clone() Shape {
	return Shape{DType: s.DType, Dims: slices.Clone(s.Dims)}
}

// Equal compares two shapes for equality: dtype and every dimension, symbols compared by name.
func (s Shape) Equal(s2 Shape) bool {
	return s.DType == s2.DType && slices.Equal(s.Dims, s2.Dims)
}

// String implements fmt.Stringer. The format is the one accepted by Parse, e.g. "fp32[2,batch]".
func (s Shape) String() string {
	if !s.Ok() {
		return "invalid"
	}
	name := DTypeName(s.DType)
	if s.Rank() == 0 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(name)
	sb.WriteByte('[')
	for ii, d := range s.Dims {
		if ii > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(d.String())
	}
	sb.WriteByte(']')
	return sb.String()
}

// Parse converts the textual representation of a shape (as produced by Shape.String) back to a Shape.
// Dimensions that are not integers are taken as symbols.
func Parse(text string) (Shape, error) {
	text = strings.TrimSpace(text)
	name, rest, hasDims := strings.Cut(text, "[")
	dtype, err := DTypeFromName(strings.TrimSpace(name))
	if err != nil {
		return Invalid(), errors.WithMessagef(err, "parsing shape %q", text)
	}
	if !hasDims {
		return Scalar(dtype), nil
	}
	if !strings.HasSuffix(rest, "]") {
		return Invalid(), errors.Errorf("parsing shape %q: missing closing \"]\"", text)
	}
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "]"))
	s := Shape{DType: dtype}
	if rest == "" {
		return s, nil
	}
	for _, part := range strings.Split(rest, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			return Invalid(), errors.Errorf("parsing shape %q: empty dimension", text)
		}
		size, err := strconv.Atoi(part)
		if err != nil {
			s.Dims = append(s.Dims, Dim{Symbol: part})
			continue
		}
		if size < 0 {
			return Invalid(), errors.Errorf("parsing shape %q: negative dimension %d", text, size)
		}
		s.Dims = append(s.Dims, Dim{Size: size})
	}
	return s, nil
}

// Broadcast returns the shape resulting of broadcasting s1 and s2 following numpy rules:
// axes are aligned to the right, and a dimension of 1 stretches to match the other.
//
// A symbolic dimension matched with a concrete dimension larger than 1 is resolved to the
// concrete dimension. Two different symbols can't be broadcast and yield an error.
func Broadcast(s1, s2 Shape) (Shape, error) {
	if s1.DType != s2.DType {
		return Invalid(), errors.Errorf("cannot broadcast shapes with different dtypes: %s and %s", s1, s2)
	}
	rank := max(s1.Rank(), s2.Rank())
	result := Shape{DType: s1.DType, Dims: make([]Dim, rank)}
	for ii := range rank {
		d1, d2 := D(1), D(1)
		if axis := s1.Rank() - rank + ii; axis >= 0 {
			d1 = s1.Dims[axis]
		}
		if axis := s2.Rank() - rank + ii; axis >= 0 {
			d2 = s2.Dims[axis]
		}
		switch {
		case d1 == d2:
			result.Dims[ii] = d1
		case d1 == D(1):
			result.Dims[ii] = d2
		case d2 == D(1):
			result.Dims[ii] = d1
		case d1.IsSymbolic() && !d2.IsSymbolic():
			result.Dims[ii] = d2
		case d2.IsSymbolic() && !d1.IsSymbolic():
			result.Dims[ii] = d1
		default:
			return Invalid(), errors.Errorf("cannot broadcast shapes %s and %s: axis %d has dimensions %s and %s",
				s1, s2, ii, d1, d2)
		}
	}
	return result, nil
}
