// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"testing"

	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newMain creates a program with a "main" function with one input x of the given shape.
func newMain(t *testing.T, xShape shapes.Shape) (*Program, *Builder, *Var) {
	prog := NewProgram()
	x := NewInput("x", xShape)
	fn, err := prog.NewFunction(MainName, x)
	require.NoError(t, err)
	return prog, NewBuilder(fn), x
}

// catchInvariant runs fn and returns the error it panicked with, if any.
func catchInvariant(fn func()) error {
	return exceptions.TryCatch[error](fn)
}

func TestBuilderAndString(t *testing.T) {
	prog, b, x := newMain(t, shapes.Make(dtypes.Float32, 2, 3))
	zero := b.Const(tensors.FromScalar(float32(0)))
	y := b.Add(x, zero)
	b.Block().SetOutputs(y)
	require.NoError(t, prog.Validate())

	assert.Equal(t, "fp32[2,3]", y.Shape().String())
	assert.Equal(t, []*Operation{y.Op()}, x.Consumers())
	assert.Equal(t, x, y.Op().Input("x"))
	assert.Nil(t, y.Op().Input("alpha"))
	assert.True(t, b.Block().IsOutput(y))
	assert.Equal(t, []*Block{b.Block()}, y.ConsumingBlocks())

	text := prog.String()
	assert.Contains(t, text, "function main(%x: fp32[2,3]) {")
	assert.Contains(t, text, "%const_0: fp32 = const(val=0)")
	assert.Contains(t, text, "%add_0: fp32[2,3] = add(x=%x, y=%const_0)")
	assert.Contains(t, text, "} -> (%add_0)")
	assert.Equal(t, "%add_0: fp32[2,3] = add(x=%x, y=%const_0)", y.Op().String())

	_, err := prog.NewFunction(MainName)
	require.Error(t, err, "duplicate function names must fail")
	assert.Equal(t, []string{MainName}, prog.FunctionNames())
	assert.Equal(t, 2, prog.NumOperations())
	assert.Equal(t, map[string]int{"const": 1, "add": 1}, prog.OpTypeCounts())
}

func TestBuilderShapes(t *testing.T) {
	_, b, x := newMain(t, shapes.MakeSymbolic(dtypes.Float32, shapes.Sym("batch"), shapes.D(3), shapes.D(4)))
	tr := b.Transpose(x, 0, -1, 1)
	assert.Equal(t, "fp32[batch,4,3]", tr.Shape().String())
	perm, ok := tr.Op().Input("perm").Value().Ints()
	require.True(t, ok)
	assert.Equal(t, []int{0, -1, 1}, perm)

	lin := b.LinearActivation(x, 2, 1)
	assert.True(t, lin.Shape().Equal(x.Shape()))

	sq := b.Reshape(b.Const(tensors.FromFlatAndDimensions([]float32{1, 2, 3, 4}, 4)), 2, 2)
	assert.Equal(t, "fp32[2,2]", sq.Shape().String())
	require.Panics(t, func() { _ = b.Reshape(sq, 3) })
	require.Panics(t, func() { _ = b.Add(x, sq) }, "shapes can't be broadcast")
	require.Panics(t, func() { _ = b.Transpose(x, 0, 1) })
}

func TestReplaceUsesOfVarAfterOp(t *testing.T) {
	prog, b, x := newMain(t, shapes.Make(dtypes.Float32, 4))
	a := b.Relu(x)
	c := b.Relu(a)
	d := b.Add(c, a)
	fn := b.Block()
	fn.SetOutputs(d, a)

	// Mutations require the block to be acquired.
	err := catchInvariant(func() { fn.ReplaceUsesOfVarAfterOp(c.Op(), a, x) })
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.False(t, fn.IsAcquired())

	// Only uses after the anchor are replaced.
	fn.With(func() { fn.ReplaceUsesOfVarAfterOp(c.Op(), a, x) })
	assert.False(t, fn.IsAcquired())
	assert.Equal(t, a, c.Op().Input("x"))
	assert.Equal(t, x, d.Op().Input("y"))
	assert.Equal(t, []*Var{d, x}, fn.Outputs())
	assert.Equal(t, []*Operation{c.Op()}, a.Consumers())
	assert.Empty(t, a.ConsumingBlocks())
	require.NoError(t, prog.Validate())

	// Types must match.
	err = catchInvariant(func() {
		fn.With(func() { fn.ReplaceUsesOfVarAfterOp(nil, a, b.Const(tensors.FromScalar(float32(1)))) })
	})
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.False(t, fn.IsAcquired(), "With must release the block on panics")
}

func TestRemoveOps(t *testing.T) {
	prog, b, x := newMain(t, shapes.Make(dtypes.Float32, 4))
	a := b.Relu(x)
	c := b.Relu(a)
	fn := b.Block()
	fn.SetOutputs(c)

	// Outputs still in use.
	err := catchInvariant(func() { fn.With(func() { fn.RemoveOps([]*Operation{a.Op()}) }) })
	require.ErrorIs(t, err, ErrInvariantViolation)
	// Block output.
	err = catchInvariant(func() { fn.With(func() { fn.RemoveOps([]*Operation{c.Op()}) }) })
	require.ErrorIs(t, err, ErrInvariantViolation)
	assert.Equal(t, 2, prog.NumOperations())

	// Removing both at once is fine if the last one is not an output.
	fn.SetOutputs(x)
	fn.With(func() { fn.RemoveOps([]*Operation{a.Op(), c.Op()}) })
	assert.Equal(t, 0, prog.NumOperations())
	assert.Empty(t, x.Consumers())
	assert.Nil(t, a.Op().Block())
	require.NoError(t, prog.Validate())

	// Operation not in the block.
	other := NewBuilder(fn).Relu(x)
	fn2, err := prog.NewFunction("other", NewInput("y", x.Shape()))
	require.NoError(t, err)
	err = catchInvariant(func() { fn2.With(func() { fn2.RemoveOps([]*Operation{other.Op()}) }) })
	require.ErrorIs(t, err, ErrInvariantViolation)
}

func TestNestedBlocks(t *testing.T) {
	prog, b, x := newMain(t, shapes.Make(dtypes.Float32, 4))
	pred := b.Const(tensors.FromScalar(true))
	a := b.Relu(x)
	var inner *Var
	outs := b.Cond(pred,
		func(branch *Builder) []*Var {
			inner = branch.Relu(a)
			return []*Var{inner}
		},
		func(branch *Builder) []*Var {
			return []*Var{a}
		})
	require.Len(t, outs, 1)
	fn := b.Block()
	fn.SetOutputs(outs[0])
	require.NoError(t, prog.Validate())
	assert.Equal(t, 4, prog.NumOperations())

	condOp := outs[0].Op()
	require.Len(t, condOp.Blocks(), 2)
	trueBlock, falseBlock := condOp.Blocks()[0], condOp.Blocks()[1]
	assert.Equal(t, condOp, trueBlock.OuterOp())

	// Replacing a in the parent block reaches the nested blocks, including their outputs.
	fn.With(func() { fn.ReplaceUsesOfVarAfterOp(a.Op(), a, x) })
	assert.Equal(t, x, inner.Op().Input("x"))
	assert.Equal(t, []*Var{x}, falseBlock.Outputs())
	assert.False(t, a.HasUses())
	require.NoError(t, prog.Validate())

	// An anchor inside a nested block doesn't dominate the parent block.
	err := catchInvariant(func() { fn.With(func() { fn.ReplaceUsesOfVarAfterOp(inner.Op(), x, a) }) })
	require.ErrorIs(t, err, ErrInvariantViolation)

	// An anchor in the enclosing block dominates the whole nested block.
	trueBlock.With(func() { trueBlock.ReplaceUsesOfVarAfterOp(a.Op(), x, a) })
	assert.Equal(t, a, inner.Op().Input("x"))
	require.NoError(t, prog.Validate())

	text := prog.String()
	assert.Contains(t, text, "block cond_0_true() {")
	assert.Contains(t, text, "} -> (%x)")
}

func TestWhileLoop(t *testing.T) {
	prog, b, x := newMain(t, shapes.Scalar(dtypes.Int32))
	one := b.Const(tensors.FromScalar(int32(1)))
	outs := b.WhileLoop([]*Var{x},
		func(cond *Builder, vars []*Var) *Var {
			return cond.Op("less", []Input{{"x", vars[0]}, {"y", one}}, shapes.Scalar(dtypes.Bool))
		},
		func(body *Builder, vars []*Var) []*Var {
			return []*Var{body.Add(vars[0], one)}
		})
	b.Block().SetOutputs(outs...)
	require.NoError(t, prog.Validate())
	loop := outs[0].Op()
	assert.Equal(t, "while_loop", loop.Type())
	require.Len(t, loop.Blocks(), 2)
	assert.Len(t, loop.Blocks()[1].Inputs(), 1)
	assert.Equal(t, map[string]int{"const": 1, "while_loop": 1, "less": 1, "add": 1}, prog.OpTypeCounts())
}

func TestValidateDetectsForeignValues(t *testing.T) {
	prog, b, x := newMain(t, shapes.Make(dtypes.Float32, 4))
	b.Block().SetOutputs(b.Relu(x))
	require.NoError(t, prog.Validate())

	y := NewInput("y", x.Shape())
	other, err := prog.NewFunction("other", y)
	require.NoError(t, err)
	// Uses x, which is not visible in "other".
	other.SetOutputs(NewBuilder(other).Add(x, y))
	err = prog.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "before its definition")

	_, err = prog.NewFunction("again", y)
	require.Error(t, err, "inputs can't be reused")
}
