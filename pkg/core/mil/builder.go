// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"fmt"
	"slices"

	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
)

// Builder appends new operations to a block.
//
// Operator semantics (shape inference) are only implemented for the few operators with a
// convenience method; any other operator can be created with Build or Op, giving explicitly the
// output shapes.
//
// Like the graph building API of GoMLX, errors in the construction (nil inputs, incompatible shapes)
// are bugs in the calling code, and panic with a stack trace.
type Builder struct {
	block *Block
	names *nameGenerator
}

type nameGenerator struct {
	counts map[string]int
}

func (g *nameGenerator) next(prefix string) string {
	n := g.counts[prefix]
	g.counts[prefix]++
	return fmt.Sprintf("%s_%d", prefix, n)
}

// NewBuilder returns a Builder that appends operations to block.
func NewBuilder(block *Block) *Builder {
	return &Builder{block: block, names: &nameGenerator{counts: make(map[string]int)}}
}

// Block returns the block the builder appends operations to.
func (b *Builder) Block() *Block { return b.block }

// OpSpec describes an operation to create with Builder.Build.
type OpSpec struct {
	Type string

	// Name of the operation, generated from Type if empty.
	Name string

	Inputs []Input

	// Outputs holds the shapes of the outputs.
	Outputs []shapes.Shape

	// OutputNames, if given, must have the same length as Outputs.
	// By default, a single output takes the name of the operation, and multiple outputs are suffixed by their index.
	OutputNames []string

	// OutputValues, if given, must have the same length as Outputs, and hold the compile-time known values of
	// the outputs (nil entries for unknown values).
	OutputValues []*tensors.Tensor
}

// Build creates the operation described by spec at the end of the block.
// Nested blocks can then be added with NestedBlock.
func (b *Builder) Build(spec OpSpec) *Operation {
	if spec.Type == "" {
		exceptions.Panicf("Builder.Build(): operation type must be given")
	}
	name := spec.Name
	if name == "" {
		name = b.names.next(spec.Type)
	}
	if spec.OutputNames != nil && len(spec.OutputNames) != len(spec.Outputs) {
		exceptions.Panicf("Builder.Build(%q): %d output names given for %d outputs", name, len(spec.OutputNames), len(spec.Outputs))
	}
	if spec.OutputValues != nil && len(spec.OutputValues) != len(spec.Outputs) {
		exceptions.Panicf("Builder.Build(%q): %d output values given for %d outputs", name, len(spec.OutputValues), len(spec.Outputs))
	}
	op := &Operation{
		opType: spec.Type,
		name:   name,
		inputs: slices.Clone(spec.Inputs),
		block:  b.block,
	}
	for ii, in := range op.inputs {
		if in.Var == nil {
			exceptions.Panicf("Builder.Build(%q): input #%d (%q) is nil", name, ii, in.Name)
		}
		in.Var.addConsumer(op)
	}
	for ii, shape := range spec.Outputs {
		if !shape.Ok() {
			exceptions.Panicf("Builder.Build(%q): output #%d has an invalid shape", name, ii)
		}
		outName := name
		if spec.OutputNames != nil {
			outName = spec.OutputNames[ii]
		} else if len(spec.Outputs) > 1 {
			outName = fmt.Sprintf("%s_%d", name, ii)
		}
		out := &Var{name: outName, shape: shape, op: op}
		if spec.OutputValues != nil {
			out.value = spec.OutputValues[ii]
		}
		op.outputs = append(op.outputs, out)
	}
	b.block.operations = append(b.block.operations, op)
	return op
}

// NestedBlock appends a new nested block to op, with the given inputs (see NewInput), and returns
// a Builder for it.
func (b *Builder) NestedBlock(op *Operation, name string, inputs ...*Var) *Builder {
	if op.block != b.block {
		exceptions.Panicf("Builder.NestedBlock(): operation %q doesn't belong to block %q", op.name, b.block.name)
	}
	nested := newBlock(name, inputs, op)
	op.blocks = append(op.blocks, nested)
	return &Builder{block: nested, names: b.names}
}

// Op creates a single-output operation with the given inputs and output shape, and returns its output.
func (b *Builder) Op(opType string, inputs []Input, output shapes.Shape) *Var {
	return b.Build(OpSpec{Type: opType, Inputs: inputs, Outputs: []shapes.Shape{output}}).outputs[0]
}

// Const creates a "const" operation holding value.
func (b *Builder) Const(value *tensors.Tensor) *Var {
	op := b.Build(OpSpec{
		Type:         "const",
		Outputs:      []shapes.Shape{value.Shape()},
		OutputValues: []*tensors.Tensor{value},
	})
	return op.outputs[0]
}

// ScalarLike creates a scalar constant with the same dtype as x.
func (b *Builder) ScalarLike(x *Var, value float64) *Var {
	t, err := tensors.FromFloat64s(x.shape.DType, nil, []float64{value})
	if err != nil {
		panic(err)
	}
	return b.Const(t)
}

func (b *Builder) elementwiseBinary(opType string, x, y *Var) *Var {
	shape, err := shapes.Broadcast(x.shape, y.shape)
	if err != nil {
		exceptions.Panicf("Builder.%s(%s, %s): %v", opType, x, y, err)
	}
	return b.Op(opType, []Input{{"x", x}, {"y", y}}, shape)
}

// Add creates an "add" operation, with numpy broadcasting.
func (b *Builder) Add(x, y *Var) *Var { return b.elementwiseBinary("add", x, y) }

// Sub creates a "sub" operation, with numpy broadcasting.
func (b *Builder) Sub(x, y *Var) *Var { return b.elementwiseBinary("sub", x, y) }

// Mul creates a "mul" operation, with numpy broadcasting.
func (b *Builder) Mul(x, y *Var) *Var { return b.elementwiseBinary("mul", x, y) }

// RealDiv creates a "real_div" operation, with numpy broadcasting.
func (b *Builder) RealDiv(x, y *Var) *Var { return b.elementwiseBinary("real_div", x, y) }

// FloorDiv creates a "floor_div" operation, with numpy broadcasting.
func (b *Builder) FloorDiv(x, y *Var) *Var { return b.elementwiseBinary("floor_div", x, y) }

// Pow creates a "pow" operation, with numpy broadcasting.
func (b *Builder) Pow(x, y *Var) *Var { return b.elementwiseBinary("pow", x, y) }

// Relu creates a "relu" operation.
func (b *Builder) Relu(x *Var) *Var {
	return b.Op("relu", []Input{{"x", x}}, x.shape)
}

// Reshape creates a "reshape" operation to the given concrete dimensions.
func (b *Builder) Reshape(x *Var, dimensions ...int) *Var {
	dims := make([]int32, len(dimensions))
	for ii, d := range dimensions {
		dims[ii] = int32(d)
	}
	shapeVar := b.Const(tensors.FromFlatAndDimensions(dims, len(dims)))
	output := shapes.Make(x.shape.DType, dimensions...)
	if xSize, ok := x.shape.Size(); ok {
		if outSize, _ := output.Size(); outSize != xSize {
			exceptions.Panicf("Builder.Reshape(%s, %v): incompatible number of elements", x.shape, dimensions)
		}
	}
	return b.Op("reshape", []Input{{"x", x}, {"shape", shapeVar}}, output)
}

// Transpose creates a "transpose" operation. Axes in permutation can be negative.
func (b *Builder) Transpose(x *Var, permutation ...int) *Var {
	rank := x.shape.Rank()
	if len(permutation) != rank {
		exceptions.Panicf("Builder.Transpose(%s, %v): permutation must have one axis per dimension", x.shape, permutation)
	}
	perm := make([]int32, rank)
	output := shapes.Shape{DType: x.shape.DType, Dims: make([]shapes.Dim, rank)}
	for ii, axis := range permutation {
		perm[ii] = int32(axis)
		output.Dims[ii] = x.shape.Dim(axis)
	}
	permVar := b.Const(tensors.FromFlatAndDimensions(perm, rank))
	return b.Op("transpose", []Input{{"x", x}, {"perm", permVar}}, output)
}

// LinearActivation creates a "linear_activation" operation: alpha*x + beta.
func (b *Builder) LinearActivation(x *Var, alpha, beta float32) *Var {
	alphaVar := b.Const(tensors.FromScalar(alpha))
	betaVar := b.Const(tensors.FromScalar(beta))
	return b.Op("linear_activation", []Input{{"x", x}, {"alpha", alphaVar}, {"beta", betaVar}}, x.shape)
}

// Cond creates a "cond" operation: trueFn and falseFn build the blocks of each branch, and return
// their outputs, which must have the same shapes. It returns the outputs of the "cond" operation.
func (b *Builder) Cond(pred *Var, trueFn, falseFn func(branch *Builder) []*Var) []*Var {
	if pred.shape.DType != dtypes.Bool || !pred.shape.IsScalar() {
		exceptions.Panicf("Builder.Cond(): predicate must be a scalar bool, got %s", pred.shape)
	}
	op := b.Build(OpSpec{Type: "cond", Inputs: []Input{{"pred", pred}}})
	trueBuilder := b.NestedBlock(op, op.name+"_true")
	trueOutputs := trueFn(trueBuilder)
	trueBuilder.block.SetOutputs(trueOutputs...)
	falseBuilder := b.NestedBlock(op, op.name+"_false")
	falseOutputs := falseFn(falseBuilder)
	falseBuilder.block.SetOutputs(falseOutputs...)
	if len(trueOutputs) != len(falseOutputs) {
		exceptions.Panicf("Builder.Cond(): branches return %d and %d values", len(trueOutputs), len(falseOutputs))
	}
	for ii, out := range trueOutputs {
		if !out.shape.Equal(falseOutputs[ii].shape) {
			exceptions.Panicf("Builder.Cond(): output #%d has shape %s in the true branch and %s in the false branch",
				ii, out.shape, falseOutputs[ii].shape)
		}
		op.outputs = append(op.outputs, &Var{name: fmt.Sprintf("%s_%d", op.name, ii), shape: out.shape, op: op})
	}
	return slices.Clone(op.outputs)
}

// WhileLoop creates a "while_loop" operation over the loop-carried values loopVars.
//
// condFn builds the block computing the loop condition (a scalar bool) and bodyFn the block computing
// the next values of the loop-carried values. Both receive the loop-carried values as block inputs.
func (b *Builder) WhileLoop(loopVars []*Var,
	condFn func(cond *Builder, vars []*Var) *Var,
	bodyFn func(body *Builder, vars []*Var) []*Var) []*Var {
	inputs := make([]Input, len(loopVars))
	for ii, v := range loopVars {
		inputs[ii] = Input{Name: fmt.Sprintf("loop_var_%d", ii), Var: v}
	}
	op := b.Build(OpSpec{Type: "while_loop", Inputs: inputs})
	newLoopInputs := func(suffix string) []*Var {
		vars := make([]*Var, len(loopVars))
		for ii, v := range loopVars {
			vars[ii] = NewInput(fmt.Sprintf("%s_%s_%d", op.name, suffix, ii), v.shape)
		}
		return vars
	}

	condVars := newLoopInputs("cond")
	condBuilder := b.NestedBlock(op, op.name+"_cond", condVars...)
	pred := condFn(condBuilder, condVars)
	if pred.shape.DType != dtypes.Bool || !pred.shape.IsScalar() {
		exceptions.Panicf("Builder.WhileLoop(): condition must be a scalar bool, got %s", pred.shape)
	}
	condBuilder.block.SetOutputs(pred)

	bodyVars := newLoopInputs("body")
	bodyBuilder := b.NestedBlock(op, op.name+"_body", bodyVars...)
	next := bodyFn(bodyBuilder, bodyVars)
	if len(next) != len(loopVars) {
		exceptions.Panicf("Builder.WhileLoop(): body returns %d values for %d loop variables", len(next), len(loopVars))
	}
	bodyBuilder.block.SetOutputs(next...)
	for ii, v := range loopVars {
		if !next[ii].shape.Equal(v.shape) {
			exceptions.Panicf("Builder.WhileLoop(): loop variable #%d changes shape from %s to %s", ii, v.shape, next[ii].shape)
		}
		op.outputs = append(op.outputs, &Var{name: fmt.Sprintf("%s_%d", op.name, ii), shape: v.shape, op: op})
	}
	return slices.Clone(op.outputs)
}
