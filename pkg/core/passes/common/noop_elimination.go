// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"slices"

	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/passes"
	"github.com/HennerM/coremltools/pkg/support/sets"
	"k8s.io/klog/v2"
)

// NoopElimination removes operations that have no effect, redirecting the uses of their output to their input.
//
// Given:
//
//	%1: fp32[1,96,128,64] = ...
//	%2: fp32[1,96,128,64] = reshape(x=%1, shape=%s)
//	%3: fp32[1,96,128,64] = add(x=%2, y=%c)
//
// Result:
//
//	%1: fp32[1,96,128,64] = ...
//	%3: fp32[1,96,128,64] = add(x=%1, y=%c)
//
// Operations whose output is a declared output of their block are never removed, and neither are
// operations holding nested blocks (their nested blocks are simplified instead).
//
// It is registered as "common::noop_elimination".
type NoopElimination struct {
	// SkipOps, if set, is called at the start of Apply and returns operations that must not be removed.
	SkipOps func(prog *mil.Program) []*mil.Operation

	opsToSkip  sets.Set[*mil.Operation]
	numRemoved int
}

var _ passes.OpsSkipper = (*NoopElimination)(nil)

// NewNoopElimination returns a new NoopElimination pass.
func NewNoopElimination() *NoopElimination { return &NoopElimination{} }

// SetSkipOps implements passes.OpsSkipper.
func (p *NoopElimination) SetSkipOps(hook func(prog *mil.Program) []*mil.Operation) {
	p.SkipOps = hook
}

// NumRemoved returns the number of operations removed by the last call to Apply.
func (p *NoopElimination) NumRemoved() int { return p.numRemoved }

// Apply implements passes.Pass.
func (p *NoopElimination) Apply(prog *mil.Program) {
	p.opsToSkip = sets.Make[*mil.Operation]()
	if p.SkipOps != nil {
		p.opsToSkip = sets.MakeWith(p.SkipOps(prog)...)
	}
	p.numRemoved = 0
	for _, fn := range prog.Functions() {
		p.simplifyToFixedPoint(fn)
	}
	klog.V(1).Infof("noop_elimination: removed %d operations from program %s", p.numRemoved, prog.ID)
}

func (p *NoopElimination) simplifyToFixedPoint(block *mil.Block) {
	for p.simplifyBlock(block) {
	}
}

// simplifyBlock scans a snapshot of the operations of block, and returns true as soon as one operation is
// removed: the snapshot is then stale and the scan must be restarted.
func (p *NoopElimination) simplifyBlock(block *mil.Block) bool {
	for _, op := range block.Operations() {
		if len(op.Blocks()) > 0 {
			for _, nested := range op.Blocks() {
				p.simplifyToFixedPoint(nested)
			}
			continue
		}
		removeFn := matchNoop(op)
		if removeFn == nil || p.opsToSkip.Has(op) {
			continue
		}
		var removed bool
		block.With(func() { removed = removeFn(op, block) })
		if removed {
			p.numRemoved++
			return true
		}
	}
	return false
}

// noopRemovalFn removes op from block if it is a no-op, and returns whether it did.
// It must leave the graph untouched otherwise.
type noopRemovalFn func(op *mil.Operation, block *mil.Block) bool

var noopRemovalFns = map[string]noopRemovalFn{
	"add":       removeElementwise,
	"mul":       removeElementwise,
	"floor_div": removeElementwise,
	"pow":       removeElementwise,
	"real_div":  removeElementwise,
	"sub":       removeElementwise,

	"reshape":                   removeSameShape,
	"split":                     removeSameShape,
	"slice_by_index":            removeSameShape,
	"slice_by_size":             removeSameShape,
	"pad":                       removeSameShape,
	"tile":                      removeSameShape,
	"upsample_nearest_neighbor": removeSameShape,
	"upsample_bilinear":         removeSameShape,
	"resize_bilinear":           removeSameShape,
	"crop":                      removeSameShape,

	"linear_activation": removeLinear,
	"transpose":         removeTranspose,
}

// matchNoop returns the removal function for op, or nil if op can't be removed.
func matchNoop(op *mil.Operation) noopRemovalFn {
	if op.NumOutputs() != 1 {
		return nil
	}
	if op.Block().IsOutput(op.Output(0)) {
		return nil
	}
	return noopRemovalFns[op.Type()]
}

// replaceAndRemove redirects the uses of the output of op to input, and removes op.
func replaceAndRemove(op *mil.Operation, block *mil.Block, input *mil.Var) {
	if klog.V(2).Enabled() {
		klog.Infof("noop_elimination: removing %s, replaced by %s", op, input)
	}
	op.Block().ReplaceUsesOfVarAfterOp(input.Op(), op.Output(0), input)
	block.RemoveOps([]*mil.Operation{op})
}

// isConstEqual returns whether v is a compile-time constant with all elements equal to value.
func isConstEqual(v *mil.Var, value float64) bool {
	return v != nil && v.Value() != nil && v.Value().AllEqual(value)
}

// identityOperand describes the identity element of an elementwise binary operation, for each side.
type identityOperand struct {
	x, y           float64
	checkX, checkY bool
}

var elementwiseIdentities = map[string]identityOperand{
	"add":       {x: 0, y: 0, checkX: true, checkY: true},
	"mul":       {x: 1, y: 1, checkX: true, checkY: true},
	"floor_div": {y: 1, checkY: true},
	"pow":       {y: 1, checkY: true},
	"real_div":  {y: 1, checkY: true},
	"sub":       {y: 0, checkY: true},
}

func removeElementwise(op *mil.Operation, block *mil.Block) bool {
	identity, found := elementwiseIdentities[op.Type()]
	if !found {
		return false
	}
	x, y := op.Input("x"), op.Input("y")
	var input *mil.Var
	switch {
	case identity.checkX && isConstEqual(x, identity.x):
		input = y
	case identity.checkY && isConstEqual(y, identity.y):
		input = x
	default:
		return false
	}
	// The operation may be broadcasting its input.
	if input == nil || !input.Shape().Equal(op.Output(0).Shape()) {
		return false
	}
	replaceAndRemove(op, block, input)
	return true
}

func removeSameShape(op *mil.Operation, block *mil.Block) bool {
	input := op.Input("x")
	if input == nil || !input.Shape().Equal(op.Output(0).Shape()) {
		return false
	}
	replaceAndRemove(op, block, input)
	return true
}

func removeLinear(op *mil.Operation, block *mil.Block) bool {
	if !isScalarConst(op.Input("alpha"), 1) || !isScalarConst(op.Input("beta"), 0) {
		return false
	}
	input := op.Input("x")
	if input == nil || !input.Shape().Equal(op.Output(0).Shape()) {
		return false
	}
	replaceAndRemove(op, block, input)
	return true
}

func isScalarConst(v *mil.Var, value float64) bool {
	if v == nil || v.Value() == nil {
		return false
	}
	got, ok := v.Value().ScalarFloat64()
	return ok && got == value
}

func removeTranspose(op *mil.Operation, block *mil.Block) bool {
	input, permVar := op.Input("x"), op.Input("perm")
	if input == nil || permVar == nil || permVar.Value() == nil {
		return false
	}
	perm, ok := permVar.Value().Ints()
	if !ok {
		return false
	}
	rank := len(perm)
	for ii, axis := range perm {
		if axis < 0 {
			perm[ii] = axis + rank
		}
	}
	// perm is assumed to be a valid permutation: malformed ones (e.g. repeated axes) are rejected upstream.
	if !slices.IsSorted(perm) || !input.Shape().Equal(op.Output(0).Shape()) {
		return false
	}
	replaceAndRemove(op, block, input)
	return true
}

func init() {
	passes.MustRegister("common", "noop_elimination", func() passes.Pass { return NewNoopElimination() })
}
