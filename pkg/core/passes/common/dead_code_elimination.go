// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/passes"
	"k8s.io/klog/v2"
)

// DeadCodeElimination removes operations whose outputs are not used, including operations holding
// nested blocks. Operations without outputs are kept, and so are operations whose nested blocks hold,
// at any depth, an operation without outputs.
//
// It is registered as "common::dead_code_elimination".
type DeadCodeElimination struct {
	numRemoved int
}

// NewDeadCodeElimination returns a new DeadCodeElimination pass.
func NewDeadCodeElimination() *DeadCodeElimination { return &DeadCodeElimination{} }

// NumRemoved returns the number of operations removed by the last call to Apply, not counting the
// operations in the nested blocks of removed operations.
func (p *DeadCodeElimination) NumRemoved() int { return p.numRemoved }

// Apply implements passes.Pass.
func (p *DeadCodeElimination) Apply(prog *mil.Program) {
	p.numRemoved = 0
	for _, fn := range prog.Functions() {
		for p.eliminateBlock(fn) {
		}
	}
	klog.V(1).Infof("dead_code_elimination: removed %d operations from program %s", p.numRemoved, prog.ID)
}

// eliminateBlock does one backward sweep over block, and returns whether anything was removed.
func (p *DeadCodeElimination) eliminateBlock(block *mil.Block) bool {
	changed := false
	ops := block.Operations()
	for ii := len(ops) - 1; ii >= 0; ii-- {
		op := ops[ii]
		if isDead(op) {
			if klog.V(2).Enabled() {
				klog.Infof("dead_code_elimination: removing %s", op)
			}
			block.With(func() { block.RemoveOps([]*mil.Operation{op}) })
			p.numRemoved++
			changed = true
			continue
		}
		for _, nested := range op.Blocks() {
			if p.eliminateBlock(nested) {
				changed = true
			}
		}
	}
	return changed
}

func isDead(op *mil.Operation) bool {
	if hasSideEffects(op) {
		return false
	}
	for _, out := range op.Outputs() {
		if out.HasUses() {
			return false
		}
	}
	return true
}

// hasSideEffects returns whether op, or any operation in its nested blocks, has no outputs (e.g. "print").
func hasSideEffects(op *mil.Operation) bool {
	if op.NumOutputs() == 0 {
		return true
	}
	for _, nested := range op.Blocks() {
		for _, nestedOp := range nested.Operations() {
			if hasSideEffects(nestedOp) {
				return true
			}
		}
	}
	return false
}

func init() {
	passes.MustRegister("common", "dead_code_elimination", func() passes.Pass { return NewDeadCodeElimination() })
}
