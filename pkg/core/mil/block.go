// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"slices"

	"github.com/HennerM/coremltools/pkg/support/sets"
	"k8s.io/klog/v2"
)

// Block is an ordered sequence of operations with declared outputs: the values the block
// exposes to its surrounding context.
//
// Functions of a Program are top-level blocks, and control-flow operations (cond, while_loop)
// hold nested blocks.
//
// The operations of a block can only be mutated (ReplaceUsesOfVarAfterOp, RemoveOps) while the
// block is acquired, see Block.With.
type Block struct {
	name       string
	inputs     []*Var
	operations []*Operation
	outputs    []*Var

	// outerOp is the operation holding this block, nil for function blocks.
	outerOp *Operation

	// acquired counts the active acquisitions (see Acquire).
	acquired int
}

func newBlock(name string, inputs []*Var, outerOp *Operation) *Block {
	b := &Block{name: name, outerOp: outerOp}
	for _, input := range inputs {
		input.block = b
		b.inputs = append(b.inputs, input)
	}
	return b
}

// Name of the block: for function blocks, the function name.
func (b *Block) Name() string { return b.name }

// Inputs returns a copy of the block inputs.
func (b *Block) Inputs() []*Var { return slices.Clone(b.inputs) }

// Operations returns a snapshot of the operations of the block.
//
// Mutating the block while iterating over the snapshot leaves the snapshot stale: any operation
// in it may have been removed.
func (b *Block) Operations() []*Operation { return slices.Clone(b.operations) }

// NumOperations returns the number of operations in the block, including nested blocks.
func (b *Block) NumOperations() int {
	count := len(b.operations)
	for _, op := range b.operations {
		for _, nested := range op.blocks {
			count += nested.NumOperations()
		}
	}
	return count
}

// Outputs returns a copy of the declared outputs of the block.
func (b *Block) Outputs() []*Var { return slices.Clone(b.outputs) }

// IsOutput returns whether v is one of the declared outputs of the block.
func (b *Block) IsOutput(v *Var) bool { return slices.Contains(b.outputs, v) }

// OuterOp returns the operation holding this block, or nil for a function block.
func (b *Block) OuterOp() *Operation { return b.outerOp }

// SetOutputs sets the declared outputs of the block.
func (b *Block) SetOutputs(outputs ...*Var) {
	for _, out := range b.outputs {
		out.removeConsumingBlock(b)
	}
	b.outputs = slices.Clone(outputs)
	for _, out := range b.outputs {
		out.addConsumingBlock(b)
	}
}

// Acquire marks the block as being mutated, and returns the function that releases it.
// Acquisitions can be nested.
//
// Prefer Block.With, which guarantees the release.
func (b *Block) Acquire() (release func()) {
	b.acquired++
	released := false
	return func() {
		if released {
			return
		}
		released = true
		b.acquired--
	}
}

// IsAcquired returns whether the block is currently acquired for mutation.
func (b *Block) IsAcquired() bool { return b.acquired > 0 }

// With runs fn with the block acquired, releasing it on all exit paths, including panics.
func (b *Block) With(fn func()) {
	release := b.Acquire()
	defer release()
	fn()
}

// isAncestorOf returns whether b encloses (at any depth) the block inner.
func (b *Block) isAncestorOf(inner *Block) bool {
	for current := inner; current.outerOp != nil; {
		current = current.outerOp.block
		if current == nil {
			return false
		}
		if current == b {
			return true
		}
	}
	return false
}

func (b *Block) indexOf(op *Operation) int {
	return slices.Index(b.operations, op)
}

func (b *Block) assertAcquired(method string) {
	if !b.IsAcquired() {
		panicInvariantf("Block.%s(): block %q must be acquired (see Block.With) before being mutated", method, b.name)
	}
}

// ReplaceUsesOfVarAfterOp replaces every use of oldVar after the anchor operation with newVar:
// inputs of the following operations (including the ones in their nested blocks) and declared
// block outputs. Uses before the anchor are left untouched.
//
// If anchor is nil (e.g. newVar is a block input) or lives in a block enclosing b, all uses in b are replaced.
//
// It panics with ErrInvariantViolation if the shapes of oldVar and newVar differ, or if anchor is not
// in b nor in one of its enclosing blocks.
func (b *Block) ReplaceUsesOfVarAfterOp(anchor *Operation, oldVar, newVar *Var) {
	b.assertAcquired("ReplaceUsesOfVarAfterOp")
	if !oldVar.shape.Equal(newVar.shape) {
		panicInvariantf("cannot replace %s (%s) with %s (%s): types differ", oldVar, oldVar.shape, newVar, newVar.shape)
	}
	start := 0
	if anchor != nil {
		switch {
		case anchor.block == b:
			start = b.indexOf(anchor) + 1
		case anchor.block != nil && anchor.block.isAncestorOf(b):
			// Anchor dominates the whole block.
		default:
			panicInvariantf("anchor %q is neither in block %q nor in one of its enclosing blocks", anchor.name, b.name)
		}
	}
	if klog.V(3).Enabled() {
		klog.Infof("block %q: replacing uses of %s by %s from operation #%d", b.name, oldVar, newVar, start)
	}
	b.replaceUses(start, oldVar, newVar)
}

func (b *Block) replaceUses(start int, oldVar, newVar *Var) {
	for _, op := range b.operations[start:] {
		op.replaceInput(oldVar, newVar)
		for _, nested := range op.blocks {
			nested.replaceUses(0, oldVar, newVar)
		}
	}
	replaced := false
	for ii, out := range b.outputs {
		if out == oldVar {
			b.outputs[ii] = newVar
			replaced = true
		}
	}
	if replaced {
		oldVar.removeConsumingBlock(b)
		newVar.addConsumingBlock(b)
	}
}

// RemoveOps removes the given operations from the block.
//
// The outputs of the removed operations must not be used anymore, except by the removed operations
// themselves (or operations nested in them), and must not be declared outputs of any block.
// Otherwise, it panics with ErrInvariantViolation: uses should be rewired first with
// ReplaceUsesOfVarAfterOp.
func (b *Block) RemoveOps(ops []*Operation) {
	b.assertAcquired("RemoveOps")
	removing := sets.MakeWith(ops...)
	for _, op := range ops {
		if op.block != b {
			panicInvariantf("cannot remove operation %q: it is not in block %q", op.name, b.name)
		}
		for _, out := range op.outputs {
			if len(out.consumingBlocks) > 0 {
				panicInvariantf("cannot remove operation %q: its output %s is an output of block %q",
					op.name, out, out.consumingBlocks[0].name)
			}
			for _, consumer := range out.consumers {
				if !consumer.isWithin(removing) {
					panicInvariantf("cannot remove operation %q: its output %s is still used by %q",
						op.name, out, consumer.name)
				}
			}
		}
	}
	for _, op := range ops {
		op.detach()
	}
	b.operations = slices.DeleteFunc(b.operations, removing.Has)
}
