// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"slices"

	"github.com/HennerM/coremltools/pkg/support/sets"
)

// Input is a named input of an Operation.
type Input struct {
	Name string
	Var  *Var
}

// Operation is a node of the program: it has a type (e.g. "add"), named inputs, outputs and,
// for control-flow operations, nested blocks.
type Operation struct {
	opType string
	name   string

	inputs  []Input
	outputs []*Var
	blocks  []*Block

	// block is the enclosing block, nil once the operation is removed.
	block *Block
}

// Type returns the operator name, e.g. "add", "transpose".
func (op *Operation) Type() string { return op.opType }

// Name of the operation.
func (op *Operation) Name() string { return op.name }

// Inputs returns a copy of the ordered list of named inputs.
func (op *Operation) Inputs() []Input { return slices.Clone(op.inputs) }

// Input returns the Var of the named input, or nil if the operation has no such input.
func (op *Operation) Input(name string) *Var {
	for _, in := range op.inputs {
		if in.Name == name {
			return in.Var
		}
	}
	return nil
}

// Outputs returns a copy of the outputs of the operation.
func (op *Operation) Outputs() []*Var { return slices.Clone(op.outputs) }

// NumOutputs returns the number of outputs of the operation.
func (op *Operation) NumOutputs() int { return len(op.outputs) }

// Output returns the i-th output.
func (op *Operation) Output(i int) *Var { return op.outputs[i] }

// Blocks returns the nested blocks (e.g. branches of a "cond"), empty for most operations.
func (op *Operation) Blocks() []*Block { return slices.Clone(op.blocks) }

// Block returns the enclosing block, or nil if the operation has been removed.
func (op *Operation) Block() *Block { return op.block }

// String returns a one-line description of the operation, without its nested blocks.
func (op *Operation) String() string {
	var p printer
	p.writeOpHeader(op)
	return p.sb.String()
}

// replaceInput replaces every input referring to oldVar by newVar, and updates the use-def edges.
func (op *Operation) replaceInput(oldVar, newVar *Var) {
	replaced := false
	for ii := range op.inputs {
		if op.inputs[ii].Var == oldVar {
			op.inputs[ii].Var = newVar
			replaced = true
		}
	}
	if replaced {
		oldVar.removeConsumer(op)
		newVar.addConsumer(op)
	}
}

// detach removes the use-def edges of the operation and of all operations in its nested blocks.
func (op *Operation) detach() {
	for _, in := range op.inputs {
		in.Var.removeConsumer(op)
	}
	for _, nested := range op.blocks {
		for _, nestedOp := range nested.operations {
			nestedOp.detach()
		}
		for _, out := range nested.outputs {
			out.removeConsumingBlock(nested)
		}
	}
	op.block = nil
}

// isWithin returns whether op is one of ops, or is nested (at any depth) in one of them.
func (op *Operation) isWithin(ops sets.Set[*Operation]) bool {
	for current := op; current != nil; {
		if ops.Has(current) {
			return true
		}
		if current.block == nil {
			return false
		}
		current = current.block.outerOp
	}
	return false
}
