// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"slices"

	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
)

// Var is a value in a MIL program: either the output of an Operation, or an input of a Block
// (function parameters, loop-carried values of a while loop body, etc.).
//
// A Var keeps track of its uses: the operations that consume it and the blocks that declare
// it as one of their outputs. These edges are maintained by the Block mutation primitives
// and by the Builder; they should not be changed otherwise.
type Var struct {
	name  string
	shape shapes.Shape
	value *tensors.Tensor

	// op is the producer of the Var, nil for block inputs.
	op *Operation

	// block is set for block inputs only.
	block *Block

	consumers       []*Operation
	consumingBlocks []*Block
}

// NewInput creates a Var to be used as an input of a function (see Program.NewFunction).
func NewInput(name string, shape shapes.Shape) *Var {
	return &Var{name: name, shape: shape}
}

// Name of the Var, unique within its function.
func (v *Var) Name() string { return v.name }

// Shape returns the symbolic type of the Var.
func (v *Var) Shape() shapes.Shape { return v.shape }

// Value returns the compile-time known value, or nil if it is not known.
func (v *Var) Value() *tensors.Tensor { return v.value }

// Op returns the operation that produces the Var, or nil if it is a block input.
func (v *Var) Op() *Operation { return v.op }

// Consumers returns a copy of the list of operations using v as input, in the order they
// started using it.
func (v *Var) Consumers() []*Operation { return slices.Clone(v.consumers) }

// ConsumingBlocks returns the blocks that list v as one of their outputs.
func (v *Var) ConsumingBlocks() []*Block { return slices.Clone(v.consumingBlocks) }

// HasUses returns whether the Var is used by any operation or block output.
func (v *Var) HasUses() bool { return len(v.consumers) > 0 || len(v.consumingBlocks) > 0 }

// String returns the Var reference as printed in programs, e.g. "%x".
func (v *Var) String() string {
	if v == nil {
		return "%<nil>"
	}
	return "%" + v.name
}

func (v *Var) addConsumer(op *Operation) {
	if !slices.Contains(v.consumers, op) {
		v.consumers = append(v.consumers, op)
	}
}

func (v *Var) removeConsumer(op *Operation) {
	v.consumers = slices.DeleteFunc(v.consumers, func(c *Operation) bool { return c == op })
}

func (v *Var) addConsumingBlock(b *Block) {
	if !slices.Contains(v.consumingBlocks, b) {
		v.consumingBlocks = append(v.consumingBlocks, b)
	}
}

func (v *Var) removeConsumingBlock(b *Block) {
	v.consumingBlocks = slices.DeleteFunc(v.consumingBlocks, func(c *Block) bool { return c == b })
}
