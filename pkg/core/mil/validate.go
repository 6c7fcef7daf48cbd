// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package mil

import (
	"slices"

	"github.com/HennerM/coremltools/pkg/support/sets"
	"github.com/pkg/errors"
)

// Validate checks the structural invariants of the program:
//
//   - Every input of an operation is defined before it, in the same block or in an enclosing one.
//   - Declared block outputs are live values visible in the block.
//   - The use-def edges (producers, consumers, consuming blocks) are consistent with the operations.
//
// It returns the first violation found.
func (p *Program) Validate() error {
	for name, fn := range p.Functions() {
		if fn.outerOp != nil {
			return errors.Errorf("function %q has an outer operation %q", name, fn.outerOp.name)
		}
		if err := fn.validate(sets.Make[*Var]()); err != nil {
			return errors.WithMessagef(err, "program %s, function %q", p.ID, name)
		}
	}
	return nil
}

func (b *Block) validate(outerVisible sets.Set[*Var]) error {
	visible := outerVisible.Clone()
	for _, input := range b.inputs {
		if input.block != b || input.op != nil {
			return errors.Errorf("block %q: input %s is not owned by the block", b.name, input)
		}
		visible.Insert(input)
	}
	for _, op := range b.operations {
		if op.block != b {
			return errors.Errorf("block %q: operation %q has a different enclosing block", b.name, op.name)
		}
		for _, in := range op.inputs {
			if !visible.Has(in.Var) {
				return errors.Errorf("block %q: operation %q uses %s (input %q) before its definition",
					b.name, op.name, in.Var, in.Name)
			}
			if !slices.Contains(in.Var.consumers, op) {
				return errors.Errorf("block %q: operation %q uses %s but is not listed as its consumer",
					b.name, op.name, in.Var)
			}
		}
		for _, nested := range op.blocks {
			if nested.outerOp != op {
				return errors.Errorf("block %q: nested block %q of operation %q has a different outer operation",
					b.name, nested.name, op.name)
			}
			if err := nested.validate(visible); err != nil {
				return errors.WithMessagef(err, "in operation %q", op.name)
			}
		}
		for _, out := range op.outputs {
			if out.op != op {
				return errors.Errorf("block %q: output %s of operation %q has a different producer", b.name, out, op.name)
			}
			for _, consumer := range out.consumers {
				usesOut := slices.ContainsFunc(consumer.inputs, func(in Input) bool { return in.Var == out })
				if consumer.block == nil || !usesOut {
					return errors.Errorf("block %q: %s lists %q as a consumer, but it doesn't use it",
						b.name, out, consumer.name)
				}
			}
			visible.Insert(out)
		}
	}
	for _, out := range b.outputs {
		if !visible.Has(out) {
			return errors.Errorf("block %q: declared output %s is not a live value in the block", b.name, out)
		}
		if !slices.Contains(out.consumingBlocks, b) {
			return errors.Errorf("block %q: declared output %s doesn't list the block as consumer", b.name, out)
		}
	}
	return nil
}
