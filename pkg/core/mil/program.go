// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package mil implements the intermediate representation (IR) of models being compiled: a Program
// is a set of named functions, each a Block of Operations producing typed values (Var).
//
// Operations may hold nested blocks (the bodies of control-flow operations), so every traversal and
// rewrite is recursive.
//
// The graph keeps use-def edges in both directions: each Var knows its producer and its consumers.
// Rewrites should only use the mutation primitives of Block (ReplaceUsesOfVarAfterOp and RemoveOps),
// which keep these edges consistent and panic with ErrInvariantViolation if a rewrite would break
// them. Program.Validate checks the whole program.
//
// Programs are created by a frontend (see package github.com/HennerM/coremltools/pkg/frontend/torch),
// by the loader in package milfile, or with a Builder.
package mil

import (
	"iter"
	"slices"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// MainName is the name of the function conventionally used as entry point.
const MainName = "main"

// Program is an ordered mapping of function names to their top-level blocks.
//
// A Program is not safe for concurrent use: a pass owns it for the duration of its execution.
type Program struct {
	// ID uniquely identifies the program in logs.
	ID uuid.UUID

	functions map[string]*Block
	names     []string
}

// NewProgram returns an empty program.
func NewProgram() *Program {
	return &Program{
		ID:        uuid.New(),
		functions: make(map[string]*Block),
	}
}

// NewFunction creates a new function with the given inputs (see NewInput) and returns its block.
// Use a Builder on the block to add operations, and Block.SetOutputs to declare its outputs.
//
// It returns an error if a function with the same name already exists, or an input is already
// used elsewhere.
func (p *Program) NewFunction(name string, inputs ...*Var) (*Block, error) {
	if _, found := p.functions[name]; found {
		return nil, errors.Errorf("program already has a function named %q", name)
	}
	for _, input := range inputs {
		if input.block != nil || input.op != nil {
			return nil, errors.Errorf("input %s of function %q is already defined elsewhere", input, name)
		}
	}
	fn := newBlock(name, inputs, nil)
	p.functions[name] = fn
	p.names = append(p.names, name)
	return fn, nil
}

// Function returns the block of the named function, or nil if there is no such function.
func (p *Program) Function(name string) *Block { return p.functions[name] }

// FunctionNames returns the names of the functions in the order they were created.
func (p *Program) FunctionNames() []string { return slices.Clone(p.names) }

// Functions iterates over the functions, in the order they were created.
func (p *Program) Functions() iter.Seq2[string, *Block] {
	return func(yield func(string, *Block) bool) {
		for _, name := range p.names {
			if !yield(name, p.functions[name]) {
				return
			}
		}
	}
}

// NumOperations returns the total number of operations in the program, including nested blocks.
func (p *Program) NumOperations() int {
	count := 0
	for _, fn := range p.Functions() {
		count += fn.NumOperations()
	}
	return count
}

// OpTypeCounts returns the number of operations of each type, including nested blocks.
func (p *Program) OpTypeCounts() map[string]int {
	counts := make(map[string]int)
	var countBlock func(b *Block)
	countBlock = func(b *Block) {
		for _, op := range b.operations {
			counts[op.opType]++
			for _, nested := range op.blocks {
				countBlock(nested)
			}
		}
	}
	for _, fn := range p.Functions() {
		countBlock(fn)
	}
	return counts
}
