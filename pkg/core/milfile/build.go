// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package milfile

import (
	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
	"github.com/HennerM/coremltools/pkg/support/xslices"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
)

// scope maps names to the values visible in a block.
type scope struct {
	vars   map[string]*mil.Var
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{vars: make(map[string]*mil.Var), parent: parent}
}

func (s *scope) lookup(name string) *mil.Var {
	for current := s; current != nil; current = current.parent {
		if v, found := current.vars[name]; found {
			return v
		}
	}
	return nil
}

func (s *scope) define(v *mil.Var) error {
	if s.lookup(v.Name()) != nil {
		return errors.Errorf("value %q defined more than once", v.Name())
	}
	s.vars[v.Name()] = v
	return nil
}

// Build creates the program described by the file.
func (f *File) Build() (prog *mil.Program, err error) {
	prog = mil.NewProgram()
	for _, fn := range f.Functions {
		if err = buildFunction(prog, fn); err != nil {
			return nil, errors.WithMessagef(err, "function %q", fn.Name)
		}
	}
	return prog, nil
}

// LoadProgram reads and builds the program stored in fileName.
func LoadProgram(fileName string) (*mil.Program, error) {
	f, err := Load(fileName)
	if err != nil {
		return nil, err
	}
	prog, err := f.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "file %q", fileName)
	}
	return prog, nil
}

func parseDecls(decls []VarDecl) ([]*mil.Var, error) {
	vars := make([]*mil.Var, len(decls))
	for ii, decl := range decls {
		shape, err := shapes.Parse(decl.Type)
		if err != nil {
			return nil, errors.WithMessagef(err, "value %q", decl.Name)
		}
		vars[ii] = mil.NewInput(decl.Name, shape)
	}
	return vars, nil
}

func buildFunction(prog *mil.Program, fn Block) error {
	inputs, err := parseDecls(fn.Inputs)
	if err != nil {
		return err
	}
	block, err := prog.NewFunction(fn.Name, inputs...)
	if err != nil {
		return err
	}
	// Builder misuse panics: it is reported as an error of the file.
	return exceptions.TryCatch[error](func() {
		if err := buildBlock(mil.NewBuilder(block), fn, newScope(nil), inputs); err != nil {
			panic(err)
		}
	})
}

func buildBlock(builder *mil.Builder, desc Block, outer *scope, inputs []*mil.Var) error {
	s := newScope(outer)
	for _, input := range inputs {
		if err := s.define(input); err != nil {
			return err
		}
	}
	for _, opDesc := range desc.Operations {
		if err := buildOperation(builder, opDesc, s); err != nil {
			return errors.WithMessagef(err, "operation %q (%s)", opDesc.Name, opDesc.Type)
		}
	}
	outputs := make([]*mil.Var, len(desc.Outputs))
	for ii, name := range desc.Outputs {
		outputs[ii] = s.lookup(name)
		if outputs[ii] == nil {
			return errors.Errorf("block %q: unknown output %q", desc.Name, name)
		}
	}
	builder.Block().SetOutputs(outputs...)
	return nil
}

func buildOperation(builder *mil.Builder, desc Operation, s *scope) error {
	spec := mil.OpSpec{Type: desc.Type, Name: desc.Name}
	for _, ref := range desc.Inputs {
		v := s.lookup(ref.Var)
		if v == nil {
			return errors.Errorf("input %q uses unknown value %q", ref.Name, ref.Var)
		}
		spec.Inputs = append(spec.Inputs, mil.Input{Name: ref.Name, Var: v})
	}
	for _, decl := range desc.Outputs {
		shape, err := shapes.Parse(decl.Type)
		if err != nil {
			return errors.WithMessagef(err, "output %q", decl.Name)
		}
		spec.Outputs = append(spec.Outputs, shape)
		spec.OutputNames = append(spec.OutputNames, decl.Name)
	}
	if desc.Value != nil {
		if len(spec.Outputs) != 1 {
			return errors.Errorf("a value can only be given for operations with one output, got %d outputs", len(spec.Outputs))
		}
		dims, ok := spec.Outputs[0].Dimensions()
		if !ok {
			return errors.Errorf("value given for output of symbolic shape %s", spec.Outputs[0])
		}
		value, err := tensors.FromFloat64s(spec.Outputs[0].DType, dims, desc.Value)
		if err != nil {
			return err
		}
		spec.OutputValues = []*tensors.Tensor{value}
	} else if desc.Type == "const" {
		return errors.New("const operation without a value")
	}

	op := builder.Build(spec)
	for _, blockDesc := range desc.Blocks {
		inputs, err := parseDecls(blockDesc.Inputs)
		if err != nil {
			return errors.WithMessagef(err, "block %q", blockDesc.Name)
		}
		nested := builder.NestedBlock(op, blockDesc.Name, inputs...)
		if err := buildBlock(nested, blockDesc, s, inputs); err != nil {
			return errors.WithMessagef(err, "block %q", blockDesc.Name)
		}
	}
	for _, out := range op.Outputs() {
		if err := s.define(out); err != nil {
			return err
		}
	}
	return nil
}

// FromProgram returns the serialized form of prog.
func FromProgram(prog *mil.Program) *File {
	f := &File{}
	for name, fn := range prog.Functions() {
		desc := fromBlock(fn)
		desc.Name = name
		f.Functions = append(f.Functions, desc)
	}
	return f
}

func toDecls(vars []*mil.Var) []VarDecl {
	if len(vars) == 0 {
		return nil
	}
	return xslices.Map(vars, func(v *mil.Var) VarDecl {
		return VarDecl{Name: v.Name(), Type: v.Shape().String()}
	})
}

func fromBlock(block *mil.Block) Block {
	desc := Block{Name: block.Name(), Inputs: toDecls(block.Inputs())}
	for _, op := range block.Operations() {
		opDesc := Operation{Type: op.Type(), Name: op.Name(), Outputs: toDecls(op.Outputs())}
		for _, in := range op.Inputs() {
			opDesc.Inputs = append(opDesc.Inputs, NamedRef{Name: in.Name, Var: in.Var.Name()})
		}
		if op.NumOutputs() == 1 && op.Output(0).Value() != nil {
			opDesc.Value = op.Output(0).Value().Float64s()
		}
		for _, nested := range op.Blocks() {
			opDesc.Blocks = append(opDesc.Blocks, fromBlock(nested))
		}
		desc.Operations = append(desc.Operations, opDesc)
	}
	for _, out := range block.Outputs() {
		desc.Outputs = append(desc.Outputs, out.Name())
	}
	return desc
}
