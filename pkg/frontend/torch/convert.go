// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package torch

import (
	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Context of a conversion: it maps node names to the MIL values they were converted to.
type Context struct {
	// Builder appends operations to the function being converted.
	Builder *mil.Builder

	values map[string]*mil.Var
}

// Value returns the MIL value of the node with the given name.
func (ctx *Context) Value(name string) (*mil.Var, error) {
	v, found := ctx.values[name]
	if !found {
		return nil, errors.Errorf("value of node %q used before its definition", name)
	}
	return v, nil
}

// SetValue sets the MIL value of node.
func (ctx *Context) SetValue(node *Node, v *mil.Var) {
	ctx.values[node.Name] = v
}

// Arg returns the MIL value of the i-th argument of node, which must be a reference to another node.
func (ctx *Context) Arg(node *Node, i int) (*mil.Var, error) {
	if i >= len(node.Args) {
		return nil, errors.Errorf("node %s: missing argument #%d", node, i)
	}
	if !node.Args[i].IsRef() {
		return nil, errors.Errorf("node %s: argument #%d (%s) must be a tensor", node, i, node.Args[i])
	}
	return ctx.Value(node.Args[i].Ref)
}

// Literal returns the i-th argument of node, which must be a literal.
func (ctx *Context) Literal(node *Node, i int) (Arg, error) {
	if i >= len(node.Args) {
		return Arg{}, errors.Errorf("node %s: missing argument #%d", node, i)
	}
	if node.Args[i].IsRef() {
		return Arg{}, errors.Errorf("node %s: argument #%d (%s) must be a literal", node, i, node.Args[i])
	}
	return node.Args[i], nil
}

// Convert graph to a MIL program with a single function "main", whose inputs are the Placeholder nodes
// and outputs the arguments of the Output node.
//
// CallFunction nodes are converted by the functions registered in Ops.
func Convert(graph *Graph) (*mil.Program, error) {
	prog := mil.NewProgram()
	var inputs []*mil.Var
	for _, node := range graph.Nodes {
		if node.Kind == Placeholder {
			if !node.Shape.Ok() {
				return nil, errors.Errorf("placeholder %s has no valid shape", node)
			}
			inputs = append(inputs, mil.NewInput(node.Name, node.Shape))
		}
	}
	main, err := prog.NewFunction(mil.MainName, inputs...)
	if err != nil {
		return nil, err
	}
	ctx := &Context{Builder: mil.NewBuilder(main), values: make(map[string]*mil.Var)}
	for _, input := range inputs {
		ctx.values[input.Name()] = input
	}

	hasOutput := false
	for _, node := range graph.Nodes {
		switch node.Kind {
		case Placeholder:
			continue
		case GetAttr:
			if node.Value == nil {
				return nil, errors.Errorf("get_attr node %s has no value", node)
			}
			ctx.SetValue(node, ctx.Builder.Const(node.Value))
		case CallFunction:
			if err = ctx.convertCall(node); err != nil {
				return nil, err
			}
		case Output:
			outputs := make([]*mil.Var, len(node.Args))
			for ii := range node.Args {
				if outputs[ii], err = ctx.Arg(node, ii); err != nil {
					return nil, err
				}
			}
			main.SetOutputs(outputs...)
			hasOutput = true
		default:
			return nil, errors.Errorf("node %s: node kind %q is not supported", node, node.Kind)
		}
	}
	if !hasOutput {
		return nil, errors.New("torch graph has no output node")
	}
	if klog.V(2).Enabled() {
		klog.Infof("converted torch graph:\n%s", prog)
	}
	return prog, nil
}

func (ctx *Context) convertCall(node *Node) error {
	name := TargetName(node.Target)
	fn, found := Ops.Resolve(name)
	if !found {
		return errors.Errorf("node %s: torch operator %q is not supported", node, name)
	}
	var err error
	if panicErr := exceptions.TryCatch[error](func() { err = fn(ctx, node) }); panicErr != nil {
		err = panicErr
	}
	if err != nil {
		return errors.WithMessagef(err, "converting node %s", node)
	}
	if _, found := ctx.values[node.Name]; !found {
		return errors.Errorf("converting node %s: conversion of %q didn't set a value", node, name)
	}
	return nil
}
