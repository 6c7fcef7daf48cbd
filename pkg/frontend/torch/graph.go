// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package torch

import (
	"fmt"

	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
	"github.com/pkg/errors"
)

// NodeKind is the kind of operation of a Node, following torch.fx.
type NodeKind string

const (
	Placeholder  NodeKind = "placeholder"
	GetAttr      NodeKind = "get_attr"
	CallFunction NodeKind = "call_function"
	CallModule   NodeKind = "call_module"
	CallMethod   NodeKind = "call_method"
	Output       NodeKind = "output"
)

// Node of a traced torch graph.
type Node struct {
	Name string
	Kind NodeKind

	// Target is the name of the function called, for CallFunction nodes, e.g. "add", "aten.relu.default".
	Target string

	Args []Arg

	// Shape of the value of Placeholder nodes.
	Shape shapes.Shape

	// Value of GetAttr nodes (parameters and buffers).
	Value *tensors.Tensor
}

// String implements fmt.Stringer.
func (n *Node) String() string {
	if n.Target != "" {
		return fmt.Sprintf("%s[%s %s]", n.Name, n.Kind, n.Target)
	}
	return fmt.Sprintf("%s[%s]", n.Name, n.Kind)
}

// Arg is an argument of a Node: either a reference to the value of another node, or a literal.
type Arg struct {
	// Ref is the name of the node whose value is used, if not empty.
	Ref string

	// Literal value, used if Ref is empty: int, float64, bool, string or []int.
	Literal any
}

// Ref returns an argument referring to the value of the node with the given name.
func Ref(name string) Arg { return Arg{Ref: name} }

// Lit returns a literal argument.
func Lit(value any) Arg { return Arg{Literal: value} }

// IsRef returns whether the argument refers to another node.
func (a Arg) IsRef() bool { return a.Ref != "" }

// Float returns the literal as a float64.
func (a Arg) Float() (float64, error) {
	switch v := a.Literal.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	}
	return 0, errors.Errorf("argument %s is not a number", a)
}

// Int returns the literal as an int.
func (a Arg) Int() (int, error) {
	if v, ok := a.Literal.(int); ok {
		return v, nil
	}
	return 0, errors.Errorf("argument %s is not an int", a)
}

// Ints returns the literal as a list of ints.
func (a Arg) Ints() ([]int, error) {
	switch v := a.Literal.(type) {
	case []int:
		return v, nil
	case int:
		return []int{v}, nil
	}
	return nil, errors.Errorf("argument %s is not a list of ints", a)
}

// String implements fmt.Stringer.
func (a Arg) String() string {
	if a.IsRef() {
		return "%" + a.Ref
	}
	return fmt.Sprintf("%v", a.Literal)
}

// Graph is a traced torch program: nodes in execution order, with one Output node.
type Graph struct {
	Nodes []*Node
}
