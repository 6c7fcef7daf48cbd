// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package milfile reads and writes MIL programs in YAML (or JSON, a subset of YAML).
//
// Example:
//
//	functions:
//	  - name: main
//	    inputs:
//	      - {name: x, type: "fp32[1,s0,3]"}
//	    operations:
//	      - {type: const, name: zero, outputs: [{name: zero, type: fp32}], value: [0]}
//	      - type: add
//	        name: add_0
//	        inputs: {x: x, y: zero}
//	        outputs: [{name: add_0, type: "fp32[1,s0,3]"}]
//	    outputs: [add_0]
//
// Operations with nested blocks (e.g. "cond", "while_loop") list them under "blocks", with the same
// fields as a function. Values defined in a block are visible in the blocks nested in it.
package milfile

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// File is the serialized form of a program.
type File struct {
	Functions []Block `yaml:"functions"`
}

// Block is the serialized form of a function or of a nested block.
type Block struct {
	Name       string      `yaml:"name"`
	Inputs     []VarDecl   `yaml:"inputs,omitempty"`
	Operations []Operation `yaml:"operations,omitempty"`
	Outputs    []string    `yaml:"outputs,omitempty"`
}

// VarDecl declares a value by name and type, e.g. {name: x, type: "fp32[2,3]"}.
type VarDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// Operation is the serialized form of a mil.Operation.
type Operation struct {
	Type    string    `yaml:"type"`
	Name    string    `yaml:"name,omitempty"`
	Inputs  NamedRefs `yaml:"inputs,omitempty"`
	Outputs []VarDecl `yaml:"outputs,omitempty"`

	// Value holds the flat values of the single output of a "const" operation.
	Value []float64 `yaml:"value,omitempty,flow"`

	Blocks []Block `yaml:"blocks,omitempty"`
}

// NamedRef binds an input name of an operation to the name of a value.
type NamedRef struct {
	Name, Var string
}

// NamedRefs is an ordered mapping of input names to value names. The order of the inputs of
// operations is preserved.
type NamedRefs []NamedRef

// UnmarshalYAML implements yaml.Unmarshaler.
func (refs *NamedRefs) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return errors.Errorf("line %d: operation inputs must be a mapping of input names to value names", node.Line)
	}
	*refs = make(NamedRefs, 0, len(node.Content)/2)
	for ii := 0; ii+1 < len(node.Content); ii += 2 {
		key, value := node.Content[ii], node.Content[ii+1]
		if value.Kind != yaml.ScalarNode {
			return errors.Errorf("line %d: input %q must refer to a value by name", value.Line, key.Value)
		}
		*refs = append(*refs, NamedRef{Name: key.Value, Var: value.Value})
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (refs NamedRefs) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	for _, ref := range refs {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: ref.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: ref.Var})
	}
	return node, nil
}

// Parse the serialized form of a program, in YAML or JSON.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "failed to parse MIL program")
	}
	if len(f.Functions) == 0 {
		return nil, errors.New("MIL program has no functions")
	}
	return &f, nil
}

// Load reads and builds the program stored in fileName.
func Load(fileName string) (*File, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read MIL program from %q", fileName)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, errors.WithMessagef(err, "file %q", fileName)
	}
	return f, nil
}

// Marshal returns the YAML serialized form of the program.
func (f *File) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to serialize MIL program")
	}
	return data, nil
}

// Save writes the YAML serialized form of the program to fileName.
func (f *File) Save(fileName string) error {
	data, err := f.Marshal()
	if err != nil {
		return err
	}
	if err = os.WriteFile(fileName, data, 0o644); err != nil {
		return errors.Wrapf(err, "failed to write MIL program to %q", fileName)
	}
	return nil
}
