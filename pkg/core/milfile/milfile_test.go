// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package milfile

import (
	"path/filepath"
	"testing"

	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/passes"
	_ "github.com/HennerM/coremltools/pkg/core/passes/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadProgram(t *testing.T) {
	prog, err := LoadProgram(filepath.Join("testdata", "noops.yaml"))
	require.NoError(t, err)
	require.NoError(t, prog.Validate())

	main := prog.Function(mil.MainName)
	require.NotNil(t, main)
	inputs := main.Inputs()
	require.Len(t, inputs, 2)
	assert.Equal(t, "fp32[1,s0,3]", inputs[0].Shape().String())
	assert.Equal(t, 8, prog.NumOperations())

	add := main.Operations()[3]
	assert.Equal(t, "add", add.Type())
	require.Len(t, add.Inputs(), 2)
	assert.Equal(t, "x", add.Inputs()[0].Name, "inputs keep their order")
	assert.Equal(t, "zero", add.Inputs()[1].Var.Name())

	stats, err := passes.DefaultCleanupPipeline.Run(prog)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	require.NoError(t, prog.Validate())
	assert.Equal(t, map[string]int{"cond": 1, "relu": 1}, prog.OpTypeCounts())
}

func TestParseJSON(t *testing.T) {
	// JSON is parsed as YAML: no tabs allowed.
	json := `{"functions": [{` +
		`"name": "main", ` +
		`"inputs": [{"name": "x", "type": "fp16[4]"}], ` +
		`"operations": [` +
		`{"type": "const", "name": "c", "outputs": [{"name": "c", "type": "fp16[4]"}], "value": [1, 2, 3, 4]}, ` +
		`{"type": "sub", "name": "s", "inputs": {"x": "x", "y": "c"}, "outputs": [{"name": "s", "type": "fp16[4]"}]}` +
		`], ` +
		`"outputs": ["s"]}]}`
	f, err := Parse([]byte(json))
	require.NoError(t, err)
	prog, err := f.Build()
	require.NoError(t, err)
	require.NoError(t, prog.Validate())
	c := prog.Function(mil.MainName).Operations()[0].Output(0)
	require.NotNil(t, c.Value())
	assert.Equal(t, []float64{1, 2, 3, 4}, c.Value().Float64s())
}

func TestRoundTrip(t *testing.T) {
	prog, err := LoadProgram(filepath.Join("testdata", "noops.yaml"))
	require.NoError(t, err)

	fileName := filepath.Join(t.TempDir(), "program.yaml")
	require.NoError(t, FromProgram(prog).Save(fileName))
	reloaded, err := LoadProgram(fileName)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())
	assert.Equal(t, prog.Function(mil.MainName).String(), reloaded.Function(mil.MainName).String())
	assert.NotEqual(t, prog.ID, reloaded.ID)
}

func TestBuildErrors(t *testing.T) {
	testCases := []struct {
		name, yaml, want string
	}{
		{"no functions", `functions: []`, "no functions"},
		{"bad type", `
functions:
  - name: main
    inputs: [{name: x, type: "float128[2]"}]`, "float128"},
		{"unknown input", `
functions:
  - name: main
    operations:
      - {type: relu, name: r, inputs: {x: y}, outputs: [{name: r, type: fp32}]}`, `unknown value "y"`},
		{"unknown output", `
functions:
  - name: main
    inputs: [{name: x, type: fp32}]
    outputs: [y]`, `unknown output "y"`},
		{"redefined", `
functions:
  - name: main
    inputs: [{name: x, type: fp32}]
    operations:
      - {type: relu, name: r, inputs: {x: x}, outputs: [{name: x, type: fp32}]}`, "more than once"},
		{"const without value", `
functions:
  - name: main
    operations:
      - {type: const, name: c, outputs: [{name: c, type: fp32}]}`, "without a value"},
		{"value size", `
functions:
  - name: main
    operations:
      - {type: const, name: c, outputs: [{name: c, type: "fp32[2]"}], value: [1, 2, 3]}`, `operation "c"`},
		{"inputs not a mapping", `
functions:
  - name: main
    operations:
      - {type: relu, name: r, inputs: [x], outputs: [{name: r, type: fp32}]}`, "mapping"},
		{"nested values are local", `
functions:
  - name: main
    inputs: [{name: p, type: bool}]
    operations:
      - type: cond
        name: c
        inputs: {pred: p}
        blocks:
          - name: t
            operations:
              - {type: const, name: k, outputs: [{name: k, type: fp32}], value: [1]}
            outputs: [k]
    outputs: [k]`, `unknown output "k"`},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f, err := Parse([]byte(tc.yaml))
			if err == nil {
				_, err = f.Build()
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
