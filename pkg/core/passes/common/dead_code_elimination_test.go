// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package common

import (
	"testing"

	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/HennerM/coremltools/pkg/core/passes"
	"github.com/HennerM/coremltools/pkg/core/shapes"
	"github.com/HennerM/coremltools/pkg/core/tensors"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeadCodeElimination(t *testing.T) {
	var used *mil.Var
	prog := buildMain(t, shapes.Make(dtypes.Float32, 3), func(b *mil.Builder, x *mil.Var) []*mil.Var {
		unused := b.Relu(b.Add(x, scalarF32(b, 2)))
		_ = b.Mul(unused, unused)
		pred := b.Const(tensors.FromScalar(true))
		_ = b.Cond(pred,
			func(branch *mil.Builder) []*mil.Var { return []*mil.Var{branch.Relu(x)} },
			func(branch *mil.Builder) []*mil.Var { return []*mil.Var{x} })
		// Operations without outputs are kept.
		b.Build(mil.OpSpec{Type: "print", Inputs: []mil.Input{{Name: "x", Var: x}}})
		used = b.Relu(x)
		return []*mil.Var{used}
	})
	require.Equal(t, 9, prog.NumOperations())

	pass := NewDeadCodeElimination()
	pass.Apply(prog)
	require.NoError(t, prog.Validate())
	assert.Equal(t, 6, pass.NumRemoved())
	assert.Equal(t, map[string]int{"print": 1, "relu": 1}, prog.OpTypeCounts())
	assert.Equal(t, []*mil.Var{used}, prog.Function(mil.MainName).Outputs())

	pass.Apply(prog)
	assert.Equal(t, 0, pass.NumRemoved())
}

func TestDeadCodeEliminationNested(t *testing.T) {
	prog := buildMain(t, shapes.Make(dtypes.Float32, 3), func(b *mil.Builder, x *mil.Var) []*mil.Var {
		one := scalarF32(b, 1)
		pred := b.Const(tensors.FromScalar(true))
		return b.Cond(pred,
			func(branch *mil.Builder) []*mil.Var {
				_ = branch.Add(x, one)
				return []*mil.Var{branch.Relu(x)}
			},
			func(branch *mil.Builder) []*mil.Var { return []*mil.Var{x} })
	})
	pass := NewDeadCodeElimination()
	pass.Apply(prog)
	require.NoError(t, prog.Validate())
	assert.Equal(t, 2, pass.NumRemoved(), "nested add, and then the constant it used")
	assert.Equal(t, map[string]int{"const": 1, "cond": 1, "relu": 1}, prog.OpTypeCounts())
}

func TestDeadCodeEliminationNestedSideEffects(t *testing.T) {
	prog := buildMain(t, shapes.Make(dtypes.Float32, 3), func(b *mil.Builder, x *mil.Var) []*mil.Var {
		pred := b.Const(tensors.FromScalar(true))
		_ = b.Cond(pred,
			func(branch *mil.Builder) []*mil.Var {
				branch.Build(mil.OpSpec{Type: "print", Inputs: []mil.Input{{Name: "x", Var: x}}})
				return []*mil.Var{x}
			},
			func(branch *mil.Builder) []*mil.Var { return []*mil.Var{x} })
		_ = b.WhileLoop([]*mil.Var{x},
			func(cond *mil.Builder, vars []*mil.Var) *mil.Var {
				return cond.Const(tensors.FromScalar(false))
			},
			func(body *mil.Builder, vars []*mil.Var) []*mil.Var {
				inner := body.Cond(pred,
					func(branch *mil.Builder) []*mil.Var {
						branch.Build(mil.OpSpec{Type: "print", Inputs: []mil.Input{{Name: "x", Var: vars[0]}}})
						return []*mil.Var{vars[0]}
					},
					func(branch *mil.Builder) []*mil.Var { return []*mil.Var{vars[0]} })
				return inner
			})
		return []*mil.Var{b.Relu(x)}
	})
	pass := NewDeadCodeElimination()
	pass.Apply(prog)
	require.NoError(t, prog.Validate())
	assert.Equal(t, 0, pass.NumRemoved())
	counts := prog.OpTypeCounts()
	assert.Equal(t, 2, counts["print"])
	assert.Equal(t, 2, counts["cond"])
	assert.Equal(t, 1, counts["while_loop"])
}

func TestDefaultCleanupPipeline(t *testing.T) {
	prog := buildMain(t, shapes.Make(dtypes.Float32, 2, 3), func(b *mil.Builder, x *mil.Var) []*mil.Var {
		v := b.Reshape(x, 2, 3)
		v = b.Transpose(v, 0, 1)
		v = b.Add(v, scalarF32(b, 0))
		return []*mil.Var{b.Relu(v)}
	})
	require.Equal(t, 7, prog.NumOperations())

	pipeline := passes.DefaultCleanupPipeline
	pipeline.Validate = true
	var reported []string
	stats, err := pipeline.RunWithCallback(prog, func(s passes.PassStats) { reported = append(reported, s.Pass) })
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, pipeline.Passes, reported)

	assert.Equal(t, "common::noop_elimination", stats[0].Pass)
	assert.Equal(t, 7, stats[0].OpsBefore)
	assert.Equal(t, 4, stats[0].OpsAfter)
	assert.Equal(t, 3, stats[0].Removed())

	assert.Equal(t, "common::dead_code_elimination", stats[1].Pass)
	assert.Equal(t, 4, stats[1].OpsBefore)
	assert.Equal(t, 1, stats[1].OpsAfter)
	assert.Equal(t, map[string]int{"relu": 1}, prog.OpTypeCounts())
}
