// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/HennerM/coremltools/pkg/core/milfile"
	"github.com/HennerM/coremltools/pkg/core/passes"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testProgram = filepath.Join("..", "..", "pkg", "core", "milfile", "testdata", "noops.yaml")

func TestOptimize(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	outputDir := t.TempDir()
	*flagOutputDir = outputDir
	defer func() { *flagOutputDir = "" }()

	pipeline := &passes.Pipeline{Name: "test", Passes: passes.DefaultCleanupPipeline.Passes, Validate: true}
	report, err := optimize(pipeline, testProgram)
	require.NoError(t, err)
	assert.Contains(t, report, "noops.yaml")
	assert.Contains(t, report, "common::noop_elimination")
	assert.Contains(t, report, "common::dead_code_elimination")
	assert.Contains(t, report, "total")

	saved := filepath.Join(outputDir, "noops.yaml")
	_, err = os.Stat(saved)
	require.NoError(t, err)
	prog, err := milfile.LoadProgram(saved)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cond": 1, "relu": 1}, prog.OpTypeCounts())
}

func TestOptimizeErrors(t *testing.T) {
	pipeline := &passes.Pipeline{Name: "test", Passes: []string{"common::missing"}}
	_, err := optimize(pipeline, testProgram)
	require.ErrorIs(t, err, passes.ErrUnknownPass)

	_, err = optimize(pipeline, filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestStatsTable(t *testing.T) {
	lipgloss.SetColorProfile(termenv.Ascii)
	rendered := statsTable([]passes.PassStats{
		{Pass: "a::b", OpsBefore: 1200, OpsAfter: 1000},
		{Pass: "c::d", OpsBefore: 1000, OpsAfter: 900},
	}).Render()
	assert.Contains(t, rendered, "1,200")
	assert.Contains(t, rendered, "300")
	assert.Contains(t, rendered, "total")
}
