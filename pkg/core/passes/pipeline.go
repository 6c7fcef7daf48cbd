// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package passes

import (
	"fmt"
	"time"

	"github.com/HennerM/coremltools/pkg/core/mil"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Pipeline is a named sequence of passes, applied in order.
type Pipeline struct {
	Name string

	// Passes holds the full names ("<namespace>::<name>") of the passes to run.
	Passes []string

	// Validate the program (see mil.Program.Validate) after each pass.
	Validate bool
}

// DefaultCleanupPipeline removes no-op operations, and then the operations left without uses.
var DefaultCleanupPipeline = Pipeline{
	Name:   "cleanup",
	Passes: []string{"common::noop_elimination", "common::dead_code_elimination"},
}

// PassStats holds the effect of one pass of a Pipeline run.
type PassStats struct {
	Pass                string
	OpsBefore, OpsAfter int
	Elapsed             time.Duration
}

// Removed returns the number of operations removed by the pass (negative if it added operations).
func (s PassStats) Removed() int { return s.OpsBefore - s.OpsAfter }

// String implements fmt.Stringer.
func (s PassStats) String() string {
	return fmt.Sprintf("%s: %d -> %d operations in %s", s.Pass, s.OpsBefore, s.OpsAfter, s.Elapsed)
}

// Run applies the passes of the pipeline to prog, and returns the statistics of each pass run.
//
// All passes are created before the first one is applied: an unknown pass name fails without changing the
// program. A pass panicking (e.g. with mil.ErrInvariantViolation) stops the pipeline, and the panic is returned
// as an error, along with the statistics of the passes that completed. The program is left in the state
// the failing pass left it.
func (p *Pipeline) Run(prog *mil.Program) ([]PassStats, error) {
	return p.RunWithCallback(prog, nil)
}

// RunWithCallback is like Run, but calls callback (if not nil) after each successful pass.
func (p *Pipeline) RunWithCallback(prog *mil.Program, callback func(stats PassStats)) ([]PassStats, error) {
	instances := make([]Pass, len(p.Passes))
	for ii, name := range p.Passes {
		pass, err := New(name)
		if err != nil {
			return nil, errors.WithMessagef(err, "pipeline %q", p.Name)
		}
		instances[ii] = pass
	}

	allStats := make([]PassStats, 0, len(instances))
	for ii, pass := range instances {
		stats := PassStats{Pass: p.Passes[ii], OpsBefore: prog.NumOperations()}
		start := time.Now()
		err := exceptions.TryCatch[error](func() { pass.Apply(prog) })
		stats.Elapsed = time.Since(start)
		if err != nil {
			return allStats, errors.WithMessagef(err, "pipeline %q, pass %q failed on program %s",
				p.Name, stats.Pass, prog.ID)
		}
		stats.OpsAfter = prog.NumOperations()
		if klog.V(1).Enabled() {
			klog.Infof("pipeline %q, program %s: %s", p.Name, prog.ID, stats)
		}
		if klog.V(2).Enabled() {
			klog.Infof("program after %q:\n%s", stats.Pass, prog)
		}
		if p.Validate {
			if err := prog.Validate(); err != nil {
				return allStats, errors.WithMessagef(err, "pipeline %q: invalid program after pass %q",
					p.Name, stats.Pass)
			}
		}
		allStats = append(allStats, stats)
		if callback != nil {
			callback(stats)
		}
	}
	return allStats, nil
}
