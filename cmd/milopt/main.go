// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// milopt loads MIL programs (YAML or JSON, see package milfile), runs a pipeline of passes over them, and
// reports the effect of each pass.
//
// Usage:
//
//	milopt [flags] <program files, directories or glob patterns>...
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/HennerM/coremltools/pkg/core/milfile"
	"github.com/HennerM/coremltools/pkg/core/passes"
	_ "github.com/HennerM/coremltools/pkg/core/passes/common"
	"github.com/HennerM/coremltools/pkg/frontend/torch"
	"github.com/HennerM/coremltools/pkg/support/fsutil"
	"github.com/HennerM/coremltools/pkg/support/xslices"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/janpfeifer/must"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// MILOPT_PASSES is the environment variable with the default comma-separated list of passes to run.
const MILOPT_PASSES = "MILOPT_PASSES"

var (
	flagPasses = xslices.Flag("passes", defaultPasses(),
		fmt.Sprintf("Comma-separated list of passes (\"<namespace>::<name>\") to run, in order. "+
			"The default can be set with the environment variable %s.", MILOPT_PASSES),
		parsePassName)
	flagValidate  = flag.Bool("validate", true, "Validate the program after each pass.")
	flagPrint     = flag.Bool("print", false, "Print the optimized programs.")
	flagList      = flag.Bool("list", false, "List the registered passes and torch operators, and exit.")
	flagNoColor   = flag.Bool("no_color", false, "Disable colors in the output.")
	flagOutputDir = flag.String("output_dir", "", "If set, save the optimized programs (YAML) in this directory, "+
		"with the same base name as the input.")
)

func defaultPasses() []string {
	if passesList, found := os.LookupEnv(MILOPT_PASSES); found {
		var names []string
		for _, name := range strings.Split(passesList, ",") {
			if name = strings.TrimSpace(name); name != "" {
				names = append(names, name)
			}
		}
		return names
	}
	return passes.DefaultCleanupPipeline.Passes
}

func parsePassName(name string) (string, error) {
	if _, _, err := passes.SplitName(name); err != nil {
		return "", err
	}
	return name, nil
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagNoColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	if *flagList {
		listRegistered()
		return
	}
	if len(flag.Args()) == 0 {
		klog.Errorf("Missing MIL programs to optimize. See 'milopt -help'")
		os.Exit(1)
	}
	files, err := fsutil.ExpandPrograms(flag.Args())
	if err != nil {
		klog.Errorf("%v", err)
		os.Exit(1)
	}
	if *flagOutputDir != "" {
		*flagOutputDir = must.M1(fsutil.ReplaceTilde(*flagOutputDir))
		must.M(os.MkdirAll(*flagOutputDir, 0o755))
	}

	pipeline := &passes.Pipeline{Name: "milopt", Passes: *flagPasses, Validate: *flagValidate}

	var bar *progressbar.ProgressBar
	if len(files) > 1 {
		bar = progressbar.NewOptions(len(files),
			progressbar.OptionSetDescription("Optimizing"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.ThemeASCII),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish())
	}
	var reports []string
	numFailed := 0
	for _, fileName := range files {
		report, err := optimize(pipeline, fileName)
		if err != nil {
			klog.Errorf("Failed to optimize %q: %+v", fileName, err)
			numFailed++
		} else {
			reports = append(reports, report)
		}
		if bar != nil {
			_ = bar.Add(1)
		}
	}
	if bar != nil {
		_ = bar.Finish()
	}
	for _, report := range reports {
		fmt.Println(report)
	}
	if numFailed > 0 {
		klog.Errorf("%d out of %d programs failed", numFailed, len(files))
		os.Exit(1)
	}
}

// optimize loads fileName, runs the pipeline on it, and returns the rendered report.
func optimize(pipeline *passes.Pipeline, fileName string) (string, error) {
	info, err := os.Stat(fileName)
	if err != nil {
		return "", errors.Wrapf(err, "can't access %q", fileName)
	}
	prog, err := milfile.LoadProgram(fileName)
	if err != nil {
		return "", err
	}
	if err = prog.Validate(); err != nil {
		return "", errors.WithMessage(err, "invalid input program")
	}
	stats, err := pipeline.Run(prog)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(fmt.Sprintf("%s (%s)", fileName, humanize.Bytes(uint64(info.Size())))))
	sb.WriteString("\n")
	sb.WriteString(statsTable(stats).Render())
	sb.WriteString("\n")
	if *flagPrint {
		sb.WriteString(prog.String())
		sb.WriteString("\n")
	}
	if *flagOutputDir != "" {
		outputPath := filepath.Join(*flagOutputDir, filepath.Base(fileName))
		if err = milfile.FromProgram(prog).Save(outputPath); err != nil {
			return "", err
		}
		sb.WriteString(fmt.Sprintf("Saved to %q\n", outputPath))
	}
	return sb.String(), nil
}

func listRegistered() {
	fmt.Println(titleStyle.Render("Passes"))
	table := newPlainTable(true, lipgloss.Left)
	table.Headers("Pass")
	for _, name := range passes.Names("") {
		table.Row(name)
	}
	fmt.Println(table.Render())

	fmt.Println(titleStyle.Render("Torch operators"))
	table = newPlainTable(true, lipgloss.Left)
	table.Headers("Operator")
	for _, name := range torch.Ops.Names() {
		table.Row(name)
	}
	fmt.Println(table.Render())
}
