// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report prints batch progress for people and writes the YAML run
// report for machines.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/pdiddy/texbatch/internal/compile"
	"github.com/pdiddy/texbatch/internal/fragment"
	"github.com/pdiddy/texbatch/pkg/types"
)

// Printer writes one line per fragment outcome to w. Status words are
// styled only when w is a terminal.
type Printer struct {
	w       io.Writer
	ok      lipgloss.Style
	fail    lipgloss.Style
	faint   lipgloss.Style
	verbose bool
}

// NewPrinter returns a Printer for w. With verbose set, Start lines are
// printed too.
func NewPrinter(w io.Writer, verbose bool) *Printer {
	r := lipgloss.NewRenderer(w)
	return &Printer{
		w:       w,
		ok:      r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		fail:    r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		faint:   r.NewStyle().Faint(true),
		verbose: verbose,
	}
}

// Found lists the discovered fragments.
func (p *Printer) Found(frags []types.Fragment) {
	fmt.Fprintf(p.w, "Found %d .tex file(s): %s\n", len(frags), strings.Join(fragment.Names(frags), ", "))
}

// Bibliography reports which bibliography the batch uses. configured is the
// name that was looked for.
func (p *Printer) Bibliography(bib *types.Bibliography, configured string, format types.ArtifactFormat) {
	if bib != nil {
		fmt.Fprintf(p.w, "Bibliography file found: %s\n", bib.Path)
		return
	}
	verb := "Compiling"
	if format == types.FormatDOCX {
		verb = "Converting"
	}
	fmt.Fprintf(p.w, "No bibliography file found (%s). %s without bibliography.\n", configured, verb)
}

func (p *Printer) Start(f types.Fragment) {
	if p.verbose {
		fmt.Fprintf(p.w, "%s %s\n", p.faint.Render("processing:"), filepath.Base(f.Path))
	}
}

func (p *Printer) Result(r types.FragmentResult) {
	if r.OK() {
		label := "compiled:"
		if r.Artifact.Format == types.FormatDOCX {
			label = "converted:"
		}
		fmt.Fprintf(p.w, "%s %s%s\n", p.ok.Render(label), filepath.Base(r.Artifact.Path), p.detail(r))
		return
	}
	fmt.Fprintf(p.w, "%s   %s [%s] %s\n", p.fail.Render("failed:"), filepath.Base(r.Fragment.Path), r.Stage, r.Error)
	if r.Diagnostic == "" {
		return
	}
	for _, line := range strings.Split(r.Diagnostic, "\n") {
		fmt.Fprintf(p.w, "    %s\n", line)
	}
}

func (p *Printer) detail(r types.FragmentResult) string {
	var parts []string
	switch {
	case r.Artifact.Pages > 0:
		parts = append(parts, plural(r.Artifact.Pages, "page"))
	case r.Artifact.Paragraphs > 0:
		parts = append(parts, plural(r.Artifact.Paragraphs, "paragraph"))
	}
	parts = append(parts, r.Duration.Round(10*time.Millisecond).String())
	if r.BuildDir != "" {
		parts = append(parts, "kept "+r.BuildDir)
	}
	return p.faint.Render(" (" + strings.Join(parts, ", ") + ")")
}

// Summary prints the batch totals and, when everything compiled, the
// success line.
func (p *Printer) Summary(res compile.BatchResult, format types.ArtifactFormat) {
	fmt.Fprintf(p.w, "\nBatch summary: %d compiled, %d failed (total: %d)\n",
		res.Compiled, res.Failed, res.Total())
	if res.HasFailures() {
		var failed []string
		for _, r := range res.Results {
			if !r.OK() {
				failed = append(failed, r.Fragment.Name)
			}
		}
		fmt.Fprintf(p.w, "%s %s\n", p.fail.Render("Failed:"), strings.Join(failed, ", "))
		return
	}
	verb := "compiled"
	if format == types.FormatDOCX {
		verb = "converted"
	}
	fmt.Fprintf(p.w, "%s\n", p.ok.Render(fmt.Sprintf("%d file(s) %s successfully.", res.Compiled, verb)))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
