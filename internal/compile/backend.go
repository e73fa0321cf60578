// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package compile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/pdiddy/texbatch/internal/toolchain"
	"github.com/pdiddy/texbatch/pkg/types"
)

// Job is one wrapped fragment ready to build. All paths are absolute.
type Job struct {
	Fragment types.Fragment

	// Folder holds the source fragment and receives the artifact.
	Folder string

	// BuildDir holds the wrapped source <Name>.tex and every tool output.
	BuildDir string

	// Bibliography is the batch bibliography, or nil.
	Bibliography *types.Bibliography

	// Cites is true when the wrapped document carries \bibliography
	// directives, i.e. a bibliography exists and the fragment cites.
	Cites bool

	// Env is added to the environment of every tool run for this job.
	Env []string
}

// Source returns the wrapped document's file name inside BuildDir.
func (j Job) Source() string {
	return j.Fragment.Name + ".tex"
}

// Output returns the path where a backend leaves the artifact.
func (j Job) Output(format types.ArtifactFormat) string {
	return filepath.Join(j.BuildDir, j.Fragment.Name+format.Ext())
}

// Backend runs the external tools that turn a wrapped document into an
// artifact inside the job's build directory.
type Backend interface {
	// Format is the artifact format the backend produces.
	Format() types.ArtifactFormat

	// Build runs the tools. Failures are returned as *StageError.
	Build(ctx context.Context, job Job) error
}

// StageError is a failure of one external tool stage.
type StageError struct {
	Stage  types.Stage
	Err    error
	Output []byte
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// stageErr wraps err from a tool run, keeping the captured output.
func stageErr(stage types.Stage, res toolchain.Result, err error) error {
	out := res.Output
	var exitErr *toolchain.ExitError
	if errors.As(err, &exitErr) {
		out = exitErr.Output
	}
	return &StageError{Stage: stage, Err: err, Output: out}
}

// engineFlags keep the engine from waiting on stdin and stop it at the
// first error with file:line messages.
var engineFlags = []string{"-interaction=nonstopmode", "-halt-on-error", "-file-line-error"}

// bibtexWarningExit is BibTeX's status when it only emitted warnings, e.g.
// for a citation key missing from the database.
const bibtexWarningExit = 1

// LaTeXBackend produces PDFs with a LaTeX engine and BibTeX.
type LaTeXBackend struct {
	runner  *toolchain.Runner
	engine  string
	bibtex  string
	timeout time.Duration
}

// NewLaTeXBackend returns a backend running the resolved engine and bibtex
// executables. bibtex may be empty when no fragment needs a bibliography.
func NewLaTeXBackend(runner *toolchain.Runner, engine, bibtex string, timeout time.Duration) *LaTeXBackend {
	return &LaTeXBackend{runner: runner, engine: engine, bibtex: bibtex, timeout: timeout}
}

func (b *LaTeXBackend) Format() types.ArtifactFormat { return types.FormatPDF }

// Build runs engine, bibtex, engine, engine when the document cites a
// bibliography, and engine, engine otherwise so cross references settle.
func (b *LaTeXBackend) Build(ctx context.Context, job Job) error {
	if err := b.runEngine(ctx, job); err != nil {
		return err
	}
	if job.Cites {
		if b.bibtex == "" {
			return &StageError{Stage: types.StageBibTeX, Err: fmt.Errorf("bibtex: %w", toolchain.ErrToolNotFound)}
		}
		res, err := b.runner.Run(ctx, toolchain.Invocation{
			Path:    b.bibtex,
			Args:    []string{job.Fragment.Name},
			Dir:     job.BuildDir,
			Env:     job.Env,
			Timeout: b.timeout,
			OKExit:  []int{bibtexWarningExit},
		})
		if err != nil {
			return stageErr(types.StageBibTeX, res, err)
		}
		if err := b.runEngine(ctx, job); err != nil {
			return err
		}
	}
	return b.runEngine(ctx, job)
}

// runEngine passes the source as ./<Name>.tex so the engine opens the
// wrapped file in the build directory instead of searching TEXINPUTS.
func (b *LaTeXBackend) runEngine(ctx context.Context, job Job) error {
	args := append(append([]string(nil), engineFlags...), "./"+job.Source())
	res, err := b.runner.Run(ctx, toolchain.Invocation{
		Path:    b.engine,
		Args:    args,
		Dir:     job.BuildDir,
		Env:     job.Env,
		Timeout: b.timeout,
	})
	if err != nil {
		return stageErr(types.StageLaTeX, res, err)
	}
	return nil
}

// PandocBackend produces Word documents by converting the wrapped LaTeX
// source with pandoc, resolving citations with citeproc.
type PandocBackend struct {
	runner  *toolchain.Runner
	pandoc  string
	timeout time.Duration
}

// NewPandocBackend returns a backend running the resolved pandoc executable.
func NewPandocBackend(runner *toolchain.Runner, pandoc string, timeout time.Duration) *PandocBackend {
	return &PandocBackend{runner: runner, pandoc: pandoc, timeout: timeout}
}

func (b *PandocBackend) Format() types.ArtifactFormat { return types.FormatDOCX }

func (b *PandocBackend) Build(ctx context.Context, job Job) error {
	args := []string{
		job.Source(),
		"--from", "latex",
		"--to", "docx",
		"--standalone",
		"--resource-path", job.Folder,
		"-o", filepath.Base(job.Output(types.FormatDOCX)),
	}
	if job.Bibliography != nil {
		args = append(args, "--bibliography", job.Bibliography.Path, "--citeproc")
	}
	res, err := b.runner.Run(ctx, toolchain.Invocation{
		Path:    b.pandoc,
		Args:    args,
		Dir:     job.BuildDir,
		Env:     job.Env,
		Timeout: b.timeout,
	})
	if err != nil {
		return stageErr(types.StageConvert, res, err)
	}
	return nil
}

// NewBackend resolves the tools needed for format and returns its backend.
// BibTeX is only required when withBibliography is set.
func NewBackend(runner *toolchain.Runner, cfg types.CompileConfig, withBibliography bool) (Backend, error) {
	switch cfg.Format {
	case types.FormatPDF:
		names := map[string]string{"engine": cfg.Tools.Engine}
		if withBibliography {
			names["bibtex"] = cfg.Tools.BibTeX
		}
		tools, err := runner.ResolveAll(names)
		if err != nil {
			return nil, err
		}
		return NewLaTeXBackend(runner, tools["engine"], tools["bibtex"], cfg.Timeout), nil
	case types.FormatDOCX:
		tools, err := runner.ResolveAll(map[string]string{"pandoc": cfg.Tools.Pandoc})
		if err != nil {
			return nil, err
		}
		return NewPandocBackend(runner, tools["pandoc"], cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unsupported format %q (want %q or %q)", cfg.Format, types.FormatPDF, types.FormatDOCX)
	}
}
