// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package compile wraps LaTeX fragments into documents and drives the
// external toolchain to produce one artifact per fragment.
package compile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/pdiddy/texbatch/internal/artifact"
	"github.com/pdiddy/texbatch/internal/fragment"
	"github.com/pdiddy/texbatch/internal/wrap"
	"github.com/pdiddy/texbatch/pkg/types"
)

// Observer is notified as a batch progresses.
type Observer interface {
	Start(f types.Fragment)
	Result(r types.FragmentResult)
}

// Observers fans notifications out to several observers.
type Observers []Observer

func (o Observers) Start(f types.Fragment) {
	for _, ob := range o {
		ob.Start(f)
	}
}

func (o Observers) Result(r types.FragmentResult) {
	for _, ob := range o {
		ob.Result(r)
	}
}

// BatchResult holds the outcome of a batch run.
type BatchResult struct {
	Compiled int
	Failed   int
	Results  []types.FragmentResult
}

// Total returns the number of fragments processed.
func (r BatchResult) Total() int {
	return r.Compiled + r.Failed
}

// HasFailures reports whether any fragment failed.
func (r BatchResult) HasFailures() bool {
	return r.Failed > 0
}

// Compiler turns fragments into artifacts with one Backend.
type Compiler struct {
	backend Backend
	cfg     types.CompileConfig
	bib     *types.Bibliography
	logger  *slog.Logger
}

// New returns a Compiler. bib is the batch bibliography and may be nil.
func New(backend Backend, cfg types.CompileConfig, bib *types.Bibliography, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Compiler{backend: backend, cfg: cfg.WithDefaults(), bib: bib, logger: logger}
}

// CompileFragment builds one fragment in its own build directory and moves
// the artifact next to the fragment. The build directory is removed on
// every path unless KeepBuild is set.
func (c *Compiler) CompileFragment(ctx context.Context, frag types.Fragment) types.FragmentResult {
	start := time.Now()
	res := c.compile(ctx, frag)
	res.Fragment = frag
	res.Duration = time.Since(start)
	if res.Stage != "" {
		res.Status = types.StatusFailed
	} else {
		res.Status = types.StatusCompiled
	}
	return res
}

func (c *Compiler) compile(ctx context.Context, frag types.Fragment) types.FragmentResult {
	info, err := os.Stat(frag.Path)
	if err != nil {
		return failure(types.StageRead, fmt.Errorf("reading fragment %s: %w", filepath.Base(frag.Path), err))
	}
	body, err := fragment.Read(frag)
	if err != nil {
		return failure(types.StageRead, err)
	}
	folder, err := filepath.Abs(filepath.Dir(frag.Path))
	if err != nil {
		return failure(types.StageRead, fmt.Errorf("resolving folder: %w", err))
	}

	cited := fragment.Cites(folder, body)
	opts := wrap.OptionsFor(c.cfg.TemplateConfig, c.bib, cited)

	buildDir, err := c.makeBuildDir(frag)
	if err != nil {
		return failure(types.StageWrap, err)
	}
	var res types.FragmentResult
	res.Cited = cited
	if c.cfg.KeepBuild {
		res.BuildDir = buildDir
	} else {
		defer func() {
			if err := os.RemoveAll(buildDir); err != nil {
				c.logger.Warn("removing build directory", "dir", buildDir, "err", err)
			}
		}()
	}

	job := Job{
		Fragment:     frag,
		Folder:       folder,
		BuildDir:     buildDir,
		Bibliography: c.bib,
		Cites:        opts.Bibliography != "",
		Env:          c.env(folder, info.ModTime()),
	}
	src := filepath.Join(buildDir, job.Source())
	if err := os.WriteFile(src, []byte(wrap.Document(body, opts)), 0o644); err != nil {
		return withFailure(res, types.StageWrap, fmt.Errorf("writing wrapped document: %w", err), "")
	}
	c.logger.Debug("wrapped fragment", "fragment", frag.Name, "build_dir", buildDir,
		"cites", job.Cites, "keys", fragment.CitationKeys(body))

	if err := c.backend.Build(ctx, job); err != nil {
		var se *StageError
		if errors.As(err, &se) {
			return withFailure(res, se.Stage, se.Err, Diagnostic(se.Output))
		}
		return withFailure(res, types.StageLaTeX, err, "")
	}

	format := c.backend.Format()
	built := job.Output(format)
	a, err := c.inspect(built, format)
	if err != nil {
		stage := types.StageInspect
		if errors.Is(err, os.ErrNotExist) {
			stage = types.StageCollect
			err = fmt.Errorf("%s produced no %s", toolName(format), filepath.Base(built))
		}
		return withFailure(res, stage, err, "")
	}

	dst := filepath.Join(folder, frag.Name+format.Ext())
	if err := moveFile(built, dst); err != nil {
		return withFailure(res, types.StageCollect, err, "")
	}
	a.Path = dst
	res.Artifact = &a
	return res
}

func (c *Compiler) inspect(path string, format types.ArtifactFormat) (types.Artifact, error) {
	if c.cfg.Verify {
		return artifact.Inspect(path, format)
	}
	return artifact.Stat(path, format)
}

func (c *Compiler) makeBuildDir(frag types.Fragment) (string, error) {
	parent := c.cfg.BuildDir
	if parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("creating build directory parent: %w", err)
		}
	}
	dir, err := os.MkdirTemp(parent, "texbatch-"+frag.Name+"-")
	if err != nil {
		return "", fmt.Errorf("creating build directory: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		os.RemoveAll(dir)
		return "", fmt.Errorf("resolving build directory: %w", err)
	}
	return abs, nil
}

// env returns the variables every tool run sees: search paths that try the
// build directory, then the source folder, then the engine's defaults (the
// trailing separator), and a fixed SOURCE_DATE_EPOCH so unchanged inputs give
// byte-identical output. The build directory comes first so the wrapped
// <Name>.tex and fresh .aux/.bbl files win over same-named files in folder.
func (c *Compiler) env(folder string, modTime time.Time) []string {
	sep := string(os.PathListSeparator)
	env := []string{
		"TEXINPUTS=." + sep + folder + sep + os.Getenv("TEXINPUTS"),
		"SOURCE_DATE_EPOCH=" + strconv.FormatInt(modTime.Unix(), 10),
		"FORCE_SOURCE_DATE=1",
	}
	if c.bib != nil {
		env = append(env, "BIBINPUTS="+c.bib.Dir+sep+folder+sep+os.Getenv("BIBINPUTS"))
	}
	return env
}

// CompileBatch compiles frags in order. A failing fragment never stops the
// batch; cancellation of ctx does, and the remaining fragments are reported
// as failed.
func (c *Compiler) CompileBatch(ctx context.Context, frags []types.Fragment, obs Observer) BatchResult {
	if obs == nil {
		obs = Observers{}
	}
	var result BatchResult
	for _, f := range frags {
		obs.Start(f)
		var r types.FragmentResult
		if err := ctx.Err(); err != nil {
			r = failure(types.StageCancelled, fmt.Errorf("batch cancelled: %w", err))
			r.Fragment = f
			r.Status = types.StatusFailed
		} else {
			r = c.CompileFragment(ctx, f)
		}
		if r.OK() {
			result.Compiled++
		} else {
			result.Failed++
			c.logger.Debug("fragment failed", "fragment", f.Name, "stage", r.Stage, "err", r.Error)
		}
		result.Results = append(result.Results, r)
		obs.Result(r)
	}
	return result
}

func failure(stage types.Stage, err error) types.FragmentResult {
	return types.FragmentResult{Stage: stage, Error: err.Error()}
}

func withFailure(res types.FragmentResult, stage types.Stage, err error, diagnostic string) types.FragmentResult {
	res.Stage = stage
	res.Error = err.Error()
	res.Diagnostic = diagnostic
	return res
}

func toolName(format types.ArtifactFormat) string {
	if format == types.FormatDOCX {
		return "pandoc"
	}
	return "latex"
}

// moveFile renames src to dst. When a rename is not possible (build
// directory on another filesystem) the file is copied to a hidden sibling
// of dst and renamed into place, so dst is never left half written.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening artifact: %w", err)
	}
	defer in.Close()

	partial := filepath.Join(filepath.Dir(dst), "."+filepath.Base(dst)+".partial")
	out, err := os.OpenFile(partial, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating %s: %w", partial, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(partial)
		return fmt.Errorf("copying artifact: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(partial)
		return fmt.Errorf("closing %s: %w", partial, err)
	}
	if err := os.Rename(partial, dst); err != nil {
		os.Remove(partial)
		return fmt.Errorf("placing artifact %s: %w", filepath.Base(dst), err)
	}
	return nil
}
