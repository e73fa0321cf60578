// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package toolchain resolves and runs the external programs the compiler
// delegates to: the LaTeX engine, BibTeX, and pandoc.
package toolchain

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after the process
// was killed, e.g. when a TeX engine leaves a child holding stdout.
const waitDelay = 5 * time.Second

// Invocation describes one external process run.
type Invocation struct {
	// Path is the resolved executable.
	Path string

	Args []string

	// Dir is the working directory.
	Dir string

	// Env holds KEY=VALUE pairs added to the inherited environment.
	Env []string

	// Timeout bounds the run. Zero means no limit beyond ctx.
	Timeout time.Duration

	// OKExit lists non-zero exit codes that still count as success
	// (BibTeX exits 1 when it only emitted warnings).
	OKExit []int
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Output   []byte
	Duration time.Duration
}

// ExitError reports a process that exited with a failing status.
type ExitError struct {
	Tool   string
	Code   int
	Output []byte
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Tool, e.Code)
}

// Executor abstracts process execution. Tests substitute a fake that
// simulates the external tools.
type Executor interface {
	LookPath(file string) (string, error)
	IsExecutable(path string) bool
	Run(ctx context.Context, inv Invocation) (output []byte, exitCode int, err error)
}

// osExecutor is the production executor backed by os/exec.
type osExecutor struct{}

func (o *osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *osExecutor) IsExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	if filepath.Ext(path) == ".exe" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}

func (o *osExecutor) Run(ctx context.Context, inv Invocation) ([]byte, int, error) {
	cmd := exec.CommandContext(ctx, inv.Path, inv.Args...)
	cmd.Dir = inv.Dir
	cmd.Env = append(os.Environ(), inv.Env...)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		return out.Bytes(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return out.Bytes(), -1, err
	}
	return out.Bytes(), 0, nil
}

// Runner runs external tools with a per-invocation timeout and captures
// their combined output.
type Runner struct {
	exec   Executor
	logger *slog.Logger
}

// NewRunner returns a Runner backed by os/exec. A nil logger discards logs.
func NewRunner(logger *slog.Logger) *Runner {
	return NewRunnerWith(&osExecutor{}, logger)
}

// NewRunnerWith returns a Runner using exec to start processes.
func NewRunnerWith(exec Executor, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{exec: exec, logger: logger}
}

// Run starts the invocation and waits for it. A zero exit status, or one
// listed in OKExit, returns a nil error. Any other status returns the Result
// together with an *ExitError carrying the captured output. Timeouts and
// start failures return a plain error.
func (r *Runner) Run(ctx context.Context, inv Invocation) (Result, error) {
	tool := filepath.Base(inv.Path)
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}

	r.logger.Debug("running tool", "tool", tool, "args", strings.Join(inv.Args, " "), "dir", inv.Dir)
	start := time.Now()
	out, code, err := r.exec.Run(ctx, inv)
	res := Result{ExitCode: code, Output: out, Duration: time.Since(start)}
	r.logger.Debug("tool finished", "tool", tool, "exit", code, "duration", res.Duration)

	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) && inv.Timeout > 0 {
			return res, fmt.Errorf("%s timed out after %v: %w", tool, inv.Timeout, ctxErr)
		}
		return res, fmt.Errorf("running %s: %w", tool, ctxErr)
	}
	if err != nil {
		return res, fmt.Errorf("running %s: %w", tool, err)
	}
	if code == 0 || containsCode(inv.OKExit, code) {
		return res, nil
	}
	return res, &ExitError{Tool: tool, Code: code, Output: out}
}

func containsCode(codes []int, code int) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}

// versionTimeout bounds a --version check.
const versionTimeout = 10 * time.Second

// Version runs the tool at path with --version and returns the first
// non-blank line of its output.
func (r *Runner) Version(ctx context.Context, path string) (string, error) {
	res, err := r.Run(ctx, Invocation{Path: path, Args: []string{"--version"}, Timeout: versionTimeout})
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(res.Output), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", nil
}
